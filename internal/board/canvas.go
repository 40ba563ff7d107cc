package board

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"strconv"
	"strings"

	xdraw "golang.org/x/image/draw"
)

// Background is the canvas clear color; the eraser paints with it.
var Background = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

var namedColors = map[string]color.RGBA{
	"black":  {A: 0xff},
	"white":  Background,
	"red":    {R: 0xff, A: 0xff},
	"green":  {G: 0x80, A: 0xff},
	"blue":   {B: 0xff, A: 0xff},
	"yellow": {R: 0xff, G: 0xff, A: 0xff},
	"orange": {R: 0xff, G: 0xa5, A: 0xff},
	"purple": {R: 0x80, B: 0x80, A: 0xff},
}

// ParseColor accepts #rgb, #rrggbb and a few CSS color names.
func ParseColor(s string) (color.RGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[s]; ok {
		return c, nil
	}
	if !strings.HasPrefix(s, "#") {
		return color.RGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	hex := s[1:]
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// Canvas is a white raster that strokes are painted onto.
type Canvas struct {
	img *image.RGBA
}

// NewCanvas returns a blank canvas of w×h pixels.
func NewCanvas(w, h int) (*Canvas, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, w, h)
	}
	c := &Canvas{img: image.NewRGBA(image.Rect(0, 0, w, h))}
	c.Clear()
	return c, nil
}

func (c *Canvas) Width() int  { return c.img.Bounds().Dx() }
func (c *Canvas) Height() int { return c.img.Bounds().Dy() }

// At returns the pixel at (x, y).
func (c *Canvas) At(x, y int) color.RGBA {
	return c.img.RGBAAt(x, y)
}

// Clear repaints the whole canvas with Background.
func (c *Canvas) Clear() {
	xdraw.Draw(c.img, c.img.Bounds(), image.NewUniform(Background), image.Point{}, xdraw.Src)
}

// Snapshot returns a copy of the current raster.
func (c *Canvas) Snapshot() *image.RGBA {
	return cloneRGBA(c.img)
}

// Restore replaces the raster with img, scaling when the sizes differ.
func (c *Canvas) Restore(img *image.RGBA) {
	if img.Bounds().Size() == c.img.Bounds().Size() {
		xdraw.Draw(c.img, c.img.Bounds(), img, img.Bounds().Min, xdraw.Src)
		return
	}
	c.Clear()
	xdraw.BiLinear.Scale(c.img, c.img.Bounds(), img, img.Bounds(), xdraw.Src, nil)
}

// EncodePNG writes the raster as PNG.
func (c *Canvas) EncodePNG(w io.Writer) error {
	return png.Encode(w, c.img)
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}

// Equal reports whether two rasters have identical size and pixels.
func Equal(a, b *image.RGBA) bool {
	if a.Bounds() != b.Bounds() {
		return false
	}
	if len(a.Pix) != len(b.Pix) {
		return false
	}
	for i := range a.Pix {
		if a.Pix[i] != b.Pix[i] {
			return false
		}
	}
	return true
}

// pen paints onto one raster.
// TECHNICAL DISCOVERY: Shapes and segments are rasterized by distance from the
// pixel center, which yields round caps and joins without tracking stroke state.
type pen struct {
	img   *image.RGBA
	col   color.RGBA
	width float64
}

func (p pen) radius() float64 {
	r := p.width / 2
	if r < 0.5 {
		r = 0.5
	}
	return r
}

// clip returns the pixel rectangle covering [x0,x1]×[y0,y1] inside the raster.
func (p pen) clip(x0, y0, x1, y1 float64) image.Rectangle {
	r := image.Rect(int(math.Floor(x0)), int(math.Floor(y0)), int(math.Ceil(x1))+1, int(math.Ceil(y1))+1)
	return r.Intersect(p.img.Bounds())
}

// segment paints a capsule from (x0,y0) to (x1,y1).
func (p pen) segment(x0, y0, x1, y1 float64) {
	r := p.radius()
	box := p.clip(math.Min(x0, x1)-r, math.Min(y0, y1)-r, math.Max(x0, x1)+r, math.Max(y0, y1)+r)
	dx, dy := x1-x0, y1-y0
	lenSq := dx*dx + dy*dy
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			px, py := float64(x)+0.5, float64(y)+0.5
			t := 0.0
			if lenSq > 0 {
				t = ((px-x0)*dx + (py-y0)*dy) / lenSq
				t = math.Max(0, math.Min(1, t))
			}
			cx, cy := x0+t*dx, y0+t*dy
			if (px-cx)*(px-cx)+(py-cy)*(py-cy) <= r*r {
				p.img.SetRGBA(x, y, p.col)
			}
		}
	}
}

// dot paints a single round point.
func (p pen) dot(x, y float64) {
	p.segment(x, y, x, y)
}

// circle paints a ring centred on (cx,cy) through the given radius.
func (p pen) circle(cx, cy, radius float64) {
	half := p.radius()
	outer := radius + half
	inner := math.Max(0, radius-half)
	box := p.clip(cx-outer, cy-outer, cx+outer, cy+outer)
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			px, py := float64(x)+0.5, float64(y)+0.5
			d := math.Hypot(px-cx, py-cy)
			if d <= outer && d >= inner {
				p.img.SetRGBA(x, y, p.col)
			}
		}
	}
}

// rect paints the outline of the rectangle spanned by two corners.
func (p pen) rect(x0, y0, x1, y1 float64) {
	p.segment(x0, y0, x1, y0)
	p.segment(x1, y0, x1, y1)
	p.segment(x1, y1, x0, y1)
	p.segment(x0, y1, x0, y0)
}
