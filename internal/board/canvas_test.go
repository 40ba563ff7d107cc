package board

import (
	"errors"
	"image/color"
	"testing"
)

func TestParseColor(t *testing.T) {
	cases := map[string]color.RGBA{
		"#000000": {A: 0xff},
		"#ff8000": {R: 0xff, G: 0x80, A: 0xff},
		"#f00":    {R: 0xff, A: 0xff},
		"Red":     {R: 0xff, A: 0xff},
	}
	for in, want := range cases {
		got, err := ParseColor(in)
		if err != nil {
			t.Errorf("ParseColor(%q) failed: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseColor(%q) = %v, want %v", in, got, want)
		}
	}
	for _, bad := range []string{"", "#12", "#gggggg", "chartreuse-ish"} {
		if _, err := ParseColor(bad); !errors.Is(err, ErrInvalidColor) {
			t.Errorf("ParseColor(%q) expected ErrInvalidColor, got %v", bad, err)
		}
	}
}

func TestNewCanvasIsWhite(t *testing.T) {
	c, err := NewCanvas(10, 5)
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < 5; y++ {
		for x := 0; x < 10; x++ {
			if c.At(x, y) != Background {
				t.Fatalf("Pixel (%d,%d) not white", x, y)
			}
		}
	}
	if _, err := NewCanvas(0, 5); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("Expected ErrInvalidSize, got %v", err)
	}
}

func TestPenSegmentAndCircle(t *testing.T) {
	c, _ := NewCanvas(40, 40)
	black := color.RGBA{A: 0xff}
	p := pen{img: c.img, col: black, width: 2}

	p.segment(5, 5, 30, 5)
	if c.At(15, 5) != black {
		t.Error("Segment midpoint should be painted")
	}
	if c.At(15, 10) != Background {
		t.Error("Pixels away from the segment must stay white")
	}

	p.circle(20, 20, 10)
	if c.At(30, 20) != black {
		t.Error("Ring should pass through the radius")
	}
	if c.At(20, 20) != Background {
		t.Error("Circle is an outline, centre must stay white")
	}
}

func TestRestoreScalesDifferentSize(t *testing.T) {
	small, _ := NewCanvas(10, 10)
	black := color.RGBA{A: 0xff}
	pen{img: small.img, col: black, width: 20}.dot(5, 5)

	big, _ := NewCanvas(20, 20)
	big.Restore(small.Snapshot())
	if big.At(10, 10) != black {
		t.Error("Scaled restore should carry the content")
	}
}
