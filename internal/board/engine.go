package board

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"log"
	"math"
	"sync"
	"time"

	"classboard/pkg/types"
)

// Options configures a new Engine.
type Options struct {
	Width        int
	Height       int
	HistoryLimit int
	Tool         types.Tool
	Color        string
	LineWidth    float64
}

// DefaultOptions returns a 1280×720 canvas with a black 2px pen.
func DefaultOptions() Options {
	return Options{
		Width:        1280,
		Height:       720,
		HistoryLimit: 50,
		Tool:         types.ToolPen,
		Color:        "#000000",
		LineWidth:    2,
	}
}

// stroke is the in-progress state of one drawer, local or remote.
type stroke struct {
	tool           types.Tool
	col            color.RGBA
	width          float64
	startX, startY float64
	lastX, lastY   float64
}

// Engine is the per-client replay and history engine.
// ARCHITECTURAL DISCOVERY: Local pointer input runs an Idle → Drawing → Idle
// state machine; remote events take a separate Apply path that never touches
// the local drawing flag, so a peer's stroke cannot end or corrupt ours.
type Engine struct {
	mu sync.Mutex

	channelID string
	userID    string

	canvas  *Canvas
	history *History

	tool      types.Tool
	color     string
	lineWidth float64

	drawing bool
	local   stroke
	// base is the raster under an in-progress local shape preview.
	base *image.RGBA

	remote map[string]*stroke
}

// NewEngine creates an engine with a blank canvas and the blank raster as the
// first history entry, so undoing every stroke returns to white.
func NewEngine(channelID, userID string, opts Options) (*Engine, error) {
	canvas, err := NewCanvas(opts.Width, opts.Height)
	if err != nil {
		return nil, err
	}
	if _, err := ParseColor(opts.Color); err != nil {
		return nil, err
	}
	if opts.LineWidth <= 0 {
		opts.LineWidth = 1
	}
	e := &Engine{
		channelID: channelID,
		userID:    userID,
		canvas:    canvas,
		history:   NewHistory(opts.HistoryLimit),
		tool:      opts.Tool,
		color:     opts.Color,
		lineWidth: opts.LineWidth,
		remote:    make(map[string]*stroke),
	}
	if err := e.history.Commit(canvas.img); err != nil {
		return nil, err
	}
	return e, nil
}

// SetTool changes the tool for the next local stroke.
func (e *Engine) SetTool(t types.Tool) error {
	if !t.Valid() {
		return fmt.Errorf("%w: unknown tool", types.ErrInvalidDrawing)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tool = t
	return nil
}

// SetColor changes the color for the next local stroke.
func (e *Engine) SetColor(c string) error {
	if _, err := ParseColor(c); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.color = c
	return nil
}

// SetLineWidth changes the width for the next local stroke.
func (e *Engine) SetLineWidth(w float64) error {
	if w <= 0 || w > 512 {
		return fmt.Errorf("%w: line width %v", types.ErrInvalidDrawing, w)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lineWidth = w
	return nil
}

// IsDrawing reports whether a local stroke is in progress.
func (e *Engine) IsDrawing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drawing
}

func (e *Engine) event(phase string, x, y float64) types.DrawingEvent {
	return types.DrawingEvent{
		ChannelID: e.channelID,
		UserID:    e.userID,
		Type:      phase,
		Tool:      e.local.tool,
		Color:     e.color,
		LineWidth: e.local.width,
		X:         x,
		Y:         y,
	}
}

// PointerDown starts a local stroke and returns the start event to emit.
func (e *Engine) PointerDown(x, y float64) (types.DrawingEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.drawing {
		return types.DrawingEvent{}, ErrAlreadyDrawing
	}
	col, err := strokeColor(e.tool, e.color)
	if err != nil {
		return types.DrawingEvent{}, err
	}
	e.drawing = true
	e.local = stroke{tool: e.tool, col: col, width: e.lineWidth, startX: x, startY: y, lastX: x, lastY: y}

	if e.tool.IsShape() {
		e.base = e.canvas.Snapshot()
	} else {
		e.local.pen(e.canvas.img).dot(x, y)
	}
	return e.event(types.PhaseStart, x, y), nil
}

// PointerMove extends the stroke; ok is false when no stroke is in progress.
func (e *Engine) PointerMove(x, y float64) (ev types.DrawingEvent, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.drawing {
		return types.DrawingEvent{}, false
	}
	if e.local.tool.IsShape() {
		e.canvas.Restore(e.base)
		e.local.shape(e.canvas.img, x, y)
	} else {
		e.local.pen(e.canvas.img).segment(e.local.lastX, e.local.lastY, x, y)
	}
	e.local.lastX, e.local.lastY = x, y
	return e.event(types.PhaseDraw, x, y), true
}

// PointerUp finishes the stroke, commits a history snapshot and returns the end
// event. Shape end events carry the anchor point.
func (e *Engine) PointerUp(x, y float64) (types.DrawingEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.drawing {
		return types.DrawingEvent{}, ErrNotDrawing
	}
	ev := e.event(types.PhaseEnd, x, y)
	if e.local.tool.IsShape() {
		e.canvas.Restore(e.base)
		e.local.shape(e.canvas.img, x, y)
		sx, sy := e.local.startX, e.local.startY
		ev.StartX, ev.StartY = &sx, &sy
		e.base = nil
	} else {
		e.local.pen(e.canvas.img).segment(e.local.lastX, e.local.lastY, x, y)
	}
	e.drawing = false
	e.commit()
	return ev, nil
}

// Clear wipes the canvas locally, commits the blank raster and returns the
// clear-canvas payload to emit.
func (e *Engine) Clear() types.ClearCanvasRequest {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.canvas.Clear()
	e.drawing = false
	e.base = nil
	e.commit()
	return types.ClearCanvasRequest{ChannelID: e.channelID, UserID: e.userID}
}

// Apply renders a remote drawing event.
// FUNCTIONAL DISCOVERY: Remote strokes are tracked per sender so two peers drawing
// at once never have their segments joined; shape draw events are skipped because
// the end event carries everything needed to render the final shape.
func (e *Engine) Apply(ev types.DrawingEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	col, err := strokeColor(ev.Tool, ev.Color)
	if err != nil {
		// Peers may send colors this engine cannot parse; draw them in black.
		col = color.RGBA{A: 0xff}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.remote[ev.UserID]
	switch ev.Type {
	case types.PhaseStart:
		s = &stroke{tool: ev.Tool, col: col, width: ev.LineWidth, startX: ev.X, startY: ev.Y, lastX: ev.X, lastY: ev.Y}
		e.remote[ev.UserID] = s
		if !ev.Tool.IsShape() {
			e.paintRemote(func(img *image.RGBA) { s.pen(img).dot(ev.X, ev.Y) })
		}
		return nil

	case types.PhaseDraw:
		if ev.Tool.IsShape() {
			return nil
		}
		if s == nil {
			// Joined mid-stroke: start from this point.
			s = &stroke{tool: ev.Tool, col: col, width: ev.LineWidth, lastX: ev.X, lastY: ev.Y}
			e.remote[ev.UserID] = s
		}
		s.col, s.width = col, ev.LineWidth
		x0, y0 := s.lastX, s.lastY
		e.paintRemote(func(img *image.RGBA) { s.pen(img).segment(x0, y0, ev.X, ev.Y) })
		s.lastX, s.lastY = ev.X, ev.Y
		return nil

	default: // end
		delete(e.remote, ev.UserID)
		end := stroke{tool: ev.Tool, col: col, width: ev.LineWidth, lastX: ev.X, lastY: ev.Y}
		if ev.Tool.IsShape() {
			end.startX, end.startY, _ = ev.Anchor()
			e.paintRemote(func(img *image.RGBA) { end.shape(img, ev.X, ev.Y) })
			return nil
		}
		if s != nil {
			end.lastX, end.lastY = s.lastX, s.lastY
		}
		e.paintRemote(func(img *image.RGBA) { end.pen(img).segment(end.lastX, end.lastY, ev.X, ev.Y) })
		return nil
	}
}

// ApplyClear handles a remote clear-canvas. Local history is not touched.
func (e *Engine) ApplyClear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.canvas.Clear()
	if e.base != nil {
		e.base = e.canvas.Snapshot()
	}
	e.remote = make(map[string]*stroke)
}

// commit records the canvas in history. Callers hold e.mu.
func (e *Engine) commit() {
	if err := e.history.Commit(e.canvas.img); err != nil {
		log.Printf("[board %s/%s] history commit failed: %v", e.channelID, e.userID, err)
	}
}

// paintRemote draws onto the canvas and, during a local shape preview, onto the
// preview base so the next preview frame does not erase the remote stroke.
func (e *Engine) paintRemote(paint func(*image.RGBA)) {
	paint(e.canvas.img)
	if e.base != nil {
		paint(e.base)
	}
}

// Undo restores the previous snapshot; false at the oldest entry.
func (e *Engine) Undo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.drawing {
		return false
	}
	img, ok := e.history.Undo()
	if ok {
		e.canvas.Restore(img)
	}
	return ok
}

// Redo restores the next snapshot; false at the newest entry.
func (e *Engine) Redo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.drawing {
		return false
	}
	img, ok := e.history.Redo()
	if ok {
		e.canvas.Restore(img)
	}
	return ok
}

func (e *Engine) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.CanUndo()
}

func (e *Engine) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.CanRedo()
}

// Resize recreates the canvas at w×h. When idle it redraws the current
// snapshot scaled to fit, so remote strokes drawn since that snapshot are lost.
// A stroke in progress survives: the live raster and any shape preview base are
// scaled instead, and PointerUp still commits and emits the end event.
func (e *Engine) Resize(w, h int) error {
	canvas, err := NewCanvas(w, h)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.drawing {
		canvas.Restore(e.canvas.img)
		if e.base != nil {
			scaled, _ := NewCanvas(w, h)
			scaled.Restore(e.base)
			e.base = scaled.img
		}
	} else if img, ok := e.history.Current(); ok {
		canvas.Restore(img)
	}
	e.canvas = canvas
	return nil
}

// Snapshot returns a copy of the current raster.
func (e *Engine) Snapshot() *image.RGBA {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.canvas.Snapshot()
}

// Size returns the canvas dimensions.
func (e *Engine) Size() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.canvas.Width(), e.canvas.Height()
}

// ExportPNG writes the current raster as PNG.
func (e *Engine) ExportPNG(w io.Writer) error {
	img := e.Snapshot()
	return (&Canvas{img: img}).EncodePNG(w)
}

// ExportFileName returns the download name for a channel export taken at t.
func ExportFileName(channelID string, t time.Time) string {
	return fmt.Sprintf("whiteboard-%s-%d.png", channelID, t.UnixMilli())
}

func strokeColor(t types.Tool, c string) (color.RGBA, error) {
	if t == types.ToolEraser {
		return Background, nil
	}
	return ParseColor(c)
}

func (s *stroke) pen(img *image.RGBA) pen {
	return pen{img: img, col: s.col, width: s.width}
}

// shape renders s.tool from the anchor to (x, y).
func (s *stroke) shape(img *image.RGBA, x, y float64) {
	p := s.pen(img)
	switch s.tool {
	case types.ToolLine:
		p.segment(s.startX, s.startY, x, y)
	case types.ToolCircle:
		p.circle(s.startX, s.startY, math.Hypot(x-s.startX, y-s.startY))
	case types.ToolRectangle:
		p.rect(s.startX, s.startY, x, y)
	}
}
