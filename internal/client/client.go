package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"nhooyr.io/websocket"

	"classboard/internal/board"
	"classboard/pkg/types"
)

// LockedNoticeText is shown while a refused stroke notice is active.
const LockedNoticeText = "Whiteboard is Locked!"

// Config describes one participant and how to reach the relay.
type Config struct {
	URL       string
	ChannelID string
	UserID    string
	UserName  string
	Role      types.Role
	// Token is sent with join-whiteboard for relays in strict mode.
	Token string

	Canvas board.Options

	MinBackoff      time.Duration
	MaxBackoff      time.Duration
	DialTimeout     time.Duration
	WriteTimeout    time.Duration
	SendBuffer      int
	EventBuffer     int
	MaxMessageBytes int64
	// MaxDocumentBytes rejects oversized uploads before they are sent; 0 disables.
	MaxDocumentBytes int
	LockNotice       time.Duration

	// Now is the clock used for the lock notice.
	Now func() time.Time
}

func (c *Config) setDefaults() {
	if c.Canvas.Width == 0 {
		c.Canvas = board.DefaultOptions()
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 256
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 16 << 20
	}
	if c.LockNotice <= 0 {
		c.LockNotice = 2 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.UserName == "" {
		c.UserName = c.UserID
	}
}

// Event names delivered on Events besides the relay's own event names.
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
)

// Event is one observable change: a relay event after it was applied to the
// local view, or a connection state change.
type Event struct {
	Name    string
	Payload interface{}
}

// Client is one participant: a relay connection, the local view of shared
// state and the local replay engine.
// ARCHITECTURAL DISCOVERY: Everything the relay sends is applied here first and
// only then published on Events, so observers always see a consistent view.
type Client struct {
	cfg    Config
	engine *board.Engine

	mu          sync.RWMutex
	connected   bool
	locked      bool
	count       int
	role        types.Role
	document    *types.PDFSharedPayload
	panelHidden bool
	noticeUntil time.Time
	joins       int
	failures    int
	started     bool
	closed      bool
	cancel      context.CancelFunc
	done        chan struct{}

	sendQ  chan []byte
	events chan Event
}

// New validates cfg and creates a client with a blank canvas. The board starts
// locked until the relay says otherwise.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" || cfg.ChannelID == "" || cfg.UserID == "" || !cfg.Role.Valid() {
		return nil, fmt.Errorf("%w: url, channel, user and a valid role are required", ErrInvalidConfig)
	}
	cfg.setDefaults()
	engine, err := board.NewEngine(cfg.ChannelID, cfg.UserID, cfg.Canvas)
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:    cfg,
		engine: engine,
		locked: true,
		role:   cfg.Role,
		sendQ:  make(chan []byte, cfg.SendBuffer),
		events: make(chan Event, cfg.EventBuffer),
	}, nil
}

// Start connects in the background and keeps reconnecting until Close or ctx ends.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx)
	return nil
}

// Close sends leave-whiteboard when connected and stops the connection loop.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.closed = true
	cancel, done, connected := c.cancel, c.done, c.connected
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	if connected {
		_ = c.send(types.EventLeaveWhiteboard, types.LeaveRequest{ChannelID: c.cfg.ChannelID, UserID: c.cfg.UserID})
		// Give the writer a moment to flush the leave.
		select {
		case <-time.After(50 * time.Millisecond):
		case <-done:
		}
	}
	cancel()
	<-done
	return nil
}

// Events returns the observer channel. Events are dropped if it is not drained.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Engine exposes the local replay engine.
func (c *Client) Engine() *board.Engine {
	return c.engine
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	for {
		err := c.connectAndPump(ctx)
		c.setConnected(false)
		if ctx.Err() != nil {
			return
		}
		c.mu.Lock()
		c.failures++
		c.mu.Unlock()
		log.Printf("[client %s] disconnected from %s: %v", c.cfg.UserID, c.cfg.URL, err)
		c.emit(Event{Name: EventDisconnected, Payload: err})

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.nextBackoff()):
		}
	}
}

// nextBackoff doubles from MinBackoff per consecutive failure up to MaxBackoff.
func (c *Client) nextBackoff() time.Duration {
	c.mu.RLock()
	n := c.failures
	c.mu.RUnlock()
	if n > 16 {
		n = 16
	}
	d := c.cfg.MinBackoff
	for i := 1; i < n; i++ {
		d *= 2
		if d >= c.cfg.MaxBackoff {
			return c.cfg.MaxBackoff
		}
	}
	return d
}

func (c *Client) connectAndPump(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	ws, _, err := websocket.Dial(dialCtx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChannelUnreachable, err)
	}
	defer ws.Close(websocket.StatusNormalClosure, "bye")
	ws.SetReadLimit(c.cfg.MaxMessageBytes)

	// FUNCTIONAL DISCOVERY: Every (re)connection starts with a join; nothing sent
	// while disconnected is replayed, and missed relay events are not backfilled.
	c.drainSendQueue()
	join, err := types.EncodeEnvelope(types.EventJoinWhiteboard, types.JoinRequest{
		ChannelID: c.cfg.ChannelID,
		UserID:    c.cfg.UserID,
		UserName:  c.cfg.UserName,
		Role:      c.cfg.Role,
		Token:     c.cfg.Token,
	})
	if err != nil {
		return err
	}
	if err := c.write(ctx, ws, join); err != nil {
		return err
	}

	connCtx, stop := context.WithCancel(ctx)
	defer stop()
	writeErr := make(chan error, 1)
	go func() {
		for {
			select {
			case <-connCtx.Done():
				return
			case frame := <-c.sendQ:
				if err := c.write(connCtx, ws, frame); err != nil {
					writeErr <- err
					stop()
					return
				}
			}
		}
	}()

	c.mu.Lock()
	c.connected = true
	c.failures = 0
	c.joins++
	c.mu.Unlock()
	log.Printf("[client %s] connected to %s, joining %s as %s", c.cfg.UserID, c.cfg.URL, c.cfg.ChannelID, c.cfg.Role)
	c.emit(Event{Name: EventConnected})

	for {
		_, data, err := ws.Read(connCtx)
		if err != nil {
			select {
			case werr := <-writeErr:
				return fmt.Errorf("%w: write: %v", ErrChannelUnreachable, werr)
			default:
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrChannelUnreachable, err)
		}
		c.handleFrame(data)
	}
}

func (c *Client) write(ctx context.Context, ws *websocket.Conn, frame []byte) error {
	wctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()
	return ws.Write(wctx, websocket.MessageText, frame)
}

func (c *Client) drainSendQueue() {
	for {
		select {
		case <-c.sendQ:
		default:
			return
		}
	}
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *Client) emit(e Event) {
	select {
	case c.events <- e:
	default:
		// drop if slow consumer
	}
}

// send queues an intent. It never blocks: fire-and-forget.
func (c *Client) send(event string, data interface{}) error {
	frame, err := types.EncodeEnvelope(event, data)
	if err != nil {
		return err
	}
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	if !connected {
		return ErrChannelUnreachable
	}
	select {
	case c.sendQ <- frame:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// handleFrame applies one relay frame to the local view.
func (c *Client) handleFrame(frame []byte) {
	env, err := types.DecodeEnvelope(frame)
	if err != nil {
		log.Printf("[client %s] dropping malformed frame: %v", c.cfg.UserID, err)
		return
	}

	var payload interface{}
	switch env.Event {
	case types.EventSessionSnapshot:
		var snap types.SnapshotPayload
		if err = env.Decode(&snap); err == nil {
			c.mu.Lock()
			c.locked = snap.Locked
			c.count = snap.ParticipantCount
			c.document = snap.Document
			if snap.Role.Valid() {
				c.role = snap.Role
			}
			c.mu.Unlock()
			payload = snap
		}

	case types.EventUserCount:
		var n int
		if err = json.Unmarshal(env.Data, &n); err == nil {
			c.mu.Lock()
			c.count = n
			c.mu.Unlock()
			payload = n
		}

	case types.EventLockStatus:
		var locked bool
		if err = json.Unmarshal(env.Data, &locked); err == nil {
			c.mu.Lock()
			c.locked = locked
			c.mu.Unlock()
			payload = locked
		}

	case types.EventPDFShared:
		var doc types.PDFSharedPayload
		if err = env.Decode(&doc); err == nil {
			c.mu.Lock()
			c.document = &doc
			c.mu.Unlock()
			payload = doc
		}

	case types.EventPDFVisibilityChanged:
		var visible bool
		if err = json.Unmarshal(env.Data, &visible); err == nil {
			c.mu.Lock()
			if c.document != nil {
				doc := *c.document
				doc.VisibleToStudents = visible
				c.document = &doc
			}
			c.mu.Unlock()
			payload = visible
		}

	case types.EventPDFRemoved:
		c.mu.Lock()
		c.document = nil
		c.mu.Unlock()

	case types.EventDrawing:
		var ev types.DrawingEvent
		if err = env.Decode(&ev); err == nil {
			err = c.engine.Apply(ev)
			payload = ev
		}

	case types.EventClearCanvas:
		c.engine.ApplyClear()

	case types.EventError:
		var ep types.ErrorPayload
		if err = env.Decode(&ep); err == nil {
			log.Printf("[client %s] relay rejected %q: %s (%s)", c.cfg.UserID, ep.Event, ep.Message, ep.Code)
			payload = ep
		}

	default:
		log.Printf("[client %s] ignoring unknown event %q", c.cfg.UserID, env.Event)
		return
	}

	if err != nil {
		log.Printf("[client %s] bad %s payload: %v", c.cfg.UserID, env.Event, err)
		return
	}
	c.emit(Event{Name: env.Event, Payload: payload})
}

// Role returns the role the relay accepted, or the configured one before joining.
func (c *Client) Role() types.Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

func (c *Client) isTeacher() bool { return c.Role() == types.RoleTeacher }

func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Joins counts successful (re)connections.
func (c *Client) Joins() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.joins
}

func (c *Client) Locked() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.locked
}

func (c *Client) ParticipantCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count
}

// CanDraw reports the local permission: teachers always, students when unlocked.
func (c *Client) CanDraw() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role == types.RoleTeacher || !c.locked
}

// LockedNotice returns the notice text while a refused stroke notice is active.
func (c *Client) LockedNotice() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cfg.Now().Before(c.noticeUntil) {
		return LockedNoticeText, true
	}
	return "", false
}

// checkDraw refuses students on a locked board and raises the notice.
// TECHNICAL DISCOVERY: This is an optimistic local check against the last known
// lock state; a strict relay enforces the same rule again.
func (c *Client) checkDraw() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.role == types.RoleTeacher || !c.locked {
		return nil
	}
	c.noticeUntil = c.cfg.Now().Add(c.cfg.LockNotice)
	return ErrLocked
}

// PointerDown starts a local stroke. Drawing is rendered locally even when the
// relay is unreachable; emission is fire-and-forget.
func (c *Client) PointerDown(x, y float64) error {
	if err := c.checkDraw(); err != nil {
		return err
	}
	ev, err := c.engine.PointerDown(x, y)
	if err != nil {
		return err
	}
	c.sendDrawing(ev)
	return nil
}

func (c *Client) PointerMove(x, y float64) {
	if ev, ok := c.engine.PointerMove(x, y); ok {
		c.sendDrawing(ev)
	}
}

func (c *Client) PointerUp(x, y float64) error {
	ev, err := c.engine.PointerUp(x, y)
	if err != nil {
		return err
	}
	c.sendDrawing(ev)
	return nil
}

func (c *Client) sendDrawing(ev types.DrawingEvent) {
	if err := c.send(types.EventDrawing, ev); err != nil && err != ErrChannelUnreachable {
		log.Printf("[client %s] drawing event dropped: %v", c.cfg.UserID, err)
	}
}

// ClearCanvas clears locally and tells peers. Students need an unlocked board.
func (c *Client) ClearCanvas() error {
	if err := c.checkDraw(); err != nil {
		return err
	}
	req := c.engine.Clear()
	if err := c.send(types.EventClearCanvas, req); err != nil && err != ErrChannelUnreachable {
		return err
	}
	return nil
}

func (c *Client) requireTeacher(action string) error {
	if !c.isTeacher() {
		return fmt.Errorf("%w: %s requires the teacher role", ErrPermissionDenied, action)
	}
	return nil
}

// ToggleLock asks the relay to set the lock; the view changes when lock-status arrives.
func (c *Client) ToggleLock(locked bool) error {
	if err := c.requireTeacher(types.EventToggleLock); err != nil {
		return err
	}
	return c.send(types.EventToggleLock, types.ToggleLockRequest{ChannelID: c.cfg.ChannelID, Locked: locked})
}

// ShareDocument uploads a PDF; it starts hidden from students.
func (c *Client) ShareDocument(blob []byte, fileName string) error {
	if err := c.requireTeacher(types.EventSharePDF); err != nil {
		return err
	}
	if detected := mimetype.Detect(blob); !detected.Is("application/pdf") {
		return fmt.Errorf("%w: %s is %s", ErrUnsupportedDocumentType, fileName, detected.String())
	}
	if c.cfg.MaxDocumentBytes > 0 && len(blob) > c.cfg.MaxDocumentBytes {
		return fmt.Errorf("%w: %d bytes", ErrDocumentTooLarge, len(blob))
	}
	return c.send(types.EventSharePDF, types.SharePDFRequest{
		ChannelID:         c.cfg.ChannelID,
		PDFData:           blob,
		FileName:          fileName,
		SharedBy:          c.cfg.UserName,
		VisibleToStudents: false,
	})
}

// ShareDocumentFile reads path and shares it.
func (c *Client) ShareDocumentFile(path string) error {
	blob, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return c.ShareDocument(blob, filepath.Base(path))
}

func (c *Client) SetDocumentVisibility(visible bool) error {
	if err := c.requireTeacher(types.EventTogglePDFVisibility); err != nil {
		return err
	}
	return c.send(types.EventTogglePDFVisibility, types.TogglePDFVisibilityRequest{ChannelID: c.cfg.ChannelID, Visible: visible})
}

func (c *Client) RemoveDocument() error {
	if err := c.requireTeacher(types.EventRemovePDF); err != nil {
		return err
	}
	return c.send(types.EventRemovePDF, types.RemovePDFRequest{ChannelID: c.cfg.ChannelID})
}

// SetPanelHidden toggles this client's own document panel. It is never shared.
func (c *Client) SetPanelHidden(hidden bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.panelHidden = hidden
}

// Document returns the shared document, if any.
func (c *Client) Document() (types.PDFSharedPayload, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.document == nil {
		return types.PDFSharedPayload{}, false
	}
	return *c.document, true
}

// DocumentVisible is the effective visibility: the shared gate (students only)
// AND this client's own panel toggle.
func (c *Client) DocumentVisible() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.document == nil || c.panelHidden {
		return false
	}
	if c.role == types.RoleTeacher {
		return true
	}
	return c.document.VisibleToStudents
}

func (c *Client) Undo() bool { return c.engine.Undo() }
func (c *Client) Redo() bool { return c.engine.Redo() }

func (c *Client) Resize(w, h int) error { return c.engine.Resize(w, h) }

// ExportFile writes the canvas as PNG into dir and returns the file path.
func (c *Client) ExportFile(dir string) (string, error) {
	path := filepath.Join(dir, board.ExportFileName(c.cfg.ChannelID, c.cfg.Now()))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := c.engine.ExportPNG(f); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}
