package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"classboard/internal/metrics"
	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

// Options tune a single connection.
type Options struct {
	BufferSize      int
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	ReadTimeout     time.Duration
	MaxMessageBytes int64
}

// DefaultOptions mirrors the config defaults.
func DefaultOptions() Options {
	return Options{
		BufferSize:      256,
		WriteTimeout:    5 * time.Second,
		PingInterval:    30 * time.Second,
		ReadTimeout:     60 * time.Second,
		MaxMessageBytes: 16 << 20,
	}
}

// Connection wraps a gorilla connection with a single writer goroutine.
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized; every frame and
// ping goes through writeLoop.
type Connection struct {
	id          string
	conn        *websocket.Conn
	opts        Options
	writeCh     chan []byte
	participant types.Participant
	joined      bool
	ctx         context.Context
	cancel      context.CancelFunc
	closeOnce   sync.Once
	mu          sync.RWMutex // guards participant and joined
}

var _ interfaces.Connection = (*Connection)(nil)

// NewConnection starts the writer for conn. The connection is anonymous until
// SetIdentity is called after a successful join.
func NewConnection(conn *websocket.Conn, opts Options) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:      uuid.NewString(),
		conn:    conn,
		opts:    opts,
		writeCh: make(chan []byte, opts.BufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}
	go c.writeLoop()
	return c
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				_ = c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("Write to connection %s failed: %v", c.id, err)
				_ = c.Close()
				return
			}

		case <-ticker.C:
			// TECHNICAL DISCOVERY: Ping interval must stay below the peer read timeout
			deadline := time.Now().Add(c.opts.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				_ = c.Close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// ID returns the per-connection identifier.
func (c *Connection) ID() string { return c.id }

// Send queues frame for delivery. A full buffer means the peer cannot keep up;
// the connection is closed rather than letting it stall the hub.
func (c *Connection) Send(frame []byte) error {
	select {
	case <-c.ctx.Done():
		metrics.FramesDropped.WithLabelValues("closed").Inc()
		return ErrConnectionClosed
	default:
	}

	select {
	case c.writeCh <- frame:
		metrics.FramesDelivered.Inc()
		return nil
	default:
		metrics.FramesDropped.WithLabelValues("slow_consumer").Inc()
		log.Printf("Connection %s (user=%s) write buffer full, closing", c.id, c.GetUserID())
		go func() { _ = c.Close() }()
		return ErrSlowConsumer
	}
}

// WriteJSON encodes v and queues it.
func (c *Connection) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return c.Send(data)
}

// Close stops the writer and closes the socket. Safe to call repeatedly.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			err = c.conn.Close()
		}
	})
	return err
}

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} { return c.ctx.Done() }

func (c *Connection) SetIdentity(p types.Participant) error {
	if p.ChannelID == "" || p.UserID == "" {
		return types.ErrInvalidJoin
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.participant = p
	c.joined = true
	return nil
}

func (c *Connection) ClearIdentity() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.participant = types.Participant{}
	c.joined = false
}

func (c *Connection) IsJoined() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.joined
}

func (c *Connection) GetUserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.participant.UserID
}

func (c *Connection) GetUserName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.participant.UserName
}

func (c *Connection) GetRole() types.Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.participant.Role
}

func (c *Connection) GetChannelID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.participant.ChannelID
}
