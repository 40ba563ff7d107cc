package websocket

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"classboard/pkg/interfaces"
)

// Dispatcher receives inbound frames and disconnects in arrival order.
type Dispatcher interface {
	Submit(conn interfaces.Connection, frame []byte) error
	Disconnect(conn interfaces.Connection)
}

// Handler upgrades HTTP requests and runs each connection's read pump.
// ARCHITECTURAL DISCOVERY: The handler knows nothing about whiteboard events; it
// only moves frames between sockets and the dispatcher.
type Handler struct {
	registry   *Registry
	dispatcher Dispatcher
	opts       Options
	upgrader   websocket.Upgrader
}

// NewHandler creates a handler. An empty allowedOrigins list or "*" accepts any origin.
func NewHandler(registry *Registry, dispatcher Dispatcher, opts Options, allowedOrigins []string) *Handler {
	return &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		opts:       opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// HandleWebSocket upgrades the request. Identity arrives later with join-whiteboard.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, h.opts)
	h.registry.Track(wsConn)
	log.Printf("Connection opened: id=%s remote=%s", wsConn.ID(), r.RemoteAddr)

	go h.readPump(wsConn)
}

// readPump reads frames until the socket fails, then reports the disconnect
// so the router can perform the implicit leave.
func (h *Handler) readPump(conn *Connection) {
	defer func() {
		h.registry.Untrack(conn)
		h.dispatcher.Disconnect(conn)
		_ = conn.Close()
		log.Printf("Connection closed: id=%s user=%s channel=%s", conn.ID(), conn.GetUserID(), conn.GetChannelID())
	}()

	ws := conn.conn
	ws.SetReadLimit(h.opts.MaxMessageBytes)
	if err := ws.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error on %s: %v", conn.ID(), err)
			}
			return
		}
		// TECHNICAL DISCOVERY: Any inbound frame proves liveness, not just pongs
		_ = ws.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))

		if messageType != websocket.TextMessage {
			continue
		}
		if err := h.dispatcher.Submit(conn, data); err != nil {
			log.Printf("Dropping frame from %s: %v", conn.ID(), err)
		}
	}
}
