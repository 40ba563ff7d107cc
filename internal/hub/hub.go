package hub

import (
	"context"
	"log"
	"sync"
	"time"

	"classboard/internal/metrics"
	"classboard/pkg/interfaces"
)

// Processor handles inbound traffic one item at a time.
type Processor interface {
	HandleFrame(ctx context.Context, conn interfaces.Connection, frame []byte)
	HandleDisconnect(ctx context.Context, conn interfaces.Connection)
}

// inbound is a frame or a disconnect notice, kept in arrival order.
type inbound struct {
	conn       interfaces.Connection
	frame      []byte
	disconnect bool
	received   time.Time
}

// Hub serialises all inbound processing on one goroutine.
// ARCHITECTURAL DISCOVERY: Frames and disconnects share one queue, so a sender's
// frames are always processed before its implicit leave, and fan-out happens in
// hub arrival order.
type Hub struct {
	inboundChannel  chan inbound
	shutdownChannel chan struct{}
	done            chan struct{}
	processor       Processor

	running bool
	mu      sync.RWMutex
}

// NewHub creates a hub with a bounded inbound queue.
func NewHub(processor Processor, bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &Hub{
		inboundChannel:  make(chan inbound, bufferSize),
		shutdownChannel: make(chan struct{}),
		done:            make(chan struct{}),
		processor:       processor,
	}
}

// Start begins processing.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return ErrHubAlreadyRunning
	}
	h.running = true

	log.Println("Starting message hub...")
	go h.run(ctx)
	return nil
}

// Stop ends processing and waits for the loop to exit. Queued items are dropped.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdownChannel)
	h.mu.Unlock()

	log.Println("Stopping message hub...")
	<-h.done
	return nil
}

func (h *Hub) isRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Submit queues a frame without blocking the read pump.
func (h *Hub) Submit(conn interfaces.Connection, frame []byte) error {
	if !h.isRunning() {
		return ErrHubNotRunning
	}
	select {
	case h.inboundChannel <- inbound{conn: conn, frame: frame, received: time.Now()}:
		metrics.HubQueueDepth.Set(float64(len(h.inboundChannel)))
		return nil
	default:
		metrics.FramesDropped.WithLabelValues("hub_full").Inc()
		return ErrMessageChannelFull
	}
}

// Disconnect queues the implicit leave of conn. Unlike frames it is never
// dropped while the hub runs, so presence counts stay correct under load.
func (h *Hub) Disconnect(conn interfaces.Connection) {
	if !h.isRunning() {
		return
	}
	select {
	case h.inboundChannel <- inbound{conn: conn, disconnect: true, received: time.Now()}:
	case <-h.shutdownChannel:
	}
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	defer log.Println("Hub processing stopped")

	for {
		select {
		case item := <-h.inboundChannel:
			h.dispatch(ctx, item)

		case <-h.shutdownChannel:
			log.Println("Hub shutdown requested")
			return

		case <-ctx.Done():
			log.Println("Hub context cancelled")
			h.mu.Lock()
			if h.running {
				h.running = false
				close(h.shutdownChannel)
			}
			h.mu.Unlock()
			return
		}
	}
}

// dispatch hands one item to the processor; a panic in processing is logged
// and the loop continues.
func (h *Hub) dispatch(ctx context.Context, item inbound) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Hub recovered from panic processing %s: %v", item.conn.ID(), r)
		}
	}()

	if item.disconnect {
		h.processor.HandleDisconnect(ctx, item.conn)
		return
	}
	if wait := time.Since(item.received); wait > time.Second {
		log.Printf("Hub backlog: frame from %s waited %v", item.conn.ID(), wait)
	}
	h.processor.HandleFrame(ctx, item.conn, item.frame)
}
