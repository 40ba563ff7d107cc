package websocket

import (
	"log"
	"sort"
	"sync"

	"classboard/internal/metrics"
	"classboard/pkg/interfaces"
)

// Registry tracks open connections and which of them are joined to each channel.
// ARCHITECTURAL DISCOVERY: Pure connection bookkeeping; membership state lives in
// the session directory.
type Registry struct {
	mu       sync.RWMutex
	open     map[string]interfaces.Connection            // connID -> conn, joined or not
	channels map[string]map[string]interfaces.Connection // channelID -> userID -> conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		open:     make(map[string]interfaces.Connection),
		channels: make(map[string]map[string]interfaces.Connection),
	}
}

// Track records a freshly upgraded, still anonymous connection.
func (r *Registry) Track(conn interfaces.Connection) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.open[conn.ID()]; !exists {
		r.open[conn.ID()] = conn
		metrics.ConnectionsActive.Inc()
	}
}

// Untrack forgets a closed connection. It does not touch channel membership.
func (r *Registry) Untrack(conn interfaces.Connection) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.open[conn.ID()]; exists {
		delete(r.open, conn.ID())
		metrics.ConnectionsActive.Dec()
	}
}

// Register adds a joined connection to its channel. If the same user already
// has a connection in that channel, it is replaced and returned; the caller
// decides what to tell the old one before it is closed.
func (r *Registry) Register(conn interfaces.Connection) (replaced interfaces.Connection, err error) {
	if conn == nil {
		return nil, ErrNilConnection
	}
	if !conn.IsJoined() {
		return nil, ErrConnectionNotJoined
	}

	channelID := conn.GetChannelID()
	userID := conn.GetUserID()

	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.channels[channelID]
	if members == nil {
		members = make(map[string]interfaces.Connection)
		r.channels[channelID] = members
	}
	if existing, ok := members[userID]; ok && existing.ID() != conn.ID() {
		replaced = existing
		// FUNCTIONAL DISCOVERY: Close the old connection asynchronously to prevent
		// deadlock while holding the registry lock
		go func() {
			if err := existing.Close(); err != nil {
				log.Printf("Failed to close replaced connection %s: %v", existing.ID(), err)
			}
		}()
	}
	members[userID] = conn
	return replaced, nil
}

// Unregister removes conn from its channel only if it is still the registered
// instance for its user; a stale connection never evicts its replacement.
// It reports whether a removal happened.
func (r *Registry) Unregister(conn interfaces.Connection) bool {
	if conn == nil {
		return false
	}
	channelID := conn.GetChannelID()
	userID := conn.GetUserID()

	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.channels[channelID]
	if !ok {
		return false
	}
	current, ok := members[userID]
	if !ok || current.ID() != conn.ID() {
		return false
	}
	delete(members, userID)
	if len(members) == 0 {
		delete(r.channels, channelID)
	}
	return true
}

// Lookup returns the connection registered for userID in channelID.
func (r *Registry) Lookup(channelID, userID string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.channels[channelID][userID]
	return conn, ok
}

// ChannelConnections returns every joined connection of channelID, ordered by user.
func (r *Registry) ChannelConnections(channelID string) []interfaces.Connection {
	return r.ChannelPeers(channelID, "")
}

// ChannelPeers returns the joined connections of channelID except exceptConnID.
func (r *Registry) ChannelPeers(channelID, exceptConnID string) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.channels[channelID]
	userIDs := make([]string, 0, len(members))
	for userID, conn := range members {
		if conn.ID() != exceptConnID {
			userIDs = append(userIDs, userID)
		}
	}
	sort.Strings(userIDs)

	out := make([]interfaces.Connection, 0, len(userIDs))
	for _, userID := range userIDs {
		out = append(out, members[userID])
	}
	return out
}

// CloseAll closes every tracked connection; used at shutdown.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	conns := make([]interfaces.Connection, 0, len(r.open))
	for _, c := range r.open {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

// GetStats returns registry statistics for monitoring.
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	joined := 0
	for _, members := range r.channels {
		joined += len(members)
	}
	return map[string]int{
		"open_connections":   len(r.open),
		"joined_connections": joined,
		"active_channels":    len(r.channels),
	}
}
