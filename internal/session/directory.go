package session

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

// State is the mutable shared tuple of a channel.
// FUNCTIONAL DISCOVERY: Mutations replace the whole value; a Mutate callback
// works on a copy that is only committed if it returns nil.
type State struct {
	Locked   bool
	Document *types.DocumentState
}

type channel struct {
	id           string
	state        State
	participants map[string]types.Participant // userID -> participant
	createdAt    time.Time
}

func (c *channel) snapshot() *types.SessionSnapshot {
	s := &types.SessionSnapshot{
		ChannelID:        c.id,
		Locked:           c.state.Locked,
		ParticipantCount: len(c.participants),
		CreatedAt:        c.createdAt,
	}
	if c.state.Document != nil {
		doc := *c.state.Document
		s.Document = &doc
	}
	return s
}

// Directory is the in-memory session store keyed by channel.
// ARCHITECTURAL DISCOVERY: One mutex guards every channel; classroom-scale
// traffic never makes it the bottleneck and it gives a single serialisation point.
type Directory struct {
	channels map[string]*channel
	mu       sync.RWMutex
	now      func() time.Time
}

var _ interfaces.SessionDirectory = (*Directory)(nil)

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		channels: make(map[string]*channel),
		now:      time.Now,
	}
}

// Join adds p to channelID and returns the state the joiner initialises from.
// A second join by the same userId replaces the earlier participant record.
func (d *Directory) Join(channelID string, p types.Participant) (*types.SessionSnapshot, error) {
	if channelID == "" || p.UserID == "" {
		return nil, types.ErrInvalidJoin
	}
	if !p.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", types.ErrInvalidJoin, p.Role)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ch, exists := d.channels[channelID]
	if !exists {
		// FUNCTIONAL DISCOVERY: New channels start locked so students cannot draw
		// before a teacher opens the board.
		ch = &channel{
			id:           channelID,
			state:        State{Locked: true},
			participants: make(map[string]types.Participant),
			createdAt:    d.now(),
		}
		d.channels[channelID] = ch
		log.Printf("Channel created: %s", channelID)
	}

	p.ChannelID = channelID
	if p.JoinedAt.IsZero() {
		p.JoinedAt = d.now()
	}
	ch.participants[p.UserID] = p

	return ch.snapshot(), nil
}

// Leave removes userID from channelID. The channel is garbage collected when
// its last participant leaves.
func (d *Directory) Leave(channelID, userID string) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ch, exists := d.channels[channelID]
	if !exists {
		return 0, false
	}
	delete(ch.participants, userID)

	count := len(ch.participants)
	if count == 0 {
		delete(d.channels, channelID)
		log.Printf("Channel removed: %s (no participants)", channelID)
		return 0, true
	}
	return count, false
}

// Get returns a copy of the channel state.
func (d *Directory) Get(channelID string) (*types.SessionSnapshot, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ch, exists := d.channels[channelID]
	if !exists {
		return nil, false
	}
	return ch.snapshot(), true
}

// Participants returns the members of channelID ordered by join time.
func (d *Directory) Participants(channelID string) []types.Participant {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ch, exists := d.channels[channelID]
	if !exists {
		return nil
	}
	out := make([]types.Participant, 0, len(ch.participants))
	for _, p := range ch.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// Mutate applies fn to a copy of the channel state and commits it if fn
// returns nil.
func (d *Directory) Mutate(channelID string, fn func(*State) error) (*types.SessionSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ch, exists := d.channels[channelID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
	}

	next := ch.state
	if next.Document != nil {
		doc := *next.Document
		next.Document = &doc
	}
	if err := fn(&next); err != nil {
		return nil, err
	}
	ch.state = next
	return ch.snapshot(), nil
}

// SetLocked sets the lock flag.
func (d *Directory) SetLocked(channelID string, locked bool) (*types.SessionSnapshot, error) {
	return d.Mutate(channelID, func(s *State) error {
		s.Locked = locked
		return nil
	})
}

// ShareDocument replaces the channel document. New documents always start
// hidden from students regardless of doc.VisibleToStudents.
func (d *Directory) ShareDocument(channelID string, doc types.DocumentState) (*types.SessionSnapshot, error) {
	if len(doc.Blob) == 0 {
		return nil, ErrEmptyDocument
	}
	doc.VisibleToStudents = false
	if doc.SharedAt.IsZero() {
		doc.SharedAt = d.now()
	}
	return d.Mutate(channelID, func(s *State) error {
		s.Document = &doc
		return nil
	})
}

// SetDocumentVisibility sets the student visibility gate of the current document.
func (d *Directory) SetDocumentVisibility(channelID string, visible bool) (*types.SessionSnapshot, error) {
	return d.Mutate(channelID, func(s *State) error {
		if s.Document == nil {
			return ErrNoDocument
		}
		s.Document.VisibleToStudents = visible
		return nil
	})
}

// RemoveDocument clears the channel document. Removing when nothing is shared
// is not an error.
func (d *Directory) RemoveDocument(channelID string) (*types.SessionSnapshot, error) {
	return d.Mutate(channelID, func(s *State) error {
		s.Document = nil
		return nil
	})
}

// List returns snapshots of every live channel ordered by id.
func (d *Directory) List() []*types.SessionSnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*types.SessionSnapshot, 0, len(d.channels))
	for _, ch := range d.channels {
		out = append(out, ch.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out
}

// Stats summarises directory contents.
type Stats struct {
	Channels     int `json:"channels"`
	Participants int `json:"participants"`
	Documents    int `json:"documents"`
}

// Stats returns current totals across all channels.
func (d *Directory) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var s Stats
	s.Channels = len(d.channels)
	for _, ch := range d.channels {
		s.Participants += len(ch.participants)
		if ch.state.Document != nil {
			s.Documents++
		}
	}
	return s
}
