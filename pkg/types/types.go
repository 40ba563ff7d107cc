package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// ARCHITECTURAL DISCOVERY: Event names are the wire contract shared by the relay
// and every client; one name per concern.
const (
	// client -> relay
	EventJoinWhiteboard      = "join-whiteboard"
	EventLeaveWhiteboard     = "leave-whiteboard"
	EventDrawing             = "drawing"
	EventClearCanvas         = "clear-canvas"
	EventToggleLock          = "toggle-lock"
	EventSharePDF            = "share-pdf"
	EventTogglePDFVisibility = "toggle-pdf-visibility"
	EventRemovePDF           = "remove-pdf"

	// relay -> clients
	EventUserCount            = "user-count"
	EventLockStatus           = "lock-status"
	EventPDFShared            = "pdf-shared"
	EventPDFRemoved           = "pdf-removed"
	EventPDFVisibilityChanged = "pdf-visibility-changed"
	EventSessionSnapshot      = "session-snapshot"
	EventError                = "error"
)

// Role is the participant role asserted at join time.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Valid reports whether r is one of the two known roles.
func (r Role) Valid() bool {
	return r == RoleTeacher || r == RoleStudent
}

// Envelope is a single frame on the message channel.
// FUNCTIONAL DISCOVERY: Data stays raw so the relay can forward drawing frames
// without interpreting tool or coordinate fields.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into a new envelope for event.
func NewEnvelope(event string, data interface{}) (*Envelope, error) {
	env := &Envelope{Event: event}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", event, err)
	}
	env.Data = raw
	return env, nil
}

// EncodeEnvelope returns the JSON frame for event and data.
func EncodeEnvelope(event string, data interface{}) ([]byte, error) {
	env, err := NewEnvelope(event, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// DecodeEnvelope parses a raw text frame.
func DecodeEnvelope(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: missing event name", ErrInvalidEvent)
	}
	return &env, nil
}

// Decode unmarshals the envelope payload into v.
func (e *Envelope) Decode(v interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: %s has no payload", ErrInvalidEvent, e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidEvent, e.Event, err)
	}
	return nil
}

// Participant is one member of a channel.
type Participant struct {
	ChannelID string    `json:"channelId"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Role      Role      `json:"role"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// DocumentState is the single shared document of a channel.
// FUNCTIONAL DISCOVERY: Blob is treated as immutable once shared; a new upload
// replaces the whole value instead of patching it.
type DocumentState struct {
	Blob              []byte    `json:"-"`
	FileName          string    `json:"fileName"`
	SharedBy          string    `json:"sharedBy"`
	VisibleToStudents bool      `json:"visibleToStudents"`
	SharedAt          time.Time `json:"sharedAt"`
}

// Size returns the blob size in bytes.
func (d *DocumentState) Size() int {
	if d == nil {
		return 0
	}
	return len(d.Blob)
}

// SessionSnapshot is the shared state a joining client initialises from.
// It never contains canvas content.
type SessionSnapshot struct {
	ChannelID        string         `json:"channelId"`
	Locked           bool           `json:"locked"`
	ParticipantCount int            `json:"participantCount"`
	Document         *DocumentState `json:"document,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
}

// Audit event kinds recorded per channel.
const (
	KindJoin               = "join"
	KindLeave              = "leave"
	KindLock               = "lock"
	KindUnlock             = "unlock"
	KindDocumentShared     = "document_shared"
	KindDocumentVisibility = "document_visibility"
	KindDocumentRemoved    = "document_removed"
	KindPermissionDenied   = "permission_denied"
)

// ChannelEvent is one audit row: presence or control, never content.
type ChannelEvent struct {
	ID        int64                  `json:"id"`
	ChannelID string                 `json:"channelId"`
	Kind      string                 `json:"kind"`
	UserID    string                 `json:"userId,omitempty"`
	Role      Role                   `json:"role,omitempty"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}
