package interfaces

import "classboard/pkg/types"

// Connection is one participant's transport endpoint as seen by routing code.
// ARCHITECTURAL DISCOVERY: Router and registry only see this interface, so the
// gorilla-backed connection and test fakes are interchangeable.
type Connection interface {
	// ID is unique per physical connection, including reconnects of the same user.
	ID() string

	// Send queues an already encoded frame without blocking the caller.
	// FUNCTIONAL DISCOVERY: Relayed drawing frames are forwarded as the exact
	// bytes received, so Send takes bytes rather than a value to re-encode.
	Send(frame []byte) error

	// WriteJSON encodes v and queues it.
	WriteJSON(v interface{}) error

	// Close closes the connection and cleans up resources.
	Close() error

	GetUserID() string
	GetUserName() string
	GetRole() types.Role
	GetChannelID() string

	// IsJoined is false until join-whiteboard succeeds.
	IsJoined() bool

	// SetIdentity binds the connection to a participant after a join.
	SetIdentity(p types.Participant) error

	// ClearIdentity returns the connection to the anonymous state after a leave.
	ClearIdentity()
}
