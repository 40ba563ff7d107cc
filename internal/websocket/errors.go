package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSlowConsumer     = errors.New("write buffer full: slow consumer disconnected")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

// Registry-related errors
var (
	ErrNilConnection       = errors.New("connection cannot be nil")
	ErrConnectionNotJoined = errors.New("connection must join a whiteboard before registration")
)
