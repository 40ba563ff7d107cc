package interfaces

import "errors"

// Errors shared by implementations of the interfaces in this package.
var (
	ErrChannelNotFound = errors.New("channel not found")
	ErrLogClosed       = errors.New("event log is closed")
)
