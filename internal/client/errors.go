package client

import (
	"errors"

	"classboard/pkg/types"
)

var (
	// ErrLocked is returned when a student starts a stroke on a locked board.
	ErrLocked = errors.New("whiteboard is locked")

	ErrPermissionDenied        = types.ErrPermissionDenied
	ErrUnsupportedDocumentType = types.ErrUnsupportedDocumentType
	ErrChannelUnreachable      = types.ErrChannelUnreachable
	ErrDocumentTooLarge        = types.ErrDocumentTooLarge

	ErrSendQueueFull  = errors.New("send queue full")
	ErrClosed         = errors.New("client closed")
	ErrAlreadyStarted = errors.New("client already started")
	ErrInvalidConfig  = errors.New("invalid client config")
)
