package session

import (
	"errors"

	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

var (
	// ErrChannelNotFound is returned for mutations on a channel nobody has joined.
	ErrChannelNotFound = interfaces.ErrChannelNotFound
	// ErrNoDocument is returned when toggling visibility with nothing shared.
	ErrNoDocument = types.ErrNoDocument
	// ErrEmptyDocument rejects a share without content.
	ErrEmptyDocument = errors.New("document blob is empty")
)
