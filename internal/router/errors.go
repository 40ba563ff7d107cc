package router

import (
	"errors"
	"fmt"

	"classboard/pkg/types"
)

var (
	// ErrBoardLocked is a permission failure caused by the lock, not the role.
	ErrBoardLocked = fmt.Errorf("%w: whiteboard is locked", types.ErrPermissionDenied)
	// ErrUnknownEvent is returned for event names the relay does not accept.
	ErrUnknownEvent = fmt.Errorf("%w: unknown event", types.ErrInvalidEvent)
	// ErrVerifierRequired is returned when strict mode is configured without a verifier.
	ErrVerifierRequired = errors.New("strict mode requires a token verifier")
)
