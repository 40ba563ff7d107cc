package auth

import "errors"

var (
	ErrMissingToken    = errors.New("token required in strict mode")
	ErrInvalidToken    = errors.New("invalid token")
	ErrChannelMismatch = errors.New("token is not valid for this channel")
	ErrUserMismatch    = errors.New("token subject does not match userId")
	ErrWeakSecret      = errors.New("signing secret must be at least 16 bytes")
)
