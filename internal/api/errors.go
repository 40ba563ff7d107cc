package api

import "errors"

var (
	ErrAuditDisabled  = errors.New("audit log is disabled")
	ErrInvalidLimit   = errors.New("limit must be a positive integer")
	ErrUnknownChannel = errors.New("channel has no participants")
)
