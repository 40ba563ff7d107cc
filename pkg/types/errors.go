package types

import "errors"

// ARCHITECTURAL DISCOVERY: Error taxonomy shared by relay and client so a rejected
// intent maps to the same code on both sides of the channel.
var (
	ErrInvalidJoin             = errors.New("invalid join: channelId, userId and role are required")
	ErrPermissionDenied        = errors.New("permission denied")
	ErrUnsupportedDocumentType = errors.New("unsupported document type: only PDF documents can be shared")
	ErrChannelUnreachable      = errors.New("channel unreachable")
	ErrInvalidEvent            = errors.New("invalid event")
	ErrInvalidDrawing          = errors.New("invalid drawing event")
	ErrDocumentTooLarge        = errors.New("document exceeds size limit")
	ErrNotJoined               = errors.New("connection has not joined a whiteboard")
	ErrNoDocument              = errors.New("no document shared in this channel")
	ErrRateLimited             = errors.New("rate limit exceeded")
)

// Wire codes for ErrorPayload.Code.
const (
	CodeInvalidJoin             = "InvalidJoinError"
	CodePermissionDenied        = "PermissionDenied"
	CodeUnsupportedDocumentType = "UnsupportedDocumentType"
	CodeChannelUnreachable      = "ChannelUnreachable"
	CodeInvalidEvent            = "InvalidEvent"
	CodeDocumentTooLarge        = "DocumentTooLarge"
	CodeNotJoined               = "NotJoined"
	CodeNoDocument              = "NoDocument"
	CodeRateLimited             = "RateLimited"
	CodeInternal                = "InternalError"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidJoin, CodeInvalidJoin},
	{ErrPermissionDenied, CodePermissionDenied},
	{ErrUnsupportedDocumentType, CodeUnsupportedDocumentType},
	{ErrChannelUnreachable, CodeChannelUnreachable},
	{ErrInvalidEvent, CodeInvalidEvent},
	{ErrInvalidDrawing, CodeInvalidEvent},
	{ErrDocumentTooLarge, CodeDocumentTooLarge},
	{ErrNotJoined, CodeNotJoined},
	{ErrNoDocument, CodeNoDocument},
	{ErrRateLimited, CodeRateLimited},
}

// ErrorCode returns the wire code for err.
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeInternal
}

// ErrorFromCode maps a wire code back to its sentinel, or nil if unknown.
func ErrorFromCode(code string) error {
	for _, ec := range errorCodes {
		if ec.code == code {
			return ec.err
		}
	}
	return nil
}
