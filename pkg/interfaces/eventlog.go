package interfaces

import (
	"context"

	"classboard/pkg/types"
)

// EventLog persists presence and control events per channel.
// FUNCTIONAL DISCOVERY: Only metadata is recorded; strokes and document blobs
// never reach the store.
type EventLog interface {
	RecordEvent(ctx context.Context, event *types.ChannelEvent) error

	// ChannelHistory returns the newest limit events of a channel, oldest first.
	ChannelHistory(ctx context.Context, channelID string, limit int) ([]*types.ChannelEvent, error)

	HealthCheck(ctx context.Context) error
	Close() error
}
