package contracts

import (
	"context"
	"time"
)

// ChannelRoster tracks which users are currently present in a channel,
// backed by TTL-scored Redis ZSETs so snapshot reads survive an
// instance restart without scanning Postgres.
type ChannelRoster interface {
	MarkPresent(ctx context.Context, channelID, userID string, ttl time.Duration) error
	MarkAbsent(ctx context.Context, channelID, userID string) error
	// PresentUsers returns users who checked in within the store's
	// freshness window.
	PresentUsers(ctx context.Context, channelID string) ([]string, error)
	Clear(ctx context.Context, channelID string) error
}
