package domain

import (
	"context"

	"github.com/google/uuid"
)

// MembershipRepository is the persisted channel-membership collaborator.
// It is the source of truth; the registry's subscription map is only a
// per-connection cache of it.
type MembershipRepository interface {
	IsMember(ctx context.Context, channelID, userID string) (bool, error)
	// ChannelsFor lists every channel the user belongs to, used for the
	// bulk catch-up join on first connection.
	ChannelsFor(ctx context.Context, userID string) ([]string, error)
	MembersOf(ctx context.Context, channelID string) ([]string, error)
}

// PresenceRepository stores exactly one PresenceRecord per user.
type PresenceRepository interface {
	// Get returns ErrPresenceNotFound when no record exists yet.
	Get(ctx context.Context, userID string) (*PresenceRecord, error)
	Upsert(ctx context.Context, rec *PresenceRecord) error
}

// MessageRepository persists channel messages with per-channel ordering.
type MessageRepository interface {
	// SaveWithSequence increments the channel sequence and inserts the
	// message in a single transaction, returning the assigned sequence.
	SaveWithSequence(ctx context.Context, msg *Message) (int64, error)
	AddReaction(ctx context.Context, messageID uuid.UUID, userID, emoji string) (*ReactionSummary, error)
	// MarkRead advances the user's read cursor for a channel.
	MarkRead(ctx context.Context, channelID, userID string, lastSeq int64) error
}

// NotificationRepository creates durable side records for offline
// recipients. Failures here never block event delivery.
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
}
