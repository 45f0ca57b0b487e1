package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is a user's externally-visible presence state.
type Status string

const (
	StatusOnline    Status = "online"
	StatusAway      Status = "away"
	StatusBusy      Status = "busy"
	StatusOffline   Status = "offline"
	StatusInvisible Status = "invisible"
)

// ValidStatus reports whether s is one of the five presence states.
func ValidStatus(s Status) bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy, StatusOffline, StatusInvisible:
		return true
	}
	return false
}

// StatusSource records what drives the current status: connection
// lifecycle (automatic) or an explicit user choice (manual).
type StatusSource string

const (
	SourceAutomatic StatusSource = "automatic"
	SourceManual    StatusSource = "manual"
)

// Claims is the identity extracted from a verified bearer token.
type Claims struct {
	UserID string
	Role   string
}

// Connection is the ephemeral record for one live transport session.
// It is owned by the connection registry and destroyed on close.
type Connection struct {
	ID       uuid.UUID
	UserID   string
	Claims   Claims
	JoinedAt time.Time
}

// PresenceRecord is the persisted per-user presence state. Exactly one
// record per user, created lazily on the first transition.
type PresenceRecord struct {
	UserID       string
	Status       Status
	Source       StatusSource
	ManualStatus *Status
	LastSeenAt   time.Time
	UpdatedAt    time.Time
}

// Observable returns the status other users see. Invisible users are
// presented as offline.
func (r *PresenceRecord) Observable() Status {
	if r.Status == StatusInvisible {
		return StatusOffline
	}
	return r.Status
}

// PendingEvent is one queued delivery for a user with no live connection.
type PendingEvent struct {
	Event      string
	Payload    any
	EnqueuedAt time.Time
}

// CallKind distinguishes audio from video calls. The relay does not
// interpret it beyond echoing it to participants.
type CallKind string

const (
	CallAudio CallKind = "audio"
	CallVideo CallKind = "video"
)

// Message is a persisted channel message with its ordering sequence.
type Message struct {
	ID          uuid.UUID
	ChannelID   string
	SenderID    string
	ClientMsgID string
	Seq         int64
	Body        string
	CreatedAt   time.Time
}

// ReactionSummary is the state of one emoji on one message after a
// reaction write, including the message author for targeted delivery.
type ReactionSummary struct {
	MessageID uuid.UUID
	ChannelID string
	AuthorID  string
	Emoji     string
	Count     int
	UserIDs   []string
}

// Notification is a durable best-effort side record created for users
// who were offline when an event was produced.
type Notification struct {
	ID        uuid.UUID
	UserID    string
	Event     string
	Payload   []byte
	CreatedAt time.Time
}
