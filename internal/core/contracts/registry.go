package contracts

import (
	"context"

	"github.com/google/uuid"
)

// Client is the minimal interface the registry needs to talk to one
// WebSocket connection.
type Client interface {
	ID() uuid.UUID
	UserID() string
	Send(ctx context.Context, data []byte) error
	Close()
}

// Registry tracks which connections belong to which user and which
// rooms each connection has subscribed to. All state is in-memory and
// rebuilt from nothing on process restart.
type Registry interface {
	// Admit adds the connection and reports whether it is the user's
	// first live connection. The caller must have authenticated the
	// connection before admission.
	Admit(c Client) (wasFirst bool)
	// Remove drops the connection from the user set and from every room
	// it joined, and reports whether it was the user's last connection.
	Remove(c Client) (wasLast bool)
	IsOnline(userID string) bool
	ConnectionsFor(userID string) []Client
	// ConnectionsOrEnqueue returns the user's live connections, or runs
	// enqueue under the registry lock when there are none, so the
	// offline check and the queueing of a missed event are atomic with
	// respect to Admit.
	ConnectionsOrEnqueue(userID string, enqueue func()) []Client

	// Room membership: an explicit roomID -> connection-set mapping
	// independent of the transport.
	JoinRoom(roomID string, c Client)
	LeaveRoom(roomID string, connID uuid.UUID)
	RoomClients(roomID string) []Client

	// Channel subscription cache, keyed by user.
	SubscribeChannel(userID, channelID string)
	UnsubscribeChannel(userID, channelID string)
	SubscribedChannels(userID string) []string
}
