package contracts

import "context"

// MessageQueue is the per-channel ingest stream between the WebSocket
// edge and the persistence worker.
type MessageQueue interface {
	PublishToStream(ctx context.Context, channelID string, payload []byte) error
	// SubscribeToStream starts a consumer-group read loop for the
	// channel's stream, invoking handler for every entry.
	SubscribeToStream(ctx context.Context, channelID, group string, handler func(ctx context.Context, entryID string, data []byte) error) error
	AcknowledgeMessage(ctx context.Context, channelID, group, entryID string) error
	DeleteMessage(ctx context.Context, channelID, entryID string) error
	DeleteStream(ctx context.Context, channelID string) error
}

// ChannelWorker consumes a channel's ingest stream, persisting and
// broadcasting each message.
type ChannelWorker interface {
	Run(ctx context.Context, channelID string) error
	ProcessMessage(ctx context.Context, entryID string, data []byte) error
}
