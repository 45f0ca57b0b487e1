package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/iklevente/crewdo-backend-sub001/internal/core/contracts"
	"github.com/iklevente/crewdo-backend-sub001/internal/core/domain"
	"github.com/iklevente/crewdo-backend-sub001/internal/core/services"
	"github.com/iklevente/crewdo-backend-sub001/pkg/logging"
)

// ChannelWorker consumes one channel's ingest stream. The registry
// starts one per active channel room and cancels it when the room
// empties.
type ChannelWorker struct {
	log      *slog.Logger
	queue    contracts.MessageQueue
	messages *services.MessageService
	group    string
}

func NewChannelWorker(
	log *slog.Logger,
	queue contracts.MessageQueue,
	messages *services.MessageService,
	group string,
) contracts.ChannelWorker {
	return &ChannelWorker{
		log:      log,
		queue:    queue,
		messages: messages,
		group:    group,
	}
}

func (w *ChannelWorker) Run(ctx context.Context, channelID string) error {
	if err := w.queue.SubscribeToStream(ctx, channelID, w.group, w.ProcessMessage); err != nil {
		w.log.ErrorContext(ctx, "worker - run - subscribe failed", logging.Channel(channelID), "group", w.group, logging.Err(err))
		return err
	}
	w.log.InfoContext(ctx, "worker - run - consuming channel stream", logging.Channel(channelID), "group", w.group)
	return nil
}

// ProcessMessage persists and broadcasts one stream entry, then
// acknowledges and deletes it. The delete is best-effort: the entry is
// already acknowledged when it runs.
func (w *ChannelWorker) ProcessMessage(ctx context.Context, entryID string, raw []byte) error {
	var ingest domain.MessageIngest
	if err := json.Unmarshal(raw, &ingest); err != nil {
		w.log.Error("worker - process message - malformed entry", "entry_id", entryID)
		return err
	}
	if err := w.messages.SaveAndBroadcast(ctx, &ingest); err != nil {
		w.log.ErrorContext(ctx, "worker - process message - save and broadcast failed", "entry_id", entryID, logging.Err(err))
		return err
	}
	if err := w.queue.AcknowledgeMessage(ctx, ingest.ChannelID, w.group, entryID); err != nil {
		w.log.ErrorContext(ctx, "worker - process message - acknowledge failed", "entry_id", entryID, logging.Err(err))
		return err
	}
	if err := w.queue.DeleteMessage(ctx, ingest.ChannelID, entryID); err != nil {
		w.log.WarnContext(ctx, "worker - process message - delete failed", "entry_id", entryID, logging.Err(err))
	}
	return nil
}
