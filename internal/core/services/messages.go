package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iklevente/crewdo-backend-sub001/internal/app/registry"
	"github.com/iklevente/crewdo-backend-sub001/internal/core/contracts"
	"github.com/iklevente/crewdo-backend-sub001/internal/core/domain"
	"github.com/iklevente/crewdo-backend-sub001/pkg/logging"
)

var messageTracer = otel.Tracer("message-service")

// MessageService ingests channel messages onto the per-channel stream
// and, on the worker side, persists and broadcasts them. Real-time
// delivery takes priority over side notifications: notification
// failures are logged and swallowed.
type MessageService struct {
	log           *slog.Logger
	queue         contracts.MessageQueue
	registry      *registry.Registry
	dispatcher    *Dispatcher
	repo          domain.MessageRepository
	members       domain.MembershipRepository
	notifications domain.NotificationRepository
	tx            contracts.TxManager
}

func NewMessageService(
	log *slog.Logger,
	queue contracts.MessageQueue,
	reg *registry.Registry,
	dispatcher *Dispatcher,
	repo domain.MessageRepository,
	members domain.MembershipRepository,
	notifications domain.NotificationRepository,
	tx contracts.TxManager,
) *MessageService {
	return &MessageService{
		log:           log,
		queue:         queue,
		registry:      reg,
		dispatcher:    dispatcher,
		repo:          repo,
		members:       members,
		notifications: notifications,
		tx:            tx,
	}
}

// AcceptMessage validates and publishes the message to the channel's
// ingest stream. Persistence and fan-out happen on the worker side.
func (s *MessageService) AcceptMessage(ctx context.Context, c contracts.Client, channelID, body, clientMsgID string) error {
	ctx, span := messageTracer.Start(ctx, "MessageService.AcceptMessage", trace.WithAttributes(
		attribute.String("channel_id", channelID),
		attribute.String("sender_id", c.UserID()),
		attribute.Int("body_size", len(body)),
	))
	defer span.End()
	if channelID == "" || body == "" {
		return fmt.Errorf("%w: channel_id and body are required", domain.ErrValidation)
	}
	if !s.subscribed(c.UserID(), channelID) {
		span.SetStatus(codes.Error, "access denied")
		return fmt.Errorf("%w: not joined to channel %s", domain.ErrAccessDenied, channelID)
	}
	ingest := domain.MessageIngest{
		ChannelID:   channelID,
		SenderID:    c.UserID(),
		ClientMsgID: clientMsgID,
		Body:        body,
		CreatedAt:   time.Now(),
	}
	raw, err := json.Marshal(ingest)
	if err != nil {
		return err
	}
	if err := s.queue.PublishToStream(ctx, channelID, raw); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream publish failed")
		s.log.ErrorContext(ctx, "messages - accept message - publish to stream failed", logging.Channel(channelID), logging.Err(err))
		return err
	}
	s.log.InfoContext(ctx, "messages - accept message - published to stream", logging.Channel(channelID), "sender_id", c.UserID())
	return nil
}

// SaveAndBroadcast persists the message with its channel sequence in
// one transaction, broadcasts new_message to the room, and creates
// best-effort notification records for offline channel members.
func (s *MessageService) SaveAndBroadcast(ctx context.Context, ingest *domain.MessageIngest) error {
	ctx, span := messageTracer.Start(ctx, "MessageService.SaveAndBroadcast", trace.WithAttributes(
		attribute.String("channel_id", ingest.ChannelID),
		attribute.String("sender_id", ingest.SenderID),
	))
	defer span.End()

	msg := &domain.Message{
		ID:          uuid.New(),
		ChannelID:   ingest.ChannelID,
		SenderID:    ingest.SenderID,
		ClientMsgID: ingest.ClientMsgID,
		Body:        ingest.Body,
		CreatedAt:   ingest.CreatedAt,
	}
	var seq int64
	if err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		var txErr error
		seq, txErr = s.repo.SaveWithSequence(txCtx, msg)
		return txErr
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save with sequence failed")
		s.log.ErrorContext(ctx, "messages - save and broadcast - save with sequence failed", logging.Channel(ingest.ChannelID), logging.Err(err))
		return err
	}
	msg.Seq = seq

	ev := domain.MessageEvent{
		ID:          msg.ID.String(),
		ChannelID:   msg.ChannelID,
		SenderID:    msg.SenderID,
		ClientMsgID: msg.ClientMsgID,
		Seq:         msg.Seq,
		Body:        msg.Body,
		CreatedAt:   msg.CreatedAt,
	}
	s.dispatcher.ToRoom(ctx, registry.ChannelRoom(msg.ChannelID), domain.EventNewMessage, ev)
	s.notifyOffline(ctx, msg, ev)
	s.log.InfoContext(ctx, "messages - save and broadcast - delivered", logging.Channel(msg.ChannelID), logging.Sequence(seq))
	return nil
}

// notifyOffline creates notification records for members without a
// live connection. Delivery already happened; failures here only lose
// the side notification.
func (s *MessageService) notifyOffline(ctx context.Context, msg *domain.Message, ev domain.MessageEvent) {
	members, err := s.members.MembersOf(ctx, msg.ChannelID)
	if err != nil {
		s.log.WarnContext(ctx, "messages - notify offline - member list failed", logging.Channel(msg.ChannelID), logging.Err(err))
		return
	}
	payload, _ := json.Marshal(ev)
	for _, userID := range members {
		if userID == msg.SenderID || s.registry.IsOnline(userID) {
			continue
		}
		n := &domain.Notification{
			ID:        uuid.New(),
			UserID:    userID,
			Event:     domain.EventNewMessage,
			Payload:   payload,
			CreatedAt: time.Now(),
		}
		if err := s.notifications.Create(ctx, n); err != nil {
			s.log.WarnContext(ctx, "messages - notify offline - notification create failed", logging.User(userID), logging.Err(err))
			continue
		}
		s.dispatcher.ToUser(ctx, userID, domain.EventNotification, ev)
	}
}

// AddReaction persists the reaction and fans out reaction_updated to
// the room and, separately, to the message author so an offline author
// still receives it on reconnect.
func (s *MessageService) AddReaction(ctx context.Context, c contracts.Client, channelID, messageID, emoji string) error {
	ctx, span := messageTracer.Start(ctx, "MessageService.AddReaction", trace.WithAttributes(
		attribute.String("channel_id", channelID),
		attribute.String("message_id", messageID),
	))
	defer span.End()
	if emoji == "" {
		return fmt.Errorf("%w: missing emoji", domain.ErrValidation)
	}
	mid, err := uuid.Parse(messageID)
	if err != nil {
		return fmt.Errorf("%w: bad message_id", domain.ErrValidation)
	}
	if !s.subscribed(c.UserID(), channelID) {
		return fmt.Errorf("%w: not joined to channel %s", domain.ErrAccessDenied, channelID)
	}
	var summary *domain.ReactionSummary
	if err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		var txErr error
		summary, txErr = s.repo.AddReaction(txCtx, mid, c.UserID(), emoji)
		return txErr
	}); err != nil {
		span.RecordError(err)
		s.log.ErrorContext(ctx, "messages - add reaction - persist failed", "message_id", messageID, logging.Err(err))
		return err
	}
	ev := domain.ReactionEvent{
		MessageID: summary.MessageID.String(),
		ChannelID: summary.ChannelID,
		Emoji:     summary.Emoji,
		Count:     summary.Count,
		UserIDs:   summary.UserIDs,
	}
	s.dispatcher.ToRoomExcept(ctx, registry.ChannelRoom(summary.ChannelID), summary.AuthorID, domain.EventReactionUpdated, ev)
	if summary.AuthorID != "" {
		s.dispatcher.ToUser(ctx, summary.AuthorID, domain.EventReactionUpdated, ev)
	}
	return nil
}

// MarkRead advances the caller's read cursor, tells the room, and
// echoes the confirmation to all of the caller's devices.
func (s *MessageService) MarkRead(ctx context.Context, c contracts.Client, channelID string, lastSeq int64) error {
	ctx, span := messageTracer.Start(ctx, "MessageService.MarkRead", trace.WithAttributes(
		attribute.String("channel_id", channelID),
		attribute.Int64("last_seq", lastSeq),
	))
	defer span.End()
	if channelID == "" || lastSeq < 0 {
		return fmt.Errorf("%w: channel_id and non-negative last_seq required", domain.ErrValidation)
	}
	if err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		return s.repo.MarkRead(txCtx, channelID, c.UserID(), lastSeq)
	}); err != nil {
		span.RecordError(err)
		s.log.ErrorContext(ctx, "messages - mark read - persist failed", logging.Channel(channelID), logging.User(c.UserID()), logging.Err(err))
		return err
	}
	ev := domain.ReadEvent{ChannelID: channelID, UserID: c.UserID(), LastSeq: lastSeq}
	s.dispatcher.ToRoomExcept(ctx, registry.ChannelRoom(channelID), c.UserID(), domain.EventMessagesRead, ev)
	s.dispatcher.ToUser(ctx, c.UserID(), domain.EventMessagesMarked, ev)
	return nil
}

func (s *MessageService) subscribed(userID, channelID string) bool {
	for _, id := range s.registry.SubscribedChannels(userID) {
		if id == channelID {
			return true
		}
	}
	return false
}
