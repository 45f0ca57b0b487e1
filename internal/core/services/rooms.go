package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iklevente/crewdo-backend-sub001/internal/app/registry"
	"github.com/iklevente/crewdo-backend-sub001/internal/core/contracts"
	"github.com/iklevente/crewdo-backend-sub001/internal/core/domain"
	"github.com/iklevente/crewdo-backend-sub001/pkg/logging"
)

var roomTracer = otel.Tracer("room-service")

// RoomService subscribes connections to channel broadcast rooms. The
// persisted membership repository stays the source of truth; the
// registry's room map is a per-connection cache rebuilt on connect.
type RoomService struct {
	log        *slog.Logger
	registry   *registry.Registry
	dispatcher *Dispatcher
	members    domain.MembershipRepository
	roster     contracts.ChannelRoster
	rosterTTL  time.Duration
}

func NewRoomService(
	log *slog.Logger,
	reg *registry.Registry,
	dispatcher *Dispatcher,
	members domain.MembershipRepository,
	roster contracts.ChannelRoster,
	rosterTTL time.Duration,
) *RoomService {
	return &RoomService{
		log:        log,
		registry:   reg,
		dispatcher: dispatcher,
		members:    members,
		roster:     roster,
		rosterTTL:  rosterTTL,
	}
}

// JoinChannel validates logical membership, subscribes the connection
// to the channel room, and announces the join to the room's other
// members.
func (s *RoomService) JoinChannel(ctx context.Context, c contracts.Client, channelID string) error {
	ctx, span := roomTracer.Start(ctx, "RoomService.JoinChannel", trace.WithAttributes(
		attribute.String("user_id", c.UserID()),
		attribute.String("channel_id", channelID),
	))
	defer span.End()
	if channelID == "" {
		return fmt.Errorf("%w: missing channel_id", domain.ErrValidation)
	}
	ok, err := s.members.IsMember(ctx, channelID, c.UserID())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "membership lookup failed")
		s.log.ErrorContext(ctx, "rooms - join channel - membership lookup failed", logging.Channel(channelID), logging.User(c.UserID()), logging.Err(err))
		return fmt.Errorf("membership lookup: %w", err)
	}
	if !ok {
		span.SetStatus(codes.Error, "access denied")
		return fmt.Errorf("%w: not a member of channel %s", domain.ErrAccessDenied, channelID)
	}

	s.registry.JoinRoom(registry.ChannelRoom(channelID), c)
	s.registry.SubscribeChannel(c.UserID(), channelID)
	if err := s.roster.MarkPresent(ctx, channelID, c.UserID(), s.rosterTTL); err != nil {
		s.log.WarnContext(ctx, "rooms - join channel - roster update failed", logging.Channel(channelID), logging.User(c.UserID()), logging.Err(err))
	}
	s.dispatcher.ToRoomExcept(ctx, registry.ChannelRoom(channelID), c.UserID(), domain.EventUserJoinedChannel, domain.RoomMemberEvent{
		ChannelID: channelID,
		UserID:    c.UserID(),
	})
	s.log.InfoContext(ctx, "rooms - join channel - subscribed", logging.Channel(channelID), logging.User(c.UserID()))
	return nil
}

// LeaveChannel unsubscribes the connection and announces the leave to
// the room's remaining members.
func (s *RoomService) LeaveChannel(ctx context.Context, c contracts.Client, channelID string) error {
	ctx, span := roomTracer.Start(ctx, "RoomService.LeaveChannel", trace.WithAttributes(
		attribute.String("user_id", c.UserID()),
		attribute.String("channel_id", channelID),
	))
	defer span.End()
	if channelID == "" {
		return fmt.Errorf("%w: missing channel_id", domain.ErrValidation)
	}
	s.registry.LeaveRoom(registry.ChannelRoom(channelID), c.ID())
	s.registry.UnsubscribeChannel(c.UserID(), channelID)
	if err := s.roster.MarkAbsent(ctx, channelID, c.UserID()); err != nil {
		s.log.WarnContext(ctx, "rooms - leave channel - roster update failed", logging.Channel(channelID), logging.User(c.UserID()), logging.Err(err))
	}
	s.dispatcher.ToRoomExcept(ctx, registry.ChannelRoom(channelID), c.UserID(), domain.EventUserLeftChannel, domain.RoomMemberEvent{
		ChannelID: channelID,
		UserID:    c.UserID(),
	})
	s.log.InfoContext(ctx, "rooms - leave channel - unsubscribed", logging.Channel(channelID), logging.User(c.UserID()))
	return nil
}

// CatchUp joins the connection to every channel where persisted
// membership already exists. Catch-up is silent: it rebuilds transport
// subscriptions, it is not a membership change, so no join events are
// broadcast (the presence update covers the roster).
func (s *RoomService) CatchUp(ctx context.Context, c contracts.Client) error {
	ctx, span := roomTracer.Start(ctx, "RoomService.CatchUp", trace.WithAttributes(
		attribute.String("user_id", c.UserID()),
	))
	defer span.End()
	channels, err := s.members.ChannelsFor(ctx, c.UserID())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "channel list failed")
		s.log.ErrorContext(ctx, "rooms - catch up - channel list failed", logging.User(c.UserID()), logging.Err(err))
		return fmt.Errorf("list channels: %w", err)
	}
	for _, channelID := range channels {
		s.registry.JoinRoom(registry.ChannelRoom(channelID), c)
		s.registry.SubscribeChannel(c.UserID(), channelID)
		if err := s.roster.MarkPresent(ctx, channelID, c.UserID(), s.rosterTTL); err != nil {
			s.log.WarnContext(ctx, "rooms - catch up - roster update failed", logging.Channel(channelID), logging.User(c.UserID()), logging.Err(err))
		}
	}
	span.SetAttributes(attribute.Int("channels", len(channels)))
	s.log.InfoContext(ctx, "rooms - catch up - subscriptions rebuilt", logging.User(c.UserID()), "channels", len(channels))
	return nil
}

// Typing relays a typing indicator to the channel's other members.
func (s *RoomService) Typing(ctx context.Context, c contracts.Client, channelID string, started bool) error {
	if channelID == "" {
		return fmt.Errorf("%w: missing channel_id", domain.ErrValidation)
	}
	event := domain.EventTypingStopped
	if started {
		event = domain.EventTypingStarted
	}
	s.dispatcher.ToRoomExcept(ctx, registry.ChannelRoom(channelID), c.UserID(), event, domain.TypingEvent{
		ChannelID: channelID,
		UserID:    c.UserID(),
	})
	return nil
}
