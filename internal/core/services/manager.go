package services

import (
	"context"
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

var managerTracer = otel.Tracer("manager-service")

// ManagerService coordinates the connection lifecycle and routes
// decoded inbound frames to the owning service. Per-operation failures
// are isolated to the initiating connection: they surface as an error
// event and never interrupt other connections.
type ManagerService struct {
	log        *slog.Logger
	registry   *registry.Registry
	dispatcher *Dispatcher
	presence   *PresenceService
	rooms      *RoomService
	calls      *CallService
	messages   *MessageService
	roster     contracts.ChannelRoster
}

func NewManagerService(
	log *slog.Logger,
	reg *registry.Registry,
	dispatcher *Dispatcher,
	presence *PresenceService,
	rooms *RoomService,
	calls *CallService,
	messages *MessageService,
	roster contracts.ChannelRoster,
) *ManagerService {
	return &ManagerService{
		log:        log,
		registry:   reg,
		dispatcher: dispatcher,
		presence:   presence,
		rooms:      rooms,
		calls:      calls,
		messages:   messages,
		roster:     roster,
	}
}

// HandleConnect admits an authenticated connection. On the user's
// first connection the pending queue is flushed before any live event
// produced after reconnect can reach the new connection, then channel
// subscriptions are rebuilt and the online transition runs. A failed
// catch-up unwinds the admission before the error is returned, so the
// registry never holds a connection the caller is about to close.
func (m *ManagerService) HandleConnect(ctx context.Context, c contracts.Client) error {
	ctx, span := managerTracer.Start(ctx, "ManagerService.HandleConnect", trace.WithAttributes(
		attribute.String("user_id", c.UserID()),
		attribute.String("conn_id", c.ID().String()),
	))
	defer span.End()

	wasFirst := m.registry.Admit(c)
	span.SetAttributes(attribute.Bool("first_connection", wasFirst))
	if wasFirst {
		m.dispatcher.FlushOnConnect(ctx, c.UserID())
	}
	if err := m.rooms.CatchUp(ctx, c); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "catch-up failed")
		m.HandleDisconnect(ctx, c)
		return err
	}
	if wasFirst {
		if err := m.presence.HandleConnect(ctx, c.UserID()); err != nil {
			span.RecordError(err)
		}
	}

	snap, err := m.presence.Snapshot(ctx, m.registry.SubscribedChannels(c.UserID()))
	if err == nil {
		if data, encErr := domain.EncodeEvent(domain.EventPresenceSnapshot, snap); encErr == nil {
			if sendErr := c.Send(ctx, data); sendErr != nil {
				m.log.WarnContext(ctx, "manager - handle connect - snapshot send failed", logging.User(c.UserID()), logging.Err(sendErr))
			}
		}
	}
	span.SetStatus(codes.Ok, "connected")
	m.log.InfoContext(ctx, "manager - handle connect - connection admitted", logging.User(c.UserID()), logging.Conn(c.ID().String()), "first", wasFirst)
	return nil
}

// HandleDisconnect runs when the transport closes. Call rooms are left
// first (they notify remaining participants), then the registry drops
// the connection, and the offline transition runs on the last one.
func (m *ManagerService) HandleDisconnect(ctx context.Context, c contracts.Client) {
	ctx, span := managerTracer.Start(ctx, "ManagerService.HandleDisconnect", trace.WithAttributes(
		attribute.String("user_id", c.UserID()),
		attribute.String("conn_id", c.ID().String()),
	))
	defer span.End()

	m.calls.DropConnection(ctx, c)
	channels := m.registry.SubscribedChannels(c.UserID())
	wasLast := m.registry.Remove(c)
	span.SetAttributes(attribute.Bool("last_connection", wasLast))
	if !wasLast {
		return
	}
	for _, channelID := range channels {
		if err := m.roster.MarkAbsent(ctx, channelID, c.UserID()); err != nil {
			m.log.WarnContext(ctx, "manager - handle disconnect - roster update failed", logging.Channel(channelID), logging.User(c.UserID()), logging.Err(err))
		}
	}
	if err := m.presence.HandleDisconnect(ctx, c.UserID()); err != nil {
		span.RecordError(err)
	}
	m.log.InfoContext(ctx, "manager - handle disconnect - last connection closed", logging.User(c.UserID()))
}

// HandleHeartbeat refreshes the user's roster check-ins every interval
// until the connection context ends, so roster entries outlive their
// freshness window only after a real disconnect.
func (m *ManagerService) HandleHeartbeat(ctx context.Context, c contracts.Client, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, channelID := range m.registry.SubscribedChannels(c.UserID()) {
				if err := m.roster.MarkPresent(ctx, channelID, c.UserID(), ttl); err != nil {
					m.log.WarnContext(ctx, "manager - handle heartbeat - roster refresh failed", logging.Channel(channelID), logging.User(c.UserID()), logging.Err(err))
				}
			}
		}
	}
}

// HandleEvent decodes one inbound frame and routes it. Any failure is
// reported back to the initiating connection only.
func (m *ManagerService) HandleEvent(ctx context.Context, c contracts.Client, raw []byte) {
	in, err := domain.DecodeInbound(raw)
	if err != nil {
		m.sendError(ctx, c, err)
		return
	}
	switch v := in.(type) {
	case *domain.JoinChannelRequest:
		err = m.rooms.JoinChannel(ctx, c, v.ChannelID)
	case *domain.LeaveChannelRequest:
		err = m.rooms.LeaveChannel(ctx, c, v.ChannelID)
	case *domain.SendMessageRequest:
		err = m.messages.AcceptMessage(ctx, c, v.ChannelID, v.Body, v.ClientMsgID)
	case *domain.TypingRequest:
		err = m.rooms.Typing(ctx, c, v.ChannelID, v.Started)
	case *domain.UpdatePresenceRequest:
		if v.Clear {
			err = m.presence.ClearManual(ctx, c.UserID())
		} else {
			err = m.presence.SetManual(ctx, c.UserID(), v.Status)
		}
	case *domain.StartCallRequest:
		_, err = m.calls.StartCall(ctx, c, v.ChannelID, v.Kind)
	case *domain.JoinCallRequest:
		err = m.calls.JoinCall(ctx, c, v.CallID)
	case *domain.LeaveCallRequest:
		err = m.calls.LeaveCall(ctx, c, v.CallID)
	case *domain.SignalRequest:
		err = m.calls.RelaySignal(ctx, c, v.CallID, v.TargetUserID, v.Data)
	case *domain.ReactionAddRequest:
		err = m.messages.AddReaction(ctx, c, v.ChannelID, v.MessageID, v.Emoji)
	case *domain.MarkReadRequest:
		err = m.messages.MarkRead(ctx, c, v.ChannelID, v.LastSeq)
	case *domain.QualityReportRequest:
		err = m.calls.QualityReport(ctx, c, v.CallID, v.Metrics)
	}
	if err != nil {
		m.sendError(ctx, c, err)
	}
}

func (m *ManagerService) sendError(ctx context.Context, c contracts.Client, opErr error) {
	data, err := domain.EncodeEvent(domain.EventError, domain.ErrorEvent{
		Code:    domain.ErrorCode(opErr),
		Message: opErr.Error(),
	})
	if err != nil {
		return
	}
	if err := c.Send(ctx, data); err != nil {
		m.log.WarnContext(ctx, "manager - send error - delivery failed", logging.User(c.UserID()), logging.Err(err))
	}
}
