package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/iklevente/crewdo-backend-sub001/internal/app/registry"
	"github.com/iklevente/crewdo-backend-sub001/internal/core/contracts"
	"github.com/iklevente/crewdo-backend-sub001/internal/core/domain"
	"github.com/iklevente/crewdo-backend-sub001/pkg/logging"
)

var callTracer = otel.Tracer("call-service")

type call struct {
	id          string
	channelID   string
	kind        domain.CallKind
	initiatorID string
	// userIDs with at least one connection in the call room
	participants map[string]struct{}
}

// CallService manages ephemeral per-call rooms and forwards opaque
// signaling payloads point-to-point. Nothing here is persisted; call
// lifecycle bookkeeping is an external collaborator's concern.
type CallService struct {
	log        *slog.Logger
	registry   *registry.Registry
	dispatcher *Dispatcher

	mu    sync.Mutex
	calls map[string]*call
}

func NewCallService(log *slog.Logger, reg *registry.Registry, dispatcher *Dispatcher) *CallService {
	return &CallService{
		log:        log,
		registry:   reg,
		dispatcher: dispatcher,
		calls:      make(map[string]*call),
	}
}

func (s *CallService) sendTo(ctx context.Context, c contracts.Client, event string, payload any) {
	data, err := domain.EncodeEvent(event, payload)
	if err != nil {
		s.log.ErrorContext(ctx, "calls - send - event marshal failed", logging.Event(event), logging.Err(err))
		return
	}
	if err := c.Send(ctx, data); err != nil {
		s.log.WarnContext(ctx, "calls - send - delivery failed", logging.Event(event), logging.User(c.UserID()), logging.Err(err))
	}
}

// StartCall creates the call room, joins the initiating connection,
// echoes call_created to the initiator, and broadcasts call_started to
// the channel room.
func (s *CallService) StartCall(ctx context.Context, c contracts.Client, channelID string, kind domain.CallKind) (string, error) {
	ctx, span := callTracer.Start(ctx, "CallService.StartCall", trace.WithAttributes(
		attribute.String("user_id", c.UserID()),
		attribute.String("channel_id", channelID),
	))
	defer span.End()
	if channelID == "" {
		return "", fmt.Errorf("%w: missing channel_id", domain.ErrValidation)
	}
	if kind == "" {
		kind = domain.CallAudio
	}
	if !s.subscribed(c.UserID(), channelID) {
		return "", fmt.Errorf("%w: not joined to channel %s", domain.ErrAccessDenied, channelID)
	}

	callID := uuid.NewString()
	s.mu.Lock()
	s.calls[callID] = &call{
		id:           callID,
		channelID:    channelID,
		kind:         kind,
		initiatorID:  c.UserID(),
		participants: map[string]struct{}{c.UserID(): {}},
	}
	s.mu.Unlock()
	s.registry.JoinRoom(registry.CallRoom(callID), c)

	ev := domain.CallEvent{
		CallID:       callID,
		ChannelID:    channelID,
		Kind:         kind,
		InitiatorID:  c.UserID(),
		Participants: []string{c.UserID()},
	}
	s.sendTo(ctx, c, domain.EventCallCreated, ev)
	s.dispatcher.ToRoomExcept(ctx, registry.ChannelRoom(channelID), c.UserID(), domain.EventCallStarted, ev)
	s.log.InfoContext(ctx, "calls - start call - call room created", logging.Call(callID), logging.Channel(channelID), logging.User(c.UserID()))
	return callID, nil
}

// JoinCall adds the connection to the call room, notifies existing
// participants, and sends the joiner the current participant list.
func (s *CallService) JoinCall(ctx context.Context, c contracts.Client, callID string) error {
	ctx, span := callTracer.Start(ctx, "CallService.JoinCall", trace.WithAttributes(
		attribute.String("user_id", c.UserID()),
		attribute.String("call_id", callID),
	))
	defer span.End()

	s.mu.Lock()
	cl, ok := s.calls[callID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: call %s", domain.ErrCallNotFound, callID)
	}
	cl.participants[c.UserID()] = struct{}{}
	ev := domain.CallEvent{
		CallID:       callID,
		ChannelID:    cl.channelID,
		Kind:         cl.kind,
		UserID:       c.UserID(),
		Participants: participantList(cl),
	}
	s.mu.Unlock()

	s.dispatcher.ToRoomExcept(ctx, registry.CallRoom(callID), c.UserID(), domain.EventUserJoinedCall, ev)
	s.registry.JoinRoom(registry.CallRoom(callID), c)
	s.sendTo(ctx, c, domain.EventCallParticipants, ev)
	s.log.InfoContext(ctx, "calls - join call - participant added", logging.Call(callID), logging.User(c.UserID()))
	return nil
}

// LeaveCall removes the connection; the last participant leaving
// destroys the call room.
func (s *CallService) LeaveCall(ctx context.Context, c contracts.Client, callID string) error {
	ctx, span := callTracer.Start(ctx, "CallService.LeaveCall", trace.WithAttributes(
		attribute.String("user_id", c.UserID()),
		attribute.String("call_id", callID),
	))
	defer span.End()

	s.mu.Lock()
	cl, ok := s.calls[callID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: call %s", domain.ErrCallNotFound, callID)
	}
	s.mu.Unlock()

	s.registry.LeaveRoom(registry.CallRoom(callID), c.ID())

	s.mu.Lock()
	if !s.userStillInRoom(callID, c.UserID()) {
		delete(cl.participants, c.UserID())
	}
	remaining := len(cl.participants)
	ev := domain.CallEvent{
		CallID:       callID,
		ChannelID:    cl.channelID,
		Kind:         cl.kind,
		UserID:       c.UserID(),
		Participants: participantList(cl),
	}
	if remaining == 0 {
		delete(s.calls, callID)
	}
	s.mu.Unlock()

	if remaining == 0 {
		s.log.InfoContext(ctx, "calls - leave call - call room destroyed", logging.Call(callID))
		return nil
	}
	s.dispatcher.ToRoom(ctx, registry.CallRoom(callID), domain.EventUserLeftCall, ev)
	s.log.InfoContext(ctx, "calls - leave call - participant removed", logging.Call(callID), logging.User(c.UserID()))
	return nil
}

// DropConnection leaves every call the closing connection was part of.
// Called on transport close, before the registry removes the connection.
func (s *CallService) DropConnection(ctx context.Context, c contracts.Client) {
	for _, roomID := range s.registry.RoomsOf(c.ID()) {
		if callID, ok := registry.CallFromRoom(roomID); ok {
			if err := s.LeaveCall(ctx, c, callID); err != nil {
				s.log.WarnContext(ctx, "calls - drop connection - leave failed", logging.Call(callID), logging.User(c.UserID()), logging.Err(err))
			}
		}
	}
}

// RelaySignal forwards an opaque offer/answer/candidate payload to
// every live connection of exactly the target user. The payload is
// never inspected or persisted.
func (s *CallService) RelaySignal(ctx context.Context, c contracts.Client, callID, targetUserID string, data json.RawMessage) error {
	ctx, span := callTracer.Start(ctx, "CallService.RelaySignal", trace.WithAttributes(
		attribute.String("call_id", callID),
		attribute.String("from", c.UserID()),
		attribute.String("to", targetUserID),
	))
	defer span.End()
	if targetUserID == "" {
		return fmt.Errorf("%w: missing target_user_id", domain.ErrValidation)
	}
	s.mu.Lock()
	cl, ok := s.calls[callID]
	if ok {
		_, senderIn := cl.participants[c.UserID()]
		_, targetIn := cl.participants[targetUserID]
		ok = senderIn && targetIn
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: call %s", domain.ErrCallNotFound, callID)
	}
	s.dispatcher.ToUser(ctx, targetUserID, domain.EventWebRTCSignal, domain.SignalEvent{
		CallID:     callID,
		FromUserID: c.UserID(),
		Data:       data,
	})
	return nil
}

// QualityReport relays connection metrics to the call's other
// participants.
func (s *CallService) QualityReport(ctx context.Context, c contracts.Client, callID string, metrics json.RawMessage) error {
	s.mu.Lock()
	cl, ok := s.calls[callID]
	if ok {
		_, ok = cl.participants[c.UserID()]
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: call %s", domain.ErrCallNotFound, callID)
	}
	s.dispatcher.ToRoomExcept(ctx, registry.CallRoom(callID), c.UserID(), domain.EventQualityMetrics, domain.QualityEvent{
		CallID:  callID,
		UserID:  c.UserID(),
		Metrics: metrics,
	})
	return nil
}

// Participants returns the userIDs currently in the call.
func (s *CallService) Participants(callID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cl, ok := s.calls[callID]
	if !ok {
		return nil, fmt.Errorf("%w: call %s", domain.ErrCallNotFound, callID)
	}
	return participantList(cl), nil
}

func (s *CallService) subscribed(userID, channelID string) bool {
	for _, id := range s.registry.SubscribedChannels(userID) {
		if id == channelID {
			return true
		}
	}
	return false
}

// userStillInRoom reports whether any other connection of the user
// remains in the call room (multi-device).
func (s *CallService) userStillInRoom(callID, userID string) bool {
	for _, rc := range s.registry.RoomClients(registry.CallRoom(callID)) {
		if rc.UserID() == userID {
			return true
		}
	}
	return false
}

func participantList(cl *call) []string {
	out := make([]string, 0, len(cl.participants))
	for id := range cl.participants {
		out = append(out, id)
	}
	return out
}
