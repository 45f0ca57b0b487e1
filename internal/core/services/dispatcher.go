package services

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/iklevente/crewdo-backend-sub001/internal/app/registry"
	"github.com/iklevente/crewdo-backend-sub001/internal/core/contracts"
	"github.com/iklevente/crewdo-backend-sub001/internal/core/domain"
	"github.com/iklevente/crewdo-backend-sub001/pkg/logging"
)

var dispatchTracer = otel.Tracer("dispatcher-service")

var _ contracts.Dispatcher = (*Dispatcher)(nil)

// Dispatcher resolves a logical target (room, user, recipient set) to
// concrete connections and pushes the encoded event to each. Until
// SetReady is called every dispatch is captured in the pending buffer's
// startup queue and replayed in order once the transport is wired.
type Dispatcher struct {
	log      *slog.Logger
	registry *registry.Registry
	pending  *PendingBuffer
	readyCh  chan struct{}
}

func NewDispatcher(log *slog.Logger, reg *registry.Registry, pending *PendingBuffer) *Dispatcher {
	return &Dispatcher{
		log:      log,
		registry: reg,
		pending:  pending,
		readyCh:  make(chan struct{}),
	}
}

func (d *Dispatcher) ready() bool {
	select {
	case <-d.readyCh:
		return true
	default:
		return false
	}
}

// SetReady marks the transport as initialized and flushes the startup
// queue in original call order.
func (d *Dispatcher) SetReady(ctx context.Context) {
	close(d.readyCh)
	for _, dispatch := range d.pending.DrainStartup() {
		dispatch()
	}
	d.log.InfoContext(ctx, "dispatcher - set ready - startup queue flushed")
}

func (d *Dispatcher) encode(ctx context.Context, event string, payload any) ([]byte, bool) {
	data, err := domain.EncodeEvent(event, payload)
	if err != nil {
		d.log.ErrorContext(ctx, "dispatcher - encode - event marshal failed", logging.Event(event), logging.Err(err))
		return nil, false
	}
	return data, true
}

func (d *Dispatcher) ToRoom(ctx context.Context, roomID, event string, payload any) {
	d.ToRoomExcept(ctx, roomID, "", event, payload)
}

func (d *Dispatcher) ToRoomExcept(ctx context.Context, roomID, exceptUserID, event string, payload any) {
	if !d.ready() && d.pending.EnqueueStartup(func() {
		d.ToRoomExcept(context.WithoutCancel(ctx), roomID, exceptUserID, event, payload)
	}) {
		return
	}
	ctx, span := dispatchTracer.Start(ctx, "Dispatcher.ToRoom", trace.WithAttributes(
		attribute.String("room_id", roomID),
		attribute.String("event", event),
	))
	defer span.End()
	data, ok := d.encode(ctx, event, payload)
	if !ok {
		return
	}
	for _, c := range d.registry.RoomClients(roomID) {
		if exceptUserID != "" && c.UserID() == exceptUserID {
			continue
		}
		if err := c.Send(ctx, data); err != nil {
			d.log.WarnContext(ctx, "dispatcher - to room - send failed", "room_id", roomID, logging.User(c.UserID()), logging.Err(err))
		}
	}
}

func (d *Dispatcher) ToUser(ctx context.Context, userID, event string, payload any) {
	if userID == "" {
		return
	}
	if !d.ready() && d.pending.EnqueueStartup(func() {
		d.ToUser(context.WithoutCancel(ctx), userID, event, payload)
	}) {
		return
	}
	ctx, span := dispatchTracer.Start(ctx, "Dispatcher.ToUser", trace.WithAttributes(
		attribute.String("user_id", userID),
		attribute.String("event", event),
	))
	defer span.End()

	// The offline check and the enqueue run under the registry lock, so
	// a concurrent admission either sees the event queued before its
	// flush or hands back the live connections.
	conns := d.registry.ConnectionsOrEnqueue(userID, func() {
		d.pending.Enqueue(userID, event, payload)
	})
	if len(conns) == 0 {
		span.SetAttributes(attribute.Bool("queued", true))
		d.log.DebugContext(ctx, "dispatcher - to user - recipient offline, queued", logging.User(userID), logging.Event(event))
		return
	}
	data, ok := d.encode(ctx, event, payload)
	if !ok {
		return
	}
	for _, c := range conns {
		if err := c.Send(ctx, data); err != nil {
			d.log.WarnContext(ctx, "dispatcher - to user - send failed", logging.User(userID), logging.Err(err))
		}
	}
}

func (d *Dispatcher) ToUsers(ctx context.Context, event string, payload any, userIDs []string) {
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		d.ToUser(ctx, id, event, payload)
	}
}

func (d *Dispatcher) ToAll(ctx context.Context, event string, payload any) {
	if !d.ready() && d.pending.EnqueueStartup(func() {
		d.ToAll(context.WithoutCancel(ctx), event, payload)
	}) {
		return
	}
	data, ok := d.encode(ctx, event, payload)
	if !ok {
		return
	}
	for _, c := range d.registry.AllClients() {
		if err := c.Send(ctx, data); err != nil {
			d.log.WarnContext(ctx, "dispatcher - to all - send failed", logging.User(c.UserID()), logging.Err(err))
		}
	}
}

// FlushOnConnect redelivers the user's queued events in enqueue order.
// Called on first-connection admission, before any live event produced
// after reconnect reaches the new connection.
func (d *Dispatcher) FlushOnConnect(ctx context.Context, userID string) {
	queued := d.pending.Drain(userID)
	if len(queued) == 0 {
		return
	}
	conns := d.registry.ConnectionsFor(userID)
	for _, ev := range queued {
		data, ok := d.encode(ctx, ev.Event, ev.Payload)
		if !ok {
			continue
		}
		for _, c := range conns {
			if err := c.Send(ctx, data); err != nil {
				d.log.WarnContext(ctx, "dispatcher - flush on connect - send failed", logging.User(userID), logging.Err(err))
			}
		}
	}
	d.log.InfoContext(ctx, "dispatcher - flush on connect - queue delivered", logging.User(userID), "events", len(queued))
}

// Collaborator entry points. REST handlers and lifecycle services call
// these after their own writes; all are fire-and-forget.

func (d *Dispatcher) PublishToChannel(ctx context.Context, channelID, event string, payload any) {
	d.ToRoom(ctx, registry.ChannelRoom(channelID), event, payload)
}

func (d *Dispatcher) PublishToUser(ctx context.Context, userID, event string, payload any) {
	d.ToUser(ctx, userID, event, payload)
}

func (d *Dispatcher) PublishToUsers(ctx context.Context, event string, payload any, userIDs []string) {
	d.ToUsers(ctx, event, payload, userIDs)
}

func (d *Dispatcher) PublishPresenceUpdate(ctx context.Context, update domain.PresenceEvent) {
	for _, channelID := range d.registry.SubscribedChannels(update.UserID) {
		d.ToRoomExcept(ctx, registry.ChannelRoom(channelID), update.UserID, domain.EventPresenceUpdated, update)
	}
	d.ToAll(ctx, domain.EventPresenceUpdated, update)
}

func (d *Dispatcher) PublishIncomingCall(ctx context.Context, call domain.CallEvent, userIDs []string) {
	d.ToUsers(ctx, domain.EventIncomingCall, call, userIDs)
}

func (d *Dispatcher) PublishCallUpdate(ctx context.Context, channelID string, call domain.CallEvent) {
	d.ToRoom(ctx, registry.ChannelRoom(channelID), domain.EventCallUpdated, call)
}
