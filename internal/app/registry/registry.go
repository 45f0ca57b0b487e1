package registry

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/iklevente/crewdo-backend-sub001/internal/core/contracts"
)

// ChannelRoom returns the room identifier for a channel's broadcast group.
func ChannelRoom(channelID string) string { return "channel:" + channelID }

// CallRoom returns the room identifier for a call's broadcast group.
func CallRoom(callID string) string { return "call:" + callID }

// ChannelFromRoom extracts the channel id from a channel room identifier.
func ChannelFromRoom(roomID string) (string, bool) {
	id, ok := strings.CutPrefix(roomID, "channel:")
	return id, ok
}

// CallFromRoom extracts the call id from a call room identifier.
func CallFromRoom(roomID string) (string, bool) {
	id, ok := strings.CutPrefix(roomID, "call:")
	return id, ok
}

// Registry is the in-memory connection and room state for this
// instance. Every mutation runs under one mutex so read-then-write
// sequences (first connection, last connection, room emptied) are
// atomic under arbitrary interleaving of connects, disconnects, joins
// and leaves. Nothing here touches the network or a database while the
// lock is held; client sends go to buffered per-connection channels.
type Registry struct {
	mu    sync.Mutex
	conns map[string]map[uuid.UUID]contracts.Client // userID -> connID -> client
	rooms map[string]map[uuid.UUID]contracts.Client // roomID -> connID -> client
	subs  map[string]map[string]struct{}            // userID -> channelID set

	roomsByConn map[uuid.UUID]map[string]struct{}
	workers     map[string]context.CancelFunc
	runWorker   func(ctx context.Context, channelID string) error
}

var _ contracts.Registry = (*Registry)(nil)

func New() *Registry {
	return &Registry{
		conns:       make(map[string]map[uuid.UUID]contracts.Client),
		rooms:       make(map[string]map[uuid.UUID]contracts.Client),
		subs:        make(map[string]map[string]struct{}),
		roomsByConn: make(map[uuid.UUID]map[string]struct{}),
		workers:     make(map[string]context.CancelFunc),
	}
}

// RunWorker installs the hook started for a channel room's first
// member and cancelled when the room empties.
func (r *Registry) RunWorker(run func(ctx context.Context, channelID string) error) {
	r.runWorker = run
}

func (r *Registry) Admit(c contracts.Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID := c.UserID()
	set := r.conns[userID]
	wasFirst := len(set) == 0
	if set == nil {
		set = make(map[uuid.UUID]contracts.Client)
		r.conns[userID] = set
	}
	set[c.ID()] = c
	return wasFirst
}

func (r *Registry) Remove(c contracts.Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID := c.UserID()
	connID := c.ID()

	for roomID := range r.roomsByConn[connID] {
		r.leaveRoomLocked(roomID, connID)
	}
	delete(r.roomsByConn, connID)

	set := r.conns[userID]
	delete(set, connID)
	if len(set) == 0 {
		delete(r.conns, userID)
		delete(r.subs, userID)
		return true
	}
	return false
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns[userID]) > 0
}

func (r *Registry) ConnectionsFor(userID string) []contracts.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connectionsForLocked(userID)
}

// ConnectionsOrEnqueue returns the user's live connections, or runs
// enqueue under the registry mutex when there are none. The check is
// serialized with Admit: an event is either delivered live or enqueued
// before the flush that follows admission, never stranded between the
// two.
func (r *Registry) ConnectionsOrEnqueue(userID string, enqueue func()) []contracts.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.conns[userID]) == 0 {
		enqueue()
		return nil
	}
	return r.connectionsForLocked(userID)
}

func (r *Registry) connectionsForLocked(userID string) []contracts.Client {
	out := make([]contracts.Client, 0, len(r.conns[userID]))
	for _, c := range r.conns[userID] {
		out = append(out, c)
	}
	return out
}

// AllClients snapshots every live connection on this instance.
func (r *Registry) AllClients() []contracts.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []contracts.Client
	for _, set := range r.conns {
		for _, c := range set {
			out = append(out, c)
		}
	}
	return out
}

func (r *Registry) JoinRoom(roomID string, c contracts.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room := r.rooms[roomID]
	if room == nil {
		room = make(map[uuid.UUID]contracts.Client)
		r.rooms[roomID] = room
		if channelID, ok := ChannelFromRoom(roomID); ok && r.runWorker != nil {
			ctx, cancel := context.WithCancel(context.Background())
			r.workers[roomID] = cancel
			go r.runWorker(ctx, channelID)
		}
	}
	room[c.ID()] = c
	byConn := r.roomsByConn[c.ID()]
	if byConn == nil {
		byConn = make(map[string]struct{})
		r.roomsByConn[c.ID()] = byConn
	}
	byConn[roomID] = struct{}{}
}

func (r *Registry) LeaveRoom(roomID string, connID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveRoomLocked(roomID, connID)
	if byConn := r.roomsByConn[connID]; byConn != nil {
		delete(byConn, roomID)
	}
}

func (r *Registry) leaveRoomLocked(roomID string, connID uuid.UUID) {
	room := r.rooms[roomID]
	delete(room, connID)
	if room != nil && len(room) == 0 {
		delete(r.rooms, roomID)
		if cancel := r.workers[roomID]; cancel != nil {
			cancel()
			delete(r.workers, roomID)
		}
	}
}

// RoomsOf lists the rooms the connection currently belongs to.
func (r *Registry) RoomsOf(connID uuid.UUID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.roomsByConn[connID]))
	for roomID := range r.roomsByConn[connID] {
		out = append(out, roomID)
	}
	return out
}

func (r *Registry) RoomClients(roomID string) []contracts.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]contracts.Client, 0, len(r.rooms[roomID]))
	for _, c := range r.rooms[roomID] {
		out = append(out, c)
	}
	return out
}

func (r *Registry) SubscribeChannel(userID, channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.subs[userID]
	if set == nil {
		set = make(map[string]struct{})
		r.subs[userID] = set
	}
	set[channelID] = struct{}{}
}

func (r *Registry) UnsubscribeChannel(userID, channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs[userID], channelID)
}

func (r *Registry) SubscribedChannels(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.subs[userID]))
	for id := range r.subs[userID] {
		out = append(out, id)
	}
	return out
}
