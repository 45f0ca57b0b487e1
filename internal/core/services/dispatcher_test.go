package services

import (
	"context"
	"sync"
	"testing"

	"github.com/iklevente/crewdo-backend-sub001/internal/app/registry"
	"github.com/iklevente/crewdo-backend-sub001/internal/core/domain"
)

func newReadyDispatcher(t *testing.T) (*registry.Registry, *PendingBuffer, *Dispatcher) {
	t.Helper()
	reg := registry.New()
	pending := NewPendingBuffer(8)
	d := NewDispatcher(testLogger(), reg, pending)
	d.SetReady(context.Background())
	return reg, pending, d
}

func TestToUserDeliversLive(t *testing.T) {
	reg, pending, d := newReadyDispatcher(t)
	c1 := newFakeClient("alice")
	c2 := newFakeClient("alice")
	reg.Admit(c1)
	reg.Admit(c2)

	d.ToUser(context.Background(), "alice", domain.EventNewMessage, domain.MessageEvent{ID: "m1"})

	for _, c := range []*fakeClient{c1, c2} {
		if got := c.countEvent(domain.EventNewMessage); got != 1 {
			t.Errorf("connection got %d new_message frames, want 1", got)
		}
	}
	if got := pending.Len("alice"); got != 0 {
		t.Errorf("pending queue depth = %d after live delivery, want 0", got)
	}
}

func TestToUserQueuesWhenOffline(t *testing.T) {
	_, pending, d := newReadyDispatcher(t)

	d.ToUser(context.Background(), "bob", domain.EventNotification, domain.MessageEvent{ID: "m1"})
	d.ToUser(context.Background(), "bob", domain.EventNotification, domain.MessageEvent{ID: "m2"})

	if got := pending.Len("bob"); got != 2 {
		t.Fatalf("pending queue depth = %d, want 2", got)
	}
}

func TestFlushOnConnectDeliversInOrderOnce(t *testing.T) {
	reg, pending, d := newReadyDispatcher(t)

	d.ToUser(context.Background(), "bob", "ev_a", domain.MessageEvent{ID: "1"})
	d.ToUser(context.Background(), "bob", "ev_b", domain.MessageEvent{ID: "2"})
	d.ToUser(context.Background(), "bob", "ev_c", domain.MessageEvent{ID: "3"})

	c := newFakeClient("bob")
	reg.Admit(c)
	d.FlushOnConnect(context.Background(), "bob")

	events := c.events()
	want := []string{"ev_a", "ev_b", "ev_c"}
	if len(events) != len(want) {
		t.Fatalf("got %d frames %v, want %d", len(events), events, len(want))
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, events[i], want[i])
		}
	}
	if got := pending.Len("bob"); got != 0 {
		t.Errorf("pending queue depth after flush = %d, want 0", got)
	}

	// A second flush must not redeliver.
	d.FlushOnConnect(context.Background(), "bob")
	if got := len(c.events()); got != 3 {
		t.Errorf("frames after second flush = %d, want 3", got)
	}
}

func TestToUsersDeduplicatesRecipients(t *testing.T) {
	reg, _, d := newReadyDispatcher(t)
	c := newFakeClient("alice")
	reg.Admit(c)

	d.ToUsers(context.Background(), domain.EventChannelUpdated, domain.RoomMemberEvent{ChannelID: "ch1"},
		[]string{"alice", "alice", "", "alice"})

	if got := c.countEvent(domain.EventChannelUpdated); got != 1 {
		t.Fatalf("got %d channel_updated frames, want 1", got)
	}
}

func TestToRoomExceptSkipsSender(t *testing.T) {
	reg, _, d := newReadyDispatcher(t)
	sender := newFakeClient("alice")
	peer := newFakeClient("bob")
	reg.Admit(sender)
	reg.Admit(peer)
	reg.JoinRoom(registry.ChannelRoom("ch1"), sender)
	reg.JoinRoom(registry.ChannelRoom("ch1"), peer)

	d.ToRoomExcept(context.Background(), registry.ChannelRoom("ch1"), "alice",
		domain.EventTypingStarted, domain.TypingEvent{ChannelID: "ch1", UserID: "alice"})

	if got := sender.countEvent(domain.EventTypingStarted); got != 0 {
		t.Errorf("sender got %d typing_started frames, want 0", got)
	}
	if got := peer.countEvent(domain.EventTypingStarted); got != 1 {
		t.Errorf("peer got %d typing_started frames, want 1", got)
	}
}

func TestDispatchBeforeReadyReplaysInOrder(t *testing.T) {
	reg := registry.New()
	pending := NewPendingBuffer(8)
	d := NewDispatcher(testLogger(), reg, pending)

	c := newFakeClient("alice")
	reg.Admit(c)
	reg.JoinRoom(registry.ChannelRoom("ch1"), c)

	d.ToRoom(context.Background(), registry.ChannelRoom("ch1"), "ev_a", domain.TypingEvent{ChannelID: "ch1"})
	d.ToUser(context.Background(), "alice", "ev_b", domain.TypingEvent{ChannelID: "ch1"})
	d.ToAll(context.Background(), "ev_c", domain.TypingEvent{ChannelID: "ch1"})

	if got := len(c.events()); got != 0 {
		t.Fatalf("frames delivered before SetReady = %d, want 0", got)
	}

	d.SetReady(context.Background())

	events := c.events()
	want := []string{"ev_a", "ev_b", "ev_c"}
	if len(events) != len(want) {
		t.Fatalf("got frames %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, events[i], want[i])
		}
	}
}

func TestPublishPresenceUpdateReachesSubscribedRoomsAndAll(t *testing.T) {
	reg, _, d := newReadyDispatcher(t)
	mover := newFakeClient("alice")
	peer := newFakeClient("bob")
	outsider := newFakeClient("carol")
	reg.Admit(mover)
	reg.Admit(peer)
	reg.Admit(outsider)
	reg.JoinRoom(registry.ChannelRoom("ch1"), mover)
	reg.JoinRoom(registry.ChannelRoom("ch1"), peer)
	reg.SubscribeChannel("alice", "ch1")

	d.PublishPresenceUpdate(context.Background(), domain.PresenceEvent{
		UserID: "alice",
		Status: domain.StatusAway,
	})

	// Room members get the room copy plus the global copy; everybody
	// else still gets the global copy.
	if got := peer.countEvent(domain.EventPresenceUpdated); got != 2 {
		t.Errorf("room peer got %d presence_updated frames, want 2", got)
	}
	if got := outsider.countEvent(domain.EventPresenceUpdated); got != 1 {
		t.Errorf("outsider got %d presence_updated frames, want 1", got)
	}
	if got := mover.countEvent(domain.EventPresenceUpdated); got != 1 {
		t.Errorf("mover got %d presence_updated frames, want 1 (global only)", got)
	}
}

func TestConcurrentConnectNeverStrandsEvent(t *testing.T) {
	// A connect racing ToUser must end with the event delivered: either
	// live, or queued before the flush that follows admission.
	for i := 0; i < 200; i++ {
		reg := registry.New()
		pending := NewPendingBuffer(8)
		d := NewDispatcher(testLogger(), reg, pending)
		d.SetReady(context.Background())
		c := newFakeClient("alice")

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			d.ToUser(context.Background(), "alice", domain.EventNewMessage, domain.MessageEvent{ID: "m1"})
		}()
		go func() {
			defer wg.Done()
			if reg.Admit(c) {
				d.FlushOnConnect(context.Background(), "alice")
			}
		}()
		wg.Wait()

		if got := c.countEvent(domain.EventNewMessage); got != 1 {
			t.Fatalf("iteration %d: connection got %d frames (pending depth %d), want exactly 1",
				i, got, pending.Len("alice"))
		}
	}
}
