package services

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"

	"github.com/iklevente/crewdo-backend-sub001/internal/app/registry"
	"github.com/iklevente/crewdo-backend-sub001/internal/core/domain"
)

func newCallFixture(t *testing.T) (*registry.Registry, *CallService) {
	t.Helper()
	reg, _, d := newReadyDispatcher(t)
	return reg, NewCallService(testLogger(), reg, d)
}

// joinChannelRoom wires a client into a channel room the way the room
// service would, without membership checks.
func joinChannelRoom(reg *registry.Registry, c *fakeClient, channelID string) {
	reg.Admit(c)
	reg.JoinRoom(registry.ChannelRoom(channelID), c)
	reg.SubscribeChannel(c.UserID(), channelID)
}

func TestStartCallEchoesAndAnnounces(t *testing.T) {
	ctx := context.Background()
	reg, svc := newCallFixture(t)

	alice := newFakeClient("alice")
	bob := newFakeClient("bob")
	joinChannelRoom(reg, alice, "ch1")
	joinChannelRoom(reg, bob, "ch1")

	callID, err := svc.StartCall(ctx, alice, "ch1", domain.CallVideo)
	if err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	if callID == "" {
		t.Fatal("StartCall returned empty call id")
	}

	if got := alice.countEvent(domain.EventCallCreated); got != 1 {
		t.Errorf("initiator got %d call_created frames, want 1", got)
	}
	if got := alice.countEvent(domain.EventCallStarted); got != 0 {
		t.Errorf("initiator got %d call_started frames, want 0", got)
	}
	if got := bob.countEvent(domain.EventCallStarted); got != 1 {
		t.Errorf("channel peer got %d call_started frames, want 1", got)
	}
	var ev domain.CallEvent
	bob.lastPayload(t, domain.EventCallStarted, &ev)
	if ev.CallID != callID || ev.ChannelID != "ch1" || ev.Kind != domain.CallVideo || ev.InitiatorID != "alice" {
		t.Errorf("call_started payload = %+v", ev)
	}
}

func TestStartCallRequiresChannelSubscription(t *testing.T) {
	reg, svc := newCallFixture(t)
	mallory := newFakeClient("mallory")
	reg.Admit(mallory)

	_, err := svc.StartCall(context.Background(), mallory, "ch1", domain.CallAudio)
	if !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("StartCall = %v, want ErrAccessDenied", err)
	}
}

func TestJoinCallNotifiesParticipantsAndSendsRoster(t *testing.T) {
	ctx := context.Background()
	reg, svc := newCallFixture(t)

	alice := newFakeClient("alice")
	joinChannelRoom(reg, alice, "ch1")
	callID, err := svc.StartCall(ctx, alice, "ch1", domain.CallAudio)
	if err != nil {
		t.Fatal(err)
	}

	bob := newFakeClient("bob")
	reg.Admit(bob)
	if err := svc.JoinCall(ctx, bob, callID); err != nil {
		t.Fatalf("JoinCall: %v", err)
	}

	if got := alice.countEvent(domain.EventUserJoinedCall); got != 1 {
		t.Errorf("existing participant got %d user_joined_call frames, want 1", got)
	}
	if got := bob.countEvent(domain.EventCallParticipants); got != 1 {
		t.Errorf("joiner got %d call_participants frames, want 1", got)
	}
	var ev domain.CallEvent
	bob.lastPayload(t, domain.EventCallParticipants, &ev)
	sort.Strings(ev.Participants)
	if len(ev.Participants) != 2 || ev.Participants[0] != "alice" || ev.Participants[1] != "bob" {
		t.Errorf("participant roster = %v, want [alice bob]", ev.Participants)
	}
}

func TestJoinUnknownCall(t *testing.T) {
	reg, svc := newCallFixture(t)
	bob := newFakeClient("bob")
	reg.Admit(bob)
	err := svc.JoinCall(context.Background(), bob, "nope")
	if !errors.Is(err, domain.ErrCallNotFound) {
		t.Fatalf("JoinCall(nope) = %v, want ErrCallNotFound", err)
	}
}

func TestLastLeaveDestroysCall(t *testing.T) {
	ctx := context.Background()
	reg, svc := newCallFixture(t)

	alice := newFakeClient("alice")
	joinChannelRoom(reg, alice, "ch1")
	callID, err := svc.StartCall(ctx, alice, "ch1", domain.CallAudio)
	if err != nil {
		t.Fatal(err)
	}
	bob := newFakeClient("bob")
	reg.Admit(bob)
	if err := svc.JoinCall(ctx, bob, callID); err != nil {
		t.Fatal(err)
	}

	if err := svc.LeaveCall(ctx, bob, callID); err != nil {
		t.Fatalf("LeaveCall(bob): %v", err)
	}
	if got := alice.countEvent(domain.EventUserLeftCall); got != 1 {
		t.Errorf("remaining participant got %d user_left_call frames, want 1", got)
	}
	if err := svc.LeaveCall(ctx, alice, callID); err != nil {
		t.Fatalf("LeaveCall(alice): %v", err)
	}
	if _, err := svc.Participants(callID); !errors.Is(err, domain.ErrCallNotFound) {
		t.Fatalf("Participants after last leave = %v, want ErrCallNotFound", err)
	}
	if err := svc.JoinCall(ctx, bob, callID); !errors.Is(err, domain.ErrCallNotFound) {
		t.Fatalf("JoinCall after destruction = %v, want ErrCallNotFound", err)
	}
}

func TestMultiDeviceLeaveKeepsParticipant(t *testing.T) {
	ctx := context.Background()
	reg, svc := newCallFixture(t)

	alice := newFakeClient("alice")
	joinChannelRoom(reg, alice, "ch1")
	callID, err := svc.StartCall(ctx, alice, "ch1", domain.CallAudio)
	if err != nil {
		t.Fatal(err)
	}

	// Second device of the same user joins the same call.
	aliceLaptop := newFakeClient("alice")
	reg.Admit(aliceLaptop)
	if err := svc.JoinCall(ctx, aliceLaptop, callID); err != nil {
		t.Fatal(err)
	}

	if err := svc.LeaveCall(ctx, aliceLaptop, callID); err != nil {
		t.Fatal(err)
	}
	ids, err := svc.Participants(callID)
	if err != nil {
		t.Fatalf("call destroyed while a device remained: %v", err)
	}
	if len(ids) != 1 || ids[0] != "alice" {
		t.Errorf("participants = %v, want [alice]", ids)
	}
}

func TestRelaySignalTargetsExactlyOneUser(t *testing.T) {
	ctx := context.Background()
	reg, svc := newCallFixture(t)

	alice := newFakeClient("alice")
	joinChannelRoom(reg, alice, "ch1")
	callID, err := svc.StartCall(ctx, alice, "ch1", domain.CallVideo)
	if err != nil {
		t.Fatal(err)
	}
	bob := newFakeClient("bob")
	carol := newFakeClient("carol")
	reg.Admit(bob)
	reg.Admit(carol)
	if err := svc.JoinCall(ctx, bob, callID); err != nil {
		t.Fatal(err)
	}
	if err := svc.JoinCall(ctx, carol, callID); err != nil {
		t.Fatal(err)
	}

	offer := json.RawMessage(`{"sdp":"v=0"}`)
	if err := svc.RelaySignal(ctx, alice, callID, "bob", offer); err != nil {
		t.Fatalf("RelaySignal: %v", err)
	}

	if got := bob.countEvent(domain.EventWebRTCSignal); got != 1 {
		t.Errorf("target got %d webrtc_signal frames, want 1", got)
	}
	if got := carol.countEvent(domain.EventWebRTCSignal); got != 0 {
		t.Errorf("non-target participant got %d webrtc_signal frames, want 0", got)
	}
	var ev domain.SignalEvent
	bob.lastPayload(t, domain.EventWebRTCSignal, &ev)
	if ev.FromUserID != "alice" || ev.CallID != callID {
		t.Errorf("signal envelope = %+v", ev)
	}
	if string(ev.Data) != string(offer) {
		t.Errorf("signal data = %s, want opaque passthrough %s", ev.Data, offer)
	}
}

func TestRelaySignalRejectsOutsiders(t *testing.T) {
	ctx := context.Background()
	reg, svc := newCallFixture(t)

	alice := newFakeClient("alice")
	joinChannelRoom(reg, alice, "ch1")
	callID, err := svc.StartCall(ctx, alice, "ch1", domain.CallAudio)
	if err != nil {
		t.Fatal(err)
	}
	outsider := newFakeClient("mallory")
	reg.Admit(outsider)

	if err := svc.RelaySignal(ctx, outsider, callID, "alice", json.RawMessage(`{}`)); !errors.Is(err, domain.ErrCallNotFound) {
		t.Errorf("relay from outsider = %v, want ErrCallNotFound", err)
	}
	if err := svc.RelaySignal(ctx, alice, callID, "mallory", json.RawMessage(`{}`)); !errors.Is(err, domain.ErrCallNotFound) {
		t.Errorf("relay to outsider = %v, want ErrCallNotFound", err)
	}
}

func TestDropConnectionLeavesCalls(t *testing.T) {
	ctx := context.Background()
	reg, svc := newCallFixture(t)

	alice := newFakeClient("alice")
	joinChannelRoom(reg, alice, "ch1")
	callID, err := svc.StartCall(ctx, alice, "ch1", domain.CallAudio)
	if err != nil {
		t.Fatal(err)
	}
	bob := newFakeClient("bob")
	reg.Admit(bob)
	if err := svc.JoinCall(ctx, bob, callID); err != nil {
		t.Fatal(err)
	}

	svc.DropConnection(ctx, bob)

	ids, err := svc.Participants(callID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "alice" {
		t.Errorf("participants after drop = %v, want [alice]", ids)
	}
	if got := alice.countEvent(domain.EventUserLeftCall); got != 1 {
		t.Errorf("remaining participant got %d user_left_call frames, want 1", got)
	}
}

func TestQualityReportRelayedToOtherParticipants(t *testing.T) {
	ctx := context.Background()
	reg, svc := newCallFixture(t)

	alice := newFakeClient("alice")
	joinChannelRoom(reg, alice, "ch1")
	callID, err := svc.StartCall(ctx, alice, "ch1", domain.CallVideo)
	if err != nil {
		t.Fatal(err)
	}
	bob := newFakeClient("bob")
	reg.Admit(bob)
	if err := svc.JoinCall(ctx, bob, callID); err != nil {
		t.Fatal(err)
	}

	metrics := json.RawMessage(`{"rtt_ms":42,"packet_loss":0.01}`)
	if err := svc.QualityReport(ctx, bob, callID, metrics); err != nil {
		t.Fatalf("QualityReport: %v", err)
	}
	if got := alice.countEvent(domain.EventQualityMetrics); got != 1 {
		t.Errorf("peer got %d quality frames, want 1", got)
	}
	if got := bob.countEvent(domain.EventQualityMetrics); got != 0 {
		t.Errorf("reporter got %d quality frames, want 0", got)
	}
}
