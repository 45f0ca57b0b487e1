package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want func(t *testing.T, in Inbound)
	}{
		{
			name: "join channel",
			raw:  `{"type":"join-channel","payload":{"channel_id":"ch1"}}`,
			want: func(t *testing.T, in Inbound) {
				req, ok := in.(*JoinChannelRequest)
				if !ok || req.ChannelID != "ch1" {
					t.Fatalf("got %#v", in)
				}
			},
		},
		{
			name: "send message",
			raw:  `{"type":"send-message","payload":{"channel_id":"ch1","client_msg_id":"c1","body":"hey"}}`,
			want: func(t *testing.T, in Inbound) {
				req, ok := in.(*SendMessageRequest)
				if !ok || req.Body != "hey" || req.ClientMsgID != "c1" {
					t.Fatalf("got %#v", in)
				}
			},
		},
		{
			name: "typing start sets flag",
			raw:  `{"type":"typing-start","payload":{"channel_id":"ch1"}}`,
			want: func(t *testing.T, in Inbound) {
				req, ok := in.(*TypingRequest)
				if !ok || !req.Started {
					t.Fatalf("got %#v", in)
				}
			},
		},
		{
			name: "typing stop clears flag",
			raw:  `{"type":"typing-stop","payload":{"channel_id":"ch1"}}`,
			want: func(t *testing.T, in Inbound) {
				req, ok := in.(*TypingRequest)
				if !ok || req.Started {
					t.Fatalf("got %#v", in)
				}
			},
		},
		{
			name: "update presence",
			raw:  `{"type":"update-presence","payload":{"status":"busy"}}`,
			want: func(t *testing.T, in Inbound) {
				req, ok := in.(*UpdatePresenceRequest)
				if !ok || req.Status != StatusBusy || req.Clear {
					t.Fatalf("got %#v", in)
				}
			},
		},
		{
			name: "webrtc signal keeps data opaque",
			raw:  `{"type":"webrtc-signal","payload":{"call_id":"c1","target_user_id":"bob","data":{"sdp":"v=0"}}}`,
			want: func(t *testing.T, in Inbound) {
				req, ok := in.(*SignalRequest)
				if !ok || req.TargetUserID != "bob" {
					t.Fatalf("got %#v", in)
				}
				if string(req.Data) != `{"sdp":"v=0"}` {
					t.Fatalf("data = %s", req.Data)
				}
			},
		},
		{
			name: "mark read",
			raw:  `{"type":"mark-messages-read","payload":{"channel_id":"ch1","last_seq":12}}`,
			want: func(t *testing.T, in Inbound) {
				req, ok := in.(*MarkReadRequest)
				if !ok || req.LastSeq != 12 {
					t.Fatalf("got %#v", in)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := DecodeInbound([]byte(tt.raw))
			if err != nil {
				t.Fatalf("DecodeInbound: %v", err)
			}
			tt.want(t, in)
		})
	}
}

func TestDecodeInboundRejects(t *testing.T) {
	for _, raw := range []string{
		`{"type":"shutdown-server","payload":{}}`,
		`{"type":"join-channel"}`,
		`{"type":"join-channel","payload":"not-an-object"}`,
		`{{{`,
	} {
		if _, err := DecodeInbound([]byte(raw)); !errors.Is(err, ErrValidation) {
			t.Errorf("DecodeInbound(%s) = %v, want ErrValidation", raw, err)
		}
	}
}

func TestEncodeEventEnvelope(t *testing.T) {
	data, err := EncodeEvent(EventNewMessage, MessageEvent{ID: "m1", ChannelID: "ch1", Seq: 3})
	if err != nil {
		t.Fatalf("EncodeEvent: %v", err)
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatal(err)
	}
	if f.Type != EventNewMessage {
		t.Errorf("type = %q, want %q", f.Type, EventNewMessage)
	}
	var ev MessageEvent
	if err := json.Unmarshal(f.Payload, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.ID != "m1" || ev.Seq != 3 {
		t.Errorf("payload = %+v", ev)
	}
}

func TestObservableMasksInvisible(t *testing.T) {
	rec := PresenceRecord{Status: StatusInvisible}
	if got := rec.Observable(); got != StatusOffline {
		t.Errorf("Observable() = %s, want offline", got)
	}
	rec.Status = StatusAway
	if got := rec.Observable(); got != StatusAway {
		t.Errorf("Observable() = %s, want away", got)
	}
}

func TestValidStatus(t *testing.T) {
	for _, s := range []Status{StatusOnline, StatusAway, StatusBusy, StatusOffline, StatusInvisible} {
		if !ValidStatus(s) {
			t.Errorf("ValidStatus(%s) = false", s)
		}
	}
	if ValidStatus(Status("lurking")) {
		t.Error(`ValidStatus("lurking") = true`)
	}
}
