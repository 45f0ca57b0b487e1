package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Inbound frame types accepted from an authenticated connection.
const (
	TypeJoinChannel    = "join-channel"
	TypeLeaveChannel   = "leave-channel"
	TypeSendMessage    = "send-message"
	TypeTypingStart    = "typing-start"
	TypeTypingStop     = "typing-stop"
	TypeUpdatePresence = "update-presence"
	TypeStartCall      = "start-call"
	TypeJoinCall       = "join-call"
	TypeLeaveCall      = "leave-call"
	TypeWebRTCSignal   = "webrtc-signal"
	TypeReactionAdd    = "reaction-add"
	TypeMarkRead       = "mark-messages-read"
	TypeQualityReport  = "quality-report"
)

// Outbound event names emitted by the core.
const (
	EventNewMessage        = "new_message"
	EventUserJoinedChannel = "user_joined_channel"
	EventUserLeftChannel   = "user_left_channel"
	EventTypingStarted     = "typing_started"
	EventTypingStopped     = "typing_stopped"
	EventPresenceUpdated   = "presence_updated"
	EventPresenceSnapshot  = "presence_snapshot"
	EventCallStarted       = "call_started"
	EventCallCreated       = "call_created"
	EventUserJoinedCall    = "user_joined_call"
	EventUserLeftCall      = "user_left_call"
	EventCallParticipants  = "call_participants"
	EventWebRTCSignal      = "webrtc_signal"
	EventReactionUpdated   = "reaction_updated"
	EventMessagesRead      = "messages_read"
	EventMessagesMarked    = "messages_marked_read"
	EventQualityMetrics    = "quality_metrics_updated"
	EventNotification      = "notification_created"
	EventWorkspaceCreated  = "workspace_created"
	EventWorkspaceUpdated  = "workspace_updated"
	EventWorkspaceDeleted  = "workspace_deleted"
	EventChannelUpdated    = "channel_updated"
	EventChannelDeleted    = "channel_deleted"
	EventCallUpdated       = "call_updated"
	EventIncomingCall      = "incoming_call"
	EventError             = "error"
)

// Frame is the transport envelope for both directions.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound is the closed set of decoded client frames. Every concrete
// payload type lives in this package; the transport decodes exactly
// once at the edge and the router switches on the concrete type.
type Inbound interface {
	inbound()
}

type JoinChannelRequest struct {
	ChannelID string `json:"channel_id"`
}

type LeaveChannelRequest struct {
	ChannelID string `json:"channel_id"`
}

type SendMessageRequest struct {
	ChannelID   string `json:"channel_id"`
	ClientMsgID string `json:"client_msg_id"`
	Body        string `json:"body"`
}

type TypingRequest struct {
	ChannelID string `json:"channel_id"`
	Started   bool   `json:"-"`
}

// UpdatePresenceRequest sets a manual status, or clears the manual
// override when Clear is true.
type UpdatePresenceRequest struct {
	Status Status `json:"status,omitempty"`
	Clear  bool   `json:"clear,omitempty"`
}

type StartCallRequest struct {
	ChannelID string   `json:"channel_id"`
	Kind      CallKind `json:"kind"`
}

type JoinCallRequest struct {
	CallID string `json:"call_id"`
}

type LeaveCallRequest struct {
	CallID string `json:"call_id"`
}

// SignalRequest carries an opaque WebRTC payload (offer/answer/candidate)
// for exactly one target user. The core never inspects Data.
type SignalRequest struct {
	CallID       string          `json:"call_id"`
	TargetUserID string          `json:"target_user_id"`
	Data         json.RawMessage `json:"data"`
}

type ReactionAddRequest struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type MarkReadRequest struct {
	ChannelID string `json:"channel_id"`
	LastSeq   int64  `json:"last_seq"`
}

type QualityReportRequest struct {
	CallID  string          `json:"call_id"`
	Metrics json.RawMessage `json:"metrics"`
}

func (JoinChannelRequest) inbound()    {}
func (LeaveChannelRequest) inbound()   {}
func (SendMessageRequest) inbound()    {}
func (TypingRequest) inbound()         {}
func (UpdatePresenceRequest) inbound() {}
func (StartCallRequest) inbound()      {}
func (JoinCallRequest) inbound()       {}
func (LeaveCallRequest) inbound()      {}
func (SignalRequest) inbound()         {}
func (ReactionAddRequest) inbound()    {}
func (MarkReadRequest) inbound()       {}
func (QualityReportRequest) inbound()  {}

// DecodeInbound parses a raw client frame into its typed payload.
// Unknown types and malformed payloads fail with ErrValidation.
func DecodeInbound(raw []byte) (Inbound, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	decode := func(dst Inbound) (Inbound, error) {
		if len(f.Payload) == 0 {
			return nil, fmt.Errorf("%w: missing payload for %q", ErrValidation, f.Type)
		}
		if err := json.Unmarshal(f.Payload, dst); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return dst, nil
	}
	switch f.Type {
	case TypeJoinChannel:
		return decode(&JoinChannelRequest{})
	case TypeLeaveChannel:
		return decode(&LeaveChannelRequest{})
	case TypeSendMessage:
		return decode(&SendMessageRequest{})
	case TypeTypingStart:
		in, err := decode(&TypingRequest{})
		if err != nil {
			return nil, err
		}
		in.(*TypingRequest).Started = true
		return in, nil
	case TypeTypingStop:
		return decode(&TypingRequest{})
	case TypeUpdatePresence:
		return decode(&UpdatePresenceRequest{})
	case TypeStartCall:
		return decode(&StartCallRequest{})
	case TypeJoinCall:
		return decode(&JoinCallRequest{})
	case TypeLeaveCall:
		return decode(&LeaveCallRequest{})
	case TypeWebRTCSignal:
		return decode(&SignalRequest{})
	case TypeReactionAdd:
		return decode(&ReactionAddRequest{})
	case TypeMarkRead:
		return decode(&MarkReadRequest{})
	case TypeQualityReport:
		return decode(&QualityReportRequest{})
	default:
		return nil, fmt.Errorf("%w: unknown frame type %q", ErrValidation, f.Type)
	}
}

// MessageIngest is the wire form of an accepted message on the ingest
// stream, between the WebSocket edge and the persistence worker.
type MessageIngest struct {
	ChannelID   string    `json:"channel_id"`
	SenderID    string    `json:"sender_id"`
	ClientMsgID string    `json:"client_msg_id"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// Outbound payloads.

type MessageEvent struct {
	ID          string    `json:"id"`
	ChannelID   string    `json:"channel_id"`
	SenderID    string    `json:"sender_id"`
	ClientMsgID string    `json:"client_msg_id,omitempty"`
	Seq         int64     `json:"seq"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

type RoomMemberEvent struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
}

type TypingEvent struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
}

type PresenceEvent struct {
	UserID     string    `json:"user_id"`
	Status     Status    `json:"status"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// PresenceSnapshot is pushed to a connection right after admission so
// clients not yet joined to a shared room still see a full roster.
type PresenceSnapshot struct {
	Users []PresenceEvent `json:"users"`
}

type CallEvent struct {
	CallID       string   `json:"call_id"`
	ChannelID    string   `json:"channel_id"`
	Kind         CallKind `json:"kind"`
	InitiatorID  string   `json:"initiator_id,omitempty"`
	UserID       string   `json:"user_id,omitempty"`
	Participants []string `json:"participants,omitempty"`
}

type SignalEvent struct {
	CallID     string          `json:"call_id"`
	FromUserID string          `json:"from_user_id"`
	Data       json.RawMessage `json:"data"`
}

type ReactionEvent struct {
	MessageID string   `json:"message_id"`
	ChannelID string   `json:"channel_id"`
	Emoji     string   `json:"emoji"`
	Count     int      `json:"count"`
	UserIDs   []string `json:"user_ids"`
}

type ReadEvent struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	LastSeq   int64  `json:"last_seq"`
}

type QualityEvent struct {
	CallID  string          `json:"call_id"`
	UserID  string          `json:"user_id"`
	Metrics json.RawMessage `json:"metrics"`
}

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EncodeEvent serializes one outbound event envelope. Fan-out paths
// call it once per event, not once per connection.
func EncodeEvent(event string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: event, Payload: body})
}
