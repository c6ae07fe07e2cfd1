// Package protocol defines the WebSocket message envelope for call
// signaling. Sender identity never travels in a payload; the transport
// stamps the authenticated user on every inbound message.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/slganesh1/lume-telehealth/pkg/constants"
)

// MessageType identifies websocket payload variants.
type MessageType string

// Client → server
const (
	TypeJoinCall        MessageType = "join_call"
	TypeLeaveCall       MessageType = "leave_call"
	TypeToggleAudio     MessageType = "toggle_audio"
	TypeToggleVideo     MessageType = "toggle_video"
	TypeChatMessage     MessageType = "chat_message"
	TypeSignalOffer     MessageType = "signal_offer"
	TypeSignalAnswer    MessageType = "signal_answer"
	TypeSignalCandidate MessageType = "signal_candidate"
)

// Server → client
const (
	TypeCallJoined        MessageType = "call_joined"
	TypeParticipantJoined MessageType = "participant_joined"
	TypeParticipantLeft   MessageType = "participant_left"
	TypeAudioToggled      MessageType = "audio_toggled"
	TypeVideoToggled      MessageType = "video_toggled"
	TypeError             MessageType = "error"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// IsSignal reports whether t is one of the three relayed signaling types.
func IsSignal(t MessageType) bool {
	return t == TypeSignalOffer || t == TypeSignalAnswer || t == TypeSignalCandidate
}

// SignalKind returns the short kind label for a signaling type, for logs
// and metrics.
func SignalKind(t MessageType) string {
	switch t {
	case TypeSignalOffer:
		return "offer"
	case TypeSignalAnswer:
		return "answer"
	case TypeSignalCandidate:
		return "candidate"
	default:
		return "unknown"
	}
}

// Inbound payloads

type JoinCall struct {
	Type   MessageType `json:"type"`
	RoomID string      `json:"room_id"`
	Role   string      `json:"role"`
}

type LeaveCall struct {
	Type   MessageType `json:"type"`
	RoomID string      `json:"room_id"`
}

type ToggleAudio struct {
	Type    MessageType `json:"type"`
	RoomID  string      `json:"room_id"`
	Enabled bool        `json:"enabled"`
}

type ToggleVideo struct {
	Type    MessageType `json:"type"`
	RoomID  string      `json:"room_id"`
	Enabled bool        `json:"enabled"`
}

// ChatSend is the inbound half of chat_message.
type ChatSend struct {
	Type   MessageType `json:"type"`
	RoomID string      `json:"room_id"`
	Body   string      `json:"body"`
}

// Signal covers signal_offer, signal_answer and signal_candidate. The
// payload is an opaque SDP or ICE blob and is relayed without inspection.
type Signal struct {
	Type     MessageType     `json:"type"`
	RoomID   string          `json:"room_id"`
	ToUserID uuid.UUID       `json:"to_user_id"`
	Payload  json.RawMessage `json:"payload"`
}

// Outbound payloads

// ParticipantInfo is the roster entry sent in call_joined snapshots.
type ParticipantInfo struct {
	UserID       uuid.UUID `json:"user_id"`
	Role         string    `json:"role"`
	AudioEnabled bool      `json:"audio_enabled"`
	VideoEnabled bool      `json:"video_enabled"`
	JoinedAt     time.Time `json:"joined_at"`
}

type CallJoined struct {
	Type         MessageType       `json:"type"`
	RoomID       string            `json:"room_id"`
	Timestamp    time.Time         `json:"timestamp"`
	Participants []ParticipantInfo `json:"participants"`
}

type ParticipantJoined struct {
	Type             MessageType `json:"type"`
	RoomID           string      `json:"room_id"`
	Timestamp        time.Time   `json:"timestamp"`
	UserID           uuid.UUID   `json:"user_id"`
	Role             string      `json:"role"`
	ParticipantCount int         `json:"participant_count"`
}

type ParticipantLeft struct {
	Type             MessageType `json:"type"`
	RoomID           string      `json:"room_id"`
	Timestamp        time.Time   `json:"timestamp"`
	UserID           uuid.UUID   `json:"user_id"`
	ParticipantCount int         `json:"participant_count"`
}

// MediaToggled covers audio_toggled and video_toggled.
type MediaToggled struct {
	Type      MessageType `json:"type"`
	RoomID    string      `json:"room_id"`
	Timestamp time.Time   `json:"timestamp"`
	UserID    uuid.UUID   `json:"user_id"`
	Enabled   bool        `json:"enabled"`
}

// ChatBroadcast is the outbound half of chat_message, carrying the
// store-assigned id and timestamp.
type ChatBroadcast struct {
	Type      MessageType `json:"type"`
	RoomID    string      `json:"room_id"`
	Timestamp time.Time   `json:"timestamp"`
	MessageID uuid.UUID   `json:"message_id"`
	SenderID  uuid.UUID   `json:"sender_id"`
	Body      string      `json:"body"`
	SentAt    time.Time   `json:"sent_at"`
}

// SignalRelay is the outbound half of the three signaling types; Type is
// preserved from the inbound message.
type SignalRelay struct {
	Type       MessageType     `json:"type"`
	RoomID     string          `json:"room_id"`
	Timestamp  time.Time       `json:"timestamp"`
	FromUserID uuid.UUID       `json:"from_user_id"`
	Payload    json.RawMessage `json:"payload"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	RoomID    string      `json:"room_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Code      string      `json:"code"`
	Message   string      `json:"message"`
}

// ParseClientMessage validates a raw inbound frame and returns the typed
// message. Unknown types and structurally invalid messages are rejected;
// the caller answers with an error frame, never a disconnect.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeJoinCall:
		var msg JoinCall
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Role != "patient" && msg.Role != "clinician" {
			return nil, errors.New("invalid join_call: role must be patient or clinician")
		}
		return msg, nil
	case TypeLeaveCall:
		var msg LeaveCall
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeToggleAudio:
		var msg ToggleAudio
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeToggleVideo:
		var msg ToggleVideo
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeChatMessage:
		var msg ChatSend
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Body == "" {
			return nil, errors.New("invalid chat_message: empty body")
		}
		if len(msg.Body) > constants.MaxChatBodyLength {
			return nil, fmt.Errorf("invalid chat_message: body exceeds %d bytes", constants.MaxChatBodyLength)
		}
		return msg, nil
	case TypeSignalOffer, TypeSignalAnswer, TypeSignalCandidate:
		var msg Signal
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.ToUserID == uuid.Nil {
			return nil, errors.New("invalid signal: missing to_user_id")
		}
		if len(msg.Payload) == 0 {
			return nil, errors.New("invalid signal: empty payload")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
