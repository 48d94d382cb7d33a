package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"voice-rooms/internal/store"
)

// Wire tags
const (
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
	TypeJoin         = "join"
	TypeJoinVoice    = "join_voice"
	TypeLeaveVoice   = "leave_voice"
	TypeTyping       = "typing"

	// TypeUnknown stands in for every unrecognised tag so metric labels stay bounded
	TypeUnknown = "unknown"

	TypeRoomInfo        = "room_info"
	TypeUserJoined      = "user_joined"
	TypeUserLeft        = "user_left"
	TypeUserVoiceUpdate = "user_voice_update"
	TypeUserTyping      = "user_typing"
	TypeNewMessage      = "new_message"
)

// Event is one decoded inbound frame
type Event interface {
	Type() string
}

// SignalEvent is an offer, answer or ICE candidate. Raw is the whole frame,
// relayed as-is.
type SignalEvent struct {
	Kind string
	Raw  []byte
}

type JoinEvent struct {
	RoomID string
}

type VoiceEvent struct {
	InVoice bool
}

type TypingEvent struct {
	IsTyping bool
}

// UnknownEvent carries any tag we don't handle, including a missing one.
// Kind is client-supplied; Type() never returns it.
type UnknownEvent struct {
	Kind string
}

func (e SignalEvent) Type() string { return e.Kind }
func (JoinEvent) Type() string     { return TypeJoin }
func (TypingEvent) Type() string   { return TypeTyping }
func (UnknownEvent) Type() string  { return TypeUnknown }

func (e VoiceEvent) Type() string {
	if e.InVoice {
		return TypeJoinVoice
	}
	return TypeLeaveVoice
}

// Decode parses a frame into its Event variant. Only frames that are not a
// JSON object with decodable fields fail.
func Decode(data []byte) (Event, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch env.Type {
	case TypeOffer, TypeAnswer, TypeICECandidate:
		return SignalEvent{Kind: env.Type, Raw: data}, nil

	case TypeJoin:
		var v struct {
			RoomID string `json:"room_id"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return JoinEvent{RoomID: v.RoomID}, nil

	case TypeJoinVoice:
		return VoiceEvent{InVoice: true}, nil
	case TypeLeaveVoice:
		return VoiceEvent{InVoice: false}, nil

	case TypeTyping:
		var v struct {
			IsTyping bool `json:"is_typing"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return TypingEvent{IsTyping: v.IsTyping}, nil

	default:
		return UnknownEvent{Kind: env.Type}, nil
	}
}

// Outbound messages

// RoomView is a room as clients see it: the persisted record when there is
// one, plus live presence
type RoomView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	ActiveUsers int        `json:"active_users"`
	Users       []UserInfo `json:"users"`
}

type RoomInfoMsg struct {
	Type     string          `json:"type"`
	Data     RoomView        `json:"data"`
	Messages []store.Message `json:"messages"`
}

type UserJoinedMsg struct {
	Type       string   `json:"type"`
	RoomID     string   `json:"room_id"`
	User       UserInfo `json:"user"`
	TotalUsers int      `json:"total_users"`
}

type UserLeftMsg struct {
	Type       string   `json:"type"`
	RoomID     string   `json:"room_id"`
	User       UserInfo `json:"user"`
	TotalUsers int      `json:"total_users"`
}

type UserVoiceUpdateMsg struct {
	Type      string `json:"type"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	IsInVoice bool   `json:"is_in_voice"`
}

type UserTypingMsg struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

type NewMessageMsg struct {
	Type    string        `json:"type"`
	Message store.Message `json:"message"`
}
