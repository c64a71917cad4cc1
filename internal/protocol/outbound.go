package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/webrtc/v4"
)

const (
	TypeError             = "error"
	TypeUpdateUsers       = "update-users"
	TypeJoinBreakout      = "join-breakout-room"
	TypeBreakoutCreated   = "breakout-room-created"
	TypeBreakoutConfirmed = "room-connection-confirmed"
	TypeBroadcastRequest  = "broadcast-request"
	TypeBroadcastEnded    = "broadcast-ended"
	TypeUserDisconnected  = "user-disconnected"
	TypePong              = "pong"
)

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewError(msg string) Error { return Error{Type: TypeError, Message: msg} }

type SignInReply struct {
	Type       string             `json:"type"`
	UserID     domain.UserID      `json:"userId"`
	Username   string             `json:"username"`
	Role       domain.Role        `json:"role"`
	ICEServers []webrtc.ICEServer `json:"iceServers,omitempty"`
}

type WhoAmIReply struct {
	Type     string        `json:"type"`
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
	Role     domain.Role   `json:"role"`
}

type Chat struct {
	Type      string `json:"type"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

type UpdateUsers struct {
	Type  string                `json:"type"`
	Users []core.ParticipantDTO `json:"users"`
}

// BreakoutInvite is pushed to the student (join-breakout-room) and echoed to
// the instructor (breakout-room-created).
type BreakoutInvite struct {
	Type        string            `json:"type"`
	RoomID      domain.BreakoutID `json:"roomId"`
	Instructor  domain.PeerRef    `json:"instructor"`
	Student     domain.PeerRef    `json:"student"`
	BreakoutURL string            `json:"breakoutUrl"`
}

type BreakoutChat struct {
	Type      string            `json:"type"`
	RoomID    domain.BreakoutID `json:"roomId"`
	Sender    string            `json:"sender"`
	Text      string            `json:"text"`
	Timestamp string            `json:"timestamp"`
}

type BreakoutConfirmed struct {
	Type       string            `json:"type"`
	RoomID     domain.BreakoutID `json:"roomId"`
	Instructor domain.PeerRef    `json:"instructor"`
	Student    domain.PeerRef    `json:"student"`
}

type BreakoutEnded struct {
	Type   string            `json:"type"`
	RoomID domain.BreakoutID `json:"roomId"`
}

type BroadcastRequest struct {
	Type           string        `json:"type"`
	SenderID       domain.UserID `json:"senderId"`
	SenderUsername string        `json:"senderUsername"`
}

// PeerEvent is used for broadcast-ended and user-disconnected.
type PeerEvent struct {
	Type     string        `json:"type"`
	SenderID domain.UserID `json:"senderId"`
}

type Pong struct {
	Type string `json:"type"`
}

// Timestamp formats t the way browsers print Date.toISOString.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func Encode(v any) (core.Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return core.Frame(b), nil
}

// WithSender returns raw with its senderId field set to sender. Every other
// field is passed through untouched.
func WithSender(raw json.RawMessage, sender domain.UserID) (core.Frame, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	id, err := json.Marshal(sender)
	if err != nil {
		return nil, err
	}
	obj["senderId"] = id
	return Encode(obj)
}
