package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Huddle/internal/domain"
)

var (
	ErrMalformed    = errors.New("invalid message format")
	ErrMissingField = errors.New("missing required field")
)

type Kind string

const (
	KindSignIn         Kind = "sign-in"
	KindSendMessage    Kind = "send-message"
	KindOffer          Kind = "offer"
	KindAnswer         Kind = "answer"
	KindICECandidate   Kind = "ice-candidate"
	KindHangUp         Kind = "hang-up"
	KindCreateBreakout Kind = "create-breakout-room"
	KindStartBroadcast Kind = "start-broadcast"
	KindStopBroadcast  Kind = "stop-broadcast"
	KindPing           Kind = "ping"
	KindWhoAmI         Kind = "whoami"

	KindBreakoutMessage Kind = "breakout-message"
	KindBreakoutInfo    Kind = "breakout-room-info"
	KindLeaveBreakout   Kind = "leave-breakout-room"
	KindEndBreakout     Kind = "end-breakout-room"
)

// Request is one decoded inbound message. The set of implementations is
// closed: only this package can add variants.
type Request interface {
	Kind() Kind
	request()
}

type SignIn struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type SendMessage struct {
	Text string `json:"text"`
}

// Signal is an offer, answer or ICE candidate. Raw is the complete original
// object; it is forwarded without interpretation.
type Signal struct {
	Type        Kind
	RecipientID domain.UserID
	Raw         json.RawMessage
}

type HangUp struct {
	RecipientID domain.UserID
	Raw         json.RawMessage
}

type CreateBreakout struct {
	RoomID     string         `json:"roomId"`
	Instructor domain.PeerRef `json:"instructor"`
	Student    domain.PeerRef `json:"student"`
}

type BreakoutMessage struct {
	RoomID domain.BreakoutID `json:"roomId"`
	Sender string            `json:"sender"`
	Text   string            `json:"text"`
}

type BreakoutInfo struct {
	RoomID domain.BreakoutID `json:"roomId"`
}

type LeaveBreakout struct {
	RoomID domain.BreakoutID `json:"roomId"`
}

type EndBreakout struct {
	RoomID domain.BreakoutID `json:"roomId"`
}

type StartBroadcast struct{}

type StopBroadcast struct{}

type Ping struct{}

type WhoAmI struct{}

// Unknown carries a type this server does not handle.
type Unknown struct {
	Type string
}

func (SignIn) Kind() Kind          { return KindSignIn }
func (SendMessage) Kind() Kind     { return KindSendMessage }
func (s Signal) Kind() Kind        { return s.Type }
func (HangUp) Kind() Kind          { return KindHangUp }
func (CreateBreakout) Kind() Kind  { return KindCreateBreakout }
func (BreakoutMessage) Kind() Kind { return KindBreakoutMessage }
func (BreakoutInfo) Kind() Kind    { return KindBreakoutInfo }
func (LeaveBreakout) Kind() Kind   { return KindLeaveBreakout }
func (EndBreakout) Kind() Kind     { return KindEndBreakout }
func (StartBroadcast) Kind() Kind  { return KindStartBroadcast }
func (StopBroadcast) Kind() Kind   { return KindStopBroadcast }
func (Ping) Kind() Kind            { return KindPing }
func (WhoAmI) Kind() Kind          { return KindWhoAmI }
func (u Unknown) Kind() Kind       { return Kind(u.Type) }

func (SignIn) request()          {}
func (SendMessage) request()     {}
func (Signal) request()          {}
func (HangUp) request()          {}
func (CreateBreakout) request()  {}
func (BreakoutMessage) request() {}
func (BreakoutInfo) request()    {}
func (LeaveBreakout) request()   {}
func (EndBreakout) request()     {}
func (StartBroadcast) request()  {}
func (StopBroadcast) request()   {}
func (Ping) request()            {}
func (WhoAmI) request()          {}
func (Unknown) request()         {}

type envelope struct {
	Type        string        `json:"type"`
	RecipientID domain.UserID `json:"recipientId"`
}

// Decode parses one frame. Errors wrap ErrMalformed or ErrMissingField.
func Decode(data []byte) (Request, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: type", ErrMissingField)
	}

	switch k := Kind(env.Type); k {
	case KindSignIn:
		return decodeInto[SignIn](data)
	case KindSendMessage:
		return decodeInto[SendMessage](data)
	case KindOffer, KindAnswer, KindICECandidate:
		if env.RecipientID == "" {
			return nil, fmt.Errorf("%w: recipientId", ErrMissingField)
		}
		return Signal{Type: k, RecipientID: env.RecipientID, Raw: json.RawMessage(data)}, nil
	case KindHangUp:
		if env.RecipientID == "" {
			return nil, fmt.Errorf("%w: recipientId", ErrMissingField)
		}
		return HangUp{RecipientID: env.RecipientID, Raw: json.RawMessage(data)}, nil
	case KindCreateBreakout:
		req, err := decodeInto[CreateBreakout](data)
		if err != nil {
			return nil, err
		}
		if req.Student.ID == "" {
			return nil, fmt.Errorf("%w: student.id", ErrMissingField)
		}
		return req, nil
	case KindBreakoutMessage:
		return decodeInto[BreakoutMessage](data)
	case KindBreakoutInfo:
		return decodeInto[BreakoutInfo](data)
	case KindLeaveBreakout:
		return decodeInto[LeaveBreakout](data)
	case KindEndBreakout:
		return decodeInto[EndBreakout](data)
	case KindStartBroadcast:
		return StartBroadcast{}, nil
	case KindStopBroadcast:
		return StopBroadcast{}, nil
	case KindPing:
		return Ping{}, nil
	case KindWhoAmI:
		return WhoAmI{}, nil
	}
	return Unknown{Type: env.Type}, nil
}

func decodeInto[T Request](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, nil
}
