package domain

import (
	"encoding/json"
	"fmt"
)

// Inbound message types.
const (
	MsgCreateRoom   = "room:create"
	MsgJoinRoom     = "room:join"
	MsgLeaveRoom    = "room:leave"
	MsgListRooms    = "rooms:list"
	MsgSubmitAnswer = "player:answer"
	MsgGetState     = "game:getState"
)

// Outbound message types.
const (
	MsgRoomCreated        = "room:created"
	MsgRoomUpdated        = "room:updated"
	MsgRoomDeleted        = "room:deleted"
	MsgPlayerJoined       = "player:joined"
	MsgPlayerLeft         = "player:left"
	MsgPlayerDisconnected = "player:disconnected"
	MsgPlayerAnswered     = "player:answered"
	MsgCountdownStarted   = "countdown:started"
	MsgCountdownTick      = "countdown:tick"
	MsgCountdownCancelled = "countdown:cancelled"
	MsgGameStarted        = "game:started"
	MsgQuestionDisplayed  = "question:displayed"
	MsgQuestionResults    = "question:results"
	MsgGameFinished       = "game:finished"
	MsgGameState          = "game:state"
	MsgError              = "error"
)

// Envelope is the raw form of every inbound frame.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Event is an outbound frame.
type Event[T any] struct {
	Type string `json:"type"`
	Data T      `json:"data"`
}

// ErrorMessage reports an error to the client.
type ErrorMessage struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Encode serializes a value to JSON bytes.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// EncodeEvent wraps data in an Event envelope and serializes it.
func EncodeEvent[T any](typ string, data T) ([]byte, error) {
	return json.Marshal(Event[T]{Type: typ, Data: data})
}

// EncodeError serializes err as an error event. Errors outside the taxonomy
// are reported with a generic message.
func EncodeError(err error) ([]byte, error) {
	e := AsError(err)
	return EncodeEvent(MsgError, ErrorMessage{Message: e.Message, Code: e.Code})
}

// DecodeEnvelope parses an inbound frame.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, Wrap(ErrInvalidPayload, "invalid JSON")
	}
	if env.Type == "" {
		return env, Wrap(ErrInvalidPayload, "message type required")
	}
	return env, nil
}

// DecodeCommand parses and validates the payload of an inbound frame.
func DecodeCommand(env Envelope) (Command, error) {
	var cmd Command
	switch env.Type {
	case MsgCreateRoom:
		cmd = &CreateRoom{}
	case MsgJoinRoom:
		cmd = &JoinRoom{}
	case MsgLeaveRoom:
		cmd = &LeaveRoom{}
	case MsgListRooms:
		return &ListRooms{}, nil
	case MsgSubmitAnswer:
		cmd = &SubmitAnswer{}
	case MsgGetState:
		cmd = &GetState{}
	default:
		return nil, Wrap(ErrInvalidPayload, fmt.Sprintf("unknown message type: %s", env.Type))
	}
	if len(env.Data) == 0 {
		return nil, Wrap(ErrInvalidPayload, "data required")
	}
	if err := json.Unmarshal(env.Data, cmd); err != nil {
		return nil, Wrap(ErrInvalidPayload, "invalid payload")
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return cmd, nil
}
