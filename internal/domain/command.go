package domain

import "strings"

// Command is a decoded, structurally valid inbound payload.
type Command interface {
	Validate() error
}

// CreateRoom asks to open a new room seated with its creator.
type CreateRoom struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	BetAmount   int64  `json:"betAmount"`
}

func (c *CreateRoom) Validate() error {
	if blank(c.PlayerID) || blank(c.DisplayName) {
		return Wrap(ErrInvalidPayload, "playerId and displayName required")
	}
	if c.BetAmount <= 0 {
		return Wrap(ErrInvalidBet, "bet amount must be positive")
	}
	return nil
}

// JoinRoom asks to take a seat in an existing room.
type JoinRoom struct {
	RoomID      string `json:"roomId"`
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
}

func (c *JoinRoom) Validate() error {
	if blank(c.RoomID) || blank(c.PlayerID) || blank(c.DisplayName) {
		return Wrap(ErrInvalidPayload, "roomId, playerId and displayName required")
	}
	return nil
}

// LeaveRoom gives up a seat before the game starts.
type LeaveRoom struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
}

func (c *LeaveRoom) Validate() error {
	if blank(c.RoomID) || blank(c.PlayerID) {
		return Wrap(ErrInvalidPayload, "roomId and playerId required")
	}
	return nil
}

// ListRooms asks for the joinable rooms.
type ListRooms struct{}

func (c *ListRooms) Validate() error { return nil }

// SubmitAnswer carries a player's choice for the current question.
type SubmitAnswer struct {
	RoomID              string  `json:"roomId"`
	PlayerID            string  `json:"playerId"`
	QuestionID          string  `json:"questionId"`
	OptionID            string  `json:"optionId"`
	ResponseTimeSeconds float64 `json:"responseTimeSeconds"`
}

func (c *SubmitAnswer) Validate() error {
	if blank(c.RoomID) || blank(c.PlayerID) || blank(c.QuestionID) || blank(c.OptionID) {
		return Wrap(ErrInvalidPayload, "roomId, playerId, questionId and optionId required")
	}
	if c.ResponseTimeSeconds < 0 {
		return ErrInvalidResponseTime
	}
	return nil
}

// GetState asks for the running round of a room.
type GetState struct {
	RoomID string `json:"roomId"`
}

func (c *GetState) Validate() error {
	if blank(c.RoomID) {
		return Wrap(ErrInvalidPayload, "roomId required")
	}
	return nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
