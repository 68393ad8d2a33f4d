package domain

import "time"

// Phase is the lifecycle state of a room.
type Phase string

const (
	PhaseWaiting    Phase = "WAITING"
	PhaseCountdown  Phase = "COUNTDOWN"
	PhaseInProgress Phase = "IN_PROGRESS"
	PhaseFinished   Phase = "FINISHED"
	PhaseCancelled  Phase = "CANCELLED"
)

// Joinable reports whether players may still take or give up seats.
func (p Phase) Joinable() bool {
	return p == PhaseWaiting || p == PhaseCountdown
}

// Terminal reports whether the room can no longer change phase.
func (p Phase) Terminal() bool {
	return p == PhaseFinished || p == PhaseCancelled
}

// GameType is the only game this server hosts.
const GameType = "trivia-showdown"

// Room is a read-only snapshot of a room.
type Room struct {
	RoomID           string   `json:"roomId"`
	GameType         string   `json:"gameType"`
	BetAmount        int64    `json:"betAmount"`
	Status           Phase    `json:"status"`
	MinPlayers       int      `json:"minPlayers"`
	MaxPlayers       int      `json:"maxPlayers"`
	CurrentPlayers   int      `json:"currentPlayers"`
	TotalPot         int64    `json:"totalPot"`
	CreatorID        string   `json:"creatorId"`
	Players          []Player `json:"players"`
	CountdownSeconds *int     `json:"countdownSeconds,omitempty"`
}

// Player is a read-only snapshot of a seat.
type Player struct {
	PlayerID    string    `json:"playerId"`
	DisplayName string    `json:"displayName"`
	IsConnected bool      `json:"isConnected"`
	JoinedAt    time.Time `json:"joinedAt"`
	Position    int       `json:"position,omitempty"`
	Score       int       `json:"score,omitempty"`
	Prize       int64     `json:"prize,omitempty"`
}

// RoundStatus is the state of a round's question cycle.
type RoundStatus string

const (
	RoundPending           RoundStatus = "PENDING"
	RoundQuestionActive    RoundStatus = "QUESTION_ACTIVE"
	RoundCollectingResults RoundStatus = "COLLECTING_RESULTS"
	RoundFinished          RoundStatus = "ROUND_FINISHED"
)

// RoundState is the answer to a get-round-state request.
type RoundState struct {
	RoomID               string        `json:"roomId"`
	Status               RoundStatus   `json:"status"`
	CurrentQuestionIndex int           `json:"currentQuestionIndex"`
	TotalQuestions       int           `json:"totalQuestions"`
	QuestionStartedAt    *time.Time    `json:"questionStartedAt,omitempty"`
	PlayerScores         []PlayerScore `json:"playerScores"`
}

// PlayerScore is a running total inside a round.
type PlayerScore struct {
	PlayerID       string `json:"playerId"`
	DisplayName    string `json:"displayName"`
	TotalScore     int    `json:"totalScore"`
	CorrectAnswers int    `json:"correctAnswers"`
}
