package domain

// RoomList is the payload of rooms:list and lobby-wide room:updated events.
type RoomList struct {
	AvailableRooms []Room `json:"availableRooms"`
}

// RoomRef identifies a room in room:deleted and countdown:cancelled.
type RoomRef struct {
	RoomID string `json:"roomId"`
}

// PlayerEvent reports a seat change together with the room after it.
type PlayerEvent struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
	Room     *Room  `json:"room,omitempty"`
}

// CountdownStarted opens the countdown.
type CountdownStarted struct {
	RoomID  string `json:"roomId"`
	Seconds int    `json:"seconds"`
}

// CountdownTick is sent once per elapsed countdown second.
type CountdownTick struct {
	RoomID           string `json:"roomId"`
	SecondsRemaining int    `json:"secondsRemaining"`
}

// GameStarted lists the players who were charged the entry bet.
type GameStarted struct {
	RoomID  string      `json:"roomId"`
	Players []SeatBrief `json:"players"`
	Pot     int64       `json:"pot"`
}

// SeatBrief is the minimal identity of a seated player.
type SeatBrief struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
}

// PlayerAnswered acknowledges an accepted answer without revealing it.
type PlayerAnswered struct {
	RoomID     string `json:"roomId"`
	PlayerID   string `json:"playerId"`
	QuestionID string `json:"questionId"`
}

// QuestionResults closes a question.
type QuestionResults struct {
	QuestionID      string           `json:"questionId"`
	CorrectOptionID string           `json:"correctOptionId"`
	PlayerResults   []QuestionResult `json:"playerResults"`
}

// QuestionResult is one player's outcome for a question.
type QuestionResult struct {
	PlayerID     string  `json:"playerId"`
	DisplayName  string  `json:"displayName"`
	IsCorrect    bool    `json:"isCorrect"`
	PointsEarned int     `json:"pointsEarned"`
	TotalScore   int     `json:"totalScore"`
	ResponseTime float64 `json:"responseTime"`
}

// GameFinished carries the settled ranking.
type GameFinished struct {
	RoomID       string         `json:"roomId"`
	FinalRanking []RankedPlayer `json:"finalRanking"`
	TotalPot     int64          `json:"totalPot"`
}

// RankedPlayer is one entry of the final ranking.
type RankedPlayer struct {
	Position       int     `json:"position"`
	PlayerID       string  `json:"playerId"`
	DisplayName    string  `json:"displayName"`
	FinalScore     int     `json:"finalScore"`
	PrizeWon       int64   `json:"prizeWon"`
	CorrectAnswers int     `json:"correctAnswers"`
	TotalQuestions int     `json:"totalQuestions"`
	Accuracy       float64 `json:"accuracy"`
}
