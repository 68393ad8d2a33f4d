package store

import (
	"context"
	"errors"
	"time"

	"github.com/devaloi/wagertrivia/internal/domain"
)

// ErrNotFound is returned by read helpers for unknown players.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence and ledger collaborator of the hub. Every
// balance-changing method runs in a single database transaction.
type Store interface {
	// EnsureGameType creates the trivia game type if missing and returns its id.
	EnsureGameType(ctx context.Context) (string, error)
	// CreateRoom mirrors a newly created room.
	CreateRoom(ctx context.Context, room RoomRecord) error
	// AddPlayer seats a player in a mirrored room, provisioning the player
	// account on first sight. Seating the same player twice is a no-op.
	AddPlayer(ctx context.Context, roomID, playerID, displayName string) error
	// RemovePlayer marks a seat as vacated.
	RemovePlayer(ctx context.Context, roomID, playerID string) error
	// UpdateRoomStatus records a phase change.
	UpdateRoomStatus(ctx context.Context, roomID string, status domain.Phase) error

	// CreateGameSession opens the session record of a round.
	CreateGameSession(ctx context.Context, roomID string) (string, error)
	// FinishGameSession closes a session with a terminal status.
	FinishGameSession(ctx context.Context, sessionID string, status domain.Phase) error

	// DebitBets charges amount to every player or to none of them. It fails
	// with domain.ErrInsufficientFunds if any balance is short.
	DebitBets(ctx context.Context, roomID string, playerIDs []string, amount int64) ([]Transaction, error)
	// RefundBets credits amount back to every player.
	RefundBets(ctx context.Context, roomID string, playerIDs []string, amount int64) ([]Transaction, error)
	// DistributeRewards credits every non-zero reward.
	DistributeRewards(ctx context.Context, roomID string, rewards []Reward) ([]Transaction, error)
	// RecordGameHistory appends the final result of each player.
	RecordGameHistory(ctx context.Context, entries []HistoryEntry) error
	// UpdatePlayerStats adds delta to a player's lifetime statistics.
	UpdatePlayerStats(ctx context.Context, playerID string, delta StatsDelta) error

	// Balance returns a player's current coins.
	Balance(ctx context.Context, playerID string) (int64, error)
	// Transactions returns a player's ledger, oldest first.
	Transactions(ctx context.Context, playerID string) ([]Transaction, error)

	// Close releases any resources held by the store.
	Close() error
}

// RoomRecord is the persisted form of a room.
type RoomRecord struct {
	RoomID     string
	GameTypeID string
	CreatorID  string
	BetAmount  int64
	MinPlayers int
	MaxPlayers int
	CreatedAt  time.Time
}

// TxType classifies a ledger entry.
type TxType string

const (
	TxBet    TxType = "BET"
	TxWin    TxType = "WIN"
	TxRefund TxType = "REFUND"
)

// Transaction is one ledger entry.
type Transaction struct {
	ID            string
	PlayerID      string
	RoomID        string
	Type          TxType
	Amount        int64
	BalanceBefore int64
	BalanceAfter  int64
	CreatedAt     time.Time
}

// Reward is the prize of one ranked player.
type Reward struct {
	PlayerID string
	Amount   int64
	Position int
}

// HistoryEntry is one player's line in a finished game.
type HistoryEntry struct {
	SessionID      string
	RoomID         string
	PlayerID       string
	Position       int
	Score          int
	CorrectAnswers int
	TotalQuestions int
	BetAmount      int64
	PrizeWon       int64
}

// StatsDelta is added to a player's lifetime statistics.
type StatsDelta struct {
	GamesPlayed    int
	GamesWon       int
	TotalScore     int
	CorrectAnswers int
	TotalQuestions int
	CoinsWon       int64
	CoinsLost      int64
}
