package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/devaloi/wagertrivia/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db             *sql.DB
	initialBalance int64
}

// NewSQLite opens or creates a SQLite database at the given path. Players
// seen for the first time start with initialBalance coins.
// Use ":memory:" for an in-memory database.
func NewSQLite(path string, initialBalance int64) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer at a time; an in-memory database also lives on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, initialBalance: initialBalance}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS players (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			coins INTEGER NOT NULL CHECK (coins >= 0),
			created_at DATETIME NOT NULL
		);
		CREATE TABLE IF NOT EXISTS game_types (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL
		);
		CREATE TABLE IF NOT EXISTS rooms (
			id TEXT PRIMARY KEY,
			game_type_id TEXT NOT NULL REFERENCES game_types(id),
			creator_id TEXT NOT NULL,
			bet_amount INTEGER NOT NULL,
			min_players INTEGER NOT NULL,
			max_players INTEGER NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			countdown_at DATETIME,
			started_at DATETIME,
			finished_at DATETIME
		);
		CREATE TABLE IF NOT EXISTS room_players (
			room_id TEXT NOT NULL REFERENCES rooms(id),
			player_id TEXT NOT NULL REFERENCES players(id),
			joined_at DATETIME NOT NULL,
			left_at DATETIME,
			PRIMARY KEY (room_id, player_id)
		);
		CREATE TABLE IF NOT EXISTS game_sessions (
			id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL REFERENCES rooms(id),
			status TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			finished_at DATETIME
		);
		CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			player_id TEXT NOT NULL REFERENCES players(id),
			room_id TEXT NOT NULL,
			type TEXT NOT NULL,
			amount INTEGER NOT NULL,
			balance_before INTEGER NOT NULL,
			balance_after INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_player ON transactions(player_id, created_at);
		CREATE TABLE IF NOT EXISTS game_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			room_id TEXT NOT NULL,
			player_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			score INTEGER NOT NULL,
			correct_answers INTEGER NOT NULL,
			total_questions INTEGER NOT NULL,
			bet_amount INTEGER NOT NULL,
			prize_won INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		);
		CREATE TABLE IF NOT EXISTS player_stats (
			player_id TEXT PRIMARY KEY,
			games_played INTEGER NOT NULL DEFAULT 0,
			games_won INTEGER NOT NULL DEFAULT 0,
			total_score INTEGER NOT NULL DEFAULT 0,
			correct_answers INTEGER NOT NULL DEFAULT 0,
			total_questions INTEGER NOT NULL DEFAULT 0,
			coins_won INTEGER NOT NULL DEFAULT 0,
			coins_lost INTEGER NOT NULL DEFAULT 0
		);
	`)
	return err
}

// EnsureGameType returns the id of the trivia game type, creating it once.
func (s *SQLiteStore) EnsureGameType(ctx context.Context) (string, error) {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO game_types (id, name, created_at) VALUES (?, ?, ?) ON CONFLICT(name) DO NOTHING",
		uuid.NewString(), domain.GameType, time.Now().UTC(),
	)
	if err != nil {
		return "", err
	}
	var id string
	err = s.db.QueryRowContext(ctx, "SELECT id FROM game_types WHERE name = ?", domain.GameType).Scan(&id)
	return id, err
}

// CreateRoom inserts a room in WAITING status.
func (s *SQLiteStore) CreateRoom(ctx context.Context, room RoomRecord) error {
	created := room.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (id, game_type_id, creator_id, bet_amount, min_players, max_players, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, room.RoomID, room.GameTypeID, room.CreatorID, room.BetAmount, room.MinPlayers, room.MaxPlayers, domain.PhaseWaiting, created)
	return err
}

// AddPlayer provisions the player if needed and seats them in the room.
func (s *SQLiteStore) AddPlayer(ctx context.Context, roomID, playerID, displayName string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO players (id, display_name, coins, created_at) VALUES (?, ?, ?, ?) ON CONFLICT(id) DO NOTHING",
			playerID, displayName, s.initialBalance, now,
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO room_players (room_id, player_id, joined_at) VALUES (?, ?, ?)
			ON CONFLICT(room_id, player_id) DO UPDATE SET left_at = NULL
		`, roomID, playerID, now)
		return err
	})
}

// RemovePlayer stamps the seat as vacated.
func (s *SQLiteStore) RemovePlayer(ctx context.Context, roomID, playerID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE room_players SET left_at = ? WHERE room_id = ? AND player_id = ?",
		time.Now().UTC(), roomID, playerID,
	)
	return err
}

// UpdateRoomStatus sets the room status and stamps the matching timestamp.
func (s *SQLiteStore) UpdateRoomStatus(ctx context.Context, roomID string, status domain.Phase) error {
	query := "UPDATE rooms SET status = ? WHERE id = ?"
	args := []any{status, roomID}
	if col := statusColumn(status); col != "" {
		query = fmt.Sprintf("UPDATE rooms SET status = ?, %s = ? WHERE id = ?", col)
		args = []any{status, time.Now().UTC(), roomID}
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return expectRow(res, roomID)
}

// CreateGameSession opens an IN_PROGRESS session for the room.
func (s *SQLiteStore) CreateGameSession(ctx context.Context, roomID string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO game_sessions (id, room_id, status, started_at) VALUES (?, ?, ?, ?)",
		id, roomID, domain.PhaseInProgress, time.Now().UTC(),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// FinishGameSession closes a session.
func (s *SQLiteStore) FinishGameSession(ctx context.Context, sessionID string, status domain.Phase) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE game_sessions SET status = ?, finished_at = ? WHERE id = ?",
		status, time.Now().UTC(), sessionID,
	)
	if err != nil {
		return err
	}
	return expectRow(res, sessionID)
}

// DebitBets checks every balance first and only then debits, all inside one transaction.
func (s *SQLiteStore) DebitBets(ctx context.Context, roomID string, playerIDs []string, amount int64) ([]Transaction, error) {
	var txs []Transaction
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range playerIDs {
			coins, err := sqliteCoins(ctx, tx, id)
			if err != nil {
				return err
			}
			if coins < amount {
				return domain.Wrap(domain.ErrInsufficientFunds, fmt.Sprintf("player %s has insufficient funds", id))
			}
		}
		for _, id := range playerIDs {
			t, err := sqliteApply(ctx, tx, roomID, id, TxBet, -amount)
			if err != nil {
				return err
			}
			txs = append(txs, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// RefundBets credits amount back to every player.
func (s *SQLiteStore) RefundBets(ctx context.Context, roomID string, playerIDs []string, amount int64) ([]Transaction, error) {
	var txs []Transaction
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range playerIDs {
			t, err := sqliteApply(ctx, tx, roomID, id, TxRefund, amount)
			if err != nil {
				return err
			}
			txs = append(txs, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// DistributeRewards credits every non-zero reward.
func (s *SQLiteStore) DistributeRewards(ctx context.Context, roomID string, rewards []Reward) ([]Transaction, error) {
	var txs []Transaction
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range rewards {
			if r.Amount <= 0 {
				continue
			}
			t, err := sqliteApply(ctx, tx, roomID, r.PlayerID, TxWin, r.Amount)
			if err != nil {
				return err
			}
			txs = append(txs, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// RecordGameHistory inserts all entries in one transaction.
func (s *SQLiteStore) RecordGameHistory(ctx context.Context, entries []HistoryEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		for _, e := range entries {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO game_history (session_id, room_id, player_id, position, score, correct_answers, total_questions, bet_amount, prize_won, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, e.SessionID, e.RoomID, e.PlayerID, e.Position, e.Score, e.CorrectAnswers, e.TotalQuestions, e.BetAmount, e.PrizeWon, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdatePlayerStats upserts the player's statistics row.
func (s *SQLiteStore) UpdatePlayerStats(ctx context.Context, playerID string, d StatsDelta) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO player_stats (player_id, games_played, games_won, total_score, correct_answers, total_questions, coins_won, coins_lost)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(player_id) DO UPDATE SET
			games_played = games_played + excluded.games_played,
			games_won = games_won + excluded.games_won,
			total_score = total_score + excluded.total_score,
			correct_answers = correct_answers + excluded.correct_answers,
			total_questions = total_questions + excluded.total_questions,
			coins_won = coins_won + excluded.coins_won,
			coins_lost = coins_lost + excluded.coins_lost
	`, playerID, d.GamesPlayed, d.GamesWon, d.TotalScore, d.CorrectAnswers, d.TotalQuestions, d.CoinsWon, d.CoinsLost)
	return err
}

// Balance returns the player's coins.
func (s *SQLiteStore) Balance(ctx context.Context, playerID string) (int64, error) {
	var coins int64
	err := s.db.QueryRowContext(ctx, "SELECT coins FROM players WHERE id = ?", playerID).Scan(&coins)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("player %s: %w", playerID, ErrNotFound)
	}
	return coins, err
}

// Transactions returns the player's ledger, oldest first.
func (s *SQLiteStore) Transactions(ctx context.Context, playerID string) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, player_id, room_id, type, amount, balance_before, balance_after, created_at
		FROM transactions
		WHERE player_id = ?
		ORDER BY rowid
	`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.PlayerID, &t.RoomID, &t.Type, &t.Amount, &t.BalanceBefore, &t.BalanceAfter, &t.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func sqliteCoins(ctx context.Context, tx *sql.Tx, playerID string) (int64, error) {
	var coins int64
	err := tx.QueryRowContext(ctx, "SELECT coins FROM players WHERE id = ?", playerID).Scan(&coins)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("player %s: %w", playerID, ErrNotFound)
	}
	return coins, err
}

// sqliteApply moves delta coins on the player's balance and records the entry.
func sqliteApply(ctx context.Context, tx *sql.Tx, roomID, playerID string, typ TxType, delta int64) (Transaction, error) {
	before, err := sqliteCoins(ctx, tx, playerID)
	if err != nil {
		return Transaction{}, err
	}
	t := newTransaction(roomID, playerID, typ, before, delta)
	if _, err := tx.ExecContext(ctx, "UPDATE players SET coins = ? WHERE id = ?", t.BalanceAfter, playerID); err != nil {
		return Transaction{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, player_id, room_id, type, amount, balance_before, balance_after, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.PlayerID, t.RoomID, t.Type, t.Amount, t.BalanceBefore, t.BalanceAfter, t.CreatedAt); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

func newTransaction(roomID, playerID string, typ TxType, before, delta int64) Transaction {
	amount := delta
	if amount < 0 {
		amount = -amount
	}
	return Transaction{
		ID:            uuid.NewString(),
		PlayerID:      playerID,
		RoomID:        roomID,
		Type:          typ,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  before + delta,
		CreatedAt:     time.Now().UTC(),
	}
}

func statusColumn(status domain.Phase) string {
	switch status {
	case domain.PhaseCountdown:
		return "countdown_at"
	case domain.PhaseInProgress:
		return "started_at"
	case domain.PhaseFinished, domain.PhaseCancelled:
		return "finished_at"
	}
	return ""
}

func expectRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}
