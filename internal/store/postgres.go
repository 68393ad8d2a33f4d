package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devaloi/wagertrivia/internal/domain"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	pool           *pgxpool.Pool
	initialBalance int64
}

// NewPostgres connects to the database at url and creates the schema if missing.
func NewPostgres(ctx context.Context, url string, initialBalance int64) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool, initialBalance: initialBalance}, nil
}

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS players (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		coins BIGINT NOT NULL CHECK (coins >= 0),
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS game_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		game_type_id TEXT NOT NULL REFERENCES game_types(id),
		creator_id TEXT NOT NULL,
		bet_amount BIGINT NOT NULL,
		min_players INT NOT NULL,
		max_players INT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		countdown_at TIMESTAMPTZ,
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ
	);
	CREATE TABLE IF NOT EXISTS room_players (
		room_id TEXT NOT NULL REFERENCES rooms(id),
		player_id TEXT NOT NULL REFERENCES players(id),
		joined_at TIMESTAMPTZ NOT NULL,
		left_at TIMESTAMPTZ,
		PRIMARY KEY (room_id, player_id)
	);
	CREATE TABLE IF NOT EXISTS game_sessions (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL REFERENCES rooms(id),
		status TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ
	);
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		seq BIGSERIAL,
		player_id TEXT NOT NULL REFERENCES players(id),
		room_id TEXT NOT NULL,
		type TEXT NOT NULL,
		amount BIGINT NOT NULL,
		balance_before BIGINT NOT NULL,
		balance_after BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_player ON transactions(player_id, seq);
	CREATE TABLE IF NOT EXISTS game_history (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL,
		room_id TEXT NOT NULL,
		player_id TEXT NOT NULL,
		position INT NOT NULL,
		score INT NOT NULL,
		correct_answers INT NOT NULL,
		total_questions INT NOT NULL,
		bet_amount BIGINT NOT NULL,
		prize_won BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS player_stats (
		player_id TEXT PRIMARY KEY,
		games_played INT NOT NULL DEFAULT 0,
		games_won INT NOT NULL DEFAULT 0,
		total_score BIGINT NOT NULL DEFAULT 0,
		correct_answers INT NOT NULL DEFAULT 0,
		total_questions INT NOT NULL DEFAULT 0,
		coins_won BIGINT NOT NULL DEFAULT 0,
		coins_lost BIGINT NOT NULL DEFAULT 0
	);
`

// EnsureGameType returns the id of the trivia game type, creating it once.
func (s *PostgresStore) EnsureGameType(ctx context.Context) (string, error) {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO game_types (id, name, created_at) VALUES ($1, $2, $3) ON CONFLICT (name) DO NOTHING",
		uuid.NewString(), domain.GameType, time.Now().UTC(),
	)
	if err != nil {
		return "", err
	}
	var id string
	err = s.pool.QueryRow(ctx, "SELECT id FROM game_types WHERE name = $1", domain.GameType).Scan(&id)
	return id, err
}

// CreateRoom inserts a room in WAITING status.
func (s *PostgresStore) CreateRoom(ctx context.Context, room RoomRecord) error {
	created := room.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rooms (id, game_type_id, creator_id, bet_amount, min_players, max_players, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, room.RoomID, room.GameTypeID, room.CreatorID, room.BetAmount, room.MinPlayers, room.MaxPlayers, string(domain.PhaseWaiting), created)
	return err
}

// AddPlayer provisions the player if needed and seats them in the room.
func (s *PostgresStore) AddPlayer(ctx context.Context, roomID, playerID, displayName string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		if _, err := tx.Exec(ctx,
			"INSERT INTO players (id, display_name, coins, created_at) VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING",
			playerID, displayName, s.initialBalance, now,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO room_players (room_id, player_id, joined_at) VALUES ($1, $2, $3)
			ON CONFLICT (room_id, player_id) DO UPDATE SET left_at = NULL
		`, roomID, playerID, now)
		return err
	})
}

// RemovePlayer stamps the seat as vacated.
func (s *PostgresStore) RemovePlayer(ctx context.Context, roomID, playerID string) error {
	_, err := s.pool.Exec(ctx,
		"UPDATE room_players SET left_at = $1 WHERE room_id = $2 AND player_id = $3",
		time.Now().UTC(), roomID, playerID,
	)
	return err
}

// UpdateRoomStatus sets the room status and stamps the matching timestamp.
func (s *PostgresStore) UpdateRoomStatus(ctx context.Context, roomID string, status domain.Phase) error {
	query := "UPDATE rooms SET status = $1 WHERE id = $2"
	args := []any{string(status), roomID}
	if col := statusColumn(status); col != "" {
		query = fmt.Sprintf("UPDATE rooms SET status = $1, %s = $3 WHERE id = $2", col)
		args = append(args, time.Now().UTC())
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", roomID, ErrNotFound)
	}
	return nil
}

// CreateGameSession opens an IN_PROGRESS session for the room.
func (s *PostgresStore) CreateGameSession(ctx context.Context, roomID string) (string, error) {
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx,
		"INSERT INTO game_sessions (id, room_id, status, started_at) VALUES ($1, $2, $3, $4)",
		id, roomID, string(domain.PhaseInProgress), time.Now().UTC(),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// FinishGameSession closes a session.
func (s *PostgresStore) FinishGameSession(ctx context.Context, sessionID string, status domain.Phase) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE game_sessions SET status = $1, finished_at = $2 WHERE id = $3",
		string(status), time.Now().UTC(), sessionID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// DebitBets locks every player row, checks all balances and only then debits.
func (s *PostgresStore) DebitBets(ctx context.Context, roomID string, playerIDs []string, amount int64) ([]Transaction, error) {
	var txs []Transaction
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, id := range playerIDs {
			coins, err := postgresCoins(ctx, tx, id)
			if err != nil {
				return err
			}
			if coins < amount {
				return domain.Wrap(domain.ErrInsufficientFunds, fmt.Sprintf("player %s has insufficient funds", id))
			}
		}
		for _, id := range playerIDs {
			t, err := postgresApply(ctx, tx, roomID, id, TxBet, -amount)
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
func (s *PostgresStore) RefundBets(ctx context.Context, roomID string, playerIDs []string, amount int64) ([]Transaction, error) {
	var txs []Transaction
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, id := range playerIDs {
			t, err := postgresApply(ctx, tx, roomID, id, TxRefund, amount)
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
func (s *PostgresStore) DistributeRewards(ctx context.Context, roomID string, rewards []Reward) ([]Transaction, error) {
	var txs []Transaction
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, r := range rewards {
			if r.Amount <= 0 {
				continue
			}
			t, err := postgresApply(ctx, tx, roomID, r.PlayerID, TxWin, r.Amount)
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

// RecordGameHistory inserts all entries with one batch.
func (s *PostgresStore) RecordGameHistory(ctx context.Context, entries []HistoryEntry) error {
	now := time.Now().UTC()
	rows := make([][]any, len(entries))
	for i, e := range entries {
		rows[i] = []any{e.SessionID, e.RoomID, e.PlayerID, e.Position, e.Score, e.CorrectAnswers, e.TotalQuestions, e.BetAmount, e.PrizeWon, now}
	}
	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"game_history"},
		[]string{"session_id", "room_id", "player_id", "position", "score", "correct_answers", "total_questions", "bet_amount", "prize_won", "created_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// UpdatePlayerStats upserts the player's statistics row.
func (s *PostgresStore) UpdatePlayerStats(ctx context.Context, playerID string, d StatsDelta) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO player_stats (player_id, games_played, games_won, total_score, correct_answers, total_questions, coins_won, coins_lost)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (player_id) DO UPDATE SET
			games_played = player_stats.games_played + EXCLUDED.games_played,
			games_won = player_stats.games_won + EXCLUDED.games_won,
			total_score = player_stats.total_score + EXCLUDED.total_score,
			correct_answers = player_stats.correct_answers + EXCLUDED.correct_answers,
			total_questions = player_stats.total_questions + EXCLUDED.total_questions,
			coins_won = player_stats.coins_won + EXCLUDED.coins_won,
			coins_lost = player_stats.coins_lost + EXCLUDED.coins_lost
	`, playerID, d.GamesPlayed, d.GamesWon, d.TotalScore, d.CorrectAnswers, d.TotalQuestions, d.CoinsWon, d.CoinsLost)
	return err
}

// Balance returns the player's coins.
func (s *PostgresStore) Balance(ctx context.Context, playerID string) (int64, error) {
	var coins int64
	err := s.pool.QueryRow(ctx, "SELECT coins FROM players WHERE id = $1", playerID).Scan(&coins)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("player %s: %w", playerID, ErrNotFound)
	}
	return coins, err
}

// Transactions returns the player's ledger, oldest first.
func (s *PostgresStore) Transactions(ctx context.Context, playerID string) ([]Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, player_id, room_id, type, amount, balance_before, balance_after, created_at
		FROM transactions
		WHERE player_id = $1
		ORDER BY seq
	`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var t Transaction
		var typ string
		if err := rows.Scan(&t.ID, &t.PlayerID, &t.RoomID, &typ, &t.Amount, &t.BalanceBefore, &t.BalanceAfter, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Type = TxType(typ)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func postgresCoins(ctx context.Context, tx pgx.Tx, playerID string) (int64, error) {
	var coins int64
	err := tx.QueryRow(ctx, "SELECT coins FROM players WHERE id = $1 FOR UPDATE", playerID).Scan(&coins)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("player %s: %w", playerID, ErrNotFound)
	}
	return coins, err
}

// postgresApply moves delta coins on the locked player row and records the entry.
func postgresApply(ctx context.Context, tx pgx.Tx, roomID, playerID string, typ TxType, delta int64) (Transaction, error) {
	before, err := postgresCoins(ctx, tx, playerID)
	if err != nil {
		return Transaction{}, err
	}
	t := newTransaction(roomID, playerID, typ, before, delta)
	if _, err := tx.Exec(ctx, "UPDATE players SET coins = $1 WHERE id = $2", t.BalanceAfter, playerID); err != nil {
		return Transaction{}, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO transactions (id, player_id, room_id, type, amount, balance_before, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.PlayerID, t.RoomID, string(t.Type), t.Amount, t.BalanceBefore, t.BalanceAfter, t.CreatedAt); err != nil {
		return Transaction{}, err
	}
	return t, nil
}
