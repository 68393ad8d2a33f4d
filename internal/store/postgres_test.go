package store

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func TestPostgresContract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("trivia"),
		postgres.WithUsername("trivia"),
		postgres.WithPassword("trivia"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	// Subtests run one after another on a truncated schema.
	runContract(t, func(t *testing.T) Store {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s, err := NewPostgres(ctx, url, startCoins)
		if err != nil {
			t.Fatalf("new postgres: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		if _, err := s.pool.Exec(ctx, "TRUNCATE players, game_types, rooms, room_players, game_sessions, transactions, game_history, player_stats"); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return s
	})
}
