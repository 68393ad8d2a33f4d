package store

import (
	"context"
	"errors"
	"testing"

	"github.com/devaloi/wagertrivia/internal/domain"
)

const startCoins = 100

// runContract exercises a Store implementation. newStore must return an
// empty store whose players start with startCoins.
func runContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("GameTypeIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		first, err := s.EnsureGameType(ctx)
		if err != nil {
			t.Fatalf("ensure game type: %v", err)
		}
		second, err := s.EnsureGameType(ctx)
		if err != nil {
			t.Fatalf("ensure game type again: %v", err)
		}
		if first == "" || first != second {
			t.Errorf("expected stable id, got %q then %q", first, second)
		}
	})

	t.Run("AddPlayerProvisionsOnce", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		seedRoom(t, s, "r1", "alice", "bob")
		if err := s.AddPlayer(ctx, "r1", "alice", "alice"); err != nil {
			t.Fatalf("re-add player: %v", err)
		}
		bal, err := s.Balance(ctx, "alice")
		if err != nil {
			t.Fatalf("balance: %v", err)
		}
		if bal != startCoins {
			t.Errorf("expected %d coins, got %d", startCoins, bal)
		}
		if _, err := s.Balance(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("DebitBets", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		seedRoom(t, s, "r1", "alice", "bob")
		txs, err := s.DebitBets(ctx, "r1", []string{"alice", "bob"}, 50)
		if err != nil {
			t.Fatalf("debit: %v", err)
		}
		if len(txs) != 2 {
			t.Fatalf("expected 2 transactions, got %d", len(txs))
		}
		for _, tx := range txs {
			if tx.Type != TxBet || tx.Amount != 50 || tx.BalanceBefore != 100 || tx.BalanceAfter != 50 {
				t.Errorf("unexpected transaction: %+v", tx)
			}
		}
		bal, _ := s.Balance(ctx, "bob")
		if bal != 50 {
			t.Errorf("expected 50 coins, got %d", bal)
		}
	})

	t.Run("DebitBetsAllOrNothing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		seedRoom(t, s, "r1", "alice", "bob")
		if _, err := s.DebitBets(ctx, "r1", []string{"bob"}, 80); err != nil {
			t.Fatalf("drain bob: %v", err)
		}
		_, err := s.DebitBets(ctx, "r1", []string{"alice", "bob"}, 50)
		if !errors.Is(err, domain.ErrInsufficientFunds) {
			t.Fatalf("expected insufficient funds, got %v", err)
		}
		alice, _ := s.Balance(ctx, "alice")
		bob, _ := s.Balance(ctx, "bob")
		if alice != 100 || bob != 20 {
			t.Errorf("balances changed on failed debit: alice=%d bob=%d", alice, bob)
		}
		txs, err := s.Transactions(ctx, "alice")
		if err != nil {
			t.Fatalf("transactions: %v", err)
		}
		if len(txs) != 0 {
			t.Errorf("expected no ledger entries for alice, got %d", len(txs))
		}
	})

	t.Run("RefundAndRewards", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		seedRoom(t, s, "r1", "alice", "bob")
		if _, err := s.DebitBets(ctx, "r1", []string{"alice", "bob"}, 50); err != nil {
			t.Fatalf("debit: %v", err)
		}
		if _, err := s.RefundBets(ctx, "r1", []string{"alice"}, 50); err != nil {
			t.Fatalf("refund: %v", err)
		}
		txs, err := s.DistributeRewards(ctx, "r1", []Reward{
			{PlayerID: "bob", Amount: 80, Position: 1},
			{PlayerID: "alice", Amount: 0, Position: 2},
		})
		if err != nil {
			t.Fatalf("rewards: %v", err)
		}
		if len(txs) != 1 || txs[0].Type != TxWin {
			t.Fatalf("expected a single WIN entry, got %+v", txs)
		}
		alice, _ := s.Balance(ctx, "alice")
		bob, _ := s.Balance(ctx, "bob")
		if alice != 100 || bob != 130 {
			t.Errorf("expected alice=100 bob=130, got alice=%d bob=%d", alice, bob)
		}
		ledger, _ := s.Transactions(ctx, "bob")
		if len(ledger) != 2 || ledger[0].Type != TxBet || ledger[1].Type != TxWin {
			t.Errorf("expected BET then WIN for bob, got %+v", ledger)
		}
		ledger, _ = s.Transactions(ctx, "alice")
		if len(ledger) != 2 || ledger[1].Type != TxRefund {
			t.Errorf("expected BET then REFUND for alice, got %+v", ledger)
		}
	})

	t.Run("RewardUnknownPlayerRollsBack", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		seedRoom(t, s, "r1", "alice")
		_, err := s.DistributeRewards(ctx, "r1", []Reward{
			{PlayerID: "alice", Amount: 10, Position: 1},
			{PlayerID: "ghost", Amount: 10, Position: 2},
		})
		if err == nil {
			t.Fatal("expected error for unknown player")
		}
		if bal, _ := s.Balance(ctx, "alice"); bal != startCoins {
			t.Errorf("expected rollback, alice has %d", bal)
		}
	})

	t.Run("SessionAndStatus", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		seedRoom(t, s, "r1", "alice", "bob")
		for _, st := range []domain.Phase{domain.PhaseCountdown, domain.PhaseInProgress} {
			if err := s.UpdateRoomStatus(ctx, "r1", st); err != nil {
				t.Fatalf("status %s: %v", st, err)
			}
		}
		sessionID, err := s.CreateGameSession(ctx, "r1")
		if err != nil {
			t.Fatalf("create session: %v", err)
		}
		if err := s.FinishGameSession(ctx, sessionID, domain.PhaseFinished); err != nil {
			t.Fatalf("finish session: %v", err)
		}
		if err := s.FinishGameSession(ctx, "missing", domain.PhaseFinished); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for unknown session, got %v", err)
		}
		if err := s.UpdateRoomStatus(ctx, "missing", domain.PhaseCancelled); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for unknown room, got %v", err)
		}
		if err := s.RemovePlayer(ctx, "r1", "bob"); err != nil {
			t.Errorf("remove player: %v", err)
		}
	})

	t.Run("HistoryAndStats", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		seedRoom(t, s, "r1", "alice", "bob")
		err := s.RecordGameHistory(ctx, []HistoryEntry{
			{SessionID: "s1", RoomID: "r1", PlayerID: "alice", Position: 1, Score: 120, CorrectAnswers: 5, TotalQuestions: 5, BetAmount: 50, PrizeWon: 80},
			{SessionID: "s1", RoomID: "r1", PlayerID: "bob", Position: 2, Score: 40, CorrectAnswers: 2, TotalQuestions: 5, BetAmount: 50, PrizeWon: 20},
		})
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		for i := 0; i < 2; i++ {
			if err := s.UpdatePlayerStats(ctx, "alice", StatsDelta{GamesPlayed: 1, GamesWon: 1, TotalScore: 120, CoinsWon: 80}); err != nil {
				t.Fatalf("stats: %v", err)
			}
		}
	})
}

func seedRoom(t *testing.T, s Store, roomID string, players ...string) {
	t.Helper()
	ctx := context.Background()
	gameType, err := s.EnsureGameType(ctx)
	if err != nil {
		t.Fatalf("ensure game type: %v", err)
	}
	err = s.CreateRoom(ctx, RoomRecord{
		RoomID:     roomID,
		GameTypeID: gameType,
		CreatorID:  players[0],
		BetAmount:  50,
		MinPlayers: 2,
		MaxPlayers: 5,
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	for _, p := range players {
		if err := s.AddPlayer(ctx, roomID, p, p); err != nil {
			t.Fatalf("add player %s: %v", p, err)
		}
	}
}
