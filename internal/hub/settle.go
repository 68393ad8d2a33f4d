package hub

import (
	"context"
	"log"
	"math"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/devaloi/wagertrivia/internal/domain"
	"github.com/devaloi/wagertrivia/internal/prize"
	"github.com/devaloi/wagertrivia/internal/store"
)

// settlement is the outcome of a finished round. It is computed with the
// room locked and written to the store with the lock released.
type settlement struct {
	epoch      uint64
	roomID     string
	sessionID  string
	bet        int64
	pot        int64
	players    []string
	total      int
	placements []prize.Placement
	tallies    map[string]*tally
	ranking    []domain.RankedPlayer
	rewards    []store.Reward
	history    []store.HistoryEntry
}

// settlementLocked ranks the round and splits the pot.
func (h *Hub) settlementLocked(r *Room) settlement {
	rd := r.round
	r.timer = nil
	st := settlement{
		epoch:     r.epoch,
		roomID:    r.id,
		sessionID: rd.sessionID,
		bet:       r.bet,
		pot:       r.pot,
		players:   slices.Clone(rd.players),
		total:     len(rd.questions),
		tallies:   make(map[string]*tally, len(rd.players)),
	}
	scores := make([]prize.Score, len(rd.players))
	for i, id := range rd.players {
		t := *rd.scores[id]
		st.tallies[id] = &t
		scores[i] = prize.Score{PlayerID: id, Score: t.score}
	}
	st.placements = prize.Split(scores, r.pot, h.cfg.PrizeTable(len(rd.players)))

	st.ranking = make([]domain.RankedPlayer, len(st.placements))
	st.rewards = make([]store.Reward, len(st.placements))
	st.history = make([]store.HistoryEntry, len(st.placements))
	for i, p := range st.placements {
		t := st.tallies[p.PlayerID]
		st.ranking[i] = domain.RankedPlayer{
			Position:       p.Position,
			PlayerID:       p.PlayerID,
			DisplayName:    t.name,
			FinalScore:     p.Score,
			PrizeWon:       p.Prize,
			CorrectAnswers: t.correct,
			TotalQuestions: st.total,
			Accuracy:       accuracy(t.correct, st.total),
		}
		st.rewards[i] = store.Reward{PlayerID: p.PlayerID, Amount: p.Prize, Position: p.Position}
		st.history[i] = store.HistoryEntry{
			SessionID:      rd.sessionID,
			RoomID:         r.id,
			PlayerID:       p.PlayerID,
			Position:       p.Position,
			Score:          p.Score,
			CorrectAnswers: t.correct,
			TotalQuestions: st.total,
			BetAmount:      r.bet,
			PrizeWon:       p.Prize,
		}
	}
	return st
}

// settleRound pays the pot and records the results with the room unlocked,
// then moves the room to FINISHED, or to CANCELLED with the bets refunded if
// the payout failed. Players are told the game finished only once rewards
// are settled. A room torn down meanwhile is still settled in the store but
// its players are not notified.
func (h *Hub) settleRound(r *Room, st settlement) {
	err := h.settle("distribute rewards", func(ctx context.Context) error {
		_, err := h.store.DistributeRewards(ctx, st.roomID, st.rewards)
		return err
	})
	if err != nil {
		log.Printf("room %s: settlement failed: %v", st.roomID, err)
		h.refundBets(st.roomID, st.players, st.bet)

		r.mu.Lock()
		defer r.unlock()
		r.settling = false
		if r.closed || r.epoch != st.epoch {
			r.phase = domain.PhaseCancelled
			h.mirrorStatus(st.roomID, domain.PhaseCancelled)
			h.finishSession(st.sessionID, domain.PhaseCancelled)
			return
		}
		h.cancelRoomLocked(r, domain.ErrSettlementFailed)
		return
	}

	histErr := h.settle("record game history", func(ctx context.Context) error {
		return h.store.RecordGameHistory(ctx, st.history)
	})
	if histErr != nil {
		// The ledger is settled; only the history is missing.
		log.Printf("room %s: game history lost: %v", st.roomID, histErr)
	}
	for _, p := range st.placements {
		h.updateStats(p.PlayerID, statsDelta(p, st.tallies[p.PlayerID], st.total, st.bet))
	}

	r.mu.Lock()
	defer r.unlock()
	r.settling = false
	r.phase = domain.PhaseFinished
	h.finishSession(st.sessionID, domain.PhaseFinished)
	h.mirrorStatus(st.roomID, domain.PhaseFinished)
	log.Printf("room %s: game finished, pot %d paid %d", st.roomID, st.pot, prize.Total(st.placements))
	if r.closed || r.epoch != st.epoch {
		return
	}

	if histErr != nil {
		emitError(r, domain.Persistence("record game history", histErr))
	}
	for _, p := range st.placements {
		if _, s := r.seatLocked(p.PlayerID); s != nil {
			s.position = p.Position
			s.prize = p.Prize
		}
	}
	emit(r, domain.MsgGameFinished, domain.GameFinished{RoomID: st.roomID, FinalRanking: st.ranking, TotalPot: st.pot})
	h.scheduleRetireLocked(r)
}

// settle runs a settlement write, retrying with exponential backoff.
func (h *Hub) settle(op string, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = h.cfg.SettleRetryInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithMaxRetries(b, uint64(max(h.cfg.SettleRetries, 0)))
	return backoff.RetryNotify(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.StoreTimeout)
		defer cancel()
		return fn(ctx)
	}, policy, func(err error, wait time.Duration) {
		log.Printf("settle %s: %v, retrying in %v", op, err, wait)
	})
}

func (h *Hub) updateStats(playerID string, d store.StatsDelta) {
	h.background("update player stats", func(ctx context.Context) error {
		return h.store.UpdatePlayerStats(ctx, playerID, d)
	})
}

func statsDelta(p prize.Placement, t *tally, total int, bet int64) store.StatsDelta {
	d := store.StatsDelta{
		GamesPlayed:    1,
		TotalScore:     p.Score,
		CorrectAnswers: t.correct,
		TotalQuestions: total,
	}
	if p.Position == 1 {
		d.GamesWon = 1
	}
	if p.Prize > bet {
		d.CoinsWon = p.Prize - bet
	} else {
		d.CoinsLost = bet - p.Prize
	}
	return d
}

// accuracy is the percentage of correct answers, rounded to two decimals.
func accuracy(correct, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(correct)/float64(total)*10000) / 100
}

// scheduleRetireLocked removes a FINISHED or CANCELLED room after the retention window.
func (h *Hub) scheduleRetireLocked(r *Room) {
	if r.retire != nil {
		r.retire.Stop()
	}
	r.retire = h.clock.AfterFunc(h.cfg.RoomRetention, func() { h.retireRoom(r) })
}

func (h *Hub) retireRoom(r *Room) {
	r.mu.Lock()
	if r.closed || !r.phase.Terminal() {
		r.unlock()
		return
	}
	r.closed = true
	r.stopAllTimersLocked()
	r.unlock()
	h.removeRoom(r)
}
