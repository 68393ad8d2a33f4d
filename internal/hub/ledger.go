package hub

import (
	"context"
	"fmt"
	"log"

	"github.com/devaloi/wagertrivia/internal/domain"
	"github.com/devaloi/wagertrivia/internal/store"
)

// collectBetsLocked debits the entry bet from every seated player, all or
// nothing. The room stays locked for the duration: nothing may change the
// seats between the debit and the phase change that follows it.
func (h *Hub) collectBetsLocked(r *Room) ([]store.Transaction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.StoreTimeout)
	defer cancel()
	txs, err := h.store.DebitBets(ctx, r.id, r.playerIDsLocked(), r.bet)
	if err != nil {
		return nil, fmt.Errorf("debit bets: %w", err)
	}
	return txs, nil
}

func (h *Hub) refundBetsLocked(r *Room) {
	h.refundBets(r.id, r.playerIDsLocked(), r.bet)
}

func (h *Hub) refundBets(roomID string, players []string, bet int64) {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.StoreTimeout)
	defer cancel()
	if _, err := h.store.RefundBets(ctx, roomID, players, bet); err != nil {
		log.Printf("room %s: refund bets: %v", roomID, err)
		return
	}
	log.Printf("room %s: refunded %d to %d players", roomID, bet, len(players))
}

// startGameLocked runs when the countdown reaches zero. The room ends in
// IN_PROGRESS with its round scheduled, or in CANCELLED.
func (h *Hub) startGameLocked(r *Room) {
	if _, err := h.collectBetsLocked(r); err != nil {
		// Which player was short stays private.
		log.Printf("room %s: %v", r.id, err)
		h.cancelRoomLocked(r, domain.ErrGameStart)
		return
	}

	questions, err := h.quiz.Draw(h.cfg.QuestionsPerGame, h.cfg.TimePerQuestion)
	if err == nil && len(questions) == 0 {
		err = fmt.Errorf("question source returned no questions")
	}
	if err != nil {
		log.Printf("room %s: draw questions: %v", r.id, err)
		h.refundBetsLocked(r)
		h.cancelRoomLocked(r, domain.ErrGameStart)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.StoreTimeout)
	sessionID, err := h.store.CreateGameSession(ctx, r.id)
	cancel()
	if err != nil {
		log.Printf("room %s: create game session: %v", r.id, err)
		h.refundBetsLocked(r)
		h.cancelRoomLocked(r, domain.ErrGameStart)
		return
	}

	r.phase = domain.PhaseInProgress
	r.countdown = 0
	r.round = newRound(sessionID, questions, r.seats)
	h.mirrorStatus(r.id, domain.PhaseInProgress)

	players := make([]domain.SeatBrief, len(r.seats))
	for i, s := range r.seats {
		players[i] = domain.SeatBrief{PlayerID: s.playerID, DisplayName: s.name}
	}
	emit(r, domain.MsgGameStarted, domain.GameStarted{RoomID: r.id, Players: players, Pot: r.pot})
	log.Printf("room %s: game started, %d players, pot %d", r.id, len(r.seats), r.pot)

	epoch := r.nextEpochLocked()
	r.timer = h.clock.AfterFunc(h.cfg.GameStartDelay, func() { h.questionDue(r, epoch) })
}

// cancelRoomLocked moves the room to CANCELLED, reports cause to its players
// and schedules retirement.
func (h *Hub) cancelRoomLocked(r *Room, cause *domain.Error) {
	r.stopTimerLocked()
	r.phase = domain.PhaseCancelled
	r.countdown = 0
	emitError(r, cause)
	h.mirrorStatus(r.id, domain.PhaseCancelled)
	if r.round != nil {
		h.finishSession(r.round.sessionID, domain.PhaseCancelled)
	}
	log.Printf("room %s: cancelled: %s", r.id, cause.Code)
	h.scheduleRetireLocked(r)
}

func (h *Hub) finishSession(sessionID string, status domain.Phase) {
	h.background("finish game session", func(ctx context.Context) error {
		return h.store.FinishGameSession(ctx, sessionID, status)
	})
}
