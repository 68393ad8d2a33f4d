package hub

import (
	"log"
	"time"

	"github.com/devaloi/wagertrivia/internal/domain"
)

// armCountdownLocked moves a WAITING room to COUNTDOWN and starts the
// one-second ticker.
func (h *Hub) armCountdownLocked(r *Room) {
	epoch := r.nextEpochLocked()
	r.phase = domain.PhaseCountdown
	r.countdown = h.cfg.CountdownSeconds
	emit(r, domain.MsgCountdownStarted, domain.CountdownStarted{RoomID: r.id, Seconds: r.countdown})
	r.timer = h.clock.Every(time.Second, func() { h.countdownTick(r, epoch) })
	h.mirrorStatus(r.id, domain.PhaseCountdown)
	log.Printf("room %s: countdown started (%ds)", r.id, r.countdown)
}

func (h *Hub) countdownTick(r *Room, epoch uint64) {
	r.mu.Lock()
	if r.closed || r.epoch != epoch || r.phase != domain.PhaseCountdown {
		r.unlock()
		return
	}
	r.countdown--
	emit(r, domain.MsgCountdownTick, domain.CountdownTick{RoomID: r.id, SecondsRemaining: r.countdown})
	if r.countdown > 0 {
		r.unlock()
		return
	}
	r.stopTimerLocked()
	h.startGameLocked(r)
	r.unlock()

	h.announceRooms()
}

// CancelCountdown reverts a room in COUNTDOWN to WAITING. It does nothing
// for rooms in any other phase.
func (h *Hub) CancelCountdown(roomID string) {
	r := h.room(roomID)
	if r == nil {
		return
	}
	r.mu.Lock()
	cancelled := !r.closed && r.phase == domain.PhaseCountdown
	if cancelled {
		h.cancelCountdownLocked(r)
	}
	r.unlock()
	if cancelled {
		h.announceRooms()
	}
}

func (h *Hub) cancelCountdownLocked(r *Room) {
	if r.phase != domain.PhaseCountdown {
		return
	}
	r.stopTimerLocked()
	r.phase = domain.PhaseWaiting
	r.countdown = 0
	emit(r, domain.MsgCountdownCancelled, domain.RoomRef{RoomID: r.id})
	h.mirrorStatus(r.id, domain.PhaseWaiting)
	log.Printf("room %s: countdown cancelled", r.id)
}
