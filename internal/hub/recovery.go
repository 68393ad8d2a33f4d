package hub

import (
	"log"

	"github.com/devaloi/wagertrivia/internal/domain"
)

// Disconnect handles the loss of a player's connection. Before the game
// starts it is a leave. Once the game is running the player keeps the seat
// and misses the remaining questions. The room is torn down as soon as no
// seated player is connected, whatever its phase.
func (h *Hub) Disconnect(roomID, playerID string) {
	r := h.room(roomID)
	if r == nil {
		return
	}

	r.mu.Lock()
	if r.closed {
		r.unlock()
		return
	}
	idx, s := r.seatLocked(playerID)
	if s == nil {
		r.unlock()
		return
	}
	s.connected = false

	if r.phase.Joinable() {
		empty := h.leaveLocked(r, idx)
		r.unlock()
		if empty {
			h.removeRoom(r)
		}
		h.announceRooms()
		return
	}

	log.Printf("room %s: %s disconnected", r.id, playerID)
	view := r.viewLocked()
	emit(r, domain.MsgPlayerDisconnected, domain.PlayerEvent{RoomID: r.id, PlayerID: playerID, Room: &view})

	if len(r.connectedLocked()) > 0 {
		r.unlock()
		return
	}
	h.teardownLocked(r)
	r.unlock()
	h.removeRoom(r)
}

// teardownLocked closes a room nobody is connected to anymore. A room whose
// results are being settled gets its final status from settleRound.
func (h *Hub) teardownLocked(r *Room) {
	r.closed = true
	r.stopAllTimersLocked()
	if r.phase == domain.PhaseInProgress && !r.settling {
		r.phase = domain.PhaseCancelled
		h.mirrorStatus(r.id, domain.PhaseCancelled)
		if r.round != nil {
			h.finishSession(r.round.sessionID, domain.PhaseCancelled)
		}
	}
	log.Printf("room %s: all players disconnected, torn down", r.id)
}
