// Package hub is the session orchestration core: the room registry,
// countdowns, bet collection, the question rounds, settlement and
// disconnect recovery.
package hub

import (
	"context"
	"fmt"
	"log"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/devaloi/wagertrivia/internal/config"
	"github.com/devaloi/wagertrivia/internal/domain"
	"github.com/devaloi/wagertrivia/internal/quiz"
	"github.com/devaloi/wagertrivia/internal/sched"
	"github.com/devaloi/wagertrivia/internal/store"
)

// Hub manages all rooms and the lobby of connected clients.
//
// Lock order: h.mu may be held while taking a room's mu, never the reverse.
// Lobby announcements are therefore made after the room lock is released.
type Hub struct {
	cfg   config.Config
	store store.Store
	quiz  quiz.Source
	clock sched.Scheduler

	mu      sync.RWMutex
	rooms   map[string]*Room
	clients map[Client]bool
	stopped bool

	gameTypeMu sync.Mutex
	gameType   string

	// writes queues best-effort store writes for Run, in order.
	writes  chan write
	quit    chan struct{}
	done    chan struct{}
	running atomic.Bool
}

type write struct {
	op string
	fn func(ctx context.Context) error
}

// New creates a new Hub.
func New(cfg config.Config, s store.Store, q quiz.Source, clock sched.Scheduler) *Hub {
	return &Hub{
		cfg:     cfg,
		store:   s,
		quiz:    q,
		clock:   clock,
		rooms:   make(map[string]*Room),
		clients: make(map[Client]bool),
		writes:  make(chan write, 1024),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run applies best-effort store writes in the order they were queued.
// Should be called as a goroutine.
func (h *Hub) Run() {
	h.running.Store(true)
	defer close(h.done)
	for {
		select {
		case w := <-h.writes:
			h.apply(w)
		case <-h.quit:
			for {
				select {
				case w := <-h.writes:
					h.apply(w)
				default:
					return
				}
			}
		}
	}
}

// Stop cancels every timer, stops all rooms and flushes pending store writes.
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	clear(h.rooms)
	h.mu.Unlock()

	for _, r := range rooms {
		r.mu.Lock()
		r.closed = true
		r.stopAllTimersLocked()
		r.unlock()
		r.Stop()
	}
	close(h.quit)
	if h.running.Load() {
		<-h.done
	}
	log.Printf("hub stopped, %d rooms drained", len(rooms))
}

// Register adds a client to the lobby. Lobby clients receive room list updates.
func (h *Hub) Register(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

// Unregister removes a client from the lobby.
func (h *Hub) Unregister(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// CreateRoom opens a room with c's player as creator and only seat.
func (h *Hub) CreateRoom(ctx context.Context, c Client, displayName string, bet int64) (domain.Room, error) {
	playerID := c.PlayerID()
	if bet < h.cfg.MinBet || bet > h.cfg.MaxBet {
		return domain.Room{}, domain.Wrap(domain.ErrInvalidBet,
			fmt.Sprintf("bet must be between %d and %d", h.cfg.MinBet, h.cfg.MaxBet))
	}
	if h.full() {
		return domain.Room{}, domain.ErrTooManyRooms
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.StoreTimeout)
	defer cancel()
	gameType, err := h.ensureGameType(ctx)
	if err != nil {
		return domain.Room{}, domain.Persistence("ensure game type", err)
	}

	now := h.clock.Now()
	r := newRoom(uuid.NewString(), bet, h.cfg.MinPlayers, h.cfg.MaxPlayers, now)
	r.creatorID = playerID
	r.seats = []*seat{{playerID: playerID, name: displayName, client: c, connected: true, joinedAt: now}}
	r.pot = bet

	// The room is only registered once mirrored, so a failed write leaves nothing behind.
	err = h.store.CreateRoom(ctx, store.RoomRecord{
		RoomID:     r.id,
		GameTypeID: gameType,
		CreatorID:  playerID,
		BetAmount:  bet,
		MinPlayers: r.minPlayers,
		MaxPlayers: r.maxPlayers,
		CreatedAt:  now,
	})
	if err != nil {
		return domain.Room{}, domain.Persistence("create room", err)
	}
	if err := h.store.AddPlayer(ctx, r.id, playerID, displayName); err != nil {
		h.mirrorStatus(r.id, domain.PhaseCancelled)
		return domain.Room{}, domain.Persistence("add player", err)
	}

	h.mu.Lock()
	if h.stopped || len(h.rooms) >= h.cfg.MaxRooms {
		h.mu.Unlock()
		h.mirrorStatus(r.id, domain.PhaseCancelled)
		return domain.Room{}, domain.ErrTooManyRooms
	}
	h.rooms[r.id] = r
	h.mu.Unlock()
	go r.Run()

	r.mu.Lock()
	view := r.viewLocked()
	emitTo(r, c, domain.MsgRoomCreated, view)
	r.unlock()

	log.Printf("room %s: created by %s, bet %d", r.id, playerID, bet)
	h.announceRooms()
	return view, nil
}

// JoinRoom seats c's player in a WAITING or COUNTDOWN room. Reaching the
// minimum occupancy while WAITING arms the countdown.
func (h *Hub) JoinRoom(ctx context.Context, roomID string, c Client, displayName string) (domain.Room, error) {
	playerID := c.PlayerID()
	r := h.room(roomID)
	if r == nil {
		return domain.Room{}, domain.ErrRoomNotFound
	}

	r.mu.Lock()
	if r.closed {
		r.unlock()
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if !r.phase.Joinable() {
		r.unlock()
		return domain.Room{}, domain.ErrRoomNotJoinable
	}
	if _, s := r.seatLocked(playerID); s != nil {
		r.unlock()
		return domain.Room{}, domain.ErrPlayerAlreadySeated
	}
	if len(r.seats) >= r.maxPlayers {
		r.unlock()
		return domain.Room{}, domain.ErrRoomFull
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.StoreTimeout)
	defer cancel()
	if err := h.store.AddPlayer(ctx, r.id, playerID, displayName); err != nil {
		r.unlock()
		return domain.Room{}, domain.Persistence("add player", err)
	}

	r.seats = append(r.seats, &seat{
		playerID:  playerID,
		name:      displayName,
		client:    c,
		connected: true,
		joinedAt:  h.clock.Now(),
	})
	r.pot += r.bet
	view := r.viewLocked()
	emit(r, domain.MsgPlayerJoined, domain.PlayerEvent{RoomID: r.id, PlayerID: playerID, Room: &view})
	log.Printf("room %s: %s joined (%d/%d)", r.id, playerID, len(r.seats), r.maxPlayers)

	if r.phase == domain.PhaseWaiting && len(r.seats) >= r.minPlayers {
		h.armCountdownLocked(r)
		view = r.viewLocked()
	}
	r.unlock()

	h.announceRooms()
	return view, nil
}

// LeaveRoom gives up a seat before the game starts. Players of a game in
// progress are handled by Disconnect instead.
func (h *Hub) LeaveRoom(roomID, playerID string) error {
	r := h.room(roomID)
	if r == nil {
		return domain.ErrRoomNotFound
	}

	r.mu.Lock()
	if r.closed {
		r.unlock()
		return domain.ErrRoomNotFound
	}
	if r.phase == domain.PhaseInProgress {
		r.unlock()
		return domain.ErrRoomInProgress
	}
	if !r.phase.Joinable() {
		r.unlock()
		return domain.ErrRoomNotJoinable
	}
	idx, _ := r.seatLocked(playerID)
	if idx < 0 {
		r.unlock()
		return domain.ErrPlayerNotSeated
	}
	empty := h.leaveLocked(r, idx)
	r.unlock()

	if empty {
		h.removeRoom(r)
	}
	h.announceRooms()
	return nil
}

// leaveLocked removes the seat at idx and reports whether the room is now
// empty, in which case it is closed and must be removed by the caller.
func (h *Hub) leaveLocked(r *Room, idx int) bool {
	left := r.seats[idx]
	r.seats = slices.Delete(r.seats, idx, idx+1)
	r.pot -= r.bet
	h.removePlayerLocked(r, left.playerID)

	if r.creatorID == left.playerID && len(r.seats) > 0 {
		r.creatorID = r.seats[0].playerID
	}
	log.Printf("room %s: %s left (%d/%d)", r.id, left.playerID, len(r.seats), r.maxPlayers)

	if len(r.seats) == 0 {
		emitTo(r, left.client, domain.MsgPlayerLeft, domain.PlayerEvent{RoomID: r.id, PlayerID: left.playerID})
		r.closed = true
		r.stopAllTimersLocked()
		h.mirrorStatus(r.id, domain.PhaseCancelled)
		return true
	}

	if r.phase == domain.PhaseCountdown && len(r.seats) < r.minPlayers {
		h.cancelCountdownLocked(r)
	}
	view := r.viewLocked()
	ev := domain.PlayerEvent{RoomID: r.id, PlayerID: left.playerID, Room: &view}
	emit(r, domain.MsgPlayerLeft, ev)
	if left.connected {
		emitTo(r, left.client, domain.MsgPlayerLeft, ev)
	}
	return false
}

// removePlayerLocked mirrors a vacated seat before r.mu is released, so a
// re-join of the same player is always written after it. The in-memory
// leave stands even if the write fails.
func (h *Hub) removePlayerLocked(r *Room, playerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.StoreTimeout)
	defer cancel()
	if err := h.store.RemovePlayer(ctx, r.id, playerID); err != nil {
		log.Printf("room %s: remove player %s: %v", r.id, playerID, err)
	}
}

// ListJoinable returns the rooms in WAITING or COUNTDOWN, oldest first. It
// reads each room's published view and never waits on a room's lock.
func (h *Hub) ListJoinable() []domain.Room {
	h.mu.RLock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.RUnlock()

	slices.SortFunc(rooms, func(a, b *Room) int {
		return a.createdAt.Compare(b.createdAt)
	})
	views := make([]domain.Room, 0, len(rooms))
	for _, r := range rooms {
		if view, ok := r.published(); ok && view.Status.Joinable() {
			views = append(views, view)
		}
	}
	return views
}

// RoomInfo returns a snapshot of a room, or false if not found.
func (h *Hub) RoomInfo(roomID string) (domain.Room, bool) {
	r := h.room(roomID)
	if r == nil {
		return domain.Room{}, false
	}
	r.mu.Lock()
	defer r.unlock()
	if r.closed {
		return domain.Room{}, false
	}
	return r.viewLocked(), true
}

// RoomCount returns the number of registered rooms.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) room(id string) *Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[id]
}

func (h *Hub) full() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stopped || len(h.rooms) >= h.cfg.MaxRooms
}

// removeRoom unregisters a closed room and tells the lobby.
func (h *Hub) removeRoom(r *Room) {
	h.mu.Lock()
	if h.rooms[r.id] == r {
		delete(h.rooms, r.id)
	}
	h.mu.Unlock()
	r.Stop()
	log.Printf("room %s: deleted", r.id)
	h.lobby(domain.MsgRoomDeleted, domain.RoomRef{RoomID: r.id})
}

// announceRooms sends the joinable room list to every lobby client.
func (h *Hub) announceRooms() {
	h.lobby(domain.MsgRoomUpdated, domain.RoomList{AvailableRooms: h.ListJoinable()})
}

func (h *Hub) lobby(typ string, data any) {
	msg, err := domain.EncodeEvent(typ, data)
	if err != nil {
		log.Printf("lobby: encode %s: %v", typ, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.Send(msg)
	}
}

func (h *Hub) ensureGameType(ctx context.Context) (string, error) {
	h.gameTypeMu.Lock()
	defer h.gameTypeMu.Unlock()
	if h.gameType != "" {
		return h.gameType, nil
	}
	id, err := h.store.EnsureGameType(ctx)
	if err != nil {
		return "", err
	}
	h.gameType = id
	return id, nil
}

// background queues a best-effort store write. It never blocks, so it is
// safe to call with a room lock held.
func (h *Hub) background(op string, fn func(ctx context.Context) error) {
	select {
	case h.writes <- write{op: op, fn: fn}:
	default:
		log.Printf("store %s: write queue full, dropped", op)
	}
}

func (h *Hub) apply(w write) {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.StoreTimeout)
	defer cancel()
	if err := w.fn(ctx); err != nil {
		log.Printf("store %s: %v", w.op, err)
	}
}

func (h *Hub) mirrorStatus(roomID string, status domain.Phase) {
	h.background("update room status", func(ctx context.Context) error {
		return h.store.UpdateRoomStatus(ctx, roomID, status)
	})
}
