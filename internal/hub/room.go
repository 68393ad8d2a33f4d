package hub

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devaloi/wagertrivia/internal/domain"
	"github.com/devaloi/wagertrivia/internal/sched"
)

// Client is the interface that hub/room expects from a WebSocket client.
type Client interface {
	PlayerID() string
	Send(data []byte)
}

type seat struct {
	playerID  string
	name      string
	client    Client
	connected bool
	joinedAt  time.Time
	position  int
	prize     int64
}

type outbound struct {
	data []byte
	to   []Client
}

// Room is one wagered trivia session. The fields below mu, except snap, are
// guarded by it; every mutation of a room happens with mu held.
type Room struct {
	id         string
	bet        int64
	minPlayers int
	maxPlayers int
	createdAt  time.Time

	mu        sync.Mutex
	phase     domain.Phase
	closed    bool
	creatorID string
	seats     []*seat
	pot       int64
	countdown int
	round     *round

	// settling is set while the round's results are written to the store
	// with mu released.
	settling bool

	// timer is the single active countdown, question or delay timer. epoch
	// changes whenever it is replaced or stopped; callbacks carrying an older
	// epoch are stale and do nothing.
	timer  sched.Timer
	epoch  uint64
	retire sched.Timer

	// snap is the view published by the last unlock, nil once closed. It is
	// read without mu.
	snap atomic.Pointer[domain.Room]

	outbox chan outbound
	quit   chan struct{}
	once   sync.Once
}

func newRoom(id string, bet int64, minPlayers, maxPlayers int, now time.Time) *Room {
	return &Room{
		id:         id,
		bet:        bet,
		minPlayers: minPlayers,
		maxPlayers: maxPlayers,
		createdAt:  now,
		phase:      domain.PhaseWaiting,
		outbox:     make(chan outbound, 256),
		quit:       make(chan struct{}),
	}
}

// Run delivers the room's events in order. Should be called as a goroutine.
func (r *Room) Run() {
	for {
		select {
		case msg := <-r.outbox:
			for _, c := range msg.to {
				c.Send(msg.data)
			}
		case <-r.quit:
			// Deliver what was queued before the room closed.
			for {
				select {
				case msg := <-r.outbox:
					for _, c := range msg.to {
						c.Send(msg.data)
					}
				default:
					return
				}
			}
		}
	}
}

// Stop signals the room's broadcast loop to exit.
func (r *Room) Stop() {
	r.once.Do(func() { close(r.quit) })
}

// unlock publishes the room's view and releases mu. Every mutation of the
// room ends with it.
func (r *Room) unlock() {
	if r.closed {
		r.snap.Store(nil)
	} else {
		view := r.viewLocked()
		r.snap.Store(&view)
	}
	r.mu.Unlock()
}

// published returns the last published view, or false if the room is closed
// or has not been published yet.
func (r *Room) published() (domain.Room, bool) {
	view := r.snap.Load()
	if view == nil {
		return domain.Room{}, false
	}
	return *view, true
}

func (r *Room) enqueueLocked(data []byte, to []Client) {
	if len(to) == 0 {
		return
	}
	select {
	case r.outbox <- outbound{data: data, to: to}:
	case <-r.quit:
	}
}

// connectedLocked returns the clients of every connected seat.
func (r *Room) connectedLocked() []Client {
	clients := make([]Client, 0, len(r.seats))
	for _, s := range r.seats {
		if s.connected && s.client != nil {
			clients = append(clients, s.client)
		}
	}
	return clients
}

func (r *Room) seatLocked(playerID string) (int, *seat) {
	for i, s := range r.seats {
		if s.playerID == playerID {
			return i, s
		}
	}
	return -1, nil
}

func (r *Room) playerIDsLocked() []string {
	ids := make([]string, len(r.seats))
	for i, s := range r.seats {
		ids[i] = s.playerID
	}
	return ids
}

// nextEpochLocked stops the active timer and returns the epoch for its successor.
func (r *Room) nextEpochLocked() uint64 {
	r.stopTimerLocked()
	return r.epoch
}

func (r *Room) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.epoch++
}

func (r *Room) stopAllTimersLocked() {
	r.stopTimerLocked()
	if r.retire != nil {
		r.retire.Stop()
		r.retire = nil
	}
}

// viewLocked returns a snapshot that shares no memory with the room.
func (r *Room) viewLocked() domain.Room {
	players := make([]domain.Player, len(r.seats))
	for i, s := range r.seats {
		players[i] = domain.Player{
			PlayerID:    s.playerID,
			DisplayName: s.name,
			IsConnected: s.connected,
			JoinedAt:    s.joinedAt,
			Position:    s.position,
			Prize:       s.prize,
		}
		if r.round != nil {
			if t := r.round.scores[s.playerID]; t != nil {
				players[i].Score = t.score
			}
		}
	}
	view := domain.Room{
		RoomID:         r.id,
		GameType:       domain.GameType,
		BetAmount:      r.bet,
		Status:         r.phase,
		MinPlayers:     r.minPlayers,
		MaxPlayers:     r.maxPlayers,
		CurrentPlayers: len(r.seats),
		TotalPot:       r.pot,
		CreatorID:      r.creatorID,
		Players:        players,
	}
	if r.phase == domain.PhaseCountdown {
		secs := r.countdown
		view.CountdownSeconds = &secs
	}
	return view
}

// emit broadcasts an event to every connected seat of r. r.mu must be held.
func emit[T any](r *Room, typ string, data T) {
	msg, err := domain.EncodeEvent(typ, data)
	if err != nil {
		log.Printf("room %s: encode %s: %v", r.id, typ, err)
		return
	}
	r.enqueueLocked(msg, r.connectedLocked())
}

// emitTo sends an event to a single client through r's loop so it stays
// ordered with the room's broadcasts. r.mu must be held.
func emitTo[T any](r *Room, c Client, typ string, data T) {
	if c == nil {
		return
	}
	msg, err := domain.EncodeEvent(typ, data)
	if err != nil {
		log.Printf("room %s: encode %s: %v", r.id, typ, err)
		return
	}
	r.enqueueLocked(msg, []Client{c})
}

// emitError broadcasts a classified error to the room. r.mu must be held.
func emitError(r *Room, err error) {
	msg, encErr := domain.EncodeError(err)
	if encErr != nil {
		return
	}
	r.enqueueLocked(msg, r.connectedLocked())
}
