package hub

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/devaloi/wagertrivia/internal/config"
	"github.com/devaloi/wagertrivia/internal/domain"
	"github.com/devaloi/wagertrivia/internal/sched"
	"github.com/devaloi/wagertrivia/internal/testutil"
)

// fixedQuiz serves questions q1..qn whose correct option is always "b".
type fixedQuiz struct{}

func (fixedQuiz) Draw(n, timeLimit int) ([]domain.Question, error) {
	qs := make([]domain.Question, n)
	for i := range qs {
		qs[i] = domain.Question{
			QuestionID: fmt.Sprintf("q%d", i+1),
			Text:       fmt.Sprintf("question %d", i+1),
			Options: []domain.Option{
				{OptionID: "a", Text: "wrong", Order: 1},
				{OptionID: "b", Text: "right", Order: 2},
				{OptionID: "c", Text: "wrong", Order: 3},
			},
			CorrectOptionID: "b",
			TimeLimit:       timeLimit,
			Number:          i + 1,
			Total:           n,
		}
	}
	return qs, nil
}

func testConfig() config.Config {
	return config.Config{
		MaxRooms:             10,
		MinBet:               10,
		MaxBet:               1000,
		MinPlayers:           2,
		MaxPlayers:           5,
		CountdownSeconds:     3,
		QuestionsPerGame:     10,
		TimePerQuestion:      15,
		BasePoints:           10,
		SpeedBonusMultiplier: 2,
		InitialBalance:       100,
		GameStartDelay:       3 * time.Second,
		ResultsDelay:         5 * time.Second,
		RoomRetention:        30 * time.Second,
		StoreTimeout:         time.Second,
		SettleRetries:        2,
		SettleRetryInterval:  time.Millisecond,
		PrizeTables: map[int][]float64{
			2: {0.80, 0.20},
			3: {0.60, 0.30, 0.10},
			4: {0.50, 0.30, 0.20, 0.00},
			5: {0.40, 0.30, 0.20, 0.10, 0.00},
		},
	}
}

type fixture struct {
	hub   *Hub
	clock *sched.Fake
	store *testutil.MockStore
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	clock := sched.NewFake()
	st := testutil.NewMockStore(cfg.InitialBalance)
	h := New(cfg, st, fixedQuiz{}, clock)
	go h.Run()
	t.Cleanup(h.Stop)
	return &fixture{hub: h, clock: clock, store: st}
}

// create opens a room for a new mock client.
func (f *fixture) create(t *testing.T, playerID string, bet int64) (*testutil.MockClient, domain.Room) {
	t.Helper()
	c := testutil.NewMockClient(playerID)
	room, err := f.hub.CreateRoom(context.Background(), c, playerID, bet)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return c, room
}

func (f *fixture) join(t *testing.T, roomID, playerID string) *testutil.MockClient {
	t.Helper()
	c := testutil.NewMockClient(playerID)
	if _, err := f.hub.JoinRoom(context.Background(), roomID, c, playerID); err != nil {
		t.Fatalf("join %s: %v", playerID, err)
	}
	return c
}

func (f *fixture) info(t *testing.T, roomID string) domain.Room {
	t.Helper()
	room, ok := f.hub.RoomInfo(roomID)
	if !ok {
		t.Fatalf("room %s not found", roomID)
	}
	return room
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestCreateThenLeaveLeavesNoRoom(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	for _, bet := range []int64{10, 11, 500, 999, 1000} {
		_, room := f.create(t, "alice", bet)
		if room.Status != domain.PhaseWaiting || room.TotalPot != bet || room.CurrentPlayers != 1 {
			t.Fatalf("bet %d: unexpected room %+v", bet, room)
		}
		if err := f.hub.LeaveRoom(room.RoomID, "alice"); err != nil {
			t.Fatalf("bet %d: leave: %v", bet, err)
		}
		if f.hub.RoomCount() != 0 {
			t.Fatalf("bet %d: expected no rooms, got %d", bet, f.hub.RoomCount())
		}
		if _, ok := f.hub.RoomInfo(room.RoomID); ok {
			t.Fatalf("bet %d: room still visible", bet)
		}
	}
	if len(f.hub.ListJoinable()) != 0 {
		t.Error("expected empty lobby")
	}
}

func TestCreateRoomInvalidBet(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	for _, bet := range []int64{0, 9, 1001} {
		_, err := f.hub.CreateRoom(context.Background(), testutil.NewMockClient("alice"), "alice", bet)
		if !errors.Is(err, domain.ErrInvalidBet) {
			t.Errorf("bet %d: expected ErrInvalidBet, got %v", bet, err)
		}
	}
	if f.hub.RoomCount() != 0 || f.store.Calls("CreateRoom") != 0 {
		t.Error("invalid bet must not create anything")
	}
}

func TestCreateRoomRollsBackOnStoreFailure(t *testing.T) {
	t.Parallel()
	for _, op := range []string{"EnsureGameType", "CreateRoom", "AddPlayer"} {
		f := newFixture(t)
		f.store.Fail(op, 1)
		_, err := f.hub.CreateRoom(context.Background(), testutil.NewMockClient("alice"), "alice", 50)
		if !errors.Is(err, domain.ErrPersistence) {
			t.Errorf("%s: expected ErrPersistence, got %v", op, err)
		}
		if f.hub.RoomCount() != 0 {
			t.Errorf("%s: room left in registry", op)
		}
		if op == "EnsureGameType" && f.store.Calls("CreateRoom") != 0 {
			t.Errorf("%s: room mirrored without a game type", op)
		}
	}
}

func TestCreateRoomStoreTimeout(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(c *config.Config) { c.StoreTimeout = 20 * time.Millisecond })
	f.store.SetDelay(time.Second)
	_, err := f.hub.CreateRoom(context.Background(), testutil.NewMockClient("alice"), "alice", 50)
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence on timeout, got %v", err)
	}
	if f.hub.RoomCount() != 0 {
		t.Error("room registered despite the timeout")
	}
}

func TestCreateRoomMaxRooms(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(c *config.Config) { c.MaxRooms = 1 })
	f.create(t, "alice", 50)
	_, err := f.hub.CreateRoom(context.Background(), testutil.NewMockClient("bob"), "bob", 50)
	if !errors.Is(err, domain.ErrTooManyRooms) {
		t.Errorf("expected ErrTooManyRooms, got %v", err)
	}
}

func TestCreateRoomNotifiesCreatorAndLobby(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	lobby := testutil.NewMockClient("watcher")
	f.hub.Register(lobby)

	alice, room := f.create(t, "alice", 50)
	eventually(t, "room:created", func() bool { return alice.Count(domain.MsgRoomCreated) == 1 })

	var list domain.RoomList
	if !lobby.Last(domain.MsgRoomUpdated, &list) {
		t.Fatal("lobby did not receive room:updated")
	}
	if len(list.AvailableRooms) != 1 || list.AvailableRooms[0].RoomID != room.RoomID {
		t.Errorf("unexpected lobby list: %+v", list)
	}

	f.hub.Unregister(lobby)
	lobby.Reset()
	f.create(t, "bob", 50)
	if lobby.Count(domain.MsgRoomUpdated) != 0 {
		t.Error("unregistered client still receives lobby updates")
	}
}

func TestJoinRoomErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(c *config.Config) { c.MaxPlayers = 3; c.MinPlayers = 3 })
	_, room := f.create(t, "alice", 50)
	ctx := context.Background()

	if _, err := f.hub.JoinRoom(ctx, "missing", testutil.NewMockClient("bob"), "bob"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Errorf("expected ErrRoomNotFound, got %v", err)
	}
	if _, err := f.hub.JoinRoom(ctx, room.RoomID, testutil.NewMockClient("alice"), "alice"); !errors.Is(err, domain.ErrPlayerAlreadySeated) {
		t.Errorf("expected ErrPlayerAlreadySeated, got %v", err)
	}
	f.join(t, room.RoomID, "bob")
	f.join(t, room.RoomID, "carol")
	if _, err := f.hub.JoinRoom(ctx, room.RoomID, testutil.NewMockClient("dave"), "dave"); !errors.Is(err, domain.ErrRoomFull) {
		t.Errorf("expected ErrRoomFull, got %v", err)
	}

	f.clock.Advance(3 * time.Second)
	if got := f.info(t, room.RoomID).Status; got != domain.PhaseInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", got)
	}
	if _, err := f.hub.JoinRoom(ctx, room.RoomID, testutil.NewMockClient("erin"), "erin"); !errors.Is(err, domain.ErrRoomNotJoinable) {
		t.Errorf("expected ErrRoomNotJoinable, got %v", err)
	}
	if err := f.hub.LeaveRoom(room.RoomID, "bob"); !errors.Is(err, domain.ErrRoomInProgress) {
		t.Errorf("expected ErrRoomInProgress on leave, got %v", err)
	}
}

func TestJoinRoomStoreFailureRollsBack(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_, room := f.create(t, "alice", 50)
	f.store.Fail("AddPlayer", 1)

	_, err := f.hub.JoinRoom(context.Background(), room.RoomID, testutil.NewMockClient("bob"), "bob")
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	got := f.info(t, room.RoomID)
	if got.CurrentPlayers != 1 || got.TotalPot != 50 || got.Status != domain.PhaseWaiting {
		t.Errorf("failed join changed the room: %+v", got)
	}
}

func TestPotTracksSeats(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(c *config.Config) { c.MinPlayers = 4 })
	_, room := f.create(t, "p0", 25)
	id := room.RoomID

	check := func(step string) {
		t.Helper()
		r := f.info(t, id)
		if r.TotalPot != r.BetAmount*int64(r.CurrentPlayers) {
			t.Fatalf("%s: pot %d != %d x %d", step, r.TotalPot, r.BetAmount, r.CurrentPlayers)
		}
		if r.CurrentPlayers != len(r.Players) {
			t.Fatalf("%s: player count %d != %d seats", step, r.CurrentPlayers, len(r.Players))
		}
	}
	check("created")
	for i := 1; i <= 4; i++ {
		f.join(t, id, fmt.Sprintf("p%d", i))
		check(fmt.Sprintf("join p%d", i))
	}
	if err := f.hub.LeaveRoom(id, "p2"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	check("leave p2")
	f.hub.Disconnect(id, "p3")
	check("disconnect p3")
	f.join(t, id, "p5")
	check("join p5")
	if got := f.info(t, id).TotalPot; got != 100 {
		t.Errorf("expected pot 100, got %d", got)
	}
}

func TestCreatorReassignedOnLeave(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(c *config.Config) { c.MinPlayers = 5 })
	_, room := f.create(t, "alice", 50)
	f.join(t, room.RoomID, "bob")
	f.join(t, room.RoomID, "carol")
	if err := f.hub.LeaveRoom(room.RoomID, "alice"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if got := f.info(t, room.RoomID).CreatorID; got != "bob" {
		t.Errorf("expected bob as creator, got %s", got)
	}
	if err := f.hub.LeaveRoom(room.RoomID, "alice"); !errors.Is(err, domain.ErrPlayerNotSeated) {
		t.Errorf("expected ErrPlayerNotSeated, got %v", err)
	}
}

func TestRejoinAfterLeaveStaysSeatedInStore(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(c *config.Config) { c.MinPlayers = 5 })
	_, room := f.create(t, "alice", 50)
	f.join(t, room.RoomID, "bob")
	for i := range 20 {
		if err := f.hub.LeaveRoom(room.RoomID, "bob"); err != nil {
			t.Fatalf("leave %d: %v", i, err)
		}
		f.join(t, room.RoomID, "bob")
		if got := f.store.Seated(room.RoomID); len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
			t.Fatalf("round %d: expected [alice bob] seated in store, got %v", i, got)
		}
	}
}

func TestListJoinableFollowsRoomChanges(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_, room := f.create(t, "alice", 50)

	list := func() []domain.Room {
		t.Helper()
		rooms := f.hub.ListJoinable()
		if len(rooms) > 1 {
			t.Fatalf("expected at most one room, got %d", len(rooms))
		}
		return rooms
	}
	if rooms := list(); len(rooms) != 1 || rooms[0].Status != domain.PhaseWaiting || rooms[0].CurrentPlayers != 1 {
		t.Fatalf("after create: %+v", rooms)
	}
	f.join(t, room.RoomID, "bob")
	rooms := list()
	if len(rooms) != 1 || rooms[0].Status != domain.PhaseCountdown || *rooms[0].CountdownSeconds != 3 {
		t.Fatalf("after join: %+v", rooms)
	}
	f.clock.Advance(time.Second)
	if rooms := list(); len(rooms) != 1 || *rooms[0].CountdownSeconds != 2 {
		t.Fatalf("after one tick: %+v", rooms)
	}
	if err := f.hub.LeaveRoom(room.RoomID, "bob"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if rooms := list(); len(rooms) != 1 || rooms[0].Status != domain.PhaseWaiting || rooms[0].TotalPot != 50 {
		t.Fatalf("after leave: %+v", rooms)
	}
	f.join(t, room.RoomID, "bob")
	f.clock.Advance(3 * time.Second)
	if rooms := list(); len(rooms) != 0 {
		t.Fatalf("started game still listed: %+v", rooms)
	}
}

func TestCountdownArmsOnMinimumAndCancelsBelowIt(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	alice, room := f.create(t, "alice", 50)
	bob := f.join(t, room.RoomID, "bob")

	r := f.info(t, room.RoomID)
	if r.Status != domain.PhaseCountdown || r.CountdownSeconds == nil || *r.CountdownSeconds != 3 {
		t.Fatalf("expected COUNTDOWN at 3s, got %+v", r)
	}
	f.clock.Advance(time.Second)
	if got := *f.info(t, room.RoomID).CountdownSeconds; got != 2 {
		t.Errorf("expected 2s left, got %d", got)
	}

	if err := f.hub.LeaveRoom(room.RoomID, "bob"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	r = f.info(t, room.RoomID)
	if r.Status != domain.PhaseWaiting || r.CountdownSeconds != nil {
		t.Fatalf("expected WAITING without countdown, got %+v", r)
	}
	if f.clock.Pending() != 0 {
		t.Errorf("expected countdown timer stopped, %d pending", f.clock.Pending())
	}
	f.clock.Advance(10 * time.Second)
	if got := f.info(t, room.RoomID).Status; got != domain.PhaseWaiting {
		t.Errorf("stale countdown moved room to %s", got)
	}

	eventually(t, "countdown:cancelled", func() bool { return alice.Count(domain.MsgCountdownCancelled) == 1 })
	if n := alice.Count(domain.MsgCountdownTick); n != 1 {
		t.Errorf("expected 1 tick, got %d", n)
	}
	var started domain.CountdownStarted
	if !bob.Last(domain.MsgCountdownStarted, &started) || started.Seconds != 3 {
		t.Errorf("expected countdown:started with 3 seconds, got %+v", started)
	}
}

func TestCancelCountdownIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	alice, room := f.create(t, "alice", 50)
	f.hub.CancelCountdown(room.RoomID)
	f.hub.CancelCountdown("missing")

	f.join(t, room.RoomID, "bob")
	f.hub.CancelCountdown(room.RoomID)
	f.hub.CancelCountdown(room.RoomID)
	if got := f.info(t, room.RoomID).Status; got != domain.PhaseWaiting {
		t.Fatalf("expected WAITING, got %s", got)
	}
	eventually(t, "countdown:cancelled", func() bool { return alice.Count(domain.MsgCountdownCancelled) >= 1 })
	time.Sleep(20 * time.Millisecond)
	if n := alice.Count(domain.MsgCountdownCancelled); n != 1 {
		t.Errorf("expected a single countdown:cancelled, got %d", n)
	}
}

func TestCountdownStartsGame(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	alice, room := f.create(t, "alice", 50)
	f.join(t, room.RoomID, "bob")

	f.clock.Advance(3 * time.Second)
	r := f.info(t, room.RoomID)
	if r.Status != domain.PhaseInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", r.Status)
	}
	for _, id := range []string{"alice", "bob"} {
		if bal, _ := f.store.Balance(context.Background(), id); bal != 50 {
			t.Errorf("%s: expected balance 50, got %d", id, bal)
		}
	}
	var started domain.GameStarted
	eventually(t, "game:started", func() bool { return alice.Last(domain.MsgGameStarted, &started) })
	if len(started.Players) != 2 || started.Pot != 100 {
		t.Errorf("unexpected game:started: %+v", started)
	}
	if n := alice.Count(domain.MsgCountdownTick); n != 3 {
		t.Errorf("expected 3 ticks, got %d", n)
	}
	if len(f.hub.ListJoinable()) != 0 {
		t.Error("room in progress must not be joinable")
	}
	eventually(t, "status mirror", func() bool {
		st := f.store.Statuses(room.RoomID)
		return len(st) == 2 && st[0] == domain.PhaseCountdown && st[1] == domain.PhaseInProgress
	})
}

func TestCountdownInsufficientFundsCancels(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	alice, room := f.create(t, "alice", 50)
	bob := f.join(t, room.RoomID, "bob")
	f.store.SetBalance("bob", 20)

	f.clock.Advance(3 * time.Second)
	if got := f.info(t, room.RoomID).Status; got != domain.PhaseCancelled {
		t.Fatalf("expected CANCELLED, got %s", got)
	}
	if bal, _ := f.store.Balance(context.Background(), "alice"); bal != 100 {
		t.Errorf("alice must not be charged, has %d", bal)
	}
	for _, c := range []*testutil.MockClient{alice, bob} {
		var msg domain.ErrorMessage
		eventually(t, "start error", func() bool { return c.Last(domain.MsgError, &msg) })
		if msg.Code != "GAME_START_ERROR" {
			t.Errorf("%s: expected GAME_START_ERROR, got %+v", c.ID, msg)
		}
		if c.Count(domain.MsgGameStarted) != 0 {
			t.Errorf("%s: received game:started for a cancelled room", c.ID)
		}
	}

	f.clock.Advance(30 * time.Second)
	if f.hub.RoomCount() != 0 {
		t.Error("cancelled room was not retired")
	}
}

func TestSessionFailureRefundsBets(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_, room := f.create(t, "alice", 50)
	if !f.store.HasRoom(room.RoomID) {
		t.Fatal("room not mirrored")
	}
	f.join(t, room.RoomID, "bob")
	f.store.Fail("CreateGameSession", 1)

	f.clock.Advance(3 * time.Second)
	if got := f.info(t, room.RoomID).Status; got != domain.PhaseCancelled {
		t.Fatalf("expected CANCELLED, got %s", got)
	}
	ctx := context.Background()
	for _, id := range []string{"alice", "bob"} {
		if bal, _ := f.store.Balance(ctx, id); bal != 100 {
			t.Errorf("%s: expected refund to 100, got %d", id, bal)
		}
		txs, _ := f.store.Transactions(ctx, id)
		if len(txs) != 2 || txs[1].Type != "REFUND" {
			t.Errorf("%s: expected BET then REFUND, got %+v", id, txs)
		}
	}
	if f.store.Sessions() != 0 {
		t.Error("no session should exist after a failed create")
	}
}

func TestCountdownEndsInExactlyOnePhase(t *testing.T) {
	t.Parallel()
	for _, fail := range []bool{false, true} {
		f := newFixture(t)
		_, room := f.create(t, "alice", 50)
		f.join(t, room.RoomID, "bob")
		if fail {
			f.store.Fail("DebitBets", 1)
		}
		f.clock.Advance(3 * time.Second)
		got := f.info(t, room.RoomID).Status
		want := domain.PhaseInProgress
		if fail {
			want = domain.PhaseCancelled
		}
		if got != want {
			t.Errorf("debit failure=%v: expected %s, got %s", fail, want, got)
		}
	}
}

func TestStopDrainsTimers(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_, room := f.create(t, "alice", 50)
	f.join(t, room.RoomID, "bob")
	f.hub.Stop()
	if f.clock.Pending() != 0 {
		t.Errorf("expected no pending timers, got %d", f.clock.Pending())
	}
	if f.hub.RoomCount() != 0 {
		t.Error("expected empty registry after stop")
	}
	if _, err := f.hub.CreateRoom(context.Background(), testutil.NewMockClient("carol"), "carol", 50); !errors.Is(err, domain.ErrTooManyRooms) {
		t.Errorf("expected stopped hub to refuse rooms, got %v", err)
	}
}
