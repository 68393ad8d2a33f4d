package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devaloi/wagertrivia/internal/domain"
	"github.com/devaloi/wagertrivia/internal/store"
)

// MockClient implements hub.Client for testing.
type MockClient struct {
	ID       string
	messages [][]byte
	mu       sync.Mutex
}

// NewMockClient creates a new MockClient for the given player.
func NewMockClient(playerID string) *MockClient {
	return &MockClient{ID: playerID}
}

// PlayerID returns the mock client's player.
func (m *MockClient) PlayerID() string { return m.ID }

// Send records a message sent to the mock client.
func (m *MockClient) Send(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.messages = append(m.messages, cp)
}

// GetMessages returns a copy of all messages received by the mock client.
func (m *MockClient) GetMessages() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([][]byte, len(m.messages))
	copy(cp, m.messages)
	return cp
}

// Types returns the type of every received message, in order.
func (m *MockClient) Types() []string {
	var types []string
	for _, msg := range m.GetMessages() {
		var env domain.Envelope
		if json.Unmarshal(msg, &env) == nil {
			types = append(types, env.Type)
		}
	}
	return types
}

// Count returns how many messages of the given type were received.
func (m *MockClient) Count(typ string) int {
	n := 0
	for _, t := range m.Types() {
		if t == typ {
			n++
		}
	}
	return n
}

// Last decodes the data of the most recent message of the given type into v.
// It reports whether such a message was received.
func (m *MockClient) Last(typ string, v any) bool {
	msgs := m.GetMessages()
	for i := len(msgs) - 1; i >= 0; i-- {
		var env domain.Envelope
		if json.Unmarshal(msgs[i], &env) != nil || env.Type != typ {
			continue
		}
		if v != nil {
			json.Unmarshal(env.Data, v)
		}
		return true
	}
	return false
}

// Reset drops all recorded messages.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

// ErrInjected is returned by MockStore operations configured to fail.
var ErrInjected = errors.New("injected failure")

// MockStore implements store.Store in memory for testing. Any operation can
// be made to fail a number of times with Fail.
type MockStore struct {
	mu             sync.Mutex
	initialBalance int64
	balances       map[string]int64
	rooms          map[string]store.RoomRecord
	seats          map[string][]string
	statuses       map[string][]domain.Phase
	sessions       map[string]domain.Phase
	ledger         []store.Transaction
	history        []store.HistoryEntry
	stats          map[string]store.StatsDelta
	failures       map[string]int
	calls          map[string]int
	delay          time.Duration
}

// NewMockStore creates a MockStore whose players start with initialBalance coins.
func NewMockStore(initialBalance int64) *MockStore {
	return &MockStore{
		initialBalance: initialBalance,
		balances:       make(map[string]int64),
		rooms:          make(map[string]store.RoomRecord),
		seats:          make(map[string][]string),
		statuses:       make(map[string][]domain.Phase),
		sessions:       make(map[string]domain.Phase),
		stats:          make(map[string]store.StatsDelta),
		failures:       make(map[string]int),
		calls:          make(map[string]int),
	}
}

// Fail makes the next times calls of op fail. A negative count fails forever.
func (s *MockStore) Fail(op string, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = times
}

// SetDelay makes every operation sleep for d before running.
func (s *MockStore) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// SetBalance overrides a player's coins.
func (s *MockStore) SetBalance(playerID string, coins int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[playerID] = coins
}

// Calls returns how many times op was invoked, failed calls included.
func (s *MockStore) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Statuses returns the recorded status changes of a room.
func (s *MockStore) Statuses(roomID string) []domain.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Phase(nil), s.statuses[roomID]...)
}

// Session returns the status of a session.
func (s *MockStore) Session(sessionID string) (domain.Phase, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	return st, ok
}

// Sessions returns the number of sessions created.
func (s *MockStore) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Seated returns the players the store has seated in a room, in join order.
func (s *MockStore) Seated(roomID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.seats[roomID])
}

// HasRoom reports whether a room was mirrored.
func (s *MockStore) HasRoom(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[roomID]
	return ok
}

// History returns the recorded history entries.
func (s *MockStore) History() []store.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.HistoryEntry(nil), s.history...)
}

// Stats returns the accumulated statistics of a player.
func (s *MockStore) Stats(playerID string) store.StatsDelta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats[playerID]
}

// begin records the call and reports an injected failure. It must be
// called without s.mu held.
func (s *MockStore) begin(ctx context.Context, op string) error {
	s.mu.Lock()
	s.calls[op]++
	delay := s.delay
	s.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.failures[op]; n != 0 {
		if n > 0 {
			s.failures[op] = n - 1
		}
		return fmt.Errorf("%s: %w", op, ErrInjected)
	}
	return nil
}

// EnsureGameType returns a fixed id.
func (s *MockStore) EnsureGameType(ctx context.Context) (string, error) {
	if err := s.begin(ctx, "EnsureGameType"); err != nil {
		return "", err
	}
	return "game-type-1", nil
}

// CreateRoom records the room.
func (s *MockStore) CreateRoom(ctx context.Context, room store.RoomRecord) error {
	if err := s.begin(ctx, "CreateRoom"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.RoomID] = room
	return nil
}

// AddPlayer seats the player and provisions their balance.
func (s *MockStore) AddPlayer(ctx context.Context, roomID, playerID, displayName string) error {
	if err := s.begin(ctx, "AddPlayer"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.balances[playerID]; !ok {
		s.balances[playerID] = s.initialBalance
	}
	if !slices.Contains(s.seats[roomID], playerID) {
		s.seats[roomID] = append(s.seats[roomID], playerID)
	}
	return nil
}

// RemovePlayer vacates the seat.
func (s *MockStore) RemovePlayer(ctx context.Context, roomID, playerID string) error {
	if err := s.begin(ctx, "RemovePlayer"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seats[roomID] = slices.DeleteFunc(s.seats[roomID], func(id string) bool { return id == playerID })
	return nil
}

// UpdateRoomStatus records the status.
func (s *MockStore) UpdateRoomStatus(ctx context.Context, roomID string, status domain.Phase) error {
	if err := s.begin(ctx, "UpdateRoomStatus"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[roomID] = append(s.statuses[roomID], status)
	return nil
}

// CreateGameSession opens a session.
func (s *MockStore) CreateGameSession(ctx context.Context, roomID string) (string, error) {
	if err := s.begin(ctx, "CreateGameSession"); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.sessions[id] = domain.PhaseInProgress
	return id, nil
}

// FinishGameSession closes a session.
func (s *MockStore) FinishGameSession(ctx context.Context, sessionID string, status domain.Phase) error {
	if err := s.begin(ctx, "FinishGameSession"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return store.ErrNotFound
	}
	s.sessions[sessionID] = status
	return nil
}

// DebitBets debits every player or none.
func (s *MockStore) DebitBets(ctx context.Context, roomID string, playerIDs []string, amount int64) ([]store.Transaction, error) {
	if err := s.begin(ctx, "DebitBets"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range playerIDs {
		if s.balances[id] < amount {
			return nil, domain.Wrap(domain.ErrInsufficientFunds, fmt.Sprintf("player %s has insufficient funds", id))
		}
	}
	var txs []store.Transaction
	for _, id := range playerIDs {
		txs = append(txs, s.applyLocked(roomID, id, store.TxBet, -amount))
	}
	return txs, nil
}

// RefundBets credits every player.
func (s *MockStore) RefundBets(ctx context.Context, roomID string, playerIDs []string, amount int64) ([]store.Transaction, error) {
	if err := s.begin(ctx, "RefundBets"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var txs []store.Transaction
	for _, id := range playerIDs {
		txs = append(txs, s.applyLocked(roomID, id, store.TxRefund, amount))
	}
	return txs, nil
}

// DistributeRewards credits every non-zero reward.
func (s *MockStore) DistributeRewards(ctx context.Context, roomID string, rewards []store.Reward) ([]store.Transaction, error) {
	if err := s.begin(ctx, "DistributeRewards"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var txs []store.Transaction
	for _, r := range rewards {
		if r.Amount > 0 {
			txs = append(txs, s.applyLocked(roomID, r.PlayerID, store.TxWin, r.Amount))
		}
	}
	return txs, nil
}

// RecordGameHistory appends the entries.
func (s *MockStore) RecordGameHistory(ctx context.Context, entries []store.HistoryEntry) error {
	if err := s.begin(ctx, "RecordGameHistory"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, entries...)
	return nil
}

// UpdatePlayerStats accumulates delta.
func (s *MockStore) UpdatePlayerStats(ctx context.Context, playerID string, d store.StatsDelta) error {
	if err := s.begin(ctx, "UpdatePlayerStats"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.stats[playerID]
	cur.GamesPlayed += d.GamesPlayed
	cur.GamesWon += d.GamesWon
	cur.TotalScore += d.TotalScore
	cur.CorrectAnswers += d.CorrectAnswers
	cur.TotalQuestions += d.TotalQuestions
	cur.CoinsWon += d.CoinsWon
	cur.CoinsLost += d.CoinsLost
	s.stats[playerID] = cur
	return nil
}

// Balance returns a player's coins.
func (s *MockStore) Balance(ctx context.Context, playerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	coins, ok := s.balances[playerID]
	if !ok {
		return 0, store.ErrNotFound
	}
	return coins, nil
}

// Transactions returns a player's ledger entries.
func (s *MockStore) Transactions(ctx context.Context, playerID string) ([]store.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var txs []store.Transaction
	for _, t := range s.ledger {
		if t.PlayerID == playerID {
			txs = append(txs, t)
		}
	}
	return txs, nil
}

// Close is a no-op for the mock store.
func (s *MockStore) Close() error { return nil }

func (s *MockStore) applyLocked(roomID, playerID string, typ store.TxType, delta int64) store.Transaction {
	before := s.balances[playerID]
	amount := delta
	if amount < 0 {
		amount = -amount
	}
	t := store.Transaction{
		ID:            uuid.NewString(),
		PlayerID:      playerID,
		RoomID:        roomID,
		Type:          typ,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  before + delta,
		CreatedAt:     time.Now().UTC(),
	}
	s.balances[playerID] = t.BalanceAfter
	s.ledger = append(s.ledger, t)
	return t
}
