// Package quiz supplies the questions of a round.
package quiz

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"

	"github.com/devaloi/wagertrivia/internal/domain"
)

// Source draws the questions of one round.
type Source interface {
	// Draw returns up to n distinct questions, each with the given time limit.
	Draw(n, timeLimit int) ([]domain.Question, error)
}

// Entry is one question of a bank.
type Entry struct {
	Text     string   `json:"text"`
	Options  []string `json:"options"`
	Correct  int      `json:"correct"`
	Category string   `json:"category"`
}

//go:embed questions.json
var defaultBank []byte

// Bank is an in-memory question bank.
type Bank struct {
	entries []Entry
	mu      sync.Mutex
	rng     *rand.Rand
}

// NewBank validates entries and builds a Bank.
func NewBank(entries []Entry, rng *rand.Rand) (*Bank, error) {
	if len(entries) == 0 {
		return nil, errors.New("quiz: empty bank")
	}
	for i, e := range entries {
		if len(e.Options) < 2 {
			return nil, fmt.Errorf("quiz: entry %d has fewer than two options", i)
		}
		if e.Correct < 0 || e.Correct >= len(e.Options) {
			return nil, fmt.Errorf("quiz: entry %d correct index %d out of range", i, e.Correct)
		}
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Bank{entries: entries, rng: rng}, nil
}

// Default returns the embedded question bank.
func Default() (*Bank, error) {
	var entries []Entry
	if err := json.Unmarshal(defaultBank, &entries); err != nil {
		return nil, fmt.Errorf("quiz: decode bank: %w", err)
	}
	return NewBank(entries, nil)
}

// Size returns the number of questions in the bank.
func (b *Bank) Size() int {
	return len(b.entries)
}

// Draw picks questions without replacement. When the bank is smaller than n
// the round is shortened to the bank size.
func (b *Bank) Draw(n, timeLimit int) ([]domain.Question, error) {
	if n <= 0 {
		return nil, fmt.Errorf("quiz: cannot draw %d questions", n)
	}
	b.mu.Lock()
	order := b.rng.Perm(len(b.entries))
	b.mu.Unlock()

	n = min(n, len(order))
	questions := make([]domain.Question, 0, n)
	for i, idx := range order[:n] {
		e := b.entries[idx]
		q := domain.Question{
			QuestionID: uuid.NewString(),
			Text:       e.Text,
			Options:    make([]domain.Option, len(e.Options)),
			TimeLimit:  timeLimit,
			Number:     i + 1,
			Total:      n,
		}
		for j, text := range e.Options {
			q.Options[j] = domain.Option{OptionID: uuid.NewString(), Text: text, Order: j + 1}
		}
		q.CorrectOptionID = q.Options[e.Correct].OptionID
		questions = append(questions, q)
	}
	return questions, nil
}
