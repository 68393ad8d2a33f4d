package hub

import (
	"fmt"
	"log"
	"math"
	"slices"
	"time"

	"github.com/devaloi/wagertrivia/internal/domain"
)

type answer struct {
	optionID     string
	responseTime float64
}

type tally struct {
	name    string
	score   int
	correct int
}

// round is the question cycle of one game. players is fixed at start; seats
// never change while the room is IN_PROGRESS.
type round struct {
	sessionID string
	questions []domain.Question
	index     int
	status    domain.RoundStatus
	startedAt time.Time
	players   []string
	scores    map[string]*tally
	// answers holds the current question only.
	answers map[string]answer
}

func newRound(sessionID string, questions []domain.Question, seats []*seat) *round {
	rd := &round{
		sessionID: sessionID,
		questions: questions,
		status:    domain.RoundPending,
		players:   make([]string, len(seats)),
		scores:    make(map[string]*tally, len(seats)),
		answers:   make(map[string]answer, len(seats)),
	}
	for i, s := range seats {
		rd.players[i] = s.playerID
		rd.scores[s.playerID] = &tally{name: s.name}
	}
	return rd
}

func (rd *round) current() domain.Question {
	return rd.questions[rd.index]
}

// questionDue fires after the start delay and after each results delay.
func (h *Hub) questionDue(r *Room, epoch uint64) {
	r.mu.Lock()
	if r.closed || r.epoch != epoch || r.phase != domain.PhaseInProgress || r.round == nil {
		r.unlock()
		return
	}
	rd := r.round
	switch rd.status {
	case domain.RoundPending:
	case domain.RoundCollectingResults:
		rd.index++
	default:
		r.unlock()
		return
	}
	if rd.index < len(rd.questions) {
		h.showQuestionLocked(r)
		r.unlock()
		return
	}

	rd.status = domain.RoundFinished
	r.settling = true
	st := h.settlementLocked(r)
	r.unlock()
	h.settleRound(r, st)
}

func (h *Hub) showQuestionLocked(r *Room) {
	rd := r.round
	clear(rd.answers)
	rd.status = domain.RoundQuestionActive
	rd.startedAt = h.clock.Now()
	q := rd.current()
	emit(r, domain.MsgQuestionDisplayed, q.Public())

	epoch := r.nextEpochLocked()
	r.timer = h.clock.AfterFunc(time.Duration(q.TimeLimit)*time.Second, func() { h.questionExpired(r, epoch) })
	log.Printf("room %s: question %d/%d displayed", r.id, q.Number, q.Total)
}

func (h *Hub) questionExpired(r *Room, epoch uint64) {
	r.mu.Lock()
	defer r.unlock()
	if r.closed || r.epoch != epoch || r.phase != domain.PhaseInProgress ||
		r.round == nil || r.round.status != domain.RoundQuestionActive {
		return
	}
	r.timer = nil
	h.scoreQuestionLocked(r)
}

// SubmitAnswer records a player's answer to the active question. Answers for
// another question, repeated answers and answers arriving after scoring
// started are dropped. An option the question does not offer is rejected and
// leaves the player free to answer again. When every seated player has answered, the question
// is scored at once.
func (h *Hub) SubmitAnswer(roomID, playerID, questionID, optionID string, responseTime float64) error {
	r := h.room(roomID)
	if r == nil {
		return domain.ErrRoomNotFound
	}
	r.mu.Lock()
	defer r.unlock()
	if r.closed {
		return domain.ErrRoomNotFound
	}
	rd := r.round
	if rd == nil {
		return domain.ErrGameNotFound
	}
	if _, s := r.seatLocked(playerID); s == nil {
		return domain.ErrPlayerNotSeated
	}
	if r.phase != domain.PhaseInProgress || rd.status != domain.RoundQuestionActive || rd.current().QuestionID != questionID {
		log.Printf("room %s: stale answer from %s for %s dropped", r.id, playerID, questionID)
		return nil
	}
	if _, ok := rd.answers[playerID]; ok {
		log.Printf("room %s: duplicate answer from %s dropped", r.id, playerID)
		return nil
	}
	q := rd.current()
	if responseTime < 0 || responseTime > float64(q.TimeLimit) {
		log.Printf("room %s: answer from %s with response time %.2fs dropped", r.id, playerID, responseTime)
		return domain.Wrap(domain.ErrInvalidResponseTime,
			fmt.Sprintf("response time must be between 0 and %d seconds", q.TimeLimit))
	}

	if !q.HasOption(optionID) {
		log.Printf("room %s: answer from %s names unknown option %q", r.id, playerID, optionID)
		return domain.Wrap(domain.ErrInvalidPayload, fmt.Sprintf("option %q is not part of question %s", optionID, questionID))
	}

	rd.answers[playerID] = answer{optionID: optionID, responseTime: responseTime}
	emit(r, domain.MsgPlayerAnswered, domain.PlayerAnswered{RoomID: r.id, PlayerID: playerID, QuestionID: questionID})

	if len(rd.answers) == len(rd.players) {
		r.stopTimerLocked()
		h.scoreQuestionLocked(r)
	}
	return nil
}

// points awards a correct answer: the base plus a bonus for every second
// left on the clock.
func (h *Hub) points(timeLimit int, responseTime float64) int {
	left := max(0, float64(timeLimit)-responseTime)
	return h.cfg.BasePoints + int(math.Round(left*h.cfg.SpeedBonusMultiplier))
}

func (h *Hub) scoreQuestionLocked(r *Room) {
	rd := r.round
	rd.status = domain.RoundCollectingResults
	q := rd.current()

	results := make([]domain.QuestionResult, 0, len(rd.players))
	for _, id := range rd.players {
		t := rd.scores[id]
		res := domain.QuestionResult{
			PlayerID:     id,
			DisplayName:  t.name,
			ResponseTime: float64(q.TimeLimit),
		}
		if a, ok := rd.answers[id]; ok {
			res.ResponseTime = a.responseTime
			if a.optionID == q.CorrectOptionID {
				res.IsCorrect = true
				res.PointsEarned = h.points(q.TimeLimit, a.responseTime)
				t.score += res.PointsEarned
				t.correct++
			}
		}
		res.TotalScore = t.score
		results = append(results, res)
	}
	slices.SortStableFunc(results, func(a, b domain.QuestionResult) int {
		return b.TotalScore - a.TotalScore
	})

	emit(r, domain.MsgQuestionResults, domain.QuestionResults{
		QuestionID:      q.QuestionID,
		CorrectOptionID: q.CorrectOptionID,
		PlayerResults:   results,
	})
	log.Printf("room %s: question %d/%d scored, %d answers", r.id, q.Number, q.Total, len(rd.answers))

	epoch := r.nextEpochLocked()
	r.timer = h.clock.AfterFunc(h.cfg.ResultsDelay, func() { h.questionDue(r, epoch) })
}

// RoundState reports the progress of a room's round.
func (h *Hub) RoundState(roomID string) (domain.RoundState, error) {
	r := h.room(roomID)
	if r == nil {
		return domain.RoundState{}, domain.ErrRoomNotFound
	}
	r.mu.Lock()
	defer r.unlock()
	if r.closed {
		return domain.RoundState{}, domain.ErrRoomNotFound
	}
	rd := r.round
	if rd == nil {
		return domain.RoundState{}, domain.ErrGameNotFound
	}
	state := domain.RoundState{
		RoomID:               r.id,
		Status:               rd.status,
		CurrentQuestionIndex: rd.index,
		TotalQuestions:       len(rd.questions),
		PlayerScores:         make([]domain.PlayerScore, 0, len(rd.players)),
	}
	if rd.status == domain.RoundQuestionActive || rd.status == domain.RoundCollectingResults {
		started := rd.startedAt
		state.QuestionStartedAt = &started
	}
	for _, id := range rd.players {
		t := rd.scores[id]
		state.PlayerScores = append(state.PlayerScores, domain.PlayerScore{
			PlayerID:       id,
			DisplayName:    t.name,
			TotalScore:     t.score,
			CorrectAnswers: t.correct,
		})
	}
	return state, nil
}
