package domain

// Question is one timed multiple-choice question of a round. It is never
// modified once drawn.
type Question struct {
	QuestionID      string
	Text            string
	Options         []Option
	CorrectOptionID string
	TimeLimit       int
	Number          int
	Total           int
}

// Option is one answer choice.
type Option struct {
	OptionID string `json:"optionId"`
	Text     string `json:"optionText"`
	Order    int    `json:"optionOrder"`
}

// QuestionData is the broadcast form of a question. It never carries the answer.
type QuestionData struct {
	QuestionID     string   `json:"questionId"`
	QuestionText   string   `json:"questionText"`
	Options        []Option `json:"options"`
	TimeLimit      int      `json:"timeLimit"`
	QuestionNumber int      `json:"questionNumber"`
	TotalQuestions int      `json:"totalQuestions"`
}

// Public returns the broadcast form of q.
func (q Question) Public() QuestionData {
	opts := make([]Option, len(q.Options))
	copy(opts, q.Options)
	return QuestionData{
		QuestionID:     q.QuestionID,
		QuestionText:   q.Text,
		Options:        opts,
		TimeLimit:      q.TimeLimit,
		QuestionNumber: q.Number,
		TotalQuestions: q.Total,
	}
}

// HasOption reports whether optionID belongs to q.
func (q Question) HasOption(optionID string) bool {
	for _, o := range q.Options {
		if o.OptionID == optionID {
			return true
		}
	}
	return false
}
