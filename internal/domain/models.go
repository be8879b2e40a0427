package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// QuestionType enumerates the question kinds the engine understands.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionCheckbox       QuestionType = "checkbox"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionEssay          QuestionType = "essay"
	QuestionFillInBlank    QuestionType = "fill_in_blank"
)

// Question is a single quiz question with its answer key.
// Essay questions carry no machine-checkable key; they are graded manually
// outside this service.
type Question struct {
	ID             string       `json:"id"`
	Type           QuestionType `json:"type"`
	Prompt         string       `json:"prompt"`
	Options        []string     `json:"options,omitempty"`
	CorrectAnswers []string     `json:"correctAnswers,omitempty"`
	Points         float64      `json:"points"` // defaults to 1 if zero
	OrderIndex     int          `json:"orderIndex"`
}

// Quiz is read-only quiz metadata plus its ordered question list.
type Quiz struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	TimeLimitMinutes *int       `json:"timeLimitMinutes"` // nil = untimed
	AttemptsAllowed  *int       `json:"attemptsAllowed"`  // nil = unlimited
	Questions        []Question `json:"questions"`
}

// Timed reports whether the quiz enforces a countdown.
func (q Quiz) Timed() bool {
	return q.TimeLimitMinutes != nil && *q.TimeLimitMinutes > 0
}

// TimeLimit returns the quiz duration, or zero for untimed quizzes.
func (q Quiz) TimeLimit() time.Duration {
	if !q.Timed() {
		return 0
	}
	return time.Duration(*q.TimeLimitMinutes) * time.Minute
}

// Answer holds a learner's response to one question: either a scalar string
// or an ordered multi-select. Exactly one of the two forms is populated.
type Answer struct {
	Value  string
	Values []string
}

// ScalarAnswer wraps a single-valued response.
func ScalarAnswer(v string) Answer { return Answer{Value: v} }

// MultiAnswer wraps a multi-select response.
func MultiAnswer(vs ...string) Answer { return Answer{Values: vs} }

// Multi reports whether the answer is a multi-select.
func (a Answer) Multi() bool { return a.Values != nil }

// Empty reports whether the answer carries no usable response.
func (a Answer) Empty() bool {
	if a.Multi() {
		return len(a.Values) == 0
	}
	return a.Value == ""
}

// MarshalJSON encodes the wire form: a bare string or an array of strings.
func (a Answer) MarshalJSON() ([]byte, error) {
	if a.Multi() {
		return json.Marshal(a.Values)
	}
	return json.Marshal(a.Value)
}

// UnmarshalJSON accepts either wire form.
func (a *Answer) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = Answer{Value: s}
		return nil
	}
	var vs []string
	if err := json.Unmarshal(data, &vs); err == nil {
		*a = Answer{Values: vs}
		return nil
	}
	return fmt.Errorf("answer must be a string or an array of strings")
}

// AnswerMap buffers responses keyed by question ID.
type AnswerMap map[string]Answer

// Clone returns a deep copy so stored attempts never alias caller maps.
func (m AnswerMap) Clone() AnswerMap {
	if m == nil {
		return nil
	}
	out := make(AnswerMap, len(m))
	for qid, ans := range m {
		if ans.Multi() {
			ans.Values = append([]string(nil), ans.Values...)
		}
		out[qid] = ans
	}
	return out
}

// Attempt is one learner's pass at a quiz. The server-side row backing it is
// the single shared mutable resource; TimerStartedAt, CompletedAt and the
// score fields are owned by the server, never by any client's local view.
type Attempt struct {
	ID                  string     `json:"id"`
	QuizID              string     `json:"quizId"`
	UserID              string     `json:"userId"`
	AttemptNumber       int        `json:"attemptNumber"`
	StartedAt           time.Time  `json:"startedAt"`
	CompletedAt         *time.Time `json:"completedAt"`
	Answers             AnswerMap  `json:"answers"`
	Score               *float64   `json:"score"`
	MaxScore            *float64   `json:"maxScore"`
	TimerStartedAt      *time.Time `json:"timerStartedAt"`
	TimerActive         bool       `json:"isTimerActive"`
	RemainingCheckpoint *int       `json:"timeRemainingSecondsCheckpoint"` // advisory only
}

// Active reports whether the attempt is still open for answers.
func (a Attempt) Active() bool { return a.CompletedAt == nil }

// TimerSnapshot is the local-cache entry for display continuity across
// reloads. It is provisional: the authoritative recompute always wins.
type TimerSnapshot struct {
	AttemptID        string    `json:"attemptId"`
	RemainingSeconds int       `json:"remainingSeconds"`
	LastUpdatedAt    time.Time `json:"lastUpdatedAt"`
}

// ScoreResult is the Scoring Service's authoritative outcome.
type ScoreResult struct {
	AttemptID string  `json:"attemptId"`
	Score     float64 `json:"score"`
	MaxScore  float64 `json:"maxScore"`
}
