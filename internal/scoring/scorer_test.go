package scoring

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
)

func TestScorerGradesAgainstAnswerKey(t *testing.T) {
	ctx := context.Background()
	store, scorer := newTestScorer(t)

	result, err := scorer.Submit(ctx, "a1", domain.AnswerMap{
		"mc":    domain.ScalarAnswer("4"),
		"cb":    domain.MultiAnswer("4", "2"), // order must not matter
		"tf":    domain.ScalarAnswer("false"),
		"blank": domain.ScalarAnswer("  Forty-Two "),
		"essay": domain.ScalarAnswer("a long opinion"),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// mc(1) + cb(2) + blank(3); tf wrong; essay excluded entirely.
	if result.Score != 6 || result.MaxScore != 7 {
		t.Fatalf("expected 6/7, got %v/%v", result.Score, result.MaxScore)
	}

	attempt, err := store.GetAttempt(ctx, "a1")
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if attempt.Active() || attempt.Score == nil || *attempt.Score != 6 {
		t.Fatalf("expected completed attempt with score 6, got %+v", attempt)
	}
}

func TestScorerPartialCheckboxGetsNoCredit(t *testing.T) {
	ctx := context.Background()
	_, scorer := newTestScorer(t)

	result, err := scorer.Submit(ctx, "a1", domain.AnswerMap{
		"cb": domain.MultiAnswer("2"),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Score != 0 {
		t.Fatalf("partial multi-select must score 0, got %v", result.Score)
	}
}

func TestScorerRejectsSecondSubmission(t *testing.T) {
	ctx := context.Background()
	_, scorer := newTestScorer(t)

	if _, err := scorer.Submit(ctx, "a1", nil); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := scorer.Submit(ctx, "a1", nil); !errors.Is(err, domain.ErrAttemptCompleted) {
		t.Fatalf("expected ErrAttemptCompleted, got %v", err)
	}
}

func newTestScorer(t *testing.T) (*memory.AttemptStore, *Scorer) {
	t.Helper()
	store := memory.NewAttemptStore()
	catalog := memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": {
			ID: "quiz-1",
			Questions: []domain.Question{
				{ID: "mc", Type: domain.QuestionMultipleChoice, CorrectAnswers: []string{"4"}, Points: 1},
				{ID: "cb", Type: domain.QuestionCheckbox, CorrectAnswers: []string{"2", "4"}, Points: 2},
				{ID: "tf", Type: domain.QuestionTrueFalse, CorrectAnswers: []string{"true"}}, // zero points defaults to 1
				{ID: "blank", Type: domain.QuestionFillInBlank, CorrectAnswers: []string{"forty-two"}, Points: 3},
				{ID: "essay", Type: domain.QuestionEssay, Points: 5},
			},
		},
	})
	if err := store.CreateAttempt(context.Background(), domain.Attempt{
		ID: "a1", QuizID: "quiz-1", UserID: "u1", AttemptNumber: 1,
	}); err != nil {
		t.Fatalf("seed attempt: %v", err)
	}
	return store, NewScorer(store, loaderCatalog{catalog}, zap.NewNop())
}

// loaderCatalog adapts a QuizLoader to the catalog interface without the TTL
// cache, which tests do not need.
type loaderCatalog struct {
	loader *memory.StaticQuizLoader
}

func (c loaderCatalog) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return c.loader.LoadQuiz(ctx, quizID)
}
