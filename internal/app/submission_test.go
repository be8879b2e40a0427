package app_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

func TestNormalizeAnswers(t *testing.T) {
	raw := domain.AnswerMap{
		"q1": domain.ScalarAnswer("4"),
		"q2": domain.MultiAnswer("2", "4", "2", "", "4"),
		"q3": domain.ScalarAnswer(""),
		"q4": domain.MultiAnswer("", ""),
	}
	got := app.NormalizeAnswers(raw)

	if len(got) != 2 {
		t.Fatalf("expected empty answers dropped, got %v", got)
	}
	if got["q1"].Value != "4" {
		t.Fatalf("scalar answer mangled: %+v", got["q1"])
	}
	if !reflect.DeepEqual(got["q2"].Values, []string{"2", "4"}) {
		t.Fatalf("expected ordered dedupe, got %v", got["q2"].Values)
	}
}

func TestSubmitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(untimedQuiz(nil))

	res, err := f.svc.Resolve(ctx, "quiz-1", "u1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	answers := domain.AnswerMap{"q1": domain.ScalarAnswer("4"), "q3": domain.ScalarAnswer("true")}

	first, err := f.submitter.Submit(ctx, res.Attempt.ID, answers, false)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	attemptAfterFirst, _ := f.store.GetAttempt(ctx, res.Attempt.ID)

	// The retry (or the other tab) gets the stored result, not a re-score.
	second, err := f.submitter.Submit(ctx, res.Attempt.ID, domain.AnswerMap{"q1": domain.ScalarAnswer("5")}, false)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if first.Score != second.Score || first.MaxScore != second.MaxScore {
		t.Fatalf("idempotence broken: %+v vs %+v", first, second)
	}

	attemptAfterSecond, _ := f.store.GetAttempt(ctx, res.Attempt.ID)
	if !attemptAfterSecond.CompletedAt.Equal(*attemptAfterFirst.CompletedAt) {
		t.Fatalf("second submit altered stored state")
	}
	if !reflect.DeepEqual(attemptAfterFirst.Answers, attemptAfterSecond.Answers) {
		t.Fatalf("second submit altered frozen answers")
	}
}

func TestSubmitRecordsGrade(t *testing.T) {
	ctx := context.Background()
	f := newFixture(untimedQuiz(nil))

	res, err := f.svc.Resolve(ctx, "quiz-1", "u1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	result, err := f.submitter.Submit(ctx, res.Attempt.ID, domain.AnswerMap{"q1": domain.ScalarAnswer("4")}, false)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	grade, ok := f.grades.Grade(res.Attempt.ID)
	if !ok || grade.Score != result.Score {
		t.Fatalf("expected gradebook upsert with %v, got %v ok=%v", result, grade, ok)
	}
}

type failingScorer struct{ err error }

func (s *failingScorer) Submit(context.Context, string, domain.AnswerMap) (domain.ScoreResult, error) {
	return domain.ScoreResult{}, s.err
}

func TestFailedSubmitLeavesAttemptRetryable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(untimedQuiz(nil))

	res, err := f.svc.Resolve(ctx, "quiz-1", "u1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	scoreErr := errors.New("scoring backend unavailable")
	flaky := app.NewSubmissionCoordinator(f.store, &failingScorer{err: scoreErr}, nil, nil, zap.NewNop())
	if _, err := flaky.Submit(ctx, res.Attempt.ID, nil, false); !errors.Is(err, scoreErr) {
		t.Fatalf("expected scoring error surfaced, got %v", err)
	}

	attempt, err := f.store.GetAttempt(ctx, res.Attempt.ID)
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if !attempt.Active() {
		t.Fatalf("failed submit must leave the attempt mutable for retry")
	}

	// The retry through the healthy path succeeds.
	if _, err := f.submitter.Submit(ctx, res.Attempt.ID, nil, false); err != nil {
		t.Fatalf("retry submit: %v", err)
	}
}
