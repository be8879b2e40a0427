package app

import (
	"context"
	"time"

	"quiz-attempt-service/internal/domain"
)

// AttemptStore is the durable record of attempts. The server-side
// implementation is the arbiter of truth for timerStartedAt, completedAt and
// the score fields; StartTimer and Complete must be idempotent (first-writer-wins
// and reject-if-completed respectively) because any number of clients may race
// on the same attempt.
type AttemptStore interface {
	// CreateAttempt persists a new attempt. It fails with
	// domain.ErrActiveAttemptExists when an open attempt for the same
	// (quiz, user) already exists.
	CreateAttempt(ctx context.Context, attempt domain.Attempt) error
	// AttemptsByQuizUser returns all attempts for the pair, newest first.
	AttemptsByQuizUser(ctx context.Context, quizID, userID string) ([]domain.Attempt, error)
	GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error)
	// StartTimer records the timer start exactly once and returns the
	// authoritative start time. A call that loses the race receives the
	// original timestamp, not an error.
	StartTimer(ctx context.Context, attemptID string) (time.Time, error)
	// Checkpoint stores an advisory remaining-seconds report. Best effort.
	Checkpoint(ctx context.Context, attemptID string, remainingSeconds int) error
	// SaveAnswers buffers answers while the attempt is active.
	SaveAnswers(ctx context.Context, attemptID string, answers domain.AnswerMap) error
	// Complete freezes answers and writes score/maxScore atomically with
	// completedAt. A second call fails with domain.ErrAttemptCompleted and
	// leaves the stored score untouched.
	Complete(ctx context.Context, attemptID string, answers domain.AnswerMap, score, maxScore float64) (domain.Attempt, error)
	// ResetAttempts removes every attempt the user has for the quiz
	// (privileged instructor action).
	ResetAttempts(ctx context.Context, quizID, userID string) error
}

// QuizCatalog is the read-only source of quiz metadata and questions.
type QuizCatalog interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// TimerCache is the small durable display-continuity cache keyed by attempt
// id. Values are provisional and must be overwritten by the authoritative
// recompute as soon as it resolves.
type TimerCache interface {
	Put(ctx context.Context, snap domain.TimerSnapshot) error
	Get(ctx context.Context, attemptID string) (domain.TimerSnapshot, bool, error)
	Delete(ctx context.Context, attemptID string) error
}

// ScoringService grades an attempt against the quiz answer key and atomically
// marks it complete. Submitting an already-completed attempt fails with
// domain.ErrAttemptCompleted without re-scoring.
type ScoringService interface {
	Submit(ctx context.Context, attemptID string, answers domain.AnswerMap) (domain.ScoreResult, error)
}

// GradeSink receives the final score for an external assignment context
// (gradebook upsert). Failures never block or roll back the submission.
type GradeSink interface {
	RecordGrade(ctx context.Context, attempt domain.Attempt, result domain.ScoreResult) error
}
