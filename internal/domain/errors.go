package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz metadata could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrAttemptNotFound is returned when an attempt ID does not exist.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrActiveAttemptExists rejects creating a second open attempt for the same quiz and user.
	ErrActiveAttemptExists = errors.New("an active attempt already exists")
	// ErrAttemptLimitReached rejects creating attempts beyond the quiz's attempts-allowed policy.
	ErrAttemptLimitReached = errors.New("attempt limit reached")
	// ErrAttemptCompleted rejects mutations of an attempt that already completed.
	ErrAttemptCompleted = errors.New("attempt already completed")
	// ErrTimerNotConfigured is returned when starting a timer on an untimed quiz.
	ErrTimerNotConfigured = errors.New("quiz has no time limit")
	// ErrConfirmationRequired is returned for manual submits lacking learner confirmation.
	ErrConfirmationRequired = errors.New("submission requires confirmation")
)
