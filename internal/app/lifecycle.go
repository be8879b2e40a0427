package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/metrics"
)

// ResolveMode tells the caller how to present the resolved attempt.
type ResolveMode string

const (
	// ModeResume continues an in-progress attempt with its buffered answers.
	ModeResume ResolveMode = "resume"
	// ModeNewlyCreated presents a fresh attempt.
	ModeNewlyCreated ResolveMode = "new"
	// ModeLimitReached presents the most recent attempt read-only.
	ModeLimitReached ResolveMode = "limit_reached"
)

// Resolution is the outcome of resolving a (quiz, user) pair.
type Resolution struct {
	Attempt          domain.Attempt `json:"attempt"`
	Mode             ResolveMode    `json:"mode"`
	RemainingSeconds int            `json:"remainingSeconds"`
}

// AttemptService decides, per (quiz, user), whether to resume an in-progress
// attempt, create a new one, or surface a read-only limit-reached view, and
// owns the remaining attempt use cases around it. Store errors (creation
// races, network failures) are surfaced for the caller to retry; the service
// performs no implicit retries.
type AttemptService struct {
	store      AttemptStore
	catalog    QuizCatalog
	reconciler *Reconciler
	supervisor *CountdownSupervisor
	clock      func() time.Time
	newID      func() string
	logger     *zap.Logger
}

func NewAttemptService(store AttemptStore, catalog QuizCatalog, reconciler *Reconciler, supervisor *CountdownSupervisor, logger *zap.Logger) *AttemptService {
	return &AttemptService{
		store:      store,
		catalog:    catalog,
		reconciler: reconciler,
		supervisor: supervisor,
		clock:      time.Now,
		newID:      uuid.NewString,
		logger:     logger,
	}
}

// NewAttemptServiceWithClock is test-only for deterministic time and IDs.
func NewAttemptServiceWithClock(store AttemptStore, catalog QuizCatalog, reconciler *Reconciler, supervisor *CountdownSupervisor, logger *zap.Logger, now func() time.Time, newID func() string) *AttemptService {
	svc := NewAttemptService(store, catalog, reconciler, supervisor, logger)
	svc.clock = now
	svc.newID = newID
	return svc
}

// Resolve loads or creates the attempt for the pair. An active attempt whose
// authoritative remaining time already lapsed (the learner was away past the
// deadline) is auto-submitted through the countdown's one-shot expiry path
// before the attempts-allowed policy is evaluated.
func (s *AttemptService) Resolve(ctx context.Context, quizID, userID string) (Resolution, error) {
	quiz, err := s.catalog.GetQuiz(ctx, quizID)
	if err != nil {
		return Resolution{}, err
	}

	attempts, err := s.store.AttemptsByQuizUser(ctx, quizID, userID)
	if err != nil {
		return Resolution{}, err
	}

	if active, ok := activeAttempt(attempts); ok {
		remaining := s.reconciler.Remaining(ctx, active, quiz)
		if quiz.Timed() && active.TimerStartedAt != nil && remaining == 0 {
			s.logger.Info("attempt expired while offline, auto-submitting on load",
				zap.String("attempt_id", active.ID),
				zap.String("quiz_id", quizID),
				zap.String("user_id", userID),
			)
			s.supervisor.TriggerExpiry(ctx, active.ID, quiz)
			attempts, err = s.store.AttemptsByQuizUser(ctx, quizID, userID)
			if err != nil {
				return Resolution{}, err
			}
		} else {
			return Resolution{Attempt: active, Mode: ModeResume, RemainingSeconds: remaining}, nil
		}
	}

	completed := completedCount(attempts)
	if quiz.AttemptsAllowed != nil && completed >= *quiz.AttemptsAllowed {
		res := Resolution{Mode: ModeLimitReached}
		if len(attempts) > 0 {
			res.Attempt = attempts[0]
		}
		return res, nil
	}

	attempt := domain.Attempt{
		ID:            s.newID(),
		QuizID:        quizID,
		UserID:        userID,
		AttemptNumber: completed + 1,
		StartedAt:     s.clock(),
		Answers:       domain.AnswerMap{},
	}
	if err := s.store.CreateAttempt(ctx, attempt); err != nil {
		return Resolution{}, err
	}

	metrics.AttemptsCreated.WithLabelValues(quizID).Inc()
	s.logger.Info("attempt created",
		zap.String("attempt_id", attempt.ID),
		zap.String("quiz_id", quizID),
		zap.String("user_id", userID),
		zap.Int("attempt_number", attempt.AttemptNumber),
	)

	remaining := s.reconciler.Remaining(ctx, attempt, quiz)
	return Resolution{Attempt: attempt, Mode: ModeNewlyCreated, RemainingSeconds: remaining}, nil
}

// StartTimer begins the countdown for the attempt and returns the
// authoritative server start time.
func (s *AttemptService) StartTimer(ctx context.Context, attemptID string) (time.Time, error) {
	attempt, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return time.Time{}, err
	}
	if !attempt.Active() {
		return time.Time{}, domain.ErrAttemptCompleted
	}
	quiz, err := s.catalog.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return time.Time{}, err
	}

	engine := s.supervisor.GetOrCreate(attemptID, quiz)
	if err := engine.Start(ctx); err != nil {
		return time.Time{}, err
	}

	attempt, err = s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return time.Time{}, err
	}
	if attempt.TimerStartedAt == nil {
		return time.Time{}, domain.ErrTimerNotConfigured
	}
	return *attempt.TimerStartedAt, nil
}

// SaveAnswers buffers the learner's responses on the active attempt.
func (s *AttemptService) SaveAnswers(ctx context.Context, attemptID string, answers domain.AnswerMap) error {
	return s.store.SaveAnswers(ctx, attemptID, answers.Clone())
}

// Checkpoint records an advisory remaining-seconds report from a client.
func (s *AttemptService) Checkpoint(ctx context.Context, attemptID string, remainingSeconds int) error {
	return s.store.Checkpoint(ctx, attemptID, remainingSeconds)
}

// Get returns the attempt with its authoritative remaining seconds, ready
// for the reconciliation a fresh device performs on load.
func (s *AttemptService) Get(ctx context.Context, attemptID string) (domain.Attempt, int, error) {
	attempt, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, 0, err
	}
	quiz, err := s.catalog.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.Attempt{}, 0, err
	}
	return attempt, s.reconciler.Remaining(ctx, attempt, quiz), nil
}

// Watch returns the countdown engine for the attempt so a caller can
// subscribe to tick updates, creating an Inactive engine if needed.
func (s *AttemptService) Watch(ctx context.Context, attemptID string) (*Countdown, error) {
	attempt, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	quiz, err := s.catalog.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}
	engine := s.supervisor.GetOrCreate(attemptID, quiz)
	// A reload mid-attempt finds the timer already running server-side;
	// Start is idempotent and resumes local ticking from the authoritative
	// timestamp.
	if attempt.Active() && attempt.TimerStartedAt != nil {
		if err := engine.Start(ctx); err != nil && !errors.Is(err, domain.ErrAttemptCompleted) {
			return nil, err
		}
	}
	return engine, nil
}

// Provisional exposes the cached timer snapshot for display before the
// authoritative fetch resolves.
func (s *AttemptService) Provisional(ctx context.Context, attemptID string) (domain.TimerSnapshot, bool) {
	return s.reconciler.Provisional(ctx, attemptID)
}

// Reset removes all of the user's attempts for the quiz, clearing the
// limit-reached and active-attempt states. Privileged instructor action.
func (s *AttemptService) Reset(ctx context.Context, quizID, userID string) error {
	attempts, err := s.store.AttemptsByQuizUser(ctx, quizID, userID)
	if err != nil {
		return err
	}
	for _, attempt := range attempts {
		s.supervisor.Complete(attempt.ID)
	}
	if err := s.store.ResetAttempts(ctx, quizID, userID); err != nil {
		return err
	}
	s.logger.Info("attempts reset", zap.String("quiz_id", quizID), zap.String("user_id", userID))
	return nil
}

func activeAttempt(attempts []domain.Attempt) (domain.Attempt, bool) {
	for _, attempt := range attempts {
		if attempt.Active() {
			return attempt, true
		}
	}
	return domain.Attempt{}, false
}

func completedCount(attempts []domain.Attempt) int {
	n := 0
	for _, attempt := range attempts {
		if !attempt.Active() {
			n++
		}
	}
	return n
}
