package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quiz-attempt-service/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptStore. It
// enforces the same invariants a production store backs with constraints:
// at most one active attempt per (quiz, user), first-writer-wins timer start
// and reject-if-completed completion.
type AttemptStore struct {
	clock func() time.Time

	mu       sync.RWMutex
	attempts map[string]*domain.Attempt
}

func NewAttemptStore() *AttemptStore {
	return NewAttemptStoreWithClock(time.Now)
}

// NewAttemptStoreWithClock allows deterministic timestamps in tests.
func NewAttemptStoreWithClock(now func() time.Time) *AttemptStore {
	return &AttemptStore{
		clock:    now,
		attempts: make(map[string]*domain.Attempt),
	}
}

func (s *AttemptStore) CreateAttempt(_ context.Context, attempt domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.attempts {
		if existing.QuizID == attempt.QuizID && existing.UserID == attempt.UserID && existing.Active() {
			return domain.ErrActiveAttemptExists
		}
	}
	attempt.Answers = attempt.Answers.Clone()
	s.attempts[attempt.ID] = &attempt
	return nil
}

func (s *AttemptStore) AttemptsByQuizUser(_ context.Context, quizID, userID string) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Attempt
	for _, attempt := range s.attempts {
		if attempt.QuizID == quizID && attempt.UserID == userID {
			out = append(out, copyAttempt(attempt))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].AttemptNumber > out[j].AttemptNumber
	})
	return out, nil
}

func (s *AttemptStore) GetAttempt(_ context.Context, attemptID string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return copyAttempt(attempt), nil
}

func (s *AttemptStore) StartTimer(_ context.Context, attemptID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return time.Time{}, domain.ErrAttemptNotFound
	}
	if !attempt.Active() {
		return time.Time{}, domain.ErrAttemptCompleted
	}
	// First writer wins; later callers converge on the original timestamp.
	if attempt.TimerStartedAt != nil {
		return *attempt.TimerStartedAt, nil
	}
	now := s.clock()
	attempt.TimerStartedAt = &now
	attempt.TimerActive = true
	return now, nil
}

func (s *AttemptStore) Checkpoint(_ context.Context, attemptID string, remainingSeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	if !attempt.Active() {
		return domain.ErrAttemptCompleted
	}
	attempt.RemainingCheckpoint = &remainingSeconds
	return nil
}

func (s *AttemptStore) SaveAnswers(_ context.Context, attemptID string, answers domain.AnswerMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	if !attempt.Active() {
		return domain.ErrAttemptCompleted
	}
	attempt.Answers = answers.Clone()
	return nil
}

func (s *AttemptStore) Complete(_ context.Context, attemptID string, answers domain.AnswerMap, score, maxScore float64) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if !attempt.Active() {
		return domain.Attempt{}, domain.ErrAttemptCompleted
	}
	now := s.clock()
	attempt.Answers = answers.Clone()
	attempt.Score = &score
	attempt.MaxScore = &maxScore
	attempt.CompletedAt = &now
	attempt.TimerActive = false
	return copyAttempt(attempt), nil
}

func (s *AttemptStore) ResetAttempts(_ context.Context, quizID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, attempt := range s.attempts {
		if attempt.QuizID == quizID && attempt.UserID == userID {
			delete(s.attempts, id)
		}
	}
	return nil
}

func copyAttempt(attempt *domain.Attempt) domain.Attempt {
	out := *attempt
	out.Answers = attempt.Answers.Clone()
	return out
}
