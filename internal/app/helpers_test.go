package app_test

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
	"quiz-attempt-service/internal/scoring"
)

// fakeClock is a manually advanced time source shared by every component in
// a fixture, so tests simulate ticks and deadlines without real delays.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	clock      *fakeClock
	store      *memory.AttemptStore
	cache      *memory.TimerCache
	grades     *memory.GradeSink
	supervisor *app.CountdownSupervisor
	submitter  *app.SubmissionCoordinator
	svc        *app.AttemptService
}

func newFixture(quizzes map[string]domain.Quiz) *fixture {
	clock := newFakeClock()
	store := memory.NewAttemptStoreWithClock(clock.Now)
	cache := memory.NewTimerCache()
	catalog := memory.NewQuizCatalog(memory.NewStaticQuizLoader(quizzes), 5*time.Minute)
	log := zap.NewNop()

	supervisor := app.NewCountdownSupervisor(store, cache, log, app.CountdownConfig{
		TickInterval:       time.Millisecond,
		CheckpointInterval: 5 * time.Millisecond,
		Clock:              clock.Now,
	})
	scorer := scoring.NewScorer(store, catalog, log)
	grades := memory.NewGradeSink()
	submitter := app.NewSubmissionCoordinator(store, scorer, grades, supervisor, log)
	supervisor.SetExpiryHandler(app.AutoSubmitHandler(store, submitter, log))

	reconciler := app.NewReconcilerWithClock(cache, log, clock.Now)

	seq := 0
	svc := app.NewAttemptServiceWithClock(store, catalog, reconciler, supervisor, log, clock.Now, func() string {
		seq++
		return fmt.Sprintf("attempt-%d", seq)
	})

	return &fixture{
		clock:      clock,
		store:      store,
		cache:      cache,
		grades:     grades,
		supervisor: supervisor,
		submitter:  submitter,
		svc:        svc,
	}
}

func intPtr(v int) *int { return &v }

func timedQuiz(minutes int, attemptsAllowed *int) map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:               "quiz-1",
			Title:            "Timed quiz",
			TimeLimitMinutes: intPtr(minutes),
			AttemptsAllowed:  attemptsAllowed,
			Questions:        threeQuestions(),
		},
	}
}

func untimedQuiz(attemptsAllowed *int) map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:              "quiz-1",
			Title:           "Untimed quiz",
			AttemptsAllowed: attemptsAllowed,
			Questions:       threeQuestions(),
		},
	}
}

func threeQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:             "q1",
			Type:           domain.QuestionMultipleChoice,
			Prompt:         "What is 2 + 2?",
			Options:        []string{"3", "4", "5"},
			CorrectAnswers: []string{"4"},
			Points:         1,
			OrderIndex:     0,
		},
		{
			ID:             "q2",
			Type:           domain.QuestionCheckbox,
			Prompt:         "Select the even numbers",
			Options:        []string{"1", "2", "3", "4"},
			CorrectAnswers: []string{"2", "4"},
			Points:         2,
			OrderIndex:     1,
		},
		{
			ID:             "q3",
			Type:           domain.QuestionTrueFalse,
			Prompt:         "2 is prime",
			Options:        []string{"true", "false"},
			CorrectAnswers: []string{"true"},
			Points:         1,
			OrderIndex:     2,
		},
	}
}
