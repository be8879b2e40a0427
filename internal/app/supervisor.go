package app

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"quiz-attempt-service/internal/domain"
)

// CountdownSupervisor owns the countdown engines, one per attempt being
// observed in this process. Engines are purely local machinery: dropping one
// never touches server timer state, and a fresh engine reconverges from the
// store on the next load.
type CountdownSupervisor struct {
	store  AttemptStore
	cache  TimerCache
	logger *zap.Logger
	cfg    CountdownConfig

	mu       sync.Mutex
	onExpire func(ctx context.Context, attemptID string)
	engines  map[string]*Countdown
}

func NewCountdownSupervisor(store AttemptStore, cache TimerCache, logger *zap.Logger, cfg CountdownConfig) *CountdownSupervisor {
	return &CountdownSupervisor{
		store:   store,
		cache:   cache,
		logger:  logger,
		cfg:     cfg,
		engines: make(map[string]*Countdown),
	}
}

// SetExpiryHandler wires the auto-submit callback. Must be called before any
// engine is created; split from the constructor because the submission
// coordinator that handles expiry is itself built on top of the supervisor.
func (s *CountdownSupervisor) SetExpiryHandler(fn func(ctx context.Context, attemptID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExpire = fn
}

// GetOrCreate returns the engine for the attempt, creating an Inactive one if
// none exists.
func (s *CountdownSupervisor) GetOrCreate(attemptID string, quiz domain.Quiz) *Countdown {
	s.mu.Lock()
	defer s.mu.Unlock()
	if engine, ok := s.engines[attemptID]; ok {
		return engine
	}
	engine := NewCountdown(attemptID, quiz, s.store, s.cache, s.expiryHandlerLocked(), s.logger, s.cfg)
	s.engines[attemptID] = engine
	return engine
}

// Get returns the engine for the attempt if one exists in this process.
func (s *CountdownSupervisor) Get(attemptID string) (*Countdown, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	engine, ok := s.engines[attemptID]
	return engine, ok
}

// Complete marks the attempt's engine terminal and drops it.
func (s *CountdownSupervisor) Complete(attemptID string) {
	s.mu.Lock()
	engine, ok := s.engines[attemptID]
	if ok {
		delete(s.engines, attemptID)
	}
	s.mu.Unlock()
	if ok {
		engine.Complete()
	}
}

// TriggerExpiry routes a load-discovered lapse through the attempt's engine
// so it shares the live tick's one-shot latch.
func (s *CountdownSupervisor) TriggerExpiry(ctx context.Context, attemptID string, quiz domain.Quiz) {
	s.GetOrCreate(attemptID, quiz).TriggerExpiry(ctx)
}

// StopAll halts every engine's local ticking, for process shutdown. Server
// timer state is untouched.
func (s *CountdownSupervisor) StopAll() {
	s.mu.Lock()
	engines := make([]*Countdown, 0, len(s.engines))
	for _, engine := range s.engines {
		engines = append(engines, engine)
	}
	s.mu.Unlock()
	for _, engine := range engines {
		engine.Stop()
	}
}

func (s *CountdownSupervisor) expiryHandlerLocked() func(ctx context.Context, attemptID string) {
	fn := s.onExpire
	return func(ctx context.Context, attemptID string) {
		if fn != nil {
			fn(ctx, attemptID)
			return
		}
		s.logger.Warn("timer expired with no expiry handler wired", zap.String("attempt_id", attemptID))
	}
}
