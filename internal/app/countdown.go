package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/metrics"
)

// CountdownState is the per-attempt timer state machine.
type CountdownState string

const (
	CountdownInactive  CountdownState = "inactive"
	CountdownRunning   CountdownState = "running"
	CountdownExpired   CountdownState = "expired"
	CountdownCompleted CountdownState = "completed"
)

// TimerUpdate is a per-tick snapshot pushed to subscribers.
type TimerUpdate struct {
	AttemptID        string         `json:"attemptId"`
	RemainingSeconds int            `json:"remainingSeconds"`
	State            CountdownState `json:"state"`
}

// CountdownConfig tunes tick cadences and the time source. Tests inject
// millisecond cadences and a fake clock; production uses the defaults.
type CountdownConfig struct {
	TickInterval       time.Duration
	CheckpointInterval time.Duration
	Clock              func() time.Time
}

func (c CountdownConfig) withDefaults() CountdownConfig {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.CheckpointInterval <= 0 {
		c.CheckpointInterval = 10 * time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Countdown drives the local per-second decrement for one attempt. The
// server's timerStartedAt is the only authority: every tick recomputes
// remaining from the deadline rather than trusting an accumulated counter, so
// a paused goroutine or coarse ticker cannot stretch the quiz.
type Countdown struct {
	attemptID string
	quiz      domain.Quiz
	store     AttemptStore
	cache     TimerCache
	logger    *zap.Logger
	onExpire  func(ctx context.Context, attemptID string)
	cfg       CountdownConfig

	startGroup singleflight.Group
	expireOnce sync.Once

	mu          sync.Mutex
	state       CountdownState
	deadline    time.Time
	remaining   int
	stop        chan struct{}
	stopped     bool
	subscribers map[chan TimerUpdate]struct{}
}

// NewCountdown builds an engine in the Inactive state. onExpire is invoked at
// most once per engine, when the deadline passes.
func NewCountdown(attemptID string, quiz domain.Quiz, store AttemptStore, cache TimerCache, onExpire func(ctx context.Context, attemptID string), logger *zap.Logger, cfg CountdownConfig) *Countdown {
	return &Countdown{
		attemptID:   attemptID,
		quiz:        quiz,
		store:       store,
		cache:       cache,
		logger:      logger,
		onExpire:    onExpire,
		cfg:         cfg.withDefaults(),
		state:       CountdownInactive,
		stop:        make(chan struct{}),
		subscribers: make(map[chan TimerUpdate]struct{}),
	}
}

// State returns the current machine state.
func (c *Countdown) State() CountdownState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Remaining returns the last computed remaining seconds.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Start asks the store to record the timer start and begins ticking. The
// store call is first-writer-wins, so a duplicate click or a second tab
// converges on the server's original timerStartedAt instead of resetting it;
// singleflight additionally collapses concurrent in-process calls into one
// network request. Starting an already-running engine is a no-op.
func (c *Countdown) Start(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case CountdownRunning:
		c.mu.Unlock()
		return nil
	case CountdownExpired, CountdownCompleted:
		c.mu.Unlock()
		return domain.ErrAttemptCompleted
	}
	c.mu.Unlock()

	if !c.quiz.Timed() {
		return domain.ErrTimerNotConfigured
	}

	v, err, _ := c.startGroup.Do("start", func() (interface{}, error) {
		return c.store.StartTimer(ctx, c.attemptID)
	})
	if err != nil {
		return err
	}
	startedAt := v.(time.Time)

	c.mu.Lock()
	if c.state != CountdownInactive {
		c.mu.Unlock()
		return nil
	}
	c.deadline = startedAt.Add(c.quiz.TimeLimit())
	c.remaining = secondsUntil(c.deadline, c.cfg.Clock())
	c.state = CountdownRunning
	c.broadcastLocked()
	expired := c.remaining <= 0
	c.mu.Unlock()

	metrics.TimerStarts.Inc()
	c.logger.Info("timer started",
		zap.String("attempt_id", c.attemptID),
		zap.Time("timer_started_at", startedAt),
		zap.Int("remaining_seconds", c.remaining),
	)

	if expired {
		c.expire(ctx)
		return nil
	}
	go c.run()
	return nil
}

// Stop halts local ticking and checkpointing without touching server state.
// The attempt stays Running server-side and is reconciled on next load.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// Complete transitions to the terminal Completed state after a successful
// submission and clears the display cache.
func (c *Countdown) Complete() {
	c.mu.Lock()
	if c.state == CountdownCompleted {
		c.mu.Unlock()
		return
	}
	c.state = CountdownCompleted
	c.remaining = 0
	c.stopLocked()
	c.broadcastLocked()
	c.mu.Unlock()

	_ = c.cache.Delete(context.Background(), c.attemptID)
}

// TriggerExpiry forces the expiry path, used when a load discovers the
// deadline already lapsed. The one-shot latch it shares with the live tick
// guarantees at most one auto-submit per engine; cross-tab duplicates are
// absorbed by the scoring service's reject-if-completed.
func (c *Countdown) TriggerExpiry(ctx context.Context) {
	c.mu.Lock()
	if c.state == CountdownCompleted {
		c.mu.Unlock()
		return
	}
	c.state = CountdownExpired
	c.remaining = 0
	c.stopLocked()
	c.broadcastLocked()
	c.mu.Unlock()

	c.fireExpiry(ctx)
}

// Subscribe returns a channel of tick snapshots. The caller must invoke the
// returned cancel function to avoid leaks.
func (c *Countdown) Subscribe() (<-chan TimerUpdate, func()) {
	ch := make(chan TimerUpdate, 8)

	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	initial := c.snapshotLocked()
	c.mu.Unlock()

	ch <- initial

	cancel := func() {
		c.mu.Lock()
		if _, ok := c.subscribers[ch]; ok {
			delete(c.subscribers, ch)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

func (c *Countdown) run() {
	metrics.RunningCountdowns.Inc()
	defer metrics.RunningCountdowns.Dec()

	tick := time.NewTicker(c.cfg.TickInterval)
	defer tick.Stop()
	checkpoint := time.NewTicker(c.cfg.CheckpointInterval)
	defer checkpoint.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-tick.C:
			if c.tick() {
				return
			}
		case <-checkpoint.C:
			c.checkpoint()
		}
	}
}

// tick recomputes remaining, writes through the display cache and reports
// whether the engine reached a terminal state.
func (c *Countdown) tick() bool {
	c.mu.Lock()
	if c.state != CountdownRunning {
		c.mu.Unlock()
		return true
	}
	now := c.cfg.Clock()
	c.remaining = secondsUntil(c.deadline, now)
	expired := c.remaining <= 0
	if expired {
		c.state = CountdownExpired
		c.stopLocked()
	}
	remaining := c.remaining
	c.broadcastLocked()
	c.mu.Unlock()

	if err := c.cache.Put(context.Background(), domain.TimerSnapshot{
		AttemptID:        c.attemptID,
		RemainingSeconds: remaining,
		LastUpdatedAt:    now,
	}); err != nil {
		c.logger.Debug("timer cache write failed", zap.String("attempt_id", c.attemptID), zap.Error(err))
	}

	if expired {
		// Submission must outlive any UI lifetime, hence Background.
		c.fireExpiry(context.Background())
	}
	return expired
}

// checkpoint pushes an advisory remaining-seconds report to the store.
// Failures are logged and counted, never surfaced: this path only improves
// continuity on a fresh device before the authoritative recompute resolves.
func (c *Countdown) checkpoint() {
	c.mu.Lock()
	if c.state != CountdownRunning {
		c.mu.Unlock()
		return
	}
	remaining := c.remaining
	c.mu.Unlock()

	if err := c.store.Checkpoint(context.Background(), c.attemptID, remaining); err != nil {
		metrics.CheckpointFailures.Inc()
		c.logger.Warn("timer checkpoint failed",
			zap.String("attempt_id", c.attemptID),
			zap.Int("remaining_seconds", remaining),
			zap.Error(err),
		)
	}
}

func (c *Countdown) fireExpiry(ctx context.Context) {
	c.expireOnce.Do(func() {
		c.logger.Info("timer expired, auto-submitting", zap.String("attempt_id", c.attemptID))
		if c.onExpire != nil {
			c.onExpire(ctx, c.attemptID)
		}
	})
}

func (c *Countdown) expire(ctx context.Context) {
	c.mu.Lock()
	c.state = CountdownExpired
	c.remaining = 0
	c.stopLocked()
	c.broadcastLocked()
	c.mu.Unlock()
	c.fireExpiry(ctx)
}

func (c *Countdown) stopLocked() {
	if !c.stopped {
		c.stopped = true
		close(c.stop)
	}
}

func (c *Countdown) snapshotLocked() TimerUpdate {
	return TimerUpdate{
		AttemptID:        c.attemptID,
		RemainingSeconds: c.remaining,
		State:            c.state,
	}
}

func (c *Countdown) broadcastLocked() {
	update := c.snapshotLocked()
	for ch := range c.subscribers {
		select {
		case ch <- update:
		default:
			// Drop the stale update so a slow reader never blocks the tick.
			select {
			case <-ch:
			default:
			}
			ch <- update
		}
	}
}

func secondsUntil(deadline, now time.Time) int {
	remaining := deadline.Sub(now)
	if remaining < 0 {
		return 0
	}
	return int(remaining / time.Second)
}
