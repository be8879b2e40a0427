package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"quiz-attempt-service/internal/domain"
)

// divergenceThreshold is how far the advisory checkpoint may drift from the
// authoritative recompute before we log it for diagnosis.
const divergenceThreshold = 15 * time.Second

// AuthoritativeRemaining computes the remaining seconds from the server's
// timerStartedAt and the quiz time limit, clamped to zero. A completed
// attempt is terminal; an attempt whose timer has not started still has the
// full duration. Cached or checkpointed values never feed this computation.
func AuthoritativeRemaining(attempt domain.Attempt, limit time.Duration, now time.Time) int {
	if attempt.CompletedAt != nil {
		return 0
	}
	if limit <= 0 {
		return 0
	}
	if attempt.TimerStartedAt == nil {
		return int(limit / time.Second)
	}
	remaining := limit - now.Sub(*attempt.TimerStartedAt)
	if remaining < 0 {
		return 0
	}
	return int(remaining / time.Second)
}

// Reconciler resolves the tension between the provisional timer cache, the
// advisory server checkpoint, and the authoritative recompute. Authoritative
// always wins; the other two exist only so a display has something to show
// before the recompute resolves.
type Reconciler struct {
	cache  TimerCache
	clock  func() time.Time
	logger *zap.Logger
}

func NewReconciler(cache TimerCache, logger *zap.Logger) *Reconciler {
	return &Reconciler{cache: cache, clock: time.Now, logger: logger}
}

// NewReconcilerWithClock is test-only for deterministic time.
func NewReconcilerWithClock(cache TimerCache, logger *zap.Logger, now func() time.Time) *Reconciler {
	return &Reconciler{cache: cache, clock: now, logger: logger}
}

// Provisional returns the cached snapshot for immediate display. The caller
// must replace it with the Remaining result as soon as that is available.
func (r *Reconciler) Provisional(ctx context.Context, attemptID string) (domain.TimerSnapshot, bool) {
	snap, ok, err := r.cache.Get(ctx, attemptID)
	if err != nil {
		r.logger.Debug("timer cache read failed", zap.String("attempt_id", attemptID), zap.Error(err))
		return domain.TimerSnapshot{}, false
	}
	return snap, ok
}

// Remaining computes the authoritative remaining seconds and writes it
// through the cache, overwriting whatever stale value a previous session left
// behind. Significant disagreement with the server checkpoint is logged, not
// silently reconciled.
func (r *Reconciler) Remaining(ctx context.Context, attempt domain.Attempt, quiz domain.Quiz) int {
	now := r.clock()
	remaining := AuthoritativeRemaining(attempt, quiz.TimeLimit(), now)

	if attempt.RemainingCheckpoint != nil && attempt.Active() {
		drift := time.Duration(*attempt.RemainingCheckpoint-remaining) * time.Second
		if drift < 0 {
			drift = -drift
		}
		if drift > divergenceThreshold {
			r.logger.Warn("checkpoint diverges from authoritative remaining",
				zap.String("attempt_id", attempt.ID),
				zap.Int("checkpoint_seconds", *attempt.RemainingCheckpoint),
				zap.Int("authoritative_seconds", remaining),
			)
		}
	}

	if attempt.Active() && quiz.Timed() {
		if err := r.cache.Put(ctx, domain.TimerSnapshot{
			AttemptID:        attempt.ID,
			RemainingSeconds: remaining,
			LastUpdatedAt:    now,
		}); err != nil {
			r.logger.Debug("timer cache write failed", zap.String("attempt_id", attempt.ID), zap.Error(err))
		}
	} else {
		_ = r.cache.Delete(ctx, attempt.ID)
	}
	return remaining
}
