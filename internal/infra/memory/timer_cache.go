package memory

import (
	"context"
	"sync"

	"quiz-attempt-service/internal/domain"
)

// TimerCache is an in-memory implementation of app.TimerCache, used for
// tests and redis-less deployments.
type TimerCache struct {
	mu    sync.RWMutex
	snaps map[string]domain.TimerSnapshot
}

func NewTimerCache() *TimerCache {
	return &TimerCache{snaps: make(map[string]domain.TimerSnapshot)}
}

func (c *TimerCache) Put(_ context.Context, snap domain.TimerSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[snap.AttemptID] = snap
	return nil
}

func (c *TimerCache) Get(_ context.Context, attemptID string) (domain.TimerSnapshot, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.snaps[attemptID]
	return snap, ok, nil
}

func (c *TimerCache) Delete(_ context.Context, attemptID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snaps, attemptID)
	return nil
}
