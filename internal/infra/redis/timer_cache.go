package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-attempt-service/internal/domain"
)

// TimerCache is a Redis-backed implementation of app.TimerCache. Entries are
// small JSON documents keyed by attempt id with a TTL, so stale snapshots age
// out on their own. Values here are display-continuity only; the engine
// always overwrites them with the authoritative recompute.
type TimerCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewTimerCache(client *redis.Client, ttl time.Duration) *TimerCache {
	return &TimerCache{client: client, ttl: ttl}
}

func (c *TimerCache) Put(ctx context.Context, snap domain.TimerSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(snap.AttemptID), data, c.ttl).Err()
}

func (c *TimerCache) Get(ctx context.Context, attemptID string) (domain.TimerSnapshot, bool, error) {
	data, err := c.client.Get(ctx, c.key(attemptID)).Bytes()
	if err == redis.Nil {
		return domain.TimerSnapshot{}, false, nil
	}
	if err != nil {
		return domain.TimerSnapshot{}, false, err
	}
	var snap domain.TimerSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.TimerSnapshot{}, false, err
	}
	return snap, true, nil
}

func (c *TimerCache) Delete(ctx context.Context, attemptID string) error {
	return c.client.Del(ctx, c.key(attemptID)).Err()
}

func (c *TimerCache) key(attemptID string) string {
	return "attempt:timer:" + attemptID
}
