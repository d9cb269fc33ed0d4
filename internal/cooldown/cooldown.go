package cooldown

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const REDIS_KEY_LAST_PLAYED = "cooldown:last_played:"

// Store persists last-play timestamps keyed by variant. Writes are
// synchronous so a cooldown survives a process restart.
type Store interface {
	LastPlayed(ctx context.Context, key string) (time.Time, bool, error)
	SetLastPlayed(ctx context.Context, key string, at time.Time) error
}

// Tracker enforces a minimum inter-round interval per variant. Every
// check recomputes from the persisted timestamp; nothing is cached
// across restarts.
type Tracker struct {
	store     Store
	durations map[string]time.Duration
	clock     func() time.Time
}

func NewTracker(store Store, durations map[string]time.Duration) *Tracker {
	return &Tracker{
		store:     store,
		durations: durations,
		clock:     time.Now,
	}
}

// IsAllowed reports whether the variant may start a new round, and the
// remaining wait when it may not.
func (t *Tracker) IsAllowed(ctx context.Context, key string) (bool, time.Duration, error) {
	d, ok := t.durations[key]
	if !ok || d <= 0 {
		return true, 0, nil
	}
	last, found, err := t.store.LastPlayed(ctx, key)
	if err != nil {
		return false, 0, err
	}
	if !found {
		return true, 0, nil
	}
	elapsed := t.clock().Sub(last)
	if elapsed >= d {
		return true, 0, nil
	}
	return false, d - elapsed, nil
}

func (t *Tracker) RecordPlay(ctx context.Context, key string, at time.Time) error {
	return t.store.SetLastPlayed(ctx, key, at)
}

// RedisStore persists timestamps as ISO strings with no expiry.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) LastPlayed(ctx context.Context, key string) (time.Time, bool, error) {
	val, err := s.client.Get(ctx, REDIS_KEY_LAST_PLAYED+key).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	at, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, err
	}
	return at, true, nil
}

func (s *RedisStore) SetLastPlayed(ctx context.Context, key string, at time.Time) error {
	return s.client.Set(ctx, REDIS_KEY_LAST_PLAYED+key, at.Format(time.RFC3339Nano), 0).Err()
}

// MemStore is an in-memory Store for tests and local runs without redis.
type MemStore struct {
	mu sync.RWMutex
	m  map[string]time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{m: make(map[string]time.Time)}
}

func (s *MemStore) LastPlayed(ctx context.Context, key string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.m[key]
	return at, ok, nil
}

func (s *MemStore) SetLastPlayed(ctx context.Context, key string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = at
	return nil
}
