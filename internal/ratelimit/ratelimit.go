// Package ratelimit implements fixed-window attempt counters.
//
// Used to throttle admin code verification per client. The in-memory
// limiter serves a single process; the Redis limiter shares counters
// across instances.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter counts attempts for a key within a window.
type Limiter interface {
	// Allow records one attempt for key. When the limit is exceeded it
	// returns false together with the time until the window resets.
	Allow(ctx context.Context, key string) (ok bool, retryAfter time.Duration, err error)
}

type window struct {
	count int
	reset time.Time
}

// Memory is a process-local Limiter.
type Memory struct {
	mu      sync.Mutex
	limit   int
	period  time.Duration
	windows map[string]*window
	now     func() time.Time
}

// NewMemory allows limit attempts per key every period.
func NewMemory(limit int, period time.Duration) *Memory {
	return &Memory{
		limit:   limit,
		period:  period,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (m *Memory) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || !now.Before(w.reset) {
		w = &window{reset: now.Add(m.period)}
		m.windows[key] = w
		m.sweepLocked(now)
	}
	w.count++
	if w.count > m.limit {
		return false, w.reset.Sub(now), nil
	}
	return true, 0, nil
}

// sweepLocked drops expired windows so the map does not grow without bound.
func (m *Memory) sweepLocked(now time.Time) {
	for k, w := range m.windows {
		if !now.Before(w.reset) {
			delete(m.windows, k)
		}
	}
}

// Redis is a Limiter backed by INCR + EXPIRE on a shared Redis.
type Redis struct {
	client *redis.Client
	limit  int
	period time.Duration
	prefix string
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, limit int, period time.Duration) *Redis {
	return &Redis{client: client, limit: limit, period: period, prefix: "wordly:ratelimit:"}
}

// Dial connects to url (redis://...) and verifies the connection.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := r.prefix + key

	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		// NX keeps the first attempt's expiry so the window is fixed.
		pipe.ExpireNX(ctx, k, r.period)
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if incr.Val() <= int64(r.limit) {
		return true, 0, nil
	}

	ttl, err := r.client.PTTL(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit ttl %s: %w", key, err)
	}
	if ttl < 0 {
		ttl = r.period
	}
	return false, ttl, nil
}
