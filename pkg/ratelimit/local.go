package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Local keeps one token bucket per key in process memory. The bucket refills
// at perMinute/60 tokens per second and holds a minute's worth of burst.
type Local struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	now     func() time.Time
}

// NewLocal creates an in-process limiter.
func NewLocal() *Local {
	return &Local{
		buckets: make(map[string]*rate.Limiter),
		now:     time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (l *Local) WithClock(now func() time.Time) *Local {
	l.now = now
	return l
}

// Allow consumes one token from key's bucket.
func (l *Local) Allow(_ context.Context, key string, perMinute int) (bool, error) {
	if perMinute <= 0 {
		return true, nil
	}
	limit := rate.Limit(float64(perMinute) / 60)

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(limit, perMinute)
		l.buckets[key] = b
	} else if b.Limit() != limit {
		b.SetLimitAt(l.now(), limit)
		b.SetBurstAt(l.now(), perMinute)
	}
	l.mu.Unlock()

	return b.AllowN(l.now(), 1), nil
}
