package websocket

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit bounds inbound frames per connection: Burst frames at once,
// refilled at one frame per Every. A zero Burst disables limiting.
type RateLimit struct {
	Burst int
	Every time.Duration
}

// Enabled reports whether the limit applies
func (r RateLimit) Enabled() bool {
	return r.Burst > 0 && r.Every > 0
}

// connLimiter keeps one token bucket per connection id
type connLimiter struct {
	cfg RateLimit

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func newConnLimiter(cfg RateLimit) *connLimiter {
	if !cfg.Enabled() {
		return nil
	}
	return &connLimiter{
		cfg:     cfg,
		buckets: make(map[string]*rate.Limiter),
	}
}

// Allow consumes a token for id. A nil limiter allows everything.
func (l *connLimiter) Allow(id string) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	bucket, ok := l.buckets[id]
	if !ok {
		bucket = rate.NewLimiter(rate.Every(l.cfg.Every), l.cfg.Burst)
		l.buckets[id] = bucket
	}
	l.mu.Unlock()

	return bucket.Allow()
}

// Forget drops the bucket of a terminated connection
func (l *connLimiter) Forget(id string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	delete(l.buckets, id)
	l.mu.Unlock()
}
