package api

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// writeLimiter throttles write requests with one token bucket per client
// address. Buckets idle for longer than idle are swept.
type writeLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newWriteLimiter(rps float64, burst int) *writeLimiter {
	return &writeLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idle:    10 * time.Minute,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// take spends one token of addr's bucket. When the bucket is empty it
// reports false and how long until the next token.
func (l *writeLimiter) take(addr string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[addr]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[addr] = b
	}
	b.seen = now

	r := b.lim.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if wait := r.DelayFrom(now); wait > 0 {
		r.CancelAt(now)
		return false, wait
	}
	return true, 0
}

// sweep drops idle buckets and returns how many remain.
func (l *writeLimiter) sweep() int {
	cutoff := l.now().Add(-l.idle)

	l.mu.Lock()
	defer l.mu.Unlock()
	for addr, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, addr)
		}
	}
	return len(l.buckets)
}

// run sweeps on every tick until ctx is done.
func (l *writeLimiter) run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}
