package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterIdle is how long an unused per-host limiter is kept.
const limiterIdle = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet hands out one token bucket per remote host.
type limiterSet struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	entries map[string]*limiterEntry
	swept   time.Time
}

func newLimiterSet(limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{
		limit:   limit,
		burst:   burst,
		entries: make(map[string]*limiterEntry),
		swept:   time.Now(),
	}
}

func (l *limiterSet) allow(host string) bool {
	now := time.Now()

	l.mu.Lock()
	if now.Sub(l.swept) > limiterIdle {
		for h, e := range l.entries {
			if now.Sub(e.lastSeen) > limiterIdle {
				delete(l.entries, h)
			}
		}
		l.swept = now
	}
	e, ok := l.entries[host]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[host] = e
	}
	e.lastSeen = now
	l.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}
