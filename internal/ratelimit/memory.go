package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter keeps a token bucket per key in process memory. It is used
// when Redis is not configured and only limits a single replica.
type MemoryLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rule     Rule
	idle     time.Duration
	lastGC   time.Time
	now      func() time.Time
}

// NewMemoryLimiter creates a MemoryLimiter. The bucket holds rule.Limit
// tokens and refills one token every Window/Limit.
func NewMemoryLimiter(rule Rule) (*MemoryLimiter, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return &MemoryLimiter{
		visitors: make(map[string]*visitor),
		rule:     rule,
		idle:     2 * rule.Window,
		now:      time.Now,
	}, nil
}

// Allow takes one token from key's bucket.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	v, ok := l.visitors[key]
	if !ok {
		every := rate.Every(l.rule.Window / time.Duration(l.rule.Limit))
		v = &visitor{limiter: rate.NewLimiter(every, l.rule.Limit)}
		l.visitors[key] = v
	}
	v.lastSeen = now

	if v.limiter.AllowN(now, 1) {
		return Result{Allowed: true, Remaining: int(v.limiter.TokensAt(now))}, nil
	}

	r := v.limiter.ReserveN(now, 1)
	wait := r.DelayFrom(now)
	r.CancelAt(now)
	return Result{Allowed: false, RetryAfter: wait}, nil
}

// sweep drops buckets idle for longer than l.idle, at most once per idle
// period. Callers hold l.mu.
func (l *MemoryLimiter) sweep(now time.Time) {
	if now.Sub(l.lastGC) < l.idle {
		return
	}
	l.lastGC = now
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.idle {
			delete(l.visitors, key)
		}
	}
}

func (l *MemoryLimiter) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}
