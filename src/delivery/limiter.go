package delivery

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// endpointLimiter applies a token bucket per endpoint and periodically evicts
// idle entries.
type endpointLimiter struct {
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
	byKey   map[string]*limiterEntry
	hits    uint64
	idleTTL time.Duration
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newEndpointLimiter returns nil, which never limits, if rps or burst is not
// positive.
func newEndpointLimiter(rps float64, burst int, idleTTL time.Duration) *endpointLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &endpointLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		byKey:   make(map[string]*limiterEntry),
		idleTTL: idleTTL,
	}
}

func (l *endpointLimiter) get(key string) *rate.Limiter {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byKey[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byKey[key] = e
	}
	e.lastSeen = now

	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byKey {
			if v.lastSeen.Before(cutoff) && k != key {
				delete(l.byKey, k)
			}
		}
	}

	return e.limiter
}

// Wait blocks until a request to key is allowed or ctx is done.
func (l *endpointLimiter) Wait(ctx context.Context, key string) error {
	if l == nil {
		return nil
	}
	return l.get(key).Wait(ctx)
}
