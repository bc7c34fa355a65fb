// Package ratelimit throttles outbound map-provider calls per session using
// a token bucket per key.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Keyed holds one limiter per key. Keys are dropped with Forget when the
// owning session is evicted.
type Keyed struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// New creates a keyed limiter allowing rps requests per second with the
// given burst. rps <= 0 disables limiting.
func New(rps float64, burst int) *Keyed {
	if burst < 1 {
		burst = 1
	}
	l := rate.Limit(rps)
	if rps <= 0 {
		l = rate.Inf
	}
	return &Keyed{
		limiters: make(map[string]*rate.Limiter),
		limit:    l,
		burst:    burst,
	}
}

// Allow reports whether a call for key may proceed now.
func (k *Keyed) Allow(key string) bool {
	return k.get(key).Allow()
}

// Forget drops the limiter for key.
func (k *Keyed) Forget(key string) {
	k.mu.Lock()
	delete(k.limiters, key)
	k.mu.Unlock()
}

// Len is the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.limiters)
}

func (k *Keyed) get(key string) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.limiters[key]
	if !ok {
		l = rate.NewLimiter(k.limit, k.burst)
		k.limiters[key] = l
	}
	return l
}
