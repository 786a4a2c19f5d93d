// Package ratelimit provides a keyed fixed-window rate limiter for API
// callers.
package ratelimit

import (
	"sync"
	"time"
)

type window struct {
	count int
	start time.Time
}

// Keyed is a fixed-window rate limiter tracking one window per key.
type Keyed struct {
	mu      sync.Mutex
	rate    int
	period  time.Duration
	windows map[string]*window
}

// NewKeyed creates a limiter that allows rate requests per period per key.
func NewKeyed(rate int, period time.Duration) *Keyed {
	return &Keyed{
		rate:    rate,
		period:  period,
		windows: make(map[string]*window),
	}
}

// Allow returns true if a request under key is within the rate limit.
func (k *Keyed) Allow(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := time.Now()
	w, ok := k.windows[key]
	if !ok || now.Sub(w.start) > k.period {
		w = &window{start: now}
		k.windows[key] = w
	}
	w.count++

	// Opportunistic cleanup of stale windows.
	if len(k.windows) > 10000 {
		for key, w := range k.windows {
			if now.Sub(w.start) > k.period {
				delete(k.windows, key)
			}
		}
	}

	return w.count <= k.rate
}
