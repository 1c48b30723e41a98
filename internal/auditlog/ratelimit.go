// Package auditlog implements component C3: the per-(actor,endpoint)
// sliding-window admission limiter and the signed, ring-buffered audit
// trail every successful admin call appends to.
package auditlog

import (
	"sync"
	"time"

	"github.com/northbeacon/quotectl/pkg/metrics"
)

// WindowSeconds and Limit are the admission policy fixed by the spec: at
// most Limit admissions per WindowSeconds for a given (actor, endpoint).
const (
	WindowSeconds = 60
	Limit         = 60
)

// RateLimiter enforces a true sliding window (not a token bucket): a
// request is admitted only if fewer than Limit timestamps for the same key
// fall within the trailing WindowSeconds.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	window  time.Duration
	limit   int
}

// NewRateLimiter constructs the default 60-per-60s limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		windows: make(map[string][]time.Time),
		window:  WindowSeconds * time.Second,
		limit:   Limit,
	}
}

// Allow reports whether a request from actor against endpoint is admitted
// at time now, recording the admission if so.
func (r *RateLimiter) Allow(actor, endpoint string, now time.Time) bool {
	key := actor + "|" + endpoint
	r.mu.Lock()
	defer r.mu.Unlock()

	events := r.windows[key]
	cutoff := now.Add(-r.window)
	kept := events[:0]
	for _, ts := range events {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= r.limit {
		r.windows[key] = kept
		metrics.RateLimiterRejectedTotal.WithLabelValues(actor, endpoint).Inc()
		return false
	}
	kept = append(kept, now)
	r.windows[key] = kept
	return true
}

// Reset clears all tracked windows.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windows = make(map[string][]time.Time)
}
