// Package breaker implements component C4: a three-state circuit breaker
// over REST call outcomes, transitioning on sliding-window error rates
// rather than a simple consecutive-failure count.
package breaker

import (
	"sync"
	"time"

	"github.com/northbeacon/quotectl/pkg/metrics"
)

// State is one of the breaker's three states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds the breaker's thresholds and window. Rates are fractions
// over the sliding WindowSec.
type Config struct {
	Name             string
	WindowSec        time.Duration
	ErrRateOpen      float64
	HTTP5xxRateOpen  float64
	HTTP429RateOpen  float64
	OpenDurationSec  time.Duration
	HalfOpenProbes   int
	OnStateChange    func(from, to State)
}

type event struct {
	ts       time.Time
	ok       bool
	httpCode int
}

// Breaker is the component C4 implementation.
type Breaker struct {
	mu                      sync.Mutex
	cfg                     Config
	state                   State
	openedTs                time.Time
	halfOpenProbesRemaining int
	events                  []event
}

// New constructs a Breaker in the closed state.
func New(cfg Config) *Breaker {
	if cfg.WindowSec <= 0 {
		cfg.WindowSec = 60 * time.Second
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	b := &Breaker{cfg: cfg, state: Closed}
	metrics.RecordBreakerState(cfg.Name, metrics.BreakerClosed)
	return b
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// OnResult records one REST call outcome.
func (b *Breaker) OnResult(ok bool, httpCode int, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event{ts: now, ok: ok, httpCode: httpCode})
	b.evictStale(now)

	switch b.state {
	case Closed:
		if b.anyThresholdExceeded() {
			b.transition(Open, now)
		}
	case HalfOpen:
		if b.halfOpenProbesRemaining > 0 {
			b.halfOpenProbesRemaining--
		}
		if b.halfOpenProbesRemaining == 0 {
			if !b.anyThresholdExceeded() {
				b.transition(Closed, now)
			} else {
				b.transition(Open, now)
			}
		}
	}
}

// Tick advances time-based transitions (open -> half_open) independent of
// call outcomes; the loop supervisor calls this periodically.
func (b *Breaker) Tick(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.evictStale(now)

	if b.state == Open && now.Sub(b.openedTs) >= b.cfg.OpenDurationSec {
		b.transition(HalfOpen, now)
	}
}

// Allowed reports whether op ("create", "amend", "cancel", ...) may
// proceed given the current state.
func (b *Breaker) Allowed(op string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		return op == "cancel"
	case HalfOpen:
		if op == "cancel" {
			return true
		}
		return b.halfOpenProbesRemaining > 0
	default:
		return false
	}
}

func (b *Breaker) evictStale(now time.Time) {
	cutoff := now.Add(-b.cfg.WindowSec)
	kept := b.events[:0]
	for _, e := range b.events {
		if e.ts.After(cutoff) {
			kept = append(kept, e)
		}
	}
	b.events = kept
}

func (b *Breaker) anyThresholdExceeded() bool {
	total := len(b.events)
	if total == 0 {
		return false
	}
	var errs, http5xx, http429 int
	for _, e := range b.events {
		if !e.ok {
			errs++
		}
		if e.httpCode >= 500 {
			http5xx++
		}
		if e.httpCode == 429 {
			http429++
		}
	}
	errRate := float64(errs) / float64(total)
	http5xxRate := float64(http5xx) / float64(total)
	http429Rate := float64(http429) / float64(total)

	return errRate > b.cfg.ErrRateOpen ||
		http5xxRate > b.cfg.HTTP5xxRateOpen ||
		http429Rate > b.cfg.HTTP429RateOpen
}

func (b *Breaker) transition(to State, now time.Time) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	switch to {
	case Open:
		b.openedTs = now
		b.halfOpenProbesRemaining = b.cfg.HalfOpenProbes
	case HalfOpen:
		b.halfOpenProbesRemaining = b.cfg.HalfOpenProbes
	}

	switch to {
	case Closed:
		metrics.RecordBreakerState(b.cfg.Name, metrics.BreakerClosed)
	case Open:
		metrics.RecordBreakerState(b.cfg.Name, metrics.BreakerOpen)
	case HalfOpen:
		metrics.RecordBreakerState(b.cfg.Name, metrics.BreakerHalfOpen)
	}

	if b.cfg.OnStateChange != nil {
		go b.cfg.OnStateChange(from, to)
	}
}
