// Package guard implements component C6: a single boolean pause decision
// derived from runtime signals, with dry-run and manual-override modes.
package guard

import (
	"sync"
	"time"
)

// ReasonBit flags which signal(s) breached their threshold on the most
// recent tick.
type ReasonBit uint

const (
	ReasonCancelRate ReasonBit = 1 << iota
	ReasonRESTErrorRate
	ReasonPnLSlope
	ReasonWSLag
)

// Config holds the per-signal thresholds and hysteresis counts.
type Config struct {
	CancelRateThreshold  float64
	RESTErrorRateThreshold float64
	PnLSlopeThreshold    float64 // negative slope breaches when more negative than this
	WSLagMsThreshold     float64
	HysteresisBad        int
	HysteresisGood       int
	CancelAllInterval    time.Duration
}

// Signals is one tick's worth of observed runtime signals.
type Signals struct {
	CancelRatePerSec float64
	RESTErrorRate    float64
	PnLSlopePerMin   float64
	WSLagMs          float64
}

// State is the guard's persisted/observable state.
type State struct {
	Paused          bool
	ManualOverride  bool
	DryRun          bool
	LastReasonMask  ReasonBit
	LastChangeTs    time.Time
	BreachStreak    int
	PausesTotal     int
	WSLagMs         float64
	calmStreak      int
	lastCancelAllTs time.Time
}

// Guard is the C6 runtime guard.
type Guard struct {
	mu    sync.Mutex
	cfg   Config
	state State
}

// New constructs a Guard with dry_run and manual_override both false.
func New(cfg Config) *Guard {
	if cfg.HysteresisBad <= 0 {
		cfg.HysteresisBad = 1
	}
	if cfg.HysteresisGood <= 0 {
		cfg.HysteresisGood = 1
	}
	if cfg.CancelAllInterval <= 0 {
		cfg.CancelAllInterval = 2 * time.Second
	}
	return &Guard{cfg: cfg}
}

// Tick evaluates one round of signals against the configured thresholds
// and applies the hysteresis-gated pause transition.
func (g *Guard) Tick(s Signals, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var mask ReasonBit
	if s.CancelRatePerSec > g.cfg.CancelRateThreshold {
		mask |= ReasonCancelRate
	}
	if s.RESTErrorRate > g.cfg.RESTErrorRateThreshold {
		mask |= ReasonRESTErrorRate
	}
	if s.PnLSlopePerMin < g.cfg.PnLSlopeThreshold {
		mask |= ReasonPnLSlope
	}
	if s.WSLagMs > g.cfg.WSLagMsThreshold {
		mask |= ReasonWSLag
	}

	g.state.LastReasonMask = mask
	g.state.WSLagMs = s.WSLagMs

	if mask != 0 {
		g.state.BreachStreak++
		g.state.calmStreak = 0
	} else {
		g.state.BreachStreak = 0
		g.state.calmStreak++
	}

	if !g.state.Paused && g.state.BreachStreak >= g.cfg.HysteresisBad {
		g.state.Paused = true
		g.state.LastChangeTs = now
		g.state.PausesTotal++
	} else if g.state.Paused && g.state.calmStreak >= g.cfg.HysteresisGood {
		g.state.Paused = false
		g.state.LastChangeTs = now
	}
}

// EffectivePause = manual_override OR (paused AND NOT dry_run).
func (g *Guard) EffectivePause() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.ManualOverride || (g.state.Paused && !g.state.DryRun)
}

// SetDryRun toggles dry-run mode.
func (g *Guard) SetDryRun(v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.DryRun = v
}

// SetManualOverride toggles the forced-pause override.
func (g *Guard) SetManualOverride(v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.ManualOverride = v
}

// State returns a copy of the guard's current observable state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// ShouldCancelAll reports whether, given an effective pause, it is time to
// issue another cancel-all broadcast (every CancelAllInterval), advancing
// the internal timer if so.
func (g *Guard) ShouldCancelAll(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !(g.state.ManualOverride || (g.state.Paused && !g.state.DryRun)) {
		return false
	}
	if now.Sub(g.state.lastCancelAllTs) < g.cfg.CancelAllInterval {
		return false
	}
	g.state.lastCancelAllTs = now
	return true
}
