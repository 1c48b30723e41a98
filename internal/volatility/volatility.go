// Package volatility implements component C8: a per-symbol EWMA of
// absolute returns, used by the allocator's cost attenuation.
package volatility

import (
	"sync"
	"time"

	"github.com/northbeacon/quotectl/pkg/metrics"
)

type symbolState struct {
	v        float64
	lastMid  float64
	lastTs   time.Time
	samples  int
	hasPrior bool
}

// Tracker maintains the EWMA per symbol.
type Tracker struct {
	mu         sync.Mutex
	alpha      float64
	minSamples int
	symbols    map[string]*symbolState
}

// New constructs a Tracker. alpha is the EWMA smoothing factor in (0,1].
func New(alpha float64, minSamples int) *Tracker {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.1
	}
	if minSamples <= 0 {
		minSamples = 1
	}
	return &Tracker{alpha: alpha, minSamples: minSamples, symbols: make(map[string]*symbolState)}
}

// Update applies one mid-price observation. Non-positive mids and
// timestamps at or before the last accepted timestamp are ignored,
// leaving the EWMA unchanged (property 9).
func (t *Tracker) Update(symbol string, mid float64, ts time.Time) {
	if mid <= 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.symbols[symbol]
	if !ok {
		s = &symbolState{}
		t.symbols[symbol] = s
	}

	if s.hasPrior && !ts.After(s.lastTs) {
		return
	}

	if !s.hasPrior {
		s.v = 0
		s.hasPrior = true
	} else if s.lastMid > 0 {
		ret := (mid - s.lastMid) / s.lastMid
		if ret < 0 {
			ret = -ret
		}
		s.v = t.alpha*ret + (1-t.alpha)*s.v
	}

	s.lastMid = mid
	s.lastTs = ts
	s.samples++

	metrics.VolatilityEWMA.WithLabelValues(symbol).Set(s.v)
}

// Value returns the current EWMA estimate for symbol (0 if unseen).
func (t *Tracker) Value(symbol string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.symbols[symbol]; ok {
		return s.v
	}
	return 0
}

// IsReady reports whether symbol has received at least minSamples updates.
func (t *Tracker) IsReady(symbol string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.symbols[symbol]
	if !ok {
		return false
	}
	return s.samples >= t.minSamples
}
