// Package autopolicy implements component C10: level-based parameter
// attenuation with hysteresis, tightening strategy parameters under
// sustained throttling pressure and relaxing them when calm.
package autopolicy

import (
	"math"
	"sync"
	"time"

	"github.com/northbeacon/quotectl/pkg/metrics"
)

// Base holds the unattenuated baseline strategy parameters.
type Base struct {
	MinTimeInBookMs     float64
	ReplaceThresholdBps float64
	LevelsPerSideMax    int
}

// Effective holds the level-attenuated parameters actually published to
// the strategy.
type Effective struct {
	MinTimeInBookMsEff     float64
	ReplaceThresholdBpsEff float64
	LevelsPerSideMaxEff    int
}

// Config holds the trigger thresholds, hysteresis, cooldown, and the caps
// each effective parameter is clamped to.
type Config struct {
	TriggerBackoffMs      float64
	TriggerEventsTotal    int64
	ConsecBadRequired     int
	ConsecGoodRequired    int
	CooldownMinutes       int
	MaxLevel              int
	StepPct               float64
	ShrinkPct             float64
	MinTimeInBookMsMaxCap float64
	ReplaceThresholdBpsMaxCap float64
	LevelsPerSideMaxMinCap int
	Base                  Base
}

// AutoPolicy is the C10 implementation.
type AutoPolicy struct {
	mu           sync.Mutex
	cfg          Config
	level        int
	consecBad    int
	consecGood   int
	lastChangeTs time.Time
	eff          Effective
}

// New constructs an AutoPolicy at level 0, with effective params equal to
// base (zero attenuation).
func New(cfg Config) *AutoPolicy {
	if cfg.MaxLevel <= 0 {
		cfg.MaxLevel = 5
	}
	if cfg.ConsecBadRequired <= 0 {
		cfg.ConsecBadRequired = 1
	}
	if cfg.ConsecGoodRequired <= 0 {
		cfg.ConsecGoodRequired = 1
	}
	ap := &AutoPolicy{cfg: cfg}
	ap.apply()
	return ap
}

// Evaluate runs one hysteresis tick against the live backoff/throttle
// signals, moving the level by at most ±1 when cooldown has elapsed.
func (ap *AutoPolicy) Evaluate(backoffMsMax float64, throttleEventsTotal int64, now time.Time) {
	ap.mu.Lock()
	defer ap.mu.Unlock()

	bad := backoffMsMax >= ap.cfg.TriggerBackoffMs || throttleEventsTotal >= ap.cfg.TriggerEventsTotal

	if bad {
		ap.consecBad++
		ap.consecGood = 0
	} else {
		ap.consecGood++
		ap.consecBad = 0
	}

	inCooldown := !ap.lastChangeTs.IsZero() &&
		now.Sub(ap.lastChangeTs) < time.Duration(ap.cfg.CooldownMinutes)*time.Minute

	if inCooldown {
		return
	}

	switch {
	case bad && ap.consecBad >= ap.cfg.ConsecBadRequired && ap.level < ap.cfg.MaxLevel:
		ap.level++
		ap.lastChangeTs = now
		ap.apply()
		metrics.AutoPolicyDecisionsTotal.WithLabelValues("tighten", "backoff_or_events").Inc()
	case !bad && ap.consecGood >= ap.cfg.ConsecGoodRequired && ap.level > 0:
		ap.level--
		ap.lastChangeTs = now
		ap.apply()
		metrics.AutoPolicyDecisionsTotal.WithLabelValues("relax", "calm").Inc()
	}
}

func (ap *AutoPolicy) apply() {
	level := float64(ap.level)
	base := ap.cfg.Base

	minTime := base.MinTimeInBookMs * (1 + ap.cfg.StepPct*level)
	if ap.cfg.MinTimeInBookMsMaxCap > 0 && minTime > ap.cfg.MinTimeInBookMsMaxCap {
		minTime = ap.cfg.MinTimeInBookMsMaxCap
	}

	replaceThreshold := base.ReplaceThresholdBps * (1 + ap.cfg.StepPct*level)
	if ap.cfg.ReplaceThresholdBpsMaxCap > 0 && replaceThreshold > ap.cfg.ReplaceThresholdBpsMaxCap {
		replaceThreshold = ap.cfg.ReplaceThresholdBpsMaxCap
	}

	levelsPerSide := int(math.Round(float64(base.LevelsPerSideMax) * (1 - ap.cfg.ShrinkPct*level)))
	if levelsPerSide < ap.cfg.LevelsPerSideMaxMinCap {
		levelsPerSide = ap.cfg.LevelsPerSideMaxMinCap
	}

	ap.eff = Effective{
		MinTimeInBookMsEff:     minTime,
		ReplaceThresholdBpsEff: replaceThreshold,
		LevelsPerSideMaxEff:    levelsPerSide,
	}
}

// Level returns the current autopolicy level.
func (ap *AutoPolicy) Level() int {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	return ap.level
}

// Effective returns the currently published effective parameters.
func (ap *AutoPolicy) Effective() Effective {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	return ap.eff
}
