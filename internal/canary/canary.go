// Package canary implements component C12, the canary payload builder:
// a single, byte-stable JSON snapshot of rollout health, plus the
// triage-hint predicates and alerts.log side effects derived from it.
package canary

import (
	"fmt"

	"github.com/northbeacon/quotectl/internal/canonjson"
)

// Config holds the env-tunable thresholds used by the triage predicates.
type Config struct {
	LatMinSample  int64
	LatP95CapMs   float64
	LatP99CapMs   float64
	MarkoutCapBps float64
}

// RolloutView is the rollout/ramp state as seen by the builder.
type RolloutView struct {
	Active   string
	SplitPct int
	StepIdx  int
	StepsPct []int
	Frozen   bool
}

// KillswitchView is the kill-switch state as seen by the builder.
type KillswitchView struct {
	Enabled   bool
	DryRun    bool
	Action    string
	FiredNow  bool // true if the kill-switch fired on the tick this input describes
	FireTotal int64
}

// AutopromoteView is the auto-promotion state as seen by the builder.
type AutopromoteView struct {
	Enabled                bool
	ConsecutiveStableSteps int
	StableStepsRequired    int
	MinSplitPct            int
	FiredNow               bool
}

// Input is everything the builder needs for one canary payload.
type Input struct {
	GeneratedAt string // ISO timestamp; falls back to epoch zero when empty

	Rollout     RolloutView
	Killswitch  KillswitchView
	Autopromote AutopromoteView

	ObservedSplitPct float64
	ExpectedSplitPct float64
	OrdersTotal      int64

	FillsBlue, FillsGreen     int64
	RejectsBlue, RejectsGreen int64
	LatBlueMs, LatGreenMs     float64
	LatP95Blue, LatP95Green   float64
	LatP99Blue, LatP99Green   float64
	LatSamplesBlue, LatSamplesGreen int64

	MarkoutBlueAvgBps200, MarkoutGreenAvgBps200 float64
	MarkoutBlueAvgBps500, MarkoutGreenAvgBps500 float64
	MarkoutSamplesBlue, MarkoutSamplesGreen      int64

	HoldsSample   int64
	HoldsCooldown int64
}

const epochZero = "1970-01-01T00:00:00Z"

// Payload is the marshalled shape, field-ordered only by canonjson's
// sorted-key rendering; Go struct field order here is cosmetic.
type Payload struct {
	Meta        map[string]interface{} `json:"meta"`
	Rollout     map[string]interface{} `json:"rollout"`
	Drift       map[string]interface{} `json:"drift"`
	Hints       []string                `json:"hints"`
	Killswitch  map[string]interface{} `json:"killswitch"`
	Autopromote map[string]interface{} `json:"autopromote"`
	SLO         map[string]interface{} `json:"slo"`
	Markout     map[string]interface{} `json:"markout"`

	MarkoutSamplesBlue  int64 `json:"markout_samples_blue"`
	MarkoutSamplesGreen int64 `json:"markout_samples_green"`
}

// AlertEntry is one JSON line appended to alerts.log.
type AlertEntry struct {
	TS      string      `json:"ts"`
	Kind    string      `json:"kind"`
	Payload interface{} `json:"payload"`
}

// Sink receives alert side effects emitted while building a payload.
type Sink interface {
	Append(AlertEntry) error
}

// Builder is the C12 implementation.
type Builder struct {
	cfg  Config
	sink Sink
	now  func() string
}

// NewBuilder constructs a Builder. now supplies the timestamp used for
// alerts.log entries (injected so output is reproducible in tests).
func NewBuilder(cfg Config, sink Sink, now func() string) *Builder {
	return &Builder{cfg: cfg, sink: sink, now: now}
}

// Build computes the canary payload and its triage hints, fires the
// alerts.log side effects, and returns the canonical JSON bytes. Two
// calls with identical input produce byte-identical output.
func (b *Builder) Build(in Input) ([]byte, error) {
	hints := b.triageHints(in)
	if hints == nil {
		hints = []string{}
	}
	driftAlert, driftDeltaPct := driftAlert(in)

	payload := Payload{
		Meta: map[string]interface{}{
			"generated_at": generatedAt(in.GeneratedAt),
		},
		Rollout: map[string]interface{}{
			"active":     in.Rollout.Active,
			"split_pct":  in.Rollout.SplitPct,
			"step_idx":   in.Rollout.StepIdx,
			"steps_pct":  in.Rollout.StepsPct,
			"frozen":     in.Rollout.Frozen,
		},
		Drift: map[string]interface{}{
			"observed_pct": in.ObservedSplitPct,
			"expected_pct": in.ExpectedSplitPct,
			"delta_pct":    driftDeltaPct,
			"orders_total": in.OrdersTotal,
			"alert":        driftAlert,
		},
		Hints: hints,
		Killswitch: map[string]interface{}{
			"enabled":    in.Killswitch.Enabled,
			"dry_run":    in.Killswitch.DryRun,
			"action":     in.Killswitch.Action,
			"fired_now":  in.Killswitch.FiredNow,
			"fire_total": in.Killswitch.FireTotal,
		},
		Autopromote: map[string]interface{}{
			"enabled":                  in.Autopromote.Enabled,
			"consecutive_stable_steps": in.Autopromote.ConsecutiveStableSteps,
			"stable_steps_required":    in.Autopromote.StableStepsRequired,
			"min_split_pct":            in.Autopromote.MinSplitPct,
			"fired_now":                in.Autopromote.FiredNow,
		},
		SLO: map[string]interface{}{
			"reject_rate_blue_pct":  rejectRatePct(in.FillsBlue, in.RejectsBlue),
			"reject_rate_green_pct": rejectRatePct(in.FillsGreen, in.RejectsGreen),
			"lat_blue_ms":           in.LatBlueMs,
			"lat_green_ms":          in.LatGreenMs,
			"lat_p95_blue_ms":       in.LatP95Blue,
			"lat_p95_green_ms":      in.LatP95Green,
			"lat_p99_blue_ms":       in.LatP99Blue,
			"lat_p99_green_ms":      in.LatP99Green,
		},
		Markout: map[string]interface{}{
			"blue_avg_bps_200ms":  in.MarkoutBlueAvgBps200,
			"green_avg_bps_200ms": in.MarkoutGreenAvgBps200,
			"blue_avg_bps_500ms":  in.MarkoutBlueAvgBps500,
			"green_avg_bps_500ms": in.MarkoutGreenAvgBps500,
		},
		MarkoutSamplesBlue:  in.MarkoutSamplesBlue,
		MarkoutSamplesGreen: in.MarkoutSamplesGreen,
	}

	out, err := canonjson.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("canary: marshal payload: %w", err)
	}

	b.fireAlerts(in, hints, driftAlert, payload)

	return out, nil
}

func generatedAt(override string) string {
	if override != "" {
		return override
	}
	return epochZero
}

// Hints evaluates the triage predicates for in without building a full
// payload or firing alert side effects; used by the Markdown report.
func (b *Builder) Hints(in Input) []string {
	return b.triageHints(in)
}

// triageHints evaluates the seven predicates in the fixed order the spec
// lists them, appending a hint only when its predicate holds.
func (b *Builder) triageHints(in Input) []string {
	var hints []string

	totalFills := in.FillsBlue + in.FillsGreen
	rrBlue := rejectRatePct(in.FillsBlue, in.RejectsBlue)
	rrGreen := rejectRatePct(in.FillsGreen, in.RejectsGreen)
	if totalFills >= 500 && (rrGreen-rrBlue) > 2.0 {
		hints = append(hints, "green_rejects_spike")
	}

	if (in.LatGreenMs - in.LatBlueMs) > 50 {
		hints = append(hints, "green_latency_regression")
	}

	if in.LatSamplesBlue >= b.cfg.LatMinSample && in.LatSamplesGreen >= b.cfg.LatMinSample {
		if (in.LatP95Green - in.LatP95Blue) > b.cfg.LatP95CapMs {
			hints = append(hints, "latency_tail_regression_p95")
		}
		if (in.LatP99Green - in.LatP99Blue) > b.cfg.LatP99CapMs {
			hints = append(hints, "latency_tail_regression_p99")
		}
	}

	if abs(in.ObservedSplitPct-in.ExpectedSplitPct) > 5.0 && in.OrdersTotal >= 100 {
		hints = append(hints, "split_drift_exceeds_cap")
	}

	if in.HoldsSample > 0 {
		hints = append(hints, "ramp_hold_low_sample")
	}
	if in.HoldsCooldown > 0 {
		hints = append(hints, "ramp_on_cooldown")
	}

	if (in.MarkoutGreenAvgBps200 - in.MarkoutBlueAvgBps200) < -b.cfg.MarkoutCapBps {
		hints = append(hints, "markout_green_worse_200ms")
	}
	if (in.MarkoutGreenAvgBps500 - in.MarkoutBlueAvgBps500) < -b.cfg.MarkoutCapBps {
		hints = append(hints, "markout_green_worse_500ms")
	}

	return hints
}

func driftAlert(in Input) (bool, float64) {
	delta := abs(in.ObservedSplitPct - in.ExpectedSplitPct)
	return delta > 5.0 && in.OrdersTotal >= 100, delta
}

func rejectRatePct(fills, rejects int64) float64 {
	denom := fills + rejects
	if denom < 1 {
		denom = 1
	}
	return 100.0 * float64(rejects) / float64(denom)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
