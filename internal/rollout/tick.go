package rollout

import (
	"time"

	"github.com/northbeacon/quotectl/pkg/metrics"
)

// Snapshot carries the cumulative per-color counters and latency estimates
// a tick is evaluated against. Fills/Rejects are cumulative totals, not
// deltas; LatBlueMs/LatGreenMs are pre-smoothed (EWMA) estimates in
// milliseconds.
type Snapshot struct {
	Blue      ColorCounters
	Green     ColorCounters
	LatBlueMs float64
	LatGreenMs float64
}

// TickResult reports the outcome of one Tick call.
type TickResult struct {
	Held       bool
	HoldReason string // "sample", "cooldown", ""
	Action     string // "", "step_down", "step_up", "freeze", "rollback", "dry_run", "auto_promote"
	DeltaRejectRatePct float64
	DeltaLatencyMs     float64
}

const (
	severeRejectRateFloorPct = 5.0
	severeLatencyFloorMs     = 150.0
)

// Tick runs the nine-step ramp algorithm against one fresh metrics
// snapshot. last_counters are always updated at the end of the call, after
// the decision has been made, so a HOLD never double-counts deltas on the
// following tick.
func (c *Controller) Tick(snap Snapshot, now time.Time) (result TickResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dFillsBlue := snap.Blue.Fills - c.ramp.LastBlue.Fills
	dRejBlue := snap.Blue.Rejects - c.ramp.LastBlue.Rejects
	dFillsGreen := snap.Green.Fills - c.ramp.LastGreen.Fills
	dRejGreen := snap.Green.Rejects - c.ramp.LastGreen.Rejects

	sample := dFillsBlue
	if dFillsGreen < sample {
		sample = dFillsGreen
	}

	defer func() {
		c.ramp.LastBlue = snap.Blue
		c.ramp.LastGreen = snap.Green
		c.ramp.UpdatedTs = now
		c.lastTick = result
	}()

	if sample < c.rampCfg.MinSampleFills {
		c.markNotFullyStable()
		result = TickResult{Held: true, HoldReason: "sample"}
		return result
	}

	rrBlue := rejectRatePct(dFillsBlue, dRejBlue)
	rrGreen := rejectRatePct(dFillsGreen, dRejGreen)
	dRR := rrGreen - rrBlue
	dLat := snap.LatGreenMs - snap.LatBlueMs

	result = TickResult{DeltaRejectRatePct: dRR, DeltaLatencyMs: dLat}

	severeRRThreshold := maxFloat(severeRejectRateFloorPct, c.rampCfg.MaxRejectRateDeltaPct)
	severeLatThreshold := maxFloat(severeLatencyFloorMs, c.rampCfg.MaxLatencyDeltaMs)
	severe := dRR > severeRRThreshold || dLat > severeLatThreshold

	ordinaryUnhealthy := dRR > c.rampCfg.MaxRejectRateDeltaPct || dLat > c.rampCfg.MaxLatencyDeltaMs

	if severe {
		c.markNotFullyStable()
		result.Action = c.fireKillSwitch(now)
		return result
	}

	if ordinaryUnhealthy {
		c.stepDown()
		// Any step-down, ordinary or kill-switch, opens the same
		// cooldown gate before the ramp is allowed to step up again.
		c.ramp.CooldownUntil = now.Add(time.Duration(c.rampCfg.CooldownAfterRollbackSec) * time.Second)
		c.markNotFullyStable()
		result.Action = "step_down"
	}

	if !severe && c.killCfg.Enabled && sample >= c.killCfg.MinFills {
		rrFraction := dRR / 100.0
		if rrFraction > c.killCfg.MaxRejectDelta || dLat > c.killCfg.MaxLatencyDeltaMs {
			c.markNotFullyStable()
			result.Action = c.fireKillSwitch(now)
			return result
		}
	}

	if ordinaryUnhealthy {
		return result
	}

	if c.ramp.Frozen {
		c.markNotFullyStable()
		return result
	}

	if !c.ramp.CooldownUntil.IsZero() && now.Before(c.ramp.CooldownUntil) {
		c.markNotFullyStable()
		result.Held = true
		result.HoldReason = "cooldown"
		return result
	}

	if c.ramp.Enabled {
		steps := sortedStepsCopy(c.ramp.StepsPct)
		if c.ramp.StepIdx < len(steps)-1 {
			c.stepUpCapped(steps)
			result.Action = "step_up"
		}
	}

	c.ramp.ConsecutiveStableSteps++
	c.maybeAutoPromote(&result)

	return result
}

// markNotFullyStable resets the auto-promotion streak; any tick that isn't
// fully stable (held, unhealthy, frozen, or in cooldown) breaks the streak.
func (c *Controller) markNotFullyStable() {
	c.ramp.ConsecutiveStableSteps = 0
}

func (c *Controller) stepDown() {
	if c.ramp.StepIdx > 0 {
		c.ramp.StepIdx--
	}
	steps := sortedStepsCopy(c.ramp.StepsPct)
	if c.ramp.StepIdx < len(steps) {
		c.rollout.SplitPct = steps[c.ramp.StepIdx]
	}
	metrics.RampStepTotal.WithLabelValues("down").Inc()
}

func (c *Controller) stepUpCapped(steps []int) {
	target := c.ramp.StepIdx + 1
	if target >= len(steps) {
		target = len(steps) - 1
	}
	currentPct := steps[c.ramp.StepIdx]
	targetPct := steps[target]
	if c.rampCfg.MaxStepIncreasePct > 0 && targetPct-currentPct > c.rampCfg.MaxStepIncreasePct {
		// Clamp the jump to the configured per-tick cap by finding the
		// furthest step whose delta from current does not exceed it.
		capped := currentPct
		idx := c.ramp.StepIdx
		for i := c.ramp.StepIdx + 1; i < len(steps); i++ {
			if steps[i]-currentPct > c.rampCfg.MaxStepIncreasePct {
				break
			}
			capped = steps[i]
			idx = i
		}
		c.ramp.StepIdx = idx
		c.rollout.SplitPct = capped
		metrics.RampStepTotal.WithLabelValues("up").Inc()
		return
	}
	c.ramp.StepIdx = target
	c.rollout.SplitPct = targetPct
	metrics.RampStepTotal.WithLabelValues("up").Inc()
}

// fireKillSwitch applies the configured kill-switch action and returns the
// action label recorded on the TickResult. A severe incident (Tick's
// step 5) always reaches this, even when the kill-switch is disabled for
// ordinary threshold evaluation (Tick's step 7) — disabling only suppresses
// dry-run accounting, never the rollback/freeze floor itself.
func (c *Controller) fireKillSwitch(now time.Time) string {
	if c.killCfg.Enabled && c.killCfg.DryRun {
		c.killFireCount++
		metrics.KillSwitchFiredTotal.WithLabelValues("dry_run").Inc()
		return "dry_run"
	}

	switch c.killCfg.Action {
	case ActionFreeze:
		c.ramp.Frozen = true
		metrics.KillSwitchFiredTotal.WithLabelValues("freeze").Inc()
		return "freeze"
	default:
		// Rollback always steps down exactly one level, never more,
		// regardless of how severe the incident was.
		c.stepDown()
		c.ramp.CooldownUntil = now.Add(time.Duration(c.rampCfg.CooldownAfterRollbackSec) * time.Second)
		metrics.KillSwitchFiredTotal.WithLabelValues("rollback").Inc()
		return "rollback"
	}
}

func (c *Controller) maybeAutoPromote(result *TickResult) {
	if !c.promoteCfg.Enabled {
		return
	}
	if c.ramp.ConsecutiveStableSteps < c.promoteCfg.StableStepsRequired {
		return
	}
	if c.rollout.SplitPct < c.promoteCfg.MinSplitPct {
		return
	}

	c.rollout.Active = Green
	c.rollout.SplitPct = 0
	c.ramp.Enabled = false
	c.ramp.StepIdx = 0
	c.ramp.ConsecutiveStableSteps = 0
	result.Action = "auto_promote"
	metrics.AutoPromoteTotal.Inc()
}

// ManualPromote promotes green to active immediately, bypassing the ramp
// and stable-steps requirement; used by the admin promote endpoint.
func (c *Controller) ManualPromote() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollout.Active = Green
	c.rollout.SplitPct = 0
	c.ramp.Enabled = false
	c.ramp.StepIdx = 0
	c.ramp.ConsecutiveStableSteps = 0
}

// Unfreeze clears a kill-switch freeze, resuming ramp evaluation.
func (c *Controller) Unfreeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ramp.Frozen = false
}

// Freeze latches the ramp so it does not advance, without touching
// split_pct; used by the admin kill-switch endpoint for a manual freeze.
func (c *Controller) Freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ramp.Frozen = true
}

// ManualKillSwitch fires the configured kill-switch action immediately,
// bypassing threshold evaluation; used by the admin kill-switch endpoint
// for an operator-triggered emergency stop. Honors dry_run.
func (c *Controller) ManualKillSwitch(now time.Time) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fireKillSwitch(now)
}

func rejectRatePct(dFills, dRej int64) float64 {
	denom := dFills + dRej
	if denom < 1 {
		denom = 1
	}
	return 100.0 * float64(dRej) / float64(denom)
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
