package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/northbeacon/quotectl/internal/canary"
	"github.com/northbeacon/quotectl/internal/retention"
	"github.com/northbeacon/quotectl/internal/rollout"
	"github.com/northbeacon/quotectl/internal/scheduler"
	"github.com/northbeacon/quotectl/internal/snapshot"
	"github.com/northbeacon/quotectl/internal/soak"
	"github.com/northbeacon/quotectl/internal/supervisor"
	"github.com/northbeacon/quotectl/pkg/config"
)

const snapshotVersion = 1

// buildSupervisorTasks wires every C13 named task. Each body is a thin
// adapter between a domain component's own method and the snapshot/
// retention/metrics plumbing; none of the per-component logic lives here.
func buildSupervisorTasks(cfg *config.Config, comps *components, throttleSnapshotPath string, throttleSnapshotInterval time.Duration) []supervisor.Task {
	soakMonitor, err := soak.NewMonitor(cfg.Canary)
	if err != nil {
		soakMonitor = nil
	}

	allocatorPath := filepath.Join(cfg.Artifacts.Dir, "allocator_hwm.json")
	rolloutPath := filepath.Join(cfg.Artifacts.Dir, "rollout_state.json")
	rampPath := filepath.Join(cfg.Artifacts.Dir, "rollout_ramp.json")
	alertsLogPath := filepath.Join(cfg.Artifacts.Dir, "alerts.log")
	ordersPath := filepath.Join(cfg.Artifacts.Dir, "orders_snapshot.json")

	tasks := []supervisor.Task{
		{
			Name:     "ramp",
			Interval: durationOrDefault(cfg.Rollout.StepIntervalSec, 300),
			Body: func(ctx context.Context) error {
				now := time.Now()
				result := comps.rollout.Tick(comps.metrics.RampSnapshot(), now)
				recordTickResult(ctx, comps, now, result)
				return nil
			},
		},
		{
			Name:     "allocator_snapshot",
			Interval: 60 * time.Second,
			Body: func(ctx context.Context) error {
				return snapshot.Save(allocatorPath, comps.allocator.ExportHWM(), snapshotVersion)
			},
		},
		{
			Name:     "throttle_snapshot",
			Interval: throttleSnapshotInterval,
			Body: func(ctx context.Context) error {
				return snapshot.Save(throttleSnapshotPath, comps.throttle.Snapshot(), snapshotVersion)
			},
		},
		{
			Name:     "ramp_snapshot",
			Interval: 60 * time.Second,
			Body: func(ctx context.Context) error {
				return snapshot.Save(rampPath, comps.rollout.ExportRamp(), snapshotVersion)
			},
		},
		{
			Name:     "rollout_state_snapshot",
			Interval: 60 * time.Second,
			Body: func(ctx context.Context) error {
				return snapshot.Save(rolloutPath, comps.rollout.ExportRollout(), snapshotVersion)
			},
		},
		{
			Name:     "slo",
			Interval: 10 * time.Second,
			Body: func(ctx context.Context) error {
				agg := comps.throttle.Snapshot()
				comps.autoPolicy.Evaluate(agg.BackoffMsMax, agg.EventsTotal, time.Now())
				return nil
			},
		},
		{
			Name:     "soak",
			Interval: durationOrDefault(cfg.Canary.SoakWindowSec, 600),
			Body: func(ctx context.Context) error {
				if soakMonitor == nil {
					return nil
				}
				_, err := soakMonitor.Sample(time.Now())
				return err
			},
		},
		{
			Name:     "export_canary",
			Interval: durationOrDefault(cfg.Artifacts.CanaryExportIntervalSec, 60),
			Body: func(ctx context.Context) error {
				return exportCanary(comps, cfg.Artifacts.Dir)
			},
		},
		{
			Name:     "prune",
			Interval: durationOrDefault(cfg.Artifacts.PruneIntervalSec, 3600),
			Body: func(ctx context.Context) error {
				if err := retention.PruneAlertsLog(alertsLogPath, cfg.Retention.AlertsMaxLines); err != nil {
					return err
				}
				maxAge := time.Duration(cfg.Retention.CanaryMaxDays) * 24 * time.Hour
				return retention.PruneCanaryArtifacts(cfg.Artifacts.Dir, maxAge, cfg.Retention.CanaryMaxSnapshots, time.Now())
			},
		},
		{
			Name:     "scheduler_recompute",
			Interval: durationOrDefault(cfg.Scheduler.RecomputeSec, 3600),
			Body: func(ctx context.Context) error {
				buckets := comps.metrics.SchedulerBuckets()
				if len(buckets) == 0 {
					return nil
				}
				suggestions := scheduler.SuggestWindows(buckets, scheduler.ModeNeutral, 1, 10)
				comps.server.Log.Info(ctx, "scheduler window suggestions computed", map[string]interface{}{"count": len(suggestions)})
				return nil
			},
		},
		{
			Name:     "orders_snapshot",
			Interval: 60 * time.Second,
			Body: func(ctx context.Context) error {
				raw, err := comps.orders.SnapshotOrders()
				if err != nil || raw == nil {
					return err
				}
				return snapshot.Save(ordersPath, map[string]interface{}{"raw": string(raw)}, snapshotVersion)
			},
		},
	}

	return tasks
}

// recordTickResult appends an audit record for the ramp-tick actions that
// change externally-visible state: a fired kill-switch (freeze, rollback,
// or a would-have-fired dry_run) and an auto-promotion flip. Ordinary
// step_up/step_down/hold outcomes are covered by the ramp/rollout
// snapshots already written on their own schedule and need no audit entry.
func recordTickResult(ctx context.Context, comps *components, now time.Time, result rollout.TickResult) {
	switch result.Action {
	case "freeze", "rollback", "dry_run", "auto_promote":
	default:
		return
	}

	endpoint := "rollout/ramp_tick"
	payload := map[string]interface{}{
		"action":                result.Action,
		"delta_reject_rate_pct": result.DeltaRejectRatePct,
		"delta_latency_ms":      result.DeltaLatencyMs,
	}
	if comps.server.Audit != nil {
		if _, err := comps.server.Audit.Append(now, endpoint, "system", payload); err != nil {
			comps.server.Log.Error(ctx, "audit append failed", err, map[string]interface{}{"endpoint": endpoint})
		}
	}
}

func durationOrDefault(sec int, fallbackSec int) time.Duration {
	if sec <= 0 {
		sec = fallbackSec
	}
	return time.Duration(sec) * time.Second
}

// exportCanary builds one canary payload from the rollout controller's own
// state plus whatever execution-quality metrics are available from the
// external feed, writes the JSON snapshot and markdown report pair, and
// updates the admin surface's "last export" view.
func exportCanary(comps *components, artifactsDir string) error {
	now := time.Now()
	rolloutState := comps.rollout.RolloutState()
	rampState := comps.rollout.RampState()
	killCfg := comps.rollout.KillSwitchConfig()
	promoteCfg := comps.rollout.AutoPromoteConfig()
	lastTick := comps.rollout.LastTickResult()
	m := comps.metrics.CanaryMetrics()

	killFiredNow := lastTick.Action == "freeze" || lastTick.Action == "rollback" || lastTick.Action == "dry_run"

	in := canary.Input{
		GeneratedAt: now.UTC().Format(time.RFC3339),
		Rollout: canary.RolloutView{
			Active:   string(rolloutState.Active),
			SplitPct: rolloutState.SplitPct,
			StepIdx:  rampState.StepIdx,
			StepsPct: rampState.StepsPct,
			Frozen:   rampState.Frozen,
		},
		Killswitch: canary.KillswitchView{
			Enabled:   killCfg.Enabled,
			DryRun:    killCfg.DryRun,
			Action:    string(killCfg.Action),
			FiredNow:  killFiredNow,
			FireTotal: comps.rollout.KillSwitchFireCount(),
		},
		Autopromote: canary.AutopromoteView{
			Enabled:                promoteCfg.Enabled,
			ConsecutiveStableSteps: rampState.ConsecutiveStableSteps,
			StableStepsRequired:    promoteCfg.StableStepsRequired,
			MinSplitPct:            promoteCfg.MinSplitPct,
			FiredNow:               lastTick.Action == "auto_promote",
		},
		ObservedSplitPct: m.ObservedSplitPct,
		ExpectedSplitPct: float64(rolloutState.SplitPct),
		OrdersTotal:      m.OrdersTotal,

		FillsBlue: m.FillsBlue, FillsGreen: m.FillsGreen,
		RejectsBlue: m.RejectsBlue, RejectsGreen: m.RejectsGreen,
		LatBlueMs: m.LatBlueMs, LatGreenMs: m.LatGreenMs,
		LatP95Blue: m.LatP95Blue, LatP95Green: m.LatP95Green,
		LatP99Blue: m.LatP99Blue, LatP99Green: m.LatP99Green,
		LatSamplesBlue: m.LatSamplesBlue, LatSamplesGreen: m.LatSamplesGreen,

		MarkoutBlueAvgBps200: m.MarkoutBlueAvgBps200, MarkoutGreenAvgBps200: m.MarkoutGreenAvgBps200,
		MarkoutBlueAvgBps500: m.MarkoutBlueAvgBps500, MarkoutGreenAvgBps500: m.MarkoutGreenAvgBps500,
		MarkoutSamplesBlue: m.MarkoutSamplesBlue, MarkoutSamplesGreen: m.MarkoutSamplesGreen,
	}

	payload, err := comps.canary.Build(in)
	if err != nil {
		return err
	}
	report := canary.RenderMarkdownReport(in, comps.canary.Hints(in))

	jsonName := retention.CanaryArtifactName("canary_", now, "json")
	reportName := retention.CanaryArtifactName("REPORT_CANARY_", now, "md")
	if err := writeFile(filepath.Join(artifactsDir, jsonName), payload); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(artifactsDir, reportName), []byte(report)); err != nil {
		return err
	}

	comps.server.Misc.SetCanaryLast(payload, report)
	return nil
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}
