package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/northbeacon/quotectl/infrastructure/logging"
	"github.com/northbeacon/quotectl/internal/adminapi"
	"github.com/northbeacon/quotectl/internal/auditlog"
	"github.com/northbeacon/quotectl/internal/canary"
	"github.com/northbeacon/quotectl/internal/externalfeed"
	"github.com/northbeacon/quotectl/internal/rollout"
)

func newTestComponents(t *testing.T) *components {
	t.Helper()
	auditLog := auditlog.NewLog(nil)
	server := &adminapi.Server{
		Audit: auditLog,
		Log:   logging.New("quotectl-test", "error", "text"),
		Misc:  adminapi.NewMiscState(),
	}
	roll := rollout.NewController(
		rollout.RolloutState{Active: rollout.Blue, SplitPct: 10, Salt: "s"},
		rollout.RampState{Enabled: true, StepsPct: []int{0, 10, 25, 50, 100}, StepIdx: 1},
		rollout.RampConfig{MinSampleFills: 50, MaxRejectRateDeltaPct: 2.0, MaxLatencyDeltaMs: 50, CooldownAfterRollbackSec: 300},
		rollout.KillSwitchConfig{Enabled: true, Action: rollout.ActionFreeze},
		rollout.AutoPromoteConfig{},
	)
	canaryBuild := canary.NewBuilder(canary.Config{}, nil, func() string { return "2026-01-01T00:00:00Z" })
	return &components{
		server: server,
		rollout: roll,
		canary:  canaryBuild,
		metrics: externalfeed.NoopMetrics{},
		orders:  externalfeed.NoopOrdersSnapshotter{},
	}
}

func TestRecordTickResult_AppendsAuditOnKillSwitchFire(t *testing.T) {
	comps := newTestComponents(t)
	now := time.Now()

	recordTickResult(context.Background(), comps, now, rollout.TickResult{Action: "freeze", DeltaRejectRatePct: 12.5})

	records := comps.server.Audit.Records()
	require.Len(t, records, 1)
	require.Equal(t, "rollout/ramp_tick", records[0].Endpoint)
	require.Equal(t, "system", records[0].Actor)
}

func TestRecordTickResult_AppendsAuditOnAutoPromote(t *testing.T) {
	comps := newTestComponents(t)
	recordTickResult(context.Background(), comps, time.Now(), rollout.TickResult{Action: "auto_promote"})
	require.Len(t, comps.server.Audit.Records(), 1)
}

func TestRecordTickResult_NoAuditForOrdinaryActions(t *testing.T) {
	comps := newTestComponents(t)
	for _, action := range []string{"", "step_up", "step_down"} {
		recordTickResult(context.Background(), comps, time.Now(), rollout.TickResult{Action: action})
	}
	require.Empty(t, comps.server.Audit.Records())
}

// S4-style scenario: a severe incident fires the kill-switch on a ramp
// tick; exportCanary, run afterward, must report it as having fired now
// so alerts.log actually gets a killswitch line.
func TestExportCanary_PropagatesKillSwitchFiredNow(t *testing.T) {
	dir := t.TempDir()
	comps := newTestComponents(t)

	snap := rollout.Snapshot{
		Blue:       rollout.ColorCounters{Fills: 200, Rejects: 2},
		Green:      rollout.ColorCounters{Fills: 200, Rejects: 60}, // catastrophic reject spike
		LatBlueMs:  20,
		LatGreenMs: 20,
	}
	result := comps.rollout.Tick(snap, time.Now())
	require.Equal(t, "freeze", result.Action)

	require.NoError(t, exportCanary(comps, dir))

	last, _ := comps.server.Misc.CanaryLast()
	require.Contains(t, string(last), `"fired_now":true`)
}
