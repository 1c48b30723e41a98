package canary

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func fixedNow() string { return "2026-01-01T00:00:00Z" }

func baseInput() Input {
	return Input{
		Rollout:     RolloutView{Active: "blue", SplitPct: 25, StepIdx: 2, StepsPct: []int{0, 10, 25, 50, 100}},
		Killswitch:  KillswitchView{Enabled: true, Action: "rollback"},
		Autopromote: AutopromoteView{Enabled: true, StableStepsRequired: 3, MinSplitPct: 25},
		FillsBlue:   1000, RejectsBlue: 10,
		FillsGreen: 1000, RejectsGreen: 10,
		LatBlueMs: 20, LatGreenMs: 21,
		ObservedSplitPct: 25, ExpectedSplitPct: 25,
		OrdersTotal: 1000,
	}
}

func TestBuild_EmptyMetaFallsBackToEpochZero(t *testing.T) {
	b := NewBuilder(Config{}, nil, fixedNow)
	out, err := b.Build(baseInput())
	require.NoError(t, err)
	require.Contains(t, string(out), `"generated_at":"1970-01-01T00:00:00Z"`)
}

func TestBuild_DeterministicAcrossCalls(t *testing.T) {
	b := NewBuilder(Config{}, nil, fixedNow)
	in := baseInput()
	out1, err := b.Build(in)
	require.NoError(t, err)
	out2, err := b.Build(in)
	require.NoError(t, err)
	require.Equal(t, out1, out2)
}

func TestTriageHints_GreenRejectsSpike(t *testing.T) {
	b := NewBuilder(Config{}, nil, fixedNow)
	in := baseInput()
	in.FillsBlue, in.RejectsBlue = 250, 1
	in.FillsGreen, in.RejectsGreen = 250, 20
	hints := b.Hints(in)
	require.Contains(t, hints, "green_rejects_spike")
}

func TestTriageHints_LatencyTailRegression(t *testing.T) {
	cfg := Config{LatMinSample: 100, LatP95CapMs: 10, LatP99CapMs: 20}
	b := NewBuilder(cfg, nil, fixedNow)
	in := baseInput()
	in.LatSamplesBlue, in.LatSamplesGreen = 200, 200
	in.LatP95Blue, in.LatP95Green = 10, 30
	in.LatP99Blue, in.LatP99Green = 10, 15
	hints := b.Hints(in)
	require.Contains(t, hints, "latency_tail_regression_p95")
	require.NotContains(t, hints, "latency_tail_regression_p99")
}

func TestTriageHints_SplitDriftExceedsCap(t *testing.T) {
	b := NewBuilder(Config{}, nil, fixedNow)
	in := baseInput()
	in.ObservedSplitPct, in.ExpectedSplitPct = 32, 25
	in.OrdersTotal = 200
	hints := b.Hints(in)
	require.Contains(t, hints, "split_drift_exceeds_cap")
}

func TestTriageHints_RampHolds(t *testing.T) {
	b := NewBuilder(Config{}, nil, fixedNow)
	in := baseInput()
	in.HoldsSample = 3
	in.HoldsCooldown = 1
	hints := b.Hints(in)
	require.Contains(t, hints, "ramp_hold_low_sample")
	require.Contains(t, hints, "ramp_on_cooldown")
}

func TestTriageHints_MarkoutRegression(t *testing.T) {
	cfg := Config{MarkoutCapBps: 1.0}
	b := NewBuilder(cfg, nil, fixedNow)
	in := baseInput()
	in.MarkoutBlueAvgBps200, in.MarkoutGreenAvgBps200 = 0, -2
	hints := b.Hints(in)
	require.Contains(t, hints, "markout_green_worse_200ms")
}

func TestFileSink_AppendsJSONLine(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/alerts.log"
	sink := NewFileSink(path)
	require.NoError(t, sink.Append(AlertEntry{TS: fixedNow(), Kind: "drift", Payload: map[string]interface{}{"delta_pct": 6.0}}))

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(contents), `"kind":"drift"`)
}

func TestBuild_FiresAlertsOnKillswitch(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir + "/alerts.log")
	b := NewBuilder(Config{}, sink, fixedNow)
	in := baseInput()
	in.Killswitch.FiredNow = true

	_, err := b.Build(in)
	require.NoError(t, err)

	contents, err := os.ReadFile(dir + "/alerts.log")
	require.NoError(t, err)
	require.Contains(t, string(contents), `"kind":"killswitch"`)
}

func TestRenderMarkdownReport_IncludesHints(t *testing.T) {
	b := NewBuilder(Config{}, nil, fixedNow)
	in := baseInput()
	in.HoldsSample = 1
	report := RenderMarkdownReport(in, b.Hints(in))
	require.Contains(t, report, "ramp_hold_low_sample")
}
