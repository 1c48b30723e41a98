package autopolicy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		TriggerBackoffMs:      800,
		TriggerEventsTotal:    100,
		ConsecBadRequired:     2,
		ConsecGoodRequired:    2,
		CooldownMinutes:       1,
		MaxLevel:              3,
		StepPct:               0.2,
		ShrinkPct:             0.1,
		MinTimeInBookMsMaxCap: 10000,
		ReplaceThresholdBpsMaxCap: 500,
		LevelsPerSideMaxMinCap: 1,
		Base: Base{MinTimeInBookMs: 100, ReplaceThresholdBps: 10, LevelsPerSideMax: 5},
	}
}

func TestEvaluate_TightenRequiresHysteresis(t *testing.T) {
	ap := New(testConfig())
	now := time.Now()
	ap.Evaluate(900, 0, now)
	require.Equal(t, 0, ap.Level())
	ap.Evaluate(900, 0, now.Add(10*time.Second))
	require.Equal(t, 1, ap.Level())
}

func TestEvaluate_CooldownBlocksFurtherChange(t *testing.T) {
	ap := New(testConfig())
	now := time.Now()
	ap.Evaluate(900, 0, now)
	ap.Evaluate(900, 0, now.Add(time.Second))
	require.Equal(t, 1, ap.Level())

	ap.Evaluate(900, 0, now.Add(2*time.Second))
	ap.Evaluate(900, 0, now.Add(3*time.Second))
	require.Equal(t, 1, ap.Level(), "cooldown should block a second bump")
}

func TestEvaluate_RelaxesAfterCalm(t *testing.T) {
	ap := New(testConfig())
	now := time.Now()
	ap.Evaluate(900, 0, now)
	ap.Evaluate(900, 0, now.Add(time.Second))
	require.Equal(t, 1, ap.Level())

	later := now.Add(2 * time.Minute)
	ap.Evaluate(0, 0, later)
	ap.Evaluate(0, 0, later.Add(time.Second))
	require.Equal(t, 0, ap.Level())
}

func TestApply_EffectiveParamsMonotoneWithLevel(t *testing.T) {
	ap := New(testConfig())
	base := ap.Effective()
	now := time.Now()
	ap.Evaluate(900, 0, now)
	ap.Evaluate(900, 0, now.Add(time.Second))

	tightened := ap.Effective()
	require.Greater(t, tightened.MinTimeInBookMsEff, base.MinTimeInBookMsEff)
	require.Greater(t, tightened.ReplaceThresholdBpsEff, base.ReplaceThresholdBpsEff)
	require.LessOrEqual(t, tightened.LevelsPerSideMaxEff, base.LevelsPerSideMaxEff)
}
