package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		CancelRateThreshold:    10,
		RESTErrorRateThreshold: 0.2,
		PnLSlopeThreshold:      -100,
		WSLagMsThreshold:       500,
		HysteresisBad:          2,
		HysteresisGood:         2,
		CancelAllInterval:      2 * time.Second,
	}
}

func TestTick_PausesAfterHysteresisBad(t *testing.T) {
	g := New(testConfig())
	now := time.Now()
	g.Tick(Signals{CancelRatePerSec: 20}, now)
	require.False(t, g.EffectivePause())
	g.Tick(Signals{CancelRatePerSec: 20}, now.Add(time.Second))
	require.True(t, g.EffectivePause())
}

func TestTick_ResumesAfterHysteresisGood(t *testing.T) {
	g := New(testConfig())
	now := time.Now()
	g.Tick(Signals{CancelRatePerSec: 20}, now)
	g.Tick(Signals{CancelRatePerSec: 20}, now)
	require.True(t, g.EffectivePause())

	g.Tick(Signals{}, now)
	require.True(t, g.EffectivePause())
	g.Tick(Signals{}, now)
	require.False(t, g.EffectivePause())
}

func TestDryRun_SuppressesEffectivePause(t *testing.T) {
	g := New(testConfig())
	g.SetDryRun(true)
	now := time.Now()
	g.Tick(Signals{CancelRatePerSec: 20}, now)
	g.Tick(Signals{CancelRatePerSec: 20}, now)
	require.True(t, g.State().Paused)
	require.False(t, g.EffectivePause())
}

func TestManualOverride_ForcesEffectivePause(t *testing.T) {
	g := New(testConfig())
	g.SetManualOverride(true)
	require.True(t, g.EffectivePause())
}

func TestShouldCancelAll_RespectsInterval(t *testing.T) {
	g := New(testConfig())
	g.SetManualOverride(true)
	now := time.Now()
	require.True(t, g.ShouldCancelAll(now))
	require.False(t, g.ShouldCancelAll(now.Add(time.Second)))
	require.True(t, g.ShouldCancelAll(now.Add(3*time.Second)))
}
