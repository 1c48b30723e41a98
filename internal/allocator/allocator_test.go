package allocator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHWM_MonotoneNonDecreasing(t *testing.T) {
	a := New()
	a.UpdateEquity(100)
	a.UpdateEquity(50)
	require.Equal(t, 100.0, a.HWMEquityUSD())
	a.UpdateEquity(200)
	require.Equal(t, 200.0, a.HWMEquityUSD())
}

func TestReset_ZeroAndToCurrentEquity(t *testing.T) {
	a := New()
	a.UpdateEquity(500)
	a.Reset(ResetZero, 0)
	require.Equal(t, 0.0, a.HWMEquityUSD())

	a.Reset(ResetToCurrentEquity, 321)
	require.Equal(t, 321.0, a.HWMEquityUSD())
}

func TestTargetsFromWeights_RespectsCap(t *testing.T) {
	a := New()
	a.SetCapEffBps("BTCUSD", 500) // 5%
	targets := a.TargetsFromWeights(map[string]float64{"BTCUSD": 1.0}, 10000)
	require.LessOrEqual(t, targets["BTCUSD"].TargetUSD, 500.0)
}

func TestTargetsFromWeights_OverrideAttenuatesAtLeastAsMuch(t *testing.T) {
	a := New()
	a.SetAllocatorCostInputs("SYM1", 50, 100000, 20)
	a.SetAllocatorCostInputs("SYM2", 50, 100000, 20)
	a.SetKEffOverride("SYM2", 900) // stronger attenuation than default

	targets := a.TargetsFromWeights(map[string]float64{"SYM1": 1.0, "SYM2": 1.0}, 100000)
	require.LessOrEqual(t, targets["SYM2"].TargetUSD, targets["SYM1"].TargetUSD)
}

func TestTargetsFromWeights_ZeroWeightGivesZeroTarget(t *testing.T) {
	a := New()
	targets := a.TargetsFromWeights(map[string]float64{"X": 0}, 1000)
	require.Equal(t, 0.0, targets["X"].TargetUSD)
}
