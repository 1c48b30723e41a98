package volatility

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUpdate_FirstTickInitialisesZero(t *testing.T) {
	tr := New(0.2, 2)
	now := time.Now()
	tr.Update("BTCUSD", 100, now)
	require.Equal(t, 0.0, tr.Value("BTCUSD"))
}

func TestUpdate_ComputesEWMA(t *testing.T) {
	tr := New(0.5, 1)
	now := time.Now()
	tr.Update("BTCUSD", 100, now)
	tr.Update("BTCUSD", 110, now.Add(time.Second))
	require.InDelta(t, 0.05, tr.Value("BTCUSD"), 1e-9)
}

func TestUpdate_IgnoresNonPositiveMid(t *testing.T) {
	tr := New(0.5, 1)
	now := time.Now()
	tr.Update("BTCUSD", 100, now)
	tr.Update("BTCUSD", 110, now.Add(time.Second))
	before := tr.Value("BTCUSD")
	tr.Update("BTCUSD", 0, now.Add(2*time.Second))
	tr.Update("BTCUSD", -5, now.Add(3*time.Second))
	require.Equal(t, before, tr.Value("BTCUSD"))
}

func TestUpdate_IgnoresOutOfOrderTimestamps(t *testing.T) {
	tr := New(0.5, 1)
	now := time.Now()
	tr.Update("BTCUSD", 100, now)
	tr.Update("BTCUSD", 110, now.Add(2*time.Second))
	before := tr.Value("BTCUSD")
	tr.Update("BTCUSD", 200, now.Add(time.Second))
	require.Equal(t, before, tr.Value("BTCUSD"))
}

func TestIsReady_RequiresMinSamples(t *testing.T) {
	tr := New(0.5, 3)
	now := time.Now()
	tr.Update("BTCUSD", 100, now)
	require.False(t, tr.IsReady("BTCUSD"))
	tr.Update("BTCUSD", 101, now.Add(time.Second))
	tr.Update("BTCUSD", 102, now.Add(2*time.Second))
	require.True(t, tr.IsReady("BTCUSD"))
}
