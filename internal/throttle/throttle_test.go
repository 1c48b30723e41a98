package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		WindowSec:          time.Second,
		CreateCap:          3,
		AmendCap:           3,
		CancelCap:          3,
		BackoffInitialMs:   100,
		BackoffMaxMs:       1600,
		BackoffDecayFactor: 0.5,
	}
}

func TestOnEvent_DoublesBackoffOnBreach(t *testing.T) {
	g := New(testConfig())
	now := time.Now()
	for i := 0; i < 4; i++ {
		_, backoff := g.OnEvent("BTCUSD", KindCreate, now.Add(time.Duration(i)*time.Millisecond))
		if i == 3 {
			require.Equal(t, 100.0, backoff)
		}
	}
	_, backoff := g.OnEvent("BTCUSD", KindCreate, now.Add(4*time.Millisecond))
	require.Equal(t, 200.0, backoff)
}

func TestOnEvent_DecaysWhenCalm(t *testing.T) {
	g := New(testConfig())
	now := time.Now()
	for i := 0; i < 5; i++ {
		g.OnEvent("BTCUSD", KindCreate, now)
	}
	_, backoff := g.OnEvent("BTCUSD", KindCreate, now.Add(2*time.Second))
	require.Less(t, backoff, 200.0)
}

func TestGetWindowCounts_EvictsStale(t *testing.T) {
	g := New(testConfig())
	now := time.Now()
	g.OnEvent("ETHUSD", KindCancel, now)
	counts := g.GetWindowCounts("ETHUSD", now.Add(2*time.Second))
	require.Equal(t, 0, counts[KindCancel])
}

func TestSnapshot_AggregatesAcrossSymbols(t *testing.T) {
	g := New(testConfig())
	now := time.Now()
	for i := 0; i < 4; i++ {
		g.OnEvent("BTCUSD", KindCreate, now)
	}
	g.OnEvent("ETHUSD", KindAmend, now)

	snap := g.Snapshot()
	require.Equal(t, int64(5), snap.EventsTotal)
	require.Greater(t, snap.BackoffMsMax, 0.0)
}
