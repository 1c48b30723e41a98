package soak

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/northbeacon/quotectl/pkg/config"
)

func TestMonitorSampleReportsNonZeroRSSAndThreads(t *testing.T) {
	m, err := NewMonitor(config.CanaryConfig{})
	require.NoError(t, err)

	reading, err := m.Sample(time.Now())
	require.NoError(t, err)
	require.Greater(t, reading.RSSBytes, uint64(0))
	require.Greater(t, reading.Threads, int32(0))
	require.False(t, reading.OverCap)
}

func TestMonitorSampleFlagsRSSCapBreach(t *testing.T) {
	m, err := NewMonitor(config.CanaryConfig{SoakRSSMaxMB: 1})
	require.NoError(t, err)

	reading, err := m.Sample(time.Now())
	require.NoError(t, err)
	require.True(t, reading.OverCap)
	require.Equal(t, "rss", reading.CapReason)
}

func TestMonitorSampleTracksDriftAcrossTicks(t *testing.T) {
	m, err := NewMonitor(config.CanaryConfig{SoakWindowSec: 1})
	require.NoError(t, err)

	start := time.Now()
	_, err = m.Sample(start)
	require.NoError(t, err)

	second, err := m.Sample(start.Add(2 * time.Second))
	require.NoError(t, err)
	require.InDelta(t, 1000, second.DriftMs, 50)
}
