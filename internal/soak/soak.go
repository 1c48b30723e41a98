// Package soak implements the C13 "soak" named task's process-health
// monitor: it samples this process's own resident set size, OS thread
// count and scheduling drift, exposes them on the SoakRSSBytes/
// SoakThreads gauges, and raises an alert when any configured cap is
// exceeded.
package soak

import (
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/northbeacon/quotectl/pkg/config"
	"github.com/northbeacon/quotectl/pkg/metrics"
)

// Monitor samples the current process and tracks drift against the
// nominal tick interval it's driven at.
type Monitor struct {
	cfg      config.CanaryConfig
	proc     *process.Process
	lastTick time.Time
}

// NewMonitor builds a Monitor for the current process (os.Getpid()).
func NewMonitor(cfg config.CanaryConfig) (*Monitor, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("soak: resolve self process: %w", err)
	}
	return &Monitor{cfg: cfg, proc: p}, nil
}

// Reading is one sample's observed values.
type Reading struct {
	RSSBytes  uint64
	Threads   int32
	DriftMs   float64
	OverCap   bool
	CapReason string
}

// Sample takes one reading, updates the exported gauges, and reports
// whether any configured cap was exceeded. now is the time of this
// sample; the first call after construction reports zero drift.
func (m *Monitor) Sample(now time.Time) (Reading, error) {
	mem, err := m.proc.MemoryInfo()
	if err != nil {
		return Reading{}, fmt.Errorf("soak: read memory info: %w", err)
	}
	threads, err := m.proc.NumThreads()
	if err != nil {
		return Reading{}, fmt.Errorf("soak: read thread count: %w", err)
	}

	var driftMs float64
	if !m.lastTick.IsZero() && m.cfg.SoakWindowSec > 0 {
		nominal := time.Duration(m.cfg.SoakWindowSec) * time.Second
		elapsed := now.Sub(m.lastTick)
		driftMs = float64((elapsed - nominal).Milliseconds())
		if driftMs < 0 {
			driftMs = -driftMs
		}
	}
	m.lastTick = now

	reading := Reading{RSSBytes: mem.RSS, Threads: threads, DriftMs: driftMs}

	rssMB := mem.RSS / (1024 * 1024)
	switch {
	case m.cfg.SoakRSSMaxMB > 0 && int(rssMB) > m.cfg.SoakRSSMaxMB:
		reading.OverCap = true
		reading.CapReason = "rss"
	case m.cfg.SoakThreadsMax > 0 && int(threads) > m.cfg.SoakThreadsMax:
		reading.OverCap = true
		reading.CapReason = "threads"
	case m.cfg.SoakDriftMaxMs > 0 && driftMs > m.cfg.SoakDriftMaxMs:
		reading.OverCap = true
		reading.CapReason = "drift"
	}

	metrics.SoakRSSBytes.Set(float64(mem.RSS))
	metrics.SoakThreads.Set(float64(threads))
	if reading.OverCap {
		metrics.AlertsFiredTotal.WithLabelValues("soak_cap_exceeded").Inc()
	}

	return reading, nil
}
