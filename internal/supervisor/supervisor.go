// Package supervisor implements component C13: a cooperative event loop
// that hosts the control plane's named periodic tasks, each with its own
// interval, deterministic jitter, and heartbeat/drift instrumentation.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/northbeacon/quotectl/infrastructure/logging"
	"github.com/northbeacon/quotectl/internal/snapshot"
	"github.com/northbeacon/quotectl/pkg/metrics"
)

// sleepSlice bounds how long a task's sleep loop can go without checking
// the running flag, so Stop is observed within this long.
const sleepSlice = 50 * time.Millisecond

// driftAlertThreshold is how far actual sleep may exceed nominal before a
// drift is published on the drift gauge; smaller drifts are not recorded.
const driftAlertThreshold = 100 * time.Millisecond

// Task is one named periodic loop body.
type Task struct {
	Name     string
	Interval time.Duration
	Body     func(ctx context.Context) error
}

// Supervisor runs a fixed set of named Tasks, one goroutine each.
type Supervisor struct {
	running atomic.Bool
	wg      sync.WaitGroup
	log     *logging.Logger
	tick    atomic.Int64
}

// New constructs a Supervisor.
func New(log *logging.Logger) *Supervisor {
	return &Supervisor{log: log}
}

// Run starts every task and blocks until ctx is cancelled or Stop is
// called, at which point it waits for all loops to observe the stop
// within one sleep slice and return.
func (s *Supervisor) Run(ctx context.Context, tasks []Task) {
	s.running.Store(true)
	for _, t := range tasks {
		s.wg.Add(1)
		go s.runLoop(ctx, t)
	}

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.wg.Wait()
}

// Stop signals every loop to exit; each observes this within sleepSlice.
func (s *Supervisor) Stop() {
	s.running.Store(false)
}

func (s *Supervisor) runLoop(ctx context.Context, t Task) {
	defer s.wg.Done()

	nominal := t.Interval
	next := time.Now().Add(s.jittered(t.Name, nominal))

	for {
		if !s.sleepUntil(next) {
			return
		}

		start := time.Now()
		drift := start.Sub(next)
		if drift > driftAlertThreshold {
			metrics.HeartbeatDriftSeconds.WithLabelValues(t.Name).Set(drift.Seconds())
		}

		outcome := s.invoke(ctx, t)
		duration := time.Since(start)

		metrics.RecordLoopIteration(t.Name, outcome)
		metrics.LoopDuration.WithLabelValues(t.Name).Observe(duration.Seconds())
		metrics.HeartbeatAgeSeconds.WithLabelValues(t.Name).Set(0)

		tick := s.tick.Add(1)
		nextInterval := snapshot.JitteredInterval(t.Name, fmt.Sprintf("tick-%d", tick), nominal)
		next = start.Add(nextInterval)
	}
}

func (s *Supervisor) jittered(name string, nominal time.Duration) time.Duration {
	return snapshot.JitteredInterval(name, "tick-0", nominal)
}

// sleepUntil sleeps in bounded slices until deadline, returning false as
// soon as running is cleared.
func (s *Supervisor) sleepUntil(deadline time.Time) bool {
	for {
		if !s.running.Load() {
			return false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		slice := remaining
		if slice > sleepSlice {
			slice = sleepSlice
		}
		time.Sleep(slice)
	}
}

func (s *Supervisor) invoke(ctx context.Context, t Task) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			if s.log != nil {
				s.log.Error(ctx, "supervised loop panicked", fmt.Errorf("%v", r), map[string]interface{}{"loop": t.Name})
			}
		}
	}()

	if err := t.Body(ctx); err != nil {
		if s.log != nil {
			s.log.Warn(ctx, "supervised loop body returned error", map[string]interface{}{"loop": t.Name, "error": err.Error()})
		}
		return "error"
	}
	return "ok"
}
