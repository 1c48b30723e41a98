// Package externalfeed defines the narrow interfaces this core consumes
// from collaborators it never implements: the exchange connector, the
// quoting strategy, and the time-series recorder. Named supervisor tasks
// that need fill/reject/latency/order-book observations depend on these
// interfaces rather than on any concrete integration, so the control
// plane builds and runs standalone with the no-op defaults below until a
// real feed is wired in.
package externalfeed

import (
	"github.com/northbeacon/quotectl/internal/rollout"
	"github.com/northbeacon/quotectl/internal/scheduler"
)

// CanaryMetrics carries the execution-quality observations a canary
// export needs beyond what the rollout controller already tracks
// internally (splits, fills, rejects, latency percentiles, markout).
type CanaryMetrics struct {
	ObservedSplitPct float64
	OrdersTotal      int64

	FillsBlue, FillsGreen     int64
	RejectsBlue, RejectsGreen int64
	LatBlueMs, LatGreenMs     float64
	LatP95Blue, LatP95Green   float64
	LatP99Blue, LatP99Green   float64
	LatSamplesBlue, LatSamplesGreen int64

	MarkoutBlueAvgBps200, MarkoutGreenAvgBps200 float64
	MarkoutBlueAvgBps500, MarkoutGreenAvgBps500 float64
	MarkoutSamplesBlue, MarkoutSamplesGreen int64
}

// ExternalMetrics is implemented by whatever collects live fill/reject/
// latency/markout/bucket observations from the exchange connector and
// quoting strategy. RampSnapshot feeds the "ramp" task's Controller.Tick
// call; CanaryMetrics feeds the "export_canary" task; SchedulerBuckets
// feeds the "scheduler_recompute" task.
type ExternalMetrics interface {
	RampSnapshot() rollout.Snapshot
	CanaryMetrics() CanaryMetrics
	SchedulerBuckets() []scheduler.BucketStats
}

// OrdersSnapshotter is implemented by whatever owns the bot's live order
// book state. The "orders_snapshot" task calls this and persists
// whatever it returns; nil bytes means there was nothing to persist.
type OrdersSnapshotter interface {
	SnapshotOrders() ([]byte, error)
}

// NoopMetrics is the zero-value ExternalMetrics: it reports no traffic,
// so ramp/export_canary/scheduler_recompute run as harmless no-ops until
// a real connector is attached.
type NoopMetrics struct{}

func (NoopMetrics) RampSnapshot() rollout.Snapshot           { return rollout.Snapshot{} }
func (NoopMetrics) CanaryMetrics() CanaryMetrics             { return CanaryMetrics{} }
func (NoopMetrics) SchedulerBuckets() []scheduler.BucketStats { return nil }

// NoopOrdersSnapshotter reports nothing to persist.
type NoopOrdersSnapshotter struct{}

func (NoopOrdersSnapshotter) SnapshotOrders() ([]byte, error) { return nil, nil }
