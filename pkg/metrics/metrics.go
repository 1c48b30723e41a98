package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the control plane's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "quotectl",
			Subsystem: "admin",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight admin HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quotectl",
			Subsystem: "admin",
			Name:      "requests_total",
			Help:      "Total number of admin HTTP requests handled, by route/method/status.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "quotectl",
			Subsystem: "admin",
			Name:      "request_duration_seconds",
			Help:      "Duration of admin HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"method", "route"},
	)

	// SnapshotIntegrityFailTotal counts snapshot envelopes rejected at load time, by the
	// snapshot kind passed to snapshot.Load (e.g. allocator).
	SnapshotIntegrityFailTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quotectl",
			Subsystem: "snapshot",
			Name:      "integrity_fail_total",
			Help:      "Snapshot load failures rejected by integrity validation, by kind.",
		},
		[]string{"kind"},
	)

	// SnapshotWriteDuration tracks wall time of atomic snapshot persistence.
	SnapshotWriteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "quotectl",
			Subsystem: "snapshot",
			Name:      "write_duration_seconds",
			Help:      "Duration of atomic snapshot writes (temp file + fsync + rename).",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)

	// HeartbeatAgeSeconds reports the age of the most recent heartbeat, by loop.
	HeartbeatAgeSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "quotectl",
			Subsystem: "supervisor",
			Name:      "heartbeat_age_seconds",
			Help:      "Seconds since the last supervised loop heartbeat was recorded, by loop.",
		},
		[]string{"loop"},
	)

	// HeartbeatDriftSeconds reports observed scheduling drift against the expected loop period.
	HeartbeatDriftSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "quotectl",
			Subsystem: "supervisor",
			Name:      "heartbeat_drift_seconds",
			Help:      "Observed drift between expected and actual loop iteration interval, by loop.",
		},
		[]string{"loop"},
	)

	// RateLimiterRejectedTotal counts admission requests rejected by the sliding-window limiter.
	RateLimiterRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quotectl",
			Subsystem: "ratelimit",
			Name:      "rejected_total",
			Help:      "Admin requests rejected by the per-actor sliding-window rate limiter.",
		},
		[]string{"actor", "endpoint"},
	)

	// CircuitBreakerState publishes the current breaker state (0=closed,1=open,2=half_open).
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "quotectl",
			Subsystem: "circuit",
			Name:      "state",
			Help:      "Current circuit breaker state: 0=closed, 1=open, 2=half_open.",
		},
		[]string{"breaker"},
	)

	// ThrottleActive reports whether the runtime throttle guard is currently engaged.
	ThrottleActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "quotectl",
			Subsystem: "throttle",
			Name:      "active",
			Help:      "Whether the throttle guard is currently suppressing quoting (1) or not (0).",
		},
	)

	// VolatilityEWMA publishes the current EWMA volatility estimate per symbol.
	VolatilityEWMA = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "quotectl",
			Subsystem: "volatility",
			Name:      "ewma",
			Help:      "Current exponentially weighted moving average of volatility, by symbol.",
		},
		[]string{"symbol"},
	)

	// AllocatorWeight publishes the portfolio allocator's current weight per symbol.
	AllocatorWeight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "quotectl",
			Subsystem: "allocator",
			Name:      "weight",
			Help:      "Current portfolio allocation weight, by symbol.",
		},
		[]string{"symbol"},
	)

	// AutoPolicyDecisionsTotal counts automatic policy decisions, by action and reason.
	AutoPolicyDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quotectl",
			Subsystem: "autopolicy",
			Name:      "decisions_total",
			Help:      "Automatic policy decisions made, by action and trigger reason.",
		},
		[]string{"action", "reason"},
	)

	// RolloutStage publishes the active rollout ramp stage as a fraction in [0,1].
	RolloutStage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "quotectl",
			Subsystem: "rollout",
			Name:      "stage_fraction",
			Help:      "Current rollout ramp stage, expressed as a fraction of full traffic.",
		},
	)

	// RampStepTotal counts ramp step transitions, by direction (up, down).
	RampStepTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quotectl",
			Subsystem: "rollout",
			Name:      "ramp_step_total",
			Help:      "Ramp step transitions, by direction (up, down).",
		},
		[]string{"direction"},
	)

	// KillSwitchFiredTotal counts kill-switch activations, by action taken (freeze, rollback, dry_run).
	KillSwitchFiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quotectl",
			Subsystem: "rollout",
			Name:      "killswitch_fired_total",
			Help:      "Kill-switch activations, by action taken (freeze, rollback, dry_run).",
		},
		[]string{"action"},
	)

	// AutoPromoteTotal counts automatic green promotions.
	AutoPromoteTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "quotectl",
			Subsystem: "rollout",
			Name:      "auto_promote_total",
			Help:      "Automatic promotions of green to active after sustained stable ramp steps.",
		},
	)

	// CanaryIssuedTotal counts canary payloads issued, by outcome.
	CanaryIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quotectl",
			Subsystem: "canary",
			Name:      "issued_total",
			Help:      "Canary payloads issued, by outcome (accepted, rejected, expired).",
		},
		[]string{"outcome"},
	)

	// LoopDuration tracks wall time of a supervised loop's body, by loop.
	LoopDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "quotectl",
			Subsystem: "supervisor",
			Name:      "loop_duration_seconds",
			Help:      "Duration of one supervised loop body invocation, by loop name.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"loop"},
	)

	// LoopIterationsTotal counts supervised loop iterations, by loop and outcome.
	LoopIterationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quotectl",
			Subsystem: "supervisor",
			Name:      "loop_iterations_total",
			Help:      "Supervised loop iterations, by loop name and outcome (ok, panic, error).",
		},
		[]string{"loop", "outcome"},
	)

	// SoakRSSBytes reports the process resident set size sampled by the soak monitor.
	SoakRSSBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "quotectl",
			Subsystem: "soak",
			Name:      "rss_bytes",
			Help:      "Process resident set size as sampled by the soak-test monitor.",
		},
	)

	// SoakThreads reports the process OS thread count sampled by the soak monitor.
	SoakThreads = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "quotectl",
			Subsystem: "soak",
			Name:      "threads",
			Help:      "Process OS thread count as sampled by the soak-test monitor.",
		},
	)

	// AuditSignFailTotal counts audit entries that failed HMAC signing or sink delivery.
	AuditSignFailTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quotectl",
			Subsystem: "audit",
			Name:      "sign_fail_total",
			Help:      "Audit log entries that failed to sign or deliver, by stage.",
		},
		[]string{"stage"},
	)

	// AlertsFiredTotal counts alerts raised, by severity.
	AlertsFiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quotectl",
			Subsystem: "alerts",
			Name:      "fired_total",
			Help:      "Alerts raised by the alerting component, by severity.",
		},
		[]string{"severity"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		SnapshotIntegrityFailTotal,
		SnapshotWriteDuration,
		HeartbeatAgeSeconds,
		HeartbeatDriftSeconds,
		LoopDuration,
		RateLimiterRejectedTotal,
		CircuitBreakerState,
		ThrottleActive,
		VolatilityEWMA,
		AllocatorWeight,
		AutoPolicyDecisionsTotal,
		RolloutStage,
		RampStepTotal,
		KillSwitchFiredTotal,
		AutoPromoteTotal,
		CanaryIssuedTotal,
		LoopIterationsTotal,
		SoakRSSBytes,
		SoakThreads,
		AuditSignFailTotal,
		AlertsFiredTotal,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with admin HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		route := routeTemplate(r)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
	})
}

// BreakerState enumerates the circuit breaker states published via CircuitBreakerState.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

// RecordBreakerState publishes the current state of a named circuit breaker.
func RecordBreakerState(name string, state BreakerState) {
	if name == "" {
		name = "default"
	}
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordLoopIteration records the outcome of one supervised loop iteration.
func RecordLoopIteration(loop, outcome string) {
	if loop == "" {
		loop = "unknown"
	}
	if outcome == "" {
		outcome = "ok"
	}
	LoopIterationsTotal.WithLabelValues(loop, outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// routeTemplate prefers a mux route template (set by gorilla/mux routing) to avoid
// label cardinality blowups from path parameters, falling back to the raw path.
func routeTemplate(r *http.Request) string {
	if tmpl, ok := r.Context().Value(routeTemplateKey{}).(string); ok && tmpl != "" {
		return tmpl
	}
	if r.URL.Path == "" {
		return "/"
	}
	return r.URL.Path
}

type routeTemplateKey struct{}

// WithRouteTemplate stores the matched route template on the request so InstrumentHandler
// can label metrics by route shape instead of literal path.
func WithRouteTemplate(r *http.Request, tmpl string) *http.Request {
	ctx := r.Context()
	return r.WithContext(context.WithValue(ctx, routeTemplateKey{}, tmpl))
}
