// Package adminapi implements component C14: the admin HTTP surface that
// exposes every control-plane component for operator read/write access.
package adminapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/northbeacon/quotectl/infrastructure/logging"
	"github.com/northbeacon/quotectl/infrastructure/middleware"
	"github.com/northbeacon/quotectl/internal/allocator"
	"github.com/northbeacon/quotectl/internal/auditlog"
	"github.com/northbeacon/quotectl/internal/authn"
	"github.com/northbeacon/quotectl/internal/autopolicy"
	"github.com/northbeacon/quotectl/internal/breaker"
	"github.com/northbeacon/quotectl/internal/canary"
	"github.com/northbeacon/quotectl/internal/guard"
	"github.com/northbeacon/quotectl/internal/rollout"
	"github.com/northbeacon/quotectl/internal/scheduler"
	"github.com/northbeacon/quotectl/internal/snapshot"
	"github.com/northbeacon/quotectl/internal/throttle"
	"github.com/northbeacon/quotectl/internal/volatility"
	"github.com/northbeacon/quotectl/pkg/metrics"
)

// Server wires every domain component into the admin HTTP surface.
type Server struct {
	Version string
	Auth    *authn.Authenticator
	Limiter *auditlog.RateLimiter
	Audit   *auditlog.Log

	Guard       *guard.Guard
	AutoPolicy  *autopolicy.AutoPolicy
	Throttle    *throttle.Guard
	Allocator   *allocator.Allocator
	Scheduler   *scheduler.Scheduler
	Breaker     *breaker.Breaker
	Rollout     *rollout.Controller
	CanaryBuild *canary.Builder
	AlertsSink  *canary.FileSink
	Volatility  *volatility.Tracker

	// CORSAllowedOrigins and MaxBodyBytes configure the ambient middleware
	// NewRouter applies ahead of routing; zero values fall back to the
	// middleware package's own conservative defaults.
	CORSAllowedOrigins []string
	MaxBodyBytes       int64

	Misc *MiscState

	Log *logging.Logger
}

// NewRouter builds the full gorilla/mux router, applying the required
// middleware order on every admin route: latency histogram (outermost,
// via metrics.InstrumentHandler) → token check → rate limit → audit
// record → handler. Unauthenticated routes skip the auth/limit/audit
// trio. Security headers, CORS, the request-body cap, recovery, access
// logging, and the request timeout all apply ahead of routing, to every
// route including the unauthenticated ones.
func (s *Server) NewRouter() http.Handler {
	r := mux.NewRouter()

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", middleware.LivenessHandler()).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.buildReadinessChecker().Handler()).Methods(http.MethodGet)
	r.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	s.registerAdminRoutes(admin)
	// Registration order is execution order: token check, then rate
	// limit, then audit record, then the route handler.
	admin.Use(s.authMiddleware)
	admin.Use(s.rateLimitMiddleware)
	admin.Use(s.auditMiddleware)

	recovery := middleware.NewRecoveryMiddleware(s.Log)
	var handler http.Handler = r
	handler = metrics.InstrumentHandler(handler)
	handler = recovery.Handler(handler)
	handler = middleware.LoggingMiddleware(s.Log)(handler)
	handler = middleware.NewSecurityHeadersMiddleware(nil).Handler(handler)
	handler = middleware.NewCORSMiddleware(&middleware.CORSConfig{AllowedOrigins: s.CORSAllowedOrigins}).Handler(handler)
	handler = middleware.NewBodyLimitMiddleware(s.MaxBodyBytes).Handler(handler)
	handler = middleware.NewTimeoutMiddleware(30 * time.Second).Handler(handler)
	return handler
}

// buildReadinessChecker registers /readyz's domain checks: the runtime
// guard's effective pause and the breaker's circuit state, matching the
// exact reason strings the admin surface has always reported.
func (s *Server) buildReadinessChecker() *middleware.ReadinessChecker {
	rc := middleware.NewReadinessChecker()
	rc.Register("guard", func() (string, bool) {
		if s.Guard != nil && s.Guard.EffectivePause() {
			return "guard_paused", false
		}
		return "", true
	})
	rc.Register("breaker", func() (string, bool) {
		if s.Breaker != nil && s.Breaker.State() != breaker.Closed {
			return "circuit_open", false
		}
		return "", true
	})
	return rc
}

func (s *Server) registerAdminRoutes(admin *mux.Router) {
	admin.HandleFunc("/guard", s.handleGuardGet).Methods(http.MethodGet)
	admin.HandleFunc("/guard", s.handleGuardPost).Methods(http.MethodPost)

	admin.HandleFunc("/autopolicy", s.handleAutoPolicyGet).Methods(http.MethodGet)

	admin.HandleFunc("/throttle/status", s.handleThrottleStatus).Methods(http.MethodGet)
	admin.HandleFunc("/throttle/snapshot", s.handleThrottleSnapshot).Methods(http.MethodGet, http.MethodPost)

	admin.HandleFunc("/allocator/targets", s.handleAllocatorTargets).Methods(http.MethodPost)
	admin.HandleFunc("/allocator/reset", s.handleAllocatorReset).Methods(http.MethodPost)
	admin.HandleFunc("/allocator/cost_calibration", s.handleAllocatorCostCalibration).Methods(http.MethodGet, http.MethodPost)
	admin.HandleFunc("/allocator/load", s.handleAllocatorLoad).Methods(http.MethodPost)

	admin.HandleFunc("/scheduler/suggest", s.handleSchedulerSuggest).Methods(http.MethodGet)
	admin.HandleFunc("/scheduler/apply", s.handleSchedulerApply).Methods(http.MethodPost)

	admin.HandleFunc("/volatility", s.handleVolatility).Methods(http.MethodGet, http.MethodPost)

	admin.HandleFunc("/chaos", s.handleChaos).Methods(http.MethodGet, http.MethodPost)
	admin.HandleFunc("/auth/rotate", s.handleAuthRotate).Methods(http.MethodPost)
	admin.HandleFunc("/audit/log", s.handleAuditLog).Methods(http.MethodGet)
	admin.HandleFunc("/audit/clear", s.handleAuditClear).Methods(http.MethodPost)
	admin.HandleFunc("/selfcheck", s.handleSelfcheck).Methods(http.MethodGet)
	admin.HandleFunc("/alerts/log", s.handleAlertsLog).Methods(http.MethodGet)
	admin.HandleFunc("/alerts/clear", s.handleAlertsClear).Methods(http.MethodPost)

	admin.HandleFunc("/report/canary", s.handleReportCanary).Methods(http.MethodGet)
	admin.HandleFunc("/report/canary/generate", s.handleReportCanaryGenerate).Methods(http.MethodPost)
	admin.HandleFunc("/report/canary/replay", s.handleReportCanaryReplay).Methods(http.MethodPost)
	admin.HandleFunc("/report/canary/baseline", s.handleReportCanaryBaseline).Methods(http.MethodGet, http.MethodPost)
	admin.HandleFunc("/report/canary/diff", s.handleReportCanaryDiff).Methods(http.MethodGet)

	admin.HandleFunc("/execution/recorder/status", s.handleExecutionRecorderStatus).Methods(http.MethodGet)
	admin.HandleFunc("/execution/recorder/rotate", s.handleExecutionRecorderRotate).Methods(http.MethodPost)
	admin.HandleFunc("/execution/replay", s.handleExecutionReplay).Methods(http.MethodPost)

	admin.HandleFunc("/anti-stale-guard", s.handleAntiStaleGuard).Methods(http.MethodGet, http.MethodPost)

	admin.HandleFunc("/rollout", s.handleRolloutGet).Methods(http.MethodGet)
	admin.HandleFunc("/rollout", s.handleRolloutPost).Methods(http.MethodPost)
	admin.HandleFunc("/rollout/ramp", s.handleRampGet).Methods(http.MethodGet)
	admin.HandleFunc("/rollout/ramp", s.handleRampPost).Methods(http.MethodPost)
	admin.HandleFunc("/rollout/killswitch", s.handleKillswitch).Methods(http.MethodGet, http.MethodPost)
	admin.HandleFunc("/rollout/promote", s.handleRolloutPromote).Methods(http.MethodPost)
	admin.HandleFunc("/rollout/load", s.handleRolloutLoad).Methods(http.MethodPost)
	admin.HandleFunc("/rollout/ramp/load", s.handleRampLoad).Methods(http.MethodPost)
}

// snapshotLoadRequest is the uniform shape every snapshot-loading endpoint
// accepts: the file is read through C1 and is therefore subject to all of
// its integrity checks.
type snapshotLoadRequest struct {
	Path string `json:"path"`
}

func loadSnapshotInto(path, kind string, dest interface{}) error {
	return snapshot.LoadInto(path, kind, dest)
}
