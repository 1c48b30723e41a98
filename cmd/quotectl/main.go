// Command quotectl runs the market-making control plane: the admin HTTP
// surface, the named background task supervisor, and the persisted
// domain components (rollout, throttle, allocator, guard, breaker,
// scheduler, autopolicy, canary) they all share.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/northbeacon/quotectl/infrastructure/logging"
	"github.com/northbeacon/quotectl/infrastructure/runtime"
	"github.com/northbeacon/quotectl/internal/adminapi"
	"github.com/northbeacon/quotectl/internal/allocator"
	"github.com/northbeacon/quotectl/internal/app/system"
	"github.com/northbeacon/quotectl/internal/auditlog"
	"github.com/northbeacon/quotectl/internal/authn"
	"github.com/northbeacon/quotectl/internal/autopolicy"
	"github.com/northbeacon/quotectl/internal/breaker"
	"github.com/northbeacon/quotectl/internal/canary"
	"github.com/northbeacon/quotectl/internal/externalfeed"
	"github.com/northbeacon/quotectl/internal/guard"
	"github.com/northbeacon/quotectl/internal/rollout"
	"github.com/northbeacon/quotectl/internal/scheduler"
	"github.com/northbeacon/quotectl/internal/snapshot"
	"github.com/northbeacon/quotectl/internal/soak"
	"github.com/northbeacon/quotectl/internal/supervisor"
	"github.com/northbeacon/quotectl/internal/throttle"
	"github.com/northbeacon/quotectl/internal/volatility"
	"github.com/northbeacon/quotectl/pkg/config"
	"github.com/northbeacon/quotectl/pkg/version"
)

// Exit codes, per the documented CLI contract: 0 is a clean shutdown, 1 is
// an init/config failure, 2 is reserved for an offline gate failure (no
// gate check runs in this core — the exchange connector that would
// evaluate one is an external collaborator).
const (
	exitOK          = 0
	exitInitFailure = 1
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML or JSON configuration file")
	dryRun := flag.Bool("dry-run", false, "run the guard in dry-run mode regardless of configured state")
	profile := flag.String("profile", "testnet", "deployment profile: testnet, mainnet, or paper")
	paper := flag.Bool("paper", false, "shorthand for --profile=paper")
	throttleSnapshotPath := flag.String("throttle-snapshot-path", "", "override path for the throttle snapshot task (defaults under artifacts.dir)")
	throttleSnapshotIntervalSec := flag.Int("throttle-snapshot-interval-seconds", 30, "throttle snapshot task cadence, in seconds")
	flag.Parse()

	if *paper {
		*profile = "paper"
	}

	cfg, err := loadConfigFile(*configPath)
	if err != nil {
		log.Fatalf("load config %s: %v", *configPath, err)
	}

	logger := logging.New("quotectl", cfg.Logging.Level, cfg.Logging.Format)
	ctx := logging.WithService(context.Background(), "quotectl")

	logger.Info(ctx, "starting quotectl", map[string]interface{}{
		"version": version.Version,
		"profile": *profile,
		"dry_run": *dryRun,
	})

	if *throttleSnapshotPath == "" {
		*throttleSnapshotPath = filepath.Join(cfg.Artifacts.Dir, "throttle_snapshot.json")
	}

	comps, err := buildComponents(cfg, logger, *dryRun)
	if err != nil {
		log.Fatalf("build components: %v", err)
	}
	defer comps.closeAuditSinks()

	restoreSnapshots(ctx, logger, cfg, comps, *throttleSnapshotPath)

	router := comps.server.NewRouter()
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	manager := system.NewManager()
	if err := manager.Register(newHTTPService(httpServer, logger)); err != nil {
		log.Fatalf("register http service: %v", err)
	}
	if err := manager.Start(ctx); err != nil {
		log.Fatalf("start services: %v", err)
	}
	logger.Info(ctx, "admin http surface listening", map[string]interface{}{"addr": addr})

	tasks := buildSupervisorTasks(cfg, comps, *throttleSnapshotPath, time.Duration(*throttleSnapshotIntervalSec)*time.Second)
	sup := supervisor.New(logger)
	supervisorDone := make(chan struct{})
	go func() {
		sup.Run(ctx, tasks)
		close(supervisorDone)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info(ctx, "shutdown signal received, stopping", nil)
	runShutdownSequence(ctx, logger, manager, sup, supervisorDone)

	logger.Info(ctx, "quotectl stopped cleanly", nil)
	os.Exit(exitOK)
}

func loadConfigFile(path string) (*config.Config, error) {
	return config.LoadForCLI(path)
}

// components bundles every C1-C15 domain object the admin surface and
// supervisor tasks share.
type components struct {
	server *adminapi.Server

	guard      *guard.Guard
	autoPolicy *autopolicy.AutoPolicy
	throttle   *throttle.Guard
	allocator  *allocator.Allocator
	scheduler  *scheduler.Scheduler
	breaker    *breaker.Breaker
	rollout    *rollout.Controller
	canary     *canary.Builder
	alerts     *canary.FileSink
	volatility *volatility.Tracker

	artifactsDir string

	metrics externalfeed.ExternalMetrics
	orders  externalfeed.OrdersSnapshotter

	auditFileSink     *auditlog.FileSink
	auditPostgresSink *auditlog.PostgresSink
}

func (c *components) closeAuditSinks() {
	if c.auditPostgresSink != nil {
		_ = c.auditPostgresSink.Close()
	}
}

func buildComponents(cfg *config.Config, logger *logging.Logger, dryRun bool) (*components, error) {
	if err := os.MkdirAll(cfg.Artifacts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifacts dir: %w", err)
	}

	authDisabled := cfg.Admin.AuthDisabled
	if authDisabled && runtime.StrictIdentityMode() {
		logger.Warn(context.Background(), "admin_auth_disabled ignored under strict identity mode", map[string]interface{}{"app_env": string(runtime.Env())})
		authDisabled = false
	}
	auth := authn.New(cfg.Admin.TokenPrimary, cfg.Admin.TokenSecondary, authDisabled)

	auditPath := filepath.Join(cfg.Artifacts.Dir, "admin_audit.log")
	auditFileSink, err := auditlog.NewFileSink(auditPath)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	sinks := []auditlog.Sink{auditFileSink}

	var pgSink *auditlog.PostgresSink
	if strings.TrimSpace(cfg.Audit.PostgresDSN) != "" {
		if strings.TrimSpace(cfg.Audit.MigrationsDir) != "" {
			if err := auditlog.MigrateUp(cfg.Audit.PostgresDSN, cfg.Audit.MigrationsDir); err != nil {
				return nil, fmt.Errorf("run audit migrations: %w", err)
			}
		}
		pgSink, err = auditlog.NewPostgresSink(cfg.Audit.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open audit postgres sink: %w", err)
		}
		sinks = append(sinks, pgSink)
	}

	auditLog := auditlog.NewLog(auditlog.ParseHMACKey(cfg.Admin.AuditHMACKey), sinks...)

	guardCfg := guard.Config{
		CancelRateThreshold:    cfg.Guard.CancelRateThreshold,
		RESTErrorRateThreshold: cfg.Guard.RESTErrorRateThreshold,
		PnLSlopeThreshold:      cfg.Guard.PnLSlopeThreshold,
		WSLagMsThreshold:       cfg.Guard.WSLagMsThreshold,
		HysteresisBad:          cfg.Guard.HysteresisBad,
		HysteresisGood:         cfg.Guard.HysteresisGood,
	}
	g := guard.New(guardCfg)
	if dryRun {
		g.SetDryRun(true)
	}

	ap := autopolicy.New(autopolicy.Config{
		TriggerBackoffMs:          cfg.AutoPolicy.TriggerBackoffMs,
		TriggerEventsTotal:        cfg.AutoPolicy.TriggerEventsTotal,
		ConsecBadRequired:         cfg.AutoPolicy.ConsecBadRequired,
		ConsecGoodRequired:        cfg.AutoPolicy.ConsecGoodRequired,
		CooldownMinutes:           cfg.AutoPolicy.CooldownMinutes,
		MaxLevel:                  cfg.AutoPolicy.MaxLevel,
		StepPct:                   cfg.AutoPolicy.StepPct,
		ShrinkPct:                 cfg.AutoPolicy.ShrinkPct,
		MinTimeInBookMsMaxCap:     cfg.AutoPolicy.MinTimeInBookMsMaxCap,
		ReplaceThresholdBpsMaxCap: cfg.AutoPolicy.ReplaceThresholdBpsMaxCap,
		LevelsPerSideMaxMinCap:    cfg.AutoPolicy.LevelsPerSideMaxMinCap,
		Base: autopolicy.Base{
			MinTimeInBookMs:     cfg.AutoPolicy.MinTimeInBookMsBase,
			ReplaceThresholdBps: cfg.AutoPolicy.ReplaceThresholdBpsBase,
			LevelsPerSideMax:    cfg.AutoPolicy.LevelsPerSideMaxBase,
		},
	})

	th := throttle.New(throttle.Config{
		WindowSec:          time.Duration(cfg.Throttle.WindowSec) * time.Second,
		CreateCap:          cfg.Throttle.CreateCap,
		AmendCap:           cfg.Throttle.AmendCap,
		CancelCap:          cfg.Throttle.CancelCap,
		BackoffInitialMs:   cfg.Throttle.BackoffInitialMs,
		BackoffMaxMs:       cfg.Throttle.BackoffMaxMs,
		BackoffDecayFactor: cfg.Throttle.BackoffDecayFactor,
	})

	alloc := allocator.New()

	sched := scheduler.New(scheduler.Config{})

	brk := breaker.New(breaker.Config{
		Name:            "admin_http",
		WindowSec:       time.Duration(cfg.Breaker.WindowSec) * time.Second,
		ErrRateOpen:     cfg.Breaker.ErrRateOpen,
		HTTP5xxRateOpen: cfg.Breaker.HTTP5xxRateOpen,
		HTTP429RateOpen: cfg.Breaker.HTTP429RateOpen,
		OpenDurationSec: time.Duration(cfg.Breaker.OpenDurationSec) * time.Second,
		HalfOpenProbes:  cfg.Breaker.HalfOpenProbes,
	})

	initialActive := rollout.Blue
	if strings.EqualFold(cfg.Rollout.InitialActive, string(rollout.Green)) {
		initialActive = rollout.Green
	}
	roll := rollout.NewController(
		rollout.RolloutState{
			Active:   initialActive,
			SplitPct: cfg.Rollout.InitialSplitPct,
			Salt:     cfg.Rollout.Salt,
		},
		rollout.RampState{
			Enabled:  true,
			StepsPct: cfg.Rollout.StepsPct,
		},
		rollout.RampConfig{
			MinSampleFills:           cfg.Rollout.MinSampleFills,
			MaxRejectRateDeltaPct:    cfg.Rollout.MaxRejectRateDeltaPct,
			MaxLatencyDeltaMs:        cfg.Rollout.MaxLatencyDeltaMs,
			CooldownAfterRollbackSec: cfg.Rollout.CooldownAfterRollbackSec,
			MaxStepIncreasePct:       cfg.Rollout.MaxStepIncreasePct,
			StepIntervalSec:          cfg.Rollout.StepIntervalSec,
		},
		rollout.KillSwitchConfig{
			Enabled:           cfg.Rollout.KillSwitchEnabled,
			DryRun:            cfg.Rollout.KillSwitchDryRun,
			Action:            rollout.KillSwitchAction(cfg.Rollout.KillSwitchAction),
			MinFills:          cfg.Rollout.KillSwitchMinFills,
			MaxRejectDelta:    cfg.Rollout.KillSwitchMaxRejectDelta,
			MaxLatencyDeltaMs: cfg.Rollout.KillSwitchMaxLatencyDeltaMs,
		},
		rollout.AutoPromoteConfig{
			Enabled:             cfg.Rollout.AutoPromoteEnabled,
			StableStepsRequired: cfg.Rollout.AutoPromoteStableStepsRequired,
			MinSplitPct:         cfg.Rollout.AutoPromoteMinSplitPct,
		},
	)

	alertsPath := filepath.Join(cfg.Artifacts.Dir, "alerts.log")
	alertsSink := canary.NewFileSink(alertsPath)
	canaryBuild := canary.NewBuilder(canary.Config{
		LatMinSample:  int64(cfg.Canary.LatMinSample),
		LatP95CapMs:   cfg.Canary.LatP95CapMs,
		LatP99CapMs:   cfg.Canary.LatP99CapMs,
		MarkoutCapBps: cfg.Canary.MarkoutCapBps,
	}, alertsSink, func() string { return time.Now().UTC().Format(time.RFC3339) })

	misc := adminapi.NewMiscState()
	vol := volatility.New(cfg.Volatility.Alpha, cfg.Volatility.MinSamples)

	server := &adminapi.Server{
		Version:            version.Version,
		Auth:               auth,
		Limiter:            auditlog.NewRateLimiter(),
		Audit:              auditLog,
		Guard:              g,
		AutoPolicy:         ap,
		Throttle:           th,
		Allocator:          alloc,
		Scheduler:          sched,
		Breaker:            brk,
		Rollout:            roll,
		CanaryBuild:        canaryBuild,
		AlertsSink:         alertsSink,
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		MaxBodyBytes:       cfg.Server.MaxBodyBytes,
		Volatility:  vol,
		Misc:        misc,
		Log:         logger,
	}

	return &components{
		server:            server,
		guard:             g,
		autoPolicy:        ap,
		throttle:          th,
		allocator:         alloc,
		scheduler:         sched,
		breaker:           brk,
		rollout:           roll,
		canary:            canaryBuild,
		alerts:            alertsSink,
		volatility:        vol,
		artifactsDir:      cfg.Artifacts.Dir,
		metrics:           externalfeed.NoopMetrics{},
		orders:            externalfeed.NoopOrdersSnapshotter{},
		auditFileSink:     auditFileSink,
		auditPostgresSink: pgSink,
	}, nil
}

// restoreSnapshots best-effort loads every persisted snapshot file a fresh
// process might find under artifacts.dir. A missing file is not an error
// (nothing to restore yet); a present-but-corrupt file is fatal, since
// silently ignoring a failed integrity check would defeat the point of
// snapshotting at all.
func restoreSnapshots(ctx context.Context, logger *logging.Logger, cfg *config.Config, comps *components, throttleSnapshotPath string) {
	if path := throttleSnapshotPath; fileExists(path) {
		var payload throttle.SnapshotPayload
		if err := snapshot.LoadInto(path, "throttle", &payload); err != nil {
			log.Fatalf("load throttle snapshot %s: %v", path, err)
		}
		comps.throttle.Restore(payload)
		logger.Info(ctx, "restored throttle snapshot", map[string]interface{}{"path": path})
	}

	if path := filepath.Join(cfg.Artifacts.Dir, "allocator_hwm.json"); fileExists(path) {
		var hwm allocator.HWMSnapshot
		if err := snapshot.LoadInto(path, "allocator", &hwm); err != nil {
			log.Fatalf("load allocator hwm snapshot %s: %v", path, err)
		}
		comps.allocator.RestoreHWM(hwm)
		logger.Info(ctx, "restored allocator hwm snapshot", map[string]interface{}{"path": path})
	}

	if path := filepath.Join(cfg.Artifacts.Dir, "rollout_state.json"); fileExists(path) {
		var state rollout.RolloutState
		if err := snapshot.LoadInto(path, "rollout", &state); err != nil {
			log.Fatalf("load rollout state snapshot %s: %v", path, err)
		}
		comps.rollout.RestoreRollout(state)
		logger.Info(ctx, "restored rollout state snapshot", map[string]interface{}{"path": path})
	}

	if path := filepath.Join(cfg.Artifacts.Dir, "rollout_ramp.json"); fileExists(path) {
		var ramp rollout.RampState
		if err := snapshot.LoadInto(path, "ramp", &ramp); err != nil {
			log.Fatalf("load rollout ramp snapshot %s: %v", path, err)
		}
		comps.rollout.RestoreRamp(ramp)
		logger.Info(ctx, "restored rollout ramp snapshot", map[string]interface{}{"path": path})
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// newHTTPService wraps an *http.Server as a system.Service.
func newHTTPService(srv *http.Server, logger *logging.Logger) system.Service {
	return &httpService{srv: srv, logger: logger}
}

type httpService struct {
	srv    *http.Server
	logger *logging.Logger
}

func (h *httpService) Name() string { return "admin_http" }

func (h *httpService) Start(ctx context.Context) error {
	ln := h.srv.Addr
	go func() {
		if err := h.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error(ctx, "admin http server exited", err, map[string]interface{}{"addr": ln})
		}
	}()
	return nil
}

func (h *httpService) Stop(ctx context.Context) error {
	return h.srv.Shutdown(ctx)
}

func (h *httpService) Descriptor() system.Descriptor {
	return system.Descriptor{Name: "admin_http", Layer: "transport", Detail: h.srv.Addr}
}

// runShutdownSequence implements the seven-step bot-stop order: cancel
// live orders, stop strategy, stop the exchange websocket, close the REST
// client, stop the admin HTTP surface, cancel named tasks within a 30s
// budget, and stop the recorder within a 10s budget. Steps 1-4 and 7
// concern the exchange connector, quoting strategy, and time-series
// recorder, which this core never implements — they're logged as no-ops
// here, ready for a real integration to fill in.
func runShutdownSequence(ctx context.Context, logger *logging.Logger, manager *system.Manager, sup *supervisor.Supervisor, supervisorDone <-chan struct{}) {
	logger.Info(ctx, "bot-stop step 1/7: cancel live exchange orders (no-op, no connector attached)", nil)
	logger.Info(ctx, "bot-stop step 2/7: stop quoting strategy (no-op, no strategy attached)", nil)
	logger.Info(ctx, "bot-stop step 3/7: stop exchange websocket (no-op, no connector attached)", nil)
	logger.Info(ctx, "bot-stop step 4/7: close REST client (no-op, no connector attached)", nil)

	logger.Info(ctx, "bot-stop step 5/7: stopping admin http surface", nil)
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := manager.Stop(stopCtx); err != nil {
		logger.Warn(ctx, "admin http surface shutdown reported an error", map[string]interface{}{"error": err.Error()})
	}
	cancel()

	logger.Info(ctx, "bot-stop step 6/7: cancelling named tasks", nil)
	sup.Stop()
	select {
	case <-supervisorDone:
	case <-time.After(30 * time.Second):
		logger.Warn(ctx, "supervisor did not stop within budget, continuing shutdown", map[string]interface{}{"budget_sec": 30})
	}

	logger.Info(ctx, "bot-stop step 7/7: stop time-series recorder (no-op, no recorder attached)", nil)
}
