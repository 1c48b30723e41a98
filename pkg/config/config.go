package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the admin HTTP server.
type ServerConfig struct {
	Host string `json:"host" env:"SERVER_HOST"`
	Port int    `json:"port" env:"SERVER_PORT"`

	// CORSAllowedOrigins lists origins permitted to call the admin surface
	// from a browser. Empty means no cross-origin access is granted.
	// Config-file only: envdecode has no slice-of-string support here.
	CORSAllowedOrigins []string `json:"cors_allowed_origins"`
	// MaxBodyBytes caps every request body, admin or unauthenticated alike.
	MaxBodyBytes int64 `json:"max_body_bytes" env:"SERVER_MAX_BODY_BYTES"`
}

// AuditConfig controls C3's Postgres audit sink, independent of the JSONL
// sink which always runs.
type AuditConfig struct {
	PostgresDSN    string `json:"postgres_dsn" env:"AUDIT_POSTGRES_DSN"`
	MigrationsDir  string `json:"migrations_dir" env:"AUDIT_MIGRATIONS_DIR"`
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level  string `json:"level" env:"LOG_LEVEL"`
	Format string `json:"format" env:"LOG_FORMAT"`
}

// AdminConfig controls C2/C3's token auth and audit signing.
type AdminConfig struct {
	TokenPrimary   string `json:"token_primary" env:"ADMIN_TOKEN_PRIMARY"`
	TokenSecondary string `json:"token_secondary" env:"ADMIN_TOKEN_SECONDARY"`
	Token          string `json:"token" env:"ADMIN_TOKEN"`
	AuthDisabled   bool   `json:"auth_disabled" env:"ADMIN_AUTH_DISABLED"`
	AuditHMACKey   string `json:"audit_hmac_key" env:"ADMIN_AUDIT_HMAC_KEY"`
}

// ArtifactsConfig controls where C1's snapshot engine and C12's canary
// builder write their files, and at what cadence.
type ArtifactsConfig struct {
	Dir                    string `json:"dir" env:"ARTIFACTS_DIR"`
	CanaryExportIntervalSec int   `json:"canary_export_interval_sec" env:"CANARY_EXPORT_INTERVAL_SEC"`
	PruneIntervalSec       int    `json:"prune_interval_sec" env:"PRUNE_INTERVAL_SEC"`
}

// RolloutConfig seeds C11's initial rollout/ramp/kill-switch/auto-promote
// state at startup (a loaded snapshot always wins over these defaults).
// Only StepIntervalSec has a documented env override; the rest is
// config-file only, since no other rollout tunable appears in spec.md §6's
// environment variable list.
type RolloutConfig struct {
	StepIntervalSec int `json:"step_interval_sec" env:"ROLLOUT_STEP_INTERVAL_SEC"`

	InitialActive   string `json:"initial_active"`
	InitialSplitPct int    `json:"initial_split_pct"`
	Salt            string `json:"salt"`

	StepsPct                 []int   `json:"steps_pct"`
	MinSampleFills           int64   `json:"min_sample_fills"`
	MaxRejectRateDeltaPct    float64 `json:"max_reject_rate_delta_pct"`
	MaxLatencyDeltaMs        float64 `json:"max_latency_delta_ms"`
	CooldownAfterRollbackSec int     `json:"cooldown_after_rollback_sec"`
	MaxStepIncreasePct       int     `json:"max_step_increase_pct"`

	KillSwitchEnabled           bool    `json:"killswitch_enabled"`
	KillSwitchDryRun            bool    `json:"killswitch_dry_run"`
	KillSwitchAction            string  `json:"killswitch_action"`
	KillSwitchMinFills          int64   `json:"killswitch_min_fills"`
	KillSwitchMaxRejectDelta    float64 `json:"killswitch_max_reject_delta"`
	KillSwitchMaxLatencyDeltaMs float64 `json:"killswitch_max_latency_delta_ms"`

	AutoPromoteEnabled             bool `json:"autopromote_enabled"`
	AutoPromoteStableStepsRequired int  `json:"autopromote_stable_steps_required"`
	AutoPromoteMinSplitPct         int  `json:"autopromote_min_split_pct"`
}

// GuardConfig seeds C6's runtime guard thresholds.
type GuardConfig struct {
	CancelRateThreshold    float64 `json:"cancel_rate_threshold"`
	RESTErrorRateThreshold float64 `json:"rest_error_rate_threshold"`
	PnLSlopeThreshold      float64 `json:"pnl_slope_threshold"`
	WSLagMsThreshold       float64 `json:"ws_lag_ms_threshold"`
	HysteresisBad          int     `json:"hysteresis_bad"`
	HysteresisGood         int     `json:"hysteresis_good"`
}

// BreakerConfig seeds C4's circuit breaker thresholds.
type BreakerConfig struct {
	WindowSec       int     `json:"window_sec"`
	ErrRateOpen     float64 `json:"err_rate_open"`
	HTTP5xxRateOpen float64 `json:"http_5xx_rate_open"`
	HTTP429RateOpen float64 `json:"http_429_rate_open"`
	OpenDurationSec int     `json:"open_duration_sec"`
	HalfOpenProbes  int     `json:"half_open_probes"`
}

// ThrottleConfig seeds C5's per-symbol sliding-window caps.
type ThrottleConfig struct {
	WindowSec          int     `json:"window_sec"`
	CreateCap          int     `json:"create_cap"`
	AmendCap           int     `json:"amend_cap"`
	CancelCap          int     `json:"cancel_cap"`
	BackoffInitialMs   float64 `json:"backoff_initial_ms"`
	BackoffMaxMs       float64 `json:"backoff_max_ms"`
	BackoffDecayFactor float64 `json:"backoff_decay_factor"`
}

// AutoPolicyConfig seeds C10's level-attenuation policy.
type AutoPolicyConfig struct {
	TriggerBackoffMs          float64 `json:"trigger_backoff_ms"`
	TriggerEventsTotal        int64   `json:"trigger_events_total"`
	ConsecBadRequired         int     `json:"consec_bad_required"`
	ConsecGoodRequired        int     `json:"consec_good_required"`
	CooldownMinutes           int     `json:"cooldown_minutes"`
	MaxLevel                  int     `json:"max_level"`
	StepPct                   float64 `json:"step_pct"`
	ShrinkPct                 float64 `json:"shrink_pct"`
	MinTimeInBookMsBase       float64 `json:"min_time_in_book_ms_base"`
	ReplaceThresholdBpsBase   float64 `json:"replace_threshold_bps_base"`
	LevelsPerSideMaxBase      int     `json:"levels_per_side_max_base"`
	MinTimeInBookMsMaxCap     float64 `json:"min_time_in_book_ms_max_cap"`
	ReplaceThresholdBpsMaxCap float64 `json:"replace_threshold_bps_max_cap"`
	LevelsPerSideMaxMinCap    int     `json:"levels_per_side_max_min_cap"`
}

// SchedulerConfig tunes the C7 window-suggestion recompute cadence.
type SchedulerConfig struct {
	RecomputeSec int `json:"recompute_sec" env:"SCHEDULER_RECOMPUTE_SEC"`
}

// CanaryConfig tunes C12's latency/markout caps and soak thresholds.
type CanaryConfig struct {
	LatMinSample    int     `json:"lat_min_sample" env:"LAT_MIN_SAMPLE"`
	LatP95CapMs     float64 `json:"lat_p95_cap_ms" env:"LAT_P95_CAP_MS"`
	LatP99CapMs     float64 `json:"lat_p99_cap_ms" env:"LAT_P99_CAP_MS"`
	MarkoutCapBps   float64 `json:"markout_cap_bps" env:"MARKOUT_CAP_BPS"`
	SoakWindowSec   int     `json:"soak_window_sec" env:"SOAK_WINDOW_SEC"`
	SoakRSSMaxMB    int     `json:"soak_rss_max_mb" env:"SOAK_RSS_MAX_MB"`
	SoakDriftMaxMs  float64 `json:"soak_drift_max_ms" env:"SOAK_DRIFT_MAX_MS"`
	SoakThreadsMax  int     `json:"soak_threads_max" env:"SOAK_THREADS_MAX"`
}

// RetentionConfig controls C15's pruning of canary artifacts and alerts.
type RetentionConfig struct {
	CanaryMaxSnapshots int `json:"canary_max_snapshots" env:"CANARY_MAX_SNAPSHOTS"`
	CanaryMaxDays      int `json:"canary_max_days" env:"CANARY_MAX_DAYS"`
	AlertsMaxLines     int `json:"alerts_max_lines" env:"ALERTS_MAX_LINES"`
}

// VolatilityConfig tunes C8's per-symbol EWMA.
type VolatilityConfig struct {
	Alpha      float64 `json:"alpha" env:"VOLATILITY_ALPHA"`
	MinSamples int     `json:"min_samples" env:"VOLATILITY_MIN_SAMPLES"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Logging    LoggingConfig    `json:"logging"`
	Admin      AdminConfig      `json:"admin"`
	Audit      AuditConfig      `json:"audit"`
	Artifacts  ArtifactsConfig  `json:"artifacts"`
	Rollout    RolloutConfig    `json:"rollout"`
	Guard      GuardConfig      `json:"guard"`
	Breaker    BreakerConfig    `json:"breaker"`
	Throttle   ThrottleConfig   `json:"throttle"`
	AutoPolicy AutoPolicyConfig `json:"autopolicy"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Canary     CanaryConfig     `json:"canary"`
	Retention  RetentionConfig  `json:"retention"`
	Volatility VolatilityConfig `json:"volatility"`
}

// New returns a configuration populated with defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			MaxBodyBytes: 8 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Artifacts: ArtifactsConfig{
			Dir:                     "artifacts",
			CanaryExportIntervalSec: 60,
			PruneIntervalSec:        3600,
		},
		Rollout: RolloutConfig{
			StepIntervalSec: 300,

			InitialActive:   "blue",
			InitialSplitPct: 0,

			StepsPct:                 []int{0, 10, 25, 50, 100},
			MinSampleFills:           200,
			MaxRejectRateDeltaPct:    5,
			MaxLatencyDeltaMs:        50,
			CooldownAfterRollbackSec: 1800,
			MaxStepIncreasePct:       25,

			KillSwitchEnabled:           true,
			KillSwitchDryRun:            false,
			KillSwitchAction:            "rollback",
			KillSwitchMinFills:          50,
			KillSwitchMaxRejectDelta:    15,
			KillSwitchMaxLatencyDeltaMs: 200,

			AutoPromoteEnabled:             false,
			AutoPromoteStableStepsRequired: 3,
			AutoPromoteMinSplitPct:         100,
		},
		Guard: GuardConfig{
			CancelRateThreshold:    5,
			RESTErrorRateThreshold: 0.2,
			PnLSlopeThreshold:      -500,
			WSLagMsThreshold:       2000,
			HysteresisBad:          3,
			HysteresisGood:         5,
		},
		Breaker: BreakerConfig{
			WindowSec:       60,
			ErrRateOpen:     0.5,
			HTTP5xxRateOpen: 0.3,
			HTTP429RateOpen: 0.3,
			OpenDurationSec: 30,
			HalfOpenProbes:  3,
		},
		Throttle: ThrottleConfig{
			WindowSec:          1,
			CreateCap:          20,
			AmendCap:           40,
			CancelCap:          40,
			BackoffInitialMs:   100,
			BackoffMaxMs:       5000,
			BackoffDecayFactor: 0.5,
		},
		AutoPolicy: AutoPolicyConfig{
			TriggerBackoffMs:          1000,
			TriggerEventsTotal:        50,
			ConsecBadRequired:         3,
			ConsecGoodRequired:        5,
			CooldownMinutes:           15,
			MaxLevel:                  3,
			StepPct:                   20,
			ShrinkPct:                 20,
			MinTimeInBookMsBase:       250,
			ReplaceThresholdBpsBase:   2,
			LevelsPerSideMaxBase:      5,
			MinTimeInBookMsMaxCap:     2000,
			ReplaceThresholdBpsMaxCap: 10,
			LevelsPerSideMaxMinCap:    1,
		},
		Scheduler: SchedulerConfig{
			RecomputeSec: 3600,
		},
		Canary: CanaryConfig{
			LatMinSample:   30,
			LatP95CapMs:    250,
			LatP99CapMs:    500,
			MarkoutCapBps:  5,
			SoakWindowSec:  600,
			SoakRSSMaxMB:   512,
			SoakDriftMaxMs: 50,
			SoakThreadsMax: 256,
		},
		Retention: RetentionConfig{
			CanaryMaxSnapshots: 500,
			CanaryMaxDays:      30,
			AlertsMaxLines:     10000,
		},
		Volatility: VolatilityConfig{
			Alpha:      0.1,
			MinSamples: 20,
		},
	}
}

// Load loads configuration from file (if present) and environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		// envdecode returns an error when no tagged fields are present in the
		// environment; treat that case as "no overrides" so local runs work
		// without exporting vars.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	cfg.normalize()

	return cfg, nil
}

// LoadForCLI loads path (YAML or JSON, by extension) and layers environment
// overrides on top, the way Load does for the CONFIG_FILE-driven path — for
// callers that take the config path from a CLI flag instead.
func LoadForCLI(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if data, rerr := os.ReadFile(path); rerr == nil {
			_ = json.Unmarshal(data, cfg)
		}
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	cfg.normalize()
	return cfg, nil
}

// LoadFile reads configuration from a YAML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	return nil
}

// normalize resolves ADMIN_TOKEN_PRIMARY's documented fallback to the
// legacy single-token ADMIN_TOKEN var, so deployments that have not yet
// split their token into primary/secondary keep working unchanged.
func (c *Config) normalize() {
	if c == nil {
		return
	}
	if c.Admin.TokenPrimary == "" && c.Admin.Token != "" {
		c.Admin.TokenPrimary = c.Admin.Token
	}
}
