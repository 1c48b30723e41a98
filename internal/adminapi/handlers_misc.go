package adminapi

import (
	"net/http"
	"time"

	"github.com/northbeacon/quotectl/infrastructure/middleware"
)

type chaosRequest struct {
	Enabled *bool  `json:"enabled,omitempty"`
	Seed    *int64 `json:"seed,omitempty"`
}

func (s *Server) handleChaos(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req chaosRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		enabled, seed := s.Misc.Chaos()
		if req.Enabled != nil {
			enabled = *req.Enabled
		}
		if req.Seed != nil {
			seed = *req.Seed
		}
		s.Misc.SetChaos(enabled, seed)
	}
	enabled, seed := s.Misc.Chaos()
	writeJSON(w, http.StatusOK, map[string]interface{}{"enabled": enabled, "seed": seed})
}

// handleSelfcheck reports a quick aggregate health view across the
// components that can independently signal trouble.
func (s *Server) handleSelfcheck(w http.ResponseWriter, r *http.Request) {
	checks := map[string]interface{}{}
	ok := true

	if s.Breaker != nil {
		state := s.Breaker.State()
		checks["breaker"] = state.String()
		if state.String() != "closed" {
			ok = false
		}
	}
	if s.Guard != nil {
		paused := s.Guard.EffectivePause()
		checks["guard_paused"] = paused
		if paused {
			ok = false
		}
	}
	if s.Rollout != nil {
		ramp := s.Rollout.RampState()
		checks["ramp_frozen"] = ramp.Frozen
		if ramp.Frozen {
			ok = false
		}
	}
	antiStale, maxAge := s.Misc.AntiStaleGuard()
	checks["anti_stale_guard_enabled"] = antiStale
	checks["anti_stale_guard_max_age_ms"] = maxAge

	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{"ok": ok, "checks": checks, "runtime": middleware.RuntimeStats()})
}

func (s *Server) handleExecutionRecorderStatus(w http.ResponseWriter, r *http.Request) {
	rotatedAt, count := s.Misc.RecorderStatus()
	writeJSON(w, http.StatusOK, map[string]interface{}{"last_rotated_at": rotatedAt, "rotate_count": count})
}

func (s *Server) handleExecutionRecorderRotate(w http.ResponseWriter, r *http.Request) {
	count := s.Misc.RecordRecorderRotate(time.Now())
	writeJSON(w, http.StatusOK, map[string]interface{}{"rotate_count": count})
}

func (s *Server) handleExecutionReplay(w http.ResponseWriter, r *http.Request) {
	count := s.Misc.RecordReplay(time.Now())
	writeJSON(w, http.StatusOK, map[string]interface{}{"replay_requests": count})
}

type antiStaleGuardRequest struct {
	Enabled  *bool  `json:"enabled,omitempty"`
	MaxAgeMs *int64 `json:"max_age_ms,omitempty"`
}

func (s *Server) handleAntiStaleGuard(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req antiStaleGuardRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		enabled, maxAge := s.Misc.AntiStaleGuard()
		if req.Enabled != nil {
			enabled = *req.Enabled
		}
		if req.MaxAgeMs != nil {
			maxAge = *req.MaxAgeMs
		}
		s.Misc.SetAntiStaleGuard(enabled, maxAge)
	}
	enabled, maxAge := s.Misc.AntiStaleGuard()
	writeJSON(w, http.StatusOK, map[string]interface{}{"enabled": enabled, "max_age_ms": maxAge})
}
