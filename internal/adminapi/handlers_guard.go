package adminapi

import "net/http"

func (s *Server) handleGuardGet(w http.ResponseWriter, r *http.Request) {
	if s.Guard == nil {
		writeError(w, http.StatusInternalServerError, "guard_unavailable")
		return
	}
	state := s.Guard.State()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"paused":           state.Paused,
		"manual_override":  state.ManualOverride,
		"dry_run":          state.DryRun,
		"effective_pause":  s.Guard.EffectivePause(),
		"breach_streak":    state.BreachStreak,
		"pauses_total":     state.PausesTotal,
		"ws_lag_ms":        state.WSLagMs,
		"last_reason_mask": state.LastReasonMask,
	})
}

type guardPostRequest struct {
	DryRun         *bool `json:"dry_run,omitempty"`
	ManualOverride *bool `json:"manual_override,omitempty"`
}

func (s *Server) handleGuardPost(w http.ResponseWriter, r *http.Request) {
	if s.Guard == nil {
		writeError(w, http.StatusInternalServerError, "guard_unavailable")
		return
	}
	var req guardPostRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.DryRun != nil {
		s.Guard.SetDryRun(*req.DryRun)
	}
	if req.ManualOverride != nil {
		s.Guard.SetManualOverride(*req.ManualOverride)
	}
	s.handleGuardGet(w, r)
}

func (s *Server) handleAutoPolicyGet(w http.ResponseWriter, r *http.Request) {
	if s.AutoPolicy == nil {
		writeError(w, http.StatusInternalServerError, "autopolicy_unavailable")
		return
	}
	eff := s.AutoPolicy.Effective()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"level":                      s.AutoPolicy.Level(),
		"min_time_in_book_ms_eff":    eff.MinTimeInBookMsEff,
		"replace_threshold_bps_eff":  eff.ReplaceThresholdBpsEff,
		"levels_per_side_max_eff":    eff.LevelsPerSideMaxEff,
	})
}
