package adminapi

import (
	"net/http"
	"time"

	"github.com/northbeacon/quotectl/internal/rollout"
)

func rolloutStateJSON(s rollout.RolloutState) map[string]interface{} {
	cids := make([]string, 0, len(s.PinnedCIDsGreen))
	for cid := range s.PinnedCIDsGreen {
		cids = append(cids, cid)
	}
	return map[string]interface{}{
		"active":          s.Active,
		"split_pct":       s.SplitPct,
		"salt":            s.Salt,
		"pinned_cids":     cids,
		"overlays_blue":   s.OverlaysBlue,
		"overlays_green":  s.OverlaysGreen,
	}
}

func (s *Server) handleRolloutGet(w http.ResponseWriter, r *http.Request) {
	if s.Rollout == nil {
		writeError(w, http.StatusInternalServerError, "rollout_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, rolloutStateJSON(s.Rollout.RolloutState()))
}

type rolloutPostRequest struct {
	Active       *string  `json:"active,omitempty"`
	SplitPct     *int     `json:"split_pct,omitempty"`
	Salt         *string  `json:"salt,omitempty"`
	PinCIDs      []string `json:"pin_cids,omitempty"`
	UnpinCIDs    []string `json:"unpin_cids,omitempty"`
	OverlayColor string   `json:"overlay_color,omitempty"`
	OverlayKey   string   `json:"overlay_key,omitempty"`
	OverlayValue interface{} `json:"overlay_value,omitempty"`
}

func (s *Server) handleRolloutPost(w http.ResponseWriter, r *http.Request) {
	if s.Rollout == nil {
		writeError(w, http.StatusInternalServerError, "rollout_unavailable")
		return
	}
	var req rolloutPostRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Active != nil {
		if *req.Active != string(rollout.Blue) && *req.Active != string(rollout.Green) {
			writeError(w, http.StatusBadRequest, "invalid_active")
			return
		}
		s.Rollout.SetActive(rollout.Color(*req.Active))
	}
	if req.SplitPct != nil {
		if *req.SplitPct < 0 || *req.SplitPct > 100 {
			writeError(w, http.StatusBadRequest, "invalid_split_pct")
			return
		}
		s.Rollout.SetSplitPct(*req.SplitPct)
	}
	if req.Salt != nil {
		if len(*req.Salt) > 64 {
			writeError(w, http.StatusBadRequest, "invalid_salt")
			return
		}
		s.Rollout.SetSalt(*req.Salt)
	}
	cur := s.Rollout.RolloutState()
	if len(cur.PinnedCIDsGreen)+len(req.PinCIDs) > 10000 {
		writeError(w, http.StatusBadRequest, "too_many_pinned_cids")
		return
	}
	for _, cid := range req.PinCIDs {
		s.Rollout.PinCID(cid)
	}
	for _, cid := range req.UnpinCIDs {
		s.Rollout.UnpinCID(cid)
	}
	if req.OverlayKey != "" {
		color := rollout.Blue
		if req.OverlayColor == string(rollout.Green) {
			color = rollout.Green
		}
		s.Rollout.SetOverlay(color, req.OverlayKey, req.OverlayValue)
	}
	writeJSON(w, http.StatusOK, rolloutStateJSON(s.Rollout.RolloutState()))
}

func rampStateJSON(s rollout.RampState) map[string]interface{} {
	return map[string]interface{}{
		"enabled":                  s.Enabled,
		"steps_pct":                s.StepsPct,
		"step_idx":                 s.StepIdx,
		"frozen":                   s.Frozen,
		"cooldown_until":           s.CooldownUntil,
		"consecutive_stable_steps": s.ConsecutiveStableSteps,
		"updated_ts":               s.UpdatedTs,
	}
}

func (s *Server) handleRampGet(w http.ResponseWriter, r *http.Request) {
	if s.Rollout == nil {
		writeError(w, http.StatusInternalServerError, "rollout_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, rampStateJSON(s.Rollout.RampState()))
}

type rampPostRequest struct {
	Enabled        *bool `json:"enabled,omitempty"`
	StepsPct       []int `json:"steps_pct,omitempty"`
	StepIntervalSec *int `json:"step_interval_sec,omitempty"`
	Unfreeze       bool  `json:"unfreeze,omitempty"`
}

func (s *Server) handleRampPost(w http.ResponseWriter, r *http.Request) {
	if s.Rollout == nil {
		writeError(w, http.StatusInternalServerError, "rollout_unavailable")
		return
	}
	var req rampPostRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.StepsPct != nil {
		seen := map[int]bool{}
		for _, pct := range req.StepsPct {
			if pct < 0 || pct > 100 || seen[pct] {
				writeError(w, http.StatusBadRequest, "invalid_steps_pct")
				return
			}
			seen[pct] = true
		}
		s.Rollout.SetRampSteps(req.StepsPct)
	}
	if req.StepIntervalSec != nil {
		if *req.StepIntervalSec < 10 {
			writeError(w, http.StatusBadRequest, "invalid_step_interval_sec")
			return
		}
		s.Rollout.SetStepIntervalSec(*req.StepIntervalSec)
	}
	if req.Enabled != nil {
		s.Rollout.SetRampEnabled(*req.Enabled)
	}
	if req.Unfreeze {
		s.Rollout.Unfreeze()
	}
	writeJSON(w, http.StatusOK, rampStateJSON(s.Rollout.RampState()))
}

type killSwitchRequest struct {
	Freeze bool `json:"freeze,omitempty"`
}

func (s *Server) handleKillswitch(w http.ResponseWriter, r *http.Request) {
	if s.Rollout == nil {
		writeError(w, http.StatusInternalServerError, "rollout_unavailable")
		return
	}
	if r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]interface{}{"fire_count": s.Rollout.KillSwitchFireCount()})
		return
	}
	var req killSwitchRequest
	_ = decodeJSON(r, &req)
	if req.Freeze {
		s.Rollout.Freeze()
		writeJSON(w, http.StatusOK, map[string]interface{}{"action": "freeze"})
		return
	}
	action := s.Rollout.ManualKillSwitch(time.Now())
	writeJSON(w, http.StatusOK, map[string]interface{}{"action": action})
}

func (s *Server) handleRolloutPromote(w http.ResponseWriter, r *http.Request) {
	if s.Rollout == nil {
		writeError(w, http.StatusInternalServerError, "rollout_unavailable")
		return
	}
	s.Rollout.ManualPromote()
	writeJSON(w, http.StatusOK, rolloutStateJSON(s.Rollout.RolloutState()))
}

func (s *Server) handleRolloutLoad(w http.ResponseWriter, r *http.Request) {
	if s.Rollout == nil {
		writeError(w, http.StatusInternalServerError, "rollout_unavailable")
		return
	}
	var req snapshotLoadRequest
	if err := decodeJSON(r, &req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, "invalid_path")
		return
	}
	var state rollout.RolloutState
	if err := loadSnapshotInto(req.Path, "rollout", &state); err != nil {
		writeError(w, http.StatusBadRequest, snapshotErrorCode(err))
		return
	}
	s.Rollout.RestoreRollout(state)
	writeJSON(w, http.StatusOK, rolloutStateJSON(s.Rollout.RolloutState()))
}

func (s *Server) handleRampLoad(w http.ResponseWriter, r *http.Request) {
	if s.Rollout == nil {
		writeError(w, http.StatusInternalServerError, "rollout_unavailable")
		return
	}
	var req snapshotLoadRequest
	if err := decodeJSON(r, &req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, "invalid_path")
		return
	}
	var state rollout.RampState
	if err := loadSnapshotInto(req.Path, "ramp", &state); err != nil {
		writeError(w, http.StatusBadRequest, snapshotErrorCode(err))
		return
	}
	s.Rollout.RestoreRamp(state)
	writeJSON(w, http.StatusOK, rampStateJSON(s.Rollout.RampState()))
}
