package adminapi

import (
	"net/http"

	"github.com/northbeacon/quotectl/internal/allocator"
)

type allocatorTargetsRequest struct {
	Weights   map[string]float64 `json:"weights"`
	BudgetUSD float64            `json:"budget_usd"`
}

func (s *Server) handleAllocatorTargets(w http.ResponseWriter, r *http.Request) {
	if s.Allocator == nil {
		writeError(w, http.StatusInternalServerError, "allocator_unavailable")
		return
	}
	var req allocatorTargetsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	targets := s.Allocator.TargetsFromWeights(req.Weights, req.BudgetUSD)
	writeJSON(w, http.StatusOK, map[string]interface{}{"targets": targets, "hwm_equity_usd": s.Allocator.HWMEquityUSD()})
}

type allocatorResetRequest struct {
	Mode             string  `json:"mode"`
	CurrentEquityUSD float64 `json:"current_equity_usd"`
}

func (s *Server) handleAllocatorReset(w http.ResponseWriter, r *http.Request) {
	if s.Allocator == nil {
		writeError(w, http.StatusInternalServerError, "allocator_unavailable")
		return
	}
	var req allocatorResetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	s.Allocator.Reset(allocator.ResetMode(req.Mode), req.CurrentEquityUSD)
	writeJSON(w, http.StatusOK, map[string]interface{}{"hwm_equity_usd": s.Allocator.HWMEquityUSD()})
}

type allocatorCostCalibrationRequest struct {
	Symbol      string  `json:"symbol"`
	SpreadBps   float64 `json:"spread_bps"`
	VolumeUSD   float64 `json:"volume_usd"`
	SlippageBps float64 `json:"slippage_bps"`
	KEff        *float64 `json:"k_eff,omitempty"`
	CapEffBps   *float64 `json:"cap_eff_bps,omitempty"`
}

func (s *Server) handleAllocatorCostCalibration(w http.ResponseWriter, r *http.Request) {
	if s.Allocator == nil {
		writeError(w, http.StatusInternalServerError, "allocator_unavailable")
		return
	}
	if r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]interface{}{"hwm_equity_usd": s.Allocator.HWMEquityUSD()})
		return
	}

	var req allocatorCostCalibrationRequest
	if err := decodeJSON(r, &req); err != nil || req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	s.Allocator.SetAllocatorCostInputs(req.Symbol, req.SpreadBps, req.VolumeUSD, req.SlippageBps)
	if req.KEff != nil {
		s.Allocator.SetKEffOverride(req.Symbol, *req.KEff)
	}
	if req.CapEffBps != nil {
		s.Allocator.SetCapEffBps(req.Symbol, *req.CapEffBps)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"symbol": req.Symbol, "applied": true})
}

func (s *Server) handleAllocatorLoad(w http.ResponseWriter, r *http.Request) {
	if s.Allocator == nil {
		writeError(w, http.StatusInternalServerError, "allocator_unavailable")
		return
	}
	var req snapshotLoadRequest
	if err := decodeJSON(r, &req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, "invalid_path")
		return
	}
	var snap allocator.HWMSnapshot
	if err := loadSnapshotInto(req.Path, "allocator", &snap); err != nil {
		writeError(w, http.StatusBadRequest, snapshotErrorCode(err))
		return
	}
	s.Allocator.RestoreHWM(snap)
	writeJSON(w, http.StatusOK, map[string]interface{}{"hwm_equity_usd": s.Allocator.HWMEquityUSD()})
}
