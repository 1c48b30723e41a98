package adminapi

import (
	"net/http"

	"github.com/northbeacon/quotectl/internal/scheduler"
)

type schedulerSuggestRequest struct {
	Buckets   []scheduler.BucketStats `json:"buckets"`
	Mode      scheduler.Mode          `json:"mode"`
	MinSample int                     `json:"min_sample"`
	TopK      int                     `json:"top_k"`
}

func (s *Server) handleSchedulerSuggest(w http.ResponseWriter, r *http.Request) {
	var req schedulerSuggestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	suggestions := scheduler.SuggestWindows(req.Buckets, req.Mode, req.MinSample, req.TopK)
	writeJSON(w, http.StatusOK, map[string]interface{}{"suggestions": suggestions})
}

type schedulerApplyRequest struct {
	Windows []scheduler.Window `json:"windows"`
}

func (s *Server) handleSchedulerApply(w http.ResponseWriter, r *http.Request) {
	if s.Scheduler == nil {
		writeError(w, http.StatusInternalServerError, "scheduler_unavailable")
		return
	}
	var req schedulerApplyRequest
	if err := decodeJSON(r, &req); err != nil || len(req.Windows) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	s.Scheduler.SetWindows(req.Windows)
	writeJSON(w, http.StatusOK, map[string]interface{}{"applied": true, "windows": s.Scheduler.Windows()})
}
