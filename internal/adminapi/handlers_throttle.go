package adminapi

import (
	"net/http"

	"github.com/northbeacon/quotectl/internal/throttle"
)

func (s *Server) handleThrottleStatus(w http.ResponseWriter, r *http.Request) {
	if s.Throttle == nil {
		writeError(w, http.StatusInternalServerError, "throttle_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, s.Throttle.Snapshot())
}

func (s *Server) handleThrottleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.Throttle == nil {
		writeError(w, http.StatusInternalServerError, "throttle_unavailable")
		return
	}
	if r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, s.Throttle.Snapshot())
		return
	}

	var req snapshotLoadRequest
	if err := decodeJSON(r, &req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, "invalid_path")
		return
	}
	var payload throttle.SnapshotPayload
	if err := loadSnapshotInto(req.Path, "throttle", &payload); err != nil {
		writeError(w, http.StatusBadRequest, snapshotErrorCode(err))
		return
	}
	s.Throttle.Restore(payload)
	writeJSON(w, http.StatusOK, map[string]interface{}{"loaded": true})
}
