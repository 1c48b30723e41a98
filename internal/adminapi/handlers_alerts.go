package adminapi

import "net/http"

func (s *Server) handleAlertsLog(w http.ResponseWriter, r *http.Request) {
	if s.AlertsSink == nil {
		writeError(w, http.StatusInternalServerError, "alerts_unavailable")
		return
	}
	entries, err := s.AlertsSink.ReadAll()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "alerts_read_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (s *Server) handleAlertsClear(w http.ResponseWriter, r *http.Request) {
	if s.AlertsSink == nil {
		writeError(w, http.StatusInternalServerError, "alerts_unavailable")
		return
	}
	if err := s.AlertsSink.Clear(); err != nil {
		writeError(w, http.StatusInternalServerError, "alerts_clear_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cleared": true})
}
