package adminapi

import "net/http"

func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	if s.Audit == nil {
		writeError(w, http.StatusInternalServerError, "audit_unavailable")
		return
	}
	records := s.Audit.Records()
	out := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.ForJSON())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": out})
}

func (s *Server) handleAuditClear(w http.ResponseWriter, r *http.Request) {
	if s.Audit == nil {
		writeError(w, http.StatusInternalServerError, "audit_unavailable")
		return
	}
	s.Audit.Clear()
	writeJSON(w, http.StatusOK, map[string]interface{}{"cleared": true})
}
