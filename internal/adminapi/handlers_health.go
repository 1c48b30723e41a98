// Package adminapi's liveness and readiness probes are now served directly
// by middleware.LivenessHandler and Server.buildReadinessChecker (see
// server.go); this file keeps only the domain-specific /version handler.
package adminapi

import (
	"net/http"
)

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"version": s.Version})
}
