package adminapi

import (
	"net/http"
	"time"

	"github.com/northbeacon/quotectl/internal/authn"
)

func (s *Server) handleAuthRotate(w http.ResponseWriter, r *http.Request) {
	if s.Auth == nil {
		writeError(w, http.StatusInternalServerError, "auth_unavailable")
		return
	}
	var req authn.RotateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	active, err := s.Auth.Rotate(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_rotate_request")
		return
	}
	if s.Audit != nil {
		actor := actorFromRequest(r)
		_, _ = s.Audit.Append(time.Now(), "auth/rotate", actor, authn.MaskedAudit(req))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"active": active})
}
