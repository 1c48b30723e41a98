package adminapi

import (
	"net/http"
	"time"
)

type volatilityTickRequest struct {
	Symbol string  `json:"symbol"`
	Mid    float64 `json:"mid"`
	Ts     string  `json:"ts,omitempty"` // RFC3339; defaults to now when empty
}

// handleVolatility is C8's admin surface. GET reports the current EWMA for
// a symbol; POST feeds one mid-price tick, the same external-signal path
// the allocator's cost_calibration endpoint uses for its own live inputs.
func (s *Server) handleVolatility(w http.ResponseWriter, r *http.Request) {
	if s.Volatility == nil {
		writeError(w, http.StatusInternalServerError, "volatility_unavailable")
		return
	}

	if r.Method == http.MethodGet {
		symbol := r.URL.Query().Get("symbol")
		if symbol == "" {
			writeError(w, http.StatusBadRequest, "missing_symbol")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"symbol":   symbol,
			"value":    s.Volatility.Value(symbol),
			"is_ready": s.Volatility.IsReady(symbol),
		})
		return
	}

	var req volatilityTickRequest
	if err := decodeJSON(r, &req); err != nil || req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	ts := time.Now()
	if req.Ts != "" {
		parsed, err := time.Parse(time.RFC3339, req.Ts)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_ts")
			return
		}
		ts = parsed
	}
	s.Volatility.Update(req.Symbol, req.Mid, ts)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":   req.Symbol,
		"value":    s.Volatility.Value(req.Symbol),
		"is_ready": s.Volatility.IsReady(req.Symbol),
	})
}
