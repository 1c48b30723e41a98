package adminapi

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/northbeacon/quotectl/internal/canary"
)

func (s *Server) handleReportCanary(w http.ResponseWriter, r *http.Request) {
	payload, report := s.Misc.CanaryLast()
	if payload == nil {
		writeError(w, http.StatusNotFound, "no_report_generated")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
	_ = report
}

func (s *Server) handleReportCanaryGenerate(w http.ResponseWriter, r *http.Request) {
	if s.CanaryBuild == nil {
		writeError(w, http.StatusInternalServerError, "canary_unavailable")
		return
	}
	var in canary.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	payload, err := s.CanaryBuild.Build(in)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "build_failed")
		return
	}
	report := canary.RenderMarkdownReport(in, s.CanaryBuild.Hints(in))
	s.Misc.SetCanaryLast(payload, report)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// handleReportCanaryReplay regenerates the canary payload from a supplied
// historical input, without persisting it as the current report — used to
// re-examine a past rollout tick.
func (s *Server) handleReportCanaryReplay(w http.ResponseWriter, r *http.Request) {
	if s.CanaryBuild == nil {
		writeError(w, http.StatusInternalServerError, "canary_unavailable")
		return
	}
	var in canary.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	payload, err := s.CanaryBuild.Build(in)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "build_failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (s *Server) handleReportCanaryBaseline(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		baseline := s.Misc.CanaryBaselineBytes()
		if baseline == nil {
			writeError(w, http.StatusNotFound, "no_baseline_set")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(baseline)
		return
	}

	payload, _ := s.Misc.CanaryLast()
	if payload == nil {
		writeError(w, http.StatusBadRequest, "no_current_report")
		return
	}
	s.Misc.SetCanaryBaseline(payload)
	writeJSON(w, http.StatusOK, map[string]interface{}{"baseline_set": true})
}

// handleReportCanaryDiff reports which top-level fields differ between the
// current report and the stored baseline, keyed by field name.
func (s *Server) handleReportCanaryDiff(w http.ResponseWriter, r *http.Request) {
	current, _ := s.Misc.CanaryLast()
	baseline := s.Misc.CanaryBaselineBytes()
	if current == nil || baseline == nil {
		writeError(w, http.StatusBadRequest, "nothing_to_diff")
		return
	}

	var curFields, baseFields map[string]json.RawMessage
	if err := json.Unmarshal(current, &curFields); err != nil {
		writeError(w, http.StatusInternalServerError, "decode_current_failed")
		return
	}
	if err := json.Unmarshal(baseline, &baseFields); err != nil {
		writeError(w, http.StatusInternalServerError, "decode_baseline_failed")
		return
	}

	changed := []string{}
	for key, val := range curFields {
		if base, ok := baseFields[key]; !ok || !bytes.Equal(base, val) {
			changed = append(changed, key)
		}
	}
	for key := range baseFields {
		if _, ok := curFields[key]; !ok {
			changed = append(changed, key)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"changed_fields": changed})
}
