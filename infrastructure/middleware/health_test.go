package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReadinessChecker_ReadyWithNoChecksRegistered(t *testing.T) {
	rc := NewReadinessChecker()
	rr := httptest.NewRecorder()
	rc.Handler()(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if got := rr.Body.String(); got != `{"status":"ready"}`+"\n" {
		t.Fatalf("body = %q", got)
	}
}

func TestReadinessChecker_NotReadyReportsSortedReasons(t *testing.T) {
	rc := NewReadinessChecker()
	rc.Register("b_check", func() (string, bool) { return "b_failed", false })
	rc.Register("a_check", func() (string, bool) { return "a_failed", false })

	rr := httptest.NewRecorder()
	rc.Handler()(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
	want := `{"reasons":["a_failed","b_failed"],"status":"not_ready"}` + "\n"
	if got := rr.Body.String(); got != want {
		t.Fatalf("body = %q, want %q", got, want)
	}
}

func TestLivenessHandler_AlwaysOK(t *testing.T) {
	rr := httptest.NewRecorder()
	LivenessHandler()(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestRuntimeStats_ReportsProcessFields(t *testing.T) {
	stats := RuntimeStats()
	if _, ok := stats["goroutines"]; !ok {
		t.Fatalf("expected goroutines field")
	}
	if _, ok := stats["go_version"]; !ok {
		t.Fatalf("expected go_version field")
	}
}
