package adminapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/northbeacon/quotectl/infrastructure/logging"
	"github.com/northbeacon/quotectl/internal/auditlog"
	"github.com/northbeacon/quotectl/internal/authn"
	"github.com/northbeacon/quotectl/internal/breaker"
	"github.com/northbeacon/quotectl/internal/guard"
	"github.com/northbeacon/quotectl/internal/rollout"
)

func testServer() *Server {
	return &Server{
		Version: "test",
		Auth:    authn.New("p1", "s1", false),
		Limiter: auditlog.NewRateLimiter(),
		Audit:   auditlog.NewLog(nil),
		Guard:   guard.New(guard.Config{}),
		Breaker: breaker.New(breaker.Config{Name: "test"}),
		Rollout: rollout.NewController(
			rollout.RolloutState{Active: rollout.Blue, SplitPct: 10},
			rollout.RampState{Enabled: true, StepsPct: []int{0, 10, 25, 50, 100}},
			rollout.RampConfig{StepIntervalSec: 10},
			rollout.KillSwitchConfig{},
			rollout.AutoPromoteConfig{},
		),
		Misc: NewMiscState(),
		Log:  logging.New("adminapi-test", "error", "json"),
	}
}

func doRequest(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz_Unauthenticated(t *testing.T) {
	s := testServer()
	rec := doRequest(t, s.NewRouter(), http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoute_RejectsMissingToken(t *testing.T) {
	s := testServer()
	rec := doRequest(t, s.NewRouter(), http.MethodGet, "/admin/guard", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoute_AdmitsValidToken(t *testing.T) {
	s := testServer()
	rec := doRequest(t, s.NewRouter(), http.MethodGet, "/admin/guard", "p1", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoute_RateLimited(t *testing.T) {
	s := testServer()
	h := s.NewRouter()
	var last *httptest.ResponseRecorder
	for i := 0; i < 200; i++ {
		last = doRequest(t, h, http.MethodGet, "/admin/guard", "p1", "")
	}
	require.Equal(t, http.StatusTooManyRequests, last.Code)
}

func TestAdminRoute_RecordsAuditEntry(t *testing.T) {
	s := testServer()
	h := s.NewRouter()
	doRequest(t, h, http.MethodGet, "/admin/guard", "p1", "")
	records := s.Audit.Records()
	require.Len(t, records, 1)
	require.Equal(t, "/admin/guard", records[0].Endpoint)
}

func TestRolloutPost_RejectsInvalidSplitPct(t *testing.T) {
	s := testServer()
	rec := doRequest(t, s.NewRouter(), http.MethodPost, "/admin/rollout", "p1", `{"split_pct":150}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRolloutPost_AppliesValidSplitPct(t *testing.T) {
	s := testServer()
	rec := doRequest(t, s.NewRouter(), http.MethodPost, "/admin/rollout", "p1", `{"split_pct":40}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 40, s.Rollout.RolloutState().SplitPct)
}

func TestRampPost_RejectsShortStepInterval(t *testing.T) {
	s := testServer()
	rec := doRequest(t, s.NewRouter(), http.MethodPost, "/admin/rollout/ramp", "p1", `{"step_interval_sec":5}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRolloutPromote_FlipsActive(t *testing.T) {
	s := testServer()
	rec := doRequest(t, s.NewRouter(), http.MethodPost, "/admin/rollout/promote", "p1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, rollout.Green, s.Rollout.RolloutState().Active)
}

func TestAuthRotate_DoesNotLeakTokensToAuditLog(t *testing.T) {
	s := testServer()
	h := s.NewRouter()
	rec := doRequest(t, h, http.MethodPost, "/admin/auth/rotate", "p1",
		`{"primary":"p2","secondary":"s2","activate":"secondary"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	for _, rec := range s.Audit.Records() {
		require.NotContains(t, rec.PayloadHash, "p2")
	}
	rec2 := doRequest(t, h, http.MethodGet, "/admin/guard", "p2", "")
	require.Equal(t, http.StatusOK, rec2.Code)
	rec3 := doRequest(t, h, http.MethodGet, "/admin/guard", "p1", "")
	require.Equal(t, http.StatusUnauthorized, rec3.Code)
}

func TestSelfcheck_ReflectsGuardPause(t *testing.T) {
	s := testServer()
	s.Guard.SetManualOverride(true)
	rec := doRequest(t, s.NewRouter(), http.MethodGet, "/admin/selfcheck", "p1", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReadyz_ReportsCircuitOpenReason(t *testing.T) {
	s := testServer()
	s.Breaker.OnResult(false, 500, time.Now())
	rec := doRequest(t, s.NewRouter(), http.MethodGet, "/readyz", "", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
