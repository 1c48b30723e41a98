package adminapi

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	svcerrors "github.com/northbeacon/quotectl/infrastructure/errors"
	"github.com/northbeacon/quotectl/internal/auditlog"
)

type actorKey struct{}

// authMiddleware is the first of the three admin middlewares to run,
// enforcing the token-check step of the required order (token check →
// rate limit → audit record → handler).
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if s.Auth == nil || !s.Auth.Admit(token) {
			writeServiceError(w, svcerrors.Unauthorized())
			return
		}
		ctx := context.WithValue(r.Context(), actorKey{}, auditlog.ActorFromToken(token))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := r.Context().Value(actorKey{}).(string)
		endpoint := routeName(r)
		if s.Limiter != nil && !s.Limiter.Allow(actor, endpoint, time.Now()) {
			writeServiceError(w, svcerrors.RateLimited())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// auditMiddleware records a signed audit entry for every request that
// reaches the handler and does not fail inside it with a panic. The
// payload hashed/signed is the request body, read and restored so
// handlers can still decode it.
func (s *Server) auditMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var bodyCopy []byte
		if r.Body != nil {
			bodyCopy, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(bodyCopy))
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if s.Audit == nil {
			return
		}
		route := routeName(r)
		if strings.HasSuffix(route, "/auth/rotate") {
			// The handler itself records a masked audit entry — the raw
			// request body here would otherwise leak the new tokens.
			return
		}
		actor, _ := r.Context().Value(actorKey{}).(string)
		var payload interface{} = string(bodyCopy)
		_, _ = s.Audit.Append(time.Now(), route, actor, payload)
	})
}

func actorFromRequest(r *http.Request) string {
	actor, _ := r.Context().Value(actorKey{}).(string)
	return actor
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return r.Header.Get("X-Admin-Token")
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}
