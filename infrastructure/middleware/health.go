// Package middleware provides HTTP middleware for the service layer.
package middleware

import (
	"encoding/json"
	"log"
	"net/http"
	"runtime"
	"sort"
	"sync"
)

// ReadinessCheck reports whether the system can keep accepting new work. A
// false return supplies the reason string that goes into /readyz's
// "reasons" list.
type ReadinessCheck func() (reason string, ok bool)

// ReadinessChecker aggregates named readiness checks into the admin
// surface's /readyz contract: 200 {"status":"ready"}, or 503
// {"status":"not_ready","reasons":[...]} with reasons sorted.
type ReadinessChecker struct {
	mu     sync.RWMutex
	checks map[string]ReadinessCheck
}

// NewReadinessChecker creates an empty checker; Register adds checks to it.
func NewReadinessChecker() *ReadinessChecker {
	return &ReadinessChecker{checks: make(map[string]ReadinessCheck)}
}

// Register adds or replaces a named readiness check.
func (h *ReadinessChecker) Register(name string, check ReadinessCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Handler returns the /readyz HTTP handler.
func (h *ReadinessChecker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.mu.RLock()
		var reasons []string
		for _, check := range h.checks {
			if reason, ok := check(); !ok {
				reasons = append(reasons, reason)
			}
		}
		h.mu.RUnlock()

		w.Header().Set("Content-Type", "application/json")
		if len(reasons) > 0 {
			sort.Strings(reasons)
			w.WriteHeader(http.StatusServiceUnavailable)
			if err := json.NewEncoder(w).Encode(map[string]interface{}{"status": "not_ready", "reasons": reasons}); err != nil {
				log.Printf("readyz handler encode failed: %v", err)
			}
			return
		}
		if err := json.NewEncoder(w).Encode(map[string]interface{}{"status": "ready"}); err != nil {
			log.Printf("readyz handler encode failed: %v", err)
		}
	}
}

// LivenessHandler answers /healthz unconditionally; a process able to serve
// HTTP at all is considered alive.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok"}); err != nil {
			log.Printf("healthz handler encode failed: %v", err)
		}
	}
}

// RuntimeStats returns a snapshot of process runtime statistics, surfaced on
// the admin selfcheck endpoint alongside the domain checks.
func RuntimeStats() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return map[string]interface{}{
		"goroutines": runtime.NumGoroutine(),
		"alloc_mb":   m.Alloc / 1024 / 1024,
		"sys_mb":     m.Sys / 1024 / 1024,
		"num_gc":     m.NumGC,
		"go_version": runtime.Version(),
		"num_cpu":    runtime.NumCPU(),
	}
}
