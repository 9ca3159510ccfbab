package server

import (
	"context"
	"encoding/json"
	"net/http"
)

// HandleHealthz responds to liveness probe requests by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.DB.Ping(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type readyCheck struct {
	name string
	fn   func(context.Context) error
}

// HandleReadyz checks every backend a pass needs, plus the tenant destination.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := []readyCheck{{"database", h.deps.DB.Ping}}
	if h.deps.State != nil {
		checks = append(checks, readyCheck{"state_backend", h.deps.State.Ping})
	}
	checks = append(checks, readyCheck{"destination", func(ctx context.Context) error {
		_, err := h.deps.Destinations.Destination(ctx, h.deps.Tenant)
		return err
	}})

	for _, check := range checks {
		if err := check.fn(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
