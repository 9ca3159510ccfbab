package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/stream-notifier/monitor"
	"github.com/onnwee/stream-notifier/telemetry"
)

// HandleStatus returns the tenant's last recorded pass.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := map[string]any{
		"tenant":  h.deps.Tenant,
		"running": h.deps.Runner.Running(h.deps.Tenant),
	}
	if h.deps.History != nil {
		last, err := h.deps.History.LastRun(r.Context(), h.deps.Tenant)
		if err != nil {
			telemetry.LoggerWithCorr(r.Context()).Warn("failed to load last run", slog.Any("err", err), slog.String("component", "http"))
			http.Error(w, "status unavailable", http.StatusInternalServerError)
			return
		}
		resp["last_run"] = last
		if last != nil {
			resp["summary"] = summarize(last)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleRun runs one pass and returns its report. The request context bounds
// the pass, so a client disconnect stops evaluation between channels.
func (h *Handlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	log := telemetry.LoggerWithCorr(r.Context()).With(slog.String("component", "http"))
	report, err := h.deps.Runner.Run(r.Context(), h.deps.Tenant)
	switch {
	case errors.Is(err, monitor.ErrRunInProgress):
		http.Error(w, "run already in progress", http.StatusConflict)
		return
	case errors.Is(err, monitor.ErrNotConfigured):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_configured", "error": err.Error()})
		return
	case err != nil:
		log.Error("run failed to start", slog.Any("err", err))
		http.Error(w, "run failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": report, "summary": summarize(report)})
}

func summarize(r *monitor.Report) map[monitor.Outcome]int {
	out := make(map[monitor.Outcome]int)
	for _, res := range r.Results {
		out[res.Outcome]++
	}
	return out
}
