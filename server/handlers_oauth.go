package server

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/stream-notifier/telemetry"
)

// HandleYouTubeOAuthStart redirects to the Google consent screen.
func (h *Handlers) HandleYouTubeOAuthStart(w http.ResponseWriter, r *http.Request) {
	if h.deps.OAuth == nil {
		http.Error(w, "youtube oauth not configured", http.StatusBadRequest)
		return
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		http.Error(w, "state gen error", http.StatusInternalServerError)
		return
	}
	st := hex.EncodeToString(b)
	if !h.addOAuthState(st, time.Now().Add(oauthStateTTL)) {
		http.Error(w, "too many pending authorizations", http.StatusServiceUnavailable)
		return
	}
	http.Redirect(w, r, h.deps.OAuth.AuthCodeURL(st), http.StatusFound)
}

// HandleYouTubeOAuthCallback validates state and stores the exchanged token.
func (h *Handlers) HandleYouTubeOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if h.deps.OAuth == nil {
		http.Error(w, "youtube oauth not configured", http.StatusBadRequest)
		return
	}
	code := r.URL.Query().Get("code")
	st := r.URL.Query().Get("state")
	if code == "" || st == "" {
		http.Error(w, "missing code/state", http.StatusBadRequest)
		return
	}
	if !h.consumeOAuthState(st) {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	tok, err := h.deps.OAuth.Exchange(r.Context(), code)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("youtube token exchange failed", slog.Any("err", err), slog.String("component", "http"))
		http.Error(w, "token exchange failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":                "ok",
		"expiry":                tok.Expiry,
		"refresh_token_present": tok.RefreshToken != "",
	})
}
