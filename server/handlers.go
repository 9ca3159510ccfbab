package server

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/onnwee/stream-notifier/monitor"
)

const (
	// Maximum number of OAuth states to keep in memory
	maxOAuthStates = 1000
	oauthStateTTL  = 10 * time.Minute
)

// Pinger reports backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Runner runs one pass for a tenant. *monitor.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, tenant string) (*monitor.Report, error)
	Running(tenant string) bool
}

// RunHistory returns the last recorded pass.
type RunHistory interface {
	LastRun(ctx context.Context, tenant string) (*monitor.Report, error)
}

// DestinationResolver resolves a tenant's webhook.
type DestinationResolver interface {
	Destination(ctx context.Context, tenant string) (string, error)
}

// OAuthFlow is the consent flow of youtubeapi.Auth.
type OAuthFlow interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// Deps are the collaborators of the HTTP handlers. State and OAuth are
// optional; State is set when the state backend is not the database.
type Deps struct {
	Tenant       string
	DB           Pinger
	State        Pinger
	Runner       Runner
	History      RunHistory
	Destinations DestinationResolver
	OAuth        OAuthFlow
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	deps       Deps
	stateStore map[string]time.Time
	stateMu    sync.Mutex
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{deps: deps, stateStore: make(map[string]time.Time)}
}

// addOAuthState records a consent state. It reports false when the store is full.
func (h *Handlers) addOAuthState(state string, expiry time.Time) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	now := time.Now()
	for s, exp := range h.stateStore {
		if now.After(exp) {
			delete(h.stateStore, s)
		}
	}
	if len(h.stateStore) >= maxOAuthStates {
		return false
	}
	h.stateStore[state] = expiry
	return true
}

// consumeOAuthState removes state and reports whether it was valid.
func (h *Handlers) consumeOAuthState(state string) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	exp, ok := h.stateStore[state]
	delete(h.stateStore, state)
	return ok && time.Now().Before(exp)
}
