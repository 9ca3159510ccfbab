package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/onnwee/stream-notifier/config"
)

// Provider is the oauth_tokens row used for YouTube.
const Provider = "youtube"

// ErrNoToken is returned when OAuth is configured but no token was exchanged yet.
var ErrNoToken = errors.New("no youtube token stored")

// refreshWindow is how early a token is refreshed before it expires.
const refreshWindow = 2 * time.Minute

// TokenStore persists the OAuth token between runs.
type TokenStore interface {
	SaveToken(ctx context.Context, provider string, tok *oauth2.Token, scope string) error
	LoadToken(ctx context.Context, provider string) (*oauth2.Token, error)
}

// Auth drives the OAuth consent flow and hands out fresh tokens.
type Auth struct {
	oauth *oauth2.Config
	store TokenStore
	scope string
}

// NewAuth builds the OAuth client config from cfg.
func NewAuth(cfg *config.Config, store TokenStore) *Auth {
	scopes := cfg.Scopes()
	return &Auth{
		oauth: &oauth2.Config{
			ClientID:     cfg.YTClientID,
			ClientSecret: cfg.YTClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  cfg.YTRedirectURI,
			Scopes:       scopes,
		},
		store: store,
		scope: strings.Join(scopes, " "),
	}
}

// AuthCodeURL returns the consent URL requesting offline access.
func (a *Auth) AuthCodeURL(state string) string {
	return a.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and stores it.
func (a *Auth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	if err := a.store.SaveToken(ctx, Provider, tok, a.scope); err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}
	return tok, nil
}

// Token returns the stored token, refreshing and persisting it when it is
// within refreshWindow of expiry.
func (a *Auth) Token(ctx context.Context) (*oauth2.Token, error) {
	tok, err := a.store.LoadToken(ctx, Provider)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	if tok == nil || (tok.AccessToken == "" && tok.RefreshToken == "") {
		return nil, ErrNoToken
	}
	if !tok.Expiry.IsZero() && time.Until(tok.Expiry) > refreshWindow {
		return tok, nil
	}
	if tok.RefreshToken == "" {
		return tok, nil
	}
	// Expire it locally so the token source always hits the token endpoint.
	stale := *tok
	stale.Expiry = time.Now().Add(-time.Minute)
	fresh, err := a.oauth.TokenSource(ctx, &stale).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh youtube token: %w", err)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = tok.RefreshToken
	}
	if err := a.store.SaveToken(ctx, Provider, fresh, a.scope); err != nil {
		slog.Warn("failed to persist refreshed youtube token", slog.String("component", "youtubeapi"), slog.Any("err", err))
	}
	return fresh, nil
}

// TokenSource adapts Token to oauth2.TokenSource, caching until expiry.
func (a *Auth) TokenSource(ctx context.Context) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, storeSource{ctx: ctx, auth: a})
}

type storeSource struct {
	ctx  context.Context
	auth *Auth
}

func (s storeSource) Token() (*oauth2.Token, error) { return s.auth.Token(s.ctx) }
