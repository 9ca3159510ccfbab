package youtubeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"github.com/onnwee/stream-notifier/config"
	"github.com/onnwee/stream-notifier/monitor"
)

// mockTokenStore implements TokenStore for testing
type mockTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*oauth2.Token
	saves  int
	scope  string
}

func newMockTokenStore() *mockTokenStore {
	return &mockTokenStore{tokens: make(map[string]*oauth2.Token)}
}

func (m *mockTokenStore) SaveToken(_ context.Context, provider string, tok *oauth2.Token, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tok
	m.tokens[provider] = &cp
	m.saves++
	m.scope = scope
	return nil
}

func (m *mockTokenStore) LoadToken(_ context.Context, provider string) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tok, ok := m.tokens[provider]; ok {
		cp := *tok
		return &cp, nil
	}
	return nil, nil
}

// fakeDataAPI serves the two Data API endpoints the client calls.
func fakeDataAPI(t *testing.T, videos, channels map[string]string) (*httptest.Server, *[]*http.Request) {
	t.Helper()
	var reqs []*http.Request
	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/videos", func(w http.ResponseWriter, r *http.Request) {
		reqs = append(reqs, r)
		writeItems(w, videos[r.URL.Query().Get("id")])
	})
	mux.HandleFunc("/youtube/v3/channels", func(w http.ResponseWriter, r *http.Request) {
		reqs = append(reqs, r)
		writeItems(w, channels[r.URL.Query().Get("id")])
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &reqs
}

func writeItems(w http.ResponseWriter, item string) {
	w.Header().Set("Content-Type", "application/json")
	if item == "" {
		_, _ = w.Write([]byte(`{"items":[]}`))
		return
	}
	_, _ = w.Write([]byte(`{"items":[` + item + `]}`))
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	// WithHTTPClient would drop the API key, so only the endpoint is overridden.
	c, err := New(context.Background(), &config.Config{YouTubeAPIKey: "test-key"}, nil, option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestVideoStatus(t *testing.T) {
	videos := map[string]string{
		"live":     `{"id":"live","snippet":{"channelId":"UC1","channelTitle":"One"},"liveStreamingDetails":{"actualStartTime":"2024-01-01T00:00:00Z"}}`,
		"ended":    `{"id":"ended","snippet":{"channelId":"UC1"},"liveStreamingDetails":{"actualStartTime":"2024-01-01T00:00:00Z","actualEndTime":"2024-01-01T02:00:00Z"}}`,
		"upcoming": `{"id":"upcoming","snippet":{"channelId":"UC1"},"liveStreamingDetails":{"scheduledStartTime":"2024-02-01T00:00:00Z"}}`,
		"vod":      `{"id":"vod","snippet":{"channelId":"UC2"}}`,
	}
	srv, _ := fakeDataAPI(t, videos, nil)
	c := newTestClient(t, srv)

	tests := []struct {
		id        string
		wantStart bool
		wantEnd   bool
		wantLive  bool
	}{
		{"live", true, false, true},
		{"ended", true, true, false},
		{"upcoming", false, false, false},
		{"vod", false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			st, err := c.VideoStatus(context.Background(), tt.id)
			if err != nil {
				t.Fatalf("VideoStatus() error = %v", err)
			}
			if st.HasActualStart != tt.wantStart || st.HasActualEnd != tt.wantEnd || st.IsLive() != tt.wantLive {
				t.Errorf("VideoStatus(%s) = %+v", tt.id, st)
			}
			if st.ChannelID == "" {
				t.Error("ChannelID empty")
			}
		})
	}
}

func TestVideoStatusRequestShape(t *testing.T) {
	srv, reqs := fakeDataAPI(t, map[string]string{"V1": `{"id":"V1","snippet":{"channelId":"UC1"}}`}, nil)
	c := newTestClient(t, srv)

	if _, err := c.VideoStatus(context.Background(), "V1"); err != nil {
		t.Fatal(err)
	}
	q := (*reqs)[0].URL.Query()
	if q.Get("key") != "test-key" {
		t.Errorf("key = %q, want test-key", q.Get("key"))
	}
	// part is repeated once per requested resource part.
	part := strings.Join(q["part"], ",")
	for _, want := range []string{"id", "snippet", "liveStreamingDetails"} {
		if !strings.Contains(part, want) {
			t.Errorf("part = %q, missing %s", part, want)
		}
	}
}

func TestVideoStatusNotFound(t *testing.T) {
	srv, _ := fakeDataAPI(t, nil, nil)
	c := newTestClient(t, srv)

	_, err := c.VideoStatus(context.Background(), "missing")
	if !errors.Is(err, monitor.ErrMetadataNotFound) {
		t.Errorf("err = %v, want ErrMetadataNotFound", err)
	}
}

func TestChannelInfo(t *testing.T) {
	channels := map[string]string{
		"UC1": `{"id":"UC1","snippet":{"title":"Channel One","thumbnails":{"default":{"url":"https://yt3.example/a.jpg"}}}}`,
		"UC2": `{"id":"UC2","snippet":{"title":"No Avatar"}}`,
	}
	srv, _ := fakeDataAPI(t, nil, channels)
	c := newTestClient(t, srv)

	info, err := c.ChannelInfo(context.Background(), "UC1")
	if err != nil {
		t.Fatalf("ChannelInfo() error = %v", err)
	}
	if info != (monitor.ChannelInfo{Title: "Channel One", AvatarURL: "https://yt3.example/a.jpg"}) {
		t.Errorf("ChannelInfo() = %+v", info)
	}
	info, err = c.ChannelInfo(context.Background(), "UC2")
	if err != nil || info.Title != "No Avatar" || info.AvatarURL != "" {
		t.Errorf("ChannelInfo(UC2) = %+v, %v", info, err)
	}
	if _, err := c.ChannelInfo(context.Background(), "UC404"); !errors.Is(err, monitor.ErrMetadataNotFound) {
		t.Errorf("err = %v, want ErrMetadataNotFound", err)
	}
}

func TestAPIErrors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		wantNotFound bool
	}{
		{"not found", http.StatusNotFound, true},
		{"forbidden", http.StatusForbidden, false},
		{"server error", http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = fmt.Fprintf(w, `{"error":{"code":%d,"message":"x"}}`, tt.status)
			}))
			defer srv.Close()
			c := newTestClient(t, srv)

			_, err := c.VideoStatus(context.Background(), "V1")
			if err == nil {
				t.Fatal("VideoStatus() expected error")
			}
			if got := errors.Is(err, monitor.ErrMetadataNotFound); got != tt.wantNotFound {
				t.Errorf("errors.Is(ErrMetadataNotFound) = %v, want %v (err=%v)", got, tt.wantNotFound, err)
			}
		})
	}
}

func TestNewRequiresCredential(t *testing.T) {
	if _, err := New(context.Background(), &config.Config{}, nil); err == nil {
		t.Error("New() without api key or store expected error")
	}
}

func TestNewAuthScopes(t *testing.T) {
	a := NewAuth(&config.Config{YTClientID: "id", YTScopes: "a, b"}, newMockTokenStore())
	if len(a.oauth.Scopes) != 2 || a.scope != "a b" {
		t.Errorf("scopes = %v (%q)", a.oauth.Scopes, a.scope)
	}
}

func TestAuthCodeURL(t *testing.T) {
	a := NewAuth(&config.Config{YTClientID: "client-123", YTRedirectURI: "http://localhost/callback"}, newMockTokenStore())

	u := a.AuthCodeURL("state-xyz")
	for _, want := range []string{"client_id=client-123", "state=state-xyz", "access_type=offline", "prompt=consent"} {
		if !strings.Contains(u, want) {
			t.Errorf("AuthCodeURL() = %q, missing %q", u, want)
		}
	}
}

// fakeTokenEndpoint issues tokens for both code exchange and refresh grants.
func fakeTokenEndpoint(t *testing.T, access string) (*httptest.Server, *int) {
	t.Helper()
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = r.ParseForm()
		resp := map[string]any{"access_token": access, "token_type": "Bearer", "expires_in": 3600}
		if r.Form.Get("grant_type") == "authorization_code" {
			resp["refresh_token"] = "refresh-from-code"
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testAuth(t *testing.T, tokenURL string, store TokenStore) *Auth {
	t.Helper()
	a := NewAuth(&config.Config{YTClientID: "id", YTClientSecret: "secret", YTRedirectURI: "http://localhost/cb"}, store)
	a.oauth.Endpoint = oauth2.Endpoint{AuthURL: tokenURL + "/auth", TokenURL: tokenURL + "/token"}
	return a
}

func TestExchangeStoresToken(t *testing.T) {
	srv, _ := fakeTokenEndpoint(t, "access-1")
	store := newMockTokenStore()
	a := testAuth(t, srv.URL, store)

	tok, err := a.Exchange(context.Background(), "code")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if tok.AccessToken != "access-1" {
		t.Errorf("AccessToken = %q", tok.AccessToken)
	}
	stored := store.tokens[Provider]
	if stored == nil || stored.RefreshToken != "refresh-from-code" {
		t.Errorf("stored token = %+v", stored)
	}
}

func TestTokenNoneStored(t *testing.T) {
	a := testAuth(t, "http://127.0.0.1:0", newMockTokenStore())
	if _, err := a.Token(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Errorf("Token() err = %v, want ErrNoToken", err)
	}
}

func TestTokenFreshIsNotRefreshed(t *testing.T) {
	srv, calls := fakeTokenEndpoint(t, "new")
	store := newMockTokenStore()
	store.tokens[Provider] = &oauth2.Token{AccessToken: "old", RefreshToken: "r", Expiry: time.Now().Add(time.Hour)}
	a := testAuth(t, srv.URL, store)

	tok, err := a.Token(context.Background())
	if err != nil || tok.AccessToken != "old" {
		t.Fatalf("Token() = %+v, %v", tok, err)
	}
	if *calls != 0 || store.saves != 0 {
		t.Errorf("refresh calls=%d saves=%d, want 0", *calls, store.saves)
	}
}

func TestTokenRefreshesNearExpiry(t *testing.T) {
	srv, calls := fakeTokenEndpoint(t, "new")
	store := newMockTokenStore()
	store.tokens[Provider] = &oauth2.Token{AccessToken: "old", RefreshToken: "r", Expiry: time.Now().Add(30 * time.Second)}
	a := testAuth(t, srv.URL, store)

	tok, err := a.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok.AccessToken != "new" || *calls != 1 {
		t.Errorf("Token() = %q after %d calls, want refreshed", tok.AccessToken, *calls)
	}
	if got := store.tokens[Provider]; got.AccessToken != "new" || got.RefreshToken != "r" {
		t.Errorf("persisted token = %+v, want new access with original refresh", got)
	}
}

func TestOAuthClientSendsBearer(t *testing.T) {
	var auth string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		writeItems(w, `{"id":"V1","snippet":{"channelId":"UC1"}}`)
	}))
	defer api.Close()
	store := newMockTokenStore()
	store.tokens[Provider] = &oauth2.Token{AccessToken: "stored-access", Expiry: time.Now().Add(time.Hour)}

	c, err := New(context.Background(), &config.Config{YTClientID: "id"}, store, option.WithEndpoint(api.URL+"/"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := c.VideoStatus(context.Background(), "V1"); err != nil {
		t.Fatalf("VideoStatus() error = %v", err)
	}
	if auth != "Bearer stored-access" {
		t.Errorf("Authorization = %q", auth)
	}
}
