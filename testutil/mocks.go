// Package testutil provides fake upstreams for tests that exercise the
// notifier end to end: a YouTube Data API, channel Atom feeds, and a webhook
// receiver.
package testutil

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockYouTubeServer creates a test server that mocks YouTube Data API v3 responses.
// Point a client at it with option.WithEndpoint(m.URL + "/").
type MockYouTubeServer struct {
	*httptest.Server

	mu       sync.Mutex
	videos   map[string]map[string]any
	channels map[string]map[string]any
}

// NewMockYouTubeServer creates a new mock Data API server
func NewMockYouTubeServer(t *testing.T) *MockYouTubeServer {
	t.Helper()
	m := &MockYouTubeServer{videos: map[string]map[string]any{}, channels: map[string]map[string]any{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/videos", func(w http.ResponseWriter, r *http.Request) {
		m.writeItems(w, m.videos, r.URL.Query().Get("id"))
	})
	mux.HandleFunc("/youtube/v3/channels", func(w http.ResponseWriter, r *http.Request) {
		m.writeItems(w, m.channels, r.URL.Query().Get("id"))
	})
	m.Server = httptest.NewServer(mux)
	t.Cleanup(m.Close)
	return m
}

func (m *MockYouTubeServer) writeItems(w http.ResponseWriter, from map[string]map[string]any, id string) {
	m.mu.Lock()
	items := []map[string]any{}
	if item, ok := from[id]; ok {
		items = append(items, item)
	}
	m.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"items": items}) //nolint:errcheck // test mock response
}

// MockVideo registers a video of channelID. started and ended set the actual
// start and end times of its live streaming details.
func (m *MockYouTubeServer) MockVideo(videoID, channelID string, started, ended bool) {
	details := map[string]string{}
	if started {
		details["actualStartTime"] = "2024-01-01T00:00:00Z"
	}
	if ended {
		details["actualEndTime"] = "2024-01-01T02:00:00Z"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.videos[videoID] = map[string]any{
		"id":                   videoID,
		"snippet":              map[string]string{"channelId": channelID},
		"liveStreamingDetails": details,
	}
}

// MockChannel registers a channel title and avatar.
func (m *MockYouTubeServer) MockChannel(channelID, title, avatarURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[channelID] = map[string]any{
		"id": channelID,
		"snippet": map[string]any{
			"title":      title,
			"thumbnails": map[string]any{"default": map[string]string{"url": avatarURL}},
		},
	}
}

// FeedEntry is one entry served by MockFeedServer.
type FeedEntry struct {
	VideoID string
	Title   string
	Updated string
}

// MockFeedServer serves YouTube style Atom feeds keyed by channel path.
type MockFeedServer struct {
	*httptest.Server

	mu      sync.Mutex
	entries map[string]FeedEntry
	status  map[string]int
}

// NewMockFeedServer creates a feed server. Unknown paths return an empty feed.
func NewMockFeedServer(t *testing.T) *MockFeedServer {
	t.Helper()
	m := &MockFeedServer{entries: map[string]FeedEntry{}, status: map[string]int{}}
	m.Server = httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(m.Close)
	return m
}

// FeedURL returns the feed URL of channel.
func (m *MockFeedServer) FeedURL(channel string) string { return m.Server.URL + "/" + channel }

// SetEntry makes entry the latest item of channel's feed.
func (m *MockFeedServer) SetEntry(channel string, entry FeedEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[channel] = entry
	delete(m.status, channel)
}

// Fail makes channel's feed answer with status.
func (m *MockFeedServer) Fail(channel string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status[channel] = status
}

func (m *MockFeedServer) serve(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Path[1:]
	m.mu.Lock()
	status, failing := m.status[channel]
	entry, ok := m.entries[channel]
	m.mu.Unlock()
	if failing {
		http.Error(w, "unavailable", status)
		return
	}
	w.Header().Set("Content-Type", "application/atom+xml")
	fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns="http://www.w3.org/2005/Atom">
 <title>`+html.EscapeString(channel)+`</title>`)
	if ok {
		fmt.Fprintf(w, `
 <entry>
  <id>yt:video:%[1]s</id>
  <yt:videoId>%[1]s</yt:videoId>
  <title>%[2]s</title>
  <link rel="alternate" href="https://www.youtube.com/watch?v=%[1]s"/>
  <updated>%[3]s</updated>
 </entry>`, html.EscapeString(entry.VideoID), html.EscapeString(entry.Title), html.EscapeString(entry.Updated))
	}
	fmt.Fprint(w, "\n</feed>")
}

// WebhookPayload is the JSON body a webhook sink posts.
type WebhookPayload struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
	Content   string `json:"content"`
}

// WebhookRecorder is a webhook receiver that records every payload.
type WebhookRecorder struct {
	*httptest.Server

	mu       sync.Mutex
	payloads []WebhookPayload
	status   int
}

// NewWebhookRecorder creates a receiver answering 204 No Content.
func NewWebhookRecorder(t *testing.T) *WebhookRecorder {
	t.Helper()
	rec := &WebhookRecorder{status: http.StatusNoContent}
	rec.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var p WebhookPayload
		if err := json.Unmarshal(body, &p); err != nil {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}
		rec.mu.Lock()
		rec.payloads = append(rec.payloads, p)
		status := rec.status
		rec.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(rec.Close)
	return rec
}

// SetStatus changes the status code returned to the sink.
func (rec *WebhookRecorder) SetStatus(status int) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.status = status
}

// Payloads returns a copy of the recorded payloads.
func (rec *WebhookRecorder) Payloads() []WebhookPayload {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]WebhookPayload(nil), rec.payloads...)
}
