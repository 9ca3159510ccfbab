// Package monitor decides when a tracked broadcast has gone live and must be
// announced.
//
// The Engine evaluates one channel per call: it peeks at the newest feed
// entry, compares the entry's updated token against the value persisted for
// the same video id, records the new token unconditionally and notifies only
// when the video is live and the token changed (or was never seen). The
// Orchestrator runs the Engine over every channel of a tenant and isolates
// per-channel failures.
//
// All I/O lives behind the small interfaces declared here; concrete
// implementations are in the feed, youtubeapi, db, kvstore and notify
// packages.
package monitor

import (
	"context"
	"time"
)

// Channel is a monitored channel and the feed it is polled through.
type Channel struct {
	ID      string
	FeedURL string
}

// Entry is the most recent item of a channel feed. Updated is an opaque
// version token and is only ever compared for equality.
type Entry struct {
	Link    string
	Title   string
	Updated string
	VideoID string
}

// VideoState is the record persisted per (channel id, video id).
type VideoState struct {
	Link    string
	Title   string
	Updated string
}

// LiveStatus is the live-broadcast view of a video.
type LiveStatus struct {
	HasActualStart bool
	HasActualEnd   bool
	ChannelID      string
	ChannelTitle   string
}

// IsLive reports whether the broadcast has started and not yet ended.
func (s LiveStatus) IsLive() bool { return s.HasActualStart && !s.HasActualEnd }

// ChannelInfo is the display identity of a channel.
type ChannelInfo struct {
	Title     string
	AvatarURL string
}

// Message is what gets delivered to a destination.
type Message struct {
	DisplayName string
	AvatarURL   string
	Body        string
}

// FeedSource fetches a feed and returns its most recent entry. ok is false
// when the feed has no entries. Fetch failures wrap ErrFeedFetch.
type FeedSource interface {
	Latest(ctx context.Context, url string) (entry Entry, ok bool, err error)
}

// MetadataProvider resolves live status and channel identity. Unknown ids
// wrap ErrMetadataNotFound.
type MetadataProvider interface {
	VideoStatus(ctx context.Context, videoID string) (LiveStatus, error)
	ChannelInfo(ctx context.Context, channelID string) (ChannelInfo, error)
}

// StateStore persists the last known entry per (channel id, video id).
// Upsert is last-write-wins.
type StateStore interface {
	Get(ctx context.Context, channelID, videoID string) (VideoState, bool, error)
	Upsert(ctx context.Context, channelID, videoID string, st VideoState) error
}

// Sink delivers a message to a destination URL.
type Sink interface {
	Send(ctx context.Context, destination string, msg Message) error
}

// ConfigStore holds the per-tenant destination and channel list.
type ConfigStore interface {
	Destination(ctx context.Context, tenant string) (string, error)
	Channels(ctx context.Context, tenant string) ([]Channel, error)
}

// RunRecorder keeps the last report of each tenant.
type RunRecorder interface {
	RecordRun(ctx context.Context, report *Report) error
}

// Outcome is the result category of one channel evaluation.
type Outcome string

const (
	OutcomeFeedFailed     Outcome = "feed_failed"
	OutcomeEmptyFeed      Outcome = "empty_feed"
	OutcomeNotLive        Outcome = "not_live"
	OutcomeUnchanged      Outcome = "unchanged"
	OutcomeNotified       Outcome = "notified"
	OutcomeDeliveryFailed Outcome = "delivery_failed"
	OutcomeError          Outcome = "error"
)

// Result is the outcome of evaluating one channel. Err is set only for
// OutcomeError; Error mirrors it for JSON output.
type Result struct {
	ChannelID string  `json:"channel_id"`
	VideoID   string  `json:"video_id,omitempty"`
	Outcome   Outcome `json:"outcome"`
	Error     string  `json:"error,omitempty"`
	Err       error   `json:"-"`
}

// Report is the outcome of one orchestration pass over a tenant.
type Report struct {
	RunID      string    `json:"run_id"`
	Tenant     string    `json:"tenant"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Results    []Result  `json:"results"`
}

// Count returns how many results have the given outcome.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}
