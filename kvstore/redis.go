// Package kvstore is a Redis-backed video state store, selected with
// STATE_BACKEND=redis.
package kvstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/onnwee/stream-notifier/monitor"
)

const keyPrefix = "video_state:"

// Redis implements monitor.StateStore with one hash per (channel, video).
type Redis struct {
	client *redis.Client
}

// New wraps an existing client.
func New(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// NewWithURL parses a redis:// URL and connects.
func NewWithURL(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Redis{client: redis.NewClient(opts)}, nil
}

// Key returns the hash key holding a video's state.
func Key(channelID, videoID string) string {
	return keyPrefix + channelID + ":" + videoID
}

// Get reads the stored state. A missing hash reports found=false.
func (r *Redis) Get(ctx context.Context, channelID, videoID string) (monitor.VideoState, bool, error) {
	fields, err := r.client.HGetAll(ctx, Key(channelID, videoID)).Result()
	if err != nil {
		return monitor.VideoState{}, false, fmt.Errorf("%w: hgetall: %w", monitor.ErrStateStore, err)
	}
	if len(fields) == 0 {
		return monitor.VideoState{}, false, nil
	}
	return monitor.VideoState{Link: fields["link"], Title: fields["title"], Updated: fields["updated"]}, true, nil
}

// Upsert overwrites all three fields.
func (r *Redis) Upsert(ctx context.Context, channelID, videoID string, st monitor.VideoState) error {
	err := r.client.HSet(ctx, Key(channelID, videoID),
		"link", st.Link,
		"title", st.Title,
		"updated", st.Updated,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: hset: %w", monitor.ErrStateStore, err)
	}
	return nil
}

// Ping checks connectivity for readiness probes.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
