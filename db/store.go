package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/onnwee/stream-notifier/crypto"
	"github.com/onnwee/stream-notifier/monitor"
)

func webhookLabel(tenant string) string { return "tenants:" + tenant + ":webhook_url" }

func runKey(tenant string) string { return "run_last:" + tenant }

// Destination returns the decrypted webhook URL of tenant.
func (s *Store) Destination(ctx context.Context, tenant string) (string, error) {
	var stored string
	var version int
	err := s.db.QueryRowContext(ctx,
		`SELECT webhook_url, encryption_version FROM tenants WHERE id=$1`, tenant).Scan(&stored, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("tenant %q has no webhook: %w", tenant, monitor.ErrNotConfigured)
	}
	if err != nil {
		return "", fmt.Errorf("query tenant %q: %w", tenant, err)
	}
	url, err := crypto.OpenField(s.sealer, stored, version, webhookLabel(tenant))
	if err != nil {
		return "", fmt.Errorf("decrypt webhook for tenant %q: %w", tenant, err)
	}
	if url == "" {
		return "", fmt.Errorf("tenant %q has no webhook: %w", tenant, monitor.ErrNotConfigured)
	}
	return url, nil
}

// SetDestination stores the webhook URL of tenant, sealed when a key is configured.
func (s *Store) SetDestination(ctx context.Context, tenant, webhookURL string) error {
	webhookURL = strings.TrimSpace(webhookURL)
	if webhookURL == "" {
		return errors.New("webhook url is empty")
	}
	stored, version, err := crypto.SealField(s.sealer, webhookURL, webhookLabel(tenant))
	if err != nil {
		return fmt.Errorf("seal webhook: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tenants(id, webhook_url, encryption_version, updated_at) VALUES($1,$2,$3,NOW())
		 ON CONFLICT(id) DO UPDATE SET webhook_url=EXCLUDED.webhook_url, encryption_version=EXCLUDED.encryption_version, updated_at=NOW()`,
		tenant, stored, version)
	return err
}

// Channels lists the monitored channels of tenant in insertion order.
func (s *Store) Channels(ctx context.Context, tenant string) ([]monitor.Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_id, feed_url FROM channels WHERE tenant_id=$1 ORDER BY created_at, channel_id`, tenant)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()
	var out []monitor.Channel
	for rows.Next() {
		var ch monitor.Channel
		if err := rows.Scan(&ch.ID, &ch.FeedURL); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// AddChannel registers or updates a monitored channel.
func (s *Store) AddChannel(ctx context.Context, tenant string, ch monitor.Channel) error {
	if ch.ID == "" || ch.FeedURL == "" {
		return errors.New("channel id and feed url are required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channels(tenant_id, channel_id, feed_url) VALUES($1,$2,$3)
		 ON CONFLICT(tenant_id, channel_id) DO UPDATE SET feed_url=EXCLUDED.feed_url`,
		tenant, ch.ID, ch.FeedURL)
	return err
}

// RemoveChannel deletes a channel and reports whether it existed.
func (s *Store) RemoveChannel(ctx context.Context, tenant, channelID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE tenant_id=$1 AND channel_id=$2`, tenant, channelID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Get reads the last persisted state for (channelID, videoID).
func (s *Store) Get(ctx context.Context, channelID, videoID string) (monitor.VideoState, bool, error) {
	var st monitor.VideoState
	err := s.db.QueryRowContext(ctx,
		`SELECT link, title, updated FROM video_states WHERE channel_id=$1 AND video_id=$2`,
		channelID, videoID).Scan(&st.Link, &st.Title, &st.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		return monitor.VideoState{}, false, nil
	}
	if err != nil {
		return monitor.VideoState{}, false, fmt.Errorf("%w: %w", monitor.ErrStateStore, err)
	}
	return st, true, nil
}

// Upsert overwrites the state for (channelID, videoID).
func (s *Store) Upsert(ctx context.Context, channelID, videoID string, st monitor.VideoState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO video_states(channel_id, video_id, link, title, updated, updated_at) VALUES($1,$2,$3,$4,$5,NOW())
		 ON CONFLICT(channel_id, video_id) DO UPDATE SET link=EXCLUDED.link, title=EXCLUDED.title, updated=EXCLUDED.updated, updated_at=NOW()`,
		channelID, videoID, st.Link, st.Title, st.Updated)
	if err != nil {
		return fmt.Errorf("%w: %w", monitor.ErrStateStore, err)
	}
	return nil
}

// SetKV stores a value in the kv table.
func (s *Store) SetKV(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv(key, value, updated_at) VALUES($1,$2,NOW())
		 ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`, key, value)
	return err
}

// GetKV reads a kv value; found is false when the key is absent.
func (s *Store) GetKV(ctx context.Context, key string) (value string, found bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=$1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// RecordRun stores r as the tenant's last run.
func (s *Store) RecordRun(ctx context.Context, r *monitor.Report) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode run report: %w", err)
	}
	return s.SetKV(ctx, runKey(r.Tenant), string(b))
}

// LastRun returns the tenant's last recorded run, or nil if none was recorded.
func (s *Store) LastRun(ctx context.Context, tenant string) (*monitor.Report, error) {
	v, found, err := s.GetKV(ctx, runKey(tenant))
	if err != nil || !found {
		return nil, err
	}
	var r monitor.Report
	if err := json.Unmarshal([]byte(v), &r); err != nil {
		return nil, fmt.Errorf("decode run report: %w", err)
	}
	return &r, nil
}
