package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/onnwee/stream-notifier/crypto"
)

// ResealReport counts plaintext secrets found and sealed by ResealSecrets.
type ResealReport struct {
	Webhooks int `json:"webhooks"`
	Tokens   int `json:"tokens"`
	Errors   int `json:"errors"`
}

type plainWebhook struct{ tenant, url string }

type plainToken struct{ provider, access, refresh string }

// ResealSecrets seals every plaintext (encryption_version 0) webhook URL and
// OAuth token with the store's key. With dryRun nothing is written.
// Rows are updated one transaction at a time and only while still
// plaintext, so a concurrent writer is never overwritten.
func (s *Store) ResealSecrets(ctx context.Context, dryRun bool) (ResealReport, error) {
	var rep ResealReport
	if s.sealer == nil {
		return rep, errors.New("ENCRYPTION_KEY is required to seal secrets")
	}

	webhooks, err := s.plaintextWebhooks(ctx)
	if err != nil {
		return rep, err
	}
	tokens, err := s.plaintextTokens(ctx)
	if err != nil {
		return rep, err
	}
	slog.Info("found plaintext secrets", slog.Int("webhooks", len(webhooks)), slog.Int("tokens", len(tokens)), slog.Bool("dry_run", dryRun))

	for _, w := range webhooks {
		log := slog.With(slog.String("tenant", w.tenant))
		if dryRun {
			log.Info("would seal webhook (dry-run)")
			rep.Webhooks++
			continue
		}
		if err := s.resealWebhook(ctx, w); err != nil {
			log.Error("failed to seal webhook", slog.Any("err", err))
			rep.Errors++
			continue
		}
		rep.Webhooks++
	}
	for _, t := range tokens {
		log := slog.With(slog.String("provider", t.provider))
		if dryRun {
			log.Info("would seal token (dry-run)")
			rep.Tokens++
			continue
		}
		if err := s.resealToken(ctx, t); err != nil {
			log.Error("failed to seal token", slog.Any("err", err))
			rep.Errors++
			continue
		}
		rep.Tokens++
	}

	if rep.Errors > 0 {
		return rep, fmt.Errorf("reseal completed with %d errors", rep.Errors)
	}
	return rep, nil
}

func (s *Store) plaintextWebhooks(ctx context.Context) ([]plainWebhook, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, webhook_url FROM tenants WHERE encryption_version = 0 AND webhook_url <> '' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query plaintext webhooks: %w", err)
	}
	defer rows.Close()
	var out []plainWebhook
	for rows.Next() {
		var w plainWebhook
		if err := rows.Scan(&w.tenant, &w.url); err != nil {
			return nil, fmt.Errorf("scan webhook row: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) plaintextTokens(ctx context.Context) ([]plainToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider, COALESCE(access_token, ''), COALESCE(refresh_token, '')
		 FROM oauth_tokens WHERE COALESCE(encryption_version, 0) = 0 ORDER BY provider`)
	if err != nil {
		return nil, fmt.Errorf("query plaintext tokens: %w", err)
	}
	defer rows.Close()
	var out []plainToken
	for rows.Next() {
		var t plainToken
		if err := rows.Scan(&t.provider, &t.access, &t.refresh); err != nil {
			return nil, fmt.Errorf("scan token row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) resealWebhook(ctx context.Context, w plainWebhook) error {
	sealed, version, err := crypto.SealField(s.sealer, w.url, webhookLabel(w.tenant))
	if err != nil {
		return err
	}
	return s.updateOne(ctx,
		`UPDATE tenants SET webhook_url=$1, encryption_version=$2, updated_at=NOW()
		 WHERE id=$3 AND encryption_version = 0`,
		sealed, version, w.tenant)
}

func (s *Store) resealToken(ctx context.Context, t plainToken) error {
	access, _, err := crypto.SealField(s.sealer, t.access, tokenLabel(t.provider, "access"))
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	refresh, _, err := crypto.SealField(s.sealer, t.refresh, tokenLabel(t.provider, "refresh"))
	if err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}
	return s.updateOne(ctx,
		`UPDATE oauth_tokens SET access_token=$1, refresh_token=$2, encryption_version=$3, updated_at=NOW()
		 WHERE provider=$4 AND COALESCE(encryption_version, 0) = 0`,
		access, refresh, crypto.VersionAESGCM, t.provider)
}

// updateOne runs query in a transaction and requires exactly one affected row.
func (s *Store) updateOne(ctx context.Context, query string, args ...any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is best effort

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("expected 1 row updated, got %d (row may have been modified concurrently)", n)
	}
	return tx.Commit()
}

// EncryptionStatus counts stored secrets per encryption version.
func (s *Store) EncryptionStatus(ctx context.Context) (map[string]map[int]int, error) {
	out := map[string]map[int]int{"tenants": {}, "oauth_tokens": {}}
	for table, q := range map[string]string{
		"tenants":      `SELECT encryption_version, COUNT(*) FROM tenants GROUP BY encryption_version`,
		"oauth_tokens": `SELECT COALESCE(encryption_version, 0), COUNT(*) FROM oauth_tokens GROUP BY 1`,
	} {
		if err := s.countVersions(ctx, q, out[table]); err != nil {
			return nil, fmt.Errorf("%s: %w", table, err)
		}
	}
	return out, nil
}

func (s *Store) countVersions(ctx context.Context, query string, into map[int]int) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var version, count int
		if err := rows.Scan(&version, &count); err != nil {
			return err
		}
		into[version] = count
	}
	return rows.Err()
}

