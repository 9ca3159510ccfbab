package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/onnwee/stream-notifier/crypto"
)

func tokenLabel(provider, field string) string { return "oauth_tokens:" + provider + ":" + field }

// SaveToken stores or replaces the OAuth token of provider. Access and
// refresh tokens are sealed when a key is configured (encryption_version 1).
func (s *Store) SaveToken(ctx context.Context, provider string, tok *oauth2.Token, scope string) error {
	if tok == nil {
		return errors.New("token is nil")
	}
	access, version, err := crypto.SealField(s.sealer, tok.AccessToken, tokenLabel(provider, "access"))
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	refresh, refreshVersion, err := crypto.SealField(s.sealer, tok.RefreshToken, tokenLabel(provider, "refresh"))
	if err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}
	// empty fields are never sealed
	if refreshVersion > version {
		version = refreshVersion
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO oauth_tokens(provider, access_token, refresh_token, expires_at, scope, encryption_version, updated_at)
		 VALUES($1,$2,$3,$4,$5,$6,NOW())
		 ON CONFLICT(provider) DO UPDATE SET
		   access_token=EXCLUDED.access_token,
		   refresh_token=EXCLUDED.refresh_token,
		   expires_at=EXCLUDED.expires_at,
		   scope=EXCLUDED.scope,
		   encryption_version=EXCLUDED.encryption_version,
		   updated_at=NOW()`,
		provider, access, refresh, tok.Expiry, scope, version)
	return err
}

// LoadToken returns the stored token of provider, or nil when none is stored.
func (s *Store) LoadToken(ctx context.Context, provider string) (*oauth2.Token, error) {
	var access, refresh sql.NullString
	var expiry sql.NullTime
	var version int
	err := s.db.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, expires_at, COALESCE(encryption_version, 0)
		 FROM oauth_tokens WHERE provider=$1`, provider).Scan(&access, &refresh, &expiry, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tok := &oauth2.Token{TokenType: "Bearer"}
	if tok.AccessToken, err = crypto.OpenField(s.sealer, access.String, version, tokenLabel(provider, "access")); err != nil {
		return nil, fmt.Errorf("decrypt access token: %w", err)
	}
	if tok.RefreshToken, err = crypto.OpenField(s.sealer, refresh.String, version, tokenLabel(provider, "refresh")); err != nil {
		return nil, fmt.Errorf("decrypt refresh token: %w", err)
	}
	if expiry.Valid {
		tok.Expiry = expiry.Time
	}
	return tok, nil
}
