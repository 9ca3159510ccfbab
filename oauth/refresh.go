// Package oauth keeps a stored OAuth token warm in long-running mode. It
// performs jittered checks so the token is refreshed ahead of a run instead
// of during one.
package oauth

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/oauth2"
)

// TokenSource returns a valid token, refreshing and persisting it as needed.
// youtubeapi.Auth satisfies it.
type TokenSource interface {
	Token(ctx context.Context) (*oauth2.Token, error)
}

// StartRefresher launches a goroutine that calls src.Token roughly every
// interval (±20% jitter) until ctx is done. The returned channel is closed
// when the goroutine exits.
func StartRefresher(ctx context.Context, provider string, interval time.Duration, src TokenSource) <-chan struct{} {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	done := make(chan struct{})
	log := slog.Default().With(slog.String("component", "oauth_refresher"), slog.String("provider", provider))
	go func() {
		defer close(done)
		var last string
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(jittered(interval)):
			}
			ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
			tok, err := src.Token(ctx2)
			cancel()
			if err != nil {
				log.Warn("token refresh failed", slog.Any("err", err))
				continue
			}
			if last != "" && tok.AccessToken != last {
				log.Info("token refreshed", slog.Time("expiry", tok.Expiry))
			}
			last = tok.AccessToken
		}
	}()
	return done
}

func jittered(interval time.Duration) time.Duration {
	r := int64(interval / 5)
	if r <= 0 {
		return interval
	}
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	return interval + time.Duration(rand.Int63n(r*2)-r)
}
