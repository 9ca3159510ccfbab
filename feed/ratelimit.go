package feed

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter spaces requests to the same feed host by a minimum interval.
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	interval time.Duration
}

// NewHostLimiter returns nil for a non-positive interval, which disables limiting.
func NewHostLimiter(interval time.Duration) *HostLimiter {
	if interval <= 0 {
		return nil
	}
	return &HostLimiter{limiters: make(map[string]*rate.Limiter), interval: interval}
}

// Wait blocks until a request to rawURL's host is allowed or ctx is done.
func (h *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	if h == nil {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return &url.Error{Op: "parse", URL: rawURL, Err: errors.New("missing host in URL")}
	}
	return h.limiter(u.Host).Wait(ctx)
}

func (h *HostLimiter) limiter(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(h.interval), 1)
		h.limiters[host] = l
	}
	return l
}
