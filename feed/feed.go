// Package feed fetches a monitored channel's Atom feed and exposes its most
// recent entry.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/onnwee/stream-notifier/monitor"
)

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "stream-notifier/1.0"

// Source implements monitor.FeedSource on top of gofeed.
type Source struct {
	client    *http.Client
	userAgent string
	limiter   *HostLimiter
}

// New returns a Source. A nil client gets a client with a 15s timeout.
func New(client *http.Client, userAgent string) *Source {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Source{client: client, userAgent: userAgent}
}

// WithLimiter spaces requests per feed host. A nil limiter disables limiting.
func (s *Source) WithLimiter(l *HostLimiter) *Source {
	s.limiter = l
	return s
}

// Latest returns the first entry of the feed at feedURL. ok is false when the
// feed parsed but carries no entries. Transport errors, non-2xx responses,
// unparseable bodies and a first entry with no video id wrap
// monitor.ErrFeedFetch.
func (s *Source) Latest(ctx context.Context, feedURL string) (monitor.Entry, bool, error) {
	if err := s.limiter.Wait(ctx, feedURL); err != nil {
		return monitor.Entry{}, false, fmt.Errorf("%w: %s: %w", monitor.ErrFeedFetch, feedURL, err)
	}

	fp := gofeed.NewParser()
	fp.Client = s.client
	fp.UserAgent = s.userAgent

	f, err := fp.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) {
			return monitor.Entry{}, false, fmt.Errorf("%w: %s: status %d", monitor.ErrFeedFetch, feedURL, httpErr.StatusCode)
		}
		return monitor.Entry{}, false, fmt.Errorf("%w: %s: %w", monitor.ErrFeedFetch, feedURL, err)
	}
	if len(f.Items) == 0 || f.Items[0] == nil {
		return monitor.Entry{}, false, nil
	}
	item := f.Items[0]
	entry := monitor.Entry{
		Link:    item.Link,
		Title:   item.Title,
		Updated: item.Updated,
		VideoID: VideoID(item),
	}
	if entry.Updated == "" {
		entry.Updated = item.Published
	}
	if entry.VideoID == "" {
		return monitor.Entry{}, false, fmt.Errorf("%w: %s: entry %q has no video id", monitor.ErrFeedFetch, feedURL, item.Link)
	}
	return entry, true, nil
}

// VideoID returns the yt:videoId extension of item, or the v query parameter
// of its watch link.
func VideoID(item *gofeed.Item) string {
	if ns, ok := item.Extensions["yt"]; ok {
		if vals := ns["videoId"]; len(vals) > 0 && vals[0].Value != "" {
			return vals[0].Value
		}
	}
	u, err := url.Parse(item.Link)
	if err != nil {
		return ""
	}
	return u.Query().Get("v")
}

// ChannelURL is the public Atom feed of a YouTube channel.
func ChannelURL(channelID string) string {
	return "https://www.youtube.com/feeds/videos.xml?channel_id=" + url.QueryEscape(channelID)
}
