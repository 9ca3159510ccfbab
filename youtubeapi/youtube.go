// Package youtubeapi resolves live-broadcast status and channel identity via
// the YouTube Data API v3. It authenticates with an API key, or with an OAuth
// token persisted through a TokenStore and refreshed on demand.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/stream-notifier/config"
	"github.com/onnwee/stream-notifier/monitor"
)

// Client implements monitor.MetadataProvider.
type Client struct {
	svc *yt.Service
}

// New picks the credential from cfg: YOUTUBE_API_KEY when set, otherwise
// the stored OAuth token. Extra options are appended, which lets tests point
// the client at a local endpoint.
func New(ctx context.Context, cfg *config.Config, store TokenStore, opts ...option.ClientOption) (*Client, error) {
	var base []option.ClientOption
	switch {
	case cfg.YouTubeAPIKey != "":
		base = append(base, option.WithAPIKey(cfg.YouTubeAPIKey))
	case store != nil:
		hc := oauth2.NewClient(ctx, NewAuth(cfg, store).TokenSource(ctx))
		base = append(base, option.WithHTTPClient(hc))
	default:
		return nil, errors.New("youtube: no api key and no token store")
	}
	svc, err := yt.NewService(ctx, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// NewFromService wraps an existing service.
func NewFromService(svc *yt.Service) *Client { return &Client{svc: svc} }

// VideoStatus reports whether the broadcast has actually started or ended.
// Videos without live streaming details report neither.
func (c *Client) VideoStatus(ctx context.Context, videoID string) (monitor.LiveStatus, error) {
	resp, err := c.svc.Videos.List([]string{"id", "snippet", "liveStreamingDetails"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return monitor.LiveStatus{}, fmt.Errorf("videos.list %s: %w", videoID, notFound(err))
	}
	if len(resp.Items) == 0 {
		return monitor.LiveStatus{}, fmt.Errorf("video %s: %w", videoID, monitor.ErrMetadataNotFound)
	}
	v := resp.Items[0]
	var st monitor.LiveStatus
	if v.Snippet != nil {
		st.ChannelID = v.Snippet.ChannelId
		st.ChannelTitle = v.Snippet.ChannelTitle
	}
	if d := v.LiveStreamingDetails; d != nil {
		st.HasActualStart = d.ActualStartTime != ""
		st.HasActualEnd = d.ActualEndTime != ""
	}
	return st, nil
}

// ChannelInfo returns the channel title and its default thumbnail URL.
func (c *Client) ChannelInfo(ctx context.Context, channelID string) (monitor.ChannelInfo, error) {
	resp, err := c.svc.Channels.List([]string{"snippet"}).Id(channelID).Context(ctx).Do()
	if err != nil {
		return monitor.ChannelInfo{}, fmt.Errorf("channels.list %s: %w", channelID, notFound(err))
	}
	if len(resp.Items) == 0 || resp.Items[0].Snippet == nil {
		return monitor.ChannelInfo{}, fmt.Errorf("channel %s: %w", channelID, monitor.ErrMetadataNotFound)
	}
	sn := resp.Items[0].Snippet
	info := monitor.ChannelInfo{Title: sn.Title}
	if sn.Thumbnails != nil && sn.Thumbnails.Default != nil {
		info.AvatarURL = sn.Thumbnails.Default.Url
	}
	return info, nil
}

// notFound maps an API 404 onto monitor.ErrMetadataNotFound.
func notFound(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %w", monitor.ErrMetadataNotFound, err)
	}
	return err
}
