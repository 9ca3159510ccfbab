package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/onnwee/stream-notifier/telemetry"
)

// DefaultBotName is the display name used for the service's own messages.
const DefaultBotName = "Youtube Stream Notifier"

// Engine evaluates a single channel. It holds no state between calls; the
// StateStore is the only memory.
type Engine struct {
	Feeds    FeedSource
	Metadata MetadataProvider
	State    StateStore
	Sink     Sink
	// BotName addresses failure notifications. Empty means DefaultBotName.
	BotName string
}

// ShouldNotify is the de-duplication rule: notify when the video is live and
// its updated token differs from the last one seen for the same video id, or
// when the video id has never been seen.
func ShouldNotify(prior VideoState, found bool, updated string, live bool) bool {
	return live && (!found || prior.Updated != updated)
}

// FetchFailureBody is the message body sent when a channel feed cannot be fetched.
func FetchFailureBody(url string) string { return "RSS fetch failed: " + url }

func (e *Engine) botName() string {
	if e.BotName != "" {
		return e.BotName
	}
	return DefaultBotName
}

// Evaluate runs one detection cycle for ch and delivers to destination when a
// notification is due. It never returns an error; failures are carried in
// the Result so callers can continue with the next channel.
func (e *Engine) Evaluate(ctx context.Context, destination string, ch Channel) (res Result) {
	ctx, span := telemetry.StartSpan(ctx, "monitor", "engine.evaluate", attribute.String("channel_id", ch.ID))
	defer span.End()
	defer func() { telemetry.SetSpanOutcome(span, string(res.Outcome)) }()
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "engine"), slog.String("channel_id", ch.ID))

	res = Result{ChannelID: ch.ID}

	entry, ok, err := e.Feeds.Latest(ctx, ch.FeedURL)
	if err != nil {
		log.Warn("feed fetch failed", slog.String("feed_url", ch.FeedURL), slog.Any("err", err))
		telemetry.IncFeedFetchFailures()
		e.deliver(ctx, log, destination, Message{DisplayName: e.botName(), Body: FetchFailureBody(ch.FeedURL)})
		res.Outcome = OutcomeFeedFailed
		return res
	}
	if !ok {
		log.Debug("feed has no entries", slog.String("feed_url", ch.FeedURL))
		res.Outcome = OutcomeEmptyFeed
		return res
	}
	res.VideoID = entry.VideoID
	log = log.With(slog.String("video_id", entry.VideoID))
	log.Debug("latest entry", slog.String("title", entry.Title), slog.String("updated", entry.Updated))

	prior, found, err := e.State.Get(ctx, ch.ID, entry.VideoID)
	if err != nil {
		return e.fail(span, log, res, fmt.Errorf("read video state: %w", wrapState(err)))
	}

	status, err := e.Metadata.VideoStatus(ctx, entry.VideoID)
	if err != nil {
		return e.fail(span, log, res, fmt.Errorf("video status: %w", err))
	}

	// The previous token was captured above; this write becomes the next
	// cycle's prior state regardless of the decision below.
	next := VideoState{Link: entry.Link, Title: entry.Title, Updated: entry.Updated}
	if err := e.State.Upsert(ctx, ch.ID, entry.VideoID, next); err != nil {
		return e.fail(span, log, res, fmt.Errorf("write video state: %w", wrapState(err)))
	}

	live := status.IsLive()
	if !ShouldNotify(prior, found, entry.Updated, live) {
		if live {
			res.Outcome = OutcomeUnchanged
		} else {
			res.Outcome = OutcomeNotLive
		}
		log.Debug("no notification due", slog.Bool("live", live), slog.Bool("seen", found), slog.String("outcome", string(res.Outcome)))
		telemetry.SetSpanSuccess(span)
		return res
	}

	info, err := e.Metadata.ChannelInfo(ctx, status.ChannelID)
	if err != nil {
		return e.fail(span, log, res, fmt.Errorf("channel info %s: %w", status.ChannelID, err))
	}
	msg := Message{DisplayName: info.Title, AvatarURL: info.AvatarURL, Body: entry.Link}
	log.Info("stream is live; notifying", slog.String("link", entry.Link), slog.Bool("first_sighting", !found))
	if e.deliver(ctx, log, destination, msg) {
		res.Outcome = OutcomeNotified
	} else {
		res.Outcome = OutcomeDeliveryFailed
	}
	telemetry.SetSpanSuccess(span)
	return res
}

// deliver sends msg and reports whether it was accepted. Failures are logged
// and never propagated.
func (e *Engine) deliver(ctx context.Context, log *slog.Logger, destination string, msg Message) bool {
	if err := e.Sink.Send(ctx, destination, msg); err != nil {
		telemetry.IncNotificationsFailed()
		log.Error("notification delivery failed", slog.Any("err", err))
		return false
	}
	telemetry.IncNotificationsSent()
	return true
}

func (e *Engine) fail(span trace.Span, log *slog.Logger, res Result, err error) Result {
	log.Error("channel cycle aborted", slog.String("class", Classify(err).String()), slog.Any("err", err))
	telemetry.RecordError(span, err)
	res.Outcome = OutcomeError
	res.Err = err
	res.Error = err.Error()
	return res
}

func wrapState(err error) error {
	if errors.Is(err, ErrStateStore) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStateStore, err)
}
