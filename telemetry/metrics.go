// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	Runs                prometheus.Counter
	NotificationsSent   prometheus.Counter
	NotificationsFailed prometheus.Counter
	FeedFetchFailures   prometheus.Counter
	Evaluations         *prometheus.CounterVec

	// Histograms (seconds)
	RunDuration prometheus.Observer
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		Runs = promauto.NewCounter(prometheus.CounterOpts{Name: "notifier_runs_total", Help: "Number of orchestration passes started"})
		NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{Name: "notifier_notifications_sent_total", Help: "Notifications accepted by the destination"})
		NotificationsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "notifier_notifications_failed_total", Help: "Notifications rejected by or undeliverable to the destination"})
		FeedFetchFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "notifier_feed_fetch_failures_total", Help: "Channel feeds that could not be fetched"})
		Evaluations = promauto.NewCounterVec(prometheus.CounterOpts{Name: "notifier_evaluations_total", Help: "Channel evaluations by outcome"}, []string{"outcome"})
		RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "notifier_run_duration_seconds", Help: "Orchestration pass duration seconds", Buckets: prometheus.DefBuckets})
	})
}

// IncRuns counts a started pass.
func IncRuns() {
	if Runs != nil {
		Runs.Inc()
	}
}

// IncNotificationsSent counts a delivered notification.
func IncNotificationsSent() {
	if NotificationsSent != nil {
		NotificationsSent.Inc()
	}
}

// IncNotificationsFailed counts an undelivered notification.
func IncNotificationsFailed() {
	if NotificationsFailed != nil {
		NotificationsFailed.Inc()
	}
}

// IncFeedFetchFailures counts a feed that could not be fetched.
func IncFeedFetchFailures() {
	if FeedFetchFailures != nil {
		FeedFetchFailures.Inc()
	}
}

// RecordEvaluation counts one channel evaluation under its outcome label.
func RecordEvaluation(outcome string) {
	if Evaluations != nil {
		Evaluations.WithLabelValues(outcome).Inc()
	}
}

// ObserveRunDuration records the duration of a pass.
func ObserveRunDuration(d time.Duration) {
	if RunDuration != nil {
		RunDuration.Observe(d.Seconds())
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
