package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersInitialized(t *testing.T) {
	Init()

	if Runs == nil || NotificationsSent == nil || NotificationsFailed == nil || FeedFetchFailures == nil {
		t.Fatal("counters not initialized")
	}
	if Evaluations == nil {
		t.Fatal("evaluations counter vec not initialized")
	}
	if RunDuration == nil {
		t.Fatal("run duration histogram not initialized")
	}
}

func TestInitIdempotent(t *testing.T) {
	Init()
	first := Runs
	Init()
	if Runs != first {
		t.Error("Init() re-registered counters")
	}
}

func TestIncrementHelpers(t *testing.T) {
	Init()

	before := testutil.ToFloat64(NotificationsSent)
	IncNotificationsSent()
	IncNotificationsSent()
	if got := testutil.ToFloat64(NotificationsSent) - before; got != 2 {
		t.Errorf("notifications sent delta = %v, want 2", got)
	}

	before = testutil.ToFloat64(FeedFetchFailures)
	IncFeedFetchFailures()
	if got := testutil.ToFloat64(FeedFetchFailures) - before; got != 1 {
		t.Errorf("feed fetch failures delta = %v, want 1", got)
	}
}

func TestRecordEvaluationByOutcome(t *testing.T) {
	Init()

	tests := []struct {
		outcome string
		times   int
	}{
		{"notified", 2},
		{"unchanged", 3},
		{"error", 1},
	}
	for _, tt := range tests {
		t.Run(tt.outcome, func(t *testing.T) {
			before := testutil.ToFloat64(Evaluations.WithLabelValues(tt.outcome))
			for i := 0; i < tt.times; i++ {
				RecordEvaluation(tt.outcome)
			}
			got := testutil.ToFloat64(Evaluations.WithLabelValues(tt.outcome)) - before
			if got != float64(tt.times) {
				t.Errorf("evaluations{outcome=%q} delta = %v, want %d", tt.outcome, got, tt.times)
			}
		})
	}
}

func TestObserveRunDuration(t *testing.T) {
	Init()
	// Should not panic
	ObserveRunDuration(250 * time.Millisecond)
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("GetCorrelation(empty) = %q, want empty", got)
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("GetCorrelation = %q, want abc-123", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(TracingConfig{ServiceName: "stream-notifier", ServiceVersion: "test"})
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}
	shutdown()
	if IsTracingEnabled() {
		t.Error("tracing should be disabled without endpoint")
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{0, "AlwaysOffSampler"},
		{-0.5, "AlwaysOffSampler"},
		{1, "AlwaysOnSampler"},
		{2, "AlwaysOnSampler"},
		{0.25, "ParentBased{root:TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		if got := sampler(tt.ratio).Description(); !strings.HasPrefix(got, tt.want) {
			t.Errorf("sampler(%v) = %q, want prefix %q", tt.ratio, got, tt.want)
		}
	}
}
