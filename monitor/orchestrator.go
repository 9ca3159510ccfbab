package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/stream-notifier/telemetry"
)

// Evaluator is satisfied by *Engine.
type Evaluator interface {
	Evaluate(ctx context.Context, destination string, ch Channel) Result
}

// Orchestrator runs one pass over all channels of a tenant.
type Orchestrator struct {
	Config   ConfigStore
	Engine   Evaluator
	Recorder RunRecorder // optional

	mu      sync.Mutex
	running map[string]bool
}

// NewOrchestrator wires an orchestrator. recorder may be nil.
func NewOrchestrator(cfg ConfigStore, engine Evaluator, recorder RunRecorder) *Orchestrator {
	return &Orchestrator{Config: cfg, Engine: engine, Recorder: recorder}
}

func (o *Orchestrator) acquire(tenant string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running == nil {
		o.running = map[string]bool{}
	}
	if o.running[tenant] {
		return false
	}
	o.running[tenant] = true
	return true
}

func (o *Orchestrator) release(tenant string) {
	o.mu.Lock()
	delete(o.running, tenant)
	o.mu.Unlock()
}

// Running reports whether a pass for tenant is in progress in this process.
func (o *Orchestrator) Running(tenant string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running[tenant]
}

// Run resolves the tenant destination once and evaluates every channel in
// order. Per-channel failures are collected in the report; an error is
// returned only when the pass could not start.
func (o *Orchestrator) Run(ctx context.Context, tenant string) (*Report, error) {
	if !o.acquire(tenant) {
		return nil, fmt.Errorf("tenant %q: %w", tenant, ErrRunInProgress)
	}
	defer o.release(tenant)

	report := &Report{RunID: uuid.New().String(), Tenant: tenant, StartedAt: time.Now().UTC()}
	// A caller's correlation id (X-Correlation-ID on POST /run) wins so the
	// pass can be joined to the request that started it.
	if telemetry.GetCorrelation(ctx) == "" {
		ctx = telemetry.WithCorrelation(ctx, report.RunID)
	}
	ctx, span := telemetry.StartSpan(ctx, "monitor", "orchestrator.run", attribute.String("tenant", tenant))
	defer span.End()
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "orchestrator"), slog.String("tenant", tenant), slog.String("run_id", report.RunID))

	telemetry.IncRuns()
	start := time.Now()
	defer func() { telemetry.ObserveRunDuration(time.Since(start)) }()

	destination, err := o.Config.Destination(ctx, tenant)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("resolve destination: %w", err)
	}
	channels, err := o.Config.Channels(ctx, tenant)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("list channels: %w", err)
	}
	log.Info("run started", slog.Int("channel_count", len(channels)))

	report.Results = make([]Result, 0, len(channels))
	for _, ch := range channels {
		if ctx.Err() != nil {
			log.Warn("run cancelled", slog.Any("err", ctx.Err()), slog.Int("evaluated", len(report.Results)))
			break
		}
		res := o.Engine.Evaluate(ctx, destination, ch)
		telemetry.RecordEvaluation(string(res.Outcome))
		report.Results = append(report.Results, res)
	}
	report.FinishedAt = time.Now().UTC()

	log.Info("run finished",
		slog.Int("notified", report.Count(OutcomeNotified)),
		slog.Int("feed_failed", report.Count(OutcomeFeedFailed)),
		slog.Int("errors", report.Count(OutcomeError)),
		slog.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))

	if o.Recorder != nil {
		if err := o.Recorder.RecordRun(ctx, report); err != nil {
			log.Warn("failed to record run", slog.Any("err", err))
		}
	}
	telemetry.SetSpanSuccess(span)
	return report, nil
}
