// Command stream-notifier polls YouTube channel feeds and posts a webhook
// notification the first time a live broadcast is seen for a feed version.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Builds the notification engine over the feed source, the YouTube Data
//     API, the state backend (Postgres or Redis) and the webhook sink.
//   - With -once, runs a single pass and exits non-zero if it could not start.
//   - Otherwise serves /healthz, /readyz, /status, /metrics and POST /run,
//     and keeps a stored YouTube OAuth token warm.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/stream-notifier/config"
	"github.com/onnwee/stream-notifier/crypto"
	"github.com/onnwee/stream-notifier/db"
	"github.com/onnwee/stream-notifier/feed"
	"github.com/onnwee/stream-notifier/kvstore"
	"github.com/onnwee/stream-notifier/monitor"
	"github.com/onnwee/stream-notifier/notify"
	"github.com/onnwee/stream-notifier/oauth"
	"github.com/onnwee/stream-notifier/server"
	"github.com/onnwee/stream-notifier/telemetry"
	"github.com/onnwee/stream-notifier/youtubeapi"
)

var version = "dev"

func main() {
	once := flag.Bool("once", false, "run a single notification pass and exit")
	flag.Parse()

	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()
	setupLogging()

	if err := run(*once); err != nil {
		slog.Error("stream-notifier exited with error", slog.Any("err", err))
		os.Exit(1)
	}
}

// setupLogging applies LOG_LEVEL (debug|info|warn|error) and LOG_FORMAT (text|json).
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT"))
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))
}

func run(once bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing(telemetry.TracingConfig{
		Endpoint:       cfg.OTLPEndpoint,
		ServiceName:    "stream-notifier",
		ServiceVersion: version,
		Tenant:         cfg.TenantID,
		SampleRatio:    cfg.TraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("tracing init: %w", err)
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, falling back to embedded schema", slog.Any("err", err), slog.String("component", "db_migrate"))
		if err := db.Migrate(ctx, database); err != nil {
			return fmt.Errorf("migrate db: %w", err)
		}
	}

	// A nil *AESGCM must not reach the Sealer interface.
	var sealer crypto.Sealer
	if cfg.EncryptionKey != "" {
		aes, err := crypto.NewAESGCM(cfg.EncryptionKey)
		if err != nil {
			return fmt.Errorf("encryption key: %w", err)
		}
		sealer = aes
	} else {
		slog.Warn("ENCRYPTION_KEY not set - webhook URLs and OAuth tokens are stored in plaintext")
	}
	store := db.New(database, sealer)

	var (
		state      monitor.StateStore = store
		statePing  server.Pinger
		redisState *kvstore.Redis
	)
	if cfg.StateBackend == config.BackendRedis {
		redisState, err = kvstore.NewWithURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer func() { _ = redisState.Close() }()
		state, statePing = redisState, redisState
	}
	slog.Info("state backend selected", slog.String("backend", cfg.StateBackend))

	yt, err := youtubeapi.New(ctx, cfg, store)
	if err != nil {
		return fmt.Errorf("youtube client: %w", err)
	}
	orch := monitor.NewOrchestrator(store, newEngine(cfg, yt, state), store)

	if once {
		report, err := orch.Run(ctx, cfg.TenantID)
		if err != nil {
			return err
		}
		slog.Info("pass complete",
			slog.String("run_id", report.RunID),
			slog.Int("channels", len(report.Results)),
			slog.Int("notified", report.Count(monitor.OutcomeNotified)))
		return nil
	}

	deps := server.Deps{
		Tenant:       cfg.TenantID,
		DB:           store,
		State:        statePing,
		Runner:       orch,
		History:      store,
		Destinations: store,
	}
	if cfg.ValidateOAuthReady() == nil {
		auth := youtubeapi.NewAuth(cfg, store)
		deps.OAuth = auth
		if cfg.YouTubeAPIKey == "" {
			oauth.StartRefresher(ctx, youtubeapi.Provider, 5*time.Minute, auth)
		}
	}

	if err := server.Start(ctx, cfg.HTTPAddr, server.NewMux(ctx, deps)); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("shutdown complete")
	return nil
}

// newEngine assembles the engine over the feed source and webhook sink
// configured in cfg.
func newEngine(cfg *config.Config, meta monitor.MetadataProvider, state monitor.StateStore) *monitor.Engine {
	feeds := feed.New(&http.Client{Timeout: cfg.FeedTimeout}, cfg.FeedUserAgent).
		WithLimiter(feed.NewHostLimiter(cfg.FeedInterval))
	return &monitor.Engine{
		Feeds:    feeds,
		Metadata: meta,
		State:    state,
		Sink:     notify.NewWebhook(nil, cfg.WebhookTimeout),
		BotName:  cfg.BotName,
	}
}
