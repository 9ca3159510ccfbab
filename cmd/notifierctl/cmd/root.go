// Package cmd contains all CLI commands for notifierctl
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/onnwee/stream-notifier/config"
	"github.com/onnwee/stream-notifier/crypto"
	"github.com/onnwee/stream-notifier/db"
	"github.com/onnwee/stream-notifier/monitor"
)

var (
	tenant  string
	verbose bool
	cfg     *config.Config
	logger  *slog.Logger
	version = "dev"
)

// adminStore is the slice of db.Store the commands use.
type adminStore interface {
	SetDestination(ctx context.Context, tenant, webhookURL string) error
	AddChannel(ctx context.Context, tenant string, ch monitor.Channel) error
	RemoveChannel(ctx context.Context, tenant, channelID string) (bool, error)
	Channels(ctx context.Context, tenant string) ([]monitor.Channel, error)
	SaveToken(ctx context.Context, provider string, tok *oauth2.Token, scope string) error
	LoadToken(ctx context.Context, provider string) (*oauth2.Token, error)
	ResealSecrets(ctx context.Context, dryRun bool) (db.ResealReport, error)
	EncryptionStatus(ctx context.Context) (map[string]map[int]int, error)
}

// openStore connects to Postgres, applies migrations and returns the store.
// Tests replace it.
var openStore = func(ctx context.Context, c *config.Config) (adminStore, func(), error) {
	database, err := db.Connect(c.DBDsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.RunMigrations(database); err != nil {
		logger.Debug("versioned migrations failed, using embedded schema", slog.Any("err", err))
		if err := db.Migrate(ctx, database); err != nil {
			_ = database.Close()
			return nil, nil, fmt.Errorf("migrate db: %w", err)
		}
	}
	var sealer crypto.Sealer
	if c.EncryptionKey != "" {
		aes, err := crypto.NewAESGCM(c.EncryptionKey)
		if err != nil {
			_ = database.Close()
			return nil, nil, fmt.Errorf("encryption key: %w", err)
		}
		sealer = aes
	}
	return db.New(database, sealer), func() { _ = database.Close() }, nil
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "notifierctl",
	Short: "Stream notifier administration CLI",
	Long: `notifierctl manages what the stream notifier watches and where it posts.

Example usage:
  notifierctl channel add UCxxxx              # Watch a channel via its public feed
  notifierctl channel ls                      # List watched channels
  notifierctl webhook set https://discord...  # Set the tenant webhook
  notifierctl youtube auth-url                # Print the OAuth consent URL
  notifierctl migrate up                      # Apply schema migrations`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string for the CLI
func SetVersion(v string) {
	version = v
}

func init() {
	rootCmd.PersistentFlags().StringVar(&tenant, "tenant", "", "tenant to operate on (default TENANT_ID or youtube)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// initConfig loads .env and the environment into cfg.
func initConfig() error {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	_ = godotenv.Load()
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if tenant == "" {
		tenant = cfg.TenantID
	}
	logger.Debug("configuration loaded", "tenant", tenant, "state_backend", cfg.StateBackend)
	return nil
}

// withStore opens the store for the duration of fn.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, s adminStore) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, closeFn, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, s)
}
