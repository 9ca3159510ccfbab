package cmd

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/onnwee/stream-notifier/db"
)

// openDB is replaced in tests.
var openDB = func() (*sql.DB, error) { return db.Connect(cfg.DBDsn) }

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage versioned schema migrations",
	Long: `Apply, roll back or inspect the versioned migrations embedded in the binary.

Example usage:
  notifierctl migrate up        # Apply all pending migrations
  notifierctl migrate version   # Show the current schema version
  notifierctl migrate down      # Roll back one migration`,
}

func migrateAction(fn func(*sql.DB) (string, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		database, err := openDB()
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer database.Close()
		msg, err := fn(database)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	}
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: migrateAction(func(database *sql.DB) (string, error) {
		if err := db.RunMigrations(database); err != nil {
			return "", err
		}
		return "migrations applied", nil
	}),
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	Args:  cobra.NoArgs,
	RunE: migrateAction(func(database *sql.DB) (string, error) {
		if err := db.MigrateDown(database); err != nil {
			return "", err
		}
		return "rolled back one migration", nil
	}),
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	Args:  cobra.NoArgs,
	RunE: migrateAction(func(database *sql.DB) (string, error) {
		st, err := db.Status(database)
		if err != nil {
			return "", err
		}
		msg := fmt.Sprintf("version %d of %d (dirty: %t)", st.Version, st.Latest, st.Dirty)
		if st.Pending() {
			msg += ", run 'notifierctl migrate up'"
		}
		return msg, nil
	}),
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
}
