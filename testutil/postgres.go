package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/onnwee/stream-notifier/db"
)

var tables = []string{"tenants", "channels", "video_states", "oauth_tokens", "kv"}

// SetupTestDB connects to TEST_PG_DSN, applies the schema and empties every
// notifier table. It skips the test when TEST_PG_DSN is not set.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := db.Connect(dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	ctx := context.Background()
	if err := db.Migrate(ctx, database); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	for _, table := range tables {
		if _, err := database.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("failed to clean %s: %v", table, err)
		}
	}
	return database
}
