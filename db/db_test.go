package db

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/onnwee/stream-notifier/crypto"
	"github.com/onnwee/stream-notifier/monitor"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set; skipping postgres test")
	}
	db, err := Connect(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, table := range []string{"tenants", "channels", "video_states", "oauth_tokens", "kv"} {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			t.Fatalf("clean %s: %v", table, err)
		}
	}
	return db
}

func testSealer(t *testing.T) crypto.Sealer {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	s, err := crypto.NewAESGCM(base64.StdEncoding.EncodeToString(key))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestMigrateIdempotent(t *testing.T) {
	db := openTestDB(t)
	for i := 0; i < 2; i++ {
		if err := Migrate(context.Background(), db); err != nil {
			t.Fatalf("Migrate() pass %d error = %v", i+1, err)
		}
	}
}

func TestVideoStateRoundTrip(t *testing.T) {
	s := New(openTestDB(t), nil)
	ctx := context.Background()

	if _, found, err := s.Get(ctx, "chan-1", "V1"); err != nil || found {
		t.Fatalf("Get() on empty = %v, %v", found, err)
	}
	want := monitor.VideoState{Link: "L", Title: "T", Updated: "2024-01-01T00:00:00Z"}
	if err := s.Upsert(ctx, "chan-1", "V1", want); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	got, found, err := s.Get(ctx, "chan-1", "V1")
	if err != nil || !found || got != want {
		t.Fatalf("Get() = %+v, %v, %v", got, found, err)
	}
	want.Updated = "2024-01-02T00:00:00Z"
	if err := s.Upsert(ctx, "chan-1", "V1", want); err != nil {
		t.Fatal(err)
	}
	if got, _, _ := s.Get(ctx, "chan-1", "V1"); got.Updated != want.Updated {
		t.Errorf("after overwrite updated = %q", got.Updated)
	}
}

func TestDestinationSealedAtRest(t *testing.T) {
	db := openTestDB(t)
	s := New(db, testSealer(t))
	ctx := context.Background()

	if _, err := s.Destination(ctx, "youtube"); !errors.Is(err, monitor.ErrNotConfigured) {
		t.Fatalf("Destination() before set err = %v, want ErrNotConfigured", err)
	}
	url := "https://discord.com/api/webhooks/1/secret"
	if err := s.SetDestination(ctx, "youtube", url); err != nil {
		t.Fatalf("SetDestination() error = %v", err)
	}
	got, err := s.Destination(ctx, "youtube")
	if err != nil || got != url {
		t.Fatalf("Destination() = %q, %v", got, err)
	}

	var raw string
	var version int
	if err := db.QueryRow(`SELECT webhook_url, encryption_version FROM tenants WHERE id='youtube'`).Scan(&raw, &version); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(raw, "secret") || version != crypto.VersionAESGCM {
		t.Errorf("webhook stored as %q v%d, want sealed", raw, version)
	}

	// plaintext store cannot read sealed rows
	if _, err := New(db, nil).Destination(ctx, "youtube"); err == nil {
		t.Error("Destination() without key succeeded on sealed row")
	}
}

func TestChannelsCRUD(t *testing.T) {
	s := New(openTestDB(t), nil)
	ctx := context.Background()

	for _, ch := range []monitor.Channel{{ID: "a", FeedURL: "https://f/a"}, {ID: "b", FeedURL: "https://f/b"}} {
		if err := s.AddChannel(ctx, "youtube", ch); err != nil {
			t.Fatalf("AddChannel(%s) error = %v", ch.ID, err)
		}
	}
	if err := s.AddChannel(ctx, "other", monitor.Channel{ID: "z", FeedURL: "https://f/z"}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddChannel(ctx, "youtube", monitor.Channel{ID: "a"}); err == nil {
		t.Error("AddChannel() without feed url succeeded")
	}

	chans, err := s.Channels(ctx, "youtube")
	if err != nil {
		t.Fatalf("Channels() error = %v", err)
	}
	if len(chans) != 2 || chans[0].ID != "a" || chans[1].ID != "b" {
		t.Errorf("Channels() = %+v", chans)
	}

	removed, err := s.RemoveChannel(ctx, "youtube", "a")
	if err != nil || !removed {
		t.Fatalf("RemoveChannel() = %v, %v", removed, err)
	}
	if removed, _ := s.RemoveChannel(ctx, "youtube", "a"); removed {
		t.Error("RemoveChannel() twice reported removal")
	}
}

func TestRunReportRoundTrip(t *testing.T) {
	s := New(openTestDB(t), nil)
	ctx := context.Background()

	if r, err := s.LastRun(ctx, "youtube"); err != nil || r != nil {
		t.Fatalf("LastRun() before record = %v, %v", r, err)
	}
	rep := &monitor.Report{RunID: "r1", Tenant: "youtube", StartedAt: time.Now().UTC(), Results: []monitor.Result{
		{ChannelID: "a", VideoID: "V1", Outcome: monitor.OutcomeNotified},
		{ChannelID: "b", Outcome: monitor.OutcomeError, Error: "boom"},
	}}
	if err := s.RecordRun(ctx, rep); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}
	got, err := s.LastRun(ctx, "youtube")
	if err != nil || got == nil {
		t.Fatalf("LastRun() = %v, %v", got, err)
	}
	if got.RunID != "r1" || len(got.Results) != 2 || got.Results[1].Error != "boom" {
		t.Errorf("LastRun() = %+v", got)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		sealer crypto.Sealer
	}{
		{"plaintext", nil},
		{"sealed", testSealer(t)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(openTestDB(t), tt.sealer)
			ctx := context.Background()

			if tok, err := s.LoadToken(ctx, "youtube"); err != nil || tok != nil {
				t.Fatalf("LoadToken() empty = %v, %v", tok, err)
			}
			exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
			in := &oauth2.Token{AccessToken: "ya29.access", RefreshToken: "1//refresh", Expiry: exp}
			if err := s.SaveToken(ctx, "youtube", in, "https://www.googleapis.com/auth/youtube.readonly"); err != nil {
				t.Fatalf("SaveToken() error = %v", err)
			}
			out, err := s.LoadToken(ctx, "youtube")
			if err != nil {
				t.Fatalf("LoadToken() error = %v", err)
			}
			if out.AccessToken != in.AccessToken || out.RefreshToken != in.RefreshToken || !out.Expiry.Equal(exp) {
				t.Errorf("LoadToken() = %+v, want %+v", out, in)
			}
		})
	}
}

func TestRunMigrationsVersion(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.Exec(`DROP TABLE IF EXISTS schema_migrations`); err != nil {
		t.Fatal(err)
	}
	// tables exist from Migrate; version 1 is re-applied idempotently
	if err := RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	st, err := Status(db)
	if err != nil || st.Dirty || st.Version != 1 || st.Latest != 1 || st.Pending() {
		t.Errorf("Status() = %+v, %v; want version 1 of 1 clean", st, err)
	}
	if err := RunMigrations(db); err != nil {
		t.Errorf("second RunMigrations() error = %v", err)
	}
}

func TestResealSecrets(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	plain := New(database, nil)
	if err := plain.SetDestination(ctx, "youtube", "https://discord.example/hook"); err != nil {
		t.Fatal(err)
	}
	tok := &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", Expiry: time.Now().Add(time.Hour)}
	if err := plain.SaveToken(ctx, "youtube", tok, "scope"); err != nil {
		t.Fatal(err)
	}

	if _, err := plain.ResealSecrets(ctx, false); err == nil {
		t.Fatal("ResealSecrets() without key expected error")
	}

	sealed := New(database, testSealer(t))
	rep, err := sealed.ResealSecrets(ctx, true)
	if err != nil || rep.Webhooks != 1 || rep.Tokens != 1 {
		t.Fatalf("dry run = %+v, %v", rep, err)
	}
	status, err := sealed.EncryptionStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if status["tenants"][crypto.VersionPlaintext] != 1 {
		t.Errorf("dry run wrote rows: %v", status)
	}

	if rep, err = sealed.ResealSecrets(ctx, false); err != nil || rep.Webhooks != 1 || rep.Tokens != 1 {
		t.Fatalf("ResealSecrets() = %+v, %v", rep, err)
	}
	status, err = sealed.EncryptionStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if status["tenants"][crypto.VersionAESGCM] != 1 || status["oauth_tokens"][crypto.VersionAESGCM] != 1 {
		t.Errorf("status after reseal = %v", status)
	}

	url, err := sealed.Destination(ctx, "youtube")
	if err != nil || url != "https://discord.example/hook" {
		t.Errorf("Destination() after reseal = %q, %v", url, err)
	}
	got, err := sealed.LoadToken(ctx, "youtube")
	if err != nil || got.AccessToken != "access" || got.RefreshToken != "refresh" {
		t.Errorf("LoadToken() after reseal = %+v, %v", got, err)
	}

	// nothing left to seal
	if rep, err = sealed.ResealSecrets(ctx, false); err != nil || rep.Webhooks != 0 || rep.Tokens != 0 {
		t.Errorf("second ResealSecrets() = %+v, %v", rep, err)
	}
}

func TestLatestEmbedded(t *testing.T) {
	v, err := latestEmbedded()
	if err != nil || v != 1 {
		t.Errorf("latestEmbedded() = %d, %v; want 1", v, err)
	}
}

func TestMigrationStatusPending(t *testing.T) {
	if !(MigrationStatus{Version: 0, Latest: 1}).Pending() {
		t.Error("version 0 of 1 should be pending")
	}
	if (MigrationStatus{Version: 1, Latest: 1}).Pending() {
		t.Error("version 1 of 1 should not be pending")
	}
}
