package persistence_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/dialog"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/persistence"
)

func openTestStore(t *testing.T, retention int) (*persistence.Store, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "hitl.db")
	store, err := persistence.Open(dbPath, retention)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store, dbPath
}

func TestOpenIsIdempotent(t *testing.T) {
	store, dbPath := openTestStore(t, 100)
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	reopened, err := persistence.Open(dbPath, 100)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	var version int
	if err := reopened.DB().QueryRow(`SELECT MAX(version) FROM schema_migrations;`).Scan(&version); err != nil {
		t.Fatalf("read schema version: %v", err)
	}
	if version != 1 {
		t.Fatalf("schema version = %d, want 1", version)
	}
}

func TestOpenRejectsChecksumMismatch(t *testing.T) {
	store, dbPath := openTestStore(t, 100)
	if _, err := store.DB().Exec(`UPDATE schema_migrations SET checksum = 'tampered' WHERE version = 1;`); err != nil {
		t.Fatalf("tamper checksum: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	if _, err := persistence.Open(dbPath, 100); err == nil {
		t.Fatal("expected checksum mismatch error on reopen")
	}
}

func TestOpenRejectsNewerSchema(t *testing.T) {
	store, dbPath := openTestStore(t, 100)
	if _, err := store.DB().Exec(`INSERT INTO schema_migrations (version, checksum) VALUES (99, 'future');`); err != nil {
		t.Fatalf("insert future version: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	if _, err := persistence.Open(dbPath, 100); err == nil {
		t.Fatal("expected newer-schema error on reopen")
	}
}

func TestDBPath(t *testing.T) {
	got := persistence.DBPath("/home/dev/.hitl")
	want := filepath.Join("/home/dev/.hitl", "hitl.db")
	if got != want {
		t.Fatalf("DBPath = %q, want %q", got, want)
	}
}

func TestHistorySurvivesReopen(t *testing.T) {
	store, dbPath := openTestStore(t, 100)
	ctx := context.Background()

	entry := dialog.HistoryEntry{
		Timestamp:      time.Now().UTC().Truncate(time.Second),
		Reason:         "deploy to staging?",
		UserInput:      "yes, go ahead",
		ShouldContinue: true,
	}
	if err := store.AppendHistory(ctx, "/home/dev/proj", entry); err != nil {
		t.Fatalf("append history: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	reopened, err := persistence.Open(dbPath, 100)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	entries, err := reopened.ListHistory(ctx, "/home/dev/proj", 10)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("history length = %d, want 1", len(entries))
	}
	got := entries[0]
	if got.Reason != entry.Reason || got.UserInput != entry.UserInput || !got.ShouldContinue {
		t.Fatalf("history entry = %+v, want %+v", got, entry)
	}
	if !got.Timestamp.Equal(entry.Timestamp) {
		t.Fatalf("timestamp = %v, want %v", got.Timestamp, entry.Timestamp)
	}
}
