// Package persistence is the SQLite mirror behind the in-memory registry:
// resolved-dialog history (pruned to a per-workspace retention cap) and the
// best-effort snapshot of pending-request metadata used to re-display
// orphaned dialogs after a restart. The in-memory state is authoritative;
// nothing here can synthesize a resolution.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

const (
	schemaVersion  = 1
	schemaChecksum = "hitl-v1-2026-06-02-history-snapshot"
)

// schemaDDL creates the v1 tables and their indexes.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS dialog_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		workspace TEXT NOT NULL,
		reason TEXT NOT NULL,
		user_input TEXT NOT NULL,
		should_continue INTEGER NOT NULL,
		resolved_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE INDEX IF NOT EXISTS idx_dialog_history_workspace ON dialog_history(workspace, id);`,
	`CREATE TABLE IF NOT EXISTS pending_snapshot (
		dialog_id TEXT PRIMARY KEY,
		workspace TEXT NOT NULL,
		reason TEXT NOT NULL,
		sequence_number INTEGER NOT NULL,
		submitted_at DATETIME NOT NULL,
		snapshotted_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE INDEX IF NOT EXISTS idx_pending_snapshot_workspace ON pending_snapshot(workspace, sequence_number);`,
}

type Store struct {
	db *sql.DB
	// retention caps history rows kept per workspace; 0 disables pruning.
	retention int
}

// DBPath returns the database location within the given home directory.
func DBPath(homeDir string) string {
	return filepath.Join(homeDir, "hitl.db")
}

func Open(path string, retention int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	// One connection: the store is a low-volume mirror and a single writer
	// sidesteps SQLITE_BUSY between its own statements.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	for _, pragma := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA synchronous=FULL;"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", strings.TrimSuffix(pragma, ";"), err)
		}
	}

	store := &Store{db: db, retention: retention}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies the schema inside one transaction, gated by a version
// ledger. A database written by a newer build is refused rather than
// half-read.
func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		return fmt.Errorf("create migration ledger: %w", err)
	}

	var current int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	switch {
	case current > schemaVersion:
		return fmt.Errorf("database schema v%d is newer than this build supports (v%d)", current, schemaVersion)
	case current == schemaVersion:
		var checksum string
		if err := tx.QueryRowContext(ctx, `SELECT checksum FROM schema_migrations WHERE version = ?;`, schemaVersion).Scan(&checksum); err != nil {
			return fmt.Errorf("read schema checksum: %w", err)
		}
		if checksum != schemaChecksum {
			return fmt.Errorf("schema v%d checksum is %q, want %q", schemaVersion, checksum, schemaChecksum)
		}
		return tx.Commit()
	}

	for _, stmt := range schemaDDL {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO schema_migrations (version, checksum) VALUES (?, ?);
	`, schemaVersion, schemaChecksum); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// retryOnBusy runs f, retrying up to maxRetries times when SQLite reports
// BUSY or LOCKED, with exponential backoff on top of the driver's own
// busy_timeout.
func retryOnBusy(ctx context.Context, maxRetries int, f func() error) error {
	const (
		baseDelay = 50 * time.Millisecond
		maxDelay  = 500 * time.Millisecond
	)
	for attempt := 0; ; attempt++ {
		err := f()
		if err == nil || !isSQLiteBusy(err) || attempt == maxRetries {
			return err
		}
		delay := min(baseDelay<<uint(attempt), maxDelay)
		// Jitter the wait by up to 25% either way so competing writers
		// spread out.
		delay = delay*3/4 + time.Duration(rand.Intn(int(delay/2)))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// isSQLiteBusy reports whether err is SQLITE_BUSY or SQLITE_LOCKED, from the
// driver's typed error or from message text when the type was lost in
// wrapping.
func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}
