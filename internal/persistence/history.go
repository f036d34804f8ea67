package persistence

import (
	"context"
	"fmt"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/dialog"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/router"
)

// AppendHistory records one resolved dialog under its normalized workspace
// key, then prunes rows beyond the retention cap. It satisfies the registry's
// HistoryMirror interface.
func (s *Store) AppendHistory(ctx context.Context, workspace string, e dialog.HistoryEntry) error {
	key := router.NormalizePath(workspace)
	err := retryOnBusy(ctx, 3, func() error {
		_, execErr := s.db.ExecContext(ctx, `
			INSERT INTO dialog_history (workspace, reason, user_input, should_continue, resolved_at)
			VALUES (?, ?, ?, ?, ?);
		`, key, e.Reason, e.UserInput, boolToInt(e.ShouldContinue), e.Timestamp.UTC())
		return execErr
	})
	if err != nil {
		return fmt.Errorf("append dialog history: %w", err)
	}
	if s.retention > 0 {
		if err := s.pruneHistory(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) pruneHistory(ctx context.Context, key string) error {
	err := retryOnBusy(ctx, 3, func() error {
		_, execErr := s.db.ExecContext(ctx, `
			DELETE FROM dialog_history
			WHERE workspace = ?
			  AND id NOT IN (
				SELECT id FROM dialog_history
				WHERE workspace = ?
				ORDER BY id DESC
				LIMIT ?
			  );
		`, key, key, s.retention)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("prune dialog history: %w", err)
	}
	return nil
}

// ListHistory returns up to limit of the most recent entries for a workspace,
// oldest first. A non-positive or oversized limit defaults to 100.
func (s *Store) ListHistory(ctx context.Context, workspace string, limit int) ([]dialog.HistoryEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	key := router.NormalizePath(workspace)

	rows, err := s.db.QueryContext(ctx, `
		SELECT reason, user_input, should_continue, resolved_at
		FROM (
			SELECT id, reason, user_input, should_continue, resolved_at
			FROM dialog_history
			WHERE workspace = ?
			ORDER BY id DESC
			LIMIT ?
		)
		ORDER BY id ASC;
	`, key, limit)
	if err != nil {
		return nil, fmt.Errorf("query dialog history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []dialog.HistoryEntry
	for rows.Next() {
		var e dialog.HistoryEntry
		var shouldContinue int
		if err := rows.Scan(&e.Reason, &e.UserInput, &shouldContinue, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan dialog history row: %w", err)
		}
		e.ShouldContinue = shouldContinue != 0
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dialog history rows: %w", err)
	}
	return entries, nil
}

// HistoryWorkspaces lists the distinct normalized workspace keys that have
// recorded history, alphabetically.
func (s *Store) HistoryWorkspaces(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT workspace FROM dialog_history ORDER BY workspace ASC;
	`)
	if err != nil {
		return nil, fmt.Errorf("query history workspaces: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan history workspace: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history workspaces: %w", err)
	}
	return keys, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
