package persistence

import (
	"context"
	"fmt"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/dialog"
)

// ReplacePendingSnapshot overwrites the snapshot table with the current
// pending set in a single transaction, so a crash mid-write never leaves a
// mix of old and new rows.
func (s *Store) ReplacePendingSnapshot(ctx context.Context, pending []dialog.Request) error {
	err := retryOnBusy(ctx, 3, func() error {
		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("begin snapshot tx: %w", txErr)
		}
		defer func() { _ = tx.Rollback() }()

		if _, execErr := tx.ExecContext(ctx, `DELETE FROM pending_snapshot;`); execErr != nil {
			return fmt.Errorf("clear pending snapshot: %w", execErr)
		}
		for _, req := range pending {
			if _, execErr := tx.ExecContext(ctx, `
				INSERT INTO pending_snapshot (dialog_id, workspace, reason, sequence_number, submitted_at)
				VALUES (?, ?, ?, ?, ?);
			`, req.ID, req.Workspace, req.Reason, req.SequenceNumber, req.CreatedAt.UTC()); execErr != nil {
				return fmt.Errorf("insert pending snapshot row: %w", execErr)
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("replace pending snapshot: %w", err)
	}
	return nil
}

// LoadPendingSnapshot returns the snapshotted pending requests in submission
// order. Entries describe dialogs whose waiters died with the previous
// process; they are display-only and cannot be resolved.
func (s *Store) LoadPendingSnapshot(ctx context.Context) ([]dialog.Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dialog_id, workspace, reason, sequence_number, submitted_at
		FROM pending_snapshot
		ORDER BY submitted_at ASC, dialog_id ASC;
	`)
	if err != nil {
		return nil, fmt.Errorf("query pending snapshot: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var pending []dialog.Request
	for rows.Next() {
		var req dialog.Request
		if err := rows.Scan(&req.ID, &req.Workspace, &req.Reason, &req.SequenceNumber, &req.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pending snapshot row: %w", err)
		}
		pending = append(pending, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending snapshot rows: %w", err)
	}
	return pending, nil
}

// ClearPendingSnapshot drops all snapshot rows, typically after the orphaned
// dialogs have been surfaced to the user once.
func (s *Store) ClearPendingSnapshot(ctx context.Context) error {
	err := retryOnBusy(ctx, 3, func() error {
		_, execErr := s.db.ExecContext(ctx, `DELETE FROM pending_snapshot;`)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("clear pending snapshot: %w", err)
	}
	return nil
}
