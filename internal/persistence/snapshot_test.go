package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/dialog"
)

func TestReplaceAndLoadPendingSnapshot(t *testing.T) {
	store, _ := openTestStore(t, 100)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	first := []dialog.Request{
		{ID: "dlg-1", Reason: "merge branch?", Workspace: "/proj", SequenceNumber: 1, CreatedAt: base},
		{ID: "dlg-2", Reason: "rm -rf build?", Workspace: "/proj", SequenceNumber: 2, CreatedAt: base.Add(time.Second)},
	}
	if err := store.ReplacePendingSnapshot(ctx, first); err != nil {
		t.Fatalf("replace snapshot: %v", err)
	}

	loaded, err := store.LoadPendingSnapshot(ctx)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("snapshot length = %d, want 2", len(loaded))
	}
	if loaded[0].ID != "dlg-1" || loaded[1].ID != "dlg-2" {
		t.Fatalf("snapshot order = [%s, %s], want [dlg-1, dlg-2]", loaded[0].ID, loaded[1].ID)
	}
	if loaded[0].SequenceNumber != 1 || loaded[0].Reason != "merge branch?" {
		t.Fatalf("snapshot row = %+v, want seq 1 with original reason", loaded[0])
	}
	if !loaded[0].CreatedAt.Equal(base) {
		t.Fatalf("CreatedAt = %v, want %v", loaded[0].CreatedAt, base)
	}
}

func TestReplacePendingSnapshotOverwrites(t *testing.T) {
	store, _ := openTestStore(t, 100)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.ReplacePendingSnapshot(ctx, []dialog.Request{
		{ID: "dlg-old", Reason: "stale", Workspace: "/a", SequenceNumber: 1, CreatedAt: now},
	}); err != nil {
		t.Fatalf("first replace: %v", err)
	}
	if err := store.ReplacePendingSnapshot(ctx, []dialog.Request{
		{ID: "dlg-new", Reason: "fresh", Workspace: "/b", SequenceNumber: 1, CreatedAt: now},
	}); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	loaded, err := store.LoadPendingSnapshot(ctx)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID != "dlg-new" {
		t.Fatalf("snapshot = %+v, want single dlg-new row", loaded)
	}
}

func TestReplacePendingSnapshotWithEmptySet(t *testing.T) {
	store, _ := openTestStore(t, 100)
	ctx := context.Background()

	if err := store.ReplacePendingSnapshot(ctx, []dialog.Request{
		{ID: "dlg-1", Reason: "anything", Workspace: "/a", SequenceNumber: 1, CreatedAt: time.Now().UTC()},
	}); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}
	if err := store.ReplacePendingSnapshot(ctx, nil); err != nil {
		t.Fatalf("replace with empty set: %v", err)
	}

	loaded, err := store.LoadPendingSnapshot(ctx)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("snapshot length = %d, want 0", len(loaded))
	}
}

func TestClearPendingSnapshot(t *testing.T) {
	store, _ := openTestStore(t, 100)
	ctx := context.Background()

	if err := store.ReplacePendingSnapshot(ctx, []dialog.Request{
		{ID: "dlg-1", Reason: "anything", Workspace: "/a", SequenceNumber: 1, CreatedAt: time.Now().UTC()},
	}); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}
	if err := store.ClearPendingSnapshot(ctx); err != nil {
		t.Fatalf("clear snapshot: %v", err)
	}

	loaded, err := store.LoadPendingSnapshot(ctx)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("snapshot length = %d, want 0 after clear", len(loaded))
	}
}
