// Package registry owns the pending dialog set and the per-workspace history
// ledger. It is the single writer for both: every other component reads
// through its methods or asks it to resolve. A request is resolved at most
// once; later attempts report notFound and change nothing, which makes
// duplicate claims across sessions harmless.
package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/bus"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/dialog"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/otel"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/router"
)

// HistoryMirror persists resolved history outside the process. Append
// failures are logged and swallowed: the in-memory ledger is the source of
// truth and must stay consistent with what waiters observe.
type HistoryMirror interface {
	AppendHistory(ctx context.Context, workspace string, entry dialog.HistoryEntry) error
}

type Config struct {
	Logger  *slog.Logger
	Bus     *bus.Bus
	Metrics *otel.Metrics
	Mirror  HistoryMirror
}

type entry struct {
	req dialog.Request
	// done carries the winning resolution to the suspended tools/call.
	// Buffered so Resolve never blocks on a slow waiter.
	done chan dialog.Resolution
}

type Registry struct {
	logger  *slog.Logger
	bus     *bus.Bus
	metrics *otel.Metrics
	mirror  HistoryMirror

	mu       sync.Mutex
	pending  map[string]*entry
	order    []string
	counters map[string]int64
	history  map[string][]dialog.HistoryEntry
}

func New(cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:   logger,
		bus:      cfg.Bus,
		metrics:  cfg.Metrics,
		mirror:   cfg.Mirror,
		pending:  map[string]*entry{},
		counters: map[string]int64{},
		history:  map[string][]dialog.HistoryEntry{},
	}
}

// Submit registers a new dialog request and returns it together with the
// channel the resolution will arrive on. The workspace sequence number is
// assigned here, before the request is visible to any consumer.
func (r *Registry) Submit(ctx context.Context, reason, workspace string) (dialog.Request, <-chan dialog.Resolution) {
	key := router.NormalizePath(workspace)

	r.mu.Lock()
	r.counters[key]++
	req := dialog.Request{
		ID:             uuid.NewString(),
		Reason:         reason,
		Workspace:      workspace,
		SequenceNumber: r.counters[key],
		CreatedAt:      time.Now().UTC(),
	}
	e := &entry{req: req, done: make(chan dialog.Resolution, 1)}
	r.pending[req.ID] = e
	r.order = append(r.order, req.ID)
	r.mu.Unlock()

	r.logger.Info("dialog submitted",
		"dialog_id", req.ID, "workspace", req.Workspace, "seq", req.SequenceNumber)
	if r.metrics != nil {
		r.metrics.DialogsSubmitted.Add(ctx, 1)
		r.metrics.DialogsPending.Add(ctx, 1)
	}
	if r.bus != nil {
		r.bus.Publish(bus.TopicDialogSubmitted, bus.DialogSubmittedEvent{
			ID:             req.ID,
			Reason:         req.Reason,
			Workspace:      req.Workspace,
			SequenceNumber: req.SequenceNumber,
			CreatedAt:      req.CreatedAt,
		})
	}
	return req, e.done
}

// Resolve completes a pending request. It reports false when the id is
// unknown or already resolved; that is an expected outcome under concurrent
// relay, not an error. On success the history entry is appended before the
// waiting caller unblocks.
func (r *Registry) Resolve(ctx context.Context, id string, res dialog.Resolution) bool {
	r.mu.Lock()
	e, ok := r.pending[id]
	if !ok {
		r.mu.Unlock()
		r.logger.Debug("resolve for unknown or settled dialog", "dialog_id", id)
		return false
	}
	delete(r.pending, id)
	for i, queued := range r.order {
		if queued == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	key := router.NormalizePath(e.req.Workspace)
	hist := dialog.HistoryEntry{
		Timestamp:      time.Now().UTC(),
		Reason:         e.req.Reason,
		UserInput:      res.UserInput,
		ShouldContinue: res.ShouldContinue,
	}
	r.history[key] = append(r.history[key], hist)
	r.mu.Unlock()

	if r.mirror != nil {
		if err := r.mirror.AppendHistory(ctx, key, hist); err != nil {
			r.logger.Warn("history mirror append failed", "dialog_id", id, "error", err)
		}
	}
	if r.metrics != nil {
		r.metrics.DialogsResolved.Add(ctx, 1)
		r.metrics.DialogsPending.Add(ctx, -1)
	}
	if r.bus != nil {
		r.bus.Publish(bus.TopicDialogResolved, bus.DialogResolvedEvent{
			ID:             id,
			Workspace:      e.req.Workspace,
			ShouldContinue: res.ShouldContinue,
		})
	}
	r.logger.Info("dialog resolved",
		"dialog_id", id, "workspace", e.req.Workspace, "continue", res.ShouldContinue)

	e.done <- res
	return true
}

// ListPending returns unresolved requests in submission order. A non-empty
// filter keeps only requests whose workspace is same-or-containing with at
// least one filter root; an empty filter returns everything.
func (r *Registry) ListPending(filter []string) []dialog.Request {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]dialog.Request, 0, len(r.order))
	for _, id := range r.order {
		e, ok := r.pending[id]
		if !ok {
			continue
		}
		if router.ShouldClaim(e.req.Workspace, filter) {
			out = append(out, e.req)
		}
	}
	return out
}

// History returns the resolved entries for a workspace, oldest first. The
// lookup key is case/slash-normalized so any spelling of the same root maps
// to one ledger.
func (r *Registry) History(workspace string) []dialog.HistoryEntry {
	key := router.NormalizePath(workspace)

	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.history[key]
	out := make([]dialog.HistoryEntry, len(entries))
	copy(out, entries)
	return out
}

// PendingCount reports the number of unresolved requests.
func (r *Registry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
