package prompt

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/bus"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/dialog"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/router"
)

// Resolver is the slice of the registry the loop needs.
type Resolver interface {
	ListPending(filter []string) []dialog.Request
	Resolve(ctx context.Context, id string, res dialog.Resolution) bool
}

type LoopConfig struct {
	Logger    *slog.Logger
	Bus       *bus.Bus
	Registry  Resolver
	Presenter Presenter
	// Workspaces are the session's open roots. Empty claims every dialog.
	Workspaces []string
}

// Loop drives the leader-local presentation flow: it watches the registry
// for claimable dialogs and walks each through the presenter, feeding the
// decision back as the resolution. A dialog the human dismisses stays
// pending; it can still be settled by a follower relay, a remote channel,
// or the respond command.
type Loop struct {
	cfg    LoopConfig
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	seen map[string]bool
}

func NewLoop(cfg LoopConfig) *Loop {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		cfg:    cfg,
		logger: logger,
		seen:   make(map[string]bool),
	}
}

// Start subscribes to submissions and sweeps the dialogs that were already
// pending. Subscribing happens before the sweep so a dialog submitted during
// the sweep is either swept or buffered, never missed; the seen set collapses
// the overlap to one presentation.
func (l *Loop) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)

	sub := l.cfg.Bus.Subscribe(bus.TopicDialogSubmitted)
	for _, req := range l.cfg.Registry.ListPending(l.cfg.Workspaces) {
		l.dispatch(ctx, req)
	}

	l.wg.Add(1)
	go l.run(ctx, sub)
	l.logger.Info("presentation loop started", "workspaces", len(l.cfg.Workspaces))
	if len(l.cfg.Workspaces) == 0 {
		l.logger.Debug("no workspace roots configured, claiming every pending dialog")
	}
}

// Stop cancels the loop and waits for in-flight presentations, bounded by
// the given context.
func (l *Loop) Stop(ctx context.Context) error {
	if l.cancel != nil {
		l.cancel()
	}
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		l.logger.Info("presentation loop stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) run(ctx context.Context, sub *bus.Subscription) {
	defer l.wg.Done()
	defer l.cfg.Bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.Ch():
			if !ok {
				return
			}
			submitted, ok := evt.Payload.(bus.DialogSubmittedEvent)
			if !ok {
				continue
			}
			if !router.ShouldClaim(submitted.Workspace, l.cfg.Workspaces) {
				continue
			}
			l.dispatch(ctx, dialog.Request{
				ID:             submitted.ID,
				Reason:         submitted.Reason,
				Workspace:      submitted.Workspace,
				SequenceNumber: submitted.SequenceNumber,
				CreatedAt:      submitted.CreatedAt,
			})
		}
	}
}

func (l *Loop) dispatch(ctx context.Context, req dialog.Request) {
	if !l.markSeen(req.ID) {
		return
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.present(ctx, req)
	}()
}

func (l *Loop) present(ctx context.Context, req dialog.Request) {
	res, err := l.cfg.Presenter.Present(ctx, req)
	if err != nil {
		// The dialog stays pending for another path to settle. Dropping
		// the id lets a restarted loop present it again.
		l.dropSeen(req.ID)
		if ctx.Err() == nil {
			l.logger.Warn("dialog presentation failed",
				"dialog_id", req.ID, "workspace", req.Workspace, "error", err)
		}
		return
	}
	if !l.cfg.Registry.Resolve(ctx, req.ID, res) {
		l.logger.Debug("dialog already settled elsewhere", "dialog_id", req.ID)
	}
	l.dropSeen(req.ID)
}

func (l *Loop) markSeen(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen[id] {
		return false
	}
	l.seen[id] = true
	return true
}

func (l *Loop) dropSeen(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.seen, id)
}
