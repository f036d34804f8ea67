package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/dialog"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/otel"
)

// requestTimeout bounds the poller's short-lived calls. Presentation and the
// blocking dialog path are exempt.
const requestTimeout = 5 * time.Second

// Presenter shows one dialog to the human and returns the decision. It is
// expected to serialize concurrent presentations itself.
type Presenter interface {
	Present(ctx context.Context, req dialog.Request) (dialog.Resolution, error)
}

type PollerConfig struct {
	Logger    *slog.Logger
	Client    *Client
	Presenter Presenter
	Metrics   *otel.Metrics

	// Workspaces are this session's open roots, sent as the containment
	// filter on every poll. Empty claims every pending dialog.
	Workspaces []string

	// Interval is the poll cadence. Zero means 1s.
	Interval time.Duration
}

// Poller drives the follower role: discover pending dialogs on the leader,
// present each at most once, relay the decision back, and forget the id once
// the relay is confirmed. Network failures are absorbed; the next tick tries
// again.
type Poller struct {
	cfg    PollerConfig
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	seen map[string]bool
}

func NewPoller(cfg PollerConfig) *Poller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Poller{
		cfg:    cfg,
		logger: logger,
		seen:   map[string]bool{},
	}
}

// Start begins polling immediately, then on every interval tick.
func (p *Poller) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.run(runCtx)
	p.logger.Info("follower poll loop started",
		"endpoint", p.cfg.Client.BaseURL(), "interval", p.cfg.Interval)
	if len(p.cfg.Workspaces) == 0 {
		p.logger.Debug("no workspace roots configured, claiming every pending dialog")
	}
	return nil
}

// Stop cancels the loop and waits for in-flight presentations to unwind.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	opCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	pending, err := p.cfg.Client.ListPending(opCtx, p.cfg.Workspaces)
	cancel()
	if err != nil {
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.PollErrors.Add(ctx, 1)
		}
		p.logger.Debug("pending poll failed", "error", err)
		return
	}
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.PollTicks.Add(ctx, 1)
	}

	for _, req := range pending {
		if !p.markSeen(req.ID) {
			continue
		}
		p.wg.Add(1)
		go p.present(ctx, req)
	}
}

func (p *Poller) present(ctx context.Context, req dialog.Request) {
	defer p.wg.Done()

	res, err := p.cfg.Presenter.Present(ctx, req)
	if err != nil {
		// Forget the id so a later tick can present it again.
		p.dropSeen(req.ID)
		if ctx.Err() == nil {
			p.logger.Warn("dialog presentation failed", "dialog_id", req.ID, "error", err)
		}
		return
	}
	p.relay(ctx, req.ID, res)
}

// relay pushes one decision to the leader until delivery is confirmed. A
// success=false verdict still confirms delivery: someone else settled the
// dialog first and there is nothing left to do.
func (p *Poller) relay(ctx context.Context, id string, res dialog.Resolution) {
	for {
		opCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		ok, err := p.cfg.Client.Respond(opCtx, id, res)
		cancel()
		if err == nil {
			p.dropSeen(id)
			if !ok {
				p.logger.Debug("dialog already settled elsewhere", "dialog_id", id)
			} else {
				p.logger.Info("dialog decision relayed", "dialog_id", id, "continue", res.ShouldContinue)
			}
			return
		}
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.PollErrors.Add(ctx, 1)
		}
		p.logger.Debug("decision relay failed, retrying", "dialog_id", id, "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.cfg.Interval):
		}
	}
}

// markSeen records an id and reports whether it was new.
func (p *Poller) markSeen(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seen[id] {
		return false
	}
	p.seen[id] = true
	return true
}

func (p *Poller) dropSeen(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.seen, id)
}
