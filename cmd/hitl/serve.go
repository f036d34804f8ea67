package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"go.opentelemetry.io/otel/trace"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/arbiter"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/bridge"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/bus"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/channels"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/config"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/otel"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/persistence"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/prompt"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/registry"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/rpc"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/server"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/snapshot"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/telemetry"
)

func runServeCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("hitl serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	workspaceFlag := fs.String("workspace", "", "comma-separated workspace roots this session answers for")
	portFlag := fs.Int("port", 0, "coordination endpoint port override")
	quiet := fs.Bool("quiet", false, "plain line prompts, console logging off")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if len(fs.Args()) != 0 {
		fmt.Fprintln(os.Stderr, "usage: hitl serve [-workspace /path[,/path]] [-port N] [-quiet]")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fatalStartup(nil, "config load", err)
	}
	if *portFlag > 0 {
		cfg.Port = *portFlag
	}
	if ws := splitWorkspaces(*workspaceFlag); len(ws) > 0 {
		cfg.Workspaces = ws
	}

	// Interactive sessions keep the console clean for the decision prompt;
	// everything still lands in the log file.
	interactive := isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
	logger, logCloser, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, *quiet || interactive)
	if err != nil {
		fatalStartup(nil, "logger init", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("session starting",
		"version", otel.Version,
		"home", cfg.HomeDir,
		"config", cfg.Fingerprint(),
		"port", cfg.Port,
		"workspaces", cfg.Workspaces)

	provider, err := otel.Init(ctx, cfg.Telemetry)
	if err != nil {
		fatalStartup(logger, "telemetry init", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	metrics, err := otel.NewMetrics(provider.Meter)
	if err != nil {
		fatalStartup(logger, "metrics init", err)
	}

	store, err := persistence.Open(persistence.DBPath(cfg.HomeDir), cfg.HistoryRetention)
	if err != nil {
		fatalStartup(logger, "persistence open", err)
	}
	defer store.Close()

	eventBus := bus.New()
	reg := registry.New(registry.Config{
		Logger:  logger,
		Bus:     eventBus,
		Metrics: metrics,
		Mirror:  store,
	})

	presenter := prompt.NewTerminalPresenter(prompt.TerminalConfig{
		Input:     os.Stdin,
		Output:    os.Stdout,
		ForceLine: *quiet,
	})

	session := &serveSession{
		logger:    logger,
		bus:       eventBus,
		metrics:   metrics,
		store:     store,
		registry:  reg,
		presenter: presenter,
		tracer:    provider.Tracer,
		cfg:       cfg,
	}

	arb := arbiter.New(arbiter.Config{
		Logger:      logger,
		NewLeader:   session.newLeader,
		NewFollower: session.newFollower,
	})
	if err := arb.Start(ctx, cfg.Port); err != nil {
		fatalStartup(logger, "endpoint arbitration", err)
	}

	watcher := config.NewWatcher(cfg.HomeDir, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher unavailable", "error", err)
	} else {
		go watchConfig(ctx, logger, session, arb, watcher)
	}

	logger.Info("session ready", "role", arb.Role(), "port", arb.Port())

	<-ctx.Done()
	logger.Info("session stopping")

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := arb.Stop(stopCtx); err != nil {
		logger.Warn("endpoint role stop failed", "error", err)
	}
	logger.Info("session stopped")
	return 0
}

// watchConfig applies config.yaml edits to the running session. A port
// change forces a full re-arbitration; other fields take effect on the next
// constructed role.
func watchConfig(ctx context.Context, logger *slog.Logger, session *serveSession, arb *arbiter.Arbitrator, watcher *config.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-watcher.Events():
			if !ok {
				return
			}
			next, err := config.LoadFrom(session.config().HomeDir)
			if err != nil {
				logger.Warn("config reload failed", "error", err)
				continue
			}
			logger.Info("config reloaded", "config", next.Fingerprint())
			session.updateConfig(next)
			if next.Port != arb.Port() {
				logger.Info("endpoint port changed", "from", arb.Port(), "to", next.Port)
				if err := arb.Rebind(ctx, next.Port); err != nil {
					logger.Error("endpoint rebind failed", "port", next.Port, "error", err)
				}
			}
		}
	}
}

// serveSession holds the process-lifetime pieces both endpoint roles share.
// The registry survives role changes so a leader that loses a rebind race
// keeps its in-memory history ledger.
type serveSession struct {
	logger    *slog.Logger
	bus       *bus.Bus
	metrics   *otel.Metrics
	store     *persistence.Store
	registry  *registry.Registry
	presenter prompt.Presenter
	tracer    trace.Tracer

	mu  sync.Mutex
	cfg config.Config
}

func (s *serveSession) config() config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *serveSession) updateConfig(cfg config.Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *serveSession) newLeader(ln net.Listener) arbiter.Runner {
	return &leaderRunner{session: s, ln: ln}
}

func (s *serveSession) newFollower(port int) arbiter.Runner {
	return &followerRunner{session: s, port: port}
}

// leaderRunner owns the bound listener: the HTTP endpoint, the snapshot
// scheduler, the local presentation loop, and the optional remote channels.
type leaderRunner struct {
	session *serveSession
	ln      net.Listener

	httpSrv   *http.Server
	scheduler *snapshot.Scheduler
	loop      *prompt.Loop
	cancel    context.CancelFunc
}

func (r *leaderRunner) Start(ctx context.Context) error {
	s := r.session
	cfg := s.config()

	rpcHandler := rpc.NewHandler(rpc.Config{
		Logger:    s.logger,
		Submitter: &rpc.RegistrySubmitter{Registry: s.registry},
		Metrics:   s.metrics,
		Tracer:    s.tracer,
	})

	srv, err := server.New(server.Config{
		Logger:    s.logger,
		Registry:  s.registry,
		RPC:       rpcHandler,
		Bus:       s.bus,
		Metrics:   s.metrics,
		Port:      cfg.Port,
		Version:   otel.Version,
		Keepalive: time.Duration(cfg.KeepaliveSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("build endpoint server: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	// BaseContext ties every in-flight request, including tools/call waits
	// that block for minutes, to this role's lifetime so Stop can drain.
	r.httpSrv = &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return runCtx },
	}
	go func() {
		if err := r.httpSrv.Serve(r.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("endpoint server exited", "error", err)
		}
	}()

	scheduler, err := snapshot.NewScheduler(snapshot.Config{
		Logger:   s.logger,
		Store:    s.store,
		Registry: s.registry,
		CronExpr: cfg.SnapshotCron,
	})
	if err != nil {
		cancel()
		_ = r.httpSrv.Close()
		return fmt.Errorf("build snapshot scheduler: %w", err)
	}
	r.scheduler = scheduler
	scheduler.Start(runCtx)

	r.loop = prompt.NewLoop(prompt.LoopConfig{
		Logger:     s.logger,
		Bus:        s.bus,
		Registry:   s.registry,
		Presenter:  s.presenter,
		Workspaces: cfg.Workspaces,
	})
	r.loop.Start(runCtx)

	r.replayOrphans(runCtx)
	r.startChannels(runCtx, cfg)

	s.logger.Info("leading coordination endpoint", "addr", r.ln.Addr().String())
	return nil
}

// replayOrphans surfaces dialogs a previous leader left pending. The
// submitting processes are gone, so the rows are display-only; nothing can
// resolve them.
func (r *leaderRunner) replayOrphans(ctx context.Context) {
	s := r.session
	orphans, err := s.store.LoadPendingSnapshot(ctx)
	if err != nil {
		s.logger.Warn("pending snapshot load failed", "error", err)
		return
	}
	if len(orphans) == 0 {
		return
	}
	for _, req := range orphans {
		s.logger.Warn("orphaned dialog was pending at shutdown",
			"workspace", req.Workspace,
			"seq", req.SequenceNumber,
			"reason", req.Reason)
	}
	if err := s.store.ClearPendingSnapshot(ctx); err != nil {
		s.logger.Warn("pending snapshot clear failed", "error", err)
	}
}

func (r *leaderRunner) startChannels(ctx context.Context, cfg config.Config) {
	s := r.session
	tg := cfg.Channels.Telegram
	if !tg.Enabled {
		return
	}
	if tg.Token == "" || len(tg.AllowedIDs) == 0 {
		s.logger.Warn("telegram channel enabled but not configured",
			"token_set", tg.Token != "",
			"allowed_ids", len(tg.AllowedIDs))
		return
	}
	ch := channels.NewTelegramChannel(tg.Token, tg.AllowedIDs, s.registry, s.bus, s.logger)
	go func() {
		if err := ch.Start(ctx); err != nil {
			s.logger.Error("remote channel stopped", "channel", ch.Name(), "error", err)
		}
	}()
}

func (r *leaderRunner) Stop(ctx context.Context) error {
	s := r.session

	// Final snapshot so the next leader can report what was still pending.
	if r.scheduler != nil {
		if err := r.scheduler.SnapshotNow(ctx); err != nil {
			s.logger.Warn("final pending snapshot failed", "error", err)
		}
	}
	if r.cancel != nil {
		r.cancel()
	}
	if r.loop != nil {
		if err := r.loop.Stop(ctx); err != nil {
			s.logger.Warn("presentation loop stop timed out", "error", err)
		}
	}
	if r.scheduler != nil {
		r.scheduler.Stop()
	}

	if r.httpSrv == nil {
		return r.ln.Close()
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 5*time.Second)
	defer shutdownCancel()
	if err := r.httpSrv.Shutdown(shutdownCtx); err != nil {
		_ = r.httpSrv.Close()
		return fmt.Errorf("endpoint server shutdown: %w", err)
	}
	s.logger.Info("leader role stopped")
	return nil
}

// followerRunner polls the leader that won the bind race and relays local
// decisions back through /respond.
type followerRunner struct {
	session *serveSession
	port    int
	poller  *bridge.Poller
}

func (r *followerRunner) Start(ctx context.Context) error {
	s := r.session
	cfg := s.config()

	client := bridge.NewClient(fmt.Sprintf("http://127.0.0.1:%d", r.port))
	r.poller = bridge.NewPoller(bridge.PollerConfig{
		Logger:     s.logger,
		Client:     client,
		Presenter:  s.presenter,
		Metrics:    s.metrics,
		Workspaces: cfg.Workspaces,
		Interval:   time.Duration(cfg.PollIntervalSeconds) * time.Second,
	})
	if err := r.poller.Start(ctx); err != nil {
		return fmt.Errorf("start poll bridge: %w", err)
	}
	s.logger.Info("following coordination endpoint", "url", client.BaseURL())
	return nil
}

func (r *followerRunner) Stop(ctx context.Context) error {
	if r.poller == nil {
		return nil
	}
	return r.poller.Stop(ctx)
}
