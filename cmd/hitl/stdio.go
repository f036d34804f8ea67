package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/bridge"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/config"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/dialog"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/otel"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/rpc"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/telemetry"
)

// runStdioCommand serves the framed tool protocol on stdin/stdout. Every
// submission is relayed to the coordination endpoint; this process never
// presents anything itself.
func runStdioCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("hitl stdio", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	portFlag := fs.Int("port", 0, "coordination endpoint port override")
	workspace := fs.String("workspace", "", "workspace reported when a call omits one")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if len(fs.Args()) != 0 {
		fmt.Fprintln(os.Stderr, "usage: hitl stdio [-port N] [-workspace /path]")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		return 1
	}
	if *portFlag > 0 {
		cfg.Port = *portFlag
	}

	// Stdout is the protocol wire, so logs are file-only here.
	logger, logCloser, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		return 1
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	provider, err := otel.Init(ctx, cfg.Telemetry)
	if err != nil {
		logger.Error("telemetry init failed", "error", err)
		return 1
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
		logger.Error("metrics init failed", "error", err)
		return 1
	}

	var submitter rpc.Submitter = bridge.NewClient(cfg.EndpointURL())
	if fallback := strings.TrimSpace(*workspace); fallback != "" {
		submitter = workspaceFallbackSubmitter{inner: submitter, workspace: fallback}
	}

	handler := rpc.NewHandler(rpc.Config{
		Logger:    logger,
		Submitter: submitter,
		Metrics:   metrics,
		Tracer:    provider.Tracer,
	})

	logger.Info("stdio transport started", "endpoint", cfg.EndpointURL(), "workspace", *workspace)
	if err := handler.ServeStdio(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		logger.Error("stdio transport failed", "error", err)
		return 1
	}
	logger.Info("stdio transport closed")
	return 0
}

// workspaceFallbackSubmitter fills in the session workspace when a tools/call
// arrives without one, so routing still works for agents that never set it.
type workspaceFallbackSubmitter struct {
	inner     rpc.Submitter
	workspace string
}

func (s workspaceFallbackSubmitter) SubmitDialog(ctx context.Context, reason, workspace string) (dialog.Resolution, error) {
	if strings.TrimSpace(workspace) == "" {
		workspace = s.workspace
	}
	return s.inner.SubmitDialog(ctx, reason, workspace)
}
