package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

SESSION (default):
  %s                           Start a front-end session (same as "serve")
  %s serve [options]           Arbitrate the coordination endpoint, present
                               pending dialogs, record resolutions
                               Options: -workspace /path[,/path] -port N -quiet

AGENT TRANSPORT:
  %s stdio [options]           Serve the tool protocol on stdin/stdout,
                               bridging submissions to the endpoint
                               Options: -port N -workspace /path

SUBCOMMANDS:
  %s status [-port N] [-json]  Check coordination endpoint health
  %s history [options]         Show resolved dialogs from the local mirror
                               Options: -workspace /path -limit N -json
  %s respond -id <id> [opts]   Resolve a pending dialog without a prompt
                               Options: -stop -input <text> -port N
  %s install <claude|cursor>   Register the stdio server with a host client
                               Options: -port N -dry-run
  %s doctor [-json]            Run local diagnostic checks

ENVIRONMENT:
  HITL_HOME                    Data directory (default: ~/.hitl)
  HITL_PORT                    Coordination endpoint port (default: 7077)
  HITL_WORKSPACES              Comma-separated workspace roots
  HITL_LOG_LEVEL               debug, info, warn, or error
  TELEGRAM_BOT_TOKEN           Token for the optional Telegram channel

EXAMPLES:
  Front-end for one project:  %s serve -workspace ~/src/app
  Agent-side MCP server:      %s stdio
  Script a decision:          %s respond -id <dialog-id> -input "use prod"
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0],
		os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}

func main() {
	loadDotEnv(".env")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]
	if len(args) == 0 {
		os.Exit(runServeCommand(ctx, nil))
	}

	// Flags without a subcommand belong to serve: "hitl -port 7078" works.
	if strings.HasPrefix(args[0], "-") && args[0] != "-h" && args[0] != "--help" {
		os.Exit(runServeCommand(ctx, args))
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)
	case "serve":
		os.Exit(runServeCommand(ctx, args[1:]))
	case "stdio":
		os.Exit(runStdioCommand(ctx, args[1:]))
	case "status":
		os.Exit(runStatusCommand(ctx, args[1:]))
	case "history":
		os.Exit(runHistoryCommand(ctx, args[1:]))
	case "respond":
		os.Exit(runRespondCommand(ctx, args[1:]))
	case "install":
		os.Exit(runInstallCommand(ctx, args[1:]))
	case "doctor":
		os.Exit(runDoctorCommand(ctx, args[1:]))
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

// fatalStartup reports a wiring failure and exits. Before the logger exists
// it falls back to a raw JSON line on stderr so startup failures stay
// machine-readable.
func fatalStartup(logger *slog.Logger, reason string, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	if logger != nil {
		logger.Error("startup failure", "reason", reason, "error", message)
	} else {
		fmt.Fprintf(
			os.Stderr,
			`{"timestamp":%q,"level":"ERROR","component":"hitl","msg":"startup failure","reason":%q,"error":%q}`+"\n",
			time.Now().UTC().Format(time.RFC3339Nano),
			reason,
			message,
		)
	}
	os.Exit(1)
}

// loadDotEnv seeds unset environment variables from a local .env file.
// Already-set variables win; a missing file is fine.
func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.Index(line, "=")
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if key == "" || os.Getenv(key) != "" {
			continue
		}
		_ = os.Setenv(key, val)
	}
}

// splitWorkspaces parses the comma-separated -workspace flag value.
func splitWorkspaces(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
