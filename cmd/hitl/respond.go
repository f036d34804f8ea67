package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/bridge"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/config"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/dialog"
)

// runRespondCommand resolves one pending dialog over /respond. It is the
// scriptable escape hatch for sessions without a usable prompt.
func runRespondCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("hitl respond", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	id := fs.String("id", "", "pending dialog id")
	stop := fs.Bool("stop", false, "stop all action instead of continuing")
	input := fs.String("input", "", "user input carried with a continue")
	portFlag := fs.Int("port", 0, "coordination endpoint port override")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if len(fs.Args()) != 0 || strings.TrimSpace(*id) == "" {
		fmt.Fprintln(os.Stderr, "usage: hitl respond -id <dialog-id> [-stop] [-input text] [-port N]")
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

	client := bridge.NewClient(cfg.EndpointURL())
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	settled, err := client.Respond(reqCtx, strings.TrimSpace(*id), dialog.Resolution{
		ShouldContinue: !*stop,
		UserInput:      *input,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "respond via %s: %v\n", cfg.EndpointURL(), err)
		return 1
	}
	if !settled {
		fmt.Fprintln(os.Stderr, "dialog not pending: unknown id or already settled")
		return 1
	}
	if *stop {
		fmt.Fprintln(os.Stdout, "resolved: stop")
	} else {
		fmt.Fprintln(os.Stdout, "resolved: continue")
	}
	return 0
}
