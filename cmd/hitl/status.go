package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/bridge"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/config"
)

func runStatusCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("hitl status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	portFlag := fs.Int("port", 0, "coordination endpoint port override")
	asJSON := fs.Bool("json", false, "print the raw health document")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if len(fs.Args()) != 0 {
		fmt.Fprintln(os.Stderr, "usage: hitl status [-port N] [-json]")
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
	reqCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	health, err := client.Health(reqCtx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "endpoint unreachable at %s: %v\n", cfg.EndpointURL(), err)
		return 1
	}

	if *asJSON {
		out, err := json.MarshalIndent(health, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "encode health: %v\n", err)
			return 1
		}
		fmt.Fprintln(os.Stdout, string(out))
		return 0
	}

	fmt.Fprintf(os.Stdout, "leader %s on port %d: %d pending dialog(s), %d stream subscriber(s)\n",
		health.Version, health.Port, health.PendingCount, health.SubscriberCount)
	return 0
}
