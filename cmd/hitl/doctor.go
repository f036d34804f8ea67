package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/doctor"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/otel"
)

func runDoctorCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("hitl doctor", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	asJSON := fs.Bool("json", false, "print the full diagnosis as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if len(fs.Args()) != 0 {
		fmt.Fprintln(os.Stderr, "usage: hitl doctor [-json]")
		return 2
	}

	diag := doctor.Run(ctx, otel.Version)

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(diag); err != nil {
			fmt.Fprintf(os.Stderr, "encode diagnosis: %v\n", err)
			return 1
		}
		if diag.Failed() {
			return 1
		}
		return 0
	}

	fmt.Fprintf(os.Stdout, "hitl doctor (%s)\n", diag.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(os.Stdout, "system: %s/%s %s, %s\n", diag.System.OS, diag.System.Arch, diag.System.Go, diag.System.Version)
	fmt.Fprintln(os.Stdout, "---")

	for _, res := range diag.Results {
		icon := "✅"
		switch res.Status {
		case "FAIL":
			icon = "❌"
		case "WARN":
			icon = "⚠️ "
		case "SKIP":
			icon = "⏩"
		}
		fmt.Fprintf(os.Stdout, "%s %-10s %s\n", icon, res.Name, res.Message)
		if res.Detail != "" {
			fmt.Fprintf(os.Stdout, "   %s\n", res.Detail)
		}
	}

	if diag.Failed() {
		return 1
	}
	return 0
}
