package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/config"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/dialog"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/persistence"
)

type workspaceHistory struct {
	Workspace string                `json:"workspace"`
	Entries   []dialog.HistoryEntry `json:"entries"`
}

// runHistoryCommand reads the persistent mirror directly, so it works whether
// or not a session is running.
func runHistoryCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("hitl history", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	workspace := fs.String("workspace", "", "show one workspace only")
	limit := fs.Int("limit", 20, "most recent entries per workspace")
	asJSON := fs.Bool("json", false, "print entries as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if len(fs.Args()) != 0 {
		fmt.Fprintln(os.Stderr, "usage: hitl history [-workspace /path] [-limit N] [-json]")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		return 1
	}

	store, err := persistence.Open(persistence.DBPath(cfg.HomeDir), cfg.HistoryRetention)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open history mirror: %v\n", err)
		return 1
	}
	defer store.Close()

	workspaces := []string{*workspace}
	if strings.TrimSpace(*workspace) == "" {
		workspaces, err = store.HistoryWorkspaces(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list workspaces: %v\n", err)
			return 1
		}
	}

	var result []workspaceHistory
	for _, ws := range workspaces {
		entries, err := store.ListHistory(ctx, ws, *limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read history: %v\n", err)
			return 1
		}
		if len(entries) == 0 {
			continue
		}
		result = append(result, workspaceHistory{Workspace: ws, Entries: entries})
	}

	if *asJSON {
		if result == nil {
			result = []workspaceHistory{}
		}
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "encode history: %v\n", err)
			return 1
		}
		fmt.Fprintln(os.Stdout, string(out))
		return 0
	}

	if len(result) == 0 {
		fmt.Fprintln(os.Stdout, "no resolved dialogs recorded")
		return 0
	}
	for _, h := range result {
		fmt.Fprintln(os.Stdout, workspaceLabel(h.Workspace))
		for _, e := range h.Entries {
			fmt.Fprintln(os.Stdout, formatHistoryEntry(e))
		}
	}
	return 0
}

func workspaceLabel(ws string) string {
	if strings.TrimSpace(ws) == "" {
		return "(no workspace)"
	}
	return ws
}

func formatHistoryEntry(e dialog.HistoryEntry) string {
	verdict := "continue"
	if !e.ShouldContinue {
		verdict = "stop"
	}
	line := fmt.Sprintf("  %s  %-8s  %s",
		e.Timestamp.Local().Format("2006-01-02 15:04:05"), verdict, e.Reason)
	if input := strings.TrimSpace(e.UserInput); input != "" {
		line += fmt.Sprintf("  [input: %s]", input)
	}
	return line
}
