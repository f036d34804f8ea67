package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/config"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/protocol"
)

// runInstallCommand writes the stdio server entry into a host client's MCP
// config. Existing entries for other servers are preserved; only our own key
// is touched.
func runInstallCommand(ctx context.Context, args []string) int {
	_ = ctx

	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: hitl install <claude|cursor> [-port N] [-dry-run]")
		return 2
	}
	client := strings.ToLower(strings.TrimSpace(args[0]))

	fs := flag.NewFlagSet("hitl install", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	portFlag := fs.Int("port", 0, "coordination endpoint port the entry should use")
	dryRun := fs.Bool("dry-run", false, "print the merged config instead of writing it")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	if len(fs.Args()) != 0 {
		fmt.Fprintln(os.Stderr, "usage: hitl install <claude|cursor> [-port N] [-dry-run]")
		return 2
	}

	home, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve home directory: %v\n", err)
		return 1
	}
	path, err := hostConfigPath(client, home)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	exe, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve executable path: %v\n", err)
		return 1
	}

	port := *portFlag
	if port <= 0 {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "config load: %v\n", err)
			return 1
		}
		port = cfg.Port
	}

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", path, err)
		return 1
	}

	merged, changed, err := mergeServerEntry(existing, protocol.ServerName, serverEntry(exe, port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "merge %s: %v\n", path, err)
		return 1
	}

	if *dryRun {
		fmt.Fprintln(os.Stdout, string(merged))
		return 0
	}
	if !changed {
		fmt.Fprintf(os.Stdout, "already registered in %s\n", path)
		return 0
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir %s: %v\n", filepath.Dir(path), err)
		return 1
	}
	if err := os.WriteFile(path, merged, 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
		return 1
	}
	fmt.Fprintf(os.Stdout, "registered %q in %s\n", protocol.ServerName, path)
	return 0
}

func hostConfigPath(client, home string) (string, error) {
	switch client {
	case "claude":
		return filepath.Join(home, ".claude.json"), nil
	case "cursor":
		return filepath.Join(home, ".cursor", "mcp.json"), nil
	default:
		return "", fmt.Errorf("unknown client %q (want claude or cursor)", client)
	}
}

// serverEntry builds the mcpServers value for this binary. Args use []any so
// the entry compares equal to one round-tripped through JSON.
func serverEntry(execPath string, port int) map[string]any {
	entryArgs := []any{"stdio"}
	if port != config.DefaultPort {
		entryArgs = append(entryArgs, "-port", strconv.Itoa(port))
	}
	return map[string]any{
		"command": execPath,
		"args":    entryArgs,
	}
}

// mergeServerEntry sets mcpServers[name] in raw, preserving every other key
// in the document. Empty raw starts a fresh document. changed is false when
// the entry was already present and identical.
func mergeServerEntry(raw []byte, name string, entry map[string]any) ([]byte, bool, error) {
	doc := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, false, fmt.Errorf("parse existing config: %w", err)
		}
	}

	servers, ok := doc["mcpServers"].(map[string]any)
	if !ok {
		servers = map[string]any{}
	}
	changed := !reflect.DeepEqual(servers[name], entry)
	servers[name] = entry
	doc["mcpServers"] = servers

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, false, fmt.Errorf("encode config: %w", err)
	}
	return append(out, '\n'), changed, nil
}
