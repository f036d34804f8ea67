// Package doctor runs local diagnostics for the coordination setup: the
// config file, the data directory, the history mirror, the shared endpoint,
// and the optional remote channels. Checks never mutate anything beyond a
// throwaway write probe in the home directory.
package doctor

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/bridge"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/config"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/persistence"
)

type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "PASS", "FAIL", "WARN", "SKIP"
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type Diagnosis struct {
	Timestamp time.Time     `json:"timestamp"`
	System    SystemInfo    `json:"system"`
	Results   []CheckResult `json:"results"`
}

// Failed reports whether any check ended in FAIL.
func (d Diagnosis) Failed() bool {
	for _, r := range d.Results {
		if r.Status == "FAIL" {
			return true
		}
	}
	return false
}

type SystemInfo struct {
	OS      string `json:"os"`
	Arch    string `json:"arch"`
	Go      string `json:"go_version"`
	Version string `json:"version"`
}

// Run loads the config and executes every check against it.
func Run(ctx context.Context, version string) Diagnosis {
	d := Diagnosis{
		Timestamp: time.Now().UTC(),
		System: SystemInfo{
			OS:      runtime.GOOS,
			Arch:    runtime.GOARCH,
			Go:      runtime.Version(),
			Version: version,
		},
	}

	cfg, loadErr := config.Load()
	d.Results = append(d.Results, checkConfig(cfg, loadErr))
	d.Results = append(d.Results, checkHome(cfg))
	d.Results = append(d.Results, checkMirror(ctx, cfg))
	d.Results = append(d.Results, checkEndpoint(ctx, cfg))
	d.Results = append(d.Results, checkTelegram(cfg))
	return d
}

func checkConfig(cfg config.Config, loadErr error) CheckResult {
	if loadErr != nil {
		return CheckResult{
			Name:    "Config",
			Status:  "FAIL",
			Message: fmt.Sprintf("config.yaml failed to load: %v", loadErr),
			Detail:  config.ConfigPath(cfg.HomeDir),
		}
	}
	return CheckResult{
		Name:    "Config",
		Status:  "PASS",
		Message: fmt.Sprintf("loaded from %s", cfg.HomeDir),
		Detail:  fmt.Sprintf("%s, port %d, %d workspace(s)", cfg.Fingerprint(), cfg.Port, len(cfg.Workspaces)),
	}
}

func checkHome(cfg config.Config) CheckResult {
	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return CheckResult{Name: "Home", Status: "FAIL", Message: fmt.Sprintf("data directory unusable: %v", err)}
	}
	probe := filepath.Join(cfg.HomeDir, ".write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return CheckResult{Name: "Home", Status: "FAIL", Message: fmt.Sprintf("data directory unwritable: %v", err)}
	}
	_ = os.Remove(probe)
	return CheckResult{Name: "Home", Status: "PASS", Message: "data directory writable", Detail: cfg.HomeDir}
}

func checkMirror(ctx context.Context, cfg config.Config) CheckResult {
	path := persistence.DBPath(cfg.HomeDir)
	store, err := persistence.Open(path, cfg.HistoryRetention)
	if err != nil {
		return CheckResult{Name: "Mirror", Status: "FAIL", Message: fmt.Sprintf("history mirror unavailable: %v", err), Detail: path}
	}
	defer store.Close()

	workspaces, err := store.HistoryWorkspaces(ctx)
	if err != nil {
		return CheckResult{Name: "Mirror", Status: "FAIL", Message: fmt.Sprintf("history query failed: %v", err), Detail: path}
	}
	return CheckResult{
		Name:    "Mirror",
		Status:  "PASS",
		Message: "connection and schema valid",
		Detail:  fmt.Sprintf("%s, history for %d workspace(s)", path, len(workspaces)),
	}
}

// checkEndpoint distinguishes the three port states: a leader answering, no
// session at all, and a foreign process squatting on the port.
func checkEndpoint(ctx context.Context, cfg config.Config) CheckResult {
	healthCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	client := bridge.NewClient(cfg.EndpointURL())
	health, err := client.Health(healthCtx)
	if err == nil {
		return CheckResult{
			Name:    "Endpoint",
			Status:  "PASS",
			Message: fmt.Sprintf("leader %s answering on port %d", health.Version, health.Port),
			Detail:  fmt.Sprintf("%d pending dialog(s), %d stream subscriber(s)", health.PendingCount, health.SubscriberCount),
		}
	}

	conn, dialErr := net.DialTimeout("tcp", cfg.BindAddr(), time.Second)
	if dialErr != nil {
		return CheckResult{
			Name:    "Endpoint",
			Status:  "WARN",
			Message: fmt.Sprintf("no session on port %d", cfg.Port),
			Detail:  "the first session to start will lead",
		}
	}
	_ = conn.Close()
	return CheckResult{
		Name:    "Endpoint",
		Status:  "FAIL",
		Message: fmt.Sprintf("port %d is occupied but /health is not answering", cfg.Port),
		Detail:  portOccupantHint(ctx, cfg.Port),
	}
}

// portOccupantHint names the squatting process when lsof is available.
func portOccupantHint(ctx context.Context, port int) string {
	out, err := exec.CommandContext(ctx, "lsof", "-ti", fmt.Sprintf(":%d", port)).Output()
	if err == nil && strings.TrimSpace(string(out)) != "" {
		pids := strings.Join(strings.Fields(string(out)), " ")
		return fmt.Sprintf("port %d is held by PID %s; stop it or change port in config.yaml", port, pids)
	}
	return fmt.Sprintf("stop the process holding port %d or change port in config.yaml", port)
}

func checkTelegram(cfg config.Config) CheckResult {
	tg := cfg.Channels.Telegram
	if !tg.Enabled {
		return CheckResult{Name: "Telegram", Status: "SKIP", Message: "channel disabled"}
	}
	if strings.TrimSpace(tg.Token) == "" {
		return CheckResult{
			Name:    "Telegram",
			Status:  "WARN",
			Message: "enabled but no token",
			Detail:  "set channels.telegram.token or TELEGRAM_BOT_TOKEN",
		}
	}
	if len(tg.AllowedIDs) == 0 {
		return CheckResult{
			Name:    "Telegram",
			Status:  "WARN",
			Message: "enabled but allowed_ids is empty; every update would be ignored",
		}
	}
	return CheckResult{
		Name:    "Telegram",
		Status:  "PASS",
		Message: fmt.Sprintf("configured for %d allowed user(s)", len(tg.AllowedIDs)),
	}
}
