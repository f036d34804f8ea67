package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, home, body string) {
	t.Helper()
	if err := os.WriteFile(ConfigPath(home), []byte(body), 0o644); err != nil {
		t.Fatalf("write config.yaml: %v", err)
	}
}

func TestLoadFrom_Defaults(t *testing.T) {
	home := t.TempDir()
	cfg, err := LoadFrom(home)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Fatalf("port = %d, want %d", cfg.Port, DefaultPort)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("log_level = %q, want info", cfg.LogLevel)
	}
	if cfg.PollIntervalSeconds != 1 {
		t.Fatalf("poll_interval_seconds = %d, want 1", cfg.PollIntervalSeconds)
	}
	if cfg.KeepaliveSeconds != 30 {
		t.Fatalf("keepalive_seconds = %d, want 30", cfg.KeepaliveSeconds)
	}
	if cfg.SnapshotCron != "* * * * *" {
		t.Fatalf("snapshot_cron = %q", cfg.SnapshotCron)
	}
	if len(cfg.Workspaces) != 0 {
		t.Fatalf("workspaces = %v, want empty", cfg.Workspaces)
	}
}

func TestLoadFrom_FileValues(t *testing.T) {
	home := t.TempDir()
	writeConfig(t, home, `
port: 9200
log_level: debug
workspaces:
  - /home/user/projA
  - /home/user/projB
poll_interval_seconds: 3
channels:
  telegram:
    enabled: true
    token: tok
    allowed_ids: [42]
`)
	cfg, err := LoadFrom(home)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9200 {
		t.Fatalf("port = %d, want 9200", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log_level = %q, want debug", cfg.LogLevel)
	}
	if len(cfg.Workspaces) != 2 || cfg.Workspaces[0] != "/home/user/projA" {
		t.Fatalf("workspaces = %v", cfg.Workspaces)
	}
	if cfg.PollIntervalSeconds != 3 {
		t.Fatalf("poll_interval_seconds = %d, want 3", cfg.PollIntervalSeconds)
	}
	if !cfg.Channels.Telegram.Enabled || cfg.Channels.Telegram.Token != "tok" {
		t.Fatalf("telegram config = %+v", cfg.Channels.Telegram)
	}
	if len(cfg.Channels.Telegram.AllowedIDs) != 1 || cfg.Channels.Telegram.AllowedIDs[0] != 42 {
		t.Fatalf("allowed_ids = %v", cfg.Channels.Telegram.AllowedIDs)
	}
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	home := t.TempDir()
	writeConfig(t, home, "port: 9200\n")
	t.Setenv("HITL_PORT", "9300")
	t.Setenv("HITL_WORKSPACES", "/a, /b ,")
	t.Setenv("HITL_LOG_LEVEL", "warn")

	cfg, err := LoadFrom(home)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9300 {
		t.Fatalf("port = %d, want env override 9300", cfg.Port)
	}
	if len(cfg.Workspaces) != 2 || cfg.Workspaces[0] != "/a" || cfg.Workspaces[1] != "/b" {
		t.Fatalf("workspaces = %v", cfg.Workspaces)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("log_level = %q, want warn", cfg.LogLevel)
	}
}

func TestNormalize_InvalidPortFallsBack(t *testing.T) {
	home := t.TempDir()
	writeConfig(t, home, "port: 700000\n")
	cfg, err := LoadFrom(home)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Fatalf("port = %d, want default %d", cfg.Port, DefaultPort)
	}
}

func TestBindAddrIsLoopbackOnly(t *testing.T) {
	cfg := Config{Port: 7077}
	if got := cfg.BindAddr(); got != "127.0.0.1:7077" {
		t.Fatalf("BindAddr = %q", got)
	}
	if got := cfg.EndpointURL(); got != "http://127.0.0.1:7077" {
		t.Fatalf("EndpointURL = %q", got)
	}
}

func TestFingerprintChangesWithPort(t *testing.T) {
	a := Config{Port: 7077, LogLevel: "info"}
	b := Config{Port: 7177, LogLevel: "info"}
	if a.Fingerprint() == b.Fingerprint() {
		t.Fatal("fingerprints should differ across ports")
	}
	if a.Fingerprint() != a.Fingerprint() {
		t.Fatal("fingerprint not stable")
	}
}

func TestSetPort(t *testing.T) {
	home := t.TempDir()
	writeConfig(t, home, "log_level: debug\nport: 7077\n")

	if err := SetPort(home, 7177); err != nil {
		t.Fatalf("SetPort: %v", err)
	}

	cfg, err := LoadFrom(home)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 7177 {
		t.Fatalf("port = %d, want 7177", cfg.Port)
	}
	// Other settings survive the rewrite.
	if cfg.LogLevel != "debug" {
		t.Fatalf("log_level = %q, want debug", cfg.LogLevel)
	}
}

func TestSetPort_RejectsOutOfRange(t *testing.T) {
	if err := SetPort(t.TempDir(), 0); err == nil {
		t.Fatal("expected error for port 0")
	}
	if err := SetPort(t.TempDir(), 70000); err == nil {
		t.Fatal("expected error for port 70000")
	}
}

func TestHomeDirOverride(t *testing.T) {
	t.Setenv("HITL_HOME", filepath.Join(t.TempDir(), "custom"))
	home := HomeDir()
	if filepath.Base(home) != "custom" {
		t.Fatalf("HomeDir = %q, want HITL_HOME override", home)
	}
}
