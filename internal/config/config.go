package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/otel"
)

// DefaultPort is the well-known coordination endpoint port. Every front-end
// session races to bind it; the winner hosts the registry for the machine.
const DefaultPort = 7077

// TelegramConfig enables the remote decision channel.
type TelegramConfig struct {
	Token      string  `yaml:"token"`
	AllowedIDs []int64 `yaml:"allowed_ids"`
	Enabled    bool    `yaml:"enabled"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

type Config struct {
	HomeDir string `yaml:"-"`

	// Port is the coordination endpoint port. Changing it while sessions are
	// running makes every session tear down and re-arbitrate.
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	// Workspaces lists the filesystem roots this session answers for. Empty
	// means the session claims every dialog (the global front-end fallback).
	Workspaces []string `yaml:"workspaces"`

	// PollIntervalSeconds is the follower poll cadence against the leader.
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`

	// KeepaliveSeconds is the idle comment cadence on push streams.
	KeepaliveSeconds int `yaml:"keepalive_seconds"`

	// SnapshotCron schedules the best-effort pending-metadata snapshot
	// (5-field cron expression).
	SnapshotCron string `yaml:"snapshot_cron"`

	// HistoryRetention caps the persistent history mirror per workspace.
	// The in-memory ledger is unbounded.
	HistoryRetention int `yaml:"history_retention"`

	Channels  ChannelsConfig `yaml:"channels"`
	Telemetry otel.Config    `yaml:"telemetry"`
}

// ConfigPath returns the path to config.yaml within the given home directory.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// BindAddr returns the loopback listen address for the configured port.
// The endpoint never listens on a non-loopback interface.
func (c Config) BindAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", c.Port)
}

// EndpointURL returns the base URL followers and CLI commands dial.
func (c Config) EndpointURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", c.Port)
}

// Fingerprint returns a stable hash of the active config, logged on load and
// reload so operators can tell which revision a session is running.
func (c Config) Fingerprint() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "port=%d|log=%s|ws=%v|poll=%d|keepalive=%d|snap=%s|retain=%d",
		c.Port, c.LogLevel, c.Workspaces, c.PollIntervalSeconds, c.KeepaliveSeconds, c.SnapshotCron, c.HistoryRetention)
	return fmt.Sprintf("cfg-%x", h.Sum64())
}

func defaultConfig() Config {
	return Config{
		Port:                DefaultPort,
		LogLevel:            "info",
		PollIntervalSeconds: 1,
		KeepaliveSeconds:    30,
		SnapshotCron:        "* * * * *",
		HistoryRetention:    500,
	}
}

func HomeDir() string {
	if override := os.Getenv("HITL_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".hitl")
}

func Load() (Config, error) {
	return LoadFrom(HomeDir())
}

// LoadFrom reads config.yaml under the given home directory, applying
// defaults, env overrides, and normalization. A missing file is not an
// error; the defaults stand.
func LoadFrom(homeDir string) (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = homeDir

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create hitl home: %w", err)
	}

	data, err := os.ReadFile(ConfigPath(cfg.HomeDir))
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config.yaml: %w", err)
		}
	} else if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		cfg.Port = DefaultPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.PollIntervalSeconds <= 0 {
		cfg.PollIntervalSeconds = 1
	}
	if cfg.KeepaliveSeconds <= 0 {
		cfg.KeepaliveSeconds = 30
	}
	if strings.TrimSpace(cfg.SnapshotCron) == "" {
		cfg.SnapshotCron = "* * * * *"
	}
	if cfg.HistoryRetention <= 0 {
		cfg.HistoryRetention = 500
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "hitl"
	}

	trimmed := cfg.Workspaces[:0]
	for _, ws := range cfg.Workspaces {
		if w := strings.TrimSpace(ws); w != "" {
			trimmed = append(trimmed, w)
		}
	}
	cfg.Workspaces = trimmed
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("HITL_PORT"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.Port = v
		}
	}
	if raw := os.Getenv("HITL_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("HITL_WORKSPACES"); raw != "" {
		cfg.Workspaces = splitList(raw)
	}
	if raw := os.Getenv("HITL_POLL_INTERVAL_SECONDS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.PollIntervalSeconds = v
		}
	}
	if raw := os.Getenv("HITL_KEEPALIVE_SECONDS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.KeepaliveSeconds = v
		}
	}
	if raw := os.Getenv("TELEGRAM_BOT_TOKEN"); raw != "" {
		cfg.Channels.Telegram.Token = raw
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// loadRawConfig reads config.yaml into a generic map, returning an empty map
// if the file doesn't exist.
func loadRawConfig(path string) (map[string]interface{}, error) {
	raw := make(map[string]interface{})
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config.yaml: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse config.yaml: %w", err)
		}
	}
	return raw, nil
}

// saveRawConfig marshals and writes a generic map back to config.yaml.
func saveRawConfig(path string, raw map[string]interface{}) error {
	out, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal config.yaml: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, out, 0o644)
}

// SetPort persists a new endpoint port in config.yaml, preserving other
// settings. Running sessions pick the change up through the config watcher
// and re-arbitrate.
func SetPort(homeDir string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("port %d out of range", port)
	}
	path := ConfigPath(homeDir)
	raw, err := loadRawConfig(path)
	if err != nil {
		return err
	}
	raw["port"] = port
	return saveRawConfig(path, raw)
}
