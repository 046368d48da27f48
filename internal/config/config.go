package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for watch-sage.
type Config struct {
	Version int           `yaml:"version"`
	Scan    ScanConfig    `yaml:"scan"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Audit   AuditConfig   `yaml:"audit"`
	Daemon  DaemonConfig  `yaml:"daemon"`
	Notify  NotifyConfig  `yaml:"notify"`
}

// ScanConfig controls the directory walk.
type ScanConfig struct {
	// Root is the directory subtree to search. Defaults to "/".
	Root string `yaml:"root"`

	// Threads is the number of scan workers. 0 means one per CPU,
	// capped at 32.
	Threads int `yaml:"threads"`

	// IgnoreDirs lists absolute directory paths excluded from the walk.
	IgnoreDirs []string `yaml:"ignore_dirs"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// DaemonConfig controls monitor mode.
type DaemonConfig struct {
	// Schedule is the collection interval (e.g. "1h", "@every 30m").
	Schedule string `yaml:"schedule"`

	// Addr is the health endpoint address.
	Addr string `yaml:"addr"`
}

// NotifyConfig controls watch-pressure alerting in monitor mode.
type NotifyConfig struct {
	// WebhookURL receives usage alerts. Empty disables notifications.
	WebhookURL string `yaml:"webhook_url"`

	// Threshold is the fraction of max_user_watches that triggers a
	// pressure alert.
	Threshold float64 `yaml:"threshold"`
}

// AuditConfig controls scan result persistence.
type AuditConfig struct {
	// Path is the JSONL audit log file. Empty disables JSONL auditing.
	Path string `yaml:"path"`

	// Database is the SQLite audit database. Empty disables it.
	Database string `yaml:"database"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Scan: ScanConfig{
			Root:    "/",
			Threads: 0,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
		},
		Daemon: DaemonConfig{
			Addr: ":8080",
		},
		Notify: NotifyConfig{
			Threshold: 0.9,
		},
	}
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault loads the config at path, or searches well-known
// locations when path is empty. Returns defaults if no file is found.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}

	found := FindConfigFile()
	if found == "" {
		return Default(), nil
	}

	return Load(found)
}

// FindConfigFile searches well-known locations for a config file and
// returns the first one that exists, or "" if none do.
func FindConfigFile() string {
	var candidates []string

	candidates = append(candidates, "watch-sage.yaml", "watch-sage.yml")

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, "watch-sage", "config.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "watch-sage", "config.yaml"))
	}

	candidates = append(candidates, "/etc/watch-sage/config.yaml")

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}

	return ""
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Version != 1 {
		return fmt.Errorf("unsupported config version %d", c.Version)
	}

	if c.Scan.Threads < 0 {
		return fmt.Errorf("scan.threads must not be negative, got %d", c.Scan.Threads)
	}

	if c.Scan.Root != "" && !filepath.IsAbs(c.Scan.Root) {
		return fmt.Errorf("scan.root must be an absolute path, got %q", c.Scan.Root)
	}

	for _, dir := range c.Scan.IgnoreDirs {
		if !filepath.IsAbs(dir) {
			return fmt.Errorf("scan.ignore_dirs entries must be absolute paths, got %q", dir)
		}
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown logging.level %q", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown logging.format %q", c.Logging.Format)
	}

	if c.Notify.Threshold < 0 || c.Notify.Threshold > 1 {
		return fmt.Errorf("notify.threshold must be within [0, 1], got %v", c.Notify.Threshold)
	}

	return nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}
