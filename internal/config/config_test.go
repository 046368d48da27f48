package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Scan.Root != "/" {
		t.Errorf("default root = %q, want /", cfg.Scan.Root)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `version: 1
scan:
  root: /home
  threads: 4
  ignore_dirs:
    - /home/.cache
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Scan.Root != "/home" {
		t.Errorf("root = %q, want /home", cfg.Scan.Root)
	}
	if cfg.Scan.Threads != 4 {
		t.Errorf("threads = %d, want 4", cfg.Scan.Threads)
	}
	if len(cfg.Scan.IgnoreDirs) != 1 || cfg.Scan.IgnoreDirs[0] != "/home/.cache" {
		t.Errorf("ignore_dirs = %v", cfg.Scan.IgnoreDirs)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	// untouched section keeps its default
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("metrics addr = %q, want :9090", cfg.Metrics.Addr)
	}
}

func TestLoadRejectsBadVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(path, []byte("version: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "version") {
		t.Fatalf("want version error, got %v", err)
	}
}

func TestValidateRejectsRelativePaths(t *testing.T) {
	cfg := Default()
	cfg.Scan.Root = "relative/path"
	if err := cfg.Validate(); err == nil {
		t.Error("relative root accepted")
	}

	cfg = Default()
	cfg.Scan.IgnoreDirs = []string{"not/absolute"}
	if err := cfg.Validate(); err == nil {
		t.Error("relative ignore dir accepted")
	}
}

func TestValidateRejectsBadThreshold(t *testing.T) {
	cfg := Default()
	cfg.Notify.Threshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("threshold above 1 accepted")
	}
}

func TestValidateRejectsNegativeThreads(t *testing.T) {
	cfg := Default()
	cfg.Scan.Threads = -1
	if err := cfg.Validate(); err == nil {
		t.Error("negative threads accepted")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.yaml")

	cfg := Default()
	cfg.Scan.Root = "/var"
	cfg.Metrics.Enabled = true

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Scan.Root != "/var" || !loaded.Metrics.Enabled {
		t.Errorf("round trip mismatch: %+v", loaded)
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault("")
	if err != nil {
		// a real config file may exist on the host; only the empty
		// search path must not error
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg == nil {
		t.Fatal("nil config")
	}
}
