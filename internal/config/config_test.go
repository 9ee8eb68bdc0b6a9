package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lectern/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if cfg.Workflow.QueuePollInterval != 1 {
		t.Fatalf("expected default poll interval, got %d", cfg.Workflow.QueuePollInterval)
	}
	if cfg.Worker.Command == "" {
		t.Fatal("expected default worker command")
	}
	if !filepath.IsAbs(cfg.Paths.QueuePath) {
		t.Fatalf("expected absolute queue path, got %q", cfg.Paths.QueuePath)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
queue_path = "` + filepath.Join(dir, "queue.json") + `"
output_dir = "` + filepath.Join(dir, "notes") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[worker]
command = " python3 "
args = ["script.py", " "]

[workflow]
queue_poll_interval = 5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected resolved existing path %q, got %q exists=%v", path, resolved, exists)
	}
	if cfg.Worker.Command != "python3" {
		t.Fatalf("expected trimmed command, got %q", cfg.Worker.Command)
	}
	if len(cfg.Worker.Args) != 1 || cfg.Worker.Args[0] != "script.py" {
		t.Fatalf("expected blank args dropped, got %#v", cfg.Worker.Args)
	}
	if cfg.Workflow.QueuePollInterval != 5 {
		t.Fatalf("expected poll interval 5, got %d", cfg.Workflow.QueuePollInterval)
	}
	if cfg.Workflow.CancelGraceSeconds != 10 {
		t.Fatalf("expected default cancel grace, got %d", cfg.Workflow.CancelGraceSeconds)
	}
}

func TestLoadRejectsBadLogging(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[logging]\nformat = \"xml\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for unsupported log format")
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.WriteSample(path); err != nil {
		t.Fatalf("WriteSample failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[worker]") {
		t.Fatal("sample config missing worker section")
	}
	if err := config.WriteSample(path); err == nil {
		t.Fatal("expected error overwriting existing config")
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.QueuePath = filepath.Join(dir, "state", "queue.json")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	cfg.Paths.OutputDir = filepath.Join(dir, "notes")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, p := range []string{filepath.Join(dir, "state"), cfg.Paths.LogDir, cfg.Paths.OutputDir} {
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s, err=%v", p, err)
		}
	}
}
