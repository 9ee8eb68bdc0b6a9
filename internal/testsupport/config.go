// Package testsupport provides shared helpers for package tests: temp-dir
// configs, store construction, and stub worker scripts.
package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"lectern/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.QueuePath = filepath.Join(base, "queue.json")
	cfg.Paths.OutputDir = filepath.Join(base, "notes")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Worker.Command = filepath.Join(base, "bin", "worker")
	cfg.Workflow.CancelGraceSeconds = 2

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithWorkerScript writes a shell script as the worker command. The script
// body runs with the per-job arguments in "$@".
func WithWorkerScript(t testing.TB, body string) ConfigOption {
	t.Helper()
	return func(cfg *config.Config) {
		dir := filepath.Dir(cfg.Worker.Command)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir worker dir: %v", err)
		}
		script := fmt.Sprintf("#!/bin/sh\n%s\n", body)
		if err := os.WriteFile(cfg.Worker.Command, []byte(script), 0o755); err != nil {
			t.Fatalf("write worker script: %v", err)
		}
	}
}

// WriteSourceFile creates a throwaway input artifact and returns its path.
func WriteSourceFile(t testing.TB, cfg *config.Config, name string) string {
	t.Helper()
	dir := filepath.Join(filepath.Dir(cfg.Paths.QueuePath), "uploads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir uploads: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("video-bytes"), 0o644); err != nil {
		t.Fatalf("write source file: %v", err)
	}
	return path
}
