package appconfig

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("could not write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"backendUrl": "http://localhost:8000"}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.BackendURL != "http://localhost:8000" {
		t.Fatalf("backend = %q", cfg.BackendURL)
	}
	if cfg.RequestTimeout() != 30*time.Second {
		t.Fatalf("timeout = %s", cfg.RequestTimeout())
	}
	if cfg.WorkerCount() != 4 {
		t.Fatalf("workers = %d", cfg.WorkerCount())
	}
	if cfg.RetryCount() != 2 {
		t.Fatalf("retries = %d", cfg.RetryCount())
	}
	if cfg.FusionK() != 60 {
		t.Fatalf("rrf k = %d", cfg.FusionK())
	}
	if cfg.OutputDir() != "results" {
		t.Fatalf("out dir = %q", cfg.OutputDir())
	}
	if cfg.TestsetFile() != "config/testset.json" {
		t.Fatalf("testset = %q", cfg.TestsetFile())
	}
	if cfg.RunDeadline() != 0 {
		t.Fatalf("deadline = %s, want none", cfg.RunDeadline())
	}
}

func TestLoadExplicitValues(t *testing.T) {
	path := writeConfig(t, `{
		"backendUrl": "http://rag:9000",
		"concurrency": 8,
		"retries": 5,
		"timeout": 10,
		"deadline": 120,
		"delayMs": 250,
		"rrfK": 20,
		"out": "artifacts"
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.WorkerCount() != 8 || cfg.RetryCount() != 5 {
		t.Fatalf("workers/retries = %d/%d", cfg.WorkerCount(), cfg.RetryCount())
	}
	if cfg.RequestTimeout() != 10*time.Second {
		t.Fatalf("timeout = %s", cfg.RequestTimeout())
	}
	if cfg.RunDeadline() != 2*time.Minute {
		t.Fatalf("deadline = %s", cfg.RunDeadline())
	}
	if cfg.RequestDelay() != 250*time.Millisecond {
		t.Fatalf("delay = %s", cfg.RequestDelay())
	}
	if cfg.FusionK() != 20 || cfg.OutputDir() != "artifacts" {
		t.Fatalf("rrfK/out = %d/%q", cfg.FusionK(), cfg.OutputDir())
	}
}

func TestRetryCountZeroIsHonored(t *testing.T) {
	// An explicit zero disables retries; only a negative sentinel falls
	// back to the default budget.
	if got := (Config{Retries: 0}).RetryCount(); got != 0 {
		t.Fatalf("explicit zero: retries = %d, want 0", got)
	}
	if got := (Config{Retries: -1}).RetryCount(); got != 2 {
		t.Fatalf("unset sentinel: retries = %d, want default 2", got)
	}
	if got := (Config{Retries: 5}).RetryCount(); got != 5 {
		t.Fatalf("explicit value: retries = %d, want 5", got)
	}
}

func TestLoadDistinguishesAbsentFromZeroRetries(t *testing.T) {
	zero, err := Load(writeConfig(t, `{"backendUrl": "http://localhost:8000", "retries": 0}`))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if zero.RetryCount() != 0 {
		t.Fatalf("retries:0 in file gave %d retries, want 0", zero.RetryCount())
	}

	absent, err := Load(writeConfig(t, `{"backendUrl": "http://localhost:8000"}`))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if absent.RetryCount() != 2 {
		t.Fatalf("absent retries gave %d, want default 2", absent.RetryCount())
	}
}

func TestLoadRequiresBackendURL(t *testing.T) {
	path := writeConfig(t, `{"concurrency": 4}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing backendUrl")
	}
}

func TestShowConfig(t *testing.T) {
	cfg := Config{BackendURL: "http://rag:9000", Concurrency: 8}

	var buf bytes.Buffer
	ShowConfig(&buf, "config/config.json", &cfg)
	out := buf.String()

	if !strings.Contains(out, "Config file: config/config.json") {
		t.Fatalf("missing file line:\n%s", out)
	}
	if !strings.Contains(out, "http://rag:9000") || !strings.Contains(out, "Concurrency:    8") {
		t.Fatalf("missing config values:\n%s", out)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
