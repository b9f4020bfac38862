package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/courseforge/courseforge-backend/internal/pkg/logger"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	cfg, err := LoadConfig(log)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("default addr: %q", cfg.HTTPAddr)
	}
	if cfg.Worker.Concurrency != 4 || cfg.Worker.MaxAttempts != 3 {
		t.Fatalf("worker defaults: %+v", cfg.Worker)
	}
	if cfg.Tuning.MinQualityScore != 70 || cfg.Tuning.SessionFanout != 3 {
		t.Fatalf("tuning defaults: %+v", cfg.Tuning)
	}
}

func TestLoadConfigYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
http_addr: ":9090"
worker:
  concurrency: 8
  stale_running_minutes: 90
tuning:
  min_quality_score: 80
  inter_batch_delay_ms: 250
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	cfg, err := LoadConfig(log)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("overlay addr: %q", cfg.HTTPAddr)
	}
	if cfg.Worker.Concurrency != 8 || cfg.Worker.StaleRunning != 90*time.Minute {
		t.Fatalf("overlay worker: %+v", cfg.Worker)
	}
	if cfg.Tuning.MinQualityScore != 80 || cfg.Tuning.InterBatchDelay != 250*time.Millisecond {
		t.Fatalf("overlay tuning: %+v", cfg.Tuning)
	}
	// Values the file does not name keep their env defaults.
	if cfg.Worker.MaxAttempts != 3 {
		t.Fatalf("max attempts overwritten: %d", cfg.Worker.MaxAttempts)
	}
}
