package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/courseforge/courseforge-backend/internal/jobs/pipeline/course_generate"
	"github.com/courseforge/courseforge-backend/internal/jobs/worker"
	"github.com/courseforge/courseforge-backend/internal/pkg/logger"
	"github.com/courseforge/courseforge-backend/internal/utils"
)

// Config carries everything tunable at boot. Environment variables set the
// baseline; an optional YAML file named by CONFIG_FILE overlays it for the
// values it names. The prompt override file rides along the same way.
type Config struct {
	HTTPAddr     string
	AllowOrigins []string
	PromptFile   string

	Worker worker.Policy
	Tuning course_generate.Tuning

	CacheSize int
}

type fileConfig struct {
	HTTPAddr     string   `yaml:"http_addr"`
	AllowOrigins []string `yaml:"allow_origins"`
	PromptFile   string   `yaml:"prompt_file"`
	CacheSize    int      `yaml:"cache_size"`

	Worker struct {
		Concurrency         int `yaml:"concurrency"`
		PollIntervalSeconds int `yaml:"poll_interval_seconds"`
		MaxAttempts         int `yaml:"max_attempts"`
		StaleRunningMinutes int `yaml:"stale_running_minutes"`
	} `yaml:"worker"`

	Tuning struct {
		MinQualityScore      int     `yaml:"min_quality_score"`
		SessionFanout        int     `yaml:"session_fanout"`
		InterBatchDelayMilli int     `yaml:"inter_batch_delay_ms"`
		Temperature          float64 `yaml:"temperature"`
	} `yaml:"tuning"`
}

func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := Config{
		HTTPAddr:     utils.GetEnv("HTTP_ADDR", ":8080", log),
		AllowOrigins: splitCSV(utils.GetEnv("ALLOW_ORIGINS", "http://localhost:3000", log)),
		PromptFile:   strings.TrimSpace(os.Getenv("PROMPT_FILE")),
		CacheSize:    utils.GetEnvAsInt("COMPLETION_CACHE_SIZE", 256, log),
		Worker: worker.Policy{
			Concurrency:  utils.GetEnvAsInt("WORKER_CONCURRENCY", 4, log),
			PollInterval: time.Duration(utils.GetEnvAsInt("WORKER_POLL_INTERVAL_SECONDS", 1, log)) * time.Second,
			MaxAttempts:  utils.GetEnvAsInt("WORKER_MAX_ATTEMPTS", 3, log),
			StaleRunning: time.Duration(utils.GetEnvAsInt("WORKER_STALE_RUNNING_MINUTES", 30, log)) * time.Minute,
		},
		Tuning: course_generate.Tuning{
			MinQualityScore: utils.GetEnvAsInt("GENERATION_MIN_QUALITY_SCORE", 70, log),
			SessionFanout:   utils.GetEnvAsInt("GENERATION_SESSION_FANOUT", 3, log),
			InterBatchDelay: time.Duration(utils.GetEnvAsInt("GENERATION_INTER_BATCH_DELAY_MS", 500, log)) * time.Millisecond,
			Temperature:     utils.GetEnvAsFloat("GENERATION_TEMPERATURE", 0.7, log),
		},
	}

	path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	cfg.applyOverlay(fc)
	log.Info("Applied config overlay", "path", path)
	return cfg, nil
}

func (c *Config) applyOverlay(fc fileConfig) {
	if fc.HTTPAddr != "" {
		c.HTTPAddr = fc.HTTPAddr
	}
	if len(fc.AllowOrigins) > 0 {
		c.AllowOrigins = fc.AllowOrigins
	}
	if fc.PromptFile != "" {
		c.PromptFile = fc.PromptFile
	}
	if fc.CacheSize > 0 {
		c.CacheSize = fc.CacheSize
	}
	if fc.Worker.Concurrency > 0 {
		c.Worker.Concurrency = fc.Worker.Concurrency
	}
	if fc.Worker.PollIntervalSeconds > 0 {
		c.Worker.PollInterval = time.Duration(fc.Worker.PollIntervalSeconds) * time.Second
	}
	if fc.Worker.MaxAttempts > 0 {
		c.Worker.MaxAttempts = fc.Worker.MaxAttempts
	}
	if fc.Worker.StaleRunningMinutes > 0 {
		c.Worker.StaleRunning = time.Duration(fc.Worker.StaleRunningMinutes) * time.Minute
	}
	if fc.Tuning.MinQualityScore > 0 {
		c.Tuning.MinQualityScore = fc.Tuning.MinQualityScore
	}
	if fc.Tuning.SessionFanout > 0 {
		c.Tuning.SessionFanout = fc.Tuning.SessionFanout
	}
	if fc.Tuning.InterBatchDelayMilli > 0 {
		c.Tuning.InterBatchDelay = time.Duration(fc.Tuning.InterBatchDelayMilli) * time.Millisecond
	}
	if fc.Tuning.Temperature > 0 {
		c.Tuning.Temperature = fc.Tuning.Temperature
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
