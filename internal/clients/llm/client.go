package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/courseforge/courseforge-backend/internal/pkg/httpx"
	"github.com/courseforge/courseforge-backend/internal/pkg/logger"
	"github.com/courseforge/courseforge-backend/internal/utils"
)

// ErrCostCeiling is returned before any call once the cumulative estimated
// spend for this process would exceed the configured ceiling.
var ErrCostCeiling = errors.New("completion cost ceiling exceeded")

// CompletionRequest is one fully-rendered prompt for a generation stage.
// Stage participates in the cache key so identical text rendered for
// different stages never collides.
type CompletionRequest struct {
	Stage       string
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Client wraps the external text-completion service. It owns retry/backoff,
// cost accounting and response caching; callers get raw text back and run it
// through the parse package themselves.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	Usage() Usage
}

type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	Timeout   time.Duration
	BaseDelay time.Duration
	// MaxRetryDelay caps a single backoff sleep, including Retry-After hints.
	MaxRetryDelay time.Duration
	MaxRetries    int
	// CostCeilingUSD bounds cumulative estimated spend for the process.
	CostCeilingUSD float64
	// CostPer1KTokensUSD is the blended price used for estimation.
	CostPer1KTokensUSD float64
}

func ConfigFromEnv(log *logger.Logger) (Config, error) {
	apiKey := strings.TrimSpace(os.Getenv("COMPLETION_API_KEY"))
	if apiKey == "" {
		return Config{}, fmt.Errorf("missing COMPLETION_API_KEY")
	}
	baseURL := strings.TrimRight(utils.GetEnv("COMPLETION_BASE_URL", "https://api.openai.com", log), "/")
	return Config{
		BaseURL:            baseURL,
		APIKey:             apiKey,
		Model:              utils.GetEnv("COMPLETION_MODEL", "gpt-4o-mini", log),
		Timeout:            time.Duration(utils.GetEnvAsInt("COMPLETION_TIMEOUT_SECONDS", 180, log)) * time.Second,
		BaseDelay:          time.Duration(utils.GetEnvAsInt("COMPLETION_RETRY_BASE_MS", 1000, log)) * time.Millisecond,
		MaxRetryDelay:      time.Duration(utils.GetEnvAsInt("COMPLETION_RETRY_MAX_MS", 10000, log)) * time.Millisecond,
		MaxRetries:         utils.GetEnvAsInt("COMPLETION_MAX_RETRIES", 4, log),
		CostCeilingUSD:     utils.GetEnvAsFloat("COMPLETION_COST_CEILING_USD", 10.0, log),
		CostPer1KTokensUSD: utils.GetEnvAsFloat("COMPLETION_COST_PER_1K_TOKENS_USD", 0.002, log),
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
	cache      ResponseCache
	usage      *usageCounters
}

func NewClient(log *logger.Logger, cfg Config, cache ResponseCache) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key required")
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	return &client{
		log:        log.With("service", "CompletionClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      cache,
		usage:      &usageCounters{},
	}, nil
}

type completionHTTPError struct {
	StatusCode int
	Body       string
}

func (e *completionHTTPError) Error() string {
	return fmt.Sprintf("completion http %d: %s", e.StatusCode, e.Body)
}

func (e *completionHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	key := cacheKey(req.Stage, req.System, req.User)
	if c.cache != nil {
		if text, ok := c.cache.Get(key); ok {
			c.log.Debug("Completion cache hit", "stage", req.Stage)
			c.usage.recordCacheHit()
			return text, nil
		}
	}

	if err := c.checkCostCeiling(req); err != nil {
		return "", err
	}

	body := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	var resp chatResponse
	if err := c.do(ctx, "/v1/chat/completions", body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion response contained no choices")
	}
	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("completion response contained empty content")
	}

	c.usage.record(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, c.cfg.CostPer1KTokensUSD)

	if c.cache != nil {
		c.cache.Add(key, text)
	}
	return text, nil
}

func (c *client) Usage() Usage {
	return c.usage.snapshot()
}

// checkCostCeiling fails fast before issuing a call whose estimated spend
// would push the cumulative total past the ceiling. Estimation is rough
// (4 chars per token) but errs on the side of stopping runaway jobs.
func (c *client) checkCostCeiling(req CompletionRequest) error {
	if c.cfg.CostCeilingUSD <= 0 {
		return nil
	}
	promptTokens := (len(req.System) + len(req.User)) / 4
	estimated := float64(promptTokens+req.MaxTokens) / 1000.0 * c.cfg.CostPer1KTokensUSD
	current := c.usage.snapshot().EstimatedCostUSD
	if current+estimated > c.cfg.CostCeilingUSD {
		c.log.Error("Completion cost ceiling reached",
			"ceiling_usd", c.cfg.CostCeilingUSD,
			"spent_usd", current,
			"next_call_estimate_usd", estimated,
		)
		return fmt.Errorf("%w: spent %.4f of %.4f USD", ErrCostCeiling, current, c.cfg.CostCeilingUSD)
	}
	return nil
}

func (c *client) doOnce(ctx context.Context, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &completionHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

// do runs the request with exponential backoff (base * 2^(attempt-1), with
// jitter, honoring Retry-After). Authentication, permission and
// malformed-request failures propagate immediately.
func (c *client) do(ctx context.Context, path string, body any, out any) error {
	backoff := c.cfg.BaseDelay

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("completion decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		var he *completionHTTPError
		if errors.As(err, &he) && httpx.IsPermanentHTTPStatus(he.StatusCode) {
			return err
		}
		if !httpx.IsRetryableError(err) {
			return err
		}
		if attempt == c.cfg.MaxRetries {
			return err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, c.cfg.MaxRetryDelay)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("Completion request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepFor):
		}
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}
