package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/courseforge/courseforge-backend/internal/pkg/logger"
	"github.com/courseforge/courseforge-backend/internal/utils"
)

// Snippet is one retrieved excerpt with its relevance score.
type Snippet struct {
	Text           string         `json:"text"`
	RelevanceScore float64        `json:"relevance_score"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type Options struct {
	TopK       int
	MinQuality float64
}

// Client talks to the external content retrieval service. Retrieval is
// best-effort from the pipeline's perspective; callers log failures and move
// on.
type Client interface {
	Retrieve(ctx context.Context, query string, opts Options) ([]Snippet, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(os.Getenv("RETRIEVAL_BASE_URL")), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("missing RETRIEVAL_BASE_URL")
	}
	timeoutSec := utils.GetEnvAsInt("RETRIEVAL_TIMEOUT_SECONDS", 15, log)
	return &client{
		log:        log.With("service", "RetrievalClient"),
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(os.Getenv("RETRIEVAL_API_KEY")),
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

// NewClientWithBase is the constructor used by tests.
func NewClientWithBase(log *logger.Logger, baseURL string) Client {
	return &client{
		log:        log.With("service", "RetrievalClient"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type retrieveRequest struct {
	Query      string  `json:"query"`
	TopK       int     `json:"top_k"`
	MinQuality float64 `json:"min_quality"`
}

type retrieveResponse struct {
	Results []Snippet `json:"results"`
}

func (c *client) Retrieve(ctx context.Context, query string, opts Options) ([]Snippet, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query required")
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(retrieveRequest{
		Query:      query,
		TopK:       opts.TopK,
		MinQuality: opts.MinQuality,
	}); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/retrieve", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("retrieval http %d: %s", resp.StatusCode, string(raw))
	}

	var out retrieveResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("retrieval decode error: %w", err)
	}

	// The service is expected to filter by min_quality itself; filter again
	// here so a misbehaving deployment can't leak low-relevance snippets.
	filtered := make([]Snippet, 0, len(out.Results))
	for _, s := range out.Results {
		if s.RelevanceScore >= opts.MinQuality && strings.TrimSpace(s.Text) != "" {
			filtered = append(filtered, s)
		}
	}
	return filtered, nil
}
