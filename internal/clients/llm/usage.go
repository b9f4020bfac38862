package llm

import "sync"

// Usage is a point-in-time snapshot of the client's accounting counters.
type Usage struct {
	Calls            int     `json:"calls"`
	CacheHits        int     `json:"cache_hits"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

type usageCounters struct {
	mu               sync.Mutex
	calls            int
	cacheHits        int
	promptTokens     int
	completionTokens int
	estimatedCostUSD float64
}

func (u *usageCounters) recordCacheHit() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.cacheHits++
}

func (u *usageCounters) record(promptTokens, completionTokens int, costPer1K float64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	u.promptTokens += promptTokens
	u.completionTokens += completionTokens
	u.estimatedCostUSD += float64(promptTokens+completionTokens) / 1000.0 * costPer1K
}

func (u *usageCounters) snapshot() Usage {
	u.mu.Lock()
	defer u.mu.Unlock()
	return Usage{
		Calls:            u.calls,
		CacheHits:        u.cacheHits,
		PromptTokens:     u.promptTokens,
		CompletionTokens: u.completionTokens,
		EstimatedCostUSD: u.estimatedCostUSD,
	}
}
