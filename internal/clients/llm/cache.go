package llm

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ResponseCache stores raw completion text keyed by a hash of the rendered
// prompt. It is injected so workers can size (or disable) it explicitly
// instead of growing an unbounded process-lifetime map.
type ResponseCache interface {
	Get(key string) (string, bool)
	Add(key string, text string)
}

type lruCache struct {
	inner *lru.Cache[string, string]
}

func NewLRUCache(size int) (ResponseCache, error) {
	if size <= 0 {
		size = 256
	}
	inner, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &lruCache{inner: inner}, nil
}

func (c *lruCache) Get(key string) (string, bool) { return c.inner.Get(key) }
func (c *lruCache) Add(key string, text string)   { c.inner.Add(key, text) }

func cacheKey(stage, system, user string) string {
	h := sha256.New()
	h.Write([]byte(stage))
	h.Write([]byte{0})
	h.Write([]byte(system))
	h.Write([]byte{0})
	h.Write([]byte(user))
	return hex.EncodeToString(h.Sum(nil))
}
