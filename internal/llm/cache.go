package llm

import (
	"crypto/sha256"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// ResponseCache keeps raw model responses keyed by provider, model and prompt
// so a re-run over the same mailbox does not pay for the same completion
// twice. A nil cache is disabled.
type ResponseCache struct {
	items *gocache.Cache
}

// NewResponseCache returns a cache with the given TTL, or nil when ttl is not
// positive.
func NewResponseCache(ttl time.Duration) *ResponseCache {
	if ttl <= 0 {
		return nil
	}
	return &ResponseCache{items: gocache.New(ttl, 2*ttl)}
}

// Get returns a cached response.
func (c *ResponseCache) Get(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	v, ok := c.items.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Set stores a response with the default TTL.
func (c *ResponseCache) Set(key, response string) {
	if c == nil {
		return
	}
	c.items.SetDefault(key, response)
}

// Len reports the number of unexpired entries.
func (c *ResponseCache) Len() int {
	if c == nil {
		return 0
	}
	return c.items.ItemCount()
}

func cacheKey(provider Provider, modelName, prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return fmt.Sprintf("%s:%s:%x", provider, modelName, sum)
}
