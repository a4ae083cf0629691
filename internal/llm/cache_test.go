package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResponseCache(t *testing.T) {
	c := NewResponseCache(time.Minute)

	_, ok := c.Get("k")
	assert.False(t, ok)

	c.Set("k", `{"vendor":"Coinbase"}`)
	got, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, `{"vendor":"Coinbase"}`, got)
	assert.Equal(t, 1, c.Len())
}

func TestResponseCacheExpiry(t *testing.T) {
	c := NewResponseCache(20 * time.Millisecond)
	c.Set("k", "v")
	time.Sleep(40 * time.Millisecond)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestResponseCacheDisabled(t *testing.T) {
	c := NewResponseCache(0)
	assert.Nil(t, c)

	c.Set("k", "v")
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCacheKeyDistinguishesModels(t *testing.T) {
	a := cacheKey(ProviderOllama, "llama3.2:3b", "prompt")
	b := cacheKey(ProviderOllama, "mistral", "prompt")
	c := cacheKey(ProviderOpenAI, "llama3.2:3b", "prompt")
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, a, cacheKey(ProviderOllama, "llama3.2:3b", "prompt"))
}
