package providers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/edison-llm/edison/pkg/model"
)

func TestFingerprint_Deterministic(t *testing.T) {
	msgs := []model.Message{{Role: model.RoleUser, Content: "hi"}}
	seed := int64(42)
	opts := ChatOptions{Temperature: 0, Seed: &seed}

	a := Fingerprint("openai", "gpt-4o", msgs, opts)
	b := Fingerprint("openai", "gpt-4o", msgs, opts)
	assert.Equal(t, a, b)

	c := Fingerprint("openai", "gpt-4o-mini", msgs, opts)
	assert.NotEqual(t, a, c)
}

func TestCacheable_RequiresSeedOrZeroTemp(t *testing.T) {
	seed := int64(1)
	assert.True(t, Cacheable(ChatOptions{AllowCache: true, Temperature: 0.7, Seed: &seed}))
	assert.True(t, Cacheable(ChatOptions{AllowCache: true, Temperature: 0}))
	assert.False(t, Cacheable(ChatOptions{AllowCache: true, Temperature: 0.7}))
	assert.False(t, Cacheable(ChatOptions{AllowCache: false, Temperature: 0}))
}

func TestResponseCache_HitsWithinTTL(t *testing.T) {
	cache := NewResponseCache(50 * time.Millisecond)
	fp := "fp1"
	cache.Put(fp, ChatResponse{Text: "hello", PromptTokens: 3, CompletionTokens: 1})

	got, ok := cache.Get(fp)
	assert.True(t, ok)
	assert.True(t, got.Cached)
	assert.Equal(t, "hello", got.Text)

	time.Sleep(70 * time.Millisecond)
	_, ok = cache.Get(fp)
	assert.False(t, ok)
}

func TestResponseCache_PutDoesNotOverwriteFresh(t *testing.T) {
	cache := NewResponseCache(time.Hour)
	fp := "fp2"
	cache.Put(fp, ChatResponse{Text: "first"})
	cache.Put(fp, ChatResponse{Text: "second"})

	got, ok := cache.Get(fp)
	assert.True(t, ok)
	assert.Equal(t, "first", got.Text)
}
