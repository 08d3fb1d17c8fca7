package providers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/edison-llm/edison/pkg/model"
)

// ResponseCache stores chat responses keyed by a content fingerprint, so
// identical (provider, model, messages, params, seed) calls within the
// TTL produce byte-equal results without a second provider round trip.
// Shared across iterations and workers: readers never block writers.
type ResponseCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	response ChatResponse
	storedAt time.Time
}

// NewResponseCache creates a cache with the given entry TTL. A zero TTL
// defaults to one hour, matching the documented default.
func NewResponseCache(ttl time.Duration) *ResponseCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ResponseCache{entries: make(map[string]cacheEntry), ttl: ttl}
}

// Fingerprint computes H = sha256(provider || modelId || normalizedMessages || params || seed).
// Length-prefixed encoding of each message guards against boundary-collision
// between adjacent fields.
func Fingerprint(provider, modelID string, messages []model.Message, opts ChatOptions) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d:%s|%d:%s|", len(provider), provider, len(modelID), modelID)
	for _, m := range messages {
		fmt.Fprintf(h, "%d:%s:%d:%s|", len(string(m.Role)), m.Role, len(m.Content), m.Content)
	}
	seed := int64(-1)
	if opts.Seed != nil {
		seed = *opts.Seed
	}
	fmt.Fprintf(h, "t=%.4f,mt=%d,tp=%.4f,fp=%.4f,pp=%.4f,seed=%d,stop=%v,fmt=%s",
		opts.Temperature, opts.MaxTokens, opts.TopP, opts.FrequencyPenalty, opts.PresencePenalty,
		seed, opts.StopSequences, opts.ResponseFormat)
	return hex.EncodeToString(h.Sum(nil))
}

// Cacheable reports whether a call with these options is eligible for the
// cache: the caller must opt in via AllowCache, and the call must be
// deterministic (a seed, or temperature 0). A call with no seed and
// temperature > 0 is never cached, even with AllowCache set.
func Cacheable(opts ChatOptions) bool {
	if !opts.AllowCache {
		return false
	}
	if opts.Seed == nil && opts.Temperature > 0 {
		return false
	}
	return true
}

// Get returns a stored response if present and not expired. The returned
// response always has Cached=true.
func (c *ResponseCache) Get(fingerprint string) (ChatResponse, bool) {
	c.mu.RLock()
	entry, ok := c.entries[fingerprint]
	c.mu.RUnlock()
	if !ok || time.Since(entry.storedAt) > c.ttl {
		return ChatResponse{}, false
	}
	resp := entry.response
	resp.Cached = true
	return resp, true
}

// Put stores a response under the fingerprint, compare-and-set style:
// an existing unexpired entry is left untouched so concurrent writers
// converge on the first successful call.
func (c *ResponseCache) Put(fingerprint string, resp ChatResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[fingerprint]; ok && time.Since(existing.storedAt) <= c.ttl {
		return
	}
	c.entries[fingerprint] = cacheEntry{response: resp, storedAt: time.Now()}
}

// Purge removes all expired entries and returns how many were dropped.
func (c *ResponseCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for k, v := range c.entries {
		if time.Since(v.storedAt) > c.ttl {
			delete(c.entries, k)
			dropped++
		}
	}
	return dropped
}

// Size returns the number of cached entries, expired or not.
func (c *ResponseCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
