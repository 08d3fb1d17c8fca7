package providers

import (
	"context"

	"github.com/edison-llm/edison/pkg/ratelimit"
)

// buckets is the process-wide rate-limit registry, keyed by
// (provider, model). Together with the response caches it is the only
// mutable state the adapter layer shares across workers.
var buckets = ratelimit.NewRegistry()

// SetRateLimit installs a token bucket for provider/model at rps
// requests per second. rps <= 0 removes any existing bucket.
func SetRateLimit(provider, modelID string, rps float64) {
	buckets.Set(ratelimit.Key{Provider: provider, Model: modelID}, rps)
}

// waitRateLimit blocks until the bucket for provider/model grants a
// token, or ctx is cancelled. No bucket means no limit.
func waitRateLimit(ctx context.Context, provider, modelID string) error {
	return buckets.Wait(ctx, ratelimit.Key{Provider: provider, Model: modelID})
}
