package providers

import (
	"context"
	"time"

	"github.com/edison-llm/edison/pkg/circuitbreaker"
	"github.com/edison-llm/edison/pkg/edisonerr"
	"github.com/edison-llm/edison/pkg/model"
	"github.com/edison-llm/edison/pkg/retry"
)

// defaultTimeout is the deadline every outbound call is wrapped in when the
// caller does not specify one, independent of the adapter's own socket
// timeout.
const defaultTimeout = 60 * time.Second

// DefaultRetryConfig is the provider retry policy. The schedule's
// default predicate already retries only RateLimit, ProviderTransient
// and Timeout kinds.
func DefaultRetryConfig() retry.Config {
	return retry.DefaultConfig()
}

// Invoke is the shared call path every adapter's Chat implementation
// routes through: cache lookup, rate-limit wait, circuit breaker,
// deadline, retry, and cache population, in that order.
func Invoke(
	ctx context.Context,
	cache *ResponseCache,
	breaker *circuitbreaker.Breaker,
	retryCfg retry.Config,
	provider, modelID string,
	messages []model.Message,
	opts ChatOptions,
	call func(ctx context.Context) (*ChatResponse, error),
) (*ChatResponse, error) {
	var fingerprint string
	cacheable := cache != nil && Cacheable(opts)
	if cacheable {
		fingerprint = Fingerprint(provider, modelID, messages, opts)
		if resp, ok := cache.Get(fingerprint); ok {
			return &resp, nil
		}
	}

	if err := waitRateLimit(ctx, provider, modelID); err != nil {
		return nil, edisonerr.Wrap(edisonerr.Timeout, provider, "rate limit wait interrupted", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var result *ChatResponse
	err := breaker.Do(func() error {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return retry.Do(callCtx, retryCfg, func() error {
			resp, callErr := call(callCtx)
			if callErr != nil {
				if callCtx.Err() != nil {
					return edisonerr.Wrap(edisonerr.Timeout, provider, "deadline exceeded", callErr)
				}
				return callErr
			}
			result = resp
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if cacheable && result != nil {
		cache.Put(fingerprint, *result)
	}
	return result, nil
}
