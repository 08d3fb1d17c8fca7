package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edison-llm/edison/pkg/ratelimit"
)

func TestBucket_BurstThenExhausted(t *testing.T) {
	b := ratelimit.NewBucket(3, 0.001) // effectively no refill during the test

	assert.True(t, b.TryAcquire())
	assert.True(t, b.TryAcquire())
	assert.True(t, b.TryAcquire())
	assert.False(t, b.TryAcquire())
}

func TestBucket_Refills(t *testing.T) {
	b := ratelimit.NewBucket(1, 100) // 100 tokens/sec

	require.True(t, b.TryAcquire())
	require.False(t, b.TryAcquire())

	time.Sleep(30 * time.Millisecond)
	assert.True(t, b.TryAcquire())
}

func TestBucket_WaitBlocksUntilToken(t *testing.T) {
	b := ratelimit.NewBucket(1, 50)
	require.True(t, b.TryAcquire())

	start := time.Now()
	require.NoError(t, b.Wait(context.Background()))
	// At 50 tokens/sec the next token arrives in ~20ms.
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestBucket_WaitRespectsContext(t *testing.T) {
	b := ratelimit.NewBucket(1, 0.001)
	require.True(t, b.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := b.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRegistry_PerProviderModelBudgets(t *testing.T) {
	r := ratelimit.NewRegistry()
	gpt := ratelimit.Key{Provider: "openai", Model: "gpt-4o"}
	claude := ratelimit.Key{Provider: "anthropic", Model: "claude-sonnet-4.5"}

	r.Set(gpt, 1)

	// gpt's single burst token drains; claude stays unlimited.
	require.NoError(t, r.Wait(context.Background(), gpt))
	for i := 0; i < 5; i++ {
		require.NoError(t, r.Wait(context.Background(), claude))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Wait(ctx, gpt), context.DeadlineExceeded)
}

func TestRegistry_SetZeroRemovesBucket(t *testing.T) {
	r := ratelimit.NewRegistry()
	key := ratelimit.Key{Provider: "openai", Model: "gpt-4o-mini"}

	r.Set(key, 1)
	require.NoError(t, r.Wait(context.Background(), key)) // drains the burst

	r.Set(key, 0)
	// Unlimited again: repeated waits return immediately.
	for i := 0; i < 3; i++ {
		require.NoError(t, r.Wait(context.Background(), key))
	}
}
