package queue_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edison-llm/edison/pkg/edisonerr"
	"github.com/edison-llm/edison/pkg/queue"
	"github.com/edison-llm/edison/pkg/retry"
)

func TestPool_ExecutesAllJobs(t *testing.T) {
	var processed int64
	opts := queue.DefaultOptions()
	opts.Concurrency = 4
	p := queue.New(opts, func(ctx context.Context, job *queue.Job) error {
		atomic.AddInt64(&processed, 1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	for i := 0; i < 20; i++ {
		p.Enqueue("execute-run", i, queue.EnqueueOptions{})
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&processed) == 20
	}, time.Second, 5*time.Millisecond)

	cancel()
	p.Stop()
}

func TestPool_PriorityOrdering(t *testing.T) {
	var mu sync.Mutex
	var order []int
	opts := queue.DefaultOptions()
	opts.Concurrency = 1
	p := queue.New(opts, func(ctx context.Context, job *queue.Job) error {
		mu.Lock()
		order = append(order, job.Payload.(int))
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Enqueue low priority first, then high priority; with one worker the
	// high-priority job enqueued second should still run first once it is
	// the only one waiting to be picked up.
	p.Enqueue("q", 1, queue.EnqueueOptions{Priority: 10})
	p.Enqueue("q", 2, queue.EnqueueOptions{Priority: 0})
	p.Start(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, 2, order[0])
	assert.Equal(t, 1, order[1])
	mu.Unlock()
	p.Stop()
}

func TestPool_RetriesTransientFailuresThenDeadLetters(t *testing.T) {
	var attempts int64
	opts := queue.DefaultOptions()
	opts.Concurrency = 1
	opts.RetryConfig = retry.Config{
		MaxAttempts:       3,
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 1.5,
	}
	p := queue.New(opts, func(ctx context.Context, job *queue.Job) error {
		atomic.AddInt64(&attempts, 1)
		return edisonerr.New(edisonerr.ProviderTransient, "test", "transient failure")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Enqueue("judge-outputs", "payload", queue.EnqueueOptions{MaxAttempts: 3})
	p.Start(ctx)

	require.Eventually(t, func() bool {
		return len(p.DeadLetters()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, int64(3), atomic.LoadInt64(&attempts))
	dl := p.DeadLetters()[0]
	assert.True(t, edisonerr.Is(dl.LastError, edisonerr.ProviderTransient))
	p.Stop()
}

func TestPool_NonRetryableFailsImmediately(t *testing.T) {
	var attempts int64
	opts := queue.DefaultOptions()
	p := queue.New(opts, func(ctx context.Context, job *queue.Job) error {
		atomic.AddInt64(&attempts, 1)
		return edisonerr.New(edisonerr.Validation, "test", "bad payload")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Enqueue("execute-run", "bad", queue.EnqueueOptions{MaxAttempts: 5})
	p.Start(ctx)

	require.Eventually(t, func() bool {
		return len(p.DeadLetters()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), atomic.LoadInt64(&attempts))
	p.Stop()
}

func TestPool_DeduplicatesByKey(t *testing.T) {
	opts := queue.DefaultOptions()
	p := queue.New(opts, func(ctx context.Context, job *queue.Job) error { return nil })

	first := p.Enqueue("execute-run", 1, queue.EnqueueOptions{DedupKey: "case-1"})
	second := p.Enqueue("execute-run", 2, queue.EnqueueOptions{DedupKey: "case-1"})

	assert.NotNil(t, first)
	assert.Nil(t, second)
	assert.Equal(t, 1, p.Pending())
}
