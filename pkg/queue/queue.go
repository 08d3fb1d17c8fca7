// Package queue implements the FIFO+priority job queues and bounded
// worker pools that drive the five iteration phase families (execute-run,
// judge-outputs, aggregate-scores, refine-prompt, generate-dataset) plus
// safety-scan. Workers drain a priority heap one job per goroutine, with
// retry/backoff on transient failure and a dead-letter record once
// attempts are exhausted.
package queue

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/edison-llm/edison/pkg/edisonerr"
	"github.com/edison-llm/edison/pkg/metrics"
	"github.com/edison-llm/edison/pkg/retry"
)

// Job is one unit of work submitted to a Queue.
type Job struct {
	ID          string
	Queue       string
	Payload     any
	Priority    int // lower number = higher priority
	Attempts    int
	MaxAttempts int
	DedupKey    string
	EnqueuedAt  time.Time
	readyAt     time.Time
	attemptNum  int
}

// DeadLetter records a job that exhausted its attempts.
type DeadLetter struct {
	Job       Job
	LastError error
	FailedAt  time.Time
}

// EnqueueOptions configures one Enqueue call.
type EnqueueOptions struct {
	Priority    int
	MaxAttempts int
	Delay       time.Duration
	DedupKey    string
}

// Handler processes one job. A returned error that retry.Config considers
// retryable triggers a re-queue with backoff; otherwise the job is
// dead-lettered immediately.
type Handler func(ctx context.Context, job *Job) error

// CancelFunc reports whether the queue's owning iteration has been
// paused/cancelled, checked between job boundaries; cancellation is
// cooperative and never interrupts an in-flight provider call.
type CancelFunc func() bool

// Options configures a Pool.
type Options struct {
	Concurrency int
	RetryConfig retry.Config
	Metrics     *metrics.Metrics
	// Cancel, if set, is polled before dispatching each job; when it
	// returns true the worker parks the job back on the heap and stops
	// pulling new work until the pool is stopped or drained.
	Cancel CancelFunc
}

// DefaultOptions returns sensible defaults: 5 workers, the package retry
// default (3 attempts, exponential backoff with jitter).
func DefaultOptions() Options {
	return Options{
		Concurrency: 5,
		RetryConfig: retry.DefaultConfig(),
	}
}

// Pool is a bounded worker pool draining a single priority heap. Jobs from
// any queue name may share a Pool; phase families are conventionally given
// separate Pools so their concurrency caps are independent.
type Pool struct {
	opts Options

	mu       sync.Mutex
	cond     *sync.Cond
	heap     jobHeap
	inflight int
	dedup    map[string]struct{}
	deadMu   sync.Mutex
	dead     []DeadLetter
	stopped  bool
	handler  Handler
	wg       sync.WaitGroup
	started  bool
}

// New creates a Pool that dispatches jobs to handler.
func New(opts Options, handler Handler) *Pool {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	p := &Pool{opts: opts, dedup: make(map[string]struct{}), handler: handler}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Enqueue adds a job to the heap, ready for immediate dispatch unless
// Delay is set. A non-empty DedupKey already seen by this Pool (whether
// that job is pending, done, or dead-lettered) is silently ignored
// (deduplication); keys are never released.
func (p *Pool) Enqueue(queue string, payload any, opts EnqueueOptions) *Job {
	p.mu.Lock()
	defer p.mu.Unlock()

	if opts.DedupKey != "" {
		if _, exists := p.dedup[opts.DedupKey]; exists {
			return nil
		}
		p.dedup[opts.DedupKey] = struct{}{}
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	job := &Job{
		ID:          uuid.NewString(),
		Queue:       queue,
		Payload:     payload,
		Priority:    opts.Priority,
		MaxAttempts: maxAttempts,
		DedupKey:    opts.DedupKey,
		EnqueuedAt:  time.Now(),
		readyAt:     time.Now().Add(opts.Delay),
	}
	heap.Push(&p.heap, job)
	if p.opts.Metrics != nil {
		atomic.AddInt64(&p.opts.Metrics.JobsTotal, 1)
	}
	p.cond.Signal()
	return job
}

// Start launches Concurrency worker goroutines. It returns immediately;
// call Stop or cancel ctx to shut the pool down.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	for i := 0; i < p.opts.Concurrency; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}

	go func() {
		<-ctx.Done()
		p.Stop()
	}()
}

// Stop signals all workers to exit once their current job completes and
// waits for them to drain.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

// DeadLetters returns a snapshot of jobs that exhausted their attempts.
func (p *Pool) DeadLetters() []DeadLetter {
	p.deadMu.Lock()
	defer p.deadMu.Unlock()
	out := make([]DeadLetter, len(p.dead))
	copy(out, p.dead)
	return out
}

// Pending returns the number of jobs waiting in the heap.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.heap)
}

// Drain blocks until every enqueued job has reached a terminal outcome
// (success or dead-letter), or ctx is cancelled. Jobs parked by a
// cooperative-cancellation check count as pending, so callers that
// pause a pool should cancel ctx rather than wait for an empty heap.
func (p *Pool) Drain(ctx context.Context) error {
	for {
		p.mu.Lock()
		done := len(p.heap) == 0 && p.inflight == 0
		p.mu.Unlock()
		if done {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		job := p.next(ctx)
		if job == nil {
			return
		}
		if p.opts.Cancel != nil && p.opts.Cancel() {
			// Cooperative cancellation: stop pulling new jobs, but this
			// job was already dequeued; park it back so resume picks it
			// up at the next case boundary.
			p.requeueFront(job)
			return
		}
		p.execute(ctx, job)
	}
}

// next blocks until a ready job is available, the pool is stopped, or ctx
// is cancelled.
func (p *Pool) next(ctx context.Context) *Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		if p.stopped || ctx.Err() != nil {
			return nil
		}
		if len(p.heap) > 0 && !p.heap[0].readyAt.After(time.Now()) {
			p.inflight++
			return heap.Pop(&p.heap).(*Job)
		}
		if len(p.heap) > 0 {
			// A job exists but isn't ready yet; wake periodically.
			p.mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			p.mu.Lock()
			continue
		}
		p.cond.Wait()
	}
}

func (p *Pool) requeueFront(job *Job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inflight--
	heap.Push(&p.heap, job)
}

func (p *Pool) execute(ctx context.Context, job *Job) {
	job.attemptNum++
	err := p.handler(ctx, job)
	if err == nil {
		if p.opts.Metrics != nil {
			atomic.AddInt64(&p.opts.Metrics.JobsSucceeded, 1)
		}
		p.settle()
		return
	}

	if p.opts.RetryConfig.ShouldRetry(err) && job.attemptNum < job.MaxAttempts {
		delay := p.opts.RetryConfig.Delay(job.attemptNum)
		p.mu.Lock()
		job.readyAt = time.Now().Add(delay)
		heap.Push(&p.heap, job)
		p.inflight--
		p.cond.Signal()
		p.mu.Unlock()
		return
	}

	if p.opts.Metrics != nil {
		atomic.AddInt64(&p.opts.Metrics.JobsFailed, 1)
	}
	p.deadMu.Lock()
	p.dead = append(p.dead, DeadLetter{Job: *job, LastError: err, FailedAt: time.Now()})
	p.deadMu.Unlock()
	p.settle()
}

func (p *Pool) settle() {
	p.mu.Lock()
	p.inflight--
	p.mu.Unlock()
}

// ErrQueueStopped is returned by callers that attempt to enqueue after Stop.
var ErrQueueStopped = edisonerr.New(edisonerr.Internal, "queue", "pool stopped")

// jobHeap is a min-heap ordered by (Priority, EnqueuedAt) so equal-priority
// jobs preserve FIFO order.
type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].EnqueuedAt.Before(h[j].EnqueuedAt)
}
func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *jobHeap) Push(x any)   { *h = append(*h, x.(*Job)) }
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
