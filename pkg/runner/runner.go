// Package runner wires the execute, judge, aggregate, and refine phases
// to the durable store, the job queue, and the provider adapters. The
// orchestrator's state machine stays free of persistence concerns; a
// Runner supplies its phase functions and owns every store write made
// during an iteration.
package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/edison-llm/edison/pkg/edisonerr"
	"github.com/edison-llm/edison/pkg/metrics"
	"github.com/edison-llm/edison/pkg/model"
	"github.com/edison-llm/edison/pkg/providers"
	"github.com/edison-llm/edison/pkg/queue"
	"github.com/edison-llm/edison/pkg/safety"
	"github.com/edison-llm/edison/pkg/store"
)

// Publisher is the event-emitting seam; pkg/eventbus.Bus satisfies it.
type Publisher interface {
	Publish(iterationID string, eventType string, payload any)
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, string, any) {}

// Config assembles a Runner's collaborators. Providers are keyed by
// ModelConfig.ID and JudgeProviders by JudgeConfig.ID, bound at
// credential-instantiation time.
type Config struct {
	Store           store.Store
	Providers       map[string]providers.Provider
	JudgeProviders  map[string]providers.Provider
	RefinerProvider providers.Provider
	Safety          *safety.Scanner
	Publisher       Publisher
	Metrics         *metrics.Metrics
	DatasetID       string
	Concurrency     int
	ExemplarK       int
}

// Runner executes iteration phases against the store.
type Runner struct {
	cfg Config

	alertMu sync.Mutex
	alerted map[string]bool // experiment id -> cost:alert already fired
}

// New creates a Runner. A nil Publisher is replaced with a no-op.
func New(cfg Config) *Runner {
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.ExemplarK <= 0 {
		cfg.ExemplarK = 5
	}
	return &Runner{cfg: cfg, alerted: make(map[string]bool)}
}

// executePayload is one execute-run job: a single (case, model config)
// pair within a model run.
type executePayload struct {
	RunID    string
	Config   model.ModelConfig
	Case     model.Case
	Version  model.PromptVersion
	Project  string
	Totals   *runTotals
	CaseQty  int
	IterID   string
}

// runTotals accumulates one model run's token and cost counters across
// concurrent workers.
type runTotals struct {
	mu               sync.Mutex
	promptTokens     int64
	completionTokens int64
	costUSD          float64
	completed        int
}

func (t *runTotals) add(prompt, completion int64, cost float64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.promptTokens += prompt
	t.completionTokens += completion
	t.costUSD += cost
	t.completed++
	return t.completed
}

// Execute drives every active ModelConfig against the dataset for one
// iteration. Replayed cases are skipped at the idempotency key, so a
// resumed iteration re-runs only what is missing. It blocks until all
// enqueued case jobs reach a terminal outcome, or until the iteration
// is paused or cancelled out from under it.
func (r *Runner) Execute(ctx context.Context, it *model.Iteration) ([]model.ModelRun, error) {
	exp, err := r.cfg.Store.GetExperiment(it.ExperimentID)
	if err != nil {
		return nil, err
	}
	pv, err := r.cfg.Store.GetPromptVersion(it.PromptVersionID)
	if err != nil {
		return nil, err
	}
	ds, err := r.cfg.Store.GetDataset(r.cfg.DatasetID)
	if err != nil {
		return nil, err
	}
	configs, err := r.cfg.Store.ListModelConfigs(it.ExperimentID)
	if err != nil {
		return nil, err
	}

	pool := queue.New(queue.Options{
		Concurrency: r.cfg.Concurrency,
		RetryConfig: providers.DefaultRetryConfig(),
		Metrics:     r.cfg.Metrics,
		Cancel:      func() bool { return r.interrupted(it.ID) },
	}, r.handleExecuteJob)

	var runs []model.ModelRun
	totals := make(map[string]*runTotals)
	for _, mc := range configs {
		if !mc.Active {
			continue
		}
		run, err := r.ensureRun(it, mc)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
		totals[run.ID] = &runTotals{}

		for _, c := range ds.Cases {
			if r.cfg.Store.OutputExists(run.ID, c.ID) {
				totals[run.ID].completed++
				continue
			}
			pool.Enqueue("execute-run", executePayload{
				RunID:   run.ID,
				Config:  mc,
				Case:    c,
				Version: pv,
				Project: exp.ProjectID,
				Totals:  totals[run.ID],
				CaseQty: len(ds.Cases),
				IterID:  it.ID,
			}, queue.EnqueueOptions{DedupKey: it.ID + "|" + c.ID + "|" + mc.ID})
		}
	}

	pool.Start(ctx)
	interrupted := r.awaitDrain(ctx, pool, it.ID)
	pool.Stop()

	for i := range runs {
		t := totals[runs[i].ID]
		runs[i].PromptTokens = t.promptTokens
		runs[i].CompletionTokens = t.completionTokens
		runs[i].CostUSD = t.costUSD
		if interrupted {
			if err := r.cfg.Store.SaveModelRun(runs[i]); err != nil {
				return runs, err
			}
			continue
		}
		outputs, err := r.cfg.Store.ListOutputs(runs[i].ID)
		if err != nil {
			return runs, err
		}
		now := time.Now()
		runs[i].FinishedAt = &now
		if len(outputs) == 0 {
			runs[i].Status = model.RunFailed
		} else {
			runs[i].Status = model.RunCompleted
		}
		if err := r.cfg.Store.SaveModelRun(runs[i]); err != nil {
			return runs, err
		}
		r.cfg.Publisher.Publish(it.ID, "run:completed", runs[i].ID)
	}

	if interrupted {
		return runs, errInterrupted(it, r.cfg.Store)
	}
	return runs, nil
}

// ensureRun returns the existing ModelRun for (iteration, config) or
// creates one, so a resumed execute phase does not double-count runs.
func (r *Runner) ensureRun(it *model.Iteration, mc model.ModelConfig) (model.ModelRun, error) {
	existing, err := r.cfg.Store.ListModelRuns(it.ID)
	if err != nil {
		return model.ModelRun{}, err
	}
	for _, run := range existing {
		if run.ModelConfigID == mc.ID {
			run.Status = model.RunRunning
			return run, r.cfg.Store.SaveModelRun(run)
		}
	}
	now := time.Now()
	run := model.ModelRun{
		ID:            uuid.NewString(),
		IterationID:   it.ID,
		ModelConfigID: mc.ID,
		DatasetID:     r.cfg.DatasetID,
		Status:        model.RunRunning,
		StartedAt:     &now,
	}
	return run, r.cfg.Store.SaveModelRun(run)
}

func (r *Runner) handleExecuteJob(ctx context.Context, job *queue.Job) error {
	p := job.Payload.(executePayload)

	if r.cfg.Store.OutputExists(p.RunID, p.Case.ID) {
		return nil
	}

	provider, ok := r.cfg.Providers[p.Config.ID]
	if !ok {
		return edisonerr.New(edisonerr.Validation, "runner", "no provider bound for model config "+p.Config.ID)
	}

	rendered, err := RenderPrompt(p.Version.Body, p.Case.Input)
	if err != nil {
		// An unbound variable is the case's fault, not the provider's:
		// record a skipped output with the reason and move on.
		skipped := model.Output{
			ID:         uuid.NewString(),
			ModelRunID: p.RunID,
			CaseID:     p.Case.ID,
			Skipped:    true,
			SkipReason: err.Error(),
			CreatedAt:  time.Now(),
		}
		_, _, uerr := r.cfg.Store.UpsertOutput(skipped)
		return uerr
	}

	messages := buildMessages(p.Version, rendered)
	opts := chatOptionsFor(p.Config.Params)

	resp, err := provider.Chat(ctx, messages, opts)
	if err != nil {
		return err
	}

	out := model.Output{
		ID:               uuid.NewString(),
		ModelRunID:       p.RunID,
		CaseID:           p.Case.ID,
		RenderedPrompt:   rendered,
		Text:             resp.Text,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		LatencyMS:        resp.Latency.Milliseconds(),
		FinishReason:     resp.FinishReason,
		CreatedAt:        time.Now(),
	}
	if r.cfg.Safety != nil {
		if serr := r.cfg.Safety.ScanOutput(ctx, &out); serr != nil {
			return serr
		}
		if out.Safety != nil && out.Safety.Blocked() {
			if r.cfg.Metrics != nil {
				atomic.AddInt64(&r.cfg.Metrics.OutputsBlocked, 1)
			}
		}
	}

	stored, created, err := r.cfg.Store.UpsertOutput(out)
	if err != nil {
		return err
	}
	if created && !resp.Cached {
		cost, cerr := provider.EstimateCost(resp.PromptTokens, resp.CompletionTokens)
		if cerr != nil {
			return cerr
		}
		if err := r.cfg.Store.AppendCostRecord(model.CostRecord{
			ID:               uuid.NewString(),
			ProjectID:        p.Project,
			Timestamp:        time.Now(),
			Provider:         p.Config.Provider,
			Model:            p.Config.Model,
			PromptTokens:     resp.PromptTokens,
			CompletionTokens: resp.CompletionTokens,
			AmountUSD:        cost,
		}); err != nil {
			return err
		}
		completed := p.Totals.add(resp.PromptTokens, resp.CompletionTokens, cost)
		r.cfg.Publisher.Publish(p.IterID, "run:progress", map[string]int{"completed": completed, "total": p.CaseQty})
	}
	if r.cfg.Metrics != nil {
		atomic.AddInt64(&r.cfg.Metrics.OutputsTotal, 1)
		atomic.AddInt64(&r.cfg.Metrics.TokensConsumed, stored.PromptTokens+stored.CompletionTokens)
	}
	return nil
}

// interrupted reports whether the iteration has been paused or
// cancelled, the cooperative flag workers poll between case boundaries.
func (r *Runner) interrupted(iterationID string) bool {
	cur, err := r.cfg.Store.GetIteration(iterationID)
	if err != nil {
		return false
	}
	return cur.Status == model.IterationPaused || cur.Status == model.IterationCancelled
}

// awaitDrain waits for the pool to empty, checking the pause/cancel flag
// so a parked queue does not wedge the phase. Returns true when the wait
// ended because the iteration was interrupted.
func (r *Runner) awaitDrain(ctx context.Context, pool *queue.Pool, iterationID string) bool {
	for {
		drainCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		err := pool.Drain(drainCtx)
		cancel()
		if err == nil {
			return r.interrupted(iterationID)
		}
		if ctx.Err() != nil || r.interrupted(iterationID) {
			return true
		}
	}
}

// ErrInterrupted marks an execute/judge phase that stopped early because
// the iteration was paused or cancelled. The orchestrator inspects the
// iteration status rather than failing the iteration.
var ErrInterrupted = edisonerr.New(edisonerr.Conflict, "runner", "iteration interrupted")

func errInterrupted(it *model.Iteration, st store.Store) error {
	if cur, err := st.GetIteration(it.ID); err == nil {
		it.Status = cur.Status
	}
	return ErrInterrupted
}

func buildMessages(pv model.PromptVersion, rendered string) []model.Message {
	var messages []model.Message
	if pv.SystemPreamble != "" {
		messages = append(messages, model.Message{Role: model.RoleSystem, Content: pv.SystemPreamble})
	}
	messages = append(messages, pv.FewShot...)
	messages = append(messages, model.Message{Role: model.RoleUser, Content: rendered})
	return messages
}

func chatOptionsFor(p model.ModelParams) providers.ChatOptions {
	return providers.ChatOptions{
		Temperature:      p.Temperature,
		MaxTokens:        p.MaxTokens,
		TopP:             p.TopP,
		FrequencyPenalty: p.FrequencyPenalty,
		PresencePenalty:  p.PresencePenalty,
		StopSequences:    p.StopSequences,
		Seed:             p.Seed,
		// Deterministic sampling keeps the fingerprint collision-free.
		AllowCache: p.Seed != nil || p.Temperature == 0,
	}
}

// EstimateIterationCost projects the spend of running every active
// model config against the dataset, for the pre-iteration budget gate.
// Prompt tokens are approximated at four characters per token and
// completions at the configured max.
func (r *Runner) EstimateIterationCost(experimentID string) (float64, error) {
	ds, err := r.cfg.Store.GetDataset(r.cfg.DatasetID)
	if err != nil {
		return 0, err
	}
	configs, err := r.cfg.Store.ListModelConfigs(experimentID)
	if err != nil {
		return 0, err
	}

	var total float64
	for _, mc := range configs {
		if !mc.Active {
			continue
		}
		provider, ok := r.cfg.Providers[mc.ID]
		if !ok {
			continue
		}
		for _, c := range ds.Cases {
			var chars int
			for _, v := range c.Input {
				chars += len(v)
			}
			promptTokens := int64(chars/4) + 100
			completionTokens := int64(mc.Params.MaxTokens)
			if completionTokens == 0 {
				completionTokens = 512
			}
			cost, cerr := provider.EstimateCost(promptTokens, completionTokens)
			if cerr != nil {
				return 0, cerr
			}
			total += cost
		}
	}
	return total, nil
}
