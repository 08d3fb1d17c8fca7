package orchestrator

import (
	"context"
	"time"

	"github.com/edison-llm/edison/pkg/budget"
	"github.com/edison-llm/edison/pkg/edisonerr"
	"github.com/edison-llm/edison/pkg/model"
)

// Publisher is the narrow slice of pkg/eventbus the Orchestrator needs:
// one multicast call per phase transition. Defined here, not in
// pkg/eventbus, so this package stays the consumer of a small
// interface rather than depending on the bus's full API.
type Publisher interface {
	Publish(iterationID string, eventType string, payload any)
}

// noopPublisher discards every event; used when the caller doesn't wire
// a real bus (e.g. in tests).
type noopPublisher struct{}

func (noopPublisher) Publish(string, string, any) {}

// ExecuteFunc runs every active ModelConfig against the dataset for it,
// returning one ModelRun per ModelConfig. It is expected to enqueue
// work onto pkg/queue and block until all runs reach a terminal status.
type ExecuteFunc func(ctx context.Context, it *model.Iteration) ([]model.ModelRun, error)

// JudgeFunc scores the outputs produced by runs, via pkg/evaluator.
type JudgeFunc func(ctx context.Context, it *model.Iteration, runs []model.ModelRun) ([]*model.Judgment, error)

// AggregateFunc computes iteration metrics from judgments, via
// pkg/aggregator.
type AggregateFunc func(ctx context.Context, it *model.Iteration, judgments []*model.Judgment) (*model.IterationMetrics, error)

// RefineFunc proposes a prompt diff from the aggregated metrics, via
// pkg/refiner. A nil return with no error means refinement is not
// configured for this experiment.
type RefineFunc func(ctx context.Context, it *model.Iteration, metrics *model.IterationMetrics) (*model.Suggestion, error)

// Deps bundles the phase-executing collaborators an Orchestrator drives.
// Each stage is injected so this package has no import-time dependency
// on pkg/queue/evaluator/aggregator/refiner, avoiding an import cycle
// and keeping the state machine independently testable with fakes.
type Deps struct {
	Execute   ExecuteFunc
	Judge     JudgeFunc
	Aggregate AggregateFunc
	Refine    RefineFunc
	Publisher Publisher
	// Persist saves the iteration after every status change, before the
	// corresponding event is published, so subscribers reconstructing
	// state from the store never observe an event ahead of its commit.
	Persist func(it *model.Iteration) error
}

// Orchestrator drives one Iteration through its phases, enforcing the
// legal-transition table and per-experiment locking.
type Orchestrator struct {
	locks *LockRegistry
	deps  Deps
}

// New creates an Orchestrator backed by locks and deps. A nil
// deps.Publisher is replaced with a no-op.
func New(locks *LockRegistry, deps Deps) *Orchestrator {
	if deps.Publisher == nil {
		deps.Publisher = noopPublisher{}
	}
	return &Orchestrator{locks: locks, deps: deps}
}

// Result is the outcome of driving one iteration to a terminal-for-now
// state (COMPLETED/FAILED/CANCELLED/PAUSED/REVIEWING).
type Result struct {
	Iteration  *model.Iteration
	Metrics    *model.IterationMetrics
	Suggestion *model.Suggestion
}

// StartGate bundles the facts CheckPreGate needs, threaded through from
// the caller since the Orchestrator itself holds no spend/credential
// state.
type StartGate = budget.PreGateInput

// Run acquires the experiment lock, validates the pre-iteration gate,
// and drives it through EXECUTING -> JUDGING -> AGGREGATING ->
// (REFINING -> REVIEWING | COMPLETED), releasing the lock on any
// terminal transition. Cooperative cancellation is checked via ctx.Err()
// between phases, never mid-provider-call.
func (o *Orchestrator) Run(ctx context.Context, it *model.Iteration, holderID string, gate StartGate) (*Result, error) {
	if err := budget.CheckPreGate(gate); err != nil {
		return nil, err
	}
	if err := o.locks.Acquire(it.ExperimentID, holderID, DefaultLockTTL, 0); err != nil {
		return nil, err
	}
	defer o.locks.Release(it.ExperimentID, holderID)

	if err := Transition(it, model.IterationExecuting); err != nil {
		return nil, err
	}
	now := time.Now()
	it.StartedAt = &now
	if err := o.commit(it); err != nil {
		return nil, err
	}
	o.deps.Publisher.Publish(it.ID, "iteration:started", it.Number)
	o.deps.Publisher.Publish(it.ID, "status:changed", it.Status)

	return o.drive(ctx, it)
}

// ResumeRun continues a PAUSED iteration: back to EXECUTING, where the
// execute phase's idempotency keys skip every case already persisted,
// then onward through the remaining phases. The pre-iteration gate is
// not re-checked; the iteration already passed it.
func (o *Orchestrator) ResumeRun(ctx context.Context, it *model.Iteration, holderID string) (*Result, error) {
	if err := o.locks.Acquire(it.ExperimentID, holderID, DefaultLockTTL, 0); err != nil {
		return nil, err
	}
	defer o.locks.Release(it.ExperimentID, holderID)

	if err := Transition(it, model.IterationExecuting); err != nil {
		return nil, err
	}
	if err := o.commit(it); err != nil {
		return nil, err
	}
	o.deps.Publisher.Publish(it.ID, "status:changed", it.Status)

	return o.drive(ctx, it)
}

// commit persists the iteration through Deps.Persist when wired.
func (o *Orchestrator) commit(it *model.Iteration) error {
	if o.deps.Persist == nil {
		return nil
	}
	return o.deps.Persist(it)
}

// drive advances an EXECUTING iteration to its resting state for this
// pass: COMPLETED/FAILED/CANCELLED, PAUSED, or REVIEWING awaiting a
// human decision.
func (o *Orchestrator) drive(ctx context.Context, it *model.Iteration) (*Result, error) {
	if ctx.Err() != nil {
		return o.cancel(it)
	}

	runs, err := o.deps.Execute(ctx, it)
	if err != nil {
		if it.Status == model.IterationPaused {
			return &Result{Iteration: it}, nil
		}
		if it.Status == model.IterationCancelled {
			o.finish(it)
			return &Result{Iteration: it}, nil
		}
		return o.fail(it, err)
	}
	if !anyCompleted(runs) {
		return o.fail(it, edisonerr.New(edisonerr.ProviderPermanent, "orchestrator", "all model runs failed"))
	}

	if err := Transition(it, model.IterationJudging); err != nil {
		return nil, err
	}
	if err := o.commit(it); err != nil {
		return nil, err
	}
	o.deps.Publisher.Publish(it.ID, "status:changed", it.Status)

	if ctx.Err() != nil {
		return o.cancel(it)
	}

	judgments, err := o.deps.Judge(ctx, it, runs)
	if err != nil {
		return o.fail(it, err)
	}

	if err := Transition(it, model.IterationAggregating); err != nil {
		return nil, err
	}
	if err := o.commit(it); err != nil {
		return nil, err
	}
	o.deps.Publisher.Publish(it.ID, "status:changed", it.Status)

	metrics, err := o.deps.Aggregate(ctx, it, judgments)
	if err != nil {
		return o.fail(it, err)
	}
	it.Metrics = metrics
	o.deps.Publisher.Publish(it.ID, "aggregate:completed", metrics)

	if o.deps.Refine == nil {
		if err := Transition(it, model.IterationCompleted); err != nil {
			return nil, err
		}
		o.finish(it)
		return &Result{Iteration: it, Metrics: metrics}, nil
	}

	if err := Transition(it, model.IterationRefining); err != nil {
		return nil, err
	}
	if err := o.commit(it); err != nil {
		return nil, err
	}
	o.deps.Publisher.Publish(it.ID, "status:changed", it.Status)

	suggestion, err := o.deps.Refine(ctx, it, metrics)
	if err != nil {
		return o.fail(it, err)
	}

	if suggestion == nil || suggestion.Status == model.SuggestionInvalid {
		if err := Transition(it, model.IterationCompleted); err != nil {
			return nil, err
		}
		it.StopReason = "no_refinement"
		o.finish(it)
		return &Result{Iteration: it, Metrics: metrics, Suggestion: suggestion}, nil
	}

	if err := Transition(it, model.IterationReviewing); err != nil {
		return nil, err
	}
	if err := o.commit(it); err != nil {
		return nil, err
	}
	o.deps.Publisher.Publish(it.ID, "refine:completed", suggestion.ID)
	return &Result{Iteration: it, Metrics: metrics, Suggestion: suggestion}, nil
}

// Pause transitions it from EXECUTING or JUDGING to PAUSED. Workers
// observe the persisted status at their next case boundary and park.
func (o *Orchestrator) Pause(it *model.Iteration) error {
	if err := Transition(it, model.IterationPaused); err != nil {
		return err
	}
	if err := o.commit(it); err != nil {
		return err
	}
	o.deps.Publisher.Publish(it.ID, "status:changed", it.Status)
	return nil
}

// Resume transitions it from PAUSED back to EXECUTING or JUDGING,
// matching whichever phase it had reached.
func (o *Orchestrator) Resume(it *model.Iteration, to model.IterationStatus) error {
	if err := Transition(it, to); err != nil {
		return err
	}
	if err := o.commit(it); err != nil {
		return err
	}
	o.deps.Publisher.Publish(it.ID, "status:changed", it.Status)
	return nil
}

// Cancel transitions it to CANCELLED from any state that allows it.
func (o *Orchestrator) Cancel(it *model.Iteration) error {
	if err := Transition(it, model.IterationCancelled); err != nil {
		return err
	}
	if err := o.commit(it); err != nil {
		return err
	}
	o.deps.Publisher.Publish(it.ID, "status:changed", it.Status)
	return nil
}

// Conclude finalizes a REVIEWING iteration after a human Review: on
// APPROVE with the post-gate deciding to stop, transition to COMPLETED;
// on APPROVE without stopping, the caller creates a fresh Iteration in
// PENDING (not modeled as a transition on this struct, since it is a
// new entity, not a status change).
func (o *Orchestrator) Conclude(it *model.Iteration, decision budget.Decision) error {
	if !decision.Stop {
		return nil
	}
	if err := Transition(it, model.IterationCompleted); err != nil {
		return err
	}
	it.StopReason = decision.Reason
	o.finish(it)
	return nil
}

func anyCompleted(runs []model.ModelRun) bool {
	for _, r := range runs {
		if r.Status == model.RunCompleted {
			return true
		}
	}
	return false
}

// fail moves it to FAILED from whichever working phase the error
// surfaced in. Every phase fail is called from (EXECUTING, JUDGING,
// AGGREGATING, REFINING) has a FAILED edge in the legal table; an
// unexpected source state still lands in FAILED so a failed iteration
// can never remain non-terminal with FinishedAt set.
func (o *Orchestrator) fail(it *model.Iteration, cause error) (*Result, error) {
	if err := Transition(it, model.IterationFailed); err != nil {
		it.Status = model.IterationFailed
	}
	it.StopReason = string(edisonerr.KindOf(cause))
	o.finish(it)
	o.deps.Publisher.Publish(it.ID, "error", map[string]any{"message": cause.Error(), "recoverable": edisonerr.Retryable(cause)})
	return &Result{Iteration: it}, cause
}

func (o *Orchestrator) cancel(it *model.Iteration) (*Result, error) {
	if err := Transition(it, model.IterationCancelled); err != nil {
		it.Status = model.IterationCancelled
	}
	o.finish(it)
	return &Result{Iteration: it}, nil
}

func (o *Orchestrator) finish(it *model.Iteration) {
	now := time.Now()
	it.FinishedAt = &now
	_ = o.commit(it)
	o.deps.Publisher.Publish(it.ID, "iteration:completed", it.Status)
}
