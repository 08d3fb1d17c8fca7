package orchestrator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edison-llm/edison/pkg/aggregator"
	"github.com/edison-llm/edison/pkg/budget"
	"github.com/edison-llm/edison/pkg/edisonerr"
	"github.com/edison-llm/edison/pkg/model"
	"github.com/edison-llm/edison/pkg/orchestrator"
)

func passingGate() orchestrator.StartGate {
	return budget.PreGateInput{
		DatasetSize:       1,
		SelectedProviders: []string{"mock"},
		CredentialExists:  func(string) bool { return true },
	}
}

// TestRun_SmokeRun: a single model, single
// case run with no refiner configured completes successfully.
func TestRun_SmokeRun(t *testing.T) {
	locks := orchestrator.NewLockRegistry()
	deps := orchestrator.Deps{
		Execute: func(ctx context.Context, it *model.Iteration) ([]model.ModelRun, error) {
			return []model.ModelRun{{ID: "run-1", Status: model.RunCompleted}}, nil
		},
		Judge: func(ctx context.Context, it *model.Iteration, runs []model.ModelRun) ([]*model.Judgment, error) {
			return []*model.Judgment{{ID: "j-1", Scores: map[string]int{"Q": 5}}}, nil
		},
		Aggregate: func(ctx context.Context, it *model.Iteration, judgments []*model.Judgment) (*model.IterationMetrics, error) {
			rubric := model.Rubric{Criteria: []model.Criterion{{Name: "Q", Weight: 1.0, ScaleMin: 0, ScaleMax: 5}}}
			composite := aggregator.CompositeScore(rubric, judgments[0].Scores, 0)
			ci := aggregator.BootstrapCI([]float64{composite}, 100, 0.95, nil)
			return &model.IterationMetrics{GlobalComposite: composite, CIByModel: map[string]model.CI{"m1": ci}}, nil
		},
	}
	o := orchestrator.New(locks, deps)
	it := &model.Iteration{ID: "it-1", ExperimentID: "exp-1", Status: model.IterationPending}

	result, err := o.Run(context.Background(), it, "worker-1", passingGate())
	require.NoError(t, err)
	assert.Equal(t, model.IterationCompleted, result.Iteration.Status)
	assert.InDelta(t, 10.0, result.Metrics.GlobalComposite, 1e-9)
	assert.LessOrEqual(t, result.Metrics.CIByModel["m1"].Lower, result.Metrics.CIByModel["m1"].Upper)
}

// TestRun_BudgetStop: a pre-gate budget
// failure prevents the iteration from starting at all.
func TestRun_BudgetStop(t *testing.T) {
	locks := orchestrator.NewLockRegistry()
	called := false
	deps := orchestrator.Deps{
		Execute: func(ctx context.Context, it *model.Iteration) ([]model.ModelRun, error) {
			called = true
			return nil, nil
		},
	}
	o := orchestrator.New(locks, deps)
	it := &model.Iteration{ID: "it-2", ExperimentID: "exp-2", Status: model.IterationPending}

	gate := budget.PreGateInput{
		SpendLast30dUSD:  0.90,
		EstimatedCostUSD: 0.20,
		MaxBudgetUSD:     1.00,
		DatasetSize:      1,
	}
	_, err := o.Run(context.Background(), it, "worker-1", gate)
	assert.True(t, edisonerr.Is(err, edisonerr.BudgetExceeded))
	assert.False(t, called)
	assert.Equal(t, model.IterationPending, it.Status) // never advanced
}

// TestRun_RefinerInvalidCompletesIteration covers the INVALID-suggestion
// branch: the iteration completes instead of moving to REVIEWING. The
// orchestrator takes this branch whether or not stopIfNoRefinement is
// set, and this test sets no stop rules.
func TestRun_RefinerInvalidCompletesIteration(t *testing.T) {
	locks := orchestrator.NewLockRegistry()
	deps := orchestrator.Deps{
		Execute: func(ctx context.Context, it *model.Iteration) ([]model.ModelRun, error) {
			return []model.ModelRun{{ID: "run-1", Status: model.RunCompleted}}, nil
		},
		Judge: func(ctx context.Context, it *model.Iteration, runs []model.ModelRun) ([]*model.Judgment, error) {
			return []*model.Judgment{{ID: "j-1", Scores: map[string]int{"Q": 3}}}, nil
		},
		Aggregate: func(ctx context.Context, it *model.Iteration, judgments []*model.Judgment) (*model.IterationMetrics, error) {
			return &model.IterationMetrics{GlobalComposite: 6.0}, nil
		},
		Refine: func(ctx context.Context, it *model.Iteration, metrics *model.IterationMetrics) (*model.Suggestion, error) {
			return &model.Suggestion{ID: "s-1", Status: model.SuggestionInvalid, InvalidReason: "deletion run too long"}, nil
		},
	}
	o := orchestrator.New(locks, deps)
	it := &model.Iteration{ID: "it-3", ExperimentID: "exp-3", Status: model.IterationPending}

	result, err := o.Run(context.Background(), it, "worker-1", passingGate())
	require.NoError(t, err)
	assert.Equal(t, model.IterationCompleted, result.Iteration.Status)
	assert.Equal(t, "no_refinement", result.Iteration.StopReason)
}

// TestRun_ValidSuggestionMovesToReviewing covers the REFINING ->
// REVIEWING branch of scenario 4 when the diff validates.
func TestRun_ValidSuggestionMovesToReviewing(t *testing.T) {
	locks := orchestrator.NewLockRegistry()
	deps := orchestrator.Deps{
		Execute: func(ctx context.Context, it *model.Iteration) ([]model.ModelRun, error) {
			return []model.ModelRun{{ID: "run-1", Status: model.RunCompleted}}, nil
		},
		Judge: func(ctx context.Context, it *model.Iteration, runs []model.ModelRun) ([]*model.Judgment, error) {
			return []*model.Judgment{{ID: "j-1"}}, nil
		},
		Aggregate: func(ctx context.Context, it *model.Iteration, judgments []*model.Judgment) (*model.IterationMetrics, error) {
			return &model.IterationMetrics{}, nil
		},
		Refine: func(ctx context.Context, it *model.Iteration, metrics *model.IterationMetrics) (*model.Suggestion, error) {
			return &model.Suggestion{ID: "s-1", Status: model.SuggestionPending}, nil
		},
	}
	o := orchestrator.New(locks, deps)
	it := &model.Iteration{ID: "it-4", ExperimentID: "exp-4", Status: model.IterationPending}

	result, err := o.Run(context.Background(), it, "worker-1", passingGate())
	require.NoError(t, err)
	assert.Equal(t, model.IterationReviewing, result.Iteration.Status)
	assert.Equal(t, "s-1", result.Suggestion.ID)
}

// TestRun_AllModelRunsFailedFailsIteration exercises the EXECUTING ->
// FAILED transition.
func TestRun_AllModelRunsFailedFailsIteration(t *testing.T) {
	locks := orchestrator.NewLockRegistry()
	deps := orchestrator.Deps{
		Execute: func(ctx context.Context, it *model.Iteration) ([]model.ModelRun, error) {
			return []model.ModelRun{{ID: "run-1", Status: model.RunFailed}}, nil
		},
	}
	o := orchestrator.New(locks, deps)
	it := &model.Iteration{ID: "it-5", ExperimentID: "exp-5", Status: model.IterationPending}

	result, err := o.Run(context.Background(), it, "worker-1", passingGate())
	require.Error(t, err)
	assert.Equal(t, model.IterationFailed, result.Iteration.Status)
}

func happyExecute(ctx context.Context, it *model.Iteration) ([]model.ModelRun, error) {
	return []model.ModelRun{{ID: "run-1", Status: model.RunCompleted}}, nil
}

func happyJudge(ctx context.Context, it *model.Iteration, runs []model.ModelRun) ([]*model.Judgment, error) {
	return []*model.Judgment{{ID: "j-1", Scores: map[string]int{"Q": 4}}}, nil
}

func happyAggregate(ctx context.Context, it *model.Iteration, judgments []*model.Judgment) (*model.IterationMetrics, error) {
	return &model.IterationMetrics{GlobalComposite: 8.0}, nil
}

// TestRun_JudgeErrorFailsIteration: a judge-phase error must land the
// iteration in FAILED, never leave it parked in JUDGING with a finish
// timestamp.
func TestRun_JudgeErrorFailsIteration(t *testing.T) {
	deps := orchestrator.Deps{
		Execute: happyExecute,
		Judge: func(ctx context.Context, it *model.Iteration, runs []model.ModelRun) ([]*model.Judgment, error) {
			return nil, edisonerr.New(edisonerr.Internal, "evaluator", "judge pool collapsed")
		},
	}
	o := orchestrator.New(orchestrator.NewLockRegistry(), deps)
	it := &model.Iteration{ID: "it-7", ExperimentID: "exp-7", Status: model.IterationPending}

	result, err := o.Run(context.Background(), it, "worker-1", passingGate())
	require.Error(t, err)
	assert.Equal(t, model.IterationFailed, result.Iteration.Status)
	assert.NotNil(t, result.Iteration.FinishedAt)
	assert.Equal(t, string(edisonerr.Internal), result.Iteration.StopReason)
}

func TestRun_AggregateErrorFailsIteration(t *testing.T) {
	deps := orchestrator.Deps{
		Execute: happyExecute,
		Judge:   happyJudge,
		Aggregate: func(ctx context.Context, it *model.Iteration, judgments []*model.Judgment) (*model.IterationMetrics, error) {
			return nil, edisonerr.New(edisonerr.IntegrityViolation, "store", "torn snapshot")
		},
	}
	o := orchestrator.New(orchestrator.NewLockRegistry(), deps)
	it := &model.Iteration{ID: "it-8", ExperimentID: "exp-8", Status: model.IterationPending}

	result, err := o.Run(context.Background(), it, "worker-1", passingGate())
	require.Error(t, err)
	assert.Equal(t, model.IterationFailed, result.Iteration.Status)
}

func TestRun_RefineErrorFailsIteration(t *testing.T) {
	deps := orchestrator.Deps{
		Execute:   happyExecute,
		Judge:     happyJudge,
		Aggregate: happyAggregate,
		Refine: func(ctx context.Context, it *model.Iteration, metrics *model.IterationMetrics) (*model.Suggestion, error) {
			return nil, edisonerr.New(edisonerr.Internal, "refiner", "store write failed")
		},
	}
	o := orchestrator.New(orchestrator.NewLockRegistry(), deps)
	it := &model.Iteration{ID: "it-9", ExperimentID: "exp-9", Status: model.IterationPending}

	result, err := o.Run(context.Background(), it, "worker-1", passingGate())
	require.Error(t, err)
	assert.Equal(t, model.IterationFailed, result.Iteration.Status)
}

// TestRun_FailedIterationIsPersistedTerminal: the persisted record on
// a phase failure carries the terminal status, so a store reader never
// observes a "finished" iteration in a working state.
func TestRun_FailedIterationIsPersistedTerminal(t *testing.T) {
	var persisted []model.IterationStatus
	deps := orchestrator.Deps{
		Execute: happyExecute,
		Judge: func(ctx context.Context, it *model.Iteration, runs []model.ModelRun) ([]*model.Judgment, error) {
			return nil, edisonerr.New(edisonerr.Internal, "evaluator", "boom")
		},
		Persist: func(it *model.Iteration) error {
			persisted = append(persisted, it.Status)
			return nil
		},
	}
	o := orchestrator.New(orchestrator.NewLockRegistry(), deps)
	it := &model.Iteration{ID: "it-10", ExperimentID: "exp-10", Status: model.IterationPending}

	_, err := o.Run(context.Background(), it, "worker-1", passingGate())
	require.Error(t, err)
	require.NotEmpty(t, persisted)
	assert.Equal(t, model.IterationFailed, persisted[len(persisted)-1])
}

// TestRun_LockHeldByAnotherHolderPreventsStart mirrors the locking
// prerequisite underlying scenario 6 (pause/resume must not race a
// concurrent starter).
func TestRun_LockHeldByAnotherHolderPreventsStart(t *testing.T) {
	locks := orchestrator.NewLockRegistry()
	require.NoError(t, locks.Acquire("exp-6", "other-worker", 0, 0))

	deps := orchestrator.Deps{
		Execute: func(ctx context.Context, it *model.Iteration) ([]model.ModelRun, error) {
			return []model.ModelRun{{ID: "run-1", Status: model.RunCompleted}}, nil
		},
	}
	o := orchestrator.New(locks, deps)
	it := &model.Iteration{ID: "it-6", ExperimentID: "exp-6", Status: model.IterationPending}

	_, err := o.Run(context.Background(), it, "worker-1", passingGate())
	assert.True(t, edisonerr.Is(err, edisonerr.LockHeld))
}

// TestPauseThenResume covers the pause/resume state-machine shape:
// pausing mid-execution and resuming back into the same phase.
func TestPauseThenResume(t *testing.T) {
	locks := orchestrator.NewLockRegistry()
	o := orchestrator.New(locks, orchestrator.Deps{})
	it := &model.Iteration{Status: model.IterationExecuting}

	require.NoError(t, o.Pause(it))
	assert.Equal(t, model.IterationPaused, it.Status)

	require.NoError(t, o.Resume(it, model.IterationExecuting))
	assert.Equal(t, model.IterationExecuting, it.Status)
}
