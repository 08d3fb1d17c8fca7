package runner

import (
	"context"
	"time"

	"github.com/edison-llm/edison/pkg/model"
	"github.com/edison-llm/edison/pkg/orchestrator"
)

// Deps bridges this Runner's phase methods into the orchestrator's
// dependency bundle, persisting every status change through the store.
func (r *Runner) Deps() orchestrator.Deps {
	deps := orchestrator.Deps{
		Execute:   r.Execute,
		Judge:     r.Judge,
		Aggregate: r.Aggregate,
		Publisher: r.cfg.Publisher,
		Persist: func(it *model.Iteration) error {
			return r.cfg.Store.SaveIteration(*it)
		},
	}
	// A nil Refine tells the orchestrator refinement is not configured,
	// so the iteration completes straight out of AGGREGATING.
	if r.cfg.RefinerProvider != nil {
		deps.Refine = r.Refine
	}
	return deps
}

// RecoveredIteration summarizes what Recover did with one orphaned
// iteration.
type RecoveredIteration struct {
	IterationID string
	Action      string // "resumed", "demoted", "left"
	Result      *orchestrator.Result
}

// Recover is the process-start sweep over non-terminal iterations. An
// iteration whose lock holder is still heartbeating is left alone. An
// orphaned EXECUTING/JUDGING/PAUSED iteration is resumed: the execute
// and judge phases replay, and idempotency keys skip everything already
// persisted. AGGREGATING and REFINING have no claimable jobs, so an
// orphan there transitions to FAILED with its partial results retained.
// PENDING and REVIEWING iterations need no worker and are left as-is.
func (r *Runner) Recover(ctx context.Context, orch *orchestrator.Orchestrator, locks *orchestrator.LockRegistry, holderID string) ([]RecoveredIteration, error) {
	pending, err := r.cfg.Store.ListNonTerminalIterations()
	if err != nil {
		return nil, err
	}

	var recovered []RecoveredIteration
	for _, it := range pending {
		it := it
		if locks.HolderAlive(it.ExperimentID) {
			recovered = append(recovered, RecoveredIteration{IterationID: it.ID, Action: "left"})
			continue
		}

		switch it.Status {
		case model.IterationExecuting, model.IterationJudging:
			if err := orch.Pause(&it); err != nil {
				return recovered, err
			}
			res, err := orch.ResumeRun(ctx, &it, holderID)
			if err != nil {
				return recovered, err
			}
			recovered = append(recovered, RecoveredIteration{IterationID: it.ID, Action: "resumed", Result: res})

		case model.IterationPaused:
			res, err := orch.ResumeRun(ctx, &it, holderID)
			if err != nil {
				return recovered, err
			}
			recovered = append(recovered, RecoveredIteration{IterationID: it.ID, Action: "resumed", Result: res})

		case model.IterationAggregating, model.IterationRefining:
			if err := orchestrator.Transition(&it, model.IterationFailed); err != nil {
				return recovered, err
			}
			now := time.Now()
			it.StopReason = "orphaned"
			it.FinishedAt = &now
			if err := r.cfg.Store.SaveIteration(it); err != nil {
				return recovered, err
			}
			recovered = append(recovered, RecoveredIteration{IterationID: it.ID, Action: "demoted"})

		default:
			recovered = append(recovered, RecoveredIteration{IterationID: it.ID, Action: "left"})
		}
	}
	return recovered, nil
}
