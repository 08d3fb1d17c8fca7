package runner

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/edison-llm/edison/pkg/evaluator"
	"github.com/edison-llm/edison/pkg/model"
)

// Judge scores every persisted output with every active judge. Pointwise
// and pairwise judging run concurrently; both must finish before
// aggregation. Judgments are upserted under their natural key, so a
// replayed judge phase writes nothing new.
func (r *Runner) Judge(ctx context.Context, it *model.Iteration, runs []model.ModelRun) ([]*model.Judgment, error) {
	exp, err := r.cfg.Store.GetExperiment(it.ExperimentID)
	if err != nil {
		return nil, err
	}
	ds, err := r.cfg.Store.GetDataset(r.cfg.DatasetID)
	if err != nil {
		return nil, err
	}
	judges, err := r.cfg.Store.ListJudgeConfigs(it.ExperimentID)
	if err != nil {
		return nil, err
	}

	inputs := make(map[string]map[string]string, len(ds.Cases))
	for _, c := range ds.Cases {
		inputs[c.ID] = c.Input
	}

	// Collect judgeable outputs from completed runs, grouped by case for
	// the pairwise matchups.
	var all []model.Output
	byCase := make(map[string][]model.Output)
	for _, run := range runs {
		if run.Status != model.RunCompleted {
			continue
		}
		outputs, err := r.cfg.Store.ListOutputs(run.ID)
		if err != nil {
			return nil, err
		}
		for _, o := range outputs {
			if o.Skipped {
				continue
			}
			all = append(all, o)
			// Blocked outputs are retained but never enter matchups.
			if o.Safety == nil || !o.Safety.Blocked() {
				byCase[o.CaseID] = append(byCase[o.CaseID], o)
			}
		}
	}

	eval := evaluator.New(exp.Objective, exp.Rubric)

	var pointwise, pairwise []*model.Judgment
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var tasks []evaluator.PointwiseTask
		for _, jc := range judges {
			if !jc.Active || jc.Mode != model.JudgeModePointwise {
				continue
			}
			provider, ok := r.cfg.JudgeProviders[jc.ID]
			if !ok {
				continue
			}
			for _, o := range all {
				tasks = append(tasks, evaluator.PointwiseTask{
					JudgeConfig: jc,
					Provider:    provider,
					Input:       inputs[o.CaseID],
					Output:      o,
				})
			}
		}
		judgments, err := evaluator.EvaluateAll(gctx, eval, tasks, r.cfg.Concurrency)
		if err != nil {
			return err
		}
		pointwise = judgments
		return nil
	})

	g.Go(func() error {
		for _, jc := range judges {
			if !jc.Active || jc.Mode != model.JudgeModePairwise {
				continue
			}
			provider, ok := r.cfg.JudgeProviders[jc.ID]
			if !ok {
				continue
			}
			for caseID, outputs := range byCase {
				for i := 0; i < len(outputs); i++ {
					for j := i + 1; j < len(outputs); j++ {
						judgment, err := eval.RunPairwise(gctx, jc, provider, inputs[caseID], outputs[i], outputs[j])
						if err != nil {
							return err
						}
						pairwise = append(pairwise, judgment)
					}
				}
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]*model.Judgment, 0, len(pointwise)+len(pairwise))
	for _, j := range append(pointwise, pairwise...) {
		stored, _, err := r.cfg.Store.UpsertJudgment(*j)
		if err != nil {
			return nil, err
		}
		if r.cfg.Metrics != nil {
			atomic.AddInt64(&r.cfg.Metrics.JudgmentsTotal, 1)
			if stored.Status == model.JudgmentInvalid {
				atomic.AddInt64(&r.cfg.Metrics.JudgmentsInvalid, 1)
			}
		}
		results = append(results, &stored)
	}

	r.cfg.Publisher.Publish(it.ID, "judge:progress", map[string]int{"completed": len(results), "total": len(results)})
	return results, nil
}
