package runner

import (
	"context"

	"github.com/edison-llm/edison/pkg/model"
	"github.com/edison-llm/edison/pkg/refiner"
)

// Refine asks the configured refiner model for a prompt diff targeting
// the two weakest criteria. A nil RefinerProvider means refinement is
// not configured; the orchestrator then completes the iteration after
// aggregation. An invalid first proposal gets the one permitted retry.
func (r *Runner) Refine(ctx context.Context, it *model.Iteration, _ *model.IterationMetrics) (*model.Suggestion, error) {
	if r.cfg.RefinerProvider == nil {
		return nil, nil
	}

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
	snap, err := r.cfg.Store.IterationSnapshot(it.ID)
	if err != nil {
		return nil, err
	}

	cases := make(map[string]model.Case, len(ds.Cases))
	for _, c := range ds.Cases {
		cases[c.ID] = c
	}
	outputByID := make(map[string]model.Output, len(snap.Outputs))
	for _, o := range snap.Outputs {
		outputByID[o.ID] = o
	}

	weak := weakestCriteria(exp.Rubric, snap.Judgments)
	exemplars := refiner.SampleFailingExemplars(
		scoreExemplars(exp.Rubric, weak, snap.Judgments, outputByID, cases),
		refiner.DefaultExemplarQuantile,
		r.cfg.ExemplarK,
	)

	ref := refiner.New(exp.Objective, exp.Rubric)
	suggestion, err := ref.Propose(ctx, r.cfg.RefinerProvider, pv.Body, weak, exemplars, pv.ID)
	if err != nil {
		return nil, err
	}
	if suggestion.Status == model.SuggestionInvalid {
		retried, rerr := ref.Propose(ctx, r.cfg.RefinerProvider, pv.Body, weak, exemplars, pv.ID)
		if rerr == nil && retried.Status != model.SuggestionInvalid {
			suggestion = retried
		}
	}

	if err := r.cfg.Store.PutSuggestion(*suggestion); err != nil {
		return nil, err
	}
	return suggestion, nil
}

// weakestCriteria computes per-criterion mean scores over valid
// pointwise judgments and returns the two lowest.
func weakestCriteria(rubric model.Rubric, judgments []model.Judgment) []string {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, j := range judgments {
		if j.Mode != model.JudgeModePointwise || j.Status != model.JudgmentValid {
			continue
		}
		for name, score := range j.Scores {
			sums[name] += float64(score)
			counts[name]++
		}
	}

	scored := make([]refiner.ScoredCriterion, 0, len(rubric.Criteria))
	for _, c := range rubric.Criteria {
		mean := float64(c.ScaleMax) // unjudged criteria sort last
		if counts[c.Name] > 0 {
			mean = sums[c.Name] / float64(counts[c.Name])
		}
		scored = append(scored, refiner.ScoredCriterion{Name: c.Name, MeanScore: mean})
	}
	return refiner.WeakestCriteria(scored)
}

func scoreExemplars(
	rubric model.Rubric,
	weak []string,
	judgments []model.Judgment,
	outputByID map[string]model.Output,
	cases map[string]model.Case,
) []refiner.ScoredExemplar {
	weakSet := make(map[string]bool, len(weak))
	for _, name := range weak {
		weakSet[name] = true
	}

	var scored []refiner.ScoredExemplar
	for _, j := range judgments {
		if j.Mode != model.JudgeModePointwise || j.Status != model.JudgmentValid {
			continue
		}
		o, ok := outputByID[j.OutputID]
		if !ok || o.Skipped {
			continue
		}
		var weakTotal float64
		for name, score := range j.Scores {
			if weakSet[name] {
				weakTotal += float64(score)
			}
		}
		scored = append(scored, refiner.ScoredExemplar{
			Exemplar: refiner.Exemplar{
				OutputID:   o.ID,
				Input:      cases[o.CaseID].Input,
				OutputText: o.Text,
				Scores:     j.Scores,
				Rationales: j.Rationales,
			},
			WeakCriteriaScore: weakTotal,
		})
	}
	return scored
}
