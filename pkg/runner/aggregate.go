package runner

import (
	"context"
	"math/rand"
	"time"

	"github.com/edison-llm/edison/pkg/aggregator"
	"github.com/edison-llm/edison/pkg/budget"
	"github.com/edison-llm/edison/pkg/model"
)

// Aggregate computes the iteration's metrics from a consistent snapshot
// of its judgments and persists them on the iteration record. Blocked
// outputs and INVALID judgments contribute nothing.
func (r *Runner) Aggregate(ctx context.Context, it *model.Iteration, judgments []*model.Judgment) (*model.IterationMetrics, error) {
	exp, err := r.cfg.Store.GetExperiment(it.ExperimentID)
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
	configs, err := r.cfg.Store.ListModelConfigs(it.ExperimentID)
	if err != nil {
		return nil, err
	}
	configByID := make(map[string]model.ModelConfig, len(configs))
	for _, mc := range configs {
		configByID[mc.ID] = mc
	}
	runByID := make(map[string]model.ModelRun, len(snap.Runs))
	for _, run := range snap.Runs {
		runByID[run.ID] = run
	}
	outputByID := make(map[string]model.Output, len(snap.Outputs))
	for _, o := range snap.Outputs {
		outputByID[o.ID] = o
	}

	modelOf := func(outputID string) string {
		o, ok := outputByID[outputID]
		if !ok {
			return ""
		}
		run := runByID[o.ModelRunID]
		return configByID[run.ModelConfigID].Model
	}

	// Composite per output: mean over its valid pointwise judgments.
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, j := range snap.Judgments {
		if j.Mode != model.JudgeModePointwise || j.Status != model.JudgmentValid {
			continue
		}
		o, ok := outputByID[j.OutputID]
		if !ok || o.Skipped {
			continue
		}
		if o.Safety != nil && o.Safety.Blocked() && exp.Safety.BlockViolations {
			continue
		}
		sums[j.OutputID] += aggregator.CompositeScore(exp.Rubric, j.Scores, aggregator.DefaultScale)
		counts[j.OutputID]++
	}

	var scores []aggregator.OutputScore
	for outputID, sum := range sums {
		o := outputByID[outputID]
		c := cases[o.CaseID]
		run := runByID[o.ModelRunID]
		scores = append(scores, aggregator.OutputScore{
			OutputID:   outputID,
			ModelRunID: o.ModelRunID,
			ModelID:    modelOf(outputID),
			Tags:       c.Tags,
			Difficulty: c.Difficulty,
			Length:     len(o.RenderedPrompt) + len(c.ExpectedOutput),
			Composite:  sum / float64(counts[outputID]),
			CostUSD:    run.CostUSD,
			CreatedAt:  o.CreatedAt.UnixNano(),
		})
	}

	perModel := aggregator.PerModelComposite(scores)
	rng := rand.New(rand.NewSource(42))

	ciByModel := make(map[string]model.CI, len(perModel))
	valuesByModel := make(map[string][]float64)
	var allValues []float64
	var global float64
	for _, s := range scores {
		valuesByModel[s.ModelID] = append(valuesByModel[s.ModelID], s.Composite)
		allValues = append(allValues, s.Composite)
		global += s.Composite
	}
	if len(allValues) > 0 {
		global /= float64(len(allValues))
	}
	for modelID, values := range valuesByModel {
		ciByModel[modelID] = aggregator.BootstrapCI(values, aggregator.DefaultBootstrapResamples, 0.95, rng)
	}

	var totalCost float64
	var totalTokens int64
	for _, run := range snap.Runs {
		totalCost += run.CostUSD
		totalTokens += run.PromptTokens + run.CompletionTokens
	}

	m := &model.IterationMetrics{
		CompositeByModel: perModel,
		GlobalComposite:  global,
		CIByModel:        ciByModel,
		GlobalCI:         aggregator.BootstrapCI(allValues, aggregator.DefaultBootstrapResamples, 0.95, rng),
		TotalCostUSD:     totalCost,
		TotalTokens:      totalTokens,
	}

	it.Metrics = m
	if err := r.cfg.Store.SaveIteration(*it); err != nil {
		return nil, err
	}
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.AddCostUSD(totalCost)
	}

	r.maybeCostAlert(exp, it)
	return m, nil
}

// maybeCostAlert emits the one-shot cost:alert event once spend crosses
// the alert threshold, without blocking the iteration.
func (r *Runner) maybeCostAlert(exp model.Experiment, it *model.Iteration) {
	r.alertMu.Lock()
	fired := r.alerted[exp.ID]
	r.alertMu.Unlock()
	if fired {
		return
	}
	spend, err := r.cfg.Store.SpendSince(exp.ProjectID, time.Now().Add(-30*24*time.Hour))
	if err != nil {
		return
	}
	if budget.ShouldAlert(spend, exp.StopRules) {
		r.alertMu.Lock()
		already := r.alerted[exp.ID]
		r.alerted[exp.ID] = true
		r.alertMu.Unlock()
		if !already {
			r.cfg.Publisher.Publish(it.ID, "cost:alert", map[string]float64{"spendUsd": spend})
		}
	}
}

// RecentDeltas computes the composite deltas between successive
// completed iterations, ordered oldest-to-newest, for convergence
// checks.
func (r *Runner) RecentDeltas(experimentID string) ([]aggregator.Delta, error) {
	iterations, err := r.cfg.Store.ListIterations(experimentID)
	if err != nil {
		return nil, err
	}
	var composites []float64
	for _, it := range iterations {
		if it.Metrics != nil {
			composites = append(composites, it.Metrics.GlobalComposite)
		}
	}
	var deltas []aggregator.Delta
	for i := 1; i < len(composites); i++ {
		deltas = append(deltas, aggregator.ComputeDelta(composites[i-1], composites[i]))
	}
	return deltas, nil
}
