package results_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edison-llm/edison/pkg/aggregator"
	"github.com/edison-llm/edison/pkg/model"
	"github.com/edison-llm/edison/pkg/results"
)

func sampleIterations() []model.Iteration {
	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	t3 := t2.Add(time.Hour)
	return []model.Iteration{
		{
			ID: "it-1", ExperimentID: "exp-1", Number: 1, Status: model.IterationCompleted,
			StartedAt: &t1, FinishedAt: &t2,
			Metrics: &model.IterationMetrics{GlobalComposite: 6.5, TotalCostUSD: 0.10, TotalTokens: 1000},
		},
		{
			ID: "it-2", ExperimentID: "exp-1", Number: 2, Status: model.IterationCompleted,
			StartedAt: &t2, FinishedAt: &t3,
			StopReason: "converged",
			Metrics:    &model.IterationMetrics{GlobalComposite: 7.2, TotalCostUSD: 0.12, TotalTokens: 1200},
		},
		{
			ID: "it-3", ExperimentID: "exp-1", Number: 3, Status: model.IterationPending,
		},
	}
}

func TestBuildReport(t *testing.T) {
	exp := model.Experiment{ID: "exp-1", Objective: "improve summaries"}
	ranking := []aggregator.ModelRanking{
		{ModelID: "gpt-4o", Composite: 7.4, CostUSD: 0.15},
		{ModelID: "claude-3-haiku", Composite: 6.9, CostUSD: 0.05},
	}

	r := results.BuildReport(exp, sampleIterations(), "pv-2", ranking)

	assert.Equal(t, "exp-1", r.ExperimentID)
	assert.Equal(t, "pv-2", r.BestPromptVersionID)
	assert.Equal(t, 2, r.IterationsRun) // pending iteration excluded
	assert.InDelta(t, 7.2, r.CompositeScore, 1e-9)
	assert.InDelta(t, 0.22, r.TotalCostUSD, 1e-9)
	assert.Equal(t, int64(2200), r.TotalTokens)
	assert.Equal(t, "converged", r.StopReason)
	require.NotEmpty(t, r.Recommendations)
	assert.Contains(t, r.Recommendations[0], "converged")
	assert.Contains(t, r.Recommendations[1], "gpt-4o")
}

func TestBuildReport_EmptyIterations(t *testing.T) {
	r := results.BuildReport(model.Experiment{ID: "exp-1"}, nil, "", nil)
	assert.Zero(t, r.IterationsRun)
	assert.Zero(t, r.CompositeScore)
	assert.Empty(t, r.StopReason)
}
