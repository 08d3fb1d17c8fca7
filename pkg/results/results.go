// Package results assembles the final report of an experiment: the best
// prompt version, per-model rankings, spend totals, and the flattened
// output/judgment records exported to JSONL and HTML.
package results

import (
	"fmt"
	"time"

	"github.com/edison-llm/edison/pkg/aggregator"
	"github.com/edison-llm/edison/pkg/model"
)

// Report is the final object produced when an experiment stops.
type Report struct {
	// StartTime marks when the first iteration began.
	StartTime time.Time `json:"start_time"`

	// EndTime marks when the last iteration finished.
	EndTime time.Time `json:"end_time"`

	// ExperimentID identifies the experiment this report covers.
	ExperimentID string `json:"experiment_id"`

	// Objective is the experiment's objective text.
	Objective string `json:"objective"`

	// BestPromptVersionID is the highest-scoring prompt version.
	BestPromptVersionID string `json:"best_prompt_version_id"`

	// CompositeScore is the best iteration's global composite.
	CompositeScore float64 `json:"composite_score"`

	// PerModelRanking orders candidate models best-first.
	PerModelRanking []aggregator.ModelRanking `json:"per_model_ranking"`

	// TotalCostUSD and TotalTokens sum across all iterations.
	TotalCostUSD float64 `json:"total_cost_usd"`
	TotalTokens  int64   `json:"total_tokens"`

	// IterationsRun counts iterations that reached a terminal state.
	IterationsRun int `json:"iterations_run"`

	// StopReason is why the loop halted (converged, max_iterations,
	// budget_exhausted, no_refinement, cancelled, failed).
	StopReason string `json:"stop_reason"`

	// Recommendations are human-readable next steps.
	Recommendations []string `json:"recommendations,omitempty"`
}

// OutputRecord is one flattened output+judgment line for JSONL export.
type OutputRecord struct {
	IterationID string            `json:"iteration_id"`
	ModelRunID  string            `json:"model_run_id"`
	CaseID      string            `json:"case_id"`
	Model       string            `json:"model"`
	Prompt      string            `json:"prompt"`
	Response    string            `json:"response"`
	Scores      map[string]int    `json:"scores,omitempty"`
	Rationales  map[string]string `json:"rationales,omitempty"`
	Composite   float64           `json:"composite"`
	Blocked     bool              `json:"blocked"`
	Skipped     bool              `json:"skipped"`
	Timestamp   time.Time         `json:"timestamp"`
}

// BuildReport assembles a Report from an experiment's iterations and
// the final ranking. Iterations must be ordered by number.
func BuildReport(exp model.Experiment, iterations []model.Iteration, bestPromptVersionID string, ranking []aggregator.ModelRanking) Report {
	r := Report{
		ExperimentID:        exp.ID,
		Objective:           exp.Objective,
		BestPromptVersionID: bestPromptVersionID,
		PerModelRanking:     ranking,
	}

	for _, it := range iterations {
		if !it.Status.Terminal() {
			continue
		}
		r.IterationsRun++
		if it.StartedAt != nil && (r.StartTime.IsZero() || it.StartedAt.Before(r.StartTime)) {
			r.StartTime = *it.StartedAt
		}
		if it.FinishedAt != nil && it.FinishedAt.After(r.EndTime) {
			r.EndTime = *it.FinishedAt
		}
		if it.Metrics != nil {
			r.TotalCostUSD += it.Metrics.TotalCostUSD
			r.TotalTokens += it.Metrics.TotalTokens
			if it.Metrics.GlobalComposite > r.CompositeScore {
				r.CompositeScore = it.Metrics.GlobalComposite
			}
		}
		if it.StopReason != "" {
			r.StopReason = it.StopReason
		}
	}

	r.Recommendations = recommend(r)
	return r
}

// recommend derives next-step suggestions from the report's outcome.
func recommend(r Report) []string {
	var recs []string
	switch r.StopReason {
	case "converged":
		recs = append(recs, "Scores converged; promote the best prompt version to production.")
	case "max_iterations":
		recs = append(recs, "Iteration cap reached; raise max_iterations if scores were still improving.")
	case "budget_exhausted":
		recs = append(recs, "Budget exhausted; raise max_budget_usd or switch to cheaper candidate models.")
	case "no_refinement":
		recs = append(recs, "The refiner produced no valid suggestion; consider editing the prompt manually.")
	}
	if len(r.PerModelRanking) > 1 {
		best := r.PerModelRanking[0]
		recs = append(recs, fmt.Sprintf("Best model: %s (composite %.2f, $%.4f).", best.ModelID, best.Composite, best.CostUSD))
	}
	return recs
}
