// Package budget implements the pre-iteration and post-iteration gates
// that decide whether an iteration may start, and whether the
// experiment should stop after one completes. The gates are pure
// functions over runtime spend/credential state; callers thread the
// facts in and persist nothing here.
package budget

import (
	"time"

	"github.com/edison-llm/edison/pkg/aggregator"
	"github.com/edison-llm/edison/pkg/edisonerr"
	"github.com/edison-llm/edison/pkg/model"
)

// DefaultAlertThreshold is the fraction of maxBudgetUsd at which a
// one-shot cost:alert event fires.
const DefaultAlertThreshold = 0.8

// PreGateInput carries the facts the pre-iteration gate checks.
type PreGateInput struct {
	SpendLast30dUSD    float64
	EstimatedCostUSD   float64
	MaxBudgetUSD       float64 // 0 means unbounded
	SelectedProviders  []string
	CredentialExists   func(provider string) bool
	DatasetSize        int
}

// CheckPreGate validates the three pre-iteration conditions: budget
// headroom, credentials for every selected provider, and a non-empty
// dataset. It returns the first edisonerr.BudgetExceeded or
// edisonerr.Validation failure encountered.
func CheckPreGate(in PreGateInput) error {
	if in.MaxBudgetUSD > 0 && in.SpendLast30dUSD+in.EstimatedCostUSD > in.MaxBudgetUSD {
		return edisonerr.New(edisonerr.BudgetExceeded, "budget", "projected spend exceeds max budget")
	}
	for _, p := range in.SelectedProviders {
		if in.CredentialExists == nil || !in.CredentialExists(p) {
			return edisonerr.New(edisonerr.Validation, "budget", "no active credential for provider "+p)
		}
	}
	if in.DatasetSize == 0 {
		return edisonerr.New(edisonerr.Validation, "budget", "dataset is empty")
	}
	return nil
}

// PostGateInput carries the facts the post-iteration gate checks.
type PostGateInput struct {
	IterationNumber   int
	StopRules         model.StopRules
	SpendUSD          float64
	RecentDeltas      []aggregator.Delta // ordered oldest-to-newest
	RefinerProducedValidSuggestion bool
}

// Decision is the post-iteration gate's verdict: whether to stop, and
// why.
type Decision struct {
	Stop   bool
	Reason string
}

// CheckPostGate evaluates the four stop conditions in order and
// returns the first that fires, or a CONTINUE decision.
func CheckPostGate(in PostGateInput) Decision {
	if in.StopRules.MaxIterations > 0 && in.IterationNumber >= in.StopRules.MaxIterations {
		return Decision{Stop: true, Reason: "max_iterations"}
	}
	if in.StopRules.MaxBudgetUSD > 0 && in.SpendUSD >= in.StopRules.MaxBudgetUSD {
		return Decision{Stop: true, Reason: "budget_exhausted"}
	}
	if aggregator.HasConverged(in.RecentDeltas, in.StopRules.MinDeltaThreshold, in.StopRules.ConvergenceWindow) {
		return Decision{Stop: true, Reason: "converged"}
	}
	if in.StopRules.StopIfNoRefinement && !in.RefinerProducedValidSuggestion {
		return Decision{Stop: true, Reason: "no_refinement"}
	}
	return Decision{Stop: false, Reason: "continue"}
}

// AlertThreshold returns StopRules.BudgetAlertThreshold, defaulting to
// DefaultAlertThreshold when unset (0).
func AlertThreshold(rules model.StopRules) float64 {
	if rules.BudgetAlertThreshold <= 0 {
		return DefaultAlertThreshold
	}
	return rules.BudgetAlertThreshold
}

// ShouldAlert reports whether spend has crossed alertThreshold *
// maxBudgetUsd. Callers track whether the one-shot alert already fired
// for this experiment; ShouldAlert is a pure threshold check.
func ShouldAlert(spendUSD float64, rules model.StopRules) bool {
	if rules.MaxBudgetUSD <= 0 {
		return false
	}
	return spendUSD >= AlertThreshold(rules)*rules.MaxBudgetUSD
}

// Spend30d sums CostRecord amounts within the trailing 30 days of now.
func Spend30d(records []model.CostRecord, now time.Time) float64 {
	cutoff := now.Add(-30 * 24 * time.Hour)
	var total float64
	for _, r := range records {
		if r.Timestamp.After(cutoff) {
			total += r.AmountUSD
		}
	}
	return total
}
