package model

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/edison-llm/edison/pkg/edisonerr"
)

var validate = validator.New()

// ValidateRubric enforces invariant 2 from the data model: 2-10 criteria,
// unique names, positive scales, and weights summing to 1.0 within 1e-2.
func ValidateRubric(r Rubric) error {
	n := len(r.Criteria)
	if n < 2 || n > 10 {
		return edisonerr.New(edisonerr.Validation, "model", fmt.Sprintf("rubric must have 2-10 criteria, got %d", n))
	}

	seen := make(map[string]struct{}, n)
	var sum float64
	for _, c := range r.Criteria {
		if len(c.Name) == 0 || len(c.Name) > 50 {
			return edisonerr.New(edisonerr.Validation, "model", fmt.Sprintf("criterion name %q must be 1-50 chars", c.Name))
		}
		if _, dup := seen[c.Name]; dup {
			return edisonerr.New(edisonerr.Validation, "model", fmt.Sprintf("duplicate criterion name %q", c.Name))
		}
		seen[c.Name] = struct{}{}

		if c.Weight < 0 {
			return edisonerr.New(edisonerr.Validation, "model", fmt.Sprintf("criterion %q weight must be non-negative", c.Name))
		}
		if c.ScaleMax <= c.ScaleMin {
			return edisonerr.New(edisonerr.Validation, "model", fmt.Sprintf("criterion %q scale max must exceed min", c.Name))
		}
		sum += c.Weight
	}

	const tolerance = 1e-2
	if diff := sum - 1.0; diff > tolerance || diff < -tolerance {
		return edisonerr.New(edisonerr.Validation, "model", fmt.Sprintf("rubric weights sum to %.4f, want 1.0 +/- %.2f", sum, tolerance))
	}

	return nil
}

// ValidateStopRules enforces the budgetAlertThreshold open question: values
// outside [0.5, 1.0] are a validation error rather than silently clamped.
func ValidateStopRules(s StopRules) error {
	if s.MaxIterations < 1 {
		return edisonerr.New(edisonerr.Validation, "model", "stopRules.maxIterations must be >= 1")
	}
	if s.ConvergenceWindow < 1 {
		return edisonerr.New(edisonerr.Validation, "model", "stopRules.convergenceWindow must be >= 1")
	}
	if s.MinDeltaThreshold < 0 {
		return edisonerr.New(edisonerr.Validation, "model", "stopRules.minDeltaThreshold must be non-negative")
	}
	if s.MaxBudgetUSD < 0 {
		return edisonerr.New(edisonerr.Validation, "model", "stopRules.maxBudgetUsd must be non-negative")
	}
	if t := s.BudgetAlertThreshold; t != 0 && (t < 0.5 || t > 1.0) {
		return edisonerr.New(edisonerr.Validation, "model", fmt.Sprintf("stopRules.budgetAlertThreshold must be in [0.5, 1.0], got %.2f", t))
	}
	return nil
}

// ValidateCase confirms difficulty falls in the documented 1-5 range and
// that the case has a non-empty input.
func ValidateCase(c Case) error {
	if c.Difficulty < 1 || c.Difficulty > 5 {
		return edisonerr.New(edisonerr.Validation, "model", fmt.Sprintf("case %s difficulty must be 1-5, got %d", c.ID, c.Difficulty))
	}
	if len(c.Input) == 0 {
		return edisonerr.New(edisonerr.Validation, "model", fmt.Sprintf("case %s has no input variables", c.ID))
	}
	return nil
}

// ValidateModelConfig validates provider/model/params tags registered via
// the package-level validator instance, and range-checks Temperature/TopP.
func ValidateModelConfig(mc ModelConfig) error {
	type tagged struct {
		Provider string `validate:"required"`
		Model    string `validate:"required"`
	}
	if err := validate.Struct(tagged{Provider: mc.Provider, Model: mc.Model}); err != nil {
		return edisonerr.Wrap(edisonerr.Validation, "model", "modelConfig missing provider or model", err)
	}
	if mc.Params.Temperature < 0 || mc.Params.Temperature > 2 {
		return edisonerr.New(edisonerr.Validation, "model", "modelConfig.params.temperature must be in [0,2]")
	}
	if mc.Params.TopP < 0 || mc.Params.TopP > 1 {
		return edisonerr.New(edisonerr.Validation, "model", "modelConfig.params.topP must be in [0,1]")
	}
	return nil
}
