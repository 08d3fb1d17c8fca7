package config

import (
	"time"

	"github.com/google/uuid"

	"github.com/edison-llm/edison/pkg/model"
)

// ToExperiment materializes the configured experiment as a domain
// entity. Missing ids are generated.
func (c *Config) ToExperiment() model.Experiment {
	id := c.Experiment.ID
	if id == "" {
		id = uuid.NewString()
	}
	projectID := c.Experiment.ProjectID
	if projectID == "" {
		projectID = id
	}

	criteria := make([]model.Criterion, 0, len(c.Experiment.Rubric))
	for _, crit := range c.Experiment.Rubric {
		criteria = append(criteria, model.Criterion{
			Name:        crit.Name,
			Description: crit.Description,
			Weight:      crit.Weight,
			ScaleMin:    crit.ScaleMin,
			ScaleMax:    crit.ScaleMax,
		})
	}

	return model.Experiment{
		ID:        id,
		ProjectID: projectID,
		Objective: c.Experiment.Objective,
		Rubric:    model.Rubric{Criteria: criteria},
		StopRules: model.StopRules{
			MaxIterations:        c.Experiment.StopRules.MaxIterations,
			MinDeltaThreshold:    c.Experiment.StopRules.MinDeltaThreshold,
			ConvergenceWindow:    c.Experiment.StopRules.ConvergenceWindow,
			MaxBudgetUSD:         c.Experiment.StopRules.MaxBudgetUSD,
			BudgetAlertThreshold: c.Experiment.StopRules.BudgetAlertThreshold,
			StopIfNoRefinement:   c.Experiment.StopRules.StopIfNoRefinement,
		},
		Safety: model.SafetyConfig{
			BlockViolations:       c.Experiment.Safety.BlockViolations,
			ProviderModeration:    c.Experiment.Safety.ProviderModeration,
			JailbreakPatterns:     c.Experiment.Safety.JailbreakPatterns,
			ToxicityServiceEnable: c.Experiment.Safety.ToxicityService,
		},
		CreatedAt: time.Now(),
	}
}

// ToSeedPromptVersion materializes the configured prompt as version 1.
func (c *Config) ToSeedPromptVersion(experimentID string) model.PromptVersion {
	changelog := c.Prompt.Changelog
	if changelog == "" {
		changelog = "seed version"
	}
	return model.PromptVersion{
		ID:             uuid.NewString(),
		ExperimentID:   experimentID,
		Version:        1,
		Body:           c.Prompt.Body,
		SystemPreamble: c.Prompt.SystemPreamble,
		Changelog:      changelog,
		Creator:        "human",
		CreatedAt:      time.Now(),
	}
}

// ToModelConfigs materializes the candidate model configs. A config
// with no explicit active flag is active.
func (c *Config) ToModelConfigs(experimentID string) []model.ModelConfig {
	out := make([]model.ModelConfig, 0, len(c.Models))
	for name, mc := range c.Models {
		active := mc.Active == nil || *mc.Active
		out = append(out, model.ModelConfig{
			ID:           name,
			ExperimentID: experimentID,
			Provider:     mc.Provider,
			Model:        mc.Model,
			Params: model.ModelParams{
				Temperature: mc.Temperature,
				MaxTokens:   mc.MaxTokens,
				TopP:        mc.TopP,
				Seed:        mc.Seed,
			},
			Active: active,
		})
	}
	return out
}

// ToJudgeConfigs materializes the judge configs. Mode defaults to
// pointwise.
func (c *Config) ToJudgeConfigs(experimentID string) []model.JudgeConfig {
	out := make([]model.JudgeConfig, 0, len(c.Judges))
	for name, jc := range c.Judges {
		mode := model.JudgeModePointwise
		if jc.Mode == "pairwise" {
			mode = model.JudgeModePairwise
		}
		active := jc.Active == nil || *jc.Active
		out = append(out, model.JudgeConfig{
			ID:           name,
			ExperimentID: experimentID,
			Mode:         mode,
			Provider:     jc.Provider,
			Model:        jc.Model,
			Active:       active,
		})
	}
	return out
}

// ToDataset materializes the inline cases as a Dataset. Kind defaults
// to golden.
func (c *Config) ToDataset(projectID string) model.Dataset {
	kind := model.DatasetGolden
	switch c.Dataset.Kind {
	case "synthetic":
		kind = model.DatasetSynthetic
	case "adversarial":
		kind = model.DatasetAdversarial
	}

	ds := model.Dataset{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Kind:      kind,
	}
	for _, cc := range c.Dataset.Cases {
		difficulty := cc.Difficulty
		if difficulty == 0 {
			difficulty = 3
		}
		ds.Cases = append(ds.Cases, model.Case{
			ID:             uuid.NewString(),
			DatasetID:      ds.ID,
			Input:          cc.Input,
			ExpectedOutput: cc.Expected,
			Tags:           cc.Tags,
			Difficulty:     difficulty,
		})
	}
	return ds
}
