package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Experiment: ExperimentConfig{
			ID:        "exp-1",
			ProjectID: "proj-1",
			Objective: "Summarize support tickets",
			Rubric: []CriterionConfig{
				{Name: "accuracy", Weight: 0.6, ScaleMin: 0, ScaleMax: 5},
				{Name: "brevity", Weight: 0.4, ScaleMin: 0, ScaleMax: 5},
			},
			StopRules: StopRulesConfig{
				MaxIterations:     10,
				MinDeltaThreshold: 0.02,
				ConvergenceWindow: 3,
				MaxBudgetUSD:      25,
			},
		},
		Prompt: PromptConfig{Body: "Summarize: {{ticket}}"},
		Models: map[string]ModelConfig{
			"gpt4o": {Provider: "openai", Model: "gpt-4o", Temperature: 0.7},
		},
		Judges: map[string]JudgeConfig{
			"main": {Mode: "pointwise", Provider: "anthropic", Model: "claude-sonnet-4.5"},
		},
		Dataset: DatasetConfig{Cases: []CaseConfig{{Input: map[string]string{"ticket": "it broke"}}}},
	}
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_RubricCriterionCount(t *testing.T) {
	cfg := validConfig()
	cfg.Experiment.Rubric = cfg.Experiment.Rubric[:1]
	assert.ErrorContains(t, cfg.Validate(), "2-10 criteria")
}

func TestValidate_WeightSum(t *testing.T) {
	cfg := validConfig()
	cfg.Experiment.Rubric[0].Weight = 0.9
	assert.ErrorContains(t, cfg.Validate(), "sum to 1.0")

	// Within the ±0.01 tolerance is acceptable.
	cfg = validConfig()
	cfg.Experiment.Rubric[0].Weight = 0.605
	assert.NoError(t, cfg.Validate())
}

func TestValidate_DuplicateCriterion(t *testing.T) {
	cfg := validConfig()
	cfg.Experiment.Rubric[1].Name = "accuracy"
	assert.ErrorContains(t, cfg.Validate(), "duplicate")
}

func TestValidate_ScaleBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Experiment.Rubric[0].ScaleMin = 5
	cfg.Experiment.Rubric[0].ScaleMax = 5
	assert.ErrorContains(t, cfg.Validate(), "scale max must exceed min")
}

func TestValidate_BudgetAlertThresholdRange(t *testing.T) {
	cfg := validConfig()
	cfg.Experiment.StopRules.BudgetAlertThreshold = 0.3
	assert.ErrorContains(t, cfg.Validate(), "budget_alert_threshold")

	cfg.Experiment.StopRules.BudgetAlertThreshold = 0.8
	assert.NoError(t, cfg.Validate())
}

func TestValidate_ModelTemperature(t *testing.T) {
	cfg := validConfig()
	mc := cfg.Models["gpt4o"]
	mc.Temperature = 2.5
	cfg.Models["gpt4o"] = mc
	assert.ErrorContains(t, cfg.Validate(), "temperature")
}

func TestValidate_JudgeMode(t *testing.T) {
	cfg := validConfig()
	jc := cfg.Judges["main"]
	jc.Mode = "holistic"
	cfg.Judges["main"] = jc
	assert.ErrorContains(t, cfg.Validate(), "pointwise or pairwise")
}

func TestValidate_DatasetRequired(t *testing.T) {
	cfg := validConfig()
	cfg.Dataset = DatasetConfig{}
	assert.ErrorContains(t, cfg.Validate(), "dataset")
}

func TestValidate_DurationFormats(t *testing.T) {
	cfg := validConfig()
	cfg.Run.Timeout = "not-a-duration"
	assert.ErrorContains(t, cfg.Validate(), "run.timeout")

	cfg.Run.Timeout = "30m"
	assert.NoError(t, cfg.Validate())
}

func TestMerge_OverridesTakePrecedence(t *testing.T) {
	base := validConfig()
	override := &Config{
		Experiment: ExperimentConfig{Objective: "New objective"},
		Models: map[string]ModelConfig{
			"gpt4o": {Temperature: 0.2},
			"haiku": {Provider: "anthropic", Model: "claude-3-haiku", Temperature: 0.5},
		},
		Run: RunConfig{Concurrency: 8},
	}

	base.Merge(override)
	assert.Equal(t, "New objective", base.Experiment.Objective)
	assert.Equal(t, 0.2, base.Models["gpt4o"].Temperature)
	assert.Equal(t, "openai", base.Models["gpt4o"].Provider) // untouched field survives
	assert.Equal(t, "claude-3-haiku", base.Models["haiku"].Model)
	assert.Equal(t, 8, base.Run.Concurrency)
	// Base rubric untouched by an empty override.
	assert.Len(t, base.Experiment.Rubric, 2)
}

func TestApplyProfile(t *testing.T) {
	cfg := validConfig()
	cfg.Profiles = map[string]Profile{
		"cheap": {
			Models: map[string]ModelConfig{
				"gpt4o": {Model: "gpt-4o-mini"},
			},
			Run: RunConfig{Concurrency: 2},
		},
	}

	require.NoError(t, cfg.ApplyProfile("cheap"))
	assert.Equal(t, "gpt-4o-mini", cfg.Models["gpt4o"].Model)
	assert.Equal(t, 2, cfg.Run.Concurrency)

	assert.Error(t, cfg.ApplyProfile("missing"))
}

func TestInterpolateEnvVars(t *testing.T) {
	getenv := func(key string) (string, bool) {
		if key == "API_KEY" {
			return "sk-resolved", true
		}
		return "", false
	}

	out, err := interpolateEnvVars("prefix-${API_KEY}-suffix", getenv)
	require.NoError(t, err)
	assert.Equal(t, "prefix-sk-resolved-suffix", out)

	_, err = interpolateEnvVars("${MISSING}", getenv)
	assert.ErrorContains(t, err, "not set")

	_, err = interpolateEnvVars("${UNCLOSED", getenv)
	assert.ErrorContains(t, err, "unclosed")
}

func TestToExperiment_Conversion(t *testing.T) {
	cfg := validConfig()
	exp := cfg.ToExperiment()
	assert.Equal(t, "exp-1", exp.ID)
	require.Len(t, exp.Rubric.Criteria, 2)
	assert.Equal(t, 0.6, exp.Rubric.Criteria[0].Weight)
	assert.Equal(t, 10, exp.StopRules.MaxIterations)
}

func TestToModelConfigs_ActiveDefaultsTrue(t *testing.T) {
	cfg := validConfig()
	inactive := false
	cfg.Models["off"] = ModelConfig{Provider: "openai", Model: "gpt-4o-mini", Active: &inactive}

	mcs := cfg.ToModelConfigs("exp-1")
	byID := map[string]bool{}
	for _, mc := range mcs {
		byID[mc.ID] = mc.Active
	}
	assert.True(t, byID["gpt4o"])
	assert.False(t, byID["off"])
}

func TestToDataset_DefaultsDifficulty(t *testing.T) {
	cfg := validConfig()
	ds := cfg.ToDataset("proj-1")
	require.Len(t, ds.Cases, 1)
	assert.Equal(t, 3, ds.Cases[0].Difficulty)
	assert.Equal(t, "it broke", ds.Cases[0].Input["ticket"])
}
