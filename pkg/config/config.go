// Package config loads and validates Edison's experiment configuration:
// the objective, rubric, candidate models, judges, refiner, stop rules,
// and safety settings that define one prompt-improvement experiment.
// Precedence is CLI flags > environment variables > config file >
// defaults.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Config is the complete Edison configuration.
type Config struct {
	Experiment ExperimentConfig       `yaml:"experiment" koanf:"experiment"`
	Prompt     PromptConfig           `yaml:"prompt" koanf:"prompt"`
	Models     map[string]ModelConfig `yaml:"models" koanf:"models"`
	Judges     map[string]JudgeConfig `yaml:"judges" koanf:"judges"`
	Refiner    RefinerConfig          `yaml:"refiner,omitempty" koanf:"refiner"`
	Dataset    DatasetConfig          `yaml:"dataset" koanf:"dataset"`
	Run        RunConfig              `yaml:"run" koanf:"run"`
	Output     OutputConfig           `yaml:"output" koanf:"output"`
	Profiles   map[string]Profile     `yaml:"profiles,omitempty" koanf:"profiles"`
}

// Profile is a named configuration overlay.
type Profile struct {
	Experiment ExperimentConfig       `yaml:"experiment,omitempty"`
	Models     map[string]ModelConfig `yaml:"models,omitempty"`
	Judges     map[string]JudgeConfig `yaml:"judges,omitempty"`
	Run        RunConfig              `yaml:"run,omitempty"`
	Output     OutputConfig           `yaml:"output,omitempty"`
}

// ExperimentConfig names the objective, rubric, stop rules, and safety
// settings.
type ExperimentConfig struct {
	ID        string          `yaml:"id" koanf:"id"`
	ProjectID string          `yaml:"project_id" koanf:"project_id"`
	Objective string          `yaml:"objective" koanf:"objective"`
	Rubric    []CriterionConfig `yaml:"rubric" koanf:"rubric" validate:"dive"`
	StopRules StopRulesConfig `yaml:"stop_rules" koanf:"stop_rules"`
	Safety    SafetyConfig    `yaml:"safety,omitempty" koanf:"safety"`
}

// CriterionConfig is one weighted rubric dimension.
type CriterionConfig struct {
	Name        string  `yaml:"name" koanf:"name" validate:"required,min=1,max=50"`
	Description string  `yaml:"description,omitempty" koanf:"description"`
	Weight      float64 `yaml:"weight" koanf:"weight" validate:"gte=0"`
	ScaleMin    int     `yaml:"scale_min" koanf:"scale_min"`
	ScaleMax    int     `yaml:"scale_max" koanf:"scale_max"`
}

// StopRulesConfig bounds the iteration loop.
type StopRulesConfig struct {
	MaxIterations        int     `yaml:"max_iterations" koanf:"max_iterations" validate:"gte=0"`
	MinDeltaThreshold    float64 `yaml:"min_delta_threshold" koanf:"min_delta_threshold" validate:"gte=0"`
	ConvergenceWindow    int     `yaml:"convergence_window" koanf:"convergence_window" validate:"gte=0"`
	MaxBudgetUSD         float64 `yaml:"max_budget_usd" koanf:"max_budget_usd" validate:"gte=0"`
	BudgetAlertThreshold float64 `yaml:"budget_alert_threshold,omitempty" koanf:"budget_alert_threshold" validate:"omitempty,gte=0.5,lte=1.0"`
	StopIfNoRefinement   bool    `yaml:"stop_if_no_refinement" koanf:"stop_if_no_refinement"`
}

// SafetyConfig controls the content scanner.
type SafetyConfig struct {
	BlockViolations    bool     `yaml:"block_violations" koanf:"block_violations"`
	ProviderModeration bool     `yaml:"provider_moderation" koanf:"provider_moderation"`
	JailbreakPatterns  []string `yaml:"jailbreak_patterns,omitempty" koanf:"jailbreak_patterns"`
	ToxicityService    bool     `yaml:"toxicity_service" koanf:"toxicity_service"`
}

// PromptConfig seeds the first PromptVersion.
type PromptConfig struct {
	Body           string `yaml:"body" koanf:"body"`
	SystemPreamble string `yaml:"system_preamble,omitempty" koanf:"system_preamble"`
	Changelog      string `yaml:"changelog,omitempty" koanf:"changelog"`
}

// ModelConfig names one candidate provider+model under test.
type ModelConfig struct {
	Provider    string  `yaml:"provider" koanf:"provider"`
	Model       string  `yaml:"model" koanf:"model"`
	Temperature float64 `yaml:"temperature" koanf:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `yaml:"max_tokens,omitempty" koanf:"max_tokens" validate:"gte=0"`
	TopP        float64 `yaml:"top_p,omitempty" koanf:"top_p" validate:"gte=0,lte=1"`
	Seed        *int64  `yaml:"seed,omitempty" koanf:"seed"`
	APIKey      string  `yaml:"api_key,omitempty" koanf:"api_key"`
	Region      string  `yaml:"region,omitempty" koanf:"region"` // AWS region for bedrock
	RateLimit   float64 `yaml:"rate_limit,omitempty" koanf:"rate_limit" validate:"gte=0"` // Requests per second
	Active      *bool   `yaml:"active,omitempty" koanf:"active"`
}

// JudgeConfig names one judge model.
type JudgeConfig struct {
	Mode     string `yaml:"mode" koanf:"mode" validate:"omitempty,oneof=pointwise pairwise"`
	Provider string `yaml:"provider" koanf:"provider"`
	Model    string `yaml:"model" koanf:"model"`
	APIKey   string `yaml:"api_key,omitempty" koanf:"api_key"`
	Active   *bool  `yaml:"active,omitempty" koanf:"active"`
}

// RefinerConfig names the model that proposes prompt diffs. An empty
// provider disables refinement.
type RefinerConfig struct {
	Provider string `yaml:"provider,omitempty" koanf:"provider"`
	Model    string `yaml:"model,omitempty" koanf:"model"`
	APIKey   string `yaml:"api_key,omitempty" koanf:"api_key"`
}

// DatasetConfig points at the test cases: a JSONL file path or inline
// cases.
type DatasetConfig struct {
	Path  string       `yaml:"path,omitempty" koanf:"path"`
	Kind  string       `yaml:"kind,omitempty" koanf:"kind" validate:"omitempty,oneof=golden synthetic adversarial"`
	Cases []CaseConfig `yaml:"cases,omitempty" koanf:"cases"`
}

// CaseConfig is one inline test case.
type CaseConfig struct {
	Input      map[string]string `yaml:"input" koanf:"input"`
	Expected   string            `yaml:"expected,omitempty" koanf:"expected"`
	Tags       []string          `yaml:"tags,omitempty" koanf:"tags"`
	Difficulty int               `yaml:"difficulty,omitempty" koanf:"difficulty" validate:"omitempty,gte=1,lte=5"`
}

// RunConfig contains runtime settings.
type RunConfig struct {
	Concurrency      int    `yaml:"concurrency,omitempty" koanf:"concurrency" validate:"gte=0"`
	Timeout          string `yaml:"timeout,omitempty" koanf:"timeout"`
	IterationTimeout string `yaml:"iteration_timeout,omitempty" koanf:"iteration_timeout"`
}

// OutputConfig contains report output settings.
type OutputConfig struct {
	Format string `yaml:"format" koanf:"format" validate:"omitempty,oneof=json jsonl table"`
	Path   string `yaml:"path" koanf:"path"`
	HTML   string `yaml:"html,omitempty" koanf:"html"`
}

// weightTolerance is the slack allowed on the rubric weight sum.
const weightTolerance = 1e-2

// Validate checks the constraints the validator struct tags cannot
// express: rubric shape, weight sum, scale bounds, and duration formats.
func (c *Config) Validate() error {
	if n := len(c.Experiment.Rubric); n < 2 || n > 10 {
		return fmt.Errorf("experiment.rubric must have 2-10 criteria, got: %d", n)
	}

	var weightSum float64
	seen := make(map[string]bool)
	for _, crit := range c.Experiment.Rubric {
		if crit.Name == "" || len(crit.Name) > 50 {
			return fmt.Errorf("rubric criterion name must be 1-50 chars, got: %q", crit.Name)
		}
		if seen[crit.Name] {
			return fmt.Errorf("duplicate rubric criterion: %q", crit.Name)
		}
		seen[crit.Name] = true
		if crit.Weight < 0 {
			return fmt.Errorf("rubric criterion %q weight must be non-negative, got: %f", crit.Name, crit.Weight)
		}
		if crit.ScaleMax <= crit.ScaleMin {
			return fmt.Errorf("rubric criterion %q scale max must exceed min, got: [%d, %d]", crit.Name, crit.ScaleMin, crit.ScaleMax)
		}
		weightSum += crit.Weight
	}
	if math.Abs(weightSum-1.0) > weightTolerance {
		return fmt.Errorf("rubric weights must sum to 1.0 (±%.2f), got: %f", weightTolerance, weightSum)
	}

	if t := c.Experiment.StopRules.BudgetAlertThreshold; t != 0 && (t < 0.5 || t > 1.0) {
		return fmt.Errorf("stop_rules.budget_alert_threshold must be in [0.5, 1.0], got: %f", t)
	}

	for name, mc := range c.Models {
		if mc.Provider == "" || mc.Model == "" {
			return fmt.Errorf("models.%s requires provider and model", name)
		}
		if mc.Temperature < 0 || mc.Temperature > 2 {
			return fmt.Errorf("models.%s.temperature must be between 0 and 2, got: %f", name, mc.Temperature)
		}
	}
	for name, jc := range c.Judges {
		if jc.Provider == "" || jc.Model == "" {
			return fmt.Errorf("judges.%s requires provider and model", name)
		}
		if jc.Mode != "" && jc.Mode != "pointwise" && jc.Mode != "pairwise" {
			return fmt.Errorf("judges.%s.mode must be pointwise or pairwise, got: %q", name, jc.Mode)
		}
	}

	if c.Dataset.Path == "" && len(c.Dataset.Cases) == 0 {
		return fmt.Errorf("dataset requires a path or inline cases")
	}

	if c.Run.Concurrency < 0 {
		return fmt.Errorf("run.concurrency must be non-negative, got: %d", c.Run.Concurrency)
	}
	for _, d := range []struct{ name, value string }{
		{"run.timeout", c.Run.Timeout},
		{"run.iteration_timeout", c.Run.IterationTimeout},
	} {
		if d.value != "" {
			if _, err := time.ParseDuration(d.value); err != nil {
				return fmt.Errorf("invalid %s: %w", d.name, err)
			}
		}
	}

	validFormats := map[string]bool{"json": true, "jsonl": true, "table": true}
	if c.Output.Format != "" && !validFormats[c.Output.Format] {
		return fmt.Errorf("invalid output format: %s (valid: json, jsonl, table)", c.Output.Format)
	}

	return nil
}

// Merge merges another config into this one, with the other config
// taking precedence.
func (c *Config) Merge(other *Config) {
	if other.Experiment.ID != "" {
		c.Experiment.ID = other.Experiment.ID
	}
	if other.Experiment.ProjectID != "" {
		c.Experiment.ProjectID = other.Experiment.ProjectID
	}
	if other.Experiment.Objective != "" {
		c.Experiment.Objective = other.Experiment.Objective
	}
	if len(other.Experiment.Rubric) > 0 {
		c.Experiment.Rubric = other.Experiment.Rubric
	}
	mergeStopRules(&c.Experiment.StopRules, other.Experiment.StopRules)
	if other.Experiment.Safety.BlockViolations {
		c.Experiment.Safety.BlockViolations = true
	}
	if other.Experiment.Safety.ProviderModeration {
		c.Experiment.Safety.ProviderModeration = true
	}
	if len(other.Experiment.Safety.JailbreakPatterns) > 0 {
		c.Experiment.Safety.JailbreakPatterns = other.Experiment.Safety.JailbreakPatterns
	}

	if other.Prompt.Body != "" {
		c.Prompt = other.Prompt
	}

	if c.Models == nil {
		c.Models = make(map[string]ModelConfig)
	}
	for name, mc := range other.Models {
		existing := c.Models[name]
		if mc.Provider != "" {
			existing.Provider = mc.Provider
		}
		if mc.Model != "" {
			existing.Model = mc.Model
		}
		if mc.Temperature != 0 {
			existing.Temperature = mc.Temperature
		}
		if mc.MaxTokens != 0 {
			existing.MaxTokens = mc.MaxTokens
		}
		if mc.APIKey != "" {
			existing.APIKey = mc.APIKey
		}
		if mc.RateLimit != 0 {
			existing.RateLimit = mc.RateLimit
		}
		if mc.Seed != nil {
			existing.Seed = mc.Seed
		}
		if mc.Active != nil {
			existing.Active = mc.Active
		}
		c.Models[name] = existing
	}

	if c.Judges == nil {
		c.Judges = make(map[string]JudgeConfig)
	}
	for name, jc := range other.Judges {
		existing := c.Judges[name]
		if jc.Mode != "" {
			existing.Mode = jc.Mode
		}
		if jc.Provider != "" {
			existing.Provider = jc.Provider
		}
		if jc.Model != "" {
			existing.Model = jc.Model
		}
		if jc.APIKey != "" {
			existing.APIKey = jc.APIKey
		}
		if jc.Active != nil {
			existing.Active = jc.Active
		}
		c.Judges[name] = existing
	}

	if other.Refiner.Provider != "" {
		c.Refiner = other.Refiner
	}
	if other.Dataset.Path != "" || len(other.Dataset.Cases) > 0 {
		c.Dataset = other.Dataset
	}
	if other.Run.Concurrency != 0 {
		c.Run.Concurrency = other.Run.Concurrency
	}
	if other.Run.Timeout != "" {
		c.Run.Timeout = other.Run.Timeout
	}
	if other.Run.IterationTimeout != "" {
		c.Run.IterationTimeout = other.Run.IterationTimeout
	}
	if other.Output.Format != "" {
		c.Output.Format = other.Output.Format
	}
	if other.Output.Path != "" {
		c.Output.Path = other.Output.Path
	}
	if other.Output.HTML != "" {
		c.Output.HTML = other.Output.HTML
	}
}

func mergeStopRules(dst *StopRulesConfig, src StopRulesConfig) {
	if src.MaxIterations != 0 {
		dst.MaxIterations = src.MaxIterations
	}
	if src.MinDeltaThreshold != 0 {
		dst.MinDeltaThreshold = src.MinDeltaThreshold
	}
	if src.ConvergenceWindow != 0 {
		dst.ConvergenceWindow = src.ConvergenceWindow
	}
	if src.MaxBudgetUSD != 0 {
		dst.MaxBudgetUSD = src.MaxBudgetUSD
	}
	if src.BudgetAlertThreshold != 0 {
		dst.BudgetAlertThreshold = src.BudgetAlertThreshold
	}
	if src.StopIfNoRefinement {
		dst.StopIfNoRefinement = true
	}
}

// ApplyProfile applies a named profile to this config.
func (c *Config) ApplyProfile(profileName string) error {
	profile, exists := c.Profiles[profileName]
	if !exists {
		return fmt.Errorf("profile %q not found", profileName)
	}

	c.Merge(&Config{
		Experiment: profile.Experiment,
		Models:     profile.Models,
		Judges:     profile.Judges,
		Run:        profile.Run,
		Output:     profile.Output,
	})
	return nil
}

// interpolateEnvVars replaces ${VAR} with environment variable values.
func interpolateEnvVars(s string, getenv func(string) (string, bool)) (string, error) {
	result := s
	start := 0
	for {
		idx := strings.Index(result[start:], "${")
		if idx == -1 {
			break
		}
		idx += start

		endIdx := strings.Index(result[idx:], "}")
		if endIdx == -1 {
			return "", fmt.Errorf("unclosed environment variable reference at position %d", idx)
		}
		endIdx += idx

		varName := result[idx+2 : endIdx]
		value, ok := getenv(varName)
		if !ok {
			return "", fmt.Errorf("environment variable %q is not set", varName)
		}

		result = result[:idx] + value + result[endIdx+1:]
		start = idx + len(value)
	}
	return result, nil
}
