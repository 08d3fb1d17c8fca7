package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edison-llm/edison/pkg/registry"
)

type judgeConfig struct {
	Model       string
	Temperature float64
	Seed        int64
}

func withModel(m string) registry.Option[judgeConfig] {
	return func(c *judgeConfig) { c.Model = m }
}

func withSeed(s int64) registry.Option[judgeConfig] {
	return func(c *judgeConfig) { c.Seed = s }
}

func TestApplyOptions_LayersOverDefaults(t *testing.T) {
	defaults := judgeConfig{Model: "gpt-4o-mini", Temperature: 0.3, Seed: 42}

	cfg := registry.ApplyOptions(defaults, withModel("claude-sonnet-4.5"), withSeed(7))
	assert.Equal(t, "claude-sonnet-4.5", cfg.Model)
	assert.Equal(t, int64(7), cfg.Seed)
	// Untouched fields keep their defaults.
	assert.Equal(t, 0.3, cfg.Temperature)

	// The defaults value itself is not mutated.
	assert.Equal(t, "gpt-4o-mini", defaults.Model)
}

func TestApplyOptions_NoOptionsReturnsDefaults(t *testing.T) {
	defaults := judgeConfig{Model: "gpt-4o-mini"}
	assert.Equal(t, defaults, registry.ApplyOptions(defaults))
}
