package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edison-llm/edison/pkg/registry"
)

func TestConfigFromMap(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	cfg := ConfigFromMap(registry.Config{
		"model":      "claude-sonnet-4.5",
		"api_key":    "sk-test",
		"base_url":   "http://localhost:9999",
		"rate_limit": 2.5,
	})
	assert.Equal(t, "claude-sonnet-4.5", cfg.Model)
	assert.Equal(t, "sk-test", cfg.APIKey)
	assert.Equal(t, "http://localhost:9999", cfg.BaseURL)
	assert.Equal(t, 2.5, cfg.RateLimit)
	assert.Equal(t, defaultAPIVersion, cfg.APIVersion)
	assert.Equal(t, 3600, cfg.CacheTTLSeconds)
}

func TestNewWithOptions(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	g, err := NewWithOptions(
		WithModel("claude-3-haiku"),
		WithAPIKey("sk-test"),
		WithBaseURL("http://localhost:9999"),
		WithRateLimit(1),
	)
	require.NoError(t, err)
	assert.Equal(t, "claude-3-haiku", g.model)
	assert.Equal(t, "http://localhost:9999", g.baseURL)

	_, err = NewWithOptions(WithAPIKey("sk-test"))
	assert.Error(t, err)
}
