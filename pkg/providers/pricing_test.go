package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edison-llm/edison/pkg/edisonerr"
)

func TestLookupRate_UnknownModelIsFatal(t *testing.T) {
	_, err := LookupRate("openai", "gpt-nonexistent")
	assert.Error(t, err)
	assert.Equal(t, edisonerr.Validation, edisonerr.KindOf(err))
}

func TestLookupRate_AliasedClaudeNamesShareRate(t *testing.T) {
	a, err := LookupRate("anthropic", "claude-sonnet-4.5")
	assert.NoError(t, err)
	b, err := LookupRate("anthropic", "Claude Sonnet 4")
	assert.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEstimateCostFor(t *testing.T) {
	cost, err := EstimateCostFor("openai", "gpt-4o-mini", 1_000_000, 1_000_000)
	assert.NoError(t, err)
	assert.InDelta(t, 0.75, cost, 1e-9)
}
