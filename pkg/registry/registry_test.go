package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edison-llm/edison/pkg/edisonerr"
	"github.com/edison-llm/edison/pkg/registry"
)

// echoAdapter is a minimal stand-in for a provider adapter.
type echoAdapter struct {
	model string
}

func newEchoAdapter(cfg registry.Config) (*echoAdapter, error) {
	model, err := registry.RequireString(cfg, "model")
	if err != nil {
		return nil, err
	}
	return &echoAdapter{model: model}, nil
}

func TestRegistry_RegisterAndCreate(t *testing.T) {
	r := registry.New[*echoAdapter]("providers")
	r.Register("echo.Echo", newEchoAdapter)

	adapter, err := r.Create("echo.Echo", registry.Config{"model": "m1"})
	require.NoError(t, err)
	assert.Equal(t, "m1", adapter.model)
}

func TestRegistry_CreateUnknownIsNotFound(t *testing.T) {
	r := registry.New[*echoAdapter]("providers")

	_, err := r.Create("cohere.Cohere", registry.Config{})
	require.Error(t, err)
	assert.True(t, edisonerr.Is(err, edisonerr.NotFound))
	assert.ErrorIs(t, err, registry.ErrNotRegistered)
	assert.Contains(t, err.Error(), "providers")
}

func TestRegistry_FactoryErrorPropagates(t *testing.T) {
	r := registry.New[*echoAdapter]("providers")
	r.Register("echo.Echo", newEchoAdapter)

	_, err := r.Create("echo.Echo", registry.Config{}) // no model
	assert.True(t, edisonerr.Is(err, edisonerr.Validation))
}

func TestRegistry_LastRegistrationWins(t *testing.T) {
	r := registry.New[*echoAdapter]("providers")
	r.Register("echo.Echo", newEchoAdapter)
	r.Register("echo.Echo", func(registry.Config) (*echoAdapter, error) {
		return &echoAdapter{model: "shadowed"}, nil
	})

	adapter, err := r.Create("echo.Echo", registry.Config{})
	require.NoError(t, err)
	assert.Equal(t, "shadowed", adapter.model)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_ListSortedAndHas(t *testing.T) {
	r := registry.New[*echoAdapter]("providers")
	r.Register("openai.OpenAI", newEchoAdapter)
	r.Register("anthropic.Anthropic", newEchoAdapter)
	r.Register("bedrock.Bedrock", newEchoAdapter)

	assert.Equal(t, []string{"anthropic.Anthropic", "bedrock.Bedrock", "openai.OpenAI"}, r.List())
	assert.True(t, r.Has("bedrock.Bedrock"))
	assert.False(t, r.Has("replicate.Replicate"))
	assert.Equal(t, "providers", r.Name())
}
