package mock

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edison-llm/edison/pkg/model"
	"github.com/edison-llm/edison/pkg/providers"
	"github.com/edison-llm/edison/pkg/registry"
)

func TestChat_FixedReply(t *testing.T) {
	g, err := New(registry.Config{"reply": "always this"})
	require.NoError(t, err)

	resp, err := g.Chat(t.Context(), []model.Message{{Role: model.RoleUser, Content: "anything"}}, providers.ChatOptions{})
	require.NoError(t, err)
	assert.Equal(t, "always this", resp.Text)
	assert.Equal(t, model.FinishStop, resp.FinishReason)
}

func TestChat_EchoesLastUserMessage(t *testing.T) {
	g, err := New(registry.Config{})
	require.NoError(t, err)

	resp, err := g.Chat(t.Context(), []model.Message{
		{Role: model.RoleSystem, Content: "sys"},
		{Role: model.RoleUser, Content: "hello"},
	}, providers.ChatOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
}

func TestChat_ScriptedPlayback(t *testing.T) {
	boom := errors.New("boom")
	m := NewScripted("m1",
		Script{Text: "first"},
		Script{Err: boom},
	)

	resp, err := m.Chat(t.Context(), nil, providers.ChatOptions{})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Text)

	_, err = m.Chat(t.Context(), nil, providers.ChatOptions{})
	assert.ErrorIs(t, err, boom)

	// Script exhausted: falls back to echo.
	resp, err = m.Chat(t.Context(), []model.Message{{Role: model.RoleUser, Content: "tail"}}, providers.ChatOptions{})
	require.NoError(t, err)
	assert.Equal(t, "tail", resp.Text)
	assert.Equal(t, 3, m.Calls())
}

func TestEstimateCost_MockIsFree(t *testing.T) {
	g, err := New(registry.Config{"model": "m1"})
	require.NoError(t, err)
	cost, err := g.EstimateCost(1_000_000, 1_000_000)
	require.NoError(t, err)
	assert.Zero(t, cost)
}
