package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edison-llm/edison/pkg/model"
	"github.com/edison-llm/edison/pkg/registry"
)

func TestNew_RequiresModel(t *testing.T) {
	_, err := New(registry.Config{"api_key": "sk-test"})
	assert.Error(t, err)
}

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := New(registry.Config{"model": "gpt-4o"})
	assert.Error(t, err)
}

func TestNew_PicksChatVsCompletionDispatch(t *testing.T) {
	g, err := New(registry.Config{"model": "gpt-4o", "api_key": "sk-test"})
	require.NoError(t, err)
	oa := g.(*OpenAI)
	assert.True(t, oa.isChat)

	g2, err := New(registry.Config{"model": "gpt-3.5-turbo-instruct", "api_key": "sk-test"})
	require.NoError(t, err)
	oa2 := g2.(*OpenAI)
	assert.False(t, oa2.isChat)
}

func TestLastUserContent(t *testing.T) {
	messages := []model.Message{
		{Role: model.RoleSystem, Content: "sys"},
		{Role: model.RoleUser, Content: "first"},
		{Role: model.RoleAssistant, Content: "reply"},
		{Role: model.RoleUser, Content: "second"},
	}
	assert.Equal(t, "second", lastUserContent(messages))
}

func TestMapFinishReason(t *testing.T) {
	assert.Equal(t, model.FinishLength, mapFinishReason("length"))
	assert.Equal(t, model.FinishContentFilter, mapFinishReason("content_filter"))
	assert.Equal(t, model.FinishToolCalls, mapFinishReason("tool_calls"))
	assert.Equal(t, model.FinishStop, mapFinishReason("stop"))
}
