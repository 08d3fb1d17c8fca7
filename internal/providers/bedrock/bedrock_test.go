package bedrock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edison-llm/edison/pkg/model"
	"github.com/edison-llm/edison/pkg/providers"
)

func TestBuildClaudeRequest_SystemRidesOwnField(t *testing.T) {
	body, err := buildClaudeRequest([]model.Message{
		{Role: model.RoleSystem, Content: "be terse"},
		{Role: model.RoleUser, Content: "hi"},
	}, providers.ChatOptions{MaxTokens: 64, Temperature: 0.5})
	require.NoError(t, err)

	s := string(body)
	assert.Contains(t, s, `"system":"be terse"`)
	assert.Contains(t, s, `"anthropic_version":"bedrock-2023-05-31"`)
	assert.NotContains(t, s, `"role":"system"`)
}

func TestParseClaudeResponse(t *testing.T) {
	body := []byte(`{"content":[{"type":"text","text":"hello "},{"type":"text","text":"world"}],"stop_reason":"max_tokens","usage":{"input_tokens":9,"output_tokens":4}}`)
	text, finish, in, out, err := parseClaudeResponse(body)
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
	assert.Equal(t, model.FinishLength, finish)
	assert.Equal(t, int64(9), in)
	assert.Equal(t, int64(4), out)
}

func TestParseTitanResponse(t *testing.T) {
	body := []byte(`{"inputTextTokenCount":7,"results":[{"tokenCount":3,"outputText":"ok","completionReason":"FINISH"}]}`)
	text, finish, in, out, err := parseTitanResponse(body)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, model.FinishStop, finish)
	assert.Equal(t, int64(7), in)
	assert.Equal(t, int64(3), out)

	_, _, _, _, err = parseTitanResponse([]byte(`{"results":[]}`))
	assert.Error(t, err)
}

func TestParseLlamaResponse(t *testing.T) {
	body := []byte(`{"generation":"done","prompt_token_count":5,"generation_token_count":2,"stop_reason":"length"}`)
	text, finish, in, out, err := parseLlamaResponse(body)
	require.NoError(t, err)
	assert.Equal(t, "done", text)
	assert.Equal(t, model.FinishLength, finish)
	assert.Equal(t, int64(5), in)
	assert.Equal(t, int64(2), out)
}

func TestFlattenMessages(t *testing.T) {
	prompt := flattenMessages([]model.Message{
		{Role: model.RoleSystem, Content: "sys"},
		{Role: model.RoleUser, Content: "q"},
		{Role: model.RoleAssistant, Content: "a"},
		{Role: model.RoleUser, Content: "q2"},
	})
	assert.Contains(t, prompt, "sys\n\n")
	assert.Contains(t, prompt, "User: q\n")
	assert.Contains(t, prompt, "Assistant: a\n")
	assert.True(t, len(prompt) > 0 && prompt[len(prompt)-len("Assistant:"):] == "Assistant:")
}
