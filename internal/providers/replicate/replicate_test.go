package replicate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edison-llm/edison/pkg/model"
	"github.com/edison-llm/edison/pkg/registry"
)

func TestNew_RequiresModel(t *testing.T) {
	_, err := New(registry.Config{"api_key": "r8_test"})
	assert.Error(t, err)
}

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Setenv("REPLICATE_API_TOKEN", "")
	_, err := New(registry.Config{"model": "meta/meta-llama-3-8b-instruct"})
	assert.Error(t, err)
}

func TestExtractText(t *testing.T) {
	assert.Equal(t, "plain", extractText("plain"))
	assert.Equal(t, "ab", extractText([]string{"a", "b"}))
	assert.Equal(t, "xy", extractText([]any{"x", 42, "y"}))
}

func TestLastUserContent(t *testing.T) {
	messages := []model.Message{
		{Role: model.RoleSystem, Content: "sys"},
		{Role: model.RoleUser, Content: "first"},
		{Role: model.RoleUser, Content: "second"},
	}
	assert.Equal(t, "second", lastUserContent(messages))
	assert.Equal(t, "", lastUserContent(nil))
}

func TestSystemContent(t *testing.T) {
	messages := []model.Message{
		{Role: model.RoleSystem, Content: "sys"},
		{Role: model.RoleUser, Content: "u"},
	}
	assert.Equal(t, "sys", systemContent(messages))
}
