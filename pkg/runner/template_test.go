package runner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edison-llm/edison/pkg/edisonerr"
	"github.com/edison-llm/edison/pkg/runner"
)

func TestRenderPrompt(t *testing.T) {
	out, err := runner.RenderPrompt("Echo: {{x}} and {{ y }}", map[string]string{"x": "one", "y": "two"})
	require.NoError(t, err)
	assert.Equal(t, "Echo: one and two", out)
}

func TestRenderPrompt_RepeatedVariable(t *testing.T) {
	out, err := runner.RenderPrompt("{{x}} {{x}}", map[string]string{"x": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi hi", out)
}

func TestRenderPrompt_MissingVariable(t *testing.T) {
	_, err := runner.RenderPrompt("Echo: {{x}} {{missing}}", map[string]string{"x": "one"})
	require.Error(t, err)
	assert.True(t, edisonerr.Is(err, edisonerr.Validation))
	assert.Contains(t, err.Error(), "missing")
}

func TestTemplateVars(t *testing.T) {
	vars := runner.TemplateVars("{{a}} {{b}} {{a}} plain {{c.d}}")
	assert.Equal(t, []string{"a", "b", "c.d"}, vars)
	assert.Empty(t, runner.TemplateVars("no variables"))
}
