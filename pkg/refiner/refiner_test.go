package refiner_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edison-llm/edison/pkg/model"
	"github.com/edison-llm/edison/pkg/providers"
	"github.com/edison-llm/edison/pkg/refiner"
)

type fakeProvider struct {
	reply string
	err   error
}

func (f *fakeProvider) Chat(ctx context.Context, messages []model.Message, opts providers.ChatOptions) (*providers.ChatResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &providers.ChatResponse{Text: f.reply}, nil
}
func (f *fakeProvider) StreamChat(ctx context.Context, messages []model.Message, opts providers.ChatOptions) (<-chan providers.StreamChunk, error) {
	return nil, nil
}
func (f *fakeProvider) EstimateCost(promptTokens, completionTokens int64) (float64, error) {
	return 0, nil
}
func (f *fakeProvider) ValidateModel(ctx context.Context) error { return nil }
func (f *fakeProvider) Name() string                            { return "fake" }
func (f *fakeProvider) Description() string                     { return "fake" }

func TestWeakestCriteria_PicksTwoLowest(t *testing.T) {
	scored := []refiner.ScoredCriterion{
		{Name: "tone", MeanScore: 4.5},
		{Name: "accuracy", MeanScore: 2.0},
		{Name: "clarity", MeanScore: 3.0},
	}
	names := refiner.WeakestCriteria(scored)
	assert.Equal(t, []string{"accuracy", "clarity"}, names)
}

func TestSampleFailingExemplars_BottomQuantile(t *testing.T) {
	var scored []refiner.ScoredExemplar
	for i := 0; i < 10; i++ {
		scored = append(scored, refiner.ScoredExemplar{
			Exemplar:          refiner.Exemplar{OutputID: string(rune('a' + i))},
			WeakCriteriaScore: float64(i),
		})
	}
	exemplars := refiner.SampleFailingExemplars(scored, 0.20, 0)
	require.Len(t, exemplars, 2)
	assert.Equal(t, "a", exemplars[0].OutputID)
	assert.Equal(t, "b", exemplars[1].OutputID)
}

func TestParseResponse_ExtractsDiffAndNote(t *testing.T) {
	reply := "<diff>\n--- a\n+++ b\n@@ -1,1 +1,1 @@\n-old\n+new\n</diff>\n<note>\nSwapped wording for clarity.\n</note>"
	diffText, note, err := refiner.ParseResponse(reply)
	require.NoError(t, err)
	assert.Contains(t, diffText, "@@ -1,1 +1,1 @@")
	assert.Equal(t, "Swapped wording for clarity.", note)
}

func TestParseResponse_MissingTagsFails(t *testing.T) {
	_, _, err := refiner.ParseResponse("no tags here")
	assert.Error(t, err)
}

func TestValidate_AppliesCleanSmallDiff(t *testing.T) {
	current := "Echo: {{x}}\nBe concise."
	diff := "--- a\n+++ b\n@@ -1,2 +1,2 @@\n Echo: {{x}}\n-Be concise.\n+Be concise and polite."
	newBody, err := refiner.Validate(current, diff)
	require.NoError(t, err)
	assert.Equal(t, "Echo: {{x}}\nBe concise and polite.", newBody)
}

func TestValidate_RejectsTemplateVariableLoss(t *testing.T) {
	current := "Echo: {{x}}"
	diff := "--- a\n+++ b\n@@ -1,1 +1,1 @@\n-Echo: {{x}}\n+Echo:"
	_, err := refiner.Validate(current, diff)
	assert.Error(t, err)
}

func TestValidate_RejectsExcessiveLengthChange(t *testing.T) {
	current := "short prompt"
	diff := "--- a\n+++ b\n@@ -1,1 +1,1 @@\n-short prompt\n+this is a much, much longer replacement prompt that changes the length drastically beyond bounds"
	_, err := refiner.Validate(current, diff)
	assert.Error(t, err)
}

func TestValidate_RejectsLongDeletionRun(t *testing.T) {
	current := "l1\nl2\nl3\nl4\nl5\nl6\nl7"
	diff := "--- a\n+++ b\n@@ -1,7 +1,1 @@\n-l1\n-l2\n-l3\n-l4\n-l5\n-l6\n-l7\n+replacement"
	_, err := refiner.Validate(current, diff)
	assert.Error(t, err)
}

func TestValidate_RejectsMalformedDiff(t *testing.T) {
	_, err := refiner.Validate("body", "not a diff at all")
	assert.Error(t, err)
}

func TestPropose_Success(t *testing.T) {
	r := refiner.New("be helpful", model.Rubric{Criteria: []model.Criterion{
		{Name: "accuracy", Weight: 1.0, ScaleMin: 0, ScaleMax: 5},
	}})
	fp := &fakeProvider{reply: "<diff>\n--- a\n+++ b\n@@ -1,1 +1,1 @@\n-Echo the input back exactly: {{x}}\n+Echo the input back verbatim: {{x}}\n</diff>\n<note>\nClarified instruction.\n</note>"}

	suggestion, err := r.Propose(context.Background(), fp, "Echo the input back exactly: {{x}}", []string{"accuracy"}, nil, "pv-1")
	require.NoError(t, err)
	assert.Equal(t, model.SuggestionPending, suggestion.Status)
	assert.Equal(t, "pv-1", suggestion.ParentPromptVersionID)
	assert.Contains(t, suggestion.Note, "Clarified")
}

func TestPropose_InvalidDiffYieldsInvalidSuggestion(t *testing.T) {
	r := refiner.New("be helpful", model.Rubric{})
	fp := &fakeProvider{reply: "<diff>\nnot a real diff\n</diff>\n<note>\nbad\n</note>"}

	suggestion, err := r.Propose(context.Background(), fp, "Echo: {{x}}", nil, nil, "pv-1")
	require.NoError(t, err)
	assert.Equal(t, model.SuggestionInvalid, suggestion.Status)
	assert.NotEmpty(t, suggestion.InvalidReason)
}

func TestPropose_ProviderErrorYieldsInvalidSuggestion(t *testing.T) {
	r := refiner.New("be helpful", model.Rubric{})
	fp := &fakeProvider{err: assertError{}}

	suggestion, err := r.Propose(context.Background(), fp, "Echo: {{x}}", nil, nil, "pv-1")
	require.NoError(t, err)
	assert.Equal(t, model.SuggestionInvalid, suggestion.Status)
}

type assertError struct{}

func (assertError) Error() string { return "provider unavailable" }
