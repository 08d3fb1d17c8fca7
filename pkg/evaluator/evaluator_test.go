package evaluator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edison-llm/edison/pkg/evaluator"
	"github.com/edison-llm/edison/pkg/model"
	"github.com/edison-llm/edison/pkg/providers"
)

// fakeProvider implements providers.Provider, returning scripted replies
// in order for successive Chat calls.
type fakeProvider struct {
	replies []string
	calls   int
}

func (f *fakeProvider) Chat(ctx context.Context, messages []model.Message, opts providers.ChatOptions) (*providers.ChatResponse, error) {
	if f.calls >= len(f.replies) {
		return &providers.ChatResponse{Text: f.replies[len(f.replies)-1]}, nil
	}
	text := f.replies[f.calls]
	f.calls++
	return &providers.ChatResponse{Text: text}, nil
}

func (f *fakeProvider) StreamChat(ctx context.Context, messages []model.Message, opts providers.ChatOptions) (<-chan providers.StreamChunk, error) {
	return nil, nil
}
func (f *fakeProvider) EstimateCost(promptTokens, completionTokens int64) (float64, error) {
	return 0, nil
}
func (f *fakeProvider) ValidateModel(ctx context.Context) error { return nil }
func (f *fakeProvider) Name() string                            { return "fake" }
func (f *fakeProvider) Description() string                     { return "fake provider for tests" }

func testRubric() model.Rubric {
	return model.Rubric{Criteria: []model.Criterion{
		{Name: "correctness", Weight: 0.6, ScaleMin: 1, ScaleMax: 5, Description: "is it correct"},
		{Name: "clarity", Weight: 0.4, ScaleMin: 1, ScaleMax: 5, Description: "is it clear"},
	}}
}

func TestRunPointwise_Success(t *testing.T) {
	e := evaluator.New("answer questions accurately", testRubric())
	fp := &fakeProvider{replies: []string{
		`{"scores": {"correctness": 4, "clarity": 5}, "rationales": {"correctness": "ok", "clarity": "clear"}, "safetyFlags": {"policyViolation": false, "piiDetected": false, "toxicContent": false, "jailbreakAttempt": false}}`,
	}}
	jc := model.JudgeConfig{ID: "judge-1", Mode: model.JudgeModePointwise}
	output := model.Output{ID: "out-1", Text: "Paris is the capital of France."}

	j, err := e.RunPointwise(context.Background(), jc, fp, map[string]string{"question": "capital of france"}, output)
	require.NoError(t, err)
	assert.Equal(t, model.JudgmentValid, j.Status)
	assert.Equal(t, 4, j.Scores["correctness"])
	assert.Equal(t, 5, j.Scores["clarity"])
	assert.Equal(t, "out-1", j.OutputID)
	assert.False(t, j.Safety.Blocked())
}

func TestRunPointwise_ReformulatesOnceThenSucceeds(t *testing.T) {
	e := evaluator.New("answer questions accurately", testRubric())
	fp := &fakeProvider{replies: []string{
		"not json at all",
		"```json\n" + `{"scores": {"correctness": 3, "clarity": 3}, "rationales": {}, "safetyFlags": {}}` + "\n```",
	}}
	jc := model.JudgeConfig{ID: "judge-1", Mode: model.JudgeModePointwise}
	output := model.Output{ID: "out-1", Text: "some answer"}

	j, err := e.RunPointwise(context.Background(), jc, fp, map[string]string{}, output)
	require.NoError(t, err)
	assert.Equal(t, model.JudgmentValid, j.Status)
	assert.Equal(t, 3, j.Scores["correctness"])
	assert.Equal(t, 2, fp.calls)
}

func TestRunPointwise_DoubleFailureYieldsInvalid(t *testing.T) {
	e := evaluator.New("answer questions accurately", testRubric())
	fp := &fakeProvider{replies: []string{"garbage", "still garbage"}}
	jc := model.JudgeConfig{ID: "judge-1", Mode: model.JudgeModePointwise}
	output := model.Output{ID: "out-1", Text: "some answer"}

	j, err := e.RunPointwise(context.Background(), jc, fp, map[string]string{}, output)
	require.NoError(t, err)
	assert.Equal(t, model.JudgmentInvalid, j.Status)
	assert.NotEmpty(t, j.Rationales["_error"])
}

func TestRunPairwise_SwappedOrderAgreement(t *testing.T) {
	e := evaluator.New("pick the better answer", testRubric())
	// First call (A=outputA, B=outputB): A wins.
	// Second call (A=outputB, B=outputA, swapped): B wins -> flips back to A -> agreement.
	fp := &fakeProvider{replies: []string{
		`{"winner": "A", "reasons": ["more accurate"], "scores": {"A": {"correctness": 5}, "B": {"correctness": 2}}}`,
		`{"winner": "B", "reasons": ["more accurate"], "scores": {"A": {"correctness": 2}, "B": {"correctness": 5}}}`,
	}}
	jc := model.JudgeConfig{ID: "judge-1", Mode: model.JudgeModePairwise}
	outA := model.Output{ID: "out-a", Text: "answer A"}
	outB := model.Output{ID: "out-b", Text: "answer B"}

	j, err := e.RunPairwise(context.Background(), jc, fp, map[string]string{}, outA, outB)
	require.NoError(t, err)
	assert.Equal(t, model.JudgmentValid, j.Status)
	assert.Equal(t, model.WinnerA, j.Winner)
}

func TestRunPairwise_SwappedOrderDisagreementYieldsTie(t *testing.T) {
	e := evaluator.New("pick the better answer", testRubric())
	// Both calls say "A" wins in their own frame -- which, after flipping
	// the swapped call back, means the two calls disagree (A vs B).
	fp := &fakeProvider{replies: []string{
		`{"winner": "A", "reasons": ["r1"], "scores": {"A": {"correctness": 4}, "B": {"correctness": 3}}}`,
		`{"winner": "A", "reasons": ["r2"], "scores": {"A": {"correctness": 4}, "B": {"correctness": 3}}}`,
	}}
	jc := model.JudgeConfig{ID: "judge-1", Mode: model.JudgeModePairwise}
	outA := model.Output{ID: "out-a", Text: "answer A"}
	outB := model.Output{ID: "out-b", Text: "answer B"}

	j, err := e.RunPairwise(context.Background(), jc, fp, map[string]string{}, outA, outB)
	require.NoError(t, err)
	assert.Equal(t, model.JudgmentValid, j.Status)
	assert.Equal(t, model.WinnerTie, j.Winner)
}

func TestEvaluateAll_FansOutConcurrently(t *testing.T) {
	e := evaluator.New("answer questions accurately", testRubric())
	reply := `{"scores": {"correctness": 4, "clarity": 4}, "rationales": {}, "safetyFlags": {}}`

	tasks := make([]evaluator.PointwiseTask, 0, 10)
	for i := 0; i < 10; i++ {
		tasks = append(tasks, evaluator.PointwiseTask{
			JudgeConfig: model.JudgeConfig{ID: "judge-1"},
			Provider:    &fakeProvider{replies: []string{reply}},
			Input:       map[string]string{},
			Output:      model.Output{ID: "out", Text: "x"},
		})
	}

	results, err := evaluator.EvaluateAll(context.Background(), e, tasks, 4)
	require.NoError(t, err)
	require.Len(t, results, 10)
	for _, r := range results {
		assert.Equal(t, model.JudgmentValid, r.Status)
	}
}
