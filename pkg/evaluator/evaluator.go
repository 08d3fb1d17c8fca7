// Package evaluator runs judges (pointwise and pairwise) against model
// outputs, parses their strict JSON wire contracts, and produces
// Judgment records. Parse failures get one reformulation retry; a
// second failure yields an INVALID Judgment that aggregation excludes,
// never a silently defaulted score.
package evaluator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/edison-llm/edison/pkg/edisonerr"
	"github.com/edison-llm/edison/pkg/model"
	"github.com/edison-llm/edison/pkg/providers"
)

// fixedTemperature and fixedSeed reduce judge variance across runs.
const (
	fixedTemperature = 0.3
	fixedSeed        = 42
)

// Evaluator scores outputs against an experiment's rubric using one or
// more judge models.
type Evaluator struct {
	objective string
	rubric    model.Rubric
}

// New creates an Evaluator bound to one experiment's objective and rubric.
func New(objective string, rubric model.Rubric) *Evaluator {
	return &Evaluator{objective: objective, rubric: rubric}
}

var seed64 = func(v int64) *int64 { return &v }(fixedSeed)

func (e *Evaluator) chatOpts() providers.ChatOptions {
	return providers.ChatOptions{
		Temperature:    fixedTemperature,
		Seed:           seed64,
		MaxTokens:      1024,
		ResponseFormat: "json",
		AllowCache:     true,
	}
}

// RunPointwise scores one output with one judge. A JSON parse failure
// triggers a single reformulation retry; a second failure returns a
// Judgment with Status INVALID rather than a silent default.
func (e *Evaluator) RunPointwise(
	ctx context.Context,
	judgeConfig model.JudgeConfig,
	provider providers.Provider,
	input map[string]string,
	output model.Output,
) (*model.Judgment, error) {
	prompt := PointwisePrompt(e.objective, e.rubric, input, output.Text)

	payload, invalidReason := e.callPointwiseWithRetry(ctx, provider, prompt)
	if payload == nil {
		return &model.Judgment{
			ID:            uuid.NewString(),
			JudgeConfigID: judgeConfig.ID,
			Mode:          model.JudgeModePointwise,
			Status:        model.JudgmentInvalid,
			OutputID:      output.ID,
			Rationales:    map[string]string{"_error": invalidReason},
			CreatedAt:     time.Now(),
		}, nil
	}

	return &model.Judgment{
		ID:            uuid.NewString(),
		JudgeConfigID: judgeConfig.ID,
		Mode:          model.JudgeModePointwise,
		Status:        model.JudgmentValid,
		OutputID:      output.ID,
		Scores:        payload.Scores,
		Rationales:    payload.Rationales,
		Safety: model.SafetyFlags{
			PolicyViolation:  payload.SafetyFlags.PolicyViolation,
			PIIDetected:      payload.SafetyFlags.PIIDetected,
			ToxicContent:     payload.SafetyFlags.ToxicContent,
			JailbreakAttempt: payload.SafetyFlags.JailbreakAttempt,
		},
		CreatedAt: time.Now(),
	}, nil
}

func (e *Evaluator) callPointwiseWithRetry(ctx context.Context, provider providers.Provider, prompt string) (*pointwisePayload, string) {
	messages := []model.Message{{Role: model.RoleUser, Content: prompt}}
	resp, err := provider.Chat(ctx, messages, e.chatOpts())
	if err == nil {
		if payload, perr := parsePointwise(resp.Text); perr == nil {
			return payload, ""
		}
	}

	retryMessages := []model.Message{{Role: model.RoleUser, Content: prompt + reformulationSuffix}}
	resp2, err2 := provider.Chat(ctx, retryMessages, e.chatOpts())
	if err2 != nil {
		return nil, err2.Error()
	}
	payload, perr := parsePointwise(resp2.Text)
	if perr != nil {
		return nil, perr.Error()
	}
	return payload, ""
}

// RunPairwise compares two outputs on the same case, issuing two calls
// with swapped order to control position bias. A disagreement between
// the two calls on a non-tie outcome is recorded as a tie.
func (e *Evaluator) RunPairwise(
	ctx context.Context,
	judgeConfig model.JudgeConfig,
	provider providers.Provider,
	input map[string]string,
	outputA, outputB model.Output,
) (*model.Judgment, error) {
	promptAB := PairwisePrompt(e.objective, e.rubric, input, outputA.Text, outputB.Text)
	promptBA := PairwisePrompt(e.objective, e.rubric, input, outputB.Text, outputA.Text)

	resultAB, errAB := e.callPairwise(ctx, provider, promptAB)
	resultBA, errBA := e.callPairwise(ctx, provider, promptBA)

	if errAB != nil || errBA != nil {
		reason := ""
		if errAB != nil {
			reason = errAB.Error()
		} else {
			reason = errBA.Error()
		}
		return &model.Judgment{
			ID:            uuid.NewString(),
			JudgeConfigID: judgeConfig.ID,
			Mode:          model.JudgeModePairwise,
			Status:        model.JudgmentInvalid,
			OutputIDA:     outputA.ID,
			OutputIDB:     outputB.ID,
			Rationales:    map[string]string{"_error": reason},
			CreatedAt:     time.Now(),
		}, nil
	}

	// resultBA's winner is in the swapped frame; flip it back to the
	// original A/B frame before comparing.
	swappedWinner := flipWinner(resultBA.Winner)

	winner := model.PairwiseWinner(resultAB.Winner)
	if resultAB.Winner != "tie" && swappedWinner != resultAB.Winner {
		winner = model.WinnerTie
	}

	return &model.Judgment{
		ID:            uuid.NewString(),
		JudgeConfigID: judgeConfig.ID,
		Mode:          model.JudgeModePairwise,
		Status:        model.JudgmentValid,
		OutputIDA:     outputA.ID,
		OutputIDB:     outputB.ID,
		Winner:        winner,
		ScoresA:       resultAB.Scores["A"],
		ScoresB:       resultAB.Scores["B"],
		Rationales:    map[string]string{"reasons": joinReasons(resultAB.Reasons)},
		CreatedAt:     time.Now(),
	}, nil
}

func (e *Evaluator) callPairwise(ctx context.Context, provider providers.Provider, prompt string) (*pairwisePayload, error) {
	messages := []model.Message{{Role: model.RoleUser, Content: prompt}}
	resp, err := provider.Chat(ctx, messages, e.chatOpts())
	if err != nil {
		return nil, err
	}
	payload, perr := parsePairwise(resp.Text)
	if perr != nil {
		retryMessages := []model.Message{{Role: model.RoleUser, Content: prompt + reformulationSuffix}}
		resp2, err2 := provider.Chat(ctx, retryMessages, e.chatOpts())
		if err2 != nil {
			return nil, err2
		}
		return parsePairwise(resp2.Text)
	}
	return payload, nil
}

func flipWinner(w string) string {
	switch w {
	case "A":
		return "B"
	case "B":
		return "A"
	default:
		return "tie"
	}
}

func joinReasons(reasons []string) string {
	out := ""
	for i, r := range reasons {
		if i > 0 {
			out += "; "
		}
		out += r
	}
	return out
}

// PointwiseTask is one (output, judgeConfig) unit of work for EvaluateAll.
type PointwiseTask struct {
	JudgeConfig model.JudgeConfig
	Provider    providers.Provider
	Input       map[string]string
	Output      model.Output
}

// EvaluateAll fans pointwise judge calls out across goroutines bounded by
// concurrency, collecting Judgments in task order. Pointwise and pairwise
// phases may run concurrently; callers start both and await both before
// aggregation.
func EvaluateAll(ctx context.Context, e *Evaluator, tasks []PointwiseTask, concurrency int) ([]*model.Judgment, error) {
	if concurrency <= 0 {
		concurrency = 5
	}
	results := make([]*model.Judgment, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			j, err := e.RunPointwise(gctx, task.JudgeConfig, task.Provider, task.Input, task.Output)
			if err != nil {
				return edisonerr.Wrap(edisonerr.Internal, "evaluator", "pointwise judge call failed", err)
			}
			results[i] = j
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
