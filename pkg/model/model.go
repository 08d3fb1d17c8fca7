// Package model defines Edison's core domain entities: experiments,
// rubrics, prompt versions, datasets, iterations, and the records an
// iteration produces. These types are persisted by pkg/store and passed
// between pkg/orchestrator, pkg/evaluator, pkg/aggregator, and pkg/refiner.
package model

import "time"

// Role identifies who sent a message in a provider conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single turn sent to or received from a provider.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Criterion is one weighted, scaled dimension of a Rubric.
type Criterion struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
	ScaleMin    int     `json:"scaleMin"`
	ScaleMax    int     `json:"scaleMax"`
}

// Rubric is an ordered list of 2-10 criteria whose weights sum to ~1.0.
type Rubric struct {
	Criteria []Criterion `json:"criteria"`
}

// StopRules configures when the Budget & Stop-Rule Engine halts iteration.
type StopRules struct {
	MaxIterations        int     `json:"maxIterations"`
	MinDeltaThreshold    float64 `json:"minDeltaThreshold"`
	ConvergenceWindow    int     `json:"convergenceWindow"`
	MaxBudgetUSD         float64 `json:"maxBudgetUsd"`
	BudgetAlertThreshold float64 `json:"budgetAlertThreshold"`
	StopIfNoRefinement   bool    `json:"stopIfNoRefinement"`
}

// SafetyConfig controls the Safety Scanner's behavior for an experiment.
type SafetyConfig struct {
	BlockViolations       bool     `json:"blockViolations"`
	ProviderModeration    bool     `json:"providerModeration"`
	JailbreakPatterns     []string `json:"jailbreakPatterns,omitempty"`
	ToxicityServiceEnable bool     `json:"toxicityServiceEnable"`
}

// Experiment is the top-level configuration container for a prompt
// improvement run. It is mutable only while no Iteration is active.
type Experiment struct {
	ID          string       `json:"id"`
	ProjectID   string       `json:"projectId"`
	Objective   string       `json:"objective"`
	Rubric      Rubric       `json:"rubric"`
	StopRules   StopRules    `json:"stopRules"`
	Safety      SafetyConfig `json:"safety"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// PromptVersion is an immutable node in a per-experiment, parent-linked DAG.
type PromptVersion struct {
	ID             string    `json:"id"`
	ExperimentID   string    `json:"experimentId"`
	Version        int       `json:"version"`
	ParentID       string    `json:"parentId,omitempty"`
	Body           string    `json:"body"`
	SystemPreamble string    `json:"systemPreamble,omitempty"`
	FewShot        []Message `json:"fewShot,omitempty"`
	ToolSchema     string    `json:"toolSchema,omitempty"`
	Changelog      string    `json:"changelog,omitempty"`
	Creator        string    `json:"creator"` // "human" or "refiner"
	IsProduction   bool      `json:"isProduction"`
	CreatedAt      time.Time `json:"createdAt"`
}

// DatasetKind classifies how a Dataset's cases were produced.
type DatasetKind string

const (
	DatasetGolden     DatasetKind = "golden"
	DatasetSynthetic  DatasetKind = "synthetic"
	DatasetAdversarial DatasetKind = "adversarial"
)

// Case is one test case belonging to a Dataset.
type Case struct {
	ID             string            `json:"id"`
	DatasetID      string            `json:"datasetId"`
	Input          map[string]string `json:"input"`
	ExpectedOutput string            `json:"expectedOutput,omitempty"`
	Tags           []string          `json:"tags,omitempty"`
	Difficulty     int               `json:"difficulty"`
}

// Dataset is an ordered set of Cases belonging to a project.
type Dataset struct {
	ID        string      `json:"id"`
	ProjectID string      `json:"projectId"`
	Kind      DatasetKind `json:"kind"`
	Cases     []Case      `json:"cases"`
}

// ModelParams carries the sampling parameters sent with a chat call.
type ModelParams struct {
	Temperature      float64  `json:"temperature"`
	MaxTokens        int      `json:"maxTokens"`
	TopP             float64  `json:"topP,omitempty"`
	FrequencyPenalty float64  `json:"frequencyPenalty,omitempty"`
	PresencePenalty  float64  `json:"presencePenalty,omitempty"`
	StopSequences    []string `json:"stopSequences,omitempty"`
	Seed             *int64   `json:"seed,omitempty"`
}

// ModelConfig names one candidate provider+model under test.
type ModelConfig struct {
	ID           string      `json:"id"`
	ExperimentID string      `json:"experimentId"`
	Provider     string      `json:"provider"`
	Model        string      `json:"model"`
	Params       ModelParams `json:"params"`
	Active       bool        `json:"active"`
}

// JudgeMode distinguishes pointwise from pairwise evaluation.
type JudgeMode string

const (
	JudgeModePointwise JudgeMode = "pointwise"
	JudgeModePairwise  JudgeMode = "pairwise"
)

// JudgeConfig names one judge model used by the Evaluator.
type JudgeConfig struct {
	ID           string    `json:"id"`
	ExperimentID string    `json:"experimentId"`
	Mode         JudgeMode `json:"mode"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Active       bool      `json:"active"`
}

// IterationStatus is one of the Orchestrator's state-machine states.
type IterationStatus string

const (
	IterationPending     IterationStatus = "PENDING"
	IterationExecuting   IterationStatus = "EXECUTING"
	IterationJudging     IterationStatus = "JUDGING"
	IterationAggregating IterationStatus = "AGGREGATING"
	IterationRefining    IterationStatus = "REFINING"
	IterationReviewing   IterationStatus = "REVIEWING"
	IterationPaused      IterationStatus = "PAUSED"
	IterationCompleted   IterationStatus = "COMPLETED"
	IterationFailed      IterationStatus = "FAILED"
	IterationCancelled   IterationStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s IterationStatus) Terminal() bool {
	switch s {
	case IterationCompleted, IterationFailed, IterationCancelled:
		return true
	default:
		return false
	}
}

// Iteration is one execute/judge/aggregate/refine/review pass.
type Iteration struct {
	ID             string          `json:"id"`
	ExperimentID   string          `json:"experimentId"`
	Number         int             `json:"number"`
	PromptVersionID string         `json:"promptVersionId"`
	Status         IterationStatus `json:"status"`
	ScheduledAt    time.Time       `json:"scheduledAt"`
	StartedAt      *time.Time      `json:"startedAt,omitempty"`
	FinishedAt     *time.Time      `json:"finishedAt,omitempty"`
	StopReason     string          `json:"stopReason,omitempty"`
	Metrics        *IterationMetrics `json:"metrics,omitempty"`
}

// IterationMetrics is the final metrics blob recorded on an Iteration.
type IterationMetrics struct {
	CompositeByModel map[string]float64 `json:"compositeByModel"`
	GlobalComposite  float64            `json:"globalComposite"`
	CIByModel        map[string]CI      `json:"ciByModel"`
	GlobalCI         CI                 `json:"globalCi"`
	TotalCostUSD     float64            `json:"totalCostUsd"`
	TotalTokens      int64              `json:"totalTokens"`
}

// CI is a percentile confidence interval.
type CI struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// RunStatus is the lifecycle state of a ModelRun.
type RunStatus string

const (
	RunPending   RunStatus = "PENDING"
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

// ModelRun is one (iteration x active ModelConfig) execution.
type ModelRun struct {
	ID            string     `json:"id"`
	IterationID   string     `json:"iterationId"`
	ModelConfigID string     `json:"modelConfigId"`
	DatasetID     string     `json:"datasetId"`
	Status        RunStatus  `json:"status"`
	PromptTokens  int64      `json:"promptTokens"`
	CompletionTokens int64   `json:"completionTokens"`
	CostUSD       float64    `json:"costUsd"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	FinishedAt    *time.Time `json:"finishedAt,omitempty"`
}

// SafetyFlags is the fixed set of boolean checks the Safety Scanner attaches.
type SafetyFlags struct {
	PolicyViolation  bool `json:"policyViolation"`
	PIIDetected      bool `json:"piiDetected"`
	ToxicContent     bool `json:"toxicContent"`
	JailbreakAttempt bool `json:"jailbreakAttempt"`
}

// Blocked reports whether any flag is set.
func (f SafetyFlags) Blocked() bool {
	return f.PolicyViolation || f.PIIDetected || f.ToxicContent || f.JailbreakAttempt
}

// FinishReason mirrors a provider's completion-stop reason.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength         FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishToolCalls     FinishReason = "tool_calls"
)

// Output is one model response for one case within a ModelRun.
type Output struct {
	ID               string       `json:"id"`
	ModelRunID       string       `json:"modelRunId"`
	CaseID           string       `json:"caseId"`
	RenderedPrompt   string       `json:"renderedPrompt"`
	Text             string       `json:"text"`
	PromptTokens     int64        `json:"promptTokens"`
	CompletionTokens int64        `json:"completionTokens"`
	LatencyMS        int64        `json:"latencyMs"`
	FinishReason     FinishReason `json:"finishReason"`
	Safety           *SafetyFlags `json:"safety,omitempty"`
	Skipped          bool         `json:"skipped"`
	SkipReason       string       `json:"skipReason,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
}

// PairwiseWinner is the outcome of a pairwise comparison.
type PairwiseWinner string

const (
	WinnerA   PairwiseWinner = "A"
	WinnerB   PairwiseWinner = "B"
	WinnerTie PairwiseWinner = "tie"
)

// JudgmentStatus distinguishes a normally parsed judgment from one that
// failed parsing twice.
type JudgmentStatus string

const (
	JudgmentValid   JudgmentStatus = "VALID"
	JudgmentInvalid JudgmentStatus = "INVALID"
)

// Judgment is a judge's verdict on one output (pointwise) or one output
// pair (pairwise).
type Judgment struct {
	ID            string             `json:"id"`
	JudgeConfigID string             `json:"judgeConfigId"`
	Mode          JudgeMode          `json:"mode"`
	Status        JudgmentStatus     `json:"status"`

	// Pointwise fields.
	OutputID string             `json:"outputId,omitempty"`
	Scores   map[string]int     `json:"scores,omitempty"`

	// Pairwise fields.
	OutputIDA string         `json:"outputIdA,omitempty"`
	OutputIDB string         `json:"outputIdB,omitempty"`
	Winner    PairwiseWinner `json:"winner,omitempty"`
	ScoresA   map[string]int `json:"scoresA,omitempty"`
	ScoresB   map[string]int `json:"scoresB,omitempty"`

	Rationales map[string]string `json:"rationales,omitempty"`
	Safety     SafetyFlags       `json:"safety"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// SuggestionStatus is the lifecycle of a Refiner-produced Suggestion.
type SuggestionStatus string

const (
	SuggestionPending SuggestionStatus = "PENDING"
	SuggestionApplied SuggestionStatus = "APPLIED"
	SuggestionRejected SuggestionStatus = "REJECTED"
	SuggestionInvalid SuggestionStatus = "INVALID"
)

// Suggestion is a candidate unified-diff prompt refinement.
type Suggestion struct {
	ID                  string           `json:"id"`
	ParentPromptVersionID string         `json:"parentPromptVersionId"`
	DiffText            string           `json:"diffText"`
	Note                string           `json:"note"`
	Status              SuggestionStatus `json:"status"`
	FailingExemplarIDs  []string         `json:"failingExemplarIds,omitempty"`
	InvalidReason       string           `json:"invalidReason,omitempty"`
	CreatedAt           time.Time        `json:"createdAt"`
}

// ReviewDecision is the reviewer's disposition of a Suggestion.
type ReviewDecision string

const (
	DecisionApprove ReviewDecision = "APPROVE"
	DecisionReject  ReviewDecision = "REJECT"
	DecisionEdit    ReviewDecision = "EDIT"
)

// Review records a human decision on a Suggestion.
type Review struct {
	ID           string         `json:"id"`
	SuggestionID string         `json:"suggestionId"`
	Reviewer     string         `json:"reviewer"`
	Decision     ReviewDecision `json:"decision"`
	EditedDiff   string         `json:"editedDiff,omitempty"`
	Notes        string         `json:"notes,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// CostRecord is an append-only spend event used by the budget engine.
type CostRecord struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"projectId"`
	Timestamp        time.Time `json:"timestamp"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	PromptTokens     int64     `json:"promptTokens"`
	CompletionTokens int64     `json:"completionTokens"`
	AmountUSD        float64   `json:"amountUsd"`
}
