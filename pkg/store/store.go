// Package store provides durable persistence for iterations, runs,
// outputs, judgments, suggestions, and cost records. The Store interface
// is the single seam between Edison's phase logic and whatever backs it;
// MemStore is the reference implementation and enforces every uniqueness
// and lifecycle invariant a SQL adapter would enforce with constraints.
package store

import (
	"time"

	"github.com/edison-llm/edison/pkg/model"
)

// Store is the persistence contract the orchestrator and phase runners
// write through. Upserts are idempotent: replaying a write with the same
// natural key returns the stored record unchanged.
type Store interface {
	// Experiments and datasets.
	PutExperiment(exp model.Experiment) error
	GetExperiment(id string) (model.Experiment, error)
	PutDataset(ds model.Dataset) error
	GetDataset(id string) (model.Dataset, error)

	// PromptVersions form an append-only, parent-linked DAG. Append
	// rejects a version that is not strictly greater than its parent's,
	// and a second production version for the same experiment.
	AppendPromptVersion(pv model.PromptVersion) error
	GetPromptVersion(id string) (model.PromptVersion, error)
	ListPromptVersions(experimentID string) ([]model.PromptVersion, error)

	// Model and judge configs.
	PutModelConfig(mc model.ModelConfig) error
	ListModelConfigs(experimentID string) ([]model.ModelConfig, error)
	PutJudgeConfig(jc model.JudgeConfig) error
	ListJudgeConfigs(experimentID string) ([]model.JudgeConfig, error)

	// Iterations. CreateIteration rejects a second non-terminal
	// iteration for the same experiment. SaveIteration persists status
	// and metrics mutations made by the orchestrator.
	CreateIteration(it model.Iteration) error
	SaveIteration(it model.Iteration) error
	GetIteration(id string) (model.Iteration, error)
	ListIterations(experimentID string) ([]model.Iteration, error)
	ListNonTerminalIterations() ([]model.Iteration, error)

	// Model runs.
	SaveModelRun(run model.ModelRun) error
	GetModelRun(id string) (model.ModelRun, error)
	ListModelRuns(iterationID string) ([]model.ModelRun, error)

	// Outputs are write-once, keyed (iterationID, caseID, modelConfigID)
	// through the run's identity. A replay returns the stored output and
	// created=false.
	UpsertOutput(o model.Output) (stored model.Output, created bool, err error)
	ListOutputs(runID string) ([]model.Output, error)
	OutputExists(runID, caseID string) bool

	// Judgments are write-once, keyed (outputID, judgeConfigID) for
	// pointwise and (sorted pair, judgeConfigID) for pairwise.
	UpsertJudgment(j model.Judgment) (stored model.Judgment, created bool, err error)
	ListJudgments(outputIDs []string) ([]model.Judgment, error)

	// Suggestions and reviews.
	PutSuggestion(s model.Suggestion) error
	GetSuggestion(id string) (model.Suggestion, error)
	UpdateSuggestionStatus(id string, status model.SuggestionStatus) error
	PutReview(r model.Review) error

	// Cost records are append-only. SpendSince sums a project's records
	// with Timestamp after the cutoff.
	AppendCostRecord(r model.CostRecord) error
	SpendSince(projectID string, since time.Time) (float64, error)
	ListCostRecords(projectID string) ([]model.CostRecord, error)

	// IterationSnapshot returns a consistent view of an iteration and
	// everything under it, read under a single lock so aggregation sees
	// no torn state.
	IterationSnapshot(iterationID string) (*Snapshot, error)
}

// Snapshot is a consistent read of one iteration's full subtree.
type Snapshot struct {
	Iteration model.Iteration
	Runs      []model.ModelRun
	Outputs   []model.Output
	Judgments []model.Judgment
}
