package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/edison-llm/edison/pkg/edisonerr"
	"github.com/edison-llm/edison/pkg/model"
)

// MemStore is an in-memory Store. All methods take the single mutex, so
// every read observes a consistent state and every write is atomic.
type MemStore struct {
	mu sync.RWMutex

	experiments    map[string]model.Experiment
	datasets       map[string]model.Dataset
	promptVersions map[string]model.PromptVersion
	modelConfigs   map[string]model.ModelConfig
	judgeConfigs   map[string]model.JudgeConfig
	iterations     map[string]model.Iteration
	runs           map[string]model.ModelRun
	outputs        map[string]model.Output
	outputKeys     map[string]string // (runID|caseID) -> output id
	judgments      map[string]model.Judgment
	judgmentKeys   map[string]string // natural key -> judgment id
	suggestions    map[string]model.Suggestion
	reviews        map[string]model.Review
	costRecords    []model.CostRecord
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		experiments:    make(map[string]model.Experiment),
		datasets:       make(map[string]model.Dataset),
		promptVersions: make(map[string]model.PromptVersion),
		modelConfigs:   make(map[string]model.ModelConfig),
		judgeConfigs:   make(map[string]model.JudgeConfig),
		iterations:     make(map[string]model.Iteration),
		runs:           make(map[string]model.ModelRun),
		outputs:        make(map[string]model.Output),
		outputKeys:     make(map[string]string),
		judgments:      make(map[string]model.Judgment),
		judgmentKeys:   make(map[string]string),
		suggestions:    make(map[string]model.Suggestion),
		reviews:        make(map[string]model.Review),
	}
}

func (s *MemStore) PutExperiment(exp model.Experiment) error {
	if err := model.ValidateRubric(exp.Rubric); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.experiments[exp.ID] = exp
	return nil
}

func (s *MemStore) GetExperiment(id string) (model.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exp, ok := s.experiments[id]
	if !ok {
		return model.Experiment{}, edisonerr.New(edisonerr.NotFound, "store", "experiment "+id)
	}
	return exp, nil
}

func (s *MemStore) PutDataset(ds model.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[ds.ID] = ds
	return nil
}

func (s *MemStore) GetDataset(id string) (model.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, ok := s.datasets[id]
	if !ok {
		return model.Dataset{}, edisonerr.New(edisonerr.NotFound, "store", "dataset "+id)
	}
	return ds, nil
}

// AppendPromptVersion enforces the DAG invariants: strictly increasing
// version along the parent chain, and at most one production version per
// experiment.
func (s *MemStore) AppendPromptVersion(pv model.PromptVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.promptVersions[pv.ID]; exists {
		return edisonerr.New(edisonerr.Conflict, "store", "prompt version "+pv.ID+" already exists")
	}
	if pv.Version <= 0 {
		return edisonerr.New(edisonerr.Validation, "store", "prompt version number must be positive")
	}
	if pv.ParentID != "" {
		parent, ok := s.promptVersions[pv.ParentID]
		if !ok {
			return edisonerr.New(edisonerr.NotFound, "store", "parent prompt version "+pv.ParentID)
		}
		if pv.Version <= parent.Version {
			return edisonerr.New(edisonerr.IntegrityViolation, "store",
				fmt.Sprintf("version %d not greater than parent version %d", pv.Version, parent.Version))
		}
	}
	if pv.IsProduction {
		for _, existing := range s.promptVersions {
			if existing.ExperimentID == pv.ExperimentID && existing.IsProduction {
				return edisonerr.New(edisonerr.Conflict, "store", "experiment already has a production version")
			}
		}
	}
	s.promptVersions[pv.ID] = pv
	return nil
}

func (s *MemStore) GetPromptVersion(id string) (model.PromptVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pv, ok := s.promptVersions[id]
	if !ok {
		return model.PromptVersion{}, edisonerr.New(edisonerr.NotFound, "store", "prompt version "+id)
	}
	return pv, nil
}

func (s *MemStore) ListPromptVersions(experimentID string) ([]model.PromptVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.PromptVersion
	for _, pv := range s.promptVersions {
		if pv.ExperimentID == experimentID {
			out = append(out, pv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (s *MemStore) PutModelConfig(mc model.ModelConfig) error {
	if err := model.ValidateModelConfig(mc); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modelConfigs[mc.ID] = mc
	return nil
}

func (s *MemStore) ListModelConfigs(experimentID string) ([]model.ModelConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.ModelConfig
	for _, mc := range s.modelConfigs {
		if mc.ExperimentID == experimentID {
			out = append(out, mc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) PutJudgeConfig(jc model.JudgeConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.judgeConfigs[jc.ID] = jc
	return nil
}

func (s *MemStore) ListJudgeConfigs(experimentID string) ([]model.JudgeConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.JudgeConfig
	for _, jc := range s.judgeConfigs {
		if jc.ExperimentID == experimentID {
			out = append(out, jc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateIteration enforces the single-active-iteration invariant: at
// most one iteration per experiment may be in a non-terminal status.
func (s *MemStore) CreateIteration(it model.Iteration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.iterations[it.ID]; exists {
		return edisonerr.New(edisonerr.Conflict, "store", "iteration "+it.ID+" already exists")
	}
	for _, existing := range s.iterations {
		if existing.ExperimentID == it.ExperimentID && !existing.Status.Terminal() {
			return edisonerr.New(edisonerr.Conflict, "store",
				"experiment "+it.ExperimentID+" already has a non-terminal iteration")
		}
	}
	s.iterations[it.ID] = it
	return nil
}

func (s *MemStore) SaveIteration(it model.Iteration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.iterations[it.ID]; !ok {
		return edisonerr.New(edisonerr.NotFound, "store", "iteration "+it.ID)
	}
	s.iterations[it.ID] = it
	return nil
}

func (s *MemStore) GetIteration(id string) (model.Iteration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.iterations[id]
	if !ok {
		return model.Iteration{}, edisonerr.New(edisonerr.NotFound, "store", "iteration "+id)
	}
	return it, nil
}

func (s *MemStore) ListIterations(experimentID string) ([]model.Iteration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Iteration
	for _, it := range s.iterations {
		if it.ExperimentID == experimentID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *MemStore) ListNonTerminalIterations() ([]model.Iteration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Iteration
	for _, it := range s.iterations {
		if !it.Status.Terminal() {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) SaveModelRun(run model.ModelRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

func (s *MemStore) GetModelRun(id string) (model.ModelRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return model.ModelRun{}, edisonerr.New(edisonerr.NotFound, "store", "model run "+id)
	}
	return run, nil
}

func (s *MemStore) ListModelRuns(iterationID string) ([]model.ModelRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.ModelRun
	for _, run := range s.runs {
		if run.IterationID == iterationID {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func outputKey(runID, caseID string) string { return runID + "|" + caseID }

// UpsertOutput is the idempotency point for the execute phase: replaying
// a job that already wrote its output returns the stored record with
// created=false and changes nothing.
func (s *MemStore) UpsertOutput(o model.Output) (model.Output, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[o.ModelRunID]; !ok {
		return model.Output{}, false, edisonerr.New(edisonerr.NotFound, "store", "model run "+o.ModelRunID)
	}
	key := outputKey(o.ModelRunID, o.CaseID)
	if existingID, ok := s.outputKeys[key]; ok {
		return s.outputs[existingID], false, nil
	}
	s.outputs[o.ID] = o
	s.outputKeys[key] = o.ID
	return o, true, nil
}

func (s *MemStore) ListOutputs(runID string) ([]model.Output, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Output
	for _, o := range s.outputs {
		if o.ModelRunID == runID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CaseID < out[j].CaseID })
	return out, nil
}

func (s *MemStore) OutputExists(runID, caseID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.outputKeys[outputKey(runID, caseID)]
	return ok
}

func judgmentKey(j model.Judgment) string {
	if j.Mode == model.JudgeModePairwise {
		a, b := j.OutputIDA, j.OutputIDB
		if b < a {
			a, b = b, a
		}
		return "pair|" + a + "|" + b + "|" + j.JudgeConfigID
	}
	return "point|" + j.OutputID + "|" + j.JudgeConfigID
}

// UpsertJudgment enforces exactly one judgment per (judge, target).
func (s *MemStore) UpsertJudgment(j model.Judgment) (model.Judgment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := judgmentKey(j)
	if existingID, ok := s.judgmentKeys[key]; ok {
		return s.judgments[existingID], false, nil
	}
	s.judgments[j.ID] = j
	s.judgmentKeys[key] = j.ID
	return j, true, nil
}

func (s *MemStore) ListJudgments(outputIDs []string) ([]model.Judgment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[string]bool, len(outputIDs))
	for _, id := range outputIDs {
		wanted[id] = true
	}
	var out []model.Judgment
	for _, j := range s.judgments {
		if wanted[j.OutputID] || wanted[j.OutputIDA] || wanted[j.OutputIDB] {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) PutSuggestion(sg model.Suggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suggestions[sg.ID] = sg
	return nil
}

func (s *MemStore) GetSuggestion(id string) (model.Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sg, ok := s.suggestions[id]
	if !ok {
		return model.Suggestion{}, edisonerr.New(edisonerr.NotFound, "store", "suggestion "+id)
	}
	return sg, nil
}

func (s *MemStore) UpdateSuggestionStatus(id string, status model.SuggestionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sg, ok := s.suggestions[id]
	if !ok {
		return edisonerr.New(edisonerr.NotFound, "store", "suggestion "+id)
	}
	sg.Status = status
	s.suggestions[id] = sg
	return nil
}

func (s *MemStore) PutReview(r model.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviews[r.ID] = r
	return nil
}

func (s *MemStore) AppendCostRecord(r model.CostRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.costRecords = append(s.costRecords, r)
	return nil
}

func (s *MemStore) SpendSince(projectID string, since time.Time) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total float64
	for _, r := range s.costRecords {
		if r.ProjectID == projectID && r.Timestamp.After(since) {
			total += r.AmountUSD
		}
	}
	return total, nil
}

func (s *MemStore) ListCostRecords(projectID string) ([]model.CostRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.CostRecord
	for _, r := range s.costRecords {
		if r.ProjectID == projectID {
			out = append(out, r)
		}
	}
	return out, nil
}

// IterationSnapshot reads the iteration and its runs, outputs, and
// judgments under one lock acquisition.
func (s *MemStore) IterationSnapshot(iterationID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.iterations[iterationID]
	if !ok {
		return nil, edisonerr.New(edisonerr.NotFound, "store", "iteration "+iterationID)
	}

	snap := &Snapshot{Iteration: it}
	outputIDs := make(map[string]bool)
	for _, run := range s.runs {
		if run.IterationID != iterationID {
			continue
		}
		snap.Runs = append(snap.Runs, run)
		for _, o := range s.outputs {
			if o.ModelRunID == run.ID {
				snap.Outputs = append(snap.Outputs, o)
				outputIDs[o.ID] = true
			}
		}
	}
	for _, j := range s.judgments {
		if outputIDs[j.OutputID] || outputIDs[j.OutputIDA] || outputIDs[j.OutputIDB] {
			snap.Judgments = append(snap.Judgments, j)
		}
	}

	sort.Slice(snap.Runs, func(i, j int) bool { return snap.Runs[i].ID < snap.Runs[j].ID })
	sort.Slice(snap.Outputs, func(i, j int) bool { return snap.Outputs[i].ID < snap.Outputs[j].ID })
	sort.Slice(snap.Judgments, func(i, j int) bool { return snap.Judgments[i].ID < snap.Judgments[j].ID })
	return snap, nil
}

var _ Store = (*MemStore)(nil)
