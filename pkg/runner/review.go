package runner

import (
	"time"

	"github.com/google/uuid"

	"github.com/edison-llm/edison/pkg/edisonerr"
	"github.com/edison-llm/edison/pkg/model"
	"github.com/edison-llm/edison/pkg/refiner"
)

// ApplyReview records a human review decision and, on APPROVE or EDIT,
// applies the suggestion's diff to produce the next PromptVersion. Only
// this path ever advances the prompt DAG; the refiner itself never
// mutates it.
func (r *Runner) ApplyReview(review model.Review) (*model.PromptVersion, error) {
	if err := r.cfg.Store.PutReview(review); err != nil {
		return nil, err
	}
	sg, err := r.cfg.Store.GetSuggestion(review.SuggestionID)
	if err != nil {
		return nil, err
	}
	if sg.Status != model.SuggestionPending {
		return nil, edisonerr.New(edisonerr.Conflict, "runner", "suggestion "+sg.ID+" is not pending")
	}

	var diff string
	switch review.Decision {
	case model.DecisionReject:
		return nil, r.cfg.Store.UpdateSuggestionStatus(sg.ID, model.SuggestionRejected)
	case model.DecisionApprove:
		diff = sg.DiffText
	case model.DecisionEdit:
		diff = review.EditedDiff
	default:
		return nil, edisonerr.New(edisonerr.Validation, "runner", "unknown review decision "+string(review.Decision))
	}

	parent, err := r.cfg.Store.GetPromptVersion(sg.ParentPromptVersionID)
	if err != nil {
		return nil, err
	}
	newBody, err := refiner.Validate(parent.Body, diff)
	if err != nil {
		if uerr := r.cfg.Store.UpdateSuggestionStatus(sg.ID, model.SuggestionInvalid); uerr != nil {
			return nil, uerr
		}
		return nil, err
	}

	versions, err := r.cfg.Store.ListPromptVersions(parent.ExperimentID)
	if err != nil {
		return nil, err
	}
	next := 1
	for _, pv := range versions {
		if pv.Version >= next {
			next = pv.Version + 1
		}
	}

	pv := model.PromptVersion{
		ID:             uuid.NewString(),
		ExperimentID:   parent.ExperimentID,
		Version:        next,
		ParentID:       parent.ID,
		Body:           newBody,
		SystemPreamble: parent.SystemPreamble,
		FewShot:        parent.FewShot,
		ToolSchema:     parent.ToolSchema,
		Changelog:      sg.Note,
		Creator:        "refiner",
		CreatedAt:      time.Now(),
	}
	if err := r.cfg.Store.AppendPromptVersion(pv); err != nil {
		return nil, err
	}
	if err := r.cfg.Store.UpdateSuggestionStatus(sg.ID, model.SuggestionApplied); err != nil {
		return nil, err
	}
	return &pv, nil
}

// NextIteration creates the follow-on iteration in PENDING against the
// given prompt version. The store rejects it if a non-terminal
// iteration still exists for the experiment.
func (r *Runner) NextIteration(experimentID, promptVersionID string) (*model.Iteration, error) {
	iterations, err := r.cfg.Store.ListIterations(experimentID)
	if err != nil {
		return nil, err
	}
	number := 1
	for _, it := range iterations {
		if it.Number >= number {
			number = it.Number + 1
		}
	}
	it := model.Iteration{
		ID:              uuid.NewString(),
		ExperimentID:    experimentID,
		Number:          number,
		PromptVersionID: promptVersionID,
		Status:          model.IterationPending,
		ScheduledAt:     time.Now(),
	}
	if err := r.cfg.Store.CreateIteration(it); err != nil {
		return nil, err
	}
	return &it, nil
}
