// Package orchestrator implements the Iteration Orchestrator (C8): the
// top-level state machine that drives one Iteration through
// PENDING -> EXECUTING -> JUDGING -> AGGREGATING -> REFINING ->
// REVIEWING -> a terminal state, plus PAUSED as a suspend point and
// CANCELLED/FAILED as early exits. Partial results are never discarded:
// a failed or cancelled iteration keeps every output and judgment that
// completed before the exit.
package orchestrator

import (
	"fmt"

	"github.com/edison-llm/edison/pkg/edisonerr"
	"github.com/edison-llm/edison/pkg/model"
)

// transition is one legal (from, to) pair in the state machine.
type transition struct {
	from model.IterationStatus
	to   model.IterationStatus
}

var legalTransitions = map[transition]bool{
	{model.IterationPending, model.IterationExecuting}:   true,
	{model.IterationPending, model.IterationCancelled}:   true,
	{model.IterationExecuting, model.IterationJudging}:   true,
	{model.IterationExecuting, model.IterationPaused}:    true,
	{model.IterationExecuting, model.IterationFailed}:    true,
	{model.IterationExecuting, model.IterationCancelled}: true,
	{model.IterationJudging, model.IterationAggregating}: true,
	{model.IterationJudging, model.IterationPaused}:      true,
	{model.IterationJudging, model.IterationCancelled}:   true,
	{model.IterationJudging, model.IterationFailed}:      true,
	{model.IterationAggregating, model.IterationRefining}:  true,
	{model.IterationAggregating, model.IterationCompleted}: true,
	{model.IterationAggregating, model.IterationFailed}:    true,
	{model.IterationRefining, model.IterationReviewing}: true,
	{model.IterationRefining, model.IterationCompleted}: true,
	{model.IterationRefining, model.IterationFailed}:    true,
	{model.IterationReviewing, model.IterationCompleted}: true,
	{model.IterationReviewing, model.IterationPending}:   true, // reviewer approves, not stopping: a fresh Iteration starts PENDING
	{model.IterationPaused, model.IterationExecuting}:    true,
	{model.IterationPaused, model.IterationJudging}:      true,
}

// CanTransition reports whether moving from one status to another is
// legal.
func CanTransition(from, to model.IterationStatus) bool {
	return legalTransitions[transition{from, to}]
}

// Transition validates and applies a status change on it, returning an
// edisonerr.Validation error describing the illegal transition rather
// than silently accepting it. Every transition outside the table fails
// loudly.
func Transition(it *model.Iteration, to model.IterationStatus) error {
	if !CanTransition(it.Status, to) {
		return edisonerr.New(edisonerr.Validation, "orchestrator",
			fmt.Sprintf("illegal transition %s -> %s", it.Status, to))
	}
	it.Status = to
	return nil
}
