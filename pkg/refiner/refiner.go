// Package refiner proposes a small, validated unified-diff refinement
// of a prompt's weakest two rubric criteria. The prompt-building and
// strict-tag-parsing shape mirrors pkg/evaluator's judge wire
// contract: a model call, defensive parsing, single retry,
// conservative failure fallback. Hunk parsing and application are
// self-contained; the validator rejects any diff that rewrites more
// than a bounded fraction of the prompt.
package refiner

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/edison-llm/edison/pkg/edisonerr"
	"github.com/edison-llm/edison/pkg/model"
	"github.com/edison-llm/edison/pkg/providers"
)

// DefaultExemplarQuantile is the bottom fraction of scored outputs
// sampled as failing exemplars.
const DefaultExemplarQuantile = 0.20

// MaxLengthChangeRatio and MaxLineChangeRatio bound how much a diff may
// alter the prompt body.
const (
	MaxLengthChangeRatio = 0.15
	MaxLineChangeRatio   = 0.20
	MaxDeletionRunLines  = 5
)

const refinerTemperature = 0.2

// Exemplar is one failing output sampled for the refiner prompt.
type Exemplar struct {
	OutputID   string
	Input      map[string]string
	OutputText string
	Scores     map[string]int
	Rationales map[string]string
}

// ScoredCriterion is one criterion's mean score across the dataset,
// used to select the two weakest.
type ScoredCriterion struct {
	Name      string
	MeanScore float64
}

// WeakestCriteria returns the names of the two lowest-scoring criteria,
// or fewer if the rubric has fewer than two.
func WeakestCriteria(scored []ScoredCriterion) []string {
	sorted := make([]ScoredCriterion, len(scored))
	copy(sorted, scored)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MeanScore < sorted[j].MeanScore })
	n := 2
	if n > len(sorted) {
		n = len(sorted)
	}
	names := make([]string, n)
	for i := 0; i < n; i++ {
		names[i] = sorted[i].Name
	}
	return names
}

// ScoredExemplar pairs an Exemplar with its composite score on the weak
// criteria, the sort key SampleFailingExemplars uses.
type ScoredExemplar struct {
	Exemplar      Exemplar
	WeakCriteriaScore float64
}

// SampleFailingExemplars returns up to k exemplars drawn from the
// bottom quantile (default 20%) of weak-criteria scores.
func SampleFailingExemplars(scored []ScoredExemplar, quantile float64, k int) []Exemplar {
	if quantile <= 0 {
		quantile = DefaultExemplarQuantile
	}
	sorted := make([]ScoredExemplar, len(scored))
	copy(sorted, scored)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].WeakCriteriaScore < sorted[j].WeakCriteriaScore })

	cutoff := int(float64(len(sorted)) * quantile)
	if cutoff < 1 && len(sorted) > 0 {
		cutoff = 1
	}
	if cutoff > len(sorted) {
		cutoff = len(sorted)
	}
	pool := sorted[:cutoff]
	if k > 0 && k < len(pool) {
		pool = pool[:k]
	}

	out := make([]Exemplar, len(pool))
	for i, s := range pool {
		out[i] = s.Exemplar
	}
	return out
}

// BuildPrompt assembles the refiner prompt: objective, rubric, current
// prompt body verbatim, weak criteria, and exemplars.
func BuildPrompt(objective string, rubric model.Rubric, currentBody string, weakCriteria []string, exemplars []Exemplar) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are improving a prompt template for the following objective.\n\nObjective: %s\n\n", objective)
	b.WriteString("Rubric:\n")
	for _, c := range rubric.Criteria {
		fmt.Fprintf(&b, "- %s (weight %.2f, scale %d-%d): %s\n", c.Name, c.Weight, c.ScaleMin, c.ScaleMax, c.Description)
	}
	fmt.Fprintf(&b, "\nWeakest criteria to address: %s\n\n", strings.Join(weakCriteria, ", "))
	b.WriteString("Current prompt (verbatim):\n```\n")
	b.WriteString(currentBody)
	b.WriteString("\n```\n\n")

	b.WriteString("Failing exemplars:\n")
	for i, e := range exemplars {
		fmt.Fprintf(&b, "\nExemplar %d:\n  Input: %v\n  Output: %s\n", i+1, e.Input, e.OutputText)
		for _, name := range weakCriteria {
			fmt.Fprintf(&b, "  %s score: %d, rationale: %s\n", name, e.Scores[name], e.Rationales[name])
		}
	}

	b.WriteString("\nPropose a small, surgical improvement to the prompt that addresses the weak criteria above.\n")
	b.WriteString("Respond with exactly two tagged blocks, nothing else:\n")
	b.WriteString("<diff>\n<a valid unified diff against the prompt above>\n</diff>\n")
	b.WriteString("<note>\n<one paragraph explaining the change>\n</note>\n")
	return b.String()
}

var diffTagRe = regexp.MustCompile(`(?s)<diff>\s*(.*?)\s*</diff>`)
var noteTagRe = regexp.MustCompile(`(?s)<note>\s*(.*?)\s*</note>`)

// ParseResponse extracts the diff and note from a refiner model reply.
func ParseResponse(text string) (diffText, note string, err error) {
	diffMatch := diffTagRe.FindStringSubmatch(text)
	noteMatch := noteTagRe.FindStringSubmatch(text)
	if diffMatch == nil {
		return "", "", edisonerr.New(edisonerr.ParseFailure, "refiner", "response missing <diff> block")
	}
	if noteMatch == nil {
		return "", "", edisonerr.New(edisonerr.ParseFailure, "refiner", "response missing <note> block")
	}
	return diffMatch[1], noteMatch[1], nil
}

var templateVarRe = regexp.MustCompile(`\{\{\s*[\w.]+\s*\}\}`)

// Validate applies the six-point diff validation: syntactic
// parse, clean apply, length/line change bounds, no long deletion run,
// and template-variable preservation. It returns the applied body on
// success.
func Validate(currentBody, diffText string) (newBody string, err error) {
	hunks, err := parseUnifiedDiff(diffText)
	if err != nil {
		return "", err
	}

	applied, err := applyUnifiedDiff(currentBody, hunks)
	if err != nil {
		return "", err
	}

	if ratio := changeRatio(len(currentBody), len(applied)); ratio > MaxLengthChangeRatio {
		return "", edisonerr.New(edisonerr.DiffInvalid, "refiner", fmt.Sprintf("length changed by %.1f%%, exceeds %.0f%% bound", ratio*100, MaxLengthChangeRatio*100))
	}

	oldLines := len(strings.Split(currentBody, "\n"))
	newLines := len(strings.Split(applied, "\n"))
	if ratio := changeRatio(oldLines, newLines); ratio > MaxLineChangeRatio {
		return "", edisonerr.New(edisonerr.DiffInvalid, "refiner", fmt.Sprintf("line count changed by %.1f%%, exceeds %.0f%% bound", ratio*100, MaxLineChangeRatio*100))
	}

	if run := maxDeletionRun(hunks); run > MaxDeletionRunLines {
		return "", edisonerr.New(edisonerr.DiffInvalid, "refiner", fmt.Sprintf("deletion run of %d lines exceeds %d-line bound", run, MaxDeletionRunLines))
	}

	before := templateVarRe.FindAllString(currentBody, -1)
	after := templateVarRe.FindAllString(applied, -1)
	if !sameSet(before, after) {
		return "", edisonerr.New(edisonerr.DiffInvalid, "refiner", "template variables were not preserved")
	}

	return applied, nil
}

func changeRatio(before, after int) float64 {
	if before == 0 {
		if after == 0 {
			return 0
		}
		return 1
	}
	diff := after - before
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) / float64(before)
}

func sameSet(a, b []string) bool {
	counts := map[string]int{}
	for _, s := range a {
		counts[s]++
	}
	for _, s := range b {
		counts[s]--
	}
	for _, c := range counts {
		if c != 0 {
			return false
		}
	}
	return true
}

// Refiner calls a configured model to propose a prompt diff and
// validates the result before producing a Suggestion.
type Refiner struct {
	objective string
	rubric    model.Rubric
}

// New creates a Refiner bound to one experiment's objective and rubric.
func New(objective string, rubric model.Rubric) *Refiner {
	return &Refiner{objective: objective, rubric: rubric}
}

// Propose runs the refiner algorithm once: build the prompt, call the
// model, parse and validate its response, and produce a Suggestion. A
// parse or validation failure yields an INVALID Suggestion rather than
// an error. Callers that want the one permitted retry per iteration
// invoke Propose a second time themselves.
func (r *Refiner) Propose(
	ctx context.Context,
	provider providers.Provider,
	currentBody string,
	weakCriteria []string,
	exemplars []Exemplar,
	parentPromptVersionID string,
) (*model.Suggestion, error) {
	prompt := BuildPrompt(r.objective, r.rubric, currentBody, weakCriteria, exemplars)

	exemplarIDs := make([]string, len(exemplars))
	for i, e := range exemplars {
		exemplarIDs[i] = e.OutputID
	}

	resp, err := provider.Chat(ctx, []model.Message{{Role: model.RoleUser, Content: prompt}}, providers.ChatOptions{
		Temperature: refinerTemperature,
		MaxTokens:   2048,
	})
	if err != nil {
		return invalidSuggestion(parentPromptVersionID, exemplarIDs, err.Error()), nil
	}

	diffText, note, perr := ParseResponse(resp.Text)
	if perr != nil {
		return invalidSuggestion(parentPromptVersionID, exemplarIDs, perr.Error()), nil
	}

	if _, verr := Validate(currentBody, diffText); verr != nil {
		return invalidSuggestion(parentPromptVersionID, exemplarIDs, verr.Error()), nil
	}

	return &model.Suggestion{
		ID:                    uuid.NewString(),
		ParentPromptVersionID: parentPromptVersionID,
		DiffText:              diffText,
		Note:                  note,
		Status:                model.SuggestionPending,
		FailingExemplarIDs:    exemplarIDs,
		CreatedAt:             time.Now(),
	}, nil
}

func invalidSuggestion(parentID string, exemplarIDs []string, reason string) *model.Suggestion {
	return &model.Suggestion{
		ID:                    uuid.NewString(),
		ParentPromptVersionID: parentID,
		Status:                model.SuggestionInvalid,
		FailingExemplarIDs:    exemplarIDs,
		InvalidReason:         reason,
		CreatedAt:             time.Now(),
	}
}
