package evaluator

import (
	"encoding/json"
	"strings"

	"github.com/edison-llm/edison/pkg/edisonerr"
)

// stripFences removes a leading/trailing markdown code fence, the only
// repair attempted before falling back to a reformulation retry. No
// deeper JSON repair is attempted.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 && !strings.HasPrefix(s, "\n") {
		// Drop an optional language tag on the fence's opening line.
		firstLine := s[:idx]
		if !strings.Contains(firstLine, "{") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

type pointwisePayload struct {
	Scores      map[string]int    `json:"scores"`
	Rationales  map[string]string `json:"rationales"`
	SafetyFlags struct {
		PolicyViolation  bool `json:"policyViolation"`
		PIIDetected      bool `json:"piiDetected"`
		ToxicContent     bool `json:"toxicContent"`
		JailbreakAttempt bool `json:"jailbreakAttempt"`
	} `json:"safetyFlags"`
}

func parsePointwise(text string) (*pointwisePayload, error) {
	var p pointwisePayload
	if err := json.Unmarshal([]byte(stripFences(text)), &p); err != nil {
		return nil, edisonerr.Wrap(edisonerr.ParseFailure, "evaluator", "pointwise judge response is not valid JSON", err)
	}
	if p.Scores == nil {
		return nil, edisonerr.New(edisonerr.ParseFailure, "evaluator", "pointwise judge response missing scores")
	}
	return &p, nil
}

type pairwisePayload struct {
	Winner  string              `json:"winner"`
	Reasons []string            `json:"reasons"`
	Scores  map[string]map[string]int `json:"scores"`
}

func parsePairwise(text string) (*pairwisePayload, error) {
	var p pairwisePayload
	if err := json.Unmarshal([]byte(stripFences(text)), &p); err != nil {
		return nil, edisonerr.Wrap(edisonerr.ParseFailure, "evaluator", "pairwise judge response is not valid JSON", err)
	}
	switch p.Winner {
	case "A", "B", "tie":
	default:
		return nil, edisonerr.New(edisonerr.ParseFailure, "evaluator", "pairwise judge response has invalid winner")
	}
	return &p, nil
}
