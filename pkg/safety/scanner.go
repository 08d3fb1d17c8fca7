// Package safety implements the pointwise content, PII, jailbreak, and
// toxicity checks applied to every Output and every Judgment rationale.
package safety

import (
	"context"
	"regexp"

	"github.com/edison-llm/edison/pkg/model"
)

// piiPatterns mirrors the regexes named in the safety scanner contract.
var piiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),                      // SSN
	regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`),                    // 16-digit card, loosely
	regexp.MustCompile(`\b[\w.+-]+@[\w-]+\.[\w.-]+\b`),               // email
	regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`), // NA phone
}

// defaultJailbreakPatterns is a small curated set of phrase fragments
// commonly seen in jailbreak prompts. SafetyConfig.JailbreakPatterns may
// extend or override this list per experiment.
var defaultJailbreakPatterns = []string{
	"ignore previous instructions",
	"ignore all previous instructions",
	"disregard your instructions",
	"you are now dan",
	"do anything now",
	"pretend you have no restrictions",
	"jailbreak",
	"bypass your guidelines",
}

// ModerationClient is the optional provider-native moderation hook.
// Implementations call a provider's moderation endpoint; when nil,
// provider moderation is skipped.
type ModerationClient interface {
	Moderate(ctx context.Context, text string) (flagged bool, err error)
}

// ToxicityClient is the optional external toxicity-scoring service hook.
type ToxicityClient interface {
	Score(ctx context.Context, text string) (score float64, err error)
}

// Scanner applies the fixed set of content checks to arbitrary text.
type Scanner struct {
	cfg        model.SafetyConfig
	moderation ModerationClient
	toxicity   ToxicityClient
	jailbreak  []*regexp.Regexp
}

// New builds a Scanner from an experiment's SafetyConfig. moderation and
// toxicity may be nil, in which case those checks never fire.
func New(cfg model.SafetyConfig, moderation ModerationClient, toxicity ToxicityClient) *Scanner {
	patterns := cfg.JailbreakPatterns
	if len(patterns) == 0 {
		patterns = defaultJailbreakPatterns
	}
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(p)))
	}
	return &Scanner{cfg: cfg, moderation: moderation, toxicity: toxicity, jailbreak: compiled}
}

// toxicityThreshold above which Scan flags ToxicContent.
const toxicityThreshold = 0.7

// Scan applies every configured check to text and returns the flag set.
func (s *Scanner) Scan(ctx context.Context, text string) (model.SafetyFlags, error) {
	var flags model.SafetyFlags

	flags.PIIDetected = containsPII(text)
	flags.JailbreakAttempt = s.containsJailbreak(text)

	if s.cfg.ProviderModeration && s.moderation != nil {
		flagged, err := s.moderation.Moderate(ctx, text)
		if err != nil {
			return flags, err
		}
		flags.PolicyViolation = flagged
	}

	if s.cfg.ToxicityServiceEnable && s.toxicity != nil {
		score, err := s.toxicity.Score(ctx, text)
		if err != nil {
			return flags, err
		}
		flags.ToxicContent = score >= toxicityThreshold
	}

	return flags, nil
}

func containsPII(text string) bool {
	for _, p := range piiPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func (s *Scanner) containsJailbreak(text string) bool {
	for _, p := range s.jailbreak {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// ScanOutput scans an Output's text and attaches the resulting flags.
func (s *Scanner) ScanOutput(ctx context.Context, o *model.Output) error {
	flags, err := s.Scan(ctx, o.Text)
	if err != nil {
		return err
	}
	o.Safety = &flags
	return nil
}

// ScanJudgmentRationales scans every rationale string on a Judgment and
// merges the resulting flags (any-true wins) into j.Safety.
func (s *Scanner) ScanJudgmentRationales(ctx context.Context, j *model.Judgment) error {
	var merged model.SafetyFlags
	for _, rationale := range j.Rationales {
		flags, err := s.Scan(ctx, rationale)
		if err != nil {
			return err
		}
		merged.PolicyViolation = merged.PolicyViolation || flags.PolicyViolation
		merged.PIIDetected = merged.PIIDetected || flags.PIIDetected
		merged.ToxicContent = merged.ToxicContent || flags.ToxicContent
		merged.JailbreakAttempt = merged.JailbreakAttempt || flags.JailbreakAttempt
	}
	j.Safety = merged
	return nil
}

// ShouldExclude reports whether an output blocked under blockViolations
// policy must be excluded from aggregation and pairwise matchups.
func (s *Scanner) ShouldExclude(flags *model.SafetyFlags) bool {
	if flags == nil || !s.cfg.BlockViolations {
		return false
	}
	return flags.Blocked()
}
