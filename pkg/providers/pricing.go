package providers

import (
	"fmt"

	"github.com/edison-llm/edison/pkg/edisonerr"
)

// Rate is the per-million-token price for one model.
type Rate struct {
	PromptPerMTok     float64
	CompletionPerMTok float64
}

// pricingTable is keyed by "<provider>/<model>". Both "Claude Sonnet 4"
// and "claude-sonnet-4.5" style ids are carried at the same rate, per
// the pricing ambiguity the source leaves unresolved.
var pricingTable = map[string]Rate{
	"openai/gpt-4o":              {PromptPerMTok: 2.50, CompletionPerMTok: 10.00},
	"openai/gpt-4o-mini":         {PromptPerMTok: 0.15, CompletionPerMTok: 0.60},
	"openai/gpt-4-turbo":         {PromptPerMTok: 10.00, CompletionPerMTok: 30.00},
	"anthropic/claude-sonnet-4.5": {PromptPerMTok: 3.00, CompletionPerMTok: 15.00},
	"anthropic/Claude Sonnet 4":  {PromptPerMTok: 3.00, CompletionPerMTok: 15.00},
	"anthropic/claude-3-haiku":   {PromptPerMTok: 0.25, CompletionPerMTok: 1.25},
	"bedrock/anthropic.claude-3-sonnet-20240229-v1:0": {PromptPerMTok: 3.00, CompletionPerMTok: 15.00},
	"bedrock/amazon.titan-text-express-v1":            {PromptPerMTok: 0.20, CompletionPerMTok: 0.60},
	"bedrock/meta.llama3-70b-instruct-v1:0":            {PromptPerMTok: 0.65, CompletionPerMTok: 0.65},
	"replicate/meta/meta-llama-3-8b-instruct":  {PromptPerMTok: 0.05, CompletionPerMTok: 0.25},
	"replicate/meta/meta-llama-3-70b-instruct": {PromptPerMTok: 0.65, CompletionPerMTok: 2.75},
	"mock/m1": {PromptPerMTok: 0, CompletionPerMTok: 0},
	"mock/m2": {PromptPerMTok: 0, CompletionPerMTok: 0},
}

// LookupRate returns the pricing rate for a provider+model, or a
// Validation error if the id is unknown. Unknown ids are never priced
// with a fallback rate.
func LookupRate(provider, model string) (Rate, error) {
	key := provider + "/" + model
	rate, ok := pricingTable[key]
	if !ok {
		return Rate{}, edisonerr.New(edisonerr.Validation, "providers", fmt.Sprintf("unknown pricing for %s", key))
	}
	return rate, nil
}

// EstimateCostFor computes USD cost for a token count pair at the given
// provider+model's rate.
func EstimateCostFor(provider, model string, promptTokens, completionTokens int64) (float64, error) {
	rate, err := LookupRate(provider, model)
	if err != nil {
		return 0, err
	}
	cost := float64(promptTokens)/1_000_000*rate.PromptPerMTok + float64(completionTokens)/1_000_000*rate.CompletionPerMTok
	return cost, nil
}
