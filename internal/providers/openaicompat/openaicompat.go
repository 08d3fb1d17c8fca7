// Package openaicompat provides conversions and error wrapping shared by
// provider adapters built on the OpenAI chat-completions wire format.
package openaicompat

import (
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/edison-llm/edison/pkg/edisonerr"
	"github.com/edison-llm/edison/pkg/model"
)

// ChatModels is the set of OpenAI model ids that use the chat completions
// API rather than the legacy completions API.
var ChatModels = map[string]bool{
	"gpt-3.5-turbo":      true,
	"gpt-3.5-turbo-0125": true,
	"gpt-4":              true,
	"gpt-4-turbo":        true,
	"gpt-4o":             true,
	"gpt-4o-2024-08-06":  true,
	"gpt-4o-mini":        true,
	"o1-mini":            true,
	"o3-mini":            true,
}

// CompletionModels is the set of OpenAI model ids that use the legacy
// completions API.
var CompletionModels = map[string]bool{
	"gpt-3.5-turbo-instruct": true,
	"davinci-002":            true,
	"babbage-002":            true,
}

// ToOpenAIMessages converts Edison messages to the go-openai wire shape.
func ToOpenAIMessages(messages []model.Message) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, goopenai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return out
}

// WrapError classifies an OpenAI-compatible API error into Edison's error
// taxonomy, prefixed with the provider name for diagnostics.
func WrapError(providerName string, err error) error {
	if err == nil {
		return nil
	}

	if apiErr, ok := err.(*goopenai.APIError); ok {
		switch apiErr.HTTPStatusCode {
		case 429:
			return edisonerr.Wrap(edisonerr.RateLimit, providerName, "rate limit exceeded", err)
		case 401, 403:
			return edisonerr.Wrap(edisonerr.AuthFailure, providerName, "authentication error", err)
		case 400:
			return edisonerr.Wrap(edisonerr.ProviderPermanent, providerName, "bad request", err)
		case 500, 502, 503, 504:
			return edisonerr.Wrap(edisonerr.ProviderTransient, providerName, "server error", err)
		default:
			return edisonerr.Wrap(edisonerr.ProviderPermanent, providerName, fmt.Sprintf("API error (%d)", apiErr.HTTPStatusCode), err)
		}
	}

	return edisonerr.Wrap(edisonerr.ProviderTransient, providerName, "request failed", err)
}
