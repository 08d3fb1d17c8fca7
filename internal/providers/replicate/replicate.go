// Package replicate adapts Replicate's model-hosting API to the
// providers.Provider contract. Models are addressed as
// "owner/model-name" or "owner/model-name:version".
package replicate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	replicatego "github.com/replicate/replicate-go"

	"github.com/edison-llm/edison/pkg/circuitbreaker"
	"github.com/edison-llm/edison/pkg/edisonerr"
	"github.com/edison-llm/edison/pkg/model"
	"github.com/edison-llm/edison/pkg/providers"
	"github.com/edison-llm/edison/pkg/registry"
	"github.com/edison-llm/edison/pkg/retry"
)

func init() {
	providers.Register("replicate.Replicate", New)
}

// Replicate wraps the replicate-go client behind the Provider contract.
type Replicate struct {
	client *replicatego.Client
	model  string

	cache   *providers.ResponseCache
	breaker *circuitbreaker.Breaker
	retry   retry.Config
}

// New constructs a Replicate adapter from registry configuration.
//
// Required: model, and api_key (or REPLICATE_API_TOKEN env var).
// Optional: base_url, cache_ttl_seconds.
func New(cfg registry.Config) (providers.Provider, error) {
	modelID, err := registry.RequireString(cfg, "model")
	if err != nil {
		return nil, edisonerr.Wrap(edisonerr.Validation, "replicate", "missing model", err)
	}
	apiKey, err := registry.GetAPIKeyWithEnv(cfg, "REPLICATE_API_TOKEN", "replicate")
	if err != nil {
		return nil, edisonerr.Wrap(edisonerr.AuthFailure, "replicate", "missing api key", err)
	}

	opts := []replicatego.ClientOption{replicatego.WithToken(apiKey)}
	if baseURL := registry.GetString(cfg, "base_url", ""); baseURL != "" {
		opts = append(opts, replicatego.WithBaseURL(baseURL))
	}
	client, err := replicatego.NewClient(opts...)
	if err != nil {
		return nil, edisonerr.Wrap(edisonerr.Internal, "replicate", "create client", err)
	}

	ttl := time.Duration(registry.GetInt(cfg, "cache_ttl_seconds", 3600)) * time.Second

	return &Replicate{
		client:  client,
		model:   modelID,
		cache:   providers.NewResponseCache(ttl),
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		retry:   providers.DefaultRetryConfig(),
	}, nil
}

// Chat implements providers.Provider.
func (r *Replicate) Chat(ctx context.Context, messages []model.Message, opts providers.ChatOptions) (*providers.ChatResponse, error) {
	return providers.Invoke(ctx, r.cache, r.breaker, r.retry, "replicate", r.model, messages, opts, func(callCtx context.Context) (*providers.ChatResponse, error) {
		return r.call(callCtx, messages, opts)
	})
}

func (r *Replicate) call(ctx context.Context, messages []model.Message, opts providers.ChatOptions) (*providers.ChatResponse, error) {
	prompt := lastUserContent(messages)
	if prompt == "" {
		return nil, edisonerr.New(edisonerr.Validation, "replicate", "no user message to send")
	}

	input := replicatego.PredictionInput{
		"prompt":      prompt,
		"temperature": opts.Temperature,
	}
	if system := systemContent(messages); system != "" {
		input["system_prompt"] = system
	}
	if opts.TopP > 0 {
		input["top_p"] = opts.TopP
	}
	if opts.MaxTokens > 0 {
		input["max_tokens"] = opts.MaxTokens
	}
	if opts.Seed != nil {
		input["seed"] = *opts.Seed
	}

	start := time.Now()
	output, err := r.client.Run(ctx, r.model, input, nil)
	if err != nil {
		return nil, classifyError(err)
	}
	text := extractText(output)

	// Replicate does not report token usage on Run output; approximate
	// at four characters per token so cost records stay plausible.
	return &providers.ChatResponse{
		Text:             text,
		PromptTokens:     int64(len(prompt)/4) + 1,
		CompletionTokens: int64(len(text)/4) + 1,
		Latency:          time.Since(start),
		FinishReason:     model.FinishStop,
		Raw:              output,
	}, nil
}

// StreamChat is not wired for Replicate's SSE prediction stream; callers
// fall back to Chat.
func (r *Replicate) StreamChat(context.Context, []model.Message, providers.ChatOptions) (<-chan providers.StreamChunk, error) {
	return nil, edisonerr.New(edisonerr.Validation, "replicate", "streaming not supported")
}

// EstimateCost implements providers.Provider.
func (r *Replicate) EstimateCost(promptTokens, completionTokens int64) (float64, error) {
	return providers.EstimateCostFor("replicate", r.model, promptTokens, completionTokens)
}

// ValidateModel confirms the model id resolves on Replicate.
func (r *Replicate) ValidateModel(ctx context.Context) error {
	name := r.model
	if idx := strings.Index(name, ":"); idx >= 0 {
		name = name[:idx]
	}
	parts := strings.SplitN(name, "/", 2)
	if len(parts) != 2 {
		return edisonerr.New(edisonerr.Validation, "replicate", "model must be owner/name")
	}
	_, err := r.client.GetModel(ctx, parts[0], parts[1])
	if err != nil {
		return classifyError(err)
	}
	return nil
}

func (r *Replicate) Name() string { return "replicate.Replicate" }

func (r *Replicate) Description() string {
	return fmt.Sprintf("Replicate adapter for model %s", r.model)
}

// extractText flattens a prediction output, which may be a string, a
// []string, or a []any of string chunks.
func extractText(output replicatego.PredictionOutput) string {
	switch v := output.(type) {
	case string:
		return v
	case []string:
		return strings.Join(v, "")
	case []any:
		var parts []string
		for _, elem := range v {
			if s, ok := elem.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "")
	default:
		return fmt.Sprintf("%v", output)
	}
}

func lastUserContent(messages []model.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

func systemContent(messages []model.Message) string {
	for _, m := range messages {
		if m.Role == model.RoleSystem {
			return m.Content
		}
	}
	return ""
}

func classifyError(err error) error {
	var apiErr *replicatego.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == 429:
			return edisonerr.Wrap(edisonerr.RateLimit, "replicate", "rate limit exceeded", err)
		case apiErr.Status == 401 || apiErr.Status == 403:
			return edisonerr.Wrap(edisonerr.AuthFailure, "replicate", "authentication error", err)
		case apiErr.Status >= 500:
			return edisonerr.Wrap(edisonerr.ProviderTransient, "replicate", "server error", err)
		default:
			return edisonerr.Wrap(edisonerr.ProviderPermanent, "replicate", fmt.Sprintf("API error (%d)", apiErr.Status), err)
		}
	}
	return edisonerr.Wrap(edisonerr.ProviderTransient, "replicate", "request failed", err)
}
