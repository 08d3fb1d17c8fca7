// Package openai adapts OpenAI's chat and legacy completion APIs to the
// providers.Provider contract.
package openai

import (
	"context"
	"fmt"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/edison-llm/edison/internal/providers/openaicompat"
	"github.com/edison-llm/edison/pkg/circuitbreaker"
	"github.com/edison-llm/edison/pkg/edisonerr"
	"github.com/edison-llm/edison/pkg/model"
	"github.com/edison-llm/edison/pkg/providers"
	"github.com/edison-llm/edison/pkg/registry"
	"github.com/edison-llm/edison/pkg/retry"
)

func init() {
	providers.Register("openai.OpenAI", New)
}

// OpenAI wraps the go-openai client behind the Provider contract.
type OpenAI struct {
	client  *goopenai.Client
	model   string
	isChat  bool
	cache   *providers.ResponseCache
	breaker *circuitbreaker.Breaker
	retry   retry.Config
}

// New constructs an OpenAI adapter from registry configuration.
//
// Required: model, and api_key (or OPENAI_API_KEY env var).
// Optional: base_url, cache_ttl_seconds.
func New(cfg registry.Config) (providers.Provider, error) {
	modelID, err := registry.RequireString(cfg, "model")
	if err != nil {
		return nil, edisonerr.Wrap(edisonerr.Validation, "openai", "missing model", err)
	}

	apiKey, err := registry.GetAPIKeyWithEnv(cfg, "OPENAI_API_KEY", "openai")
	if err != nil {
		return nil, edisonerr.Wrap(edisonerr.AuthFailure, "openai", "missing api key", err)
	}

	clientCfg := goopenai.DefaultConfig(apiKey)
	if baseURL := registry.GetString(cfg, "base_url", ""); baseURL != "" {
		clientCfg.BaseURL = baseURL
	}

	ttl := time.Duration(registry.GetInt(cfg, "cache_ttl_seconds", 3600)) * time.Second

	g := &OpenAI{
		client:  goopenai.NewClientWithConfig(clientCfg),
		model:   modelID,
		cache:   providers.NewResponseCache(ttl),
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		retry:   providers.DefaultRetryConfig(),
	}
	g.isChat = openaicompat.ChatModels[modelID] || !openaicompat.CompletionModels[modelID]

	return g, nil
}

// Chat implements providers.Provider.
func (g *OpenAI) Chat(ctx context.Context, messages []model.Message, opts providers.ChatOptions) (*providers.ChatResponse, error) {
	return providers.Invoke(ctx, g.cache, g.breaker, g.retry, "openai", g.model, messages, opts, func(callCtx context.Context) (*providers.ChatResponse, error) {
		if g.isChat {
			return g.chat(callCtx, messages, opts)
		}
		return g.complete(callCtx, messages, opts)
	})
}

func (g *OpenAI) chat(ctx context.Context, messages []model.Message, opts providers.ChatOptions) (*providers.ChatResponse, error) {
	req := goopenai.ChatCompletionRequest{
		Model:            g.model,
		Messages:         openaicompat.ToOpenAIMessages(messages),
		Temperature:      float32(opts.Temperature),
		TopP:             float32(opts.TopP),
		FrequencyPenalty: float32(opts.FrequencyPenalty),
		PresencePenalty:  float32(opts.PresencePenalty),
		Stop:             opts.StopSequences,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.Seed != nil {
		seed := int(*opts.Seed)
		req.Seed = &seed
	}
	if opts.ResponseFormat == "json" {
		req.ResponseFormat = &goopenai.ChatCompletionResponseFormat{Type: goopenai.ChatCompletionResponseFormatTypeJSONObject}
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, openaicompat.WrapError("openai", err)
	}
	if len(resp.Choices) == 0 {
		return nil, edisonerr.New(edisonerr.ProviderPermanent, "openai", "no choices returned")
	}

	choice := resp.Choices[0]
	return &providers.ChatResponse{
		Text:             choice.Message.Content,
		PromptTokens:     int64(resp.Usage.PromptTokens),
		CompletionTokens: int64(resp.Usage.CompletionTokens),
		Latency:          time.Since(start),
		FinishReason:     mapFinishReason(string(choice.FinishReason)),
		Raw:              resp,
	}, nil
}

func (g *OpenAI) complete(ctx context.Context, messages []model.Message, opts providers.ChatOptions) (*providers.ChatResponse, error) {
	prompt := lastUserContent(messages)

	req := goopenai.CompletionRequest{
		Model:       g.model,
		Prompt:      prompt,
		Temperature: float32(opts.Temperature),
		TopP:        float32(opts.TopP),
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}

	start := time.Now()
	resp, err := g.client.CreateCompletion(ctx, req)
	if err != nil {
		return nil, openaicompat.WrapError("openai", err)
	}
	if len(resp.Choices) == 0 {
		return nil, edisonerr.New(edisonerr.ProviderPermanent, "openai", "no choices returned")
	}

	return &providers.ChatResponse{
		Text:             resp.Choices[0].Text,
		PromptTokens:     int64(resp.Usage.PromptTokens),
		CompletionTokens: int64(resp.Usage.CompletionTokens),
		Latency:          time.Since(start),
		FinishReason:     mapFinishReason(resp.Choices[0].FinishReason),
		Raw:              resp,
	}, nil
}

// StreamChat streams a chat completion one token chunk at a time.
func (g *OpenAI) StreamChat(ctx context.Context, messages []model.Message, opts providers.ChatOptions) (<-chan providers.StreamChunk, error) {
	if !g.isChat {
		return nil, edisonerr.New(edisonerr.Validation, "openai", "streaming unsupported for completion models")
	}

	req := goopenai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    openaicompat.ToOpenAIMessages(messages),
		Temperature: float32(opts.Temperature),
		Stream:      true,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}

	stream, err := g.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, openaicompat.WrapError("openai", err)
	}

	out := make(chan providers.StreamChunk)
	go func() {
		defer close(out)
		defer stream.Close()
		var text string
		var finish model.FinishReason
		for {
			chunk, err := stream.Recv()
			if err != nil {
				break
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			text += delta
			finish = mapFinishReason(string(chunk.Choices[0].FinishReason))
			out <- providers.StreamChunk{Delta: delta}
		}
		out <- providers.StreamChunk{Done: true, Final: &providers.ChatResponse{Text: text, FinishReason: finish}}
	}()
	return out, nil
}

// EstimateCost implements providers.Provider.
func (g *OpenAI) EstimateCost(promptTokens, completionTokens int64) (float64, error) {
	return providers.EstimateCostFor("openai", g.model, promptTokens, completionTokens)
}

// ValidateModel performs a cheap credential probe.
func (g *OpenAI) ValidateModel(ctx context.Context) error {
	_, err := g.client.ListModels(ctx)
	if err != nil {
		return openaicompat.WrapError("openai", err)
	}
	return nil
}

func (g *OpenAI) Name() string { return "openai.OpenAI" }

func (g *OpenAI) Description() string {
	return fmt.Sprintf("OpenAI chat/completion adapter for model %s", g.model)
}

func lastUserContent(messages []model.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

func mapFinishReason(reason string) model.FinishReason {
	switch reason {
	case "length":
		return model.FinishLength
	case "content_filter":
		return model.FinishContentFilter
	case "tool_calls", "function_call":
		return model.FinishToolCalls
	default:
		return model.FinishStop
	}
}
