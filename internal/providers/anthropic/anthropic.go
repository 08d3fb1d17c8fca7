// Package anthropic adapts the Anthropic Messages API to the
// providers.Provider contract.
//
// Differences from the OpenAI-shaped providers:
//   - The system prompt is a separate request field, not a message
//   - max_tokens is required, not optional
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/edison-llm/edison/pkg/circuitbreaker"
	"github.com/edison-llm/edison/pkg/edisonerr"
	"github.com/edison-llm/edison/pkg/model"
	"github.com/edison-llm/edison/pkg/providers"
	"github.com/edison-llm/edison/pkg/ratelimit"
	"github.com/edison-llm/edison/pkg/registry"
	"github.com/edison-llm/edison/pkg/retry"
)

func init() {
	providers.Register("anthropic.Anthropic", New)
}

const (
	defaultMaxTokens  = 1024
	defaultAPIVersion = "2023-06-01"
	defaultBaseURL    = "https://api.anthropic.com/v1"
	socketTimeout     = 90 * time.Second
)

// Anthropic wraps the Messages API behind the Provider contract.
type Anthropic struct {
	apiKey     string
	baseURL    string
	apiVersion string
	model      string

	client  ratelimit.Doer
	cache   *providers.ResponseCache
	breaker *circuitbreaker.Breaker
	retry   retry.Config
}

// New constructs an Anthropic adapter from registry configuration.
//
// Required: model, and api_key (or ANTHROPIC_API_KEY env var).
// Optional: base_url, api_version, cache_ttl_seconds, rate_limit
// (requests per second).
func New(cfg registry.Config) (providers.Provider, error) {
	return NewTyped(ConfigFromMap(cfg))
}

// NewTyped constructs an Anthropic adapter from typed configuration.
func NewTyped(cfg Config) (*Anthropic, error) {
	if cfg.Model == "" {
		return nil, edisonerr.New(edisonerr.Validation, "anthropic", "missing model")
	}
	if cfg.APIKey == "" {
		return nil, edisonerr.New(edisonerr.AuthFailure, "anthropic", "missing api key")
	}

	var client ratelimit.Doer = &http.Client{Timeout: socketTimeout}
	if cfg.RateLimit > 0 {
		client = ratelimit.NewLimitedClient(client, ratelimit.NewBucket(cfg.RateLimit, cfg.RateLimit))
	}

	return &Anthropic{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		apiVersion: cfg.APIVersion,
		model:      cfg.Model,
		client:     client,
		cache:      providers.NewResponseCache(time.Duration(cfg.CacheTTLSeconds) * time.Second),
		breaker:    circuitbreaker.New(circuitbreaker.DefaultConfig()),
		retry:      providers.DefaultRetryConfig(),
	}, nil
}

// NewWithOptions constructs an Anthropic adapter using functional
// options over the defaults.
func NewWithOptions(opts ...Option) (*Anthropic, error) {
	return NewTyped(ApplyOptions(DefaultConfig(), opts...))
}

type messageRequest struct {
	Model         string         `json:"model"`
	MaxTokens     int            `json:"max_tokens"`
	Messages      []anthropicMsg `json:"messages"`
	System        string         `json:"system,omitempty"`
	Temperature   float64        `json:"temperature,omitempty"`
	TopP          float64        `json:"top_p,omitempty"`
	StopSequences []string       `json:"stop_sequences,omitempty"`
}

type anthropicMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageResponse struct {
	ID         string `json:"id"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Chat implements providers.Provider.
func (a *Anthropic) Chat(ctx context.Context, messages []model.Message, opts providers.ChatOptions) (*providers.ChatResponse, error) {
	return providers.Invoke(ctx, a.cache, a.breaker, a.retry, "anthropic", a.model, messages, opts, func(callCtx context.Context) (*providers.ChatResponse, error) {
		return a.call(callCtx, messages, opts)
	})
}

func (a *Anthropic) call(ctx context.Context, messages []model.Message, opts providers.ChatOptions) (*providers.ChatResponse, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	req := messageRequest{
		Model:         a.model,
		MaxTokens:     maxTokens,
		Messages:      toAnthropicMessages(messages),
		System:        systemPreamble(messages),
		Temperature:   opts.Temperature,
		TopP:          opts.TopP,
		StopSequences: opts.StopSequences,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, edisonerr.Wrap(edisonerr.Internal, "anthropic", "marshal request", err)
	}

	url := strings.TrimSuffix(a.baseURL, "/") + "/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, edisonerr.Wrap(edisonerr.Internal, "anthropic", "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", a.apiVersion)

	start := time.Now()
	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, edisonerr.Wrap(edisonerr.ProviderTransient, "anthropic", "request failed", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, edisonerr.Wrap(edisonerr.ProviderTransient, "anthropic", "read response", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyError(httpResp.StatusCode, respBody)
	}

	var resp messageResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, edisonerr.Wrap(edisonerr.ProviderPermanent, "anthropic", "parse response", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return &providers.ChatResponse{
		Text:             text,
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		Latency:          time.Since(start),
		FinishReason:     mapStopReason(resp.StopReason),
		Raw:              resp,
	}, nil
}

// StreamChat is not wired for the Messages streaming protocol; callers
// fall back to Chat.
func (a *Anthropic) StreamChat(context.Context, []model.Message, providers.ChatOptions) (<-chan providers.StreamChunk, error) {
	return nil, edisonerr.New(edisonerr.Validation, "anthropic", "streaming not supported")
}

// EstimateCost implements providers.Provider.
func (a *Anthropic) EstimateCost(promptTokens, completionTokens int64) (float64, error) {
	return providers.EstimateCostFor("anthropic", a.model, promptTokens, completionTokens)
}

// ValidateModel issues a one-token probe to confirm the credential and
// model id are usable.
func (a *Anthropic) ValidateModel(ctx context.Context) error {
	probe := []model.Message{{Role: model.RoleUser, Content: "ping"}}
	_, err := a.call(ctx, probe, providers.ChatOptions{MaxTokens: 1})
	return err
}

func (a *Anthropic) Name() string { return "anthropic.Anthropic" }

func (a *Anthropic) Description() string {
	return fmt.Sprintf("Anthropic Messages API adapter for model %s", a.model)
}

// toAnthropicMessages drops system messages from the array; the system
// preamble rides in its own request field.
func toAnthropicMessages(messages []model.Message) []anthropicMsg {
	out := make([]anthropicMsg, 0, len(messages))
	for _, m := range messages {
		if m.Role == model.RoleSystem {
			continue
		}
		out = append(out, anthropicMsg{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func systemPreamble(messages []model.Message) string {
	for _, m := range messages {
		if m.Role == model.RoleSystem {
			return m.Content
		}
	}
	return ""
}

func classifyError(statusCode int, body []byte) error {
	var errResp errorResponse
	msg := string(body)
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		msg = errResp.Error.Message
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		return edisonerr.New(edisonerr.RateLimit, "anthropic", msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return edisonerr.New(edisonerr.AuthFailure, "anthropic", msg)
	case http.StatusBadRequest:
		return edisonerr.New(edisonerr.ProviderPermanent, "anthropic", msg)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return edisonerr.New(edisonerr.ProviderTransient, "anthropic", msg)
	default:
		return edisonerr.New(edisonerr.ProviderPermanent, "anthropic", fmt.Sprintf("API error (%d): %s", statusCode, msg))
	}
}

func mapStopReason(reason string) model.FinishReason {
	switch reason {
	case "max_tokens":
		return model.FinishLength
	case "tool_use":
		return model.FinishToolCalls
	default:
		return model.FinishStop
	}
}
