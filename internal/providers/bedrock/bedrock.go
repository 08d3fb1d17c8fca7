// Package bedrock adapts AWS Bedrock's InvokeModel API to the
// providers.Provider contract. Claude (Anthropic), Titan (Amazon), and
// Llama (Meta) model families are supported; authentication rides the
// default AWS credential chain.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/edison-llm/edison/pkg/circuitbreaker"
	"github.com/edison-llm/edison/pkg/edisonerr"
	"github.com/edison-llm/edison/pkg/model"
	"github.com/edison-llm/edison/pkg/providers"
	"github.com/edison-llm/edison/pkg/registry"
	"github.com/edison-llm/edison/pkg/retry"
)

func init() {
	providers.Register("bedrock.Bedrock", New)
}

// Bedrock wraps the Bedrock Runtime client behind the Provider contract.
type Bedrock struct {
	client  *bedrockruntime.Client
	modelID string

	cache   *providers.ResponseCache
	breaker *circuitbreaker.Breaker
	retry   retry.Config
}

// New constructs a Bedrock adapter from registry configuration.
//
// Required: model, region. Optional: endpoint, cache_ttl_seconds.
func New(cfg registry.Config) (providers.Provider, error) {
	modelID, err := registry.RequireString(cfg, "model")
	if err != nil {
		return nil, edisonerr.Wrap(edisonerr.Validation, "bedrock", "missing model", err)
	}
	region, err := registry.RequireString(cfg, "region")
	if err != nil {
		return nil, edisonerr.Wrap(edisonerr.Validation, "bedrock", "missing region", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, edisonerr.Wrap(edisonerr.AuthFailure, "bedrock", "load AWS config", err)
	}

	var clientOpts []func(*bedrockruntime.Options)
	if endpoint := registry.GetString(cfg, "endpoint", ""); endpoint != "" {
		clientOpts = append(clientOpts, func(o *bedrockruntime.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	ttl := time.Duration(registry.GetInt(cfg, "cache_ttl_seconds", 3600)) * time.Second

	return &Bedrock{
		client:  bedrockruntime.NewFromConfig(awsCfg, clientOpts...),
		modelID: modelID,
		cache:   providers.NewResponseCache(ttl),
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		retry:   providers.DefaultRetryConfig(),
	}, nil
}

// Chat implements providers.Provider.
func (b *Bedrock) Chat(ctx context.Context, messages []model.Message, opts providers.ChatOptions) (*providers.ChatResponse, error) {
	return providers.Invoke(ctx, b.cache, b.breaker, b.retry, "bedrock", b.modelID, messages, opts, func(callCtx context.Context) (*providers.ChatResponse, error) {
		return b.call(callCtx, messages, opts)
	})
}

func (b *Bedrock) call(ctx context.Context, messages []model.Message, opts providers.ChatOptions) (*providers.ChatResponse, error) {
	var requestBody []byte
	var err error
	switch {
	case strings.HasPrefix(b.modelID, "anthropic.claude"):
		requestBody, err = buildClaudeRequest(messages, opts)
	case strings.HasPrefix(b.modelID, "amazon.titan"):
		requestBody, err = buildTitanRequest(messages, opts)
	case strings.HasPrefix(b.modelID, "meta.llama"):
		requestBody, err = buildLlamaRequest(messages, opts)
	default:
		return nil, edisonerr.New(edisonerr.Validation, "bedrock", "unsupported model family: "+b.modelID)
	}
	if err != nil {
		return nil, edisonerr.Wrap(edisonerr.Internal, "bedrock", "build request", err)
	}

	start := time.Now()
	output, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		Body:        requestBody,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, classifyError(err)
	}

	var text string
	var finish model.FinishReason
	var promptTokens, completionTokens int64
	switch {
	case strings.HasPrefix(b.modelID, "anthropic.claude"):
		text, finish, promptTokens, completionTokens, err = parseClaudeResponse(output.Body)
	case strings.HasPrefix(b.modelID, "amazon.titan"):
		text, finish, promptTokens, completionTokens, err = parseTitanResponse(output.Body)
	default:
		text, finish, promptTokens, completionTokens, err = parseLlamaResponse(output.Body)
	}
	if err != nil {
		return nil, edisonerr.Wrap(edisonerr.ProviderPermanent, "bedrock", "parse response", err)
	}

	return &providers.ChatResponse{
		Text:             text,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		Latency:          time.Since(start),
		FinishReason:     finish,
		Raw:              output,
	}, nil
}

// StreamChat is not wired for InvokeModelWithResponseStream; callers
// fall back to Chat.
func (b *Bedrock) StreamChat(context.Context, []model.Message, providers.ChatOptions) (<-chan providers.StreamChunk, error) {
	return nil, edisonerr.New(edisonerr.Validation, "bedrock", "streaming not supported")
}

// EstimateCost implements providers.Provider.
func (b *Bedrock) EstimateCost(promptTokens, completionTokens int64) (float64, error) {
	return providers.EstimateCostFor("bedrock", b.modelID, promptTokens, completionTokens)
}

// ValidateModel issues a one-token probe call.
func (b *Bedrock) ValidateModel(ctx context.Context) error {
	probe := []model.Message{{Role: model.RoleUser, Content: "ping"}}
	_, err := b.call(ctx, probe, providers.ChatOptions{MaxTokens: 1})
	return err
}

func (b *Bedrock) Name() string { return "bedrock.Bedrock" }

func (b *Bedrock) Description() string {
	return fmt.Sprintf("AWS Bedrock adapter for model %s", b.modelID)
}

func buildClaudeRequest(messages []model.Message, opts providers.ChatOptions) ([]byte, error) {
	msgs := make([]map[string]string, 0, len(messages))
	var system string
	for _, m := range messages {
		if m.Role == model.RoleSystem {
			system = m.Content
			continue
		}
		msgs = append(msgs, map[string]string{"role": string(m.Role), "content": m.Content})
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	req := map[string]any{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        maxTokens,
		"messages":          msgs,
		"temperature":       opts.Temperature,
	}
	if system != "" {
		req["system"] = system
	}
	if opts.TopP > 0 {
		req["top_p"] = opts.TopP
	}
	if len(opts.StopSequences) > 0 {
		req["stop_sequences"] = opts.StopSequences
	}
	return json.Marshal(req)
}

func parseClaudeResponse(body []byte) (string, model.FinishReason, int64, int64, error) {
	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
		Usage      struct {
			InputTokens  int64 `json:"input_tokens"`
			OutputTokens int64 `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", "", 0, 0, err
	}
	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	finish := model.FinishStop
	if resp.StopReason == "max_tokens" {
		finish = model.FinishLength
	}
	return text, finish, resp.Usage.InputTokens, resp.Usage.OutputTokens, nil
}

func buildTitanRequest(messages []model.Message, opts providers.ChatOptions) ([]byte, error) {
	prompt := flattenMessages(messages)
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	genCfg := map[string]any{
		"maxTokenCount": maxTokens,
		"temperature":   opts.Temperature,
	}
	if opts.TopP > 0 {
		genCfg["topP"] = opts.TopP
	}
	return json.Marshal(map[string]any{
		"inputText":            prompt,
		"textGenerationConfig": genCfg,
	})
}

func parseTitanResponse(body []byte) (string, model.FinishReason, int64, int64, error) {
	var resp struct {
		InputTextTokenCount int64 `json:"inputTextTokenCount"`
		Results             []struct {
			TokenCount       int64  `json:"tokenCount"`
			OutputText       string `json:"outputText"`
			CompletionReason string `json:"completionReason"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", "", 0, 0, err
	}
	if len(resp.Results) == 0 {
		return "", "", 0, 0, fmt.Errorf("no results in Titan response")
	}
	r := resp.Results[0]
	finish := model.FinishStop
	if r.CompletionReason == "LENGTH" {
		finish = model.FinishLength
	}
	return r.OutputText, finish, resp.InputTextTokenCount, r.TokenCount, nil
}

func buildLlamaRequest(messages []model.Message, opts providers.ChatOptions) ([]byte, error) {
	prompt := flattenMessages(messages)
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	req := map[string]any{
		"prompt":      prompt,
		"max_gen_len": maxTokens,
		"temperature": opts.Temperature,
	}
	if opts.TopP > 0 {
		req["top_p"] = opts.TopP
	}
	return json.Marshal(req)
}

func parseLlamaResponse(body []byte) (string, model.FinishReason, int64, int64, error) {
	var resp struct {
		Generation           string `json:"generation"`
		PromptTokenCount     int64  `json:"prompt_token_count"`
		GenerationTokenCount int64  `json:"generation_token_count"`
		StopReason           string `json:"stop_reason"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", "", 0, 0, err
	}
	finish := model.FinishStop
	if resp.StopReason == "length" {
		finish = model.FinishLength
	}
	return resp.Generation, finish, resp.PromptTokenCount, resp.GenerationTokenCount, nil
}

// flattenMessages renders a chat transcript as a single prompt for the
// completion-shaped model families.
func flattenMessages(messages []model.Message) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case model.RoleSystem:
			b.WriteString(m.Content + "\n\n")
		case model.RoleUser:
			b.WriteString("User: " + m.Content + "\n")
		case model.RoleAssistant:
			b.WriteString("Assistant: " + m.Content + "\n")
		}
	}
	b.WriteString("Assistant:")
	return b.String()
}

func classifyError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "ThrottlingException"), strings.Contains(msg, "TooManyRequests"):
		return edisonerr.Wrap(edisonerr.RateLimit, "bedrock", "throttled", err)
	case strings.Contains(msg, "AccessDenied"), strings.Contains(msg, "UnrecognizedClient"), strings.Contains(msg, "InvalidSignature"):
		return edisonerr.Wrap(edisonerr.AuthFailure, "bedrock", "authentication error", err)
	case strings.Contains(msg, "ValidationException"):
		return edisonerr.Wrap(edisonerr.ProviderPermanent, "bedrock", "bad request", err)
	case strings.Contains(msg, "ServiceUnavailable"), strings.Contains(msg, "InternalServer"), strings.Contains(msg, "ModelTimeout"):
		return edisonerr.Wrap(edisonerr.ProviderTransient, "bedrock", "server error", err)
	default:
		return edisonerr.Wrap(edisonerr.ProviderTransient, "bedrock", "request failed", err)
	}
}
