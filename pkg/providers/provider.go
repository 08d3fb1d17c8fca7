// Package providers defines the uniform chat-completion contract Edison
// calls against heterogeneous LLM backends, plus the registry adapters
// register into at init() time. Concrete adapters live under
// internal/providers/*.
package providers

import (
	"context"
	"time"

	"github.com/edison-llm/edison/pkg/model"
	"github.com/edison-llm/edison/pkg/registry"
)

// ChatOptions carries the sampling and control parameters for one call.
type ChatOptions struct {
	Temperature      float64
	MaxTokens        int
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
	StopSequences    []string
	Seed             *int64
	ResponseFormat   string // "" or "json"
	Timeout          time.Duration
	// AllowCache opts this call into the content-addressed response cache.
	// It has no effect when Seed is nil and Temperature > 0: such calls
	// are never cached (see Cacheable).
	AllowCache bool
}

// ChatResponse is the normalized result of a chat call.
type ChatResponse struct {
	Text             string
	PromptTokens     int64
	CompletionTokens int64
	Latency          time.Duration
	FinishReason     model.FinishReason
	Cached           bool
	Raw              any
}

// StreamChunk is one incremental piece of a streamed response.
type StreamChunk struct {
	Delta string
	Done  bool
	Final *ChatResponse
}

// Provider is the capability set every adapter implements.
type Provider interface {
	Chat(ctx context.Context, messages []model.Message, opts ChatOptions) (*ChatResponse, error)
	StreamChat(ctx context.Context, messages []model.Message, opts ChatOptions) (<-chan StreamChunk, error)
	EstimateCost(promptTokens, completionTokens int64) (float64, error)
	ValidateModel(ctx context.Context) error
	Name() string
	Description() string
}

// Registry is the global provider registry. Adapters self-register from
// their init() functions, keyed by "<package>.<Type>" (e.g. "openai.OpenAI").
var Registry = registry.New[Provider]("providers")

// Register adds a provider factory to the global registry.
func Register(name string, factory func(registry.Config) (Provider, error)) {
	Registry.Register(name, factory)
}

// List returns all registered provider names.
func List() []string {
	return Registry.List()
}

// Create instantiates a provider by name.
func Create(name string, cfg registry.Config) (Provider, error) {
	return Registry.Create(name, cfg)
}
