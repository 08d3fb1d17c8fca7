// Package mock provides a deterministic in-memory provider for tests
// and local smoke runs. It never makes a network call: replies are
// fixed, scripted per call, or echoes of the last user message.
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/edison-llm/edison/pkg/model"
	"github.com/edison-llm/edison/pkg/providers"
	"github.com/edison-llm/edison/pkg/registry"
)

func init() {
	providers.Register("mock.Mock", New)
}

// Mock is a provider that fabricates responses locally.
type Mock struct {
	model string
	reply string

	mu      sync.Mutex
	scripts []Script
	calls   int
}

// Script is one scripted call outcome, consumed in order. When the
// script list is exhausted, Mock falls back to its fixed reply (or an
// echo when no reply is configured).
type Script struct {
	Text string
	Err  error
}

// New constructs a Mock from registry configuration.
//
// Optional: model (default "m1"), reply (fixed response text).
func New(cfg registry.Config) (providers.Provider, error) {
	return &Mock{
		model: registry.GetString(cfg, "model", "m1"),
		reply: registry.GetString(cfg, "reply", ""),
	}, nil
}

// NewScripted constructs a Mock that plays back scripts in call order.
func NewScripted(modelID string, scripts ...Script) *Mock {
	return &Mock{model: modelID, scripts: scripts}
}

// Calls reports how many Chat calls the mock has served.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Chat implements providers.Provider.
func (m *Mock) Chat(_ context.Context, messages []model.Message, _ providers.ChatOptions) (*providers.ChatResponse, error) {
	m.mu.Lock()
	m.calls++
	var script *Script
	if len(m.scripts) > 0 {
		s := m.scripts[0]
		m.scripts = m.scripts[1:]
		script = &s
	}
	m.mu.Unlock()

	if script != nil {
		if script.Err != nil {
			return nil, script.Err
		}
		return m.respond(messages, script.Text), nil
	}
	if m.reply != "" {
		return m.respond(messages, m.reply), nil
	}
	return m.respond(messages, lastUser(messages)), nil
}

func (m *Mock) respond(messages []model.Message, text string) *providers.ChatResponse {
	var promptChars int
	for _, msg := range messages {
		promptChars += len(msg.Content)
	}
	return &providers.ChatResponse{
		Text:             text,
		PromptTokens:     int64(promptChars/4) + 1,
		CompletionTokens: int64(len(text)/4) + 1,
		Latency:          time.Millisecond,
		FinishReason:     model.FinishStop,
	}
}

// StreamChat emits the full reply as a single chunk.
func (m *Mock) StreamChat(ctx context.Context, messages []model.Message, opts providers.ChatOptions) (<-chan providers.StreamChunk, error) {
	resp, err := m.Chat(ctx, messages, opts)
	if err != nil {
		return nil, err
	}
	out := make(chan providers.StreamChunk, 2)
	out <- providers.StreamChunk{Delta: resp.Text}
	out <- providers.StreamChunk{Done: true, Final: resp}
	close(out)
	return out, nil
}

// EstimateCost implements providers.Provider.
func (m *Mock) EstimateCost(promptTokens, completionTokens int64) (float64, error) {
	return providers.EstimateCostFor("mock", m.model, promptTokens, completionTokens)
}

// ValidateModel always succeeds.
func (m *Mock) ValidateModel(context.Context) error { return nil }

func (m *Mock) Name() string { return "mock.Mock" }

func (m *Mock) Description() string {
	return "Deterministic in-memory provider for tests and smoke runs"
}

func lastUser(messages []model.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleUser {
			return strings.TrimSpace(messages[i].Content)
		}
	}
	return ""
}
