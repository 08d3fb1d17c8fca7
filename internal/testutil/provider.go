// Package testutil provides shared fakes for Edison's provider and
// phase tests.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/edison-llm/edison/pkg/model"
	"github.com/edison-llm/edison/pkg/providers"
)

// FakeProvider implements providers.Provider for testing. It returns
// pre-configured responses, cycling through the slice, and tracks how
// many times Chat was called.
type FakeProvider struct {
	// Responses are returned as reply text, cycling through the slice.
	Responses []string
	// Errs, when non-nil at the call index, is returned instead of a
	// response (no cycling; out-of-range indexes succeed).
	Errs []error
	// ProviderName is returned by Name(). Defaults to "fake".
	ProviderName string

	mu    sync.Mutex
	calls int
}

// NewFakeProvider creates a FakeProvider returning the given responses.
func NewFakeProvider(responses ...string) *FakeProvider {
	return &FakeProvider{Responses: responses, ProviderName: "fake"}
}

// Calls reports how many times Chat has been called.
func (f *FakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Chat implements providers.Provider.
func (f *FakeProvider) Chat(_ context.Context, _ []model.Message, _ providers.ChatOptions) (*providers.ChatResponse, error) {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	f.mu.Unlock()

	if idx < len(f.Errs) && f.Errs[idx] != nil {
		return nil, f.Errs[idx]
	}
	text := ""
	if len(f.Responses) > 0 {
		text = f.Responses[idx%len(f.Responses)]
	}
	return &providers.ChatResponse{
		Text:             text,
		PromptTokens:     10,
		CompletionTokens: int64(len(text)/4) + 1,
		Latency:          time.Millisecond,
		FinishReason:     model.FinishStop,
	}, nil
}

// StreamChat emits the next response as one chunk.
func (f *FakeProvider) StreamChat(ctx context.Context, messages []model.Message, opts providers.ChatOptions) (<-chan providers.StreamChunk, error) {
	resp, err := f.Chat(ctx, messages, opts)
	if err != nil {
		return nil, err
	}
	out := make(chan providers.StreamChunk, 2)
	out <- providers.StreamChunk{Delta: resp.Text}
	out <- providers.StreamChunk{Done: true, Final: resp}
	close(out)
	return out, nil
}

// EstimateCost prices everything at zero.
func (f *FakeProvider) EstimateCost(int64, int64) (float64, error) { return 0, nil }

// ValidateModel always succeeds.
func (f *FakeProvider) ValidateModel(context.Context) error { return nil }

func (f *FakeProvider) Name() string {
	if f.ProviderName == "" {
		return "fake"
	}
	return f.ProviderName
}

func (f *FakeProvider) Description() string { return "fake provider for testing" }
