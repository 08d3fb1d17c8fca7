// Package registry backs Edison's provider and judge adapter
// discovery. Adapters self-register from init() functions under
// "<package>.<Type>" names (openai.OpenAI, bedrock.Bedrock, ...); the
// CLI and the runner instantiate them by name with a Config map
// assembled from the experiment file and credentials.
package registry

import (
	"errors"
	"sort"
	"sync"

	"github.com/edison-llm/edison/pkg/edisonerr"
)

// Config carries adapter instantiation settings: model id, credential,
// endpoint overrides, cache TTL. Credentials enter here at
// instantiation time only and are never persisted by this package.
type Config map[string]any

// Factory builds one adapter instance from a Config.
type Factory[T any] func(Config) (T, error)

// ErrNotRegistered is wrapped into the edisonerr.NotFound error Create
// returns for an unknown adapter name, so callers may also branch with
// errors.Is.
var ErrNotRegistered = errors.New("adapter not registered")

// Registry holds the factories for one adapter family (providers,
// judges). Safe for concurrent use; registration normally happens at
// init() time, lookups at run time.
type Registry[T any] struct {
	mu        sync.RWMutex
	factories map[string]Factory[T]
	name      string
}

// New creates an empty registry for the named adapter family.
func New[T any](name string) *Registry[T] {
	return &Registry[T]{
		factories: make(map[string]Factory[T]),
		name:      name,
	}
}

// Register adds a factory under name, replacing any previous one. The
// last registration wins, which lets tests shadow a real adapter with
// a fake.
func (r *Registry[T]) Register(name string, factory Factory[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create instantiates the named adapter. An unknown name yields an
// edisonerr.NotFound error naming the registry, so a typo in an
// experiment file surfaces as a validation-class failure rather than a
// nil adapter.
func (r *Registry[T]) Create(name string, cfg Config) (T, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		var zero T
		return zero, edisonerr.Wrap(edisonerr.NotFound, r.name, name, ErrNotRegistered)
	}
	return factory(cfg)
}

// List returns all registered adapter names, sorted.
func (r *Registry[T]) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is registered.
func (r *Registry[T]) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Count returns the number of registered adapters.
func (r *Registry[T]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factories)
}

// Name returns the adapter family name ("providers", "judges").
func (r *Registry[T]) Name() string {
	return r.name
}
