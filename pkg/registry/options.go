package registry

// Option mutates one field of an adapter's typed config struct.
// Adapters that expose a typed constructor alongside the Config-map
// factory alias this per config type:
//
//	type Option = registry.Option[Config]
//	func WithModel(m string) Option { return func(c *Config) { c.Model = m } }
type Option[C any] func(*C)

// ApplyOptions layers opts over a defaults struct and returns the
// result, the entry point behind the adapters' NewWithOptions
// constructors:
//
//	cfg := registry.ApplyOptions(DefaultConfig(), WithModel("claude-3-haiku"), WithAPIKey(key))
func ApplyOptions[C any](cfg C, opts ...Option[C]) C {
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
