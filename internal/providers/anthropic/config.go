package anthropic

import (
	"os"

	"github.com/edison-llm/edison/pkg/registry"
)

// Config is the typed configuration for the Anthropic adapter.
type Config struct {
	Model           string
	APIKey          string
	BaseURL         string
	APIVersion      string
	CacheTTLSeconds int
	RateLimit       float64 // requests per second, 0 = no limit
}

// DefaultConfig returns the adapter defaults.
func DefaultConfig() Config {
	return Config{
		APIKey:          os.Getenv("ANTHROPIC_API_KEY"),
		BaseURL:         defaultBaseURL,
		APIVersion:      defaultAPIVersion,
		CacheTTLSeconds: 3600,
	}
}

// ConfigFromMap parses legacy registry.Config into a typed Config.
func ConfigFromMap(m registry.Config) Config {
	cfg := DefaultConfig()
	cfg.Model = registry.GetString(m, "model", cfg.Model)
	cfg.APIKey = registry.GetOptionalAPIKeyWithEnv(m, "ANTHROPIC_API_KEY")
	cfg.BaseURL = registry.GetString(m, "base_url", cfg.BaseURL)
	cfg.APIVersion = registry.GetString(m, "api_version", cfg.APIVersion)
	cfg.CacheTTLSeconds = registry.GetInt(m, "cache_ttl_seconds", cfg.CacheTTLSeconds)
	cfg.RateLimit = registry.GetFloat64(m, "rate_limit", cfg.RateLimit)
	return cfg
}

// Option configures a Config.
type Option = registry.Option[Config]

// WithModel sets the model id.
func WithModel(model string) Option { return func(c *Config) { c.Model = model } }

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option { return func(c *Config) { c.APIKey = key } }

// WithBaseURL overrides the API endpoint, mainly for tests.
func WithBaseURL(url string) Option { return func(c *Config) { c.BaseURL = url } }

// WithRateLimit installs a client-side token bucket in requests per
// second.
func WithRateLimit(rps float64) Option { return func(c *Config) { c.RateLimit = rps } }

// ApplyOptions applies opts over the defaults.
func ApplyOptions(cfg Config, opts ...Option) Config {
	return registry.ApplyOptions(cfg, opts...)
}
