package registry

import (
	"os"

	"github.com/edison-llm/edison/pkg/edisonerr"
)

// GetString reads a string key, falling back to defaultValue when the
// key is absent or not a string.
func GetString(cfg Config, key string, defaultValue string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return defaultValue
}

// GetInt reads an int key. YAML and JSON decoders deliver numbers as
// int, int64, or float64 depending on the source, so all three are
// accepted.
func GetInt(cfg Config, key string, defaultValue int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return defaultValue
	}
}

// GetFloat64 reads a float key, accepting ints for the same decoder
// reason as GetInt.
func GetFloat64(cfg Config, key string, defaultValue float64) float64 {
	switch v := cfg[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return defaultValue
	}
}

// RequireString reads a string key that an adapter cannot operate
// without (the model id). Absence is a Validation-kind error.
func RequireString(cfg Config, key string) (string, error) {
	v, ok := cfg[key].(string)
	if !ok || v == "" {
		return "", edisonerr.New(edisonerr.Validation, "registry", "missing required config key "+key)
	}
	return v, nil
}

// GetAPIKeyWithEnv resolves an adapter credential: the "api_key"
// config entry first, then the provider's conventional environment
// variable. Neither being set is an AuthFailure, since the adapter
// cannot authenticate.
func GetAPIKeyWithEnv(cfg Config, envVar string, providerName string) (string, error) {
	key := GetString(cfg, "api_key", "")
	if key == "" {
		key = os.Getenv(envVar)
	}
	if key == "" {
		return "", edisonerr.New(edisonerr.AuthFailure, providerName,
			"no api_key configured and "+envVar+" is not set")
	}
	return key, nil
}

// GetOptionalAPIKeyWithEnv resolves a credential the same way but
// returns "" when neither source is set, for adapters where the
// credential is optional (local endpoints, mocks).
func GetOptionalAPIKeyWithEnv(cfg Config, envVar string) string {
	key := GetString(cfg, "api_key", "")
	if key == "" {
		key = os.Getenv(envVar)
	}
	return key
}
