package config

import (
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// LoadConfig loads and merges configuration files in hierarchical order.
// Later configs override earlier ones: base -> site -> run -> CLI.
func LoadConfig(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no configuration files provided")
	}

	var result *Config
	for _, path := range paths {
		cfg, err := loadSingleConfig(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
		if result == nil {
			result = cfg
		} else {
			result.Merge(cfg)
		}
	}

	if err := interpolateConfigEnvVars(result); err != nil {
		return nil, fmt.Errorf("failed to interpolate environment variables: %w", err)
	}
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return result, nil
}

// LoadConfigWithProfile loads a config file and applies a named profile.
func LoadConfigWithProfile(path string, profileName string) (*Config, error) {
	cfg, err := loadSingleConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	if err := cfg.ApplyProfile(profileName); err != nil {
		return nil, fmt.Errorf("failed to apply profile %q: %w", profileName, err)
	}
	if err := interpolateConfigEnvVars(cfg); err != nil {
		return nil, fmt.Errorf("failed to interpolate environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// loadSingleConfig loads one YAML configuration file without validation.
func loadSingleConfig(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal: %w", err)
	}
	return &cfg, nil
}

// interpolateConfigEnvVars interpolates ${VAR} references in the string
// fields that commonly carry secrets or machine-specific paths.
func interpolateConfigEnvVars(cfg *Config) error {
	getenv := func(key string) (string, bool) {
		val := os.Getenv(key)
		if val == "" {
			return "", false
		}
		return val, true
	}

	for name, mc := range cfg.Models {
		if mc.APIKey != "" {
			apiKey, err := interpolateEnvVars(mc.APIKey, getenv)
			if err != nil {
				return err
			}
			mc.APIKey = apiKey
		}
		if mc.Model != "" {
			modelID, err := interpolateEnvVars(mc.Model, getenv)
			if err != nil {
				return err
			}
			mc.Model = modelID
		}
		cfg.Models[name] = mc
	}
	for name, jc := range cfg.Judges {
		if jc.APIKey != "" {
			apiKey, err := interpolateEnvVars(jc.APIKey, getenv)
			if err != nil {
				return err
			}
			jc.APIKey = apiKey
		}
		cfg.Judges[name] = jc
	}
	if cfg.Refiner.APIKey != "" {
		apiKey, err := interpolateEnvVars(cfg.Refiner.APIKey, getenv)
		if err != nil {
			return err
		}
		cfg.Refiner.APIKey = apiKey
	}

	for _, field := range []*string{&cfg.Dataset.Path, &cfg.Output.Path, &cfg.Output.HTML} {
		if *field == "" {
			continue
		}
		value, err := interpolateEnvVars(*field, getenv)
		if err != nil {
			return err
		}
		*field = value
	}
	return nil
}
