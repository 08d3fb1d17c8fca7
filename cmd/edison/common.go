package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/edison-llm/edison/pkg/providers"
)

const version = "0.1.0"

func listCapabilities() {
	fmt.Println("Registered Capabilities")
	fmt.Println("=======================")
	fmt.Println()

	fmt.Printf("Providers (%d):\n", providers.Registry.Count())
	for _, name := range providers.List() {
		fmt.Printf("  - %s\n", name)
	}
}

// adapterNames maps short provider tags from experiment configs to the
// registered adapter names. resolveAdapterName passes a tag that is
// already a registered adapter name through unchanged; any other tag
// must appear in this map.
var adapterNames = map[string]string{
	"openai":    "openai.OpenAI",
	"anthropic": "anthropic.Anthropic",
	"bedrock":   "bedrock.Bedrock",
	"replicate": "replicate.Replicate",
	"mock":      "mock.Mock",
}

// validationCachePath is where credential-probe verdicts persist
// between runs.
func validationCachePath() string {
	if home, err := os.UserHomeDir(); err == nil {
		dir := filepath.Join(home, ".edison")
		if err := os.MkdirAll(dir, 0700); err == nil {
			return filepath.Join(dir, "validation.json")
		}
	}
	return filepath.Join(os.TempDir(), "edison-validation.json")
}

func resolveAdapterName(tag string) (string, error) {
	for _, name := range providers.List() {
		if name == tag {
			return tag, nil
		}
	}
	if name, ok := adapterNames[tag]; ok {
		return name, nil
	}
	return "", fmt.Errorf("unknown provider %q (known: %v)", tag, providers.List())
}
