package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	// Import for side effects: register all provider adapters via init()
	_ "github.com/edison-llm/edison/internal/providers/anthropic"
	_ "github.com/edison-llm/edison/internal/providers/bedrock"
	_ "github.com/edison-llm/edison/internal/providers/mock"
	_ "github.com/edison-llm/edison/internal/providers/openai"
	_ "github.com/edison-llm/edison/internal/providers/replicate"
)

func main() {
	// Parse with custom exit handler to enforce proper exit codes:
	// 0 = success, 1 = run/runtime error, 2 = validation/usage error
	ctx := kong.Parse(&CLI,
		kong.Name("edison"),
		kong.Description("Edison - Iterative LLM Prompt Improvement"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
		kong.Exit(func(code int) {
			if code != 0 {
				os.Exit(2)
			}
			os.Exit(0)
		}),
	)

	err := ctx.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
