package main

import (
	"fmt"
	"time"

	"github.com/alecthomas/kong"
)

// CLI represents the Edison command-line interface.
var CLI struct {
	// Global flags
	Debug     bool   `help:"Enable debug logging." short:"d" env:"EDISON_DEBUG"`
	LogFormat string `help:"Log format." enum:"text,json" default:"text" env:"EDISON_LOG_FORMAT"`

	Version VersionCmd `cmd:"" help:"Print version information."`
	Help    HelpCmd    `cmd:"" hidden:"" default:"1"`
	List    ListCmd    `cmd:"" help:"List registered providers."`
	Run     RunCmd     `cmd:"" help:"Run the iterative prompt-improvement loop."`
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (v *VersionCmd) Run() error {
	printVersion()
	return nil
}

// HelpCmd prints help.
type HelpCmd struct{}

func (h *HelpCmd) Run(ctx *kong.Context) error {
	// Print top-level help (application help), not help for the
	// implicit Help command.
	appCtx := *ctx
	if len(appCtx.Path) > 1 {
		appCtx.Path = appCtx.Path[:1]
	}
	return appCtx.PrintUsage(false)
}

// ListCmd lists registered provider adapters.
type ListCmd struct{}

func (l *ListCmd) Run() error {
	listCapabilities()
	return nil
}

// RunCmd runs the execute -> judge -> aggregate -> refine -> review
// loop for one experiment until a stop rule fires.
type RunCmd struct {
	// Required
	ConfigFile string `arg:"" help:"Experiment YAML config file." type:"existingfile"`

	// Configuration
	Profile string `help:"Named config profile to apply."`

	// Execution
	AutoApprove    bool          `help:"Approve refiner suggestions without waiting for a human review."`
	Resume         bool          `help:"Recover orphaned iterations before starting new work."`
	SkipValidation bool          `help:"Skip the startup credential probe for each provider."`
	Timeout     time.Duration `help:"Overall run timeout." default:"2h"`
	Concurrency int           `help:"Max concurrent provider calls per phase." default:"5" env:"EDISON_CONCURRENCY"`

	// Event stream
	Listen string `help:"Address to serve the SSE progress stream on (e.g. :8844). Empty disables." env:"EDISON_LISTEN"`

	// Output
	Format  string `help:"Report format." enum:"table,json,jsonl" default:"table" short:"f"`
	Output  string `help:"Report/JSONL output file path." short:"o" type:"path"`
	HTML    string `help:"HTML report file path." type:"path" name:"html"`
	Verbose bool   `help:"Verbose output." short:"v"`
}

func (r *RunCmd) Run() error {
	return r.execute()
}

func (r *RunCmd) Validate() error {
	if r.ConfigFile == "" {
		return fmt.Errorf("config file argument is required")
	}
	if r.Concurrency < 0 {
		return fmt.Errorf("concurrency must be non-negative")
	}
	return nil
}

// printVersion prints the version string.
func printVersion() {
	fmt.Printf("edison %s\n", version)
}
