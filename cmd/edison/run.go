package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/edison-llm/edison/pkg/aggregator"
	"github.com/edison-llm/edison/pkg/budget"
	"github.com/edison-llm/edison/pkg/config"
	"github.com/edison-llm/edison/pkg/edisonerr"
	"github.com/edison-llm/edison/pkg/eventbus"
	"github.com/edison-llm/edison/pkg/logging"
	"github.com/edison-llm/edison/pkg/metrics"
	"github.com/edison-llm/edison/pkg/model"
	"github.com/edison-llm/edison/pkg/orchestrator"
	"github.com/edison-llm/edison/pkg/providers"
	"github.com/edison-llm/edison/pkg/registry"
	"github.com/edison-llm/edison/pkg/results"
	"github.com/edison-llm/edison/pkg/runner"
	"github.com/edison-llm/edison/pkg/safety"
	"github.com/edison-llm/edison/pkg/store"
)

func (r *RunCmd) execute() error {
	logging.Configure(logging.Options{Debug: CLI.Debug || r.Verbose, Format: CLI.LogFormat})
	log := logging.ForComponent("cli")

	var cfg *config.Config
	var err error
	if r.Profile != "" {
		cfg, err = config.LoadConfigWithProfile(r.ConfigFile, r.Profile)
	} else {
		cfg, err = config.LoadConfigKoanf(r.ConfigFile)
	}
	if err != nil {
		return err
	}

	st := store.NewMemStore()
	exp := cfg.ToExperiment()
	if err := st.PutExperiment(exp); err != nil {
		return err
	}
	pv := cfg.ToSeedPromptVersion(exp.ID)
	if err := st.AppendPromptVersion(pv); err != nil {
		return err
	}

	ds, err := materializeDataset(cfg, exp.ProjectID)
	if err != nil {
		return err
	}
	if err := st.PutDataset(ds); err != nil {
		return err
	}

	provMap := make(map[string]providers.Provider)
	var providerTags []string
	for _, mc := range cfg.ToModelConfigs(exp.ID) {
		if err := st.PutModelConfig(mc); err != nil {
			return err
		}
		if !mc.Active {
			continue
		}
		p, err := buildProvider(mc.Provider, mc.Model, cfg.Models[mc.ID].APIKey, cfg.Models[mc.ID].Region)
		if err != nil {
			return fmt.Errorf("model %s: %w", mc.ID, err)
		}
		provMap[mc.ID] = p
		providerTags = append(providerTags, mc.Provider)
		if rps := cfg.Models[mc.ID].RateLimit; rps > 0 {
			providers.SetRateLimit(mc.Provider, mc.Model, rps)
		}
	}

	judgeMap := make(map[string]providers.Provider)
	for _, jc := range cfg.ToJudgeConfigs(exp.ID) {
		if err := st.PutJudgeConfig(jc); err != nil {
			return err
		}
		if !jc.Active {
			continue
		}
		p, err := buildProvider(jc.Provider, jc.Model, cfg.Judges[jc.ID].APIKey, "")
		if err != nil {
			return fmt.Errorf("judge %s: %w", jc.ID, err)
		}
		judgeMap[jc.ID] = p
	}

	var refinerProvider providers.Provider
	if cfg.Refiner.Provider != "" {
		refinerProvider, err = buildProvider(cfg.Refiner.Provider, cfg.Refiner.Model, cfg.Refiner.APIKey, "")
		if err != nil {
			return fmt.Errorf("refiner: %w", err)
		}
	}

	bus := eventbus.New()
	if r.Listen != "" {
		serveEvents(r.Listen, bus, st)
	}

	concurrency := r.Concurrency
	if cfg.Run.Concurrency > 0 {
		concurrency = cfg.Run.Concurrency
	}

	m := &metrics.Metrics{}
	run := runner.New(runner.Config{
		Store:           st,
		Providers:       provMap,
		JudgeProviders:  judgeMap,
		RefinerProvider: refinerProvider,
		Safety:          safety.New(exp.Safety, nil, nil),
		Publisher:       bus,
		Metrics:         m,
		DatasetID:       ds.ID,
		Concurrency:     concurrency,
	})
	locks := orchestrator.NewLockRegistry()
	orch := orchestrator.New(locks, run.Deps())

	ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
	defer cancel()

	credValid := r.validateCredentials(ctx, log, cfg, provMap)

	holder := "edison-" + uuid.NewString()[:8]
	if r.Resume {
		recovered, err := run.Recover(ctx, orch, locks, holder)
		if err != nil {
			return err
		}
		for _, rec := range recovered {
			log.Info("recovered iteration", "iteration", rec.IterationID, "action", rec.Action)
		}
	}

	currentPV := pv.ID
	stopReason := ""
	for {
		it, err := run.NextIteration(exp.ID, currentPV)
		if err != nil {
			return err
		}

		estimate, err := run.EstimateIterationCost(exp.ID)
		if err != nil {
			return err
		}
		spend, err := st.SpendSince(exp.ProjectID, time.Now().Add(-30*24*time.Hour))
		if err != nil {
			return err
		}
		gate := orchestrator.StartGate{
			SpendLast30dUSD:   spend,
			EstimatedCostUSD:  estimate,
			MaxBudgetUSD:      exp.StopRules.MaxBudgetUSD,
			SelectedProviders: providerTags,
			CredentialExists:  func(tag string) bool { return credValid[tag] },
			DatasetSize:       len(ds.Cases),
		}

		log.Info("starting iteration", "number", it.Number, "prompt_version", currentPV, "estimated_cost_usd", estimate)
		res, err := orch.Run(ctx, it, holder, gate)
		if err != nil {
			if edisonerr.Is(err, edisonerr.BudgetExceeded) {
				stopReason = "budget_exhausted"
				_ = st.SaveIteration(*it)
				break
			}
			return err
		}

		if it.Status != model.IterationReviewing {
			stopReason = it.StopReason
			if stopReason == "" {
				stopReason = string(it.Status)
			}
			break
		}

		// A suggestion awaits review.
		deltas, err := run.RecentDeltas(exp.ID)
		if err != nil {
			return err
		}
		spendNow, err := st.SpendSince(exp.ProjectID, time.Now().Add(-30*24*time.Hour))
		if err != nil {
			return err
		}
		decision := budget.CheckPostGate(budget.PostGateInput{
			IterationNumber:                it.Number,
			StopRules:                      exp.StopRules,
			SpendUSD:                       spendNow,
			RecentDeltas:                   deltas,
			RefinerProducedValidSuggestion: res.Suggestion != nil && res.Suggestion.Status == model.SuggestionPending,
		})

		if !r.AutoApprove {
			fmt.Printf("\nSuggestion %s awaits review:\n%s\n\nNote: %s\n", res.Suggestion.ID, res.Suggestion.DiffText, res.Suggestion.Note)
			stopReason = "awaiting_review"
			break
		}

		newPV, err := run.ApplyReview(model.Review{
			ID:           uuid.NewString(),
			SuggestionID: res.Suggestion.ID,
			Reviewer:     "auto-approve",
			Decision:     model.DecisionApprove,
			CreatedAt:    time.Now(),
		})
		if err != nil {
			return err
		}
		if err := orch.Conclude(it, decision); err != nil {
			return err
		}
		if err := st.SaveIteration(*it); err != nil {
			return err
		}
		if decision.Stop {
			stopReason = decision.Reason
			break
		}
		currentPV = newPV.ID
	}

	return r.report(st, exp, currentPV, stopReason)
}

func (r *RunCmd) report(st store.Store, exp model.Experiment, bestPV, stopReason string) error {
	iterations, err := st.ListIterations(exp.ID)
	if err != nil {
		return err
	}

	report := results.BuildReport(exp, iterations, bestPV, lastRanking(iterations))
	if report.StopReason == "" {
		report.StopReason = stopReason
	}

	switch r.Format {
	case "json", "jsonl":
		path := r.Output
		if path == "" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else if err := results.WriteReportJSON(path, report); err != nil {
			return err
		}
	default:
		printReportTable(report)
	}

	if r.HTML != "" {
		if err := results.WriteHTML(r.HTML, report); err != nil {
			return err
		}
		fmt.Printf("HTML report written to %s\n", r.HTML)
	}
	return nil
}

// lastRanking reconstructs the final per-model ranking from the most
// recent iteration that carries metrics.
func lastRanking(iterations []model.Iteration) []aggregator.ModelRanking {
	for i := len(iterations) - 1; i >= 0; i-- {
		m := iterations[i].Metrics
		if m == nil {
			continue
		}
		ranking := make([]aggregator.ModelRanking, 0, len(m.CompositeByModel))
		for modelID, composite := range m.CompositeByModel {
			ranking = append(ranking, aggregator.ModelRanking{
				ModelID:   modelID,
				Composite: composite,
				CI:        m.CIByModel[modelID],
			})
		}
		sort.Slice(ranking, func(a, b int) bool { return ranking[a].Composite > ranking[b].Composite })
		return ranking
	}
	return nil
}

func printReportTable(report results.Report) {
	fmt.Println("\nExperiment Report")
	fmt.Println("=================")
	fmt.Printf("Objective:        %s\n", report.Objective)
	fmt.Printf("Iterations run:   %d\n", report.IterationsRun)
	fmt.Printf("Best composite:   %.2f\n", report.CompositeScore)
	fmt.Printf("Best prompt:      %s\n", report.BestPromptVersionID)
	fmt.Printf("Total cost:       $%.4f\n", report.TotalCostUSD)
	fmt.Printf("Total tokens:     %d\n", report.TotalTokens)
	fmt.Printf("Stop reason:      %s\n", report.StopReason)
	if len(report.PerModelRanking) > 0 {
		fmt.Println("\nModel ranking:")
		for i, rank := range report.PerModelRanking {
			fmt.Printf("  %d. %-30s %.2f  [%.2f, %.2f]\n", i+1, rank.ModelID, rank.Composite, rank.CI.Lower, rank.CI.Upper)
		}
	}
	for _, rec := range report.Recommendations {
		fmt.Printf("\n* %s\n", rec)
	}
}

// buildProvider instantiates a registered adapter for one provider tag.
func buildProvider(tag, modelID, apiKey, region string) (providers.Provider, error) {
	name, err := resolveAdapterName(tag)
	if err != nil {
		return nil, err
	}
	cfg := registry.Config{"model": modelID}
	if apiKey != "" {
		cfg["api_key"] = apiKey
	}
	if region != "" {
		cfg["region"] = region
	}
	return providers.Create(name, cfg)
}

// materializeDataset loads cases from the configured JSONL path, or
// falls back to the inline cases.
func materializeDataset(cfg *config.Config, projectID string) (model.Dataset, error) {
	if cfg.Dataset.Path == "" {
		return cfg.ToDataset(projectID), nil
	}

	file, err := os.Open(cfg.Dataset.Path)
	if err != nil {
		return model.Dataset{}, fmt.Errorf("open dataset: %w", err)
	}
	defer file.Close()

	ds := model.Dataset{ID: uuid.NewString(), ProjectID: projectID, Kind: model.DatasetGolden}
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var c config.CaseConfig
		if err := json.Unmarshal(scanner.Bytes(), &c); err != nil {
			return model.Dataset{}, fmt.Errorf("dataset line %d: %w", line, err)
		}
		difficulty := c.Difficulty
		if difficulty == 0 {
			difficulty = 3
		}
		ds.Cases = append(ds.Cases, model.Case{
			ID:             uuid.NewString(),
			DatasetID:      ds.ID,
			Input:          c.Input,
			ExpectedOutput: c.Expected,
			Tags:           c.Tags,
			Difficulty:     difficulty,
		})
	}
	if err := scanner.Err(); err != nil {
		return model.Dataset{}, err
	}
	return ds, nil
}

// validateCredentials probes each provider's credential once at
// startup, consulting the on-disk validation cache so an unchanged
// credential is not re-probed on every run. A rotated key hashes
// differently and forces a fresh probe. Returns validity keyed by
// provider tag, which the pre-iteration gate consults.
func (r *RunCmd) validateCredentials(ctx context.Context, log *slog.Logger, cfg *config.Config, provMap map[string]providers.Provider) map[string]bool {
	credValid := make(map[string]bool)
	if r.SkipValidation {
		for _, mc := range cfg.Models {
			credValid[mc.Provider] = true
		}
		return credValid
	}

	vcache := registry.NewValidationCache(validationCachePath())
	if err := vcache.Load(); err != nil {
		log.Warn("could not load validation cache", "error", err)
	}

	for id, p := range provMap {
		mc := cfg.Models[id]
		hash := registry.ConfigHash(mc.Provider, mc.Model, mc.APIKey)
		if vcache.IsCurrent("providers", p.Name(), hash) {
			rec, _ := vcache.Get("providers", p.Name())
			credValid[mc.Provider] = credValid[mc.Provider] || rec.Valid
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := p.ValidateModel(probeCtx)
		cancel()

		rec := registry.ValidationRecord{Name: p.Name(), Valid: err == nil, ConfigHash: hash, CheckedAt: time.Now()}
		if err != nil {
			rec.Error = err.Error()
			log.Warn("credential probe failed", "provider", p.Name(), "error", err)
		}
		vcache.Set("providers", p.Name(), rec)
		credValid[mc.Provider] = credValid[mc.Provider] || rec.Valid
	}

	if err := vcache.Save(); err != nil {
		log.Warn("could not save validation cache", "error", err)
	}
	return credValid
}

// serveEvents exposes the SSE progress stream on addr in the
// background. Snapshots replay the persisted iteration and run state so
// new subscribers converge without polling.
func serveEvents(addr string, bus *eventbus.Bus, st store.Store) {
	log := logging.ForComponent("eventbus")
	snapshot := func(iterationID string) eventbus.Event {
		payload := map[string]any{}
		if snap, err := st.IterationSnapshot(iterationID); err == nil {
			payload["iteration"] = snap.Iteration
			payload["runs"] = snap.Runs
		}
		return eventbus.Event{IterationID: iterationID, Type: "snapshot", Payload: payload, Timestamp: time.Now()}
	}

	mux := http.NewServeMux()
	mux.Handle("/events", eventbus.Handler(bus, snapshot))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("event stream server stopped", "error", err)
		}
	}()
	log.Info("serving progress events", "addr", addr, "path", "/events?iteration_id=<id>")
}
