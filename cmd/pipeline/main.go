// Package main provides the E2E pipeline entry point.
// Executes: normalization → fit → contributions → aggregates → projections → reporting
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mediamix-lab/internal/orchestrator"
	"mediamix-lab/internal/pipeline"
	"mediamix-lab/internal/replay"
	"mediamix-lab/internal/storage"
	"mediamix-lab/internal/storage/memory"
	"mediamix-lab/internal/verification"
)

func main() {
	// Parse flags
	outputDir := flag.String("output-dir", "docs", "Output directory for generated files")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Printf("\nReceived signal %v, cancelling pipeline...\n", sig)
		cancel()
	}()

	// Create all memory stores
	stores := createAllMemoryStores()

	// Load fixture channels and raw records; everything downstream is
	// recomputed by the orchestrator
	if err := loadFixtureData(ctx, stores); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading fixtures: %v\n", err)
		os.Exit(1)
	}

	// Phases 1-6: normalization → fit → contributions → aggregates → projections
	fmt.Println("=== E2E Pipeline ===")
	orch := orchestrator.New(orchestrator.Options{
		ChannelStore:           stores.channelStore,
		SpendRecordStore:       stores.spendRecordStore,
		OutcomeRecordStore:     stores.outcomeRecordStore,
		SpendTimeseriesStore:   stores.spendTimeseriesStore,
		OutcomeTimeseriesStore: stores.outcomeTimeseriesStore,
		ModelRunStore:          stores.modelRunStore,
		TransformedStore:       stores.transformedStore,
		ContributionStore:      stores.contributionStore,
		AggregateStore:         stores.aggregateStore,
		ProjectionStore:        stores.projectionStore,
		Fitter:                 pipeline.FixtureFitter(),
		Verbose:                *verbose,
	})

	result, err := orch.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Orchestrator error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Orchestrator completed:\n")
	fmt.Printf("  Channels: %d\n", result.ChannelsProcessed)
	fmt.Printf("  Run: %s\n", result.RunID)
	fmt.Printf("  Contribution points: %d\n", result.ContributionPoints)
	fmt.Printf("  Aggregates: %d\n", result.AggregatesCreated)
	fmt.Printf("  Projections: %d\n", result.ProjectionsCreated)
	if len(result.Errors) > 0 {
		fmt.Printf("  Errors: %d\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}

	// Replay the stored run from raw records to prove the fit is
	// reproducible before reporting on it
	fmt.Println("\n=== Replay Check ===")
	replayRunner := replay.NewRunner(replay.RunnerOptions{
		ModelRunStore:      stores.modelRunStore,
		SpendRecordStore:   stores.spendRecordStore,
		OutcomeRecordStore: stores.outcomeRecordStore,
		TransformedStore:   stores.transformedStore,
	})
	replayResult, err := replayRunner.ReplayRun(ctx, result.RunID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Replay error: %v\n", err)
		os.Exit(1)
	}
	if replayResult.Match {
		fmt.Printf("Run %s replays clean (%d points checked)\n", result.RunID, replayResult.PointsChecked)
	} else {
		fmt.Printf("Run %s DIVERGED (%d divergences)\n", result.RunID, len(replayResult.Divergences))
		for _, d := range replayResult.Divergences {
			fmt.Printf("  - %s: stored=%v rebuilt=%v\n", d.Field, d.Stored, d.Rebuilt)
		}
	}

	// Reporting
	fmt.Println("\n=== Reporting ===")

	verifier := verification.NewVerifier(verification.VerifierOptions{
		RunStore:          stores.modelRunStore,
		SpendStore:        stores.spendTimeseriesStore,
		OutcomeStore:      stores.outcomeTimeseriesStore,
		TransformedStore:  stores.transformedStore,
		ContributionStore: stores.contributionStore,
		AggregateStore:    stores.aggregateStore,
	})

	// Fixed clock for deterministic output
	fixedTime := time.Date(2024, 2, 2, 12, 0, 0, 0, time.UTC)
	p := pipeline.NewReportPipeline(pipeline.PipelineOptions{
		ChannelStore:           stores.channelStore,
		ModelRunStore:          stores.modelRunStore,
		AggregateStore:         stores.aggregateStore,
		ProjectionStore:        stores.projectionStore,
		SpendTimeseriesStore:   stores.spendTimeseriesStore,
		OutcomeTimeseriesStore: stores.outcomeTimeseriesStore,
		Fitter:                 pipeline.FixtureFitter(),
		HoldoutFraction:        0.25,
		OutputDir:              *outputDir,
	}).WithClock(func() time.Time { return fixedTime }).WithVerifier(verifier)

	// Run reporting pipeline on the freshly fitted run
	gate, err := p.Run(ctx, result.RunID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Pipeline error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Decision gate: %s\n", gate.Decision)

	fmt.Println("\nE2E Pipeline completed successfully:")
	fmt.Printf("  - %s/MEDIA_MIX_REPORT.md\n", *outputDir)
	fmt.Printf("  - %s/channel_metrics.csv\n", *outputDir)
	fmt.Printf("  - %s/scenario_projections.csv\n", *outputDir)
	fmt.Printf("  - %s/DECISION_GATE_REPORT.md\n", *outputDir)
}

// allStores holds all memory stores.
type allStores struct {
	channelStore           storage.ChannelStore
	spendRecordStore       storage.SpendRecordStore
	outcomeRecordStore     storage.OutcomeRecordStore
	spendTimeseriesStore   storage.SpendTimeseriesStore
	outcomeTimeseriesStore storage.OutcomeTimeseriesStore
	modelRunStore          storage.ModelRunStore
	transformedStore       storage.TransformedTimeseriesStore
	contributionStore      storage.ContributionTimeseriesStore
	aggregateStore         storage.ChannelAggregateStore
	projectionStore        storage.ScenarioProjectionStore
}

// createAllMemoryStores creates all required memory stores.
func createAllMemoryStores() *allStores {
	return &allStores{
		channelStore:           memory.NewChannelStore(),
		spendRecordStore:       memory.NewSpendRecordStore(),
		outcomeRecordStore:     memory.NewOutcomeRecordStore(),
		spendTimeseriesStore:   memory.NewSpendTimeseriesStore(),
		outcomeTimeseriesStore: memory.NewOutcomeTimeseriesStore(),
		modelRunStore:          memory.NewModelRunStore(),
		transformedStore:       memory.NewTransformedTimeseriesStore(),
		contributionStore:      memory.NewContributionTimeseriesStore(),
		aggregateStore:         memory.NewChannelAggregateStore(),
		projectionStore:        memory.NewScenarioProjectionStore(),
	}
}

// loadFixtureData loads fixture channels and raw records.
func loadFixtureData(ctx context.Context, stores *allStores) error {
	if err := pipeline.LoadRawRecords(ctx, pipeline.RawRecordStores{
		ChannelStore:       stores.channelStore,
		SpendRecordStore:   stores.spendRecordStore,
		OutcomeRecordStore: stores.outcomeRecordStore,
	}); err != nil {
		return fmt.Errorf("load raw records: %w", err)
	}
	return nil
}
