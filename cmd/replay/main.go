package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"mediamix-lab/internal/pipeline"
	"mediamix-lab/internal/replay"
	"mediamix-lab/internal/storage"
	chstore "mediamix-lab/internal/storage/clickhouse"
	"mediamix-lab/internal/storage/memory"
	pgstore "mediamix-lab/internal/storage/postgres"
)

func main() {
	// Parse flags
	runID := flag.String("run-id", "", "Model run to replay (default: every stored run)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string")
	useFixtures := flag.Bool("use-fixtures", false, "Replay the in-memory fixture dataset")
	outputJSON := flag.Bool("json", false, "Output as JSON")

	flag.Parse()

	// Setup structured logger
	logger := log.New(os.Stderr, "[replay] ", log.LstdFlags)

	// Validate required flags
	if !*useFixtures && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (or pass --use-fixtures)")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	// Create stores
	var stores *replayStores
	var err error
	if *useFixtures {
		stores, err = seedFixtureStores(ctx)
		if err != nil {
			logger.Fatalf("seed fixtures: %v", err)
		}
	} else {
		stores, err = openDatabaseStores(ctx, *postgresDSN, *clickhouseDSN)
		if err != nil {
			logger.Fatalf("open stores: %v", err)
		}
	}
	defer stores.close()

	runner := replay.NewRunner(replay.RunnerOptions{
		ModelRunStore:      stores.runs,
		SpendRecordStore:   stores.spendRecords,
		OutcomeRecordStore: stores.outcomeRecords,
		TransformedStore:   stores.transformed,
	})

	var divergent bool
	if *runID != "" {
		divergent, err = replaySingleRun(ctx, logger, runner, stores, *runID, *outputJSON)
	} else {
		divergent, err = replayAllRuns(ctx, logger, runner, *outputJSON)
	}
	if err != nil {
		logger.Fatalf("replay failed: %v", err)
	}
	if divergent {
		os.Exit(1)
	}
}

// replaySingleRun replays one model run and, below it, the stored series
// the run was fitted on. The two layers separate a drifted aggregation
// from a tampered fit artifact.
func replaySingleRun(ctx context.Context, logger *log.Logger, runner *replay.Runner, stores *replayStores, runID string, outputJSON bool) (bool, error) {
	logger.Printf("Replaying run %s", runID)

	result, err := runner.ReplayRun(ctx, runID)
	if err != nil {
		return false, err
	}

	run, err := stores.runs.GetByID(ctx, runID)
	if err != nil {
		return false, fmt.Errorf("load run %s: %w", runID, err)
	}

	// Series layer: the run's channels plus its outcome metric
	series := replay.NewSeriesReplay(stores.spendRecords, stores.outcomeRecords, stores.spendSeries, stores.outcomeSeries)
	spendResults := make([]*replay.SeriesResult, 0, len(run.Channels))
	for _, ch := range run.Channels {
		sr, err := series.ReplayChannel(ctx, ch.ChannelID, run.PeriodSeconds)
		if err != nil {
			return false, fmt.Errorf("replay channel %s: %w", ch.ChannelID, err)
		}
		spendResults = append(spendResults, sr)
	}
	outcomeResult, err := series.ReplayMetric(ctx, run.Metric, run.PeriodSeconds)
	if err != nil {
		return false, fmt.Errorf("replay metric %s: %w", run.Metric, err)
	}

	divergent := !result.Match || !outcomeResult.Match
	for _, s := range spendResults {
		if !s.Match {
			divergent = true
		}
	}

	if outputJSON {
		out := singleRunOutput{Run: runSummaryFrom(result)}
		for _, s := range spendResults {
			out.Series = append(out.Series, seriesSummaryFrom(s))
		}
		out.Series = append(out.Series, seriesSummaryFrom(outcomeResult))
		printJSON(out)
		return divergent, nil
	}

	fmt.Printf("\n=== Replay Summary ===\n")
	fmt.Printf("Run ID:              %s\n", result.RunID)
	fmt.Printf("Stored Fingerprint:  %s\n", result.StoredFingerprint)
	fmt.Printf("Rebuilt Fingerprint: %s\n", result.RebuiltFingerprint)
	fmt.Printf("Points Checked:      %d\n", result.PointsChecked)
	fmt.Printf("Result:              %s\n", verdict(result.Match))
	printDivergences(result.Divergences)

	fmt.Printf("\n=== Series Replay ===\n")
	for _, s := range spendResults {
		fmt.Printf("Spend series %-16s %s (%d stored / %d rebuilt points)\n",
			s.Subject+":", verdict(s.Match), s.StoredPoints, s.RebuiltPoints)
		printDivergences(s.Divergences)
	}
	fmt.Printf("Outcome series %-14s %s (%d stored / %d rebuilt points)\n",
		outcomeResult.Subject+":", verdict(outcomeResult.Match), outcomeResult.StoredPoints, outcomeResult.RebuiltPoints)
	printDivergences(outcomeResult.Divergences)

	return divergent, nil
}

// replayAllRuns replays every stored model run.
func replayAllRuns(ctx context.Context, logger *log.Logger, runner *replay.Runner, outputJSON bool) (bool, error) {
	logger.Print("Replaying all stored runs")

	report, err := runner.ReplayAll(ctx)
	if err != nil {
		return false, err
	}

	if outputJSON {
		out := reportOutput{
			TotalRuns:     report.TotalRuns,
			MatchedRuns:   report.MatchedRuns,
			DivergentRuns: report.DivergentRuns,
		}
		for i := range report.Results {
			out.Runs = append(out.Runs, runSummaryFrom(&report.Results[i]))
		}
		printJSON(out)
		return report.DivergentRuns > 0, nil
	}

	fmt.Printf("\n=== Replay Summary ===\n")
	fmt.Printf("Total Runs:     %d\n", report.TotalRuns)
	fmt.Printf("Matched Runs:   %d\n", report.MatchedRuns)
	fmt.Printf("Divergent Runs: %d\n", report.DivergentRuns)
	for i := range report.Results {
		r := &report.Results[i]
		fmt.Printf("\nRun %s: %s (%d points checked)\n", r.RunID, verdict(r.Match), r.PointsChecked)
		printDivergences(r.Divergences)
	}

	return report.DivergentRuns > 0, nil
}

func verdict(match bool) string {
	if match {
		return "MATCH"
	}
	return "DIVERGED"
}

func printDivergences(divs []replay.Divergence) {
	for _, d := range divs {
		loc := ""
		if d.ChannelID != "" {
			loc = " " + d.ChannelID
		}
		if d.PeriodStart != 0 {
			loc = fmt.Sprintf("%s@%d", loc, d.PeriodStart)
		}
		fmt.Printf("  - %s%s: stored=%v rebuilt=%v\n", d.Field, loc, d.Stored, d.Rebuilt)
	}
}

func printJSON(v interface{}) {
	output, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(output))
}

// runSummary is the JSON shape for one replayed run.
type runSummary struct {
	RunID              string           `json:"run_id"`
	Match              bool             `json:"match"`
	PointsChecked      int              `json:"points_checked"`
	StoredFingerprint  string           `json:"stored_fingerprint,omitempty"`
	RebuiltFingerprint string           `json:"rebuilt_fingerprint,omitempty"`
	Divergences        []divergenceJSON `json:"divergences,omitempty"`
}

type divergenceJSON struct {
	Field       string      `json:"field"`
	ChannelID   string      `json:"channel_id,omitempty"`
	PeriodStart int64       `json:"period_start,omitempty"`
	Stored      interface{} `json:"stored"`
	Rebuilt     interface{} `json:"rebuilt"`
}

type seriesSummary struct {
	Subject       string           `json:"subject"`
	PeriodSeconds int              `json:"period_seconds"`
	Match         bool             `json:"match"`
	StoredPoints  int              `json:"stored_points"`
	RebuiltPoints int              `json:"rebuilt_points"`
	Divergences   []divergenceJSON `json:"divergences,omitempty"`
}

type singleRunOutput struct {
	Run    runSummary      `json:"run"`
	Series []seriesSummary `json:"series"`
}

type reportOutput struct {
	TotalRuns     int          `json:"total_runs"`
	MatchedRuns   int          `json:"matched_runs"`
	DivergentRuns int          `json:"divergent_runs"`
	Runs          []runSummary `json:"runs"`
}

func runSummaryFrom(r *replay.RunResult) runSummary {
	return runSummary{
		RunID:              r.RunID,
		Match:              r.Match,
		PointsChecked:      r.PointsChecked,
		StoredFingerprint:  r.StoredFingerprint,
		RebuiltFingerprint: r.RebuiltFingerprint,
		Divergences:        divergencesJSON(r.Divergences),
	}
}

func seriesSummaryFrom(s *replay.SeriesResult) seriesSummary {
	return seriesSummary{
		Subject:       s.Subject,
		PeriodSeconds: s.PeriodSeconds,
		Match:         s.Match,
		StoredPoints:  s.StoredPoints,
		RebuiltPoints: s.RebuiltPoints,
		Divergences:   divergencesJSON(s.Divergences),
	}
}

func divergencesJSON(divs []replay.Divergence) []divergenceJSON {
	out := make([]divergenceJSON, 0, len(divs))
	for _, d := range divs {
		out = append(out, divergenceJSON{
			Field:       d.Field,
			ChannelID:   d.ChannelID,
			PeriodStart: d.PeriodStart,
			Stored:      d.Stored,
			Rebuilt:     d.Rebuilt,
		})
	}
	return out
}

// replayStores bundles the stores replay reads: raw records and run
// metadata from Postgres, derived series from ClickHouse.
type replayStores struct {
	runs           storage.ModelRunStore
	spendRecords   storage.SpendRecordStore
	outcomeRecords storage.OutcomeRecordStore
	transformed    storage.TransformedTimeseriesStore
	spendSeries    storage.SpendTimeseriesStore
	outcomeSeries  storage.OutcomeTimeseriesStore
	close          func()
}

// seedFixtureStores creates memory stores holding the fixture dataset,
// both the derived artifacts and the raw records they derive from.
func seedFixtureStores(ctx context.Context) (*replayStores, error) {
	stores := &replayStores{
		runs:           memory.NewModelRunStore(),
		spendRecords:   memory.NewSpendRecordStore(),
		outcomeRecords: memory.NewOutcomeRecordStore(),
		transformed:    memory.NewTransformedTimeseriesStore(),
		spendSeries:    memory.NewSpendTimeseriesStore(),
		outcomeSeries:  memory.NewOutcomeTimeseriesStore(),
		close:          func() {},
	}
	channels := memory.NewChannelStore()

	if _, err := pipeline.LoadFixtures(ctx, pipeline.FixtureStores{
		ChannelStore:      channels,
		ModelRunStore:     stores.runs,
		SpendStore:        stores.spendSeries,
		OutcomeStore:      stores.outcomeSeries,
		TransformedStore:  stores.transformed,
		ContributionStore: memory.NewContributionTimeseriesStore(),
		AggregateStore:    memory.NewChannelAggregateStore(),
		ProjectionStore:   memory.NewScenarioProjectionStore(),
	}); err != nil {
		return nil, err
	}
	if err := pipeline.LoadRawRecords(ctx, pipeline.RawRecordStores{
		ChannelStore:       channels,
		SpendRecordStore:   stores.spendRecords,
		OutcomeRecordStore: stores.outcomeRecords,
	}); err != nil {
		return nil, err
	}
	return stores, nil
}

// openDatabaseStores connects to PostgreSQL and ClickHouse.
func openDatabaseStores(ctx context.Context, postgresDSN, clickhouseDSN string) (*replayStores, error) {
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	conn, err := chstore.NewConn(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	return &replayStores{
		runs:           pgstore.NewModelRunStore(pool),
		spendRecords:   pgstore.NewSpendRecordStore(pool),
		outcomeRecords: pgstore.NewOutcomeRecordStore(pool),
		transformed:    chstore.NewTransformedTimeseriesStore(conn),
		spendSeries:    chstore.NewSpendTimeseriesStore(conn),
		outcomeSeries:  chstore.NewOutcomeTimeseriesStore(conn),
		close: func() {
			conn.Close()
			pool.Close()
		},
	}, nil
}
