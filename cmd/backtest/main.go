package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"mediamix-lab/internal/backtest"
	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/fit"
	"mediamix-lab/internal/pipeline"
	"mediamix-lab/internal/storage"
	chstore "mediamix-lab/internal/storage/clickhouse"
	"mediamix-lab/internal/storage/memory"
	pgstore "mediamix-lab/internal/storage/postgres"
)

func main() {
	// Parse flags
	metric := flag.String("metric", domain.MetricConversions, "Outcome metric to fit against")
	period := flag.String("period", "day", "Aggregation period: day or week")
	channelList := flag.String("channels", "", "Comma-separated channel IDs (default: all registered channels)")

	// Fitter parameters
	fitterType := flag.String("fitter", domain.FitterGridSearch, "Fitter: GRID_SEARCH or COORDINATE_DESCENT")
	adstockLength := flag.Int("adstock-length", 4, "Adstock window length in periods")
	maxRounds := flag.Int("max-rounds", 20, "Refinement rounds (COORDINATE_DESCENT)")
	tolerance := flag.Float64("tolerance", 0, "Convergence tolerance (COORDINATE_DESCENT, 0 for default)")
	holdout := flag.Float64("holdout", backtest.DefaultHoldoutFraction, "Trailing holdout fraction")

	// Storage
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string")
	useFixtures := flag.Bool("use-fixtures", false, "Backtest the in-memory fixture dataset")

	// Output
	outputJSON := flag.Bool("json", false, "Output as JSON")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stderr, "[backtest] ", log.LstdFlags)

	// Normalize fitter type
	*fitterType = strings.ToUpper(*fitterType)
	if *fitterType != domain.FitterGridSearch && *fitterType != domain.FitterCoordinateDescent {
		logger.Fatalf("Invalid fitter: %s. Must be GRID_SEARCH or COORDINATE_DESCENT", *fitterType)
	}

	periodSeconds, err := parsePeriod(*period)
	if err != nil {
		logger.Fatal(err)
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
	var channelStore storage.ChannelStore
	var spendStore storage.SpendTimeseriesStore
	var outcomeStore storage.OutcomeTimeseriesStore

	if *useFixtures {
		channelStore, spendStore, outcomeStore, err = seedFixtureStores(ctx)
		if err != nil {
			logger.Fatalf("seed fixtures: %v", err)
		}
	} else {
		// Require DSNs when not using fixtures
		if *postgresDSN == "" {
			logger.Fatal("--postgres-dsn is required when not using --use-fixtures (channel registry)")
		}
		if *clickhouseDSN == "" {
			logger.Fatal("--clickhouse-dsn is required when not using --use-fixtures (spend/outcome series)")
		}

		// PostgreSQL for the channel registry
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatalf("connect to postgres: %v", err)
		}
		defer pool.Close()

		channelStore = pgstore.NewChannelStore(pool)

		// ClickHouse for normalized series
		conn, err := chstore.NewConn(ctx, *clickhouseDSN)
		if err != nil {
			logger.Fatalf("connect to clickhouse: %v", err)
		}
		defer conn.Close()

		spendStore = chstore.NewSpendTimeseriesStore(conn)
		outcomeStore = chstore.NewOutcomeTimeseriesStore(conn)
	}

	// Resolve the channel set
	var channelIDs []string
	if *channelList != "" {
		for _, id := range strings.Split(*channelList, ",") {
			if id = strings.TrimSpace(id); id != "" {
				channelIDs = append(channelIDs, id)
			}
		}
	} else {
		channels, err := channelStore.GetAll(ctx)
		if err != nil {
			logger.Fatalf("list channels: %v", err)
		}
		for _, ch := range channels {
			channelIDs = append(channelIDs, ch.ChannelID)
		}
		sort.Strings(channelIDs)
	}
	if len(channelIDs) == 0 {
		logger.Fatal("no channels to backtest")
	}

	// Build fitter
	fitter, err := buildFitter(*fitterType, *adstockLength, *maxRounds, *tolerance)
	if err != nil {
		logger.Fatal(err)
	}

	// Run backtest
	logger.Printf("Running backtest: metric=%s period=%s fitter=%s channels=%d",
		*metric, *period, fitter.ID(), len(channelIDs))

	runner := backtest.NewRunner(spendStore, outcomeStore, *holdout)
	results, err := runner.Run(ctx, *metric, periodSeconds, channelIDs, fitter)
	if err != nil {
		logger.Fatalf("backtest failed: %v", err)
	}

	// Output result
	if *outputJSON {
		output, _ := json.MarshalIndent(resultsJSON(results), "", "  ")
		fmt.Println(string(output))
	} else {
		printResults(results, *period)
	}
}

// buildFitter creates a fitter from CLI flags.
func buildFitter(fitterType string, adstockLength, maxRounds int, tolerance float64) (fit.Fitter, error) {
	cfg := domain.FitterConfig{
		FitterType:    fitterType,
		AdstockLength: &adstockLength,
		MaxRounds:     &maxRounds,
	}
	if tolerance > 0 {
		cfg.Tolerance = &tolerance
	}
	return fit.FromConfig(cfg)
}

// parsePeriod maps a period name to its length in seconds.
func parsePeriod(period string) (int, error) {
	switch period {
	case "day":
		return domain.PeriodDay, nil
	case "week":
		return domain.PeriodWeek, nil
	default:
		return 0, fmt.Errorf("unknown period %q (want day or week)", period)
	}
}

// seedFixtureStores creates memory stores holding the fixture dataset.
func seedFixtureStores(ctx context.Context) (storage.ChannelStore, storage.SpendTimeseriesStore, storage.OutcomeTimeseriesStore, error) {
	channels := memory.NewChannelStore()
	spend := memory.NewSpendTimeseriesStore()
	outcome := memory.NewOutcomeTimeseriesStore()

	_, err := pipeline.LoadFixtures(ctx, pipeline.FixtureStores{
		ChannelStore:      channels,
		ModelRunStore:     memory.NewModelRunStore(),
		SpendStore:        spend,
		OutcomeStore:      outcome,
		TransformedStore:  memory.NewTransformedTimeseriesStore(),
		ContributionStore: memory.NewContributionTimeseriesStore(),
		AggregateStore:    memory.NewChannelAggregateStore(),
		ProjectionStore:   memory.NewScenarioProjectionStore(),
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return channels, spend, outcome, nil
}

// printResults outputs a human-readable backtest summary.
func printResults(r *backtest.Results, period string) {
	fmt.Println()
	fmt.Println("=== Backtest Result ===")
	fmt.Printf("Fitter:           %s\n", r.FitterID)
	fmt.Printf("Metric:           %s\n", r.Metric)
	fmt.Printf("Period:           %s\n", period)
	fmt.Printf("Total Periods:    %d\n", r.TotalPeriods)
	fmt.Printf("Train Periods:    %d\n", r.TrainPeriods)
	fmt.Printf("Holdout Periods:  %d\n", r.HoldoutPeriods)
	fmt.Println()

	fmt.Println("Train:")
	fmt.Printf("  R-Squared:      %.4f\n", r.TrainRSquared)
	fmt.Printf("  MAPE:           %.2f%%\n", r.TrainMAPE*100)
	fmt.Println()

	fmt.Println("Holdout:")
	fmt.Printf("  R-Squared:      %.4f\n", r.HoldoutRSquared)
	fmt.Printf("  MAPE:           %.2f%%\n", r.HoldoutMAPE*100)
	fmt.Printf("  Degradation:    %.2f\n", r.DegradationRatio)

	if r.TrainResult != nil {
		fmt.Println()
		fmt.Println("Fitted Model (train window):")
		fmt.Printf("  Intercept:      %.4f\n", r.TrainResult.Intercept)
		for _, ch := range r.TrainResult.Channels {
			p := ch.Params
			fmt.Printf("  %s: beta=%.4f adstock(length=%d peak=%.1f decay=%.2f) hill(half_sat=%.2f slope=%.2f)\n",
				p.ChannelID, p.Beta,
				p.Adstock.Length, p.Adstock.Peak, p.Adstock.Decay,
				p.Saturation.HalfSat, p.Saturation.Slope)
		}
	}
}

// backtestJSON is the JSON shape for backtest output.
type backtestJSON struct {
	FitterID         string           `json:"fitter_id"`
	Metric           string           `json:"metric"`
	PeriodSeconds    int              `json:"period_seconds"`
	TotalPeriods     int              `json:"total_periods"`
	TrainPeriods     int              `json:"train_periods"`
	HoldoutPeriods   int              `json:"holdout_periods"`
	TrainRSquared    float64          `json:"train_r_squared"`
	TrainMAPE        float64          `json:"train_mape"`
	HoldoutRSquared  float64          `json:"holdout_r_squared"`
	HoldoutMAPE      float64          `json:"holdout_mape"`
	DegradationRatio float64          `json:"degradation_ratio"`
	Intercept        float64          `json:"intercept"`
	Channels         []channelFitJSON `json:"channels"`
}

type channelFitJSON struct {
	ChannelID     string  `json:"channel_id"`
	Beta          float64 `json:"beta"`
	AdstockLength int     `json:"adstock_length"`
	AdstockPeak   float64 `json:"adstock_peak"`
	AdstockDecay  float64 `json:"adstock_decay"`
	HalfSat       float64 `json:"half_sat"`
	Slope         float64 `json:"slope"`
}

func resultsJSON(r *backtest.Results) backtestJSON {
	out := backtestJSON{
		FitterID:         r.FitterID,
		Metric:           r.Metric,
		PeriodSeconds:    r.PeriodSeconds,
		TotalPeriods:     r.TotalPeriods,
		TrainPeriods:     r.TrainPeriods,
		HoldoutPeriods:   r.HoldoutPeriods,
		TrainRSquared:    r.TrainRSquared,
		TrainMAPE:        r.TrainMAPE,
		HoldoutRSquared:  r.HoldoutRSquared,
		HoldoutMAPE:      r.HoldoutMAPE,
		DegradationRatio: r.DegradationRatio,
	}
	if r.TrainResult != nil {
		out.Intercept = r.TrainResult.Intercept
		for _, ch := range r.TrainResult.Channels {
			p := ch.Params
			out.Channels = append(out.Channels, channelFitJSON{
				ChannelID:     p.ChannelID,
				Beta:          p.Beta,
				AdstockLength: p.Adstock.Length,
				AdstockPeak:   p.Adstock.Peak,
				AdstockDecay:  p.Adstock.Decay,
				HalfSat:       p.Saturation.HalfSat,
				Slope:         p.Saturation.Slope,
			})
		}
	}
	return out
}
