// Package main provides the unified server that runs all components together:
// - Ingestion (continuous): WebSocket spend/outcome feed
// - Pipeline (scheduled): normalization → fit → contributions → projections
// - Reporting (scheduled): MEDIA_MIX_REPORT.md, CSVs, DECISION_GATE
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/feed"
	"mediamix-lab/internal/fit"
	"mediamix-lab/internal/ingestion"
	"mediamix-lab/internal/observability"
	"mediamix-lab/internal/orchestrator"
	"mediamix-lab/internal/pipeline"
	"mediamix-lab/internal/storage"
	chstore "mediamix-lab/internal/storage/clickhouse"
	"mediamix-lab/internal/storage/memory"
	"mediamix-lab/internal/storage/migrations"
	pgstore "mediamix-lab/internal/storage/postgres"
	"mediamix-lab/internal/verification"
)

// Server holds all components of the unified service.
type Server struct {
	// Configuration
	feedWS           string
	postgresDSN      string
	clickhouseDSN    string
	useMemory        bool
	metric           string
	periodSeconds    int
	fitter           fit.Fitter
	holdoutFraction  float64
	outputDir        string
	pipelineInterval time.Duration
	reportInterval   time.Duration

	// Stores
	stores *allStores

	// Components
	ingestionRunner *ingestion.Runner
	logger          *log.Logger

	// State
	mu               sync.Mutex
	lastPipelineRun  time.Time
	lastReportRun    time.Time
	pipelineRunning  bool
	reportRunning    bool
	ingestionStarted time.Time
	lastRunID        string
	lastDecision     string

	// Stats
	pipelineRuns int
	reportRuns   int
}

// allStores holds all storage implementations.
type allStores struct {
	channelStore           storage.ChannelStore
	spendRecordStore       storage.SpendRecordStore
	outcomeRecordStore     storage.OutcomeRecordStore
	progressStore          storage.IngestProgressStore
	spendTimeseriesStore   storage.SpendTimeseriesStore
	outcomeTimeseriesStore storage.OutcomeTimeseriesStore
	modelRunStore          storage.ModelRunStore
	transformedStore       storage.TransformedTimeseriesStore
	contributionStore      storage.ContributionTimeseriesStore
	aggregateStore         storage.ChannelAggregateStore
	projectionStore        storage.ScenarioProjectionStore
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	feedWS := flag.String("feed-ws", os.Getenv("FEED_WS_ENDPOINT"), "Spend/outcome feed WebSocket endpoint")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	metric := flag.String("metric", domain.MetricConversions, "Outcome metric to model")
	period := flag.String("period", "day", "Aggregation period: day or week")
	fitterType := flag.String("fitter", domain.FitterGridSearch, "Fitter: GRID_SEARCH or COORDINATE_DESCENT")
	adstockLength := flag.Int("adstock-length", 4, "Adstock window length in periods")
	maxRounds := flag.Int("max-rounds", 20, "Refinement rounds (COORDINATE_DESCENT)")
	tolerance := flag.Float64("tolerance", 0, "Convergence tolerance (COORDINATE_DESCENT, 0 for default)")
	holdout := flag.Float64("holdout", 0.25, "Trailing holdout fraction for report backtests")
	outputDir := flag.String("output-dir", "output", "Output directory for reports")
	pipelineInterval := flag.Duration("pipeline-interval", 1*time.Hour, "Pipeline run interval")
	reportInterval := flag.Duration("report-interval", 6*time.Hour, "Report generation interval")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of databases")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if *feedWS == "" {
		logger.Fatal("--feed-ws is required")
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	periodSeconds, err := parsePeriod(*period)
	if err != nil {
		logger.Fatal(err)
	}

	fitter, err := buildFitter(strings.ToUpper(*fitterType), *adstockLength, *maxRounds, *tolerance)
	if err != nil {
		logger.Fatal(err)
	}
	logger.Printf("Modeling %s at %s granularity with fitter %s", *metric, *period, fitter.ID())

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Create stores, running migrations first in database mode
	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory, logger)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Create server
	server := &Server{
		feedWS:           *feedWS,
		postgresDSN:      *postgresDSN,
		clickhouseDSN:    *clickhouseDSN,
		useMemory:        *useMemory,
		metric:           *metric,
		periodSeconds:    periodSeconds,
		fitter:           fitter,
		holdoutFraction:  *holdout,
		outputDir:        *outputDir,
		pipelineInterval: *pipelineInterval,
		reportInterval:   *reportInterval,
		stores:           stores,
		logger:           logger,
	}

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Start HTTP server
	go server.startHTTPServer(*metricsAddr)

	// Run the unified server
	err = server.Run(ctx)
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createStores creates all required stores. In database mode schema
// migrations run before any store is handed out.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool, logger *log.Logger) (*allStores, func(), error) {
	if useMemory {
		stores := &allStores{
			channelStore:           memory.NewChannelStore(),
			spendRecordStore:       memory.NewSpendRecordStore(),
			outcomeRecordStore:     memory.NewOutcomeRecordStore(),
			progressStore:          memory.NewIngestProgressStore(),
			spendTimeseriesStore:   memory.NewSpendTimeseriesStore(),
			outcomeTimeseriesStore: memory.NewOutcomeTimeseriesStore(),
			modelRunStore:          memory.NewModelRunStore(),
			transformedStore:       memory.NewTransformedTimeseriesStore(),
			contributionStore:      memory.NewContributionTimeseriesStore(),
			aggregateStore:         memory.NewChannelAggregateStore(),
			projectionStore:        memory.NewScenarioProjectionStore(),
		}
		return stores, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}
	logger.Println("PostgreSQL migrations applied")

	// ClickHouse (the migration runner hands back the live connection)
	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	logger.Println("ClickHouse migrations applied")

	stores := &allStores{
		// PostgreSQL stores (identity, raw records, run metadata)
		channelStore:       pgstore.NewChannelStore(pool),
		spendRecordStore:   pgstore.NewSpendRecordStore(pool),
		outcomeRecordStore: pgstore.NewOutcomeRecordStore(pool),
		progressStore:      pgstore.NewIngestProgressStore(pool),
		modelRunStore:      pgstore.NewModelRunStore(pool),
		projectionStore:    pgstore.NewScenarioProjectionStore(pool),

		// ClickHouse stores (series and aggregates)
		spendTimeseriesStore:   chstore.NewSpendTimeseriesStore(chConn),
		outcomeTimeseriesStore: chstore.NewOutcomeTimeseriesStore(chConn),
		transformedStore:       chstore.NewTransformedTimeseriesStore(chConn),
		contributionStore:      chstore.NewContributionTimeseriesStore(chConn),
		aggregateStore:         chstore.NewChannelAggregateStore(chConn),
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}

	return stores, cleanup, nil
}

// Run starts the unified server with all components.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Println("Starting unified server...")

	// Create error channel for goroutines
	errCh := make(chan error, 3)

	// Start ingestion in background
	go func() {
		err := s.runIngestion(ctx)
		if err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("ingestion: %w", err)
		}
	}()

	// Start pipeline scheduler in background
	go func() {
		err := s.runPipelineScheduler(ctx)
		if err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("pipeline scheduler: %w", err)
		}
	}()

	// Start report scheduler in background
	go func() {
		err := s.runReportScheduler(ctx)
		if err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("report scheduler: %w", err)
		}
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// runIngestion runs continuous feed ingestion.
func (s *Server) runIngestion(ctx context.Context) error {
	s.logger.Println("Starting ingestion...")

	ws, err := feed.NewWSClient(ctx, s.feedWS, nil)
	if err != nil {
		return fmt.Errorf("create websocket client: %w", err)
	}
	defer ws.Close()

	source := ingestion.NewWSStreamSource(ws, []string{feed.StreamSpend, feed.StreamOutcome})

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		StreamSource:  source,
		SpendStore:    s.stores.spendRecordStore,
		OutcomeStore:  s.stores.outcomeRecordStore,
		ChannelStore:  s.stores.channelStore,
		ProgressStore: s.stores.progressStore,
		Logger:        log.New(os.Stdout, "[ingestion] ", log.LstdFlags|log.Lshortfile),
	})

	s.mu.Lock()
	s.ingestionRunner = runner
	s.ingestionStarted = time.Now()
	s.mu.Unlock()

	s.logger.Println("Ingestion started")
	return runner.Run(ctx)
}

// runPipelineScheduler runs the fit pipeline on schedule.
func (s *Server) runPipelineScheduler(ctx context.Context) error {
	s.logger.Printf("Starting pipeline scheduler (interval: %v)...", s.pipelineInterval)

	// Run immediately on start
	s.runPipeline(ctx)

	ticker := time.NewTicker(s.pipelineInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runPipeline(ctx)
		}
	}
}

// runPipeline executes the processing pipeline.
func (s *Server) runPipeline(ctx context.Context) {
	s.mu.Lock()
	if s.pipelineRunning {
		s.mu.Unlock()
		s.logger.Println("Pipeline already running, skipping...")
		return
	}
	s.pipelineRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.pipelineRunning = false
		s.lastPipelineRun = time.Now()
		s.pipelineRuns++
		s.mu.Unlock()
	}()

	s.logger.Println("Running pipeline...")
	start := time.Now()

	// Create orchestrator
	orch := orchestrator.New(orchestrator.Options{
		ChannelStore:           s.stores.channelStore,
		SpendRecordStore:       s.stores.spendRecordStore,
		OutcomeRecordStore:     s.stores.outcomeRecordStore,
		SpendTimeseriesStore:   s.stores.spendTimeseriesStore,
		OutcomeTimeseriesStore: s.stores.outcomeTimeseriesStore,
		ModelRunStore:          s.stores.modelRunStore,
		TransformedStore:       s.stores.transformedStore,
		ContributionStore:      s.stores.contributionStore,
		AggregateStore:         s.stores.aggregateStore,
		ProjectionStore:        s.stores.projectionStore,
		Fitter:                 s.fitter,
		Metric:                 s.metric,
		PeriodSeconds:          s.periodSeconds,
	})

	result, err := orch.Run(ctx)
	if err != nil {
		s.logger.Printf("Pipeline error: %v", err)
		observability.RecordPipelineRun("orchestrator", "error", time.Since(start).Seconds())
		return
	}

	s.logger.Printf("Pipeline completed in %v: run %s, %d channels, %d contribution points, %d aggregates, %d projections",
		time.Since(start), result.RunID, result.ChannelsProcessed,
		result.ContributionPoints, result.AggregatesCreated, result.ProjectionsCreated)
	for _, msg := range result.Errors {
		s.logger.Printf("Pipeline warning: %s", msg)
	}

	s.mu.Lock()
	s.lastRunID = result.RunID
	s.mu.Unlock()

	observability.RecordPipelineRun("orchestrator", "success", time.Since(start).Seconds())
}

// runReportScheduler runs report generation on schedule.
func (s *Server) runReportScheduler(ctx context.Context) error {
	s.logger.Printf("Starting report scheduler (interval: %v)...", s.reportInterval)

	// Wait for first pipeline run before generating reports
	time.Sleep(s.pipelineInterval + 1*time.Minute)

	// Run immediately after first pipeline
	s.runReport(ctx)

	ticker := time.NewTicker(s.reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runReport(ctx)
		}
	}
}

// runReport generates reports for the latest model run.
func (s *Server) runReport(ctx context.Context) {
	s.mu.Lock()
	if s.reportRunning {
		s.mu.Unlock()
		s.logger.Println("Report generation already running, skipping...")
		return
	}
	// Wait for pipeline to finish
	if s.pipelineRunning {
		s.mu.Unlock()
		s.logger.Println("Pipeline running, waiting before report generation...")
		time.Sleep(30 * time.Second)
		s.mu.Lock()
	}
	s.reportRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.reportRunning = false
		s.lastReportRun = time.Now()
		s.reportRuns++
		s.mu.Unlock()
	}()

	s.logger.Println("Generating reports...")
	start := time.Now()

	// Cross-store invariant checks degrade the decision when they fail
	verifier := verification.NewVerifier(verification.VerifierOptions{
		RunStore:          s.stores.modelRunStore,
		SpendStore:        s.stores.spendTimeseriesStore,
		OutcomeStore:      s.stores.outcomeTimeseriesStore,
		TransformedStore:  s.stores.transformedStore,
		ContributionStore: s.stores.contributionStore,
		AggregateStore:    s.stores.aggregateStore,
	})

	p := pipeline.NewReportPipeline(pipeline.PipelineOptions{
		ChannelStore:           s.stores.channelStore,
		ModelRunStore:          s.stores.modelRunStore,
		AggregateStore:         s.stores.aggregateStore,
		ProjectionStore:        s.stores.projectionStore,
		SpendTimeseriesStore:   s.stores.spendTimeseriesStore,
		OutcomeTimeseriesStore: s.stores.outcomeTimeseriesStore,
		Fitter:                 s.fitter,
		HoldoutFraction:        s.holdoutFraction,
		OutputDir:              s.outputDir,
	}).WithVerifier(verifier)

	gate, err := p.RunLatest(ctx, s.metric, s.periodSeconds)
	if err != nil {
		s.logger.Printf("Report generation error: %v", err)
		return
	}

	s.mu.Lock()
	s.lastDecision = string(gate.Decision)
	s.mu.Unlock()

	s.logger.Printf("Reports generated in %v to %s/ (decision: %s)", time.Since(start), s.outputDir, gate.Decision)
}

// startHTTPServer starts the HTTP server for health/metrics/status.
func (s *Server) startHTTPServer(addr string) {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler())

	// Status endpoint
	mux.HandleFunc("/status", s.handleStatus)

	s.logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		s.logger.Printf("HTTP server error: %v", err)
	}
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status           string    `json:"status"`
	Uptime           string    `json:"uptime"`
	IngestionStarted time.Time `json:"ingestion_started"`
	LastPipelineRun  time.Time `json:"last_pipeline_run,omitempty"`
	LastReportRun    time.Time `json:"last_report_run,omitempty"`
	LastRunID        string    `json:"last_run_id,omitempty"`
	LastDecision     string    `json:"last_decision,omitempty"`
	PipelineRuns     int       `json:"pipeline_runs"`
	ReportRuns       int       `json:"report_runs"`
	PipelineRunning  bool      `json:"pipeline_running"`
	ReportRunning    bool      `json:"report_running"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := StatusResponse{
		Status:           "running",
		Uptime:           time.Since(s.ingestionStarted).String(),
		IngestionStarted: s.ingestionStarted,
		LastPipelineRun:  s.lastPipelineRun,
		LastReportRun:    s.lastReportRun,
		LastRunID:        s.lastRunID,
		LastDecision:     s.lastDecision,
		PipelineRuns:     s.pipelineRuns,
		ReportRuns:       s.reportRuns,
		PipelineRunning:  s.pipelineRunning,
		ReportRunning:    s.reportRunning,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
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

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
