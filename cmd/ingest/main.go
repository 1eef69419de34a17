package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mediamix-lab/internal/feed"
	"mediamix-lab/internal/ingestion"
	"mediamix-lab/internal/observability"
	"mediamix-lab/internal/storage"
	"mediamix-lab/internal/storage/memory"
	pgstore "mediamix-lab/internal/storage/postgres"
)

func main() {
	// Parse flags
	mode := flag.String("mode", "live", "Ingestion mode: live, backfill, or file")
	feedWS := flag.String("feed-ws", "", "Feed WebSocket endpoint")
	feedURL := flag.String("feed-url", "", "Feed export HTTP base URL")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	fromTime := flag.String("from-time", "", "Start time for backfill (RFC3339)")
	toTime := flag.String("to-time", "", "End time for backfill (RFC3339)")
	spendCSV := flag.String("spend-csv", "", "Spend CSV path for file mode")
	outcomeCSV := flag.String("outcome-csv", "", "Outcome CSV path for file mode")
	batchID := flag.String("batch-id", "", "Batch ID for file mode (default: derived from import time)")
	seqLag := flag.Int64("seq-lag", 0, "Batch sequences to buffer before applying (default 5)")
	flushInterval := flag.Duration("flush-interval", 0, "Forced buffer flush interval (default 5s)")
	batchSize := flag.Int("batch-size", 0, "Bulk insert chunk size for backfill (default 1000)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[ingest] ", log.LstdFlags|log.Lshortfile)

	// Start metrics server if enabled
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel to signal main goroutine completion
	done := make(chan error, 1)

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

	// Run based on mode
	var err error
	switch *mode {
	case "live":
		err = runLive(ctx, logger, *feedWS, *postgresDSN, *seqLag, *flushInterval, *useMemory)
	case "backfill":
		err = runBackfill(ctx, logger, *feedURL, *postgresDSN, *fromTime, *toTime, *batchSize, *useMemory)
	case "file":
		err = runFile(ctx, logger, *spendCSV, *outcomeCSV, *batchID, *postgresDSN, *useMemory)
	default:
		logger.Fatalf("Unknown mode: %s", *mode)
	}

	// Signal completion to shutdown handler
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// recordStores bundles the stores every ingestion mode writes to.
type recordStores struct {
	spend    storage.SpendRecordStore
	outcome  storage.OutcomeRecordStore
	channels storage.ChannelStore
	progress storage.IngestProgressStore
	close    func()
}

// openRecordStores connects record stores, in-memory or PostgreSQL.
// postgresDSN is required unless useMemory is set.
func openRecordStores(ctx context.Context, mode, postgresDSN string, useMemory bool) (*recordStores, error) {
	if useMemory {
		return &recordStores{
			spend:    memory.NewSpendRecordStore(),
			outcome:  memory.NewOutcomeRecordStore(),
			channels: memory.NewChannelStore(),
			progress: memory.NewIngestProgressStore(),
			close:    func() {},
		}, nil
	}

	if postgresDSN == "" {
		return nil, fmt.Errorf("--postgres-dsn is required for %s mode (use --use-memory for in-memory storage)", mode)
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return &recordStores{
		spend:    pgstore.NewSpendRecordStore(pool),
		outcome:  pgstore.NewOutcomeRecordStore(pool),
		channels: pgstore.NewChannelStore(pool),
		progress: pgstore.NewIngestProgressStore(pool),
		close:    pool.Close,
	}, nil
}

// runLive runs continuous ingestion from the streaming feed.
func runLive(ctx context.Context, logger *log.Logger, feedWS, postgresDSN string, seqLag int64, flushInterval time.Duration, useMemory bool) error {
	if feedWS == "" {
		return fmt.Errorf("--feed-ws is required for live mode")
	}

	ws, err := feed.NewWSClient(ctx, feedWS, nil)
	if err != nil {
		return fmt.Errorf("create websocket client: %w", err)
	}
	defer ws.Close()

	stores, err := openRecordStores(ctx, "live", postgresDSN, useMemory)
	if err != nil {
		return err
	}
	defer stores.close()

	source := ingestion.NewWSStreamSource(ws, []string{feed.StreamSpend, feed.StreamOutcome})

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		StreamSource:  source,
		SpendStore:    stores.spend,
		OutcomeStore:  stores.outcome,
		ChannelStore:  stores.channels,
		ProgressStore: stores.progress,
		SeqLagWindow:  seqLag,
		FlushInterval: flushInterval,
		Logger:        logger,
	})

	logger.Println("Starting live ingestion...")
	err = runner.Run(ctx)

	stats := runner.Stats()
	logger.Printf("Ingestion stopped: %d spend, %d outcome, %d channels, %d duplicates, %d replays, %d invalid",
		stats.SpendRecordsStored, stats.OutcomeRecordsStored, stats.ChannelsRegistered,
		stats.DuplicatesSkipped, stats.ReplaysSkipped, stats.InvalidEvents)

	return err
}

// runBackfill backfills historical data from the feed export endpoint.
func runBackfill(ctx context.Context, logger *log.Logger, feedURL, postgresDSN, fromTimeStr, toTimeStr string, batchSize int, useMemory bool) error {
	if feedURL == "" {
		return fmt.Errorf("--feed-url is required for backfill mode")
	}

	client := feed.NewHTTPClient(feedURL)

	stores, err := openRecordStores(ctx, "backfill", postgresDSN, useMemory)
	if err != nil {
		return err
	}
	defer stores.close()

	backfiller := ingestion.NewBackfiller(ingestion.BackfillOptions{
		Status:        client,
		SpendSource:   ingestion.NewExportSpendSource(client),
		OutcomeSource: ingestion.NewExportOutcomeSource(client),
		SpendStore:    stores.spend,
		OutcomeStore:  stores.outcome,
		ChannelStore:  stores.channels,
		ProgressStore: stores.progress,
		BatchSize:     batchSize,
		Logger:        logger,
	})

	// Determine time range
	var result *ingestion.BackfillResult

	if fromTimeStr != "" {
		from, err := time.Parse(time.RFC3339, fromTimeStr)
		if err != nil {
			return fmt.Errorf("parse from-time: %w", err)
		}

		to := time.Now()
		if toTimeStr != "" {
			to, err = time.Parse(time.RFC3339, toTimeStr)
			if err != nil {
				return fmt.Errorf("parse to-time: %w", err)
			}
		}

		result, err = backfiller.BackfillRange(ctx, from, to)
		if err != nil {
			return err
		}
	} else {
		// Default: whatever the export advertises
		logger.Println("No time range specified, backfilling the export's available range")
		result, err = backfiller.BackfillAvailable(ctx)
		if err != nil {
			return err
		}
	}

	logger.Printf("Backfill complete: %d spend, %d outcome, %d channels, %d duplicates, %d errors in %v",
		result.SpendRecordsIngested, result.OutcomeRecordsIngested, result.ChannelsRegistered,
		result.DuplicatesSkipped, result.Errors, result.Duration)

	return nil
}

// runFile imports spend and outcome CSV files from disk.
func runFile(ctx context.Context, logger *log.Logger, spendCSV, outcomeCSV, batchID, postgresDSN string, useMemory bool) error {
	if spendCSV == "" && outcomeCSV == "" {
		return fmt.Errorf("file mode needs --spend-csv or --outcome-csv")
	}

	stores, err := openRecordStores(ctx, "file", postgresDSN, useMemory)
	if err != nil {
		return err
	}
	defer stores.close()

	opts := ingestion.ManagerOptions{
		SpendStore:    stores.spend,
		OutcomeStore:  stores.outcome,
		ChannelStore:  stores.channels,
		ProgressStore: stores.progress,
	}
	if spendCSV != "" {
		opts.SpendSource = ingestion.NewFileSpendSource(spendCSV)
	}
	if outcomeCSV != "" {
		opts.OutcomeSource = ingestion.NewFileOutcomeSource(outcomeCSV)
	}

	manager := ingestion.NewManager(opts)
	if err := manager.WarmChannelCache(ctx); err != nil {
		return fmt.Errorf("warm channel cache: %w", err)
	}

	if batchID == "" {
		batchID = "file-" + time.Now().UTC().Format("20060102-150405")
	}
	logger.Printf("Importing batch %s", batchID)

	// Zero bounds import the whole file
	spendCount, err := manager.IngestSpend(ctx, batchID, 0, 0)
	if err != nil {
		return fmt.Errorf("ingest spend: %w", err)
	}
	outcomeCount, err := manager.IngestOutcomes(ctx, batchID, 0, 0)
	if err != nil {
		return fmt.Errorf("ingest outcomes: %w", err)
	}

	logger.Printf("Import complete: %d spend records, %d outcome records", spendCount, outcomeCount)

	return nil
}
