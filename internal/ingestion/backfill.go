package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/feed"
	"mediamix-lab/internal/storage"
)

// Backfiller handles historical data ingestion from the feed export API.
type Backfiller struct {
	status        feed.ExportClient
	spendSource   SpendSource
	outcomeSource OutcomeSource
	spendStore    storage.SpendRecordStore
	outcomeStore  storage.OutcomeRecordStore
	registrar     *channelRegistrar
	sourceID      string
	batchSize     int
	logger        *log.Logger
}

// BackfillOptions contains configuration for creating a Backfiller.
type BackfillOptions struct {
	// Status resolves the available export range. Required for BackfillAvailable.
	Status        feed.ExportClient
	SpendSource   SpendSource
	OutcomeSource OutcomeSource
	SpendStore    storage.SpendRecordStore
	OutcomeStore  storage.OutcomeRecordStore
	ChannelStore  storage.ChannelStore
	ProgressStore storage.IngestProgressStore

	// SourceID prefixes backfill batch IDs. Default: "backfill".
	SourceID  string
	BatchSize int
	Logger    *log.Logger
}

// NewBackfiller creates a new historical data backfiller.
func NewBackfiller(opts BackfillOptions) *Backfiller {
	sourceID := opts.SourceID
	if sourceID == "" {
		sourceID = "backfill"
	}

	batchSize := opts.BatchSize
	if batchSize == 0 {
		batchSize = 1000
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Backfiller{
		status:        opts.Status,
		spendSource:   opts.SpendSource,
		outcomeSource: opts.OutcomeSource,
		spendStore:    opts.SpendStore,
		outcomeStore:  opts.OutcomeStore,
		registrar:     newChannelRegistrar(opts.ChannelStore, opts.ProgressStore, domain.SourceStreamFeed),
		sourceID:      sourceID,
		batchSize:     batchSize,
		logger:        logger,
	}
}

// BackfillResult contains statistics from a backfill operation.
type BackfillResult struct {
	SpendRecordsIngested   int
	OutcomeRecordsIngested int
	ChannelsRegistered     int
	DuplicatesSkipped      int
	Errors                 int
	Duration               time.Duration
}

// BackfillSince backfills data from a given timestamp until now.
func (b *Backfiller) BackfillSince(ctx context.Context, since time.Time) (*BackfillResult, error) {
	to := time.Now()
	return b.BackfillRange(ctx, since, to)
}

// BackfillRange backfills data for a specific time range.
func (b *Backfiller) BackfillRange(ctx context.Context, from, to time.Time) (*BackfillResult, error) {
	start := time.Now()
	result := &BackfillResult{}

	fromMs := from.UnixMilli()
	toMs := to.UnixMilli()
	batchID := fmt.Sprintf("%s-%d-%d", b.sourceID, fromMs, toMs)

	if err := b.registrar.Warm(ctx); err != nil {
		return result, err
	}

	b.logger.Printf("Starting backfill from %s to %s", from.Format(time.RFC3339), to.Format(time.RFC3339))

	// Fetch spend events
	if b.spendSource != nil {
		events, err := b.spendSource.Fetch(ctx, fromMs, toMs)
		if err != nil {
			return result, fmt.Errorf("fetch spend events: %w", err)
		}

		b.logger.Printf("Fetched %d spend events", len(events))

		records, registered, err := b.buildSpendRecords(ctx, batchID, events)
		if err != nil {
			return result, err
		}
		result.ChannelsRegistered += registered

		stored, dupes, errs := b.storeSpendRecords(ctx, records)
		result.SpendRecordsIngested += stored
		result.DuplicatesSkipped += dupes
		result.Errors += errs
	}

	// Fetch outcome events (if configured)
	if b.outcomeSource != nil && b.outcomeStore != nil {
		events, err := b.outcomeSource.Fetch(ctx, fromMs, toMs)
		if err != nil {
			b.logger.Printf("Error fetching outcome events: %v", err)
		} else {
			b.logger.Printf("Fetched %d outcome events", len(events))

			records := buildOutcomeRecords(batchID, events)

			stored, dupes, errs := b.storeOutcomeRecords(ctx, records)
			result.OutcomeRecordsIngested += stored
			result.DuplicatesSkipped += dupes
			result.Errors += errs
		}
	}

	result.Duration = time.Since(start)
	b.logger.Printf("Backfill complete: %d spend, %d outcomes, %d channels, %d dupes, %d errors in %v",
		result.SpendRecordsIngested, result.OutcomeRecordsIngested, result.ChannelsRegistered,
		result.DuplicatesSkipped, result.Errors, result.Duration)

	return result, nil
}

// BackfillAvailable backfills the entire range the export API reports as available.
func (b *Backfiller) BackfillAvailable(ctx context.Context) (*BackfillResult, error) {
	if b.status == nil {
		return nil, errors.New("no export client configured for status lookup")
	}

	status, err := b.status.FetchStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch export status: %w", err)
	}

	if status.EarliestPeriodStart == 0 || status.LatestPeriodStart == 0 {
		return nil, fmt.Errorf("export reports no available range")
	}

	from := time.UnixMilli(status.EarliestPeriodStart)
	to := time.UnixMilli(status.LatestPeriodStart)

	return b.BackfillRange(ctx, from, to)
}

// buildSpendRecords sorts spend events, registers channels, and assigns record indexes.
func (b *Backfiller) buildSpendRecords(ctx context.Context, batchID string, events []feed.SpendEvent) ([]*domain.SpendRecord, int, error) {
	SortSpendEvents(events)

	now := time.Now().UnixMilli()
	registered := 0
	records := make([]*domain.SpendRecord, 0, len(events))
	for _, ev := range events {
		if err := validateSpendEvent(ev); err != nil {
			b.logger.Printf("SKIP invalid spend event: %v", err)
			continue
		}

		channelID, created, err := b.registrar.Register(ctx, ev.Channel, ev.Medium, ev.PeriodStart)
		if err != nil {
			return nil, registered, fmt.Errorf("register channel %s/%s: %w", ev.Channel, ev.Medium, err)
		}
		if created {
			b.logger.Printf("Channel registered: %s (%s) id=%s", ev.Channel, NormalizeMedium(ev.Medium), channelID)
			registered++
		}

		records = append(records, &domain.SpendRecord{
			ChannelID:   channelID,
			BatchID:     batchID,
			RecordIndex: len(records),
			PeriodStart: ev.PeriodStart,
			Spend:       ev.Spend,
			Impressions: ev.Impressions,
			CreatedAt:   now,
		})
	}

	return records, registered, nil
}

// buildOutcomeRecords sorts outcome events and assigns record indexes.
func buildOutcomeRecords(batchID string, events []feed.OutcomeEvent) []*domain.OutcomeRecord {
	SortOutcomeEvents(events)

	now := time.Now().UnixMilli()
	records := make([]*domain.OutcomeRecord, 0, len(events))
	for _, ev := range events {
		metric := ev.Metric
		if metric == "" {
			metric = domain.MetricConversions
		}

		records = append(records, &domain.OutcomeRecord{
			Metric:      metric,
			BatchID:     batchID,
			RecordIndex: len(records),
			PeriodStart: ev.PeriodStart,
			Value:       ev.Value,
			CreatedAt:   now,
		})
	}

	return records
}

// storeSpendRecords stores spend records in batches, handling duplicates.
func (b *Backfiller) storeSpendRecords(ctx context.Context, records []*domain.SpendRecord) (stored, dupes, errs int) {
	if b.spendStore == nil {
		return 0, 0, 0
	}

	for i := 0; i < len(records); i += b.batchSize {
		end := i + b.batchSize
		if end > len(records) {
			end = len(records)
		}

		batch := records[i:end]
		err := b.spendStore.InsertBulk(ctx, batch)
		if err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				// Insert one by one to find which are duplicates
				for _, record := range batch {
					if err := b.spendStore.Insert(ctx, record); err != nil {
						if errors.Is(err, storage.ErrDuplicateKey) {
							dupes++
						} else {
							errs++
						}
					} else {
						stored++
					}
				}
			} else {
				errs += len(batch)
				b.logger.Printf("Error storing spend batch: %v", err)
			}
		} else {
			stored += len(batch)
		}
	}

	return stored, dupes, errs
}

// storeOutcomeRecords stores outcome records in batches, handling duplicates.
func (b *Backfiller) storeOutcomeRecords(ctx context.Context, records []*domain.OutcomeRecord) (stored, dupes, errs int) {
	if b.outcomeStore == nil {
		return 0, 0, 0
	}

	for i := 0; i < len(records); i += b.batchSize {
		end := i + b.batchSize
		if end > len(records) {
			end = len(records)
		}

		batch := records[i:end]
		err := b.outcomeStore.InsertBulk(ctx, batch)
		if err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				// Insert one by one to find which are duplicates
				for _, record := range batch {
					if err := b.outcomeStore.Insert(ctx, record); err != nil {
						if errors.Is(err, storage.ErrDuplicateKey) {
							dupes++
						} else {
							errs++
						}
					} else {
						stored++
					}
				}
			} else {
				errs += len(batch)
				b.logger.Printf("Error storing outcome batch: %v", err)
			}
		} else {
			stored += len(batch)
		}
	}

	return stored, dupes, errs
}
