package ingestion

import (
	"context"
	"fmt"
	"time"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/feed"
	"mediamix-lab/internal/storage"
)

// Manager orchestrates batch ingestion from sources to storage.
// It enforces deterministic ordering and uses storage layer for duplicate rejection.
type Manager struct {
	spendSource   SpendSource
	outcomeSource OutcomeSource

	spendStore   storage.SpendRecordStore
	outcomeStore storage.OutcomeRecordStore

	registrar *channelRegistrar
}

// ManagerOptions contains configuration for creating a Manager.
type ManagerOptions struct {
	SpendSource   SpendSource
	OutcomeSource OutcomeSource

	SpendStore   storage.SpendRecordStore
	OutcomeStore storage.OutcomeRecordStore

	// ChannelStore receives auto-registered channels for spend events.
	ChannelStore storage.ChannelStore

	// ProgressStore persists the seen-channel set. Optional.
	ProgressStore storage.IngestProgressStore

	// Source tags registered channels. Defaults to FILE_IMPORT.
	Source domain.Source
}

// NewManager creates a new ingestion manager with the provided sources and stores.
func NewManager(opts ManagerOptions) *Manager {
	source := opts.Source
	if source == "" {
		source = domain.SourceFileImport
	}

	return &Manager{
		spendSource:   opts.SpendSource,
		outcomeSource: opts.OutcomeSource,
		spendStore:    opts.SpendStore,
		outcomeStore:  opts.OutcomeStore,
		registrar:     newChannelRegistrar(opts.ChannelStore, opts.ProgressStore, source),
	}
}

// IngestSpend fetches spend events from source and stores them under batchID.
// Events are sorted by (period_start, channel, medium) and record indexes are
// assigned in that order, so re-running the same batch produces identical rows.
// Returns count of ingested records and any error.
// Duplicates are rejected by the storage layer (ErrDuplicateKey).
func (m *Manager) IngestSpend(ctx context.Context, batchID string, from, to int64) (int, error) {
	if m.spendSource == nil || m.spendStore == nil {
		return 0, nil
	}

	events, err := m.spendSource.Fetch(ctx, from, to)
	if err != nil {
		return 0, err
	}

	if len(events) == 0 {
		return 0, nil
	}

	// Enforce deterministic ordering before index assignment
	SortSpendEvents(events)

	now := time.Now().UnixMilli()
	records := make([]*domain.SpendRecord, len(events))
	for i, ev := range events {
		if err := validateSpendEvent(ev); err != nil {
			return 0, fmt.Errorf("batch %s record %d: %w", batchID, i, err)
		}

		channelID, _, err := m.registrar.Register(ctx, ev.Channel, ev.Medium, ev.PeriodStart)
		if err != nil {
			return 0, fmt.Errorf("register channel %s/%s: %w", ev.Channel, ev.Medium, err)
		}

		records[i] = &domain.SpendRecord{
			ChannelID:   channelID,
			BatchID:     batchID,
			RecordIndex: i,
			PeriodStart: ev.PeriodStart,
			Spend:       ev.Spend,
			Impressions: ev.Impressions,
			CreatedAt:   now,
		}
	}

	// Store via bulk insert - storage layer handles duplicates
	if err := m.spendStore.InsertBulk(ctx, records); err != nil {
		return 0, err
	}

	return len(records), nil
}

// IngestOutcomes fetches outcome events from source and stores them under batchID.
// Events are sorted by (period_start, metric) and record indexes are assigned
// in that order. Returns count of ingested records and any error.
func (m *Manager) IngestOutcomes(ctx context.Context, batchID string, from, to int64) (int, error) {
	if m.outcomeSource == nil || m.outcomeStore == nil {
		return 0, nil
	}

	events, err := m.outcomeSource.Fetch(ctx, from, to)
	if err != nil {
		return 0, err
	}

	if len(events) == 0 {
		return 0, nil
	}

	// Enforce deterministic ordering before index assignment
	SortOutcomeEvents(events)

	now := time.Now().UnixMilli()
	records := make([]*domain.OutcomeRecord, len(events))
	for i, ev := range events {
		if err := validateOutcomeEvent(ev); err != nil {
			return 0, fmt.Errorf("batch %s record %d: %w", batchID, i, err)
		}

		metric := ev.Metric
		if metric == "" {
			metric = domain.MetricConversions
		}

		records[i] = &domain.OutcomeRecord{
			Metric:      metric,
			BatchID:     batchID,
			RecordIndex: i,
			PeriodStart: ev.PeriodStart,
			Value:       ev.Value,
			CreatedAt:   now,
		}
	}

	// Store via bulk insert - storage layer handles duplicates
	if err := m.outcomeStore.InsertBulk(ctx, records); err != nil {
		return 0, err
	}

	return len(records), nil
}

// WarmChannelCache preloads the seen-channel set from persisted progress.
// Optional; Register tolerates duplicate channel inserts either way.
func (m *Manager) WarmChannelCache(ctx context.Context) error {
	return m.registrar.Warm(ctx)
}

func validateSpendEvent(ev feed.SpendEvent) error {
	if ev.Channel == "" {
		return fmt.Errorf("%w: empty channel name", storage.ErrInvalidInput)
	}
	if ev.PeriodStart <= 0 {
		return fmt.Errorf("%w: period_start must be positive", storage.ErrInvalidInput)
	}
	if ev.Spend < 0 {
		return fmt.Errorf("%w: negative spend", storage.ErrInvalidInput)
	}
	if ev.Impressions < 0 {
		return fmt.Errorf("%w: negative impressions", storage.ErrInvalidInput)
	}
	return nil
}

func validateOutcomeEvent(ev feed.OutcomeEvent) error {
	if ev.PeriodStart <= 0 {
		return fmt.Errorf("%w: period_start must be positive", storage.ErrInvalidInput)
	}
	if ev.Value < 0 {
		return fmt.Errorf("%w: negative outcome value", storage.ErrInvalidInput)
	}
	return nil
}
