package normalization

import (
	"context"

	"mediamix-lab/internal/storage"
)

// NormalizationEngine defines the main normalization interface.
type NormalizationEngine interface {
	// NormalizeChannel processes a single channel and generates spend series
	// for every supported period size.
	NormalizeChannel(ctx context.Context, channelID string) error

	// NormalizeMetric processes a single outcome metric and generates outcome
	// series for every supported period size.
	NormalizeMetric(ctx context.Context, metric string) error
}

// Runner implements NormalizationEngine.
type Runner struct {
	spendRecordStore       storage.SpendRecordStore
	outcomeRecordStore     storage.OutcomeRecordStore
	spendTimeseriesStore   storage.SpendTimeseriesStore
	outcomeTimeseriesStore storage.OutcomeTimeseriesStore
}

// NewRunner creates a new normalization runner.
func NewRunner(
	spendRecords storage.SpendRecordStore,
	outcomeRecords storage.OutcomeRecordStore,
	spendTS storage.SpendTimeseriesStore,
	outcomeTS storage.OutcomeTimeseriesStore,
) *Runner {
	return &Runner{
		spendRecordStore:       spendRecords,
		outcomeRecordStore:     outcomeRecords,
		spendTimeseriesStore:   spendTS,
		outcomeTimeseriesStore: outcomeTS,
	}
}
