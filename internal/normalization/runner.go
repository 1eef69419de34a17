package normalization

import (
	"context"
)

// NormalizeChannel processes a single channel and generates spend series.
// Steps:
//  1. Load spend records from the store
//  2. Sort by (period_start, batch_id, record_index)
//  3. Generate spend_timeseries for all period sizes -> store
func (r *Runner) NormalizeChannel(ctx context.Context, channelID string) error {
	// 1. Load raw records
	records, err := r.spendRecordStore.GetByChannelID(ctx, channelID)
	if err != nil {
		return err
	}

	// 2. Sort by canonical order
	SortSpendRecords(records)

	// 3. Generate spend timeseries for all period sizes
	spendTS := GenerateAllSpendTimeseries(records)
	if len(spendTS) > 0 {
		if err := r.spendTimeseriesStore.InsertBulk(ctx, spendTS); err != nil {
			return err
		}
	}

	return nil
}

// NormalizeMetric processes a single outcome metric and generates outcome series.
// Steps:
//  1. Load outcome records from the store
//  2. Sort by (period_start, batch_id, record_index)
//  3. Generate outcome_timeseries for all period sizes -> store
func (r *Runner) NormalizeMetric(ctx context.Context, metric string) error {
	// 1. Load raw records
	records, err := r.outcomeRecordStore.GetByMetric(ctx, metric)
	if err != nil {
		return err
	}

	// 2. Sort by canonical order
	SortOutcomeRecords(records)

	// 3. Generate outcome timeseries for all period sizes
	outcomeTS := GenerateAllOutcomeTimeseries(records)
	if len(outcomeTS) > 0 {
		if err := r.outcomeTimeseriesStore.InsertBulk(ctx, outcomeTS); err != nil {
			return err
		}
	}

	return nil
}

// NormalizeBatch processes multiple channels and a set of outcome metrics.
func (r *Runner) NormalizeBatch(ctx context.Context, channelIDs []string, metrics []string) error {
	for _, channelID := range channelIDs {
		if err := r.NormalizeChannel(ctx, channelID); err != nil {
			return err
		}
	}
	for _, metric := range metrics {
		if err := r.NormalizeMetric(ctx, metric); err != nil {
			return err
		}
	}
	return nil
}
