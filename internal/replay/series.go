package replay

import (
	"context"
	"fmt"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/normalization"
	"mediamix-lab/internal/storage"
)

// SeriesReplay rebuilds normalized period series from raw records and
// diffs them against the stored series points. It checks the aggregation
// layer on its own, below any model run: a divergence here means the
// stored series no longer reflects the records it was generated from.
type SeriesReplay struct {
	spendRecords   storage.SpendRecordStore
	outcomeRecords storage.OutcomeRecordStore
	spendSeries    storage.SpendTimeseriesStore
	outcomeSeries  storage.OutcomeTimeseriesStore
}

// NewSeriesReplay creates a series replay over the given stores.
func NewSeriesReplay(
	spendRecords storage.SpendRecordStore,
	outcomeRecords storage.OutcomeRecordStore,
	spendSeries storage.SpendTimeseriesStore,
	outcomeSeries storage.OutcomeTimeseriesStore,
) *SeriesReplay {
	return &SeriesReplay{
		spendRecords:   spendRecords,
		outcomeRecords: outcomeRecords,
		spendSeries:    spendSeries,
		outcomeSeries:  outcomeSeries,
	}
}

// SeriesResult contains the result of replaying one stored series.
type SeriesResult struct {
	// Subject is the channel ID for spend series, the metric name for
	// outcome series.
	Subject       string
	PeriodSeconds int
	Match         bool
	StoredPoints  int
	RebuiltPoints int
	Divergences   []Divergence
}

// ReplayChannel rebuilds one channel's spend series at one period size
// and compares it with the stored points. An empty channel with no stored
// points replays clean.
func (s *SeriesReplay) ReplayChannel(ctx context.Context, channelID string, periodSeconds int) (*SeriesResult, error) {
	records, err := s.spendRecords.GetByChannelID(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("load spend records for %s: %w", channelID, err)
	}
	normalization.SortSpendRecords(records)
	rebuilt := normalization.GenerateSpendTimeseries(records, periodSeconds)

	stored, err := s.spendSeries.GetByChannelID(ctx, channelID, periodSeconds)
	if err != nil {
		return nil, fmt.Errorf("load spend series for %s: %w", channelID, err)
	}

	divergences := compareSpendPoints(stored, rebuilt)
	return &SeriesResult{
		Subject:       channelID,
		PeriodSeconds: periodSeconds,
		Match:         len(divergences) == 0,
		StoredPoints:  len(stored),
		RebuiltPoints: len(rebuilt),
		Divergences:   divergences,
	}, nil
}

// ReplayMetric rebuilds one metric's outcome series at one period size
// and compares it with the stored points.
func (s *SeriesReplay) ReplayMetric(ctx context.Context, metric string, periodSeconds int) (*SeriesResult, error) {
	records, err := s.outcomeRecords.GetByMetric(ctx, metric)
	if err != nil {
		return nil, fmt.Errorf("load outcome records for %s: %w", metric, err)
	}
	normalization.SortOutcomeRecords(records)
	rebuilt := normalization.GenerateOutcomeTimeseries(records, periodSeconds)

	stored, err := s.outcomeSeries.GetByMetric(ctx, metric, periodSeconds)
	if err != nil {
		return nil, fmt.Errorf("load outcome series for %s: %w", metric, err)
	}

	divergences := compareOutcomePoints(stored, rebuilt)
	return &SeriesResult{
		Subject:       metric,
		PeriodSeconds: periodSeconds,
		Match:         len(divergences) == 0,
		StoredPoints:  len(stored),
		RebuiltPoints: len(rebuilt),
		Divergences:   divergences,
	}, nil
}

func compareSpendPoints(stored, rebuilt []*domain.SpendTimeseriesPoint) []Divergence {
	var divergences []Divergence

	index := make(map[int64]*domain.SpendTimeseriesPoint, len(rebuilt))
	for _, p := range rebuilt {
		index[p.PeriodStart] = p
	}

	seen := make(map[int64]bool, len(stored))
	for _, sp := range stored {
		seen[sp.PeriodStart] = true

		rp, ok := index[sp.PeriodStart]
		if !ok {
			divergences = append(divergences, Divergence{
				Field:       "Point",
				ChannelID:   sp.ChannelID,
				PeriodStart: sp.PeriodStart,
				Stored:      "present",
				Rebuilt:     "absent",
			})
			continue
		}
		if !floatEquals(sp.Spend, rp.Spend) {
			divergences = append(divergences, Divergence{
				Field:       "Spend",
				ChannelID:   sp.ChannelID,
				PeriodStart: sp.PeriodStart,
				Stored:      sp.Spend,
				Rebuilt:     rp.Spend,
			})
		}
		if !floatEquals(sp.Impressions, rp.Impressions) {
			divergences = append(divergences, Divergence{
				Field:       "Impressions",
				ChannelID:   sp.ChannelID,
				PeriodStart: sp.PeriodStart,
				Stored:      sp.Impressions,
				Rebuilt:     rp.Impressions,
			})
		}
		if sp.RecordCount != rp.RecordCount {
			divergences = append(divergences, Divergence{
				Field:       "RecordCount",
				ChannelID:   sp.ChannelID,
				PeriodStart: sp.PeriodStart,
				Stored:      sp.RecordCount,
				Rebuilt:     rp.RecordCount,
			})
		}
	}

	for _, rp := range rebuilt {
		if !seen[rp.PeriodStart] {
			divergences = append(divergences, Divergence{
				Field:       "Point",
				ChannelID:   rp.ChannelID,
				PeriodStart: rp.PeriodStart,
				Stored:      "absent",
				Rebuilt:     "present",
			})
		}
	}

	return divergences
}

func compareOutcomePoints(stored, rebuilt []*domain.OutcomeTimeseriesPoint) []Divergence {
	var divergences []Divergence

	index := make(map[int64]*domain.OutcomeTimeseriesPoint, len(rebuilt))
	for _, p := range rebuilt {
		index[p.PeriodStart] = p
	}

	seen := make(map[int64]bool, len(stored))
	for _, sp := range stored {
		seen[sp.PeriodStart] = true

		rp, ok := index[sp.PeriodStart]
		if !ok {
			divergences = append(divergences, Divergence{
				Field:       "Point",
				PeriodStart: sp.PeriodStart,
				Stored:      "present",
				Rebuilt:     "absent",
			})
			continue
		}
		if !floatEquals(sp.Value, rp.Value) {
			divergences = append(divergences, Divergence{
				Field:       "Value",
				PeriodStart: sp.PeriodStart,
				Stored:      sp.Value,
				Rebuilt:     rp.Value,
			})
		}
		if sp.RecordCount != rp.RecordCount {
			divergences = append(divergences, Divergence{
				Field:       "RecordCount",
				PeriodStart: sp.PeriodStart,
				Stored:      sp.RecordCount,
				Rebuilt:     rp.RecordCount,
			})
		}
	}

	for _, rp := range rebuilt {
		if !seen[rp.PeriodStart] {
			divergences = append(divergences, Divergence{
				Field:       "Point",
				PeriodStart: rp.PeriodStart,
				Stored:      "absent",
				Rebuilt:     "present",
			})
		}
	}

	return divergences
}
