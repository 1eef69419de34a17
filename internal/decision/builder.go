package decision

import (
	"context"
	"errors"
	"fmt"

	"mediamix-lab/internal/backtest"
	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
)

// Builder errors
var (
	// ErrMissingBacktest is returned when no backtest results are supplied.
	// The stability criterion and the holdout trigger cannot run without them.
	ErrMissingBacktest = errors.New("backtest results required for decision")

	// ErrNoAggregates is returned when contribution aggregates are missing
	// for the model run.
	ErrNoAggregates = errors.New("no channel aggregates stored for model run")
)

// Builder assembles DecisionInput for a stored model run.
type Builder struct {
	runStore               storage.ModelRunStore
	aggregateStore         storage.ChannelAggregateStore
	spendTimeseriesStore   storage.SpendTimeseriesStore
	outcomeTimeseriesStore storage.OutcomeTimeseriesStore
}

// BuilderOptions holds the stores a Builder reads from.
type BuilderOptions struct {
	ModelRunStore          storage.ModelRunStore
	AggregateStore         storage.ChannelAggregateStore
	SpendTimeseriesStore   storage.SpendTimeseriesStore
	OutcomeTimeseriesStore storage.OutcomeTimeseriesStore
}

// NewBuilder creates a decision input builder backed by the given stores.
func NewBuilder(opts BuilderOptions) *Builder {
	return &Builder{
		runStore:               opts.ModelRunStore,
		aggregateStore:         opts.AggregateStore,
		spendTimeseriesStore:   opts.SpendTimeseriesStore,
		outcomeTimeseriesStore: opts.OutcomeTimeseriesStore,
	}
}

// Build creates DecisionInput for a run from its stored fit, contribution
// aggregates and raw series plus the supplied backtest results.
//
// Steps:
//  1. Load the model run.
//  2. Index contribution shares by channel.
//  3. Collect per-channel effect and history facts.
//  4. Measure outcome coverage at the run cadence.
//  5. Assemble and validate the input.
func (b *Builder) Build(ctx context.Context, runID string, bt *backtest.Results) (*DecisionInput, error) {
	if bt == nil {
		return nil, ErrMissingBacktest
	}

	// 1. Load the model run.
	run, err := b.runStore.GetByID(ctx, runID)
	if err != nil {
		return nil, err // propagates storage.ErrNotFound
	}

	// 2. Index contribution shares by channel.
	aggregates, err := b.aggregateStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(aggregates) == 0 {
		return nil, ErrNoAggregates
	}
	shareByChannel := make(map[string]float64, len(aggregates))
	for _, agg := range aggregates {
		shareByChannel[agg.ChannelID] = agg.ContributionShare
	}

	// 3. Collect per-channel effect and history facts.
	channels := make([]ChannelCheck, 0, len(run.Channels))
	for _, params := range run.Channels {
		share, ok := shareByChannel[params.ChannelID]
		if !ok {
			return nil, fmt.Errorf("channel %s: %w", params.ChannelID, ErrNoAggregates)
		}
		spendPoints, err := b.spendTimeseriesStore.GetByChannelID(ctx, params.ChannelID, run.PeriodSeconds)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ChannelCheck{
			ChannelID:     params.ChannelID,
			Beta:          params.Beta,
			Share:         share,
			Periods:       len(spendPoints),
			AdstockLength: params.Adstock.Length,
		})
	}

	// 4. Measure outcome coverage at the run cadence.
	outcomePoints, err := b.outcomeTimeseriesStore.GetByMetric(ctx, run.Metric, run.PeriodSeconds)
	if err != nil {
		return nil, err
	}

	// 5. Assemble and validate the input.
	input := &DecisionInput{
		RSquared:         run.RSquared,
		MAPE:             run.MAPE,
		HoldoutRSquared:  bt.HoldoutRSquared,
		DegradationRatio: bt.DegradationRatio,
		Channels:         channels,
		TotalPeriods:     run.TrainPeriods,
		OutcomeCoverage:  outcomeCoverage(outcomePoints, run.PeriodSeconds),
		RunID:            run.RunID,
		Metric:           run.Metric,
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	return input, nil
}

// outcomeCoverage measures observed outcome periods against the expected
// count on a regular cadence between the first and last observation.
func outcomeCoverage(points []*domain.OutcomeTimeseriesPoint, periodSeconds int) float64 {
	if len(points) == 0 {
		return 0
	}
	periodMs := int64(periodSeconds) * 1000
	if periodMs <= 0 {
		return 0
	}
	first, last := points[0].PeriodStart, points[0].PeriodStart
	for _, p := range points[1:] {
		if p.PeriodStart < first {
			first = p.PeriodStart
		}
		if p.PeriodStart > last {
			last = p.PeriodStart
		}
	}
	expected := (last-first)/periodMs + 1
	return float64(len(points)) / float64(expected)
}
