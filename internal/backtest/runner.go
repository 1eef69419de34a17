package backtest

import (
	"context"

	"mediamix-lab/internal/fit"
	"mediamix-lab/internal/storage"
)

// Runner loads normalized series and evaluates fitters on a holdout split.
type Runner struct {
	spendTimeseriesStore   storage.SpendTimeseriesStore
	outcomeTimeseriesStore storage.OutcomeTimeseriesStore
	holdoutFraction        float64
}

// NewRunner creates a backtest runner. A holdout fraction <= 0 selects
// DefaultHoldoutFraction.
func NewRunner(spendStore storage.SpendTimeseriesStore, outcomeStore storage.OutcomeTimeseriesStore, holdoutFraction float64) *Runner {
	return &Runner{
		spendTimeseriesStore:   spendStore,
		outcomeTimeseriesStore: outcomeStore,
		holdoutFraction:        holdoutFraction,
	}
}

// Run evaluates a fitter for a metric over the given channels.
// Returns holdout results after fitting on the leading periods.
func (r *Runner) Run(ctx context.Context, metric string, periodSeconds int, channelIDs []string, fitter fit.Fitter) (*Results, error) {
	// 1. Load the outcome series (defines the period grid)
	outcome, err := r.outcomeTimeseriesStore.GetByMetric(ctx, metric, periodSeconds)
	if err != nil {
		return nil, err
	}

	// 2. Load each channel's spend series
	channels := make([]fit.ChannelSpendSeries, len(channelIDs))
	for i, channelID := range channelIDs {
		points, err := r.spendTimeseriesStore.GetByChannelID(ctx, channelID, periodSeconds)
		if err != nil {
			return nil, err
		}
		channels[i] = fit.ChannelSpendSeries{ChannelID: channelID, Points: points}
	}

	// 3. Build the fit input on the outcome grid
	input, err := fit.BuildInput(metric, periodSeconds, outcome, channels)
	if err != nil {
		return nil, err
	}

	// 4. Evaluate on the holdout split
	engine := NewEngine(fitter, r.holdoutFraction)
	return engine.Evaluate(ctx, input)
}
