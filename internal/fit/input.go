package fit

import (
	"sort"

	"mediamix-lab/internal/domain"
)

// ChannelSpendSeries is one channel's normalized spend points, as loaded
// from the spend timeseries store.
type ChannelSpendSeries struct {
	ChannelID string
	Points    []*domain.SpendTimeseriesPoint
}

// BuildInput assembles a FitInput from normalized series. The outcome
// series defines the common period grid; each channel's spend is aligned to
// it, with zero spend for grid periods the channel has no point for.
// Channel order is preserved. Returns the validation error of the
// assembled input, so empty outcome or channel sets surface as the usual
// sentinels.
func BuildInput(metric string, periodSeconds int, outcome []*domain.OutcomeTimeseriesPoint, channels []ChannelSpendSeries) (*FitInput, error) {
	sorted := make([]*domain.OutcomeTimeseriesPoint, len(outcome))
	copy(sorted, outcome)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PeriodStart < sorted[j].PeriodStart })

	grid := make([]int64, len(sorted))
	values := make([]float64, len(sorted))
	for i, p := range sorted {
		grid[i] = p.PeriodStart
		values[i] = p.Value
	}

	input := &FitInput{
		Metric:        metric,
		PeriodSeconds: periodSeconds,
		PeriodStarts:  grid,
		Channels:      make([]*ChannelSeries, len(channels)),
		Outcome:       values,
	}

	for i, ch := range channels {
		byPeriod := make(map[int64]float64, len(ch.Points))
		for _, p := range ch.Points {
			byPeriod[p.PeriodStart] = p.Spend
		}

		spend := make([]float64, len(grid))
		for j, start := range grid {
			spend[j] = byPeriod[start]
		}

		input.Channels[i] = &ChannelSeries{ChannelID: ch.ChannelID, Spend: spend}
	}

	if err := input.Validate(); err != nil {
		return nil, err
	}
	return input, nil
}
