// Package replay rebuilds a model run's derived artifacts from its raw
// records and diffs them against what storage holds. Every derived value
// is a pure function of the raw records and the run's stored parameters,
// so a clean replay must reproduce the stored fingerprint, run ID and
// transformed points exactly.
package replay

import (
	"fmt"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/fit"
	"mediamix-lab/internal/idhash"
	"mediamix-lab/internal/normalization"
	"mediamix-lab/internal/transform"
)

// Rebuilt holds everything the engine recomputed for one model run: the
// period series, the fit input assembled from them, and the transformed
// points under the run's stored parameters.
type Rebuilt struct {
	// RunID is recomputed from the run's identity fields and the rebuilt
	// fingerprint, never copied from the stored run.
	RunID       string
	Fingerprint string

	Input         *fit.FitInput
	SpendPoints   []*domain.SpendTimeseriesPoint
	OutcomePoints []*domain.OutcomeTimeseriesPoint
	Transformed   []*domain.TransformedPoint
}

// Engine recomputes a run's derived artifacts from raw records. The
// recomputation walks the same path the live pipeline does: canonical
// record ordering, period aggregation with interior zero fill, input
// assembly on the outcome grid, then the stored per-channel transforms.
type Engine struct{}

// NewEngine creates a replay engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Rebuild recomputes series, fingerprint, run ID and transformed points
// for the run from its raw records. Records may arrive in any order; they
// are sorted in place into canonical ingestion order first. Outcome
// records for other metrics are ignored. Spend records for channels the
// run does not include are ignored; a run channel with no records gets a
// zero spend series on the outcome grid, which surfaces as a fingerprint
// divergence rather than an error.
func (e *Engine) Rebuild(
	run *domain.ModelRun,
	spendRecords []*domain.SpendRecord,
	outcomeRecords []*domain.OutcomeRecord,
) (*Rebuilt, error) {
	// 1. Canonical ordering
	normalization.SortSpendRecords(spendRecords)
	outcomeRecords = filterMetric(outcomeRecords, run.Metric)
	normalization.SortOutcomeRecords(outcomeRecords)

	// 2. Period aggregation at the run's period size
	spendPoints := normalization.GenerateSpendTimeseries(spendRecords, run.PeriodSeconds)
	outcomePoints := normalization.GenerateOutcomeTimeseries(outcomeRecords, run.PeriodSeconds)

	// 3. Fit input on the outcome grid, channels in run order
	byChannel := groupSpendPoints(spendPoints)
	series := make([]fit.ChannelSpendSeries, len(run.Channels))
	for i, ch := range run.Channels {
		series[i] = fit.ChannelSpendSeries{ChannelID: ch.ChannelID, Points: byChannel[ch.ChannelID]}
	}
	input, err := fit.BuildInput(run.Metric, run.PeriodSeconds, outcomePoints, series)
	if err != nil {
		return nil, fmt.Errorf("rebuild input: %w", err)
	}

	rebuilt := &Rebuilt{
		Fingerprint:   input.Fingerprint(),
		Input:         input,
		SpendPoints:   spendPoints,
		OutcomePoints: outcomePoints,
	}
	rebuilt.RunID = idhash.ComputeRunID(run.Metric, run.PeriodSeconds, run.FitterID, rebuilt.Fingerprint)

	// 4. Transforms under the stored parameters
	for i, ch := range run.Channels {
		adstocked, saturated, err := transform.ApplyChannel(input.Channels[i].Spend, ch.Adstock, ch.Saturation)
		if err != nil {
			return nil, fmt.Errorf("channel %s transforms: %w", ch.ChannelID, err)
		}
		for j, start := range input.PeriodStarts {
			rebuilt.Transformed = append(rebuilt.Transformed, &domain.TransformedPoint{
				RunID:       run.RunID,
				ChannelID:   ch.ChannelID,
				PeriodStart: start,
				Adstocked:   adstocked[j],
				Saturated:   saturated[j],
			})
		}
	}

	return rebuilt, nil
}

func filterMetric(records []*domain.OutcomeRecord, metric string) []*domain.OutcomeRecord {
	filtered := make([]*domain.OutcomeRecord, 0, len(records))
	for _, r := range records {
		if r.Metric == metric {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

func groupSpendPoints(points []*domain.SpendTimeseriesPoint) map[string][]*domain.SpendTimeseriesPoint {
	groups := make(map[string][]*domain.SpendTimeseriesPoint)
	for _, p := range points {
		groups[p.ChannelID] = append(groups[p.ChannelID], p)
	}
	return groups
}
