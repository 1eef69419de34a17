package contribution

import (
	"math"
	"sort"

	"mediamix-lab/internal/domain"
)

// BuildContributionPoints derives per-period channel contributions from a
// run's transformed series: contribution = beta * saturated. Each point
// also carries the channel's raw spend for that period so cost metrics can
// be computed without another store round trip.
// Output is sorted by (channel_id, period_start).
func BuildContributionPoints(
	run *domain.ModelRun,
	transformed []*domain.TransformedPoint,
	spendPoints []*domain.SpendTimeseriesPoint,
) []*domain.ContributionPoint {
	if run == nil || len(transformed) == 0 {
		return nil
	}

	betas := make(map[string]float64, len(run.Channels))
	for _, ch := range run.Channels {
		betas[ch.ChannelID] = ch.Beta
	}

	type spendKey struct {
		channelID   string
		periodStart int64
	}
	spend := make(map[spendKey]float64, len(spendPoints))
	for _, p := range spendPoints {
		spend[spendKey{p.ChannelID, p.PeriodStart}] = p.Spend
	}

	points := make([]*domain.ContributionPoint, 0, len(transformed))
	for _, tp := range transformed {
		beta, ok := betas[tp.ChannelID]
		if !ok {
			continue
		}
		points = append(points, &domain.ContributionPoint{
			RunID:        run.RunID,
			ChannelID:    tp.ChannelID,
			PeriodStart:  tp.PeriodStart,
			Contribution: beta * tp.Saturated,
			Spend:        spend[spendKey{tp.ChannelID, tp.PeriodStart}],
		})
	}

	sort.Slice(points, func(i, j int) bool {
		if points[i].ChannelID != points[j].ChannelID {
			return points[i].ChannelID < points[j].ChannelID
		}
		return points[i].PeriodStart < points[j].PeriodStart
	})

	return points
}

// runTotals holds run-level denominators for share computations.
type runTotals struct {
	// totalModeled = intercept over all train periods + every channel's
	// total contribution.
	totalModeled float64
	totalSpend   float64
}

// computeRunTotals sums the share denominators over a run's points.
func computeRunTotals(run *domain.ModelRun, allPoints []*domain.ContributionPoint) runTotals {
	totals := runTotals{
		totalModeled: run.Intercept * float64(run.TrainPeriods),
	}
	for _, p := range allPoints {
		totals.totalModeled += p.Contribution
		totals.totalSpend += p.Spend
	}
	return totals
}

// computeFromPoints calculates all aggregate metrics for one channel.
// Points must be pre-filtered by (run_id, channel_id). Points are sorted
// by PeriodStart ASC before computing order-dependent metrics
// (PeakPeriodStart keeps the earliest period on ties).
func computeFromPoints(runID, channelID string, points []*domain.ContributionPoint, totals runTotals) *domain.ChannelAggregate {
	n := len(points)
	if n == 0 {
		return &domain.ChannelAggregate{
			RunID:     runID,
			ChannelID: channelID,
		}
	}

	sortedPoints := make([]*domain.ContributionPoint, n)
	copy(sortedPoints, points)
	sort.Slice(sortedPoints, func(i, j int) bool {
		return sortedPoints[i].PeriodStart < sortedPoints[j].PeriodStart
	})

	var totalSpend, totalContribution float64
	contributions := make([]float64, n)
	peakPeriod := sortedPoints[0].PeriodStart
	peakValue := sortedPoints[0].Contribution
	for i, p := range sortedPoints {
		contributions[i] = p.Contribution
		totalSpend += p.Spend
		totalContribution += p.Contribution
		if p.Contribution > peakValue {
			peakValue = p.Contribution
			peakPeriod = p.PeriodStart
		}
	}

	sortedContributions := make([]float64, n)
	copy(sortedContributions, contributions)
	sort.Float64s(sortedContributions)

	mean := computeMean(contributions)

	agg := &domain.ChannelAggregate{
		RunID:     runID,
		ChannelID: channelID,

		PeriodCount:       n,
		TotalSpend:        totalSpend,
		TotalContribution: totalContribution,
		ContributionShare: computeShare(totalContribution, totals.totalModeled),
		SpendShare:        computeShare(totalSpend, totals.totalSpend),
		CostPerOutcome:    computeCostPerOutcome(totalSpend, totalContribution),

		ContributionMean:   mean,
		ContributionMedian: computePercentile(sortedContributions, 0.50),
		ContributionP10:    computePercentile(sortedContributions, 0.10),
		ContributionP90:    computePercentile(sortedContributions, 0.90),
		ContributionMin:    sortedContributions[0],
		ContributionMax:    sortedContributions[n-1],
		ContributionStddev: computeStddev(contributions, mean),

		PeakPeriodStart: peakPeriod,
	}

	return agg
}

// computeShare calculates value / total, 0 when total is 0.
func computeShare(value, total float64) float64 {
	if total == 0 {
		return 0
	}
	return value / total
}

// computeCostPerOutcome calculates spend / contribution.
// Returns 0 when contribution is 0 (undefined cost, not infinite).
func computeCostPerOutcome(spend, contribution float64) float64 {
	if contribution == 0 {
		return 0
	}
	return spend / contribution
}

// computeMean calculates arithmetic mean of contributions.
func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC.
// p is percentile (0.10 = 10th percentile).
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
