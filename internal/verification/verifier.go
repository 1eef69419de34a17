// Package verification checks stored media-mix data against structural
// invariants: series ordering, duplicate periods, transform bounds, and
// aggregate consistency. Findings render as plain strings suitable for
// the integrity section of a generated report.
package verification

import (
	"context"
	"fmt"
	"math"
	"sort"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-7

// Invariant identifiers attached to findings.
const (
	InvariantPeriodOrder          = "period_order"
	InvariantDuplicatePeriod      = "duplicate_period"
	InvariantNegativeSpend        = "negative_spend"
	InvariantParamBounds          = "param_bounds"
	InvariantSaturationBounds     = "saturation_bounds"
	InvariantAdstockBounds        = "adstock_bounds"
	InvariantNegativeContribution = "negative_contribution"
	InvariantContributionMismatch = "contribution_mismatch"
	InvariantSpendMismatch        = "spend_mismatch"
	InvariantAggregateMismatch    = "aggregate_mismatch"
	InvariantMissingSeries        = "missing_series"
	InvariantUnknownChannel       = "unknown_channel"
)

// Finding represents one invariant violation in stored data.
type Finding struct {
	Invariant string // invariant identifier
	Subject   string // kind and key of the offending rows
	Detail    string // what was observed
}

// String formats the finding as a single report line.
func (f Finding) String() string {
	return fmt.Sprintf("%s: %s", f.Subject, f.Detail)
}

// Report represents the outcome of a verification pass over one run.
type Report struct {
	RunID         string
	CheckedSeries int // series examined (raw, transformed, contribution)
	CheckedPoints int // rows examined across all kinds
	Findings      []Finding
}

// OK returns true when no invariant violations were found.
func (r *Report) OK() bool {
	return len(r.Findings) == 0
}

// Messages returns findings formatted as report lines, in detection order.
func (r *Report) Messages() []string {
	if len(r.Findings) == 0 {
		return nil
	}
	msgs := make([]string, len(r.Findings))
	for i, f := range r.Findings {
		msgs[i] = f.String()
	}
	return msgs
}

func (r *Report) add(invariant, subject, format string, args ...interface{}) {
	r.Findings = append(r.Findings, Finding{
		Invariant: invariant,
		Subject:   subject,
		Detail:    fmt.Sprintf(format, args...),
	})
}

// Verifier checks stored series, transforms, and aggregates for a model run.
type Verifier struct {
	runStore          storage.ModelRunStore
	spendStore        storage.SpendTimeseriesStore
	outcomeStore      storage.OutcomeTimeseriesStore
	transformedStore  storage.TransformedTimeseriesStore
	contributionStore storage.ContributionTimeseriesStore
	aggregateStore    storage.ChannelAggregateStore
}

// VerifierOptions contains dependencies for Verifier.
type VerifierOptions struct {
	RunStore          storage.ModelRunStore
	SpendStore        storage.SpendTimeseriesStore
	OutcomeStore      storage.OutcomeTimeseriesStore
	TransformedStore  storage.TransformedTimeseriesStore
	ContributionStore storage.ContributionTimeseriesStore
	AggregateStore    storage.ChannelAggregateStore
}

// NewVerifier creates a verifier with the given dependencies.
func NewVerifier(opts VerifierOptions) *Verifier {
	return &Verifier{
		runStore:          opts.RunStore,
		spendStore:        opts.SpendStore,
		outcomeStore:      opts.OutcomeStore,
		transformedStore:  opts.TransformedStore,
		contributionStore: opts.ContributionStore,
		aggregateStore:    opts.AggregateStore,
	}
}

// VerifyRun checks every stored artifact belonging to one model run:
//  1. Load the run and validate its fitted parameter bounds.
//  2. Check raw spend and outcome series for ordering and bounds.
//  3. Check transformed points against saturation and adstock bounds.
//  4. Check contribution points against the fitted parameters.
//  5. Check aggregates against the contribution points they summarize.
//
// Storage errors abort verification. Invariant violations do not: they
// are collected into the returned report in a deterministic order.
// Returns storage.ErrNotFound when the run does not exist.
func (v *Verifier) VerifyRun(ctx context.Context, runID string) (*Report, error) {
	report := &Report{RunID: runID}

	// 1. Load the run
	run, err := v.runStore.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	channels := sortedParams(run.Channels)
	verifyParams(report, channels)

	// 2. Raw series
	spendByChannel := make(map[string]map[int64]float64, len(channels))
	for _, ch := range channels {
		byPeriod, err := v.verifySpendSeries(ctx, report, ch.ChannelID, run.PeriodSeconds)
		if err != nil {
			return nil, err
		}
		spendByChannel[ch.ChannelID] = byPeriod
	}
	if err := v.verifyOutcomeSeries(ctx, report, run.Metric, run.PeriodSeconds); err != nil {
		return nil, err
	}

	// 3. Transformed points
	saturatedByChannel, err := v.verifyTransformed(ctx, report, run, channels, spendByChannel)
	if err != nil {
		return nil, err
	}

	// 4. Contribution points
	contributionsByChannel, err := v.verifyContributions(ctx, report, run, channels, spendByChannel, saturatedByChannel)
	if err != nil {
		return nil, err
	}

	// 5. Aggregates
	if err := v.verifyAggregates(ctx, report, run, channels, contributionsByChannel); err != nil {
		return nil, err
	}

	return report, nil
}

// verifyParams checks fitted parameter bounds for every run channel.
func verifyParams(report *Report, channels []domain.ChannelParams) {
	for _, ch := range channels {
		subject := "params " + ch.ChannelID
		if ch.Beta < 0 {
			report.add(InvariantParamBounds, subject, "beta %g below zero", ch.Beta)
		}
		if ch.Adstock.Length < 1 {
			report.add(InvariantParamBounds, subject, "adstock length %d below 1", ch.Adstock.Length)
		}
		if ch.Adstock.Peak < 0 {
			report.add(InvariantParamBounds, subject, "adstock peak %g below zero", ch.Adstock.Peak)
		}
		if ch.Adstock.Decay < 0 || ch.Adstock.Decay > 1 {
			report.add(InvariantParamBounds, subject, "adstock decay %g out of [0,1]", ch.Adstock.Decay)
		}
		if ch.Saturation.HalfSat <= 0 {
			report.add(InvariantParamBounds, subject, "half-saturation %g not positive", ch.Saturation.HalfSat)
		}
		if ch.Saturation.Slope <= 0 {
			report.add(InvariantParamBounds, subject, "hill slope %g not positive", ch.Saturation.Slope)
		}
	}
}

// verifySpendSeries checks one channel's spend series for ordering and
// bounds. Returns spend indexed by period for later window checks.
func (v *Verifier) verifySpendSeries(ctx context.Context, report *Report, channelID string, periodSeconds int) (map[int64]float64, error) {
	points, err := v.spendStore.GetByChannelID(ctx, channelID, periodSeconds)
	if err != nil {
		return nil, err
	}
	subject := "spend " + channelID
	report.CheckedSeries++
	byPeriod := make(map[int64]float64, len(points))
	if len(points) == 0 {
		report.add(InvariantMissingSeries, subject, "no stored points")
		return byPeriod, nil
	}

	for i, p := range points {
		report.CheckedPoints++
		if i > 0 {
			checkPeriodOrder(report, subject, points[i-1].PeriodStart, p.PeriodStart)
		}
		if p.Spend < 0 {
			report.add(InvariantNegativeSpend, subject, "spend %g at period %d", p.Spend, p.PeriodStart)
		}
		byPeriod[p.PeriodStart] = p.Spend
	}
	return byPeriod, nil
}

// verifyOutcomeSeries checks the outcome series for ordering violations.
func (v *Verifier) verifyOutcomeSeries(ctx context.Context, report *Report, metric string, periodSeconds int) error {
	points, err := v.outcomeStore.GetByMetric(ctx, metric, periodSeconds)
	if err != nil {
		return err
	}
	subject := "outcome " + metric
	report.CheckedSeries++
	if len(points) == 0 {
		report.add(InvariantMissingSeries, subject, "no stored points")
		return nil
	}

	for i, p := range points {
		report.CheckedPoints++
		if i > 0 {
			checkPeriodOrder(report, subject, points[i-1].PeriodStart, p.PeriodStart)
		}
	}
	return nil
}

// verifyTransformed checks stored transformed points: saturated values
// must lie in [0,1) and adstocked values must be non-negative and bounded
// by the raw spend maximum over the carryover window. Returns saturated
// values indexed by channel and period for the contribution cross-check.
func (v *Verifier) verifyTransformed(ctx context.Context, report *Report, run *domain.ModelRun, channels []domain.ChannelParams, spendByChannel map[string]map[int64]float64) (map[string]map[int64]float64, error) {
	points, err := v.transformedStore.GetByRunID(ctx, run.RunID)
	if err != nil {
		return nil, err
	}

	paramsByChannel := make(map[string]domain.ChannelParams, len(channels))
	for _, ch := range channels {
		paramsByChannel[ch.ChannelID] = ch
	}
	periodMs := int64(run.PeriodSeconds) * 1000

	saturated := make(map[string]map[int64]float64, len(channels))
	grouped, order := groupTransformed(points)
	for _, channelID := range order {
		group := grouped[channelID]
		subject := "transformed " + channelID
		report.CheckedSeries++
		params, known := paramsByChannel[channelID]
		if !known {
			report.add(InvariantUnknownChannel, subject, "%d points for a channel absent from run parameters", len(group))
			continue
		}
		byPeriod := make(map[int64]float64, len(group))
		saturated[channelID] = byPeriod
		for i, p := range group {
			report.CheckedPoints++
			if i > 0 {
				checkPeriodOrder(report, subject, group[i-1].PeriodStart, p.PeriodStart)
			}
			if p.Saturated < 0 || p.Saturated >= 1 {
				report.add(InvariantSaturationBounds, subject, "saturated %g out of [0,1) at period %d", p.Saturated, p.PeriodStart)
			}
			if p.Adstocked < 0 {
				report.add(InvariantAdstockBounds, subject, "adstocked %g below zero at period %d", p.Adstocked, p.PeriodStart)
			} else if max := windowMax(spendByChannel[channelID], p.PeriodStart, params.Adstock.Length, periodMs); p.Adstocked > max+FloatTolerance {
				report.add(InvariantAdstockBounds, subject, "adstocked %g exceeds window max %g at period %d", p.Adstocked, max, p.PeriodStart)
			}
			byPeriod[p.PeriodStart] = p.Saturated
		}
	}

	// Channels fitted by the run but missing transformed points
	for _, ch := range channels {
		if _, ok := grouped[ch.ChannelID]; !ok {
			report.add(InvariantMissingSeries, "transformed "+ch.ChannelID, "no stored points")
		}
	}
	return saturated, nil
}

// verifyContributions checks stored contribution points: non-negative,
// equal to beta*saturated within tolerance, and carrying the raw spend of
// their period. Returns points grouped by channel for aggregate checks.
func (v *Verifier) verifyContributions(ctx context.Context, report *Report, run *domain.ModelRun, channels []domain.ChannelParams, spendByChannel map[string]map[int64]float64, saturatedByChannel map[string]map[int64]float64) (map[string][]*domain.ContributionPoint, error) {
	points, err := v.contributionStore.GetByRunID(ctx, run.RunID)
	if err != nil {
		return nil, err
	}

	paramsByChannel := make(map[string]domain.ChannelParams, len(channels))
	for _, ch := range channels {
		paramsByChannel[ch.ChannelID] = ch
	}

	grouped, order := groupContributions(points)
	for _, channelID := range order {
		group := grouped[channelID]
		subject := "contribution " + channelID
		report.CheckedSeries++
		params, known := paramsByChannel[channelID]
		if !known {
			report.add(InvariantUnknownChannel, subject, "%d points for a channel absent from run parameters", len(group))
			continue
		}
		satByPeriod, hasTransformed := saturatedByChannel[channelID]
		for i, p := range group {
			report.CheckedPoints++
			if i > 0 {
				checkPeriodOrder(report, subject, group[i-1].PeriodStart, p.PeriodStart)
			}
			if p.Contribution < 0 {
				report.add(InvariantNegativeContribution, subject, "contribution %g at period %d", p.Contribution, p.PeriodStart)
			}
			if hasTransformed {
				if sat, ok := satByPeriod[p.PeriodStart]; ok {
					if want := params.Beta * sat; !floatEquals(p.Contribution, want) {
						report.add(InvariantContributionMismatch, subject, "contribution %g diverges from beta*saturated %g at period %d", p.Contribution, want, p.PeriodStart)
					}
				} else {
					report.add(InvariantMissingSeries, subject, "no transformed point at period %d", p.PeriodStart)
				}
			}
			if raw := spendByChannel[channelID][p.PeriodStart]; !floatEquals(p.Spend, raw) {
				report.add(InvariantSpendMismatch, subject, "stored spend %g diverges from raw series %g at period %d", p.Spend, raw, p.PeriodStart)
			}
		}
	}

	// Channels fitted by the run but missing contribution points
	for _, ch := range channels {
		if _, ok := grouped[ch.ChannelID]; !ok {
			report.add(InvariantMissingSeries, "contribution "+ch.ChannelID, "no stored points")
		}
	}
	return grouped, nil
}

// verifyAggregates checks stored aggregates against the contribution
// points they summarize: period count, totals, and the peak period.
// The peak recompute keeps the earliest period on ties, matching the
// aggregation order.
func (v *Verifier) verifyAggregates(ctx context.Context, report *Report, run *domain.ModelRun, channels []domain.ChannelParams, contributionsByChannel map[string][]*domain.ContributionPoint) error {
	aggs, err := v.aggregateStore.GetByRunID(ctx, run.RunID)
	if err != nil {
		return err
	}

	known := make(map[string]bool, len(channels))
	for _, ch := range channels {
		known[ch.ChannelID] = true
	}

	seen := make(map[string]bool, len(aggs))
	for _, agg := range aggs {
		subject := "aggregate " + agg.ChannelID
		report.CheckedPoints++
		seen[agg.ChannelID] = true
		if !known[agg.ChannelID] {
			report.add(InvariantUnknownChannel, subject, "aggregate for a channel absent from run parameters")
			continue
		}
		points := contributionsByChannel[agg.ChannelID]
		if agg.PeriodCount != len(points) {
			report.add(InvariantAggregateMismatch, subject, "period count %d diverges from %d stored points", agg.PeriodCount, len(points))
		}
		if len(points) == 0 {
			continue
		}

		var totalSpend, totalContribution float64
		peakPeriod := points[0].PeriodStart
		peakValue := points[0].Contribution
		for _, p := range points {
			totalSpend += p.Spend
			totalContribution += p.Contribution
			if p.Contribution > peakValue {
				peakValue = p.Contribution
				peakPeriod = p.PeriodStart
			}
		}
		if !floatEquals(agg.TotalSpend, totalSpend) {
			report.add(InvariantAggregateMismatch, subject, "total spend %g diverges from sum of points %g", agg.TotalSpend, totalSpend)
		}
		if !floatEquals(agg.TotalContribution, totalContribution) {
			report.add(InvariantAggregateMismatch, subject, "total contribution %g diverges from sum of points %g", agg.TotalContribution, totalContribution)
		}
		if agg.PeakPeriodStart != peakPeriod {
			report.add(InvariantAggregateMismatch, subject, "peak period %d diverges from recomputed %d", agg.PeakPeriodStart, peakPeriod)
		}
	}

	// Channels fitted by the run but missing an aggregate
	for _, ch := range channels {
		if !seen[ch.ChannelID] {
			report.add(InvariantMissingSeries, "aggregate "+ch.ChannelID, "no stored aggregate")
		}
	}
	return nil
}

// checkPeriodOrder flags duplicate or out-of-order consecutive periods.
func checkPeriodOrder(report *Report, subject string, prev, curr int64) {
	switch {
	case curr == prev:
		report.add(InvariantDuplicatePeriod, subject, "duplicate period %d", curr)
	case curr < prev:
		report.add(InvariantPeriodOrder, subject, "period %d follows %d", curr, prev)
	}
}

// windowMax returns the maximal raw spend over the carryover window ending
// at periodStart. Periods absent from the series count as zero spend.
func windowMax(spendByPeriod map[int64]float64, periodStart int64, length int, periodMs int64) float64 {
	var max float64
	for k := 0; k < length; k++ {
		if v, ok := spendByPeriod[periodStart-int64(k)*periodMs]; ok && v > max {
			max = v
		}
	}
	return max
}

// groupTransformed splits points by channel, preserving first-seen order.
func groupTransformed(points []*domain.TransformedPoint) (map[string][]*domain.TransformedPoint, []string) {
	grouped := make(map[string][]*domain.TransformedPoint)
	var order []string
	for _, p := range points {
		if _, ok := grouped[p.ChannelID]; !ok {
			order = append(order, p.ChannelID)
		}
		grouped[p.ChannelID] = append(grouped[p.ChannelID], p)
	}
	return grouped, order
}

// groupContributions splits points by channel, preserving first-seen order.
func groupContributions(points []*domain.ContributionPoint) (map[string][]*domain.ContributionPoint, []string) {
	grouped := make(map[string][]*domain.ContributionPoint)
	var order []string
	for _, p := range points {
		if _, ok := grouped[p.ChannelID]; !ok {
			order = append(order, p.ChannelID)
		}
		grouped[p.ChannelID] = append(grouped[p.ChannelID], p)
	}
	return grouped, order
}

// sortedParams returns run channel parameters ordered by channel ID so
// findings come out in a stable order.
func sortedParams(channels []domain.ChannelParams) []domain.ChannelParams {
	out := make([]domain.ChannelParams, len(channels))
	copy(out, channels)
	sort.Slice(out, func(i, j int) bool {
		return out[i].ChannelID < out[j].ChannelID
	})
	return out
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}
