package reporting

import (
	"context"
	"sort"
	"time"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
)

// Generator produces reports from stored data.
type Generator struct {
	channelStore           storage.ChannelStore
	runStore               storage.ModelRunStore
	aggregateStore         storage.ChannelAggregateStore
	projectionStore        storage.ScenarioProjectionStore
	spendTimeseriesStore   storage.SpendTimeseriesStore
	outcomeTimeseriesStore storage.OutcomeTimeseriesStore
	now                    func() time.Time // Injectable clock for deterministic output
}

// GeneratorOptions holds the stores a Generator reads from.
type GeneratorOptions struct {
	ChannelStore           storage.ChannelStore
	ModelRunStore          storage.ModelRunStore
	AggregateStore         storage.ChannelAggregateStore
	ProjectionStore        storage.ScenarioProjectionStore
	SpendTimeseriesStore   storage.SpendTimeseriesStore
	OutcomeTimeseriesStore storage.OutcomeTimeseriesStore
}

// NewGenerator creates a new report generator.
func NewGenerator(opts GeneratorOptions) *Generator {
	return &Generator{
		channelStore:           opts.ChannelStore,
		runStore:               opts.ModelRunStore,
		aggregateStore:         opts.AggregateStore,
		projectionStore:        opts.ProjectionStore,
		spendTimeseriesStore:   opts.SpendTimeseriesStore,
		outcomeTimeseriesStore: opts.OutcomeTimeseriesStore,
		now:                    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a complete report for one stored model run.
func (g *Generator) Generate(ctx context.Context, runID string) (*Report, error) {
	run, err := g.runStore.GetByID(ctx, runID)
	if err != nil {
		return nil, err // propagates storage.ErrNotFound
	}

	// Load all channels once for names, mediums and source counts
	channels, err := g.channelStore.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	// Generate data summary
	dataSummary, err := g.generateDataSummary(ctx, run, channels)
	if err != nil {
		return nil, err
	}

	// Generate channel metrics
	aggs, err := g.aggregateStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}
	channelMetrics := g.generateChannelMetrics(run, aggs, channels)

	// Generate scenario projections
	projections, err := g.generateScenarioProjections(ctx, runID)
	if err != nil {
		return nil, err
	}

	// Generate model quality across all stored runs
	modelQuality, err := g.generateModelQuality(ctx)
	if err != nil {
		return nil, err
	}

	return &Report{
		GeneratedAt:         g.now(),
		ChannelCount:        len(run.Channels),
		RunCount:            len(modelQuality),
		Reproducibility:     reproducibilityBlock(run),
		DataSummary:         *dataSummary,
		ChannelMetrics:      channelMetrics,
		ScenarioProjections: projections,
		ModelQuality:        modelQuality,
	}, nil
}

// GenerateLatest produces a report for the most recent run of a metric.
func (g *Generator) GenerateLatest(ctx context.Context, metric string, periodSeconds int) (*Report, error) {
	run, err := g.runStore.GetLatest(ctx, metric, periodSeconds)
	if err != nil {
		return nil, err
	}
	return g.Generate(ctx, run.RunID)
}

// generateDataSummary computes data summary from channels and raw series.
func (g *Generator) generateDataSummary(ctx context.Context, run *domain.ModelRun, channels []*domain.Channel) (*DataSummary, error) {
	fileChannels, streamChannels := 0, 0
	for _, c := range channels {
		switch c.Source {
		case domain.SourceFileImport:
			fileChannels++
		case domain.SourceStreamFeed:
			streamChannels++
		}
	}

	// Count stored points and find the observation window at the run cadence
	var dateRangeStart, dateRangeEnd int64
	haveRange := false
	extend := func(periodStart int64) {
		if !haveRange {
			dateRangeStart, dateRangeEnd = periodStart, periodStart
			haveRange = true
			return
		}
		if periodStart < dateRangeStart {
			dateRangeStart = periodStart
		}
		if periodStart > dateRangeEnd {
			dateRangeEnd = periodStart
		}
	}

	spendPoints := 0
	for _, params := range run.Channels {
		points, err := g.spendTimeseriesStore.GetByChannelID(ctx, params.ChannelID, run.PeriodSeconds)
		if err != nil {
			return nil, err
		}
		spendPoints += len(points)
		for _, p := range points {
			extend(p.PeriodStart)
		}
	}

	outcomePoints, err := g.outcomeTimeseriesStore.GetByMetric(ctx, run.Metric, run.PeriodSeconds)
	if err != nil {
		return nil, err
	}
	for _, p := range outcomePoints {
		extend(p.PeriodStart)
	}

	return &DataSummary{
		TotalChannels:  len(channels),
		FileChannels:   fileChannels,
		StreamChannels: streamChannels,
		SpendPoints:    spendPoints,
		OutcomePoints:  len(outcomePoints),
		DateRangeStart: dateRangeStart,
		DateRangeEnd:   dateRangeEnd,
	}, nil
}

// generateChannelMetrics joins aggregates with fitted params and channel records.
func (g *Generator) generateChannelMetrics(run *domain.ModelRun, aggs []*domain.ChannelAggregate, channels []*domain.Channel) []ChannelMetricRow {
	betaByChannel := make(map[string]float64, len(run.Channels))
	for _, params := range run.Channels {
		betaByChannel[params.ChannelID] = params.Beta
	}
	channelByID := make(map[string]*domain.Channel, len(channels))
	for _, c := range channels {
		channelByID[c.ChannelID] = c
	}

	rows := make([]ChannelMetricRow, len(aggs))
	for i, agg := range aggs {
		row := ChannelMetricRow{
			ChannelID:          agg.ChannelID,
			Beta:               betaByChannel[agg.ChannelID],
			TotalSpend:         agg.TotalSpend,
			TotalContribution:  agg.TotalContribution,
			ContributionShare:  agg.ContributionShare,
			SpendShare:         agg.SpendShare,
			CostPerOutcome:     agg.CostPerOutcome,
			ContributionMean:   agg.ContributionMean,
			ContributionMedian: agg.ContributionMedian,
			ContributionP10:    agg.ContributionP10,
			ContributionP90:    agg.ContributionP90,
			PeakPeriodStart:    agg.PeakPeriodStart,
		}
		if c := channelByID[agg.ChannelID]; c != nil {
			row.Name = c.Name
			row.Medium = c.Medium
		}
		rows[i] = row
	}

	// Sort by channel_id
	sortChannelMetrics(rows)
	return rows
}

// generateScenarioProjections builds projection rows for the run.
func (g *Generator) generateScenarioProjections(ctx context.Context, runID string) ([]ScenarioProjectionRow, error) {
	projections, err := g.projectionStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}

	rows := make([]ScenarioProjectionRow, len(projections))
	for i, p := range projections {
		rows[i] = ScenarioProjectionRow{
			ChannelID:        p.ChannelID,
			ScenarioID:       p.ScenarioID,
			SpendMultiplier:  scenarioMultiplier(p.ScenarioID),
			ProjectedOutcome: p.ProjectedOutcome,
			BaselineOutcome:  p.BaselineOutcome,
			Delta:            p.Delta,
			DeltaPct:         p.DeltaPct,
		}
	}

	// Sort by (channel_id, scenario_id)
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ChannelID != rows[j].ChannelID {
			return rows[i].ChannelID < rows[j].ChannelID
		}
		return rows[i].ScenarioID < rows[j].ScenarioID
	})

	return rows, nil
}

// generateModelQuality builds one row per stored run.
func (g *Generator) generateModelQuality(ctx context.Context) ([]ModelQualityRow, error) {
	runs, err := g.runStore.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]ModelQualityRow, len(runs))
	for i, run := range runs {
		rows[i] = ModelQualityRow{
			RunID:         run.RunID,
			Metric:        run.Metric,
			PeriodSeconds: run.PeriodSeconds,
			FitterID:      run.FitterID,
			RSquared:      run.RSquared,
			MAPE:          run.MAPE,
			TrainPeriods:  run.TrainPeriods,
			ChannelCount:  len(run.Channels),
			CreatedAt:     run.CreatedAt,
		}
	}

	// Sort by (created_at, run_id)
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt != rows[j].CreatedAt {
			return rows[i].CreatedAt < rows[j].CreatedAt
		}
		return rows[i].RunID < rows[j].RunID
	})

	return rows, nil
}

// reproducibilityBlock extracts the replay identifiers from a run.
func reproducibilityBlock(run *domain.ModelRun) ReproducibilityBlock {
	return ReproducibilityBlock{
		RunID:           run.RunID,
		DataFingerprint: run.Fingerprint,
		FitterID:        run.FitterID,
		Metric:          run.Metric,
		PeriodSeconds:   run.PeriodSeconds,
		TrainPeriods:    run.TrainPeriods,
		CreatedAt:       run.CreatedAt,
	}
}

// scenarioMultiplier resolves the spend multiplier for a scenario ID.
func scenarioMultiplier(scenarioID string) float64 {
	for _, sc := range domain.AllScenarios() {
		if sc.ScenarioID == scenarioID {
			return sc.SpendMultiplier
		}
	}
	return 0
}

// sortChannelMetrics sorts rows by channel_id.
func sortChannelMetrics(rows []ChannelMetricRow) {
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].ChannelID < rows[j].ChannelID
	})
}
