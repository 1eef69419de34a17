// Package orchestrator provides E2E pipeline orchestration.
// It coordinates: normalization → model fit → contribution → aggregation → projection
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"mediamix-lab/internal/contribution"
	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/fit"
	"mediamix-lab/internal/idhash"
	"mediamix-lab/internal/normalization"
	"mediamix-lab/internal/simulation"
	"mediamix-lab/internal/storage"
)

// ErrMissingFitter is returned when the orchestrator has no fitter configured.
var ErrMissingFitter = errors.New("orchestrator requires a fitter")

// Orchestrator coordinates the E2E pipeline execution.
// Flow: normalization → fit → contribution → aggregation → projection
type Orchestrator struct {
	// Stores
	channelStore           storage.ChannelStore
	spendRecordStore       storage.SpendRecordStore
	outcomeRecordStore     storage.OutcomeRecordStore
	spendTimeseriesStore   storage.SpendTimeseriesStore
	outcomeTimeseriesStore storage.OutcomeTimeseriesStore
	modelRunStore          storage.ModelRunStore
	transformedStore       storage.TransformedTimeseriesStore
	contributionStore      storage.ContributionTimeseriesStore
	aggregateStore         storage.ChannelAggregateStore
	projectionStore        storage.ScenarioProjectionStore

	// Fit configuration
	fitter        fit.Fitter
	metric        string
	periodSeconds int

	// Options
	skipNormalization bool
	verbose           bool
}

// Options for creating Orchestrator.
type Options struct {
	// Required stores
	ChannelStore           storage.ChannelStore
	SpendRecordStore       storage.SpendRecordStore
	OutcomeRecordStore     storage.OutcomeRecordStore
	SpendTimeseriesStore   storage.SpendTimeseriesStore
	OutcomeTimeseriesStore storage.OutcomeTimeseriesStore
	ModelRunStore          storage.ModelRunStore
	TransformedStore       storage.TransformedTimeseriesStore
	ContributionStore      storage.ContributionTimeseriesStore
	AggregateStore         storage.ChannelAggregateStore
	ProjectionStore        storage.ScenarioProjectionStore

	// Fitter estimates the response model. Required.
	Fitter fit.Fitter

	// Metric is the modeled KPI. Defaults to "conversions".
	Metric string

	// PeriodSeconds is the aggregation period of the fit. Defaults to one day.
	PeriodSeconds int

	// Options
	SkipNormalization bool // Skip if timeseries already exist
	Verbose           bool
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	metric := opts.Metric
	if metric == "" {
		metric = domain.MetricConversions
	}
	periodSeconds := opts.PeriodSeconds
	if periodSeconds == 0 {
		periodSeconds = domain.PeriodDay
	}

	return &Orchestrator{
		channelStore:           opts.ChannelStore,
		spendRecordStore:       opts.SpendRecordStore,
		outcomeRecordStore:     opts.OutcomeRecordStore,
		spendTimeseriesStore:   opts.SpendTimeseriesStore,
		outcomeTimeseriesStore: opts.OutcomeTimeseriesStore,
		modelRunStore:          opts.ModelRunStore,
		transformedStore:       opts.TransformedStore,
		contributionStore:      opts.ContributionStore,
		aggregateStore:         opts.AggregateStore,
		projectionStore:        opts.ProjectionStore,
		fitter:                 opts.Fitter,
		metric:                 metric,
		periodSeconds:          periodSeconds,
		skipNormalization:      opts.SkipNormalization,
		verbose:                opts.Verbose,
	}
}

// RunResult contains results from orchestrator execution.
type RunResult struct {
	ChannelsProcessed  int
	RunID              string
	ContributionPoints int
	AggregatesCreated  int
	ProjectionsCreated int
	Errors             []string
}

// Run executes the full E2E pipeline.
// Phases:
//  1. Load channels
//  2. Normalize raw records into period series
//  3. Fit the response model and persist the run
//  4. Decompose per-period contributions
//  5. Compute channel aggregates
//  6. Project budget scenarios
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	if o.fitter == nil {
		return nil, ErrMissingFitter
	}
	result := &RunResult{}

	// Phase 1: Load all channels
	o.log("Phase 1: Loading channels...")
	channels, err := o.channelStore.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("phase 1 (load channels) failed: %w", err)
	}
	result.ChannelsProcessed = len(channels)
	o.log("  Found %d channels", len(channels))

	if len(channels) == 0 {
		return result, nil
	}

	// Phase 2: Normalization
	if !o.skipNormalization {
		o.log("Phase 2: Normalizing records...")
		if err := o.runNormalization(ctx, channels); err != nil {
			return nil, fmt.Errorf("phase 2 (normalization) failed: %w", err)
		}
		o.log("  Normalized %d channels and metric %s", len(channels), o.metric)
	} else {
		o.log("Phase 2: Skipping normalization (skipNormalization=true)")
	}

	// Phase 3: Model fit
	o.log("Phase 3: Fitting response model (%s)...", o.fitter.ID())
	run, transformed, spend, err := o.runFit(ctx, channels)
	if err != nil {
		return nil, fmt.Errorf("phase 3 (model fit) failed: %w", err)
	}
	result.RunID = run.RunID
	o.log("  Run %s: r2=%.4f mape=%.4f over %d periods",
		run.RunID, run.RSquared, run.MAPE, run.TrainPeriods)

	// Phase 4: Contribution decomposition
	o.log("Phase 4: Decomposing contributions...")
	contribCount, contribErrors := o.runContribution(ctx, run, transformed, spend)
	result.ContributionPoints = contribCount
	result.Errors = append(result.Errors, contribErrors...)
	o.log("  Stored %d contribution points (%d errors)", contribCount, len(contribErrors))

	// Phase 5: Aggregation
	o.log("Phase 5: Computing aggregates...")
	aggsCreated, aggErrors := o.runAggregation(ctx, run.RunID)
	result.AggregatesCreated = aggsCreated
	result.Errors = append(result.Errors, aggErrors...)
	o.log("  Created %d aggregates (%d errors)", aggsCreated, len(aggErrors))

	// Phase 6: Scenario projections
	o.log("Phase 6: Projecting scenarios...")
	projCreated, projErrors := o.runProjection(ctx, run.RunID)
	result.ProjectionsCreated = projCreated
	result.Errors = append(result.Errors, projErrors...)
	o.log("  Created %d projections (%d errors)", projCreated, len(projErrors))

	o.log("Pipeline completed: %d channels, run %s, %d aggregates, %d projections",
		result.ChannelsProcessed, result.RunID, result.AggregatesCreated, result.ProjectionsCreated)

	return result, nil
}

// runNormalization normalizes all channels and the modeled metric.
func (o *Orchestrator) runNormalization(ctx context.Context, channels []*domain.Channel) error {
	runner := normalization.NewRunner(
		o.spendRecordStore,
		o.outcomeRecordStore,
		o.spendTimeseriesStore,
		o.outcomeTimeseriesStore,
	)

	for _, c := range channels {
		if err := runner.NormalizeChannel(ctx, c.ChannelID); err != nil {
			// Skip duplicate key errors (already normalized)
			if errors.Is(err, storage.ErrDuplicateKey) {
				continue
			}
			return fmt.Errorf("normalize channel %s: %w", c.ChannelID, err)
		}
	}

	if err := runner.NormalizeMetric(ctx, o.metric); err != nil {
		// Skip duplicate key errors (already normalized)
		if !errors.Is(err, storage.ErrDuplicateKey) {
			return fmt.Errorf("normalize metric %s: %w", o.metric, err)
		}
	}
	return nil
}

// runFit assembles the fit input from normalized series, fits the model and
// persists the run with its transformed series. The loaded spend points are
// returned so the contribution phase reuses them without another round trip.
func (o *Orchestrator) runFit(ctx context.Context, channels []*domain.Channel) (*domain.ModelRun, []*domain.TransformedPoint, []*domain.SpendTimeseriesPoint, error) {
	outcome, err := o.outcomeTimeseriesStore.GetByMetric(ctx, o.metric, o.periodSeconds)
	if err != nil {
		return nil, nil, nil, err
	}

	var allSpend []*domain.SpendTimeseriesPoint
	var series []fit.ChannelSpendSeries
	for _, c := range channels {
		points, err := o.spendTimeseriesStore.GetByChannelID(ctx, c.ChannelID, o.periodSeconds)
		if err != nil {
			return nil, nil, nil, err
		}
		if len(points) == 0 {
			o.log("  Skipping channel %s (%s): no spend series", c.Name, c.ChannelID)
			continue
		}
		allSpend = append(allSpend, points...)
		series = append(series, fit.ChannelSpendSeries{ChannelID: c.ChannelID, Points: points})
	}

	input, err := fit.BuildInput(o.metric, o.periodSeconds, outcome, series)
	if err != nil {
		return nil, nil, nil, err
	}

	fitResult, err := o.fitter.Fit(ctx, input)
	if err != nil {
		return nil, nil, nil, err
	}

	fingerprint := input.Fingerprint()
	run := &domain.ModelRun{
		RunID:         idhash.ComputeRunID(o.metric, o.periodSeconds, o.fitter.ID(), fingerprint),
		Fingerprint:   fingerprint,
		Metric:        o.metric,
		PeriodSeconds: o.periodSeconds,
		FitterID:      o.fitter.ID(),
		Intercept:     fitResult.Intercept,
		RSquared:      fitResult.RSquared,
		MAPE:          fitResult.MAPE,
		TrainPeriods:  fitResult.TrainPeriods,
		Channels:      fitResult.ChannelParams(),
		CreatedAt:     time.Now().UnixMilli(),
	}

	if err := o.modelRunStore.Insert(ctx, run); err != nil {
		// Same data and fitter hash to the same run_id; the fit is
		// deterministic, so the stored run is identical.
		if !errors.Is(err, storage.ErrDuplicateKey) {
			return nil, nil, nil, err
		}
		o.log("  Run %s already stored, reusing", run.RunID)
	}

	transformed := buildTransformedPoints(run.RunID, input, fitResult)
	if err := o.transformedStore.InsertBulk(ctx, transformed); err != nil {
		if !errors.Is(err, storage.ErrDuplicateKey) {
			return nil, nil, nil, err
		}
	}

	return run, transformed, allSpend, nil
}

// runContribution decomposes the run's transformed series into per-period
// channel contributions and persists them.
func (o *Orchestrator) runContribution(ctx context.Context, run *domain.ModelRun, transformed []*domain.TransformedPoint, spend []*domain.SpendTimeseriesPoint) (int, []string) {
	points := contribution.BuildContributionPoints(run, transformed, spend)
	if len(points) == 0 {
		return 0, []string{fmt.Sprintf("contribute run %s: no transformed points", run.RunID)}
	}

	if err := o.contributionStore.InsertBulk(ctx, points); err != nil {
		// Skip duplicate key errors (already decomposed)
		if errors.Is(err, storage.ErrDuplicateKey) {
			return 0, nil
		}
		return 0, []string{fmt.Sprintf("contribute run %s: %v", run.RunID, err)}
	}

	return len(points), nil
}

// runAggregation computes per-channel aggregates over the run's contributions.
func (o *Orchestrator) runAggregation(ctx context.Context, runID string) (int, []string) {
	aggregator := contribution.NewAggregator(
		o.modelRunStore,
		o.contributionStore,
		o.aggregateStore,
	)

	aggs, err := aggregator.ComputeRunAggregates(ctx, runID)
	if err != nil {
		// Skip duplicate key errors (already aggregated)
		if errors.Is(err, storage.ErrDuplicateKey) {
			return 0, nil
		}
		return 0, []string{fmt.Sprintf("aggregate run %s: %v", runID, err)}
	}

	return len(aggs), aggregator.GetMissingChannelErrors()
}

// runProjection projects every channel of the run under each predefined
// budget scenario.
func (o *Orchestrator) runProjection(ctx context.Context, runID string) (int, []string) {
	projector := simulation.NewRunner(simulation.RunnerOptions{
		ModelRunStore:        o.modelRunStore,
		SpendTimeseriesStore: o.spendTimeseriesStore,
		TransformedStore:     o.transformedStore,
		ProjectionStore:      o.projectionStore,
	})

	projections, err := projector.ProjectRun(ctx, runID)
	if err != nil {
		// Skip duplicate key errors (already projected)
		if errors.Is(err, storage.ErrDuplicateKey) {
			return 0, nil
		}
		return 0, []string{fmt.Sprintf("project run %s: %v", runID, err)}
	}

	return len(projections), nil
}

// buildTransformedPoints lays the fit's per-channel transform outputs onto
// the period grid.
func buildTransformedPoints(runID string, input *fit.FitInput, result *fit.FitResult) []*domain.TransformedPoint {
	points := make([]*domain.TransformedPoint, 0, len(result.Channels)*len(input.PeriodStarts))
	for _, ch := range result.Channels {
		for i, start := range input.PeriodStarts {
			points = append(points, &domain.TransformedPoint{
				RunID:       runID,
				ChannelID:   ch.Params.ChannelID,
				PeriodStart: start,
				Adstocked:   ch.Adstocked[i],
				Saturated:   ch.Saturated[i],
			})
		}
	}
	return points
}

func (o *Orchestrator) log(format string, args ...interface{}) {
	if o.verbose {
		log.Printf("[orchestrator] "+format, args...)
	}
}
