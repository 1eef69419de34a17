package simulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
	"mediamix-lab/internal/transform"
)

// Runner errors
var (
	ErrChannelNotInRun   = errors.New("channel is not part of the model run")
	ErrNoTransformedData = errors.New("no transformed points stored for model run")
)

// Runner computes budget scenario projections from a fitted model run.
type Runner struct {
	runStore             storage.ModelRunStore
	spendTimeseriesStore storage.SpendTimeseriesStore
	transformedStore     storage.TransformedTimeseriesStore
	projectionStore      storage.ScenarioProjectionStore

	now func() int64
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	ModelRunStore        storage.ModelRunStore
	SpendTimeseriesStore storage.SpendTimeseriesStore
	TransformedStore     storage.TransformedTimeseriesStore
	ProjectionStore      storage.ScenarioProjectionStore
}

// NewRunner creates a simulation runner.
func NewRunner(opts RunnerOptions) *Runner {
	return &Runner{
		runStore:             opts.ModelRunStore,
		spendTimeseriesStore: opts.SpendTimeseriesStore,
		transformedStore:     opts.TransformedStore,
		projectionStore:      opts.ProjectionStore,
		now:                  func() int64 { return time.Now().UnixMilli() },
	}
}

// Project computes one scenario projection for a run/channel pair.
// Steps:
//  1. Load model run by ID
//  2. Resolve the channel's fitted parameters
//  3. Load the run's stored transform outputs
//  4. Load the channel's spend series aligned to the fit period grid
//  5. Scale spend, re-apply the fitted transforms, assemble the projection
//  6. Persist ScenarioProjection
func (r *Runner) Project(ctx context.Context, runID, channelID string, scenario domain.ScenarioConfig) (*domain.ScenarioProjection, error) {
	// 1. Load model run by ID
	run, err := r.runStore.GetByID(ctx, runID)
	if err != nil {
		return nil, err // propagates storage.ErrNotFound
	}

	// 2. Resolve the channel's fitted parameters
	params, ok := channelParams(run, channelID)
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", channelID, ErrChannelNotInRun)
	}

	// 3. Load the run's stored transform outputs
	baseline, err := r.loadBaseline(ctx, runID)
	if err != nil {
		return nil, err
	}

	// 4. Load the channel's spend series aligned to the fit period grid
	spend, err := r.channelSpend(ctx, run, baseline, channelID)
	if err != nil {
		return nil, err
	}

	// 5. Scale spend, re-apply the fitted transforms, assemble the projection
	projection, err := r.buildProjection(run, baseline, params, spend, scenario)
	if err != nil {
		return nil, err
	}

	// 6. Persist ScenarioProjection
	if r.projectionStore != nil {
		if err := r.projectionStore.Insert(ctx, projection); err != nil {
			return nil, err
		}
	}

	return projection, nil
}

// ProjectRun computes projections for every channel of a run under each
// predefined scenario, in canonical order, and persists them as one batch.
func (r *Runner) ProjectRun(ctx context.Context, runID string) ([]*domain.ScenarioProjection, error) {
	// 1. Load model run by ID
	run, err := r.runStore.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	// 2. Load the run's stored transform outputs
	baseline, err := r.loadBaseline(ctx, runID)
	if err != nil {
		return nil, err
	}

	// 3. Project each channel under each scenario
	scenarios := domain.AllScenarios()
	projections := make([]*domain.ScenarioProjection, 0, len(run.Channels)*len(scenarios))
	for _, ch := range run.Channels {
		spend, err := r.channelSpend(ctx, run, baseline, ch.ChannelID)
		if err != nil {
			return nil, err
		}

		for _, scenario := range scenarios {
			projection, err := r.buildProjection(run, baseline, ch, spend, scenario)
			if err != nil {
				return nil, err
			}
			projections = append(projections, projection)
		}
	}

	// 4. Persist the batch
	if r.projectionStore != nil && len(projections) > 0 {
		if err := r.projectionStore.InsertBulk(ctx, projections); err != nil {
			return nil, err
		}
	}

	return projections, nil
}

// MarginalResponse estimates the outcome change per unit of channel spend
// around the current level, as a central difference between the stored boost
// and cut projections. Returns 0 when the channel has no spend on the grid.
func (r *Runner) MarginalResponse(ctx context.Context, runID, channelID string) (float64, error) {
	run, err := r.runStore.GetByID(ctx, runID)
	if err != nil {
		return 0, err
	}

	boost, err := r.projectionStore.GetByKey(ctx, runID, domain.ScenarioBoost, channelID)
	if err != nil {
		return 0, err
	}
	cut, err := r.projectionStore.GetByKey(ctx, runID, domain.ScenarioCut, channelID)
	if err != nil {
		return 0, err
	}

	baseline, err := r.loadBaseline(ctx, runID)
	if err != nil {
		return 0, err
	}
	spend, err := r.channelSpend(ctx, run, baseline, channelID)
	if err != nil {
		return 0, err
	}

	spendDelta := (domain.ScenarioConfigBoost.SpendMultiplier - domain.ScenarioConfigCut.SpendMultiplier) * sumSeries(spend)
	if spendDelta == 0 {
		return 0, nil
	}
	return (boost.ProjectedOutcome - cut.ProjectedOutcome) / spendDelta, nil
}

// loadBaseline loads the run's stored transform outputs grouped by channel.
func (r *Runner) loadBaseline(ctx context.Context, runID string) (*baselineIndex, error) {
	points, err := r.transformedStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, ErrNoTransformedData
	}
	return buildBaselineIndex(points), nil
}

// channelSpend loads the channel's raw spend series aligned to the run's
// fit period grid. Periods with no stored spend point contribute zero.
func (r *Runner) channelSpend(ctx context.Context, run *domain.ModelRun, baseline *baselineIndex, channelID string) ([]float64, error) {
	channelPoints := baseline.points[channelID]
	if len(channelPoints) == 0 {
		return nil, fmt.Errorf("channel %s: %w", channelID, ErrNoTransformedData)
	}

	spendPoints, err := r.spendTimeseriesStore.GetByChannelID(ctx, channelID, run.PeriodSeconds)
	if err != nil {
		return nil, err
	}

	return alignSpend(spendPoints, periodGrid(channelPoints)), nil
}

// buildProjection scales the channel's spend by the scenario multiplier,
// re-applies the channel's fitted transforms, and assembles the projection.
// Other channels are held at their stored baseline transform outputs, so the
// baseline scenario (multiplier 1.0) reproduces the baseline outcome exactly.
func (r *Runner) buildProjection(run *domain.ModelRun, baseline *baselineIndex, params domain.ChannelParams, spend []float64, scenario domain.ScenarioConfig) (*domain.ScenarioProjection, error) {
	scaled := scaleSeries(spend, scenario.SpendMultiplier)
	_, saturated, err := transform.ApplyChannel(scaled, params.Adstock, params.Saturation)
	if err != nil {
		return nil, fmt.Errorf("channel %s: %w", params.ChannelID, err)
	}
	scaledSum := sumSeries(saturated)

	projected := run.Intercept * float64(run.TrainPeriods)
	baselineOutcome := run.Intercept * float64(run.TrainPeriods)
	for _, ch := range run.Channels {
		baseSum := baseline.saturatedSum[ch.ChannelID]
		baselineOutcome += ch.Beta * baseSum
		if ch.ChannelID == params.ChannelID {
			projected += ch.Beta * scaledSum
		} else {
			projected += ch.Beta * baseSum
		}
	}

	delta := projected - baselineOutcome
	deltaPct := 0.0
	if baselineOutcome != 0 {
		deltaPct = delta / baselineOutcome * 100
	}

	return &domain.ScenarioProjection{
		RunID:            run.RunID,
		ScenarioID:       scenario.ScenarioID,
		ChannelID:        params.ChannelID,
		ProjectedOutcome: projected,
		BaselineOutcome:  baselineOutcome,
		Delta:            delta,
		DeltaPct:         deltaPct,
		CreatedAt:        r.now(),
	}, nil
}

// channelParams finds the fitted parameters for a channel within a run.
func channelParams(run *domain.ModelRun, channelID string) (domain.ChannelParams, bool) {
	for _, ch := range run.Channels {
		if ch.ChannelID == channelID {
			return ch, true
		}
	}
	return domain.ChannelParams{}, false
}

// baselineIndex groups a run's stored transform outputs by channel.
type baselineIndex struct {
	points       map[string][]*domain.TransformedPoint
	saturatedSum map[string]float64
}

func buildBaselineIndex(points []*domain.TransformedPoint) *baselineIndex {
	idx := &baselineIndex{
		points:       make(map[string][]*domain.TransformedPoint),
		saturatedSum: make(map[string]float64),
	}
	for _, p := range points {
		idx.points[p.ChannelID] = append(idx.points[p.ChannelID], p)
		idx.saturatedSum[p.ChannelID] += p.Saturated
	}
	return idx
}
