package contribution

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
)

// ErrNoContributions is returned when no points are available for aggregation.
var ErrNoContributions = errors.New("no contribution points available for aggregation")

// Aggregator computes channel aggregates from contribution points.
type Aggregator struct {
	runStore          storage.ModelRunStore
	contributionStore storage.ContributionTimeseriesStore
	aggregateStore    storage.ChannelAggregateStore

	// MissingChannels tracks run channels with no stored contribution
	// points (for data quality reporting). Key: channel_id, Value: count
	// of aggregation attempts that found nothing.
	MissingChannels map[string]int
}

// NewAggregator creates a new contribution aggregator.
func NewAggregator(runStore storage.ModelRunStore, contributionStore storage.ContributionTimeseriesStore, aggregateStore storage.ChannelAggregateStore) *Aggregator {
	return &Aggregator{
		runStore:          runStore,
		contributionStore: contributionStore,
		aggregateStore:    aggregateStore,
		MissingChannels:   make(map[string]int),
	}
}

// ComputeAggregate computes the aggregate for a specific (run_id, channel_id).
// Share denominators come from the whole run: total modeled outcome includes
// the intercept base plus every channel's contribution.
// Returns ErrNoContributions if the channel has no stored points.
func (a *Aggregator) ComputeAggregate(ctx context.Context, runID, channelID string) (*domain.ChannelAggregate, error) {
	run, err := a.runStore.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	points, err := a.contributionStore.GetByRunChannel(ctx, runID, channelID)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		a.MissingChannels[channelID]++
		return nil, ErrNoContributions
	}

	allPoints, err := a.contributionStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}

	totals := computeRunTotals(run, allPoints)
	return computeFromPoints(runID, channelID, points, totals), nil
}

// ComputeAndStore computes and persists a single channel aggregate.
// Returns storage.ErrDuplicateKey if the aggregate already exists (append-only).
func (a *Aggregator) ComputeAndStore(ctx context.Context, runID, channelID string) (*domain.ChannelAggregate, error) {
	agg, err := a.ComputeAggregate(ctx, runID, channelID)
	if err != nil {
		return nil, err
	}

	if err := a.aggregateStore.Insert(ctx, agg); err != nil {
		return nil, err
	}

	return agg, nil
}

// ComputeRunAggregates computes aggregates for every channel of a run, in
// the run's channel order, and persists them in one batch. Channels with
// no stored points are recorded in MissingChannels and skipped.
func (a *Aggregator) ComputeRunAggregates(ctx context.Context, runID string) ([]*domain.ChannelAggregate, error) {
	run, err := a.runStore.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	allPoints, err := a.contributionStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(allPoints) == 0 {
		return nil, ErrNoContributions
	}

	byChannel := make(map[string][]*domain.ContributionPoint)
	for _, p := range allPoints {
		byChannel[p.ChannelID] = append(byChannel[p.ChannelID], p)
	}

	totals := computeRunTotals(run, allPoints)

	var aggregates []*domain.ChannelAggregate
	for _, ch := range run.Channels {
		points := byChannel[ch.ChannelID]
		if len(points) == 0 {
			a.MissingChannels[ch.ChannelID]++
			continue
		}
		aggregates = append(aggregates, computeFromPoints(runID, ch.ChannelID, points, totals))
	}

	if len(aggregates) == 0 {
		return nil, ErrNoContributions
	}

	if err := a.aggregateStore.InsertBulk(ctx, aggregates); err != nil {
		return nil, err
	}

	return aggregates, nil
}

// GetMissingChannelErrors returns data quality errors for run channels that
// had no contribution points, sorted by channel_id for deterministic output.
func (a *Aggregator) GetMissingChannelErrors() []string {
	if len(a.MissingChannels) == 0 {
		return nil
	}

	keys := make([]string, 0, len(a.MissingChannels))
	for k := range a.MissingChannels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	errs := make([]string, len(keys))
	for i, channelID := range keys {
		count := a.MissingChannels[channelID]
		errs[i] = fmt.Sprintf("no contribution points for channel %s (%d attempt(s))", channelID, count)
	}
	return errs
}
