package storage

import (
	"context"

	"mediamix-lab/internal/domain"
)

// ChannelStore provides access to channels storage.
type ChannelStore interface {
	// Insert adds a new channel. Returns ErrDuplicateKey if channel_id exists.
	Insert(ctx context.Context, c *domain.Channel) error

	// GetByID retrieves a channel by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, channelID string) (*domain.Channel, error)

	// GetByMedium retrieves all channels of a given medium.
	GetByMedium(ctx context.Context, medium string) ([]*domain.Channel, error)

	// GetBySource retrieves all channels of a given source type.
	GetBySource(ctx context.Context, source domain.Source) ([]*domain.Channel, error)

	// GetAll retrieves all channels, ordered by name ASC.
	GetAll(ctx context.Context) ([]*domain.Channel, error)
}

// SpendRecordStore provides access to spend_records storage.
type SpendRecordStore interface {
	// Insert adds a new record. Returns ErrDuplicateKey if (channel_id, batch_id, record_index) exists.
	Insert(ctx context.Context, r *domain.SpendRecord) error

	// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, records []*domain.SpendRecord) error

	// GetByChannelID retrieves all records for a channel, ordered by period_start ASC.
	GetByChannelID(ctx context.Context, channelID string) ([]*domain.SpendRecord, error)

	// GetByTimeRange retrieves records for a channel within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, channelID string, start, end int64) ([]*domain.SpendRecord, error)
}

// OutcomeRecordStore provides access to outcome_records storage.
type OutcomeRecordStore interface {
	// Insert adds a new record. Returns ErrDuplicateKey if (metric, batch_id, record_index) exists.
	Insert(ctx context.Context, r *domain.OutcomeRecord) error

	// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, records []*domain.OutcomeRecord) error

	// GetByMetric retrieves all records for a metric, ordered by period_start ASC.
	GetByMetric(ctx context.Context, metric string) ([]*domain.OutcomeRecord, error)

	// GetByTimeRange retrieves records for a metric within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, metric string, start, end int64) ([]*domain.OutcomeRecord, error)
}

// ModelRunStore provides access to model_runs storage.
type ModelRunStore interface {
	// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, run *domain.ModelRun) error

	// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.ModelRun, error)

	// GetLatest retrieves the most recently created run for (metric, period_seconds).
	// Returns ErrNotFound if none exists.
	GetLatest(ctx context.Context, metric string, periodSeconds int) (*domain.ModelRun, error)

	// GetAll retrieves all runs, ordered by created_at ASC.
	GetAll(ctx context.Context) ([]*domain.ModelRun, error)
}

// ScenarioProjectionStore provides access to scenario_projections storage.
type ScenarioProjectionStore interface {
	// Insert adds a new projection. Returns ErrDuplicateKey if (run_id, scenario_id, channel_id) exists.
	Insert(ctx context.Context, p *domain.ScenarioProjection) error

	// InsertBulk adds multiple projections atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, projections []*domain.ScenarioProjection) error

	// GetByRunID retrieves all projections for a run.
	GetByRunID(ctx context.Context, runID string) ([]*domain.ScenarioProjection, error)

	// GetByKey retrieves a projection by its composite key. Returns ErrNotFound if not exists.
	GetByKey(ctx context.Context, runID, scenarioID, channelID string) (*domain.ScenarioProjection, error)
}

// SpendTimeseriesStore provides access to spend_timeseries storage.
type SpendTimeseriesStore interface {
	// InsertBulk adds multiple points. Fails entire batch on duplicate (channel_id, period_start, period_seconds).
	InsertBulk(ctx context.Context, points []*domain.SpendTimeseriesPoint) error

	// GetByChannelID retrieves all points for a channel at one period size, ordered by period_start ASC.
	GetByChannelID(ctx context.Context, channelID string, periodSeconds int) ([]*domain.SpendTimeseriesPoint, error)

	// GetByTimeRange retrieves points for a channel within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, channelID string, periodSeconds int, start, end int64) ([]*domain.SpendTimeseriesPoint, error)
}

// OutcomeTimeseriesStore provides access to outcome_timeseries storage.
type OutcomeTimeseriesStore interface {
	// InsertBulk adds multiple points. Fails entire batch on duplicate (metric, period_start, period_seconds).
	InsertBulk(ctx context.Context, points []*domain.OutcomeTimeseriesPoint) error

	// GetByMetric retrieves all points for a metric at one period size, ordered by period_start ASC.
	GetByMetric(ctx context.Context, metric string, periodSeconds int) ([]*domain.OutcomeTimeseriesPoint, error)

	// GetByTimeRange retrieves points for a metric within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, metric string, periodSeconds int, start, end int64) ([]*domain.OutcomeTimeseriesPoint, error)
}

// TransformedTimeseriesStore provides access to transformed_timeseries storage.
type TransformedTimeseriesStore interface {
	// InsertBulk adds multiple points. Fails entire batch on duplicate (run_id, channel_id, period_start).
	InsertBulk(ctx context.Context, points []*domain.TransformedPoint) error

	// GetByRunChannel retrieves all points for a run/channel, ordered by period_start ASC.
	GetByRunChannel(ctx context.Context, runID, channelID string) ([]*domain.TransformedPoint, error)

	// GetByRunID retrieves all points for a run, ordered by channel_id, period_start ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.TransformedPoint, error)
}

// ContributionTimeseriesStore provides access to contribution_timeseries storage.
type ContributionTimeseriesStore interface {
	// InsertBulk adds multiple points. Fails entire batch on duplicate (run_id, channel_id, period_start).
	InsertBulk(ctx context.Context, points []*domain.ContributionPoint) error

	// GetByRunChannel retrieves all points for a run/channel, ordered by period_start ASC.
	GetByRunChannel(ctx context.Context, runID, channelID string) ([]*domain.ContributionPoint, error)

	// GetByRunID retrieves all points for a run, ordered by channel_id, period_start ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.ContributionPoint, error)
}

// ChannelAggregateStore provides access to channel_aggregates storage.
type ChannelAggregateStore interface {
	// Insert adds a new aggregate. Returns ErrDuplicateKey if (run_id, channel_id) exists.
	Insert(ctx context.Context, a *domain.ChannelAggregate) error

	// InsertBulk adds multiple aggregates atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, aggregates []*domain.ChannelAggregate) error

	// GetByKey retrieves an aggregate by its composite key. Returns ErrNotFound if not exists.
	GetByKey(ctx context.Context, runID, channelID string) (*domain.ChannelAggregate, error)

	// GetByRunID retrieves all aggregates for a run, ordered by channel_id ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.ChannelAggregate, error)

	// GetAll retrieves all aggregates.
	GetAll(ctx context.Context) ([]*domain.ChannelAggregate, error)
}
