package clickhouse

import (
	"context"
	"fmt"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
)

// ChannelAggregateStore implements storage.ChannelAggregateStore using ClickHouse.
type ChannelAggregateStore struct {
	conn *Conn
}

// NewChannelAggregateStore creates a new ChannelAggregateStore.
func NewChannelAggregateStore(conn *Conn) *ChannelAggregateStore {
	return &ChannelAggregateStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ChannelAggregateStore = (*ChannelAggregateStore)(nil)

// Insert adds a new aggregate. Returns ErrDuplicateKey if (run_id, channel_id) exists.
func (s *ChannelAggregateStore) Insert(ctx context.Context, a *domain.ChannelAggregate) error {
	// Check if exists (ReplacingMergeTree would replace, but we want append-only semantics)
	exists, err := s.exists(ctx, a.RunID, a.ChannelID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	query := `
		INSERT INTO channel_aggregates (
			run_id, channel_id, period_count,
			total_spend, total_contribution, contribution_share, spend_share, cost_per_outcome,
			contribution_mean, contribution_median, contribution_p10, contribution_p90,
			contribution_min, contribution_max, contribution_stddev,
			peak_period_start
		) VALUES (
			?, ?, ?,
			?, ?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?,
			?
		)
	`

	err = s.conn.Exec(ctx, query,
		a.RunID, a.ChannelID, uint32(a.PeriodCount),
		a.TotalSpend, a.TotalContribution, a.ContributionShare, a.SpendShare, a.CostPerOutcome,
		a.ContributionMean, a.ContributionMedian, a.ContributionP10, a.ContributionP90,
		a.ContributionMin, a.ContributionMax, a.ContributionStddev,
		uint64(a.PeakPeriodStart),
	)
	if err != nil {
		return fmt.Errorf("insert channel aggregate: %w", err)
	}
	return nil
}

// InsertBulk adds multiple aggregates atomically. Fails entire batch on any duplicate.
func (s *ChannelAggregateStore) InsertBulk(ctx context.Context, aggregates []*domain.ChannelAggregate) error {
	if len(aggregates) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[string]struct{})
	for _, a := range aggregates {
		key := a.RunID + "|" + a.ChannelID
		if _, exists := seen[key]; exists {
			return storage.ErrDuplicateKey
		}
		seen[key] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, a := range aggregates {
		exists, err := s.exists(ctx, a.RunID, a.ChannelID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO channel_aggregates (
			run_id, channel_id, period_count,
			total_spend, total_contribution, contribution_share, spend_share, cost_per_outcome,
			contribution_mean, contribution_median, contribution_p10, contribution_p90,
			contribution_min, contribution_max, contribution_stddev,
			peak_period_start
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, a := range aggregates {
		err = batch.Append(
			a.RunID, a.ChannelID, uint32(a.PeriodCount),
			a.TotalSpend, a.TotalContribution, a.ContributionShare, a.SpendShare, a.CostPerOutcome,
			a.ContributionMean, a.ContributionMedian, a.ContributionP10, a.ContributionP90,
			a.ContributionMin, a.ContributionMax, a.ContributionStddev,
			uint64(a.PeakPeriodStart),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByKey retrieves an aggregate by its composite key.
func (s *ChannelAggregateStore) GetByKey(ctx context.Context, runID, channelID string) (*domain.ChannelAggregate, error) {
	query := `
		SELECT
			run_id, channel_id, period_count,
			total_spend, total_contribution, contribution_share, spend_share, cost_per_outcome,
			contribution_mean, contribution_median, contribution_p10, contribution_p90,
			contribution_min, contribution_max, contribution_stddev,
			peak_period_start
		FROM channel_aggregates FINAL
		WHERE run_id = ? AND channel_id = ?
		LIMIT 1
	`

	row := s.conn.QueryRow(ctx, query, runID, channelID)

	var a domain.ChannelAggregate
	var periodCount uint32
	var peakPeriodStart uint64
	err := row.Scan(
		&a.RunID, &a.ChannelID, &periodCount,
		&a.TotalSpend, &a.TotalContribution, &a.ContributionShare, &a.SpendShare, &a.CostPerOutcome,
		&a.ContributionMean, &a.ContributionMedian, &a.ContributionP10, &a.ContributionP90,
		&a.ContributionMin, &a.ContributionMax, &a.ContributionStddev,
		&peakPeriodStart,
	)
	if err != nil {
		return nil, storage.ErrNotFound
	}

	a.PeriodCount = int(periodCount)
	a.PeakPeriodStart = int64(peakPeriodStart)
	return &a, nil
}

// GetByRunID retrieves all aggregates for a run, ordered by channel_id ASC.
func (s *ChannelAggregateStore) GetByRunID(ctx context.Context, runID string) ([]*domain.ChannelAggregate, error) {
	query := `
		SELECT
			run_id, channel_id, period_count,
			total_spend, total_contribution, contribution_share, spend_share, cost_per_outcome,
			contribution_mean, contribution_median, contribution_p10, contribution_p90,
			contribution_min, contribution_max, contribution_stddev,
			peak_period_start
		FROM channel_aggregates FINAL
		WHERE run_id = ?
		ORDER BY channel_id ASC
	`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query by run id: %w", err)
	}
	defer rows.Close()

	return scanChannelAggregates(rows)
}

// GetAll retrieves all aggregates.
func (s *ChannelAggregateStore) GetAll(ctx context.Context) ([]*domain.ChannelAggregate, error) {
	query := `
		SELECT
			run_id, channel_id, period_count,
			total_spend, total_contribution, contribution_share, spend_share, cost_per_outcome,
			contribution_mean, contribution_median, contribution_p10, contribution_p90,
			contribution_min, contribution_max, contribution_stddev,
			peak_period_start
		FROM channel_aggregates FINAL
		ORDER BY run_id ASC, channel_id ASC
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query all: %w", err)
	}
	defer rows.Close()

	return scanChannelAggregates(rows)
}

// exists checks if an aggregate with the given key exists.
func (s *ChannelAggregateStore) exists(ctx context.Context, runID, channelID string) (bool, error) {
	query := `
		SELECT count(*) FROM channel_aggregates FINAL
		WHERE run_id = ? AND channel_id = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, runID, channelID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanChannelAggregates scans multiple rows into a slice.
func scanChannelAggregates(rows chRows) ([]*domain.ChannelAggregate, error) {
	var aggregates []*domain.ChannelAggregate

	for rows.Next() {
		var a domain.ChannelAggregate
		var periodCount uint32
		var peakPeriodStart uint64

		err := rows.Scan(
			&a.RunID, &a.ChannelID, &periodCount,
			&a.TotalSpend, &a.TotalContribution, &a.ContributionShare, &a.SpendShare, &a.CostPerOutcome,
			&a.ContributionMean, &a.ContributionMedian, &a.ContributionP10, &a.ContributionP90,
			&a.ContributionMin, &a.ContributionMax, &a.ContributionStddev,
			&peakPeriodStart,
		)
		if err != nil {
			return nil, fmt.Errorf("scan aggregate row: %w", err)
		}

		a.PeriodCount = int(periodCount)
		a.PeakPeriodStart = int64(peakPeriodStart)
		aggregates = append(aggregates, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregate rows: %w", err)
	}

	return aggregates, nil
}
