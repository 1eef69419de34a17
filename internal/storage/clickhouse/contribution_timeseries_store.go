package clickhouse

import (
	"context"
	"fmt"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
)

// ContributionTimeseriesStore implements storage.ContributionTimeseriesStore using ClickHouse.
type ContributionTimeseriesStore struct {
	conn *Conn
}

// NewContributionTimeseriesStore creates a new ContributionTimeseriesStore.
func NewContributionTimeseriesStore(conn *Conn) *ContributionTimeseriesStore {
	return &ContributionTimeseriesStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ContributionTimeseriesStore = (*ContributionTimeseriesStore)(nil)

// InsertBulk adds multiple points. Fails entire batch on duplicate (run_id, channel_id, period_start).
func (s *ContributionTimeseriesStore) InsertBulk(ctx context.Context, points []*domain.ContributionPoint) error {
	if len(points) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		runID       string
		channelID   string
		periodStart int64
	}
	seen := make(map[key]struct{})
	for _, p := range points {
		k := key{p.RunID, p.ChannelID, p.PeriodStart}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, p := range points {
		exists, err := s.exists(ctx, p.RunID, p.ChannelID, p.PeriodStart)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO contribution_timeseries (
			run_id, channel_id, period_start, contribution, spend
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(
			p.RunID, p.ChannelID, uint64(p.PeriodStart),
			p.Contribution, p.Spend,
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

// GetByRunChannel retrieves all points for a run/channel, ordered by period_start ASC.
func (s *ContributionTimeseriesStore) GetByRunChannel(ctx context.Context, runID, channelID string) ([]*domain.ContributionPoint, error) {
	query := `
		SELECT run_id, channel_id, period_start, contribution, spend
		FROM contribution_timeseries
		WHERE run_id = ? AND channel_id = ?
		ORDER BY period_start ASC
	`

	rows, err := s.conn.Query(ctx, query, runID, channelID)
	if err != nil {
		return nil, fmt.Errorf("query by run/channel: %w", err)
	}
	defer rows.Close()

	return scanContributionTimeseries(rows)
}

// GetByRunID retrieves all points for a run, ordered by channel_id, period_start ASC.
func (s *ContributionTimeseriesStore) GetByRunID(ctx context.Context, runID string) ([]*domain.ContributionPoint, error) {
	query := `
		SELECT run_id, channel_id, period_start, contribution, spend
		FROM contribution_timeseries
		WHERE run_id = ?
		ORDER BY channel_id ASC, period_start ASC
	`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query by run id: %w", err)
	}
	defer rows.Close()

	return scanContributionTimeseries(rows)
}

// exists checks if a point with the given key exists.
func (s *ContributionTimeseriesStore) exists(ctx context.Context, runID, channelID string, periodStart int64) (bool, error) {
	query := `
		SELECT count(*) FROM contribution_timeseries
		WHERE run_id = ? AND channel_id = ? AND period_start = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, runID, channelID, uint64(periodStart)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanContributionTimeseries scans multiple rows.
func scanContributionTimeseries(rows chRows) ([]*domain.ContributionPoint, error) {
	var points []*domain.ContributionPoint

	for rows.Next() {
		var p domain.ContributionPoint
		var periodStart uint64

		err := rows.Scan(
			&p.RunID, &p.ChannelID, &periodStart,
			&p.Contribution, &p.Spend,
		)
		if err != nil {
			return nil, fmt.Errorf("scan contribution timeseries row: %w", err)
		}

		p.PeriodStart = int64(periodStart)
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contribution timeseries rows: %w", err)
	}

	return points, nil
}
