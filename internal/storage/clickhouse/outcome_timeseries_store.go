package clickhouse

import (
	"context"
	"fmt"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
)

// OutcomeTimeseriesStore implements storage.OutcomeTimeseriesStore using ClickHouse.
type OutcomeTimeseriesStore struct {
	conn *Conn
}

// NewOutcomeTimeseriesStore creates a new OutcomeTimeseriesStore.
func NewOutcomeTimeseriesStore(conn *Conn) *OutcomeTimeseriesStore {
	return &OutcomeTimeseriesStore{conn: conn}
}

// Compile-time interface check.
var _ storage.OutcomeTimeseriesStore = (*OutcomeTimeseriesStore)(nil)

// InsertBulk adds multiple points. Fails entire batch on duplicate (metric, period_start, period_seconds).
func (s *OutcomeTimeseriesStore) InsertBulk(ctx context.Context, points []*domain.OutcomeTimeseriesPoint) error {
	if len(points) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		metric        string
		periodStart   int64
		periodSeconds int
	}
	seen := make(map[key]struct{})
	for _, p := range points {
		k := key{p.Metric, p.PeriodStart, p.PeriodSeconds}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, p := range points {
		exists, err := s.exists(ctx, p.Metric, p.PeriodStart, p.PeriodSeconds)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO outcome_timeseries (
			metric, period_start, period_seconds, value, record_count
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(
			p.Metric, uint64(p.PeriodStart), uint32(p.PeriodSeconds),
			p.Value, uint32(p.RecordCount),
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

// GetByMetric retrieves all points for a metric at one period size, ordered by period_start ASC.
func (s *OutcomeTimeseriesStore) GetByMetric(ctx context.Context, metric string, periodSeconds int) ([]*domain.OutcomeTimeseriesPoint, error) {
	query := `
		SELECT metric, period_start, period_seconds, value, record_count
		FROM outcome_timeseries
		WHERE metric = ? AND period_seconds = ?
		ORDER BY period_start ASC
	`

	rows, err := s.conn.Query(ctx, query, metric, uint32(periodSeconds))
	if err != nil {
		return nil, fmt.Errorf("query by metric: %w", err)
	}
	defer rows.Close()

	return scanOutcomeTimeseries(rows)
}

// GetByTimeRange retrieves points for a metric within [start, end] (inclusive).
func (s *OutcomeTimeseriesStore) GetByTimeRange(ctx context.Context, metric string, periodSeconds int, start, end int64) ([]*domain.OutcomeTimeseriesPoint, error) {
	query := `
		SELECT metric, period_start, period_seconds, value, record_count
		FROM outcome_timeseries
		WHERE metric = ? AND period_seconds = ? AND period_start >= ? AND period_start <= ?
		ORDER BY period_start ASC
	`

	rows, err := s.conn.Query(ctx, query, metric, uint32(periodSeconds), uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanOutcomeTimeseries(rows)
}

// exists checks if a point with the given key exists.
func (s *OutcomeTimeseriesStore) exists(ctx context.Context, metric string, periodStart int64, periodSeconds int) (bool, error) {
	query := `
		SELECT count(*) FROM outcome_timeseries
		WHERE metric = ? AND period_start = ? AND period_seconds = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, metric, uint64(periodStart), uint32(periodSeconds)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanOutcomeTimeseries scans multiple rows.
func scanOutcomeTimeseries(rows chRows) ([]*domain.OutcomeTimeseriesPoint, error) {
	var points []*domain.OutcomeTimeseriesPoint

	for rows.Next() {
		var p domain.OutcomeTimeseriesPoint
		var periodStart uint64
		var periodSeconds, recordCount uint32

		err := rows.Scan(
			&p.Metric, &periodStart, &periodSeconds,
			&p.Value, &recordCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan outcome timeseries row: %w", err)
		}

		p.PeriodStart = int64(periodStart)
		p.PeriodSeconds = int(periodSeconds)
		p.RecordCount = int(recordCount)
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcome timeseries rows: %w", err)
	}

	return points, nil
}
