package clickhouse

import (
	"context"
	"fmt"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
)

// SpendTimeseriesStore implements storage.SpendTimeseriesStore using ClickHouse.
type SpendTimeseriesStore struct {
	conn *Conn
}

// NewSpendTimeseriesStore creates a new SpendTimeseriesStore.
func NewSpendTimeseriesStore(conn *Conn) *SpendTimeseriesStore {
	return &SpendTimeseriesStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SpendTimeseriesStore = (*SpendTimeseriesStore)(nil)

// InsertBulk adds multiple points. Fails entire batch on duplicate (channel_id, period_start, period_seconds).
func (s *SpendTimeseriesStore) InsertBulk(ctx context.Context, points []*domain.SpendTimeseriesPoint) error {
	if len(points) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		channelID     string
		periodStart   int64
		periodSeconds int
	}
	seen := make(map[key]struct{})
	for _, p := range points {
		k := key{p.ChannelID, p.PeriodStart, p.PeriodSeconds}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, p := range points {
		exists, err := s.exists(ctx, p.ChannelID, p.PeriodStart, p.PeriodSeconds)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO spend_timeseries (
			channel_id, period_start, period_seconds, spend, impressions, record_count
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(
			p.ChannelID, uint64(p.PeriodStart), uint32(p.PeriodSeconds),
			p.Spend, p.Impressions, uint32(p.RecordCount),
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

// GetByChannelID retrieves all points for a channel at one period size, ordered by period_start ASC.
func (s *SpendTimeseriesStore) GetByChannelID(ctx context.Context, channelID string, periodSeconds int) ([]*domain.SpendTimeseriesPoint, error) {
	query := `
		SELECT channel_id, period_start, period_seconds, spend, impressions, record_count
		FROM spend_timeseries
		WHERE channel_id = ? AND period_seconds = ?
		ORDER BY period_start ASC
	`

	rows, err := s.conn.Query(ctx, query, channelID, uint32(periodSeconds))
	if err != nil {
		return nil, fmt.Errorf("query by channel id: %w", err)
	}
	defer rows.Close()

	return scanSpendTimeseries(rows)
}

// GetByTimeRange retrieves points for a channel within [start, end] (inclusive).
func (s *SpendTimeseriesStore) GetByTimeRange(ctx context.Context, channelID string, periodSeconds int, start, end int64) ([]*domain.SpendTimeseriesPoint, error) {
	query := `
		SELECT channel_id, period_start, period_seconds, spend, impressions, record_count
		FROM spend_timeseries
		WHERE channel_id = ? AND period_seconds = ? AND period_start >= ? AND period_start <= ?
		ORDER BY period_start ASC
	`

	rows, err := s.conn.Query(ctx, query, channelID, uint32(periodSeconds), uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanSpendTimeseries(rows)
}

// exists checks if a point with the given key exists.
func (s *SpendTimeseriesStore) exists(ctx context.Context, channelID string, periodStart int64, periodSeconds int) (bool, error) {
	query := `
		SELECT count(*) FROM spend_timeseries
		WHERE channel_id = ? AND period_start = ? AND period_seconds = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, channelID, uint64(periodStart), uint32(periodSeconds)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanSpendTimeseries scans multiple rows.
func scanSpendTimeseries(rows chRows) ([]*domain.SpendTimeseriesPoint, error) {
	var points []*domain.SpendTimeseriesPoint

	for rows.Next() {
		var p domain.SpendTimeseriesPoint
		var periodStart uint64
		var periodSeconds, recordCount uint32

		err := rows.Scan(
			&p.ChannelID, &periodStart, &periodSeconds,
			&p.Spend, &p.Impressions, &recordCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan spend timeseries row: %w", err)
		}

		p.PeriodStart = int64(periodStart)
		p.PeriodSeconds = int(periodSeconds)
		p.RecordCount = int(recordCount)
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spend timeseries rows: %w", err)
	}

	return points, nil
}
