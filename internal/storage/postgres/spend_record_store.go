package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
)

// SpendRecordStore implements storage.SpendRecordStore using PostgreSQL.
type SpendRecordStore struct {
	pool *Pool
}

// NewSpendRecordStore creates a new SpendRecordStore.
func NewSpendRecordStore(pool *Pool) *SpendRecordStore {
	return &SpendRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SpendRecordStore = (*SpendRecordStore)(nil)

// Insert adds a new record. Returns ErrDuplicateKey if (channel_id, batch_id, record_index) exists.
func (s *SpendRecordStore) Insert(ctx context.Context, r *domain.SpendRecord) error {
	query := `
		INSERT INTO spend_records (
			channel_id, batch_id, record_index, period_start, spend, impressions
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query,
		r.ChannelID,
		r.BatchID,
		r.RecordIndex,
		r.PeriodStart,
		r.Spend,
		r.Impressions,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert spend record: %w", err)
	}
	return nil
}

// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
func (s *SpendRecordStore) InsertBulk(ctx context.Context, records []*domain.SpendRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO spend_records (
			channel_id, batch_id, record_index, period_start, spend, impressions
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	for _, r := range records {
		_, err := tx.Exec(ctx, query,
			r.ChannelID,
			r.BatchID,
			r.RecordIndex,
			r.PeriodStart,
			r.Spend,
			r.Impressions,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert spend record in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByChannelID retrieves all records for a channel, ordered by period_start ASC.
func (s *SpendRecordStore) GetByChannelID(ctx context.Context, channelID string) ([]*domain.SpendRecord, error) {
	query := `
		SELECT id, channel_id, batch_id, record_index, period_start, spend, impressions, created_at
		FROM spend_records
		WHERE channel_id = $1
		ORDER BY period_start ASC, batch_id ASC, record_index ASC
	`

	rows, err := s.pool.Query(ctx, query, channelID)
	if err != nil {
		return nil, fmt.Errorf("get spend records by channel id: %w", err)
	}
	defer rows.Close()

	return scanSpendRecords(rows)
}

// GetByTimeRange retrieves records for a channel within [start, end] (inclusive).
func (s *SpendRecordStore) GetByTimeRange(ctx context.Context, channelID string, start, end int64) ([]*domain.SpendRecord, error) {
	query := `
		SELECT id, channel_id, batch_id, record_index, period_start, spend, impressions, created_at
		FROM spend_records
		WHERE channel_id = $1 AND period_start >= $2 AND period_start <= $3
		ORDER BY period_start ASC, batch_id ASC, record_index ASC
	`

	rows, err := s.pool.Query(ctx, query, channelID, start, end)
	if err != nil {
		return nil, fmt.Errorf("get spend records by time range: %w", err)
	}
	defer rows.Close()

	return scanSpendRecords(rows)
}

// scanSpendRecords scans multiple rows into a slice of SpendRecord.
func scanSpendRecords(rows pgx.Rows) ([]*domain.SpendRecord, error) {
	var records []*domain.SpendRecord

	for rows.Next() {
		var r domain.SpendRecord

		err := rows.Scan(
			&r.ID,
			&r.ChannelID,
			&r.BatchID,
			&r.RecordIndex,
			&r.PeriodStart,
			&r.Spend,
			&r.Impressions,
			&r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan spend record row: %w", err)
		}

		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spend record rows: %w", err)
	}

	return records, nil
}
