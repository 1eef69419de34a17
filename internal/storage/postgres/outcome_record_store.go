package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
)

// OutcomeRecordStore implements storage.OutcomeRecordStore using PostgreSQL.
type OutcomeRecordStore struct {
	pool *Pool
}

// NewOutcomeRecordStore creates a new OutcomeRecordStore.
func NewOutcomeRecordStore(pool *Pool) *OutcomeRecordStore {
	return &OutcomeRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OutcomeRecordStore = (*OutcomeRecordStore)(nil)

// Insert adds a new record. Returns ErrDuplicateKey if (metric, batch_id, record_index) exists.
func (s *OutcomeRecordStore) Insert(ctx context.Context, r *domain.OutcomeRecord) error {
	query := `
		INSERT INTO outcome_records (
			metric, batch_id, record_index, period_start, value
		) VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.pool.Exec(ctx, query,
		r.Metric,
		r.BatchID,
		r.RecordIndex,
		r.PeriodStart,
		r.Value,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert outcome record: %w", err)
	}
	return nil
}

// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
func (s *OutcomeRecordStore) InsertBulk(ctx context.Context, records []*domain.OutcomeRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO outcome_records (
			metric, batch_id, record_index, period_start, value
		) VALUES ($1, $2, $3, $4, $5)
	`

	for _, r := range records {
		_, err := tx.Exec(ctx, query,
			r.Metric,
			r.BatchID,
			r.RecordIndex,
			r.PeriodStart,
			r.Value,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert outcome record in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByMetric retrieves all records for a metric, ordered by period_start ASC.
func (s *OutcomeRecordStore) GetByMetric(ctx context.Context, metric string) ([]*domain.OutcomeRecord, error) {
	query := `
		SELECT id, metric, batch_id, record_index, period_start, value, created_at
		FROM outcome_records
		WHERE metric = $1
		ORDER BY period_start ASC, batch_id ASC, record_index ASC
	`

	rows, err := s.pool.Query(ctx, query, metric)
	if err != nil {
		return nil, fmt.Errorf("get outcome records by metric: %w", err)
	}
	defer rows.Close()

	return scanOutcomeRecords(rows)
}

// GetByTimeRange retrieves records for a metric within [start, end] (inclusive).
func (s *OutcomeRecordStore) GetByTimeRange(ctx context.Context, metric string, start, end int64) ([]*domain.OutcomeRecord, error) {
	query := `
		SELECT id, metric, batch_id, record_index, period_start, value, created_at
		FROM outcome_records
		WHERE metric = $1 AND period_start >= $2 AND period_start <= $3
		ORDER BY period_start ASC, batch_id ASC, record_index ASC
	`

	rows, err := s.pool.Query(ctx, query, metric, start, end)
	if err != nil {
		return nil, fmt.Errorf("get outcome records by time range: %w", err)
	}
	defer rows.Close()

	return scanOutcomeRecords(rows)
}

// scanOutcomeRecords scans multiple rows into a slice of OutcomeRecord.
func scanOutcomeRecords(rows pgx.Rows) ([]*domain.OutcomeRecord, error) {
	var records []*domain.OutcomeRecord

	for rows.Next() {
		var r domain.OutcomeRecord

		err := rows.Scan(
			&r.ID,
			&r.Metric,
			&r.BatchID,
			&r.RecordIndex,
			&r.PeriodStart,
			&r.Value,
			&r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan outcome record row: %w", err)
		}

		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcome record rows: %w", err)
	}

	return records, nil
}
