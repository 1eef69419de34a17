package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
)

// IngestProgressStore is a PostgreSQL implementation of storage.IngestProgressStore.
// Uses two tables:
//   - ingest_progress: per-source high-water mark (batch seq, period start)
//   - ingest_seen_channels: set of registered channel IDs
type IngestProgressStore struct {
	pool *Pool
}

// NewIngestProgressStore creates a new PostgreSQL ingest progress store.
func NewIngestProgressStore(pool *Pool) *IngestProgressStore {
	return &IngestProgressStore{pool: pool}
}

// Compile-time interface check.
var _ storage.IngestProgressStore = (*IngestProgressStore)(nil)

// GetProgress returns the high-water mark for a source.
func (s *IngestProgressStore) GetProgress(ctx context.Context, sourceID string) (*domain.IngestProgress, error) {
	if sourceID == "" {
		return nil, storage.ErrInvalidInput
	}

	row := s.pool.QueryRow(ctx, `
		SELECT source_id, last_batch_seq, last_period_start, updated_at
		FROM ingest_progress
		WHERE source_id = $1
	`, sourceID)

	var progress domain.IngestProgress
	err := row.Scan(&progress.SourceID, &progress.LastBatchSeq, &progress.LastPeriodStart, &progress.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	return &progress, nil
}

// SetProgress saves the high-water mark for a source.
// Uses upsert to handle initial insert and subsequent updates.
func (s *IngestProgressStore) SetProgress(ctx context.Context, progress *domain.IngestProgress) error {
	if progress == nil || progress.SourceID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO ingest_progress (source_id, last_batch_seq, last_period_start, updated_at)
		VALUES ($1, $2, $3, (EXTRACT(EPOCH FROM NOW()) * 1000)::BIGINT)
		ON CONFLICT (source_id) DO UPDATE
		SET last_batch_seq = EXCLUDED.last_batch_seq,
		    last_period_start = EXCLUDED.last_period_start,
		    updated_at = EXCLUDED.updated_at
	`, progress.SourceID, progress.LastBatchSeq, progress.LastPeriodStart)

	return err
}

// IsChannelSeen checks if a channel has already been registered.
func (s *IngestProgressStore) IsChannelSeen(ctx context.Context, channelID string) (bool, error) {
	if channelID == "" {
		return false, storage.ErrInvalidInput
	}

	row := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM ingest_seen_channels WHERE channel_id = $1)
	`, channelID)

	var exists bool
	err := row.Scan(&exists)
	if err != nil {
		return false, err
	}

	return exists, nil
}

// MarkChannelSeen records that a channel has been registered.
func (s *IngestProgressStore) MarkChannelSeen(ctx context.Context, channelID string) error {
	if channelID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO ingest_seen_channels (channel_id, seen_at)
		VALUES ($1, (EXTRACT(EPOCH FROM NOW()) * 1000)::BIGINT)
		ON CONFLICT (channel_id) DO NOTHING
	`, channelID)

	return err
}

// LoadSeenChannels returns all seen channels.
func (s *IngestProgressStore) LoadSeenChannels(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT channel_id FROM ingest_seen_channels
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []string
	for rows.Next() {
		var channelID string
		if err := rows.Scan(&channelID); err != nil {
			return nil, err
		}
		channels = append(channels, channelID)
	}

	return channels, rows.Err()
}
