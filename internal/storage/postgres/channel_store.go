package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
)

// ChannelStore implements storage.ChannelStore using PostgreSQL.
type ChannelStore struct {
	pool *Pool
}

// NewChannelStore creates a new ChannelStore.
func NewChannelStore(pool *Pool) *ChannelStore {
	return &ChannelStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ChannelStore = (*ChannelStore)(nil)

// Insert adds a new channel. Returns ErrDuplicateKey if channel_id exists.
func (s *ChannelStore) Insert(ctx context.Context, c *domain.Channel) error {
	query := `
		INSERT INTO channels (
			channel_id, name, medium, source, first_seen_at
		) VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.pool.Exec(ctx, query,
		c.ChannelID,
		c.Name,
		c.Medium,
		string(c.Source),
		c.FirstSeenAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert channel: %w", err)
	}
	return nil
}

// GetByID retrieves a channel by its ID. Returns ErrNotFound if not exists.
func (s *ChannelStore) GetByID(ctx context.Context, channelID string) (*domain.Channel, error) {
	query := `
		SELECT channel_id, name, medium, source, first_seen_at, created_at
		FROM channels
		WHERE channel_id = $1
	`

	row := s.pool.QueryRow(ctx, query, channelID)
	c, err := scanChannel(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get channel by id: %w", err)
	}
	return c, nil
}

// GetByMedium retrieves all channels of a given medium.
func (s *ChannelStore) GetByMedium(ctx context.Context, medium string) ([]*domain.Channel, error) {
	query := `
		SELECT channel_id, name, medium, source, first_seen_at, created_at
		FROM channels
		WHERE medium = $1
		ORDER BY name ASC, channel_id ASC
	`

	rows, err := s.pool.Query(ctx, query, medium)
	if err != nil {
		return nil, fmt.Errorf("get channels by medium: %w", err)
	}
	defer rows.Close()

	return scanChannels(rows)
}

// GetBySource retrieves all channels of a given source type.
func (s *ChannelStore) GetBySource(ctx context.Context, source domain.Source) ([]*domain.Channel, error) {
	query := `
		SELECT channel_id, name, medium, source, first_seen_at, created_at
		FROM channels
		WHERE source = $1
		ORDER BY name ASC, channel_id ASC
	`

	rows, err := s.pool.Query(ctx, query, string(source))
	if err != nil {
		return nil, fmt.Errorf("get channels by source: %w", err)
	}
	defer rows.Close()

	return scanChannels(rows)
}

// GetAll retrieves all channels, ordered by name ASC.
func (s *ChannelStore) GetAll(ctx context.Context) ([]*domain.Channel, error) {
	query := `
		SELECT channel_id, name, medium, source, first_seen_at, created_at
		FROM channels
		ORDER BY name ASC, channel_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all channels: %w", err)
	}
	defer rows.Close()

	return scanChannels(rows)
}

// scanChannel scans a single row into a Channel.
func scanChannel(row pgx.Row) (*domain.Channel, error) {
	var c domain.Channel
	var sourceStr string

	err := row.Scan(
		&c.ChannelID,
		&c.Name,
		&c.Medium,
		&sourceStr,
		&c.FirstSeenAt,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Source = domain.Source(sourceStr)
	return &c, nil
}

// scanChannels scans multiple rows into a slice of Channel.
func scanChannels(rows pgx.Rows) ([]*domain.Channel, error) {
	var channels []*domain.Channel

	for rows.Next() {
		var c domain.Channel
		var sourceStr string

		err := rows.Scan(
			&c.ChannelID,
			&c.Name,
			&c.Medium,
			&sourceStr,
			&c.FirstSeenAt,
			&c.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan channel row: %w", err)
		}

		c.Source = domain.Source(sourceStr)
		channels = append(channels, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channel rows: %w", err)
	}

	return channels, nil
}
