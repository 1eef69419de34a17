package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
)

// ScenarioProjectionStore implements storage.ScenarioProjectionStore using PostgreSQL.
type ScenarioProjectionStore struct {
	pool *Pool
}

// NewScenarioProjectionStore creates a new ScenarioProjectionStore.
func NewScenarioProjectionStore(pool *Pool) *ScenarioProjectionStore {
	return &ScenarioProjectionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ScenarioProjectionStore = (*ScenarioProjectionStore)(nil)

// Insert adds a new projection. Returns ErrDuplicateKey if (run_id, scenario_id, channel_id) exists.
func (s *ScenarioProjectionStore) Insert(ctx context.Context, p *domain.ScenarioProjection) error {
	query := `
		INSERT INTO scenario_projections (
			run_id, scenario_id, channel_id,
			projected_outcome, baseline_outcome, delta, delta_pct
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		p.RunID,
		p.ScenarioID,
		p.ChannelID,
		p.ProjectedOutcome,
		p.BaselineOutcome,
		p.Delta,
		p.DeltaPct,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert scenario projection: %w", err)
	}
	return nil
}

// InsertBulk adds multiple projections atomically. Fails entire batch on any duplicate.
func (s *ScenarioProjectionStore) InsertBulk(ctx context.Context, projections []*domain.ScenarioProjection) error {
	if len(projections) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO scenario_projections (
			run_id, scenario_id, channel_id,
			projected_outcome, baseline_outcome, delta, delta_pct
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	for _, p := range projections {
		_, err := tx.Exec(ctx, query,
			p.RunID,
			p.ScenarioID,
			p.ChannelID,
			p.ProjectedOutcome,
			p.BaselineOutcome,
			p.Delta,
			p.DeltaPct,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert scenario projection in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByRunID retrieves all projections for a run.
func (s *ScenarioProjectionStore) GetByRunID(ctx context.Context, runID string) ([]*domain.ScenarioProjection, error) {
	query := `
		SELECT run_id, scenario_id, channel_id,
		       projected_outcome, baseline_outcome, delta, delta_pct, created_at
		FROM scenario_projections
		WHERE run_id = $1
		ORDER BY scenario_id ASC, channel_id ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get scenario projections by run id: %w", err)
	}
	defer rows.Close()

	return scanScenarioProjections(rows)
}

// GetByKey retrieves a projection by its composite key. Returns ErrNotFound if not exists.
func (s *ScenarioProjectionStore) GetByKey(ctx context.Context, runID, scenarioID, channelID string) (*domain.ScenarioProjection, error) {
	query := `
		SELECT run_id, scenario_id, channel_id,
		       projected_outcome, baseline_outcome, delta, delta_pct, created_at
		FROM scenario_projections
		WHERE run_id = $1 AND scenario_id = $2 AND channel_id = $3
	`

	row := s.pool.QueryRow(ctx, query, runID, scenarioID, channelID)
	p, err := scanScenarioProjection(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get scenario projection by key: %w", err)
	}
	return p, nil
}

// scanScenarioProjection scans a single row into a ScenarioProjection.
func scanScenarioProjection(row pgx.Row) (*domain.ScenarioProjection, error) {
	var p domain.ScenarioProjection

	err := row.Scan(
		&p.RunID,
		&p.ScenarioID,
		&p.ChannelID,
		&p.ProjectedOutcome,
		&p.BaselineOutcome,
		&p.Delta,
		&p.DeltaPct,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// scanScenarioProjections scans multiple rows into a slice of ScenarioProjection.
func scanScenarioProjections(rows pgx.Rows) ([]*domain.ScenarioProjection, error) {
	var projections []*domain.ScenarioProjection

	for rows.Next() {
		var p domain.ScenarioProjection

		err := rows.Scan(
			&p.RunID,
			&p.ScenarioID,
			&p.ChannelID,
			&p.ProjectedOutcome,
			&p.BaselineOutcome,
			&p.Delta,
			&p.DeltaPct,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan scenario projection row: %w", err)
		}

		projections = append(projections, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scenario projection rows: %w", err)
	}

	return projections, nil
}
