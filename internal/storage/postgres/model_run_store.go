package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
)

// ModelRunStore implements storage.ModelRunStore using PostgreSQL.
// Channel parameters live in the model_run_channels child table and are
// written in the same transaction as the run row.
type ModelRunStore struct {
	pool *Pool
}

// NewModelRunStore creates a new ModelRunStore.
func NewModelRunStore(pool *Pool) *ModelRunStore {
	return &ModelRunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ModelRunStore = (*ModelRunStore)(nil)

// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *ModelRunStore) Insert(ctx context.Context, run *domain.ModelRun) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	runQuery := `
		INSERT INTO model_runs (
			run_id, fingerprint, metric, period_seconds, fitter_id,
			intercept, r_squared, mape, train_periods
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = tx.Exec(ctx, runQuery,
		run.RunID,
		run.Fingerprint,
		run.Metric,
		run.PeriodSeconds,
		run.FitterID,
		run.Intercept,
		run.RSquared,
		run.MAPE,
		run.TrainPeriods,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert model run: %w", err)
	}

	channelQuery := `
		INSERT INTO model_run_channels (
			run_id, channel_id, position,
			adstock_length, adstock_peak, adstock_decay,
			half_sat, slope, beta
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	for i, cp := range run.Channels {
		_, err := tx.Exec(ctx, channelQuery,
			run.RunID,
			cp.ChannelID,
			i,
			cp.Adstock.Length,
			cp.Adstock.Peak,
			cp.Adstock.Decay,
			cp.Saturation.HalfSat,
			cp.Saturation.Slope,
			cp.Beta,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert model run channel: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *ModelRunStore) GetByID(ctx context.Context, runID string) (*domain.ModelRun, error) {
	query := `
		SELECT run_id, fingerprint, metric, period_seconds, fitter_id,
		       intercept, r_squared, mape, train_periods, created_at
		FROM model_runs
		WHERE run_id = $1
	`

	row := s.pool.QueryRow(ctx, query, runID)
	run, err := scanModelRun(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get model run by id: %w", err)
	}

	if err := s.loadChannels(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// GetLatest retrieves the most recently created run for (metric, period_seconds).
// Ties on created_at break by run_id DESC so the result is deterministic.
func (s *ModelRunStore) GetLatest(ctx context.Context, metric string, periodSeconds int) (*domain.ModelRun, error) {
	query := `
		SELECT run_id, fingerprint, metric, period_seconds, fitter_id,
		       intercept, r_squared, mape, train_periods, created_at
		FROM model_runs
		WHERE metric = $1 AND period_seconds = $2
		ORDER BY created_at DESC, run_id DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query, metric, periodSeconds)
	run, err := scanModelRun(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest model run: %w", err)
	}

	if err := s.loadChannels(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// GetAll retrieves all runs, ordered by created_at ASC.
func (s *ModelRunStore) GetAll(ctx context.Context) ([]*domain.ModelRun, error) {
	query := `
		SELECT run_id, fingerprint, metric, period_seconds, fitter_id,
		       intercept, r_squared, mape, train_periods, created_at
		FROM model_runs
		ORDER BY created_at ASC, run_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all model runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.ModelRun
	for rows.Next() {
		run, err := scanModelRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan model run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate model run rows: %w", err)
	}

	for _, run := range runs {
		if err := s.loadChannels(ctx, run); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// loadChannels fills in the run's channel parameters in fitted order.
func (s *ModelRunStore) loadChannels(ctx context.Context, run *domain.ModelRun) error {
	query := `
		SELECT channel_id, adstock_length, adstock_peak, adstock_decay,
		       half_sat, slope, beta
		FROM model_run_channels
		WHERE run_id = $1
		ORDER BY position ASC
	`

	rows, err := s.pool.Query(ctx, query, run.RunID)
	if err != nil {
		return fmt.Errorf("get model run channels: %w", err)
	}
	defer rows.Close()

	var channels []domain.ChannelParams
	for rows.Next() {
		var cp domain.ChannelParams

		err := rows.Scan(
			&cp.ChannelID,
			&cp.Adstock.Length,
			&cp.Adstock.Peak,
			&cp.Adstock.Decay,
			&cp.Saturation.HalfSat,
			&cp.Saturation.Slope,
			&cp.Beta,
		)
		if err != nil {
			return fmt.Errorf("scan model run channel row: %w", err)
		}

		channels = append(channels, cp)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate model run channel rows: %w", err)
	}

	run.Channels = channels
	return nil
}

// scanModelRun scans a single row into a ModelRun (without channels).
func scanModelRun(row pgx.Row) (*domain.ModelRun, error) {
	var run domain.ModelRun

	err := row.Scan(
		&run.RunID,
		&run.Fingerprint,
		&run.Metric,
		&run.PeriodSeconds,
		&run.FitterID,
		&run.Intercept,
		&run.RSquared,
		&run.MAPE,
		&run.TrainPeriods,
		&run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &run, nil
}
