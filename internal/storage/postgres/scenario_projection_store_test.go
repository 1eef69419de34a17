package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
)

// createTestRun inserts a model run for projection tests and returns its ID.
func createTestRun(t *testing.T, ctx context.Context, pool *Pool, id string) string {
	t.Helper()

	runStore := NewModelRunStore(pool)
	require.NoError(t, runStore.Insert(ctx, makeTestRun(id)))
	return id
}

func TestScenarioProjectionStore_InsertAndGetByKey(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	runID := createTestRun(t, ctx, pool, "proj-run-1")

	store := NewScenarioProjectionStore(pool)

	projection := &domain.ScenarioProjection{
		RunID:            runID,
		ScenarioID:       domain.ScenarioBoost,
		ChannelID:        "ch-tv",
		ProjectedOutcome: 10450.2,
		BaselineOutcome:  10000.0,
		Delta:            450.2,
		DeltaPct:         4.502,
	}

	err := store.Insert(ctx, projection)
	require.NoError(t, err)

	got, err := store.GetByKey(ctx, runID, domain.ScenarioBoost, "ch-tv")
	require.NoError(t, err)

	assert.Equal(t, projection.RunID, got.RunID)
	assert.Equal(t, projection.ScenarioID, got.ScenarioID)
	assert.Equal(t, projection.ChannelID, got.ChannelID)
	assert.InDelta(t, projection.ProjectedOutcome, got.ProjectedOutcome, 0.0001)
	assert.InDelta(t, projection.BaselineOutcome, got.BaselineOutcome, 0.0001)
	assert.InDelta(t, projection.Delta, got.Delta, 0.0001)
	assert.InDelta(t, projection.DeltaPct, got.DeltaPct, 0.0001)
	assert.NotZero(t, got.CreatedAt)
}

func TestScenarioProjectionStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	runID := createTestRun(t, ctx, pool, "proj-dup-run")

	store := NewScenarioProjectionStore(pool)

	projection := &domain.ScenarioProjection{
		RunID:      runID,
		ScenarioID: domain.ScenarioDark,
		ChannelID:  "ch-tv",
	}

	require.NoError(t, store.Insert(ctx, projection))

	err := store.Insert(ctx, projection)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestScenarioProjectionStore_GetByKeyNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewScenarioProjectionStore(pool)

	_, err := store.GetByKey(ctx, "no-run", domain.ScenarioBaseline, "no-channel")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestScenarioProjectionStore_InsertBulkAndGetByRunID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	runID := createTestRun(t, ctx, pool, "proj-bulk-run")

	store := NewScenarioProjectionStore(pool)

	var projections []*domain.ScenarioProjection
	for _, scenario := range domain.AllScenarios() {
		for _, channelID := range []string{"ch-search", "ch-tv"} {
			projections = append(projections, &domain.ScenarioProjection{
				RunID:            runID,
				ScenarioID:       scenario.ScenarioID,
				ChannelID:        channelID,
				ProjectedOutcome: 100 * scenario.SpendMultiplier,
				BaselineOutcome:  100,
			})
		}
	}

	err := store.InsertBulk(ctx, projections)
	require.NoError(t, err)

	got, err := store.GetByRunID(ctx, runID)
	require.NoError(t, err)

	require.Len(t, got, 8)
	// Ordered by scenario_id ASC then channel_id ASC
	assert.Equal(t, domain.ScenarioBaseline, got[0].ScenarioID)
	assert.Equal(t, "ch-search", got[0].ChannelID)
	assert.Equal(t, domain.ScenarioBaseline, got[1].ScenarioID)
	assert.Equal(t, "ch-tv", got[1].ChannelID)
}

func TestScenarioProjectionStore_InsertBulkAtomic(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	runID := createTestRun(t, ctx, pool, "proj-atomic-run")

	store := NewScenarioProjectionStore(pool)

	require.NoError(t, store.Insert(ctx, &domain.ScenarioProjection{
		RunID:      runID,
		ScenarioID: domain.ScenarioCut,
		ChannelID:  "ch-tv",
	}))

	projections := []*domain.ScenarioProjection{
		{RunID: runID, ScenarioID: domain.ScenarioBoost, ChannelID: "ch-tv"},
		{RunID: runID, ScenarioID: domain.ScenarioCut, ChannelID: "ch-tv"}, // duplicate
	}

	err := store.InsertBulk(ctx, projections)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err := store.GetByRunID(ctx, runID)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestScenarioProjectionStore_EmptyResult(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewScenarioProjectionStore(pool)

	projections, err := store.GetByRunID(ctx, "no-such-run")
	require.NoError(t, err)
	assert.Empty(t, projections)
}
