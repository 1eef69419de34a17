package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
)

func TestContributionTimeseriesStore_InsertBulk(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewContributionTimeseriesStore(conn)
	ctx := context.Background()

	// Test empty insert
	err := store.InsertBulk(ctx, nil)
	assert.NoError(t, err)

	// Test single insert
	points := []*domain.ContributionPoint{
		{
			RunID:        "run-1",
			ChannelID:    "ch-tv",
			PeriodStart:  86400000,
			Contribution: 130.2,
			Spend:        1200.0,
		},
	}

	err = store.InsertBulk(ctx, points)
	require.NoError(t, err)

	// Verify insert
	got, err := store.GetByRunChannel(ctx, "run-1", "ch-tv")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "run-1", got[0].RunID)
	assert.Equal(t, "ch-tv", got[0].ChannelID)
	assert.Equal(t, int64(86400000), got[0].PeriodStart)
	assert.Equal(t, 130.2, got[0].Contribution)
	assert.Equal(t, 1200.0, got[0].Spend)
}

func TestContributionTimeseriesStore_InsertBulk_DuplicateKey(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewContributionTimeseriesStore(conn)
	ctx := context.Background()

	points := []*domain.ContributionPoint{
		{RunID: "run-1", ChannelID: "ch-tv", PeriodStart: 86400000, Contribution: 130.2, Spend: 1200.0},
	}

	err := store.InsertBulk(ctx, points)
	require.NoError(t, err)

	// Try to insert duplicate (same run_id, channel_id, period_start)
	err = store.InsertBulk(ctx, points)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestContributionTimeseriesStore_InsertBulk_IntraBatchDuplicate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewContributionTimeseriesStore(conn)
	ctx := context.Background()

	// Same key twice in one batch
	points := []*domain.ContributionPoint{
		{RunID: "run-1", ChannelID: "ch-tv", PeriodStart: 86400000, Contribution: 130.2, Spend: 1200.0},
		{RunID: "run-1", ChannelID: "ch-tv", PeriodStart: 86400000, Contribution: 99.0, Spend: 800.0},
	}

	err := store.InsertBulk(ctx, points)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestContributionTimeseriesStore_GetByRunChannel(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewContributionTimeseriesStore(conn)
	ctx := context.Background()

	// Insert points out of order
	points := []*domain.ContributionPoint{
		{RunID: "run-1", ChannelID: "ch-tv", PeriodStart: 172800000, Contribution: 140.0, Spend: 1300.0},
		{RunID: "run-1", ChannelID: "ch-tv", PeriodStart: 86400000, Contribution: 130.2, Spend: 1200.0},
		{RunID: "run-1", ChannelID: "ch-search", PeriodStart: 86400000, Contribution: 55.0, Spend: 400.0},
		{RunID: "run-2", ChannelID: "ch-tv", PeriodStart: 86400000, Contribution: 90.0, Spend: 1000.0},
	}

	err := store.InsertBulk(ctx, points)
	require.NoError(t, err)

	// Should be ordered by period_start ASC, scoped to run and channel
	got, err := store.GetByRunChannel(ctx, "run-1", "ch-tv")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(86400000), got[0].PeriodStart)
	assert.Equal(t, int64(172800000), got[1].PeriodStart)

	// Get non-existent channel
	got, err = store.GetByRunChannel(ctx, "run-1", "ch-999")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestContributionTimeseriesStore_GetByRunID(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewContributionTimeseriesStore(conn)
	ctx := context.Background()

	points := []*domain.ContributionPoint{
		{RunID: "run-1", ChannelID: "ch-tv", PeriodStart: 172800000, Contribution: 140.0, Spend: 1300.0},
		{RunID: "run-1", ChannelID: "ch-tv", PeriodStart: 86400000, Contribution: 130.2, Spend: 1200.0},
		{RunID: "run-1", ChannelID: "ch-search", PeriodStart: 86400000, Contribution: 55.0, Spend: 400.0},
		{RunID: "run-2", ChannelID: "ch-tv", PeriodStart: 86400000, Contribution: 90.0, Spend: 1000.0},
	}

	err := store.InsertBulk(ctx, points)
	require.NoError(t, err)

	// Should be ordered by channel_id ASC, period_start ASC
	got, err := store.GetByRunID(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "ch-search", got[0].ChannelID)
	assert.Equal(t, "ch-tv", got[1].ChannelID)
	assert.Equal(t, int64(86400000), got[1].PeriodStart)
	assert.Equal(t, "ch-tv", got[2].ChannelID)
	assert.Equal(t, int64(172800000), got[2].PeriodStart)

	// Get non-existent run
	got, err = store.GetByRunID(ctx, "run-999")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestContributionTimeseriesStore_NegativeContribution(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewContributionTimeseriesStore(conn)
	ctx := context.Background()

	// Negative betas yield negative contributions; they must round-trip unclamped
	points := []*domain.ContributionPoint{
		{RunID: "run-1", ChannelID: "ch-print", PeriodStart: 86400000, Contribution: -12.5, Spend: 300.0},
	}

	err := store.InsertBulk(ctx, points)
	require.NoError(t, err)

	got, err := store.GetByRunChannel(ctx, "run-1", "ch-print")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, -12.5, got[0].Contribution)
}
