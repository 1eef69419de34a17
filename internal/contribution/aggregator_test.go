package contribution

import (
	"context"
	"errors"
	"testing"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
	"mediamix-lab/internal/storage/memory"
)

func setupAggregator(t *testing.T) (*Aggregator, *memory.ModelRunStore, *memory.ContributionTimeseriesStore, *memory.ChannelAggregateStore) {
	t.Helper()
	runStore := memory.NewModelRunStore()
	contributionStore := memory.NewContributionTimeseriesStore()
	aggregateStore := memory.NewChannelAggregateStore()
	return NewAggregator(runStore, contributionStore, aggregateStore), runStore, contributionStore, aggregateStore
}

func seedRun(t *testing.T, runStore *memory.ModelRunStore, contributionStore *memory.ContributionTimeseriesStore) {
	t.Helper()
	ctx := context.Background()

	run := &domain.ModelRun{
		RunID:        "run1",
		Metric:       domain.MetricConversions,
		Intercept:    10,
		TrainPeriods: 2,
		Channels: []domain.ChannelParams{
			{ChannelID: "ch1", Beta: 2.0},
			{ChannelID: "ch2", Beta: 1.0},
		},
	}
	if err := runStore.Insert(ctx, run); err != nil {
		t.Fatalf("insert run: %v", err)
	}

	points := []*domain.ContributionPoint{
		{RunID: "run1", ChannelID: "ch1", PeriodStart: 1000, Contribution: 30, Spend: 100},
		{RunID: "run1", ChannelID: "ch1", PeriodStart: 2000, Contribution: 50, Spend: 150},
		{RunID: "run1", ChannelID: "ch2", PeriodStart: 1000, Contribution: 10, Spend: 50},
		{RunID: "run1", ChannelID: "ch2", PeriodStart: 2000, Contribution: 10, Spend: 50},
	}
	if err := contributionStore.InsertBulk(ctx, points); err != nil {
		t.Fatalf("insert points: %v", err)
	}
}

func TestAggregator_ComputeAggregate(t *testing.T) {
	agg, runStore, contributionStore, _ := setupAggregator(t)
	seedRun(t, runStore, contributionStore)
	ctx := context.Background()

	result, err := agg.ComputeAggregate(ctx, "run1", "ch1")
	if err != nil {
		t.Fatalf("ComputeAggregate failed: %v", err)
	}

	if result.PeriodCount != 2 {
		t.Errorf("expected PeriodCount 2, got %d", result.PeriodCount)
	}
	if result.TotalContribution != 80 {
		t.Errorf("expected TotalContribution 80, got %v", result.TotalContribution)
	}
	if result.TotalSpend != 250 {
		t.Errorf("expected TotalSpend 250, got %v", result.TotalSpend)
	}

	// Total modeled = base 10*2 + all contributions (80 + 20) = 120
	if result.ContributionShare != 80.0/120.0 {
		t.Errorf("expected ContributionShare %.4f, got %v", 80.0/120.0, result.ContributionShare)
	}
	// Total spend across channels = 350
	if result.SpendShare != 250.0/350.0 {
		t.Errorf("expected SpendShare %.4f, got %v", 250.0/350.0, result.SpendShare)
	}
	if result.PeakPeriodStart != 2000 {
		t.Errorf("expected peak period 2000, got %d", result.PeakPeriodStart)
	}
}

func TestAggregator_ComputeAggregate_RunNotFound(t *testing.T) {
	agg, _, _, _ := setupAggregator(t)

	_, err := agg.ComputeAggregate(context.Background(), "missing", "ch1")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAggregator_ComputeAggregate_NoPoints(t *testing.T) {
	agg, runStore, contributionStore, _ := setupAggregator(t)
	seedRun(t, runStore, contributionStore)

	_, err := agg.ComputeAggregate(context.Background(), "run1", "ghost")
	if !errors.Is(err, ErrNoContributions) {
		t.Errorf("expected ErrNoContributions, got %v", err)
	}

	if agg.MissingChannels["ghost"] != 1 {
		t.Errorf("expected ghost recorded in MissingChannels, got %v", agg.MissingChannels)
	}
}

func TestAggregator_ComputeAndStore(t *testing.T) {
	agg, runStore, contributionStore, aggregateStore := setupAggregator(t)
	seedRun(t, runStore, contributionStore)
	ctx := context.Background()

	if _, err := agg.ComputeAndStore(ctx, "run1", "ch1"); err != nil {
		t.Fatalf("ComputeAndStore failed: %v", err)
	}

	stored, err := aggregateStore.GetByKey(ctx, "run1", "ch1")
	if err != nil {
		t.Fatalf("GetByKey failed: %v", err)
	}
	if stored.TotalContribution != 80 {
		t.Errorf("expected stored TotalContribution 80, got %v", stored.TotalContribution)
	}

	// Append-only: second store attempt is a duplicate
	if _, err := agg.ComputeAndStore(ctx, "run1", "ch1"); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestAggregator_ComputeRunAggregates(t *testing.T) {
	agg, runStore, contributionStore, aggregateStore := setupAggregator(t)
	seedRun(t, runStore, contributionStore)
	ctx := context.Background()

	aggregates, err := agg.ComputeRunAggregates(ctx, "run1")
	if err != nil {
		t.Fatalf("ComputeRunAggregates failed: %v", err)
	}

	if len(aggregates) != 2 {
		t.Fatalf("expected 2 aggregates, got %d", len(aggregates))
	}

	// Run channel order: ch1 then ch2
	if aggregates[0].ChannelID != "ch1" || aggregates[1].ChannelID != "ch2" {
		t.Errorf("expected run channel order [ch1 ch2], got [%s %s]",
			aggregates[0].ChannelID, aggregates[1].ChannelID)
	}

	// Shares across all channels use the same denominator
	if aggregates[0].SpendShare+aggregates[1].SpendShare != 1.0 {
		t.Errorf("expected spend shares to sum to 1, got %v",
			aggregates[0].SpendShare+aggregates[1].SpendShare)
	}

	stored, err := aggregateStore.GetByRunID(ctx, "run1")
	if err != nil {
		t.Fatalf("GetByRunID failed: %v", err)
	}
	if len(stored) != 2 {
		t.Errorf("expected 2 stored aggregates, got %d", len(stored))
	}
}

func TestAggregator_ComputeRunAggregates_MissingChannelSkipped(t *testing.T) {
	agg, runStore, contributionStore, _ := setupAggregator(t)
	ctx := context.Background()

	run := &domain.ModelRun{
		RunID:        "run2",
		Metric:       domain.MetricConversions,
		Intercept:    0,
		TrainPeriods: 1,
		Channels: []domain.ChannelParams{
			{ChannelID: "present", Beta: 1.0},
			{ChannelID: "absent", Beta: 1.0},
		},
	}
	if err := runStore.Insert(ctx, run); err != nil {
		t.Fatalf("insert run: %v", err)
	}
	points := []*domain.ContributionPoint{
		{RunID: "run2", ChannelID: "present", PeriodStart: 1000, Contribution: 5, Spend: 10},
	}
	if err := contributionStore.InsertBulk(ctx, points); err != nil {
		t.Fatalf("insert points: %v", err)
	}

	aggregates, err := agg.ComputeRunAggregates(ctx, "run2")
	if err != nil {
		t.Fatalf("ComputeRunAggregates failed: %v", err)
	}

	if len(aggregates) != 1 || aggregates[0].ChannelID != "present" {
		t.Errorf("expected only the present channel, got %+v", aggregates)
	}
	if agg.MissingChannels["absent"] != 1 {
		t.Errorf("expected absent channel recorded, got %v", agg.MissingChannels)
	}
}

func TestAggregator_ComputeRunAggregates_NoPoints(t *testing.T) {
	agg, runStore, _, _ := setupAggregator(t)
	ctx := context.Background()

	run := &domain.ModelRun{RunID: "empty", Metric: domain.MetricConversions, TrainPeriods: 1}
	if err := runStore.Insert(ctx, run); err != nil {
		t.Fatalf("insert run: %v", err)
	}

	if _, err := agg.ComputeRunAggregates(ctx, "empty"); !errors.Is(err, ErrNoContributions) {
		t.Errorf("expected ErrNoContributions, got %v", err)
	}
}

func TestAggregator_GetMissingChannelErrors(t *testing.T) {
	agg, _, _, _ := setupAggregator(t)

	if errs := agg.GetMissingChannelErrors(); errs != nil {
		t.Errorf("expected nil for no missing channels, got %v", errs)
	}

	agg.MissingChannels["zeta"] = 2
	agg.MissingChannels["alpha"] = 1

	errs := agg.GetMissingChannelErrors()
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(errs))
	}
	// Sorted by channel_id
	if errs[0] != "no contribution points for channel alpha (1 attempt(s))" {
		t.Errorf("unexpected first error: %s", errs[0])
	}
	if errs[1] != "no contribution points for channel zeta (2 attempt(s))" {
		t.Errorf("unexpected second error: %s", errs[1])
	}
}
