package decision

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"mediamix-lab/internal/backtest"
	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
	"mediamix-lab/internal/storage/memory"
)

const dayMs = int64(domain.PeriodDay) * 1000

const testRunID = "run-dec-1"

// Helper to create a stored model run fixture.
func makeRun() *domain.ModelRun {
	return &domain.ModelRun{
		RunID:         testRunID,
		Fingerprint:   "fp-dec",
		Metric:        "conversions",
		PeriodSeconds: domain.PeriodDay,
		FitterID:      "GRID_SEARCH_L4",
		Intercept:     10.0,
		RSquared:      0.85,
		MAPE:          0.12,
		TrainPeriods:  24,
		Channels: []domain.ChannelParams{
			{
				ChannelID:  "tv",
				Adstock:    domain.AdstockConfig{Length: 4, Peak: 1, Decay: 0.6},
				Saturation: domain.SaturationConfig{HalfSat: 300, Slope: 1.0},
				Beta:       5.0,
			},
			{
				ChannelID:  "search",
				Adstock:    domain.AdstockConfig{Length: 2, Peak: 0, Decay: 0.4},
				Saturation: domain.SaturationConfig{HalfSat: 80, Slope: 2.0},
				Beta:       2.0,
			},
		},
		CreatedAt: 1,
	}
}

// Helper to create n daily spend points for a channel.
func makeSpendPoints(channelID string, n int) []*domain.SpendTimeseriesPoint {
	points := make([]*domain.SpendTimeseriesPoint, n)
	for i := range points {
		points[i] = &domain.SpendTimeseriesPoint{
			ChannelID:     channelID,
			PeriodStart:   int64(i) * dayMs,
			PeriodSeconds: domain.PeriodDay,
			Spend:         100 + float64(i),
			RecordCount:   1,
		}
	}
	return points
}

// Helper to create n daily outcome points.
func makeOutcomePoints(metric string, n int) []*domain.OutcomeTimeseriesPoint {
	points := make([]*domain.OutcomeTimeseriesPoint, n)
	for i := range points {
		points[i] = &domain.OutcomeTimeseriesPoint{
			Metric:        metric,
			PeriodStart:   int64(i) * dayMs,
			PeriodSeconds: domain.PeriodDay,
			Value:         50 + float64(i),
			RecordCount:   1,
		}
	}
	return points
}

// Helper to create backtest results matching the run fixture.
func makeBacktestResults() *backtest.Results {
	return &backtest.Results{
		FitterID:         "GRID_SEARCH_L4",
		Metric:           "conversions",
		PeriodSeconds:    domain.PeriodDay,
		TotalPeriods:     24,
		TrainPeriods:     18,
		HoldoutPeriods:   6,
		TrainRSquared:    0.85,
		TrainMAPE:        0.12,
		HoldoutRSquared:  0.78,
		HoldoutMAPE:      0.15,
		DegradationRatio: 0.92,
	}
}

type builderStores struct {
	runs       *memory.ModelRunStore
	aggregates *memory.ChannelAggregateStore
	spend      *memory.SpendTimeseriesStore
	outcome    *memory.OutcomeTimeseriesStore
}

// Helper to create a builder over seeded memory stores.
func setupBuilder(t *testing.T) (*Builder, builderStores) {
	t.Helper()
	ctx := context.Background()

	stores := builderStores{
		runs:       memory.NewModelRunStore(),
		aggregates: memory.NewChannelAggregateStore(),
		spend:      memory.NewSpendTimeseriesStore(),
		outcome:    memory.NewOutcomeTimeseriesStore(),
	}

	if err := stores.runs.Insert(ctx, makeRun()); err != nil {
		t.Fatalf("Insert run failed: %v", err)
	}
	if err := stores.aggregates.Insert(ctx, &domain.ChannelAggregate{
		RunID: testRunID, ChannelID: "tv", ContributionShare: 0.55,
	}); err != nil {
		t.Fatalf("Insert aggregate failed: %v", err)
	}
	if err := stores.aggregates.Insert(ctx, &domain.ChannelAggregate{
		RunID: testRunID, ChannelID: "search", ContributionShare: 0.45,
	}); err != nil {
		t.Fatalf("Insert aggregate failed: %v", err)
	}
	if err := stores.spend.InsertBulk(ctx, makeSpendPoints("tv", 24)); err != nil {
		t.Fatalf("Insert spend failed: %v", err)
	}
	if err := stores.spend.InsertBulk(ctx, makeSpendPoints("search", 24)); err != nil {
		t.Fatalf("Insert spend failed: %v", err)
	}
	if err := stores.outcome.InsertBulk(ctx, makeOutcomePoints("conversions", 24)); err != nil {
		t.Fatalf("Insert outcome failed: %v", err)
	}

	builder := NewBuilder(BuilderOptions{
		ModelRunStore:          stores.runs,
		AggregateStore:         stores.aggregates,
		SpendTimeseriesStore:   stores.spend,
		OutcomeTimeseriesStore: stores.outcome,
	})
	return builder, stores
}

func TestBuilder_Build(t *testing.T) {
	ctx := context.Background()
	builder, _ := setupBuilder(t)

	input, err := builder.Build(ctx, testRunID, makeBacktestResults())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if input.RunID != testRunID {
		t.Errorf("Expected run ID %s, got %s", testRunID, input.RunID)
	}
	if input.Metric != "conversions" {
		t.Errorf("Expected metric conversions, got %s", input.Metric)
	}
	if input.RSquared != 0.85 {
		t.Errorf("Expected RSquared 0.85, got %f", input.RSquared)
	}
	if input.MAPE != 0.12 {
		t.Errorf("Expected MAPE 0.12, got %f", input.MAPE)
	}
	if input.HoldoutRSquared != 0.78 {
		t.Errorf("Expected HoldoutRSquared 0.78, got %f", input.HoldoutRSquared)
	}
	if input.DegradationRatio != 0.92 {
		t.Errorf("Expected DegradationRatio 0.92, got %f", input.DegradationRatio)
	}
	if input.TotalPeriods != 24 {
		t.Errorf("Expected 24 total periods, got %d", input.TotalPeriods)
	}
	if input.OutcomeCoverage != 1.0 {
		t.Errorf("Expected full outcome coverage, got %f", input.OutcomeCoverage)
	}

	expected := []ChannelCheck{
		{ChannelID: "tv", Beta: 5.0, Share: 0.55, Periods: 24, AdstockLength: 4},
		{ChannelID: "search", Beta: 2.0, Share: 0.45, Periods: 24, AdstockLength: 2},
	}
	if !reflect.DeepEqual(input.Channels, expected) {
		t.Errorf("Channel checks mismatch:\n got %+v\nwant %+v", input.Channels, expected)
	}

	// The assembled input clears the gate for this fixture
	result, err := NewEvaluator().Evaluate(input)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.Decision != DecisionGO {
		t.Errorf("Expected GO, got %s", result.Decision)
	}
}

func TestBuilder_Build_RunNotFound(t *testing.T) {
	ctx := context.Background()
	builder, _ := setupBuilder(t)

	_, err := builder.Build(ctx, "nonexistent", makeBacktestResults())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestBuilder_Build_NilBacktest(t *testing.T) {
	ctx := context.Background()
	builder, _ := setupBuilder(t)

	_, err := builder.Build(ctx, testRunID, nil)
	if !errors.Is(err, ErrMissingBacktest) {
		t.Errorf("Expected ErrMissingBacktest, got %v", err)
	}
}

func TestBuilder_Build_NoAggregates(t *testing.T) {
	ctx := context.Background()

	runs := memory.NewModelRunStore()
	if err := runs.Insert(ctx, makeRun()); err != nil {
		t.Fatalf("Insert run failed: %v", err)
	}
	builder := NewBuilder(BuilderOptions{
		ModelRunStore:          runs,
		AggregateStore:         memory.NewChannelAggregateStore(),
		SpendTimeseriesStore:   memory.NewSpendTimeseriesStore(),
		OutcomeTimeseriesStore: memory.NewOutcomeTimeseriesStore(),
	})

	_, err := builder.Build(ctx, testRunID, makeBacktestResults())
	if !errors.Is(err, ErrNoAggregates) {
		t.Errorf("Expected ErrNoAggregates, got %v", err)
	}
}

func TestBuilder_Build_ChannelMissingAggregate(t *testing.T) {
	ctx := context.Background()

	runs := memory.NewModelRunStore()
	if err := runs.Insert(ctx, makeRun()); err != nil {
		t.Fatalf("Insert run failed: %v", err)
	}
	aggregates := memory.NewChannelAggregateStore()
	if err := aggregates.Insert(ctx, &domain.ChannelAggregate{
		RunID: testRunID, ChannelID: "tv", ContributionShare: 1.0,
	}); err != nil {
		t.Fatalf("Insert aggregate failed: %v", err)
	}
	builder := NewBuilder(BuilderOptions{
		ModelRunStore:          runs,
		AggregateStore:         aggregates,
		SpendTimeseriesStore:   memory.NewSpendTimeseriesStore(),
		OutcomeTimeseriesStore: memory.NewOutcomeTimeseriesStore(),
	})

	_, err := builder.Build(ctx, testRunID, makeBacktestResults())
	if !errors.Is(err, ErrNoAggregates) {
		t.Errorf("Expected ErrNoAggregates, got %v", err)
	}
	if err == nil || !strings.Contains(err.Error(), "search") {
		t.Errorf("Expected error to name the missing channel, got %v", err)
	}
}

func TestBuilder_Build_CoverageWithGaps(t *testing.T) {
	ctx := context.Background()
	_, stores := setupBuilder(t)

	// Reseed the outcome series with two interior periods missing
	gapStore := memory.NewOutcomeTimeseriesStore()
	points := makeOutcomePoints("conversions", 24)
	points = append(points[:5], points[6:]...)
	points = append(points[:10], points[11:]...)
	if err := gapStore.InsertBulk(ctx, points); err != nil {
		t.Fatalf("Insert outcome failed: %v", err)
	}
	builder := NewBuilder(BuilderOptions{
		ModelRunStore:          stores.runs,
		AggregateStore:         stores.aggregates,
		SpendTimeseriesStore:   stores.spend,
		OutcomeTimeseriesStore: gapStore,
	})

	input, err := builder.Build(ctx, testRunID, makeBacktestResults())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// 22 observed periods over a 24 period span
	want := float64(22) / float64(24)
	if input.OutcomeCoverage != want {
		t.Errorf("Expected coverage %f, got %f", want, input.OutcomeCoverage)
	}
}

func TestOutcomeCoverage(t *testing.T) {
	cases := []struct {
		name         string
		periodStarts []int64
		want         float64
	}{
		{"empty", nil, 0},
		{"single point", []int64{0}, 1.0},
		{"full cadence", []int64{0, dayMs, 2 * dayMs, 3 * dayMs}, 1.0},
		{"half missing", []int64{0, 3 * dayMs}, 0.5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			points := make([]*domain.OutcomeTimeseriesPoint, len(tc.periodStarts))
			for i, start := range tc.periodStarts {
				points[i] = &domain.OutcomeTimeseriesPoint{
					Metric:        "conversions",
					PeriodStart:   start,
					PeriodSeconds: domain.PeriodDay,
					Value:         1,
				}
			}

			got := outcomeCoverage(points, domain.PeriodDay)
			if got != tc.want {
				t.Errorf("outcomeCoverage(%v) = %f, want %f", tc.periodStarts, got, tc.want)
			}
		})
	}
}
