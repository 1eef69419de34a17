package memory

import (
	"context"
	"errors"
	"testing"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
)

func TestModelRunStore_InsertAndGet(t *testing.T) {
	store := NewModelRunStore()
	ctx := context.Background()

	run := &domain.ModelRun{
		RunID:         "run1",
		Fingerprint:   "7cUuSdE2",
		Metric:        "conversions",
		PeriodSeconds: domain.PeriodDay,
		FitterID:      domain.FitterGridSearch,
		Intercept:     12.5,
		RSquared:      0.82,
		MAPE:          0.11,
		TrainPeriods:  90,
		Channels: []domain.ChannelParams{
			{
				ChannelID:  "ch1",
				Adstock:    domain.AdstockConfig{Length: 4, Peak: 1, Decay: 0.8},
				Saturation: domain.SaturationConfig{HalfSat: 100, Slope: 2},
				Beta:       45.2,
			},
		},
		CreatedAt: 1704067200000,
	}

	if err := store.Insert(ctx, run); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	result, err := store.GetByID(ctx, "run1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	if result.RSquared != 0.82 {
		t.Errorf("RSquared mismatch: got %f, want 0.82", result.RSquared)
	}
	if len(result.Channels) != 1 || result.Channels[0].Beta != 45.2 {
		t.Errorf("Channels not preserved: %+v", result.Channels)
	}
}

func TestModelRunStore_DuplicateKey(t *testing.T) {
	store := NewModelRunStore()
	ctx := context.Background()

	run := &domain.ModelRun{RunID: "run1", Metric: "conversions"}

	if err := store.Insert(ctx, run); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, run)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestModelRunStore_DeepCopy(t *testing.T) {
	store := NewModelRunStore()
	ctx := context.Background()

	run := &domain.ModelRun{
		RunID:    "run1",
		Channels: []domain.ChannelParams{{ChannelID: "ch1", Beta: 1.0}},
	}
	if err := store.Insert(ctx, run); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Mutating the caller's slice must not leak into the store
	run.Channels[0].Beta = 999

	got, _ := store.GetByID(ctx, "run1")
	if got.Channels[0].Beta != 1.0 {
		t.Errorf("Store shares channel slice with caller: beta = %f", got.Channels[0].Beta)
	}

	// Mutating a returned copy must not leak either
	got.Channels[0].Beta = -5
	again, _ := store.GetByID(ctx, "run1")
	if again.Channels[0].Beta != 1.0 {
		t.Errorf("Store shares channel slice with reader: beta = %f", again.Channels[0].Beta)
	}
}

func TestModelRunStore_GetLatest(t *testing.T) {
	store := NewModelRunStore()
	ctx := context.Background()

	runs := []*domain.ModelRun{
		{RunID: "run1", Metric: "conversions", PeriodSeconds: domain.PeriodDay, CreatedAt: 1000},
		{RunID: "run2", Metric: "conversions", PeriodSeconds: domain.PeriodDay, CreatedAt: 3000},
		{RunID: "run3", Metric: "conversions", PeriodSeconds: domain.PeriodWeek, CreatedAt: 5000}, // different period
		{RunID: "run4", Metric: "revenue", PeriodSeconds: domain.PeriodDay, CreatedAt: 9000},      // different metric
	}
	for _, run := range runs {
		if err := store.Insert(ctx, run); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	latest, err := store.GetLatest(ctx, "conversions", domain.PeriodDay)
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if latest.RunID != "run2" {
		t.Errorf("Expected run2, got %s", latest.RunID)
	}

	_, err = store.GetLatest(ctx, "signups", domain.PeriodDay)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown metric, got %v", err)
	}
}

func TestModelRunStore_GetAllOrdered(t *testing.T) {
	store := NewModelRunStore()
	ctx := context.Background()

	runs := []*domain.ModelRun{
		{RunID: "run-b", Metric: "conversions", CreatedAt: 2000},
		{RunID: "run-a", Metric: "conversions", CreatedAt: 1000},
	}
	for _, run := range runs {
		if err := store.Insert(ctx, run); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	result, err := store.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(result))
	}
	if result[0].RunID != "run-a" || result[1].RunID != "run-b" {
		t.Errorf("Unexpected order: %s, %s", result[0].RunID, result[1].RunID)
	}
}
