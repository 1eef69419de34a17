package backtest

import (
	"context"
	"errors"
	"testing"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/fit"
	"mediamix-lab/internal/storage/memory"
	"mediamix-lab/internal/transform"
)

func seedSpendPoints(channelID string, spend []float64) []*domain.SpendTimeseriesPoint {
	points := make([]*domain.SpendTimeseriesPoint, len(spend))
	for i, v := range spend {
		points[i] = &domain.SpendTimeseriesPoint{
			ChannelID:     channelID,
			PeriodStart:   int64(i) * dayMs,
			PeriodSeconds: domain.PeriodDay,
			Spend:         v,
			RecordCount:   1,
		}
	}
	return points
}

func seedOutcomePoints(metric string, values []float64) []*domain.OutcomeTimeseriesPoint {
	points := make([]*domain.OutcomeTimeseriesPoint, len(values))
	for i, v := range values {
		points[i] = &domain.OutcomeTimeseriesPoint{
			Metric:        metric,
			PeriodStart:   int64(i) * dayMs,
			PeriodSeconds: domain.PeriodDay,
			Value:         v,
			RecordCount:   1,
		}
	}
	return points
}

func TestRunner_Run_BuildsInputFromStores(t *testing.T) {
	ctx := context.Background()

	spendStore := memory.NewSpendTimeseriesStore()
	outcomeStore := memory.NewOutcomeTimeseriesStore()

	spend := backtestSpend[:8]
	if err := spendStore.InsertBulk(ctx, seedSpendPoints("ch1", spend)); err != nil {
		t.Fatalf("Insert spend failed: %v", err)
	}
	outcome := []float64{20, 40, 30, 60, 35, 55, 45, 70}
	if err := outcomeStore.InsertBulk(ctx, seedOutcomePoints("conversions", outcome)); err != nil {
		t.Fatalf("Insert outcome failed: %v", err)
	}

	stub := NewStubFitter(cannedResult(0.8))
	runner := NewRunner(spendStore, outcomeStore, 0.25)

	results, err := runner.Run(ctx, "conversions", domain.PeriodDay, []string{"ch1"}, stub)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if results.TotalPeriods != 8 {
		t.Errorf("Expected 8 total periods, got %d", results.TotalPeriods)
	}
	if results.TrainPeriods != 6 || results.HoldoutPeriods != 2 {
		t.Errorf("Expected 6/2 split, got %d/%d", results.TrainPeriods, results.HoldoutPeriods)
	}
	if results.Metric != "conversions" || results.PeriodSeconds != domain.PeriodDay {
		t.Errorf("results header mismatch: %s %d", results.Metric, results.PeriodSeconds)
	}
	if results.FitterID != "STUB" {
		t.Errorf("Expected FitterID STUB, got %s", results.FitterID)
	}

	inputs := stub.Inputs()
	if len(inputs) != 1 {
		t.Fatalf("Expected 1 fit call, got %d", len(inputs))
	}
	if len(inputs[0].PeriodStarts) != 6 {
		t.Errorf("Expected 6 train periods in fit input, got %d", len(inputs[0].PeriodStarts))
	}
}

func TestRunner_Run_ZeroFillsMissingSpendPeriods(t *testing.T) {
	ctx := context.Background()

	spendStore := memory.NewSpendTimeseriesStore()
	outcomeStore := memory.NewOutcomeTimeseriesStore()

	// Spend points skip the third period of the outcome grid.
	points := seedSpendPoints("ch1", backtestSpend[:8])
	points = append(points[:2], points[3:]...)
	if err := spendStore.InsertBulk(ctx, points); err != nil {
		t.Fatalf("Insert spend failed: %v", err)
	}

	outcome := []float64{20, 40, 30, 60, 35, 55, 45, 70}
	if err := outcomeStore.InsertBulk(ctx, seedOutcomePoints("conversions", outcome)); err != nil {
		t.Fatalf("Insert outcome failed: %v", err)
	}

	stub := NewStubFitter(cannedResult(0.8))
	runner := NewRunner(spendStore, outcomeStore, 0.25)

	if _, err := runner.Run(ctx, "conversions", domain.PeriodDay, []string{"ch1"}, stub); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	trainSpend := stub.Inputs()[0].Channels[0].Spend
	if trainSpend[2] != 0 {
		t.Errorf("Expected zero spend for missing period, got %f", trainSpend[2])
	}
	if trainSpend[1] != backtestSpend[1] || trainSpend[3] != backtestSpend[3] {
		t.Errorf("neighboring periods changed: %v", trainSpend)
	}
}

func TestRunner_Run_UnknownMetric(t *testing.T) {
	ctx := context.Background()

	runner := NewRunner(memory.NewSpendTimeseriesStore(), memory.NewOutcomeTimeseriesStore(), 0.25)

	_, err := runner.Run(ctx, "nonexistent", domain.PeriodDay, []string{"ch1"}, NewStubFitter(cannedResult(0.8)))
	if !errors.Is(err, fit.ErrNoPeriods) {
		t.Errorf("expected fit.ErrNoPeriods, got %v", err)
	}
}

func TestRunner_Run_NoChannels(t *testing.T) {
	ctx := context.Background()

	spendStore := memory.NewSpendTimeseriesStore()
	outcomeStore := memory.NewOutcomeTimeseriesStore()
	if err := outcomeStore.InsertBulk(ctx, seedOutcomePoints("conversions", []float64{10, 20})); err != nil {
		t.Fatalf("Insert outcome failed: %v", err)
	}

	runner := NewRunner(spendStore, outcomeStore, 0.25)

	_, err := runner.Run(ctx, "conversions", domain.PeriodDay, nil, NewStubFitter(cannedResult(0.8)))
	if !errors.Is(err, fit.ErrNoChannels) {
		t.Errorf("expected fit.ErrNoChannels, got %v", err)
	}
}

func TestRunner_Run_RecoversFromStores(t *testing.T) {
	ctx := context.Background()

	spendStore := memory.NewSpendTimeseriesStore()
	outcomeStore := memory.NewOutcomeTimeseriesStore()

	if err := spendStore.InsertBulk(ctx, seedSpendPoints("ch1", backtestSpend)); err != nil {
		t.Fatalf("Insert spend failed: %v", err)
	}

	_, saturated, err := transform.ApplyChannel(backtestSpend, trueParams.Adstock, trueParams.Saturation)
	if err != nil {
		t.Fatalf("ApplyChannel failed: %v", err)
	}
	outcome := make([]float64, len(backtestSpend))
	for i := range outcome {
		outcome[i] = 10 + trueParams.Beta*saturated[i]
	}
	if err := outcomeStore.InsertBulk(ctx, seedOutcomePoints("conversions", outcome)); err != nil {
		t.Fatalf("Insert outcome failed: %v", err)
	}

	runner := NewRunner(spendStore, outcomeStore, 0.25)

	results, err := runner.Run(ctx, "conversions", domain.PeriodDay, []string{"ch1"}, fit.NewGridSearchFitter(3))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if results.HoldoutRSquared < 0.999999 {
		t.Errorf("Expected near-perfect holdout R², got %f", results.HoldoutRSquared)
	}
	if results.HoldoutMAPE > 1e-6 {
		t.Errorf("Expected near-zero holdout MAPE, got %f", results.HoldoutMAPE)
	}
}
