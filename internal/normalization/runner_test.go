package normalization

import (
	"context"
	"testing"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage/memory"
)

const (
	dayMs  = int64(domain.PeriodDay) * 1000
	weekMs = int64(domain.PeriodWeek) * 1000
)

func TestGenerateSpendTimeseries_Basic(t *testing.T) {
	records := []*domain.SpendRecord{
		{ChannelID: "ch1", BatchID: "b1", RecordIndex: 0, PeriodStart: 0, Spend: 100.0, Impressions: 1000},
		{ChannelID: "ch1", BatchID: "b1", RecordIndex: 1, PeriodStart: dayMs, Spend: 200.0, Impressions: 2000},
	}

	result := GenerateSpendTimeseries(records, domain.PeriodDay)

	if len(result) != 2 {
		t.Fatalf("Expected 2 points, got %d", len(result))
	}

	if result[0].Spend != 100.0 || result[0].Impressions != 1000 || result[0].RecordCount != 1 {
		t.Errorf("Point 0: expected (100.0, 1000, 1), got (%v, %v, %v)",
			result[0].Spend, result[0].Impressions, result[0].RecordCount)
	}

	if result[1].Spend != 200.0 || result[1].Impressions != 2000 || result[1].RecordCount != 1 {
		t.Errorf("Point 1: expected (200.0, 2000, 1), got (%v, %v, %v)",
			result[1].Spend, result[1].Impressions, result[1].RecordCount)
	}
}

func TestGenerateSpendTimeseries_SamePeriodAggregation(t *testing.T) {
	// Same period -> aggregate: SUM(spend), SUM(impressions), COUNT(*)
	records := []*domain.SpendRecord{
		{ChannelID: "ch1", BatchID: "b1", RecordIndex: 0, PeriodStart: 0, Spend: 100.0, Impressions: 1000},
		{ChannelID: "ch1", BatchID: "b1", RecordIndex: 1, PeriodStart: 1000, Spend: 150.0, Impressions: 1500},
		{ChannelID: "ch1", BatchID: "b2", RecordIndex: 0, PeriodStart: dayMs - 1, Spend: 250.0, Impressions: 2500},
	}

	result := GenerateSpendTimeseries(records, domain.PeriodDay)

	if len(result) != 1 {
		t.Fatalf("Expected 1 aggregated point, got %d", len(result))
	}

	// SUM(spend) = 500.0, SUM(impressions) = 5000, COUNT = 3
	if result[0].Spend != 500.0 {
		t.Errorf("Expected SUM spend 500.0, got %v", result[0].Spend)
	}
	if result[0].Impressions != 5000 {
		t.Errorf("Expected SUM impressions 5000, got %v", result[0].Impressions)
	}
	if result[0].RecordCount != 3 {
		t.Errorf("Expected COUNT 3, got %v", result[0].RecordCount)
	}
}

func TestGenerateSpendTimeseries_PeriodAlignment(t *testing.T) {
	// Period alignment: floor(period_start_ms / period_ms) * period_ms
	records := []*domain.SpendRecord{
		{ChannelID: "ch1", BatchID: "b1", RecordIndex: 0, PeriodStart: dayMs + 1, Spend: 10.0},     // bucket: dayMs
		{ChannelID: "ch1", BatchID: "b1", RecordIndex: 1, PeriodStart: 2*dayMs - 1, Spend: 20.0},   // bucket: dayMs
		{ChannelID: "ch1", BatchID: "b1", RecordIndex: 2, PeriodStart: 2 * dayMs, Spend: 30.0},     // bucket: 2*dayMs
	}

	result := GenerateSpendTimeseries(records, domain.PeriodDay)

	if len(result) != 2 {
		t.Fatalf("Expected 2 buckets, got %d", len(result))
	}

	if result[0].PeriodStart != dayMs {
		t.Errorf("Expected first bucket at %d, got %d", dayMs, result[0].PeriodStart)
	}
	if result[0].Spend != 30.0 { // 10 + 20
		t.Errorf("Expected first bucket spend 30.0, got %v", result[0].Spend)
	}
	if result[0].RecordCount != 2 {
		t.Errorf("Expected first bucket count 2, got %d", result[0].RecordCount)
	}

	if result[1].PeriodStart != 2*dayMs {
		t.Errorf("Expected second bucket at %d, got %d", 2*dayMs, result[1].PeriodStart)
	}
	if result[1].Spend != 30.0 {
		t.Errorf("Expected second bucket spend 30.0, got %v", result[1].Spend)
	}
}

func TestGenerateSpendTimeseries_InteriorGapZeroFill(t *testing.T) {
	// Days 0 and 2 observed, day 1 missing -> zero-filled point in between.
	records := []*domain.SpendRecord{
		{ChannelID: "ch1", BatchID: "b1", RecordIndex: 0, PeriodStart: 0, Spend: 100.0, Impressions: 1000},
		{ChannelID: "ch1", BatchID: "b1", RecordIndex: 1, PeriodStart: 2 * dayMs, Spend: 300.0, Impressions: 3000},
	}

	result := GenerateSpendTimeseries(records, domain.PeriodDay)

	if len(result) != 3 {
		t.Fatalf("Expected 3 points (gap zero-filled), got %d", len(result))
	}

	gap := result[1]
	if gap.PeriodStart != dayMs {
		t.Errorf("Expected gap point at %d, got %d", dayMs, gap.PeriodStart)
	}
	if gap.Spend != 0 || gap.Impressions != 0 || gap.RecordCount != 0 {
		t.Errorf("Gap point should be all zero, got (%v, %v, %v)",
			gap.Spend, gap.Impressions, gap.RecordCount)
	}
	if gap.ChannelID != "ch1" || gap.PeriodSeconds != domain.PeriodDay {
		t.Errorf("Gap point should carry channel and period size, got (%s, %d)",
			gap.ChannelID, gap.PeriodSeconds)
	}
}

func TestGenerateSpendTimeseries_NoLeadingTrailingFill(t *testing.T) {
	// Zero-fill is interior only: nothing invented before the first or
	// after the last observed period.
	records := []*domain.SpendRecord{
		{ChannelID: "ch1", BatchID: "b1", RecordIndex: 0, PeriodStart: 5 * dayMs, Spend: 100.0},
	}

	result := GenerateSpendTimeseries(records, domain.PeriodDay)

	if len(result) != 1 {
		t.Fatalf("Expected 1 point, got %d", len(result))
	}
	if result[0].PeriodStart != 5*dayMs {
		t.Errorf("Expected point at %d, got %d", 5*dayMs, result[0].PeriodStart)
	}
}

func TestGenerateSpendTimeseries_MultiChannel(t *testing.T) {
	// Gap filling is per channel; output ordered by (channel_id, period_start).
	records := []*domain.SpendRecord{
		{ChannelID: "ch2", BatchID: "b1", RecordIndex: 0, PeriodStart: 0, Spend: 50.0},
		{ChannelID: "ch1", BatchID: "b1", RecordIndex: 1, PeriodStart: 2 * dayMs, Spend: 30.0},
		{ChannelID: "ch1", BatchID: "b1", RecordIndex: 2, PeriodStart: 0, Spend: 10.0},
	}

	result := GenerateSpendTimeseries(records, domain.PeriodDay)

	// ch1: periods 0, 1 (zero-filled), 2; ch2: period 0
	if len(result) != 4 {
		t.Fatalf("Expected 4 points, got %d", len(result))
	}

	if result[0].ChannelID != "ch1" || result[0].PeriodStart != 0 {
		t.Errorf("Point 0: expected (ch1, 0), got (%s, %d)", result[0].ChannelID, result[0].PeriodStart)
	}
	if result[1].ChannelID != "ch1" || result[1].PeriodStart != dayMs || result[1].RecordCount != 0 {
		t.Errorf("Point 1: expected zero-filled (ch1, %d), got (%s, %d, count=%d)",
			dayMs, result[1].ChannelID, result[1].PeriodStart, result[1].RecordCount)
	}
	if result[2].ChannelID != "ch1" || result[2].PeriodStart != 2*dayMs {
		t.Errorf("Point 2: expected (ch1, %d), got (%s, %d)", 2*dayMs, result[2].ChannelID, result[2].PeriodStart)
	}
	if result[3].ChannelID != "ch2" || result[3].PeriodStart != 0 {
		t.Errorf("Point 3: expected (ch2, 0), got (%s, %d)", result[3].ChannelID, result[3].PeriodStart)
	}
}

func TestGenerateAllSpendTimeseries_BothPeriodSizes(t *testing.T) {
	// Two days inside the same week -> 2 daily points, 1 weekly point.
	records := []*domain.SpendRecord{
		{ChannelID: "ch1", BatchID: "b1", RecordIndex: 0, PeriodStart: 0, Spend: 100.0},
		{ChannelID: "ch1", BatchID: "b1", RecordIndex: 1, PeriodStart: dayMs, Spend: 200.0},
	}

	result := GenerateAllSpendTimeseries(records)

	if len(result) != 3 {
		t.Fatalf("Expected 3 points (2 daily + 1 weekly), got %d", len(result))
	}

	daily := 0
	weekly := 0
	for _, p := range result {
		switch p.PeriodSeconds {
		case domain.PeriodDay:
			daily++
		case domain.PeriodWeek:
			weekly++
		default:
			t.Errorf("Unexpected period size %d", p.PeriodSeconds)
		}
	}
	if daily != 2 || weekly != 1 {
		t.Errorf("Expected 2 daily and 1 weekly point, got %d and %d", daily, weekly)
	}

	for _, p := range result {
		if p.PeriodSeconds == domain.PeriodWeek {
			if p.Spend != 300.0 {
				t.Errorf("Weekly point: expected SUM spend 300.0, got %v", p.Spend)
			}
			if p.RecordCount != 2 {
				t.Errorf("Weekly point: expected count 2, got %d", p.RecordCount)
			}
		}
	}
}

func TestGenerateOutcomeTimeseries_Basic(t *testing.T) {
	records := []*domain.OutcomeRecord{
		{Metric: domain.MetricConversions, BatchID: "b1", RecordIndex: 0, PeriodStart: 0, Value: 40.0},
		{Metric: domain.MetricConversions, BatchID: "b1", RecordIndex: 1, PeriodStart: dayMs, Value: 60.0},
	}

	result := GenerateOutcomeTimeseries(records, domain.PeriodDay)

	if len(result) != 2 {
		t.Fatalf("Expected 2 points, got %d", len(result))
	}

	if result[0].Value != 40.0 || result[0].RecordCount != 1 {
		t.Errorf("Point 0: expected (40.0, 1), got (%v, %d)", result[0].Value, result[0].RecordCount)
	}
	if result[1].Value != 60.0 || result[1].RecordCount != 1 {
		t.Errorf("Point 1: expected (60.0, 1), got (%v, %d)", result[1].Value, result[1].RecordCount)
	}
}

func TestGenerateOutcomeTimeseries_SamePeriodAggregation(t *testing.T) {
	records := []*domain.OutcomeRecord{
		{Metric: domain.MetricConversions, BatchID: "b1", RecordIndex: 0, PeriodStart: 0, Value: 40.0},
		{Metric: domain.MetricConversions, BatchID: "b2", RecordIndex: 0, PeriodStart: 1000, Value: 35.0},
	}

	result := GenerateOutcomeTimeseries(records, domain.PeriodDay)

	if len(result) != 1 {
		t.Fatalf("Expected 1 aggregated point, got %d", len(result))
	}
	if result[0].Value != 75.0 {
		t.Errorf("Expected SUM value 75.0, got %v", result[0].Value)
	}
	if result[0].RecordCount != 2 {
		t.Errorf("Expected COUNT 2, got %d", result[0].RecordCount)
	}
}

func TestGenerateOutcomeTimeseries_InteriorGapZeroFill(t *testing.T) {
	records := []*domain.OutcomeRecord{
		{Metric: domain.MetricConversions, BatchID: "b1", RecordIndex: 0, PeriodStart: 0, Value: 40.0},
		{Metric: domain.MetricConversions, BatchID: "b1", RecordIndex: 1, PeriodStart: 3 * dayMs, Value: 80.0},
	}

	result := GenerateOutcomeTimeseries(records, domain.PeriodDay)

	if len(result) != 4 {
		t.Fatalf("Expected 4 points (2 gaps zero-filled), got %d", len(result))
	}
	for i := 1; i <= 2; i++ {
		if result[i].Value != 0 || result[i].RecordCount != 0 {
			t.Errorf("Gap point %d should be zero, got (%v, %d)", i, result[i].Value, result[i].RecordCount)
		}
	}
}

func TestRunner_Deterministic(t *testing.T) {
	// Run multiple times and verify same output
	for run := 0; run < 3; run++ {
		spendRecords := memory.NewSpendRecordStore()
		outcomeRecords := memory.NewOutcomeRecordStore()
		spendTS := memory.NewSpendTimeseriesStore()
		outcomeTS := memory.NewOutcomeTimeseriesStore()
		ctx := context.Background()

		// Insert unordered data
		records := []*domain.SpendRecord{
			{ChannelID: "ch1", BatchID: "b1", RecordIndex: 2, PeriodStart: 2 * dayMs, Spend: 300.0},
			{ChannelID: "ch1", BatchID: "b1", RecordIndex: 0, PeriodStart: 0, Spend: 100.0},
			{ChannelID: "ch1", BatchID: "b1", RecordIndex: 1, PeriodStart: dayMs, Spend: 200.0},
		}
		_ = spendRecords.InsertBulk(ctx, records)

		outcomes := []*domain.OutcomeRecord{
			{Metric: domain.MetricConversions, BatchID: "b1", RecordIndex: 1, PeriodStart: dayMs, Value: 60.0},
			{Metric: domain.MetricConversions, BatchID: "b1", RecordIndex: 0, PeriodStart: 0, Value: 40.0},
		}
		_ = outcomeRecords.InsertBulk(ctx, outcomes)

		runner := NewRunner(spendRecords, outcomeRecords, spendTS, outcomeTS)

		if err := runner.NormalizeChannel(ctx, "ch1"); err != nil {
			t.Fatalf("Run %d: NormalizeChannel failed: %v", run, err)
		}
		if err := runner.NormalizeMetric(ctx, domain.MetricConversions); err != nil {
			t.Fatalf("Run %d: NormalizeMetric failed: %v", run, err)
		}

		// Verify daily spend series
		daily, _ := spendTS.GetByChannelID(ctx, "ch1", domain.PeriodDay)
		if len(daily) != 3 {
			t.Fatalf("Run %d: expected 3 daily points, got %d", run, len(daily))
		}
		if daily[0].PeriodStart != 0 || daily[1].PeriodStart != dayMs || daily[2].PeriodStart != 2*dayMs {
			t.Errorf("Run %d: daily series not in order", run)
		}
		if daily[0].Spend != 100.0 || daily[1].Spend != 200.0 || daily[2].Spend != 300.0 {
			t.Errorf("Run %d: daily series values wrong: (%v, %v, %v)",
				run, daily[0].Spend, daily[1].Spend, daily[2].Spend)
		}

		// Verify weekly spend series (all three days in week 0)
		weekly, _ := spendTS.GetByChannelID(ctx, "ch1", domain.PeriodWeek)
		if len(weekly) != 1 {
			t.Fatalf("Run %d: expected 1 weekly point, got %d", run, len(weekly))
		}
		if weekly[0].Spend != 600.0 {
			t.Errorf("Run %d: expected weekly spend 600.0, got %v", run, weekly[0].Spend)
		}

		// Verify outcome series
		outDaily, _ := outcomeTS.GetByMetric(ctx, domain.MetricConversions, domain.PeriodDay)
		if len(outDaily) != 2 {
			t.Fatalf("Run %d: expected 2 outcome points, got %d", run, len(outDaily))
		}
		if outDaily[0].Value != 40.0 || outDaily[1].Value != 60.0 {
			t.Errorf("Run %d: outcome values wrong: (%v, %v)", run, outDaily[0].Value, outDaily[1].Value)
		}
	}
}

func TestRunner_Empty(t *testing.T) {
	spendRecords := memory.NewSpendRecordStore()
	outcomeRecords := memory.NewOutcomeRecordStore()
	spendTS := memory.NewSpendTimeseriesStore()
	outcomeTS := memory.NewOutcomeTimeseriesStore()
	ctx := context.Background()

	runner := NewRunner(spendRecords, outcomeRecords, spendTS, outcomeTS)

	if err := runner.NormalizeChannel(ctx, "nonexistent"); err != nil {
		t.Errorf("Empty channel should not error: %v", err)
	}

	points, _ := spendTS.GetByChannelID(ctx, "nonexistent", domain.PeriodDay)
	if len(points) != 0 {
		t.Errorf("Expected 0 points, got %d", len(points))
	}

	if err := runner.NormalizeMetric(ctx, "nonexistent"); err != nil {
		t.Errorf("Empty metric should not error: %v", err)
	}

	outPoints, _ := outcomeTS.GetByMetric(ctx, "nonexistent", domain.PeriodDay)
	if len(outPoints) != 0 {
		t.Errorf("Expected 0 outcome points, got %d", len(outPoints))
	}
}

func TestSortSpendRecords_CanonicalOrder(t *testing.T) {
	records := []*domain.SpendRecord{
		{ChannelID: "ch1", BatchID: "b2", RecordIndex: 0, PeriodStart: 1000},
		{ChannelID: "ch1", BatchID: "b1", RecordIndex: 1, PeriodStart: 1000},
		{ChannelID: "ch1", BatchID: "b1", RecordIndex: 0, PeriodStart: 2000},
		{ChannelID: "ch1", BatchID: "b1", RecordIndex: 0, PeriodStart: 1000},
	}

	SortSpendRecords(records)

	// (1000, b1, 0), (1000, b1, 1), (1000, b2, 0), (2000, b1, 0)
	if records[0].BatchID != "b1" || records[0].RecordIndex != 0 || records[0].PeriodStart != 1000 {
		t.Errorf("Record 0 out of order: %+v", records[0])
	}
	if records[1].BatchID != "b1" || records[1].RecordIndex != 1 {
		t.Errorf("Record 1 out of order: %+v", records[1])
	}
	if records[2].BatchID != "b2" {
		t.Errorf("Record 2 out of order: %+v", records[2])
	}
	if records[3].PeriodStart != 2000 {
		t.Errorf("Record 3 out of order: %+v", records[3])
	}
}
