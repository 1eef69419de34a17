package verification

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
	"mediamix-lab/internal/storage/memory"
)

const verifyRunID = "run-ver-1"

const verifyDayMs = int64(domain.PeriodDay) * 1000

type verifierStores struct {
	runs          *memory.ModelRunStore
	spend         *memory.SpendTimeseriesStore
	outcome       *memory.OutcomeTimeseriesStore
	transformed   *memory.TransformedTimeseriesStore
	contributions *memory.ContributionTimeseriesStore
	aggregates    *memory.ChannelAggregateStore
}

func newVerifierStores() verifierStores {
	return verifierStores{
		runs:          memory.NewModelRunStore(),
		spend:         memory.NewSpendTimeseriesStore(),
		outcome:       memory.NewOutcomeTimeseriesStore(),
		transformed:   memory.NewTransformedTimeseriesStore(),
		contributions: memory.NewContributionTimeseriesStore(),
		aggregates:    memory.NewChannelAggregateStore(),
	}
}

func newTestVerifier(s verifierStores) *Verifier {
	return NewVerifier(VerifierOptions{
		RunStore:          s.runs,
		SpendStore:        s.spend,
		OutcomeStore:      s.outcome,
		TransformedStore:  s.transformed,
		ContributionStore: s.contributions,
		AggregateStore:    s.aggregates,
	})
}

// runFixture holds one run's artifacts so tests can mutate individual
// rows before inserting.
type runFixture struct {
	run           *domain.ModelRun
	spend         []*domain.SpendTimeseriesPoint
	outcome       []*domain.OutcomeTimeseriesPoint
	transformed   []*domain.TransformedPoint
	contributions []*domain.ContributionPoint
	aggregates    []*domain.ChannelAggregate
}

// cleanRunFixture builds a fully consistent run: two channels over four
// daily periods, transforms within bounds, contributions equal to
// beta*saturated, and aggregates matching the contribution points.
// Slice layout: indexes 0..3 hold tv-1 periods 0..3, indexes 4..7 hold
// search-1 periods 0..3.
func cleanRunFixture() *runFixture {
	run := &domain.ModelRun{
		RunID:         verifyRunID,
		Fingerprint:   "fp-ver-1",
		Metric:        "conversions",
		PeriodSeconds: domain.PeriodDay,
		FitterID:      "GRID_SEARCH_L2",
		Intercept:     20.0,
		RSquared:      0.9,
		MAPE:          0.1,
		TrainPeriods:  4,
		Channels: []domain.ChannelParams{
			{
				ChannelID:  "tv-1",
				Adstock:    domain.AdstockConfig{Length: 2, Peak: 0, Decay: 0.5},
				Saturation: domain.SaturationConfig{HalfSat: 200, Slope: 1.0},
				Beta:       10.0,
			},
			{
				ChannelID:  "search-1",
				Adstock:    domain.AdstockConfig{Length: 2, Peak: 1, Decay: 0.3},
				Saturation: domain.SaturationConfig{HalfSat: 50, Slope: 2.0},
				Beta:       5.0,
			},
		},
		CreatedAt: 1000,
	}

	fx := &runFixture{run: run}

	tvSpend := []float64{100, 200, 300, 400}
	tvAdstocked := []float64{100, 150, 250, 350}
	tvSaturated := []float64{0.2, 0.3, 0.5, 0.6}
	searchSpend := []float64{50, 60, 70, 80}
	searchAdstocked := []float64{50, 55, 65, 75}
	searchSaturated := []float64{0.5, 0.55, 0.65, 0.75}
	outcomes := []float64{40, 50, 60, 70}

	for i := 0; i < 4; i++ {
		start := int64(i) * verifyDayMs
		fx.spend = append(fx.spend, &domain.SpendTimeseriesPoint{
			ChannelID: "tv-1", PeriodStart: start, PeriodSeconds: domain.PeriodDay,
			Spend: tvSpend[i], Impressions: 1000, RecordCount: 1,
		})
		fx.transformed = append(fx.transformed, &domain.TransformedPoint{
			RunID: verifyRunID, ChannelID: "tv-1", PeriodStart: start,
			Adstocked: tvAdstocked[i], Saturated: tvSaturated[i],
		})
		fx.contributions = append(fx.contributions, &domain.ContributionPoint{
			RunID: verifyRunID, ChannelID: "tv-1", PeriodStart: start,
			Contribution: 10.0 * tvSaturated[i], Spend: tvSpend[i],
		})
		fx.outcome = append(fx.outcome, &domain.OutcomeTimeseriesPoint{
			Metric: "conversions", PeriodStart: start, PeriodSeconds: domain.PeriodDay,
			Value: outcomes[i], RecordCount: 1,
		})
	}
	for i := 0; i < 4; i++ {
		start := int64(i) * verifyDayMs
		fx.spend = append(fx.spend, &domain.SpendTimeseriesPoint{
			ChannelID: "search-1", PeriodStart: start, PeriodSeconds: domain.PeriodDay,
			Spend: searchSpend[i], Impressions: 500, RecordCount: 1,
		})
		fx.transformed = append(fx.transformed, &domain.TransformedPoint{
			RunID: verifyRunID, ChannelID: "search-1", PeriodStart: start,
			Adstocked: searchAdstocked[i], Saturated: searchSaturated[i],
		})
		fx.contributions = append(fx.contributions, &domain.ContributionPoint{
			RunID: verifyRunID, ChannelID: "search-1", PeriodStart: start,
			Contribution: 5.0 * searchSaturated[i], Spend: searchSpend[i],
		})
	}

	fx.aggregates = []*domain.ChannelAggregate{
		{RunID: verifyRunID, ChannelID: "tv-1", PeriodCount: 4, TotalSpend: 1000, TotalContribution: 16.0, PeakPeriodStart: 3 * verifyDayMs},
		{RunID: verifyRunID, ChannelID: "search-1", PeriodCount: 4, TotalSpend: 260, TotalContribution: 12.25, PeakPeriodStart: 3 * verifyDayMs},
	}
	return fx
}

func (f *runFixture) insert(t *testing.T, ctx context.Context, s verifierStores) {
	t.Helper()

	if err := s.runs.Insert(ctx, f.run); err != nil {
		t.Fatalf("Insert run failed: %v", err)
	}
	if err := s.spend.InsertBulk(ctx, f.spend); err != nil {
		t.Fatalf("InsertBulk spend failed: %v", err)
	}
	if err := s.outcome.InsertBulk(ctx, f.outcome); err != nil {
		t.Fatalf("InsertBulk outcome failed: %v", err)
	}
	if err := s.transformed.InsertBulk(ctx, f.transformed); err != nil {
		t.Fatalf("InsertBulk transformed failed: %v", err)
	}
	if err := s.contributions.InsertBulk(ctx, f.contributions); err != nil {
		t.Fatalf("InsertBulk contributions failed: %v", err)
	}
	if err := s.aggregates.InsertBulk(ctx, f.aggregates); err != nil {
		t.Fatalf("InsertBulk aggregates failed: %v", err)
	}
}

func countInvariant(report *Report, invariant string) int {
	n := 0
	for _, f := range report.Findings {
		if f.Invariant == invariant {
			n++
		}
	}
	return n
}

func findInvariant(report *Report, invariant string) *Finding {
	for i := range report.Findings {
		if report.Findings[i].Invariant == invariant {
			return &report.Findings[i]
		}
	}
	return nil
}

func TestVerifyRun_CleanData(t *testing.T) {
	ctx := context.Background()
	stores := newVerifierStores()
	cleanRunFixture().insert(t, ctx, stores)

	report, err := newTestVerifier(stores).VerifyRun(ctx, verifyRunID)
	if err != nil {
		t.Fatalf("VerifyRun failed: %v", err)
	}

	for _, f := range report.Findings {
		t.Errorf("Unexpected finding: %s", f)
	}
	if report.RunID != verifyRunID {
		t.Errorf("Expected run ID %s, got %s", verifyRunID, report.RunID)
	}
	// 2 spend series + 1 outcome + 2 transformed + 2 contribution
	if report.CheckedSeries != 7 {
		t.Errorf("Expected 7 checked series, got %d", report.CheckedSeries)
	}
	// 8 spend + 4 outcome + 8 transformed + 8 contribution + 2 aggregates
	if report.CheckedPoints != 30 {
		t.Errorf("Expected 30 checked points, got %d", report.CheckedPoints)
	}
}

func TestVerifyRun_RunNotFound(t *testing.T) {
	ctx := context.Background()
	stores := newVerifierStores()

	_, err := newTestVerifier(stores).VerifyRun(ctx, "missing-run")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestVerifyRun_SaturationOutOfBounds(t *testing.T) {
	ctx := context.Background()
	stores := newVerifierStores()
	fx := cleanRunFixture()
	// Saturated values must stay below 1. Keep the contribution and the
	// aggregate consistent with the corrupted value so only this check fires.
	fx.transformed[1].Saturated = 1.0
	fx.contributions[1].Contribution = 10.0
	fx.aggregates[0].TotalContribution = 23.0
	fx.aggregates[0].PeakPeriodStart = verifyDayMs
	fx.insert(t, ctx, stores)

	report, err := newTestVerifier(stores).VerifyRun(ctx, verifyRunID)
	if err != nil {
		t.Fatalf("VerifyRun failed: %v", err)
	}

	if len(report.Findings) != 1 {
		t.Fatalf("Expected 1 finding, got %d: %v", len(report.Findings), report.Messages())
	}
	f := report.Findings[0]
	if f.Invariant != InvariantSaturationBounds {
		t.Errorf("Expected %s finding, got %s", InvariantSaturationBounds, f.Invariant)
	}
	if f.Subject != "transformed tv-1" {
		t.Errorf("Expected subject 'transformed tv-1', got %q", f.Subject)
	}
}

func TestVerifyRun_AdstockExceedsWindow(t *testing.T) {
	ctx := context.Background()
	stores := newVerifierStores()
	fx := cleanRunFixture()
	// tv-1 period 1: raw spend over the length-2 window peaks at 200
	fx.transformed[1].Adstocked = 500.0
	fx.insert(t, ctx, stores)

	report, err := newTestVerifier(stores).VerifyRun(ctx, verifyRunID)
	if err != nil {
		t.Fatalf("VerifyRun failed: %v", err)
	}

	if len(report.Findings) != 1 {
		t.Fatalf("Expected 1 finding, got %d: %v", len(report.Findings), report.Messages())
	}
	f := report.Findings[0]
	if f.Invariant != InvariantAdstockBounds {
		t.Errorf("Expected %s finding, got %s", InvariantAdstockBounds, f.Invariant)
	}
	if !strings.Contains(f.Detail, "exceeds window max 200") {
		t.Errorf("Expected window max in detail, got %q", f.Detail)
	}
}

func TestVerifyRun_NegativeAdstocked(t *testing.T) {
	ctx := context.Background()
	stores := newVerifierStores()
	fx := cleanRunFixture()
	fx.transformed[4].Adstocked = -1.0 // search-1 period 0
	fx.insert(t, ctx, stores)

	report, err := newTestVerifier(stores).VerifyRun(ctx, verifyRunID)
	if err != nil {
		t.Fatalf("VerifyRun failed: %v", err)
	}

	if len(report.Findings) != 1 {
		t.Fatalf("Expected 1 finding, got %d: %v", len(report.Findings), report.Messages())
	}
	f := report.Findings[0]
	if f.Invariant != InvariantAdstockBounds {
		t.Errorf("Expected %s finding, got %s", InvariantAdstockBounds, f.Invariant)
	}
	if f.Subject != "transformed search-1" {
		t.Errorf("Expected subject 'transformed search-1', got %q", f.Subject)
	}
}

func TestVerifyRun_NegativeContribution(t *testing.T) {
	ctx := context.Background()
	stores := newVerifierStores()
	fx := cleanRunFixture()
	// search-1 period 2: fitted value is 3.25, stored value turns negative.
	// Fires both the sign check and the beta*saturated cross-check.
	fx.contributions[6].Contribution = -1.0
	fx.aggregates[1].TotalContribution = 8.0
	fx.insert(t, ctx, stores)

	report, err := newTestVerifier(stores).VerifyRun(ctx, verifyRunID)
	if err != nil {
		t.Fatalf("VerifyRun failed: %v", err)
	}

	if len(report.Findings) != 2 {
		t.Fatalf("Expected 2 findings, got %d: %v", len(report.Findings), report.Messages())
	}
	if countInvariant(report, InvariantNegativeContribution) != 1 {
		t.Errorf("Expected 1 %s finding", InvariantNegativeContribution)
	}
	if countInvariant(report, InvariantContributionMismatch) != 1 {
		t.Errorf("Expected 1 %s finding", InvariantContributionMismatch)
	}
	if f := findInvariant(report, InvariantNegativeContribution); f != nil && f.Subject != "contribution search-1" {
		t.Errorf("Expected subject 'contribution search-1', got %q", f.Subject)
	}
}

func TestVerifyRun_SpendMismatch(t *testing.T) {
	ctx := context.Background()
	stores := newVerifierStores()
	fx := cleanRunFixture()
	// tv-1 period 2: raw series holds 300
	fx.contributions[2].Spend = 999.0
	fx.aggregates[0].TotalSpend = 1699.0
	fx.insert(t, ctx, stores)

	report, err := newTestVerifier(stores).VerifyRun(ctx, verifyRunID)
	if err != nil {
		t.Fatalf("VerifyRun failed: %v", err)
	}

	if len(report.Findings) != 1 {
		t.Fatalf("Expected 1 finding, got %d: %v", len(report.Findings), report.Messages())
	}
	f := report.Findings[0]
	if f.Invariant != InvariantSpendMismatch {
		t.Errorf("Expected %s finding, got %s", InvariantSpendMismatch, f.Invariant)
	}
	if !strings.Contains(f.Detail, "diverges from raw series 300") {
		t.Errorf("Expected raw spend in detail, got %q", f.Detail)
	}
}

func TestVerifyRun_AggregateMismatch(t *testing.T) {
	ctx := context.Background()
	stores := newVerifierStores()
	fx := cleanRunFixture()
	fx.aggregates[0].TotalContribution = 99.0
	fx.insert(t, ctx, stores)

	report, err := newTestVerifier(stores).VerifyRun(ctx, verifyRunID)
	if err != nil {
		t.Fatalf("VerifyRun failed: %v", err)
	}

	if len(report.Findings) != 1 {
		t.Fatalf("Expected 1 finding, got %d: %v", len(report.Findings), report.Messages())
	}
	f := report.Findings[0]
	if f.Invariant != InvariantAggregateMismatch {
		t.Errorf("Expected %s finding, got %s", InvariantAggregateMismatch, f.Invariant)
	}
	if f.Subject != "aggregate tv-1" {
		t.Errorf("Expected subject 'aggregate tv-1', got %q", f.Subject)
	}
	if !strings.Contains(f.Detail, "total contribution 99") {
		t.Errorf("Expected stored total in detail, got %q", f.Detail)
	}
}

func TestVerifyRun_MissingTransformedSeries(t *testing.T) {
	ctx := context.Background()
	stores := newVerifierStores()
	fx := cleanRunFixture()
	fx.transformed = fx.transformed[:4] // drop search-1 transformed points
	fx.insert(t, ctx, stores)

	report, err := newTestVerifier(stores).VerifyRun(ctx, verifyRunID)
	if err != nil {
		t.Fatalf("VerifyRun failed: %v", err)
	}

	if len(report.Findings) != 1 {
		t.Fatalf("Expected 1 finding, got %d: %v", len(report.Findings), report.Messages())
	}
	f := report.Findings[0]
	if f.Invariant != InvariantMissingSeries {
		t.Errorf("Expected %s finding, got %s", InvariantMissingSeries, f.Invariant)
	}
	if f.Subject != "transformed search-1" {
		t.Errorf("Expected subject 'transformed search-1', got %q", f.Subject)
	}
}

func TestVerifyRun_UnknownChannel(t *testing.T) {
	ctx := context.Background()
	stores := newVerifierStores()
	fx := cleanRunFixture()
	fx.transformed = append(fx.transformed, &domain.TransformedPoint{
		RunID: verifyRunID, ChannelID: "ooh-9", PeriodStart: 0,
		Adstocked: 10, Saturated: 0.1,
	})
	fx.insert(t, ctx, stores)

	report, err := newTestVerifier(stores).VerifyRun(ctx, verifyRunID)
	if err != nil {
		t.Fatalf("VerifyRun failed: %v", err)
	}

	if len(report.Findings) != 1 {
		t.Fatalf("Expected 1 finding, got %d: %v", len(report.Findings), report.Messages())
	}
	f := report.Findings[0]
	if f.Invariant != InvariantUnknownChannel {
		t.Errorf("Expected %s finding, got %s", InvariantUnknownChannel, f.Invariant)
	}
	if f.Subject != "transformed ooh-9" {
		t.Errorf("Expected subject 'transformed ooh-9', got %q", f.Subject)
	}
}

func TestVerifyRun_ParamBounds(t *testing.T) {
	ctx := context.Background()
	stores := newVerifierStores()
	fx := cleanRunFixture()
	fx.run.Channels[1].Adstock.Decay = 1.5 // search-1
	fx.insert(t, ctx, stores)

	report, err := newTestVerifier(stores).VerifyRun(ctx, verifyRunID)
	if err != nil {
		t.Fatalf("VerifyRun failed: %v", err)
	}

	if len(report.Findings) != 1 {
		t.Fatalf("Expected 1 finding, got %d: %v", len(report.Findings), report.Messages())
	}
	f := report.Findings[0]
	if f.Invariant != InvariantParamBounds {
		t.Errorf("Expected %s finding, got %s", InvariantParamBounds, f.Invariant)
	}
	if f.Subject != "params search-1" {
		t.Errorf("Expected subject 'params search-1', got %q", f.Subject)
	}
	if !strings.Contains(f.Detail, "decay 1.5") {
		t.Errorf("Expected decay value in detail, got %q", f.Detail)
	}
}

// unsortedSpendStore returns its points exactly as given, bypassing the
// sorted reads the regular stores provide.
type unsortedSpendStore struct {
	storage.SpendTimeseriesStore
	points []*domain.SpendTimeseriesPoint
}

func (s *unsortedSpendStore) GetByChannelID(_ context.Context, _ string, _ int) ([]*domain.SpendTimeseriesPoint, error) {
	return s.points, nil
}

func TestVerifyRun_OutOfOrderSeries(t *testing.T) {
	ctx := context.Background()
	stores := newVerifierStores()

	run := &domain.ModelRun{
		RunID:         verifyRunID,
		Fingerprint:   "fp-ver-1",
		Metric:        "conversions",
		PeriodSeconds: domain.PeriodDay,
		FitterID:      "GRID_SEARCH_L2",
		TrainPeriods:  4,
		Channels: []domain.ChannelParams{
			{
				ChannelID:  "tv-1",
				Adstock:    domain.AdstockConfig{Length: 2, Peak: 0, Decay: 0.5},
				Saturation: domain.SaturationConfig{HalfSat: 200, Slope: 1.0},
				Beta:       10.0,
			},
		},
		CreatedAt: 1000,
	}
	if err := stores.runs.Insert(ctx, run); err != nil {
		t.Fatalf("Insert run failed: %v", err)
	}

	stub := &unsortedSpendStore{points: []*domain.SpendTimeseriesPoint{
		{ChannelID: "tv-1", PeriodStart: 0, PeriodSeconds: domain.PeriodDay, Spend: 100, RecordCount: 1},
		{ChannelID: "tv-1", PeriodStart: 2 * verifyDayMs, PeriodSeconds: domain.PeriodDay, Spend: 300, RecordCount: 1},
		{ChannelID: "tv-1", PeriodStart: verifyDayMs, PeriodSeconds: domain.PeriodDay, Spend: 200, RecordCount: 1},
		{ChannelID: "tv-1", PeriodStart: verifyDayMs, PeriodSeconds: domain.PeriodDay, Spend: 200, RecordCount: 1},
	}}
	verifier := NewVerifier(VerifierOptions{
		RunStore:          stores.runs,
		SpendStore:        stub,
		OutcomeStore:      stores.outcome,
		TransformedStore:  stores.transformed,
		ContributionStore: stores.contributions,
		AggregateStore:    stores.aggregates,
	})

	report, err := verifier.VerifyRun(ctx, verifyRunID)
	if err != nil {
		t.Fatalf("VerifyRun failed: %v", err)
	}

	if countInvariant(report, InvariantPeriodOrder) != 1 {
		t.Errorf("Expected 1 %s finding, got %d", InvariantPeriodOrder, countInvariant(report, InvariantPeriodOrder))
	}
	if countInvariant(report, InvariantDuplicatePeriod) != 1 {
		t.Errorf("Expected 1 %s finding, got %d", InvariantDuplicatePeriod, countInvariant(report, InvariantDuplicatePeriod))
	}
	if f := findInvariant(report, InvariantPeriodOrder); f != nil && f.Subject != "spend tv-1" {
		t.Errorf("Expected subject 'spend tv-1', got %q", f.Subject)
	}
}

func TestReport_Messages(t *testing.T) {
	report := &Report{}
	if msgs := report.Messages(); msgs != nil {
		t.Errorf("Expected nil messages for clean report, got %v", msgs)
	}
	if !report.OK() {
		t.Error("Expected clean report to be OK")
	}

	report.add(InvariantNegativeSpend, "spend tv-1", "spend %g at period %d", -5.0, int64(0))
	if report.OK() {
		t.Error("Expected report with findings to not be OK")
	}
	msgs := report.Messages()
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(msgs))
	}
	if msgs[0] != "spend tv-1: spend -5 at period 0" {
		t.Errorf("Unexpected message: %q", msgs[0])
	}
}

func TestFloatEquals(t *testing.T) {
	tests := []struct {
		name string
		a, b float64
		want bool
	}{
		{"exact match", 1.0, 1.0, true},
		{"within tolerance", 1.0, 1.0 + FloatTolerance/2, true},
		{"at tolerance boundary", 1.0, 1.0 + FloatTolerance, true},
		{"beyond tolerance", 1.0, 1.0 + FloatTolerance*2, false},
		{"zeros", 0.0, 0.0, true},
		{"small values", 1e-10, 1e-10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := floatEquals(tt.a, tt.b); got != tt.want {
				t.Errorf("floatEquals(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
