package reporting

import "time"

// Report represents the model report structure.
type Report struct {
	// Metadata
	GeneratedAt  time.Time
	ChannelCount int
	RunCount     int

	// Reproducibility metadata for the reported run
	Reproducibility ReproducibilityBlock

	// Data Summary
	DataSummary DataSummary

	// Data Quality (sufficiency checks)
	DataQuality DataQualitySection

	// Channel Metrics for the reported run (sorted by channel_id)
	ChannelMetrics []ChannelMetricRow

	// Scenario Projections for the reported run (sorted by channel_id, scenario_id)
	ScenarioProjections []ScenarioProjectionRow

	// Model Quality across stored runs (sorted by created_at, run_id)
	ModelQuality []ModelQualityRow
}

// ReproducibilityBlock identifies the run and the data it was fitted on.
// Together with the replay tooling it lets a reader rebuild the run.
type ReproducibilityBlock struct {
	RunID           string
	DataFingerprint string
	FitterID        string
	Metric          string
	PeriodSeconds   int
	TrainPeriods    int
	CreatedAt       int64 // Unix ms
}

// DataQualitySection contains data sufficiency checks and integrity errors.
type DataQualitySection struct {
	SufficiencyChecks []SufficiencyCheckRow
	IntegrityErrors   []string
	AllChecksPassed   bool
}

// SufficiencyCheckRow represents one sufficiency criterion.
type SufficiencyCheckRow struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// DataSummary contains data description.
type DataSummary struct {
	TotalChannels  int
	FileChannels   int
	StreamChannels int
	SpendPoints    int   // stored spend points at the run cadence
	OutcomePoints  int   // stored outcome points for the run metric
	DateRangeStart int64 // Unix ms
	DateRangeEnd   int64 // Unix ms
}

// ChannelMetricRow represents one row in the channel metrics table.
type ChannelMetricRow struct {
	ChannelID          string
	Name               string
	Medium             string
	Beta               float64
	TotalSpend         float64
	TotalContribution  float64
	ContributionShare  float64
	SpendShare         float64
	CostPerOutcome     float64
	ContributionMean   float64
	ContributionMedian float64
	ContributionP10    float64
	ContributionP90    float64
	PeakPeriodStart    int64
}

// ScenarioProjectionRow represents one projected budget scenario.
type ScenarioProjectionRow struct {
	ChannelID        string
	ScenarioID       string
	SpendMultiplier  float64
	ProjectedOutcome float64
	BaselineOutcome  float64
	Delta            float64
	DeltaPct         float64
}

// ModelQualityRow represents one stored model run's fit quality.
type ModelQualityRow struct {
	RunID         string
	Metric        string
	PeriodSeconds int
	FitterID      string
	RSquared      float64
	MAPE          float64
	TrainPeriods  int
	ChannelCount  int
	CreatedAt     int64 // Unix ms
}
