package domain

// ContributionPoint represents a channel's modeled outcome for one period.
// Corresponds to contribution_timeseries table in ClickHouse.
type ContributionPoint struct {
	RunID        string  // model run identifier
	ChannelID    string  // channel identifier
	PeriodStart  int64   // period start timestamp (ms)
	Contribution float64 // beta * saturated spend
	Spend        float64 // raw spend in period
}

// ChannelAggregate represents per-channel aggregate metrics for a model run.
// Corresponds to channel_aggregates table in ClickHouse.
type ChannelAggregate struct {
	RunID     string // model run identifier
	ChannelID string // channel identifier

	// Totals
	PeriodCount       int
	TotalSpend        float64
	TotalContribution float64
	ContributionShare float64 // contribution / total modeled outcome
	SpendShare        float64 // spend / total spend across channels
	CostPerOutcome    float64 // spend / contribution (0 when contribution is 0)

	// Period contribution distribution
	ContributionMean   float64
	ContributionMedian float64
	ContributionP10    float64 // 10th percentile
	ContributionP90    float64 // 90th percentile
	ContributionMin    float64
	ContributionMax    float64
	ContributionStddev float64

	PeakPeriodStart int64 // period with maximal contribution
}
