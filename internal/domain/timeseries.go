package domain

// SpendTimeseriesPoint represents per-period aggregated spend for a channel.
// Corresponds to spend_timeseries table in ClickHouse.
type SpendTimeseriesPoint struct {
	ChannelID     string  // channel identifier
	PeriodStart   int64   // period start timestamp (ms)
	PeriodSeconds int     // aggregation period: 86400, 604800
	Spend         float64 // total spend in period
	Impressions   float64 // total impressions in period
	RecordCount   int     // number of raw records aggregated
}

// OutcomeTimeseriesPoint represents per-period aggregated KPI value.
// Corresponds to outcome_timeseries table in ClickHouse.
type OutcomeTimeseriesPoint struct {
	Metric        string  // KPI name
	PeriodStart   int64   // period start timestamp (ms)
	PeriodSeconds int     // aggregation period: 86400, 604800
	Value         float64 // total KPI value in period
	RecordCount   int     // number of raw records aggregated
}

// Supported aggregation periods (in seconds)
const (
	PeriodDay  = 86400
	PeriodWeek = 604800
)
