package feed

import "context"

// ExportClient defines the historical export HTTP interface.
type ExportClient interface {
	// FetchSpend retrieves spend events within time range [from, to] (inclusive, ms).
	FetchSpend(ctx context.Context, from, to int64) ([]SpendEvent, error)

	// FetchOutcome retrieves outcome events within time range [from, to] (inclusive, ms).
	FetchOutcome(ctx context.Context, from, to int64) ([]OutcomeEvent, error)

	// FetchStatus retrieves the export availability window and stream head.
	FetchStatus(ctx context.Context) (*ExportStatus, error)
}

// SpendEvent represents one spend record as carried on the wire.
type SpendEvent struct {
	Channel     string  `json:"channel"`
	Medium      string  `json:"medium"`
	PeriodStart int64   `json:"period_start"` // Unix timestamp (ms)
	Spend       float64 `json:"spend"`
	Impressions float64 `json:"impressions"`
}

// OutcomeEvent represents one KPI record as carried on the wire.
type OutcomeEvent struct {
	Metric      string  `json:"metric"`
	PeriodStart int64   `json:"period_start"` // Unix timestamp (ms)
	Value       float64 `json:"value"`
}

// ExportStatus describes what the export endpoint can serve.
type ExportStatus struct {
	EarliestPeriodStart int64 `json:"earliest_period_start"`
	LatestPeriodStart   int64 `json:"latest_period_start"`
	LatestSeq           int64 `json:"latest_seq"`
}
