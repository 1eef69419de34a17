package ingestion

import (
	"context"

	"mediamix-lab/internal/feed"
)

// ExportSpendSource provides spend events via the feed HTTP export endpoint.
type ExportSpendSource struct {
	client feed.ExportClient
}

// NewExportSpendSource creates a spend source backed by the export API.
func NewExportSpendSource(client feed.ExportClient) *ExportSpendSource {
	return &ExportSpendSource{client: client}
}

// Fetch returns spend events with period_start within [from, to] (inclusive).
func (s *ExportSpendSource) Fetch(ctx context.Context, from, to int64) ([]feed.SpendEvent, error) {
	return s.client.FetchSpend(ctx, from, to)
}

// ExportOutcomeSource provides outcome events via the feed HTTP export endpoint.
type ExportOutcomeSource struct {
	client feed.ExportClient
}

// NewExportOutcomeSource creates an outcome source backed by the export API.
func NewExportOutcomeSource(client feed.ExportClient) *ExportOutcomeSource {
	return &ExportOutcomeSource{client: client}
}

// Fetch returns outcome events with period_start within [from, to] (inclusive).
func (s *ExportOutcomeSource) Fetch(ctx context.Context, from, to int64) ([]feed.OutcomeEvent, error) {
	return s.client.FetchOutcome(ctx, from, to)
}
