package ingestion

import (
	"context"

	"mediamix-lab/internal/feed"
)

// SpendSource provides raw spend events from external sources.
type SpendSource interface {
	// Fetch returns spend events with period_start within [from, to] (inclusive).
	// Events may be unordered; Manager enforces deterministic ordering.
	Fetch(ctx context.Context, from, to int64) ([]feed.SpendEvent, error)
}

// OutcomeSource provides raw outcome events from external sources.
type OutcomeSource interface {
	// Fetch returns outcome events with period_start within [from, to] (inclusive).
	// Events may be unordered; Manager enforces deterministic ordering.
	Fetch(ctx context.Context, from, to int64) ([]feed.OutcomeEvent, error)
}
