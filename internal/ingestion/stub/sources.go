package stub

import (
	"context"

	"mediamix-lab/internal/feed"
)

// StubSpendSource returns fixed in-memory spend events for testing.
// Events can be intentionally unordered to test sorting.
// Implements ingestion.SpendSource interface.
type StubSpendSource struct {
	events []feed.SpendEvent
}

// NewStubSpendSource creates a new stub spend source with the given events.
func NewStubSpendSource(events []feed.SpendEvent) *StubSpendSource {
	return &StubSpendSource{events: events}
}

// Fetch returns events within the time range.
// Returns copies to prevent mutation.
func (s *StubSpendSource) Fetch(_ context.Context, from, to int64) ([]feed.SpendEvent, error) {
	var result []feed.SpendEvent
	for _, event := range s.events {
		if event.PeriodStart >= from && event.PeriodStart <= to {
			result = append(result, event)
		}
	}
	return result, nil
}

// StubOutcomeSource returns fixed in-memory outcome events for testing.
// Implements ingestion.OutcomeSource interface.
type StubOutcomeSource struct {
	events []feed.OutcomeEvent
}

// NewStubOutcomeSource creates a new stub outcome source with the given events.
func NewStubOutcomeSource(events []feed.OutcomeEvent) *StubOutcomeSource {
	return &StubOutcomeSource{events: events}
}

// Fetch returns events within the time range.
func (s *StubOutcomeSource) Fetch(_ context.Context, from, to int64) ([]feed.OutcomeEvent, error) {
	var result []feed.OutcomeEvent
	for _, event := range s.events {
		if event.PeriodStart >= from && event.PeriodStart <= to {
			result = append(result, event)
		}
	}
	return result, nil
}
