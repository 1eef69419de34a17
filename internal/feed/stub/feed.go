package stub

import (
	"context"

	"mediamix-lab/internal/feed"
)

// ExportClient implements feed.ExportClient for testing.
type ExportClient struct {
	SpendEvents   []feed.SpendEvent
	OutcomeEvents []feed.OutcomeEvent
	Status        *feed.ExportStatus
}

// NewExportClient creates a new stub export client.
func NewExportClient() *ExportClient {
	return &ExportClient{}
}

// FetchSpend retrieves spend events within [from, to] from the stub store.
func (c *ExportClient) FetchSpend(_ context.Context, from, to int64) ([]feed.SpendEvent, error) {
	var out []feed.SpendEvent
	for _, ev := range c.SpendEvents {
		if ev.PeriodStart >= from && ev.PeriodStart <= to {
			out = append(out, ev)
		}
	}
	return out, nil
}

// FetchOutcome retrieves outcome events within [from, to] from the stub store.
func (c *ExportClient) FetchOutcome(_ context.Context, from, to int64) ([]feed.OutcomeEvent, error) {
	var out []feed.OutcomeEvent
	for _, ev := range c.OutcomeEvents {
		if ev.PeriodStart >= from && ev.PeriodStart <= to {
			out = append(out, ev)
		}
	}
	return out, nil
}

// FetchStatus retrieves the stubbed export status.
func (c *ExportClient) FetchStatus(_ context.Context) (*feed.ExportStatus, error) {
	if c.Status != nil {
		return c.Status, nil
	}

	status := &feed.ExportStatus{}
	first := true
	for _, ev := range c.SpendEvents {
		if first || ev.PeriodStart < status.EarliestPeriodStart {
			status.EarliestPeriodStart = ev.PeriodStart
		}
		if first || ev.PeriodStart > status.LatestPeriodStart {
			status.LatestPeriodStart = ev.PeriodStart
		}
		first = false
	}
	for _, ev := range c.OutcomeEvents {
		if first || ev.PeriodStart < status.EarliestPeriodStart {
			status.EarliestPeriodStart = ev.PeriodStart
		}
		if first || ev.PeriodStart > status.LatestPeriodStart {
			status.LatestPeriodStart = ev.PeriodStart
		}
		first = false
	}
	return status, nil
}

// AddSpend adds a spend event to the stub store.
func (c *ExportClient) AddSpend(ev feed.SpendEvent) {
	c.SpendEvents = append(c.SpendEvents, ev)
}

// AddOutcome adds an outcome event to the stub store.
func (c *ExportClient) AddOutcome(ev feed.OutcomeEvent) {
	c.OutcomeEvents = append(c.OutcomeEvents, ev)
}

// StreamClient implements feed.StreamClient for testing.
type StreamClient struct {
	ch     chan feed.Notification
	closed bool
}

// NewStreamClient creates a new stub stream client.
func NewStreamClient() *StreamClient {
	return &StreamClient{
		ch: make(chan feed.Notification, 100),
	}
}

// Subscribe returns the stub notification channel regardless of filter.
func (c *StreamClient) Subscribe(_ context.Context, _ feed.StreamFilter) (<-chan feed.Notification, error) {
	return c.ch, nil
}

// Push delivers a notification to subscribers.
func (c *StreamClient) Push(notif feed.Notification) {
	c.ch <- notif
}

// Close closes the notification channel.
func (c *StreamClient) Close() error {
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
	return nil
}
