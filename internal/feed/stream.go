package feed

import (
	"context"
	"encoding/json"
)

// Stream names carried by the feed protocol.
const (
	StreamSpend   = "spend"
	StreamOutcome = "outcome"
)

// StreamClient defines the streaming feed subscription interface.
type StreamClient interface {
	// Subscribe subscribes to the named streams.
	Subscribe(ctx context.Context, filter StreamFilter) (<-chan Notification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// StreamFilter defines which streams a subscription receives.
type StreamFilter struct {
	// Streams lists stream names. Empty means all streams.
	Streams []string
}

// Notification represents one feed envelope.
type Notification struct {
	Stream string
	Seq    int64
	Record json.RawMessage
}

// SpendEvent decodes the record payload of a spend-stream notification.
func (n Notification) SpendEvent() (*SpendEvent, error) {
	var ev SpendEvent
	if err := json.Unmarshal(n.Record, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// OutcomeEvent decodes the record payload of an outcome-stream notification.
func (n Notification) OutcomeEvent() (*OutcomeEvent, error) {
	var ev OutcomeEvent
	if err := json.Unmarshal(n.Record, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
