package ingestion

import (
	"context"
	"log"

	"mediamix-lab/internal/feed"
)

// StreamEvent is a decoded feed envelope tagged with its batch sequence.
// Exactly one of Spend or Outcome is set.
type StreamEvent struct {
	Seq     int64
	Spend   *feed.SpendEvent
	Outcome *feed.OutcomeEvent
}

// WSStreamSource provides real-time spend and outcome events via WebSocket subscription.
type WSStreamSource struct {
	client  feed.StreamClient
	streams []string
}

// NewWSStreamSource creates a new WebSocket-based stream source.
// An empty streams list subscribes to all streams.
func NewWSStreamSource(client feed.StreamClient, streams []string) *WSStreamSource {
	return &WSStreamSource{
		client:  client,
		streams: streams,
	}
}

// Subscribe returns a channel of decoded stream events from live WebSocket subscription.
// The channel is closed when the context is cancelled or the feed connection ends.
func (s *WSStreamSource) Subscribe(ctx context.Context) (<-chan *StreamEvent, error) {
	notifCh, err := s.client.Subscribe(ctx, feed.StreamFilter{Streams: s.streams})
	if err != nil {
		return nil, err
	}
	log.Printf("[ws-stream] Subscribed to streams: %v", s.streams)

	eventsCh := make(chan *StreamEvent, 100)

	go func() {
		defer close(eventsCh)

		for {
			select {
			case <-ctx.Done():
				return
			case notif, ok := <-notifCh:
				if !ok {
					log.Println("[ws-stream] notification channel closed")
					return
				}
				event := decodeNotification(notif)
				if event == nil {
					continue
				}

				select {
				case eventsCh <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return eventsCh, nil
}

// decodeNotification converts a feed envelope into a typed stream event.
// Returns nil for malformed or unknown payloads.
func decodeNotification(notif feed.Notification) *StreamEvent {
	switch notif.Stream {
	case feed.StreamSpend:
		record, err := notif.SpendEvent()
		if err != nil {
			log.Printf("[ws-stream] Error decoding spend record (seq=%d): %v", notif.Seq, err)
			return nil
		}
		return &StreamEvent{Seq: notif.Seq, Spend: record}

	case feed.StreamOutcome:
		record, err := notif.OutcomeEvent()
		if err != nil {
			log.Printf("[ws-stream] Error decoding outcome record (seq=%d): %v", notif.Seq, err)
			return nil
		}
		return &StreamEvent{Seq: notif.Seq, Outcome: record}

	default:
		log.Printf("[ws-stream] SKIP: unknown stream %q (seq=%d)", notif.Stream, notif.Seq)
		return nil
	}
}
