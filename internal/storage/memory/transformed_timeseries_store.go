package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
)

// TransformedTimeseriesStore is an in-memory implementation of storage.TransformedTimeseriesStore.
type TransformedTimeseriesStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TransformedPoint // keyed by (run_id, channel_id, period_start)
}

// NewTransformedTimeseriesStore creates a new in-memory transformed timeseries store.
func NewTransformedTimeseriesStore() *TransformedTimeseriesStore {
	return &TransformedTimeseriesStore{
		data: make(map[string]*domain.TransformedPoint),
	}
}

// transformedPointKey generates a unique key for a transformed point.
func transformedPointKey(runID, channelID string, periodStart int64) string {
	return fmt.Sprintf("%s|%s|%d", runID, channelID, periodStart)
}

// InsertBulk adds multiple points. Fails entire batch on duplicate.
func (s *TransformedTimeseriesStore) InsertBulk(_ context.Context, points []*domain.TransformedPoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(points))

	// First pass: check for duplicates (existing + intra-batch)
	for _, p := range points {
		if p == nil || p.RunID == "" || p.ChannelID == "" {
			return storage.ErrInvalidInput
		}
		key := transformedPointKey(p.RunID, p.ChannelID, p.PeriodStart)

		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, p := range points {
		key := transformedPointKey(p.RunID, p.ChannelID, p.PeriodStart)
		pointCopy := *p
		s.data[key] = &pointCopy
	}

	return nil
}

// GetByRunChannel retrieves all points for a run/channel, ordered by period_start ASC.
func (s *TransformedTimeseriesStore) GetByRunChannel(_ context.Context, runID, channelID string) ([]*domain.TransformedPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TransformedPoint
	for _, p := range s.data {
		if p.RunID == runID && p.ChannelID == channelID {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].PeriodStart < result[j].PeriodStart
	})

	return result, nil
}

// GetByRunID retrieves all points for a run, ordered by channel_id, period_start ASC.
func (s *TransformedTimeseriesStore) GetByRunID(_ context.Context, runID string) ([]*domain.TransformedPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TransformedPoint
	for _, p := range s.data {
		if p.RunID == runID {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ChannelID != result[j].ChannelID {
			return result[i].ChannelID < result[j].ChannelID
		}
		return result[i].PeriodStart < result[j].PeriodStart
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.TransformedTimeseriesStore = (*TransformedTimeseriesStore)(nil)
