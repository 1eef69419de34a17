package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
)

// SpendTimeseriesStore is an in-memory implementation of storage.SpendTimeseriesStore.
type SpendTimeseriesStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SpendTimeseriesPoint // keyed by (channel_id, period_start, period_seconds)
}

// NewSpendTimeseriesStore creates a new in-memory spend timeseries store.
func NewSpendTimeseriesStore() *SpendTimeseriesStore {
	return &SpendTimeseriesStore{
		data: make(map[string]*domain.SpendTimeseriesPoint),
	}
}

// spendPointKey generates a unique key for a spend point.
func spendPointKey(channelID string, periodStart int64, periodSeconds int) string {
	return fmt.Sprintf("%s|%d|%d", channelID, periodStart, periodSeconds)
}

// InsertBulk adds multiple points. Fails entire batch on duplicate.
func (s *SpendTimeseriesStore) InsertBulk(_ context.Context, points []*domain.SpendTimeseriesPoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(points))

	// First pass: check for duplicates (existing + intra-batch)
	for _, p := range points {
		if p == nil || p.ChannelID == "" || p.PeriodSeconds <= 0 {
			return storage.ErrInvalidInput
		}
		key := spendPointKey(p.ChannelID, p.PeriodStart, p.PeriodSeconds)

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
		key := spendPointKey(p.ChannelID, p.PeriodStart, p.PeriodSeconds)
		pointCopy := *p
		s.data[key] = &pointCopy
	}

	return nil
}

// GetByChannelID retrieves all points for a channel at one period size, ordered by period_start ASC.
func (s *SpendTimeseriesStore) GetByChannelID(_ context.Context, channelID string, periodSeconds int) ([]*domain.SpendTimeseriesPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SpendTimeseriesPoint
	for _, p := range s.data {
		if p.ChannelID == channelID && p.PeriodSeconds == periodSeconds {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].PeriodStart < result[j].PeriodStart
	})

	return result, nil
}

// GetByTimeRange retrieves points for a channel within [start, end] (inclusive).
func (s *SpendTimeseriesStore) GetByTimeRange(_ context.Context, channelID string, periodSeconds int, start, end int64) ([]*domain.SpendTimeseriesPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SpendTimeseriesPoint
	for _, p := range s.data {
		if p.ChannelID == channelID && p.PeriodSeconds == periodSeconds &&
			p.PeriodStart >= start && p.PeriodStart <= end {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].PeriodStart < result[j].PeriodStart
	})

	return result, nil
}

// GetGlobalTimeRange returns min and max period starts across all data
// for one period size.
func (s *SpendTimeseriesStore) GetGlobalTimeRange(_ context.Context, periodSeconds int) (minStart, maxStart int64, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	first := true
	for _, p := range s.data {
		if p.PeriodSeconds != periodSeconds {
			continue
		}
		if first {
			minStart = p.PeriodStart
			maxStart = p.PeriodStart
			first = false
		} else {
			if p.PeriodStart < minStart {
				minStart = p.PeriodStart
			}
			if p.PeriodStart > maxStart {
				maxStart = p.PeriodStart
			}
		}
	}

	return minStart, maxStart, nil
}

// Verify interface compliance at compile time.
var _ storage.SpendTimeseriesStore = (*SpendTimeseriesStore)(nil)
