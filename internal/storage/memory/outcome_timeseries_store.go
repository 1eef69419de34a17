package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
)

// OutcomeTimeseriesStore is an in-memory implementation of storage.OutcomeTimeseriesStore.
type OutcomeTimeseriesStore struct {
	mu   sync.RWMutex
	data map[string]*domain.OutcomeTimeseriesPoint // keyed by (metric, period_start, period_seconds)
}

// NewOutcomeTimeseriesStore creates a new in-memory outcome timeseries store.
func NewOutcomeTimeseriesStore() *OutcomeTimeseriesStore {
	return &OutcomeTimeseriesStore{
		data: make(map[string]*domain.OutcomeTimeseriesPoint),
	}
}

// outcomePointKey generates a unique key for an outcome point.
func outcomePointKey(metric string, periodStart int64, periodSeconds int) string {
	return fmt.Sprintf("%s|%d|%d", metric, periodStart, periodSeconds)
}

// InsertBulk adds multiple points. Fails entire batch on duplicate.
func (s *OutcomeTimeseriesStore) InsertBulk(_ context.Context, points []*domain.OutcomeTimeseriesPoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(points))

	// First pass: check for duplicates (existing + intra-batch)
	for _, p := range points {
		if p == nil || p.Metric == "" || p.PeriodSeconds <= 0 {
			return storage.ErrInvalidInput
		}
		key := outcomePointKey(p.Metric, p.PeriodStart, p.PeriodSeconds)

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
		key := outcomePointKey(p.Metric, p.PeriodStart, p.PeriodSeconds)
		pointCopy := *p
		s.data[key] = &pointCopy
	}

	return nil
}

// GetByMetric retrieves all points for a metric at one period size, ordered by period_start ASC.
func (s *OutcomeTimeseriesStore) GetByMetric(_ context.Context, metric string, periodSeconds int) ([]*domain.OutcomeTimeseriesPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.OutcomeTimeseriesPoint
	for _, p := range s.data {
		if p.Metric == metric && p.PeriodSeconds == periodSeconds {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].PeriodStart < result[j].PeriodStart
	})

	return result, nil
}

// GetByTimeRange retrieves points for a metric within [start, end] (inclusive).
func (s *OutcomeTimeseriesStore) GetByTimeRange(_ context.Context, metric string, periodSeconds int, start, end int64) ([]*domain.OutcomeTimeseriesPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.OutcomeTimeseriesPoint
	for _, p := range s.data {
		if p.Metric == metric && p.PeriodSeconds == periodSeconds &&
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

// Verify interface compliance at compile time.
var _ storage.OutcomeTimeseriesStore = (*OutcomeTimeseriesStore)(nil)
