package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
)

// ChannelAggregateStore is an in-memory implementation of storage.ChannelAggregateStore.
type ChannelAggregateStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ChannelAggregate // keyed by (run_id, channel_id)
}

// NewChannelAggregateStore creates a new in-memory channel aggregate store.
func NewChannelAggregateStore() *ChannelAggregateStore {
	return &ChannelAggregateStore{
		data: make(map[string]*domain.ChannelAggregate),
	}
}

// aggregateKey generates a unique key for an aggregate.
func aggregateKey(runID, channelID string) string {
	return fmt.Sprintf("%s|%s", runID, channelID)
}

// Insert adds a new aggregate. Returns ErrDuplicateKey if the key exists.
func (s *ChannelAggregateStore) Insert(_ context.Context, a *domain.ChannelAggregate) error {
	if a == nil || a.RunID == "" || a.ChannelID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := aggregateKey(a.RunID, a.ChannelID)
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	aggregateCopy := *a
	s.data[key] = &aggregateCopy
	return nil
}

// InsertBulk adds multiple aggregates atomically. Fails entire batch on any duplicate.
func (s *ChannelAggregateStore) InsertBulk(_ context.Context, aggregates []*domain.ChannelAggregate) error {
	if len(aggregates) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(aggregates))

	// First pass: check for duplicates (existing + intra-batch)
	for _, a := range aggregates {
		if a == nil || a.RunID == "" || a.ChannelID == "" {
			return storage.ErrInvalidInput
		}
		key := aggregateKey(a.RunID, a.ChannelID)

		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, a := range aggregates {
		key := aggregateKey(a.RunID, a.ChannelID)
		aggregateCopy := *a
		s.data[key] = &aggregateCopy
	}

	return nil
}

// GetByKey retrieves an aggregate by its composite key. Returns ErrNotFound if not exists.
func (s *ChannelAggregateStore) GetByKey(_ context.Context, runID, channelID string) (*domain.ChannelAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[aggregateKey(runID, channelID)]
	if !exists {
		return nil, storage.ErrNotFound
	}

	aggregateCopy := *a
	return &aggregateCopy, nil
}

// GetByRunID retrieves all aggregates for a run, ordered by channel_id ASC.
func (s *ChannelAggregateStore) GetByRunID(_ context.Context, runID string) ([]*domain.ChannelAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ChannelAggregate
	for _, a := range s.data {
		if a.RunID == runID {
			aggregateCopy := *a
			result = append(result, &aggregateCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ChannelID < result[j].ChannelID
	})

	return result, nil
}

// GetAll retrieves all aggregates.
func (s *ChannelAggregateStore) GetAll(_ context.Context) ([]*domain.ChannelAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.ChannelAggregate, 0, len(s.data))
	for _, a := range s.data {
		aggregateCopy := *a
		result = append(result, &aggregateCopy)
	}

	// Sort by run_id, channel_id ASC
	sort.Slice(result, func(i, j int) bool {
		if result[i].RunID != result[j].RunID {
			return result[i].RunID < result[j].RunID
		}
		return result[i].ChannelID < result[j].ChannelID
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.ChannelAggregateStore = (*ChannelAggregateStore)(nil)
