package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
)

// ScenarioProjectionStore is an in-memory implementation of storage.ScenarioProjectionStore.
type ScenarioProjectionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ScenarioProjection // keyed by (run_id, scenario_id, channel_id)
}

// NewScenarioProjectionStore creates a new in-memory scenario projection store.
func NewScenarioProjectionStore() *ScenarioProjectionStore {
	return &ScenarioProjectionStore{
		data: make(map[string]*domain.ScenarioProjection),
	}
}

// projectionKey generates a unique key for a projection.
func projectionKey(runID, scenarioID, channelID string) string {
	return fmt.Sprintf("%s|%s|%s", runID, scenarioID, channelID)
}

// Insert adds a new projection. Returns ErrDuplicateKey if the key exists.
func (s *ScenarioProjectionStore) Insert(_ context.Context, p *domain.ScenarioProjection) error {
	if p == nil || p.RunID == "" || p.ScenarioID == "" || p.ChannelID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := projectionKey(p.RunID, p.ScenarioID, p.ChannelID)
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	projectionCopy := *p
	s.data[key] = &projectionCopy
	return nil
}

// InsertBulk adds multiple projections atomically. Fails entire batch on any duplicate.
func (s *ScenarioProjectionStore) InsertBulk(_ context.Context, projections []*domain.ScenarioProjection) error {
	if len(projections) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(projections))

	// First pass: check for duplicates (existing + intra-batch)
	for _, p := range projections {
		if p == nil || p.RunID == "" || p.ScenarioID == "" || p.ChannelID == "" {
			return storage.ErrInvalidInput
		}
		key := projectionKey(p.RunID, p.ScenarioID, p.ChannelID)

		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, p := range projections {
		key := projectionKey(p.RunID, p.ScenarioID, p.ChannelID)
		projectionCopy := *p
		s.data[key] = &projectionCopy
	}

	return nil
}

// GetByRunID retrieves all projections for a run.
func (s *ScenarioProjectionStore) GetByRunID(_ context.Context, runID string) ([]*domain.ScenarioProjection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ScenarioProjection
	for _, p := range s.data {
		if p.RunID == runID {
			projectionCopy := *p
			result = append(result, &projectionCopy)
		}
	}

	// Sort by scenario_id, channel_id ASC
	sort.Slice(result, func(i, j int) bool {
		if result[i].ScenarioID != result[j].ScenarioID {
			return result[i].ScenarioID < result[j].ScenarioID
		}
		return result[i].ChannelID < result[j].ChannelID
	})

	return result, nil
}

// GetByKey retrieves a projection by its composite key. Returns ErrNotFound if not exists.
func (s *ScenarioProjectionStore) GetByKey(_ context.Context, runID, scenarioID, channelID string) (*domain.ScenarioProjection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[projectionKey(runID, scenarioID, channelID)]
	if !exists {
		return nil, storage.ErrNotFound
	}

	projectionCopy := *p
	return &projectionCopy, nil
}

// Verify interface compliance at compile time.
var _ storage.ScenarioProjectionStore = (*ScenarioProjectionStore)(nil)
