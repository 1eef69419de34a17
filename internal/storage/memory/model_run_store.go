package memory

import (
	"context"
	"sort"
	"sync"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
)

// ModelRunStore is an in-memory implementation of storage.ModelRunStore.
type ModelRunStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ModelRun // keyed by run_id
}

// NewModelRunStore creates a new in-memory model run store.
func NewModelRunStore() *ModelRunStore {
	return &ModelRunStore{
		data: make(map[string]*domain.ModelRun),
	}
}

// copyModelRun deep-copies a run, including the channel params slice.
func copyModelRun(run *domain.ModelRun) *domain.ModelRun {
	runCopy := *run
	runCopy.Channels = make([]domain.ChannelParams, len(run.Channels))
	copy(runCopy.Channels, run.Channels)
	return &runCopy
}

// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *ModelRunStore) Insert(_ context.Context, run *domain.ModelRun) error {
	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[run.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[run.RunID] = copyModelRun(run)
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *ModelRunStore) GetByID(_ context.Context, runID string) (*domain.ModelRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	return copyModelRun(run), nil
}

// GetLatest retrieves the most recently created run for (metric, period_seconds).
// Ties on created_at break by run_id DESC so the result is deterministic.
func (s *ModelRunStore) GetLatest(_ context.Context, metric string, periodSeconds int) (*domain.ModelRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.ModelRun
	for _, run := range s.data {
		if run.Metric != metric || run.PeriodSeconds != periodSeconds {
			continue
		}
		if latest == nil ||
			run.CreatedAt > latest.CreatedAt ||
			(run.CreatedAt == latest.CreatedAt && run.RunID > latest.RunID) {
			latest = run
		}
	}

	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return copyModelRun(latest), nil
}

// GetAll retrieves all runs, ordered by created_at ASC.
func (s *ModelRunStore) GetAll(_ context.Context) ([]*domain.ModelRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.ModelRun, 0, len(s.data))
	for _, run := range s.data {
		result = append(result, copyModelRun(run))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].RunID < result[j].RunID
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.ModelRunStore = (*ModelRunStore)(nil)
