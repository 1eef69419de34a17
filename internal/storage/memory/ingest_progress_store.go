package memory

import (
	"context"
	"sync"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
)

// IngestProgressStore is an in-memory implementation of storage.IngestProgressStore.
type IngestProgressStore struct {
	mu           sync.RWMutex
	progress     map[string]*domain.IngestProgress // keyed by source_id
	seenChannels map[string]bool
}

// NewIngestProgressStore creates a new in-memory ingest progress store.
func NewIngestProgressStore() *IngestProgressStore {
	return &IngestProgressStore{
		progress:     make(map[string]*domain.IngestProgress),
		seenChannels: make(map[string]bool),
	}
}

// GetProgress returns the high-water mark for a source.
func (s *IngestProgressStore) GetProgress(_ context.Context, sourceID string) (*domain.IngestProgress, error) {
	if sourceID == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.progress[sourceID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	progressCopy := *p
	return &progressCopy, nil
}

// SetProgress saves the high-water mark for a source.
func (s *IngestProgressStore) SetProgress(_ context.Context, progress *domain.IngestProgress) error {
	if progress == nil || progress.SourceID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	progressCopy := *progress
	s.progress[progress.SourceID] = &progressCopy
	return nil
}

// IsChannelSeen checks if a channel has already been registered.
func (s *IngestProgressStore) IsChannelSeen(_ context.Context, channelID string) (bool, error) {
	if channelID == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.seenChannels[channelID], nil
}

// MarkChannelSeen records that a channel has been registered.
func (s *IngestProgressStore) MarkChannelSeen(_ context.Context, channelID string) error {
	if channelID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seenChannels[channelID] = true
	return nil
}

// LoadSeenChannels returns all seen channels.
func (s *IngestProgressStore) LoadSeenChannels(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	channels := make([]string, 0, len(s.seenChannels))
	for id := range s.seenChannels {
		channels = append(channels, id)
	}
	return channels, nil
}

// Verify interface compliance at compile time.
var _ storage.IngestProgressStore = (*IngestProgressStore)(nil)
