package memory

import (
	"context"
	"sort"
	"sync"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
)

// ChannelStore is an in-memory implementation of storage.ChannelStore.
type ChannelStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Channel // keyed by channel_id
}

// NewChannelStore creates a new in-memory channel store.
func NewChannelStore() *ChannelStore {
	return &ChannelStore{
		data: make(map[string]*domain.Channel),
	}
}

// Insert adds a new channel. Returns ErrDuplicateKey if channel_id exists.
func (s *ChannelStore) Insert(_ context.Context, c *domain.Channel) error {
	if c == nil || c.ChannelID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[c.ChannelID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	channelCopy := *c
	s.data[c.ChannelID] = &channelCopy
	return nil
}

// GetByID retrieves a channel by its ID. Returns ErrNotFound if not exists.
func (s *ChannelStore) GetByID(_ context.Context, channelID string) (*domain.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.data[channelID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	// Return a copy
	channelCopy := *c
	return &channelCopy, nil
}

// GetByMedium retrieves all channels of a given medium.
func (s *ChannelStore) GetByMedium(_ context.Context, medium string) ([]*domain.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Channel
	for _, c := range s.data {
		if c.Medium == medium {
			channelCopy := *c
			result = append(result, &channelCopy)
		}
	}

	// Sort by name ASC
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result, nil
}

// GetBySource retrieves all channels of a given source type.
func (s *ChannelStore) GetBySource(_ context.Context, source domain.Source) ([]*domain.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Channel
	for _, c := range s.data {
		if c.Source == source {
			channelCopy := *c
			result = append(result, &channelCopy)
		}
	}

	// Sort by name ASC
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result, nil
}

// GetAll retrieves all channels, ordered by name ASC.
func (s *ChannelStore) GetAll(_ context.Context) ([]*domain.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Channel, 0, len(s.data))
	for _, c := range s.data {
		channelCopy := *c
		result = append(result, &channelCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.ChannelStore = (*ChannelStore)(nil)
