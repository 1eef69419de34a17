package storage

import (
	"context"

	"mediamix-lab/internal/domain"
)

// IngestProgressStore provides persistence for ingestion state.
// This enables resumption after restarts without reprocessing or duplicating records.
type IngestProgressStore interface {
	// GetProgress returns the high-water mark for a source.
	// Returns ErrNotFound if no progress has been saved yet.
	GetProgress(ctx context.Context, sourceID string) (*domain.IngestProgress, error)

	// SetProgress saves the high-water mark for a source.
	SetProgress(ctx context.Context, progress *domain.IngestProgress) error

	// IsChannelSeen checks if a channel has already been registered.
	IsChannelSeen(ctx context.Context, channelID string) (bool, error)

	// MarkChannelSeen records that a channel has been registered.
	MarkChannelSeen(ctx context.Context, channelID string) error

	// LoadSeenChannels returns all seen channels (for warming the in-memory cache).
	LoadSeenChannels(ctx context.Context) ([]string, error)
}
