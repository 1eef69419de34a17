package ingestion

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/idhash"
	"mediamix-lab/internal/storage"
)

// channelRegistrar resolves channel identity for incoming spend events and
// registers channels the first time they are seen.
type channelRegistrar struct {
	channelStore  storage.ChannelStore
	progressStore storage.IngestProgressStore
	source        domain.Source

	mu   sync.Mutex
	seen map[string]bool
}

func newChannelRegistrar(channelStore storage.ChannelStore, progressStore storage.IngestProgressStore, source domain.Source) *channelRegistrar {
	return &channelRegistrar{
		channelStore:  channelStore,
		progressStore: progressStore,
		source:        source,
		seen:          make(map[string]bool),
	}
}

// Warm preloads the seen-channel cache from persisted state.
func (r *channelRegistrar) Warm(ctx context.Context) error {
	if r.progressStore == nil {
		return nil
	}

	channels, err := r.progressStore.LoadSeenChannels(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	for _, id := range channels {
		r.seen[id] = true
	}
	r.mu.Unlock()
	return nil
}

// Register resolves the channel ID for (name, medium) and inserts the channel
// if it has not been seen before. firstSeenAt is the period of the triggering
// event so registration stays deterministic across replays.
// Returns the channel ID and whether this call created the channel.
func (r *channelRegistrar) Register(ctx context.Context, name, medium string, firstSeenAt int64) (string, bool, error) {
	normalized := NormalizeMedium(medium)
	channelID := idhash.ComputeChannelID(name, normalized)

	r.mu.Lock()
	known := r.seen[channelID]
	r.mu.Unlock()
	if known {
		return channelID, false, nil
	}

	created := false
	if r.channelStore != nil {
		channel := &domain.Channel{
			ChannelID:   channelID,
			Name:        name,
			Medium:      normalized,
			Source:      r.source,
			FirstSeenAt: firstSeenAt,
			CreatedAt:   time.Now().UnixMilli(),
		}
		if err := r.channelStore.Insert(ctx, channel); err != nil {
			if !errors.Is(err, storage.ErrDuplicateKey) {
				return "", false, err
			}
			// Already registered by an earlier run or another source
		} else {
			created = true
		}
	}

	if r.progressStore != nil {
		if err := r.progressStore.MarkChannelSeen(ctx, channelID); err != nil {
			return "", false, err
		}
	}

	r.mu.Lock()
	r.seen[channelID] = true
	r.mu.Unlock()

	return channelID, created, nil
}

// NormalizeMedium lowercases the medium and maps unsupported values to "other".
// Identity hashing always uses the normalized form so casing variants of the
// same channel resolve to one channel_id.
func NormalizeMedium(medium string) string {
	m := strings.ToLower(strings.TrimSpace(medium))
	if domain.IsValidMedium(m) {
		return m
	}
	return domain.MediumOther
}
