package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
)

// SpendRecordStore is an in-memory implementation of storage.SpendRecordStore.
type SpendRecordStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.SpendRecord // keyed by (channel_id, batch_id, record_index)
	nextID int64
}

// NewSpendRecordStore creates a new in-memory spend record store.
func NewSpendRecordStore() *SpendRecordStore {
	return &SpendRecordStore{
		data:   make(map[string]*domain.SpendRecord),
		nextID: 1,
	}
}

// spendRecordKey generates a unique key for a spend record.
func spendRecordKey(channelID, batchID string, recordIndex int) string {
	return fmt.Sprintf("%s|%s|%d", channelID, batchID, recordIndex)
}

// Insert adds a new record. Returns ErrDuplicateKey if the key exists.
func (s *SpendRecordStore) Insert(_ context.Context, r *domain.SpendRecord) error {
	if r == nil || r.ChannelID == "" || r.BatchID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := spendRecordKey(r.ChannelID, r.BatchID, r.RecordIndex)
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	recordCopy := *r
	recordCopy.ID = s.nextID
	s.nextID++
	s.data[key] = &recordCopy
	return nil
}

// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
func (s *SpendRecordStore) InsertBulk(_ context.Context, records []*domain.SpendRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(records))

	// First pass: check for duplicates (existing + intra-batch)
	for _, r := range records {
		if r == nil || r.ChannelID == "" || r.BatchID == "" {
			return storage.ErrInvalidInput
		}
		key := spendRecordKey(r.ChannelID, r.BatchID, r.RecordIndex)

		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, r := range records {
		key := spendRecordKey(r.ChannelID, r.BatchID, r.RecordIndex)
		recordCopy := *r
		recordCopy.ID = s.nextID
		s.nextID++
		s.data[key] = &recordCopy
	}

	return nil
}

// GetByChannelID retrieves all records for a channel, ordered by period_start ASC.
func (s *SpendRecordStore) GetByChannelID(_ context.Context, channelID string) ([]*domain.SpendRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SpendRecord
	for _, r := range s.data {
		if r.ChannelID == channelID {
			recordCopy := *r
			result = append(result, &recordCopy)
		}
	}

	sortSpendRecords(result)
	return result, nil
}

// GetByTimeRange retrieves records for a channel within [start, end] (inclusive).
func (s *SpendRecordStore) GetByTimeRange(_ context.Context, channelID string, start, end int64) ([]*domain.SpendRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SpendRecord
	for _, r := range s.data {
		if r.ChannelID == channelID && r.PeriodStart >= start && r.PeriodStart <= end {
			recordCopy := *r
			result = append(result, &recordCopy)
		}
	}

	sortSpendRecords(result)
	return result, nil
}

// sortSpendRecords orders records by period_start, batch_id, record_index ASC.
func sortSpendRecords(records []*domain.SpendRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].PeriodStart != records[j].PeriodStart {
			return records[i].PeriodStart < records[j].PeriodStart
		}
		if records[i].BatchID != records[j].BatchID {
			return records[i].BatchID < records[j].BatchID
		}
		return records[i].RecordIndex < records[j].RecordIndex
	})
}

// Verify interface compliance at compile time.
var _ storage.SpendRecordStore = (*SpendRecordStore)(nil)
