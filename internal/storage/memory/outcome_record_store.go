package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
)

// OutcomeRecordStore is an in-memory implementation of storage.OutcomeRecordStore.
type OutcomeRecordStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.OutcomeRecord // keyed by (metric, batch_id, record_index)
	nextID int64
}

// NewOutcomeRecordStore creates a new in-memory outcome record store.
func NewOutcomeRecordStore() *OutcomeRecordStore {
	return &OutcomeRecordStore{
		data:   make(map[string]*domain.OutcomeRecord),
		nextID: 1,
	}
}

// outcomeRecordKey generates a unique key for an outcome record.
func outcomeRecordKey(metric, batchID string, recordIndex int) string {
	return fmt.Sprintf("%s|%s|%d", metric, batchID, recordIndex)
}

// Insert adds a new record. Returns ErrDuplicateKey if the key exists.
func (s *OutcomeRecordStore) Insert(_ context.Context, r *domain.OutcomeRecord) error {
	if r == nil || r.Metric == "" || r.BatchID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := outcomeRecordKey(r.Metric, r.BatchID, r.RecordIndex)
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
func (s *OutcomeRecordStore) InsertBulk(_ context.Context, records []*domain.OutcomeRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(records))

	// First pass: check for duplicates (existing + intra-batch)
	for _, r := range records {
		if r == nil || r.Metric == "" || r.BatchID == "" {
			return storage.ErrInvalidInput
		}
		key := outcomeRecordKey(r.Metric, r.BatchID, r.RecordIndex)

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
		key := outcomeRecordKey(r.Metric, r.BatchID, r.RecordIndex)
		recordCopy := *r
		recordCopy.ID = s.nextID
		s.nextID++
		s.data[key] = &recordCopy
	}

	return nil
}

// GetByMetric retrieves all records for a metric, ordered by period_start ASC.
func (s *OutcomeRecordStore) GetByMetric(_ context.Context, metric string) ([]*domain.OutcomeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.OutcomeRecord
	for _, r := range s.data {
		if r.Metric == metric {
			recordCopy := *r
			result = append(result, &recordCopy)
		}
	}

	sortOutcomeRecords(result)
	return result, nil
}

// GetByTimeRange retrieves records for a metric within [start, end] (inclusive).
func (s *OutcomeRecordStore) GetByTimeRange(_ context.Context, metric string, start, end int64) ([]*domain.OutcomeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.OutcomeRecord
	for _, r := range s.data {
		if r.Metric == metric && r.PeriodStart >= start && r.PeriodStart <= end {
			recordCopy := *r
			result = append(result, &recordCopy)
		}
	}

	sortOutcomeRecords(result)
	return result, nil
}

// sortOutcomeRecords orders records by period_start, batch_id, record_index ASC.
func sortOutcomeRecords(records []*domain.OutcomeRecord) {
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
var _ storage.OutcomeRecordStore = (*OutcomeRecordStore)(nil)
