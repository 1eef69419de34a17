package normalization

import (
	"sort"

	"mediamix-lab/internal/domain"
)

// SortSpendRecords orders records by (period_start ASC, batch_id ASC, record_index ASC).
// This provides deterministic ordering regardless of ingestion order.
func SortSpendRecords(records []*domain.SpendRecord) {
	sort.Slice(records, func(i, j int) bool {
		return compareSpendRecords(records[i], records[j]) < 0
	})
}

// SortOutcomeRecords orders records by (period_start ASC, batch_id ASC, record_index ASC).
func SortOutcomeRecords(records []*domain.OutcomeRecord) {
	sort.Slice(records, func(i, j int) bool {
		return compareOutcomeRecords(records[i], records[j]) < 0
	})
}

// compareSpendRecords returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
func compareSpendRecords(a, b *domain.SpendRecord) int {
	if a.PeriodStart != b.PeriodStart {
		if a.PeriodStart < b.PeriodStart {
			return -1
		}
		return 1
	}
	if a.BatchID != b.BatchID {
		if a.BatchID < b.BatchID {
			return -1
		}
		return 1
	}
	if a.RecordIndex != b.RecordIndex {
		if a.RecordIndex < b.RecordIndex {
			return -1
		}
		return 1
	}
	return 0
}

// compareOutcomeRecords returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
func compareOutcomeRecords(a, b *domain.OutcomeRecord) int {
	if a.PeriodStart != b.PeriodStart {
		if a.PeriodStart < b.PeriodStart {
			return -1
		}
		return 1
	}
	if a.BatchID != b.BatchID {
		if a.BatchID < b.BatchID {
			return -1
		}
		return 1
	}
	if a.RecordIndex != b.RecordIndex {
		if a.RecordIndex < b.RecordIndex {
			return -1
		}
		return 1
	}
	return 0
}
