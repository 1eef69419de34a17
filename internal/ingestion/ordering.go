package ingestion

import (
	"errors"
	"sort"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/feed"
)

// ErrInvalidOrdering is returned when records are not properly ordered.
var ErrInvalidOrdering = errors.New("records are not in deterministic order")

// SortSpendEvents orders events by (period_start ASC, channel ASC, medium ASC).
// The sort is stable so exact duplicates keep their arrival order and
// record index assignment stays deterministic.
func SortSpendEvents(events []feed.SpendEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return compareSpendEvents(events[i], events[j]) < 0
	})
}

// SortOutcomeEvents orders events by (period_start ASC, metric ASC).
func SortOutcomeEvents(events []feed.OutcomeEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return compareOutcomeEvents(events[i], events[j]) < 0
	})
}

// ValidateSpendRecordOrdering checks if spend records are properly ordered
// by (period_start ASC, batch_id ASC, record_index ASC).
// Returns ErrInvalidOrdering if not.
func ValidateSpendRecordOrdering(records []*domain.SpendRecord) error {
	for i := 1; i < len(records); i++ {
		if compareSpendRecords(records[i-1], records[i]) >= 0 {
			return ErrInvalidOrdering
		}
	}
	return nil
}

// ValidateOutcomeRecordOrdering checks if outcome records are properly ordered
// by (period_start ASC, batch_id ASC, record_index ASC).
// Returns ErrInvalidOrdering if not.
func ValidateOutcomeRecordOrdering(records []*domain.OutcomeRecord) error {
	for i := 1; i < len(records); i++ {
		if compareOutcomeRecords(records[i-1], records[i]) >= 0 {
			return ErrInvalidOrdering
		}
	}
	return nil
}

// compareSpendEvents returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
//
// Order: (period_start ASC, channel ASC, medium ASC)
func compareSpendEvents(a, b feed.SpendEvent) int {
	if a.PeriodStart != b.PeriodStart {
		if a.PeriodStart < b.PeriodStart {
			return -1
		}
		return 1
	}
	if a.Channel != b.Channel {
		if a.Channel < b.Channel {
			return -1
		}
		return 1
	}
	if a.Medium != b.Medium {
		if a.Medium < b.Medium {
			return -1
		}
		return 1
	}
	return 0
}

// compareOutcomeEvents returns comparison result for outcome events.
// Order: (period_start ASC, metric ASC)
func compareOutcomeEvents(a, b feed.OutcomeEvent) int {
	if a.PeriodStart != b.PeriodStart {
		if a.PeriodStart < b.PeriodStart {
			return -1
		}
		return 1
	}
	if a.Metric != b.Metric {
		if a.Metric < b.Metric {
			return -1
		}
		return 1
	}
	return 0
}

// compareSpendRecords returns comparison result for stored spend records.
// Order: (period_start ASC, batch_id ASC, record_index ASC)
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

// compareOutcomeRecords returns comparison result for stored outcome records.
// Order: (period_start ASC, batch_id ASC, record_index ASC)
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
