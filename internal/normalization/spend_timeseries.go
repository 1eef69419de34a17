package normalization

import (
	"sort"

	"mediamix-lab/internal/domain"
)

// supportedPeriods lists the aggregation period sizes generated during
// normalization.
var supportedPeriods = []int{
	domain.PeriodDay,
	domain.PeriodWeek,
}

// GenerateSpendTimeseries aggregates raw spend records into fixed periods.
//
// Aggregation rules per (channel_id, period):
//   - Spend: SUM
//   - Impressions: SUM
//   - RecordCount: COUNT
//
// Periods with no records between a channel's first and last observed
// period are zero-filled so carryover windows stay contiguous. Periods
// outside that range are not invented.
//
// Records should be sorted canonically before calling this function.
func GenerateSpendTimeseries(records []*domain.SpendRecord, periodSeconds int) []*domain.SpendTimeseriesPoint {
	if len(records) == 0 || periodSeconds <= 0 {
		return nil
	}

	periodMs := int64(periodSeconds) * 1000

	// channelID -> periodStart -> point
	buckets := make(map[string]map[int64]*domain.SpendTimeseriesPoint)

	for _, r := range records {
		periodStart := (r.PeriodStart / periodMs) * periodMs

		channelBuckets, ok := buckets[r.ChannelID]
		if !ok {
			channelBuckets = make(map[int64]*domain.SpendTimeseriesPoint)
			buckets[r.ChannelID] = channelBuckets
		}

		point, ok := channelBuckets[periodStart]
		if !ok {
			point = &domain.SpendTimeseriesPoint{
				ChannelID:     r.ChannelID,
				PeriodStart:   periodStart,
				PeriodSeconds: periodSeconds,
			}
			channelBuckets[periodStart] = point
		}

		point.Spend += r.Spend
		point.Impressions += r.Impressions
		point.RecordCount++
	}

	// Zero-fill interior gaps per channel.
	for channelID, channelBuckets := range buckets {
		minStart, maxStart := int64(0), int64(0)
		first := true
		for start := range channelBuckets {
			if first {
				minStart, maxStart = start, start
				first = false
				continue
			}
			if start < minStart {
				minStart = start
			}
			if start > maxStart {
				maxStart = start
			}
		}
		for start := minStart; start <= maxStart; start += periodMs {
			if _, ok := channelBuckets[start]; !ok {
				channelBuckets[start] = &domain.SpendTimeseriesPoint{
					ChannelID:     channelID,
					PeriodStart:   start,
					PeriodSeconds: periodSeconds,
				}
			}
		}
	}

	// Flatten and sort by (channel_id, period_start).
	var result []*domain.SpendTimeseriesPoint
	for _, channelBuckets := range buckets {
		for _, point := range channelBuckets {
			result = append(result, point)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ChannelID != result[j].ChannelID {
			return result[i].ChannelID < result[j].ChannelID
		}
		return result[i].PeriodStart < result[j].PeriodStart
	})

	return result
}

// GenerateAllSpendTimeseries generates spend series for every supported
// period size.
func GenerateAllSpendTimeseries(records []*domain.SpendRecord) []*domain.SpendTimeseriesPoint {
	var result []*domain.SpendTimeseriesPoint
	for _, periodSeconds := range supportedPeriods {
		result = append(result, GenerateSpendTimeseries(records, periodSeconds)...)
	}
	return result
}
