package normalization

import (
	"sort"

	"mediamix-lab/internal/domain"
)

// GenerateOutcomeTimeseries aggregates raw outcome records into fixed periods.
//
// Aggregation rules per (metric, period):
//   - Value: SUM
//   - RecordCount: COUNT
//
// Interior gaps between the first and last observed period are zero-filled,
// same as for spend series.
func GenerateOutcomeTimeseries(records []*domain.OutcomeRecord, periodSeconds int) []*domain.OutcomeTimeseriesPoint {
	if len(records) == 0 || periodSeconds <= 0 {
		return nil
	}

	periodMs := int64(periodSeconds) * 1000

	// metric -> periodStart -> point
	buckets := make(map[string]map[int64]*domain.OutcomeTimeseriesPoint)

	for _, r := range records {
		periodStart := (r.PeriodStart / periodMs) * periodMs

		metricBuckets, ok := buckets[r.Metric]
		if !ok {
			metricBuckets = make(map[int64]*domain.OutcomeTimeseriesPoint)
			buckets[r.Metric] = metricBuckets
		}

		point, ok := metricBuckets[periodStart]
		if !ok {
			point = &domain.OutcomeTimeseriesPoint{
				Metric:        r.Metric,
				PeriodStart:   periodStart,
				PeriodSeconds: periodSeconds,
			}
			metricBuckets[periodStart] = point
		}

		point.Value += r.Value
		point.RecordCount++
	}

	for metric, metricBuckets := range buckets {
		minStart, maxStart := int64(0), int64(0)
		first := true
		for start := range metricBuckets {
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
			if _, ok := metricBuckets[start]; !ok {
				metricBuckets[start] = &domain.OutcomeTimeseriesPoint{
					Metric:        metric,
					PeriodStart:   start,
					PeriodSeconds: periodSeconds,
				}
			}
		}
	}

	var result []*domain.OutcomeTimeseriesPoint
	for _, metricBuckets := range buckets {
		for _, point := range metricBuckets {
			result = append(result, point)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Metric != result[j].Metric {
			return result[i].Metric < result[j].Metric
		}
		return result[i].PeriodStart < result[j].PeriodStart
	})

	return result
}

// GenerateAllOutcomeTimeseries generates outcome series for every supported
// period size.
func GenerateAllOutcomeTimeseries(records []*domain.OutcomeRecord) []*domain.OutcomeTimeseriesPoint {
	var result []*domain.OutcomeTimeseriesPoint
	for _, periodSeconds := range supportedPeriods {
		result = append(result, GenerateOutcomeTimeseries(records, periodSeconds)...)
	}
	return result
}
