package ingestion

import (
	"context"
	"fmt"
	"os"

	"mediamix-lab/internal/feed"
)

// FileSpendSource reads spend events from a CSV file on disk.
// The file uses the same layout as the feed export endpoint:
// channel,medium,period_start,spend,impressions
type FileSpendSource struct {
	path string
}

// NewFileSpendSource creates a spend source backed by a CSV file.
func NewFileSpendSource(path string) *FileSpendSource {
	return &FileSpendSource{path: path}
}

// Fetch reads the whole file and returns events within [from, to] (inclusive).
func (s *FileSpendSource) Fetch(ctx context.Context, from, to int64) ([]feed.SpendEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	events, err := feed.ParseSpendCSV(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}

	return filterSpendRange(events, from, to), nil
}

// FileOutcomeSource reads outcome events from a CSV file on disk.
// The file uses the same layout as the feed export endpoint:
// metric,period_start,value
type FileOutcomeSource struct {
	path string
}

// NewFileOutcomeSource creates an outcome source backed by a CSV file.
func NewFileOutcomeSource(path string) *FileOutcomeSource {
	return &FileOutcomeSource{path: path}
}

// Fetch reads the whole file and returns events within [from, to] (inclusive).
func (s *FileOutcomeSource) Fetch(ctx context.Context, from, to int64) ([]feed.OutcomeEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	events, err := feed.ParseOutcomeCSV(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}

	return filterOutcomeRange(events, from, to), nil
}

func filterSpendRange(events []feed.SpendEvent, from, to int64) []feed.SpendEvent {
	filtered := make([]feed.SpendEvent, 0, len(events))
	for _, ev := range events {
		if inRange(ev.PeriodStart, from, to) {
			filtered = append(filtered, ev)
		}
	}
	return filtered
}

func filterOutcomeRange(events []feed.OutcomeEvent, from, to int64) []feed.OutcomeEvent {
	filtered := make([]feed.OutcomeEvent, 0, len(events))
	for _, ev := range events {
		if inRange(ev.PeriodStart, from, to) {
			filtered = append(filtered, ev)
		}
	}
	return filtered
}

// inRange checks period membership in [from, to]. Zero bounds are open.
func inRange(periodStart, from, to int64) bool {
	if from > 0 && periodStart < from {
		return false
	}
	if to > 0 && periodStart > to {
		return false
	}
	return true
}
