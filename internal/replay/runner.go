package replay

import (
	"context"
	"errors"
	"fmt"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/storage"
)

// Runner loads stored runs and their raw records and verifies that every
// derived artifact can be recomputed exactly.
type Runner struct {
	runs           storage.ModelRunStore
	spendRecords   storage.SpendRecordStore
	outcomeRecords storage.OutcomeRecordStore
	transformed    storage.TransformedTimeseriesStore

	engine *Engine
}

// RunnerOptions contains the stores a replay runner reads from.
type RunnerOptions struct {
	ModelRunStore      storage.ModelRunStore
	SpendRecordStore   storage.SpendRecordStore
	OutcomeRecordStore storage.OutcomeRecordStore
	TransformedStore   storage.TransformedTimeseriesStore
}

// NewRunner creates a replay runner.
func NewRunner(opts RunnerOptions) *Runner {
	return &Runner{
		runs:           opts.ModelRunStore,
		spendRecords:   opts.SpendRecordStore,
		outcomeRecords: opts.OutcomeRecordStore,
		transformed:    opts.TransformedStore,
		engine:         NewEngine(),
	}
}

// ReplayRun recomputes a stored run from its raw records and diffs the
// result against storage.
func (r *Runner) ReplayRun(ctx context.Context, runID string) (*RunResult, error) {
	// 1. Load the stored run
	run, err := r.runs.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	// 2. Load raw records for every run channel and the run metric
	var spendRecords []*domain.SpendRecord
	for _, ch := range run.Channels {
		records, err := r.spendRecords.GetByChannelID(ctx, ch.ChannelID)
		if err != nil {
			return nil, fmt.Errorf("load spend records for %s: %w", ch.ChannelID, err)
		}
		spendRecords = append(spendRecords, records...)
	}

	outcomeRecords, err := r.outcomeRecords.GetByMetric(ctx, run.Metric)
	if err != nil {
		return nil, fmt.Errorf("load outcome records for %s: %w", run.Metric, err)
	}
	if len(outcomeRecords) == 0 {
		return nil, fmt.Errorf("%w: metric %s", ErrNoOutcomeRecords, run.Metric)
	}

	// 3. Rebuild series, fingerprint and transforms
	rebuilt, err := r.engine.Rebuild(run, spendRecords, outcomeRecords)
	if err != nil {
		return nil, err
	}

	// 4. Diff identity fields and stored transformed points
	divergences := CompareRun(run, rebuilt)

	stored, err := r.transformed.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load transformed points: %w", err)
	}
	divergences = append(divergences, CompareTransformed(stored, rebuilt.Transformed)...)

	return &RunResult{
		RunID:              runID,
		Match:              len(divergences) == 0,
		Divergences:        divergences,
		StoredFingerprint:  run.Fingerprint,
		RebuiltFingerprint: rebuilt.Fingerprint,
		PointsChecked:      len(stored),
	}, nil
}

// ReplayAll replays every stored run. Per-run errors are recorded as
// divergences so one broken run does not hide the rest.
func (r *Runner) ReplayAll(ctx context.Context) (*Report, error) {
	runs, err := r.runs.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		TotalRuns: len(runs),
		Results:   make([]RunResult, 0, len(runs)),
	}

	for _, run := range runs {
		result, err := r.ReplayRun(ctx, run.RunID)
		if err != nil {
			report.Results = append(report.Results, RunResult{
				RunID:             run.RunID,
				Match:             false,
				StoredFingerprint: run.Fingerprint,
				Divergences: []Divergence{
					{Field: "Error", Stored: nil, Rebuilt: err.Error()},
				},
			})
			report.DivergentRuns++
			continue
		}

		report.Results = append(report.Results, *result)
		if result.Match {
			report.MatchedRuns++
		} else {
			report.DivergentRuns++
		}
	}

	return report, nil
}
