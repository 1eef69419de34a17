package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mediamix-lab/internal/backtest"
	"mediamix-lab/internal/decision"
	"mediamix-lab/internal/fit"
	"mediamix-lab/internal/reporting"
	"mediamix-lab/internal/storage"
	"mediamix-lab/internal/verification"
)

// Pipeline errors
var (
	// ErrMissingFitter is returned when the pipeline has no fitter configured.
	ErrMissingFitter = errors.New("pipeline requires a fitter")

	// ErrFitterMismatch is returned when the configured fitter does not match
	// the fitter recorded on the model run.
	ErrFitterMismatch = errors.New("pipeline fitter does not match the run's fitter")
)

// ReportPipeline orchestrates backtesting, the adoption decision gate and
// report generation for one stored model run, writing the rendered outputs
// to a directory.
type ReportPipeline struct {
	reportGen      *reporting.Generator
	decisionBuild  *decision.Builder
	decisionEval   *decision.Evaluator
	backtestRunner *backtest.Runner
	runStore       storage.ModelRunStore
	fitter         fit.Fitter
	verifier       *verification.Verifier
	outputDir      string
	clock          func() time.Time

	// integrityErrors collects data problems surfaced outside the pipeline
	// (e.g. by ingestion) for the report's data quality section.
	integrityErrors []string
}

// PipelineOptions contains stores and settings for creating a ReportPipeline.
type PipelineOptions struct {
	ChannelStore           storage.ChannelStore
	ModelRunStore          storage.ModelRunStore
	AggregateStore         storage.ChannelAggregateStore
	ProjectionStore        storage.ScenarioProjectionStore
	SpendTimeseriesStore   storage.SpendTimeseriesStore
	OutcomeTimeseriesStore storage.OutcomeTimeseriesStore

	// Fitter must be the fitter the reported runs were created with.
	Fitter fit.Fitter

	// HoldoutFraction is the trailing fraction of periods the backtest holds
	// out, e.g. 0.25.
	HoldoutFraction float64

	// OutputDir is the directory report files are written to.
	OutputDir string
}

// NewReportPipeline creates a pipeline with all components wired from the
// given stores.
func NewReportPipeline(opts PipelineOptions) *ReportPipeline {
	return &ReportPipeline{
		reportGen: reporting.NewGenerator(reporting.GeneratorOptions{
			ChannelStore:           opts.ChannelStore,
			ModelRunStore:          opts.ModelRunStore,
			AggregateStore:         opts.AggregateStore,
			ProjectionStore:        opts.ProjectionStore,
			SpendTimeseriesStore:   opts.SpendTimeseriesStore,
			OutcomeTimeseriesStore: opts.OutcomeTimeseriesStore,
		}),
		decisionBuild: decision.NewBuilder(decision.BuilderOptions{
			ModelRunStore:          opts.ModelRunStore,
			AggregateStore:         opts.AggregateStore,
			SpendTimeseriesStore:   opts.SpendTimeseriesStore,
			OutcomeTimeseriesStore: opts.OutcomeTimeseriesStore,
		}),
		decisionEval:   decision.NewEvaluator(),
		backtestRunner: backtest.NewRunner(opts.SpendTimeseriesStore, opts.OutcomeTimeseriesStore, opts.HoldoutFraction),
		runStore:       opts.ModelRunStore,
		fitter:         opts.Fitter,
		outputDir:      opts.OutputDir,
		clock:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic report output.
func (p *ReportPipeline) WithClock(now func() time.Time) *ReportPipeline {
	p.clock = now
	p.reportGen.WithClock(now)
	return p
}

// WithIntegrityErrors adds data problems to surface in the report's data
// quality section. Any integrity error degrades the decision to
// INSUFFICIENT_DATA.
func (p *ReportPipeline) WithIntegrityErrors(errs []string) *ReportPipeline {
	p.integrityErrors = append(p.integrityErrors, errs...)
	return p
}

// WithVerifier wires a stored-data verifier. Its findings for the reported
// run are collected as integrity errors on every Run.
func (p *ReportPipeline) WithVerifier(v *verification.Verifier) *ReportPipeline {
	p.verifier = v
	return p
}

// Run executes the full pipeline for one stored model run.
// Steps:
//  1. Load the run and check it matches the configured fitter
//  2. Collect integrity findings (verifier plus externally supplied)
//  3. Backtest the fitter on the run's data, holding out recent periods
//  4. Build and evaluate the adoption decision
//  5. Generate the report with the gate's data quality section
//  6. Write the report markdown, both CSVs and the decision gate report
//
// Integrity findings and too-thin stored data degrade the decision to
// INSUFFICIENT_DATA instead of failing the run. Infrastructure errors
// abort and are returned.
func (p *ReportPipeline) Run(ctx context.Context, runID string) (*decision.DecisionResult, error) {
	if p.fitter == nil {
		return nil, ErrMissingFitter
	}
	if err := os.MkdirAll(p.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	// 1. Load the run and check it matches the configured fitter
	run, err := p.runStore.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.FitterID != p.fitter.ID() {
		return nil, fmt.Errorf("%w: run %s used %s, pipeline has %s",
			ErrFitterMismatch, runID, run.FitterID, p.fitter.ID())
	}

	// 2. Collect integrity findings
	integrity := append([]string(nil), p.integrityErrors...)
	if p.verifier != nil {
		vr, err := p.verifier.VerifyRun(ctx, runID)
		if err != nil {
			return nil, err
		}
		integrity = append(integrity, vr.Messages()...)
	}
	if len(integrity) > 0 {
		return p.finishInsufficient(ctx, runID, reporting.DataQualitySection{
			IntegrityErrors: integrity,
		})
	}

	// 3. Backtest the fitter on the run's data
	channelIDs := make([]string, len(run.Channels))
	for i, ch := range run.Channels {
		channelIDs[i] = ch.ChannelID
	}
	bt, err := p.backtestRunner.Run(ctx, run.Metric, run.PeriodSeconds, channelIDs, p.fitter)
	if err != nil {
		if insufficientData(err) {
			return p.finishInsufficient(ctx, runID, reporting.DataQualitySection{
				IntegrityErrors: []string{err.Error()},
			})
		}
		return nil, err
	}

	// 4. Build and evaluate the adoption decision
	input, err := p.decisionBuild.Build(ctx, runID, bt)
	if err != nil {
		if insufficientData(err) {
			return p.finishInsufficient(ctx, runID, reporting.DataQualitySection{
				IntegrityErrors: []string{err.Error()},
			})
		}
		return nil, err
	}
	result, err := p.decisionEval.Evaluate(input)
	if err != nil {
		return nil, err
	}

	// 5. Generate the report with the gate's data quality section
	report, err := p.reportGen.Generate(ctx, runID)
	if err != nil {
		return nil, err
	}
	report.DataQuality = convertToDataQuality(result)

	// 6. Write the report markdown, both CSVs and the decision gate report
	if err := p.writeReportFiles(report); err != nil {
		return nil, err
	}
	decisionPath := filepath.Join(p.outputDir, "DECISION_GATE_REPORT.md")
	if err := os.WriteFile(decisionPath, []byte(decision.RenderMarkdown(result)), 0644); err != nil {
		return nil, fmt.Errorf("failed to write decision report: %w", err)
	}

	return result, nil
}

// RunLatest resolves the newest run for (metric, periodSeconds) and executes
// the pipeline on it.
func (p *ReportPipeline) RunLatest(ctx context.Context, metric string, periodSeconds int) (*decision.DecisionResult, error) {
	run, err := p.runStore.GetLatest(ctx, metric, periodSeconds)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, run.RunID)
}

// finishInsufficient writes the report plus an INSUFFICIENT_DATA gate report
// and returns the degraded decision. Used when integrity findings or missing
// stored data block the quality evaluation.
func (p *ReportPipeline) finishInsufficient(ctx context.Context, runID string, dataQuality reporting.DataQualitySection) (*decision.DecisionResult, error) {
	report, err := p.reportGen.Generate(ctx, runID)
	if err != nil {
		return nil, err
	}
	report.DataQuality = dataQuality

	if err := p.writeReportFiles(report); err != nil {
		return nil, err
	}
	if err := p.writeInsufficientDataReport(dataQuality); err != nil {
		return nil, err
	}

	return &decision.DecisionResult{Decision: decision.DecisionInsufficient}, nil
}

// writeReportFiles renders and writes the markdown report and both CSVs.
func (p *ReportPipeline) writeReportFiles(report *reporting.Report) error {
	reportPath := filepath.Join(p.outputDir, "MEDIA_MIX_REPORT.md")
	if err := os.WriteFile(reportPath, []byte(reporting.RenderMarkdown(report)), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	metricsPath := filepath.Join(p.outputDir, "channel_metrics.csv")
	if err := os.WriteFile(metricsPath, []byte(reporting.RenderCSV(report.ChannelMetrics)), 0644); err != nil {
		return fmt.Errorf("failed to write channel metrics CSV: %w", err)
	}

	projectionsPath := filepath.Join(p.outputDir, "scenario_projections.csv")
	if err := os.WriteFile(projectionsPath, []byte(reporting.RenderProjectionsCSV(report.ScenarioProjections)), 0644); err != nil {
		return fmt.Errorf("failed to write scenario projections CSV: %w", err)
	}

	return nil
}

// writeInsufficientDataReport writes a decision gate report for a run whose
// data problems block the GO/NO-GO evaluation.
func (p *ReportPipeline) writeInsufficientDataReport(dataQuality reporting.DataQualitySection) error {
	content := "# Decision Gate Report\n\n"
	content += "Generated at: " + p.clock().Format("2006-01-02 15:04:05 UTC") + "\n\n"
	content += "## Decision: INSUFFICIENT_DATA\n\n"
	content += "Data checks failed. Cannot proceed with GO/NO-GO evaluation.\n\n"

	if len(dataQuality.SufficiencyChecks) > 0 {
		content += "### Failed Checks\n\n"
		content += "| Check | Threshold | Actual | Status |\n"
		content += "|-------|-----------|--------|--------|\n"
		for _, check := range dataQuality.SufficiencyChecks {
			status := "PASS"
			if !check.Pass {
				status = "FAIL"
			}
			content += fmt.Sprintf("| %s | %s | %s | %s |\n",
				check.Name, check.Threshold, check.Actual, status)
		}
		content += "\n"
	}

	if len(dataQuality.IntegrityErrors) > 0 {
		content += "### Integrity Errors\n\n"
		for _, msg := range dataQuality.IntegrityErrors {
			content += "- " + msg + "\n"
		}
		content += "\n"
	}

	content += "### Required Actions\n\n"
	content += "1. Ingest more spend and outcome history until all checks pass\n"
	content += "2. Fix any reported data integrity findings\n"
	content += "3. Re-run the pipeline\n"

	decisionPath := filepath.Join(p.outputDir, "DECISION_GATE_REPORT.md")
	return os.WriteFile(decisionPath, []byte(content), 0644)
}

// convertToDataQuality maps the gate's sufficiency rows into the report's
// data quality section so the rendered report and the gate agree.
func convertToDataQuality(result *decision.DecisionResult) reporting.DataQualitySection {
	checks := make([]reporting.SufficiencyCheckRow, len(result.Sufficiency))
	allPass := true
	for i, c := range result.Sufficiency {
		checks[i] = reporting.SufficiencyCheckRow{
			Name:      c.Name,
			Threshold: c.Threshold,
			Actual:    c.Actual,
			Pass:      c.Pass,
		}
		if !c.Pass {
			allPass = false
		}
	}
	return reporting.DataQualitySection{
		SufficiencyChecks: checks,
		AllChecksPassed:   allPass,
	}
}

// insufficientData reports whether err means the stored data is too thin or
// incomplete to evaluate, rather than an infrastructure failure.
func insufficientData(err error) bool {
	return errors.Is(err, backtest.ErrNotEnoughPeriods) ||
		errors.Is(err, backtest.ErrChannelSeriesMissing) ||
		errors.Is(err, fit.ErrNoPeriods) ||
		errors.Is(err, fit.ErrNoChannels) ||
		errors.Is(err, decision.ErrNoAggregates)
}
