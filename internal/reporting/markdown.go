package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Media Mix Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Channels: %d | Runs: %d\n\n", r.ChannelCount, r.RunCount))

	// Reproducibility
	sb.WriteString("## Reproducibility\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Run ID | %s |\n", r.Reproducibility.RunID))
	sb.WriteString(fmt.Sprintf("| Data Fingerprint | %s |\n", r.Reproducibility.DataFingerprint))
	sb.WriteString(fmt.Sprintf("| Fitter | %s |\n", r.Reproducibility.FitterID))
	sb.WriteString(fmt.Sprintf("| Metric | %s |\n", r.Reproducibility.Metric))
	sb.WriteString(fmt.Sprintf("| Period (s) | %d |\n", r.Reproducibility.PeriodSeconds))
	sb.WriteString(fmt.Sprintf("| Train Periods | %d |\n", r.Reproducibility.TrainPeriods))
	sb.WriteString(fmt.Sprintf("| Created At (ms) | %d |\n", r.Reproducibility.CreatedAt))
	sb.WriteString("\n")

	// Data Summary
	sb.WriteString("## Data Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Channels | %d |\n", r.DataSummary.TotalChannels))
	sb.WriteString(fmt.Sprintf("| FILE_IMPORT Channels | %d |\n", r.DataSummary.FileChannels))
	sb.WriteString(fmt.Sprintf("| STREAM_FEED Channels | %d |\n", r.DataSummary.StreamChannels))
	sb.WriteString(fmt.Sprintf("| Spend Points | %d |\n", r.DataSummary.SpendPoints))
	sb.WriteString(fmt.Sprintf("| Outcome Points | %d |\n", r.DataSummary.OutcomePoints))
	sb.WriteString(fmt.Sprintf("| Date Range Start (ms) | %d |\n", r.DataSummary.DateRangeStart))
	sb.WriteString(fmt.Sprintf("| Date Range End (ms) | %d |\n", r.DataSummary.DateRangeEnd))
	sb.WriteString("\n")

	// Data Quality
	sb.WriteString("## Data Quality\n\n")
	if len(r.DataQuality.SufficiencyChecks) > 0 {
		sb.WriteString("### Sufficiency Checks\n\n")
		sb.WriteString("| Check | Threshold | Actual | Status |\n")
		sb.WriteString("|-------|-----------|--------|--------|\n")
		for _, check := range r.DataQuality.SufficiencyChecks {
			status := "FAIL"
			if check.Pass {
				status = "PASS"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				check.Name, check.Threshold, check.Actual, status))
		}
		sb.WriteString("\n")

		// Overall status
		if r.DataQuality.AllChecksPassed {
			sb.WriteString("**All checks passed.** Proceeding with GO/NO-GO evaluation.\n\n")
		} else {
			sb.WriteString("**Some checks failed.** Decision: INSUFFICIENT_DATA\n\n")
		}
	} else if len(r.DataQuality.IntegrityErrors) == 0 {
		sb.WriteString("No data quality checks performed.\n\n")
	}

	// Integrity errors (always shown if present, even without sufficiency checks)
	if len(r.DataQuality.IntegrityErrors) > 0 {
		sb.WriteString("### Integrity Errors\n\n")
		for _, err := range r.DataQuality.IntegrityErrors {
			sb.WriteString(fmt.Sprintf("- %s\n", err))
		}
		sb.WriteString("\n")
	}

	// Channel Metrics
	sb.WriteString("## Channel Metrics\n\n")
	if len(r.ChannelMetrics) > 0 {
		sb.WriteString("| Channel | Name | Medium | Beta | Spend | Contribution | ContribShare | SpendShare | CPO | Mean | Median | P10 | P90 | Peak (ms) |\n")
		sb.WriteString("|---------|------|--------|------|-------|--------------|--------------|------------|-----|------|--------|-----|-----|----------|\n")
		for _, m := range r.ChannelMetrics {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %.4f | %.2f | %.4f | %.4f | %.4f | %.4f | %.4f | %.4f | %.4f | %.4f | %d |\n",
				m.ChannelID, m.Name, m.Medium,
				m.Beta, m.TotalSpend, m.TotalContribution, m.ContributionShare, m.SpendShare,
				m.CostPerOutcome, m.ContributionMean, m.ContributionMedian,
				m.ContributionP10, m.ContributionP90, m.PeakPeriodStart))
		}
	} else {
		sb.WriteString("No channel metrics available.\n")
	}
	sb.WriteString("\n")

	// Scenario Projections
	sb.WriteString("## Scenario Projections\n\n")
	if len(r.ScenarioProjections) > 0 {
		sb.WriteString("| Channel | Scenario | Multiplier | Projected | Baseline | Delta | Delta% |\n")
		sb.WriteString("|---------|----------|------------|-----------|----------|-------|-------|\n")
		for _, p := range r.ScenarioProjections {
			sb.WriteString(fmt.Sprintf("| %s | %s | %.2f | %.4f | %.4f | %.4f | %.2f |\n",
				p.ChannelID, p.ScenarioID, p.SpendMultiplier,
				p.ProjectedOutcome, p.BaselineOutcome, p.Delta, p.DeltaPct))
		}
	} else {
		sb.WriteString("No scenario projections available.\n")
	}
	sb.WriteString("\n")

	// Model Quality
	sb.WriteString("## Model Quality\n\n")
	if len(r.ModelQuality) > 0 {
		sb.WriteString("| Run | Metric | Period (s) | Fitter | R2 | MAPE | Train Periods | Channels |\n")
		sb.WriteString("|-----|--------|------------|--------|----|------|---------------|----------|\n")
		for _, q := range r.ModelQuality {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %s | %.4f | %.4f | %d | %d |\n",
				q.RunID, q.Metric, q.PeriodSeconds, q.FitterID,
				q.RSquared, q.MAPE, q.TrainPeriods, q.ChannelCount))
		}
	} else {
		sb.WriteString("No model quality rows available.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
