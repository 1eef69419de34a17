package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders channel metric rows as CSV string.
func RenderCSV(metrics []ChannelMetricRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("channel_id,name,medium,beta,total_spend,total_contribution,")
	sb.WriteString("contribution_share,spend_share,cost_per_outcome,")
	sb.WriteString("contribution_mean,contribution_median,contribution_p10,contribution_p90,peak_period_start\n")

	// Rows
	for _, m := range metrics {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%d\n",
			m.ChannelID,
			m.Name,
			m.Medium,
			m.Beta,
			m.TotalSpend,
			m.TotalContribution,
			m.ContributionShare,
			m.SpendShare,
			m.CostPerOutcome,
			m.ContributionMean,
			m.ContributionMedian,
			m.ContributionP10,
			m.ContributionP90,
			m.PeakPeriodStart,
		))
	}

	return sb.String()
}

// RenderProjectionsCSV renders scenario projection rows as CSV string.
func RenderProjectionsCSV(projections []ScenarioProjectionRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("channel_id,scenario_id,spend_multiplier,projected_outcome,baseline_outcome,delta,delta_pct\n")

	// Rows
	for _, p := range projections {
		sb.WriteString(fmt.Sprintf("%s,%s,%.6f,%.6f,%.6f,%.6f,%.6f\n",
			p.ChannelID,
			p.ScenarioID,
			p.SpendMultiplier,
			p.ProjectedOutcome,
			p.BaselineOutcome,
			p.Delta,
			p.DeltaPct,
		))
	}

	return sb.String()
}
