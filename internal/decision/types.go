package decision

import "errors"

// Decision represents the adoption gate outcome.
type Decision string

const (
	DecisionGO           Decision = "GO"
	DecisionNOGO         Decision = "NO-GO"
	DecisionInsufficient Decision = "INSUFFICIENT_DATA"
)

// Input validation errors
var (
	ErrNilInput         = errors.New("nil decision input")
	ErrEmptyRunID       = errors.New("empty run id")
	ErrEmptyMetric      = errors.New("empty metric")
	ErrNegativeCoverage = errors.New("outcome coverage is negative")
	ErrInvalidCoverage  = errors.New("outcome coverage is above 1")
)

// ChannelCheck carries the per-channel facts the gate inspects.
type ChannelCheck struct {
	ChannelID string

	// Beta is the fitted effect coefficient.
	Beta float64

	// Share is the channel's fraction of total modeled outcome, 0-1.
	Share float64

	// Periods counts stored spend observations at the run cadence.
	Periods int

	// AdstockLength is the fitted carryover window in periods.
	AdstockLength int
}

// DecisionInput contains the model quality facts for gate evaluation.
type DecisionInput struct {
	// Fit quality over the full training window
	RSquared float64
	MAPE     float64

	// Holdout quality from the backtest
	HoldoutRSquared  float64
	DegradationRatio float64

	// Per-channel effect, share and history facts
	Channels []ChannelCheck

	// Data sufficiency facts
	TotalPeriods    int
	OutcomeCoverage float64 // observed periods over expected periods, 0-1

	// Model run context for the report
	RunID  string
	Metric string
}

// Validate checks structural consistency of the input.
func (in *DecisionInput) Validate() error {
	if in == nil {
		return ErrNilInput
	}
	if in.RunID == "" {
		return ErrEmptyRunID
	}
	if in.Metric == "" {
		return ErrEmptyMetric
	}
	if in.OutcomeCoverage < 0 {
		return ErrNegativeCoverage
	}
	if in.OutcomeCoverage > 1 {
		return ErrInvalidCoverage
	}
	return nil
}

// CriterionResult represents pass/fail for one check.
type CriterionResult struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// DecisionResult contains the final decision with checklist.
type DecisionResult struct {
	Decision    Decision
	Sufficiency []CriterionResult // 4 data sufficiency checks
	GOCriteria  []CriterionResult // 5 GO criteria
	NOGOChecks  []CriterionResult // 4 NO-GO triggers
}
