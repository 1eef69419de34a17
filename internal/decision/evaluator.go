package decision

import "fmt"

// Evaluator evaluates decision criteria.
type Evaluator struct{}

// NewEvaluator creates a new decision evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate produces DecisionResult from DecisionInput.
// Sufficiency failures yield INSUFFICIENT_DATA regardless of model quality.
// Otherwise GO if ALL criteria pass and NO NO-GO triggers,
// NO-GO if ANY criterion fails or ANY trigger fires.
func (e *Evaluator) Evaluate(input *DecisionInput) (*DecisionResult, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	sufficiency := e.evaluateSufficiency(input)
	goCriteria := e.evaluateGOCriteria(input)
	nogoChecks := e.evaluateNOGOTriggers(input)

	sufficient := true
	for _, c := range sufficiency {
		if !c.Pass {
			sufficient = false
			break
		}
	}

	allGOPass := true
	for _, c := range goCriteria {
		if !c.Pass {
			allGOPass = false
			break
		}
	}

	anyNOGOTriggered := false
	for _, c := range nogoChecks {
		if !c.Pass { // Pass=false means triggered
			anyNOGOTriggered = true
			break
		}
	}

	decision := DecisionGO
	switch {
	case !sufficient:
		decision = DecisionInsufficient
	case !allGOPass || anyNOGOTriggered:
		decision = DecisionNOGO
	}

	return &DecisionResult{
		Decision:    decision,
		Sufficiency: sufficiency,
		GOCriteria:  goCriteria,
		NOGOChecks:  nogoChecks,
	}, nil
}

// evaluateSufficiency evaluates the 4 data sufficiency checks.
func (e *Evaluator) evaluateSufficiency(input *DecisionInput) []CriterionResult {
	checks := make([]CriterionResult, 4)

	// 1. At least two channels
	checks[0] = CriterionResult{
		Name:      "Channel count",
		Threshold: ">= 2",
		Actual:    fmt.Sprintf("%d", len(input.Channels)),
		Pass:      len(input.Channels) >= 2,
	}

	// 2. Every channel's history covers three carryover windows
	histID, histPeriods, histNeed := shortestHistoryChannel(input.Channels)
	histActual := "no channels"
	histPass := true
	if len(input.Channels) > 0 {
		histActual = fmt.Sprintf("%s: %d/%d periods", histID, histPeriods, histNeed)
		histPass = histPeriods >= histNeed
	}
	checks[1] = CriterionResult{
		Name:      "Channel history",
		Threshold: ">= 3x carryover window",
		Actual:    histActual,
		Pass:      histPass,
	}

	// 3. Outcome series covers the period grid
	checks[2] = CriterionResult{
		Name:      "Outcome coverage",
		Threshold: ">= 90%",
		Actual:    fmt.Sprintf("%.1f%%", input.OutcomeCoverage*100),
		Pass:      input.OutcomeCoverage >= 0.9,
	}

	// 4. Enough periods overall
	checks[3] = CriterionResult{
		Name:      "Total periods",
		Threshold: ">= 8",
		Actual:    fmt.Sprintf("%d", input.TotalPeriods),
		Pass:      input.TotalPeriods >= 8,
	}

	return checks
}

// evaluateGOCriteria evaluates the 5 GO criteria.
func (e *Evaluator) evaluateGOCriteria(input *DecisionInput) []CriterionResult {
	criteria := make([]CriterionResult, 5)

	// 1. RSquared >= 0.70
	criteria[0] = CriterionResult{
		Name:      "Explained variance",
		Threshold: ">= 0.70",
		Actual:    fmt.Sprintf("%.4f", input.RSquared),
		Pass:      input.RSquared >= 0.70,
	}

	// 2. MAPE <= 0.20
	criteria[1] = CriterionResult{
		Name:      "Prediction error",
		Threshold: "<= 0.20",
		Actual:    fmt.Sprintf("%.4f", input.MAPE),
		Pass:      input.MAPE <= 0.20,
	}

	// 3. Holdout degradation ratio >= 0.5
	criteria[2] = CriterionResult{
		Name:      "Stable out of sample",
		Threshold: "ratio >= 0.5",
		Actual:    fmt.Sprintf("%.2f", input.DegradationRatio),
		Pass:      input.DegradationRatio >= 0.5,
	}

	// 4. Every fitted beta non-negative
	minID, minBeta := minBetaChannel(input.Channels)
	betaActual := "no channels"
	if len(input.Channels) > 0 {
		betaActual = fmt.Sprintf("%s: %.4f", minID, minBeta)
	}
	criteria[3] = CriterionResult{
		Name:      "Non-negative channel effects",
		Threshold: "min beta >= 0",
		Actual:    betaActual,
		Pass:      minBeta >= 0,
	}

	// 5. No channel dominates the modeled outcome
	maxID, maxShare := maxShareChannel(input.Channels)
	shareActual := "no channels"
	if len(input.Channels) > 0 {
		shareActual = fmt.Sprintf("%s: %.2f", maxID, maxShare)
	}
	criteria[4] = CriterionResult{
		Name:      "No single-channel domination",
		Threshold: "max share <= 0.90",
		Actual:    shareActual,
		Pass:      maxShare <= 0.90,
	}

	return criteria
}

// evaluateNOGOTriggers evaluates the 4 NO-GO triggers.
// Pass=true means NOT triggered, Pass=false means triggered.
func (e *Evaluator) evaluateNOGOTriggers(input *DecisionInput) []CriterionResult {
	checks := make([]CriterionResult, 4)

	// 1. RSquared < 0.5 triggers NO-GO
	triggered1 := input.RSquared < 0.5
	checks[0] = CriterionResult{
		Name:      "Poor fit",
		Threshold: "< 0.5",
		Actual:    fmt.Sprintf("%.4f", input.RSquared),
		Pass:      !triggered1, // Pass means NOT triggered
	}

	// 2. MAPE > 0.35 triggers NO-GO
	triggered2 := input.MAPE > 0.35
	checks[1] = CriterionResult{
		Name:      "Excessive prediction error",
		Threshold: "> 0.35",
		Actual:    fmt.Sprintf("%.4f", input.MAPE),
		Pass:      !triggered2,
	}

	// 3. Holdout RSquared <= 0 triggers NO-GO
	triggered3 := input.HoldoutRSquared <= 0
	checks[2] = CriterionResult{
		Name:      "No holdout skill",
		Threshold: "<= 0",
		Actual:    fmt.Sprintf("%.4f", input.HoldoutRSquared),
		Pass:      !triggered3,
	}

	// 4. Any negative beta triggers NO-GO
	minID, minBeta := minBetaChannel(input.Channels)
	betaActual := "no channels"
	if len(input.Channels) > 0 {
		betaActual = fmt.Sprintf("%s: %.4f", minID, minBeta)
	}
	triggered4 := minBeta < 0
	checks[3] = CriterionResult{
		Name:      "Negative channel effect",
		Threshold: "min beta < 0",
		Actual:    betaActual,
		Pass:      !triggered4,
	}

	return checks
}

// minBetaChannel returns the channel with the smallest fitted beta.
func minBetaChannel(channels []ChannelCheck) (string, float64) {
	id, beta := "", 0.0
	for i, ch := range channels {
		if i == 0 || ch.Beta < beta {
			id, beta = ch.ChannelID, ch.Beta
		}
	}
	return id, beta
}

// maxShareChannel returns the channel with the largest contribution share.
func maxShareChannel(channels []ChannelCheck) (string, float64) {
	id, share := "", 0.0
	for i, ch := range channels {
		if i == 0 || ch.Share > share {
			id, share = ch.ChannelID, ch.Share
		}
	}
	return id, share
}

// shortestHistoryChannel returns the channel with the smallest margin between
// stored periods and the required three carryover windows.
func shortestHistoryChannel(channels []ChannelCheck) (string, int, int) {
	id, periods, need := "", 0, 0
	for i, ch := range channels {
		chNeed := 3 * ch.AdstockLength
		if i == 0 || ch.Periods-chNeed < periods-need {
			id, periods, need = ch.ChannelID, ch.Periods, chNeed
		}
	}
	return id, periods, need
}
