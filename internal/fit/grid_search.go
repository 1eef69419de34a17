package fit

import (
	"context"
	"fmt"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/transform"
)

// GridSearchFitter scans a fixed parameter grid per channel, scoring each
// candidate by its single-channel least-squares fit against the outcome,
// then estimates betas jointly across the selected transforms.
type GridSearchFitter struct {
	AdstockLength int // carryover window in periods
}

// NewGridSearchFitter creates a new GridSearchFitter.
func NewGridSearchFitter(adstockLength int) *GridSearchFitter {
	return &GridSearchFitter{AdstockLength: adstockLength}
}

// ID returns the fitter identifier including parameters.
func (f *GridSearchFitter) ID() string {
	return fmt.Sprintf("%s_L%d", domain.FitterGridSearch, f.AdstockLength)
}

// Fit selects per-channel transforms and estimates betas by clamped OLS.
func (f *GridSearchFitter) Fit(_ context.Context, input *FitInput) (*FitResult, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	selections := make([]*channelSelection, len(input.Channels))
	for i, ch := range input.Channels {
		sel, err := scanChannel(ch, input.Outcome, f.AdstockLength)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", ch.ChannelID, err)
		}
		selections[i] = sel
	}

	return assembleResult(input, selections)
}

// channelSelection is the chosen transform for one channel.
type channelSelection struct {
	cand      candidate
	adstocked []float64
	saturated []float64
	// degenerate marks channels no candidate could fit (e.g. all-zero
	// spend); they keep beta 0 and stay out of the joint regression.
	degenerate bool
}

// scanChannel evaluates every grid candidate for one channel against the
// outcome alone and keeps the one with the smallest clamped-OLS SSE.
// Ties keep the earliest candidate in scan order.
func scanChannel(ch *ChannelSeries, outcome []float64, adstockLength int) (*channelSelection, error) {
	candidates := buildCandidates(ch.Spend, adstockLength)

	var best *channelSelection
	var bestSSE float64

	for _, cand := range candidates {
		adstocked, saturated, err := transform.ApplyChannel(ch.Spend, cand.adstock, cand.saturation)
		if err != nil {
			// Grid candidates are always valid parameters, so this is
			// bad input data (negative or non-finite spend).
			return nil, err
		}

		intercept, betas, err := solveClampedOLS(outcome, [][]float64{saturated})
		if err != nil {
			// Constant or all-zero regressor; candidate cannot fit.
			continue
		}

		predicted := predict(intercept, betas, [][]float64{saturated}, len(outcome))
		sse := sumSquaredError(outcome, predicted)

		if best == nil || sse < bestSSE {
			best = &channelSelection{cand: cand, adstocked: adstocked, saturated: saturated}
			bestSSE = sse
		}
	}

	if best == nil {
		// No candidate produced a solvable regression.
		zero := make([]float64, len(ch.Spend))
		return &channelSelection{
			cand:       candidates[0],
			adstocked:  zero,
			saturated:  zero,
			degenerate: true,
		}, nil
	}
	return best, nil
}

// assembleResult runs the joint clamped OLS over the selected transforms
// and packages the full fit result.
func assembleResult(input *FitInput, selections []*channelSelection) (*FitResult, error) {
	n := len(input.PeriodStarts)

	// Joint regression over non-degenerate channels only.
	var activeIdx []int
	var activeRegs [][]float64
	for i, sel := range selections {
		if sel.degenerate {
			continue
		}
		activeIdx = append(activeIdx, i)
		activeRegs = append(activeRegs, sel.saturated)
	}

	intercept, activeBetas, err := solveClampedOLS(input.Outcome, activeRegs)
	if err != nil {
		return nil, err
	}

	betas := make([]float64, len(selections))
	for i, idx := range activeIdx {
		betas[idx] = activeBetas[i]
	}

	allRegs := make([][]float64, len(selections))
	for i, sel := range selections {
		allRegs[i] = sel.saturated
	}
	predicted := predict(intercept, betas, allRegs, n)

	channels := make([]*ChannelFit, len(selections))
	for i, sel := range selections {
		channels[i] = &ChannelFit{
			Params: domain.ChannelParams{
				ChannelID:  input.Channels[i].ChannelID,
				Adstock:    sel.cand.adstock,
				Saturation: sel.cand.saturation,
				Beta:       betas[i],
			},
			Adstocked: sel.adstocked,
			Saturated: sel.saturated,
		}
	}

	return &FitResult{
		Intercept:    intercept,
		RSquared:     RSquared(input.Outcome, predicted),
		MAPE:         MAPE(input.Outcome, predicted),
		NRMSE:        NRMSE(input.Outcome, predicted),
		TrainPeriods: n,
		Channels:     channels,
		Predicted:    predicted,
	}, nil
}

// Ensure GridSearchFitter implements Fitter
var _ Fitter = (*GridSearchFitter)(nil)
