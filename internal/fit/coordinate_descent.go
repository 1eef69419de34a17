package fit

import (
	"context"
	"fmt"

	"mediamix-lab/internal/domain"
	"mediamix-lab/internal/transform"
)

// DefaultTolerance is the minimum SSE improvement that counts as progress
// during coordinate descent.
const DefaultTolerance = 1e-9

// CoordinateDescentFitter refines a grid-search warm start by re-scanning
// one channel's grid at a time against the joint model, holding the other
// channels fixed, until SSE stops improving or MaxRounds is reached.
type CoordinateDescentFitter struct {
	AdstockLength int
	MaxRounds     int
	Tolerance     float64
}

// NewCoordinateDescentFitter creates a new CoordinateDescentFitter.
func NewCoordinateDescentFitter(adstockLength, maxRounds int, tolerance float64) *CoordinateDescentFitter {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &CoordinateDescentFitter{
		AdstockLength: adstockLength,
		MaxRounds:     maxRounds,
		Tolerance:     tolerance,
	}
}

// ID returns the fitter identifier including parameters.
func (f *CoordinateDescentFitter) ID() string {
	return fmt.Sprintf("%s_L%d_R%d", domain.FitterCoordinateDescent, f.AdstockLength, f.MaxRounds)
}

// Fit warm-starts from per-channel scans, then sweeps channels in input
// order replacing each channel's transform with the grid candidate that
// most reduces the joint clamped-OLS SSE.
func (f *CoordinateDescentFitter) Fit(_ context.Context, input *FitInput) (*FitResult, error) {
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

	currentSSE, solvable := jointSSE(input.Outcome, selections)

	for round := 0; round < f.MaxRounds; round++ {
		improved := false

		for i, ch := range input.Channels {
			if selections[i].degenerate {
				continue
			}

			candidates := buildCandidates(ch.Spend, f.AdstockLength)
			for _, cand := range candidates {
				if cand == selections[i].cand {
					continue
				}

				adstocked, saturated, err := transform.ApplyChannel(ch.Spend, cand.adstock, cand.saturation)
				if err != nil {
					return nil, err
				}

				trial := &channelSelection{cand: cand, adstocked: adstocked, saturated: saturated}
				prev := selections[i]
				selections[i] = trial

				sse, ok := jointSSE(input.Outcome, selections)
				if ok && (!solvable || currentSSE-sse > f.Tolerance) {
					currentSSE = sse
					solvable = true
					improved = true
				} else {
					selections[i] = prev
				}
			}
		}

		if !improved {
			break
		}
	}

	return assembleResult(input, selections)
}

// jointSSE fits the joint clamped OLS over the current selections and
// returns its SSE. ok is false when the design cannot be solved.
func jointSSE(outcome []float64, selections []*channelSelection) (float64, bool) {
	var regs [][]float64
	for _, sel := range selections {
		if sel.degenerate {
			continue
		}
		regs = append(regs, sel.saturated)
	}

	intercept, betas, err := solveClampedOLS(outcome, regs)
	if err != nil {
		return 0, false
	}

	predicted := predict(intercept, betas, regs, len(outcome))
	return sumSquaredError(outcome, predicted), true
}

// Ensure CoordinateDescentFitter implements Fitter
var _ Fitter = (*CoordinateDescentFitter)(nil)
