package fit

import (
	"sort"

	"mediamix-lab/internal/domain"
)

// Parameter grids scanned per channel. Scan order is fixed
// (peak, decay, half-saturation, slope) and ties resolve to the
// earliest candidate, so fits are fully deterministic.
var (
	peakGrid  = []float64{0, 1, 2}
	decayGrid = []float64{0.1, 0.3, 0.5, 0.7, 0.9}
	slopeGrid = []float64{0.5, 1.0, 2.0, 3.0}
)

// halfSatQuantiles are the spend quantiles probed for the Hill midpoint.
var halfSatQuantiles = []float64{0.25, 0.50, 0.75}

// candidate is one (adstock, saturation) parameter combination.
type candidate struct {
	adstock    domain.AdstockConfig
	saturation domain.SaturationConfig
}

// buildCandidates enumerates the full parameter grid for one channel in
// scan order. Half-saturation midpoints come from the channel's positive
// spend quantiles; a channel with no positive spend gets a unit midpoint.
func buildCandidates(spend []float64, adstockLength int) []candidate {
	halfSats := halfSatGrid(spend)

	out := make([]candidate, 0, len(peakGrid)*len(decayGrid)*len(halfSats)*len(slopeGrid))
	for _, peak := range peakGrid {
		for _, decay := range decayGrid {
			for _, halfSat := range halfSats {
				for _, slope := range slopeGrid {
					out = append(out, candidate{
						adstock: domain.AdstockConfig{
							Length: adstockLength,
							Peak:   peak,
							Decay:  decay,
						},
						saturation: domain.SaturationConfig{
							HalfSat: halfSat,
							Slope:   slope,
						},
					})
				}
			}
		}
	}
	return out
}

// halfSatGrid returns deduplicated quantiles of the positive spend values.
func halfSatGrid(spend []float64) []float64 {
	var positive []float64
	for _, v := range spend {
		if v > 0 {
			positive = append(positive, v)
		}
	}
	if len(positive) == 0 {
		return []float64{1}
	}
	sort.Float64s(positive)

	var out []float64
	for _, q := range halfSatQuantiles {
		v := computePercentile(positive, q)
		if len(out) == 0 || out[len(out)-1] != v {
			out = append(out, v)
		}
	}
	return out
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC.
// p is percentile (0.10 = 10th percentile).
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
