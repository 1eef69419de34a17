package transform

import (
	"fmt"
	"math"

	"mediamix-lab/internal/domain"
)

// AdstockWeights computes the lag weights w_l = decay^((l-peak)^2) for
// l in [0, length), normalized to sum 1. The weight is maximal at l = peak
// and falls off symmetrically in exponent space as l moves away from peak:
// decay near 1 gives a flat window, decay near 0 a sharp spike.
func AdstockWeights(cfg domain.AdstockConfig) ([]float64, error) {
	if err := validateAdstock(cfg); err != nil {
		return nil, err
	}

	weights := make([]float64, cfg.Length)
	sum := 0.0
	for l := 0; l < cfg.Length; l++ {
		d := float64(l) - cfg.Peak
		// math.Pow(0, 0) = 1, so decay = 0 keeps a unit weight at l = peak.
		w := math.Pow(cfg.Decay, d*d)
		weights[l] = w
		sum += w
	}

	// decay = 0 with a non-integer peak (or extreme underflow) zeroes every
	// weight. Normalizing would divide by zero, so fail instead.
	if sum == 0 {
		return nil, fmt.Errorf("%w: adstock weights sum to zero (length=%d peak=%v decay=%v)",
			ErrInvalidParameter, cfg.Length, cfg.Peak, cfg.Decay)
	}

	for l := range weights {
		weights[l] /= sum
	}
	return weights, nil
}

// Adstock applies the carryover transform to an ordered series. Each output
// value is the weight-normalized mean of the current value and the length-1
// preceding values, zero-padded before the series start. Output length
// equals input length. Length = 1 is the identity transform.
//
// Every output is a convex combination of its window (virtual zeros
// included), so it lies within [min(window), max(window)].
func Adstock(x []float64, cfg domain.AdstockConfig) ([]float64, error) {
	weights, err := AdstockWeights(cfg)
	if err != nil {
		return nil, err
	}
	if err := validateSeries(x); err != nil {
		return nil, err
	}

	out := make([]float64, len(x))
	for t := range x {
		acc := 0.0
		for l, w := range weights {
			idx := t - l
			if idx < 0 {
				break // remaining lags fall before the series start, value 0
			}
			acc += w * x[idx]
		}
		out[t] = acc
	}
	return out, nil
}

func validateAdstock(cfg domain.AdstockConfig) error {
	if cfg.Length < 1 {
		return fmt.Errorf("%w: adstock length %d, must be >= 1", ErrInvalidParameter, cfg.Length)
	}
	if math.IsNaN(cfg.Peak) || math.IsInf(cfg.Peak, 0) || cfg.Peak < 0 {
		return fmt.Errorf("%w: adstock peak %v, must be finite and >= 0", ErrInvalidParameter, cfg.Peak)
	}
	if math.IsNaN(cfg.Decay) || cfg.Decay < 0 || cfg.Decay > 1 {
		return fmt.Errorf("%w: adstock decay %v, must be in [0, 1]", ErrInvalidParameter, cfg.Decay)
	}
	return nil
}

// validateSeries rejects negative or non-finite input values.
func validateSeries(x []float64) error {
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: x[%d] = %v", ErrDomain, i, v)
		}
	}
	return nil
}
