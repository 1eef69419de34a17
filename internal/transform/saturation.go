package transform

import (
	"fmt"
	"math"

	"mediamix-lab/internal/domain"
)

// Hill applies the diminishing-return transform
// hill(x) = 1 / (1 + (x/halfSat)^(-slope)). The result increases
// monotonically from 0 toward 1, with hill(halfSat) = 0.5 exactly.
// x = 0 returns 0 (the limit x -> 0+; the naive form would be 1/(1+Inf)).
func Hill(x float64, cfg domain.SaturationConfig) (float64, error) {
	if err := validateSaturation(cfg); err != nil {
		return 0, err
	}
	if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
		return 0, fmt.Errorf("%w: x = %v", ErrDomain, x)
	}
	return hillValue(x, cfg), nil
}

// HillSeries applies Hill elementwise. Output length equals input length.
func HillSeries(x []float64, cfg domain.SaturationConfig) ([]float64, error) {
	if err := validateSaturation(cfg); err != nil {
		return nil, err
	}
	if err := validateSeries(x); err != nil {
		return nil, err
	}

	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = hillValue(v, cfg)
	}
	return out, nil
}

// hillValue assumes cfg and x already validated.
func hillValue(x float64, cfg domain.SaturationConfig) float64 {
	if x == 0 {
		return 0
	}
	return 1 / (1 + math.Pow(x/cfg.HalfSat, -cfg.Slope))
}

func validateSaturation(cfg domain.SaturationConfig) error {
	if math.IsNaN(cfg.HalfSat) || math.IsInf(cfg.HalfSat, 0) || cfg.HalfSat <= 0 {
		return fmt.Errorf("%w: saturation half_sat %v, must be finite and > 0", ErrInvalidParameter, cfg.HalfSat)
	}
	if math.IsNaN(cfg.Slope) || math.IsInf(cfg.Slope, 0) || cfg.Slope <= 0 {
		return fmt.Errorf("%w: saturation slope %v, must be finite and > 0", ErrInvalidParameter, cfg.Slope)
	}
	return nil
}
