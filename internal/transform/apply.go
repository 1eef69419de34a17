package transform

import (
	"fmt"

	"mediamix-lab/internal/domain"
)

// ApplyChannel runs the full per-channel transform chain on a spend series:
// adstock carryover first, then Hill saturation elementwise. Returns the
// adstocked and saturated series, both aligned with the input.
func ApplyChannel(
	spend []float64,
	adstock domain.AdstockConfig,
	saturation domain.SaturationConfig,
) ([]float64, []float64, error) {
	adstocked, err := Adstock(spend, adstock)
	if err != nil {
		return nil, nil, fmt.Errorf("adstock: %w", err)
	}

	saturated, err := HillSeries(adstocked, saturation)
	if err != nil {
		return nil, nil, fmt.Errorf("saturation: %w", err)
	}

	return adstocked, saturated, nil
}
