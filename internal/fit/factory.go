package fit

import (
	"errors"

	"mediamix-lab/internal/domain"
)

// Factory errors
var (
	ErrUnknownFitterType    = errors.New("unknown fitter type")
	ErrMissingAdstockLength = errors.New("fitter requires AdstockLength")
	ErrMissingMaxRounds     = errors.New("COORDINATE_DESCENT requires MaxRounds")
)

// FromConfig creates a Fitter from domain.FitterConfig.
// Validates required parameters per fitter type.
// Returns clear errors for missing/invalid params.
func FromConfig(cfg domain.FitterConfig) (Fitter, error) {
	switch cfg.FitterType {
	case domain.FitterGridSearch:
		return fromGridSearchConfig(cfg)
	case domain.FitterCoordinateDescent:
		return fromCoordinateDescentConfig(cfg)
	default:
		return nil, ErrUnknownFitterType
	}
}

// fromGridSearchConfig creates GridSearchFitter from config.
func fromGridSearchConfig(cfg domain.FitterConfig) (*GridSearchFitter, error) {
	if cfg.AdstockLength == nil {
		return nil, ErrMissingAdstockLength
	}

	return NewGridSearchFitter(*cfg.AdstockLength), nil
}

// fromCoordinateDescentConfig creates CoordinateDescentFitter from config.
func fromCoordinateDescentConfig(cfg domain.FitterConfig) (*CoordinateDescentFitter, error) {
	if cfg.AdstockLength == nil {
		return nil, ErrMissingAdstockLength
	}
	if cfg.MaxRounds == nil {
		return nil, ErrMissingMaxRounds
	}

	tolerance := DefaultTolerance
	if cfg.Tolerance != nil {
		tolerance = *cfg.Tolerance
	}

	return NewCoordinateDescentFitter(*cfg.AdstockLength, *cfg.MaxRounds, tolerance), nil
}
