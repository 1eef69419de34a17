package domain

// ModelRun represents a fitted response model with full parameters.
// Corresponds to model_runs table in PostgreSQL.
type ModelRun struct {
	RunID         string // PRIMARY KEY, deterministic hash
	Fingerprint   string // base58 reproducibility fingerprint
	Metric        string // modeled KPI
	PeriodSeconds int    // aggregation period of the fit
	FitterID      string // GRID_SEARCH | COORDINATE_DESCENT

	// Fit results
	Intercept    float64
	RSquared     float64
	MAPE         float64 // mean absolute percentage error over nonzero outcomes
	TrainPeriods int     // number of periods fitted on
	Channels     []ChannelParams

	CreatedAt int64 // record creation timestamp (ms)
}

// Fitter identifier constants
const (
	FitterGridSearch        = "GRID_SEARCH"
	FitterCoordinateDescent = "COORDINATE_DESCENT"
)

// FitterConfig describes a fitter to construct.
// Only the parameters required by FitterType need to be set.
type FitterConfig struct {
	FitterType string // "GRID_SEARCH" | "COORDINATE_DESCENT"

	// Common parameters
	AdstockLength *int

	// COORDINATE_DESCENT parameters
	MaxRounds *int
	Tolerance *float64
}
