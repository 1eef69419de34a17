package domain

// AdstockConfig represents carryover transform parameters for one channel.
type AdstockConfig struct {
	Length int     // lag window length, >= 1
	Peak   float64 // lag of maximal weight, >= 0
	Decay  float64 // retention rate in [0, 1]
}

// SaturationConfig represents diminishing-return transform parameters.
type SaturationConfig struct {
	HalfSat float64 // half-saturation point, > 0
	Slope   float64 // hill slope, > 0
}

// ChannelParams represents fitted response parameters for one channel.
type ChannelParams struct {
	ChannelID  string
	Adstock    AdstockConfig
	Saturation SaturationConfig
	Beta       float64 // response coefficient, >= 0 after clamping
}

// TransformedPoint represents transformed spend for one channel-period.
// Corresponds to transformed_timeseries table in ClickHouse.
type TransformedPoint struct {
	RunID       string  // model run identifier
	ChannelID   string  // channel identifier
	PeriodStart int64   // period start timestamp (ms)
	Adstocked   float64 // carryover-weighted mean spend
	Saturated   float64 // hill(adstocked), in [0, 1)
}
