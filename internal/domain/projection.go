package domain

// ScenarioProjection represents a projected outcome under a budget scenario.
// Corresponds to scenario_projections table in PostgreSQL.
type ScenarioProjection struct {
	RunID            string  // FK to model_runs
	ScenarioID       string  // budget scenario
	ChannelID        string  // channel whose spend is scaled
	ProjectedOutcome float64 // total modeled outcome under scenario
	BaselineOutcome  float64 // total modeled outcome at multiplier 1.0
	Delta            float64 // projected - baseline
	DeltaPct         float64 // delta / baseline * 100 (0 when baseline is 0)
	CreatedAt        int64   // record creation timestamp (ms)
}
