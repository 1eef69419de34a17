package domain

// ScenarioConfig represents budget scenario parameters.
type ScenarioConfig struct {
	ScenarioID      string  // "baseline" | "boost" | "cut" | "dark"
	SpendMultiplier float64 // applied to the scenario channel's spend series
}

// Scenario ID constants
const (
	ScenarioBaseline = "baseline"
	ScenarioBoost    = "boost"
	ScenarioCut      = "cut"
	ScenarioDark     = "dark"
)

// Predefined budget scenario configurations
var (
	ScenarioConfigBaseline = ScenarioConfig{
		ScenarioID:      ScenarioBaseline,
		SpendMultiplier: 1.0,
	}

	ScenarioConfigBoost = ScenarioConfig{
		ScenarioID:      ScenarioBoost,
		SpendMultiplier: 1.2,
	}

	ScenarioConfigCut = ScenarioConfig{
		ScenarioID:      ScenarioCut,
		SpendMultiplier: 0.8,
	}

	ScenarioConfigDark = ScenarioConfig{
		ScenarioID:      ScenarioDark,
		SpendMultiplier: 0.0,
	}
)

// AllScenarios returns the predefined scenarios in canonical order.
func AllScenarios() []ScenarioConfig {
	return []ScenarioConfig{
		ScenarioConfigBaseline,
		ScenarioConfigBoost,
		ScenarioConfigCut,
		ScenarioConfigDark,
	}
}
