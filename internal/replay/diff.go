package replay

import (
	"math"

	"mediamix-lab/internal/domain"
)

// FloatTolerance is the tolerance for float64 comparisons. The recompute
// itself is bit-deterministic; the tolerance only absorbs storage
// round-trips of Float64 columns.
const FloatTolerance = 1e-9

// Divergence records one mismatch between a stored value and its
// recomputed twin. ChannelID and PeriodStart are set for per-point
// divergences and left zero for run-level ones.
type Divergence struct {
	Field       string
	ChannelID   string
	PeriodStart int64
	Stored      interface{}
	Rebuilt     interface{}
}

// RunResult contains the result of replaying a single model run.
type RunResult struct {
	RunID              string
	Match              bool
	Divergences        []Divergence
	StoredFingerprint  string
	RebuiltFingerprint string
	PointsChecked      int
}

// Report contains results for a replay pass over every stored run.
type Report struct {
	TotalRuns     int
	MatchedRuns   int
	DivergentRuns int
	Results       []RunResult
}

// CompareRun checks the stored run's identity fields against the rebuilt
// ones. Fingerprint and run ID compare exactly: a single reordered or
// added raw record must show up here.
func CompareRun(stored *domain.ModelRun, rebuilt *Rebuilt) []Divergence {
	var divergences []Divergence

	if stored.Fingerprint != rebuilt.Fingerprint {
		divergences = append(divergences, Divergence{
			Field:   "Fingerprint",
			Stored:  stored.Fingerprint,
			Rebuilt: rebuilt.Fingerprint,
		})
	}

	if stored.RunID != rebuilt.RunID {
		divergences = append(divergences, Divergence{
			Field:   "RunID",
			Stored:  stored.RunID,
			Rebuilt: rebuilt.RunID,
		})
	}

	if stored.TrainPeriods != len(rebuilt.Input.PeriodStarts) {
		divergences = append(divergences, Divergence{
			Field:   "TrainPeriods",
			Stored:  stored.TrainPeriods,
			Rebuilt: len(rebuilt.Input.PeriodStarts),
		})
	}

	return divergences
}

// transformedKey identifies one transformed point within a run.
type transformedKey struct {
	channelID   string
	periodStart int64
}

// CompareTransformed diffs stored transformed points against rebuilt
// ones, keyed by (channel, period). Points present on only one side are
// divergences too.
func CompareTransformed(stored, rebuilt []*domain.TransformedPoint) []Divergence {
	var divergences []Divergence

	index := make(map[transformedKey]*domain.TransformedPoint, len(rebuilt))
	for _, p := range rebuilt {
		index[transformedKey{p.ChannelID, p.PeriodStart}] = p
	}

	seen := make(map[transformedKey]bool, len(stored))
	for _, sp := range stored {
		key := transformedKey{sp.ChannelID, sp.PeriodStart}
		seen[key] = true

		rp, ok := index[key]
		if !ok {
			divergences = append(divergences, Divergence{
				Field:       "Point",
				ChannelID:   sp.ChannelID,
				PeriodStart: sp.PeriodStart,
				Stored:      "present",
				Rebuilt:     "absent",
			})
			continue
		}
		if !floatEquals(sp.Adstocked, rp.Adstocked) {
			divergences = append(divergences, Divergence{
				Field:       "Adstocked",
				ChannelID:   sp.ChannelID,
				PeriodStart: sp.PeriodStart,
				Stored:      sp.Adstocked,
				Rebuilt:     rp.Adstocked,
			})
		}
		if !floatEquals(sp.Saturated, rp.Saturated) {
			divergences = append(divergences, Divergence{
				Field:       "Saturated",
				ChannelID:   sp.ChannelID,
				PeriodStart: sp.PeriodStart,
				Stored:      sp.Saturated,
				Rebuilt:     rp.Saturated,
			})
		}
	}

	for _, rp := range rebuilt {
		key := transformedKey{rp.ChannelID, rp.PeriodStart}
		if !seen[key] {
			divergences = append(divergences, Divergence{
				Field:       "Point",
				ChannelID:   rp.ChannelID,
				PeriodStart: rp.PeriodStart,
				Stored:      "absent",
				Rebuilt:     "present",
			})
		}
	}

	return divergences
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}
