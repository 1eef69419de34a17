package idhash

import (
	"testing"
)

func TestComputeRunID(t *testing.T) {
	got := ComputeRunID("conversions", 86400, "GRID_SEARCH", "7cUuSdE2")

	if len(got) != 64 {
		t.Errorf("ComputeRunID() length = %d, want 64", len(got))
	}

	// Compute multiple times
	results := make([]string, 10)
	for i := 0; i < 10; i++ {
		results[i] = ComputeRunID("conversions", 86400, "GRID_SEARCH", "7cUuSdE2")
	}

	// All should be identical
	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Errorf("Determinism failed: results[%d]=%s != results[0]=%s", i, results[i], results[0])
		}
	}
}

func TestComputeRunID_DifferentInputs(t *testing.T) {
	base := ComputeRunID("conversions", 86400, "GRID_SEARCH", "fp")

	diffMetric := ComputeRunID("revenue", 86400, "GRID_SEARCH", "fp")
	if base == diffMetric {
		t.Error("Different metric should produce different hash")
	}

	diffPeriod := ComputeRunID("conversions", 604800, "GRID_SEARCH", "fp")
	if base == diffPeriod {
		t.Error("Different period should produce different hash")
	}

	diffFitter := ComputeRunID("conversions", 86400, "COORDINATE_DESCENT", "fp")
	if base == diffFitter {
		t.Error("Different fitter should produce different hash")
	}

	diffFingerprint := ComputeRunID("conversions", 86400, "GRID_SEARCH", "other")
	if base == diffFingerprint {
		t.Error("Different data fingerprint should produce different hash")
	}
}
