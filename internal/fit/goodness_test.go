package fit

import (
	"math"
	"testing"
)

func TestRSquared_PerfectFit(t *testing.T) {
	actual := []float64{1, 2, 3, 4}
	predicted := []float64{1, 2, 3, 4}

	if r2 := RSquared(actual, predicted); r2 != 1.0 {
		t.Errorf("expected R² 1.0 for perfect fit, got %v", r2)
	}
}

func TestRSquared_MeanPrediction(t *testing.T) {
	actual := []float64{1, 2, 3, 4}
	predicted := []float64{2.5, 2.5, 2.5, 2.5}

	if r2 := RSquared(actual, predicted); math.Abs(r2) > 1e-12 {
		t.Errorf("expected R² 0 for mean prediction, got %v", r2)
	}
}

func TestRSquared_ZeroVariance(t *testing.T) {
	actual := []float64{5, 5, 5}
	predicted := []float64{5, 5, 5}

	if r2 := RSquared(actual, predicted); r2 != 0 {
		t.Errorf("expected R² 0 for zero-variance actual, got %v", r2)
	}
}

func TestRSquared_WorseThanMean(t *testing.T) {
	actual := []float64{1, 2, 3, 4}
	predicted := []float64{4, 3, 2, 1}

	if r2 := RSquared(actual, predicted); r2 >= 0 {
		t.Errorf("expected negative R² for anti-correlated prediction, got %v", r2)
	}
}

func TestMAPE_KnownValues(t *testing.T) {
	actual := []float64{100, 200}
	predicted := []float64{110, 180}

	// |100-110|/100 = 0.10, |200-180|/200 = 0.10 -> mean 0.10
	if m := MAPE(actual, predicted); math.Abs(m-0.10) > 1e-12 {
		t.Errorf("expected MAPE 0.10, got %v", m)
	}
}

func TestMAPE_SkipsZeroActuals(t *testing.T) {
	actual := []float64{0, 100}
	predicted := []float64{50, 150}

	// Zero actual is skipped: only |100-150|/100 = 0.5 counts
	if m := MAPE(actual, predicted); math.Abs(m-0.5) > 1e-12 {
		t.Errorf("expected MAPE 0.5, got %v", m)
	}
}

func TestMAPE_AllZeroActuals(t *testing.T) {
	actual := []float64{0, 0}
	predicted := []float64{1, 2}

	if m := MAPE(actual, predicted); m != 0 {
		t.Errorf("expected MAPE 0 when every actual is zero, got %v", m)
	}
}

func TestNRMSE_KnownValues(t *testing.T) {
	actual := []float64{10, 20, 30}
	predicted := []float64{10, 20, 30}

	if n := NRMSE(actual, predicted); n != 0 {
		t.Errorf("expected NRMSE 0 for perfect fit, got %v", n)
	}

	// Constant offset of 2: rmse = 2, mean = 20 -> 0.1
	offset := []float64{12, 22, 32}
	if n := NRMSE(actual, offset); math.Abs(n-0.1) > 1e-12 {
		t.Errorf("expected NRMSE 0.1, got %v", n)
	}
}

func TestNRMSE_ZeroMean(t *testing.T) {
	actual := []float64{-1, 1}
	predicted := []float64{0, 0}

	if n := NRMSE(actual, predicted); n != 0 {
		t.Errorf("expected NRMSE 0 for zero-mean actual, got %v", n)
	}
}

func TestGoodness_LengthMismatch(t *testing.T) {
	actual := []float64{1, 2, 3}
	predicted := []float64{1, 2}

	if r2 := RSquared(actual, predicted); r2 != 0 {
		t.Errorf("expected R² 0 on length mismatch, got %v", r2)
	}
	if m := MAPE(actual, predicted); m != 0 {
		t.Errorf("expected MAPE 0 on length mismatch, got %v", m)
	}
	if n := NRMSE(actual, predicted); n != 0 {
		t.Errorf("expected NRMSE 0 on length mismatch, got %v", n)
	}
}
