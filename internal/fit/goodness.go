package fit

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// RSquared returns the coefficient of determination of predicted vs actual.
// Returns 0 when actual has zero variance.
func RSquared(actual, predicted []float64) float64 {
	if len(actual) == 0 || len(actual) != len(predicted) {
		return 0
	}

	mean := stat.Mean(actual, nil)
	var ssRes, ssTot float64
	for i, a := range actual {
		r := a - predicted[i]
		ssRes += r * r
		d := a - mean
		ssTot += d * d
	}

	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

// MAPE returns mean absolute percentage error over periods with nonzero
// actual value. Returns 0 when every actual is zero.
func MAPE(actual, predicted []float64) float64 {
	if len(actual) == 0 || len(actual) != len(predicted) {
		return 0
	}

	var sum float64
	var n int
	for i, a := range actual {
		if a == 0 {
			continue
		}
		sum += math.Abs((a - predicted[i]) / a)
		n++
	}

	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// NRMSE returns root-mean-square error normalized by the mean actual value.
// Returns 0 when the mean is zero.
func NRMSE(actual, predicted []float64) float64 {
	if len(actual) == 0 || len(actual) != len(predicted) {
		return 0
	}

	var ssRes float64
	for i, a := range actual {
		d := a - predicted[i]
		ssRes += d * d
	}
	rmse := math.Sqrt(ssRes / float64(len(actual)))

	mean := stat.Mean(actual, nil)
	if mean == 0 {
		return 0
	}
	return rmse / math.Abs(mean)
}
