package fit

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrSingularDesign reports a design matrix least squares cannot solve.
var ErrSingularDesign = errors.New("singular design matrix")

// solveOLS fits y = intercept + sum(beta_j * regressors[j]) by least squares
// using QR decomposition. Requires more observations than parameters.
func solveOLS(y []float64, regressors [][]float64) (float64, []float64, error) {
	n := len(y)
	k := len(regressors)
	if n < k+1 {
		return 0, nil, fmt.Errorf("%w: %d observations for %d parameters", ErrSingularDesign, n, k+1)
	}

	x := mat.NewDense(n, k+1, nil)
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	x.SetCol(0, ones)
	for j, reg := range regressors {
		x.SetCol(j+1, reg)
	}

	var qr mat.QR
	qr.Factorize(x)

	var coef mat.Dense
	if err := qr.SolveTo(&coef, false, mat.NewVecDense(n, y)); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrSingularDesign, err)
	}

	intercept := coef.At(0, 0)
	betas := make([]float64, k)
	for j := 0; j < k; j++ {
		betas[j] = coef.At(j+1, 0)
	}
	return intercept, betas, nil
}

// solveClampedOLS fits OLS, then iteratively clamps negative betas to zero
// and refits on the remaining regressors until all betas are non-negative.
// Regressors clamped out keep beta 0 in the returned slice.
func solveClampedOLS(y []float64, regressors [][]float64) (float64, []float64, error) {
	k := len(regressors)
	active := make([]int, k)
	for j := range active {
		active[j] = j
	}

	betas := make([]float64, k)
	for {
		if len(active) == 0 {
			// Intercept-only model
			return stat.Mean(y, nil), betas, nil
		}

		sub := make([][]float64, len(active))
		for i, j := range active {
			sub[i] = regressors[j]
		}

		intercept, subBetas, err := solveOLS(y, sub)
		if err != nil {
			return 0, nil, err
		}

		var kept []int
		clamped := false
		for i, j := range active {
			if subBetas[i] < 0 {
				betas[j] = 0
				clamped = true
			} else {
				kept = append(kept, j)
			}
		}

		if !clamped {
			for i, j := range active {
				betas[j] = subBetas[i]
			}
			return intercept, betas, nil
		}
		active = kept
	}
}

// predict evaluates intercept + sum(beta_j * regressors[j]) per period.
func predict(intercept float64, betas []float64, regressors [][]float64, n int) []float64 {
	out := make([]float64, n)
	for t := 0; t < n; t++ {
		v := intercept
		for j, reg := range regressors {
			v += betas[j] * reg[t]
		}
		out[t] = v
	}
	return out
}

// sumSquaredError returns sum((actual - predicted)^2).
func sumSquaredError(actual, predicted []float64) float64 {
	var sse float64
	for i, a := range actual {
		d := a - predicted[i]
		sse += d * d
	}
	return sse
}
