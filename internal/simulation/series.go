package simulation

import (
	"sort"

	"mediamix-lab/internal/domain"
)

// periodGrid returns the sorted period starts of a channel's stored
// transform outputs. This is the grid the run was fitted on.
func periodGrid(points []*domain.TransformedPoint) []int64 {
	grid := make([]int64, len(points))
	for i, p := range points {
		grid[i] = p.PeriodStart
	}
	sort.Slice(grid, func(i, j int) bool { return grid[i] < grid[j] })
	return grid
}

// alignSpend maps a channel's spend series onto the fit period grid.
// Periods without a stored spend point contribute zero.
func alignSpend(points []*domain.SpendTimeseriesPoint, grid []int64) []float64 {
	byPeriod := make(map[int64]float64, len(points))
	for _, p := range points {
		byPeriod[p.PeriodStart] = p.Spend
	}

	spend := make([]float64, len(grid))
	for i, start := range grid {
		spend[i] = byPeriod[start]
	}
	return spend
}

// scaleSeries multiplies every element by the scenario spend multiplier.
func scaleSeries(series []float64, multiplier float64) []float64 {
	scaled := make([]float64, len(series))
	for i, v := range series {
		scaled[i] = v * multiplier
	}
	return scaled
}

// sumSeries returns the sum of all elements.
func sumSeries(series []float64) float64 {
	sum := 0.0
	for _, v := range series {
		sum += v
	}
	return sum
}
