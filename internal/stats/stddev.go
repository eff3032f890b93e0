// Package stats holds the numeric routines behind the deviation endpoint.
package stats

import (
	"math"

	"github.com/alanyoungcy/coinstats/internal/domain"
)

// Result is a population standard deviation together with the number of
// samples it was computed over.
type Result struct {
	StdDev float64
	Count  int
}

// PopulationStdDev returns the population standard deviation of values
// (squared deviations divided by N, not N-1). An empty input yields a zero
// result rather than an error.
func PopulationStdDev(values []float64) Result {
	n := len(values)
	if n == 0 {
		return Result{}
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}

	return Result{
		StdDev: math.Sqrt(sq / float64(n)),
		Count:  n,
	}
}

// Prices extracts CurrentPrice from snaps, preserving order.
func Prices(snaps []domain.Snapshot) []float64 {
	out := make([]float64, len(snaps))
	for i, s := range snaps {
		out[i] = s.CurrentPrice
	}
	return out
}
