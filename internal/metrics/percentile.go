package metrics

import "sort"

// Stats summarizes a latency sample set in milliseconds.
type Stats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// ComputeStats computes nearest-rank percentiles over the samples. The
// input is not mutated. Empty input yields all-zero stats rather than an
// error so exporters never fail on a quiet operation.
func ComputeStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	return Stats{
		Count: len(sorted),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Avg:   sum / float64(len(sorted)),
		P50:   percentile(sorted, 50),
		P95:   percentile(sorted, 95),
		P99:   percentile(sorted, 99),
	}
}

// percentile returns the nearest-rank percentile of a sorted sample array:
// the element at index floor(p/100 * n), clamped to the last element. For
// values [1..100] this yields p50=51, p95=96, p99=100.
func percentile(sorted []float64, p int) float64 {
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
