package fingerprint

import "sort"

const lloydMaxIterations = 32

// cluster1D partitions one-dimensional points into k groups using Lloyd's
// algorithm with quantile-seeded centroids. Seeding from sorted quantiles
// keeps the assignment deterministic for a given input set.
func cluster1D(points []float64, k int) ([]float64, []int) {
	if len(points) == 0 || k <= 0 {
		return nil, nil
	}
	if k > len(points) {
		k = len(points)
	}

	sorted := append([]float64(nil), points...)
	sort.Float64s(sorted)

	centroids := make([]float64, k)
	for i := range centroids {
		// Quantile midpoints over the sorted inputs.
		idx := (2*i + 1) * len(sorted) / (2 * k)
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		centroids[i] = sorted[idx]
	}

	assignments := make([]int, len(points))
	for iter := 0; iter < lloydMaxIterations; iter++ {
		moved := false
		for i, p := range points {
			best := nearestCentroid(centroids, p)
			if assignments[i] != best {
				assignments[i] = best
				moved = true
			}
		}
		if !moved && iter > 0 {
			break
		}

		sums := make([]float64, k)
		counts := make([]int, k)
		for i, p := range points {
			sums[assignments[i]] += p
			counts[assignments[i]]++
		}
		for c := range centroids {
			if counts[c] > 0 {
				centroids[c] = sums[c] / float64(counts[c])
			}
		}
	}
	return centroids, assignments
}

func nearestCentroid(centroids []float64, p float64) int {
	best := 0
	bestDist := abs(centroids[0] - p)
	for c := 1; c < len(centroids); c++ {
		if d := abs(centroids[c] - p); d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
