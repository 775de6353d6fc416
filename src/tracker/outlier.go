package tracker

import (
	"log"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// DefaultOutlierCutoff keeps samples within 20% of the batch median
const DefaultOutlierCutoff = 1.2

// FilterOutliers drops samples further from the batch median than median*cutoff - median.
// Order of the kept samples is preserved. An empty batch returns an empty slice.
func FilterOutliers(samples []float64, cutoff float64) []float64 {
	kept := make([]float64, 0, len(samples))
	if len(samples) == 0 {
		return kept
	}

	sorted := slices.Clone(samples)
	slices.Sort(sorted)
	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)

	// Abs so a negative median (reverse current through the shunt) doesn't invert the band
	delta := math.Abs(median*cutoff - median)

	for _, s := range samples {
		if s < median-delta || s > median+delta {
			log.Printf("OUTLIER: dropping %.3f W from %s\n", s/1000, formatWatts(samples))
			continue
		}
		kept = append(kept, s)
	}
	return kept
}
