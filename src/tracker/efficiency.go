package tracker

import (
	"slices"

	"gonum.org/v1/gonum/stat"
)

const (
	// Scans whose peak is within 1% of their mean carry no usable gain signal
	flatScanRatio = 1.01
	// A first sample this close to the peak means the hill sat at the start of the scan
	morningArtifactRatio = 0.95
)

// Reasons efficiency is not reported
const (
	suppressNoScan      = "no scan measurements"
	suppressFlatScan    = "scan too flat (cloudy or reflector ineffective)"
	suppressMorningRise = "hill at start of scan (morning rise)"
	suppressNoBaseline  = "no baseline reading"
)

// efficiencyFor returns the gain percentage of power relative to baseline, or the
// reason it is suppressed for this scan.
func efficiencyFor(scan []float64, baseline, power float64) (float64, string) {
	if len(scan) == 0 {
		return 0, suppressNoScan
	}

	peak := slices.Max(scan)
	if peak < stat.Mean(scan, nil)*flatScanRatio {
		return 0, suppressFlatScan
	}
	if scan[0] >= peak*morningArtifactRatio {
		return 0, suppressMorningRise
	}
	if baseline == 0 {
		return 0, suppressNoBaseline
	}

	return (power / baseline) * 100, ""
}
