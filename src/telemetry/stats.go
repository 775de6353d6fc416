package telemetry

import (
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"
)

// statsHorizon is the longest window statistics are kept for
const statsHorizon = 15 * time.Minute

// Reading represents a timestamped power reading
type Reading struct {
	Value     float64
	Timestamp time.Time
}

// Readings is a collection of timestamped readings, oldest first
type Readings []Reading

// TimeWindows holds values across 1, 5, and 15 minute windows
type TimeWindows struct {
	Min1  float64
	Min5  float64
	Min15 float64
}

// weightedValue represents a value with its duration weight for percentile calculation
type weightedValue struct {
	value    float64
	duration float64
}

// timeWeightedPercentile returns the p quantile of readings within window, where each
// reading is weighted by how long it persisted.
// With 0 or 1 readings in the window the most recent reading is used.
func timeWeightedPercentile(readings Readings, p float64, window time.Duration, now time.Time) float64 {
	if len(readings) == 0 {
		return 0
	}
	lastReading := readings[len(readings)-1]

	cutoff := now.Add(-window)
	start := len(readings)
	for i, r := range readings {
		if r.Timestamp.After(cutoff) {
			start = i
			break
		}
	}
	windowReadings := readings[start:]
	if len(windowReadings) <= 1 {
		return lastReading.Value
	}

	pairs := make([]weightedValue, 0, len(windowReadings))
	var totalDuration float64
	for i, r := range windowReadings {
		var duration float64
		if i < len(windowReadings)-1 {
			duration = windowReadings[i+1].Timestamp.Sub(r.Timestamp).Seconds()
		} else {
			duration = now.Sub(r.Timestamp).Seconds()
		}
		pairs = append(pairs, weightedValue{value: r.Value, duration: duration})
		totalDuration += duration
	}
	if totalDuration <= 0 {
		return lastReading.Value
	}

	slices.SortFunc(pairs, func(a, b weightedValue) int {
		switch {
		case a.value < b.value:
			return -1
		case a.value > b.value:
			return 1
		}
		return 0
	})

	values := make([]float64, len(pairs))
	weights := make([]float64, len(pairs))
	for i, pair := range pairs {
		values[i] = pair.value
		weights[i] = pair.duration
	}
	return stat.Quantile(p, stat.Empirical, values, weights)
}

// medianWindows computes the time-weighted median for each window
func medianWindows(readings Readings, now time.Time) TimeWindows {
	return TimeWindows{
		Min1:  timeWeightedPercentile(readings, 0.5, 1*time.Minute, now),
		Min5:  timeWeightedPercentile(readings, 0.5, 5*time.Minute, now),
		Min15: timeWeightedPercentile(readings, 0.5, 15*time.Minute, now),
	}
}

// trim drops readings older than the stats horizon, always keeping the most recent one
func (r Readings) trim(now time.Time) Readings {
	if len(r) == 0 {
		return r
	}
	cutoff := now.Add(-statsHorizon)
	i := 0
	for i < len(r)-1 && !r[i].Timestamp.After(cutoff) {
		i++
	}
	if i == 0 {
		return r
	}
	return append(r[:0], r[i:]...)
}
