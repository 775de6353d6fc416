package tracker

import "math"

// SettleConfig holds the thresholds for deciding an actuator move has stopped wobbling
type SettleConfig struct {
	Window     int     // Rolling mean window in samples (e.g., 300)
	SMADelta   float64 // Max change between consecutive rolling means, degrees (e.g., 0.001)
	PointDelta float64 // Max distance of a raw sample from its rolling mean, degrees (e.g., 0.05)
	StableRun  int     // Trailing samples that must all be stable (e.g., 50)
}

// DefaultSettleConfig returns the thresholds tuned against the SCL3300 inclinometer
func DefaultSettleConfig() SettleConfig {
	return SettleConfig{
		Window:     300,
		SMADelta:   0.001,
		PointDelta: 0.05,
		StableRun:  50,
	}
}

// SettleDetector consumes an angle stream one sample at a time and reports when
// the reflector has physically stopped moving.
//
// A sample is stable when:
//  1. its rolling mean moved no more than SMADelta from the previous rolling mean, and
//  2. the raw sample is within PointDelta of its own rolling mean.
//
// The series is settled once the last StableRun samples are all stable. The first
// sample never counts as stable since there is no previous mean to compare against.
type SettleDetector struct {
	cfg SettleConfig

	window    []float64 // ring buffer of the last cfg.Window samples
	next      int
	filled    int
	prevSMA   float64
	samples   int
	stableRun int
}

// NewSettleDetector creates a detector with the given thresholds
func NewSettleDetector(cfg SettleConfig) *SettleDetector {
	if cfg.Window < 1 {
		cfg.Window = 1
	}
	if cfg.StableRun < 1 {
		cfg.StableRun = 1
	}
	return &SettleDetector{
		cfg:    cfg,
		window: make([]float64, cfg.Window),
	}
}

// Add records a new angle sample and returns whether the series is now settled
func (d *SettleDetector) Add(angle float64) bool {
	d.window[d.next] = angle
	d.next = (d.next + 1) % len(d.window)
	if d.filled < len(d.window) {
		d.filled++
	}

	// Shrinking window for the first samples so early data still averages
	var sum float64
	for i := 0; i < d.filled; i++ {
		sum += d.window[i]
	}
	sma := sum / float64(d.filled)

	stable := d.samples > 0 &&
		math.Abs(sma-d.prevSMA) <= d.cfg.SMADelta &&
		math.Abs(angle-sma) <= d.cfg.PointDelta

	if stable {
		d.stableRun++
	} else {
		d.stableRun = 0
	}

	d.prevSMA = sma
	d.samples++
	return d.Settled()
}

// Settled reports whether the trailing StableRun samples were all stable
func (d *SettleDetector) Settled() bool {
	return d.stableRun >= d.cfg.StableRun
}

// Samples returns how many angles have been added since the last reset
func (d *SettleDetector) Samples() int {
	return d.samples
}

// Reset clears all history so the detector can follow a new move
func (d *SettleDetector) Reset() {
	clear(d.window)
	d.next = 0
	d.filled = 0
	d.prevSMA = 0
	d.samples = 0
	d.stableRun = 0
}

// IsSettled evaluates a complete angle series in one go
func IsSettled(series []float64, cfg SettleConfig) bool {
	d := NewSettleDetector(cfg)
	for _, a := range series {
		d.Add(a)
	}
	return d.Settled()
}
