package tracker

import "log"

// State is the mutable aggregate owned by the control loop. Only the loop writes it;
// other goroutines see it through telemetry snapshots.
type State struct {
	Position           float64
	AttemptedDirection Direction
	History            *DecisionHistory

	// Power samples (mW) from the most recent scan, cleared when a new scan starts
	ScanMeasurements []float64
	// Baseline power (mW) efficiency is measured against, 0 when unset
	StartOfScan float64

	Efficiency    float64
	HasEfficiency bool

	lastSuppression string
}

// NewState creates the initial state with a history window of optimaSamples decisions
func NewState(optimaSamples int) *State {
	return &State{
		AttemptedDirection: Extend,
		History:            NewDecisionHistory(optimaSamples),
	}
}

// resetScan clears everything derived from the previous scan
func (s *State) resetScan() {
	s.ScanMeasurements = s.ScanMeasurements[:0]
	s.StartOfScan = 0
	s.Efficiency = 0
	s.HasEfficiency = false
	s.lastSuppression = ""
}

// UpdateEfficiency recomputes the gain for a new power observation (mW).
// Degenerate scans leave the efficiency unset; the reason is logged once per change.
func (s *State) UpdateEfficiency(power float64) (float64, bool) {
	pct, reason := efficiencyFor(s.ScanMeasurements, s.StartOfScan, power)
	if reason != "" {
		if reason != s.lastSuppression {
			log.Printf("Efficiency suppressed: %s\n", reason)
			s.lastSuppression = reason
		}
		return s.Efficiency, s.HasEfficiency
	}

	s.lastSuppression = ""
	s.Efficiency = pct
	s.HasEfficiency = true
	return pct, true
}
