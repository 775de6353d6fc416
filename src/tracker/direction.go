// Package tracker implements the reflector position search: full-range scans to find the
// power maximum, and a noise-robust hill climb to follow it between scans.
package tracker

// Direction is the way the linear actuator moves the reflector
type Direction int

const (
	Extend Direction = iota
	Retract
)

// Opposite returns the other direction
func (d Direction) Opposite() Direction {
	if d == Extend {
		return Retract
	}
	return Extend
}

// Sign is +1 for extend and -1 for retract, matching the direction positions grow in
func (d Direction) Sign() float64 {
	if d == Extend {
		return 1
	}
	return -1
}

func (d Direction) String() string {
	if d == Extend {
		return "ext"
	}
	return "ret"
}

// Decision is the outcome of one hill-climb step
type Decision int

const (
	DecisionStay Decision = iota
	DecisionExtend
	DecisionRetract
)

// DecisionFor returns the decision that commits to moving in dir
func DecisionFor(dir Direction) Decision {
	if dir == Extend {
		return DecisionExtend
	}
	return DecisionRetract
}

func (d Decision) String() string {
	switch d {
	case DecisionExtend:
		return "extend"
	case DecisionRetract:
		return "retract"
	default:
		return "stay"
	}
}

// Modes published to telemetry. The visualizer keys its drawing off these strings.
const (
	ModeHillClimb    = "hill-climb"
	ModeHillClimbRet = "hill-climb-ret"
	ModeHillClimbExt = "hill-climb-ext"
	ModeScanReset    = "scan-reset"
	ModeScanExt      = "scan-ext"
	ModeScanRet      = "scan-ret"
	ModeOptimaPause  = "optima-pause"
	ModeDisabled     = "disabled"
)

// hillClimbMode returns the probe mode for a move in dir
func hillClimbMode(dir Direction) string {
	if dir == Extend {
		return ModeHillClimbExt
	}
	return ModeHillClimbRet
}
