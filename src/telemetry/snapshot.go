package telemetry

import "time"

// Snapshot is an immutable copy of Metrics
type Snapshot struct {
	Started    bool // A power reading has been published
	Value      float64
	ObservedAt time.Time

	Mode         string
	Position     float64
	IsProbe      bool
	IsDecision   bool
	LastDecision string
	Decisions    []string // Recent decisions, oldest first

	Efficiency    float64
	HasEfficiency bool

	Wobble    [3]float64 // move seconds, settle seconds, settle share of the move in %
	HasWobble bool

	ScanID    string
	ScanFound bool
	Scans     int

	PowerP50 TimeWindows
	TakenAt  time.Time
}

// Age returns how old the power value was when the snapshot was taken
func (s Snapshot) Age() time.Duration {
	return s.TakenAt.Sub(s.ObservedAt)
}

// Payload renders the snapshot as the JSON object the visualizer reads
func (s Snapshot) Payload() map[string]any {
	if !s.Started {
		return map[string]any{"starting": true}
	}

	p := map[string]any{
		"value":       s.Value,
		"age":         s.Age().Seconds(),
		"mode":        s.Mode,
		"pos":         s.Position,
		"is_probe":    s.IsProbe,
		"is_decision": s.IsDecision,
		"power_p50": map[string]float64{
			"1m":  s.PowerP50.Min1,
			"5m":  s.PowerP50.Min5,
			"15m": s.PowerP50.Min15,
		},
	}
	if s.IsDecision {
		p["decision"] = s.LastDecision
	}
	if s.HasEfficiency {
		p["efficiency_pct"] = s.Efficiency
	}
	if s.HasWobble {
		p["wobble_data"] = s.Wobble[:]
	}
	if s.ScanID != "" {
		p["scan_id"] = s.ScanID
	}
	return p
}
