// Package telemetry holds the controller's published state. The control loop and the
// sampler write into a Metrics; HTTP, MQTT and the debug console read value snapshots.
package telemetry

import (
	"math"
	"slices"
	"sync"
	"time"
)

// Metrics is safe for concurrent use
type Metrics struct {
	mu  sync.RWMutex
	now func() time.Time

	started    bool
	value      float64 // W
	observedAt time.Time
	readings   Readings

	mode       string
	pos        float64
	isProbe    bool
	isDecision bool
	decision   string
	recent     []string // last recentDecisions decisions, oldest first

	efficiency    float64
	hasEfficiency bool

	wobble    [3]float64
	hasWobble bool

	scanID    string
	scanFound bool
	scans     int
}

const recentDecisions = 16

// NewMetrics creates an empty metrics holder
func NewMetrics() *Metrics {
	return &Metrics{now: time.Now}
}

// SetValue records a published power reading (watts) at pos
func (m *Metrics) SetValue(watts, pos float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.started = true
	m.value = watts
	m.observedAt = now
	m.pos = pos
	m.readings = append(m.readings, Reading{Value: watts, Timestamp: now}).trim(now)

	PowerWatts.Set(watts)
	Position.Set(pos)
}

// SetMode records what the controller is doing. probe marks a hill-climb trial move.
func (m *Metrics) SetMode(mode string, probe bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
	m.isProbe = probe
	m.isDecision = false
}

// SetPosition records a reflector move
func (m *Metrics) SetPosition(pos float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pos = pos
	Position.Set(pos)
}

// SetEfficiency records the gain over baseline, or clears it when ok is false
func (m *Metrics) SetEfficiency(pct float64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.efficiency = pct
	m.hasEfficiency = ok
	if ok {
		EfficiencyPercent.Set(pct)
	} else {
		EfficiencyPercent.Set(math.NaN())
	}
}

// RecordDecision records a completed hill-climb step
func (m *Metrics) RecordDecision(decision string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decision = decision
	m.isDecision = true
	m.recent = append(m.recent, decision)
	if len(m.recent) > recentDecisions {
		m.recent = m.recent[len(m.recent)-recentDecisions:]
	}
	Decisions.WithLabelValues(decision).Inc()
}

// RecordScan records a completed scan attempt
func (m *Metrics) RecordScan(id string, found bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanID = id
	m.scanFound = found
	m.scans++
	if found {
		Scans.WithLabelValues("found").Inc()
	} else {
		Scans.WithLabelValues("not_found").Inc()
	}
}

// RecordWobble records how long a move took and how long the reflector wobbled after it
func (m *Metrics) RecordWobble(move, settle time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pct float64
	if total := move + settle; total > 0 {
		pct = settle.Seconds() / total.Seconds() * 100
	}
	m.wobble = [3]float64{move.Seconds(), settle.Seconds(), pct}
	m.hasWobble = true
	SettleSeconds.Observe(settle.Seconds())
}

// Snapshot returns a copy of the current state
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	return Snapshot{
		Started:       m.started,
		Value:         m.value,
		ObservedAt:    m.observedAt,
		Mode:          m.mode,
		Position:      m.pos,
		IsProbe:       m.isProbe,
		IsDecision:    m.isDecision,
		LastDecision:  m.decision,
		Decisions:     slices.Clone(m.recent),
		Efficiency:    m.efficiency,
		HasEfficiency: m.hasEfficiency,
		Wobble:        m.wobble,
		HasWobble:     m.hasWobble,
		ScanID:        m.scanID,
		ScanFound:     m.scanFound,
		Scans:         m.scans,
		PowerP50:      medianWindows(m.readings, now),
		TakenAt:       now,
	}
}
