package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeRig is an actuator and inclinometer in one: driving moves the angle at speed deg/s
type fakeRig struct {
	angle  float64
	speed  float64
	drives []Direction
	on     []time.Duration
}

func (r *fakeRig) Drive(_ context.Context, dir Direction, d time.Duration) error {
	r.drives = append(r.drives, dir)
	r.on = append(r.on, d)
	r.angle += dir.Sign() * r.speed * d.Seconds()
	return nil
}

func (r *fakeRig) Off() error { return nil }

func (r *fakeRig) Angle(context.Context) (float64, error) { return r.angle, nil }

type fakeRecorder struct {
	modes     []string
	positions []float64
	decisions []string
	scans     []bool
	wobbles   int
	eff       float64
	effOK     bool
}

func (r *fakeRecorder) SetMode(mode string, _ bool) { r.modes = append(r.modes, mode) }
func (r *fakeRecorder) SetPosition(pos float64) { r.positions = append(r.positions, pos) }
func (r *fakeRecorder) SetEfficiency(pct float64, ok bool) { r.eff, r.effOK = pct, ok }
func (r *fakeRecorder) RecordDecision(decision string) { r.decisions = append(r.decisions, decision) }
func (r *fakeRecorder) RecordScan(_ string, found bool) { r.scans = append(r.scans, found) }
func (r *fakeRecorder) RecordWobble(_, _ time.Duration) { r.wobbles++ }

// profilePower returns power as a function of position and of how many reads came before
type profilePower struct {
	profile func(pos float64, reads int) float64
	reads   int
	hidden  int
}

func (p *profilePower) Read(pos float64, hidden bool) (float64, time.Time, bool) {
	p.reads++
	if hidden {
		p.hidden++
	}
	return p.profile(pos, p.reads), time.Unix(0, int64(p.reads)), true
}

// triangle peaks at peak with 10 W and falls 200 mW per move, floored at 0.5 W
func triangle(peak float64) func(float64, int) float64 {
	return func(pos float64, _ int) float64 {
		d := pos - peak
		if d < 0 {
			d = -d
		}
		return max(10000-200*d, 500)
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SampleInterval = 0
	cfg.RetryInterval = 0
	return cfg
}

func newTestTracker(t *testing.T, cfg Config, power PowerReader) (*Tracker, *CountedMover, *fakeRecorder) {
	t.Helper()
	mover := NewCountedMover(&fakeRig{speed: 1}, CountedMoverConfig{NumMoves: cfg.NumMoves})
	rec := &fakeRecorder{}
	return New(cfg, mover, power, rec), mover, rec
}

// moveTo steps a counted mover out from home to pos
func moveTo(t *testing.T, m *CountedMover, pos int) {
	t.Helper()
	for range pos {
		require.NoError(t, m.Step(context.Background(), Extend))
	}
	require.Equal(t, float64(pos), m.Position())
}
