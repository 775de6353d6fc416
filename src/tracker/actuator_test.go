package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountedMover_ClampsToRange(t *testing.T) {
	rig := &fakeRig{speed: 1}
	m := NewCountedMover(rig, CountedMoverConfig{NumMoves: 3, StepDuration: 200 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, m.Step(ctx, Retract))
	assert.Equal(t, 0.0, m.Position())
	assert.Empty(t, rig.drives)

	for range 5 {
		require.NoError(t, m.Step(ctx, Extend))
	}
	assert.Equal(t, 3.0, m.Position())
	assert.True(t, m.AtLimit(Extend))
	assert.Len(t, rig.drives, 3)
	assert.Equal(t, 200*time.Millisecond, rig.on[0])
}

func TestCountedMover_Home(t *testing.T) {
	rig := &fakeRig{speed: 1}
	m := NewCountedMover(rig, CountedMoverConfig{NumMoves: 10, HomeDuration: 20 * time.Second})
	moveTo(t, m, 7)

	require.NoError(t, m.Home(context.Background()))
	assert.Equal(t, 0.0, m.Position())
	assert.Equal(t, Retract, rig.drives[len(rig.drives)-1])
	assert.Equal(t, 20*time.Second, rig.on[len(rig.on)-1])
	assert.True(t, m.AtLimit(Retract))
}

func quickSettle() SettleConfig {
	return SettleConfig{Window: 5, SMADelta: 0.001, PointDelta: 0.05, StableRun: 3}
}

func TestAngleMover_ExactMoveCalibrated(t *testing.T) {
	rig := &fakeRig{angle: 10, speed: 2}
	rec := &fakeRecorder{}
	m := NewAngleMover(rig, rig, rec, AngleMoverConfig{
		DegreesPerSecond: 2,
		Precision:        0.05,
		MaxAttempts:      6,
		Settle:           quickSettle(),
	})

	res, err := m.ExactMove(context.Background(), 1, Extend)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.False(t, res.GaveUp)
	assert.InDelta(t, 1, res.Achieved, 1e-9)
	assert.InDelta(t, 11, m.Position(), 1e-9)
	assert.Equal(t, 1, rec.wobbles)
}

func TestAngleMover_ExactMoveCorrectsOvershoot(t *testing.T) {
	// Actuator runs 50% faster than calibrated, so each attempt overshoots by half the target
	rig := &fakeRig{angle: 10, speed: 1.5}
	m := NewAngleMover(rig, rig, nil, AngleMoverConfig{
		DegreesPerSecond: 1,
		Precision:        0.05,
		MaxAttempts:      6,
		Settle:           quickSettle(),
	})

	res, err := m.ExactMove(context.Background(), 1, Retract)
	require.NoError(t, err)
	assert.False(t, res.GaveUp)
	assert.Equal(t, 5, res.Attempts)
	assert.InDelta(t, 1, res.Achieved, 0.05)
	assert.InDelta(t, 9, m.Position(), 0.05)
	assert.Equal(t, []Direction{Retract, Extend, Retract, Extend, Retract}, rig.drives)
}

func TestAngleMover_ExactMoveGivesUp(t *testing.T) {
	rig := &fakeRig{angle: 0, speed: 1.5}
	m := NewAngleMover(rig, rig, nil, AngleMoverConfig{
		DegreesPerSecond: 1,
		Precision:        0.05,
		MaxAttempts:      3,
		Settle:           quickSettle(),
	})

	res, err := m.ExactMove(context.Background(), 1, Extend)
	require.NoError(t, err)
	assert.True(t, res.GaveUp)
	assert.Equal(t, 3, res.Attempts)
	assert.Len(t, rig.drives, 3)
}

func TestAngleMover_StepRespectsRange(t *testing.T) {
	rig := &fakeRig{angle: 30, speed: 1}
	m := NewAngleMover(rig, rig, nil, AngleMoverConfig{
		StepDegrees:      0.5,
		DegreesPerSecond: 1,
		Precision:        0.05,
		MaxAttempts:      6,
		MinAngle:         0,
		MaxAngle:         30,
		Settle:           quickSettle(),
	})
	require.NoError(t, m.Home(context.Background()))
	rig.drives = nil
	m.angle = 30

	require.NoError(t, m.Step(context.Background(), Extend))
	assert.Empty(t, rig.drives)

	require.NoError(t, m.Step(context.Background(), Retract))
	assert.InDelta(t, 29.5, m.Position(), 1e-9)
}

func TestAngleMover_Home(t *testing.T) {
	rig := &fakeRig{angle: 10, speed: 4}
	m := NewAngleMover(rig, rig, nil, AngleMoverConfig{
		MinAngle:    0,
		HomeChunk:   time.Second,
		HomeTimeout: time.Minute,
		Settle:      quickSettle(),
	})

	require.NoError(t, m.Home(context.Background()))
	assert.Equal(t, []Direction{Retract, Retract, Retract}, rig.drives)
	assert.InDelta(t, -2, m.Position(), 1e-9)
	assert.True(t, m.AtLimit(Retract))
}

func TestAngleMover_HomeTimeout(t *testing.T) {
	rig := &fakeRig{angle: 10, speed: 0} // stalled actuator
	m := NewAngleMover(rig, rig, nil, AngleMoverConfig{
		MinAngle:    0,
		HomeChunk:   4 * time.Second,
		HomeTimeout: 10 * time.Second,
		Settle:      quickSettle(),
	})

	require.NoError(t, m.Home(context.Background()))
	assert.Equal(t, []time.Duration{4 * time.Second, 4 * time.Second, 2 * time.Second}, rig.on)
}

// jitterAngles never stops wobbling
type jitterAngles struct{ n int }

func (j *jitterAngles) Angle(context.Context) (float64, error) {
	j.n++
	return float64(j.n%2) * 5, nil
}

func TestAngleMover_SettleTimeout(t *testing.T) {
	rig := &fakeRig{speed: 1}
	m := NewAngleMover(rig, &jitterAngles{}, nil, AngleMoverConfig{
		DegreesPerSecond: 1,
		Precision:        0.05,
		MaxAttempts:      6,
		SampleInterval:   time.Millisecond,
		SettleTimeout:    20 * time.Millisecond,
		Settle:           quickSettle(),
	})

	_, err := m.ExactMove(context.Background(), 1, Extend)
	assert.ErrorIs(t, err, ErrSettleTimeout)
}

func TestSleepCtx(t *testing.T) {
	assert.NoError(t, sleepCtx(context.Background(), 0))
	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
}
