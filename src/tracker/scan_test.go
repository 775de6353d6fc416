package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScan_TriangularProfile(t *testing.T) {
	power := &profilePower{profile: triangle(40)}
	tr, mover, rec := newTestTracker(t, testConfig(), power)

	res, err := tr.Scan(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Found)
	assert.InDelta(t, 40, res.HillPosition, 1)
	assert.Equal(t, 10000.0, res.MaxPower)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, []bool{true}, rec.scans)

	// Stopped retracting once inside the buffer around the hill
	assert.Less(t, mover.Position()-res.HillPosition, tr.cfg.RetBuffer)
	assert.Greater(t, mover.Position(), res.HillPosition)

	state := tr.State()
	assert.Len(t, state.ScanMeasurements, 100*tr.cfg.SamplesPerMove)
	assert.Equal(t, 2200.0, state.StartOfScan) // first sample, one move out from home
	assert.True(t, rec.effOK)
	assert.InDelta(t, triangle(40)(mover.Position(), 0)/2200*100, rec.eff, 1e-9)

	assert.Contains(t, rec.modes, ModeScanReset)
	assert.Contains(t, rec.modes, ModeScanExt)
	assert.Contains(t, rec.modes, ModeScanRet)
	assert.Positive(t, power.hidden)
}

func TestScan_HillAnywhereInRange(t *testing.T) {
	for _, peak := range []float64{10, 25, 60, 85, 100} {
		power := &profilePower{profile: triangle(peak)}
		tr, _, _ := newTestTracker(t, testConfig(), power)

		res, err := tr.Scan(context.Background())
		require.NoError(t, err)
		assert.True(t, res.Found, "peak %v", peak)
		assert.InDelta(t, peak, res.HillPosition, 1, "peak %v", peak)
	}
}

func TestScan_BaselineFromMax(t *testing.T) {
	cfg := testConfig()
	cfg.BaselineFromMax = true
	tr, _, _ := newTestTracker(t, cfg, &profilePower{profile: triangle(40)})

	res, err := tr.Scan(context.Background())
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, res.MaxPower, tr.State().StartOfScan)
}

func TestScan_NotFoundWithinBudget(t *testing.T) {
	cfg := testConfig()
	cfg.RetBuffer = 0
	cfg.BandLow = 2 // unreachable band
	tr, mover, rec := newTestTracker(t, cfg, &profilePower{profile: triangle(40)})

	res, err := tr.Scan(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Equal(t, []bool{false}, rec.scans)
	assert.Equal(t, 0.0, mover.Position())
	assert.Zero(t, tr.State().StartOfScan)
}

func TestScan_NoReadings(t *testing.T) {
	tr, _, rec := newTestTracker(t, testConfig(), staleSensor{})

	res, err := tr.Scan(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Empty(t, tr.State().ScanMeasurements)
	assert.False(t, rec.effOK)
}

func TestScan_ClearsPreviousScan(t *testing.T) {
	tr, _, _ := newTestTracker(t, testConfig(), &profilePower{profile: triangle(40)})
	tr.State().ScanMeasurements = []float64{1, 2, 3}
	tr.State().StartOfScan = 99

	_, err := tr.Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, tr.State().ScanMeasurements, 100*tr.cfg.SamplesPerMove)
	assert.NotEqual(t, 99.0, tr.State().StartOfScan)
}

func TestScan_Cancelled(t *testing.T) {
	cfg := testConfig()
	cfg.SampleInterval = 1
	tr, _, _ := newTestTracker(t, cfg, &profilePower{profile: triangle(40)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tr.Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

type staleSensor struct{}

func (staleSensor) Read(float64, bool) (float64, time.Time, bool) { return 0, time.Time{}, false }

func TestScan_HillAtLowerBoundInAngleMode(t *testing.T) {
	cfg := testConfig()
	cfg.RetBuffer = 0
	cfg.BandLow = 2 // unreachable band
	rig := &fakeRig{speed: 1}
	mover := NewAngleMover(rig, rig, nil, AngleMoverConfig{
		StepDegrees:      0.5,
		DegreesPerSecond: 1,
		Precision:        0.05,
		MaxAttempts:      6,
		MinAngle:         0,
		MaxAngle:         10,
		HomeChunk:        time.Second,
		HomeTimeout:      time.Minute,
		Settle:           quickSettle(),
	})
	rec := &fakeRecorder{}
	tr := New(cfg, mover, &profilePower{profile: triangle(0)}, rec)

	res, err := tr.Scan(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Found)
	assert.InDelta(t, 0.5, res.HillPosition, 1e-9)
	assert.InDelta(t, 0, mover.Position(), 1e-9)
	assert.Equal(t, []bool{true}, rec.scans)
}

func TestScan_HillOnFirstMoveCountsAsFound(t *testing.T) {
	cfg := testConfig()
	cfg.RetBuffer = 0
	cfg.BandLow = 2
	tr, mover, _ := newTestTracker(t, cfg, &profilePower{profile: triangle(0)})

	res, err := tr.Scan(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, 1.0, res.HillPosition)
	assert.Equal(t, 0.0, mover.Position())
}

// cachedPower repeats one reading, like a sampler between polls
type cachedPower struct {
	value float64
	at    time.Time
}

func (c *cachedPower) Read(float64, bool) (float64, time.Time, bool) { return c.value, c.at, true }

func TestSampleBatch_SkipsRepeatedReadings(t *testing.T) {
	power := &cachedPower{value: 1000, at: time.Unix(100, 0)}
	tr, _, _ := newTestTracker(t, testConfig(), power)

	batch, err := tr.sampleBatch(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []float64{1000}, batch)

	batch, err = tr.sampleBatch(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, batch, "reading already taken by the previous batch")

	power.value, power.at = 1200, time.Unix(101, 0)
	batch, err = tr.sampleBatch(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []float64{1200}, batch)
}
