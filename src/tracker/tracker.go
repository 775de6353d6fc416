package tracker

import (
	"context"
	"log"
	"time"
)

// PowerReader serves cached power readings in milliwatts. ok is false when there is no
// fresh reading. Repeated reads between sensor polls return the same observedAt.
// Hidden reads are not published to telemetry.
type PowerReader interface {
	Read(pos float64, hidden bool) (milliwatts float64, observedAt time.Time, ok bool)
}

// Recorder receives controller progress for telemetry
type Recorder interface {
	SetMode(mode string, probe bool)
	SetPosition(pos float64)
	SetEfficiency(pct float64, ok bool)
	RecordDecision(decision string)
	RecordScan(id string, found bool)
	RecordWobble(move, settle time.Duration)
}

// Config holds the search tunables
type Config struct {
	NumMoves        int           // Steps in a full scan sweep
	SamplesPerMove  int           // Power samples taken after each scan step
	SampleInterval  time.Duration // Delay between scan samples
	RetryInterval   time.Duration // Delay before re-reading when no fresh reading is available
	OutlierCutoff   float64       // Median band multiplier (e.g., 1.2)
	RetBuffer       float64       // Localization zone half-width around the hill, in position units
	BandLow         float64       // Localization power band, fraction of scan max (e.g., 0.8)
	BandHigh        float64       // (e.g., 1.2)
	BaselineFromMax bool          // Use the scan max instead of the first sample as baseline
	ConfirmRatio    float64       // Anti-improvement probe must recover this share of the delta (e.g., 0.9)
	OptimaSamples   int           // Decision history length
}

// DefaultConfig returns the tunables for a 100 move timed actuator
func DefaultConfig() Config {
	return Config{
		NumMoves:       100,
		SamplesPerMove: 10,
		SampleInterval: 20 * time.Millisecond,
		RetryInterval:  100 * time.Millisecond,
		OutlierCutoff:  DefaultOutlierCutoff,
		RetBuffer:      15,
		BandLow:        0.8,
		BandHigh:       1.2,
		ConfirmRatio:   0.9,
		OptimaSamples:  8,
	}
}

// Tracker runs scans and hill-climb steps. It is not safe for concurrent use; the
// control loop is its only caller.
type Tracker struct {
	cfg   Config
	mover Mover
	power PowerReader
	rec   Recorder
	state *State

	lastSampled time.Time // Observation time of the newest reading taken into a batch
}

// New creates a tracker driving mover and reading from power
func New(cfg Config, mover Mover, power PowerReader, rec Recorder) *Tracker {
	return &Tracker{
		cfg:   cfg,
		mover: mover,
		power: power,
		rec:   rec,
		state: NewState(cfg.OptimaSamples),
	}
}

// State exposes the tracker state for inspection by the control loop
func (t *Tracker) State() *State {
	return t.state
}

// AtOptimum reports whether recent decisions net out to no movement
func (t *Tracker) AtOptimum() bool {
	return t.state.History.AtOptimum()
}

// measure blocks until a fresh reading is available
func (t *Tracker) measure(ctx context.Context, hidden bool) (float64, error) {
	for {
		if v, _, ok := t.power.Read(t.mover.Position(), hidden); ok {
			return v, nil
		}
		if err := sleepCtx(ctx, t.cfg.RetryInterval); err != nil {
			return 0, err
		}
	}
}

// observe measures and feeds the reading to the efficiency tracker
func (t *Tracker) observe(ctx context.Context) (float64, error) {
	v, err := t.measure(ctx, false)
	if err != nil {
		return 0, err
	}
	t.rec.SetEfficiency(t.state.UpdateEfficiency(v))
	return v, nil
}

// sampleBatch polls SamplesPerMove times and filters outliers. Stale readings and
// readings already seen by an earlier poll are skipped.
func (t *Tracker) sampleBatch(ctx context.Context, hidden bool) ([]float64, error) {
	batch := make([]float64, 0, t.cfg.SamplesPerMove)
	for range t.cfg.SamplesPerMove {
		if v, at, ok := t.power.Read(t.mover.Position(), hidden); ok && at.After(t.lastSampled) {
			t.lastSampled = at
			batch = append(batch, v)
		}
		if err := sleepCtx(ctx, t.cfg.SampleInterval); err != nil {
			return nil, err
		}
	}
	return FilterOutliers(batch, t.cfg.OutlierCutoff), nil
}

// move steps once and publishes the new position
func (t *Tracker) move(ctx context.Context, dir Direction) error {
	if err := t.mover.Step(ctx, dir); err != nil {
		return err
	}
	t.state.Position = t.mover.Position()
	t.rec.SetPosition(t.state.Position)
	return nil
}

// probe is a hill-climb move, published as a probe in the given direction
func (t *Tracker) probe(ctx context.Context, dir Direction) error {
	t.rec.SetMode(hillClimbMode(dir), true)
	defer t.rec.SetMode(ModeHillClimb, false)
	return t.move(ctx, dir)
}

func (t *Tracker) logf(format string, args ...any) {
	log.Printf("Tracker: "+format+"\n", args...)
}
