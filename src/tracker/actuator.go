package tracker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"
)

// ErrSettleTimeout is returned when the reflector keeps wobbling past the settle timeout
var ErrSettleTimeout = errors.New("reflector did not settle")

// Driver energizes the actuator in one direction for a fixed duration.
// Implementations must never energize both directions at once.
type Driver interface {
	Drive(ctx context.Context, dir Direction, d time.Duration) error
	Off() error
}

// AngleSource reports the current reflector angle in degrees
type AngleSource interface {
	Angle(ctx context.Context) (float64, error)
}

// Mover moves the reflector in unit steps and tracks where it is
type Mover interface {
	Step(ctx context.Context, dir Direction) error
	// Home drives to the lower extreme of the range
	Home(ctx context.Context) error
	Position() float64
	LowerBound() float64
	AtLimit(dir Direction) bool
}

// CountedMoverConfig holds configuration for the timed, move-counting actuator
type CountedMoverConfig struct {
	NumMoves     int           // Steps across the full range
	StepDuration time.Duration // Actuator on-time per step
	HomeDuration time.Duration // Retract on-time that guarantees the lower extreme
	SettleDelay  time.Duration // Pause after each step before power is trusted
}

// CountedMover tracks position as a move count in [0, NumMoves]. Moves past
// either end are ignored rather than driven into the end stop.
type CountedMover struct {
	driver Driver
	cfg    CountedMoverConfig
	pos    int
}

// NewCountedMover creates a timed mover over driver
func NewCountedMover(driver Driver, cfg CountedMoverConfig) *CountedMover {
	return &CountedMover{driver: driver, cfg: cfg}
}

// Step pulses the actuator once in dir
func (m *CountedMover) Step(ctx context.Context, dir Direction) error {
	if m.AtLimit(dir) {
		return nil
	}
	if err := m.driver.Drive(ctx, dir, m.cfg.StepDuration); err != nil {
		return fmt.Errorf("step %s: %w", dir, err)
	}
	if dir == Extend {
		m.pos++
	} else {
		m.pos--
	}
	return sleepCtx(ctx, m.cfg.SettleDelay)
}

// Home retracts for the full home duration and zeroes the move count
func (m *CountedMover) Home(ctx context.Context) error {
	if err := m.driver.Drive(ctx, Retract, m.cfg.HomeDuration); err != nil {
		return fmt.Errorf("home: %w", err)
	}
	m.pos = 0
	return sleepCtx(ctx, m.cfg.SettleDelay)
}

func (m *CountedMover) Position() float64 { return float64(m.pos) }

func (m *CountedMover) LowerBound() float64 { return 0 }

// AtLimit reports whether another step in dir would leave the range
func (m *CountedMover) AtLimit(dir Direction) bool {
	if dir == Extend {
		return m.pos >= m.cfg.NumMoves
	}
	return m.pos <= 0
}

// AngleMoverConfig holds configuration for the inclinometer-corrected actuator
type AngleMoverConfig struct {
	StepDegrees      float64       // Target angle change per step
	DegreesPerSecond float64       // Calibrated actuator speed used to time moves
	Precision        float64       // Exact-move tolerance in degrees (e.g., 0.05)
	MaxAttempts      int           // Correction attempts before giving up
	MinAngle         float64       // Lower end of the usable range
	MaxAngle         float64       // Upper end of the usable range
	HomeChunk        time.Duration // Retract on-time between angle checks while homing
	HomeTimeout      time.Duration // Upper bound on total homing drive time
	SampleInterval   time.Duration // Delay between inclinometer reads while settling
	SettleTimeout    time.Duration // 0 waits forever
	Settle           SettleConfig
}

// MoveResult describes the outcome of an exact move
type MoveResult struct {
	Target   float64 // Requested angle change, degrees
	Achieved float64 // Net angle change in the requested direction
	Attempts int
	GaveUp   bool // Still outside Precision after MaxAttempts
}

// AngleMover steps the reflector by fixed angles, correcting each move against
// the inclinometer once the reflector has stopped wobbling.
type AngleMover struct {
	driver Driver
	angles AngleSource
	rec    Recorder
	cfg    AngleMoverConfig
	angle  float64
}

// NewAngleMover creates an angle-feedback mover
func NewAngleMover(driver Driver, angles AngleSource, rec Recorder, cfg AngleMoverConfig) *AngleMover {
	cfg.MaxAttempts = max(cfg.MaxAttempts, 1)
	return &AngleMover{
		driver: driver,
		angles: angles,
		rec:    rec,
		cfg:    cfg,
	}
}

// Step moves StepDegrees in dir, unless already at that end of the range
func (m *AngleMover) Step(ctx context.Context, dir Direction) error {
	if m.AtLimit(dir) {
		return nil
	}
	res, err := m.ExactMove(ctx, m.cfg.StepDegrees, dir)
	if err != nil {
		return fmt.Errorf("step %s: %w", dir, err)
	}
	if res.GaveUp {
		log.Printf("Exact move gave up after %d attempts: wanted %.3f°, got %.3f°\n",
			res.Attempts, res.Target, res.Achieved)
	}
	return nil
}

// Home retracts in chunks until the angle reaches MinAngle or HomeTimeout is used up
func (m *AngleMover) Home(ctx context.Context) error {
	var driven time.Duration
	for {
		angle, err := m.angles.Angle(ctx)
		if err != nil {
			return fmt.Errorf("home: %w", err)
		}
		m.angle = angle
		if angle <= m.cfg.MinAngle || driven >= m.cfg.HomeTimeout {
			break
		}
		chunk := min(m.cfg.HomeChunk, m.cfg.HomeTimeout-driven)
		if err := m.driver.Drive(ctx, Retract, chunk); err != nil {
			return fmt.Errorf("home: %w", err)
		}
		driven += chunk
	}

	angle, err := m.waitSettled(ctx, 0)
	if err != nil {
		return fmt.Errorf("home: %w", err)
	}
	m.angle = angle
	return nil
}

func (m *AngleMover) Position() float64 { return m.angle }

func (m *AngleMover) LowerBound() float64 { return m.cfg.MinAngle }

// AtLimit reports whether the reflector is already at the end of the range in dir
func (m *AngleMover) AtLimit(dir Direction) bool {
	if dir == Extend {
		return m.angle >= m.cfg.MaxAngle
	}
	return m.angle <= m.cfg.MinAngle
}

// ExactMove changes the angle by target degrees in dir. Each attempt times the actuator
// from the calibrated speed, waits for the wobble to stop, and measures the result.
// Overshoot reverses direction for the next attempt. After MaxAttempts the move is
// abandoned with GaveUp set; the reflector stays wherever it ended up.
func (m *AngleMover) ExactMove(ctx context.Context, target float64, dir Direction) (MoveResult, error) {
	res := MoveResult{Target: target}

	start, err := m.angles.Angle(ctx)
	if err != nil {
		return res, err
	}

	before := start
	remaining := target
	current := dir

	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		res.Attempts = attempt

		duration := time.Duration(remaining / m.cfg.DegreesPerSecond * float64(time.Second))
		moveStart := time.Now()
		if err := m.driver.Drive(ctx, current, duration); err != nil {
			return res, err
		}
		moveTime := time.Since(moveStart)

		after, err := m.waitSettled(ctx, moveTime)
		if err != nil {
			return res, err
		}
		m.angle = after
		res.Achieved = (after - start) * dir.Sign()

		// Error is measured along the direction of this attempt
		progress := (after - before) * current.Sign()
		moveErr := remaining - progress
		if math.Abs(moveErr) < m.cfg.Precision {
			return res, nil
		}
		if moveErr < 0 {
			current = current.Opposite()
		}
		remaining = math.Abs(moveErr)
		before = after
	}

	res.GaveUp = true
	return res, nil
}

// waitSettled blocks until the inclinometer stream stops wobbling and returns the
// last angle read. moveTime is the actuation that preceded it, for wobble telemetry.
func (m *AngleMover) waitSettled(ctx context.Context, moveTime time.Duration) (float64, error) {
	detector := NewSettleDetector(m.cfg.Settle)
	start := time.Now()

	for {
		angle, err := m.angles.Angle(ctx)
		if err != nil {
			return 0, err
		}
		if detector.Add(angle) {
			settleTime := time.Since(start)
			if m.rec != nil {
				m.rec.RecordWobble(moveTime, settleTime)
			}
			return angle, nil
		}
		if m.cfg.SettleTimeout > 0 && time.Since(start) > m.cfg.SettleTimeout {
			return 0, fmt.Errorf("%w after %v (%d samples)", ErrSettleTimeout, m.cfg.SettleTimeout, detector.Samples())
		}
		if err := sleepCtx(ctx, m.cfg.SampleInterval); err != nil {
			return 0, err
		}
	}
}

// sleepCtx waits for d or until ctx is done. Non-positive durations return immediately.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
