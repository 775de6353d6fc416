package hardware

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ryansname/suntracker/src/tracker"
)

// SimConfig describes a synthetic panel and reflector
type SimConfig struct {
	MinAngle         float64       // End stop, degrees
	MaxAngle         float64       // End stop, degrees
	DegreesPerSecond float64       // Actuator speed
	PeakAngle        float64       // Reflector angle of maximum gain at start
	PeakDrift        float64       // Degrees per hour the optimum moves as the sun does
	PeakWidth        float64       // Gaussian width of the gain curve, degrees
	BaseMilliwatts   float64       // Panel output without the reflector
	GainMilliwatts   float64       // Extra output with the reflector on the optimum
	CloudDepth       float64       // Fraction of ambient light lost at the bottom of a cloud cycle
	CloudPeriod      time.Duration // Period of the ambient light cycle
	NoiseMilliwatts  float64       // Std dev of sensor noise
	WobbleDegrees    float64       // Oscillation amplitude right after a move
	WobbleDecay      time.Duration // Time constant of the oscillation decay
	TimeScale        float64       // Actuation runs this many times faster than real time
}

// DefaultSimConfig returns a rig with the optimum near the middle of a 0-40° range
func DefaultSimConfig() SimConfig {
	return SimConfig{
		MinAngle:         0,
		MaxAngle:         40,
		DegreesPerSecond: 2,
		PeakAngle:        22,
		PeakDrift:        3,
		PeakWidth:        6,
		BaseMilliwatts:   40000,
		GainMilliwatts:   25000,
		CloudDepth:       0.15,
		CloudPeriod:      7 * time.Minute,
		NoiseMilliwatts:  150,
		WobbleDegrees:    0.6,
		WobbleDecay:      400 * time.Millisecond,
		TimeScale:        1,
	}
}

// SimRig is a simulated actuator, power sensor and inclinometer sharing one reflector
type SimRig struct {
	cfg   SimConfig
	start time.Time
	now   func() time.Time

	mu        sync.Mutex
	angle     float64
	movedAt   time.Time
	energized bool
}

// NewSimRig creates a rig with the reflector resting on the lower end stop
func NewSimRig(cfg SimConfig) *SimRig {
	if cfg.TimeScale <= 0 {
		cfg.TimeScale = 1
	}
	now := time.Now()
	return &SimRig{
		cfg:   cfg,
		start: now,
		now:   time.Now,
		angle: cfg.MinAngle,
	}
}

// Drive moves the reflector at the configured speed, stopping at the end stops
func (r *SimRig) Drive(ctx context.Context, dir tracker.Direction, d time.Duration) error {
	r.mu.Lock()
	r.energized = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.energized = false
		r.mu.Unlock()
	}()

	wall := time.Duration(float64(d) / r.cfg.TimeScale)
	started := r.now()
	var err error
	if wall > 0 {
		timer := time.NewTimer(wall)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	// A cancelled drive still moved for as long as it ran
	ran := d
	if err != nil {
		ran = time.Duration(float64(r.now().Sub(started)) * r.cfg.TimeScale)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.angle += dir.Sign() * r.cfg.DegreesPerSecond * ran.Seconds()
	r.angle = min(max(r.angle, r.cfg.MinAngle), r.cfg.MaxAngle)
	r.movedAt = r.now()
	return err
}

// Off is a no-op; the simulated relays release at the end of every drive
func (r *SimRig) Off() error {
	return nil
}

// Energized reports whether a drive is in progress
func (r *SimRig) Energized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.energized
}

// Angle returns the true angle plus the decaying oscillation left by the last move
func (r *SimRig) Angle(context.Context) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.angle + r.wobble(r.now()), nil
}

// ReadMilliwatts returns panel power for the current reflector angle and ambient light
func (r *SimRig) ReadMilliwatts() (float64, error) {
	r.mu.Lock()
	angle := r.angle
	r.mu.Unlock()

	now := r.now()
	return r.powerAt(angle, now) + rand.NormFloat64()*r.cfg.NoiseMilliwatts, nil
}

// TrueAngle returns the reflector angle without wobble
func (r *SimRig) TrueAngle() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.angle
}

// OptimumAt returns the angle of maximum gain at t
func (r *SimRig) OptimumAt(t time.Time) float64 {
	return r.cfg.PeakAngle + r.cfg.PeakDrift*t.Sub(r.start).Hours()
}

func (r *SimRig) powerAt(angle float64, t time.Time) float64 {
	ambient := 1.0
	if r.cfg.CloudPeriod > 0 {
		phase := 2 * math.Pi * t.Sub(r.start).Seconds() / r.cfg.CloudPeriod.Seconds()
		ambient -= r.cfg.CloudDepth * (1 - math.Cos(phase)) / 2
	}

	gain := 0.0
	if r.cfg.PeakWidth > 0 {
		off := (angle - r.OptimumAt(t)) / r.cfg.PeakWidth
		gain = r.cfg.GainMilliwatts * math.Exp(-off*off)
	}
	return ambient * (r.cfg.BaseMilliwatts + gain)
}

func (r *SimRig) wobble(t time.Time) float64 {
	if r.movedAt.IsZero() || r.cfg.WobbleDecay <= 0 {
		return 0
	}
	elapsed := t.Sub(r.movedAt).Seconds() * r.cfg.TimeScale
	amp := r.cfg.WobbleDegrees * math.Exp(-elapsed/r.cfg.WobbleDecay.Seconds())
	if amp < 1e-4 {
		return 0
	}
	return amp * math.Sin(2*math.Pi*1.5*elapsed)
}
