// Package sampler polls the panel power sensor in the background and serves the
// latest reading without ever blocking callers on sensor I/O.
package sampler

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ryansname/suntracker/src/telemetry"
)

// Sensor reads instantaneous panel power
type Sensor interface {
	ReadMilliwatts() (float64, error)
}

// Publisher receives every fresh, non-hidden reading
type Publisher interface {
	SetValue(watts, pos float64)
}

// Reading is one immutable sensor observation
type Reading struct {
	Value      float64 // mW
	ObservedAt time.Time
}

// Config holds poll timing
type Config struct {
	Cadence       time.Duration // Poll period, also the age after which a reading is stale
	RetryInterval time.Duration // Delay before re-reading after a sensor error
}

// DefaultConfig returns the timing used on the INA219 rig
func DefaultConfig() Config {
	return Config{
		Cadence:       600 * time.Millisecond,
		RetryInterval: 150 * time.Millisecond,
	}
}

// Sampler owns the sensor. Run is the only writer of the cached reading; Read and Latest
// may be called from any goroutine.
type Sampler struct {
	sensor Sensor
	pub    Publisher
	cfg    Config

	latest atomic.Pointer[Reading]
	now    func() time.Time
	errLog rate.Sometimes
}

// New creates a sampler. pub may be nil.
func New(sensor Sensor, pub Publisher, cfg Config) *Sampler {
	return &Sampler{
		sensor: sensor,
		pub:    pub,
		cfg:    cfg,
		now:    time.Now,
		errLog: rate.Sometimes{First: 3, Interval: 30 * time.Second},
	}
}

// Run polls the sensor at the configured cadence until ctx is cancelled
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Cadence)
	defer ticker.Stop()

	s.poll(ctx)
	for {
		select {
		case <-ticker.C:
			s.poll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// poll reads the sensor, retrying errors at the retry interval, and caches the result
func (s *Sampler) poll(ctx context.Context) {
	for {
		mw, err := s.sensor.ReadMilliwatts()
		if err == nil {
			s.latest.Store(&Reading{Value: mw, ObservedAt: s.now()})
			return
		}

		telemetry.SensorReadErrors.Inc()
		s.errLog.Do(func() {
			log.Printf("Sampler: sensor read failed, retrying in %v: %v\n", s.cfg.RetryInterval, err)
		})

		select {
		case <-time.After(s.cfg.RetryInterval):
		case <-ctx.Done():
			return
		}
	}
}

// Latest returns the cached reading regardless of age
func (s *Sampler) Latest() (Reading, bool) {
	r := s.latest.Load()
	if r == nil {
		return Reading{}, false
	}
	return *r, true
}

// Read returns the cached power in mW and when it was observed, or false when there is no
// reading yet or it is older than the poll cadence. Fresh reads are published with pos unless hidden.
func (s *Sampler) Read(pos float64, hidden bool) (float64, time.Time, bool) {
	r := s.latest.Load()
	if r == nil {
		return 0, time.Time{}, false
	}
	if s.now().Sub(r.ObservedAt) > s.cfg.Cadence {
		return 0, time.Time{}, false
	}
	if !hidden && s.pub != nil {
		s.pub.SetValue(r.Value/1000, pos)
	}
	return r.Value, r.ObservedAt, true
}
