package main

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ryansname/suntracker/src/hardware"
	"github.com/ryansname/suntracker/src/sampler"
	"github.com/ryansname/suntracker/src/tracker"
)

// rig bundles the actuator, power sensor and inclinometer of one reflector
type rig struct {
	driver  tracker.Driver
	sensor  sampler.Sensor
	angles  tracker.AngleSource
	closers []func() error
}

// openRig opens the Raspberry Pi peripherals, or a simulated rig for HARDWARE=sim
func openRig(cfg Config) (*rig, error) {
	if cfg.Hardware == HardwareSim {
		sim := hardware.NewSimRig(cfg.SimConfig())
		log.Printf("Using simulated rig (optimum near %.1f°)\n", sim.OptimumAt(time.Now()))
		return &rig{driver: sim, sensor: sim, angles: sim}, nil
	}

	if err := hardware.Init(); err != nil {
		return nil, err
	}
	act, err := hardware.OpenGPIOActuator(cfg.RetractPin, cfg.ExtendPin)
	if err != nil {
		return nil, fmt.Errorf("open actuator: %w", err)
	}
	ina, err := hardware.OpenINA219(cfg.INA219Config())
	if err != nil {
		return nil, errors.Join(fmt.Errorf("open power sensor: %w", err), act.Off())
	}
	return &rig{
		driver:  act,
		sensor:  ina,
		angles:  hardware.NewInclinometer(cfg.InclinometerConfig()),
		closers: []func() error{ina.Close},
	}, nil
}

// newMover picks the actuator variant for the configured mode
func (r *rig) newMover(cfg Config, rec tracker.Recorder) tracker.Mover {
	if cfg.ActuatorMode == ActuatorAngle {
		return tracker.NewAngleMover(r.driver, r.angles, rec, cfg.AngleMoverConfig())
	}
	return tracker.NewCountedMover(r.driver, cfg.CountedMoverConfig())
}

// Close de-energizes the actuator and releases the buses
func (r *rig) Close() error {
	errs := []error{r.driver.Off()}
	for _, c := range r.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
