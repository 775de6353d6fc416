package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ryansname/suntracker/src/tracker"
)

// ControlConfig schedules scans and pauses around hill-climb steps
type ControlConfig struct {
	ScanEvery   int           // Hill-climb steps between rescans, 0 never rescans
	OptimaPause time.Duration // Idle time once the climber sits on the optimum, 0 disables
}

// searcher is the part of the tracker the control loop drives
type searcher interface {
	Scan(ctx context.Context) (tracker.ScanResult, error)
	HillClimb(ctx context.Context) (tracker.Decision, error)
	AtOptimum() bool
}

type modeSetter interface {
	SetMode(mode string, probe bool)
}

// controller is the sequential control domain: it owns the tracker and is the only
// goroutine that moves the reflector.
type controller struct {
	cfg       ControlConfig
	search    searcher
	driver    tracker.Driver
	modes     modeSetter
	onEnabled func(enabled bool)

	enabled  bool
	needScan bool
	steps    int
}

func newController(cfg ControlConfig, search searcher, driver tracker.Driver, modes modeSetter, onEnabled func(bool)) *controller {
	if onEnabled == nil {
		onEnabled = func(bool) {}
	}
	return &controller{
		cfg:       cfg,
		search:    search,
		driver:    driver,
		modes:     modes,
		onEnabled: onEnabled,
		enabled:   true,
		needScan:  true,
	}
}

// controlWorker scans, hill-climbs and pauses until ctx is done. The returned error is
// a hardware failure that leaves the rig in an unknown state.
func controlWorker(ctx context.Context, cmdChan <-chan Command, c *controller) error {
	log.Println("Control loop started")
	defer log.Println("Control loop stopped")

	for {
		c.drain(cmdChan)
		if ctx.Err() != nil {
			return nil
		}

		var err error
		switch {
		case !c.enabled:
			err = c.idle(ctx, cmdChan)
		case c.needScan:
			err = c.scan(ctx)
		default:
			err = c.step(ctx)
			if err == nil && !c.needScan && c.cfg.OptimaPause > 0 && c.search.AtOptimum() {
				c.pause(ctx, cmdChan)
			}
		}

		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (c *controller) apply(cmd Command) {
	switch cmd {
	case CommandEnable:
		if !c.enabled {
			log.Println("Tracker enabled")
			c.enabled = true
			c.needScan = true
			c.onEnabled(true)
		}
	case CommandDisable:
		if c.enabled {
			log.Println("Tracker disabled")
			c.enabled = false
			c.onEnabled(false)
		}
	case CommandRescan:
		log.Println("Rescan requested")
		c.needScan = true
	}
}

// drain applies any queued commands without blocking
func (c *controller) drain(cmdChan <-chan Command) {
	for {
		select {
		case cmd := <-cmdChan:
			c.apply(cmd)
		default:
			return
		}
	}
}

// idle releases the actuator and waits for the next command
func (c *controller) idle(ctx context.Context, cmdChan <-chan Command) error {
	c.modes.SetMode(tracker.ModeDisabled, false)
	if err := c.driver.Off(); err != nil {
		return fmt.Errorf("release actuator: %w", err)
	}
	select {
	case cmd := <-cmdChan:
		c.apply(cmd)
	case <-ctx.Done():
	}
	return nil
}

// scan runs one full scan. A scan that does not localize the hill is retried on the
// next pass.
func (c *controller) scan(ctx context.Context) error {
	res, err := c.search.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	if !res.Found {
		log.Printf("Scan %s did not localize the hill, retrying\n", res.ID)
		return nil
	}
	c.needScan = false
	c.steps = 0
	return nil
}

func (c *controller) step(ctx context.Context) error {
	if _, err := c.search.HillClimb(ctx); err != nil {
		return fmt.Errorf("hill climb: %w", err)
	}
	c.steps++
	if c.cfg.ScanEvery > 0 && c.steps >= c.cfg.ScanEvery {
		c.needScan = true
	}
	return nil
}

// pause idles on the optimum. Commands that need the loop end the pause early.
func (c *controller) pause(ctx context.Context, cmdChan <-chan Command) {
	c.modes.SetMode(tracker.ModeOptimaPause, false)
	log.Printf("At optimum, pausing for %v\n", c.cfg.OptimaPause)

	timer := time.NewTimer(c.cfg.OptimaPause)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			return
		case cmd := <-cmdChan:
			c.apply(cmd)
			if !c.enabled || c.needScan {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
