// Package hardware holds the Raspberry Pi side of the rig: the relay-driven linear
// actuator, the INA219 power sensor, the inclinometer client, and a simulated rig
// for running without any of them.
package hardware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/ryansname/suntracker/src/tracker"
)

// Init loads the periph host drivers. Must be called before opening pins or buses.
func Init() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("periph host init: %w", err)
	}
	return nil
}

// GPIOActuator drives the linear actuator through two relay pins, one per direction
type GPIOActuator struct {
	mu  sync.Mutex
	ret gpio.PinIO
	ext gpio.PinIO
}

// OpenGPIOActuator looks up the retract and extend pins by name (e.g., "GPIO20", "GPIO21")
func OpenGPIOActuator(retPin, extPin string) (*GPIOActuator, error) {
	ret := gpioreg.ByName(retPin)
	if ret == nil {
		return nil, fmt.Errorf("retract pin %s not found", retPin)
	}
	ext := gpioreg.ByName(extPin)
	if ext == nil {
		return nil, fmt.Errorf("extend pin %s not found", extPin)
	}
	a := NewGPIOActuator(ret, ext)
	if err := a.Off(); err != nil {
		return nil, err
	}
	return a, nil
}

// NewGPIOActuator wraps already opened pins
func NewGPIOActuator(ret, ext gpio.PinIO) *GPIOActuator {
	return &GPIOActuator{ret: ret, ext: ext}
}

// Drive energizes dir for d, or until ctx is cancelled. The other direction is
// forced low first and the pin is always released before returning.
func (a *GPIOActuator) Drive(ctx context.Context, dir tracker.Direction, d time.Duration) (err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	on, off := a.ext, a.ret
	if dir == tracker.Retract {
		on, off = a.ret, a.ext
	}

	if err := off.Out(gpio.Low); err != nil {
		return fmt.Errorf("release %s: %w", off, err)
	}
	if err := on.Out(gpio.High); err != nil {
		return errors.Join(fmt.Errorf("energize %s: %w", on, err), on.Out(gpio.Low))
	}
	defer func() {
		if lowErr := on.Out(gpio.Low); lowErr != nil {
			err = errors.Join(err, fmt.Errorf("release %s: %w", on, lowErr))
		}
	}()

	if d <= 0 {
		return nil
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

// Off de-energizes both directions
func (a *GPIOActuator) Off() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return errors.Join(a.ret.Out(gpio.Low), a.ext.Out(gpio.Low))
}
