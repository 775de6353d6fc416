package hardware

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ina219"
)

// INA219Config describes the shunt wiring of the panel power sensor
type INA219Config struct {
	Bus           string // I2C bus name, empty for the first bus
	Address       int    // e.g., 0x40
	ShuntMicroOhm int64  // 0.075 V / 100 A shunt is 750 µΩ
	MaxAmps       int64
}

// DefaultINA219Config returns the wiring of the 100 A shunt on the rig
func DefaultINA219Config() INA219Config {
	return INA219Config{
		Address:       0x40,
		ShuntMicroOhm: 750,
		MaxAmps:       100,
	}
}

// INA219 reads panel power through periph's INA219 driver
type INA219 struct {
	bus i2c.BusCloser
	dev *ina219.Dev
}

// OpenINA219 opens the bus and configures the sensor
func OpenINA219(cfg INA219Config) (*INA219, error) {
	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", cfg.Bus, err)
	}
	dev, err := ina219.New(bus, &ina219.Opts{
		Address:       cfg.Address,
		SenseResistor: physic.ElectricResistance(cfg.ShuntMicroOhm) * physic.MicroOhm,
		MaxCurrent:    physic.ElectricCurrent(cfg.MaxAmps) * physic.Ampere,
	})
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("configure ina219 at %#x: %w", cfg.Address, err)
	}
	return &INA219{bus: bus, dev: dev}, nil
}

// ReadMilliwatts returns the power through the shunt. Range overflows come back as
// errors for the sampler to retry.
func (s *INA219) ReadMilliwatts() (float64, error) {
	m, err := s.dev.Sense()
	if err != nil {
		return 0, fmt.Errorf("ina219 sense: %w", err)
	}
	return float64(m.Power) / float64(physic.MilliWatt), nil
}

// Close releases the I2C bus
func (s *INA219) Close() error {
	return s.bus.Close()
}
