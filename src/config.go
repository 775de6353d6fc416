package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ryansname/suntracker/src/hardware"
	"github.com/ryansname/suntracker/src/sampler"
	"github.com/ryansname/suntracker/src/tracker"
)

// Hardware backends
const (
	HardwareGPIO = "gpio"
	HardwareSim  = "sim"
)

// Actuator modes
const (
	ActuatorTimed = "timed" // Position is a move count
	ActuatorAngle = "angle" // Position is the inclinometer angle
)

// Tunables are the search parameters. They load from TUNABLES_FILE when set and any
// matching environment variable overrides the file.
type Tunables struct {
	MeasureSleep   time.Duration `yaml:"measure_sleep"`
	SensorRetry    time.Duration `yaml:"sensor_retry"`
	ScanDuration   time.Duration `yaml:"scan_duration"`
	ScanNumMoves   int           `yaml:"scan_num_moves"`
	SamplesPerMove int           `yaml:"samples_per_move"`
	SampleInterval time.Duration `yaml:"sample_interval"`
	ScanEvery      int           `yaml:"scan_every"`
	OptimaSamples  int           `yaml:"optima_samples"`
	OptimaPause    time.Duration `yaml:"optima_pause"`

	OutlierCutoff   float64 `yaml:"outlier_cutoff"`
	RetBufferRatio  float64 `yaml:"ret_buffer_ratio"`
	AngleTolerance  float64 `yaml:"angle_tolerance"`
	BandLow         float64 `yaml:"localize_band_low"`
	BandHigh        float64 `yaml:"localize_band_high"`
	ConfirmRatio    float64 `yaml:"confirm_ratio"`
	BaselineFromMax *bool   `yaml:"baseline_from_max"` // nil picks the actuator mode's default

	StepDegrees      float64 `yaml:"step_degrees"`
	DegreesPerSecond float64 `yaml:"degrees_per_second"`
	Precision        float64 `yaml:"exact_move_precision"`
	MaxAttempts      int     `yaml:"exact_move_max_attempts"`
	MinAngle         float64 `yaml:"min_angle"`
	MaxAngle         float64 `yaml:"max_angle"`

	Settle SettleTunables `yaml:"settle"`
}

// SettleTunables configure the wobble detector used in angle mode
type SettleTunables struct {
	Window         int           `yaml:"window"`
	SMADelta       float64       `yaml:"sma_delta"`
	PointDelta     float64       `yaml:"point_delta"`
	StableRun      int           `yaml:"stable_run"`
	SampleInterval time.Duration `yaml:"sample_interval"`
	Timeout        time.Duration `yaml:"timeout"`
}

// DefaultTunables returns the values the rig was commissioned with
func DefaultTunables() Tunables {
	settle := tracker.DefaultSettleConfig()
	return Tunables{
		MeasureSleep:   600 * time.Millisecond,
		SensorRetry:    150 * time.Millisecond,
		ScanDuration:   20 * time.Second,
		ScanNumMoves:   100,
		SamplesPerMove: 10,
		SampleInterval: 20 * time.Millisecond,
		ScanEvery:      20,
		OptimaSamples:  8,
		OptimaPause:    5 * time.Minute,

		OutlierCutoff:  tracker.DefaultOutlierCutoff,
		RetBufferRatio: 0.15,
		AngleTolerance: 1.5,
		BandLow:        0.8,
		BandHigh:       1.2,
		ConfirmRatio:   0.9,

		StepDegrees:      0.5,
		DegreesPerSecond: 2,
		Precision:        0.05,
		MaxAttempts:      6,
		MinAngle:         0,
		MaxAngle:         40,

		Settle: SettleTunables{
			Window:         settle.Window,
			SMADelta:       settle.SMADelta,
			PointDelta:     settle.PointDelta,
			StableRun:      settle.StableRun,
			SampleInterval: 10 * time.Millisecond,
		},
	}
}

// Config holds everything main needs to wire the controller
type Config struct {
	Hardware     string // gpio or sim
	ActuatorMode string // timed or angle

	RetractPin       string
	ExtendPin        string
	I2CBus           string
	INA219Address    int
	InclinometerAddr string
	SimTimeScale     float64

	MQTTBroker   string // Empty disables MQTT
	MQTTUsername string
	MQTTPassword string
	MQTTClientID string

	MetricsAddr    string
	MetricsWorkers int
	SnapshotEvery  time.Duration
	DebugConsole   bool

	Tunables Tunables
}

// LoadConfig reads the environment and the optional tunables file
func LoadConfig() (Config, error) {
	t := DefaultTunables()
	if path := os.Getenv("TUNABLES_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read tunables: %w", err)
		}
		if err := yaml.Unmarshal(data, &t); err != nil {
			return Config{}, fmt.Errorf("parse tunables %s: %w", path, err)
		}
	}
	applyTunableEnv(&t)

	cfg := Config{
		Hardware:     getEnv("HARDWARE", HardwareSim),
		ActuatorMode: getEnv("ACTUATOR_MODE", ActuatorTimed),

		RetractPin:       getEnv("GPIO_RETRACT_PIN", "GPIO20"),
		ExtendPin:        getEnv("GPIO_EXTEND_PIN", "GPIO21"),
		I2CBus:           getEnv("I2C_BUS", ""),
		INA219Address:    getEnvInt("INA219_ADDRESS", hardware.DefaultINA219Config().Address),
		InclinometerAddr: getEnv("INCLINOMETER_ADDR", "127.0.0.1:2017"),
		SimTimeScale:     getEnvFloat("SIM_TIME_SCALE", 1),

		MQTTBroker:   getEnv("MQTT_BROKER", ""),
		MQTTUsername: getEnv("MQTT_USERNAME", ""),
		MQTTPassword: getEnv("MQTT_PASSWORD", ""),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "suntracker"),

		MetricsAddr:    getEnv("METRICS_ADDR", ":9732"),
		MetricsWorkers: getEnvInt("METRICS_WORKERS", 2),
		SnapshotEvery:  getEnvDuration("SNAPSHOT_EVERY", time.Second),
		DebugConsole:   getEnvBool("DEBUG_CONSOLE", false),

		Tunables: t,
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyTunableEnv(t *Tunables) {
	t.MeasureSleep = getEnvDuration("MEASURE_SLEEP", t.MeasureSleep)
	t.SensorRetry = getEnvDuration("SENSOR_RETRY", t.SensorRetry)
	t.ScanDuration = getEnvDuration("SCAN_DURATION", t.ScanDuration)
	t.ScanNumMoves = getEnvInt("SCAN_NUM_MOVES", t.ScanNumMoves)
	t.SamplesPerMove = getEnvInt("SAMPLES_PER_MOVE", t.SamplesPerMove)
	t.ScanEvery = getEnvInt("SCAN_EVERY", t.ScanEvery)
	t.OptimaSamples = getEnvInt("OPTIMA_SAMPLES", t.OptimaSamples)
	t.OptimaPause = getEnvDuration("OPTIMA_PAUSE", t.OptimaPause)
	t.ConfirmRatio = getEnvFloat("CONFIRM_RATIO", t.ConfirmRatio)
	t.StepDegrees = getEnvFloat("STEP_DEGREES", t.StepDegrees)
	t.DegreesPerSecond = getEnvFloat("DEGREES_PER_SECOND", t.DegreesPerSecond)
	t.Precision = getEnvFloat("EXACT_MOVE_PRECISION", t.Precision)
	t.MaxAttempts = getEnvInt("EXACT_MOVE_MAX_ATTEMPTS", t.MaxAttempts)
	t.MinAngle = getEnvFloat("MIN_ANGLE", t.MinAngle)
	t.MaxAngle = getEnvFloat("MAX_ANGLE", t.MaxAngle)
	t.Settle.Timeout = getEnvDuration("SETTLE_TIMEOUT", t.Settle.Timeout)
	if v := os.Getenv("BASELINE_FROM_MAX"); v != "" {
		b := getEnvBool("BASELINE_FROM_MAX", false)
		t.BaselineFromMax = &b
	}
}

func (c Config) validate() error {
	t := c.Tunables
	var errs []error
	if c.Hardware != HardwareGPIO && c.Hardware != HardwareSim {
		errs = append(errs, fmt.Errorf("HARDWARE must be %q or %q, got %q", HardwareGPIO, HardwareSim, c.Hardware))
	}
	if c.ActuatorMode != ActuatorTimed && c.ActuatorMode != ActuatorAngle {
		errs = append(errs, fmt.Errorf("ACTUATOR_MODE must be %q or %q, got %q", ActuatorTimed, ActuatorAngle, c.ActuatorMode))
	}
	if c.MetricsWorkers < 1 {
		errs = append(errs, errors.New("METRICS_WORKERS must be at least 1"))
	}
	if c.SnapshotEvery <= 0 {
		errs = append(errs, errors.New("SNAPSHOT_EVERY must be positive"))
	}
	if t.MeasureSleep <= 0 || t.SensorRetry <= 0 || t.ScanDuration <= 0 {
		errs = append(errs, errors.New("measure_sleep, sensor_retry and scan_duration must be positive"))
	}
	if t.ScanNumMoves < 1 || t.SamplesPerMove < 1 {
		errs = append(errs, errors.New("scan_num_moves and samples_per_move must be at least 1"))
	}
	if t.OptimaSamples < 2 {
		errs = append(errs, errors.New("optima_samples must be at least 2"))
	}
	if t.ScanEvery < 0 || t.OptimaPause < 0 {
		errs = append(errs, errors.New("scan_every and optima_pause must not be negative"))
	}
	if t.BandLow >= t.BandHigh {
		errs = append(errs, fmt.Errorf("localize band [%v, %v] is empty", t.BandLow, t.BandHigh))
	}
	if t.ConfirmRatio <= 0 || t.ConfirmRatio > 1 {
		errs = append(errs, fmt.Errorf("confirm_ratio must be in (0, 1], got %v", t.ConfirmRatio))
	}
	if c.ActuatorMode == ActuatorAngle {
		if t.StepDegrees <= 0 || t.DegreesPerSecond <= 0 || t.Precision <= 0 {
			errs = append(errs, errors.New("step_degrees, degrees_per_second and exact_move_precision must be positive"))
		}
		if t.MaxAngle <= t.MinAngle {
			errs = append(errs, fmt.Errorf("angle range [%v, %v] is empty", t.MinAngle, t.MaxAngle))
		}
	}
	return errors.Join(errs...)
}

// BaselineFromMax defaults on in angle mode, where the first scan sample sits on the end stop
func (c Config) BaselineFromMax() bool {
	if c.Tunables.BaselineFromMax != nil {
		return *c.Tunables.BaselineFromMax
	}
	return c.ActuatorMode == ActuatorAngle
}

// ScanMoves returns the step budget of a full sweep
func (c Config) ScanMoves() int {
	t := c.Tunables
	if c.ActuatorMode == ActuatorAngle {
		return max(int((t.MaxAngle-t.MinAngle)/t.StepDegrees), 1)
	}
	return t.ScanNumMoves
}

// TrackerConfig derives the search tunables
func (c Config) TrackerConfig() tracker.Config {
	t := c.Tunables
	retBuffer := t.RetBufferRatio * float64(t.ScanNumMoves)
	if c.ActuatorMode == ActuatorAngle {
		retBuffer = t.AngleTolerance
	}
	return tracker.Config{
		NumMoves:        c.ScanMoves(),
		SamplesPerMove:  t.SamplesPerMove,
		SampleInterval:  t.SampleInterval,
		RetryInterval:   t.SensorRetry,
		OutlierCutoff:   t.OutlierCutoff,
		RetBuffer:       retBuffer,
		BandLow:         t.BandLow,
		BandHigh:        t.BandHigh,
		BaselineFromMax: c.BaselineFromMax(),
		ConfirmRatio:    t.ConfirmRatio,
		OptimaSamples:   t.OptimaSamples,
	}
}

// SamplerConfig derives the power poll settings
func (c Config) SamplerConfig() sampler.Config {
	return sampler.Config{
		Cadence:       c.Tunables.MeasureSleep,
		RetryInterval: c.Tunables.SensorRetry,
	}
}

// CountedMoverConfig splits the full-range drive time evenly across the scan moves
func (c Config) CountedMoverConfig() tracker.CountedMoverConfig {
	t := c.Tunables
	return tracker.CountedMoverConfig{
		NumMoves:     t.ScanNumMoves,
		StepDuration: t.ScanDuration / time.Duration(t.ScanNumMoves),
		HomeDuration: t.ScanDuration,
		SettleDelay:  t.MeasureSleep,
	}
}

// AngleMoverConfig derives the exact-move settings
func (c Config) AngleMoverConfig() tracker.AngleMoverConfig {
	t := c.Tunables
	return tracker.AngleMoverConfig{
		StepDegrees:      t.StepDegrees,
		DegreesPerSecond: t.DegreesPerSecond,
		Precision:        t.Precision,
		MaxAttempts:      t.MaxAttempts,
		MinAngle:         t.MinAngle,
		MaxAngle:         t.MaxAngle,
		HomeChunk:        time.Second,
		HomeTimeout:      t.ScanDuration,
		SampleInterval:   t.Settle.SampleInterval,
		SettleTimeout:    t.Settle.Timeout,
		Settle: tracker.SettleConfig{
			Window:     t.Settle.Window,
			SMADelta:   t.Settle.SMADelta,
			PointDelta: t.Settle.PointDelta,
			StableRun:  t.Settle.StableRun,
		},
	}
}

// InclinometerConfig derives the collector client settings
func (c Config) InclinometerConfig() hardware.InclinometerConfig {
	return hardware.InclinometerConfig{
		Addr:        c.InclinometerAddr,
		DialTimeout: time.Second,
		MaxAge:      100 * time.Millisecond,
		NaNRetry:    10 * time.Millisecond,
	}
}

// INA219Config derives the power sensor wiring
func (c Config) INA219Config() hardware.INA219Config {
	cfg := hardware.DefaultINA219Config()
	cfg.Bus = c.I2CBus
	cfg.Address = c.INA219Address
	return cfg
}

// SimConfig derives the simulated rig, sharing the angle range and speed with the mover
func (c Config) SimConfig() hardware.SimConfig {
	cfg := hardware.DefaultSimConfig()
	cfg.MinAngle = c.Tunables.MinAngle
	cfg.MaxAngle = c.Tunables.MaxAngle
	cfg.DegreesPerSecond = c.Tunables.DegreesPerSecond
	cfg.PeakAngle = (c.Tunables.MinAngle + c.Tunables.MaxAngle) / 2
	cfg.TimeScale = c.SimTimeScale
	return cfg
}

// ControlConfig derives the control loop schedule
func (c Config) ControlConfig() ControlConfig {
	return ControlConfig{
		ScanEvery:   c.Tunables.ScanEvery,
		OptimaPause: c.Tunables.OptimaPause,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	// Base 0 accepts hex I2C addresses such as 0x40
	i, err := strconv.ParseInt(v, 0, 64)
	if err != nil {
		log.Printf("Ignoring %s=%q: %v\n", key, v, err)
		return fallback
	}
	return int(i)
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("Ignoring %s=%q: %v\n", key, v, err)
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("Ignoring %s=%q: %v\n", key, v, err)
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Ignoring %s=%q: %v\n", key, v, err)
		return fallback
	}
	return d
}
