package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Controller gauges and counters, served on /metrics

var (
	PowerWatts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "suntracker",
		Name:      "power_watts",
		Help:      "Most recent published panel power",
	})

	Position = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "suntracker",
		Name:      "position",
		Help:      "Reflector position (move count or degrees)",
	})

	EfficiencyPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "suntracker",
		Name:      "efficiency_percent",
		Help:      "Power relative to the last scan baseline, NaN while suppressed",
	})

	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "suntracker",
		Subsystem: "hill_climb",
		Name:      "decisions_total",
		Help:      "Hill-climb decisions by outcome",
	}, []string{"decision"})

	Scans = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "suntracker",
		Subsystem: "scan",
		Name:      "total",
		Help:      "Completed scans by result",
	}, []string{"result"})

	SensorReadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "suntracker",
		Subsystem: "sampler",
		Name:      "read_errors_total",
		Help:      "Power sensor reads that failed and were retried",
	})

	SettleSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "suntracker",
		Subsystem: "actuator",
		Name:      "settle_duration_seconds",
		Help:      "Time from end of actuation until the wobble stopped",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
	})
)
