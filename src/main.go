package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/joho/godotenv"

	"github.com/ryansname/suntracker/src/sampler"
	"github.com/ryansname/suntracker/src/telemetry"
	"github.com/ryansname/suntracker/src/tracker"
)

// SensorMessage represents an MQTT message with topic and value
type SensorMessage struct {
	Topic string
	Value string
}

// SafeGo launches a goroutine with panic recovery and retry logic.
// On panic, retries with exponential backoff (max 10 retries).
// Retry count resets if worker ran for 2+ minutes before failing.
// After exhausting retries, cancels context to trigger shutdown.
func SafeGo(
	ctx context.Context,
	cancel context.CancelFunc,
	name string,
	fn func(ctx context.Context),
) {
	const maxRetries = 10
	const maxDelay = 10 * time.Minute
	const resetAfter = 2 * time.Minute

	go func() {
		retries := 0
		delay := time.Second

		for {
			startTime := time.Now()
			var panicValue any

			func() {
				defer func() {
					panicValue = recover()
				}()
				fn(ctx)
			}()

			// If function returned normally (no panic), exit the goroutine
			// This covers both context cancellation and unexpected completion
			if panicValue == nil {
				return
			}

			// If ran for resetAfter duration before panicking, reset retry state
			if time.Since(startTime) >= resetAfter {
				retries = 0
				delay = time.Second
			}

			retries++
			log.Printf("Panic in %s (attempt %d/%d): %v\n", name, retries, maxRetries, panicValue)

			// Check if we've exhausted retries
			if retries >= maxRetries {
				log.Printf("%s failed after %d retries, shutting down\n", name, maxRetries)
				cancel()
				return
			}

			// Wait before retry with exponential backoff
			log.Printf("%s will retry in %v\n", name, delay)
			select {
			case <-time.After(delay):
				// Double delay for next time, cap at max
				delay = min(delay*2, maxDelay)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func main() {
	log.Println("Starting suntracker...")

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v\n", err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	log.Printf("Hardware: %s, actuator mode: %s\n", cfg.Hardware, cfg.ActuatorMode)

	r, err := openRig(cfg)
	if err != nil {
		log.Fatalf("Failed to open rig: %v", err)
	}
	defer func() {
		if err := r.Close(); err != nil {
			log.Printf("Failed to release rig: %v\n", err)
		}
	}()

	// Create context for lifecycle management
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := telemetry.NewMetrics()
	power := sampler.New(r.sensor, metrics, cfg.SamplerConfig())
	mover := r.newMover(cfg, metrics)
	trk := tracker.New(cfg.TrackerConfig(), mover, power, metrics)

	// Create channels for communication between workers
	cmdChan := make(chan Command, 10)
	snapshotChan := make(chan telemetry.Snapshot, 10)
	var downstreamChans []chan<- telemetry.Snapshot

	// The sampler and control loop run outside SafeGo
	samplerDone := make(chan struct{})
	go func() {
		defer close(samplerDone)
		power.Run(ctx)
	}()
	log.Println("Power sampler started")

	var onEnabled func(bool)
	if cfg.MQTTBroker != "" {
		msgChan := make(chan SensorMessage, 10)
		mqttOutgoingChan := make(chan MQTTMessage, 100) // Larger buffer for queuing
		mqttClientChan := make(chan mqtt.Client, 1)     // Buffered to prevent blocking onConnect
		stateChan := make(chan telemetry.Snapshot, 10)
		downstreamChans = append(downstreamChans, stateChan)

		// Launch MQTT sender worker (receives client updates via channel)
		SafeGo(ctx, cancel, "mqtt-sender-worker", func(ctx context.Context) {
			mqttSenderWorker(ctx, mqttOutgoingChan, mqttClientChan)
		})

		mqttSender := NewMQTTSender(mqttOutgoingChan)

		// Create Home Assistant entities
		log.Println("Creating Home Assistant entities...")
		for _, e := range TrackerEntities() {
			if err := mqttSender.CreateTrackerEntity(e); err != nil {
				log.Fatalf("Failed to create %s entity: %v", e.Name, err)
			}
		}
		if err := mqttSender.CreateEnabledSwitch(); err != nil {
			log.Fatalf("Failed to create enabled switch: %v", err)
		}
		if err := mqttSender.CreateRescanButton(); err != nil {
			log.Fatalf("Failed to create rescan button: %v", err)
		}
		mqttSender.PublishEnabled(true)
		onEnabled = mqttSender.PublishEnabled
		log.Println("Home Assistant entities created")

		SafeGo(ctx, cancel, "state-publisher", func(ctx context.Context) {
			statePublisherWorker(ctx, stateChan, mqttSender)
		})

		SafeGo(ctx, cancel, "command-worker", func(ctx context.Context) {
			commandWorker(ctx, msgChan, cmdChan)
		})

		SafeGo(ctx, cancel, "mqtt-worker", func(ctx context.Context) {
			mqttWorker(ctx, cfg.MQTTBroker, CommandTopics(), cfg.MQTTUsername, cfg.MQTTPassword, cfg.MQTTClientID, msgChan, mqttClientChan)
		})
		log.Println("MQTT workers started")
	} else {
		log.Println("MQTT_BROKER not set, Home Assistant integration disabled")
	}

	if cfg.DebugConsole {
		debugChan := make(chan telemetry.Snapshot, 10)
		downstreamChans = append(downstreamChans, debugChan)
		SafeGo(ctx, cancel, "debug-worker", func(ctx context.Context) {
			debugWorker(ctx, cancel, debugChan, cmdChan)
		})
	}

	SafeGo(ctx, cancel, "metrics-server", func(ctx context.Context) {
		if err := metricsServerWorker(ctx, cfg.MetricsAddr, cfg.MetricsWorkers, metrics); err != nil {
			log.Printf("Metrics server stopped: %v\n", err)
		}
	})

	SafeGo(ctx, cancel, "snapshot-worker", func(ctx context.Context) {
		snapshotWorker(ctx, metrics, cfg.SnapshotEvery, snapshotChan)
	})

	// Launch broadcast worker (fans out to all downstream workers)
	SafeGo(ctx, cancel, "broadcast-worker", func(ctx context.Context) {
		broadcastWorker(ctx, snapshotChan, downstreamChans)
	})

	// The control loop owns the actuator and is never restarted
	ctrl := newController(cfg.ControlConfig(), trk, r.driver, metrics, onEnabled)
	controlDone := make(chan error, 1)
	go func() {
		controlDone <- controlWorker(ctx, cmdChan, ctrl)
	}()

	// Wait for interrupt signal, context cancellation (from panic) or a fatal control error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Println("\nShutting down...")
	case <-ctx.Done():
		log.Println("\nShutting down due to error...")
	case err := <-controlDone:
		cancel()
		if err != nil {
			if offErr := r.Close(); offErr != nil {
				log.Printf("Failed to release rig: %v\n", offErr)
			}
			log.Fatalf("Control loop failed: %v", err)
		}
		return
	}
	cancel()

	// Let the control loop release the actuator before the rig closes
	select {
	case <-controlDone:
	case <-time.After(10 * time.Second):
		log.Println("Control loop did not stop in time")
	}
	<-samplerDone
}
