package main

import (
	"context"
	"log"
	"time"

	"github.com/ryansname/suntracker/src/telemetry"
)

// snapshotWorker polls the metrics at a fixed rate and feeds the broadcast worker
func snapshotWorker(ctx context.Context, metrics *telemetry.Metrics, every time.Duration, outputChan chan<- telemetry.Snapshot) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			select {
			case outputChan <- metrics.Snapshot():
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// broadcastWorker receives snapshots and fans out to multiple downstream workers
// This implements the actor pattern where the broadcast logic is isolated in a single worker
func broadcastWorker(ctx context.Context, inputChan <-chan telemetry.Snapshot, outputChans []chan<- telemetry.Snapshot) {
	for {
		select {
		case data := <-inputChan:
			// Fan out to all downstream workers using non-blocking sends
			for i, ch := range outputChans {
				select {
				case ch <- data:
					// Successfully sent
				case <-ctx.Done():
					return
				default:
					// Channel full, log warning but continue
					log.Printf("Warning: downstream worker %d channel full, dropping update\n", i)
				}
			}

		case <-ctx.Done():
			return
		}
	}
}

// statePublisherWorker publishes each snapshot to the tracker state topic. Nothing is
// sent until the first power reading so HA templates never see the starting payload.
func statePublisherWorker(ctx context.Context, dataChan <-chan telemetry.Snapshot, sender *MQTTSender) {
	for {
		select {
		case snap := <-dataChan:
			if !snap.Started {
				continue
			}
			if err := sender.PublishState(snap.Payload()); err != nil {
				log.Printf("Failed to encode tracker state: %v\n", err)
			}

		case <-ctx.Done():
			return
		}
	}
}
