package tracker

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/google/uuid"
)

// ScanResult is the outcome of one full-range scan
type ScanResult struct {
	ID           string
	HillPosition float64
	MaxPower     float64 // mW
	Found        bool
}

// Scan homes the reflector, sweeps the full range recording power, then retracts until it is
// back on the hill. Found is false when the hill could not be re-acquired within the move budget;
// the caller is expected to scan again.
func (t *Tracker) Scan(ctx context.Context) (ScanResult, error) {
	res := ScanResult{ID: uuid.NewString()}
	defer func() { t.rec.RecordScan(res.ID, res.Found) }()

	t.logf("scan %s: homing", res.ID)
	t.rec.SetMode(ModeScanReset, false)
	if err := t.mover.Home(ctx); err != nil {
		return res, fmt.Errorf("scan reset: %w", err)
	}
	t.state.resetScan()
	t.state.Position = t.mover.Position()
	t.rec.SetPosition(t.state.Position)
	t.rec.SetEfficiency(0, false)

	// Sweep out
	t.rec.SetMode(ModeScanExt, false)
	maxPower := math.Inf(-1)
	firstSampled := math.Inf(1)
	for range t.cfg.NumMoves {
		if t.mover.AtLimit(Extend) {
			break
		}
		if err := t.move(ctx, Extend); err != nil {
			return res, fmt.Errorf("scan sweep: %w", err)
		}
		batch, err := t.sampleBatch(ctx, false)
		if err != nil {
			return res, err
		}
		if len(batch) > 0 {
			firstSampled = min(firstSampled, t.state.Position)
		}
		t.state.ScanMeasurements = append(t.state.ScanMeasurements, batch...)
		for _, m := range batch {
			if m > maxPower {
				maxPower = m
				res.HillPosition = t.state.Position
			}
		}
	}

	if len(t.state.ScanMeasurements) == 0 {
		t.logf("scan %s: no power readings during sweep", res.ID)
		return res, nil
	}
	res.MaxPower = maxPower
	t.logf("scan %s: max %.3f W at position %.2f", res.ID, maxPower/1000, res.HillPosition)

	// Localize
	t.rec.SetMode(ModeScanRet, false)
	// Nothing below the first sampled position was measured, so a hill there may sit on the bound
	lower := max(t.mover.LowerBound(), firstSampled)
	for range t.cfg.NumMoves {
		if t.mover.AtLimit(Retract) {
			// Hill at or before the lower bound: nowhere further to retract to
			res.Found = res.HillPosition <= lower
			break
		}
		if err := t.move(ctx, Retract); err != nil {
			return res, fmt.Errorf("scan localize: %w", err)
		}
		if math.Abs(t.state.Position-res.HillPosition) < t.cfg.RetBuffer {
			res.Found = true
			break
		}
		batch, err := t.sampleBatch(ctx, true)
		if err != nil {
			return res, err
		}
		if len(batch) > 0 {
			peak := slices.Max(batch)
			if peak >= maxPower*t.cfg.BandLow && peak <= maxPower*t.cfg.BandHigh {
				res.Found = true
				break
			}
		}
	}

	if !res.Found {
		t.logf("scan %s: hill NOT found, was looking for %.3f W at %.2f", res.ID, maxPower/1000, res.HillPosition)
		return res, nil
	}

	if t.cfg.BaselineFromMax {
		t.state.StartOfScan = maxPower
	} else {
		t.state.StartOfScan = t.state.ScanMeasurements[0]
	}
	t.logf("scan %s: hill found at position %.2f, baseline %.3f W", res.ID, t.state.Position, t.state.StartOfScan/1000)

	t.rec.SetMode(ModeHillClimb, false)
	if _, err := t.observe(ctx); err != nil {
		return res, err
	}
	return res, nil
}
