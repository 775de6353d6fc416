package tracker

import (
	"context"
	"fmt"
	"math"
)

// HillClimb runs one try / anti-probe step and returns the decision it recorded.
//
// An apparent improvement is only trusted if the mirror point on the other side of the
// starting position is correspondingly worse. An apparent loss only flips the search
// direction if stepping the other way really gains. Anything else is treated as ambient
// light drift and the reflector returns to where it started.
//
// At an end of the range a probe that would leave the range is skipped. A try against
// the end stop records stay and turns the search inward. An improvement whose mirror
// point is out of range is checked against a fresh reading of the start instead.
func (t *Tracker) HillClimb(ctx context.Context) (Decision, error) {
	dir := t.state.AttemptedDirection
	t.rec.SetMode(ModeHillClimb, false)

	if t.mover.AtLimit(dir) {
		t.state.AttemptedDirection = dir.Opposite()
		t.logf("at %s limit, searching %s", dir, dir.Opposite())
		return t.record(DecisionStay, 0), nil
	}

	before, err := t.observe(ctx)
	if err != nil {
		return DecisionStay, err
	}
	if err := t.probe(ctx, dir); err != nil {
		return DecisionStay, fmt.Errorf("hill climb try: %w", err)
	}
	after, err := t.observe(ctx)
	if err != nil {
		return DecisionStay, err
	}

	delta := after - before
	var decision Decision
	if delta > 0 {
		decision, err = t.confirmImprovement(ctx, dir, before, after)
	} else {
		decision, err = t.confirmReversal(ctx, dir, delta)
	}
	if err != nil {
		return DecisionStay, err
	}
	return t.record(decision, delta), nil
}

func (t *Tracker) record(decision Decision, delta float64) Decision {
	t.state.History.Append(decision)
	t.rec.RecordDecision(decision.String())
	t.logf("%s (delta %.3f W) history %s", decision, delta/1000, t.state.History)
	return decision
}

// confirmImprovement probes the mirror point one step past the start in the other direction.
// Starts one step along dir from the original position.
func (t *Tracker) confirmImprovement(ctx context.Context, dir Direction, before, after float64) (Decision, error) {
	delta := after - before
	back := dir.Opposite()
	if err := t.probe(ctx, back); err != nil {
		return DecisionStay, fmt.Errorf("hill climb undo: %w", err)
	}

	if t.mover.AtLimit(back) {
		start, err := t.observe(ctx)
		if err != nil {
			return DecisionStay, err
		}
		if after-start >= t.cfg.ConfirmRatio*delta {
			if err := t.probe(ctx, dir); err != nil {
				return DecisionStay, fmt.Errorf("hill climb advance: %w", err)
			}
			return DecisionFor(dir), nil
		}
		t.logf("improvement of %.3f W gone on return (%.3f W), maybe a cloud", delta/1000, (after-start)/1000)
		return DecisionStay, nil
	}

	if err := t.probe(ctx, back); err != nil {
		return DecisionStay, fmt.Errorf("hill climb undo: %w", err)
	}
	flip, err := t.observe(ctx)
	if err != nil {
		return DecisionStay, err
	}

	if before-flip >= t.cfg.ConfirmRatio*delta {
		for range 2 {
			if err := t.probe(ctx, dir); err != nil {
				return DecisionStay, fmt.Errorf("hill climb advance: %w", err)
			}
		}
		return DecisionFor(dir), nil
	}

	t.logf("improvement of %.3f W not mirrored (%.3f W), maybe a cloud", delta/1000, (before-flip)/1000)
	if err := t.probe(ctx, dir); err != nil {
		return DecisionStay, fmt.Errorf("hill climb return: %w", err)
	}
	return DecisionStay, nil
}

// confirmReversal checks whether moving against dir gains power.
// Starts one step along dir from the original position.
func (t *Tracker) confirmReversal(ctx context.Context, dir Direction, delta float64) (Decision, error) {
	back := dir.Opposite()
	if err := t.probe(ctx, back); err != nil {
		return DecisionStay, fmt.Errorf("hill climb undo: %w", err)
	}
	if t.mover.AtLimit(back) {
		// Nothing to reverse into
		return DecisionStay, nil
	}

	before, err := t.observe(ctx)
	if err != nil {
		return DecisionStay, err
	}
	if err := t.probe(ctx, back); err != nil {
		return DecisionStay, fmt.Errorf("hill climb undo: %w", err)
	}
	flip, err := t.observe(ctx)
	if err != nil {
		return DecisionStay, err
	}

	reversed := flip - before
	switch {
	case reversed <= 0:
		// Worse both ways: already on top
	case reversed > t.cfg.ConfirmRatio*math.Abs(delta):
		t.state.AttemptedDirection = back
		return DecisionFor(back), nil
	default:
		t.logf("reversal gain of %.3f W too small against %.3f W, maybe a cloud", reversed/1000, math.Abs(delta)/1000)
	}

	if err := t.probe(ctx, dir); err != nil {
		return DecisionStay, fmt.Errorf("hill climb return: %w", err)
	}
	return DecisionStay, nil
}
