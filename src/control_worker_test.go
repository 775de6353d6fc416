package main

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryansname/suntracker/src/tracker"
)

// fakeSearcher scripts scan outcomes and lets tests stop the loop from inside a call
type fakeSearcher struct {
	mu        sync.Mutex
	found     []bool // scan outcomes in order, then always found
	scans     int
	climbs    int
	atOptimum bool
	climbErr  error

	onScan  func(n int)
	onClimb func(n int)
}

func (f *fakeSearcher) Scan(ctx context.Context) (tracker.ScanResult, error) {
	f.mu.Lock()
	f.scans++
	n := f.scans
	found := true
	if n <= len(f.found) {
		found = f.found[n-1]
	}
	hook := f.onScan
	f.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if err := ctx.Err(); err != nil {
		return tracker.ScanResult{}, err
	}
	return tracker.ScanResult{ID: "scan", Found: found}, nil
}

func (f *fakeSearcher) HillClimb(ctx context.Context) (tracker.Decision, error) {
	f.mu.Lock()
	f.climbs++
	n := f.climbs
	hook := f.onClimb
	err := f.climbErr
	f.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if err != nil {
		return tracker.DecisionStay, err
	}
	return tracker.DecisionStay, ctx.Err()
}

func (f *fakeSearcher) AtOptimum() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.atOptimum
}

func (f *fakeSearcher) counts() (scans, climbs int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scans, f.climbs
}

type fakeDriver struct {
	mu   sync.Mutex
	offs int
}

func (d *fakeDriver) Drive(context.Context, tracker.Direction, time.Duration) error { return nil }

func (d *fakeDriver) Off() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.offs++
	return nil
}

func (d *fakeDriver) offCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.offs
}

type modeLog struct {
	mu    sync.Mutex
	modes []string
}

func (m *modeLog) SetMode(mode string, _ bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modes = append(m.modes, mode)
}

func (m *modeLog) has(mode string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Contains(m.modes, mode)
}

// runController starts the loop and returns a channel with its result
func runController(ctx context.Context, cmdChan <-chan Command, c *controller) <-chan error {
	done := make(chan error, 1)
	go func() { done <- controlWorker(ctx, cmdChan, c) }()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("control loop did not stop")
		return nil
	}
}

func TestControlWorker_RetriesScanUntilFound(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &fakeSearcher{found: []bool{false, false, true}}
	s.onClimb = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	c := newController(ControlConfig{}, s, &fakeDriver{}, &modeLog{}, nil)

	require.NoError(t, waitDone(t, runController(ctx, nil, c)))
	scans, climbs := s.counts()
	assert.Equal(t, 3, scans)
	assert.Equal(t, 2, climbs)
}

func TestControlWorker_RescansPeriodically(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &fakeSearcher{}
	s.onClimb = func(n int) {
		if n == 7 {
			cancel()
		}
	}
	c := newController(ControlConfig{ScanEvery: 3}, s, &fakeDriver{}, &modeLog{}, nil)

	require.NoError(t, waitDone(t, runController(ctx, nil, c)))
	scans, _ := s.counts()
	assert.Equal(t, 3, scans, "initial scan plus one after every third step")
}

func TestControlWorker_DisabledIdlesUntilEnabled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &fakeSearcher{onScan: func(int) { cancel() }}
	driver := &fakeDriver{}
	modes := &modeLog{}

	var mu sync.Mutex
	var enabled []bool
	c := newController(ControlConfig{}, s, driver, modes, func(on bool) {
		mu.Lock()
		defer mu.Unlock()
		enabled = append(enabled, on)
	})

	cmdChan := make(chan Command, 1)
	cmdChan <- CommandDisable
	done := runController(ctx, cmdChan, c)

	assert.Eventually(t, func() bool { return driver.offCount() == 1 }, time.Second, time.Millisecond)
	assert.True(t, modes.has(tracker.ModeDisabled))
	scans, _ := s.counts()
	assert.Zero(t, scans)

	cmdChan <- CommandEnable
	require.NoError(t, waitDone(t, done))

	scans, _ = s.counts()
	assert.Equal(t, 1, scans)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{false, true}, enabled)
}

func TestControlWorker_PausesAtOptimum(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &fakeSearcher{atOptimum: true}
	s.onScan = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	modes := &modeLog{}
	c := newController(ControlConfig{OptimaPause: time.Hour}, s, &fakeDriver{}, modes, nil)

	cmdChan := make(chan Command, 1)
	done := runController(ctx, cmdChan, c)

	assert.Eventually(t, func() bool { return modes.has(tracker.ModeOptimaPause) }, time.Second, time.Millisecond)
	_, climbs := s.counts()
	assert.Equal(t, 1, climbs)

	cmdChan <- CommandRescan
	require.NoError(t, waitDone(t, done))

	scans, climbs := s.counts()
	assert.Equal(t, 2, scans)
	assert.Equal(t, 1, climbs)
}

func TestControlWorker_ZeroPauseKeepsClimbing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &fakeSearcher{atOptimum: true}
	s.onClimb = func(n int) {
		if n == 5 {
			cancel()
		}
	}
	modes := &modeLog{}
	c := newController(ControlConfig{}, s, &fakeDriver{}, modes, nil)

	require.NoError(t, waitDone(t, runController(ctx, nil, c)))
	assert.False(t, modes.has(tracker.ModeOptimaPause))
}

func TestControlWorker_HardwareErrorIsFatal(t *testing.T) {
	errStale := errors.New("inclinometer reading is stale")
	s := &fakeSearcher{climbErr: errStale}
	c := newController(ControlConfig{}, s, &fakeDriver{}, &modeLog{}, nil)

	err := waitDone(t, runController(context.Background(), nil, c))
	assert.ErrorIs(t, err, errStale)
}

func TestControlWorker_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &fakeSearcher{}
	c := newController(ControlConfig{}, s, &fakeDriver{}, &modeLog{}, nil)

	require.NoError(t, waitDone(t, runController(ctx, nil, c)))
	scans, _ := s.counts()
	assert.Zero(t, scans)
}
