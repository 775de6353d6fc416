package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// wobbleThenStill oscillates ±1° around 10° for wobble samples then holds 10° for still samples
func wobbleThenStill(wobble, still int) []float64 {
	series := make([]float64, 0, wobble+still)
	for i := range wobble {
		if i%2 == 0 {
			series = append(series, 9)
		} else {
			series = append(series, 11)
		}
	}
	for range still {
		series = append(series, 10)
	}
	return series
}

func TestSettleDetector_WobbleThenStill(t *testing.T) {
	cfg := DefaultSettleConfig()
	series := wobbleThenStill(100, 60)

	d := NewSettleDetector(cfg)
	for i, a := range series {
		settled := d.Add(a)
		if i < 100 {
			assert.False(t, settled, "settled during wobble at sample %d", i)
		}
	}
	assert.True(t, d.Settled())

	assert.False(t, IsSettled(series[:100], cfg))
	assert.False(t, IsSettled(series[:100+cfg.StableRun-1], cfg))
	assert.True(t, IsSettled(series[:100+cfg.StableRun], cfg))
}

func TestSettleDetector_SingleSampleNeverSettled(t *testing.T) {
	cfg := SettleConfig{Window: 10, SMADelta: 1, PointDelta: 1, StableRun: 1}
	assert.False(t, IsSettled([]float64{5}, cfg))
	assert.True(t, IsSettled([]float64{5, 5}, cfg))
}

func TestSettleDetector_Empty(t *testing.T) {
	assert.False(t, IsSettled(nil, DefaultSettleConfig()))
}

func TestSettleDetector_SlowDriftIsUnstable(t *testing.T) {
	cfg := SettleConfig{Window: 5, SMADelta: 0.001, PointDelta: 0.05, StableRun: 10}
	series := make([]float64, 100)
	for i := range series {
		series[i] = float64(i) * 0.01
	}
	assert.False(t, IsSettled(series, cfg))
}

func TestSettleDetector_JoltResetsRun(t *testing.T) {
	cfg := SettleConfig{Window: 5, SMADelta: 0.001, PointDelta: 0.05, StableRun: 5}
	d := NewSettleDetector(cfg)
	for range 10 {
		d.Add(3)
	}
	assert.True(t, d.Settled())

	assert.False(t, d.Add(4))
	assert.False(t, d.Settled())
}

func TestSettleDetector_Reset(t *testing.T) {
	cfg := SettleConfig{Window: 3, SMADelta: 0.1, PointDelta: 0.1, StableRun: 2}
	d := NewSettleDetector(cfg)
	for range 5 {
		d.Add(1)
	}
	assert.True(t, d.Settled())
	assert.Equal(t, 5, d.Samples())

	d.Reset()
	assert.False(t, d.Settled())
	assert.Equal(t, 0, d.Samples())
	assert.False(t, d.Add(1))
}
