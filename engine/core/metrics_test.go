package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsFrames(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Record(FrameCounters{SingleBinds: 2, BatchBinds: 1, Operations: 1})
		m.EndFrame(10 * time.Millisecond)
	}
	assert.Equal(t, uint64(3), m.LastFrame().DeviceCalls())
	assert.Equal(t, FrameCounters{}, m.Current)
	assert.Equal(t, uint64(2*uint64(AVG_COUNT)), m.Total.SingleBinds)
	assert.InDelta(t, 10.0, m.FrameTime(), 0.001)
	assert.InDelta(t, 3.0, m.CallsPerFrame(), 0.001)
}

func TestMetricsFPS(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < 120; i++ {
		m.EndFrame(10 * time.Millisecond)
	}
	assert.InDelta(t, 100.0, m.FPS(), 1.0)
}
