package core

import "time"

const AVG_COUNT uint8 = 30

// FrameCounters holds the device traffic of a single frame.
type FrameCounters struct {
	// Reconcile passes run.
	Reconciles uint64
	// Single-slot bind calls issued.
	SingleBinds uint64
	// Batched bind calls issued.
	BatchBinds uint64
	// Slots inside a dirty range that needed no call (trimmed or unchanged).
	SkippedSlots uint64
	// Fixed-function state applications.
	RenderStateApplies uint64
	// Sparse commit/decommit calls.
	CommitCalls uint64
	// Sparse page copy calls.
	CopyCalls uint64
	// Draw, dispatch and copy operations reaching the device.
	Operations uint64
}

// DeviceCalls is the number of device calls issued for bindings and commitments.
func (fc FrameCounters) DeviceCalls() uint64 {
	return fc.SingleBinds + fc.BatchBinds + fc.RenderStateApplies + fc.CommitCalls + fc.CopyCalls
}

func (fc *FrameCounters) add(o FrameCounters) {
	fc.Reconciles += o.Reconciles
	fc.SingleBinds += o.SingleBinds
	fc.BatchBinds += o.BatchBinds
	fc.SkippedSlots += o.SkippedSlots
	fc.RenderStateApplies += o.RenderStateApplies
	fc.CommitCalls += o.CommitCalls
	fc.CopyCalls += o.CopyCalls
	fc.Operations += o.Operations
}

// Metrics accumulates per-frame counters and timing. One instance belongs
// to one context and is not safe for concurrent use.
type Metrics struct {
	// Counters of the frame in progress.
	Current FrameCounters
	// Totals since creation, including the frame in progress.
	Total FrameCounters

	frameAVGCounter    uint8
	msTimes            [AVG_COUNT]float64
	callTimes          [AVG_COUNT]uint64
	msAvg              float64
	callsAvg           float64
	frames             int32
	accumulatedFrameMS float64
	fps                float64
	last               FrameCounters
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// EndFrame closes the current frame.
func (m *Metrics) EndFrame(frameElapsed time.Duration) {
	// Calculate frame ms average
	frameMS := float64(frameElapsed) / float64(time.Millisecond)
	m.msTimes[m.frameAVGCounter] = frameMS
	m.callTimes[m.frameAVGCounter] = m.Current.DeviceCalls()
	if m.frameAVGCounter == AVG_COUNT-1 {
		m.msAvg = 0
		m.callsAvg = 0
		for i := uint8(0); i < AVG_COUNT; i++ {
			m.msAvg += m.msTimes[i]
			m.callsAvg += float64(m.callTimes[i])
		}
		m.msAvg /= float64(AVG_COUNT)
		m.callsAvg /= float64(AVG_COUNT)
	}
	m.frameAVGCounter++
	m.frameAVGCounter %= AVG_COUNT

	// Calculate Frames per second.
	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}

	// Count all Frames.
	m.frames++

	m.last = m.Current
	m.Current = FrameCounters{}
}

// Record adds delta to both the current frame and the totals.
func (m *Metrics) Record(delta FrameCounters) {
	m.Current.add(delta)
	m.Total.add(delta)
}

// LastFrame returns the counters of the last completed frame.
func (m *Metrics) LastFrame() FrameCounters {
	return m.last
}

func (m *Metrics) FPS() float64 {
	return m.fps
}

func (m *Metrics) FrameTime() float64 {
	return m.msAvg
}

// CallsPerFrame is the rolling average of device calls per frame.
func (m *Metrics) CallsPerFrame() float64 {
	return m.callsAvg
}
