package sparse

import "github.com/spaghettifunk/statecache/engine/core"

// Device is the part of the device interface that backs sparse buffers.
// Offsets and sizes are in bytes and always page aligned.
type Device interface {
	// CommitPages commits (or decommits) physical memory for [offset, offset+size) of h.
	CommitPages(h core.Handle, offset, size uint64, commit bool) error
	// CopyPages copies [offset, offset+size) from src to the same range of dst.
	CopyPages(dst, src core.Handle, offset, size uint64) error
}

type meteredDevice struct {
	Device
	metrics *core.Metrics
}

// WithMetrics wraps dev so every successful call is counted in m.
func WithMetrics(dev Device, m *core.Metrics) Device {
	if m == nil {
		return dev
	}
	return &meteredDevice{Device: dev, metrics: m}
}

func (d *meteredDevice) CommitPages(h core.Handle, offset, size uint64, commit bool) error {
	if err := d.Device.CommitPages(h, offset, size, commit); err != nil {
		return err
	}
	d.metrics.Record(core.FrameCounters{CommitCalls: 1})
	return nil
}

func (d *meteredDevice) CopyPages(dst, src core.Handle, offset, size uint64) error {
	if err := d.Device.CopyPages(dst, src, offset, size); err != nil {
		return err
	}
	d.metrics.Record(core.FrameCounters{CopyCalls: 1})
	return nil
}
