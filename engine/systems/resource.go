package systems

import (
	"fmt"

	"github.com/spaghettifunk/statecache/engine/core"
	"github.com/spaghettifunk/statecache/engine/renderer/metadata"
	"github.com/spaghettifunk/statecache/engine/renderer/sparse"
)

var ErrNotFound = fmt.Errorf("not registered")
var ErrDuplicateName = fmt.Errorf("name already registered")

/** @brief The configuration for the resource system */
type ResourceSystemConfig struct {
	/** @brief The maximum number of live resources. */
	MaxResourceCount uint32
}

// ResourceSystem owns the handles of device resources. Destroying a
// resource fires EVENT_CODE_RESOURCE_DESTROYED while its handle is still
// live, so every context can forget it before the index is recycled.
type ResourceSystem struct {
	config    ResourceSystemConfig
	allocator *core.HandleAllocator
	events    *core.EventSystem
	renderer  *RendererSystem

	live          map[core.Handle]struct{}
	registered    map[string]core.Handle
	sparseBuffers map[core.Handle]*sparse.Buffer
}

func NewResourceSystem(config ResourceSystemConfig, events *core.EventSystem, r *RendererSystem) (*ResourceSystem, error) {
	if config.MaxResourceCount == 0 {
		err := fmt.Errorf("func NewResourceSystem - config.MaxResourceCount must be > 0")
		core.LogError(err.Error())
		return nil, err
	}
	return &ResourceSystem{
		config:        config,
		allocator:     core.NewHandleAllocator(int(config.MaxResourceCount)),
		events:        events,
		renderer:      r,
		live:          make(map[core.Handle]struct{}),
		registered:    make(map[string]core.Handle),
		sparseBuffers: make(map[core.Handle]*sparse.Buffer),
	}, nil
}

// Create creates a device resource. A non-empty name must be unique.
func (rs *ResourceSystem) Create(config *metadata.ResourceConfig) (core.Handle, error) {
	if uint32(rs.allocator.Live()) >= rs.config.MaxResourceCount {
		return core.NullHandle, fmt.Errorf("%d resources live: %w", rs.allocator.Live(), core.ErrCapacityExceeded)
	}
	if config.Name != "" {
		if _, ok := rs.registered[config.Name]; ok {
			return core.NullHandle, fmt.Errorf("resource %q: %w", config.Name, ErrDuplicateName)
		}
	}

	cfg := *config
	h := rs.allocator.Acquire(&cfg)
	if err := rs.renderer.Backend().ResourceCreate(h, &cfg); err != nil {
		_ = rs.allocator.Release(h)
		return core.NullHandle, err
	}
	rs.live[h] = struct{}{}
	if cfg.Name != "" {
		rs.registered[cfg.Name] = h
	}
	core.LogDebug("resource %s created: %s %q", h, cfg.Kind, cfg.Name)
	return h, nil
}

// Get looks a resource up by name.
func (rs *ResourceSystem) Get(name string) (core.Handle, error) {
	h, ok := rs.registered[name]
	if !ok {
		return core.NullHandle, fmt.Errorf("resource %q: %w", name, ErrNotFound)
	}
	return h, nil
}

// Config returns the creation parameters of a live resource.
func (rs *ResourceSystem) Config(h core.Handle) (*metadata.ResourceConfig, error) {
	if err := rs.allocator.Validate(h); err != nil {
		return nil, err
	}
	return rs.allocator.Owner(h).(*metadata.ResourceConfig), nil
}

func (rs *ResourceSystem) Live() int {
	return rs.allocator.Live()
}

// Destroy releases a resource: sparse pages first, then every reference in
// every context, then the device object and finally the handle.
func (rs *ResourceSystem) Destroy(h core.Handle) error {
	cfg, err := rs.Config(h)
	if err != nil {
		return err
	}

	if buf, ok := rs.sparseBuffers[h]; ok {
		if err := buf.Release(rs.renderer.SparseDevice()); err != nil {
			return err
		}
		delete(rs.sparseBuffers, h)
	}

	if rs.events != nil {
		rs.events.Fire(core.EVENT_CODE_RESOURCE_DESTROYED, rs, core.EventContext{Handle: h})
	}

	if err := rs.renderer.Backend().ResourceDestroy(h); err != nil {
		return err
	}
	delete(rs.live, h)
	if cfg.Name != "" && rs.registered[cfg.Name] == h {
		delete(rs.registered, cfg.Name)
	}
	core.LogDebug("resource %s destroyed", h)
	return rs.allocator.Release(h)
}

// CreateSparseBuffer creates a sparse buffer with nothing committed.
// size must be a multiple of the device page size.
func (rs *ResourceSystem) CreateSparseBuffer(name string, size uint64) (*sparse.Buffer, error) {
	caps := rs.renderer.Capabilities()
	if !caps.SparseBuffer {
		return nil, core.ErrSparseUnsupported
	}
	if !metadata.IsAligned(size, caps.SparsePageSize) || size == 0 {
		return nil, fmt.Errorf("sparse buffer size %d, page %d: %w", size, caps.SparsePageSize, core.ErrMisalignedRange)
	}

	h, err := rs.Create(&metadata.ResourceConfig{Name: name, Kind: metadata.ResourceKindSparseBuffer, Size: size})
	if err != nil {
		return nil, err
	}
	buf, err := sparse.NewBuffer(h, size, caps.SparsePageSize)
	if err != nil {
		_ = rs.Destroy(h)
		return nil, err
	}
	rs.sparseBuffers[h] = buf
	return buf, nil
}

func (rs *ResourceSystem) SparseBuffer(h core.Handle) (*sparse.Buffer, error) {
	buf, ok := rs.sparseBuffers[h]
	if !ok {
		return nil, fmt.Errorf("sparse buffer %s: %w", h, ErrNotFound)
	}
	return buf, nil
}

// SetCommitment commits or decommits a range of a sparse buffer.
func (rs *ResourceSystem) SetCommitment(buf *sparse.Buffer, offset, size uint64, commit bool) error {
	return buf.SetCommitment(rs.renderer.SparseDevice(), offset, size, commit)
}

// ResizeSparseBuffer replaces buf with a buffer of newSize that keeps the
// committed pages and contents of the overlap. buf is destroyed; the new
// buffer takes over its name.
func (rs *ResourceSystem) ResizeSparseBuffer(buf *sparse.Buffer, newSize uint64) (*sparse.Buffer, error) {
	old := buf.Handle()
	cfg, err := rs.Config(old)
	if err != nil {
		return nil, err
	}
	if _, ok := rs.sparseBuffers[old]; !ok {
		return nil, fmt.Errorf("sparse buffer %s: %w", old, ErrNotFound)
	}

	h, err := rs.Create(&metadata.ResourceConfig{Kind: metadata.ResourceKindSparseBuffer, Size: newSize})
	if err != nil {
		return nil, err
	}
	out, err := buf.Resize(rs.renderer.SparseDevice(), h, newSize)
	if err != nil {
		_ = rs.Destroy(h)
		return nil, err
	}
	// Its pages were released by Resize.
	delete(rs.sparseBuffers, old)
	if err := rs.Destroy(old); err != nil {
		return nil, err
	}

	rs.sparseBuffers[h] = out
	if cfg.Name != "" {
		newCfg, _ := rs.Config(h)
		newCfg.Name = cfg.Name
		rs.registered[cfg.Name] = h
	}
	return out, nil
}

func (rs *ResourceSystem) Shutdown() error {
	for h := range rs.live {
		if err := rs.Destroy(h); err != nil {
			return err
		}
	}
	return nil
}
