package state

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/statecache/engine/core"
	"github.com/spaghettifunk/statecache/engine/renderer/metadata"
)

// PipelineConfig declares what a pipeline consumes.
type PipelineConfig struct {
	Name string
	// SlotCounts is the number of slots the pipeline uses per category, so
	// its declared upper bound is SlotCounts[c]-1. Slots at or beyond the
	// count can be set but are never reconciled. The vertex buffer count
	// defaults to the number of buffers declared by VertexLayout.
	SlotCounts   [metadata.CategoryCount]int
	VertexLayout metadata.VertexLayout
	// RenderState is the initial desired fixed-function state.
	RenderState *metadata.RenderState
}

// AllSlots returns slot counts that cover every slot of caps.
func AllSlots(caps metadata.Capabilities) [metadata.CategoryCount]int {
	return caps.MaxSlots
}

// Pipeline is a consumer of bindings. It owns its pending state, which
// callers edit with the setters at any time, active or not. Nothing reaches
// the device until the pipeline is active and an operation runs.
type Pipeline struct {
	id        uuid.UUID
	name      string
	ctx       *Context
	limits    [metadata.CategoryCount]int
	layout    metadata.VertexLayout
	pending   *Pending
	destroyed bool
}

func newPipeline(ctx *Context, cfg PipelineConfig) (*Pipeline, error) {
	caps := ctx.caps
	if err := cfg.VertexLayout.Validate(caps); err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", cfg.Name, err)
	}
	limits := cfg.SlotCounts
	if n := len(cfg.VertexLayout.Buffers); limits[metadata.CategoryVertexBuffer] < n {
		limits[metadata.CategoryVertexBuffer] = n
	}
	for c := metadata.Category(0); c < metadata.CategoryCount; c++ {
		if limits[c] < 0 {
			return nil, fmt.Errorf("pipeline %q: negative %s slot count", cfg.Name, c)
		}
		if limits[c] > caps.MaxSlots[c] {
			return nil, fmt.Errorf("pipeline %q declares %d %s slots, capacity is %d: %w",
				cfg.Name, limits[c], c, caps.MaxSlots[c], core.ErrCapacityExceeded)
		}
	}

	p := &Pipeline{
		id:      uuid.New(),
		name:    cfg.Name,
		ctx:     ctx,
		limits:  limits,
		layout:  cfg.VertexLayout,
		pending: newPending(caps),
	}
	if cfg.RenderState != nil {
		p.pending.setRenderState(*cfg.RenderState)
	}
	return p, nil
}

func (p *Pipeline) ID() uuid.UUID {
	return p.id
}

func (p *Pipeline) Name() string {
	return p.name
}

// UpperBound returns the highest slot of c the pipeline uses, -1 when none.
func (p *Pipeline) UpperBound(c metadata.Category) int {
	return p.limits[c] - 1
}

func (p *Pipeline) VertexLayout() metadata.VertexLayout {
	return p.layout
}

func (p *Pipeline) IsDestroyed() bool {
	return p.destroyed
}

// Binding returns the pending binding of a slot.
func (p *Pipeline) Binding(c metadata.Category, slot int) (metadata.Binding, error) {
	if err := p.pending.checkSlot(c, slot); err != nil {
		return metadata.Binding{}, err
	}
	return p.pending.tables[c].bindings[slot], nil
}

// Dirty returns the current dirty range of c.
func (p *Pipeline) Dirty(c metadata.Category) DirtyRange {
	return p.pending.tables[c].dirty
}

func (p *Pipeline) RenderState() metadata.RenderState {
	return p.pending.renderState
}

// Set writes the pending binding of a slot and marks it dirty.
func (p *Pipeline) Set(c metadata.Category, slot int, b metadata.Binding) error {
	if p.destroyed {
		return fmt.Errorf("pipeline %q: %w", p.name, core.ErrPipelineDestroyed)
	}
	return p.pending.set(c, slot, b)
}

func (p *Pipeline) Clear(c metadata.Category, slot int) error {
	return p.Set(c, slot, metadata.Binding{})
}

// ClearAll empties every slot of c that was ever set.
func (p *Pipeline) ClearAll(c metadata.Category) error {
	if p.destroyed {
		return fmt.Errorf("pipeline %q: %w", p.name, core.ErrPipelineDestroyed)
	}
	return p.pending.clearAll(c)
}

func (p *Pipeline) SetTexture(slot int, h core.Handle) error {
	return p.Set(metadata.CategoryTexture, slot, metadata.TextureBinding(h))
}

func (p *Pipeline) SetSampler(slot int, h core.Handle) error {
	return p.Set(metadata.CategorySampler, slot, metadata.SamplerBinding(h))
}

func (p *Pipeline) SetUniformBuffer(slot int, h core.Handle, offset, size uint64) error {
	return p.Set(metadata.CategoryUniformBuffer, slot, metadata.BufferRangeBinding(h, offset, size))
}

func (p *Pipeline) SetStorageBuffer(slot int, h core.Handle, offset, size uint64) error {
	return p.Set(metadata.CategoryStorageBuffer, slot, metadata.BufferRangeBinding(h, offset, size))
}

func (p *Pipeline) SetAtomicCounterBuffer(slot int, h core.Handle, offset, size uint64) error {
	return p.Set(metadata.CategoryAtomicCounterBuffer, slot, metadata.BufferRangeBinding(h, offset, size))
}

func (p *Pipeline) SetImage(slot int, h core.Handle, level, layer uint32, layered bool, format uint32, access metadata.ImageAccess) error {
	return p.Set(metadata.CategoryImage, slot, metadata.ImageBinding(h, level, layer, layered, format, access))
}

// SetVertexBuffer binds h at offset to a vertex buffer slot. Stride and
// divisor come from the pipeline's own vertex layout.
func (p *Pipeline) SetVertexBuffer(slot int, h core.Handle, offset uint64) error {
	l := p.layout.BufferLayout(slot)
	return p.Set(metadata.CategoryVertexBuffer, slot, metadata.Binding{
		Handle:  h,
		Offset:  offset,
		Stride:  l.Stride,
		Divisor: l.Divisor,
	})
}

func (p *Pipeline) SetIndexBuffer(h core.Handle, offset uint64, indexType metadata.IndexType) error {
	return p.Set(metadata.CategoryIndexBuffer, 0, metadata.IndexBufferBinding(h, offset, indexType))
}

func (p *Pipeline) SetRenderState(rs metadata.RenderState) error {
	if p.destroyed {
		return fmt.Errorf("pipeline %q: %w", p.name, core.ErrPipelineDestroyed)
	}
	p.pending.setRenderState(rs)
	return nil
}

func (p *Pipeline) String() string {
	return fmt.Sprintf("pipeline(%s %s)", p.name, p.id)
}
