package headless

import (
	"fmt"

	"github.com/spaghettifunk/statecache/engine/core"
	"github.com/spaghettifunk/statecache/engine/renderer/metadata"
)

type Op int

const (
	OpBindSingle Op = iota
	OpBindBatch
	OpApplyRenderState
	OpDraw
	OpDispatch
	OpCopyBuffer
	OpCommitPages
	OpCopyPages
	OpResourceCreate
	OpResourceDestroy
)

var opNames = [...]string{
	OpBindSingle:       "bind_single",
	OpBindBatch:        "bind_batch",
	OpApplyRenderState: "apply_render_state",
	OpDraw:             "draw",
	OpDispatch:         "dispatch",
	OpCopyBuffer:       "copy_buffer",
	OpCommitPages:      "commit_pages",
	OpCopyPages:        "copy_pages",
	OpResourceCreate:   "resource_create",
	OpResourceDestroy:  "resource_destroy",
}

func (o Op) String() string {
	if o < 0 || int(o) >= len(opNames) {
		return fmt.Sprintf("op(%d)", int(o))
	}
	return opNames[o]
}

// Call is one recorded device call. Only the fields of its Op are set.
type Call struct {
	Op       Op
	Category metadata.Category
	// First slot of a bind.
	Slot     int
	Bindings []metadata.Binding

	RenderState metadata.RenderState
	Draw        metadata.DrawCall
	Dispatch    metadata.DispatchCall
	Copy        metadata.CopyCall

	// Commit and page copy calls.
	Handle core.Handle
	Src    core.Handle
	Offset uint64
	Size   uint64
	Commit bool
}

func (c Call) String() string {
	switch c.Op {
	case OpBindSingle, OpBindBatch:
		return fmt.Sprintf("%s %s[%d:%d]", c.Op, c.Category, c.Slot, c.Slot+len(c.Bindings))
	case OpCommitPages:
		return fmt.Sprintf("%s %s [%d,%d) commit=%t", c.Op, c.Handle, c.Offset, c.Offset+c.Size, c.Commit)
	case OpCopyPages:
		return fmt.Sprintf("%s %s->%s [%d,%d)", c.Op, c.Src, c.Handle, c.Offset, c.Offset+c.Size)
	}
	return c.Op.String()
}

// Backend is a device without hardware. It records every call in order and
// mirrors the applied binding state, so callers can check what a real
// device would have ended up with.
type Backend struct {
	caps  metadata.Capabilities
	calls []Call
	fail  func(Call) error

	bound       [metadata.CategoryCount][]metadata.Binding
	renderState metadata.RenderState
	resources   map[core.Handle]*metadata.ResourceConfig
	frame       uint64
	frameScope  metadata.FrameScope
}

func New(caps metadata.Capabilities) *Backend {
	b := &Backend{
		caps:        caps,
		renderState: metadata.DefaultRenderState(),
		resources:   make(map[core.Handle]*metadata.ResourceConfig),
	}
	for c := range b.bound {
		b.bound[c] = make([]metadata.Binding, caps.MaxSlots[c])
	}
	return b
}

func (b *Backend) Initialize(appName string) error {
	core.LogInfo("headless backend initialized for %s", appName)
	return nil
}

func (b *Backend) Shutdown() error {
	if n := len(b.resources); n > 0 {
		core.LogWarn("headless backend shut down with %d live resources", n)
	}
	return nil
}

// BeginFrame drops the state named by the frame scope, the way a device
// that records bindings into a per-frame command buffer does.
func (b *Backend) BeginFrame(deltaTime float64) error {
	for _, c := range b.frameScope.Categories {
		for slot := range b.bound[c] {
			b.bound[c][slot] = metadata.Binding{}
		}
	}
	if b.frameScope.RenderState {
		b.renderState = metadata.DefaultRenderState()
	}
	return nil
}

// DropOnFrame sets the state BeginFrame drops. Empty by default.
func (b *Backend) DropOnFrame(scope metadata.FrameScope) {
	b.frameScope = scope
}

func (b *Backend) FrameScope() metadata.FrameScope {
	return b.frameScope
}

func (b *Backend) EndFrame(deltaTime float64) error {
	b.frame++
	return nil
}

func (b *Backend) Capabilities() metadata.Capabilities {
	return b.caps
}

// FailWith installs fn, which is consulted before every call is recorded.
// A non-nil error fails the call without recording or applying it.
func (b *Backend) FailWith(fn func(Call) error) {
	b.fail = fn
}

func (b *Backend) record(c Call) error {
	if b.fail != nil {
		if err := b.fail(c); err != nil {
			return err
		}
	}
	b.calls = append(b.calls, c)
	return nil
}

// Calls returns the recorded calls, oldest first.
func (b *Backend) Calls() []Call {
	return b.calls
}

// Reset forgets the recorded calls. The mirrored state is kept.
func (b *Backend) Reset() {
	b.calls = b.calls[:0]
}

// Count returns the number of recorded calls with one of the given ops.
func (b *Backend) Count(ops ...Op) int {
	n := 0
	for _, c := range b.calls {
		for _, op := range ops {
			if c.Op == op {
				n++
				break
			}
		}
	}
	return n
}

// BindCalls returns the number of bind and render state calls.
func (b *Backend) BindCalls() int {
	return b.Count(OpBindSingle, OpBindBatch, OpApplyRenderState)
}

// Bound returns what the device has applied to a slot.
func (b *Backend) Bound(c metadata.Category, slot int) metadata.Binding {
	return b.bound[c][slot]
}

func (b *Backend) AppliedRenderState() metadata.RenderState {
	return b.renderState
}

func (b *Backend) Frame() uint64 {
	return b.frame
}

func (b *Backend) checkSlots(c metadata.Category, first, n int) error {
	if !c.Valid() {
		return core.ErrInvalidCategory
	}
	if first < 0 || first+n > len(b.bound[c]) {
		return fmt.Errorf("%s [%d,%d): %w", c, first, first+n, core.ErrSlotOutOfRange)
	}
	return nil
}

func (b *Backend) BindSingle(c metadata.Category, slot int, binding metadata.Binding) error {
	if err := b.checkSlots(c, slot, 1); err != nil {
		return err
	}
	if err := b.record(Call{Op: OpBindSingle, Category: c, Slot: slot, Bindings: []metadata.Binding{binding}}); err != nil {
		return err
	}
	b.bound[c][slot] = binding
	return nil
}

func (b *Backend) BindBatch(c metadata.Category, first int, bindings []metadata.Binding) error {
	if err := b.checkSlots(c, first, len(bindings)); err != nil {
		return err
	}
	if !b.caps.BatchBind[c] {
		return fmt.Errorf("batched bind of %s is not supported", c)
	}
	cp := append([]metadata.Binding(nil), bindings...)
	if err := b.record(Call{Op: OpBindBatch, Category: c, Slot: first, Bindings: cp}); err != nil {
		return err
	}
	copy(b.bound[c][first:], cp)
	return nil
}

func (b *Backend) ApplyRenderState(rs metadata.RenderState) error {
	if err := b.record(Call{Op: OpApplyRenderState, RenderState: rs}); err != nil {
		return err
	}
	b.renderState = rs
	return nil
}

func (b *Backend) Draw(call metadata.DrawCall) error {
	return b.record(Call{Op: OpDraw, Draw: call})
}

func (b *Backend) Dispatch(call metadata.DispatchCall) error {
	return b.record(Call{Op: OpDispatch, Dispatch: call})
}

func (b *Backend) CopyBuffer(call metadata.CopyCall) error {
	return b.record(Call{Op: OpCopyBuffer, Copy: call})
}

func (b *Backend) CommitPages(h core.Handle, offset, size uint64, commit bool) error {
	if !b.caps.SparseBuffer {
		return core.ErrSparseUnsupported
	}
	return b.record(Call{Op: OpCommitPages, Handle: h, Offset: offset, Size: size, Commit: commit})
}

func (b *Backend) CopyPages(dst, src core.Handle, offset, size uint64) error {
	return b.record(Call{Op: OpCopyPages, Handle: dst, Src: src, Offset: offset, Size: size})
}

func (b *Backend) ResourceCreate(h core.Handle, config *metadata.ResourceConfig) error {
	if _, ok := b.resources[h]; ok {
		return fmt.Errorf("%s already exists: %w", h, core.ErrInvalidHandle)
	}
	if config.Kind == metadata.ResourceKindSparseBuffer && !b.caps.SparseBuffer {
		return core.ErrSparseUnsupported
	}
	if err := b.record(Call{Op: OpResourceCreate, Handle: h, Size: config.Size}); err != nil {
		return err
	}
	b.resources[h] = config
	return nil
}

func (b *Backend) ResourceDestroy(h core.Handle) error {
	if _, ok := b.resources[h]; !ok {
		return fmt.Errorf("%s: %w", h, core.ErrInvalidHandle)
	}
	if err := b.record(Call{Op: OpResourceDestroy, Handle: h}); err != nil {
		return err
	}
	delete(b.resources, h)
	return nil
}

// Resources returns the number of live resources.
func (b *Backend) Resources() int {
	return len(b.resources)
}
