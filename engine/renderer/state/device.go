package state

import "github.com/spaghettifunk/statecache/engine/renderer/metadata"

// Device is the call-expensive interface the cache sits in front of. Every
// method is one device call. Implementations are bound to the thread that
// owns the context and are never called concurrently.
type Device interface {
	// BindSingle binds one slot of a category.
	BindSingle(category metadata.Category, slot int, binding metadata.Binding) error
	// BindBatch binds len(bindings) contiguous slots starting at first.
	// Only called for categories whose capability allows batching.
	BindBatch(category metadata.Category, first int, bindings []metadata.Binding) error
	// ApplyRenderState applies the fixed-function state as a whole.
	ApplyRenderState(rs metadata.RenderState) error

	Draw(call metadata.DrawCall) error
	Dispatch(call metadata.DispatchCall) error
	CopyBuffer(call metadata.CopyCall) error
}
