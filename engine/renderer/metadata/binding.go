package metadata

import (
	"fmt"

	"github.com/spaghettifunk/statecache/engine/core"
)

/** @brief Access mode of a storage image binding. */
type ImageAccess uint8

const (
	ImageAccessReadWrite ImageAccess = iota
	ImageAccessReadOnly
	ImageAccessWriteOnly
)

/** @brief Element type of an index buffer binding, stored in Binding.Format. */
type IndexType uint32

const (
	IndexTypeUint16 IndexType = iota
	IndexTypeUint32
)

/**
 * @brief One slot of a binding table. Only the fields meaningful for the
 * category are set; the rest stay zero. The zero value means "nothing bound".
 * Bindings are compared by value, handle generation included.
 */
type Binding struct {
	/** @brief The bound resource, or the null handle. */
	Handle core.Handle
	/** @brief Byte offset into a buffer. */
	Offset uint64
	/** @brief Byte size of a buffer range. 0 means the whole buffer. */
	Size uint64
	/** @brief Image mip level. */
	Level uint32
	/** @brief Image layer, when Layered is false. */
	Layer uint32
	/** @brief Binds every layer of the image. */
	Layered bool
	/** @brief Image format, or the IndexType of an index buffer. */
	Format uint32
	/** @brief Image access mode. */
	Access ImageAccess
	/** @brief Vertex buffer stride in bytes, taken from the pipeline layout. */
	Stride uint32
	/** @brief Vertex buffer instancing divisor, taken from the pipeline layout. */
	Divisor uint32
}

func (b Binding) IsEmpty() bool {
	return b == Binding{}
}

// References reports whether the binding points at h.
func (b Binding) References(h core.Handle) bool {
	return !h.IsNull() && b.Handle == h
}

func (b Binding) String() string {
	if b.IsEmpty() {
		return "<empty>"
	}
	return fmt.Sprintf("{%s off=%d size=%d}", b.Handle, b.Offset, b.Size)
}

func TextureBinding(h core.Handle) Binding {
	return Binding{Handle: h}
}

func SamplerBinding(h core.Handle) Binding {
	return Binding{Handle: h}
}

func BufferRangeBinding(h core.Handle, offset, size uint64) Binding {
	return Binding{Handle: h, Offset: offset, Size: size}
}

func ImageBinding(h core.Handle, level, layer uint32, layered bool, format uint32, access ImageAccess) Binding {
	return Binding{Handle: h, Level: level, Layer: layer, Layered: layered, Format: format, Access: access}
}

func IndexBufferBinding(h core.Handle, offset uint64, indexType IndexType) Binding {
	return Binding{Handle: h, Offset: offset, Format: uint32(indexType)}
}
