package metadata

import (
	"fmt"

	"github.com/spaghettifunk/statecache/engine/core"
)

/** @brief Available attribute types. */
type ShaderAttributeType uint

const (
	ShaderAttribTypeFloat32   ShaderAttributeType = 0
	ShaderAttribTypeFloat32_2 ShaderAttributeType = 1
	ShaderAttribTypeFloat32_3 ShaderAttributeType = 2
	ShaderAttribTypeFloat32_4 ShaderAttributeType = 3
	ShaderAttribTypeMatrix4   ShaderAttributeType = 4
	ShaderAttribTypeInt8      ShaderAttributeType = 5
	ShaderAttribTypeUint8     ShaderAttributeType = 6
	ShaderAttribTypeInt16     ShaderAttributeType = 7
	ShaderAttribTypeUint16    ShaderAttributeType = 8
	ShaderAttribTypeInt32     ShaderAttributeType = 9
	ShaderAttribTypeUint32    ShaderAttributeType = 10
)

var attributeSizes = map[ShaderAttributeType]uint32{
	ShaderAttribTypeFloat32:   4,
	ShaderAttribTypeFloat32_2: 8,
	ShaderAttribTypeFloat32_3: 12,
	ShaderAttribTypeFloat32_4: 16,
	ShaderAttribTypeMatrix4:   64,
	ShaderAttribTypeInt8:      1,
	ShaderAttribTypeUint8:     1,
	ShaderAttribTypeInt16:     2,
	ShaderAttribTypeUint16:    2,
	ShaderAttribTypeInt32:     4,
	ShaderAttribTypeUint32:    4,
}

/** @brief The size in bytes of one attribute of this type. 0 for unknown types. */
func (t ShaderAttributeType) Size() uint32 {
	return attributeSizes[t]
}

/**
 * @brief How a pipeline reads one vertex buffer slot. The same buffer handle
 * bound to the same slot means something different under two layouts with
 * different strides or divisors.
 */
type VertexBufferLayout struct {
	/** @brief Distance in bytes between consecutive elements. */
	Stride uint32
	/** @brief 0 advances per vertex, N advances every N instances. */
	Divisor uint32
}

/** @brief Represents a single vertex attribute read from a buffer slot. */
type VertexAttribute struct {
	/** @brief Shader input location. */
	Location uint32
	/** @brief Vertex buffer slot the attribute reads from. */
	Buffer uint32
	/** @brief The attribute type. */
	Format ShaderAttributeType
	/** @brief Byte offset of the attribute inside one element. */
	Offset uint32
}

/** @brief The declared vertex input layout of a pipeline. */
type VertexLayout struct {
	/** @brief One entry per vertex buffer slot, indexed by slot. */
	Buffers    []VertexBufferLayout
	Attributes []VertexAttribute
}

// BufferLayout returns the layout of slot, or the zero layout for slots the pipeline does not declare.
func (l VertexLayout) BufferLayout(slot int) VertexBufferLayout {
	if slot < 0 || slot >= len(l.Buffers) {
		return VertexBufferLayout{}
	}
	return l.Buffers[slot]
}

func (l VertexLayout) Validate(caps Capabilities) error {
	if len(l.Buffers) > caps.MaxSlots[CategoryVertexBuffer] {
		return fmt.Errorf("vertex layout declares %d buffers, device has %d: %w",
			len(l.Buffers), caps.MaxSlots[CategoryVertexBuffer], core.ErrCapacityExceeded)
	}
	if caps.MaxVertexAttributes > 0 && len(l.Attributes) > caps.MaxVertexAttributes {
		return fmt.Errorf("vertex layout declares %d attributes, device has %d: %w",
			len(l.Attributes), caps.MaxVertexAttributes, core.ErrCapacityExceeded)
	}
	for i, a := range l.Attributes {
		if int(a.Buffer) >= len(l.Buffers) {
			return fmt.Errorf("attribute %d reads undeclared buffer slot %d: %w", i, a.Buffer, core.ErrSlotOutOfRange)
		}
		size := a.Format.Size()
		if size == 0 {
			return fmt.Errorf("attribute %d has unknown format %d", i, a.Format)
		}
		if stride := l.Buffers[a.Buffer].Stride; stride != 0 && a.Offset+size > stride {
			return fmt.Errorf("attribute %d (offset %d, size %d) exceeds stride %d of buffer slot %d",
				i, a.Offset, size, stride, a.Buffer)
		}
	}
	return nil
}
