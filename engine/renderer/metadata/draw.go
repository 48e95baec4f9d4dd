package metadata

import "github.com/spaghettifunk/statecache/engine/core"

/** @brief Primitive topology of a draw. */
type PrimitiveTopology int

const (
	PrimitiveTopologyTriangleList PrimitiveTopology = iota
	PrimitiveTopologyTriangleStrip
	PrimitiveTopologyLineList
	PrimitiveTopologyLineStrip
	PrimitiveTopologyPointList
)

/** @brief A draw operation. Consumes every reconciled binding of the active pipeline. */
type DrawCall struct {
	Topology PrimitiveTopology
	/** @brief Reads indices from the bound index buffer. Requires a non-null index buffer. */
	Indexed bool
	/** @brief First vertex, or first index when Indexed. */
	First uint32
	/** @brief Vertex count, or index count when Indexed. */
	Count uint32
	/** @brief Added to every index. Only meaningful when Indexed. */
	BaseVertex int32
	/** @brief Instance count. 0 is treated as 1. */
	Instances    uint32
	BaseInstance uint32
}

func (d DrawCall) InstanceCount() uint32 {
	if d.Instances == 0 {
		return 1
	}
	return d.Instances
}

/** @brief A compute dispatch. */
type DispatchCall struct {
	GroupsX uint32
	GroupsY uint32
	GroupsZ uint32
}

/**
 * @brief A buffer to buffer copy. Copies consume bindings too: the device
 * may route them through the currently bound state.
 */
type CopyCall struct {
	Src       core.Handle
	Dst       core.Handle
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}
