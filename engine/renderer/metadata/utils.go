package metadata

import "golang.org/x/exp/constraints"

/** @brief A byte range inside a resource. */
type MemoryRange struct {
	/** @brief The Offset in bytes. */
	Offset uint64
	/** @brief The size in bytes. */
	Size uint64
}

func (r MemoryRange) End() uint64 {
	return r.Offset + r.Size
}

// GetAligned rounds operand up to the next multiple of granularity, which must be a power of two.
func GetAligned[T constraints.Unsigned](operand, granularity T) T {
	val := (operand + (granularity - 1)) &^ (granularity - 1)
	return val
}

// IsAligned reports whether operand is a multiple of granularity, which must be a power of two.
func IsAligned[T constraints.Unsigned](operand, granularity T) bool {
	return operand&(granularity-1) == 0
}

func IsPowerOfTwo[T constraints.Unsigned](v T) bool {
	return v != 0 && v&(v-1) == 0
}
