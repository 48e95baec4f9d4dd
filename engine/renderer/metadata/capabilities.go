package metadata

import (
	"fmt"

	"github.com/spaghettifunk/statecache/engine/core"
)

/**
 * @brief The capability table of a device. Filled once by the backend's
 * feature probe, optionally narrowed by configuration, and read-only after a
 * context has been created from it.
 */
type Capabilities struct {
	/** @brief Per category: the device can bind a contiguous run of slots in one call. */
	BatchBind [CategoryCount]bool
	/** @brief Per category: number of slots. */
	MaxSlots [CategoryCount]int
	/** @brief The device supports sparse (virtually backed) buffers. */
	SparseBuffer bool
	/** @brief Commitment granularity of sparse buffers. Power of two. */
	SparsePageSize uint64
	/** @brief Maximum number of vertex attributes a layout may declare. */
	MaxVertexAttributes int
}

/** @brief Default sparse page size, 64 KiB, as reported by most desktop drivers. */
const DefaultSparsePageSize uint64 = 65536

func DefaultCapabilities() Capabilities {
	caps := Capabilities{
		SparseBuffer:        true,
		SparsePageSize:      DefaultSparsePageSize,
		MaxVertexAttributes: 16,
	}
	caps.MaxSlots = [CategoryCount]int{
		CategoryTexture:             32,
		CategorySampler:             32,
		CategoryUniformBuffer:       16,
		CategoryStorageBuffer:       16,
		CategoryImage:               8,
		CategoryAtomicCounterBuffer: 8,
		CategoryVertexBuffer:        16,
		CategoryIndexBuffer:         1,
	}
	for c := range caps.BatchBind {
		caps.BatchBind[c] = true
	}
	// A single slot never benefits from batching.
	caps.BatchBind[CategoryIndexBuffer] = false
	return caps
}

func (c Capabilities) Validate() error {
	for cat := Category(0); cat < CategoryCount; cat++ {
		if n := c.MaxSlots[cat]; n <= 0 || n > MaxCategorySlots {
			return fmt.Errorf("%s capacity %d outside (0, %d]: %w", cat, n, MaxCategorySlots, core.ErrInvalidCapabilities)
		}
	}
	if c.MaxSlots[CategoryIndexBuffer] != 1 {
		return fmt.Errorf("index buffer capacity must be 1: %w", core.ErrInvalidCapabilities)
	}
	if c.SparseBuffer && !IsPowerOfTwo(c.SparsePageSize) {
		return fmt.Errorf("sparse page size %d is not a power of two: %w", c.SparsePageSize, core.ErrInvalidCapabilities)
	}
	if c.MaxVertexAttributes < 0 {
		return fmt.Errorf("negative vertex attribute limit: %w", core.ErrInvalidCapabilities)
	}
	return nil
}

// Override returns a copy of c narrowed by cfg. Unknown category names are an error.
func (c Capabilities) Override(cfg core.CapabilityConfig) (Capabilities, error) {
	out := c
	for _, name := range cfg.DisableBatch {
		cat, err := ParseCategory(name)
		if err != nil {
			return c, err
		}
		out.BatchBind[cat] = false
	}
	for name, n := range cfg.MaxSlots {
		cat, err := ParseCategory(name)
		if err != nil {
			return c, err
		}
		if n <= 0 {
			return c, fmt.Errorf("capabilities.max_slots.%s must be > 0: %w", name, core.ErrInvalidCapabilities)
		}
		if n < out.MaxSlots[cat] {
			out.MaxSlots[cat] = n
		}
	}
	if cfg.DisableSparse {
		out.SparseBuffer = false
	}
	return out, out.Validate()
}
