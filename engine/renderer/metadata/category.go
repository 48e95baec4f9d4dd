package metadata

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/statecache/engine/core"
)

/**
 * @brief A binding category. Each category owns a fixed-capacity table of
 * slots, both in the shadow state of a context and in the pending state of
 * every pipeline.
 */
type Category int

const (
	/** @brief Sampled textures. */
	CategoryTexture Category = iota
	/** @brief Sampler objects. */
	CategorySampler
	/** @brief Uniform buffer ranges. */
	CategoryUniformBuffer
	/** @brief Shader storage buffer ranges. */
	CategoryStorageBuffer
	/** @brief Storage images (level, layer, format, access). */
	CategoryImage
	/** @brief Atomic counter buffer ranges. */
	CategoryAtomicCounterBuffer
	/** @brief Vertex attribute buffers (offset from the binding, stride/divisor from the pipeline layout). */
	CategoryVertexBuffer
	/** @brief The index buffer. Single slot. */
	CategoryIndexBuffer

	CategoryCount
)

/** @brief Hard ceiling for any category capacity. */
const MaxCategorySlots = 256

var categoryNames = [CategoryCount]string{
	CategoryTexture:             "texture",
	CategorySampler:             "sampler",
	CategoryUniformBuffer:       "uniform_buffer",
	CategoryStorageBuffer:       "storage_buffer",
	CategoryImage:               "image",
	CategoryAtomicCounterBuffer: "atomic_counter_buffer",
	CategoryVertexBuffer:        "vertex_buffer",
	CategoryIndexBuffer:         "index_buffer",
}

func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c]
}

func (c Category) Valid() bool {
	return c >= 0 && c < CategoryCount
}

/**
 * @brief Reports whether the applied meaning of a slot in this category
 * depends on the declared layout of the consumer that is active. Such
 * categories are re-validated in full whenever the active consumer changes.
 */
func (c Category) LayoutDependent() bool {
	return c == CategoryVertexBuffer || c == CategoryIndexBuffer
}

// ParseCategory maps a category name (as used in config files) back to the category.
func ParseCategory(name string) (Category, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for c, cn := range categoryNames {
		if cn == n {
			return Category(c), nil
		}
	}
	return 0, fmt.Errorf("%q: %w", name, core.ErrInvalidCategory)
}

// AllCategories lists every category in reconciliation order.
func AllCategories() []Category {
	cs := make([]Category, CategoryCount)
	for i := range cs {
		cs[i] = Category(i)
	}
	return cs
}
