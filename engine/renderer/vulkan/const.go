package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/statecache/engine/renderer/metadata"
)

/**
 * @brief Descriptor type backing each descriptor category. Vertex and index
 * buffers are bound as command state and have no descriptor.
 */
var descriptorTypes = map[metadata.Category]vk.DescriptorType{
	metadata.CategoryTexture:             vk.DescriptorTypeSampledImage,
	metadata.CategorySampler:             vk.DescriptorTypeSampler,
	metadata.CategoryUniformBuffer:       vk.DescriptorTypeUniformBuffer,
	metadata.CategoryStorageBuffer:       vk.DescriptorTypeStorageBuffer,
	metadata.CategoryImage:               vk.DescriptorTypeStorageImage,
	metadata.CategoryAtomicCounterBuffer: vk.DescriptorTypeStorageBuffer,
}

/** @brief Binding number of a descriptor category in the shared set layout. */
func descriptorBinding(c metadata.Category) uint32 {
	return uint32(c)
}

/** @brief Timeout for frame and commit fences, in nanoseconds. */
const VULKAN_FENCE_TIMEOUT uint64 = 5_000_000_000

/** @brief Vertex input bindings are capped to what the cache can track. */
const VULKAN_MAX_VERTEX_BUFFERS int = 32

/** @brief Draws and dispatches per frame; each takes one descriptor set. */
const VULKAN_MAX_DESCRIPTOR_SETS_PER_FRAME uint32 = 1024
