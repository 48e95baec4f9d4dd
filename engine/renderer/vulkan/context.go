package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/statecache/engine/core"
)

type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks

	// Set only when the debug log level enabled validation.
	debugMessenger vk.DebugReportCallback

	Device *VulkanDevice

	// One command buffer recorded per frame, guarded by Fence.
	CommandBuffer *VulkanCommandBuffer
	Fence         *VulkanFence

	Descriptors *VulkanDescriptorTable
	Locks       *VulkanLockPool

	// Device objects by the handle the cache knows them under.
	Resources map[core.Handle]*VulkanResource

	// The pipelines draws and dispatches run with, by bind point.
	Pipelines map[vk.PipelineBindPoint]*VulkanPipeline
}

func (vc *VulkanContext) FindMemoryIndex(typeFilter, propertyFlags uint32) int32 {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(vc.Device.PhysicalDevice, &memoryProperties)
	memoryProperties.Deref()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		memoryProperties.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (uint32(memoryProperties.MemoryTypes[i].PropertyFlags)&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}
