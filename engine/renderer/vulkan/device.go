package vulkan

import (
	"fmt"
	"runtime"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/statecache/engine/core"
	"github.com/spaghettifunk/statecache/engine/math"
	"github.com/spaghettifunk/statecache/engine/renderer/metadata"
)

type VulkanDevice struct {
	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device

	// Graphics and compute work share one queue family.
	QueueIndex       int32
	SparseQueueIndex int32

	Queue       vk.Queue
	SparseQueue vk.Queue

	CommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties
}

type VulkanPhysicalDeviceRequirements struct {
	Graphics             bool
	Compute              bool
	SparseBinding        bool
	DeviceExtensionNames []string
	DiscreteGPU          bool
}

type VulkanPhysicalDeviceQueueFamilyInfo struct {
	FamilyIndex       int32
	SparseFamilyIndex int32
}

func DeviceCreate(context *VulkanContext, requireSparse bool) error {
	if err := SelectPhysicalDevice(context, requireSparse); err != nil {
		return err
	}

	core.LogInfo("Creating logical device...")

	// NOTE: Do not create additional queues for shared indices.
	indices := []uint32{uint32(context.Device.QueueIndex)}
	if context.Device.SparseQueueIndex >= 0 && context.Device.SparseQueueIndex != context.Device.QueueIndex {
		indices = append(indices, uint32(context.Device.SparseQueueIndex))
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: indices[i],
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
		context.Locks.SetQueueFamily(indices[i])
	}

	// Only request what the probe found.
	deviceFeatures := vk.PhysicalDeviceFeatures{
		SparseBinding:         context.Device.Features.SparseBinding,
		SparseResidencyBuffer: context.Device.Features.SparseResidencyBuffer,
		WideLines:             context.Device.Features.WideLines,
	}

	extensionNames := []string{}
	if hasDeviceExtension(context.Device.PhysicalDevice, "VK_KHR_portability_subset") {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	var device vk.Device
	if err := checkResult("vkCreateDevice", vk.CreateDevice(context.Device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &device)); err != nil {
		core.LogError(err.Error())
		return err
	}
	context.Device.LogicalDevice = device
	core.LogInfo("Logical device created.")

	var queue vk.Queue
	vk.GetDeviceQueue(device, uint32(context.Device.QueueIndex), 0, &queue)
	context.Device.Queue = queue
	if context.Device.SparseQueueIndex >= 0 {
		var sparseQueue vk.Queue
		vk.GetDeviceQueue(device, uint32(context.Device.SparseQueueIndex), 0, &sparseQueue)
		context.Device.SparseQueue = sparseQueue
	}
	core.LogInfo("Queues obtained.")

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(context.Device.QueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if err := checkResult("vkCreateCommandPool", vk.CreateCommandPool(device, &poolCreateInfo, context.Allocator, &pool)); err != nil {
		core.LogError(err.Error())
		return err
	}
	context.Device.CommandPool = pool
	core.LogInfo("Command pool created.")

	return nil
}

func DeviceDestroy(context *VulkanContext) {
	if context.Device == nil {
		return
	}
	// Unset queues
	context.Device.Queue = nil
	context.Device.SparseQueue = nil

	if context.Device.CommandPool != vk.NullCommandPool {
		core.LogInfo("Destroying command pools...")
		vk.DestroyCommandPool(context.Device.LogicalDevice, context.Device.CommandPool, context.Allocator)
		context.Device.CommandPool = vk.NullCommandPool
	}

	if context.Device.LogicalDevice != nil {
		core.LogInfo("Destroying logical device...")
		vk.DestroyDevice(context.Device.LogicalDevice, context.Allocator)
		context.Device.LogicalDevice = nil
	}

	// Physical devices are not destroyed.
	context.Device.PhysicalDevice = nil
	context.Device.QueueIndex = -1
	context.Device.SparseQueueIndex = -1
}

func SelectPhysicalDevice(context *VulkanContext, requireSparse bool) error {
	var physicalDeviceCount uint32
	if err := checkResult("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil)); err != nil {
		return err
	}
	if physicalDeviceCount == 0 {
		return fmt.Errorf("no devices which support Vulkan were found")
	}

	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if err := checkResult("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices)); err != nil {
		return err
	}

	requirements := VulkanPhysicalDeviceRequirements{
		Graphics:      true,
		Compute:       true,
		SparseBinding: requireSparse,
		DiscreteGPU:   runtime.GOOS != "darwin",
	}

	for i := range physicalDevices {
		properties := vk.PhysicalDeviceProperties{}
		vk.GetPhysicalDeviceProperties(physicalDevices[i], &properties)
		properties.Deref()
		properties.Limits.Deref()

		features := vk.PhysicalDeviceFeatures{}
		vk.GetPhysicalDeviceFeatures(physicalDevices[i], &features)
		features.Deref()

		memory := vk.PhysicalDeviceMemoryProperties{}
		vk.GetPhysicalDeviceMemoryProperties(physicalDevices[i], &memory)
		memory.Deref()

		queueInfo, ok := PhysicalDeviceMeetsRequirements(physicalDevices[i], &properties, &features, &requirements)
		if !ok {
			continue
		}

		core.LogInfo("Selected device: '%s'.", cString(properties.DeviceName[:]))
		core.LogInfo(
			"Vulkan API version: %d.%d.%d",
			vk.Version(properties.ApiVersion).Major(),
			vk.Version(properties.ApiVersion).Minor(),
			vk.Version(properties.ApiVersion).Patch(),
		)

		context.Device.PhysicalDevice = physicalDevices[i]
		context.Device.QueueIndex = queueInfo.FamilyIndex
		context.Device.SparseQueueIndex = queueInfo.SparseFamilyIndex

		// Keep a copy of properties, features and memory info for later use.
		context.Device.Properties = properties
		context.Device.Features = features
		context.Device.Memory = memory
		core.LogInfo("Physical device selected.")
		return nil
	}

	return fmt.Errorf("no physical devices were found which meet the requirements")
}

func PhysicalDeviceMeetsRequirements(device vk.PhysicalDevice, properties *vk.PhysicalDeviceProperties, features *vk.PhysicalDeviceFeatures, requirements *VulkanPhysicalDeviceRequirements) (VulkanPhysicalDeviceQueueFamilyInfo, bool) {
	info := VulkanPhysicalDeviceQueueFamilyInfo{FamilyIndex: -1, SparseFamilyIndex: -1}

	if requirements.DiscreteGPU && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		core.LogInfo("Device is not a discrete GPU, and one is required. Skipping.")
		return info, false
	}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	var want vk.QueueFlagBits
	if requirements.Graphics {
		want |= vk.QueueGraphicsBit
	}
	if requirements.Compute {
		want |= vk.QueueComputeBit
	}

	core.LogDebug("Family | Graphics | Compute | Sparse")
	for i := range queueFamilies {
		queueFamilies[i].Deref()
		flags := vk.QueueFlagBits(queueFamilies[i].QueueFlags)
		core.LogDebug("%6d | %8t | %7t | %t", i, flags&vk.QueueGraphicsBit != 0, flags&vk.QueueComputeBit != 0, flags&vk.QueueSparseBindingBit != 0)

		if info.FamilyIndex < 0 && flags&want == want {
			info.FamilyIndex = int32(i)
		}
		// Prefer sharing the main family, so no ownership transfer is needed.
		if flags&vk.QueueSparseBindingBit != 0 && (info.SparseFamilyIndex < 0 || int32(i) == info.FamilyIndex) {
			info.SparseFamilyIndex = int32(i)
		}
	}

	if info.FamilyIndex < 0 {
		core.LogInfo("Device has no graphics and compute queue, skipping.")
		return info, false
	}
	if requirements.SparseBinding && (info.SparseFamilyIndex < 0 || features.SparseResidencyBuffer == vk.False) {
		core.LogInfo("Device does not support sparse buffers, skipping.")
		return info, false
	}

	for _, name := range requirements.DeviceExtensionNames {
		if !hasDeviceExtension(device, name) {
			core.LogInfo("Required extension not found: '%s', skipping device.", name)
			return info, false
		}
	}

	core.LogInfo("Device meets queue requirements.")
	return info, true
}

func hasDeviceExtension(device vk.PhysicalDevice, name string) bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vk.Success || count == 0 {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		if cString(available[i].ExtensionName[:]) == name {
			return true
		}
	}
	return false
}

/**
 * @brief Fills the capability table from the selected device's features and
 * per-stage descriptor limits.
 */
func ProbeCapabilities(device *VulkanDevice) metadata.Capabilities {
	limits := device.Properties.Limits
	clampSlots := func(n uint32) int {
		return math.Clamp(int(n), 1, metadata.MaxCategorySlots)
	}

	caps := metadata.DefaultCapabilities()
	caps.MaxSlots[metadata.CategoryTexture] = clampSlots(limits.MaxPerStageDescriptorSampledImages)
	caps.MaxSlots[metadata.CategorySampler] = clampSlots(limits.MaxPerStageDescriptorSamplers)
	caps.MaxSlots[metadata.CategoryUniformBuffer] = clampSlots(limits.MaxPerStageDescriptorUniformBuffers)
	caps.MaxSlots[metadata.CategoryImage] = clampSlots(limits.MaxPerStageDescriptorStorageImages)

	// Atomic counters are storage buffers here, so the two share the limit.
	storage := clampSlots(limits.MaxPerStageDescriptorStorageBuffers / 2)
	caps.MaxSlots[metadata.CategoryStorageBuffer] = storage
	caps.MaxSlots[metadata.CategoryAtomicCounterBuffer] = storage

	caps.MaxSlots[metadata.CategoryVertexBuffer] = math.Min(clampSlots(limits.MaxVertexInputBindings), VULKAN_MAX_VERTEX_BUFFERS)
	caps.MaxVertexAttributes = int(limits.MaxVertexInputAttributes)

	// vkUpdateDescriptorSets and vkCmdBindVertexBuffers both take contiguous runs.
	for c := range caps.BatchBind {
		caps.BatchBind[c] = true
	}
	caps.BatchBind[metadata.CategoryIndexBuffer] = false

	caps.SparseBuffer = device.SparseQueueIndex >= 0 &&
		device.Features.SparseBinding == vk.True &&
		device.Features.SparseResidencyBuffer == vk.True
	caps.SparsePageSize = metadata.DefaultSparsePageSize
	return caps
}
