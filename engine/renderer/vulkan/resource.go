package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/statecache/engine/core"
	"github.com/spaghettifunk/statecache/engine/renderer/metadata"
)

// VulkanResource is the device object behind a handle. Which fields are set
// depends on Kind.
type VulkanResource struct {
	Name string
	Kind metadata.ResourceKind
	Size uint64

	Buffer vk.Buffer
	Memory vk.DeviceMemory

	Image   *VulkanImage
	Sampler vk.Sampler

	// Sparse buffers: one allocation per committed page, by page offset.
	Pages      map[uint64]vk.DeviceMemory
	PageSize   uint64
	memoryType uint32
}

func (vc *VulkanContext) resource(h core.Handle) (*VulkanResource, error) {
	res, ok := vc.Resources[h]
	if !ok {
		return nil, fmt.Errorf("%s: %w", h, core.ErrInvalidHandle)
	}
	return res, nil
}

const bufferUsage = vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit |
	vk.BufferUsageUniformBufferBit | vk.BufferUsageStorageBufferBit |
	vk.BufferUsageVertexBufferBit | vk.BufferUsageIndexBufferBit

func ResourceCreate(context *VulkanContext, config *metadata.ResourceConfig, pageSize uint64) (*VulkanResource, error) {
	res := &VulkanResource{Name: config.Name, Kind: config.Kind, Size: config.Size}

	var err error
	switch config.Kind {
	case metadata.ResourceKindBuffer:
		err = res.createBuffer(context, false)
	case metadata.ResourceKindSparseBuffer:
		res.PageSize = pageSize
		res.Pages = make(map[uint64]vk.DeviceMemory)
		err = res.createBuffer(context, true)
	case metadata.ResourceKindTexture:
		res.Image, err = ImageCreate(context, config.Width, config.Height, config.Layers, imageFormat(config.Format),
			vk.ImageUsageSampledBit|vk.ImageUsageTransferDstBit)
	case metadata.ResourceKindImage:
		res.Image, err = ImageCreate(context, config.Width, config.Height, config.Layers, imageFormat(config.Format),
			vk.ImageUsageStorageBit|vk.ImageUsageTransferSrcBit|vk.ImageUsageTransferDstBit)
	case metadata.ResourceKindSampler:
		err = res.createSampler(context)
	default:
		err = fmt.Errorf("unknown resource kind %d", config.Kind)
	}
	if err != nil {
		res.Destroy(context)
		return nil, fmt.Errorf("create %s %q: %w", config.Kind, config.Name, err)
	}
	return res, nil
}

func imageFormat(f uint32) vk.Format {
	if f == 0 {
		return vk.FormatR8g8b8a8Unorm
	}
	return vk.Format(f)
}

func (res *VulkanResource) createBuffer(context *VulkanContext, sparse bool) error {
	if res.Size == 0 {
		return fmt.Errorf("buffer size is 0")
	}
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(res.Size),
		Usage:       vk.BufferUsageFlags(bufferUsage),
		SharingMode: vk.SharingModeExclusive,
	}
	if sparse {
		createInfo.Flags = vk.BufferCreateFlags(vk.BufferCreateSparseBindingBit | vk.BufferCreateSparseResidencyBit)
	}

	var buffer vk.Buffer
	if err := checkResult("vkCreateBuffer", vk.CreateBuffer(context.Device.LogicalDevice, &createInfo, context.Allocator, &buffer)); err != nil {
		return err
	}
	res.Buffer = buffer

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(context.Device.LogicalDevice, res.Buffer, &requirements)
	requirements.Deref()

	memoryType := context.FindMemoryIndex(requirements.MemoryTypeBits, uint32(vk.MemoryPropertyDeviceLocalBit))
	if memoryType == -1 {
		return fmt.Errorf("required memory type not found")
	}
	res.memoryType = uint32(memoryType)

	if sparse {
		if !metadata.IsAligned(res.PageSize, uint64(requirements.Alignment)) {
			return fmt.Errorf("page size %d does not match the sparse alignment %d", res.PageSize, requirements.Alignment)
		}
		// Backed page by page through CommitPages.
		return nil
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(metadata.GetAligned(uint64(requirements.Size), uint64(requirements.Alignment))),
		MemoryTypeIndex: res.memoryType,
	}
	var memory vk.DeviceMemory
	if err := context.Locks.SafeCall(MemoryManagement, func() error {
		return checkResult("vkAllocateMemory", vk.AllocateMemory(context.Device.LogicalDevice, &allocateInfo, context.Allocator, &memory))
	}); err != nil {
		return err
	}
	res.Memory = memory
	return checkResult("vkBindBufferMemory", vk.BindBufferMemory(context.Device.LogicalDevice, res.Buffer, res.Memory, 0))
}

func (res *VulkanResource) createSampler(context *VulkanContext) error {
	createInfo := vk.SamplerCreateInfo{
		SType:            vk.StructureTypeSamplerCreateInfo,
		MagFilter:        vk.FilterLinear,
		MinFilter:        vk.FilterLinear,
		AddressModeU:     vk.SamplerAddressModeRepeat,
		AddressModeV:     vk.SamplerAddressModeRepeat,
		AddressModeW:     vk.SamplerAddressModeRepeat,
		AnisotropyEnable: vk.False,
		MaxAnisotropy:    1.0,
		BorderColor:      vk.BorderColorIntOpaqueBlack,
		CompareOp:        vk.CompareOpAlways,
		MipmapMode:       vk.SamplerMipmapModeLinear,
	}
	var sampler vk.Sampler
	if err := checkResult("vkCreateSampler", vk.CreateSampler(context.Device.LogicalDevice, &createInfo, context.Allocator, &sampler)); err != nil {
		return err
	}
	res.Sampler = sampler
	return nil
}

// Destroy releases every device object of the resource. The device must be idle.
func (res *VulkanResource) Destroy(context *VulkanContext) {
	device := context.Device.LogicalDevice
	if res.Buffer != vk.NullBuffer {
		vk.DestroyBuffer(device, res.Buffer, context.Allocator)
		res.Buffer = vk.NullBuffer
	}
	if res.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(device, res.Memory, context.Allocator)
		res.Memory = vk.NullDeviceMemory
	}
	for offset, memory := range res.Pages {
		vk.FreeMemory(device, memory, context.Allocator)
		delete(res.Pages, offset)
	}
	if res.Image != nil {
		res.Image.Destroy(context)
		res.Image = nil
	}
	if res.Sampler != vk.NullSampler {
		vk.DestroySampler(device, res.Sampler, context.Allocator)
		res.Sampler = vk.NullSampler
	}
}

/**
 * @brief Binds (or unbinds) page-sized allocations for [offset, offset+size)
 * with one vkQueueBindSparse call and waits for it. Pages already in the
 * requested state are left alone.
 */
func (res *VulkanResource) CommitPages(context *VulkanContext, offset, size uint64, commit bool) error {
	if res.Kind != metadata.ResourceKindSparseBuffer {
		return fmt.Errorf("%q is a %s: %w", res.Name, res.Kind, core.ErrSparseUnsupported)
	}

	binds := []vk.SparseMemoryBind{}
	freed := []vk.DeviceMemory{}
	for page := offset; page < offset+size; page += res.PageSize {
		memory, committed := res.Pages[page]
		if committed == commit {
			continue
		}
		bind := vk.SparseMemoryBind{
			ResourceOffset: vk.DeviceSize(page),
			Size:           vk.DeviceSize(res.PageSize),
			Memory:         vk.NullDeviceMemory,
		}
		if commit {
			allocateInfo := vk.MemoryAllocateInfo{
				SType:           vk.StructureTypeMemoryAllocateInfo,
				AllocationSize:  vk.DeviceSize(res.PageSize),
				MemoryTypeIndex: res.memoryType,
			}
			if err := checkResult("vkAllocateMemory", vk.AllocateMemory(context.Device.LogicalDevice, &allocateInfo, context.Allocator, &memory)); err != nil {
				for _, m := range binds {
					vk.FreeMemory(context.Device.LogicalDevice, m.Memory, context.Allocator)
				}
				return err
			}
			bind.Memory = memory
		} else {
			freed = append(freed, memory)
		}
		binds = append(binds, bind)
	}
	if len(binds) == 0 {
		return nil
	}

	bindInfo := vk.BindSparseInfo{
		SType:           vk.StructureTypeBindSparseInfo,
		BufferBindCount: 1,
		PBufferBinds: []vk.SparseBufferMemoryBindInfo{{
			Buffer:    res.Buffer,
			BindCount: uint32(len(binds)),
			PBinds:    binds,
		}},
	}

	fence, err := NewFence(context, false)
	if err != nil {
		return err
	}
	defer fence.FenceDestroy(context)

	if err := context.Locks.SafeQueueCall(uint32(context.Device.SparseQueueIndex), func() error {
		return checkResult("vkQueueBindSparse", vk.QueueBindSparse(context.Device.SparseQueue, 1, []vk.BindSparseInfo{bindInfo}, fence.Handle))
	}); err != nil {
		return err
	}
	if err := fence.FenceWait(context, VULKAN_FENCE_TIMEOUT); err != nil {
		return err
	}

	for _, b := range binds {
		if commit {
			res.Pages[uint64(b.ResourceOffset)] = b.Memory
		} else {
			delete(res.Pages, uint64(b.ResourceOffset))
		}
	}
	for _, m := range freed {
		vk.FreeMemory(context.Device.LogicalDevice, m, context.Allocator)
	}
	return nil
}
