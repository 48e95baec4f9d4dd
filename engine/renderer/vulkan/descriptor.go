package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/statecache/engine/core"
	"github.com/spaghettifunk/statecache/engine/renderer/metadata"
)

/**
 * @brief The descriptor state of the device. Bind calls only update Slots;
 * every draw or dispatch then gets a fresh set from the per-frame pool with
 * Slots written into it, so a set is never updated after it was bound.
 * Slot n of a category is array element n of its binding.
 */
type VulkanDescriptorTable struct {
	Layout vk.DescriptorSetLayout
	/** @brief Reset by BeginFrame once the previous submission completed. */
	Pool vk.DescriptorPool
	/** @brief Sets handed out from Pool since the last reset. */
	Allocated uint32
	/** @brief Array size per category. Zero for categories without a descriptor. */
	Counts [metadata.CategoryCount]uint32
	/** @brief Bound binding per slot, for the categories with a descriptor. */
	Slots [metadata.CategoryCount][]metadata.Binding
}

func NewDescriptorTable(context *VulkanContext, caps metadata.Capabilities) (*VulkanDescriptorTable, error) {
	table := &VulkanDescriptorTable{}

	bindings := []vk.DescriptorSetLayoutBinding{}
	poolSizes := []vk.DescriptorPoolSize{}
	for _, c := range metadata.AllCategories() {
		dt, ok := descriptorTypes[c]
		if !ok {
			continue
		}
		table.Counts[c] = uint32(caps.MaxSlots[c])
		table.Slots[c] = make([]metadata.Binding, caps.MaxSlots[c])
		bindings = append(bindings, vk.DescriptorSetLayoutBinding{
			Binding:         descriptorBinding(c),
			DescriptorType:  dt,
			DescriptorCount: table.Counts[c],
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageAll),
		})
		poolSizes = append(poolSizes, vk.DescriptorPoolSize{
			Type:            dt,
			DescriptorCount: table.Counts[c] * VULKAN_MAX_DESCRIPTOR_SETS_PER_FRAME,
		})
	}

	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var layout vk.DescriptorSetLayout
	if err := checkResult("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(context.Device.LogicalDevice, &layoutInfo, context.Allocator, &layout)); err != nil {
		return nil, err
	}
	table.Layout = layout

	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       VULKAN_MAX_DESCRIPTOR_SETS_PER_FRAME,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	var pool vk.DescriptorPool
	if err := checkResult("vkCreateDescriptorPool", vk.CreateDescriptorPool(context.Device.LogicalDevice, &poolInfo, context.Allocator, &pool)); err != nil {
		table.Destroy(context)
		return nil, err
	}
	table.Pool = pool

	core.LogDebug("Descriptor table created with %d bindings, %d sets per frame.", len(bindings), VULKAN_MAX_DESCRIPTOR_SETS_PER_FRAME)
	return table, nil
}

func (t *VulkanDescriptorTable) Destroy(context *VulkanContext) {
	if t.Pool != vk.NullDescriptorPool {
		// Frees the sets too.
		vk.DestroyDescriptorPool(context.Device.LogicalDevice, t.Pool, context.Allocator)
		t.Pool = vk.NullDescriptorPool
	}
	if t.Layout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(context.Device.LogicalDevice, t.Layout, context.Allocator)
		t.Layout = vk.NullDescriptorSetLayout
	}
}

/**
 * @brief Returns every set of the pool. Only valid once the command buffer
 * that used them finished executing.
 */
func (t *VulkanDescriptorTable) Reset(context *VulkanContext) error {
	if err := context.Locks.SafeCall(DescriptorManagement, func() error {
		return checkResult("vkResetDescriptorPool", vk.ResetDescriptorPool(context.Device.LogicalDevice, t.Pool, 0))
	}); err != nil {
		return err
	}
	t.Allocated = 0
	return nil
}

/**
 * @brief Stores bindings into slots [first, first+len(bindings)) of
 * category c. Non-empty bindings must name live resources.
 */
func (t *VulkanDescriptorTable) Write(context *VulkanContext, c metadata.Category, first int, bindings []metadata.Binding) error {
	if _, ok := descriptorTypes[c]; !ok {
		return fmt.Errorf("%s has no descriptor: %w", c, core.ErrInvalidCategory)
	}
	if first < 0 || first+len(bindings) > int(t.Counts[c]) {
		return fmt.Errorf("%s [%d,%d): %w", c, first, first+len(bindings), core.ErrSlotOutOfRange)
	}
	for _, b := range bindings {
		if b.IsEmpty() {
			continue
		}
		if _, err := context.resource(b.Handle); err != nil {
			return err
		}
	}
	copy(t.Slots[c][first:], bindings)
	return nil
}

/** @brief Empties every slot that references h. */
func (t *VulkanDescriptorTable) Forget(h core.Handle) {
	for c := range t.Slots {
		for slot, b := range t.Slots[c] {
			if b.References(h) {
				t.Slots[c][slot] = metadata.Binding{}
			}
		}
	}
}

/**
 * @brief Allocates a set from the frame pool and writes the current slots
 * into it with one vkUpdateDescriptorSets call. Empty slots are left
 * unwritten, so the writes are split around them.
 */
func (t *VulkanDescriptorTable) Allocate(context *VulkanContext) (vk.DescriptorSet, error) {
	if t.Allocated >= VULKAN_MAX_DESCRIPTOR_SETS_PER_FRAME {
		return vk.NullDescriptorSet, fmt.Errorf("more than %d operations in one frame", VULKAN_MAX_DESCRIPTOR_SETS_PER_FRAME)
	}

	var set vk.DescriptorSet
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     t.Pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{t.Layout},
	}
	if err := context.Locks.SafeCall(DescriptorManagement, func() error {
		return checkResult("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(context.Device.LogicalDevice, &allocInfo, &set))
	}); err != nil {
		return vk.NullDescriptorSet, err
	}
	t.Allocated++

	writes := []vk.WriteDescriptorSet{}
	for _, c := range metadata.AllCategories() {
		dt, ok := descriptorTypes[c]
		if !ok {
			continue
		}
		slots := t.Slots[c]
		for i := 0; i < len(slots); {
			if slots[i].IsEmpty() {
				i++
				continue
			}
			j := i
			for j < len(slots) && !slots[j].IsEmpty() {
				j++
			}
			write, err := t.write(context, set, c, dt, i, slots[i:j])
			if err != nil {
				return vk.NullDescriptorSet, err
			}
			writes = append(writes, write)
			i = j
		}
	}
	if len(writes) > 0 {
		if err := context.Locks.SafeCall(DescriptorManagement, func() error {
			vk.UpdateDescriptorSets(context.Device.LogicalDevice, uint32(len(writes)), writes, 0, nil)
			return nil
		}); err != nil {
			return vk.NullDescriptorSet, err
		}
	}
	return set, nil
}

func (t *VulkanDescriptorTable) write(context *VulkanContext, set vk.DescriptorSet, c metadata.Category, dt vk.DescriptorType, first int, run []metadata.Binding) (vk.WriteDescriptorSet, error) {
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      descriptorBinding(c),
		DstArrayElement: uint32(first),
		DescriptorCount: uint32(len(run)),
		DescriptorType:  dt,
	}

	switch dt {
	case vk.DescriptorTypeUniformBuffer, vk.DescriptorTypeStorageBuffer:
		infos := make([]vk.DescriptorBufferInfo, len(run))
		for i, b := range run {
			res, err := context.resource(b.Handle)
			if err != nil {
				return write, err
			}
			size := vk.DeviceSize(b.Size)
			if b.Size == 0 {
				size = vk.DeviceSize(vk.WholeSize)
			}
			infos[i] = vk.DescriptorBufferInfo{Buffer: res.Buffer, Offset: vk.DeviceSize(b.Offset), Range: size}
		}
		write.PBufferInfo = infos
	default:
		infos := make([]vk.DescriptorImageInfo, len(run))
		for i, b := range run {
			res, err := context.resource(b.Handle)
			if err != nil {
				return write, err
			}
			switch dt {
			case vk.DescriptorTypeSampler:
				infos[i] = vk.DescriptorImageInfo{Sampler: res.Sampler}
			case vk.DescriptorTypeStorageImage:
				infos[i] = vk.DescriptorImageInfo{ImageView: res.Image.View, ImageLayout: vk.ImageLayoutGeneral}
			default:
				infos[i] = vk.DescriptorImageInfo{ImageView: res.Image.View, ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal}
			}
		}
		write.PImageInfo = infos
	}
	return write, nil
}
