package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/statecache/engine/core"
)

/**
 * @brief Holds a Vulkan pipeline and its layout. Every pipeline uses the
 * shared descriptor table layout as set 0.
 */
type VulkanPipeline struct {
	/** @brief The internal pipeline handle. */
	Handle vk.Pipeline
	/** @brief The pipeline layout. */
	PipelineLayout vk.PipelineLayout
	/** @brief Graphics or compute. */
	BindPoint vk.PipelineBindPoint
}

func newPipelineLayout(context *VulkanContext) (vk.PipelineLayout, error) {
	createInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{context.Descriptors.Layout},
	}
	var layout vk.PipelineLayout
	err := context.Locks.SafeCall(PipelineManagement, func() error {
		return checkResult("vkCreatePipelineLayout", vk.CreatePipelineLayout(context.Device.LogicalDevice, &createInfo, context.Allocator, &layout))
	})
	return layout, err
}

// NewComputePipeline builds a compute pipeline from SPIR-V words.
func NewComputePipeline(context *VulkanContext, spirv []uint32, entry string) (*VulkanPipeline, error) {
	if len(spirv) == 0 {
		return nil, fmt.Errorf("empty shader module")
	}

	moduleInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(spirv) * 4),
		PCode:    spirv,
	}
	var module vk.ShaderModule
	if err := checkResult("vkCreateShaderModule", vk.CreateShaderModule(context.Device.LogicalDevice, &moduleInfo, context.Allocator, &module)); err != nil {
		return nil, err
	}
	// Not needed once the pipeline exists.
	defer vk.DestroyShaderModule(context.Device.LogicalDevice, module, context.Allocator)

	layout, err := newPipelineLayout(context)
	if err != nil {
		return nil, err
	}
	p := &VulkanPipeline{PipelineLayout: layout, BindPoint: vk.PipelineBindPointCompute}

	createInfo := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: module,
			PName:  VulkanSafeString(entry),
		},
		Layout:            layout,
		BasePipelineIndex: -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	if err := context.Locks.SafeCall(PipelineManagement, func() error {
		return checkResult("vkCreateComputePipelines", vk.CreateComputePipelines(context.Device.LogicalDevice, vk.NullPipelineCache, 1, []vk.ComputePipelineCreateInfo{createInfo}, context.Allocator, pipelines))
	}); err != nil {
		p.Destroy(context)
		return nil, err
	}
	p.Handle = pipelines[0]

	core.LogDebug("Compute pipeline created.")
	return p, nil
}

func (pipeline *VulkanPipeline) Destroy(context *VulkanContext) error {
	return context.Locks.SafeCall(PipelineManagement, func() error {
		if pipeline.Handle != vk.NullPipeline {
			vk.DestroyPipeline(context.Device.LogicalDevice, pipeline.Handle, context.Allocator)
		}
		pipeline.Handle = vk.NullPipeline
		if pipeline.PipelineLayout != vk.NullPipelineLayout {
			vk.DestroyPipelineLayout(context.Device.LogicalDevice, pipeline.PipelineLayout, context.Allocator)
			pipeline.PipelineLayout = vk.NullPipelineLayout
		}
		return nil
	})
}

// Bind binds the pipeline and set 0 to the command buffer.
func (pipeline *VulkanPipeline) Bind(context *VulkanContext, commandBuffer *VulkanCommandBuffer, set vk.DescriptorSet) error {
	return context.Locks.SafeCall(CommandBufferManagement, func() error {
		vk.CmdBindPipeline(commandBuffer.Handle, pipeline.BindPoint, pipeline.Handle)
		vk.CmdBindDescriptorSets(commandBuffer.Handle, pipeline.BindPoint, pipeline.PipelineLayout,
			0, 1, []vk.DescriptorSet{set}, 0, nil)
		return nil
	})
}
