package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/statecache/engine/core"
	"github.com/spaghettifunk/statecache/engine/platform"
	"github.com/spaghettifunk/statecache/engine/renderer/metadata"
)

/**
 * @brief A surface-less Vulkan device. Descriptor binds update the
 * descriptor table and reach the GPU in a fresh set per operation; vertex
 * and index binds and render state are recorded as commands, so they do not
 * outlive the frame. Sparse commitment goes through vkQueueBindSparse.
 * Commands are recorded into one command buffer between BeginFrame and
 * EndFrame.
 */
type VulkanRenderer struct {
	platform    *platform.Platform
	FrameNumber uint64
	context     *VulkanContext
	caps        metadata.Capabilities

	requireSparse bool
	debug         bool
}

func New(p *platform.Platform, requireSparse, debug bool) *VulkanRenderer {
	return &VulkanRenderer{
		platform: p,
		context: &VulkanContext{
			Allocator: nil,
			Device:    &VulkanDevice{QueueIndex: -1, SparseQueueIndex: -1},
			Locks:     NewVulkanLockPool(),
			Resources: make(map[core.Handle]*VulkanResource),
			Pipelines: make(map[vk.PipelineBindPoint]*VulkanPipeline),
		},
		requireSparse: requireSparse,
		debug:         debug,
	}
}

func (vr *VulkanRenderer) Initialize(appName string) error {
	procAddr := vr.platform.VulkanProcAddress()
	if procAddr == nil {
		return fmt.Errorf("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return err
	}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("statecache"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// No surface: nothing is presented.
	requiredExtensions := []string{}
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1
	}

	requiredLayers := []string{}
	if vr.debug {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		requiredLayers = append(requiredLayers, "VK_LAYER_KHRONOS_validation")
		if err := checkInstanceLayers(requiredLayers); err != nil {
			return err
		}
	}

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(requiredLayers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredLayers)

	var instance vk.Instance
	if err := checkResult("vkCreateInstance", vk.CreateInstance(&createInfo, vr.context.Allocator, &instance)); err != nil {
		core.LogError(err.Error())
		return err
	}
	vr.context.Instance = instance
	if err := vk.InitInstance(vr.context.Instance); err != nil {
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	if vr.debug {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(vr.context.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
			core.LogError("vk.CreateDebugReportCallback failed with %s", err)
			return err
		}
		vr.context.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}

	if err := DeviceCreate(vr.context, vr.requireSparse); err != nil {
		core.LogError("Failed to create device: %s", err)
		return err
	}

	vr.caps = ProbeCapabilities(vr.context.Device)
	if err := vr.caps.Validate(); err != nil {
		return err
	}

	table, err := NewDescriptorTable(vr.context, vr.caps)
	if err != nil {
		return err
	}
	vr.context.Descriptors = table

	cb, err := NewVulkanCommandBuffer(vr.context, vr.context.Device.CommandPool, true)
	if err != nil {
		return err
	}
	vr.context.CommandBuffer = cb

	// Created signaled so the first BeginFrame does not wait.
	fence, err := NewFence(vr.context, true)
	if err != nil {
		return err
	}
	vr.context.Fence = fence

	builtin, err := NewComputePipeline(vr.context, builtinComputeSPIRV, builtinComputeEntry)
	if err != nil {
		return err
	}
	vr.UsePipeline(builtin)

	core.LogInfo("Vulkan renderer initialized successfully.")
	return nil
}

func checkInstanceLayers(required []string) error {
	core.LogInfo("Validation layers enabled. Enumerating...")
	var count uint32
	if err := checkResult("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, nil)); err != nil {
		return err
	}
	available := make([]vk.LayerProperties, count)
	if err := checkResult("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, available)); err != nil {
		return err
	}
	for _, name := range required {
		found := false
		for i := range available {
			available[i].Deref()
			if cString(available[i].LayerName[:]) == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("required validation layer is missing: %s", name)
		}
	}
	core.LogInfo("All required validation layers are present.")
	return nil
}

func (vr *VulkanRenderer) Shutdown() error {
	if vr.context.Device.LogicalDevice == nil {
		return nil
	}
	vk.DeviceWaitIdle(vr.context.Device.LogicalDevice)

	// Destroy in the opposite order of creation.
	for h, res := range vr.context.Resources {
		core.LogWarn("destroying leaked resource %s (%q)", h, res.Name)
		res.Destroy(vr.context)
		delete(vr.context.Resources, h)
	}
	for bp, p := range vr.context.Pipelines {
		if err := p.Destroy(vr.context); err != nil {
			core.LogWarn(err.Error())
		}
		delete(vr.context.Pipelines, bp)
	}
	if vr.context.Fence != nil {
		vr.context.Fence.FenceDestroy(vr.context)
		vr.context.Fence = nil
	}
	if vr.context.CommandBuffer != nil {
		vr.context.CommandBuffer.Free(vr.context, vr.context.Device.CommandPool)
		vr.context.CommandBuffer = nil
	}
	if vr.context.Descriptors != nil {
		vr.context.Descriptors.Destroy(vr.context)
		vr.context.Descriptors = nil
	}

	core.LogDebug("Destroying Vulkan device...")
	DeviceDestroy(vr.context)

	if vr.debug && vr.context.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(vr.context.Instance, vr.context.debugMessenger, vr.context.Allocator)
	}

	core.LogDebug("Destroying Vulkan instance...")
	vk.DestroyInstance(vr.context.Instance, vr.context.Allocator)
	return nil
}

func (vr *VulkanRenderer) Capabilities() metadata.Capabilities {
	return vr.caps
}

// Context exposes the device objects, for building pipelines.
func (vr *VulkanRenderer) Context() *VulkanContext {
	return vr.context
}

// UsePipeline selects the pipeline the operations of its bind point run
// with. The renderer takes ownership and destroys it on Shutdown.
func (vr *VulkanRenderer) UsePipeline(p *VulkanPipeline) {
	if prev, ok := vr.context.Pipelines[p.BindPoint]; ok && prev != p {
		if err := prev.Destroy(vr.context); err != nil {
			core.LogWarn(err.Error())
		}
	}
	vr.context.Pipelines[p.BindPoint] = p
}

func (vr *VulkanRenderer) BeginFrame(deltaTime float64) error {
	// Wait for the previous submission before re-recording its buffer.
	if err := vr.context.Fence.FenceWait(vr.context, VULKAN_FENCE_TIMEOUT); err != nil {
		return err
	}
	if err := vr.context.Fence.FenceReset(vr.context); err != nil {
		return err
	}

	if err := vr.context.Descriptors.Reset(vr.context); err != nil {
		return err
	}

	cb := vr.context.CommandBuffer
	if err := checkResult("vkResetCommandBuffer", vk.ResetCommandBuffer(cb.Handle, 0)); err != nil {
		return err
	}
	cb.Reset()
	return cb.Begin(true, false)
}

/** @brief Command buffer state: lost when BeginFrame resets the buffer. */
func (vr *VulkanRenderer) FrameScope() metadata.FrameScope {
	return metadata.FrameScope{
		Categories:  []metadata.Category{metadata.CategoryVertexBuffer, metadata.CategoryIndexBuffer},
		RenderState: true,
	}
}

func (vr *VulkanRenderer) EndFrame(deltaTime float64) error {
	if err := vr.context.CommandBuffer.Submit(vr.context, vr.context.Device.Queue, uint32(vr.context.Device.QueueIndex), vr.context.Fence); err != nil {
		return err
	}
	vr.FrameNumber++
	return nil
}

func (vr *VulkanRenderer) recording() (*VulkanCommandBuffer, error) {
	cb := vr.context.CommandBuffer
	if cb == nil || !cb.IsRecording() {
		return nil, fmt.Errorf("no frame in progress")
	}
	return cb, nil
}

func (vr *VulkanRenderer) BindSingle(c metadata.Category, slot int, binding metadata.Binding) error {
	return vr.bind(c, slot, []metadata.Binding{binding})
}

func (vr *VulkanRenderer) BindBatch(c metadata.Category, first int, bindings []metadata.Binding) error {
	return vr.bind(c, first, bindings)
}

func (vr *VulkanRenderer) bind(c metadata.Category, first int, bindings []metadata.Binding) error {
	switch c {
	case metadata.CategoryVertexBuffer:
		return vr.bindVertexBuffers(first, bindings)
	case metadata.CategoryIndexBuffer:
		return vr.bindIndexBuffer(bindings[0])
	}
	return vr.context.Descriptors.Write(vr.context, c, first, bindings)
}

func (vr *VulkanRenderer) bindVertexBuffers(first int, bindings []metadata.Binding) error {
	cb, err := vr.recording()
	if err != nil {
		return err
	}
	buffers := make([]vk.Buffer, 0, len(bindings))
	offsets := make([]vk.DeviceSize, 0, len(bindings))
	flush := func(at int) {
		if len(buffers) > 0 {
			vk.CmdBindVertexBuffers(cb.Handle, uint32(at), uint32(len(buffers)), buffers, offsets)
			buffers, offsets = buffers[:0], offsets[:0]
		}
	}
	// Null handles cannot be bound; the runs around them are.
	start := first
	for i, b := range bindings {
		if b.Handle.IsNull() {
			flush(start)
			start = first + i + 1
			continue
		}
		res, err := vr.context.resource(b.Handle)
		if err != nil {
			return err
		}
		buffers = append(buffers, res.Buffer)
		offsets = append(offsets, vk.DeviceSize(b.Offset))
	}
	flush(start)
	return nil
}

func (vr *VulkanRenderer) bindIndexBuffer(b metadata.Binding) error {
	cb, err := vr.recording()
	if err != nil {
		return err
	}
	if b.Handle.IsNull() {
		return nil
	}
	res, err := vr.context.resource(b.Handle)
	if err != nil {
		return err
	}
	indexType := vk.IndexTypeUint16
	if metadata.IndexType(b.Format) == metadata.IndexTypeUint32 {
		indexType = vk.IndexTypeUint32
	}
	vk.CmdBindIndexBuffer(cb.Handle, res.Buffer, vk.DeviceSize(b.Offset), indexType)
	return nil
}

/**
 * @brief Applies the dynamic part of the render state. Graphics pipelines
 * must declare line width and the stencil masks and reference as dynamic.
 */
func (vr *VulkanRenderer) ApplyRenderState(rs metadata.RenderState) error {
	cb, err := vr.recording()
	if err != nil {
		return err
	}
	lineWidth := rs.LineWidth
	if vr.context.Device.Features.WideLines == vk.False {
		lineWidth = 1.0
	}
	face := vk.StencilFaceFlags(vk.StencilFrontAndBack)
	vk.CmdSetLineWidth(cb.Handle, lineWidth)
	vk.CmdSetStencilCompareMask(cb.Handle, face, rs.Stencil.ReadMask)
	vk.CmdSetStencilWriteMask(cb.Handle, face, rs.Stencil.WriteMask)
	vk.CmdSetStencilReference(cb.Handle, face, rs.Stencil.Reference)
	return nil
}

func (vr *VulkanRenderer) usePipeline(bindPoint vk.PipelineBindPoint) (*VulkanCommandBuffer, error) {
	cb, err := vr.recording()
	if err != nil {
		return nil, err
	}
	p, ok := vr.context.Pipelines[bindPoint]
	if !ok {
		// Nothing to execute with; the bindings were still recorded.
		core.LogDebug("no device pipeline for bind point %d, operation dropped", bindPoint)
		return nil, nil
	}
	set, err := vr.context.Descriptors.Allocate(vr.context)
	if err != nil {
		return nil, err
	}
	if err := p.Bind(vr.context, cb, set); err != nil {
		return nil, err
	}
	return cb, nil
}

func (vr *VulkanRenderer) Draw(call metadata.DrawCall) error {
	cb, err := vr.usePipeline(vk.PipelineBindPointGraphics)
	if err != nil || cb == nil {
		return err
	}
	if call.Indexed {
		vk.CmdDrawIndexed(cb.Handle, call.Count, call.InstanceCount(), call.First, call.BaseVertex, call.BaseInstance)
	} else {
		vk.CmdDraw(cb.Handle, call.Count, call.InstanceCount(), call.First, call.BaseInstance)
	}
	return nil
}

func (vr *VulkanRenderer) Dispatch(call metadata.DispatchCall) error {
	cb, err := vr.usePipeline(vk.PipelineBindPointCompute)
	if err != nil || cb == nil {
		return err
	}
	vk.CmdDispatch(cb.Handle, call.GroupsX, call.GroupsY, call.GroupsZ)
	return nil
}

func (vr *VulkanRenderer) CopyBuffer(call metadata.CopyCall) error {
	cb, err := vr.recording()
	if err != nil {
		return err
	}
	s, err := vr.context.resource(call.Src)
	if err != nil {
		return err
	}
	d, err := vr.context.resource(call.Dst)
	if err != nil {
		return err
	}
	region := vk.BufferCopy{
		SrcOffset: vk.DeviceSize(call.SrcOffset),
		DstOffset: vk.DeviceSize(call.DstOffset),
		Size:      vk.DeviceSize(call.Size),
	}
	vk.CmdCopyBuffer(cb.Handle, s.Buffer, d.Buffer, 1, []vk.BufferCopy{region})
	return nil
}

func (vr *VulkanRenderer) CommitPages(h core.Handle, offset, size uint64, commit bool) error {
	if !vr.caps.SparseBuffer {
		return core.ErrSparseUnsupported
	}
	res, err := vr.context.resource(h)
	if err != nil {
		return err
	}
	return res.CommitPages(vr.context, offset, size, commit)
}

// CopyPages copies on a one time command buffer and waits for it, so the
// source can be destroyed as soon as it returns. Works outside a frame.
func (vr *VulkanRenderer) CopyPages(dst, src core.Handle, offset, size uint64) error {
	s, err := vr.context.resource(src)
	if err != nil {
		return err
	}
	d, err := vr.context.resource(dst)
	if err != nil {
		return err
	}
	dev := vr.context.Device
	cb, err := AllocateAndBeginSingleUse(vr.context, dev.CommandPool)
	if err != nil {
		return err
	}
	region := vk.BufferCopy{
		SrcOffset: vk.DeviceSize(offset),
		DstOffset: vk.DeviceSize(offset),
		Size:      vk.DeviceSize(size),
	}
	vk.CmdCopyBuffer(cb.Handle, s.Buffer, d.Buffer, 1, []vk.BufferCopy{region})
	return cb.EndSingleUse(vr.context, dev.CommandPool, dev.Queue, uint32(dev.QueueIndex))
}

func (vr *VulkanRenderer) ResourceCreate(h core.Handle, config *metadata.ResourceConfig) error {
	if _, ok := vr.context.Resources[h]; ok {
		return fmt.Errorf("%s already exists: %w", h, core.ErrInvalidHandle)
	}
	if config.Kind == metadata.ResourceKindSparseBuffer && !vr.caps.SparseBuffer {
		return core.ErrSparseUnsupported
	}
	var res *VulkanResource
	if err := vr.context.Locks.SafeCall(ResourceManagement, func() error {
		var err error
		res, err = ResourceCreate(vr.context, config, vr.caps.SparsePageSize)
		return err
	}); err != nil {
		core.LogError(err.Error())
		return err
	}
	vr.context.Resources[h] = res
	return nil
}

func (vr *VulkanRenderer) ResourceDestroy(h core.Handle) error {
	res, err := vr.context.resource(h)
	if err != nil {
		return err
	}
	// The resource may still be referenced by submitted work.
	if err := checkResult("vkDeviceWaitIdle", vk.DeviceWaitIdle(vr.context.Device.LogicalDevice)); err != nil {
		return err
	}
	if err := vr.context.Locks.SafeCall(ResourceManagement, func() error {
		res.Destroy(vr.context)
		return nil
	}); err != nil {
		return err
	}
	delete(vr.context.Resources, h)
	vr.context.Descriptors.Forget(h)
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
