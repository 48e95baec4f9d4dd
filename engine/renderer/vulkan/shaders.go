package vulkan

/**
 * @brief SPIR-V of an empty compute shader with a 1x1x1 local size, entry
 * point "main". It consumes nothing, so it runs with any descriptor state.
 */
var builtinComputeSPIRV = []uint32{
	// Header: magic, version 1.0, generator, id bound, schema.
	0x07230203, 0x00010000, 0x00000000, 6, 0,
	// OpCapability Shader
	0x00020011, 1,
	// OpMemoryModel Logical GLSL450
	0x0003000E, 0, 1,
	// OpEntryPoint GLCompute %4 "main"
	0x0005000F, 5, 4, 0x6E69616D, 0x00000000,
	// OpExecutionMode %4 LocalSize 1 1 1
	0x00060010, 4, 17, 1, 1, 1,
	// %2 = OpTypeVoid
	0x00020013, 2,
	// %3 = OpTypeFunction %2
	0x00030021, 3, 2,
	// %4 = OpFunction %2 None %3
	0x00050036, 2, 4, 0, 3,
	// %5 = OpLabel
	0x000200F8, 5,
	// OpReturn
	0x000100FD,
	// OpFunctionEnd
	0x00010038,
}

const builtinComputeEntry = "main"
