package metadata

/** @brief Determines face culling mode during rendering. */
type FaceCullMode int

const (
	/** @brief No faces are culled. */
	FaceCullModeNone FaceCullMode = 0x0
	/** @brief Only front faces are culled. */
	FaceCullModeFront FaceCullMode = 0x1
	/** @brief Only back faces are culled. */
	FaceCullModeBack FaceCullMode = 0x2
	/** @brief Both front and back faces are culled. */
	FaceCullModeFrontAndBack FaceCullMode = 0x3
)

/** @brief Winding order considered front-facing. */
type FrontFace int

const (
	FrontFaceCounterClockwise FrontFace = iota
	FrontFaceClockwise
)

type CompareOp int

const (
	CompareOpNever CompareOp = iota
	CompareOpLess
	CompareOpEqual
	CompareOpLessOrEqual
	CompareOpGreater
	CompareOpNotEqual
	CompareOpGreaterOrEqual
	CompareOpAlways
)

type BlendFactor int

const (
	BlendFactorZero BlendFactor = iota
	BlendFactorOne
	BlendFactorSrcAlpha
	BlendFactorOneMinusSrcAlpha
	BlendFactorDstAlpha
	BlendFactorOneMinusDstAlpha
)

type BlendOp int

const (
	BlendOpAdd BlendOp = iota
	BlendOpSubtract
	BlendOpReverseSubtract
	BlendOpMin
	BlendOpMax
)

type StencilOp int

const (
	StencilOpKeep StencilOp = iota
	StencilOpZero
	StencilOpReplace
	StencilOpIncrementAndClamp
	StencilOpDecrementAndClamp
	StencilOpInvert
)

type BlendState struct {
	Enable   bool
	SrcColor BlendFactor
	DstColor BlendFactor
	ColorOp  BlendOp
	SrcAlpha BlendFactor
	DstAlpha BlendFactor
	AlphaOp  BlendOp
}

type StencilState struct {
	Enable      bool
	Compare     CompareOp
	Reference   uint32
	ReadMask    uint32
	WriteMask   uint32
	FailOp      StencilOp
	DepthFailOp StencilOp
	PassOp      StencilOp
}

/**
 * @brief Fixed-function state declared by a pipeline: rasterization,
 * depth, blending and stencil. Its applied meaning belongs to the pipeline,
 * so it is re-applied whenever the active pipeline changes.
 */
type RenderState struct {
	/** @brief The face cull mode. */
	CullMode  FaceCullMode
	FrontFace FrontFace
	/** @brief Indicates if polygons are rasterized as lines. */
	IsWireframe bool
	LineWidth   float32

	DepthTest    bool
	DepthWrite   bool
	DepthCompare CompareOp

	Blend   BlendState
	Stencil StencilState
}

// DefaultRenderState matches what a freshly created device context has applied.
func DefaultRenderState() RenderState {
	return RenderState{
		CullMode:     FaceCullModeBack,
		FrontFace:    FrontFaceCounterClockwise,
		LineWidth:    1.0,
		DepthCompare: CompareOpLess,
		Blend: BlendState{
			SrcColor: BlendFactorSrcAlpha,
			DstColor: BlendFactorOneMinusSrcAlpha,
			ColorOp:  BlendOpAdd,
			SrcAlpha: BlendFactorSrcAlpha,
			DstAlpha: BlendFactorOneMinusSrcAlpha,
			AlphaOp:  BlendOpAdd,
		},
		Stencil: StencilState{
			Compare:   CompareOpAlways,
			ReadMask:  0xFF,
			WriteMask: 0xFF,
		},
	}
}

// FrameScope is the device state that does not survive BeginFrame, such as
// bindings recorded into a command buffer that is reset every frame.
type FrameScope struct {
	Categories  []Category
	RenderState bool
}

func (s FrameScope) IsEmpty() bool {
	return len(s.Categories) == 0 && !s.RenderState
}
