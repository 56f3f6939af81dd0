package gpu

import (
	"encoding/binary"
	"hash/fnv"
	"math"
)

// PixelFormat names a texel format using the WebGPU spelling ("bgra8unorm", "depth24plus", ...).
type PixelFormat string

const (
	PixelFormatUndefined    PixelFormat = ""
	PixelFormatRGBA8Unorm   PixelFormat = "rgba8unorm"
	PixelFormatBGRA8Unorm   PixelFormat = "bgra8unorm"
	PixelFormatRGBA16Float  PixelFormat = "rgba16float"
	PixelFormatR32Uint      PixelFormat = "r32uint"
	PixelFormatR32Float     PixelFormat = "r32float"
	PixelFormatDepth24Plus  PixelFormat = "depth24plus"
	PixelFormatDepth32Float PixelFormat = "depth32float"
)

// CullMode selects which triangle faces are discarded.
type CullMode int

const (
	CullModeNone CullMode = iota
	CullModeFront
	CullModeBack
)

// FrontFace selects the winding order of front-facing triangles.
type FrontFace int

const (
	FrontFaceCCW FrontFace = iota
	FrontFaceCW
)

// PrimitiveTopology selects how vertices are assembled.
type PrimitiveTopology int

const (
	PrimitiveTopologyTriangleList PrimitiveTopology = iota
	PrimitiveTopologyTriangleStrip
	PrimitiveTopologyLineList
	PrimitiveTopologyLineStrip
	PrimitiveTopologyPointList
)

// CompareFunction is the depth comparison.
type CompareFunction int

const (
	CompareFunctionLess CompareFunction = iota
	CompareFunctionLessEqual
	CompareFunctionGreater
	CompareFunctionGreaterEqual
	CompareFunctionEqual
	CompareFunctionAlways
	CompareFunctionNever
)

// BlendFactor is a blend equation factor.
type BlendFactor int

const (
	BlendFactorZero BlendFactor = iota
	BlendFactorOne
	BlendFactorSrcAlpha
	BlendFactorOneMinusSrcAlpha
	BlendFactorDstAlpha
	BlendFactorOneMinusDstAlpha
)

// BlendComponent is one half (color or alpha) of a blend equation; the operation is always add.
type BlendComponent struct {
	SrcFactor BlendFactor
	DstFactor BlendFactor
}

// BlendState describes alpha blending for every render target.
type BlendState struct {
	Enabled bool
	Color   BlendComponent
	Alpha   BlendComponent
}

// DepthStencilState describes the depth test.
type DepthStencilState struct {
	DepthTestEnabled  bool
	DepthWriteEnabled bool
	DepthCompare      CompareFunction
}

// RasterizerState describes primitive rasterization.
type RasterizerState struct {
	CullMode            CullMode
	FrontFace           FrontFace
	DepthBias           int32
	DepthBiasSlopeScale float32
}

// VertexFormat is the format of one vertex attribute.
type VertexFormat int

const (
	VertexFormatFloat32 VertexFormat = iota
	VertexFormatFloat32x2
	VertexFormatFloat32x3
	VertexFormatFloat32x4
	VertexFormatSint32
	VertexFormatSint32x2
	VertexFormatSint32x3
	VertexFormatSint32x4
	VertexFormatUint32
	VertexFormatUint32x2
	VertexFormatUint32x3
	VertexFormatUint32x4
)

// VertexAttribute is one attribute of a vertex buffer layout.
type VertexAttribute struct {
	Format         VertexFormat
	Offset         uint64
	ShaderLocation uint32
}

// VertexBufferLayout describes one bound vertex buffer.
type VertexBufferLayout struct {
	ArrayStride uint64
	Instanced   bool
	Attributes  []VertexAttribute
}

// RenderOutputDescription holds the formats a render stage writes to.
type RenderOutputDescription struct {
	RenderTargetFormats []PixelFormat
	DepthStencilFormat  PixelFormat
	MultisampleCount    uint32
}

// ShaderBytecode is the compiled program of an effect.
type ShaderBytecode struct {
	Label         string
	WGSL          string
	SPIRV         []uint32
	VertexEntry   string
	FragmentEntry string
}

// PipelineStateDescription is the full, hashable description of a pipeline state object.
type PipelineStateDescription struct {
	Bytecode      *ShaderBytecode
	RootSignature []*DescriptorSetLayout
	VertexLayouts []VertexBufferLayout
	Topology      PrimitiveTopology
	Rasterizer    RasterizerState
	DepthStencil  DepthStencilState
	Blend         BlendState
	Output        RenderOutputDescription
}

// SetDefaults resets the fixed-function state to opaque, depth tested, triangle-list rendering.
func (d *PipelineStateDescription) SetDefaults() {
	d.VertexLayouts = nil
	d.Topology = PrimitiveTopologyTriangleList
	d.Rasterizer = RasterizerState{CullMode: CullModeBack, FrontFace: FrontFaceCCW}
	d.DepthStencil = DepthStencilState{
		DepthTestEnabled:  true,
		DepthWriteEnabled: true,
		DepthCompare:      CompareFunctionLess,
	}
	d.Blend = BlendState{
		Color: BlendComponent{SrcFactor: BlendFactorOne, DstFactor: BlendFactorZero},
		Alpha: BlendComponent{SrcFactor: BlendFactorOne, DstFactor: BlendFactorZero},
	}
	d.Output = RenderOutputDescription{}
}

// SetAlphaBlend enables premultiplied-free source-over blending.
func (d *PipelineStateDescription) SetAlphaBlend() {
	d.Blend = BlendState{
		Enabled: true,
		Color:   BlendComponent{SrcFactor: BlendFactorSrcAlpha, DstFactor: BlendFactorOneMinusSrcAlpha},
		Alpha:   BlendComponent{SrcFactor: BlendFactorOne, DstFactor: BlendFactorOneMinusSrcAlpha},
	}
	d.DepthStencil.DepthWriteEnabled = false
}

// Hash returns the structural hash used to dedupe pipeline states.
//
// Returns:
//   - uint64: the FNV-1a hash of the description
func (d *PipelineStateDescription) Hash() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}

	if d.Bytecode != nil {
		h.Write([]byte(d.Bytecode.Label))
		h.Write([]byte(d.Bytecode.WGSL))
		h.Write([]byte(d.Bytecode.VertexEntry))
		h.Write([]byte(d.Bytecode.FragmentEntry))
		put(uint64(len(d.Bytecode.SPIRV)))
	}
	for _, l := range d.RootSignature {
		if l == nil {
			put(0)
			continue
		}
		put(l.Hash)
	}
	for _, vl := range d.VertexLayouts {
		put(vl.ArrayStride)
		if vl.Instanced {
			put(1)
		} else {
			put(0)
		}
		for _, a := range vl.Attributes {
			put(uint64(a.Format)<<32 | uint64(a.ShaderLocation))
			put(a.Offset)
		}
	}
	put(uint64(d.Topology))
	put(uint64(d.Rasterizer.CullMode)<<8 | uint64(d.Rasterizer.FrontFace))
	put(uint64(uint32(d.Rasterizer.DepthBias))<<32 | uint64(math.Float32bits(d.Rasterizer.DepthBiasSlopeScale)))
	put(boolBits(d.DepthStencil.DepthTestEnabled)<<1 | boolBits(d.DepthStencil.DepthWriteEnabled) | uint64(d.DepthStencil.DepthCompare)<<2)
	put(boolBits(d.Blend.Enabled) |
		uint64(d.Blend.Color.SrcFactor)<<8 | uint64(d.Blend.Color.DstFactor)<<16 |
		uint64(d.Blend.Alpha.SrcFactor)<<24 | uint64(d.Blend.Alpha.DstFactor)<<32)
	for _, f := range d.Output.RenderTargetFormats {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	h.Write([]byte(d.Output.DepthStencilFormat))
	put(uint64(d.Output.MultisampleCount))
	return h.Sum64()
}

func boolBits(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// PipelineState is a compiled pipeline state object. Native holds the backend handle.
type PipelineState struct {
	Hash        uint64
	Description PipelineStateDescription
	Native      any
}
