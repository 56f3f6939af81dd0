package webgpu

import (
	"github.com/Carmen-Shannon/oxy-pipeline/engine/gpu"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/pkg/errors"
)

// ErrUnsupportedFormat is returned when a pixel format has no WebGPU equivalent.
var ErrUnsupportedFormat = errors.New("webgpu: unsupported pixel format")

var textureFormats = map[gpu.PixelFormat]wgpu.TextureFormat{
	gpu.PixelFormatRGBA8Unorm:   wgpu.TextureFormatRGBA8Unorm,
	gpu.PixelFormatBGRA8Unorm:   wgpu.TextureFormatBGRA8Unorm,
	gpu.PixelFormatRGBA16Float:  wgpu.TextureFormatRGBA16Float,
	gpu.PixelFormatR32Uint:      wgpu.TextureFormatR32Uint,
	gpu.PixelFormatR32Float:     wgpu.TextureFormatR32Float,
	gpu.PixelFormatDepth24Plus:  wgpu.TextureFormatDepth24Plus,
	gpu.PixelFormatDepth32Float: wgpu.TextureFormatDepth32Float,
}

// textureFormat maps a pixel format to its WebGPU texture format.
func textureFormat(f gpu.PixelFormat) (wgpu.TextureFormat, error) {
	if tf, ok := textureFormats[f]; ok {
		return tf, nil
	}
	return wgpu.TextureFormatUndefined, errors.Wrapf(ErrUnsupportedFormat, "%q", f)
}

var vertexFormats = map[gpu.VertexFormat]wgpu.VertexFormat{
	gpu.VertexFormatFloat32:   wgpu.VertexFormatFloat32,
	gpu.VertexFormatFloat32x2: wgpu.VertexFormatFloat32x2,
	gpu.VertexFormatFloat32x3: wgpu.VertexFormatFloat32x3,
	gpu.VertexFormatFloat32x4: wgpu.VertexFormatFloat32x4,
	gpu.VertexFormatSint32:    wgpu.VertexFormatSint32,
	gpu.VertexFormatSint32x2:  wgpu.VertexFormatSint32x2,
	gpu.VertexFormatSint32x3:  wgpu.VertexFormatSint32x3,
	gpu.VertexFormatSint32x4:  wgpu.VertexFormatSint32x4,
	gpu.VertexFormatUint32:    wgpu.VertexFormatUint32,
	gpu.VertexFormatUint32x2:  wgpu.VertexFormatUint32x2,
	gpu.VertexFormatUint32x3:  wgpu.VertexFormatUint32x3,
	gpu.VertexFormatUint32x4:  wgpu.VertexFormatUint32x4,
}

func vertexBufferLayouts(layouts []gpu.VertexBufferLayout) []wgpu.VertexBufferLayout {
	out := make([]wgpu.VertexBufferLayout, 0, len(layouts))
	for _, l := range layouts {
		attrs := make([]wgpu.VertexAttribute, 0, len(l.Attributes))
		for _, a := range l.Attributes {
			attrs = append(attrs, wgpu.VertexAttribute{
				Format:         vertexFormats[a.Format],
				Offset:         a.Offset,
				ShaderLocation: a.ShaderLocation,
			})
		}
		step := wgpu.VertexStepModeVertex
		if l.Instanced {
			step = wgpu.VertexStepModeInstance
		}
		out = append(out, wgpu.VertexBufferLayout{
			ArrayStride: l.ArrayStride,
			StepMode:    step,
			Attributes:  attrs,
		})
	}
	return out
}

func shaderStages(s gpu.ShaderStage) wgpu.ShaderStage {
	out := wgpu.ShaderStageNone
	if s&gpu.ShaderStageVertex != 0 {
		out |= wgpu.ShaderStageVertex
	}
	if s&gpu.ShaderStageFragment != 0 {
		out |= wgpu.ShaderStageFragment
	}
	if s&gpu.ShaderStageCompute != 0 {
		out |= wgpu.ShaderStageCompute
	}
	return out
}

func viewDimension(d string) wgpu.TextureViewDimension {
	switch d {
	case "1d":
		return wgpu.TextureViewDimension1D
	case "2d-array":
		return wgpu.TextureViewDimension2DArray
	case "3d":
		return wgpu.TextureViewDimension3D
	case "cube":
		return wgpu.TextureViewDimensionCube
	case "cube-array":
		return wgpu.TextureViewDimensionCubeArray
	default:
		return wgpu.TextureViewDimension2D
	}
}

// layoutEntry converts one reflected binding into a WebGPU bind group layout entry.
func layoutEntry(e gpu.DescriptorSetLayoutEntry) (wgpu.BindGroupLayoutEntry, error) {
	entry := wgpu.BindGroupLayoutEntry{
		Binding:    e.Binding,
		Visibility: shaderStages(e.Visibility),
	}
	switch e.Kind {
	case gpu.BindingKindUniformBuffer:
		entry.Buffer.Type = wgpu.BufferBindingTypeUniform
		entry.Buffer.MinBindingSize = e.MinBindingSize
	case gpu.BindingKindStorageBuffer:
		entry.Buffer.Type = wgpu.BufferBindingTypeStorage
		entry.Buffer.MinBindingSize = e.MinBindingSize
	case gpu.BindingKindReadOnlyStorageBuffer:
		entry.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
		entry.Buffer.MinBindingSize = e.MinBindingSize
	case gpu.BindingKindSampledTexture:
		entry.Texture.SampleType = wgpu.TextureSampleTypeFloat
		entry.Texture.ViewDimension = viewDimension(e.Dimension)
	case gpu.BindingKindDepthTexture:
		entry.Texture.SampleType = wgpu.TextureSampleTypeDepth
		entry.Texture.ViewDimension = viewDimension(e.Dimension)
	case gpu.BindingKindStorageTexture:
		format, err := textureFormat(e.Format)
		if err != nil {
			return entry, errors.Wrapf(err, "binding %d", e.Binding)
		}
		entry.StorageTexture.Access = wgpu.StorageTextureAccessWriteOnly
		entry.StorageTexture.Format = format
		entry.StorageTexture.ViewDimension = viewDimension(e.Dimension)
	case gpu.BindingKindSampler:
		entry.Sampler.Type = wgpu.SamplerBindingTypeFiltering
	case gpu.BindingKindComparisonSampler:
		entry.Sampler.Type = wgpu.SamplerBindingTypeComparison
	default:
		return entry, errors.Errorf("webgpu: binding %d has no kind", e.Binding)
	}
	return entry, nil
}

func compareFunction(c gpu.CompareFunction) wgpu.CompareFunction {
	switch c {
	case gpu.CompareFunctionLessEqual:
		return wgpu.CompareFunctionLessEqual
	case gpu.CompareFunctionGreater:
		return wgpu.CompareFunctionGreater
	case gpu.CompareFunctionGreaterEqual:
		return wgpu.CompareFunctionGreaterEqual
	case gpu.CompareFunctionEqual:
		return wgpu.CompareFunctionEqual
	case gpu.CompareFunctionAlways:
		return wgpu.CompareFunctionAlways
	case gpu.CompareFunctionNever:
		return wgpu.CompareFunctionNever
	default:
		return wgpu.CompareFunctionLess
	}
}

func cullMode(c gpu.CullMode) wgpu.CullMode {
	switch c {
	case gpu.CullModeFront:
		return wgpu.CullModeFront
	case gpu.CullModeBack:
		return wgpu.CullModeBack
	default:
		return wgpu.CullModeNone
	}
}

func frontFace(f gpu.FrontFace) wgpu.FrontFace {
	if f == gpu.FrontFaceCW {
		return wgpu.FrontFaceCW
	}
	return wgpu.FrontFaceCCW
}

func topology(t gpu.PrimitiveTopology) wgpu.PrimitiveTopology {
	switch t {
	case gpu.PrimitiveTopologyTriangleStrip:
		return wgpu.PrimitiveTopologyTriangleStrip
	case gpu.PrimitiveTopologyLineList:
		return wgpu.PrimitiveTopologyLineList
	case gpu.PrimitiveTopologyLineStrip:
		return wgpu.PrimitiveTopologyLineStrip
	case gpu.PrimitiveTopologyPointList:
		return wgpu.PrimitiveTopologyPointList
	default:
		return wgpu.PrimitiveTopologyTriangleList
	}
}

func blendFactor(f gpu.BlendFactor) wgpu.BlendFactor {
	switch f {
	case gpu.BlendFactorOne:
		return wgpu.BlendFactorOne
	case gpu.BlendFactorSrcAlpha:
		return wgpu.BlendFactorSrcAlpha
	case gpu.BlendFactorOneMinusSrcAlpha:
		return wgpu.BlendFactorOneMinusSrcAlpha
	case gpu.BlendFactorDstAlpha:
		return wgpu.BlendFactorDstAlpha
	case gpu.BlendFactorOneMinusDstAlpha:
		return wgpu.BlendFactorOneMinusDstAlpha
	default:
		return wgpu.BlendFactorZero
	}
}

// blendState returns nil when blending is disabled, which WebGPU treats as replace.
func blendState(b gpu.BlendState) *wgpu.BlendState {
	if !b.Enabled {
		return nil
	}
	return &wgpu.BlendState{
		Color: wgpu.BlendComponent{
			SrcFactor: blendFactor(b.Color.SrcFactor),
			DstFactor: blendFactor(b.Color.DstFactor),
			Operation: wgpu.BlendOperationAdd,
		},
		Alpha: wgpu.BlendComponent{
			SrcFactor: blendFactor(b.Alpha.SrcFactor),
			DstFactor: blendFactor(b.Alpha.DstFactor),
			Operation: wgpu.BlendOperationAdd,
		},
	}
}

func bufferUsage(u gpu.BufferUsage) wgpu.BufferUsage {
	var out wgpu.BufferUsage
	if u&gpu.BufferUsageVertex != 0 {
		out |= wgpu.BufferUsageVertex
	}
	if u&gpu.BufferUsageIndex != 0 {
		out |= wgpu.BufferUsageIndex
	}
	if u&gpu.BufferUsageUniform != 0 {
		out |= wgpu.BufferUsageUniform
	}
	if u&gpu.BufferUsageStorage != 0 {
		out |= wgpu.BufferUsageStorage
	}
	if u&gpu.BufferUsageCopyDst != 0 {
		out |= wgpu.BufferUsageCopyDst
	}
	return out
}
