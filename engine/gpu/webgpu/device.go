// Package webgpu implements the graphics-device collaborator on top of wgpu-native. Frames are
// rendered into offscreen render targets, one per distinct render stage output description.
package webgpu

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-pipeline/common"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/gpu"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/pkg/errors"
)

const (
	defaultWidth  = 1280
	defaultHeight = 720
	maxBindGroups = 8
)

// RenderTarget is the set of offscreen textures one render stage output draws into.
type RenderTarget struct {
	Output     gpu.RenderOutputDescription
	Colors     []*wgpu.Texture
	ColorViews []*wgpu.TextureView
	Depth      *wgpu.Texture
	DepthView  *wgpu.TextureView
}

func (t *RenderTarget) release() {
	for _, v := range t.ColorViews {
		v.Release()
	}
	for _, tex := range t.Colors {
		tex.Release()
	}
	if t.DepthView != nil {
		t.DepthView.Release()
	}
	if t.Depth != nil {
		t.Depth.Release()
	}
}

type pipelineNative struct {
	module   *wgpu.ShaderModule
	layout   *wgpu.PipelineLayout
	pipeline *wgpu.RenderPipeline
}

// Device is a gpu.Device backed by a wgpu-native device. Safe for concurrent use.
type Device struct {
	mu *sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	width, height        uint32
	forceFallbackAdapter bool
	clearColor           wgpu.Color

	emptyLayout *wgpu.BindGroupLayout
	targets     map[string]*RenderTarget
	pipelines   []*pipelineNative
}

var _ gpu.Device = &Device{}

// NewDevice requests an adapter and a device without a presentation surface.
//
// Parameters:
//   - opts: functional options (size, fallback adapter, clear color)
//
// Returns:
//   - *Device: the device
//   - error: an error if no adapter or device is available
func NewDevice(opts ...DeviceBuilderOption) (*Device, error) {
	d := &Device{
		mu:         &sync.Mutex{},
		width:      defaultWidth,
		height:     defaultHeight,
		clearColor: wgpu.Color{R: 0.1, G: 0.1, B: 0.1, A: 1.0},
		targets:    make(map[string]*RenderTarget),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.instance = wgpu.CreateInstance(nil)
	adapter, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: d.forceFallbackAdapter,
	})
	if err != nil {
		d.instance.Release()
		return nil, errors.Wrap(err, "webgpu: request adapter")
	}
	d.adapter = adapter

	limits := wgpu.DefaultLimits()
	limits.MaxBindGroups = maxBindGroups
	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Pipeline Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		adapter.Release()
		d.instance.Release()
		return nil, errors.Wrap(err, "webgpu: request device")
	}
	d.device = device
	d.queue = device.GetQueue()

	common.Logger().Info("webgpu device created",
		slog.Int("width", int(d.width)),
		slog.Int("height", int(d.height)),
		slog.Bool("fallback_adapter", d.forceFallbackAdapter))
	return d, nil
}

func (d *Device) CreateDescriptorSetLayout(builder *gpu.DescriptorSetLayoutBuilder) (*gpu.DescriptorSetLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries := make([]wgpu.BindGroupLayoutEntry, 0, len(builder.Entries))
	for _, e := range builder.Entries {
		entry, err := layoutEntry(e)
		if err != nil {
			return nil, errors.Wrapf(err, "descriptor set layout %q", builder.Name)
		}
		entries = append(entries, entry)
	}
	native, err := d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   builder.Name,
		Entries: entries,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "webgpu: create bind group layout %q", builder.Name)
	}
	return &gpu.DescriptorSetLayout{
		Name:    builder.Name,
		Hash:    builder.Hash(),
		Entries: append([]gpu.DescriptorSetLayoutEntry(nil), builder.Entries...),
		Native:  native,
	}, nil
}

func (d *Device) CreatePipelineState(desc *gpu.PipelineStateDescription) (*gpu.PipelineState, error) {
	if desc.Bytecode == nil || desc.Bytecode.WGSL == "" {
		return nil, errors.New("webgpu: pipeline state requires WGSL bytecode")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	label := desc.Bytecode.Label
	module, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: desc.Bytecode.WGSL,
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "webgpu: create shader module %q", label)
	}

	bindGroupLayouts := make([]*wgpu.BindGroupLayout, len(desc.RootSignature))
	for i, l := range desc.RootSignature {
		if l != nil {
			if native, ok := l.Native.(*wgpu.BindGroupLayout); ok {
				bindGroupLayouts[i] = native
				continue
			}
		}
		empty, err := d.emptyBindGroupLayout()
		if err != nil {
			module.Release()
			return nil, err
		}
		bindGroupLayouts[i] = empty
	}
	layout, err := d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            label,
		BindGroupLayouts: bindGroupLayouts,
	})
	if err != nil {
		module.Release()
		return nil, errors.Wrapf(err, "webgpu: create pipeline layout %q", label)
	}

	pipelineDesc := &wgpu.RenderPipelineDescriptor{
		Label:  label + " Render Pipeline",
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: desc.Bytecode.VertexEntry,
			Buffers:    vertexBufferLayouts(desc.VertexLayouts),
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  topology(desc.Topology),
			FrontFace: frontFace(desc.Rasterizer.FrontFace),
			CullMode:  cullMode(desc.Rasterizer.CullMode),
		},
		Multisample: wgpu.MultisampleState{
			Count: max(desc.Output.MultisampleCount, 1),
			Mask:  0xFFFFFFFF,
		},
	}

	if desc.Bytecode.FragmentEntry != "" && len(desc.Output.RenderTargetFormats) > 0 {
		targets := make([]wgpu.ColorTargetState, 0, len(desc.Output.RenderTargetFormats))
		for _, f := range desc.Output.RenderTargetFormats {
			format, err := textureFormat(f)
			if err != nil {
				layout.Release()
				module.Release()
				return nil, err
			}
			targets = append(targets, wgpu.ColorTargetState{
				Format:    format,
				Blend:     blendState(desc.Blend),
				WriteMask: wgpu.ColorWriteMaskAll,
			})
		}
		pipelineDesc.Fragment = &wgpu.FragmentState{
			Module:     module,
			EntryPoint: desc.Bytecode.FragmentEntry,
			Targets:    targets,
		}
	}

	if desc.Output.DepthStencilFormat != gpu.PixelFormatUndefined {
		format, err := textureFormat(desc.Output.DepthStencilFormat)
		if err != nil {
			layout.Release()
			module.Release()
			return nil, err
		}
		depthCompare := compareFunction(desc.DepthStencil.DepthCompare)
		if !desc.DepthStencil.DepthTestEnabled {
			depthCompare = wgpu.CompareFunctionAlways
		}
		pipelineDesc.DepthStencil = &wgpu.DepthStencilState{
			Format:              format,
			DepthWriteEnabled:   desc.DepthStencil.DepthWriteEnabled,
			DepthCompare:        depthCompare,
			DepthBias:           desc.Rasterizer.DepthBias,
			DepthBiasSlopeScale: desc.Rasterizer.DepthBiasSlopeScale,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		}
	}

	created, err := d.device.CreateRenderPipeline(pipelineDesc)
	if err != nil {
		layout.Release()
		module.Release()
		return nil, errors.Wrapf(err, "webgpu: create render pipeline %q", label)
	}
	native := &pipelineNative{module: module, layout: layout, pipeline: created}
	d.pipelines = append(d.pipelines, native)
	return &gpu.PipelineState{Hash: desc.Hash(), Description: *desc, Native: native}, nil
}

func (d *Device) CreateBuffer(desc gpu.BufferDescription) (*gpu.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	native, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            desc.Label,
		Size:             desc.Size,
		Usage:            bufferUsage(desc.Usage),
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "webgpu: create buffer %q", desc.Label)
	}
	return &gpu.Buffer{Label: desc.Label, Size: desc.Size, Usage: desc.Usage, Native: native}, nil
}

func (d *Device) WriteBuffer(buf *gpu.Buffer, offset uint64, data []byte) error {
	native, ok := buf.Native.(*wgpu.Buffer)
	if !ok {
		return errors.Errorf("webgpu: buffer %q was not created by this device", buf.Label)
	}
	if offset+uint64(len(data)) > buf.Size {
		return errors.Errorf("webgpu: write of %d bytes at %d overflows buffer %q (%d bytes)", len(data), offset, buf.Label, buf.Size)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue.WriteBuffer(native, offset, data)
	return nil
}

func (d *Device) NewCommandList() gpu.CommandList {
	return &CommandList{device: d}
}

// Target returns the offscreen render target of an output description, creating it on first use.
//
// Parameters:
//   - output: the render stage output description
//
// Returns:
//   - *RenderTarget: the target
//   - error: an error if a texture could not be created
func (d *Device) Target(output gpu.RenderOutputDescription) (*RenderTarget, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.target(output)
}

// Size returns the dimensions of every render target.
func (d *Device) Size() (width, height uint32) {
	return d.width, d.height
}

// Resize drops every render target; they are recreated at the new size on next use.
//
// Parameters:
//   - width: the new width in pixels
//   - height: the new height in pixels
func (d *Device) Resize(width, height uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if width == d.width && height == d.height {
		return
	}
	d.width, d.height = width, height
	for key, t := range d.targets {
		t.release()
		delete(d.targets, key)
	}
}

// Release frees every pipeline, target and the device itself.
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.pipelines {
		p.pipeline.Release()
		p.layout.Release()
		p.module.Release()
	}
	d.pipelines = nil
	for key, t := range d.targets {
		t.release()
		delete(d.targets, key)
	}
	if d.emptyLayout != nil {
		d.emptyLayout.Release()
		d.emptyLayout = nil
	}
	d.queue.Release()
	d.device.Release()
	d.adapter.Release()
	d.instance.Release()
}

func (d *Device) emptyBindGroupLayout() (*wgpu.BindGroupLayout, error) {
	if d.emptyLayout != nil {
		return d.emptyLayout, nil
	}
	layout, err := d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{Label: "Empty"})
	if err != nil {
		return nil, errors.Wrap(err, "webgpu: create empty bind group layout")
	}
	d.emptyLayout = layout
	return layout, nil
}

func (d *Device) target(output gpu.RenderOutputDescription) (*RenderTarget, error) {
	key := targetKey(output)
	if t, ok := d.targets[key]; ok {
		return t, nil
	}

	samples := max(output.MultisampleCount, 1)
	t := &RenderTarget{Output: output}
	for i, f := range output.RenderTargetFormats {
		tex, view, err := d.createAttachment(fmt.Sprintf("Color %d", i), f, samples)
		if err != nil {
			t.release()
			return nil, err
		}
		t.Colors = append(t.Colors, tex)
		t.ColorViews = append(t.ColorViews, view)
	}
	if output.DepthStencilFormat != gpu.PixelFormatUndefined {
		tex, view, err := d.createAttachment("Depth", output.DepthStencilFormat, samples)
		if err != nil {
			t.release()
			return nil, err
		}
		t.Depth, t.DepthView = tex, view
	}
	d.targets[key] = t
	return t, nil
}

func (d *Device) createAttachment(label string, f gpu.PixelFormat, samples uint32) (*wgpu.Texture, *wgpu.TextureView, error) {
	format, err := textureFormat(f)
	if err != nil {
		return nil, nil, err
	}
	usage := wgpu.TextureUsageRenderAttachment
	if samples == 1 {
		usage |= wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopySrc
	}
	tex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: label + " Target",
		Size: wgpu.Extent3D{
			Width:              d.width,
			Height:             d.height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   samples,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return nil, nil, errors.Wrapf(err, "webgpu: create %s target", label)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, nil, errors.Wrapf(err, "webgpu: create %s target view", label)
	}
	return tex, view, nil
}

// targetKey identifies a render target by its formats and sample count.
func targetKey(output gpu.RenderOutputDescription) string {
	var sb strings.Builder
	for _, f := range output.RenderTargetFormats {
		sb.WriteString(string(f))
		sb.WriteByte(',')
	}
	fmt.Fprintf(&sb, "%s/%d", output.DepthStencilFormat, max(output.MultisampleCount, 1))
	return sb.String()
}
