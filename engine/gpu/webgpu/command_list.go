package webgpu

import (
	"github.com/Carmen-Shannon/oxy-pipeline/engine/gpu"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/pkg/errors"
)

// CommandList records into a wgpu command encoder. A render pass is opened on the render target
// matching the bound pipeline's output and switched whenever a pipeline with another output is
// bound. Each target is cleared by the first pass that draws into it after a Flush.
type CommandList struct {
	device *Device

	encoder *wgpu.CommandEncoder
	pass    *wgpu.RenderPassEncoder
	passKey string
	cleared map[string]bool

	bindGroups []*wgpu.BindGroup
	err        error
}

var _ gpu.CommandList = &CommandList{}

func (c *CommandList) SetPipelineState(state *gpu.PipelineState) {
	if c.err != nil {
		return
	}
	native, ok := state.Native.(*pipelineNative)
	if !ok {
		c.fail(errors.Errorf("webgpu: pipeline state %x was not created by this device", state.Hash))
		return
	}
	if err := c.beginPass(state.Description.Output); err != nil {
		c.fail(err)
		return
	}
	c.pass.SetPipeline(native.pipeline)
}

func (c *CommandList) SetResourceGroups(groups []*gpu.ResourceGroup) {
	if c.err != nil || c.pass == nil {
		return
	}
	for slot, g := range groups {
		if g == nil || g.DescriptorSet == nil {
			continue
		}
		bg, err := c.bindGroup(g.DescriptorSet)
		if err != nil {
			c.fail(errors.Wrapf(err, "resource group %d", slot))
			return
		}
		c.pass.SetBindGroup(uint32(slot), bg, nil)
	}
}

func (c *CommandList) SetVertexBuffer(slot uint32, buf *gpu.Buffer, offset uint64) {
	if c.err != nil || c.pass == nil {
		return
	}
	native, ok := buf.Native.(*wgpu.Buffer)
	if !ok {
		c.fail(errors.Errorf("webgpu: vertex buffer %q was not created by this device", buf.Label))
		return
	}
	c.pass.SetVertexBuffer(slot, native, offset, wgpu.WholeSize)
}

func (c *CommandList) SetIndexBuffer(buf *gpu.Buffer, offset uint64, is32Bit bool) {
	if c.err != nil || c.pass == nil {
		return
	}
	native, ok := buf.Native.(*wgpu.Buffer)
	if !ok {
		c.fail(errors.Errorf("webgpu: index buffer %q was not created by this device", buf.Label))
		return
	}
	format := wgpu.IndexFormatUint16
	if is32Bit {
		format = wgpu.IndexFormatUint32
	}
	c.pass.SetIndexBuffer(native, format, offset, wgpu.WholeSize)
}

func (c *CommandList) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32) {
	if c.err != nil || c.pass == nil {
		return
	}
	c.pass.DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, 0)
}

func (c *CommandList) Draw(vertexCount, instanceCount uint32) {
	if c.err != nil || c.pass == nil {
		return
	}
	c.pass.Draw(vertexCount, instanceCount, 0, 0)
}

// Flush ends the open pass and submits the encoder. The first recording error since the last
// Flush is returned and nothing is submitted in that case.
func (c *CommandList) Flush() error {
	defer c.reset()
	if c.err != nil {
		return c.err
	}
	if c.encoder == nil {
		return nil
	}
	c.endPass()

	commandBuffer, err := c.encoder.Finish(nil)
	if err != nil {
		return errors.Wrap(err, "webgpu: finish command encoder")
	}
	c.device.mu.Lock()
	c.device.queue.Submit(commandBuffer)
	c.device.mu.Unlock()
	commandBuffer.Release()
	return nil
}

func (c *CommandList) beginPass(output gpu.RenderOutputDescription) error {
	key := targetKey(output)
	if c.pass != nil && c.passKey == key {
		return nil
	}
	c.endPass()

	c.device.mu.Lock()
	target, err := c.device.target(output)
	clearColor := c.device.clearColor
	if err == nil && c.encoder == nil {
		c.encoder, err = c.device.device.CreateCommandEncoder(nil)
	}
	c.device.mu.Unlock()
	if err != nil {
		return errors.Wrap(err, "webgpu: begin render pass")
	}

	if c.cleared == nil {
		c.cleared = make(map[string]bool)
	}
	load := wgpu.LoadOpLoad
	if !c.cleared[key] {
		load = wgpu.LoadOpClear
		c.cleared[key] = true
	}

	desc := &wgpu.RenderPassDescriptor{}
	for _, view := range target.ColorViews {
		desc.ColorAttachments = append(desc.ColorAttachments, wgpu.RenderPassColorAttachment{
			View:       view,
			LoadOp:     load,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: clearColor,
		})
	}
	if target.DepthView != nil {
		desc.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
			View:            target.DepthView,
			DepthLoadOp:     load,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
		}
	}
	c.pass = c.encoder.BeginRenderPass(desc)
	c.passKey = key
	return nil
}

func (c *CommandList) endPass() {
	if c.pass == nil {
		return
	}
	c.pass.End()
	c.pass.Release()
	c.pass = nil
	c.passKey = ""
}

// bindGroup creates a bind group for a frame descriptor set. Bind groups live until the next Flush.
func (c *CommandList) bindGroup(set *gpu.DescriptorSet) (*wgpu.BindGroup, error) {
	layout, ok := set.Layout.Native.(*wgpu.BindGroupLayout)
	if !ok {
		return nil, errors.Errorf("webgpu: descriptor set layout %q was not created by this device", set.Layout.Name)
	}
	entries := make([]wgpu.BindGroupEntry, 0, len(set.Resources))
	for i, res := range set.Resources {
		e := set.Layout.Entries[i]
		entry := wgpu.BindGroupEntry{Binding: e.Binding}
		switch {
		case e.Kind.IsBuffer():
			if res.Buffer == nil {
				return nil, errors.Errorf("webgpu: binding %d of %q has no buffer", e.Binding, set.Layout.Name)
			}
			buf, ok := res.Buffer.Native.(*wgpu.Buffer)
			if !ok {
				return nil, errors.Errorf("webgpu: binding %d of %q uses a foreign buffer", e.Binding, set.Layout.Name)
			}
			entry.Buffer = buf
			entry.Offset = res.Offset
			entry.Size = res.Size
			if entry.Size == 0 {
				entry.Size = wgpu.WholeSize
			}
		case e.Kind == gpu.BindingKindSampler || e.Kind == gpu.BindingKindComparisonSampler:
			samp, ok := res.Sampler.(*wgpu.Sampler)
			if !ok {
				return nil, errors.Errorf("webgpu: binding %d of %q has no sampler", e.Binding, set.Layout.Name)
			}
			entry.Sampler = samp
		default:
			view, ok := res.Texture.(*wgpu.TextureView)
			if !ok {
				return nil, errors.Errorf("webgpu: binding %d of %q has no texture view", e.Binding, set.Layout.Name)
			}
			entry.TextureView = view
		}
		entries = append(entries, entry)
	}

	c.device.mu.Lock()
	bg, err := c.device.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   set.Layout.Name,
		Layout:  layout,
		Entries: entries,
	})
	c.device.mu.Unlock()
	if err != nil {
		return nil, errors.Wrapf(err, "webgpu: create bind group %q", set.Layout.Name)
	}
	c.bindGroups = append(c.bindGroups, bg)
	return bg, nil
}

func (c *CommandList) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *CommandList) reset() {
	c.endPass()
	if c.encoder != nil {
		c.encoder.Release()
		c.encoder = nil
	}
	for _, bg := range c.bindGroups {
		bg.Release()
	}
	c.bindGroups = c.bindGroups[:0]
	clear(c.cleared)
	c.err = nil
}
