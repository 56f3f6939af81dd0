package rendering

import (
	"github.com/Carmen-Shannon/oxy-pipeline/engine/effect"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/gpu"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/rendering/node"
)

// FallbackEffectSelector picks the effect bound while the requested permutation is compiling
// or after it failed.
type FallbackEffectSelector interface {
	// ComputeFallbackEffect returns the fallback for an object in a stage.
	//
	// Parameters:
	//   - obj: the object whose effect is not available
	//   - stage: the first stage using the effect permutation slot
	//   - effectName: the requested effect
	//   - state: RenderEffectStateCompiling or RenderEffectStateError
	//
	// Returns:
	//   - *effect.CompiledEffect: the fallback, or nil when there is none
	ComputeFallbackEffect(obj *RenderObject, stage *RenderStage, effectName string, state RenderEffectState) *effect.CompiledEffect
}

// FallbackEffectSelectorFunc adapts a function to FallbackEffectSelector.
type FallbackEffectSelectorFunc func(obj *RenderObject, stage *RenderStage, effectName string, state RenderEffectState) *effect.CompiledEffect

func (f FallbackEffectSelectorFunc) ComputeFallbackEffect(obj *RenderObject, stage *RenderStage, effectName string, state RenderEffectState) *effect.CompiledEffect {
	return f(obj, stage, effectName, state)
}

// StaticFallbackEffectSelector returns the same precompiled effects for every object.
type StaticFallbackEffectSelector struct {
	Compiling *effect.CompiledEffect
	Error     *effect.CompiledEffect
}

var _ FallbackEffectSelector = &StaticFallbackEffectSelector{}

func (s *StaticFallbackEffectSelector) ComputeFallbackEffect(_ *RenderObject, _ *RenderStage, _ string, state RenderEffectState) *effect.CompiledEffect {
	switch state {
	case RenderEffectStateCompiling:
		return s.Compiling
	case RenderEffectStateError:
		return s.Error
	default:
		return nil
	}
}

// PipelineStateProcessor adjusts a pipeline description before its state object is created.
type PipelineStateProcessor interface {
	// ProcessPipelineState edits desc for one render node.
	//
	// Parameters:
	//   - ctx: the frame context
	//   - ref: the render node reference
	//   - renderNode: the render node
	//   - obj: the render object of the node
	//   - desc: the description to edit
	ProcessPipelineState(ctx *RenderDrawContext, ref node.RenderNodeReference, renderNode *RenderNode, obj *RenderObject, desc *gpu.PipelineStateDescription)
}

// PipelineStateProcessorFunc adapts a function to PipelineStateProcessor.
type PipelineStateProcessorFunc func(ctx *RenderDrawContext, ref node.RenderNodeReference, renderNode *RenderNode, obj *RenderObject, desc *gpu.PipelineStateDescription)

func (f PipelineStateProcessorFunc) ProcessPipelineState(ctx *RenderDrawContext, ref node.RenderNodeReference, renderNode *RenderNode, obj *RenderObject, desc *gpu.PipelineStateDescription) {
	f(ctx, ref, renderNode, obj, desc)
}

// Drawer binds geometry and issues the draw call of one render node. Pipeline state and
// resource groups are already bound when it runs.
type Drawer interface {
	// Draw records the draw of a render node.
	//
	// Parameters:
	//   - ctx: the frame context holding the command list
	//   - renderNode: the render node to draw
	Draw(ctx *RenderDrawContext, renderNode *RenderNode)
}

// DrawerFunc adapts a function to Drawer.
type DrawerFunc func(ctx *RenderDrawContext, renderNode *RenderNode)

func (f DrawerFunc) Draw(ctx *RenderDrawContext, renderNode *RenderNode) { f(ctx, renderNode) }

// Drawable is implemented by object sources that know how to bind and draw their geometry.
type Drawable interface {
	// Draw binds vertex and index buffers and issues the draw.
	//
	// Parameters:
	//   - cl: the command list to record into
	Draw(cl gpu.CommandList)
}

// SourceDrawer draws render nodes whose object source implements Drawable.
type SourceDrawer struct{}

var _ Drawer = SourceDrawer{}

func (SourceDrawer) Draw(ctx *RenderDrawContext, renderNode *RenderNode) {
	if d, ok := renderNode.RenderObject.Source.(Drawable); ok {
		d.Draw(ctx.CommandList)
	}
}
