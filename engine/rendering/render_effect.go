package rendering

import (
	"time"

	"github.com/Carmen-Shannon/oxy-pipeline/engine/effect"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/gpu"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/rendering/node"
)

// RenderEffectState is the compile state of a RenderEffect.
type RenderEffectState int

const (
	// RenderEffectStateNormal means the requested permutation is bound.
	RenderEffectStateNormal RenderEffectState = iota
	// RenderEffectStateCompiling means a compile is pending and a fallback may be bound.
	RenderEffectStateCompiling
	// RenderEffectStateError means the last compile failed and the error fallback may be bound.
	RenderEffectStateError
	// RenderEffectStateSkip means a contributor asked to drop the object from the stage.
	RenderEffectStateSkip
)

// String returns the name of the state.
func (s RenderEffectState) String() string {
	switch s {
	case RenderEffectStateNormal:
		return "normal"
	case RenderEffectStateCompiling:
		return "compiling"
	case RenderEffectStateError:
		return "error"
	case RenderEffectStateSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// RenderEffect is the cached effect state of one (object, effect permutation slot) pair.
type RenderEffect struct {
	EffectName string
	State      RenderEffectState

	// LastFrameUsed is the frame counter of the last frame a render node used this effect.
	LastFrameUsed uint64

	// PendingEffect is the compile in flight while State is Compiling.
	PendingEffect effect.Task

	Effect        *effect.CompiledEffect
	Reflection    *RenderEffectReflection
	PipelineState *gpu.PipelineState

	EffectValidator *effect.EffectValidator

	// FallbackParameters are the parameters of the permutation that failed or is compiling.
	FallbackParameters *effect.ParameterSet

	// RetryTime is when an effect in the Error state is compiled again.
	RetryTime time.Time
}

// NewRenderEffect creates the state for an effect name.
//
// Parameters:
//   - effectName: the effect requested by the object's active stage
//
// Returns:
//   - *RenderEffect: the effect state
func NewRenderEffect(effectName string) *RenderEffect {
	return &RenderEffect{
		EffectName:      effectName,
		EffectValidator: effect.NewEffectValidator(),
	}
}

// MarkAsUsed stamps the effect with the frame counter.
//
// Parameters:
//   - frame: the current frame counter
//
// Returns:
//   - bool: true the first time it is called in a frame
func (e *RenderEffect) MarkAsUsed(frame uint64) bool {
	if e.LastFrameUsed == frame {
		return false
	}
	e.LastFrameUsed = frame
	return true
}

// IsUsedDuringThisFrame reports whether MarkAsUsed was called during the frame.
func (e *RenderEffect) IsUsedDuringThisFrame(frame uint64) bool {
	return e.LastFrameUsed == frame
}

// IsDrawable reports whether the effect has everything Draw needs.
func (e *RenderEffect) IsDrawable() bool {
	return e != nil && e.Effect != nil && e.Reflection != nil && e.PipelineState != nil && e.State != RenderEffectStateSkip
}

func (e *RenderEffect) clearEffect() {
	e.Effect = nil
	e.Reflection = nil
	e.PipelineState = nil
}

// EffectObjectNode links an effect to the frame object node that uses it.
type EffectObjectNode struct {
	RenderEffect *RenderEffect
	ObjectNode   node.ObjectNodeReference
}

// ResourceGroupEntry is a resource group shared by every node using it in a frame.
type ResourceGroupEntry struct {
	LastFrameUsed uint64
	Resources     gpu.ResourceGroup
}

// MarkAsUsed stamps the entry with the frame counter.
//
// Parameters:
//   - frame: the current frame counter
//
// Returns:
//   - bool: true the first time it is called in a frame, when the group must be allocated
func (e *ResourceGroupEntry) MarkAsUsed(frame uint64) bool {
	if e.LastFrameUsed == frame {
		return false
	}
	e.LastFrameUsed = frame
	return true
}

// ConstantBufferOffsetReference identifies a constant buffer member resolved by name.
type ConstantBufferOffsetReference struct {
	Index int
}

// RenderSystemResourceGroupLayout is a resource group layout plus the resolved offsets of the
// constant buffer members the feature registered.
type RenderSystemResourceGroupLayout struct {
	*gpu.ResourceGroupLayout
	ConstantBufferOffsets []int
}

// GetConstantBufferOffset returns the resolved byte offset of a member, -1 when the effect
// does not declare it.
//
// Parameters:
//   - ref: the offset slot
//
// Returns:
//   - int: the byte offset or -1
func (l *RenderSystemResourceGroupLayout) GetConstantBufferOffset(ref ConstantBufferOffsetReference) int {
	if l == nil || ref.Index < 0 || ref.Index >= len(l.ConstantBufferOffsets) {
		return -1
	}
	return l.ConstantBufferOffsets[ref.Index]
}

func (l *RenderSystemResourceGroupLayout) resolveOffsets(variables []string) {
	l.ConstantBufferOffsets = l.ConstantBufferOffsets[:0]
	for _, v := range variables {
		l.ConstantBufferOffsets = append(l.ConstantBufferOffsets, l.ConstantBuffer.MemberOffset(v))
	}
}

// FrameResourceGroupLayout is a PerFrame layout with its single shared group.
type FrameResourceGroupLayout struct {
	RenderSystemResourceGroupLayout
	Entry ResourceGroupEntry
}

// ViewResourceGroupLayout is a PerView layout with one shared group per view.
type ViewResourceGroupLayout struct {
	RenderSystemResourceGroupLayout
	Entries []ResourceGroupEntry
}

// RenderEffectReflection is the layout information derived once per compiled effect.
type RenderEffectReflection struct {
	Effect *effect.CompiledEffect

	// RootSignature holds the device layouts indexed by bind group.
	RootSignature []*gpu.DescriptorSetLayout

	// GroupSlots maps every bind group of the effect to a descriptor set slot of the feature,
	// which is the upload plan Draw follows.
	GroupSlots []int

	PerFrameLayout *FrameResourceGroupLayout
	PerViewLayout  *ViewResourceGroupLayout
	PerDrawLayout  *RenderSystemResourceGroupLayout
}
