package rendering

import (
	"fmt"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-pipeline/engine/effect"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/gpu"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/gpu/headless"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/rendering/node"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEffectFeature(t *testing.T, h *harness, opts ...RootEffectRenderFeatureBuilderOption) *RootEffectRenderFeature {
	t.Helper()
	opts = append([]RootEffectRenderFeatureBuilderOption{WithRenderStageSelectors(h.mainSelector("Basic"))}, opts...)
	f := NewRootEffectRenderFeature(meshType, opts...)
	require.NoError(t, h.rs.AddRenderFeature(f))
	return f
}

// permutationFeature contributes a Skinning parameter to every effect and can ask to skip them.
type permutationFeature struct {
	SubRenderFeatureBase
	skinning bool
	skip     bool
	prepared int
}

func (s *permutationFeature) PrepareEffectPermutations(*RenderDrawContext) {
	root := s.RootRenderFeature
	for i := range root.RenderNodes {
		rn := &root.RenderNodes[i]
		re := root.RenderEffectOf(rn.RenderObject, rn.RenderStage)
		re.EffectValidator.ValidateParameter("Skinning", s.skinning)
		if s.skip {
			re.EffectValidator.ShouldSkip = true
		}
	}
}

func (s *permutationFeature) Prepare(*RenderDrawContext) error {
	s.prepared++
	return nil
}

func TestEffectCompilesOnceAndDraws(t *testing.T) {
	h := newHarness(t)
	f := newEffectFeature(t, h)
	obj := h.addObject(meshType)

	h.frame()

	re := f.RenderEffectOf(obj, h.stage)
	require.NotNil(t, re)
	assert.Equal(t, RenderEffectStateNormal, re.State)
	require.NotNil(t, re.Effect)
	assert.Equal(t, "Basic|", re.Effect.Name)
	assert.NotNil(t, re.PipelineState)
	assert.Equal(t, 1, h.compiler.callCount())

	cmds := h.submitted()
	assert.Equal(t, 1, countKind(cmds, headless.CommandSetPipelineState))
	assert.Equal(t, 1, countKind(cmds, headless.CommandDraw))
	for _, c := range cmds {
		if c.Kind == headless.CommandSetResourceGroups {
			require.Len(t, c.ResourceGroups, 3)
			for _, g := range c.ResourceGroups {
				assert.NotNil(t, g)
			}
		}
	}

	h.frame()
	assert.Equal(t, 1, h.compiler.callCount())
	assert.Equal(t, 1, countKind(h.submitted(), headless.CommandDraw))
	_, pipelines, _ := h.device.Stats()
	assert.Equal(t, 1, pipelines)
}

func TestEffectErrorBacksOffThenRecovers(t *testing.T) {
	h := newHarness(t)
	placeholder := testEffect("error-fallback")
	f := newEffectFeature(t, h, WithFallbackEffectSelector(&StaticFallbackEffectSelector{Error: placeholder}))
	h.compiler.fail["Basic"] = errBrokenEffect
	obj := h.addObject(meshType)

	h.frame()
	re := f.RenderEffectOf(obj, h.stage)
	require.NotNil(t, re)
	assert.Equal(t, RenderEffectStateError, re.State)
	assert.Same(t, placeholder, re.Effect)
	assert.Equal(t, 1, countKind(h.submitted(), headless.CommandDraw), "the placeholder is drawn")

	delete(h.compiler.fail, "Basic")
	h.frame()
	assert.Equal(t, RenderEffectStateError, re.State, "no retry before the backoff elapsed")
	assert.Equal(t, 1, h.compiler.callCount())
	h.submitted()

	h.clock.Advance(DefaultEffectRetryInterval)
	h.frame()
	assert.Equal(t, RenderEffectStateNormal, re.State)
	assert.Equal(t, "Basic|", re.Effect.Name)
	assert.Equal(t, 2, h.compiler.callCount())
	assert.Equal(t, 1, countKind(h.submitted(), headless.CommandDraw))
}

func TestEffectErrorWithoutFallbackIsNotDrawn(t *testing.T) {
	h := newHarness(t, WithEffectRetryInterval(5*time.Second))
	f := newEffectFeature(t, h)
	h.compiler.fail["Basic"] = errBrokenEffect
	obj := h.addObject(meshType)

	h.frame()
	re := f.RenderEffectOf(obj, h.stage)
	assert.Equal(t, RenderEffectStateError, re.State)
	assert.Nil(t, re.Effect)
	assert.Equal(t, h.clock.Now().Add(5*time.Second), re.RetryTime)
	assert.Zero(t, countKind(h.submitted(), headless.CommandDraw))
}

func TestCompilePanicBecomesError(t *testing.T) {
	h := newHarness(t)
	f := newEffectFeature(t, h)
	h.compiler.panics["Basic"] = true
	obj := h.addObject(meshType)

	require.NotPanics(t, h.frame)
	assert.Equal(t, RenderEffectStateError, f.RenderEffectOf(obj, h.stage).State)
}

func TestAsyncCompileBindsCompilingFallback(t *testing.T) {
	h := newHarness(t)
	compiling := testEffect("compiling-fallback")
	f := newEffectFeature(t, h, WithFallbackEffectSelector(&StaticFallbackEffectSelector{Compiling: compiling}))
	task := newManualTask()
	h.compiler.pending["Basic"] = task
	obj := h.addObject(meshType)

	h.frame()
	re := f.RenderEffectOf(obj, h.stage)
	assert.Equal(t, RenderEffectStateCompiling, re.State)
	assert.Same(t, compiling, re.Effect)
	assert.Equal(t, 1, countKind(h.submitted(), headless.CommandDraw))

	h.frame()
	assert.Equal(t, RenderEffectStateCompiling, re.State)
	assert.Equal(t, 1, h.compiler.callCount(), "a pending compile is polled, not requested again")
	h.submitted()

	final := testEffect("Basic-final")
	task.complete(final, nil)
	h.frame()
	assert.Equal(t, RenderEffectStateNormal, re.State)
	assert.Same(t, final, re.Effect)
	assert.Nil(t, re.PendingEffect)
	assert.Equal(t, 1, countKind(h.submitted(), headless.CommandDraw))
	_, pipelines, _ := h.device.Stats()
	assert.Equal(t, 2, pipelines)
}

func TestAsyncCompileFailureMovesToError(t *testing.T) {
	h := newHarness(t)
	f := newEffectFeature(t, h, WithFallbackEffectSelector(&StaticFallbackEffectSelector{Compiling: testEffect("compiling")}))
	task := newManualTask()
	h.compiler.pending["Basic"] = task
	obj := h.addObject(meshType)

	h.frame()
	task.complete(nil, errBrokenEffect)
	h.frame()

	re := f.RenderEffectOf(obj, h.stage)
	assert.Equal(t, RenderEffectStateError, re.State)
	assert.Nil(t, re.Effect)
}

func TestAsyncCompileFailureKeepsParameterSnapshot(t *testing.T) {
	h := newHarness(t)
	sub := &permutationFeature{skinning: true}
	f := newEffectFeature(t, h,
		WithSubRenderFeatures(sub),
		WithFallbackEffectSelector(&StaticFallbackEffectSelector{Compiling: testEffect("compiling")}))
	task := newManualTask()
	h.compiler.pending["Basic"] = task
	obj := h.addObject(meshType)

	h.frame()
	task.complete(nil, errBrokenEffect)
	h.frame()

	re := f.RenderEffectOf(obj, h.stage)
	require.Equal(t, RenderEffectStateError, re.State)
	require.NotNil(t, re.FallbackParameters)
	assert.NotSame(t, re.EffectValidator.Parameters(), re.FallbackParameters)
	assert.True(t, re.FallbackParameters.Bool("Skinning"))

	re.EffectValidator.Parameters().Set("Skinning", false)
	assert.True(t, re.FallbackParameters.Bool("Skinning"))
}

func TestSyncCompileWaitsForPendingCompile(t *testing.T) {
	h := newHarness(t, WithCompileMode(CompileModeSync))
	f := newEffectFeature(t, h, WithFallbackEffectSelector(&StaticFallbackEffectSelector{Compiling: testEffect("compiling")}))
	task := newManualTask()
	h.compiler.pending["Basic"] = task
	obj := h.addObject(meshType)

	final := testEffect("Basic-sync")
	go func() {
		time.Sleep(10 * time.Millisecond)
		task.complete(final, nil)
	}()
	h.frame()

	re := f.RenderEffectOf(obj, h.stage)
	assert.Equal(t, RenderEffectStateNormal, re.State)
	assert.Same(t, final, re.Effect)
}

func TestPermutationChangeRecompiles(t *testing.T) {
	h := newHarness(t)
	sub := &permutationFeature{}
	f := newEffectFeature(t, h, WithSubRenderFeatures(sub))
	obj := h.addObject(meshType)

	h.frame()
	h.frame()
	assert.Equal(t, 1, h.compiler.callCount())
	assert.Equal(t, "Basic|Skinning=false", f.RenderEffectOf(obj, h.stage).Effect.Name)
	assert.Equal(t, 2, sub.prepared)
	assert.Same(t, f, sub.RootRenderFeature)

	sub.skinning = true
	h.frame()
	re := f.RenderEffectOf(obj, h.stage)
	assert.Equal(t, 2, h.compiler.callCount())
	assert.Equal(t, "Basic|Skinning=true", re.Effect.Name)
	assert.True(t, re.Effect.Parameters.Bool("Skinning"))
}

func TestSkipDropsNodeUntilCleared(t *testing.T) {
	h := newHarness(t)
	sub := &permutationFeature{skip: true}
	f := newEffectFeature(t, h, WithSubRenderFeatures(sub))
	obj := h.addObject(meshType)

	h.frame()
	re := f.RenderEffectOf(obj, h.stage)
	assert.Equal(t, RenderEffectStateSkip, re.State)
	assert.Nil(t, re.Effect)
	cmds := h.submitted()
	assert.Zero(t, countKind(cmds, headless.CommandDraw))
	assert.Zero(t, countKind(cmds, headless.CommandSetPipelineState))
	assert.False(t, f.RenderNodes[0].EffectObjectNode.IsValid())

	sub.skip = false
	h.frame()
	assert.Equal(t, RenderEffectStateNormal, re.State)
	assert.Equal(t, 1, countKind(h.submitted(), headless.CommandDraw))
}

func TestInvalidatedEffectIsRecompiled(t *testing.T) {
	h := newHarness(t)
	f := newEffectFeature(t, h)
	obj := h.addObject(meshType)

	h.frame()
	before := f.RenderEffectOf(obj, h.stage).Effect

	h.compiler.reload("Basic")
	h.frame()

	re := f.RenderEffectOf(obj, h.stage)
	assert.Equal(t, RenderEffectStateNormal, re.State)
	assert.NotSame(t, before, re.Effect)
	assert.Equal(t, 2, h.compiler.callCount())
}

func TestTooManyEffectPermutationSlots(t *testing.T) {
	h := newHarness(t)
	f := newEffectFeature(t, h)

	for i := 1; i < MaxEffectPermutationSlots; i++ {
		require.NoError(t, h.rs.AddRenderStage(NewRenderStage(fmt.Sprintf("stage%d", i), fmt.Sprintf("slot%d", i))))
	}
	assert.Equal(t, MaxEffectPermutationSlots, f.EffectPermutationSlotCount())

	err := h.rs.AddRenderStage(NewRenderStage("overflow", "overflow"))
	assert.True(t, errors.Is(err, ErrTooManyEffectSlots))

	shared := NewRenderStage("shared", DefaultEffectSlotName)
	require.NoError(t, h.rs.AddRenderStage(shared))
	assert.Equal(t, f.EffectPermutationSlotOf(h.stage), f.EffectPermutationSlotOf(shared))
}

func TestEffectSlotAddedAfterObjectsKeepsEffects(t *testing.T) {
	h := newHarness(t)
	f := newEffectFeature(t, h)
	obj := h.addObject(meshType)
	h.frame()
	before := f.RenderEffectOf(obj, h.stage)
	require.NotNil(t, before)

	shadow := NewRenderStage("Shadow", "ShadowCaster")
	require.NoError(t, h.rs.AddRenderStage(shadow))
	h.view.AddRenderStage(shadow)
	f.AddRenderStageSelector(&SimpleGroupToRenderStageSelector{RenderGroup: RenderGroupMaskAll, RenderStage: shadow, EffectName: "Depth"})

	assert.Equal(t, 2, f.EffectPermutationSlotCount())
	assert.Same(t, before, f.RenderEffectOf(obj, h.stage))

	h.frame()
	depth := f.RenderEffectOf(obj, shadow)
	require.NotNil(t, depth)
	assert.Equal(t, "Depth", depth.EffectName)
	assert.Equal(t, "Depth|", depth.Effect.Name)
	assert.Same(t, before, f.RenderEffectOf(obj, h.stage))
}

func TestSharedFrameAndViewResourceGroups(t *testing.T) {
	h := newHarness(t)
	f := newEffectFeature(t, h)

	second := NewRenderView("second")
	second.CullingMode = CullingModeNone
	second.AddRenderStage(h.stage)
	h.rs.AddView(second)

	h.addObject(meshType)
	h.addObject(meshType)
	h.frame()

	group := func(ref node.RenderNodeReference, slot EffectDescriptorSetReference) *gpu.ResourceGroup {
		return f.ResourceGroupPool[f.ComputeResourceGroupOffset(ref)+slot.Index]
	}
	first := h.view.Features[f.Index].RenderNodes
	other := second.Features[f.Index].RenderNodes
	require.Len(t, first, 2)
	require.Len(t, other, 2)
	all := append(append([]node.RenderNodeReference{}, first...), other...)

	frame := group(all[0], f.perFrameSlot)
	require.NotNil(t, frame)
	for _, ref := range all {
		assert.Same(t, frame, group(ref, f.perFrameSlot))
	}

	assert.Same(t, group(first[0], f.perViewSlot), group(first[1], f.perViewSlot))
	assert.Same(t, group(other[0], f.perViewSlot), group(other[1], f.perViewSlot))
	assert.NotSame(t, group(first[0], f.perViewSlot), group(other[0], f.perViewSlot))

	seen := map[*gpu.ResourceGroup]bool{}
	for _, ref := range all {
		draw := group(ref, f.perDrawSlot)
		require.NotNil(t, draw)
		assert.False(t, seen[draw])
		seen[draw] = true
		assert.Same(t, draw, f.RenderNodes[ref.Index].Resources)
	}

	assert.Len(t, f.FrameLayouts, 1)
	assert.Len(t, h.view.Features[f.Index].Layouts, 1)
	assert.Len(t, second.Features[f.Index].Layouts, 1)
	assert.Equal(t, 3, f.EffectDescriptorSetSlotCount())
}

func TestConstantBufferOffsetsResolveByName(t *testing.T) {
	h := newHarness(t)
	f := newEffectFeature(t, h)
	timeRef := f.CreateFrameCBufferOffsetSlot("Time")
	missing := f.CreateFrameCBufferOffsetSlot("Missing")
	color := f.CreateDrawCBufferOffsetSlot("Color")
	obj := h.addObject(meshType)

	h.frame()
	reflection := f.RenderEffectOf(obj, h.stage).Reflection
	require.NotNil(t, reflection)
	assert.Equal(t, 0, reflection.PerFrameLayout.GetConstantBufferOffset(timeRef))
	assert.Equal(t, -1, reflection.PerFrameLayout.GetConstantBufferOffset(missing))
	assert.Equal(t, 64, reflection.PerDrawLayout.GetConstantBufferOffset(color))

	viewProjection := f.CreateViewCBufferOffsetSlot("ViewProjection")
	world := f.CreateDrawCBufferOffsetSlot("World")
	assert.Equal(t, 0, reflection.PerViewLayout.GetConstantBufferOffset(viewProjection))
	assert.Equal(t, 0, reflection.PerDrawLayout.GetConstantBufferOffset(world))
	assert.Equal(t, -1, reflection.PerDrawLayout.GetConstantBufferOffset(ConstantBufferOffsetReference{Index: 9}))
}

func TestDrawBindsPipelineOncePerRun(t *testing.T) {
	h := newHarness(t)
	var compiled int
	newEffectFeature(t, h, WithEffectCompiled(func(*RenderSystem, *effect.CompiledEffect, *RenderEffectReflection) {
		compiled++
	}))
	h.addObject(meshType)
	h.addObject(meshType)

	h.frame()

	cmds := h.submitted()
	assert.Equal(t, 1, countKind(cmds, headless.CommandSetPipelineState))
	assert.Equal(t, 2, countKind(cmds, headless.CommandSetResourceGroups))
	assert.Equal(t, 2, countKind(cmds, headless.CommandDraw))
	assert.Equal(t, 1, compiled)
}

func TestPipelineStateProcessorsAndDrawer(t *testing.T) {
	h := newHarness(t)
	h.stage.Output = gpu.RenderOutputDescription{
		RenderTargetFormats: []gpu.PixelFormat{gpu.PixelFormatBGRA8Unorm},
		DepthStencilFormat:  gpu.PixelFormatDepth24Plus,
		MultisampleCount:    1,
	}

	var seenOutput gpu.RenderOutputDescription
	var drawn []*RenderObject
	f := newEffectFeature(t, h,
		WithPipelineStateProcessor(PipelineStateProcessorFunc(func(_ *RenderDrawContext, _ node.RenderNodeReference, _ *RenderNode, _ *RenderObject, desc *gpu.PipelineStateDescription) {
			desc.SetAlphaBlend()
		})),
		WithPostProcessPipelineState(PipelineStateProcessorFunc(func(_ *RenderDrawContext, _ node.RenderNodeReference, _ *RenderNode, _ *RenderObject, desc *gpu.PipelineStateDescription) {
			seenOutput = desc.Output
		})),
		WithDrawer(DrawerFunc(func(ctx *RenderDrawContext, rn *RenderNode) {
			drawn = append(drawn, rn.RenderObject)
			ctx.CommandList.DrawIndexed(6, 1, 0, 0)
		})),
	)
	obj := h.addObject(meshType)

	h.frame()

	re := f.RenderEffectOf(obj, h.stage)
	require.NotNil(t, re.PipelineState)
	assert.True(t, re.PipelineState.Description.Blend.Enabled)
	assert.Equal(t, h.stage.Output, seenOutput)
	assert.Equal(t, []*RenderObject{obj}, drawn)
	cmds := h.submitted()
	assert.Equal(t, 1, countKind(cmds, headless.CommandDrawIndexed))
	assert.Zero(t, countKind(cmds, headless.CommandDraw))
}

func TestPipelineStateFailureBecomesError(t *testing.T) {
	h := newHarness(t)
	f := newEffectFeature(t, h)
	obj := h.addObject(meshType)
	h.device.FailNext()

	h.frame()
	re := f.RenderEffectOf(obj, h.stage)
	assert.Equal(t, RenderEffectStateError, re.State)
	assert.Zero(t, countKind(h.submitted(), headless.CommandDraw))

	h.clock.Advance(DefaultEffectRetryInterval)
	h.frame()
	assert.Equal(t, RenderEffectStateNormal, re.State)
	assert.Equal(t, 1, countKind(h.submitted(), headless.CommandDraw))
}

func TestRemovedObjectMovesEffectsWithLastObject(t *testing.T) {
	h := newHarness(t)
	f := newEffectFeature(t, h)
	a := h.addObject(meshType)
	h.addObject(meshType)
	c := h.addObject(meshType)
	h.frame()

	effectOfC := f.RenderEffectOf(c, h.stage)
	require.NotNil(t, effectOfC)
	require.True(t, h.group.RemoveRenderObject(a))

	assert.Equal(t, 0, c.StaticObjectNode.Index)
	assert.Same(t, effectOfC, f.RenderEffectOf(c, h.stage))

	h.submitted()
	h.frame()
	assert.Equal(t, 2, countKind(h.submitted(), headless.CommandDraw))
}
