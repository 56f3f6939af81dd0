package rendering

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-pipeline/common"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/effect"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/gpu"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/rendering/node"
	"github.com/pkg/errors"
)

// MaxEffectPermutationSlots is the number of effect permutation slots a feature may create.
const MaxEffectPermutationSlots = 32

// EffectDescriptorSetReference identifies a descriptor set slot of a feature.
type EffectDescriptorSetReference struct {
	Index int
}

// EffectPermutationSlot identifies an effect permutation slot of a feature.
type EffectPermutationSlot struct {
	Index int
}

// EffectCompiledFunc is notified the first time a feature sees a compiled effect.
type EffectCompiledFunc func(rs *RenderSystem, compiled *effect.CompiledEffect, reflection *RenderEffectReflection)

// RootEffectRenderFeature is a root feature whose objects are drawn with compiled effects. It
// resolves effect permutations per (object, permutation slot), allocates the PerFrame, PerView
// and PerDraw resource groups, and builds pipeline states.
type RootEffectRenderFeature struct {
	*RootRenderFeatureBase

	// RenderEffectKey stores one RenderEffect per (static object, permutation slot).
	RenderEffectKey node.PropertyKey[*RenderEffect]

	// EffectObjectNodes is indexed by render node. Entries of skipped nodes are zero.
	EffectObjectNodes []EffectObjectNode

	// ResourceGroupPool holds, for every render node, one resource group per descriptor set slot.
	ResourceGroupPool []*gpu.ResourceGroup

	// FrameLayouts lists the PerFrame layouts used this frame.
	FrameLayouts []*FrameResourceGroupLayout

	// InstantiatedEffects caches the reflection of every effect seen by this feature.
	InstantiatedEffects map[*effect.CompiledEffect]*RenderEffectReflection

	// EffectCompiled is notified the first time an effect is reflected.
	EffectCompiled EffectCompiledFunc

	fallback       FallbackEffectSelector
	processor      PipelineStateProcessor
	postProcessors []PipelineStateProcessor
	drawer         Drawer
	subFeatures    []SubRenderFeature

	mu *sync.Mutex

	descriptorSetSlots []string
	permutationSlots   map[string]int
	stageSlots         []int
	slotStages         []*RenderStage
	slotMultiplier     int

	perFrameSlot EffectDescriptorSetReference
	perViewSlot  EffectDescriptorSetReference
	perDrawSlot  EffectDescriptorSetReference

	frameLayouts map[uint64]*FrameResourceGroupLayout
	viewLayouts  map[uint64]*ViewResourceGroupLayout

	frameCBufferOffsetSlots []string
	viewCBufferOffsetSlots  []string
	drawCBufferOffsetSlots  []string

	drawGroups   []gpu.ResourceGroup
	prepareNodes []node.RenderNodeReference
	groupScratch []*gpu.ResourceGroup
}

var _ RootRenderFeature = &RootEffectRenderFeature{}

// NewRootEffectRenderFeature creates an effect feature for an object type.
//
// Parameters:
//   - objectType: the handled object tag
//   - opts: functional options (fallbacks, processors, drawer, sub-features, selectors)
//
// Returns:
//   - *RootEffectRenderFeature: the feature, ready to add to a render system
func NewRootEffectRenderFeature(objectType ObjectType, opts ...RootEffectRenderFeatureBuilderOption) *RootEffectRenderFeature {
	f := &RootEffectRenderFeature{
		RootRenderFeatureBase: NewRootRenderFeatureBase(objectType),
		InstantiatedEffects:   make(map[*effect.CompiledEffect]*RenderEffectReflection),
		drawer:                SourceDrawer{},
		mu:                    &sync.Mutex{},
		permutationSlots:      make(map[string]int),
		frameLayouts:          make(map[uint64]*FrameResourceGroupLayout),
		viewLayouts:           make(map[uint64]*ViewResourceGroupLayout),
		slotMultiplier:        1,
	}
	f.RootRenderFeatureBase.owner = f
	f.ExtendPopulation(func(dataType node.DataType) (int, bool) {
		if dataType == node.DataTypeEffectObject {
			return len(f.EffectObjectNodes), true
		}
		return 0, false
	})
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Initialize creates the RenderEffect storage, the well-known descriptor set slots and one
// permutation slot per registered stage, then initializes sub-features.
func (f *RootEffectRenderFeature) Initialize(rs *RenderSystem) error {
	if err := f.RootRenderFeatureBase.Initialize(rs); err != nil {
		return err
	}
	if !f.RenderEffectKey.IsValid() {
		f.RenderEffectKey = node.CreateKey[*RenderEffect](f.RenderData, node.DataTypeStaticObject, nil, f.slotMultiplier)
	}

	f.perFrameSlot = f.GetOrCreateEffectDescriptorSetSlot(effect.PerFrame)
	f.perViewSlot = f.GetOrCreateEffectDescriptorSetSlot(effect.PerView)
	f.perDrawSlot = f.GetOrCreateEffectDescriptorSetSlot(effect.PerDraw)

	for _, stage := range rs.RenderStages {
		if err := f.OnRenderStageAdded(stage); err != nil {
			return err
		}
	}

	for _, sub := range f.subFeatures {
		sub.AttachRootRenderFeature(f)
		if err := sub.Initialize(); err != nil {
			return errors.Wrap(err, "initialize sub render feature")
		}
	}
	return nil
}

// OnRenderStageAdded binds the stage to the permutation slot named by its EffectSlotName.
func (f *RootEffectRenderFeature) OnRenderStageAdded(stage *RenderStage) error {
	slot, err := f.CreateEffectPermutationSlot(stage.EffectSlotName)
	if err != nil {
		return errors.Wrapf(err, "render stage %q", stage.Name)
	}
	f.stageSlots = common.GrowSlice(f.stageSlots, stage.Index+1)
	f.stageSlots[stage.Index] = slot.Index
	if slot.Index == len(f.slotStages) {
		f.slotStages = append(f.slotStages, stage)
	}

	if n := max(len(f.permutationSlots), 1); n != f.slotMultiplier {
		f.slotMultiplier = n
		if f.RenderEffectKey.IsValid() {
			f.RenderData.ChangeDataMultiplier(f.RenderEffectKey, n)
		}
	}
	return nil
}

// Extract runs the Extract hook of every sub-feature.
func (f *RootEffectRenderFeature) Extract() {
	for _, sub := range f.subFeatures {
		sub.Extract()
	}
}

// Reset clears frame-scoped nodes and the frame layout list.
func (f *RootEffectRenderFeature) Reset() {
	f.RootRenderFeatureBase.Reset()
	f.mu.Lock()
	clear(f.FrameLayouts)
	f.FrameLayouts = f.FrameLayouts[:0]
	f.mu.Unlock()
}

// SubRenderFeatures returns the attached sub-features.
func (f *RootEffectRenderFeature) SubRenderFeatures() []SubRenderFeature {
	return f.subFeatures
}

// EffectDescriptorSetSlotCount returns the number of descriptor set slots.
func (f *RootEffectRenderFeature) EffectDescriptorSetSlotCount() int {
	return len(f.descriptorSetSlots)
}

// EffectPermutationSlotCount returns the number of permutation slots, which is the number of
// effects cached per object.
func (f *RootEffectRenderFeature) EffectPermutationSlotCount() int {
	return len(f.permutationSlots)
}

// EffectPermutationSlotOf returns the permutation slot a stage uses.
//
// Parameters:
//   - stage: a registered stage
//
// Returns:
//   - EffectPermutationSlot: the slot, Index -1 when the stage is unknown to the feature
func (f *RootEffectRenderFeature) EffectPermutationSlotOf(stage *RenderStage) EffectPermutationSlot {
	if stage == nil || stage.Index < 0 || stage.Index >= len(f.stageSlots) {
		return EffectPermutationSlot{Index: -1}
	}
	return EffectPermutationSlot{Index: f.stageSlots[stage.Index]}
}

// GetOrCreateEffectDescriptorSetSlot returns the descriptor set slot with the given name,
// creating it when missing.
//
// Parameters:
//   - name: the resource group name
//
// Returns:
//   - EffectDescriptorSetReference: the slot
func (f *RootEffectRenderFeature) GetOrCreateEffectDescriptorSetSlot(name string) EffectDescriptorSetReference {
	for i, n := range f.descriptorSetSlots {
		if n == name {
			return EffectDescriptorSetReference{Index: i}
		}
	}
	f.descriptorSetSlots = append(f.descriptorSetSlots, name)
	return EffectDescriptorSetReference{Index: len(f.descriptorSetSlots) - 1}
}

// CreateEffectPermutationSlot returns the permutation slot with the given name, creating it
// when missing.
//
// Parameters:
//   - name: the slot name, usually a stage's EffectSlotName
//
// Returns:
//   - EffectPermutationSlot: the slot
//   - error: ErrTooManyEffectSlots when MaxEffectPermutationSlots slots already exist
func (f *RootEffectRenderFeature) CreateEffectPermutationSlot(name string) (EffectPermutationSlot, error) {
	if slot, ok := f.permutationSlots[name]; ok {
		return EffectPermutationSlot{Index: slot}, nil
	}
	if len(f.permutationSlots) >= MaxEffectPermutationSlots {
		return EffectPermutationSlot{Index: -1}, errors.Wrapf(ErrTooManyEffectSlots, "slot %q exceeds %d slots", name, MaxEffectPermutationSlots)
	}
	slot := len(f.permutationSlots)
	f.permutationSlots[name] = slot
	return EffectPermutationSlot{Index: slot}, nil
}

// CreateFrameCBufferOffsetSlot registers a PerFrame constant buffer member resolved by name.
//
// Parameters:
//   - variable: the member name
//
// Returns:
//   - ConstantBufferOffsetReference: the slot passed to GetConstantBufferOffset
func (f *RootEffectRenderFeature) CreateFrameCBufferOffsetSlot(variable string) ConstantBufferOffsetReference {
	f.frameCBufferOffsetSlots = append(f.frameCBufferOffsetSlots, variable)
	for _, l := range f.frameLayouts {
		l.ConstantBufferOffsets = append(l.ConstantBufferOffsets, l.ConstantBuffer.MemberOffset(variable))
	}
	return ConstantBufferOffsetReference{Index: len(f.frameCBufferOffsetSlots) - 1}
}

// CreateViewCBufferOffsetSlot registers a PerView constant buffer member resolved by name.
//
// Parameters:
//   - variable: the member name
//
// Returns:
//   - ConstantBufferOffsetReference: the slot passed to GetConstantBufferOffset
func (f *RootEffectRenderFeature) CreateViewCBufferOffsetSlot(variable string) ConstantBufferOffsetReference {
	f.viewCBufferOffsetSlots = append(f.viewCBufferOffsetSlots, variable)
	for _, l := range f.viewLayouts {
		l.ConstantBufferOffsets = append(l.ConstantBufferOffsets, l.ConstantBuffer.MemberOffset(variable))
	}
	return ConstantBufferOffsetReference{Index: len(f.viewCBufferOffsetSlots) - 1}
}

// CreateDrawCBufferOffsetSlot registers a PerDraw constant buffer member resolved by name.
//
// Parameters:
//   - variable: the member name
//
// Returns:
//   - ConstantBufferOffsetReference: the slot passed to GetConstantBufferOffset
func (f *RootEffectRenderFeature) CreateDrawCBufferOffsetSlot(variable string) ConstantBufferOffsetReference {
	f.drawCBufferOffsetSlots = append(f.drawCBufferOffsetSlots, variable)
	for _, refl := range f.InstantiatedEffects {
		if l := refl.PerDrawLayout; l != nil {
			l.ConstantBufferOffsets = append(l.ConstantBufferOffsets, l.ConstantBuffer.MemberOffset(variable))
		}
	}
	return ConstantBufferOffsetReference{Index: len(f.drawCBufferOffsetSlots) - 1}
}

// AddPostProcessPipelineState registers a processor that runs after the stage output formats
// were applied to a pipeline description.
//
// Parameters:
//   - p: the processor
func (f *RootEffectRenderFeature) AddPostProcessPipelineState(p PipelineStateProcessor) {
	f.postProcessors = append(f.postProcessors, p)
}

// RenderEffects returns the RenderEffect storage.
func (f *RootEffectRenderFeature) RenderEffects() *node.PropertyArray[*RenderEffect] {
	return node.GetData(f.RenderData, f.RenderEffectKey)
}

// RenderEffectOf returns the RenderEffect of an object in a stage, nil before the first frame
// that used it.
//
// Parameters:
//   - obj: a registered object of this feature
//   - stage: a registered stage
//
// Returns:
//   - *RenderEffect: the effect state or nil
func (f *RootEffectRenderFeature) RenderEffectOf(obj *RenderObject, stage *RenderStage) *RenderEffect {
	slot := f.EffectPermutationSlotOf(stage)
	if slot.Index < 0 || !obj.StaticObjectNode.IsValid() {
		return nil
	}
	return f.RenderEffects().Get(obj.StaticObjectNode.Effect(f.slotMultiplier, slot.Index).Index)
}

// ComputeResourceGroupOffset returns the first ResourceGroupPool index of a render node.
func (f *RootEffectRenderFeature) ComputeResourceGroupOffset(ref node.RenderNodeReference) int {
	return ref.Index * len(f.descriptorSetSlots)
}

// PrepareEffectPermutations marks the effects used this frame, collects permutation
// parameters from sub-features, then compiles or promotes effects whose parameters changed.
func (f *RootEffectRenderFeature) PrepareEffectPermutations(ctx *RenderDrawContext) {
	rs := f.RenderSystem
	frame := rs.FrameCounter
	effects := f.RenderEffects()

	for _, view := range rs.Views {
		if f.Index >= len(view.Features) {
			continue
		}
		for _, ref := range view.Features[f.Index].RenderNodes {
			rn := &f.RenderNodes[ref.Index]
			obj := rn.RenderObject
			stage := rn.RenderStage
			index := obj.StaticObjectNode.Effect(f.slotMultiplier, f.stageSlots[stage.Index]).Index
			effectName := obj.ActiveRenderStages[stage.Index].EffectName

			re := effects.Get(index)
			if re == nil || re.EffectName != effectName {
				re = NewRenderEffect(effectName)
				effects.Set(index, re)
			}
			if re.MarkAsUsed(frame) {
				re.EffectValidator.BeginEffectValidation()
			}
		}
	}

	for _, sub := range f.subFeatures {
		sub.PrepareEffectPermutations(ctx)
	}

	now := rs.Now()
	slots := len(f.permutationSlots)
	for _, obj := range f.RenderObjects {
		for slot := 0; slot < slots; slot++ {
			re := effects.Get(obj.StaticObjectNode.Effect(f.slotMultiplier, slot).Index)
			if re == nil || !re.IsUsedDuringThisFrame(frame) {
				continue
			}
			f.resolveRenderEffect(obj, slot, re, now)
		}
	}
}

// resolveRenderEffect brings one used RenderEffect up to date with its validator.
func (f *RootEffectRenderFeature) resolveRenderEffect(obj *RenderObject, slot int, re *RenderEffect, now time.Time) {
	validator := re.EffectValidator
	if re.State == RenderEffectStateError && !now.Before(re.RetryTime) {
		validator.Invalidate()
	}
	if re.State == RenderEffectStateNormal && re.Effect != nil && !f.RenderSystem.Compiler().IsValid(re.Effect) {
		validator.Invalidate()
	}

	unchanged := validator.EndEffectValidation()
	if validator.ShouldSkip {
		re.State = RenderEffectStateSkip
		re.PendingEffect = nil
		re.FallbackParameters = nil
		re.clearEffect()
		validator.Invalidate()
		return
	}

	var compiled *effect.CompiledEffect
	if unchanged {
		pending := re.PendingEffect
		if pending == nil || !pending.IsCompleted() {
			return
		}
		re.PendingEffect = nil
		re.FallbackParameters = nil
		if pending.IsFaulted() {
			compiled = f.fail(obj, slot, re, validator.Parameters().Clone(), pending.Err(), now)
		} else {
			re.State = RenderEffectStateNormal
			compiled = pending.Result()
		}
	} else {
		compiled = f.compile(obj, slot, re, now)
	}

	if compiled == nil {
		re.clearEffect()
		return
	}
	if compiled == re.Effect && re.Reflection != nil {
		return
	}

	reflection, err := f.reflect(compiled)
	if err != nil {
		common.Logger().Warn("effect reflection failed",
			slog.String("effect", re.EffectName),
			slog.Any("error", err))
		re.State = RenderEffectStateError
		re.RetryTime = now.Add(f.RenderSystem.EffectRetryInterval())
		re.clearEffect()
		return
	}
	re.Effect = compiled
	re.Reflection = reflection
	re.PipelineState = nil
}

// compile requests the permutation described by the validator. In async mode a pending compile
// binds the Compiling fallback when one exists; otherwise the frame waits for the result.
func (f *RootEffectRenderFeature) compile(obj *RenderObject, slot int, re *RenderEffect, now time.Time) *effect.CompiledEffect {
	rs := f.RenderSystem
	params := re.EffectValidator.Parameters().Clone()

	re.PendingEffect = nil
	re.FallbackParameters = nil
	re.State = RenderEffectStateNormal

	task := f.requestCompile(re.EffectName, params)
	if !task.IsCompleted() && rs.CompileMode() == CompileModeAsync {
		if fallback := f.fallbackEffect(obj, slot, re, RenderEffectStateCompiling); fallback != nil {
			re.PendingEffect = task
			re.FallbackParameters = params
			re.State = RenderEffectStateCompiling
			return fallback
		}
	}

	compiled, err := task.Wait()
	if err != nil {
		return f.fail(obj, slot, re, params, err, now)
	}
	return compiled
}

// requestCompile shields the frame from compiler panics.
func (f *RootEffectRenderFeature) requestCompile(name string, params *effect.ParameterSet) (task effect.Task) {
	defer func() {
		if r := recover(); r != nil {
			task = effect.NewCompletedTask(nil, errors.Wrapf(effect.ErrCompileFailed, "effect %q panicked: %v", name, r))
		}
	}()
	task = f.RenderSystem.Compiler().Compile(name, params)
	if task == nil {
		task = effect.NewCompletedTask(nil, errors.Wrapf(effect.ErrCompileFailed, "effect %q: compiler returned no task", name))
	}
	return task
}

// fail moves an effect to the Error state and returns the error fallback, which may be nil.
func (f *RootEffectRenderFeature) fail(obj *RenderObject, slot int, re *RenderEffect, params *effect.ParameterSet, err error, now time.Time) *effect.CompiledEffect {
	retry := f.RenderSystem.EffectRetryInterval()
	re.State = RenderEffectStateError
	re.RetryTime = now.Add(retry)
	re.FallbackParameters = params
	common.Logger().Warn("effect unavailable, using error fallback",
		slog.String("effect", re.EffectName),
		slog.String("parameters", params.String()),
		slog.Duration("retry", retry),
		slog.Any("error", err))
	return f.fallbackEffect(obj, slot, re, RenderEffectStateError)
}

func (f *RootEffectRenderFeature) fallbackEffect(obj *RenderObject, slot int, re *RenderEffect, state RenderEffectState) *effect.CompiledEffect {
	if f.fallback == nil {
		return nil
	}
	var stage *RenderStage
	if slot < len(f.slotStages) {
		stage = f.slotStages[slot]
	}
	return f.fallback.ComputeFallbackEffect(obj, stage, re.EffectName, state)
}

// reflect derives the layouts of a compiled effect once and caches them by effect identity.
func (f *RootEffectRenderFeature) reflect(compiled *effect.CompiledEffect) (*RenderEffectReflection, error) {
	if reflection, ok := f.InstantiatedEffects[compiled]; ok {
		return reflection, nil
	}

	cache := f.RenderSystem.LayoutCache()
	reflection := &RenderEffectReflection{Effect: compiled}
	r := compiled.Reflection

	if r != nil {
		for _, ds := range r.DescriptorSets {
			slot := f.GetOrCreateEffectDescriptorSetSlot(ds.Name)
			layout, err := cache.DescriptorSetLayout(ds.Layout)
			if err != nil {
				return nil, errors.Wrapf(err, "effect %q group %d", compiled.Name, ds.Group)
			}
			for len(reflection.RootSignature) <= ds.Group {
				reflection.RootSignature = append(reflection.RootSignature, nil)
				reflection.GroupSlots = append(reflection.GroupSlots, -1)
			}
			reflection.RootSignature[ds.Group] = layout
			reflection.GroupSlots[ds.Group] = slot.Index
		}

		if builder := r.Layout(effect.PerDraw); builder != nil {
			layout, err := gpu.NewResourceGroupLayout(cache, builder, r.ConstantBuffer(effect.PerDraw))
			if err != nil {
				return nil, errors.Wrapf(err, "effect %q", compiled.Name)
			}
			reflection.PerDrawLayout = &RenderSystemResourceGroupLayout{ResourceGroupLayout: layout}
			reflection.PerDrawLayout.resolveOffsets(f.drawCBufferOffsetSlots)
		}

		if builder := r.Layout(effect.PerFrame); builder != nil {
			layout, err := f.createFrameResourceGroupLayout(builder, r.ConstantBuffer(effect.PerFrame))
			if err != nil {
				return nil, errors.Wrapf(err, "effect %q", compiled.Name)
			}
			reflection.PerFrameLayout = layout
		}

		if builder := r.Layout(effect.PerView); builder != nil {
			layout, err := f.createViewResourceGroupLayout(builder, r.ConstantBuffer(effect.PerView))
			if err != nil {
				return nil, errors.Wrapf(err, "effect %q", compiled.Name)
			}
			reflection.PerViewLayout = layout
		}
	}

	f.InstantiatedEffects[compiled] = reflection
	if f.EffectCompiled != nil {
		f.EffectCompiled(f.RenderSystem, compiled, reflection)
	}
	return reflection, nil
}

func (f *RootEffectRenderFeature) createFrameResourceGroupLayout(builder *gpu.DescriptorSetLayoutBuilder, cbuffer *gpu.ConstantBufferDescription) (*FrameResourceGroupLayout, error) {
	hash := gpu.CombineHash(builder.Hash(), cbuffer.Hash())
	if l, ok := f.frameLayouts[hash]; ok {
		return l, nil
	}
	layout, err := gpu.NewResourceGroupLayout(f.RenderSystem.LayoutCache(), builder, cbuffer)
	if err != nil {
		return nil, err
	}
	l := &FrameResourceGroupLayout{RenderSystemResourceGroupLayout: RenderSystemResourceGroupLayout{ResourceGroupLayout: layout}}
	l.resolveOffsets(f.frameCBufferOffsetSlots)
	f.frameLayouts[hash] = l
	return l, nil
}

func (f *RootEffectRenderFeature) createViewResourceGroupLayout(builder *gpu.DescriptorSetLayoutBuilder, cbuffer *gpu.ConstantBufferDescription) (*ViewResourceGroupLayout, error) {
	hash := gpu.CombineHash(builder.Hash(), cbuffer.Hash())
	if l, ok := f.viewLayouts[hash]; ok {
		return l, nil
	}
	layout, err := gpu.NewResourceGroupLayout(f.RenderSystem.LayoutCache(), builder, cbuffer)
	if err != nil {
		return nil, err
	}
	l := &ViewResourceGroupLayout{
		RenderSystemResourceGroupLayout: RenderSystemResourceGroupLayout{ResourceGroupLayout: layout},
		Entries:                         make([]ResourceGroupEntry, len(f.RenderSystem.Views)),
	}
	l.resolveOffsets(f.viewCBufferOffsetSlots)
	f.viewLayouts[hash] = l
	return l, nil
}

// Prepare allocates the resource groups of every drawable render node and creates missing
// pipeline states. Shared PerFrame and PerView groups are allocated once per frame; PerDraw
// groups are allocated per node in parallel.
func (f *RootEffectRenderFeature) Prepare(ctx *RenderDrawContext) error {
	rs := f.RenderSystem
	frame := rs.FrameCounter
	allocator := ctx.Allocator
	slots := len(f.descriptorSetSlots)
	nodes := len(f.RenderNodes)

	f.ResourceGroupPool = common.GrowSlice(f.ResourceGroupPool, nodes*slots)
	clear(f.ResourceGroupPool)
	f.drawGroups = common.GrowSlice(f.drawGroups, nodes)
	f.EffectObjectNodes = common.GrowSlice(f.EffectObjectNodes[:0], nodes)
	effects := f.RenderEffects()

	f.prepareNodes = f.prepareNodes[:0]
	for _, view := range rs.Views {
		if f.Index >= len(view.Features) {
			continue
		}
		viewFeature := view.Features[f.Index]
		for _, ref := range viewFeature.RenderNodes {
			rn := &f.RenderNodes[ref.Index]
			obj := rn.RenderObject
			re := effects.Get(obj.StaticObjectNode.Effect(f.slotMultiplier, f.stageSlots[rn.RenderStage.Index]).Index)
			rn.RenderEffect = re
			if re == nil || re.Effect == nil || re.Reflection == nil || re.State == RenderEffectStateSkip {
				continue
			}
			reflection := re.Reflection

			if l := reflection.PerViewLayout; l != nil {
				l.Entries = common.GrowSlice(l.Entries, len(rs.Views))
				entry := &l.Entries[view.Index]
				if entry.MarkAsUsed(frame) {
					if err := allocator.PrepareResourceGroup(l.ResourceGroupLayout, gpu.BufferPoolAllocationUsedMultipleTime, &entry.Resources); err != nil {
						return errors.Wrapf(err, "view %q", view.Name)
					}
					viewFeature.Layouts = append(viewFeature.Layouts, l)
				}
			}

			if l := reflection.PerFrameLayout; l != nil && l.Entry.MarkAsUsed(frame) {
				if err := allocator.PrepareResourceGroup(l.ResourceGroupLayout, gpu.BufferPoolAllocationUsedMultipleTime, &l.Entry.Resources); err != nil {
					return err
				}
				f.registerFrameLayout(l)
			}

			if re.PipelineState == nil {
				if err := f.createPipelineState(ctx, ref, rn, re); err != nil {
					common.Logger().Warn("pipeline state creation failed",
						slog.String("effect", re.EffectName),
						slog.String("stage", rn.RenderStage.Name),
						slog.Any("error", err))
					re.State = RenderEffectStateError
					re.RetryTime = rs.Now().Add(rs.EffectRetryInterval())
					re.clearEffect()
					continue
				}
			}
			f.prepareNodes = append(f.prepareNodes, ref)
		}
	}

	var errMu sync.Mutex
	var firstErr error
	rs.Dispatcher().ForEach(len(f.prepareNodes), func(i int) {
		ref := f.prepareNodes[i]
		rn := &f.RenderNodes[ref.Index]
		re := rn.RenderEffect
		if re.Effect == nil || re.PipelineState == nil {
			return
		}
		reflection := re.Reflection
		offset := f.ComputeResourceGroupOffset(ref)

		if l := reflection.PerDrawLayout; l != nil {
			group := &f.drawGroups[ref.Index]
			if err := allocator.PrepareResourceGroup(l.ResourceGroupLayout, gpu.BufferPoolAllocationUsedOnce, group); err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
				return
			}
			rn.Resources = group
			f.ResourceGroupPool[offset+f.perDrawSlot.Index] = group
		}
		if l := reflection.PerFrameLayout; l != nil {
			f.ResourceGroupPool[offset+f.perFrameSlot.Index] = &l.Entry.Resources
		}
		if l := reflection.PerViewLayout; l != nil {
			f.ResourceGroupPool[offset+f.perViewSlot.Index] = &l.Entries[rn.RenderView.Index].Resources
		}

		rn.EffectObjectNode = node.EffectObjectNodeReference{Index: ref.Index}
		f.EffectObjectNodes[ref.Index] = EffectObjectNode{
			RenderEffect: re,
			ObjectNode:   f.ViewObjectNodes[rn.ViewObjectNode.Index].ObjectNode,
		}
	})
	if firstErr != nil {
		return errors.Wrap(firstErr, "prepare draw resource groups")
	}

	f.PrepareDataArrays()
	for _, sub := range f.subFeatures {
		if err := sub.Prepare(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (f *RootEffectRenderFeature) registerFrameLayout(l *FrameResourceGroupLayout) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FrameLayouts = append(f.FrameLayouts, l)
}

func (f *RootEffectRenderFeature) createPipelineState(ctx *RenderDrawContext, ref node.RenderNodeReference, rn *RenderNode, re *RenderEffect) error {
	desc := &gpu.PipelineStateDescription{}
	desc.SetDefaults()
	desc.Bytecode = re.Effect.Bytecode
	desc.RootSignature = re.Reflection.RootSignature
	if re.Effect.Reflection != nil {
		desc.VertexLayouts = re.Effect.Reflection.VertexLayouts
	}

	if f.processor != nil {
		f.processor.ProcessPipelineState(ctx, ref, rn, rn.RenderObject, desc)
	}
	desc.Output = rn.RenderStage.Output
	for _, p := range f.postProcessors {
		p.ProcessPipelineState(ctx, ref, rn, rn.RenderObject, desc)
	}

	state, err := f.RenderSystem.LayoutCache().PipelineState(desc)
	if err != nil {
		return err
	}
	re.PipelineState = state
	return nil
}

// Draw binds pipeline states and resource groups of the prepared nodes in [start, end) and
// hands each node to the drawer. Pipeline state changes are only recorded when they differ.
func (f *RootEffectRenderFeature) Draw(ctx *RenderDrawContext, view *RenderView, viewStage *RenderViewStage, start, end int) {
	cl := ctx.CommandList
	var current *gpu.PipelineState

	for i := start; i < end; i++ {
		ref := viewStage.SortedRenderNodes[i].RenderNode
		rn := &f.RenderNodes[ref.Index]
		re := rn.RenderEffect
		if !rn.EffectObjectNode.IsValid() || !re.IsDrawable() {
			continue
		}

		if re.PipelineState != current {
			cl.SetPipelineState(re.PipelineState)
			current = re.PipelineState
		}

		groupSlots := re.Reflection.GroupSlots
		offset := f.ComputeResourceGroupOffset(ref)
		f.groupScratch = common.GrowSlice(f.groupScratch[:0], len(groupSlots))
		for group, slot := range groupSlots {
			if slot >= 0 {
				f.groupScratch[group] = f.ResourceGroupPool[offset+slot]
			}
		}
		cl.SetResourceGroups(f.groupScratch)

		f.drawer.Draw(ctx, rn)
	}

	for _, sub := range f.subFeatures {
		sub.Draw(ctx, view, viewStage, start, end)
	}
}
