package rendering

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-pipeline/common"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/effect"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/gpu"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/rendering/node"
	"github.com/pkg/errors"
)

// CompileMode selects how a render system waits for effect compilation.
type CompileMode int

const (
	// CompileModeAsync binds the Compiling fallback while a permutation compiles and never
	// blocks the frame when a fallback exists.
	CompileModeAsync CompileMode = iota
	// CompileModeSync waits for every compile. No Compiling fallback is ever bound.
	CompileModeSync
)

// String returns the name of the mode.
func (m CompileMode) String() string {
	switch m {
	case CompileModeAsync:
		return "async"
	case CompileModeSync:
		return "sync"
	default:
		return "unknown"
	}
}

// DefaultEffectRetryInterval is how long an effect stays in the Error state before it is
// compiled again.
const DefaultEffectRetryInterval = time.Second

// RenderDrawContext is the per-frame context handed to Prepare and Draw.
type RenderDrawContext struct {
	RenderSystem *RenderSystem
	CommandList  gpu.CommandList
	Allocator    *gpu.ResourceGroupAllocator

	// Time is the total elapsed time, DeltaTime the time since the previous frame.
	Time      time.Duration
	DeltaTime time.Duration
}

// DefaultPipelinePluginActivator lazily creates the feature of an object type the first time an
// object of that type is added without a registered feature.
type DefaultPipelinePluginActivator interface {
	// InstantiateDefaultPipelinePlugin activates the default plugin registered for a type.
	//
	// Parameters:
	//   - objectType: the object type without a feature
	//
	// Returns:
	//   - bool: true when a plugin was activated
	InstantiateDefaultPipelinePlugin(objectType ObjectType) bool
}

type stageListener struct {
	id int
	fn func(stage *RenderStage)
}

type selectorListener struct {
	id int
	fn func()
}

// RenderSystem orchestrates the frame phases over every registered root feature and view, and
// owns the shared GPU pools and the frame counter.
type RenderSystem struct {
	// FrameCounter starts at 1 and is incremented by every Reset.
	FrameCounter uint64

	RenderFeatures []RootRenderFeature
	RenderStages   []*RenderStage
	Views          []*RenderView

	mu *sync.Mutex

	device         gpu.Device
	compiler       effect.Compiler
	layoutCache    *gpu.LayoutCache
	descriptorPool *gpu.DescriptorPool
	bufferPool     *gpu.BufferPool
	allocator      *gpu.ResourceGroupAllocator
	dispatcher     *Dispatcher

	compileMode   CompileMode
	retryInterval time.Duration
	clock         func() time.Time
	activator     DefaultPipelinePluginActivator

	featuresByType map[ObjectType]RootRenderFeature
	activatedTypes map[ObjectType]bool
	pendingObjects []*RenderObject

	stageListeners    []stageListener
	selectorListeners []selectorListener
	nextListenerID    int

	descriptorPoolCapacity int
	bufferPoolOptions      []gpu.BufferPoolBuilderOption
	workers                int
	batchSize              int
}

// NewRenderSystem creates a render system over a device and an effect compiler.
//
// Parameters:
//   - device: the graphics device
//   - compiler: the effect compiler
//   - opts: functional options (pools, compile mode, retry interval, workers, clock)
//
// Returns:
//   - *RenderSystem: the render system
//   - error: an error if the frame constant buffer could not be created
func NewRenderSystem(device gpu.Device, compiler effect.Compiler, opts ...RenderSystemBuilderOption) (*RenderSystem, error) {
	if device == nil {
		panic("rendering: render system requires a device")
	}
	if compiler == nil {
		panic("rendering: render system requires an effect compiler")
	}

	rs := &RenderSystem{
		FrameCounter:   1,
		mu:             &sync.Mutex{},
		device:         device,
		compiler:       compiler,
		compileMode:    CompileModeAsync,
		retryInterval:  DefaultEffectRetryInterval,
		clock:          time.Now,
		featuresByType: make(map[ObjectType]RootRenderFeature),
		activatedTypes: make(map[ObjectType]bool),
		batchSize:      DefaultDispatcherBatchSize,
	}
	for _, opt := range opts {
		opt(rs)
	}

	bufferPool, err := gpu.NewBufferPool(device, rs.bufferPoolOptions...)
	if err != nil {
		return nil, errors.Wrap(err, "create frame buffer pool")
	}
	rs.bufferPool = bufferPool
	rs.descriptorPool = gpu.NewDescriptorPool(rs.descriptorPoolCapacity)
	rs.allocator = gpu.NewResourceGroupAllocator(rs.descriptorPool, rs.bufferPool)
	rs.layoutCache = gpu.NewLayoutCache(device)
	rs.dispatcher = NewDispatcher(rs.workers, rs.batchSize)
	return rs, nil
}

// Device returns the graphics device.
func (rs *RenderSystem) Device() gpu.Device {
	return rs.device
}

// Compiler returns the effect compiler.
func (rs *RenderSystem) Compiler() effect.Compiler {
	return rs.compiler
}

// LayoutCache returns the cache deduplicating descriptor set layouts and pipeline states.
func (rs *RenderSystem) LayoutCache() *gpu.LayoutCache {
	return rs.layoutCache
}

// DescriptorPool returns the frame-scoped descriptor pool.
func (rs *RenderSystem) DescriptorPool() *gpu.DescriptorPool {
	return rs.descriptorPool
}

// BufferPool returns the frame-scoped constant buffer pool.
func (rs *RenderSystem) BufferPool() *gpu.BufferPool {
	return rs.bufferPool
}

// Allocator returns the resource group allocator over both pools.
func (rs *RenderSystem) Allocator() *gpu.ResourceGroupAllocator {
	return rs.allocator
}

// Dispatcher returns the data-parallel loop runner of the phases.
func (rs *RenderSystem) Dispatcher() *Dispatcher {
	return rs.dispatcher
}

// Close stops the dispatcher workers. Phases run after Close stay correct but run inline.
func (rs *RenderSystem) Close() {
	rs.dispatcher.Close()
}

func (rs *RenderSystem) CompileMode() CompileMode {
	return rs.compileMode
}

func (rs *RenderSystem) EffectRetryInterval() time.Duration {
	return rs.retryInterval
}

// Now returns the time of the injected clock.
func (rs *RenderSystem) Now() time.Time {
	return rs.clock()
}

// PendingRenderObjects returns the objects waiting for a feature of their type.
func (rs *RenderSystem) PendingRenderObjects() []*RenderObject {
	return rs.pendingObjects
}

// RenderFeature returns the feature registered for an object type, nil when none is.
func (rs *RenderSystem) RenderFeature(t ObjectType) RootRenderFeature {
	return rs.featuresByType[t]
}

// SetDefaultPipelinePluginActivator installs the hook consulted for object types without a feature.
//
// Parameters:
//   - activator: the hook, nil to disable lazy activation
func (rs *RenderSystem) SetDefaultPipelinePluginActivator(activator DefaultPipelinePluginActivator) {
	rs.activator = activator
}

// NewDrawContext creates the context of one frame.
//
// Parameters:
//   - cl: the command list Draw records into
//
// Returns:
//   - *RenderDrawContext: the context
func (rs *RenderSystem) NewDrawContext(cl gpu.CommandList) *RenderDrawContext {
	return &RenderDrawContext{
		RenderSystem: rs,
		CommandList:  cl,
		Allocator:    rs.allocator,
	}
}

// AddRenderFeature registers a root feature, initializes it, and hands it every pending object
// of its type.
//
// Parameters:
//   - feature: the feature to register
//
// Returns:
//   - error: ErrFeatureAlreadyRegistered, or the feature's initialization error
func (rs *RenderSystem) AddRenderFeature(feature RootRenderFeature) error {
	objectType := feature.SupportedRenderObjectType()
	if _, ok := rs.featuresByType[objectType]; ok {
		return errors.Wrapf(ErrFeatureAlreadyRegistered, "object type %q", objectType)
	}
	if len(rs.RenderFeatures) > MaxRenderFeatures-1 {
		return errors.Wrapf(ErrTooManyRenderFeatures, "object type %q, limit %d", objectType, MaxRenderFeatures)
	}

	base := feature.Base()
	base.Index = len(rs.RenderFeatures)
	base.SortKey = uint8(base.Index)
	base.owner = feature
	base.RenderSystem = rs
	if err := feature.Initialize(rs); err != nil {
		base.Index = -1
		base.SortKey = 0
		base.owner = nil
		base.RenderSystem = nil
		return errors.Wrapf(err, "initialize feature for %q", objectType)
	}

	rs.RenderFeatures = append(rs.RenderFeatures, feature)
	rs.featuresByType[objectType] = feature
	for _, view := range rs.Views {
		rs.ensureViewFeatures(view)
	}

	pending := rs.pendingObjects[:0]
	for _, obj := range rs.pendingObjects {
		if obj.Type == objectType {
			base.AddRenderObject(obj)
			continue
		}
		pending = append(pending, obj)
	}
	clear(rs.pendingObjects[len(pending):])
	rs.pendingObjects = pending

	common.Logger().Debug("render feature added",
		slog.String("type", string(objectType)),
		slog.Int("index", base.Index))
	rs.NotifyRenderStageSelectorsChanged()
	return nil
}

// RemoveRenderFeature unregisters a feature. Its objects become pending again.
//
// Parameters:
//   - feature: a registered feature
//
// Returns:
//   - error: ErrFeatureNotRegistered when the feature is unknown
func (rs *RenderSystem) RemoveRenderFeature(feature RootRenderFeature) error {
	base := feature.Base()
	if base.Index < 0 || base.Index >= len(rs.RenderFeatures) || rs.RenderFeatures[base.Index] != feature {
		return errors.Wrapf(ErrFeatureNotRegistered, "object type %q", feature.SupportedRenderObjectType())
	}

	for len(base.RenderObjects) > 0 {
		obj := base.RenderObjects[len(base.RenderObjects)-1]
		base.RemoveRenderObject(obj)
		rs.pendingObjects = append(rs.pendingObjects, obj)
	}

	rs.RenderFeatures = slices.Delete(rs.RenderFeatures, base.Index, base.Index+1)
	for i, f := range rs.RenderFeatures {
		f.Base().Index = i
		f.Base().SortKey = uint8(i)
	}
	delete(rs.featuresByType, feature.SupportedRenderObjectType())
	for _, view := range rs.Views {
		rs.ensureViewFeatures(view)
	}

	feature.Unload()
	base.Index = -1
	rs.NotifyRenderStageSelectorsChanged()
	return nil
}

// AddRenderStage registers a stage, assigns its index and creates its effect slot in every
// feature.
//
// Parameters:
//   - stage: an unregistered stage
//
// Returns:
//   - error: a feature error such as ErrTooManyEffectSlots
func (rs *RenderSystem) AddRenderStage(stage *RenderStage) error {
	if slices.Contains(rs.RenderStages, stage) {
		return nil
	}
	stage.Index = len(rs.RenderStages)
	rs.RenderStages = append(rs.RenderStages, stage)

	for _, feature := range rs.RenderFeatures {
		if err := feature.OnRenderStageAdded(stage); err != nil {
			return errors.Wrapf(err, "add render stage %q", stage.Name)
		}
	}
	for _, l := range rs.stageListeners {
		l.fn(stage)
	}
	return nil
}

// AddView registers a view and assigns its index.
//
// Parameters:
//   - view: an unregistered view
func (rs *RenderSystem) AddView(view *RenderView) {
	if slices.Contains(rs.Views, view) {
		return
	}
	view.Index = len(rs.Views)
	rs.Views = append(rs.Views, view)
	rs.ensureViewFeatures(view)
}

// RemoveView unregisters a view. Later views are reindexed.
//
// Parameters:
//   - view: a registered view
//
// Returns:
//   - bool: false when the view was not registered
func (rs *RenderSystem) RemoveView(view *RenderView) bool {
	index := slices.Index(rs.Views, view)
	if index < 0 {
		return false
	}
	rs.Views = slices.Delete(rs.Views, index, index+1)
	for i, v := range rs.Views {
		v.Index = i
	}
	view.Index = -1
	return true
}

func (rs *RenderSystem) ensureViewFeatures(view *RenderView) {
	view.Features = common.GrowSlice(view.Features, len(rs.RenderFeatures))
	clear(view.Features[len(rs.RenderFeatures):])
	view.Features = view.Features[:len(rs.RenderFeatures)]
	for i, feature := range rs.RenderFeatures {
		if view.Features[i] == nil {
			view.Features[i] = &RenderViewFeature{}
		}
		if view.Features[i].RootFeature != feature {
			view.Features[i].reset()
			view.Features[i].RootFeature = feature
		}
	}
}

// AddRenderObject hands an object to the feature registered for its type. When none is
// registered the default plugin of the type is activated once; if there still is no feature
// the object stays pending until one is added.
//
// Parameters:
//   - obj: an unregistered object
func (rs *RenderSystem) AddRenderObject(obj *RenderObject) {
	feature, ok := rs.featuresByType[obj.Type]
	if !ok && rs.activator != nil && !rs.activatedTypes[obj.Type] {
		rs.activatedTypes[obj.Type] = true
		if rs.activator.InstantiateDefaultPipelinePlugin(obj.Type) {
			feature, ok = rs.featuresByType[obj.Type]
		}
	}
	if !ok {
		rs.pendingObjects = append(rs.pendingObjects, obj)
		return
	}
	feature.Base().AddRenderObject(obj)
}

// RemoveRenderObject unregisters an object from its feature or from the pending list.
//
// Parameters:
//   - obj: the object
func (rs *RenderSystem) RemoveRenderObject(obj *RenderObject) {
	if feature := obj.RenderFeature; feature != nil {
		feature.Base().RemoveRenderObject(obj)
		return
	}
	if i := slices.Index(rs.pendingObjects, obj); i >= 0 {
		rs.pendingObjects = common.SwapRemove(rs.pendingObjects, i)
	}
}

// AddRenderStagesChangedListener registers a callback run after every stage registration.
//
// Parameters:
//   - fn: the callback
//
// Returns:
//   - func(): removes the listener
func (rs *RenderSystem) AddRenderStagesChangedListener(fn func(stage *RenderStage)) func() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.nextListenerID++
	id := rs.nextListenerID
	rs.stageListeners = append(rs.stageListeners, stageListener{id: id, fn: fn})
	return func() {
		rs.mu.Lock()
		defer rs.mu.Unlock()
		rs.stageListeners = slices.DeleteFunc(rs.stageListeners, func(l stageListener) bool { return l.id == id })
	}
}

// AddRenderStageSelectorsChangedListener registers a callback run whenever features or their
// stage selectors change.
//
// Parameters:
//   - fn: the callback
//
// Returns:
//   - func(): removes the listener
func (rs *RenderSystem) AddRenderStageSelectorsChangedListener(fn func()) func() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.nextListenerID++
	id := rs.nextListenerID
	rs.selectorListeners = append(rs.selectorListeners, selectorListener{id: id, fn: fn})
	return func() {
		rs.mu.Lock()
		defer rs.mu.Unlock()
		rs.selectorListeners = slices.DeleteFunc(rs.selectorListeners, func(l selectorListener) bool { return l.id == id })
	}
}

// NotifyRenderStageSelectorsChanged schedules the re-evaluation of every object's active stages.
func (rs *RenderSystem) NotifyRenderStageSelectorsChanged() {
	rs.mu.Lock()
	listeners := slices.Clone(rs.selectorListeners)
	rs.mu.Unlock()
	for _, l := range listeners {
		l.fn()
	}
}

// Reset starts a new frame: the frame counter advances, the frame pools are recycled and the
// frame-scoped state of every feature and view is cleared.
func (rs *RenderSystem) Reset() {
	rs.FrameCounter++
	rs.allocator.Reset()
	for _, feature := range rs.RenderFeatures {
		feature.Reset()
	}
	for _, view := range rs.Views {
		view.reset()
	}
}

// Collect runs the Collect hook of every feature. Visibility is collected separately by the
// owner of the VisibilityGroup.
//
// Parameters:
//   - ctx: the frame context
func (rs *RenderSystem) Collect(*RenderDrawContext) {
	for _, feature := range rs.RenderFeatures {
		feature.Collect()
	}
}

// Extract creates the object, view object and render nodes of every visible object, grouped by
// feature, then runs every feature's Extract.
//
// Parameters:
//   - ctx: the frame context
func (rs *RenderSystem) Extract(*RenderDrawContext) {
	for _, view := range rs.Views {
		rs.ensureViewFeatures(view)
		slices.SortStableFunc(view.RenderObjects, func(a, b *RenderObject) int {
			return a.RenderFeature.Base().Index - b.RenderFeature.Base().Index
		})

		for _, obj := range view.RenderObjects {
			feature := obj.RenderFeature
			base := feature.Base()
			viewFeature := view.Features[base.Index]
			base.GetOrCreateObjectNode(obj)

			viewObjectNode := node.InvalidViewObjectNode
			for _, viewStage := range view.RenderStages {
				stage := viewStage.RenderStage
				if !obj.IsActiveIn(stage.Index) {
					continue
				}
				if stage.Filter != nil && !stage.Filter.IsVisible(obj, view, viewStage) {
					continue
				}
				if !viewObjectNode.IsValid() {
					viewObjectNode = base.CreateViewObjectNode(view, obj)
					viewFeature.ViewObjectNodes = append(viewFeature.ViewObjectNodes, viewObjectNode)
				}
				renderNode := base.CreateRenderNode(obj, view, viewObjectNode, stage)
				viewFeature.RenderNodes = append(viewFeature.RenderNodes, renderNode)
				viewStage.RenderNodes = append(viewStage.RenderNodes, RenderNodeFeatureReference{
					RootRenderFeature: feature,
					RenderNode:        renderNode,
					RenderObject:      obj,
				})
			}
		}
	}

	for _, feature := range rs.RenderFeatures {
		feature.Base().PrepareDataArrays()
	}
	for _, feature := range rs.RenderFeatures {
		feature.Extract()
	}
	for _, feature := range rs.RenderFeatures {
		feature.Base().PrepareDataArrays()
	}
}

// Prepare resolves effects and allocates resources in every feature, sorts the render nodes of
// every view stage, then uploads the frame constant buffer.
//
// Parameters:
//   - ctx: the frame context
//
// Returns:
//   - error: a structural error such as an exhausted pool
func (rs *RenderSystem) Prepare(ctx *RenderDrawContext) error {
	for _, feature := range rs.RenderFeatures {
		feature.PrepareEffectPermutations(ctx)
	}
	for _, feature := range rs.RenderFeatures {
		if err := feature.Prepare(ctx); err != nil {
			return errors.Wrapf(err, "prepare feature for %q", feature.SupportedRenderObjectType())
		}
	}

	var viewStages []*RenderViewStage
	var stageViews []*RenderView
	for _, view := range rs.Views {
		for _, viewStage := range view.RenderStages {
			viewStages = append(viewStages, viewStage)
			stageViews = append(stageViews, view)
		}
	}
	rs.dispatcher.ForEach(len(viewStages), func(i int) {
		sortRenderNodes(stageViews[i], viewStages[i])
	})

	if err := rs.bufferPool.Flush(); err != nil {
		return errors.Wrap(err, "flush frame buffer pool")
	}
	return nil
}

func sortRenderNodes(view *RenderView, viewStage *RenderViewStage) {
	nodes := viewStage.RenderNodes
	viewStage.SortedRenderNodes = common.GrowSlice(viewStage.SortedRenderNodes[:0], len(nodes))

	mode := viewStage.RenderStage.SortMode
	if mode == nil {
		copy(viewStage.SortedRenderNodes, nodes)
		return
	}

	keys := common.GrowSlice(viewStage.sortKeys[:0], len(nodes))
	mode.GenerateSortKey(view, viewStage, keys)
	slices.SortFunc(keys, SortKey.Compare)
	for i, key := range keys {
		viewStage.SortedRenderNodes[i] = nodes[key.Index]
	}
	viewStage.sortKeys = keys
}

// Draw records the sorted render nodes of a (view, stage) pair. Contiguous nodes of one feature
// are handed to that feature in a single Draw call.
//
// Parameters:
//   - ctx: the frame context holding the command list
//   - view: a registered view
//   - stage: a stage the view renders
//
// Returns:
//   - error: ErrViewStageNotFound when the view does not render the stage
func (rs *RenderSystem) Draw(ctx *RenderDrawContext, view *RenderView, stage *RenderStage) error {
	viewStage := view.RenderViewStage(stage)
	if viewStage == nil {
		return errors.Wrapf(ErrViewStageNotFound, "view %q stage %q", view.Name, stage.Name)
	}

	nodes := viewStage.SortedRenderNodes
	for start := 0; start < len(nodes); {
		feature := nodes[start].RootRenderFeature
		end := start + 1
		for end < len(nodes) && nodes[end].RootRenderFeature == feature {
			end++
		}
		feature.Draw(ctx, view, viewStage, start, end)
		start = end
	}
	return nil
}
