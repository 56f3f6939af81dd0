package rendering

import (
	"github.com/Carmen-Shannon/oxy-pipeline/common"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/gpu"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/rendering/node"
)

// ObjectNode is the frame-scoped entry of an object touched during Extract.
type ObjectNode struct {
	RenderObject *RenderObject
}

// ViewObjectNode is the frame-scoped entry of a (view, object) pair.
type ViewObjectNode struct {
	RenderObject *RenderObject
	RenderView   *RenderView
	ObjectNode   node.ObjectNodeReference
}

// RenderNode is the frame-scoped (view, object, stage) unit that is sorted and drawn.
type RenderNode struct {
	RenderObject   *RenderObject
	RenderView     *RenderView
	ViewObjectNode node.ViewObjectNodeReference
	RenderStage    *RenderStage

	// The fields below are filled by RootEffectRenderFeature.Prepare.
	RenderEffect     *RenderEffect
	EffectObjectNode node.EffectObjectNodeReference
	Resources        *gpu.ResourceGroup
}

// RootRenderFeature handles every RenderObject of one ObjectType. Implementations embed
// *RootRenderFeatureBase, which provides node bookkeeping and no-op phase hooks.
type RootRenderFeature interface {
	// Base returns the embedded bookkeeping.
	Base() *RootRenderFeatureBase

	// SupportedRenderObjectType returns the object tag this feature handles.
	SupportedRenderObjectType() ObjectType

	// Initialize is called once when the feature is added to a render system.
	//
	// Parameters:
	//   - rs: the owning render system
	//
	// Returns:
	//   - error: a structural error that aborts registration
	Initialize(rs *RenderSystem) error

	// Unload is called when the feature is removed from its render system.
	Unload()

	// OnRenderStageAdded is called for every stage added after Initialize.
	//
	// Parameters:
	//   - stage: the new stage, with its index assigned
	//
	// Returns:
	//   - error: a structural error that aborts the stage registration
	OnRenderStageAdded(stage *RenderStage) error

	// Collect runs before visibility collection each frame.
	Collect()

	// Reset clears frame-scoped node lists at the start of a frame.
	Reset()

	// Extract copies authoritative state of the objects visited this frame into property arrays.
	Extract()

	// PrepareEffectPermutations resolves effects for the render nodes of this frame.
	//
	// Parameters:
	//   - ctx: the frame context
	PrepareEffectPermutations(ctx *RenderDrawContext)

	// Prepare computes per-frame data and allocates GPU resources.
	//
	// Parameters:
	//   - ctx: the frame context
	//
	// Returns:
	//   - error: a structural error such as an exhausted pool
	Prepare(ctx *RenderDrawContext) error

	// Draw emits commands for the sorted nodes [start, end) of a view stage. Every node in the
	// range belongs to this feature.
	//
	// Parameters:
	//   - ctx: the frame context holding the command list
	//   - view: the view being drawn
	//   - viewStage: the view stage being drawn
	//   - start: the first sorted node index
	//   - end: one past the last sorted node index
	Draw(ctx *RenderDrawContext, view *RenderView, viewStage *RenderViewStage, start, end int)

	// OnAddRenderObject is called after an object got its static node.
	OnAddRenderObject(obj *RenderObject)

	// OnRemoveRenderObject is called before an object loses its static node.
	OnRemoveRenderObject(obj *RenderObject)
}

// RootRenderFeatureBase is the node bookkeeping shared by every root feature.
type RootRenderFeatureBase struct {
	// Index is the position of the feature in its render system, -1 when unregistered.
	Index int

	// SortKey is the feature identity placed in the top bits of sort keys.
	SortKey uint8

	RenderSystem *RenderSystem
	RenderData   *node.RenderDataHolder

	// RenderObjects holds every registered object, indexed by StaticObjectNode.
	RenderObjects []*RenderObject

	ObjectNodeReferences []node.ObjectNodeReference
	ObjectNodes          []ObjectNode
	ViewObjectNodes      []ViewObjectNode
	RenderNodes          []RenderNode

	RenderStageSelectors []RenderStageSelector

	objectType ObjectType
	owner      RootRenderFeature
	population []func(dataType node.DataType) (int, bool)
}

// NewRootRenderFeatureBase creates the bookkeeping for a feature handling one object type.
//
// Parameters:
//   - objectType: the handled object tag
//
// Returns:
//   - *RootRenderFeatureBase: the base, to embed in a feature
func NewRootRenderFeatureBase(objectType ObjectType) *RootRenderFeatureBase {
	b := &RootRenderFeatureBase{
		Index:      -1,
		objectType: objectType,
	}
	b.RenderData = node.NewRenderDataHolder(b.computeDataArrayExpectedSize)
	return b
}

func (b *RootRenderFeatureBase) Base() *RootRenderFeatureBase { return b }

func (b *RootRenderFeatureBase) SupportedRenderObjectType() ObjectType { return b.objectType }

func (b *RootRenderFeatureBase) Initialize(rs *RenderSystem) error {
	b.RenderSystem = rs
	return nil
}

func (b *RootRenderFeatureBase) Unload() {}

func (b *RootRenderFeatureBase) OnRenderStageAdded(*RenderStage) error { return nil }

func (b *RootRenderFeatureBase) Collect() {}

func (b *RootRenderFeatureBase) Reset() {
	for _, on := range b.ObjectNodes {
		if on.RenderObject != nil {
			on.RenderObject.ObjectNode = node.InvalidObjectNode
		}
	}
	b.ObjectNodeReferences = b.ObjectNodeReferences[:0]
	clear(b.ObjectNodes)
	b.ObjectNodes = b.ObjectNodes[:0]
	clear(b.ViewObjectNodes)
	b.ViewObjectNodes = b.ViewObjectNodes[:0]
	clear(b.RenderNodes)
	b.RenderNodes = b.RenderNodes[:0]
	b.RenderData.ClearData(node.DataTypeObject)
	b.RenderData.ClearData(node.DataTypeViewObject)
	b.RenderData.ClearData(node.DataTypeRender)
}

func (b *RootRenderFeatureBase) Extract() {}

func (b *RootRenderFeatureBase) PrepareEffectPermutations(*RenderDrawContext) {}

func (b *RootRenderFeatureBase) Prepare(*RenderDrawContext) error { return nil }

func (b *RootRenderFeatureBase) Draw(*RenderDrawContext, *RenderView, *RenderViewStage, int, int) {}

func (b *RootRenderFeatureBase) OnAddRenderObject(*RenderObject) {}

func (b *RootRenderFeatureBase) OnRemoveRenderObject(*RenderObject) {}

// ExtendPopulation registers a callback reporting node counts for data types the base does not
// track itself. The first callback answering ok wins.
//
// Parameters:
//   - fn: returns the count and true for the data types it owns
func (b *RootRenderFeatureBase) ExtendPopulation(fn func(dataType node.DataType) (int, bool)) {
	b.population = append(b.population, fn)
}

func (b *RootRenderFeatureBase) computeDataArrayExpectedSize(dataType node.DataType) int {
	for _, fn := range b.population {
		if n, ok := fn(dataType); ok {
			return n
		}
	}
	switch dataType {
	case node.DataTypeObject:
		return len(b.ObjectNodes)
	case node.DataTypeViewObject:
		return len(b.ViewObjectNodes)
	case node.DataTypeRender:
		return len(b.RenderNodes)
	case node.DataTypeStaticObject:
		return len(b.RenderObjects)
	case node.DataTypeView:
		if b.RenderSystem != nil {
			return len(b.RenderSystem.Views)
		}
	}
	return 0
}

// PrepareDataArrays grows every property array to the current node populations.
func (b *RootRenderFeatureBase) PrepareDataArrays() {
	b.RenderData.PrepareDataArrays()
}

// AddRenderStageSelector appends a selector and schedules stage re-evaluation of every object.
//
// Parameters:
//   - selector: the selector to add
func (b *RootRenderFeatureBase) AddRenderStageSelector(selector RenderStageSelector) {
	b.RenderStageSelectors = append(b.RenderStageSelectors, selector)
	if b.RenderSystem != nil {
		b.RenderSystem.NotifyRenderStageSelectorsChanged()
	}
}

// GetOrCreateObjectNode returns the frame object node of obj, creating it on first touch.
//
// Parameters:
//   - obj: a registered object of this feature
//
// Returns:
//   - node.ObjectNodeReference: the frame-scoped reference
func (b *RootRenderFeatureBase) GetOrCreateObjectNode(obj *RenderObject) node.ObjectNodeReference {
	if !obj.ObjectNode.IsValid() {
		obj.ObjectNode = node.ObjectNodeReference{Index: len(b.ObjectNodes)}
		b.ObjectNodes = append(b.ObjectNodes, ObjectNode{RenderObject: obj})
		b.ObjectNodeReferences = append(b.ObjectNodeReferences, obj.ObjectNode)
	}
	return obj.ObjectNode
}

// CreateViewObjectNode creates the node of a (view, object) pair. The object node must exist.
//
// Parameters:
//   - view: the view
//   - obj: the object
//
// Returns:
//   - node.ViewObjectNodeReference: the frame-scoped reference
func (b *RootRenderFeatureBase) CreateViewObjectNode(view *RenderView, obj *RenderObject) node.ViewObjectNodeReference {
	ref := node.ViewObjectNodeReference{Index: len(b.ViewObjectNodes)}
	b.ViewObjectNodes = append(b.ViewObjectNodes, ViewObjectNode{
		RenderObject: obj,
		RenderView:   view,
		ObjectNode:   obj.ObjectNode,
	})
	return ref
}

// CreateRenderNode creates the node of a (view, object, stage) triple.
//
// Parameters:
//   - obj: the object
//   - view: the view
//   - viewObjectNode: the (view, object) node
//   - stage: the stage
//
// Returns:
//   - node.RenderNodeReference: the frame-scoped reference
func (b *RootRenderFeatureBase) CreateRenderNode(obj *RenderObject, view *RenderView, viewObjectNode node.ViewObjectNodeReference, stage *RenderStage) node.RenderNodeReference {
	ref := node.RenderNodeReference{Index: len(b.RenderNodes)}
	b.RenderNodes = append(b.RenderNodes, RenderNode{
		RenderObject:     obj,
		RenderView:       view,
		ViewObjectNode:   viewObjectNode,
		RenderStage:      stage,
		EffectObjectNode: node.InvalidEffectObjectNode,
	})
	return ref
}

// RenderNode returns the render node behind a reference.
func (b *RootRenderFeatureBase) RenderNode(ref node.RenderNodeReference) *RenderNode {
	return &b.RenderNodes[ref.Index]
}

// ViewObjectNode returns the view object node behind a reference.
func (b *RootRenderFeatureBase) ViewObjectNode(ref node.ViewObjectNodeReference) *ViewObjectNode {
	return &b.ViewObjectNodes[ref.Index]
}

// ObjectNode returns the object node behind a reference.
func (b *RootRenderFeatureBase) ObjectNode(ref node.ObjectNodeReference) *ObjectNode {
	return &b.ObjectNodes[ref.Index]
}

// AddRenderObject registers obj with this feature and gives it a static node.
//
// Parameters:
//   - obj: an unregistered object of the feature's type
func (b *RootRenderFeatureBase) AddRenderObject(obj *RenderObject) {
	obj.RenderFeature = b.self()
	obj.StaticObjectNode = node.StaticObjectNodeReference{Index: len(b.RenderObjects)}
	b.RenderObjects = append(b.RenderObjects, obj)
	b.RenderData.PrepareDataArrays()
	b.self().OnAddRenderObject(obj)
}

// RemoveRenderObject unregisters obj. The last object moves into the freed static slot.
//
// Parameters:
//   - obj: a registered object of this feature
//
// Returns:
//   - bool: false when obj was not registered here
func (b *RootRenderFeatureBase) RemoveRenderObject(obj *RenderObject) bool {
	index := obj.StaticObjectNode.Index
	if !obj.StaticObjectNode.IsValid() || index >= len(b.RenderObjects) || b.RenderObjects[index] != obj {
		return false
	}
	b.self().OnRemoveRenderObject(obj)

	last := len(b.RenderObjects) - 1
	b.RenderData.SwapRemoveItem(node.DataTypeStaticObject, index, last)
	b.RenderObjects = common.SwapRemove(b.RenderObjects, index)
	if index < len(b.RenderObjects) {
		b.RenderObjects[index].StaticObjectNode = node.StaticObjectNodeReference{Index: index}
	}

	obj.StaticObjectNode = node.InvalidStaticObjectNode
	obj.RenderFeature = nil
	return true
}

func (b *RootRenderFeatureBase) self() RootRenderFeature {
	if b.owner != nil {
		return b.owner
	}
	return b
}
