package rendering

import (
	"github.com/Carmen-Shannon/oxy-pipeline/common"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/rendering/node"
)

// VisibilityFilter is an ad hoc predicate over (view, object) applied during Collect.
// Returning false excludes the object from the view.
type VisibilityFilter func(view *RenderView, obj *RenderObject) bool

// VisibilityGroup owns the registered object population of a scene and produces the visible
// object list of every view.
type VisibilityGroup struct {
	RenderSystem *RenderSystem

	// RenderObjects holds every object added to the group, indexed by VisibilityObjectNode.
	RenderObjects []*RenderObject

	RenderData *node.RenderDataHolder

	// RenderStageMaskKey stores, per object, one bit per render stage the object is active in.
	RenderStageMaskKey node.PropertyKey[uint32]

	// NeedActiveRenderStageReevaluation makes the next Collect rerun the stage selectors of
	// every object.
	NeedActiveRenderStageReevaluation bool

	stageMaskMultiplier int
	viewRenderStageMask []uint32
	filters             []VisibilityFilter
	unsubscribe         []func()
}

// NewVisibilityGroup creates a group bound to a render system. The group listens to stage and
// selector changes until Close is called.
//
// Parameters:
//   - rs: the render system the group registers its objects with
//
// Returns:
//   - *VisibilityGroup: the group
func NewVisibilityGroup(rs *RenderSystem) *VisibilityGroup {
	if rs == nil {
		panic("rendering: visibility group requires a render system")
	}
	g := &VisibilityGroup{
		RenderSystem:        rs,
		stageMaskMultiplier: stageMaskWords(len(rs.RenderStages)),
	}
	g.RenderData = node.NewRenderDataHolder(func(dataType node.DataType) int {
		if dataType == node.DataTypeStaticObject {
			return len(g.RenderObjects)
		}
		return 0
	})
	g.RenderStageMaskKey = node.CreateKey[uint32](g.RenderData, node.DataTypeStaticObject, nil, g.stageMaskMultiplier)

	g.unsubscribe = append(g.unsubscribe,
		rs.AddRenderStagesChangedListener(g.onRenderStageAdded),
		rs.AddRenderStageSelectorsChangedListener(g.onRenderStageSelectorsChanged),
	)
	return g
}

func stageMaskWords(stages int) int {
	return max(1, (stages+31)/32)
}

// Close detaches the group from its render system and removes every object.
func (g *VisibilityGroup) Close() {
	for len(g.RenderObjects) > 0 {
		g.RemoveRenderObject(g.RenderObjects[len(g.RenderObjects)-1])
	}
	for _, fn := range g.unsubscribe {
		fn()
	}
	g.unsubscribe = nil
}

// AddFilter registers a predicate every object must pass to be collected.
//
// Parameters:
//   - filter: the predicate
func (g *VisibilityGroup) AddFilter(filter VisibilityFilter) {
	if filter != nil {
		g.filters = append(g.filters, filter)
	}
}

func (g *VisibilityGroup) onRenderStageAdded(*RenderStage) {
	if words := stageMaskWords(len(g.RenderSystem.RenderStages)); words != g.stageMaskMultiplier {
		g.stageMaskMultiplier = words
		g.RenderData.ChangeDataMultiplier(g.RenderStageMaskKey, words)
	}
	g.NeedActiveRenderStageReevaluation = true
}

func (g *VisibilityGroup) onRenderStageSelectorsChanged() {
	g.NeedActiveRenderStageReevaluation = true
}

// AddRenderObject adds an object to the group and registers it with the render system.
//
// Parameters:
//   - obj: an object not yet in any group
func (g *VisibilityGroup) AddRenderObject(obj *RenderObject) {
	if obj.VisibilityObjectNode.IsValid() {
		return
	}
	obj.VisibilityObjectNode = node.StaticObjectNodeReference{Index: len(g.RenderObjects)}
	g.RenderObjects = append(g.RenderObjects, obj)
	g.RenderData.PrepareDataArrays()

	g.RenderSystem.AddRenderObject(obj)
	g.ReevaluateActiveRenderStages(obj)
}

// RemoveRenderObject removes an object from the group and unregisters it from the render system.
// The last object moves into the freed slot.
//
// Parameters:
//   - obj: an object of this group
//
// Returns:
//   - bool: false when obj is not in this group
func (g *VisibilityGroup) RemoveRenderObject(obj *RenderObject) bool {
	index := obj.VisibilityObjectNode.Index
	if !obj.VisibilityObjectNode.IsValid() || index >= len(g.RenderObjects) || g.RenderObjects[index] != obj {
		return false
	}
	g.RenderSystem.RemoveRenderObject(obj)

	last := len(g.RenderObjects) - 1
	g.RenderData.SwapRemoveItem(node.DataTypeStaticObject, index, last)
	g.RenderObjects = common.SwapRemove(g.RenderObjects, index)
	if index < len(g.RenderObjects) {
		g.RenderObjects[index].VisibilityObjectNode = node.StaticObjectNodeReference{Index: index}
	}
	obj.VisibilityObjectNode = node.InvalidStaticObjectNode
	return true
}

// ReevaluateActiveRenderStages reruns the stage selectors of the object's feature and rebuilds
// its stage mask. Objects without a feature keep an empty mask.
//
// Parameters:
//   - obj: an object of this group
func (g *VisibilityGroup) ReevaluateActiveRenderStages(obj *RenderObject) {
	masks := node.GetData(g.RenderData, g.RenderStageMaskKey)
	first := obj.VisibilityObjectNode.Slot(g.stageMaskMultiplier, 0)
	for i := 0; i < g.stageMaskMultiplier; i++ {
		masks.Set(first+i, 0)
	}

	feature := obj.RenderFeature
	if feature == nil {
		return
	}

	obj.ActiveRenderStages = common.GrowSlice(obj.ActiveRenderStages[:0], len(g.RenderSystem.RenderStages))
	for _, selector := range feature.Base().RenderStageSelectors {
		selector.Process(obj)
	}

	for i, stage := range obj.ActiveRenderStages {
		if stage.Active {
			*masks.At(first + i/32) |= 1 << (i % 32)
		}
	}
}

// Collect fills view.RenderObjects with the objects of the group visible in the view and
// recomputes the view's distance bounds.
//
// Parameters:
//   - view: a view registered with the render system
func (g *VisibilityGroup) Collect(view *RenderView) {
	if g.NeedActiveRenderStageReevaluation {
		g.NeedActiveRenderStageReevaluation = false
		for _, obj := range g.RenderObjects {
			g.ReevaluateActiveRenderStages(obj)
		}
	}

	g.viewRenderStageMask = common.GrowSlice(g.viewRenderStageMask[:0], g.stageMaskMultiplier)
	for _, viewStage := range view.RenderStages {
		if index := viewStage.RenderStage.Index; index >= 0 {
			g.viewRenderStageMask[index/32] |= 1 << (index % 32)
		}
	}

	clear(view.RenderObjects)
	view.RenderObjects = view.RenderObjects[:0]
	view.resetDistances()

	masks := node.GetData(g.RenderData, g.RenderStageMaskKey)
	cull := view.CullingMode == CullingModeFrustum

	for _, obj := range g.RenderObjects {
		if !obj.Enabled || !view.CullingMask.Contains(obj.RenderGroup) || obj.RenderFeature == nil {
			continue
		}
		if !g.passesFilters(view, obj) {
			continue
		}
		if !g.intersectsView(masks.Slice(), obj) {
			continue
		}
		if cull && !obj.BoundingBox.IsEmpty() && !g.inFrustum(view, obj.BoundingBox) {
			continue
		}

		view.RenderObjects = append(view.RenderObjects, obj)
		view.includeDistances(obj.BoundingBox)
	}
}

func (g *VisibilityGroup) inFrustum(view *RenderView, box common.BoundingBox) bool {
	if view.IgnoreDepthPlanes {
		return view.Frustum.ContainsIgnoringDepth(box)
	}
	return view.Frustum.Contains(box)
}

func (g *VisibilityGroup) passesFilters(view *RenderView, obj *RenderObject) bool {
	for _, filter := range g.filters {
		if !filter(view, obj) {
			return false
		}
	}
	return true
}

func (g *VisibilityGroup) intersectsView(masks []uint32, obj *RenderObject) bool {
	first := obj.VisibilityObjectNode.Slot(g.stageMaskMultiplier, 0)
	for i, viewMask := range g.viewRenderStageMask {
		if masks[first+i]&viewMask != 0 {
			return true
		}
	}
	return false
}
