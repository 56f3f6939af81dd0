package rendering

import (
	"github.com/Carmen-Shannon/oxy-pipeline/engine/gpu"
)

// DefaultEffectSlotName is the permutation slot used by stages that do not name one.
const DefaultEffectSlotName = "Main"

// RenderStageFilter is an extra per-stage predicate evaluated while render nodes are created.
type RenderStageFilter interface {
	// IsVisible reports whether an object gets a render node in a (view, stage) pair.
	//
	// Parameters:
	//   - obj: the candidate object
	//   - view: the view being extracted
	//   - viewStage: the view stage receiving the node
	//
	// Returns:
	//   - bool: false to drop the node
	IsVisible(obj *RenderObject, view *RenderView, viewStage *RenderViewStage) bool
}

// RenderStageFilterFunc adapts a function to RenderStageFilter.
type RenderStageFilterFunc func(obj *RenderObject, view *RenderView, viewStage *RenderViewStage) bool

func (f RenderStageFilterFunc) IsVisible(obj *RenderObject, view *RenderView, viewStage *RenderViewStage) bool {
	return f(obj, view, viewStage)
}

// RenderStage is a named, independently sorted pass with fixed output formats.
type RenderStage struct {
	Name string

	// EffectSlotName selects the effect permutation slot objects use in this stage. Stages
	// sharing a slot name share compiled effects.
	EffectSlotName string

	Output   gpu.RenderOutputDescription
	SortMode SortMode
	Filter   RenderStageFilter

	// Index is assigned when the stage is added to a render system, -1 before.
	Index int
}

// NewRenderStage creates an unregistered stage.
//
// Parameters:
//   - name: the stage name
//   - effectSlotName: the permutation slot name, DefaultEffectSlotName when empty
//
// Returns:
//   - *RenderStage: the stage
func NewRenderStage(name, effectSlotName string) *RenderStage {
	if effectSlotName == "" {
		effectSlotName = DefaultEffectSlotName
	}
	return &RenderStage{
		Name:           name,
		EffectSlotName: effectSlotName,
		Index:          -1,
	}
}

// String returns the stage name.
func (s *RenderStage) String() string {
	return s.Name
}
