package rendering

// RenderStageSelector decides which stages an object is active in. Selectors only ever turn
// stages on; the visibility group clears the table before running them.
type RenderStageSelector interface {
	// Process marks the stages obj renders in.
	//
	// Parameters:
	//   - obj: the object, with ActiveRenderStages sized to the stage count
	Process(obj *RenderObject)
}

// RenderStageSelectorFunc adapts a function to RenderStageSelector.
type RenderStageSelectorFunc func(obj *RenderObject)

func (f RenderStageSelectorFunc) Process(obj *RenderObject) { f(obj) }

// SimpleGroupToRenderStageSelector activates one stage for every object in a group mask.
type SimpleGroupToRenderStageSelector struct {
	RenderGroup RenderGroupMask
	RenderStage *RenderStage
	EffectName  string
}

var _ RenderStageSelector = &SimpleGroupToRenderStageSelector{}

func (s *SimpleGroupToRenderStageSelector) Process(obj *RenderObject) {
	if s.RenderStage == nil || !s.RenderGroup.Contains(obj.RenderGroup) {
		return
	}
	index := s.RenderStage.Index
	if index < 0 || index >= len(obj.ActiveRenderStages) {
		return
	}
	obj.ActiveRenderStages[index] = ActiveRenderStage{Active: true, EffectName: s.EffectName}
}

// TransparencyRenderStageSelector routes objects to an opaque or a transparent stage from a
// predicate over the object, typically backed by its material.
type TransparencyRenderStageSelector struct {
	RenderGroup      RenderGroupMask
	OpaqueStage      *RenderStage
	TransparentStage *RenderStage
	EffectName       string
	IsTransparent    func(obj *RenderObject) bool
}

var _ RenderStageSelector = &TransparencyRenderStageSelector{}

func (s *TransparencyRenderStageSelector) Process(obj *RenderObject) {
	if !s.RenderGroup.Contains(obj.RenderGroup) {
		return
	}
	stage := s.OpaqueStage
	if s.IsTransparent != nil && s.IsTransparent(obj) {
		stage = s.TransparentStage
	}
	if stage == nil || stage.Index < 0 || stage.Index >= len(obj.ActiveRenderStages) {
		return
	}
	obj.ActiveRenderStages[stage.Index] = ActiveRenderStage{Active: true, EffectName: s.EffectName}
}
