package rendering

// SubRenderFeature contributes one aspect (transforms, skinning, materials, ...) to a
// RootEffectRenderFeature. Its hooks run inside the matching phases of the root feature.
type SubRenderFeature interface {
	// AttachRootRenderFeature is called once before Initialize.
	AttachRootRenderFeature(root *RootEffectRenderFeature)

	// Initialize creates property keys and constant buffer offset slots.
	//
	// Returns:
	//   - error: a structural error aborting the root feature registration
	Initialize() error

	// Extract copies object state into the root feature's property arrays.
	Extract()

	// PrepareEffectPermutations contributes permutation parameters to effect validators.
	PrepareEffectPermutations(ctx *RenderDrawContext)

	// Prepare writes constant buffers once resource groups are allocated.
	//
	// Returns:
	//   - error: a structural error
	Prepare(ctx *RenderDrawContext) error

	// Draw runs after the root feature drew the nodes [start, end).
	Draw(ctx *RenderDrawContext, view *RenderView, viewStage *RenderViewStage, start, end int)
}

// SubRenderFeatureBase provides no-op hooks and keeps the attached root feature.
type SubRenderFeatureBase struct {
	RootRenderFeature *RootEffectRenderFeature
}

func (s *SubRenderFeatureBase) AttachRootRenderFeature(root *RootEffectRenderFeature) {
	s.RootRenderFeature = root
}

func (s *SubRenderFeatureBase) Initialize() error { return nil }

func (s *SubRenderFeatureBase) Extract() {}

func (s *SubRenderFeatureBase) PrepareEffectPermutations(*RenderDrawContext) {}

func (s *SubRenderFeatureBase) Prepare(*RenderDrawContext) error { return nil }

func (s *SubRenderFeatureBase) Draw(*RenderDrawContext, *RenderView, *RenderViewStage, int, int) {}
