package rendering

// RootEffectRenderFeatureBuilderOption is a functional option for configuring a RootEffectRenderFeature.
type RootEffectRenderFeatureBuilderOption func(*RootEffectRenderFeature)

// WithFallbackEffectSelector sets the strategy choosing the effect bound while a permutation
// is compiling or after it failed.
//
// Parameters:
//   - selector: the fallback strategy, nil leaves such nodes undrawn
//
// Returns:
//   - RootEffectRenderFeatureBuilderOption: option function to apply
func WithFallbackEffectSelector(selector FallbackEffectSelector) RootEffectRenderFeatureBuilderOption {
	return func(f *RootEffectRenderFeature) {
		f.fallback = selector
	}
}

// WithPipelineStateProcessor sets the hook that adjusts pipeline descriptions before the
// stage output formats are applied.
//
// Parameters:
//   - p: the processor
//
// Returns:
//   - RootEffectRenderFeatureBuilderOption: option function to apply
func WithPipelineStateProcessor(p PipelineStateProcessor) RootEffectRenderFeatureBuilderOption {
	return func(f *RootEffectRenderFeature) {
		f.processor = p
	}
}

// WithPostProcessPipelineState appends a hook that runs after the stage output formats were applied.
//
// Parameters:
//   - p: the processor
//
// Returns:
//   - RootEffectRenderFeatureBuilderOption: option function to apply
func WithPostProcessPipelineState(p PipelineStateProcessor) RootEffectRenderFeatureBuilderOption {
	return func(f *RootEffectRenderFeature) {
		f.postProcessors = append(f.postProcessors, p)
	}
}

// WithDrawer replaces the default SourceDrawer.
//
// Parameters:
//   - d: the drawer issuing geometry commands per render node
//
// Returns:
//   - RootEffectRenderFeatureBuilderOption: option function to apply
func WithDrawer(d Drawer) RootEffectRenderFeatureBuilderOption {
	return func(f *RootEffectRenderFeature) {
		if d != nil {
			f.drawer = d
		}
	}
}

// WithSubRenderFeatures attaches sub-features. They are initialized with the root feature.
//
// Parameters:
//   - subs: the sub-features, run in order during every phase
//
// Returns:
//   - RootEffectRenderFeatureBuilderOption: option function to apply
func WithSubRenderFeatures(subs ...SubRenderFeature) RootEffectRenderFeatureBuilderOption {
	return func(f *RootEffectRenderFeature) {
		f.subFeatures = append(f.subFeatures, subs...)
	}
}

// WithEffectCompiled sets the callback notified the first time an effect is reflected.
//
// Parameters:
//   - fn: the callback
//
// Returns:
//   - RootEffectRenderFeatureBuilderOption: option function to apply
func WithEffectCompiled(fn EffectCompiledFunc) RootEffectRenderFeatureBuilderOption {
	return func(f *RootEffectRenderFeature) {
		f.EffectCompiled = fn
	}
}

// WithRenderStageSelectors appends selectors deciding the active stages of every object.
//
// Parameters:
//   - selectors: the selectors, run in order
//
// Returns:
//   - RootEffectRenderFeatureBuilderOption: option function to apply
func WithRenderStageSelectors(selectors ...RenderStageSelector) RootEffectRenderFeatureBuilderOption {
	return func(f *RootEffectRenderFeature) {
		f.RenderStageSelectors = append(f.RenderStageSelectors, selectors...)
	}
}
