package game_object

import (
	_ "embed"

	"github.com/Carmen-Shannon/oxy-pipeline/engine/effect/shader"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/model"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/rendering"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/rendering/features"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/rendering/plugin"
)

// MeshEffectSource is the WGSL effect drawing game objects with their vertex colors and a fixed
// directional light.
//
//go:embed assets/mesh.wgsl
var MeshEffectSource string

// Shader library names of the sources registered by LibraryOptions.
const (
	TransformSourceName = "transform"
	VertexSourceName    = "vertex"
	MeshEffectName      = "mesh"
)

// PluginType is the pipeline plugin owning the game object render feature.
const PluginType plugin.PluginType = "GameObjects"

// LibraryOptions registers the mesh effect and the sources it includes.
//
// Returns:
//   - []shader.LibraryBuilderOption: options for shader.NewLibrary
func LibraryOptions() []shader.LibraryBuilderOption {
	return []shader.LibraryBuilderOption{
		shader.WithSource(TransformSourceName, features.TransformSource),
		shader.WithSource(VertexSourceName, model.GPUVertexSource),
		shader.WithSource(MeshEffectName, MeshEffectSource),
	}
}

// NewRenderFeature creates the root feature drawing game objects in the given stages with the
// mesh effect.
//
// Parameters:
//   - stages: the stages every game object renders in
//   - opts: extra feature options, applied after the defaults
//
// Returns:
//   - *rendering.RootEffectRenderFeature: the feature
func NewRenderFeature(stages []*rendering.RenderStage, opts ...rendering.RootEffectRenderFeatureBuilderOption) *rendering.RootEffectRenderFeature {
	selectors := make([]rendering.RenderStageSelector, 0, len(stages))
	for _, stage := range stages {
		selectors = append(selectors, &rendering.SimpleGroupToRenderStageSelector{
			RenderGroup: rendering.RenderGroupMaskAll,
			RenderStage: stage,
			EffectName:  MeshEffectName,
		})
	}
	defaults := []rendering.RootEffectRenderFeatureBuilderOption{
		rendering.WithSubRenderFeatures(features.NewTransformRenderFeature()),
		rendering.WithRenderStageSelectors(selectors...),
	}
	return rendering.NewRootEffectRenderFeature(ObjectType, append(defaults, opts...)...)
}

// NewPlugin returns a plugin factory registering the game object feature on the named render
// stages. Names the render system does not know are skipped.
//
// Parameters:
//   - stageNames: the stages to render in
//
// Returns:
//   - plugin.Factory: the factory, for plugin.WithPlugin
func NewPlugin(stageNames ...string) plugin.Factory {
	return func() plugin.PipelinePlugin {
		return plugin.NewFeaturePlugin(func(ctx *plugin.PipelinePluginContext) rendering.RootRenderFeature {
			var stages []*rendering.RenderStage
			for _, name := range stageNames {
				for _, stage := range ctx.RenderSystem.RenderStages {
					if stage.Name == name {
						stages = append(stages, stage)
					}
				}
			}
			return NewRenderFeature(stages)
		})
	}
}
