package plugin

import (
	"github.com/Carmen-Shannon/oxy-pipeline/engine/rendering"
	"github.com/pkg/errors"
)

// PluginType names a pipeline plugin in a PipelinePluginManager.
type PluginType string

// PipelinePluginContext is handed to every plugin Load and Unload.
type PipelinePluginContext struct {
	RenderSystem *rendering.RenderSystem
}

// PipelinePlugin is an optional rendering capability (shadows, picking, wireframe, a whole
// object type) shared by every consumer that instantiated it.
type PipelinePlugin interface {
	// Load is called when the first consumer instantiates the plugin. It must not call back
	// into the manager; plugins that need others implement Dependent instead.
	//
	// Parameters:
	//   - ctx: the plugin context
	//
	// Returns:
	//   - error: an error aborting the instantiation
	Load(ctx *PipelinePluginContext) error

	// Unload is called when the last consumer released the plugin.
	//
	// Parameters:
	//   - ctx: the plugin context
	Unload(ctx *PipelinePluginContext)
}

// Dependent is implemented by plugins that need other plugins loaded first. The manager
// instantiates the dependencies before Load and releases them after Unload.
type Dependent interface {
	Dependencies() []PluginType
}

// Factory creates a plugin instance on its 0 to 1 transition.
type Factory func() PipelinePlugin

// FeaturePlugin registers a root render feature on Load and removes it on Unload.
type FeaturePlugin struct {
	newFeature func(ctx *PipelinePluginContext) rendering.RootRenderFeature
	feature    rendering.RootRenderFeature
	deps       []PluginType
}

var (
	_ PipelinePlugin = &FeaturePlugin{}
	_ Dependent      = &FeaturePlugin{}
)

// NewFeaturePlugin creates a plugin owning one root render feature.
//
// Parameters:
//   - newFeature: builds the feature each time the plugin loads
//   - deps: plugins that must be loaded first
//
// Returns:
//   - *FeaturePlugin: the plugin
func NewFeaturePlugin(newFeature func(ctx *PipelinePluginContext) rendering.RootRenderFeature, deps ...PluginType) *FeaturePlugin {
	if newFeature == nil {
		panic("plugin: feature plugin requires a feature constructor")
	}
	return &FeaturePlugin{newFeature: newFeature, deps: deps}
}

// Feature returns the registered feature, nil while unloaded.
func (p *FeaturePlugin) Feature() rendering.RootRenderFeature {
	return p.feature
}

func (p *FeaturePlugin) Dependencies() []PluginType {
	return p.deps
}

func (p *FeaturePlugin) Load(ctx *PipelinePluginContext) error {
	feature := p.newFeature(ctx)
	if err := ctx.RenderSystem.AddRenderFeature(feature); err != nil {
		return errors.Wrap(err, "feature plugin")
	}
	p.feature = feature
	return nil
}

func (p *FeaturePlugin) Unload(ctx *PipelinePluginContext) {
	if p.feature == nil {
		return
	}
	_ = ctx.RenderSystem.RemoveRenderFeature(p.feature)
	p.feature = nil
}
