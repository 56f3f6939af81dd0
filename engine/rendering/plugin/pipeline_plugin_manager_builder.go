package plugin

import "github.com/Carmen-Shannon/oxy-pipeline/engine/rendering"

// PipelinePluginManagerBuilderOption is a functional option used to configure a
// PipelinePluginManager during construction. Options run in order, so automatic rules must
// follow the registration of the plugins they activate.
type PipelinePluginManagerBuilderOption func(*PipelinePluginManager) error

// WithPlugin registers a plugin type.
//
// Parameters:
//   - pluginType: the plugin name
//   - factory: creates the plugin instance
//
// Returns:
//   - PipelinePluginManagerBuilderOption: option function to apply
func WithPlugin(pluginType PluginType, factory Factory) PipelinePluginManagerBuilderOption {
	return func(m *PipelinePluginManager) error {
		return m.Register(pluginType, factory)
	}
}

// WithAutomaticPlugin registers an automatic activation rule.
//
// Parameters:
//   - pluginType: the plugin activated by the rule
//   - dependencies: the plugin types that must all be loaded
//
// Returns:
//   - PipelinePluginManagerBuilderOption: option function to apply
func WithAutomaticPlugin(pluginType PluginType, dependencies ...PluginType) PipelinePluginManagerBuilderOption {
	return func(m *PipelinePluginManager) error {
		return m.RegisterAutomatic(pluginType, dependencies...)
	}
}

// WithDefaultPlugin maps an object type to the plugin providing its feature.
//
// Parameters:
//   - objectType: the render object type
//   - pluginType: the plugin to instantiate
//
// Returns:
//   - PipelinePluginManagerBuilderOption: option function to apply
func WithDefaultPlugin(objectType rendering.ObjectType, pluginType PluginType) PipelinePluginManagerBuilderOption {
	return func(m *PipelinePluginManager) error {
		m.RegisterDefault(objectType, pluginType)
		return nil
	}
}
