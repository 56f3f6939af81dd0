package plugin

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-pipeline/common"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/rendering"
	"github.com/pkg/errors"
)

type automaticRule struct {
	plugin       PluginType
	dependencies []PluginType
	// active is true while the rule holds a reference on plugin.
	active bool
}

type instance struct {
	plugin PipelinePlugin
	refs   int
}

// PipelinePluginManager activates pipeline plugins with reference counting. Automatic rules
// instantiate a plugin while all of its dependency types are loaded and release it as soon as
// one of them is not. Safe for concurrent use.
type PipelinePluginManager struct {
	mu        *sync.Mutex
	ctx       *PipelinePluginContext
	factories map[PluginType]Factory
	automatic []*automaticRule
	defaults  map[rendering.ObjectType]PluginType
	instances map[PluginType]*instance
	loading   map[PluginType]bool
}

var _ rendering.DefaultPipelinePluginActivator = &PipelinePluginManager{}

// NewPipelinePluginManager creates a manager for a render system and installs it as the
// render system's default plugin activator.
//
// Parameters:
//   - rs: the render system plugins load into
//   - opts: functional options registering plugins, automatic rules and default plugins
//
// Returns:
//   - *PipelinePluginManager: the manager
//   - error: the first registration error
func NewPipelinePluginManager(rs *rendering.RenderSystem, opts ...PipelinePluginManagerBuilderOption) (*PipelinePluginManager, error) {
	if rs == nil {
		panic("plugin: pipeline plugin manager requires a render system")
	}
	m := &PipelinePluginManager{
		mu:        &sync.Mutex{},
		ctx:       &PipelinePluginContext{RenderSystem: rs},
		factories: make(map[PluginType]Factory),
		defaults:  make(map[rendering.ObjectType]PluginType),
		instances: make(map[PluginType]*instance),
		loading:   make(map[PluginType]bool),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	rs.SetDefaultPipelinePluginActivator(m)
	return m, nil
}

// Register adds a plugin type and the factory creating its instances.
//
// Parameters:
//   - pluginType: the plugin name
//   - factory: creates an instance on the first instantiation
//
// Returns:
//   - error: ErrPluginAlreadyRegistered for a duplicate type
func (m *PipelinePluginManager) Register(pluginType PluginType, factory Factory) error {
	if factory == nil {
		panic("plugin: register requires a factory")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.factories[pluginType]; ok {
		return errors.Wrapf(ErrPluginAlreadyRegistered, "%q", pluginType)
	}
	m.factories[pluginType] = factory
	return nil
}

// RegisterAutomatic adds a rule keeping pluginType loaded while every dependency is loaded.
// The rule is evaluated immediately.
//
// Parameters:
//   - pluginType: the plugin activated by the rule
//   - dependencies: the plugin types that must all be alive
//
// Returns:
//   - error: ErrUnknownPlugin when pluginType has no factory, or a load error
func (m *PipelinePluginManager) RegisterAutomatic(pluginType PluginType, dependencies ...PluginType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.factories[pluginType]; !ok {
		return errors.Wrapf(ErrUnknownPlugin, "automatic %q", pluginType)
	}
	m.automatic = append(m.automatic, &automaticRule{plugin: pluginType, dependencies: slices.Clone(dependencies)})
	return m.evaluateAutomatic()
}

// RegisterDefault maps an object type to the plugin that provides its root feature.
//
// Parameters:
//   - objectType: the render object type
//   - pluginType: the plugin instantiated the first time an object of that type has no feature
func (m *PipelinePluginManager) RegisterDefault(objectType rendering.ObjectType, pluginType PluginType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaults[objectType] = pluginType
}

// InstantiatePlugin takes a reference on a plugin, loading it on the 0 to 1 transition.
//
// Parameters:
//   - pluginType: the plugin to instantiate
//
// Returns:
//   - PipelinePlugin: the live instance
//   - error: ErrUnknownPlugin, ErrDependencyCycle, or the plugin's load error
func (m *PipelinePluginManager) InstantiatePlugin(pluginType PluginType) (PipelinePlugin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.instantiate(pluginType)
	if err != nil {
		return nil, err
	}
	if err := m.evaluateAutomatic(); err != nil {
		return p, err
	}
	return p, nil
}

// ReleasePlugin drops a reference on a plugin, unloading it on the 1 to 0 transition.
//
// Parameters:
//   - pluginType: the plugin to release
//
// Returns:
//   - error: ErrPluginNotLoaded when the plugin has no live instance
func (m *PipelinePluginManager) ReleasePlugin(pluginType PluginType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.release(pluginType); err != nil {
		return err
	}
	return m.evaluateAutomatic()
}

// Plugin returns the live instance of a plugin, nil when it is not loaded.
func (m *PipelinePluginManager) Plugin(pluginType PluginType) PipelinePlugin {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inst, ok := m.instances[pluginType]; ok {
		return inst.plugin
	}
	return nil
}

// IsLoaded reports whether a plugin has a live instance.
func (m *PipelinePluginManager) IsLoaded(pluginType PluginType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.instances[pluginType]
	return ok
}

// RefCount returns the number of references held on a plugin.
func (m *PipelinePluginManager) RefCount(pluginType PluginType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inst, ok := m.instances[pluginType]; ok {
		return inst.refs
	}
	return 0
}

// InstantiateDefaultPipelinePlugin instantiates the default plugin of an object type.
//
// Parameters:
//   - objectType: the object type without a feature
//
// Returns:
//   - bool: true when a default plugin is registered and loaded
func (m *PipelinePluginManager) InstantiateDefaultPipelinePlugin(objectType rendering.ObjectType) bool {
	m.mu.Lock()
	pluginType, ok := m.defaults[objectType]
	m.mu.Unlock()
	if !ok {
		return false
	}
	if _, err := m.InstantiatePlugin(pluginType); err != nil {
		common.Logger().Warn("default pipeline plugin failed",
			slog.String("object_type", string(objectType)),
			slog.String("plugin", string(pluginType)),
			slog.Any("error", err))
		return false
	}
	return true
}

func (m *PipelinePluginManager) instantiate(pluginType PluginType) (PipelinePlugin, error) {
	if inst, ok := m.instances[pluginType]; ok {
		inst.refs++
		return inst.plugin, nil
	}
	factory, ok := m.factories[pluginType]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownPlugin, "%q", pluginType)
	}
	if m.loading[pluginType] {
		return nil, errors.Wrapf(ErrDependencyCycle, "%q", pluginType)
	}
	m.loading[pluginType] = true
	defer delete(m.loading, pluginType)

	p := factory()
	var deps []PluginType
	if d, ok := p.(Dependent); ok {
		deps = d.Dependencies()
	}
	for i, dep := range deps {
		if _, err := m.instantiate(dep); err != nil {
			m.releaseAll(deps[:i])
			return nil, errors.Wrapf(err, "dependency of %q", pluginType)
		}
	}

	if err := p.Load(m.ctx); err != nil {
		m.releaseAll(deps)
		return nil, errors.Wrapf(err, "load %q", pluginType)
	}
	m.instances[pluginType] = &instance{plugin: p, refs: 1}
	common.Logger().Debug("pipeline plugin loaded", slog.String("plugin", string(pluginType)))
	return p, nil
}

func (m *PipelinePluginManager) release(pluginType PluginType) error {
	inst, ok := m.instances[pluginType]
	if !ok {
		return errors.Wrapf(ErrPluginNotLoaded, "%q", pluginType)
	}
	inst.refs--
	if inst.refs > 0 {
		return nil
	}
	delete(m.instances, pluginType)
	inst.plugin.Unload(m.ctx)
	common.Logger().Debug("pipeline plugin unloaded", slog.String("plugin", string(pluginType)))
	if d, ok := inst.plugin.(Dependent); ok {
		m.releaseAll(d.Dependencies())
	}
	return nil
}

func (m *PipelinePluginManager) releaseAll(types []PluginType) {
	for _, t := range types {
		_ = m.release(t)
	}
}

// evaluateAutomatic applies every automatic rule until no rule changes state.
func (m *PipelinePluginManager) evaluateAutomatic() error {
	for changed := true; changed; {
		changed = false
		for _, rule := range m.automatic {
			alive := true
			for _, dep := range rule.dependencies {
				if _, ok := m.instances[dep]; !ok {
					alive = false
					break
				}
			}
			switch {
			case alive && !rule.active:
				if _, err := m.instantiate(rule.plugin); err != nil {
					return errors.Wrapf(err, "automatic plugin %q", rule.plugin)
				}
				rule.active = true
				changed = true
			case !alive && rule.active:
				rule.active = false
				if err := m.release(rule.plugin); err != nil {
					return err
				}
				changed = true
			}
		}
	}
	return nil
}
