package plugin

import "github.com/pkg/errors"

var (
	// ErrUnknownPlugin is returned when instantiating a plugin type that was never registered.
	ErrUnknownPlugin = errors.New("plugin: unknown pipeline plugin")

	// ErrPluginAlreadyRegistered is returned when a plugin type is registered twice.
	ErrPluginAlreadyRegistered = errors.New("plugin: pipeline plugin already registered")

	// ErrPluginNotLoaded is returned when releasing a plugin that has no live instance.
	ErrPluginNotLoaded = errors.New("plugin: pipeline plugin is not loaded")

	// ErrDependencyCycle is returned when plugin dependencies form a cycle.
	ErrDependencyCycle = errors.New("plugin: pipeline plugin dependency cycle")
)
