package compositor

import (
	"time"

	"github.com/Carmen-Shannon/oxy-pipeline/engine/gpu"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/profiler"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/rendering"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/rendering/plugin"
)

// CompositorBuilderOption is a functional option used to configure a Compositor during construction.
type CompositorBuilderOption func(*Compositor)

// WithConfig sets the stages, views and render system tuning. DefaultConfig is used otherwise.
//
// Parameters:
//   - cfg: the configuration, validated by NewCompositor
//
// Returns:
//   - CompositorBuilderOption: option function to apply
func WithConfig(cfg *Config) CompositorBuilderOption {
	return func(c *Compositor) {
		c.config = cfg
	}
}

// WithRenderSystemOptions appends render system options after the ones derived from the config.
//
// Parameters:
//   - opts: the render system options
//
// Returns:
//   - CompositorBuilderOption: option function to apply
func WithRenderSystemOptions(opts ...rendering.RenderSystemBuilderOption) CompositorBuilderOption {
	return func(c *Compositor) {
		c.renderSystemOptions = append(c.renderSystemOptions, opts...)
	}
}

// WithPipelinePlugins configures the plugin manager.
//
// Parameters:
//   - opts: plugin registrations, automatic rules and default plugins
//
// Returns:
//   - CompositorBuilderOption: option function to apply
func WithPipelinePlugins(opts ...plugin.PipelinePluginManagerBuilderOption) CompositorBuilderOption {
	return func(c *Compositor) {
		c.pluginOptions = append(c.pluginOptions, opts...)
	}
}

// WithProfiler times every frame phase.
//
// Parameters:
//   - p: the profiler
//
// Returns:
//   - CompositorBuilderOption: option function to apply
func WithProfiler(p *profiler.Profiler) CompositorBuilderOption {
	return func(c *Compositor) {
		c.profiler = p
	}
}

// WithClock replaces time.Now for frame times and effect retry backoff.
//
// Parameters:
//   - clock: the time source
//
// Returns:
//   - CompositorBuilderOption: option function to apply
func WithClock(clock func() time.Time) CompositorBuilderOption {
	return func(c *Compositor) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithCommandList records frames into an existing command list instead of a new one.
//
// Parameters:
//   - cl: the command list
//
// Returns:
//   - CompositorBuilderOption: option function to apply
func WithCommandList(cl gpu.CommandList) CompositorBuilderOption {
	return func(c *Compositor) {
		c.cl = cl
	}
}
