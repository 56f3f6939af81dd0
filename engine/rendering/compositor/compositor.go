package compositor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-pipeline/common"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/effect"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/gpu"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/profiler"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/rendering"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/rendering/plugin"
	"github.com/pkg/errors"
)

// Compositor owns a render system configured from a Config and renders whole frames:
// Reset, Collect per view, Extract, Prepare, Draw of every (view, stage) pair in the view's
// stage order, then a command list flush.
type Compositor struct {
	mu       *sync.Mutex
	config   *Config
	rs       *rendering.RenderSystem
	plugins  *plugin.PipelinePluginManager
	group    *rendering.VisibilityGroup
	cl       gpu.CommandList
	stages   map[string]*rendering.RenderStage
	views    map[string]*rendering.RenderView
	mainView *rendering.RenderView
	profiler *profiler.Profiler
	clock    func() time.Time
	start    time.Time
	last     time.Time
	frames   uint64

	renderSystemOptions []rendering.RenderSystemBuilderOption
	pluginOptions       []plugin.PipelinePluginManagerBuilderOption
}

// NewCompositor creates the render system, stages, views, visibility group and plugin
// manager described by the configuration.
//
// Parameters:
//   - device: the graphics device
//   - compiler: the effect compiler
//   - opts: functional options (config, clock, profiler, command list, plugins)
//
// Returns:
//   - *Compositor: the compositor
//   - error: a configuration or registration error
func NewCompositor(device gpu.Device, compiler effect.Compiler, opts ...CompositorBuilderOption) (*Compositor, error) {
	if device == nil {
		panic("compositor: compositor requires a device")
	}
	c := &Compositor{
		mu:     &sync.Mutex{},
		clock:  time.Now,
		stages: make(map[string]*rendering.RenderStage),
		views:  make(map[string]*rendering.RenderView),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.config == nil {
		c.config = DefaultConfig()
	}
	if err := c.config.Validate(); err != nil {
		return nil, err
	}

	rsOpts, err := c.renderSystemBuilderOptions()
	if err != nil {
		return nil, err
	}
	rs, err := rendering.NewRenderSystem(device, compiler, rsOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "create render system")
	}
	c.rs = rs

	if c.plugins, err = plugin.NewPipelinePluginManager(rs, c.pluginOptions...); err != nil {
		return nil, err
	}

	for _, sc := range c.config.Stages {
		stage := rendering.NewRenderStage(sc.Name, sc.EffectSlot)
		stage.SortMode, _ = ParseSortMode(sc.SortMode)
		stage.Output = gpu.RenderOutputDescription{
			RenderTargetFormats: sc.Output.Colors,
			DepthStencilFormat:  sc.Output.Depth,
			MultisampleCount:    sc.Output.Multisample,
		}
		if err := rs.AddRenderStage(stage); err != nil {
			return nil, errors.Wrapf(err, "add stage %q", sc.Name)
		}
		c.stages[sc.Name] = stage
	}

	for _, vc := range c.config.Views {
		view := rendering.NewRenderView(vc.Name)
		view.CullingMode, _ = ParseCullingMode(vc.Culling)
		view.IgnoreDepthPlanes = vc.IgnoreDepthPlanes
		if vc.CullingMask != nil {
			view.CullingMask = rendering.RenderGroupMask(*vc.CullingMask)
		}
		if vc.Near > 0 {
			view.NearClipPlane = vc.Near
		}
		if vc.Far > 0 {
			view.FarClipPlane = vc.Far
		}
		for _, name := range vc.Stages {
			view.AddRenderStage(c.stages[name])
		}
		rs.AddView(view)
		c.views[vc.Name] = view
		if c.mainView == nil {
			c.mainView = view
		}
	}

	c.group = rendering.NewVisibilityGroup(rs)
	if c.cl == nil {
		c.cl = device.NewCommandList()
	}
	common.Logger().Debug("compositor created",
		slog.Int("stages", len(c.config.Stages)),
		slog.Int("views", len(c.config.Views)),
		slog.String("compile_mode", rs.CompileMode().String()))
	return c, nil
}

func (c *Compositor) renderSystemBuilderOptions() ([]rendering.RenderSystemBuilderOption, error) {
	mode, err := ParseCompileMode(c.config.CompileMode)
	if err != nil {
		return nil, err
	}
	retry, err := c.config.RetryInterval()
	if err != nil {
		return nil, err
	}
	opts := []rendering.RenderSystemBuilderOption{
		rendering.WithCompileMode(mode),
		rendering.WithClock(c.clock),
	}
	if retry > 0 {
		opts = append(opts, rendering.WithEffectRetryInterval(retry))
	}
	if c.config.Workers > 0 {
		opts = append(opts, rendering.WithWorkers(c.config.Workers, c.config.BatchSize))
	}
	return append(opts, c.renderSystemOptions...), nil
}

// RenderSystem returns the owned render system.
func (c *Compositor) RenderSystem() *rendering.RenderSystem {
	return c.rs
}

// PluginManager returns the plugin manager installed as the render system's default activator.
func (c *Compositor) PluginManager() *plugin.PipelinePluginManager {
	return c.plugins
}

// VisibilityGroup returns the group every object is added through.
func (c *Compositor) VisibilityGroup() *rendering.VisibilityGroup {
	return c.group
}

// CommandList returns the command list frames are recorded into.
func (c *Compositor) CommandList() gpu.CommandList {
	return c.cl
}

// MainView returns the first configured view.
func (c *Compositor) MainView() *rendering.RenderView {
	return c.mainView
}

// View returns a configured view by name, nil when unknown.
func (c *Compositor) View(name string) *rendering.RenderView {
	return c.views[name]
}

// Stage returns a configured stage by name, nil when unknown.
func (c *Compositor) Stage(name string) *rendering.RenderStage {
	return c.stages[name]
}

// Frames returns the number of frames rendered.
func (c *Compositor) Frames() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// AddRenderFeature registers a root feature with the render system.
//
// Parameters:
//   - feature: the feature
//
// Returns:
//   - error: the registration error
func (c *Compositor) AddRenderFeature(feature rendering.RootRenderFeature) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rs.AddRenderFeature(feature)
}

// AddRenderObject adds an object through the visibility group.
//
// Parameters:
//   - obj: the object
func (c *Compositor) AddRenderObject(obj *rendering.RenderObject) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.group.AddRenderObject(obj)
}

// RemoveRenderObject removes an object from the visibility group and its feature.
//
// Parameters:
//   - obj: the object
//
// Returns:
//   - bool: false when the object was not in the group
func (c *Compositor) RemoveRenderObject(obj *rendering.RenderObject) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.group.RemoveRenderObject(obj)
}

// RenderFrame runs one full frame. A cancelled context is only checked before the frame
// starts; a started frame always runs every phase.
//
// Parameters:
//   - ctx: cancels frames that have not started
//
// Returns:
//   - error: the context error, or a structural error from Prepare, Draw or Flush
func (c *Compositor) RenderFrame(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	rs := c.rs
	now := c.clock()
	if c.start.IsZero() {
		c.start, c.last = now, now
	}
	rs.Reset()
	dctx := rs.NewDrawContext(c.cl)
	dctx.Time = now.Sub(c.start)
	dctx.DeltaTime = now.Sub(c.last)
	c.last = now

	stop := c.profiler.Begin(profiler.PhaseCollect)
	rs.Collect(dctx)
	for _, view := range rs.Views {
		c.group.Collect(view)
	}
	stop()

	stop = c.profiler.Begin(profiler.PhaseExtract)
	rs.Extract(dctx)
	stop()

	stop = c.profiler.Begin(profiler.PhasePrepare)
	err := rs.Prepare(dctx)
	stop()
	if err != nil {
		return errors.Wrapf(err, "prepare frame %d", rs.FrameCounter)
	}

	stop = c.profiler.Begin(profiler.PhaseDraw)
	for _, view := range rs.Views {
		for _, viewStage := range view.RenderStages {
			if err := rs.Draw(dctx, view, viewStage.RenderStage); err != nil {
				stop()
				return errors.Wrapf(err, "draw view %q stage %q", view.Name, viewStage.RenderStage.Name)
			}
		}
	}
	stop()

	stop = c.profiler.Begin(profiler.PhaseFlush)
	err = c.cl.Flush()
	stop()
	if err != nil {
		return errors.Wrapf(err, "flush frame %d", rs.FrameCounter)
	}

	c.frames++
	c.profiler.Tick()
	return nil
}

// Close removes every object from the visibility group and detaches it from the render system.
// It then stops the render system workers and, when the compiler can be closed (a CachedCompiler),
// the compiler workers. A closed compositor must not render again.
func (c *Compositor) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.group.Close()
	c.rs.Close()
	if closer, ok := c.rs.Compiler().(interface{ Close() }); ok {
		closer.Close()
	}
}
