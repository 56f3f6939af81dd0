package plugin

import (
	"sync"
	"testing"

	"github.com/Carmen-Shannon/oxy-pipeline/engine/effect"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/effect/shader"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/gpu/headless"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/rendering"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errLoad = errors.New("load failed")

// recorder counts Load and Unload calls per plugin type.
type recorder struct {
	mu      sync.Mutex
	loads   map[PluginType]int
	unloads map[PluginType]int
	order   []string
}

func newRecorder() *recorder {
	return &recorder{loads: make(map[PluginType]int), unloads: make(map[PluginType]int)}
}

func (r *recorder) loaded(t PluginType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loads[t]
}

func (r *recorder) unloaded(t PluginType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unloads[t]
}

type recordingPlugin struct {
	name PluginType
	rec  *recorder
	deps []PluginType
	err  error
}

func (p *recordingPlugin) Dependencies() []PluginType { return p.deps }

func (p *recordingPlugin) Load(*PipelinePluginContext) error {
	if p.err != nil {
		return p.err
	}
	p.rec.mu.Lock()
	defer p.rec.mu.Unlock()
	p.rec.loads[p.name]++
	p.rec.order = append(p.rec.order, "load "+string(p.name))
	return nil
}

func (p *recordingPlugin) Unload(*PipelinePluginContext) {
	p.rec.mu.Lock()
	defer p.rec.mu.Unlock()
	p.rec.unloads[p.name]++
	p.rec.order = append(p.rec.order, "unload "+string(p.name))
}

func (r *recorder) factory(name PluginType, deps ...PluginType) Factory {
	return func() PipelinePlugin {
		return &recordingPlugin{name: name, rec: r, deps: deps}
	}
}

func newRenderSystem(t *testing.T) *rendering.RenderSystem {
	t.Helper()
	compiler := effect.NewCachedCompiler(shader.NewBackend(shader.NewLibrary()))
	rs, err := rendering.NewRenderSystem(headless.NewDevice(), compiler)
	require.NoError(t, err)
	return rs
}

func newManager(t *testing.T, opts ...PipelinePluginManagerBuilderOption) *PipelinePluginManager {
	t.Helper()
	m, err := NewPipelinePluginManager(newRenderSystem(t), opts...)
	require.NoError(t, err)
	return m
}

func TestAutomaticPluginFollowsDependencies(t *testing.T) {
	rec := newRecorder()
	m := newManager(t,
		WithPlugin("A", rec.factory("A")),
		WithPlugin("B", rec.factory("B")),
		WithPlugin("P", rec.factory("P")),
		WithAutomaticPlugin("P", "A", "B"),
	)
	assert.False(t, m.IsLoaded("P"))

	_, err := m.InstantiatePlugin("A")
	require.NoError(t, err)
	assert.Zero(t, rec.loaded("P"))

	_, err = m.InstantiatePlugin("B")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.loaded("P"))
	assert.True(t, m.IsLoaded("P"))

	require.NoError(t, m.ReleasePlugin("A"))
	assert.Equal(t, 1, rec.unloaded("P"))
	assert.False(t, m.IsLoaded("P"))

	require.NoError(t, m.ReleasePlugin("B"))
	assert.Equal(t, 1, rec.unloaded("P"), "P is not released twice")

	_, err = m.InstantiatePlugin("A")
	require.NoError(t, err)
	_, err = m.InstantiatePlugin("B")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.loaded("P"))
}

func TestReleasingOneDependencyThenReinstantiating(t *testing.T) {
	rec := newRecorder()
	m := newManager(t,
		WithPlugin("A", rec.factory("A")),
		WithPlugin("B", rec.factory("B")),
		WithPlugin("P", rec.factory("P")),
		WithAutomaticPlugin("P", "A", "B"),
	)
	for _, p := range []PluginType{"A", "B"} {
		_, err := m.InstantiatePlugin(p)
		require.NoError(t, err)
	}

	require.NoError(t, m.ReleasePlugin("B"))
	assert.Equal(t, 1, rec.unloaded("P"))

	_, err := m.InstantiatePlugin("B")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.loaded("P"))
	assert.Equal(t, 1, m.RefCount("P"))
}

func TestAutomaticRuleEvaluatedOnRegistration(t *testing.T) {
	rec := newRecorder()
	m := newManager(t, WithPlugin("A", rec.factory("A")), WithPlugin("P", rec.factory("P")))
	_, err := m.InstantiatePlugin("A")
	require.NoError(t, err)

	require.NoError(t, m.RegisterAutomatic("P", "A"))
	assert.True(t, m.IsLoaded("P"))
}

func TestAutomaticRulesChain(t *testing.T) {
	rec := newRecorder()
	m := newManager(t,
		WithPlugin("A", rec.factory("A")),
		WithPlugin("P", rec.factory("P")),
		WithPlugin("Q", rec.factory("Q")),
		WithAutomaticPlugin("Q", "P"),
		WithAutomaticPlugin("P", "A"),
	)

	_, err := m.InstantiatePlugin("A")
	require.NoError(t, err)
	assert.True(t, m.IsLoaded("P"))
	assert.True(t, m.IsLoaded("Q"))

	require.NoError(t, m.ReleasePlugin("A"))
	assert.False(t, m.IsLoaded("P"))
	assert.False(t, m.IsLoaded("Q"))
}

func TestReferenceCounting(t *testing.T) {
	rec := newRecorder()
	m := newManager(t, WithPlugin("Shadows", rec.factory("Shadows")))

	first, err := m.InstantiatePlugin("Shadows")
	require.NoError(t, err)
	second, err := m.InstantiatePlugin("Shadows")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Same(t, first, m.Plugin("Shadows"))
	assert.Equal(t, 1, rec.loaded("Shadows"))
	assert.Equal(t, 2, m.RefCount("Shadows"))

	require.NoError(t, m.ReleasePlugin("Shadows"))
	assert.True(t, m.IsLoaded("Shadows"))
	assert.Zero(t, rec.unloaded("Shadows"))

	require.NoError(t, m.ReleasePlugin("Shadows"))
	assert.False(t, m.IsLoaded("Shadows"))
	assert.Nil(t, m.Plugin("Shadows"))
	assert.Equal(t, 1, rec.unloaded("Shadows"))

	assert.ErrorIs(t, m.ReleasePlugin("Shadows"), ErrPluginNotLoaded)
}

func TestRegistrationErrors(t *testing.T) {
	rec := newRecorder()
	m := newManager(t, WithPlugin("A", rec.factory("A")))

	_, err := m.InstantiatePlugin("missing")
	assert.ErrorIs(t, err, ErrUnknownPlugin)
	assert.ErrorIs(t, m.Register("A", rec.factory("A")), ErrPluginAlreadyRegistered)
	assert.ErrorIs(t, m.RegisterAutomatic("missing", "A"), ErrUnknownPlugin)

	_, err = NewPipelinePluginManager(newRenderSystem(t), WithPlugin("A", rec.factory("A")), WithPlugin("A", rec.factory("A")))
	assert.ErrorIs(t, err, ErrPluginAlreadyRegistered)
}

func TestDependenciesLoadFirstAndReleaseAfter(t *testing.T) {
	rec := newRecorder()
	m := newManager(t,
		WithPlugin("Lighting", rec.factory("Lighting")),
		WithPlugin("Shadows", rec.factory("Shadows", "Lighting")),
	)

	_, err := m.InstantiatePlugin("Shadows")
	require.NoError(t, err)
	assert.True(t, m.IsLoaded("Lighting"))

	require.NoError(t, m.ReleasePlugin("Shadows"))
	assert.False(t, m.IsLoaded("Lighting"))
	assert.Equal(t, []string{"load Lighting", "load Shadows", "unload Shadows", "unload Lighting"}, rec.order)
}

func TestDependencyCycleIsRejected(t *testing.T) {
	rec := newRecorder()
	m := newManager(t,
		WithPlugin("A", rec.factory("A", "B")),
		WithPlugin("B", rec.factory("B", "A")),
	)

	_, err := m.InstantiatePlugin("A")
	assert.ErrorIs(t, err, ErrDependencyCycle)
	assert.False(t, m.IsLoaded("A"))
	assert.False(t, m.IsLoaded("B"))
}

func TestLoadFailureReleasesDependencies(t *testing.T) {
	rec := newRecorder()
	m := newManager(t,
		WithPlugin("Base", rec.factory("Base")),
		WithPlugin("Broken", func() PipelinePlugin {
			return &recordingPlugin{name: "Broken", rec: rec, deps: []PluginType{"Base"}, err: errLoad}
		}),
	)

	_, err := m.InstantiatePlugin("Broken")
	assert.ErrorIs(t, err, errLoad)
	assert.False(t, m.IsLoaded("Broken"))
	assert.False(t, m.IsLoaded("Base"))
	assert.Equal(t, 1, rec.unloaded("Base"))
}

func TestDefaultPluginRegistersFeatureOnFirstObject(t *testing.T) {
	const sprite rendering.ObjectType = "sprite"
	rs := newRenderSystem(t)
	var plugins []*FeaturePlugin
	m, err := NewPipelinePluginManager(rs,
		WithPlugin("Sprites", func() PipelinePlugin {
			p := NewFeaturePlugin(func(*PipelinePluginContext) rendering.RootRenderFeature {
				return rendering.NewRootEffectRenderFeature(sprite)
			})
			plugins = append(plugins, p)
			return p
		}),
		WithDefaultPlugin(sprite, "Sprites"),
	)
	require.NoError(t, err)

	first := rendering.NewRenderObject(sprite, nil)
	rs.AddRenderObject(first)
	require.Len(t, plugins, 1)
	assert.True(t, first.IsRegistered())
	assert.Same(t, plugins[0].Feature(), rs.RenderFeature(sprite))

	second := rendering.NewRenderObject(sprite, nil)
	rs.AddRenderObject(second)
	assert.True(t, second.IsRegistered())
	assert.Len(t, plugins, 1)
	assert.Equal(t, 1, m.RefCount("Sprites"))

	require.NoError(t, m.ReleasePlugin("Sprites"))
	assert.Nil(t, rs.RenderFeature(sprite))
	assert.Nil(t, plugins[0].Feature())
	assert.Len(t, rs.PendingRenderObjects(), 2, "objects wait for the next feature of their type")
}

func TestDefaultPluginMissingOrFailing(t *testing.T) {
	rs := newRenderSystem(t)
	rec := newRecorder()
	m, err := NewPipelinePluginManager(rs,
		WithPlugin("Broken", func() PipelinePlugin {
			return &recordingPlugin{name: "Broken", rec: rec, err: errLoad}
		}),
		WithDefaultPlugin("broken", "Broken"),
	)
	require.NoError(t, err)

	assert.False(t, m.InstantiateDefaultPipelinePlugin("unmapped"))
	assert.False(t, m.InstantiateDefaultPipelinePlugin("broken"))

	obj := rendering.NewRenderObject("broken", nil)
	rs.AddRenderObject(obj)
	assert.False(t, obj.IsRegistered())
	assert.Contains(t, rs.PendingRenderObjects(), obj)
}

func TestConcurrentInstantiateAndRelease(t *testing.T) {
	rec := newRecorder()
	m := newManager(t,
		WithPlugin("A", rec.factory("A")),
		WithPlugin("P", rec.factory("P")),
		WithAutomaticPlugin("P", "A"),
	)
	_, err := m.InstantiatePlugin("A")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				if _, err := m.InstantiatePlugin("A"); err == nil {
					_ = m.ReleasePlugin("A")
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, m.RefCount("A"))
	assert.Equal(t, 1, rec.loaded("A"))
	assert.Equal(t, 1, rec.loaded("P"))
}
