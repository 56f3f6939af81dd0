package rendering

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-pipeline/engine/effect"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/gpu"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/gpu/headless"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const meshType ObjectType = "mesh"

var errBrokenEffect = errors.New("broken effect")

func groupBuilder(name string, cbufferSize uint64) *gpu.DescriptorSetLayoutBuilder {
	return gpu.NewDescriptorSetLayoutBuilder(name).
		AddBinding(gpu.DescriptorSetLayoutEntry{
			Binding:        0,
			Name:           name,
			Kind:           gpu.BindingKindUniformBuffer,
			Visibility:     gpu.ShaderStageVertex | gpu.ShaderStageFragment,
			MinBindingSize: cbufferSize,
		})
}

// testReflection declares PerFrame (Time), PerView (ViewProjection) and PerDraw (World, Color)
// at groups 0, 1 and 2.
func testReflection() *effect.Reflection {
	return &effect.Reflection{
		DescriptorSets: []effect.DescriptorSetReflection{
			{Name: effect.PerFrame, Group: 0, Layout: groupBuilder(effect.PerFrame, 16)},
			{Name: effect.PerView, Group: 1, Layout: groupBuilder(effect.PerView, 64)},
			{Name: effect.PerDraw, Group: 2, Layout: groupBuilder(effect.PerDraw, 80)},
		},
		ConstantBuffers: []*gpu.ConstantBufferDescription{
			{Name: effect.PerFrame, Binding: 0, Size: 16, Members: []gpu.ConstantBufferMember{{Name: "Time", Offset: 0, Size: 4}}},
			{Name: effect.PerView, Binding: 0, Size: 64, Members: []gpu.ConstantBufferMember{{Name: "ViewProjection", Offset: 0, Size: 64}}},
			{Name: effect.PerDraw, Binding: 0, Size: 80, Members: []gpu.ConstantBufferMember{
				{Name: "World", Offset: 0, Size: 64},
				{Name: "Color", Offset: 64, Size: 16},
			}},
		},
	}
}

func testEffect(label string) *effect.CompiledEffect {
	return &effect.CompiledEffect{
		Name:       label,
		Parameters: effect.NewParameterSet(),
		Bytecode:   &gpu.ShaderBytecode{Label: label, VertexEntry: "vs_main", FragmentEntry: "fs_main"},
		Reflection: testReflection(),
	}
}

// manualTask is a compile task completed by the test.
type manualTask struct {
	mu     sync.Mutex
	done   chan struct{}
	result *effect.CompiledEffect
	err    error
}

var _ effect.Task = &manualTask{}

func newManualTask() *manualTask {
	return &manualTask{done: make(chan struct{})}
}

func (t *manualTask) complete(result *effect.CompiledEffect, err error) {
	t.mu.Lock()
	t.result, t.err = result, err
	t.mu.Unlock()
	close(t.done)
}

func (t *manualTask) IsCompleted() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *manualTask) IsFaulted() bool { return t.IsCompleted() && t.Err() != nil }

func (t *manualTask) Result() *effect.CompiledEffect {
	if !t.IsCompleted() {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

func (t *manualTask) Err() error {
	if !t.IsCompleted() {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *manualTask) Wait() (*effect.CompiledEffect, error) {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

// testCompiler caches compiled effects by name and parameters. Failures are not cached.
type testCompiler struct {
	mu      sync.Mutex
	cache   map[string]*effect.CompiledEffect
	invalid map[*effect.CompiledEffect]bool
	fail    map[string]error
	pending map[string]*manualTask
	panics  map[string]bool
	calls   []string
}

var _ effect.Compiler = &testCompiler{}

func newTestCompiler() *testCompiler {
	return &testCompiler{
		cache:   make(map[string]*effect.CompiledEffect),
		invalid: make(map[*effect.CompiledEffect]bool),
		fail:    make(map[string]error),
		pending: make(map[string]*manualTask),
		panics:  make(map[string]bool),
	}
}

func (c *testCompiler) Compile(name string, params *effect.ParameterSet) effect.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := name + "|" + params.String()
	c.calls = append(c.calls, key)

	if c.panics[name] {
		panic("backend crashed")
	}
	if task, ok := c.pending[name]; ok {
		delete(c.pending, name)
		return task
	}
	if err, ok := c.fail[name]; ok {
		return effect.NewCompletedTask(nil, err)
	}
	e, ok := c.cache[key]
	if !ok {
		e = testEffect(key)
		e.Parameters = params.Clone()
		c.cache[key] = e
	}
	return effect.NewCompletedTask(e, nil)
}

func (c *testCompiler) IsValid(e *effect.CompiledEffect) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.invalid[e]
}

// reload marks every cached permutation of an effect as stale.
func (c *testCompiler) reload(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.cache {
		if strings.HasPrefix(key, name+"|") {
			c.invalid[e] = true
			delete(c.cache, key)
		}
	}
}

func (c *testCompiler) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// testClock is a manually advanced clock.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// drawable records one non-indexed draw of three vertices.
type drawable struct{}

func (drawable) Draw(cl gpu.CommandList) { cl.Draw(3, 1) }

// testFeature is a plain root feature recording its Draw ranges.
type testFeature struct {
	*RootRenderFeatureBase
	draws    [][2]int
	extracts int
}

func newTestFeature(objectType ObjectType, selectors ...RenderStageSelector) *testFeature {
	f := &testFeature{RootRenderFeatureBase: NewRootRenderFeatureBase(objectType)}
	f.RenderStageSelectors = append(f.RenderStageSelectors, selectors...)
	return f
}

func (f *testFeature) Extract() { f.extracts++ }

func (f *testFeature) Draw(_ *RenderDrawContext, _ *RenderView, _ *RenderViewStage, start, end int) {
	f.draws = append(f.draws, [2]int{start, end})
}

// harness wires a render system with one stage, one view and one visibility group.
type harness struct {
	t        *testing.T
	device   *headless.Device
	compiler *testCompiler
	clock    *testClock
	rs       *RenderSystem
	stage    *RenderStage
	view     *RenderView
	group    *VisibilityGroup
	cl       gpu.CommandList
}

func newHarness(t *testing.T, opts ...RenderSystemBuilderOption) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		device:   headless.NewDevice(),
		compiler: newTestCompiler(),
		clock:    &testClock{now: time.Unix(1000, 0)},
	}
	opts = append([]RenderSystemBuilderOption{WithClock(h.clock.Now)}, opts...)
	rs, err := NewRenderSystem(h.device, h.compiler, opts...)
	require.NoError(t, err)
	h.rs = rs

	h.stage = NewRenderStage("Opaque", "")
	require.NoError(t, rs.AddRenderStage(h.stage))

	h.view = NewRenderView("main")
	h.view.CullingMode = CullingModeNone
	h.view.AddRenderStage(h.stage)
	rs.AddView(h.view)

	h.group = NewVisibilityGroup(rs)
	h.cl = h.device.NewCommandList()
	return h
}

// mainSelector activates the harness stage with the given effect for every group.
func (h *harness) mainSelector(effectName string) RenderStageSelector {
	return &SimpleGroupToRenderStageSelector{
		RenderGroup: RenderGroupMaskAll,
		RenderStage: h.stage,
		EffectName:  effectName,
	}
}

func (h *harness) addObject(objectType ObjectType) *RenderObject {
	obj := NewRenderObject(objectType, drawable{})
	h.group.AddRenderObject(obj)
	return obj
}

// frame runs Reset, Collect, Extract, Prepare and Draw of every (view, stage) pair.
func (h *harness) frame() {
	h.t.Helper()
	rs := h.rs
	rs.Reset()
	ctx := rs.NewDrawContext(h.cl)
	rs.Collect(ctx)
	for _, view := range rs.Views {
		h.group.Collect(view)
	}
	rs.Extract(ctx)
	require.NoError(h.t, rs.Prepare(ctx))
	for _, view := range rs.Views {
		for _, viewStage := range view.RenderStages {
			require.NoError(h.t, rs.Draw(ctx, view, viewStage.RenderStage))
		}
	}
	require.NoError(h.t, h.cl.Flush())
}

// submitted returns the commands of the last frame and clears the device log.
func (h *harness) submitted() []headless.Command {
	cmds := h.device.Submitted()
	h.device.ResetSubmitted()
	return cmds
}

func countKind(cmds []headless.Command, kind headless.CommandKind) int {
	n := 0
	for _, c := range cmds {
		if c.Kind == kind {
			n++
		}
	}
	return n
}
