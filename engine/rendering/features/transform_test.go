package features

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-pipeline/engine/effect"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/effect/shader"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/gpu/headless"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/rendering"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const meshEffect = `//@oxy:include transform
struct DrawData {
    world: mat4x4f,
    worldViewProjection: mat4x4f,
    tint: vec4f,
}

struct VertexInput {
    @location(0) position: vec3f,
}

struct VertexOutput {
    @builtin(position) clip: vec4f,
}

//@oxy:group 2 PerDraw
@group(2) @binding(0) var<uniform> draw: DrawData;

@vertex
fn vs_main(in: VertexInput) -> VertexOutput {
    var out: VertexOutput;
    out.clip = draw.worldViewProjection * vec4f(in.position, 1.0);
    return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4f {
    return draw.tint * frame.time;
}
`

type placed struct {
	world mgl32.Mat4
}

func (p placed) WorldMatrix() mgl32.Mat4 { return p.world }

type scene struct {
	rs        *rendering.RenderSystem
	view      *rendering.RenderView
	root      *rendering.RootEffectRenderFeature
	transform *TransformRenderFeature
	group     *rendering.VisibilityGroup
	device    *headless.Device
}

func newScene(t *testing.T) *scene {
	t.Helper()
	lib := shader.NewLibrary(shader.WithSource("transform", TransformSource), shader.WithSource("mesh", meshEffect))
	device := headless.NewDevice()
	rs, err := rendering.NewRenderSystem(device, effect.NewCachedCompiler(shader.NewBackend(lib)),
		rendering.WithCompileMode(rendering.CompileModeSync))
	require.NoError(t, err)

	stage := rendering.NewRenderStage("Opaque", "Main")
	require.NoError(t, rs.AddRenderStage(stage))

	view := rendering.NewRenderView("main")
	view.CullingMode = rendering.CullingModeNone
	view.SetPerspective(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{}, mgl32.DegToRad(60), 1, 0.1, 100)
	view.AddRenderStage(stage)
	rs.AddView(view)

	transform := NewTransformRenderFeature()
	root := rendering.NewRootEffectRenderFeature("mesh",
		rendering.WithSubRenderFeatures(transform),
		rendering.WithRenderStageSelectors(&rendering.SimpleGroupToRenderStageSelector{
			RenderGroup: rendering.RenderGroupMaskAll,
			RenderStage: stage,
			EffectName:  "mesh",
		}))
	require.NoError(t, rs.AddRenderFeature(root))

	return &scene{
		rs:        rs,
		view:      view,
		root:      root,
		transform: transform,
		group:     rendering.NewVisibilityGroup(rs),
		device:    device,
	}
}

func (s *scene) prepare(t *testing.T, elapsed time.Duration) {
	t.Helper()
	s.rs.Reset()
	ctx := s.rs.NewDrawContext(s.device.NewCommandList())
	ctx.Time = elapsed
	ctx.DeltaTime = 16 * time.Millisecond
	s.rs.Collect(ctx)
	s.group.Collect(s.view)
	s.rs.Extract(ctx)
	require.NoError(t, s.rs.Prepare(ctx))
}

func readFloats(data []byte, offset, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		at := offset + i*4
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[at : at+4]))
	}
	return out
}

func assertFloats(t *testing.T, want, got []float32) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-4, "component %d", i)
	}
}

func TestTransformWritesDrawConstants(t *testing.T) {
	s := newScene(t)
	world := mgl32.Translate3D(1, 2, 3).Mul4(mgl32.Scale3D(2, 2, 2))
	s.group.AddRenderObject(rendering.NewRenderObject("mesh", placed{world: world}))

	s.prepare(t, time.Second)

	require.Len(t, s.root.RenderNodes, 1)
	rn := s.root.RenderNodes[0]
	require.NotNil(t, rn.Resources, "the node was prepared")
	data := rn.Resources.ConstantBuffer.Data

	assertFloats(t, world[:], readFloats(data, 0, 16))
	wvp := s.view.ViewProjection.Mul4(world)
	assertFloats(t, wvp[:], readFloats(data, 64, 16))
}

func TestTransformWritesFrameAndViewConstants(t *testing.T) {
	s := newScene(t)
	s.group.AddRenderObject(rendering.NewRenderObject("mesh", placed{world: mgl32.Ident4()}))

	s.prepare(t, 1500*time.Millisecond)

	require.Len(t, s.root.FrameLayouts, 1)
	frame := s.root.FrameLayouts[0].Entry.Resources.ConstantBuffer.Data
	assertFloats(t, []float32{1.5, 0.016}, readFloats(frame, 0, 2))

	layouts := s.view.Features[s.root.Index].Layouts
	require.Len(t, layouts, 1)
	data := layouts[0].Entries[s.view.Index].Resources.ConstantBuffer.Data
	assertFloats(t, s.view.View[:], readFloats(data, 0, 16))
	assertFloats(t, s.view.ViewProjection[:], readFloats(data, 64, 16))
	assertFloats(t, []float32{0, 0, 5}, readFloats(data, 128, 3))
}

func TestWorldMatrixFallsBackToBoundingBoxCenter(t *testing.T) {
	obj := rendering.NewRenderObject("mesh", nil)
	obj.BoundingBox.Center = mgl32.Vec3{4, 5, 6}
	assert.Equal(t, mgl32.Translate3D(4, 5, 6), WorldMatrixOf(obj))

	world := mgl32.Scale3D(3, 3, 3)
	assert.Equal(t, world, WorldMatrixOf(rendering.NewRenderObject("mesh", placed{world: world})))
}

func TestTransformRequiresRootFeature(t *testing.T) {
	assert.ErrorIs(t, NewTransformRenderFeature().Initialize(), ErrNotAttached)
}
