package game_object

import (
	"context"
	"testing"

	"github.com/Carmen-Shannon/oxy-pipeline/engine/effect"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/effect/shader"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/gpu"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/gpu/headless"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/model"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/rendering"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/rendering/compositor"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/rendering/plugin"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertVec3(t *testing.T, want, got mgl32.Vec3) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-4, "component %d", i)
	}
}

func TestWorldMatrixComposesTransform(t *testing.T) {
	obj := NewGameObject(
		WithPosition(mgl32.Vec3{1, 2, 3}),
		WithRotation(mgl32.Vec3{0, math32.Pi / 2, 0}),
		WithScale(mgl32.Vec3{2, 2, 2}),
	)

	// +X scaled to 2, rotated a quarter turn around Y to -Z, then translated.
	p := obj.WorldMatrix().Mul4x1(mgl32.Vec4{1, 0, 0, 1}).Vec3()
	assertVec3(t, mgl32.Vec3{1, 2, 1}, p)

	obj.SetPosition(mgl32.Vec3{})
	obj.SetScale(mgl32.Vec3{1, 1, 1})
	obj.SetRotation(mgl32.Vec3{})
	assert.Equal(t, mgl32.Ident4(), obj.WorldMatrix())
}

func TestUpdateAppliesRotationSpeed(t *testing.T) {
	obj := NewGameObject(WithRotationSpeed(mgl32.Vec3{0, 2, 0}))
	obj.Update(0.5)
	assertVec3(t, mgl32.Vec3{0, 1, 0}, obj.Rotation())

	obj.SetRotationSpeed(mgl32.Vec3{})
	obj.Update(10)
	assertVec3(t, mgl32.Vec3{0, 1, 0}, obj.Rotation())
}

func TestSyncUpdatesRenderObject(t *testing.T) {
	obj := NewGameObject(WithID(7), WithRenderGroup(3))
	ro := obj.RenderObject()
	assert.Same(t, obj, ro.Source)
	assert.Equal(t, ObjectType, ro.Type)
	assert.Equal(t, rendering.RenderGroup(3), ro.RenderGroup)
	assert.Equal(t, uint64(7), obj.ID())
	assert.False(t, ro.Enabled, "an object without a model is not drawn")

	obj.SetModel(model.NewCube(2))
	obj.SetPosition(mgl32.Vec3{10, 0, 0})
	obj.SetScale(mgl32.Vec3{3, 1, 1})
	assert.True(t, ro.BoundingBox.IsEmpty(), "bounds only change in Sync")

	obj.Sync()
	assert.True(t, ro.Enabled)
	assertVec3(t, mgl32.Vec3{10, 0, 0}, ro.BoundingBox.Center)
	assertVec3(t, mgl32.Vec3{3, 1, 1}, ro.BoundingBox.Extent)

	obj.SetEnabled(false)
	assert.True(t, ro.Enabled)
	obj.Sync()
	assert.False(t, ro.Enabled)
	assert.False(t, obj.Enabled())
}

func newCompositor(t *testing.T, device gpu.Device) *compositor.Compositor {
	t.Helper()
	cfg := compositor.DefaultConfig()
	cfg.CompileMode = rendering.CompileModeSync.String()
	lib := shader.NewLibrary(LibraryOptions()...)
	c, err := compositor.NewCompositor(device, effect.NewCachedCompiler(shader.NewBackend(lib)),
		compositor.WithConfig(cfg),
		compositor.WithPipelinePlugins(
			plugin.WithPlugin(PluginType, NewPlugin("Opaque")),
			plugin.WithDefaultPlugin(ObjectType, PluginType),
		))
	require.NoError(t, err)
	c.MainView().SetPerspective(mgl32.Vec3{0, 0, 10}, mgl32.Vec3{}, mgl32.DegToRad(60), 1, 0.1, 100)
	return c
}

func TestGameObjectsRenderThroughCompositor(t *testing.T) {
	device := headless.NewDevice()
	c := newCompositor(t, device)

	cube := model.NewCube(1)
	require.NoError(t, cube.Upload(device))

	visible := NewGameObject(WithModel(cube))
	culled := NewGameObject(WithModel(cube), WithPosition(mgl32.Vec3{0, 0, 50}))
	disabled := NewGameObject(WithModel(cube), WithEnabled(false))
	for _, obj := range []GameObject{visible, culled, disabled} {
		c.AddRenderObject(obj.RenderObject())
	}
	assert.True(t, c.PluginManager().IsLoaded(PluginType))
	assert.True(t, visible.RenderObject().IsRegistered())

	require.NoError(t, c.RenderFrame(context.Background()))

	var pipeline *gpu.PipelineState
	draws := 0
	for _, cmd := range device.Submitted() {
		switch cmd.Kind {
		case headless.CommandSetPipelineState:
			pipeline = cmd.PipelineState
		case headless.CommandDrawIndexed:
			draws++
			assert.Equal(t, uint32(36), cmd.Count)
		}
	}
	assert.Equal(t, 1, draws)
	require.NotNil(t, pipeline)
	require.Len(t, pipeline.Description.VertexLayouts, 1)
	assert.Equal(t, uint64(model.GPUVertexSize), pipeline.Description.VertexLayouts[0].ArrayStride)
	assert.Len(t, pipeline.Description.VertexLayouts[0].Attributes, 4)
}
