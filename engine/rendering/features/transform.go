package features

import (
	_ "embed"

	"github.com/Carmen-Shannon/oxy-pipeline/engine/rendering"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/rendering/node"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// TransformSource is the WGSL include declaring the PerFrame and PerView groups the transform
// feature fills. Effects include it with `//@oxy:include transform` and declare `world` and
// `worldViewProjection` members in their PerDraw constant buffer.
//
//go:embed assets/transform.wgsl
var TransformSource string

// Constant buffer members written by TransformRenderFeature.
const (
	TimeMember                = "time"
	DeltaTimeMember           = "deltaTime"
	ViewMember                = "view"
	ViewProjectionMember      = "viewProjection"
	EyeMember                 = "eye"
	WorldMember               = "world"
	WorldViewProjectionMember = "worldViewProjection"
)

// ErrNotAttached is returned when a sub feature is initialized before being attached to a root feature.
var ErrNotAttached = errors.New("features: sub render feature is not attached to a root render feature")

// Transformable is implemented by object sources that carry their own world matrix.
type Transformable interface {
	WorldMatrix() mgl32.Mat4
}

var worldDefinition = node.NewPropertyDefinition[mgl32.Mat4]("World")

// TransformRenderFeature extracts world matrices and writes the frame, view and draw transform
// constants of every prepared render node.
type TransformRenderFeature struct {
	rendering.SubRenderFeatureBase

	// WorldKey is the per object node world matrix column.
	WorldKey node.PropertyKey[mgl32.Mat4]

	time                rendering.ConstantBufferOffsetReference
	deltaTime           rendering.ConstantBufferOffsetReference
	view                rendering.ConstantBufferOffsetReference
	viewProjection      rendering.ConstantBufferOffsetReference
	eye                 rendering.ConstantBufferOffsetReference
	world               rendering.ConstantBufferOffsetReference
	worldViewProjection rendering.ConstantBufferOffsetReference
}

var _ rendering.SubRenderFeature = &TransformRenderFeature{}

// NewTransformRenderFeature creates a transform sub feature.
//
// Returns:
//   - *TransformRenderFeature: the sub feature, to pass to rendering.WithSubRenderFeatures
func NewTransformRenderFeature() *TransformRenderFeature {
	return &TransformRenderFeature{}
}

func (t *TransformRenderFeature) Initialize() error {
	root := t.RootRenderFeature
	if root == nil {
		return ErrNotAttached
	}
	t.WorldKey = node.CreateKey(root.RenderData, node.DataTypeObject, worldDefinition, 1)

	t.time = root.CreateFrameCBufferOffsetSlot(TimeMember)
	t.deltaTime = root.CreateFrameCBufferOffsetSlot(DeltaTimeMember)
	t.view = root.CreateViewCBufferOffsetSlot(ViewMember)
	t.viewProjection = root.CreateViewCBufferOffsetSlot(ViewProjectionMember)
	t.eye = root.CreateViewCBufferOffsetSlot(EyeMember)
	t.world = root.CreateDrawCBufferOffsetSlot(WorldMember)
	t.worldViewProjection = root.CreateDrawCBufferOffsetSlot(WorldViewProjectionMember)
	return nil
}

// Extract copies the world matrix of every object node of the frame.
func (t *TransformRenderFeature) Extract() {
	root := t.RootRenderFeature
	worlds := node.GetData(root.RenderData, t.WorldKey)
	root.RenderSystem.Dispatcher().ForEach(len(root.ObjectNodes), func(i int) {
		worlds.Set(i, WorldMatrixOf(root.ObjectNodes[i].RenderObject))
	})
}

// Prepare writes Time into every PerFrame group, the view matrices into every PerView group,
// and World and WorldViewProjection into every PerDraw group.
func (t *TransformRenderFeature) Prepare(ctx *rendering.RenderDrawContext) error {
	root := t.RootRenderFeature
	rs := root.RenderSystem

	seconds := float32(ctx.Time.Seconds())
	delta := float32(ctx.DeltaTime.Seconds())
	for _, l := range root.FrameLayouts {
		group := &l.Entry.Resources
		group.WriteFloat32s(l.GetConstantBufferOffset(t.time), seconds)
		group.WriteFloat32s(l.GetConstantBufferOffset(t.deltaTime), delta)
	}

	for _, view := range rs.Views {
		if root.Index >= len(view.Features) {
			continue
		}
		eye := view.Eye()
		for _, l := range view.Features[root.Index].Layouts {
			group := &l.Entries[view.Index].Resources
			group.WriteFloat32s(l.GetConstantBufferOffset(t.view), view.View[:]...)
			group.WriteFloat32s(l.GetConstantBufferOffset(t.viewProjection), view.ViewProjection[:]...)
			group.WriteFloat32s(l.GetConstantBufferOffset(t.eye), eye[:]...)
		}
	}

	worlds := node.GetData(root.RenderData, t.WorldKey)
	rs.Dispatcher().ForEach(len(root.RenderNodes), func(i int) {
		rn := &root.RenderNodes[i]
		if !rn.EffectObjectNode.IsValid() || rn.Resources == nil || rn.RenderEffect.Reflection == nil {
			return
		}
		layout := rn.RenderEffect.Reflection.PerDrawLayout
		world := worlds.Get(root.ViewObjectNodes[rn.ViewObjectNode.Index].ObjectNode.Index)
		worldViewProjection := rn.RenderView.ViewProjection.Mul4(world)
		rn.Resources.WriteFloat32s(layout.GetConstantBufferOffset(t.world), world[:]...)
		rn.Resources.WriteFloat32s(layout.GetConstantBufferOffset(t.worldViewProjection), worldViewProjection[:]...)
	})
	return nil
}

// WorldMatrixOf returns the world matrix of an object: the source's own matrix when it is
// Transformable, otherwise a translation to the bounding box center.
//
// Parameters:
//   - obj: the render object
//
// Returns:
//   - mgl32.Mat4: the world matrix
func WorldMatrixOf(obj *rendering.RenderObject) mgl32.Mat4 {
	if src, ok := obj.Source.(Transformable); ok {
		return src.WorldMatrix()
	}
	c := obj.BoundingBox.Center
	return mgl32.Translate3D(c.X(), c.Y(), c.Z())
}
