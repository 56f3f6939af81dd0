package rendering

import (
	"github.com/Carmen-Shannon/oxy-pipeline/common"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/rendering/node"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// CullingMode selects how a view culls objects.
type CullingMode int

const (
	// CullingModeNone keeps every object that passes the group and stage tests.
	CullingModeNone CullingMode = iota
	// CullingModeFrustum also rejects objects whose bounding box is outside the view frustum.
	CullingModeFrustum
)

// String returns the name of the culling mode.
func (c CullingMode) String() string {
	switch c {
	case CullingModeNone:
		return "none"
	case CullingModeFrustum:
		return "frustum"
	default:
		return "unknown"
	}
}

// RenderView is one camera, shadow or picking viewpoint.
type RenderView struct {
	Name string

	// Index is assigned when the view is added to a render system, -1 before.
	Index int

	View           mgl32.Mat4
	Projection     mgl32.Mat4
	ViewProjection mgl32.Mat4
	Frustum        common.Frustum

	NearClipPlane float32
	FarClipPlane  float32

	// MinimumDistance and MaximumDistance bound the visible objects along the view direction.
	// They are recomputed by every Collect.
	MinimumDistance float32
	MaximumDistance float32

	CullingMode CullingMode
	CullingMask RenderGroupMask

	// IgnoreDepthPlanes makes frustum culling skip the near and far planes.
	IgnoreDepthPlanes bool

	// RenderObjects is the post-culling object list of the current frame.
	RenderObjects []*RenderObject

	// Features holds one entry per root feature, indexed by feature index.
	Features []*RenderViewFeature

	// RenderStages lists the stages this view renders.
	RenderStages []*RenderViewStage
}

// RenderViewFeature is the per-view state of one root feature.
type RenderViewFeature struct {
	RootFeature     RootRenderFeature
	ViewObjectNodes []node.ViewObjectNodeReference
	RenderNodes     []node.RenderNodeReference

	// Layouts lists the per-view resource group layouts used by this view this frame.
	Layouts []*ViewResourceGroupLayout
}

func (f *RenderViewFeature) reset() {
	f.ViewObjectNodes = f.ViewObjectNodes[:0]
	f.RenderNodes = f.RenderNodes[:0]
	clear(f.Layouts)
	f.Layouts = f.Layouts[:0]
}

// RenderNodeFeatureReference is one drawable entry of a view stage.
type RenderNodeFeatureReference struct {
	RootRenderFeature RootRenderFeature
	RenderNode        node.RenderNodeReference
	RenderObject      *RenderObject
}

// RenderViewStage pairs a view with one of its stages.
type RenderViewStage struct {
	RenderStage *RenderStage

	// RenderNodes accumulates during Extract, grouped by feature index.
	RenderNodes []RenderNodeFeatureReference

	// SortedRenderNodes is produced by Prepare and consumed by Draw.
	SortedRenderNodes []RenderNodeFeatureReference

	sortKeys []SortKey
}

func (s *RenderViewStage) reset() {
	clear(s.RenderNodes)
	s.RenderNodes = s.RenderNodes[:0]
	clear(s.SortedRenderNodes)
	s.SortedRenderNodes = s.SortedRenderNodes[:0]
}

// NewRenderView creates a view with identity matrices, frustum culling and every group visible.
//
// Parameters:
//   - name: the view name used in logs
//
// Returns:
//   - *RenderView: the view
func NewRenderView(name string) *RenderView {
	v := &RenderView{
		Name:          name,
		Index:         -1,
		CullingMode:   CullingModeFrustum,
		CullingMask:   RenderGroupMaskAll,
		NearClipPlane: 0.1,
		FarClipPlane:  1000,
	}
	v.UpdateMatrices(mgl32.Ident4(), mgl32.Ident4())
	v.resetDistances()
	return v
}

// UpdateMatrices sets the view and projection and derives the combined matrix and frustum.
//
// Parameters:
//   - view: the world-to-view matrix
//   - projection: the view-to-clip matrix
func (v *RenderView) UpdateMatrices(view, projection mgl32.Mat4) {
	v.View = view
	v.Projection = projection
	v.ViewProjection = projection.Mul4(view)
	v.Frustum = common.ExtractFrustum(v.ViewProjection)
}

// SetPerspective sets a camera looking from eye to target with a WebGPU depth range projection.
//
// Parameters:
//   - eye: the camera position
//   - target: the point looked at
//   - fovY: the vertical field of view in radians
//   - aspect: the viewport aspect ratio
//   - near: the near clip distance
//   - far: the far clip distance
func (v *RenderView) SetPerspective(eye, target mgl32.Vec3, fovY, aspect, near, far float32) {
	v.NearClipPlane, v.FarClipPlane = near, far
	v.UpdateMatrices(mgl32.LookAtV(eye, target, mgl32.Vec3{0, 1, 0}), common.PerspectiveZO(fovY, aspect, near, far))
}

// AddRenderStage makes the view render a stage. Adding the same stage twice returns the
// existing view stage.
//
// Parameters:
//   - stage: the stage to render
//
// Returns:
//   - *RenderViewStage: the view stage
func (v *RenderView) AddRenderStage(stage *RenderStage) *RenderViewStage {
	if vs := v.RenderViewStage(stage); vs != nil {
		return vs
	}
	vs := &RenderViewStage{RenderStage: stage}
	v.RenderStages = append(v.RenderStages, vs)
	return vs
}

// RenderViewStage returns the view stage for a stage, or nil when the view does not render it.
func (v *RenderView) RenderViewStage(stage *RenderStage) *RenderViewStage {
	for _, vs := range v.RenderStages {
		if vs.RenderStage == stage {
			return vs
		}
	}
	return nil
}

// Eye returns the camera position encoded in the view matrix.
func (v *RenderView) Eye() mgl32.Vec3 {
	inv := v.View.Inv()
	return inv.Col(3).Vec3()
}

// ViewPlane returns the plane distances along the view direction are measured against.
func (v *RenderView) ViewPlane() common.Plane {
	return common.ViewPlane(v.View)
}

func (v *RenderView) resetDistances() {
	v.MinimumDistance = math32.Inf(1)
	v.MaximumDistance = math32.Inf(-1)
}

func (v *RenderView) includeDistances(box common.BoundingBox) {
	near, far := box.DistanceRange(v.ViewPlane())
	v.MinimumDistance = math32.Min(v.MinimumDistance, near)
	v.MaximumDistance = math32.Max(v.MaximumDistance, far)
}

func (v *RenderView) reset() {
	clear(v.RenderObjects)
	v.RenderObjects = v.RenderObjects[:0]
	for _, f := range v.Features {
		f.reset()
	}
	for _, s := range v.RenderStages {
		s.reset()
	}
	v.resetDistances()
}
