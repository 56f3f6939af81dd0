package common

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// BoundingBox is an axis-aligned box stored as a center and a half-size extent.
// A zero extent means the object has no meaningful bounds and is never culled.
type BoundingBox struct {
	Center mgl32.Vec3
	Extent mgl32.Vec3
}

// NewBoundingBoxFromMinMax builds a BoundingBox from its minimum and maximum corners.
//
// Parameters:
//   - minimum: the lowest corner on every axis
//   - maximum: the highest corner on every axis
//
// Returns:
//   - BoundingBox: the equivalent center/extent box
func NewBoundingBoxFromMinMax(minimum, maximum mgl32.Vec3) BoundingBox {
	return BoundingBox{
		Center: minimum.Add(maximum).Mul(0.5),
		Extent: maximum.Sub(minimum).Mul(0.5),
	}
}

// Minimum returns the lowest corner of the box.
func (b BoundingBox) Minimum() mgl32.Vec3 {
	return b.Center.Sub(b.Extent)
}

// Maximum returns the highest corner of the box.
func (b BoundingBox) Maximum() mgl32.Vec3 {
	return b.Center.Add(b.Extent)
}

// IsEmpty reports whether the box has a zero extent.
func (b BoundingBox) IsEmpty() bool {
	return b.Extent == mgl32.Vec3{}
}

// Transform returns the axis-aligned box enclosing this box after the given affine
// transform, using the component-wise absolute value of the rotation part.
//
// Reference: http://zeuxcg.org/2010/10/17/aabb-from-obb-with-component-wise-abs/
//
// Parameters:
//   - m: the world transform (column-major)
//
// Returns:
//   - BoundingBox: the transformed box
func (b BoundingBox) Transform(m mgl32.Mat4) BoundingBox {
	center := m.Mul4x1(b.Center.Vec4(1)).Vec3()
	var extent mgl32.Vec3
	for row := 0; row < 3; row++ {
		extent[row] = math32.Abs(m.At(row, 0))*b.Extent[0] +
			math32.Abs(m.At(row, 1))*b.Extent[1] +
			math32.Abs(m.At(row, 2))*b.Extent[2]
	}
	return BoundingBox{Center: center, Extent: extent}
}

// Merge returns the smallest box enclosing both boxes.
func (b BoundingBox) Merge(other BoundingBox) BoundingBox {
	lo, hi := b.Minimum(), b.Maximum()
	olo, ohi := other.Minimum(), other.Maximum()
	for i := 0; i < 3; i++ {
		lo[i] = math32.Min(lo[i], olo[i])
		hi[i] = math32.Max(hi[i], ohi[i])
	}
	return NewBoundingBoxFromMinMax(lo, hi)
}

// DistanceRange projects the box onto a plane and returns the signed distances of the
// nearest and farthest corners. Corners are picked per axis from the sign of the plane
// normal, so no corner enumeration is needed.
//
// Parameters:
//   - plane: the plane to measure against, typically a view plane
//
// Returns:
//   - near: the smallest signed distance of any corner
//   - far: the largest signed distance of any corner
func (b BoundingBox) DistanceRange(plane Plane) (near, far float32) {
	lo, hi := b.Minimum(), b.Maximum()
	var nearCorner, farCorner mgl32.Vec3
	for i := 0; i < 3; i++ {
		if plane.Normal[i] >= 0 {
			nearCorner[i], farCorner[i] = lo[i], hi[i]
		} else {
			nearCorner[i], farCorner[i] = hi[i], lo[i]
		}
	}
	return plane.DistanceTo(nearCorner), plane.DistanceTo(farCorner)
}
