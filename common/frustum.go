package common

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Plane represents a plane in 3D space using the equation: ax + by + cz + d = 0
// where (a, b, c) is the normal and d is the distance from origin.
type Plane struct {
	Normal   mgl32.Vec3
	Distance float32
}

// DistanceTo returns the signed distance from the plane to a point. Positive values
// lie on the side the normal points to.
//
// Parameters:
//   - p: the point to measure
//
// Returns:
//   - float32: the signed distance
func (p Plane) DistanceTo(point mgl32.Vec3) float32 {
	return p.Normal.Dot(point) + p.Distance
}

// Frustum represents the six planes of a view frustum for culling.
// Planes are oriented so that positive half-space is inside the frustum.
type Frustum struct {
	Planes [6]Plane // Left, Right, Bottom, Top, Near, Far
}

// FrustumPlane indices for clarity
const (
	FrustumLeft   = 0
	FrustumRight  = 1
	FrustumBottom = 2
	FrustumTop    = 3
	FrustumNear   = 4
	FrustumFar    = 5
)

// ExtractFrustum extracts frustum planes from a view-projection matrix using the
// Gribb/Hartmann method. The projection is expected to map depth to [0, 1] as
// WebGPU clip space does (see PerspectiveZO), so the near plane is row 2 alone.
//
// Reference: https://www8.cs.umu.se/kurser/5DV051/HT12/lab/plane_extraction.pdf
//
// Parameters:
//   - viewProj: the combined Projection * View matrix (column-major)
//
// Returns:
//   - Frustum: the extracted frustum with normalized planes
func ExtractFrustum(viewProj mgl32.Mat4) Frustum {
	var f Frustum

	row := func(i int) mgl32.Vec4 { return viewProj.Row(i) }
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)

	f.Planes[FrustumLeft] = planeFromRow(r3.Add(r0))
	f.Planes[FrustumRight] = planeFromRow(r3.Sub(r0))
	f.Planes[FrustumBottom] = planeFromRow(r3.Add(r1))
	f.Planes[FrustumTop] = planeFromRow(r3.Sub(r1))
	f.Planes[FrustumNear] = planeFromRow(r2)
	f.Planes[FrustumFar] = planeFromRow(r3.Sub(r2))

	return f
}

// planeFromRow builds a normalized plane from a combined matrix row (a, b, c, d).
func planeFromRow(r mgl32.Vec4) Plane {
	p := Plane{Normal: r.Vec3(), Distance: r.W()}
	length := p.Normal.Len()
	if length > 0 {
		invLen := 1.0 / length
		p.Normal = p.Normal.Mul(invLen)
		p.Distance *= invLen
	}
	return p
}

// Contains reports whether an axis-aligned box is inside or intersecting the frustum.
// A box is rejected only when it lies entirely on the negative side of one plane.
//
// Parameters:
//   - box: the world-space bounding box to test
//
// Returns:
//   - bool: false if the box is fully outside, true otherwise
func (f *Frustum) Contains(box BoundingBox) bool {
	return f.containsPlanes(box, len(f.Planes))
}

// ContainsIgnoringDepth is Contains without the near and far planes. Shadow views use it so
// casters between the light and the near plane still reach the depth pass.
//
// Parameters:
//   - box: the world-space bounding box to test
//
// Returns:
//   - bool: false if the box is fully outside one of the four side planes, true otherwise
func (f *Frustum) ContainsIgnoringDepth(box BoundingBox) bool {
	return f.containsPlanes(box, FrustumNear)
}

// containsPlanes tests the box against the first n planes.
func (f *Frustum) containsPlanes(box BoundingBox, n int) bool {
	for i := range n {
		p := &f.Planes[i]
		radius := math32.Abs(p.Normal[0])*box.Extent[0] +
			math32.Abs(p.Normal[1])*box.Extent[1] +
			math32.Abs(p.Normal[2])*box.Extent[2]
		if p.DistanceTo(box.Center) < -radius {
			return false
		}
	}
	return true
}
