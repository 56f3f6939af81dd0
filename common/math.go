package common

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// PerspectiveZO creates a right-handed perspective projection matrix that maps depth to
// the [0, 1] range used by WebGPU clip space.
//
// Parameters:
//   - fovY: vertical field of view in radians
//   - aspect: viewport aspect ratio (width/height)
//   - near: near clipping plane distance (must be > 0)
//   - far: far clipping plane distance (must be > near)
//
// Returns:
//   - mgl32.Mat4: the projection matrix (column-major)
func PerspectiveZO(fovY, aspect, near, far float32) mgl32.Mat4 {
	f := 1.0 / math32.Tan(fovY/2.0)
	var out mgl32.Mat4
	out[0] = f / aspect
	out[5] = f
	out[10] = far / (near - far)
	out[11] = -1.0
	out[14] = (near * far) / (near - far)
	return out
}

// ViewPlane returns the plane facing along the view direction of a right-handed view
// matrix. Signed distances to it grow with depth in front of the camera.
//
// Parameters:
//   - view: the world-to-view matrix
//
// Returns:
//   - Plane: the view plane in world space
func ViewPlane(view mgl32.Mat4) Plane {
	return Plane{
		Normal:   mgl32.Vec3{-view[2], -view[6], -view[10]},
		Distance: -view[14],
	}
}

// SortableFloat maps a float32 to a uint32 whose unsigned order matches the float order,
// negative values included. Positive floats get their sign bit set and negative floats
// have all bits flipped.
//
// Parameters:
//   - f: the value to convert
//
// Returns:
//   - uint32: an order-preserving integer key
func SortableFloat(f float32) uint32 {
	u := math32.Float32bits(f)
	mask := uint32(-int32(u>>31)) | 0x80000000
	return u ^ mask
}
