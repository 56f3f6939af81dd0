package camera

import (
	"github.com/go-gl/mathgl/mgl32"
)

// CameraController positions a camera. It supports orbiting around a target and panning the
// target and eye together along the camera's local axes.
type CameraController interface {
	orbitCameraController
	planarCameraController

	// Position returns the eye position.
	//
	// Returns:
	//   - mgl32.Vec3: the eye position in world space
	Position() mgl32.Vec3

	// Target returns the point the camera looks at.
	//
	// Returns:
	//   - mgl32.Vec3: the target in world space
	Target() mgl32.Vec3

	// SetTarget moves the target and recomputes the eye from the orbit coordinates.
	//
	// Parameters:
	//   - target: the new target
	SetTarget(target mgl32.Vec3)

	// Zoom moves the eye toward the target by delta times the zoom speed, clamped to the radius bounds.
	//
	// Parameters:
	//   - delta: positive to zoom in
	Zoom(delta float32)
}

type orbitCameraController interface {
	// Orbit rotates the eye around the target.
	//
	// Parameters:
	//   - azimuth: the horizontal angle delta in radians
	//   - elevation: the vertical angle delta in radians, clamped to the elevation bounds
	Orbit(azimuth, elevation float32)

	// Radius returns the eye distance from the target.
	Radius() float32

	// SetRadius sets the eye distance, clamped to the radius bounds.
	SetRadius(radius float32)

	// Azimuth returns the horizontal orbit angle in radians.
	Azimuth() float32

	// SetAzimuth sets the horizontal orbit angle in radians.
	SetAzimuth(azimuth float32)

	// Elevation returns the vertical orbit angle in radians.
	Elevation() float32

	// SetElevation sets the vertical orbit angle, clamped to the elevation bounds.
	SetElevation(elevation float32)
}

type planarCameraController interface {
	// Pan translates eye and target along the right, up and forward axes, scaled by the pan speed.
	//
	// Parameters:
	//   - right: the distance along the right axis
	//   - up: the distance along the up axis
	//   - forward: the distance along the view direction
	Pan(right, up, forward float32)
}
