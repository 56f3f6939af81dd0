package game_object

import (
	"github.com/Carmen-Shannon/oxy-pipeline/engine/model"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/rendering"
	"github.com/go-gl/mathgl/mgl32"
)

// GameObjectBuilderOption is a functional option for configuring a GameObject during construction.
type GameObjectBuilderOption func(*gameObject)

// WithID sets the ID of the GameObject.
//
// Parameters:
//   - id: identifier for the GameObject
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the ID
func WithID(id uint64) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.id = id
	}
}

// WithEnabled sets whether the GameObject is enabled for rendering.
//
// Parameters:
//   - enabled: true to render the object, false to skip it
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the Enabled state
func WithEnabled(enabled bool) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.enabled = enabled
	}
}

// WithModel sets the Model for this GameObject.
//
// Parameters:
//   - m: the Model to associate
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the Model
func WithModel(m model.Model) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.mdl = m
	}
}

// WithRenderGroup sets the render group of the object's render object.
//
// Parameters:
//   - group: the group, matched against view culling masks and stage selectors
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the render group
func WithRenderGroup(group rendering.RenderGroup) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.group = group
	}
}

// WithPosition sets the initial world position.
//
// Parameters:
//   - position: the position
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the position
func WithPosition(position mgl32.Vec3) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.position = position
	}
}

// WithRotation sets the initial euler rotation in radians.
//
// Parameters:
//   - rotation: rotation around X, Y and Z
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the rotation
func WithRotation(rotation mgl32.Vec3) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.rotation = rotation
	}
}

// WithRotationSpeed sets the angular velocity applied by Update.
//
// Parameters:
//   - speed: radians per second around X, Y and Z
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the rotation speed
func WithRotationSpeed(speed mgl32.Vec3) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.rotationSpeed = speed
	}
}

// WithScale sets the initial per-axis scale.
//
// Parameters:
//   - scale: the scale factors
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the scale
func WithScale(scale mgl32.Vec3) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.scale = scale
	}
}
