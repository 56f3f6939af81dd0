package rendering

import "github.com/pkg/errors"

var (
	// ErrViewStageNotFound is returned by Draw for a (view, stage) pair that was never added to the view.
	ErrViewStageNotFound = errors.New("rendering: requested render view and render stage combination does not exist")

	// ErrTooManyEffectSlots is returned when a feature would need more effect permutation slots than allowed.
	ErrTooManyEffectSlots = errors.New("rendering: too many effect permutation slots")

	// ErrFeatureAlreadyRegistered is returned when a second root feature claims an object type.
	ErrFeatureAlreadyRegistered = errors.New("rendering: a render feature is already registered for this object type")

	// ErrTooManyRenderFeatures is returned when a feature would not fit the 8-bit feature sort key.
	ErrTooManyRenderFeatures = errors.New("rendering: too many render features")

	// ErrFeatureNotRegistered is returned when removing a feature the render system does not own.
	ErrFeatureNotRegistered = errors.New("rendering: render feature is not registered")
)
