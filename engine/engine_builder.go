package engine

import (
	"time"

	"github.com/Carmen-Shannon/oxy-pipeline/engine/camera"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithTickRate sets the engine tick rate in ticks per second.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second (default 60)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			fps = 60.0
		}
		e.engineTickRate = time.Duration(float64(time.Second) / fps)
	}
}

// WithRenderFrameLimit sets an optional render frame rate cap in frames per second.
// Pass 0 to uncap the render loop (default).
//
// Parameters:
//   - fps: maximum render frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			e.renderFrameLimit = 0
			return
		}
		e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
	}
}

// WithFrameCount stops the engine after n frames. Headless runs use it to render a fixed
// number of frames; 0 renders until Quit.
//
// Parameters:
//   - n: frames to render
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithFrameCount(n uint64) EngineBuilderOption {
	return func(e *engine) {
		e.frameCount = n
	}
}

// WithCamera attaches a camera updated before every frame. A camera without a render view is
// attached to the compositor's main view.
//
// Parameters:
//   - c: the camera
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithCamera(c camera.Camera) EngineBuilderOption {
	return func(e *engine) {
		e.camera = c
	}
}

// WithTickCallback registers the function called each engine tick.
//
// Parameters:
//   - callback: receives the delta time in seconds
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickCallback(callback func(deltaTime float32)) EngineBuilderOption {
	return func(e *engine) {
		e.tickCallback = callback
	}
}

// WithPreRenderCallback registers the function called on the render goroutine before each frame.
//
// Parameters:
//   - callback: receives the delta time in seconds
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithPreRenderCallback(callback func(deltaTime float32)) EngineBuilderOption {
	return func(e *engine) {
		e.preRenderCallback = callback
	}
}

// WithRenderCallback registers the function called after each rendered frame.
//
// Parameters:
//   - callback: receives the delta time in seconds
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderCallback(callback func(deltaTime float32)) EngineBuilderOption {
	return func(e *engine) {
		e.renderCallback = callback
	}
}
