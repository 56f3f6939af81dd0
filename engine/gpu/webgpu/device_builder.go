package webgpu

import (
	"github.com/cogentcore/webgpu/wgpu"
)

// DeviceBuilderOption is a function that configures a Device before its adapter is requested.
type DeviceBuilderOption func(*Device)

// WithSize sets the dimensions of the offscreen render targets.
//
// Parameters:
//   - width: the width in pixels
//   - height: the height in pixels
//
// Returns:
//   - DeviceBuilderOption: option function to apply
func WithSize(width, height uint32) DeviceBuilderOption {
	return func(d *Device) {
		if width > 0 && height > 0 {
			d.width, d.height = width, height
		}
	}
}

// WithForceFallbackAdapter requests the software fallback adapter, useful on machines without a GPU.
//
// Parameters:
//   - force: true to force the fallback adapter
//
// Returns:
//   - DeviceBuilderOption: option function to apply
func WithForceFallbackAdapter(force bool) DeviceBuilderOption {
	return func(d *Device) {
		d.forceFallbackAdapter = force
	}
}

// WithClearColor sets the color every render target is cleared to at the start of a frame.
//
// Parameters:
//   - r, g, b, a: the clear color components
//
// Returns:
//   - DeviceBuilderOption: option function to apply
func WithClearColor(r, g, b, a float64) DeviceBuilderOption {
	return func(d *Device) {
		d.clearColor = wgpu.Color{R: r, G: g, B: b, A: a}
	}
}
