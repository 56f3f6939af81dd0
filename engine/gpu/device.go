// Package gpu defines the graphics-device collaborator consumed by the frame pipeline.
// The pipeline only ever talks to these types. Concrete backends (headless, webgpu)
// live in sub-packages and attach their native handles through the Native fields.
package gpu

import (
	"github.com/pkg/errors"
)

var (
	// ErrPoolExhausted is returned when a frame-scoped pool runs out of space.
	ErrPoolExhausted = errors.New("gpu: pool exhausted")

	// ErrNilLayout is returned when a resource group is prepared without a layout.
	ErrNilLayout = errors.New("gpu: nil resource group layout")
)

// BufferUsage is a bit set describing how a buffer may be bound.
type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageCopyDst
)

// BufferDescription describes a buffer to create.
type BufferDescription struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

// Buffer is a device buffer. Native holds the backend handle.
type Buffer struct {
	Label  string
	Size   uint64
	Usage  BufferUsage
	Native any
}

// Device is the resource-creation service the pipeline depends on. Implementations must be
// safe for concurrent use: Prepare may create pipeline states from several workers.
type Device interface {
	// CreateDescriptorSetLayout creates a device layout object from a builder.
	//
	// Parameters:
	//   - builder: the bindings making up the layout
	//
	// Returns:
	//   - *DescriptorSetLayout: the created layout
	//   - error: an error if the backend rejected the layout
	CreateDescriptorSetLayout(builder *DescriptorSetLayoutBuilder) (*DescriptorSetLayout, error)

	// CreatePipelineState compiles a complete pipeline state object.
	//
	// Parameters:
	//   - desc: the full pipeline description (shaders, root signature, fixed-function state, outputs)
	//
	// Returns:
	//   - *PipelineState: the created pipeline state
	//   - error: an error if the backend could not create the pipeline
	CreatePipelineState(desc *PipelineStateDescription) (*PipelineState, error)

	// CreateBuffer creates a device buffer.
	//
	// Parameters:
	//   - desc: the size, usage and label of the buffer
	//
	// Returns:
	//   - *Buffer: the created buffer
	//   - error: an error if the allocation failed
	CreateBuffer(desc BufferDescription) (*Buffer, error)

	// WriteBuffer uploads data into a buffer at the given byte offset.
	//
	// Parameters:
	//   - buf: the destination buffer
	//   - offset: the destination byte offset
	//   - data: the bytes to upload
	//
	// Returns:
	//   - error: an error if the upload could not be queued
	WriteBuffer(buf *Buffer, offset uint64, data []byte) error

	// NewCommandList returns a command list recording into the device's current frame.
	//
	// Returns:
	//   - CommandList: a command list ready for recording
	NewCommandList() CommandList
}
