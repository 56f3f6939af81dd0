package gpu

const (
	// DefaultBufferPoolSize is the per-frame constant buffer capacity in bytes.
	DefaultBufferPoolSize = 4 << 20

	// DefaultConstantBufferAlignment matches minUniformBufferOffsetAlignment of WebGPU.
	DefaultConstantBufferAlignment = 256
)

// BufferPoolBuilderOption is a functional option used to configure a BufferPool during construction.
type BufferPoolBuilderOption func(p *BufferPool, size *uint64)

// WithBufferPoolSize sets the capacity of the frame constant buffer.
//
// Parameters:
//   - size: the capacity in bytes
//
// Returns:
//   - BufferPoolBuilderOption: a function that sets the pool capacity
func WithBufferPoolSize(size uint64) BufferPoolBuilderOption {
	return func(_ *BufferPool, s *uint64) {
		if size > 0 {
			*s = size
		}
	}
}

// WithConstantBufferAlignment sets the offset alignment of every allocation.
//
// Parameters:
//   - alignment: a power of two
//
// Returns:
//   - BufferPoolBuilderOption: a function that sets the alignment
func WithConstantBufferAlignment(alignment uint64) BufferPoolBuilderOption {
	return func(p *BufferPool, _ *uint64) {
		if alignment > 0 && alignment&(alignment-1) == 0 {
			p.alignment = alignment
		}
	}
}
