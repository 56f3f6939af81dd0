package gpu

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

// BufferPoolAllocationType tells the pool how long an allocation is expected to be read.
type BufferPoolAllocationType int

const (
	// BufferPoolAllocationUsedOnce is read by a single draw (PerDraw data).
	BufferPoolAllocationUsedOnce BufferPoolAllocationType = iota
	// BufferPoolAllocationUsedMultipleTime is shared by many draws (PerFrame, PerView data).
	BufferPoolAllocationUsedMultipleTime
)

// BufferPoolAllocation is a range of the frame constant buffer. Data is the CPU staging view
// of the range; it is uploaded by Flush.
type BufferPoolAllocation struct {
	Buffer *Buffer
	Offset uint64
	Size   uint64
	Type   BufferPoolAllocationType
	Data   []byte
}

// IsValid reports whether the allocation holds a range.
func (a BufferPoolAllocation) IsValid() bool { return a.Buffer != nil }

// BufferPool is the frame-scoped constant-buffer allocator. Ranges are reserved with an atomic
// bump pointer so Prepare workers can allocate concurrently. Reset recycles the whole buffer.
type BufferPool struct {
	device    Device
	buffer    *Buffer
	staging   []byte
	alignment uint64
	used      atomic.Uint64
}

// NewBufferPool creates the pool and its device buffer.
//
// Parameters:
//   - device: the device creating the backing buffer
//   - opts: functional options (size, alignment)
//
// Returns:
//   - *BufferPool: the pool
//   - error: an error if the device buffer could not be created
func NewBufferPool(device Device, opts ...BufferPoolBuilderOption) (*BufferPool, error) {
	if device == nil {
		panic("gpu: buffer pool requires a device")
	}
	p := &BufferPool{
		device:    device,
		alignment: DefaultConstantBufferAlignment,
	}
	size := uint64(DefaultBufferPoolSize)
	for _, opt := range opts {
		opt(p, &size)
	}

	buf, err := device.CreateBuffer(BufferDescription{
		Label: "Frame Constant Buffer",
		Size:  size,
		Usage: BufferUsageUniform | BufferUsageCopyDst,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create frame constant buffer")
	}
	p.buffer = buf
	p.staging = make([]byte, size)
	return p, nil
}

// Allocate reserves an aligned range of at least size bytes.
//
// Parameters:
//   - size: the number of bytes needed
//   - allocType: how the range will be used
//
// Returns:
//   - BufferPoolAllocation: the reserved range, zeroed
//   - error: ErrPoolExhausted when the frame buffer is full
func (p *BufferPool) Allocate(size uint64, allocType BufferPoolAllocationType) (BufferPoolAllocation, error) {
	if size == 0 {
		return BufferPoolAllocation{}, nil
	}
	aligned := (size + p.alignment - 1) &^ (p.alignment - 1)
	end := p.used.Add(aligned)
	if end > uint64(len(p.staging)) {
		return BufferPoolAllocation{}, errors.Wrapf(ErrPoolExhausted, "buffer pool needs %d bytes, capacity %d", end, len(p.staging))
	}
	offset := end - aligned
	data := p.staging[offset : offset+size : offset+size]
	clear(data)
	return BufferPoolAllocation{
		Buffer: p.buffer,
		Offset: offset,
		Size:   size,
		Type:   allocType,
		Data:   data,
	}, nil
}

// Used returns the number of bytes reserved since the last Reset.
func (p *BufferPool) Used() uint64 {
	return min(p.used.Load(), uint64(len(p.staging)))
}

// Buffer returns the backing device buffer.
func (p *BufferPool) Buffer() *Buffer {
	return p.buffer
}

// Flush uploads every reserved range to the device buffer. Called once after Prepare.
//
// Returns:
//   - error: an error if the upload failed
func (p *BufferPool) Flush() error {
	used := p.Used()
	if used == 0 {
		return nil
	}
	return p.device.WriteBuffer(p.buffer, 0, p.staging[:used])
}

// Reset recycles the whole buffer for the next frame.
func (p *BufferPool) Reset() {
	p.used.Store(0)
}
