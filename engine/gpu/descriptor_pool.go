package gpu

import (
	"sync"

	"github.com/pkg/errors"
)

const descriptorChunkSize = 256

// BoundResource is one slot of a descriptor set.
type BoundResource struct {
	Buffer *Buffer
	Offset uint64
	Size   uint64
	// Texture and Sampler carry backend handles for texture and sampler bindings.
	Texture any
	Sampler any
}

// DescriptorSet is a frame-scoped set of bound resources laid out by a DescriptorSetLayout.
type DescriptorSet struct {
	Layout    *DescriptorSetLayout
	Resources []BoundResource
}

// SetBuffer binds a buffer range to the slot at index.
func (d *DescriptorSet) SetBuffer(index int, buf *Buffer, offset, size uint64) {
	d.Resources[index] = BoundResource{Buffer: buf, Offset: offset, Size: size}
}

// SetTexture binds a backend texture view to the slot at index.
func (d *DescriptorSet) SetTexture(index int, texture any) {
	d.Resources[index].Texture = texture
}

// SetSampler binds a backend sampler to the slot at index.
func (d *DescriptorSet) SetSampler(index int, sampler any) {
	d.Resources[index].Sampler = sampler
}

// DescriptorPool hands out descriptor sets for one frame. Sets are stored in fixed-size chunks
// so previously returned pointers stay valid while the pool grows. Reset recycles everything.
type DescriptorPool struct {
	mu       *sync.Mutex
	chunks   [][]DescriptorSet
	used     int
	capacity int
}

// NewDescriptorPool creates a pool.
//
// Parameters:
//   - capacity: the maximum number of sets per frame, 0 for unbounded
//
// Returns:
//   - *DescriptorPool: the pool
func NewDescriptorPool(capacity int) *DescriptorPool {
	return &DescriptorPool{
		mu:       &sync.Mutex{},
		capacity: capacity,
	}
}

// Allocate returns a fresh descriptor set for the layout. Safe for concurrent use.
//
// Parameters:
//   - layout: the layout of the set
//
// Returns:
//   - *DescriptorSet: the set, with one empty slot per layout entry
//   - error: ErrPoolExhausted when the capacity is reached
func (p *DescriptorPool) Allocate(layout *DescriptorSetLayout) (*DescriptorSet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.capacity > 0 && p.used >= p.capacity {
		return nil, errors.Wrapf(ErrPoolExhausted, "descriptor pool capacity %d", p.capacity)
	}

	chunk, slot := p.used/descriptorChunkSize, p.used%descriptorChunkSize
	if chunk == len(p.chunks) {
		p.chunks = append(p.chunks, make([]DescriptorSet, descriptorChunkSize))
	}
	p.used++

	set := &p.chunks[chunk][slot]
	set.Layout = layout
	count := 0
	if layout != nil {
		count = len(layout.Entries)
	}
	if cap(set.Resources) >= count {
		set.Resources = set.Resources[:count]
		clear(set.Resources)
	} else {
		set.Resources = make([]BoundResource, count)
	}
	return set, nil
}

// Used returns the number of sets handed out since the last Reset.
func (p *DescriptorPool) Used() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used
}

// Reset recycles every set. Sets returned before the reset must no longer be used.
func (p *DescriptorPool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.used = 0
}
