package gpu

import (
	"encoding/binary"
	"hash/fnv"
	"math"

	"github.com/pkg/errors"
)

// ConstantBufferMember is one named member of a constant buffer, with its WGSL layout offset.
type ConstantBufferMember struct {
	Name   string
	Offset int
	Size   int
}

// ConstantBufferDescription is the reflected layout of a resource group's constant buffer.
type ConstantBufferDescription struct {
	Name    string
	Binding uint32
	Size    uint64
	Members []ConstantBufferMember
}

// Hash returns the structural hash of the constant buffer layout, including member names
// since offsets are resolved by name.
func (c *ConstantBufferDescription) Hash() uint64 {
	if c == nil {
		return 0
	}
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], c.Size)
	h.Write(buf[:])
	for _, m := range c.Members {
		h.Write([]byte(m.Name))
		binary.LittleEndian.PutUint32(buf[:4], uint32(m.Offset))
		binary.LittleEndian.PutUint32(buf[4:], uint32(m.Size))
		h.Write(buf[:])
	}
	return h.Sum64()
}

// MemberOffset returns the byte offset of the named member, or -1 when absent.
func (c *ConstantBufferDescription) MemberOffset(name string) int {
	if c == nil {
		return -1
	}
	for _, m := range c.Members {
		if m.Name == name {
			return m.Offset
		}
	}
	return -1
}

// ResourceGroupLayout is a descriptor set layout plus the constant buffer bound inside it.
type ResourceGroupLayout struct {
	Name                string
	DescriptorSetLayout *DescriptorSetLayout
	ConstantBuffer      *ConstantBufferDescription
	// ConstantBufferSlot is the index of the constant buffer in the descriptor set, -1 when none.
	ConstantBufferSlot int
	Hash               uint64
}

// NewResourceGroupLayout creates the device descriptor set layout through the cache and
// computes the combined layout hash.
//
// Parameters:
//   - cache: the layout cache deduplicating device objects
//   - builder: the descriptor set bindings
//   - cbuffer: the constant buffer reflection, or nil
//
// Returns:
//   - *ResourceGroupLayout: the layout
//   - error: an error if the device rejected the layout
func NewResourceGroupLayout(cache *LayoutCache, builder *DescriptorSetLayoutBuilder, cbuffer *ConstantBufferDescription) (*ResourceGroupLayout, error) {
	dsl, err := cache.DescriptorSetLayout(builder)
	if err != nil {
		return nil, err
	}
	slot := -1
	if cbuffer != nil {
		slot = builder.IndexOf(cbuffer.Binding)
	}
	return &ResourceGroupLayout{
		Name:                builder.Name,
		DescriptorSetLayout: dsl,
		ConstantBuffer:      cbuffer,
		ConstantBufferSlot:  slot,
		Hash:                CombineHash(builder.Hash(), cbuffer.Hash()),
	}, nil
}

// ConstantBufferSize returns the size of the constant buffer, 0 when the layout has none.
func (l *ResourceGroupLayout) ConstantBufferSize() uint64 {
	if l == nil || l.ConstantBuffer == nil {
		return 0
	}
	return l.ConstantBuffer.Size
}

// ResourceGroup is a descriptor set plus its constant buffer range, valid for one frame.
type ResourceGroup struct {
	DescriptorSet  *DescriptorSet
	ConstantBuffer BufferPoolAllocation
}

// WriteFloat32s writes little-endian floats into the constant buffer at a byte offset.
// Negative offsets are ignored, matching unresolved constant buffer members.
//
// Parameters:
//   - offset: the member offset
//   - values: the values to write
func (g *ResourceGroup) WriteFloat32s(offset int, values ...float32) {
	if offset < 0 || g == nil {
		return
	}
	data := g.ConstantBuffer.Data
	for i, v := range values {
		at := offset + i*4
		if at+4 > len(data) {
			return
		}
		binary.LittleEndian.PutUint32(data[at:at+4], math.Float32bits(v))
	}
}

// WriteUint32s writes little-endian unsigned integers into the constant buffer.
//
// Parameters:
//   - offset: the member offset
//   - values: the values to write
func (g *ResourceGroup) WriteUint32s(offset int, values ...uint32) {
	if offset < 0 || g == nil {
		return
	}
	data := g.ConstantBuffer.Data
	for i, v := range values {
		at := offset + i*4
		if at+4 > len(data) {
			return
		}
		binary.LittleEndian.PutUint32(data[at:at+4], v)
	}
}

// ResourceGroupAllocator allocates resource groups from the frame-scoped pools.
type ResourceGroupAllocator struct {
	descriptorPool *DescriptorPool
	bufferPool     *BufferPool
}

// NewResourceGroupAllocator creates an allocator over the given pools.
//
// Parameters:
//   - descriptorPool: the frame descriptor pool
//   - bufferPool: the frame constant buffer pool
//
// Returns:
//   - *ResourceGroupAllocator: the allocator
func NewResourceGroupAllocator(descriptorPool *DescriptorPool, bufferPool *BufferPool) *ResourceGroupAllocator {
	if descriptorPool == nil || bufferPool == nil {
		panic("gpu: resource group allocator requires both pools")
	}
	return &ResourceGroupAllocator{descriptorPool: descriptorPool, bufferPool: bufferPool}
}

// PrepareResourceGroup allocates a fresh descriptor set and constant buffer range for group and
// binds the range into the set. Safe for concurrent use.
//
// Parameters:
//   - layout: the layout to allocate for
//   - allocType: how long the constant buffer range is read
//   - group: the group to fill
//
// Returns:
//   - error: ErrNilLayout, or ErrPoolExhausted when a pool is full
func (a *ResourceGroupAllocator) PrepareResourceGroup(layout *ResourceGroupLayout, allocType BufferPoolAllocationType, group *ResourceGroup) error {
	if layout == nil {
		return ErrNilLayout
	}
	set, err := a.descriptorPool.Allocate(layout.DescriptorSetLayout)
	if err != nil {
		return errors.Wrapf(err, "prepare resource group %q", layout.Name)
	}
	group.DescriptorSet = set
	group.ConstantBuffer = BufferPoolAllocation{}

	if size := layout.ConstantBufferSize(); size > 0 {
		alloc, err := a.bufferPool.Allocate(size, allocType)
		if err != nil {
			return errors.Wrapf(err, "prepare resource group %q", layout.Name)
		}
		group.ConstantBuffer = alloc
		if layout.ConstantBufferSlot >= 0 {
			set.SetBuffer(layout.ConstantBufferSlot, alloc.Buffer, alloc.Offset, alloc.Size)
		}
	}
	return nil
}

// Reset recycles both pools for the next frame.
func (a *ResourceGroupAllocator) Reset() {
	a.descriptorPool.Reset()
	a.bufferPool.Reset()
}

// DescriptorPool returns the underlying descriptor pool.
func (a *ResourceGroupAllocator) DescriptorPool() *DescriptorPool { return a.descriptorPool }

// BufferPool returns the underlying constant buffer pool.
func (a *ResourceGroupAllocator) BufferPool() *BufferPool { return a.bufferPool }
