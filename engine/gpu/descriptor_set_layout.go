package gpu

import (
	"encoding/binary"
	"hash/fnv"
)

// BindingKind classifies a single binding of a descriptor set.
type BindingKind int

const (
	BindingKindUndefined BindingKind = iota
	BindingKindUniformBuffer
	BindingKindStorageBuffer
	BindingKindReadOnlyStorageBuffer
	BindingKindSampledTexture
	BindingKindDepthTexture
	BindingKindStorageTexture
	BindingKindSampler
	BindingKindComparisonSampler
)

// IsBuffer reports whether the binding is backed by a buffer.
func (k BindingKind) IsBuffer() bool {
	return k == BindingKindUniformBuffer || k == BindingKindStorageBuffer || k == BindingKindReadOnlyStorageBuffer
}

// ShaderStage is a bit set of the shader stages that can see a binding.
type ShaderStage uint32

const (
	ShaderStageVertex ShaderStage = 1 << iota
	ShaderStageFragment
	ShaderStageCompute
)

// DescriptorSetLayoutEntry describes one binding of a descriptor set layout.
type DescriptorSetLayoutEntry struct {
	Binding        uint32
	Name           string
	Kind           BindingKind
	Visibility     ShaderStage
	MinBindingSize uint64
	// Dimension is the texture view dimension string ("2d", "cube", ...) for texture bindings.
	Dimension string
	// Format is the texel format for storage textures.
	Format PixelFormat
}

// DescriptorSetLayoutBuilder accumulates bindings and computes a structural hash so that
// identical layouts requested by different effects map to one device object.
type DescriptorSetLayoutBuilder struct {
	// Name is the resource group the layout belongs to (PerFrame, PerView, PerDraw, ...).
	Name    string
	Entries []DescriptorSetLayoutEntry

	hash      uint64
	hashValid bool
}

// NewDescriptorSetLayoutBuilder creates an empty builder.
//
// Parameters:
//   - name: the resource group name used for diagnostics
//
// Returns:
//   - *DescriptorSetLayoutBuilder: the builder
func NewDescriptorSetLayoutBuilder(name string) *DescriptorSetLayoutBuilder {
	return &DescriptorSetLayoutBuilder{Name: name}
}

// AddBinding appends a binding and invalidates the cached hash.
//
// Parameters:
//   - entry: the binding to append
//
// Returns:
//   - *DescriptorSetLayoutBuilder: the builder, for chaining
func (b *DescriptorSetLayoutBuilder) AddBinding(entry DescriptorSetLayoutEntry) *DescriptorSetLayoutBuilder {
	b.Entries = append(b.Entries, entry)
	b.hashValid = false
	return b
}

// Hash returns the structural hash of the layout. Binding names and the builder name are
// excluded so two effects naming the same binding differently still share a layout.
//
// Returns:
//   - uint64: the FNV-1a hash of the binding structure
func (b *DescriptorSetLayoutBuilder) Hash() uint64 {
	if b.hashValid {
		return b.hash
	}
	h := fnv.New64a()
	var buf [8]byte
	for _, e := range b.Entries {
		binary.LittleEndian.PutUint32(buf[:4], e.Binding)
		binary.LittleEndian.PutUint32(buf[4:], uint32(e.Kind))
		h.Write(buf[:])
		binary.LittleEndian.PutUint32(buf[:4], uint32(e.Visibility))
		binary.LittleEndian.PutUint32(buf[4:], uint32(len(e.Dimension)))
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], e.MinBindingSize)
		h.Write(buf[:])
		h.Write([]byte(e.Dimension))
		h.Write([]byte(e.Format))
	}
	b.hash = h.Sum64()
	b.hashValid = true
	return b.hash
}

// IndexOf returns the position of the entry with the given binding number, or -1.
func (b *DescriptorSetLayoutBuilder) IndexOf(binding uint32) int {
	for i, e := range b.Entries {
		if e.Binding == binding {
			return i
		}
	}
	return -1
}

// DescriptorSetLayout is the device object created from a builder.
type DescriptorSetLayout struct {
	Name    string
	Hash    uint64
	Entries []DescriptorSetLayoutEntry
	Native  any
}

// CombineHash mixes two structural hashes, used to key resource group layouts by both
// their descriptor set layout and their constant buffer layout.
//
// Parameters:
//   - a: the first hash
//   - b: the second hash
//
// Returns:
//   - uint64: the combined hash
func CombineHash(a, b uint64) uint64 {
	h := fnv.New64a()
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], a)
	binary.LittleEndian.PutUint64(buf[8:], b)
	h.Write(buf[:])
	return h.Sum64()
}
