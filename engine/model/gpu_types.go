package model

import (
	_ "embed"
	"encoding/binary"
	"math"

	"github.com/Carmen-Shannon/oxy-pipeline/common"
	"github.com/go-gl/mathgl/mgl32"
)

// GPUVertexSource is the WGSL VertexInput struct matching GPUVertex. Effects drawing models
// include it with `//@oxy:include vertex` after registering it in their shader library.
//
//go:embed assets/vertex.wgsl
var GPUVertexSource string

// GPUVertexSize is the tightly packed size of GPUVertex in bytes.
const GPUVertexSize = 48

// GPUVertex is the GPU representation of a single mesh vertex.
// Matches the WGSL VertexInput struct (see GPUVertexSource) with attributes packed back to back.
type GPUVertex struct {
	Position [3]float32 // offset  0
	Normal   [3]float32 // offset 12
	TexCoord [2]float32 // offset 24
	Color    [4]float32 // offset 32
}

// Size returns the size of the GPUVertex struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUVertex) Size() int {
	return GPUVertexSize
}

// Marshal serializes the vertex into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 48-byte buffer ready for GPU upload.
func (g *GPUVertex) Marshal() []byte {
	return g.appendTo(make([]byte, 0, GPUVertexSize))
}

func (g *GPUVertex) appendTo(buf []byte) []byte {
	for _, v := range g.Position {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	for _, v := range g.Normal {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	for _, v := range g.TexCoord {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	for _, v := range g.Color {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	return buf
}

// MarshalVertices packs vertices back to back.
//
// Parameters:
//   - vertices: the vertices to pack
//
// Returns:
//   - []byte: len(vertices) * GPUVertexSize bytes
func MarshalVertices(vertices []GPUVertex) []byte {
	buf := make([]byte, 0, len(vertices)*GPUVertexSize)
	for i := range vertices {
		buf = vertices[i].appendTo(buf)
	}
	return buf
}

// MarshalIndices packs 32-bit indices back to back.
//
// Parameters:
//   - indices: the indices to pack
//
// Returns:
//   - []byte: len(indices) * 4 bytes
func MarshalIndices(indices []uint32) []byte {
	buf := make([]byte, 0, len(indices)*4)
	for _, idx := range indices {
		buf = binary.LittleEndian.AppendUint32(buf, idx)
	}
	return buf
}

// ComputeBoundingBox returns the model-space box enclosing every vertex position.
// An empty slice yields the zero box.
//
// Parameters:
//   - vertices: the vertices to enclose
//
// Returns:
//   - common.BoundingBox: the enclosing box
func ComputeBoundingBox(vertices []GPUVertex) common.BoundingBox {
	if len(vertices) == 0 {
		return common.BoundingBox{}
	}
	minimum := mgl32.Vec3(vertices[0].Position)
	maximum := minimum
	for _, v := range vertices[1:] {
		for i := range 3 {
			minimum[i] = min(minimum[i], v.Position[i])
			maximum[i] = max(maximum[i], v.Position[i])
		}
	}
	return common.NewBoundingBoxFromMinMax(minimum, maximum)
}
