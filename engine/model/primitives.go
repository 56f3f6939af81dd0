package model

// cubeFace holds the four corners of one face, wound counter-clockwise seen from outside.
type cubeFace struct {
	positions [4][3]float32
	normal    [3]float32
	color     [4]float32
}

var cubeFaces = [6]cubeFace{
	{positions: [4][3]float32{{1, -1, -1}, {1, 1, -1}, {1, 1, 1}, {1, -1, 1}}, normal: [3]float32{1, 0, 0}, color: [4]float32{1, 0, 0, 1}},
	{positions: [4][3]float32{{-1, -1, 1}, {-1, 1, 1}, {-1, 1, -1}, {-1, -1, -1}}, normal: [3]float32{-1, 0, 0}, color: [4]float32{0, 1, 0, 1}},
	{positions: [4][3]float32{{-1, 1, -1}, {-1, 1, 1}, {1, 1, 1}, {1, 1, -1}}, normal: [3]float32{0, 1, 0}, color: [4]float32{0, 0, 1, 1}},
	{positions: [4][3]float32{{-1, -1, 1}, {-1, -1, -1}, {1, -1, -1}, {1, -1, 1}}, normal: [3]float32{0, -1, 0}, color: [4]float32{1, 1, 0, 1}},
	{positions: [4][3]float32{{-1, -1, 1}, {1, -1, 1}, {1, 1, 1}, {-1, 1, 1}}, normal: [3]float32{0, 0, 1}, color: [4]float32{1, 0, 1, 1}},
	{positions: [4][3]float32{{1, -1, -1}, {-1, -1, -1}, {-1, 1, -1}, {1, 1, -1}}, normal: [3]float32{0, 0, -1}, color: [4]float32{0, 1, 1, 1}},
}

var faceTexCoords = [4][2]float32{{0, 1}, {0, 0}, {1, 0}, {1, 1}}

// NewCube creates a cube centered on the origin with one color per face.
//
// Parameters:
//   - size: the edge length
//   - options: further options, applied after the cube geometry
//
// Returns:
//   - Model: the cube
func NewCube(size float32, options ...ModelBuilderOption) Model {
	half := size / 2
	vertices := make([]GPUVertex, 0, 24)
	indices := make([]uint32, 0, 36)
	for fi, face := range cubeFaces {
		for ci, pos := range face.positions {
			vertices = append(vertices, GPUVertex{
				Position: [3]float32{pos[0] * half, pos[1] * half, pos[2] * half},
				Normal:   face.normal,
				TexCoord: faceTexCoords[ci],
				Color:    face.color,
			})
		}
		base := uint32(fi * 4)
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}

	opts := append([]ModelBuilderOption{WithName("cube"), WithVertices(vertices), WithIndices(indices)}, options...)
	return NewModel(opts...)
}
