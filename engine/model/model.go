package model

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-pipeline/common"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/gpu"
	"github.com/pkg/errors"
)

// ErrEmptyModel is returned by Upload for a model without vertices or indices.
var ErrEmptyModel = errors.New("model: no vertex or index data")

// model is the implementation of the Model interface.
type model struct {
	mu *sync.Mutex

	name        string
	vertices    []GPUVertex
	indices     []uint32
	boundingBox common.BoundingBox

	vertexBuffer *gpu.Buffer
	indexBuffer  *gpu.Buffer
}

// Model is indexed triangle geometry shared by any number of game objects. Geometry lives on
// the CPU until Upload copies it into device buffers; Draw is a no-op before that.
type Model interface {
	// Name retrieves the model identifier.
	//
	// Returns:
	//   - string: the model name
	Name() string

	// Vertices returns the model-space vertices.
	//
	// Returns:
	//   - []GPUVertex: the vertices
	Vertices() []GPUVertex

	// Indices returns the triangle list indices.
	//
	// Returns:
	//   - []uint32: the indices
	Indices() []uint32

	// IndexCount returns the number of indices drawn per instance.
	//
	// Returns:
	//   - int: the index count
	IndexCount() int

	// BoundingBox returns the model-space box enclosing every vertex.
	//
	// Returns:
	//   - common.BoundingBox: the bounds
	BoundingBox() common.BoundingBox

	// Upload creates the vertex and index buffers on the device and copies the geometry into
	// them. Calling it again on an uploaded model does nothing.
	//
	// Parameters:
	//   - device: the device owning the buffers
	//
	// Returns:
	//   - error: ErrEmptyModel, or the device error
	Upload(device gpu.Device) error

	// Uploaded reports whether Upload has succeeded.
	//
	// Returns:
	//   - bool: true when device buffers exist
	Uploaded() bool

	// Draw binds the model's buffers and records one indexed draw.
	//
	// Parameters:
	//   - cl: the command list to record into
	Draw(cl gpu.CommandList)

	// DrawInstanced binds the model's buffers and records an indexed draw of several instances.
	//
	// Parameters:
	//   - cl: the command list to record into
	//   - instances: the number of instances
	DrawInstanced(cl gpu.CommandList, instances uint32)
}

var _ Model = &model{}

// NewModel creates a Model from the configured geometry. The bounding box is computed from the
// vertices unless WithBoundingBox overrides it.
//
// Parameters:
//   - options: functional options to configure the model
//
// Returns:
//   - Model: the newly created model
func NewModel(options ...ModelBuilderOption) Model {
	m := &model{
		mu: &sync.Mutex{},
	}
	for _, option := range options {
		option(m)
	}
	if m.boundingBox.IsEmpty() {
		m.boundingBox = ComputeBoundingBox(m.vertices)
	}
	return m
}

func (m *model) Name() string {
	return m.name
}

func (m *model) Vertices() []GPUVertex {
	return m.vertices
}

func (m *model) Indices() []uint32 {
	return m.indices
}

func (m *model) IndexCount() int {
	return len(m.indices)
}

func (m *model) BoundingBox() common.BoundingBox {
	return m.boundingBox
}

func (m *model) Upload(device gpu.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vertexBuffer != nil {
		return nil
	}
	if len(m.vertices) == 0 || len(m.indices) == 0 {
		return errors.Wrapf(ErrEmptyModel, "upload %q", m.name)
	}

	vertexData := MarshalVertices(m.vertices)
	vb, err := device.CreateBuffer(gpu.BufferDescription{
		Label: m.name + " vertices",
		Size:  uint64(len(vertexData)),
		Usage: gpu.BufferUsageVertex | gpu.BufferUsageCopyDst,
	})
	if err != nil {
		return errors.Wrapf(err, "create vertex buffer for %q", m.name)
	}
	if err := device.WriteBuffer(vb, 0, vertexData); err != nil {
		return errors.Wrapf(err, "write vertex buffer for %q", m.name)
	}

	indexData := MarshalIndices(m.indices)
	ib, err := device.CreateBuffer(gpu.BufferDescription{
		Label: m.name + " indices",
		Size:  uint64(len(indexData)),
		Usage: gpu.BufferUsageIndex | gpu.BufferUsageCopyDst,
	})
	if err != nil {
		return errors.Wrapf(err, "create index buffer for %q", m.name)
	}
	if err := device.WriteBuffer(ib, 0, indexData); err != nil {
		return errors.Wrapf(err, "write index buffer for %q", m.name)
	}

	m.vertexBuffer, m.indexBuffer = vb, ib
	common.Logger().Debug("model uploaded", "model", m.name, "vertices", len(m.vertices), "indices", len(m.indices))
	return nil
}

func (m *model) Uploaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vertexBuffer != nil
}

func (m *model) Draw(cl gpu.CommandList) {
	m.DrawInstanced(cl, 1)
}

func (m *model) DrawInstanced(cl gpu.CommandList, instances uint32) {
	m.mu.Lock()
	vb, ib := m.vertexBuffer, m.indexBuffer
	m.mu.Unlock()
	if vb == nil || instances == 0 {
		return
	}
	cl.SetVertexBuffer(0, vb, 0)
	cl.SetIndexBuffer(ib, 0, true)
	cl.DrawIndexed(uint32(len(m.indices)), instances, 0, 0)
}
