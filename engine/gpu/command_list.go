package gpu

// CommandList is the command-submission collaborator. It is only used during Draw and is not
// safe for concurrent use.
type CommandList interface {
	// SetPipelineState binds a compiled pipeline state.
	//
	// Parameters:
	//   - state: the pipeline state to bind
	SetPipelineState(state *PipelineState)

	// SetResourceGroups binds resource groups to consecutive descriptor set slots starting at 0.
	// Nil entries leave the slot untouched.
	//
	// Parameters:
	//   - groups: the resource groups, indexed by descriptor set slot
	SetResourceGroups(groups []*ResourceGroup)

	// SetVertexBuffer binds a vertex buffer.
	//
	// Parameters:
	//   - slot: the vertex buffer slot
	//   - buf: the buffer to bind
	//   - offset: the byte offset into the buffer
	SetVertexBuffer(slot uint32, buf *Buffer, offset uint64)

	// SetIndexBuffer binds an index buffer.
	//
	// Parameters:
	//   - buf: the buffer to bind
	//   - offset: the byte offset into the buffer
	//   - is32Bit: true for uint32 indices, false for uint16
	SetIndexBuffer(buf *Buffer, offset uint64, is32Bit bool)

	// DrawIndexed issues an indexed draw.
	//
	// Parameters:
	//   - indexCount: the number of indices
	//   - instanceCount: the number of instances
	//   - firstIndex: the first index to read
	//   - baseVertex: the value added to every index
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32)

	// Draw issues a non-indexed draw.
	//
	// Parameters:
	//   - vertexCount: the number of vertices
	//   - instanceCount: the number of instances
	Draw(vertexCount, instanceCount uint32)

	// Flush submits everything recorded so far.
	//
	// Returns:
	//   - error: an error if submission failed
	Flush() error
}
