package headless

import (
	"github.com/Carmen-Shannon/oxy-pipeline/engine/gpu"
)

// CommandKind identifies a recorded command.
type CommandKind int

const (
	CommandSetPipelineState CommandKind = iota
	CommandSetResourceGroups
	CommandSetVertexBuffer
	CommandSetIndexBuffer
	CommandDrawIndexed
	CommandDraw
)

func (k CommandKind) String() string {
	switch k {
	case CommandSetPipelineState:
		return "SetPipelineState"
	case CommandSetResourceGroups:
		return "SetResourceGroups"
	case CommandSetVertexBuffer:
		return "SetVertexBuffer"
	case CommandSetIndexBuffer:
		return "SetIndexBuffer"
	case CommandDrawIndexed:
		return "DrawIndexed"
	case CommandDraw:
		return "Draw"
	default:
		return "Unknown"
	}
}

// Command is one recorded command list call.
type Command struct {
	Kind           CommandKind
	PipelineState  *gpu.PipelineState
	ResourceGroups []*gpu.ResourceGroup
	Buffer         *gpu.Buffer
	Slot           uint32
	Offset         uint64
	Count          uint32
	Instances      uint32
	First          uint32
	BaseVertex     int32
}

// CommandList records commands and hands them to its device on Flush.
type CommandList struct {
	device   *Device
	recorded []Command
}

var _ gpu.CommandList = &CommandList{}

func (c *CommandList) SetPipelineState(state *gpu.PipelineState) {
	c.recorded = append(c.recorded, Command{Kind: CommandSetPipelineState, PipelineState: state})
}

func (c *CommandList) SetResourceGroups(groups []*gpu.ResourceGroup) {
	c.recorded = append(c.recorded, Command{
		Kind:           CommandSetResourceGroups,
		ResourceGroups: append([]*gpu.ResourceGroup(nil), groups...),
	})
}

func (c *CommandList) SetVertexBuffer(slot uint32, buf *gpu.Buffer, offset uint64) {
	c.recorded = append(c.recorded, Command{Kind: CommandSetVertexBuffer, Slot: slot, Buffer: buf, Offset: offset})
}

func (c *CommandList) SetIndexBuffer(buf *gpu.Buffer, offset uint64, is32Bit bool) {
	cmd := Command{Kind: CommandSetIndexBuffer, Buffer: buf, Offset: offset}
	if is32Bit {
		cmd.Slot = 1
	}
	c.recorded = append(c.recorded, cmd)
}

func (c *CommandList) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32) {
	c.recorded = append(c.recorded, Command{
		Kind:       CommandDrawIndexed,
		Count:      indexCount,
		Instances:  instanceCount,
		First:      firstIndex,
		BaseVertex: baseVertex,
	})
}

func (c *CommandList) Draw(vertexCount, instanceCount uint32) {
	c.recorded = append(c.recorded, Command{Kind: CommandDraw, Count: vertexCount, Instances: instanceCount})
}

func (c *CommandList) Flush() error {
	if len(c.recorded) == 0 {
		return nil
	}
	c.device.submit(c.recorded)
	c.recorded = c.recorded[:0]
	return nil
}

// Recorded returns the commands recorded since the last Flush.
func (c *CommandList) Recorded() []Command {
	return c.recorded
}
