// Package headless implements the graphics-device collaborator without a GPU. Every call is
// recorded so tests and headless runs can inspect what the frame pipeline emitted.
package headless

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-pipeline/engine/gpu"
	"github.com/pkg/errors"
)

// ErrFailedCreate is returned by the device once a failure has been injected with FailNext.
var ErrFailedCreate = errors.New("headless: injected failure")

// Device is a recording gpu.Device.
type Device struct {
	mu *sync.Mutex

	buffers    []*gpu.Buffer
	layouts    int
	pipelines  int
	uploads    int
	bytes      uint64
	failNext   bool
	submitted  []Command
	bufferData map[*gpu.Buffer][]byte
}

var _ gpu.Device = &Device{}

// NewDevice creates an empty recording device.
//
// Returns:
//   - *Device: the device
func NewDevice() *Device {
	return &Device{
		mu:         &sync.Mutex{},
		bufferData: make(map[*gpu.Buffer][]byte),
	}
}

// FailNext makes the next pipeline state creation fail.
func (d *Device) FailNext() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNext = true
}

func (d *Device) CreateDescriptorSetLayout(builder *gpu.DescriptorSetLayoutBuilder) (*gpu.DescriptorSetLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.layouts++
	entries := make([]gpu.DescriptorSetLayoutEntry, len(builder.Entries))
	copy(entries, builder.Entries)
	return &gpu.DescriptorSetLayout{
		Name:    builder.Name,
		Hash:    builder.Hash(),
		Entries: entries,
	}, nil
}

func (d *Device) CreatePipelineState(desc *gpu.PipelineStateDescription) (*gpu.PipelineState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failNext {
		d.failNext = false
		return nil, ErrFailedCreate
	}
	d.pipelines++
	return &gpu.PipelineState{Hash: desc.Hash(), Description: *desc}, nil
}

func (d *Device) CreateBuffer(desc gpu.BufferDescription) (*gpu.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf := &gpu.Buffer{Label: desc.Label, Size: desc.Size, Usage: desc.Usage}
	d.buffers = append(d.buffers, buf)
	d.bufferData[buf] = make([]byte, desc.Size)
	return buf, nil
}

func (d *Device) WriteBuffer(buf *gpu.Buffer, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	dst, ok := d.bufferData[buf]
	if !ok {
		return errors.Errorf("headless: unknown buffer %q", buf.Label)
	}
	if offset+uint64(len(data)) > uint64(len(dst)) {
		return errors.Errorf("headless: write of %d bytes at %d overflows buffer %q (%d bytes)", len(data), offset, buf.Label, len(dst))
	}
	copy(dst[offset:], data)
	d.uploads++
	d.bytes += uint64(len(data))
	return nil
}

func (d *Device) NewCommandList() gpu.CommandList {
	return &CommandList{device: d}
}

// BufferContents returns a copy of a buffer's device-side bytes.
func (d *Device) BufferContents(buf *gpu.Buffer) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.bufferData[buf]...)
}

// Stats returns how many layouts, pipeline states and buffer uploads were created.
func (d *Device) Stats() (layouts, pipelines, uploads int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.layouts, d.pipelines, d.uploads
}

// Submitted returns every command flushed so far.
func (d *Device) Submitted() []Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Command(nil), d.submitted...)
}

// ResetSubmitted clears the submitted command log.
func (d *Device) ResetSubmitted() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submitted = d.submitted[:0]
}

func (d *Device) submit(cmds []Command) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submitted = append(d.submitted, cmds...)
}
