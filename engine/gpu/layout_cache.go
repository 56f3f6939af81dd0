package gpu

import (
	"sync"

	"github.com/pkg/errors"
)

// LayoutCache deduplicates descriptor set layouts and pipeline states by structural hash, so
// structurally identical requests share one device object.
type LayoutCache struct {
	mu        *sync.Mutex
	device    Device
	layouts   map[uint64]*DescriptorSetLayout
	pipelines map[uint64]*PipelineState
}

// NewLayoutCache creates a cache over a device.
//
// Parameters:
//   - device: the device creating the objects
//
// Returns:
//   - *LayoutCache: the cache
func NewLayoutCache(device Device) *LayoutCache {
	if device == nil {
		panic("gpu: layout cache requires a device")
	}
	return &LayoutCache{
		mu:        &sync.Mutex{},
		device:    device,
		layouts:   make(map[uint64]*DescriptorSetLayout),
		pipelines: make(map[uint64]*PipelineState),
	}
}

// Device returns the device the cache creates objects on.
func (c *LayoutCache) Device() Device {
	return c.device
}

// DescriptorSetLayout returns the cached layout for the builder's hash, creating it on a miss.
//
// Parameters:
//   - builder: the layout bindings
//
// Returns:
//   - *DescriptorSetLayout: the shared layout
//   - error: an error if the device rejected the layout
func (c *LayoutCache) DescriptorSetLayout(builder *DescriptorSetLayoutBuilder) (*DescriptorSetLayout, error) {
	hash := builder.Hash()

	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.layouts[hash]; ok {
		return l, nil
	}
	l, err := c.device.CreateDescriptorSetLayout(builder)
	if err != nil {
		return nil, errors.Wrapf(err, "create descriptor set layout %q", builder.Name)
	}
	l.Hash = hash
	c.layouts[hash] = l
	return l, nil
}

// PipelineState returns the cached pipeline state for the description's hash, creating it on a miss.
//
// Parameters:
//   - desc: the pipeline description
//
// Returns:
//   - *PipelineState: the shared pipeline state
//   - error: an error if the device could not create the pipeline
func (c *LayoutCache) PipelineState(desc *PipelineStateDescription) (*PipelineState, error) {
	hash := desc.Hash()

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pipelines[hash]; ok {
		return p, nil
	}
	p, err := c.device.CreatePipelineState(desc)
	if err != nil {
		return nil, errors.Wrap(err, "create pipeline state")
	}
	p.Hash = hash
	c.pipelines[hash] = p
	return p, nil
}

// Len returns the number of cached layouts and pipeline states.
func (c *LayoutCache) Len() (layouts, pipelines int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.layouts), len(c.pipelines)
}
