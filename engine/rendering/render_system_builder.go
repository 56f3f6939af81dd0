package rendering

import (
	"time"

	"github.com/Carmen-Shannon/oxy-pipeline/engine/gpu"
)

// RenderSystemBuilderOption is a functional option for configuring a RenderSystem.
type RenderSystemBuilderOption func(*RenderSystem)

// WithDescriptorPoolCapacity bounds the number of descriptor sets allocated per frame.
//
// Parameters:
//   - capacity: the maximum sets per frame, 0 for unbounded
//
// Returns:
//   - RenderSystemBuilderOption: option function to apply
func WithDescriptorPoolCapacity(capacity int) RenderSystemBuilderOption {
	return func(rs *RenderSystem) {
		rs.descriptorPoolCapacity = max(capacity, 0)
	}
}

// WithBufferPoolOptions configures the frame constant buffer pool.
//
// Parameters:
//   - opts: the buffer pool options, e.g. gpu.WithBufferPoolSize
//
// Returns:
//   - RenderSystemBuilderOption: option function to apply
func WithBufferPoolOptions(opts ...gpu.BufferPoolBuilderOption) RenderSystemBuilderOption {
	return func(rs *RenderSystem) {
		rs.bufferPoolOptions = append(rs.bufferPoolOptions, opts...)
	}
}

// WithCompileMode selects synchronous or asynchronous effect compilation.
// Values outside the known modes are treated as CompileModeAsync.
//
// Parameters:
//   - mode: the compile mode (default CompileModeAsync)
//
// Returns:
//   - RenderSystemBuilderOption: option function to apply
func WithCompileMode(mode CompileMode) RenderSystemBuilderOption {
	return func(rs *RenderSystem) {
		if mode != CompileModeSync {
			mode = CompileModeAsync
		}
		rs.compileMode = mode
	}
}

// WithEffectRetryInterval sets how long a failed effect waits before it is compiled again.
// Values <= 0 will be treated as the default (1s).
//
// Parameters:
//   - interval: the retry interval
//
// Returns:
//   - RenderSystemBuilderOption: option function to apply
func WithEffectRetryInterval(interval time.Duration) RenderSystemBuilderOption {
	return func(rs *RenderSystem) {
		if interval <= 0 {
			interval = DefaultEffectRetryInterval
		}
		rs.retryInterval = interval
	}
}

// WithClock replaces time.Now, which the retry backoff is measured with.
//
// Parameters:
//   - clock: the clock
//
// Returns:
//   - RenderSystemBuilderOption: option function to apply
func WithClock(clock func() time.Time) RenderSystemBuilderOption {
	return func(rs *RenderSystem) {
		if clock != nil {
			rs.clock = clock
		}
	}
}

// WithWorkers sets the number of workers data-parallel phase loops fan out to. With 0 workers
// every loop runs on the calling goroutine.
//
// Parameters:
//   - workers: the pool size
//   - batchSize: the minimum iterations per task, DefaultDispatcherBatchSize when below 1
//
// Returns:
//   - RenderSystemBuilderOption: option function to apply
func WithWorkers(workers, batchSize int) RenderSystemBuilderOption {
	return func(rs *RenderSystem) {
		rs.workers = max(workers, 0)
		rs.batchSize = batchSize
	}
}

// WithDefaultPipelinePluginActivator installs the hook consulted for object types without a feature.
//
// Parameters:
//   - activator: the hook, typically a plugin manager
//
// Returns:
//   - RenderSystemBuilderOption: option function to apply
func WithDefaultPipelinePluginActivator(activator DefaultPipelinePluginActivator) RenderSystemBuilderOption {
	return func(rs *RenderSystem) {
		rs.activator = activator
	}
}
