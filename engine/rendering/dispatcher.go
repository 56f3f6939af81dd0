package rendering

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-pipeline/common"
)

// DefaultDispatcherBatchSize is the smallest number of iterations handed to one worker task.
const DefaultDispatcherBatchSize = 64

// Dispatcher runs data-parallel loops of a phase on a reusable worker pool. Every iteration
// must only write to its own node-indexed slots.
type Dispatcher struct {
	pool      worker.DynamicWorkerPool
	workers   int
	batchSize int
	taskID    atomic.Int64
}

// NewDispatcher creates a dispatcher. With zero workers every loop runs inline.
//
// Parameters:
//   - workers: the number of pool workers
//   - batchSize: the minimum iterations per task, DefaultDispatcherBatchSize when below 1
//
// Returns:
//   - *Dispatcher: the dispatcher
func NewDispatcher(workers, batchSize int) *Dispatcher {
	if batchSize < 1 {
		batchSize = DefaultDispatcherBatchSize
	}
	d := &Dispatcher{workers: max(workers, 0), batchSize: batchSize}
	if d.workers > 0 {
		d.pool = worker.NewDynamicWorkerPool(d.workers, 256, 1*time.Second)
	}
	return d
}

// Workers returns the pool size, 0 when inline.
func (d *Dispatcher) Workers() int {
	if d == nil {
		return 0
	}
	return d.workers
}

// Close stops the pool workers. Later loops run inline. Close must not run concurrently with
// ForEach.
func (d *Dispatcher) Close() {
	if d == nil || d.pool == nil {
		return
	}
	common.StopWorkerPool(d.pool, d.workers)
	d.pool = nil
}

// ForEach calls fn for every index in [0, n) and returns when all calls are done. A panic in
// any iteration is re-raised on the calling goroutine after the barrier.
//
// Parameters:
//   - n: the iteration count
//   - fn: the loop body
func (d *Dispatcher) ForEach(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	if d == nil || d.pool == nil || n <= d.batchSize {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	chunk := max(d.batchSize, (n+d.workers-1)/d.workers)

	// A WaitGroup is the frame barrier, the pool itself is never drained.
	var wg sync.WaitGroup
	var failure atomic.Value
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		d.pool.SubmitTask(worker.Task{
			ID: int(d.taskID.Add(1)),
			Do: func() (any, error) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						failure.CompareAndSwap(nil, fmt.Sprint(r))
					}
				}()
				for i := start; i < end; i++ {
					fn(i)
				}
				return nil, nil
			},
		})
	}
	wg.Wait()

	if r := failure.Load(); r != nil {
		panic(fmt.Sprintf("rendering: dispatcher task panicked: %v", r))
	}
}
