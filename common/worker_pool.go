package common

import (
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/automation/tools/worker"
)

// StopWorkerPool ends every worker goroutine of a pool created with
// worker.NewDynamicWorkerPool(workers, ...), then stops the pool. Tasks queued before the call
// run first. The pool must not receive tasks afterwards.
//
// Stop alone does not end every worker: workers share one stop channel and drop ids meant for
// another worker. Each worker takes one parking task instead and all of them exit together.
//
// Parameters:
//   - pool: the pool to stop
//   - workers: the worker count the pool was created with
func StopWorkerPool(pool worker.DynamicWorkerPool, workers int) {
	if pool == nil {
		return
	}
	workers = max(workers, 1)

	var parked sync.WaitGroup
	parked.Add(workers)
	for i := range workers {
		pool.SubmitTask(worker.Task{
			ID: -1 - i,
			Do: func() (any, error) {
				parked.Done()
				parked.Wait()
				runtime.Goexit()
				return nil, nil
			},
		})
	}
	parked.Wait()
	pool.Stop()
}
