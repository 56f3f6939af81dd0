package effect

import (
	"sync"
)

// Task is a compilation that may still be running. Polling methods never block.
type Task interface {
	// IsCompleted reports whether the compilation finished, successfully or not.
	IsCompleted() bool

	// IsFaulted reports whether the compilation finished with an error.
	IsFaulted() bool

	// Result returns the compiled effect, or nil while running or when faulted.
	Result() *CompiledEffect

	// Err returns the compile error, or nil.
	Err() error

	// Wait blocks until the compilation finishes.
	//
	// Returns:
	//   - *CompiledEffect: the compiled effect, nil when faulted
	//   - error: the compile error
	Wait() (*CompiledEffect, error)
}

// compileTask is the channel-backed implementation of Task.
type compileTask struct {
	done   chan struct{}
	once   *sync.Once
	result *CompiledEffect
	err    error
}

var _ Task = &compileTask{}

func newCompileTask() *compileTask {
	return &compileTask{
		done: make(chan struct{}),
		once: &sync.Once{},
	}
}

// NewCompletedTask returns a task that already finished with the given outcome.
//
// Parameters:
//   - result: the compiled effect, nil when err is set
//   - err: the compile error
//
// Returns:
//   - Task: the completed task
func NewCompletedTask(result *CompiledEffect, err error) Task {
	t := newCompileTask()
	t.complete(result, err)
	return t
}

func (t *compileTask) complete(result *CompiledEffect, err error) {
	t.once.Do(func() {
		if err != nil {
			result = nil
		}
		t.result, t.err = result, err
		close(t.done)
	})
}

func (t *compileTask) IsCompleted() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *compileTask) IsFaulted() bool {
	return t.IsCompleted() && t.err != nil
}

func (t *compileTask) Result() *CompiledEffect {
	if !t.IsCompleted() {
		return nil
	}
	return t.result
}

func (t *compileTask) Err() error {
	if !t.IsCompleted() {
		return nil
	}
	return t.err
}

func (t *compileTask) Wait() (*CompiledEffect, error) {
	<-t.done
	return t.result, t.err
}
