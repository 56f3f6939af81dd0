package effect

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-pipeline/common"
	"github.com/pkg/errors"
)

type cacheKey struct {
	name string
	hash uint64
}

// CachedCompiler caches compiled permutations by effect name and parameter hash. With async
// workers configured, backend compiles run on a worker pool and Compile never blocks.
type CachedCompiler struct {
	mu          *sync.Mutex
	poolMu      *sync.RWMutex
	backend     Backend
	pool        worker.DynamicWorkerPool
	workers     int
	cache       map[cacheKey]*compileTask
	generations map[string]uint64
	taskID      atomic.Int64
	compiles    atomic.Int64
}

var _ Compiler = &CachedCompiler{}

// NewCachedCompiler creates a compiler over a backend.
//
// Parameters:
//   - backend: the backend performing the compiles
//   - opts: functional options (async workers)
//
// Returns:
//   - *CachedCompiler: the compiler
func NewCachedCompiler(backend Backend, opts ...CachedCompilerBuilderOption) *CachedCompiler {
	if backend == nil {
		panic("effect: cached compiler requires a backend")
	}
	c := &CachedCompiler{
		mu:          &sync.Mutex{},
		poolMu:      &sync.RWMutex{},
		backend:     backend,
		cache:       make(map[cacheKey]*compileTask),
		generations: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.workers > 0 {
		c.pool = worker.NewDynamicWorkerPool(c.workers, 256, 1*time.Second)
	}
	return c
}

// IsAsync reports whether compiles run on the worker pool.
func (c *CachedCompiler) IsAsync() bool {
	c.poolMu.RLock()
	defer c.poolMu.RUnlock()
	return c.pool != nil
}

// Close waits for queued compiles and stops the worker pool. Later compiles run synchronously.
func (c *CachedCompiler) Close() {
	c.poolMu.Lock()
	pool := c.pool
	c.pool = nil
	c.poolMu.Unlock()
	common.StopWorkerPool(pool, c.workers)
}

func (c *CachedCompiler) Compile(name string, params *ParameterSet) Task {
	params = params.Clone()
	key := cacheKey{name: name, hash: params.Hash()}

	c.mu.Lock()
	if t, ok := c.cache[key]; ok && !t.IsFaulted() {
		c.mu.Unlock()
		return t
	}
	t := newCompileTask()
	c.cache[key] = t
	generation := c.generations[name]
	c.mu.Unlock()

	c.poolMu.RLock()
	defer c.poolMu.RUnlock()
	if c.pool == nil {
		c.run(t, name, params, generation)
		return t
	}

	id := int(c.taskID.Add(1))
	c.pool.SubmitTask(worker.Task{
		ID: id,
		Do: func() (any, error) {
			c.run(t, name, params, generation)
			return nil, t.err
		},
	})
	return t
}

// run compiles one permutation and completes its task. Backend panics become task errors.
func (c *CachedCompiler) run(t *compileTask, name string, params *ParameterSet, generation uint64) {
	defer func() {
		if r := recover(); r != nil {
			t.complete(nil, errors.Wrapf(ErrCompileFailed, "effect %q panicked: %v", name, r))
		}
	}()

	start := time.Now()
	c.compiles.Add(1)
	e, err := c.backend.CompileEffect(name, params)
	if err == nil && e == nil {
		err = errors.Wrapf(ErrCompileFailed, "effect %q: backend returned no effect", name)
	}
	if err != nil {
		common.Logger().Warn("effect compile failed",
			slog.String("effect", name),
			slog.String("parameters", params.String()),
			slog.Any("error", err))
		t.complete(nil, errors.Wrapf(err, "compile effect %q", name))
		return
	}

	if e.Name == "" {
		e.Name = name
	}
	if e.Parameters == nil {
		e.Parameters = params
	}
	e.Generation = generation
	common.Logger().Debug("effect compiled",
		slog.String("effect", name),
		slog.String("parameters", params.String()),
		slog.Duration("elapsed", time.Since(start)))
	t.complete(e, nil)
}

func (c *CachedCompiler) IsValid(e *CompiledEffect) bool {
	if e == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return e.Generation == c.generations[e.Name]
}

// Invalidate drops every cached permutation of an effect and bumps its source generation, so
// effects compiled earlier report IsValid false.
//
// Parameters:
//   - name: the effect name
func (c *CachedCompiler) Invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[name]++
	for k := range c.cache {
		if k.name == name {
			delete(c.cache, k)
		}
	}
	common.Logger().Info("effect invalidated", slog.String("effect", name), slog.Uint64("generation", c.generations[name]))
}

// Compiles returns how many backend compiles ran.
func (c *CachedCompiler) Compiles() int {
	return int(c.compiles.Load())
}

// String describes the compiler for logs.
func (c *CachedCompiler) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("CachedCompiler{entries: %d, workers: %d}", len(c.cache), c.workers)
}
