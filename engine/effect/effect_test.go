package effect

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParameterSetOrderIndependent(t *testing.T) {
	a := NewParameterSet(Parameter{"Skinning", true}, Parameter{"Lights", 4})
	b := NewParameterSet(Parameter{"Lights", 4}, Parameter{"Skinning", true})

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Equal(t, "Lights=4,Skinning=true", a.String())

	b.Set("Lights", 5)
	assert.False(t, a.Equal(b))
	assert.NotEqual(t, a.Hash(), b.Hash())

	c := a.Clone()
	c.Set("Extra", "x")
	assert.Equal(t, 2, a.Len())
	assert.True(t, a.Bool("Skinning"))
	assert.False(t, a.Bool("Lights"))
}

func TestEffectValidator(t *testing.T) {
	v := NewEffectValidator()

	v.BeginEffectValidation()
	assert.False(t, v.EndEffectValidation(), "first round always reports a change")

	v.BeginEffectValidation()
	assert.True(t, v.EndEffectValidation())

	v.BeginEffectValidation()
	v.ValidateParameter("Skinning", true)
	assert.False(t, v.EndEffectValidation())
	assert.True(t, v.Parameters().Bool("Skinning"))

	v.BeginEffectValidation()
	v.ValidateParameter("Skinning", true)
	assert.True(t, v.EndEffectValidation())

	v.Invalidate()
	v.BeginEffectValidation()
	v.ValidateParameter("Skinning", true)
	assert.False(t, v.EndEffectValidation())
}

func TestCompletedTask(t *testing.T) {
	e := &CompiledEffect{Name: "a"}
	ok := NewCompletedTask(e, nil)
	assert.True(t, ok.IsCompleted())
	assert.False(t, ok.IsFaulted())
	assert.Same(t, e, ok.Result())

	bad := NewCompletedTask(e, ErrCompileFailed)
	assert.True(t, bad.IsFaulted())
	assert.Nil(t, bad.Result())
	assert.ErrorIs(t, bad.Err(), ErrCompileFailed)
}

func countingBackend(calls *atomic.Int32, fail *atomic.Bool) Backend {
	return BackendFunc(func(name string, params *ParameterSet) (*CompiledEffect, error) {
		calls.Add(1)
		if name == "missing" {
			return nil, ErrEffectNotFound
		}
		if name == "panics" {
			panic("boom")
		}
		if fail != nil && fail.Load() {
			return nil, errors.New("syntax error")
		}
		return &CompiledEffect{Reflection: &Reflection{}}, nil
	})
}

func TestCachedCompilerSync(t *testing.T) {
	var calls atomic.Int32
	c := NewCachedCompiler(countingBackend(&calls, nil))
	assert.False(t, c.IsAsync())

	params := NewParameterSet(Parameter{"A", true})
	t1 := c.Compile("mesh", params)
	require.True(t, t1.IsCompleted())
	e1 := t1.Result()
	require.NotNil(t, e1)
	assert.Equal(t, "mesh", e1.Name)
	assert.True(t, e1.Parameters.Equal(params))

	t2 := c.Compile("mesh", NewParameterSet(Parameter{"A", true}))
	assert.Same(t, e1, t2.Result())
	assert.Equal(t, int32(1), calls.Load())

	assert.True(t, c.IsValid(e1))
	c.Invalidate("mesh")
	assert.False(t, c.IsValid(e1))

	e3 := c.Compile("mesh", params).Result()
	assert.NotSame(t, e1, e3)
	assert.True(t, c.IsValid(e3))
	assert.Equal(t, 2, c.Compiles())
}

func TestCachedCompilerErrors(t *testing.T) {
	var calls atomic.Int32
	var fail atomic.Bool
	fail.Store(true)
	c := NewCachedCompiler(countingBackend(&calls, &fail))

	missing := c.Compile("missing", &ParameterSet{})
	assert.True(t, missing.IsFaulted())
	assert.ErrorIs(t, missing.Err(), ErrEffectNotFound)

	p := c.Compile("panics", &ParameterSet{})
	assert.True(t, p.IsFaulted())
	assert.ErrorIs(t, p.Err(), ErrCompileFailed)

	broken := c.Compile("mesh", &ParameterSet{})
	assert.True(t, broken.IsFaulted())

	fail.Store(false)
	fixed := c.Compile("mesh", &ParameterSet{})
	assert.False(t, fixed.IsFaulted(), "faulted entries are not served from the cache")
	assert.NotNil(t, fixed.Result())
}

func TestCachedCompilerAsync(t *testing.T) {
	release := make(chan struct{})
	c := NewCachedCompiler(BackendFunc(func(name string, params *ParameterSet) (*CompiledEffect, error) {
		<-release
		return &CompiledEffect{}, nil
	}), WithAsyncWorkers(2))
	require.True(t, c.IsAsync())

	task := c.Compile("slow", &ParameterSet{})
	assert.False(t, task.IsCompleted())
	assert.Nil(t, task.Result())

	close(release)
	e, err := task.Wait()
	require.NoError(t, err)
	assert.Equal(t, "slow", e.Name)
	assert.True(t, task.IsCompleted())
}

func TestCachedCompilerCloseStopsWorkers(t *testing.T) {
	before := runtime.NumGoroutine()
	release := make(chan struct{})
	c := NewCachedCompiler(BackendFunc(func(name string, params *ParameterSet) (*CompiledEffect, error) {
		<-release
		return &CompiledEffect{}, nil
	}), WithAsyncWorkers(8))
	queued := c.Compile("queued", &ParameterSet{})
	assert.Greater(t, runtime.NumGoroutine(), before)

	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()
	close(release)
	<-closed

	assert.True(t, queued.IsCompleted(), "queued compiles finish before the workers stop")
	assert.False(t, c.IsAsync())
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, 2*time.Second, 10*time.Millisecond)

	e, err := c.Compile("after", &ParameterSet{}).Wait()
	require.NoError(t, err)
	assert.Equal(t, "after", e.Name)
	c.Close()
}

func TestPrecompile(t *testing.T) {
	var calls atomic.Int32
	c := NewCachedCompiler(countingBackend(&calls, nil), WithAsyncWorkers(4))

	err := Precompile(context.Background(), c, []Request{
		{Name: "a"},
		{Name: "b", Parameters: NewParameterSet(Parameter{"X", 1})},
	}, 2)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	err = Precompile(context.Background(), c, []Request{{Name: "a"}, {Name: "missing"}}, 0)
	assert.ErrorIs(t, err, ErrEffectNotFound)
}

type recordingInvalidator struct {
	names chan string
}

func (r *recordingInvalidator) Invalidate(name string) {
	r.names <- name
}

func TestWatcherInvalidatesChangedEffect(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mesh.wgsl")
	require.NoError(t, os.WriteFile(path, []byte("// v1"), 0o644))

	inv := &recordingInvalidator{names: make(chan string, 16)}
	w, err := NewWatcher(dir, inv, nil)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(path, []byte("// v2"), 0o644))

	select {
	case name := <-inv.names:
		assert.Equal(t, "mesh", name)
	case <-time.After(5 * time.Second):
		t.Fatal("no invalidation received")
	}
}

func TestEffectNameFromPath(t *testing.T) {
	assert.Equal(t, []string{"lighting"}, EffectNameFromPath("/effects/lighting.wgsl"))
}
