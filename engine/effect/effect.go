// Package effect resolves effect permutations into compiled effects. The frame pipeline only
// consumes the Compiler interface; CachedCompiler adds caching, asynchronous compilation and
// source invalidation on top of a Backend such as the WGSL backend in the shader sub-package.
package effect

import (
	"github.com/Carmen-Shannon/oxy-pipeline/engine/gpu"
	"github.com/pkg/errors"
)

var (
	// ErrEffectNotFound is returned by a backend that has no source for the requested effect.
	ErrEffectNotFound = errors.New("effect: effect not found")

	// ErrCompileFailed wraps backend compile failures.
	ErrCompileFailed = errors.New("effect: compile failed")
)

// Well-known resource group names.
const (
	PerFrame = "PerFrame"
	PerView  = "PerView"
	PerDraw  = "PerDraw"
)

// CompiledEffect is one compiled permutation. Pointer identity is the effect identity.
type CompiledEffect struct {
	Name       string
	Parameters *ParameterSet
	Bytecode   *gpu.ShaderBytecode
	Reflection *Reflection

	// Generation is the source generation the effect was compiled from.
	Generation uint64
}

// DescriptorSetReflection is one reflected descriptor set of an effect.
type DescriptorSetReflection struct {
	// Name is the resource group the set belongs to (PerFrame, PerView, PerDraw or custom).
	Name   string
	Group  int
	Layout *gpu.DescriptorSetLayoutBuilder
}

// Reflection describes the resources an effect binds.
type Reflection struct {
	// DescriptorSets are ordered by group index.
	DescriptorSets  []DescriptorSetReflection
	ConstantBuffers []*gpu.ConstantBufferDescription
	VertexLayouts   []gpu.VertexBufferLayout
}

// Layout returns the descriptor set layout bound to a resource group name, or nil.
func (r *Reflection) Layout(name string) *gpu.DescriptorSetLayoutBuilder {
	if r == nil {
		return nil
	}
	for _, ds := range r.DescriptorSets {
		if ds.Name == name {
			return ds.Layout
		}
	}
	return nil
}

// ConstantBuffer returns the constant buffer with the given name, or nil.
func (r *Reflection) ConstantBuffer(name string) *gpu.ConstantBufferDescription {
	if r == nil {
		return nil
	}
	for _, cb := range r.ConstantBuffers {
		if cb.Name == name {
			return cb
		}
	}
	return nil
}

// Compiler is the effect-compiler collaborator of the frame pipeline.
type Compiler interface {
	// Compile requests an effect permutation. The returned task may already be completed when
	// the permutation is cached or compiled synchronously.
	//
	// Parameters:
	//   - name: the effect name
	//   - params: the permutation parameters
	//
	// Returns:
	//   - Task: the pending or completed compilation
	Compile(name string, params *ParameterSet) Task

	// IsValid reports whether a compiled effect still matches its source.
	//
	// Parameters:
	//   - e: the compiled effect
	//
	// Returns:
	//   - bool: false when the source changed since e was compiled
	IsValid(e *CompiledEffect) bool
}

// Backend performs the actual compilation of a permutation.
type Backend interface {
	// CompileEffect compiles a permutation synchronously.
	//
	// Parameters:
	//   - name: the effect name
	//   - params: the permutation parameters
	//
	// Returns:
	//   - *CompiledEffect: the compiled effect
	//   - error: ErrEffectNotFound, or the compile error
	CompileEffect(name string, params *ParameterSet) (*CompiledEffect, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(name string, params *ParameterSet) (*CompiledEffect, error)

func (f BackendFunc) CompileEffect(name string, params *ParameterSet) (*CompiledEffect, error) {
	return f(name, params)
}
