package shader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-pipeline/engine/effect"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/gpu"
	"github.com/gogpu/naga"
	"github.com/pkg/errors"
)

// Backend compiles WGSL effects from a Library: annotations are expanded for the permutation,
// the result is reflected, and optionally validated and translated to SPIR-V with naga.
type Backend struct {
	library *Library
	spirv   bool
}

var _ effect.Backend = &Backend{}

// NewBackend creates a WGSL backend.
//
// Parameters:
//   - library: the effect sources
//   - opts: functional options (SPIR-V output)
//
// Returns:
//   - *Backend: the backend
func NewBackend(library *Library, opts ...BackendBuilderOption) *Backend {
	if library == nil {
		panic("shader: backend requires a library")
	}
	b := &Backend{library: library}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Library returns the source library.
func (b *Backend) Library() *Library {
	return b.library
}

func (b *Backend) CompileEffect(name string, params *effect.ParameterSet) (*effect.CompiledEffect, error) {
	processed, err := Process(b.library, name, params)
	if err != nil {
		return nil, err
	}
	b.library.recordIncludes(name, processed.Includes)

	refl, err := Reflect(processed.Source, processed.GroupNames)
	if err != nil {
		return nil, errors.Wrapf(effect.ErrCompileFailed, "reflect %q: %v", name, err)
	}

	vertex, fragment := parseEntryPoints(processed.Source)
	if vertex == "" {
		return nil, errors.Wrapf(effect.ErrCompileFailed, "%q has no @vertex entry point", name)
	}

	bytecode := &gpu.ShaderBytecode{
		Label:         fmt.Sprintf("%s[%s]", name, params.String()),
		WGSL:          processed.Source,
		VertexEntry:   vertex,
		FragmentEntry: fragment,
	}
	if b.spirv {
		words, err := CompileSPIRV(processed.Source)
		if err != nil {
			return nil, errors.Wrapf(effect.ErrCompileFailed, "%q: %v", name, err)
		}
		bytecode.SPIRV = words
	}

	return &effect.CompiledEffect{
		Name:       name,
		Parameters: params.Clone(),
		Bytecode:   bytecode,
		Reflection: refl,
	}, nil
}

// CompileSPIRV validates WGSL with naga and returns the SPIR-V module as little-endian words.
//
// Parameters:
//   - source: the WGSL source
//
// Returns:
//   - []uint32: the SPIR-V words
//   - error: the naga compile error
func CompileSPIRV(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to compile shader: %w", err)
	}
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}
