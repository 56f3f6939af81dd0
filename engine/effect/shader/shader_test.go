package shader

import (
	"encoding/binary"
	"testing"

	"github.com/Carmen-Shannon/oxy-pipeline/engine/effect"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const viewInclude = `struct ViewData {
    viewProj: mat4x4f,
    eye: vec3f,
    time: f32,
}
//@oxy:group 1 PerView
@group(1) @binding(0) var<uniform> view: ViewData;
`

const meshEffect = `//@oxy:include view
struct DrawData {
    world: mat4x4f,
    tint: vec4f,
//@oxy:if Skinning
    bones: array<mat4x4f, 4>,
//@oxy:endif
}

struct VertexInput {
    @location(0) position: vec3f,
    @location(1) normal: vec3f,
    @location(2) uv: vec2f,
}

struct VertexOutput {
    @builtin(position) clip: vec4f,
    @location(0) uv: vec2f,
}

//@oxy:group 2 PerDraw
@group(2) @binding(0) var<uniform> draw: DrawData;
@group(2) @binding(1) var albedo: texture_2d<f32>;
@group(2) @binding(2) var albedoSampler: sampler;

@vertex
fn vs_main(in: VertexInput) -> VertexOutput {
    var out: VertexOutput;
    out.clip = view.viewProj * draw.world * vec4f(in.position, 1.0);
    out.uv = in.uv;
    return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4f {
//@oxy:if Mode=debug
    return vec4f(1.0, 0.0, 1.0, 1.0);
//@oxy:else
    return textureSample(albedo, albedoSampler, in.uv) * draw.tint;
//@oxy:endif
}
`

func newTestLibrary() *Library {
	return NewLibrary(WithSource("view", viewInclude), WithSource("mesh", meshEffect))
}

func TestParseAnnotation(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    *Annotation
		wantErr bool
	}{
		{name: "plain line", line: "let a = 1;"},
		{name: "comment", line: "// just a comment"},
		{name: "include", line: "//@oxy:include view", want: &Annotation{Type: AnnotationTypeInclude, Args: []string{"view"}, Line: 1, Group: -1}},
		{name: "if with value", line: "  //@oxy:if Mode=debug", want: &Annotation{Type: AnnotationTypeIf, Args: []string{"Mode", "debug"}, Line: 1, Group: -1}},
		{name: "group", line: "//@oxy:group 2 PerDraw", want: &Annotation{Type: AnnotationTypeGroup, Args: []string{"PerDraw"}, Line: 1, Group: 2}},
		{name: "endif", line: "//@oxy:endif", want: &Annotation{Type: AnnotationTypeEndIf, Line: 1, Group: -1}},
		{name: "unknown", line: "//@oxy:provider 1 2 x", wantErr: true},
		{name: "bad group", line: "//@oxy:group x PerDraw", wantErr: true},
		{name: "empty", line: "//@oxy:", wantErr: true},
		{name: "else with args", line: "//@oxy:else now", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAnnotation(tt.line, 1)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProcessPermutations(t *testing.T) {
	lib := newTestLibrary()

	plain, err := Process(lib, "mesh", effect.NewParameterSet())
	require.NoError(t, err)
	assert.NotContains(t, plain.Source, "bones")
	assert.Contains(t, plain.Source, "textureSample")
	assert.Contains(t, plain.Source, "struct ViewData")
	assert.Equal(t, map[int]string{1: "PerView", 2: "PerDraw"}, plain.GroupNames)
	assert.Equal(t, []string{"view"}, plain.Includes)

	skinned, err := Process(lib, "mesh", effect.NewParameterSet(
		effect.Parameter{Key: "Skinning", Value: true},
		effect.Parameter{Key: "Mode", Value: "debug"},
	))
	require.NoError(t, err)
	assert.Contains(t, skinned.Source, "bones")
	assert.NotContains(t, skinned.Source, "textureSample")
}

func TestProcessErrors(t *testing.T) {
	lib := NewLibrary(
		WithSource("open", "//@oxy:if A\nfn a() {}"),
		WithSource("stray", "//@oxy:endif"),
		WithSource("twice", "//@oxy:if A\n//@oxy:else\n//@oxy:else\n//@oxy:endif"),
		WithSource("loop", "//@oxy:include loop\nfn b() {}"),
		WithSource("dangling", "//@oxy:include nowhere"),
	)

	_, err := Process(lib, "open", &effect.ParameterSet{})
	assert.ErrorContains(t, err, "unterminated")
	_, err = Process(lib, "stray", &effect.ParameterSet{})
	assert.ErrorContains(t, err, "without if")
	_, err = Process(lib, "twice", &effect.ParameterSet{})
	assert.ErrorContains(t, err, "duplicate")
	_, err = Process(lib, "loop", &effect.ParameterSet{})
	assert.NoError(t, err, "self include is skipped")
	_, err = Process(lib, "dangling", &effect.ParameterSet{})
	assert.ErrorIs(t, err, effect.ErrEffectNotFound)
}

func TestReflectOffsetsAndLayouts(t *testing.T) {
	processed, err := Process(newTestLibrary(), "mesh", effect.NewParameterSet(effect.Parameter{Key: "Skinning", Value: true}))
	require.NoError(t, err)

	refl, err := Reflect(processed.Source, processed.GroupNames)
	require.NoError(t, err)
	require.Len(t, refl.DescriptorSets, 2)

	view := refl.ConstantBuffer("PerView")
	require.NotNil(t, view)
	assert.Equal(t, uint64(80), view.Size)
	assert.Equal(t, 0, view.MemberOffset("viewProj"))
	assert.Equal(t, 64, view.MemberOffset("eye"))
	assert.Equal(t, 76, view.MemberOffset("time"))

	draw := refl.ConstantBuffer("PerDraw")
	require.NotNil(t, draw)
	assert.Equal(t, uint64(64+16+256), draw.Size)
	assert.Equal(t, 80, draw.MemberOffset("bones"))

	perDraw := refl.Layout("PerDraw")
	require.NotNil(t, perDraw)
	require.Len(t, perDraw.Entries, 3)
	assert.Equal(t, gpu.BindingKindUniformBuffer, perDraw.Entries[0].Kind)
	assert.Equal(t, uint64(336), perDraw.Entries[0].MinBindingSize)
	assert.Equal(t, gpu.BindingKindSampledTexture, perDraw.Entries[1].Kind)
	assert.Equal(t, "2d", perDraw.Entries[1].Dimension)
	assert.Equal(t, gpu.BindingKindSampler, perDraw.Entries[2].Kind)
	assert.Nil(t, refl.Layout("PerFrame"))

	require.Len(t, refl.VertexLayouts, 1)
	assert.Equal(t, uint64(32), refl.VertexLayouts[0].ArrayStride)
	assert.Equal(t, gpu.VertexFormatFloat32x2, refl.VertexLayouts[0].Attributes[2].Format)
}

func TestReflectClassifiesResources(t *testing.T) {
	src := `
@group(0) @binding(0) var<storage, read> lights: array<vec4f>;
@group(0) @binding(1) var<storage, read_write> counters: array<atomic<u32>>;
@group(0) @binding(2) var shadow: texture_depth_2d_array;
@group(0) @binding(3) var shadowSampler: sampler_comparison;
@group(0) @binding(4) var target: texture_storage_2d<rgba8unorm, write>;
@group(0) @binding(5) var<uniform> exposure: f32;
`
	refl, err := Reflect(src, nil)
	require.NoError(t, err)
	layout := refl.Layout("Group0")
	require.NotNil(t, layout)

	kinds := make([]gpu.BindingKind, 0, len(layout.Entries))
	for _, e := range layout.Entries {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []gpu.BindingKind{
		gpu.BindingKindReadOnlyStorageBuffer,
		gpu.BindingKindStorageBuffer,
		gpu.BindingKindDepthTexture,
		gpu.BindingKindComparisonSampler,
		gpu.BindingKindStorageTexture,
		gpu.BindingKindUniformBuffer,
	}, kinds)
	assert.Equal(t, uint64(16), layout.Entries[0].MinBindingSize)
	assert.Equal(t, "2d-array", layout.Entries[2].Dimension)
	assert.Equal(t, gpu.PixelFormatRGBA8Unorm, layout.Entries[4].Format)

	cb := refl.ConstantBuffer("Group0")
	require.NotNil(t, cb)
	assert.Equal(t, 0, cb.MemberOffset("exposure"))

	_, err = Reflect("@group(0) @binding(0) var a: sampler;\n@group(0) @binding(0) var b: sampler;", nil)
	assert.ErrorContains(t, err, "duplicate binding")
}

func TestBackendCompile(t *testing.T) {
	lib := newTestLibrary()
	backend := NewBackend(lib)

	e, err := backend.CompileEffect("mesh", effect.NewParameterSet())
	require.NoError(t, err)
	assert.Equal(t, "vs_main", e.Bytecode.VertexEntry)
	assert.Equal(t, "fs_main", e.Bytecode.FragmentEntry)
	assert.NotNil(t, e.Reflection.Layout("PerView"))

	assert.Equal(t, []string{"view", "mesh"}, lib.Dependents("/effects/view.wgsl"))
	assert.Equal(t, []string{"mesh"}, lib.Dependents("mesh.wgsl"))

	_, err = backend.CompileEffect("nope", effect.NewParameterSet())
	assert.ErrorIs(t, err, effect.ErrEffectNotFound)

	lib.SetSource("novertex", "@fragment fn f() -> @location(0) vec4f { return vec4f(1.0); }")
	_, err = backend.CompileEffect("novertex", effect.NewParameterSet())
	assert.ErrorIs(t, err, effect.ErrCompileFailed)
}

func TestCompileSPIRV(t *testing.T) {
	words, err := CompileSPIRV(`
@vertex
fn vs_main(@builtin(vertex_index) i: u32) -> @builtin(position) vec4<f32> {
    let x = f32(i) - 1.0;
    return vec4<f32>(x, 0.0, 0.0, 1.0);
}
`)
	require.NoError(t, err)
	require.NotEmpty(t, words)

	var magic [4]byte
	binary.LittleEndian.PutUint32(magic[:], words[0])
	assert.Equal(t, uint32(0x07230203), binary.LittleEndian.Uint32(magic[:]))
}
