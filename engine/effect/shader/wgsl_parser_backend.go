package shader

import (
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-pipeline/engine/gpu"
)

// wgslPrimitiveLayoutMap maps WGSL primitive, vector, matrix, and atomic type names
// to their byte size and alignment per the WGSL layout rules.
//
// Reference: https://www.w3.org/TR/WGSL/#alignment-and-size
var wgslPrimitiveLayoutMap = map[string]wgslTypeLayout{
	"f32":  {4, 4},
	"i32":  {4, 4},
	"u32":  {4, 4},
	"f16":  {2, 2},
	"bool": {4, 4},

	"vec2<f32>": {8, 8},
	"vec2f":     {8, 8},
	"vec3<f32>": {12, 16},
	"vec3f":     {12, 16},
	"vec4<f32>": {16, 16},
	"vec4f":     {16, 16},

	"vec2<i32>": {8, 8},
	"vec2i":     {8, 8},
	"vec3<i32>": {12, 16},
	"vec3i":     {12, 16},
	"vec4<i32>": {16, 16},
	"vec4i":     {16, 16},

	"vec2<u32>": {8, 8},
	"vec2u":     {8, 8},
	"vec3<u32>": {12, 16},
	"vec3u":     {12, 16},
	"vec4<u32>": {16, 16},
	"vec4u":     {16, 16},

	// matCxR<f32>: C columns of vecR<f32>, stride = roundUp(align(vecR), size(vecR))
	"mat2x2<f32>": {16, 8},
	"mat2x2f":     {16, 8},
	"mat3x3<f32>": {48, 16},
	"mat3x3f":     {48, 16},
	"mat4x3<f32>": {64, 16},
	"mat4x4<f32>": {64, 16},
	"mat4x4f":     {64, 16},

	"atomic<u32>": {4, 4},
	"atomic<i32>": {4, 4},
}

// wgslVertexFormatMap maps WGSL type names to their vertex format and byte size
var wgslVertexFormatMap = map[string]vertexFormatInfo{
	"f32":       {gpu.VertexFormatFloat32, 4},
	"vec2f":     {gpu.VertexFormatFloat32x2, 8},
	"vec2<f32>": {gpu.VertexFormatFloat32x2, 8},
	"vec3f":     {gpu.VertexFormatFloat32x3, 12},
	"vec3<f32>": {gpu.VertexFormatFloat32x3, 12},
	"vec4f":     {gpu.VertexFormatFloat32x4, 16},
	"vec4<f32>": {gpu.VertexFormatFloat32x4, 16},
	"i32":       {gpu.VertexFormatSint32, 4},
	"vec2i":     {gpu.VertexFormatSint32x2, 8},
	"vec2<i32>": {gpu.VertexFormatSint32x2, 8},
	"vec3i":     {gpu.VertexFormatSint32x3, 12},
	"vec3<i32>": {gpu.VertexFormatSint32x3, 12},
	"vec4i":     {gpu.VertexFormatSint32x4, 16},
	"vec4<i32>": {gpu.VertexFormatSint32x4, 16},
	"u32":       {gpu.VertexFormatUint32, 4},
	"vec2u":     {gpu.VertexFormatUint32x2, 8},
	"vec2<u32>": {gpu.VertexFormatUint32x2, 8},
	"vec3u":     {gpu.VertexFormatUint32x3, 12},
	"vec3<u32>": {gpu.VertexFormatUint32x3, 12},
	"vec4u":     {gpu.VertexFormatUint32x4, 16},
	"vec4<u32>": {gpu.VertexFormatUint32x4, 16},
}

// roundUpAlign rounds value up to the next multiple of alignment.
// Alignment must be a power of two.
func roundUpAlign(alignment, value uint64) uint64 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

// resolveTypeLayout resolves a WGSL type name to its size and alignment using primitives
// and previously-computed struct layouts. Fixed-size arrays are resolved; runtime-sized arrays
// resolve to one element stride so they can serve as a minimum binding size.
//
// Parameters:
//   - typeName: the WGSL type name to resolve, e.g. "f32", "ViewData", "array<vec4f, 4>"
//   - knownTypes: a map of already-resolved type names to their layouts
//
// Returns:
//   - wgslTypeLayout: the resolved layout
//   - bool: true if the type could be resolved
func resolveTypeLayout(typeName string, knownTypes map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	if layout, ok := wgslPrimitiveLayoutMap[typeName]; ok {
		return layout, true
	}
	if layout, ok := knownTypes[typeName]; ok {
		return layout, true
	}

	if strings.HasPrefix(typeName, "array<") && strings.HasSuffix(typeName, ">") {
		inner := typeName[6 : len(typeName)-1]
		parts := splitAtTopLevelCommas(inner)
		elemLayout, ok := resolveTypeLayout(strings.TrimSpace(parts[0]), knownTypes)
		if !ok {
			return wgslTypeLayout{}, false
		}
		stride := roundUpAlign(elemLayout.align, elemLayout.size)
		if len(parts) == 2 {
			count, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
			if err != nil {
				return wgslTypeLayout{}, false
			}
			return wgslTypeLayout{count * stride, elemLayout.align}, true
		}
		return wgslTypeLayout{stride, elemLayout.align}, true
	}

	return wgslTypeLayout{}, false
}

// isRuntimeArray reports whether a type is an array without an element count.
func isRuntimeArray(typeName string) bool {
	if !strings.HasPrefix(typeName, "array<") {
		return false
	}
	return len(splitAtTopLevelCommas(typeName[6:len(typeName)-1])) == 1
}

// computeStructLayout computes the byte size, alignment and member offsets of a WGSL struct:
// each field is placed at the next aligned offset and the total size is rounded up to the
// largest field alignment. A trailing runtime-sized array contributes no size. Builtin fields
// are skipped.
//
// Parameters:
//   - ps: the parsed struct whose layout to compute
//   - knownTypes: a map of already-resolved type names to their layouts
//
// Returns:
//   - wgslTypeLayout: the computed layout
//   - []gpu.ConstantBufferMember: the member offsets
//   - bool: true if all fields could be resolved
func computeStructLayout(ps parsedStruct, knownTypes map[string]wgslTypeLayout) (wgslTypeLayout, []gpu.ConstantBufferMember, bool) {
	offset := uint64(0)
	maxAlign := uint64(1)
	members := make([]gpu.ConstantBufferMember, 0, len(ps.fields))

	for _, field := range ps.fields {
		if field.isBuiltin {
			continue
		}
		fieldLayout, ok := resolveTypeLayout(field.typeName, knownTypes)
		if !ok {
			return wgslTypeLayout{}, nil, false
		}
		if fieldLayout.align > maxAlign {
			maxAlign = fieldLayout.align
		}
		offset = roundUpAlign(fieldLayout.align, offset)
		size := fieldLayout.size
		if isRuntimeArray(field.typeName) {
			size = 0
		}
		members = append(members, gpu.ConstantBufferMember{Name: field.name, Offset: int(offset), Size: int(size)})
		offset += size
	}

	size := roundUpAlign(maxAlign, offset)
	if size == 0 && len(members) > 0 {
		// only a runtime-sized array: one element is the minimum useful size
		if l, ok := resolveTypeLayout(ps.fields[len(ps.fields)-1].typeName, knownTypes); ok {
			size = l.size
		}
	}
	return wgslTypeLayout{size, maxAlign}, members, true
}

// computeStructSizes computes the layout of every parsed struct, resolving nested struct
// fields iteratively.
//
// Parameters:
//   - structs: all parsed struct blocks from the WGSL source
//
// Returns:
//   - map[string]wgslTypeLayout: struct name to layout
//   - map[string][]gpu.ConstantBufferMember: struct name to member offsets
func computeStructSizes(structs []parsedStruct) (map[string]wgslTypeLayout, map[string][]gpu.ConstantBufferMember) {
	resolved := make(map[string]wgslTypeLayout, len(structs))
	members := make(map[string][]gpu.ConstantBufferMember, len(structs))
	remaining := make([]parsedStruct, len(structs))
	copy(remaining, structs)

	for {
		progress := false
		next := remaining[:0]
		for _, ps := range remaining {
			if layout, m, ok := computeStructLayout(ps, resolved); ok {
				resolved[ps.name] = layout
				members[ps.name] = m
				progress = true
			} else {
				next = append(next, ps)
			}
		}
		remaining = next
		if !progress || len(remaining) == 0 {
			break
		}
	}
	return resolved, members
}

// classifyResource creates a layout entry from a parsed WGSL resource declaration, deciding
// between buffer, sampler, and texture bindings from the address space and type name.
//
// Parameters:
//   - b: the parsed declaration
//
// Returns:
//   - gpu.DescriptorSetLayoutEntry: the classified entry
func classifyResource(b parsedBinding) gpu.DescriptorSetLayoutEntry {
	entry := gpu.DescriptorSetLayoutEntry{
		Binding:    b.binding,
		Name:       b.varName,
		Visibility: gpu.ShaderStageVertex | gpu.ShaderStageFragment,
	}

	if b.addressSpace != "" {
		switch {
		case b.addressSpace == "uniform":
			entry.Kind = gpu.BindingKindUniformBuffer
		case strings.HasPrefix(b.addressSpace, "storage"):
			if strings.Contains(b.addressSpace, "read_write") {
				entry.Kind = gpu.BindingKindStorageBuffer
				entry.Visibility = gpu.ShaderStageFragment
			} else {
				entry.Kind = gpu.BindingKindReadOnlyStorageBuffer
			}
		}
		return entry
	}

	base, params := splitTypeParams(b.typeName)
	switch {
	case b.typeName == "sampler":
		entry.Kind = gpu.BindingKindSampler
	case b.typeName == "sampler_comparison":
		entry.Kind = gpu.BindingKindComparisonSampler
	case strings.HasPrefix(base, "texture_storage_"):
		entry.Kind = gpu.BindingKindStorageTexture
		entry.Visibility = gpu.ShaderStageFragment
		entry.Dimension = textureDimension(strings.TrimPrefix(base, "texture_storage_"))
		format, _, _ := strings.Cut(params, ",")
		entry.Format = gpu.PixelFormat(strings.TrimSpace(format))
	case strings.HasPrefix(base, "texture_depth_"):
		entry.Kind = gpu.BindingKindDepthTexture
		entry.Dimension = textureDimension(strings.TrimPrefix(base, "texture_depth_"))
	case strings.HasPrefix(base, "texture_"):
		entry.Kind = gpu.BindingKindSampledTexture
		entry.Dimension = textureDimension(strings.TrimPrefix(base, "texture_"))
	}
	return entry
}

// textureDimension maps the suffix of a WGSL texture type to a view dimension string.
func textureDimension(suffix string) string {
	switch suffix {
	case "1d":
		return "1d"
	case "2d_array":
		return "2d-array"
	case "3d":
		return "3d"
	case "cube":
		return "cube"
	case "cube_array":
		return "cube-array"
	default:
		return "2d"
	}
}

// splitTypeParams splits a WGSL parameterized type into its base name and parameter string.
// For "texture_2d<f32>" returns ("texture_2d", "f32").
func splitTypeParams(typeName string) (base string, params string) {
	before, after, ok := strings.Cut(typeName, "<")
	if !ok {
		return typeName, ""
	}
	return before, strings.TrimSpace(strings.TrimSuffix(after, ">"))
}

// stripComments removes both single-line (//) and block (/* */) comments from WGSL source.
func stripComments(source string) string {
	return stripLineComments(stripBlockComments(source))
}

// stripLineComments removes single-line // comments from WGSL source.
func stripLineComments(source string) string {
	var sb strings.Builder
	for line := range strings.SplitSeq(source, "\n") {
		if idx := strings.Index(line, "//"); idx >= 0 {
			line = line[:idx]
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// stripBlockComments removes block comments, which may nest in WGSL.
func stripBlockComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	depth := 0
	for i := 0; i < len(source); i++ {
		if i+1 < len(source) {
			if source[i] == '/' && source[i+1] == '*' {
				depth++
				i++
				continue
			}
			if source[i] == '*' && source[i+1] == '/' && depth > 0 {
				depth--
				i++
				continue
			}
		}
		if depth == 0 {
			sb.WriteByte(source[i])
		}
	}
	return sb.String()
}

// isVertexInputStruct reports whether a struct has @location fields and no @builtin fields,
// which distinguishes vertex inputs from vertex outputs.
func isVertexInputStruct(ps parsedStruct) bool {
	hasLocation := false
	for _, f := range ps.fields {
		if f.isBuiltin {
			return false
		}
		if f.location >= 0 {
			hasLocation = true
		}
	}
	return hasLocation
}

// buildVertexBufferLayout converts a vertex input struct into a tightly packed buffer layout.
// Returns false if a field type has no vertex format.
func buildVertexBufferLayout(ps parsedStruct) (gpu.VertexBufferLayout, bool) {
	attrs := make([]gpu.VertexAttribute, 0, len(ps.fields))
	var offset uint64
	for _, f := range ps.fields {
		info, ok := wgslVertexFormatMap[f.typeName]
		if !ok {
			return gpu.VertexBufferLayout{}, false
		}
		attrs = append(attrs, gpu.VertexAttribute{
			Format:         info.format,
			Offset:         offset,
			ShaderLocation: uint32(f.location),
		})
		offset += info.size
	}
	return gpu.VertexBufferLayout{ArrayStride: offset, Attributes: attrs}, true
}

// splitAtTopLevelCommas splits a string at commas that are not nested inside angle brackets,
// so types like array<vec4f, 6> stay whole.
func splitAtTopLevelCommas(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
