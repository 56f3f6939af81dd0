package shader

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-pipeline/engine/effect"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/gpu"
)

var (
	// structBlockRegex matches struct declarations and captures the name and body
	structBlockRegex = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)

	// locationRegex matches @location(N) attributes
	locationRegex = regexp.MustCompile(`@location\((\d+)\)`)

	// builtinRegex matches @builtin(...) attributes
	builtinRegex = regexp.MustCompile(`@builtin\(\w+\)`)

	// fieldRegex matches a struct field line: optional attributes, name, colon, type.
	fieldRegex = regexp.MustCompile(`(?:(?:@\w+\([^)]*\)\s*)*)*\s*(\w+)\s*:\s*(.+)`)

	// vertexEntryRegex matches @vertex functions and captures the entry point name
	vertexEntryRegex = regexp.MustCompile(`(?s)@vertex\b.*?\bfn\s+(\w+)`)

	// fragmentEntryRegex matches @fragment functions and captures the entry point name
	fragmentEntryRegex = regexp.MustCompile(`(?s)@fragment\b.*?\bfn\s+(\w+)`)

	// bindGroupDeclRegex captures group, binding, optional address space, variable name, and type
	// from declarations like: @group(0) @binding(0) var<uniform> view: ViewData;
	bindGroupDeclRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)
)

// Reflect extracts the resources, constant buffers, and vertex inputs of an expanded effect.
// Every @group becomes one descriptor set named after its @oxy:group annotation, or "Group<N>"
// when unnamed. The first var<uniform> of a group is its constant buffer, named after the group.
//
// Parameters:
//   - source: the expanded WGSL source
//   - groupNames: resource group names keyed by @group index
//
// Returns:
//   - *effect.Reflection: the reflected resources
//   - error: an error on duplicate bindings or unresolvable uniform types
func Reflect(source string, groupNames map[int]string) (*effect.Reflection, error) {
	cleaned := stripComments(source)
	structs := parseStructBlocks(cleaned)
	layouts, members := computeStructSizes(structs)

	bindings := parseBindings(cleaned)
	byGroup := make(map[int][]parsedBinding)
	for _, b := range bindings {
		byGroup[b.group] = append(byGroup[b.group], b)
	}
	groups := make([]int, 0, len(byGroup))
	for g := range byGroup {
		groups = append(groups, g)
	}
	slices.Sort(groups)

	refl := &effect.Reflection{}
	for _, g := range groups {
		name, ok := groupNames[g]
		if !ok {
			name = "Group" + strconv.Itoa(g)
		}
		entries := byGroup[g]
		slices.SortFunc(entries, func(a, b parsedBinding) int { return int(a.binding) - int(b.binding) })

		builder := gpu.NewDescriptorSetLayoutBuilder(name)
		var cbuffer *gpu.ConstantBufferDescription
		for i, b := range entries {
			if i > 0 && entries[i-1].binding == b.binding {
				return nil, fmt.Errorf("group %d: duplicate binding %d", g, b.binding)
			}
			entry := classifyResource(b)
			if entry.Kind.IsBuffer() {
				layout, ok := resolveTypeLayout(b.typeName, layouts)
				if ok {
					entry.MinBindingSize = layout.size
				}
				if entry.Kind == gpu.BindingKindUniformBuffer && cbuffer == nil {
					if !ok {
						return nil, fmt.Errorf("group %d binding %d: cannot resolve uniform type %q", g, b.binding, b.typeName)
					}
					cbuffer = &gpu.ConstantBufferDescription{
						Name:    name,
						Binding: b.binding,
						Size:    layout.size,
						Members: uniformMembers(b, layout, members),
					}
				}
			}
			builder.AddBinding(entry)
		}

		refl.DescriptorSets = append(refl.DescriptorSets, effect.DescriptorSetReflection{Name: name, Group: g, Layout: builder})
		if cbuffer != nil {
			refl.ConstantBuffers = append(refl.ConstantBuffers, cbuffer)
		}
	}

	refl.VertexLayouts = parseVertexLayouts(cleaned)
	return refl, nil
}

// uniformMembers returns the constant buffer members of a uniform binding: the struct fields
// for a struct type, or the variable itself for a primitive.
func uniformMembers(b parsedBinding, layout wgslTypeLayout, members map[string][]gpu.ConstantBufferMember) []gpu.ConstantBufferMember {
	if m, ok := members[b.typeName]; ok {
		return slices.Clone(m)
	}
	return []gpu.ConstantBufferMember{{Name: b.varName, Offset: 0, Size: int(layout.size)}}
}

// parseBindings extracts every @group/@binding declaration.
func parseBindings(cleaned string) []parsedBinding {
	matches := bindGroupDeclRegex.FindAllStringSubmatch(cleaned, -1)
	out := make([]parsedBinding, 0, len(matches))
	for _, match := range matches {
		group, _ := strconv.Atoi(match[1])
		binding, _ := strconv.Atoi(match[2])
		out = append(out, parsedBinding{
			group:        group,
			binding:      uint32(binding),
			addressSpace: strings.TrimSpace(match[3]),
			varName:      strings.TrimSpace(match[4]),
			typeName:     strings.TrimSpace(match[5]),
		})
	}
	return out
}

// parseVertexLayouts converts every pure vertex input struct into a vertex buffer layout,
// in declaration order. Structs with types lacking a vertex format are skipped.
func parseVertexLayouts(cleaned string) []gpu.VertexBufferLayout {
	var result []gpu.VertexBufferLayout
	for _, ps := range parseStructBlocks(cleaned) {
		if !isVertexInputStruct(ps) {
			continue
		}
		if layout, ok := buildVertexBufferLayout(ps); ok {
			result = append(result, layout)
		}
	}
	return result
}

// parseEntryPoints returns the vertex and fragment entry point names, empty when absent.
func parseEntryPoints(source string) (vertex, fragment string) {
	cleaned := stripComments(source)
	if m := vertexEntryRegex.FindStringSubmatch(cleaned); m != nil {
		vertex = m[1]
	}
	if m := fragmentEntryRegex.FindStringSubmatch(cleaned); m != nil {
		fragment = m[1]
	}
	return vertex, fragment
}

// parseStructBlocks finds all struct { ... } blocks in the cleaned WGSL source.
func parseStructBlocks(source string) []parsedStruct {
	matches := structBlockRegex.FindAllStringSubmatch(source, -1)
	structs := make([]parsedStruct, 0, len(matches))
	for _, match := range matches {
		structs = append(structs, parsedStruct{
			name:   match[1],
			fields: parseStructFields(match[2]),
		})
	}
	return structs
}

// parseStructFields parses the body of a struct block into fields, extracting @location and
// @builtin attributes along with the field name and type.
func parseStructFields(body string) []parsedField {
	lines := splitAtTopLevelCommas(body)
	fields := make([]parsedField, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		field := parsedField{location: -1}
		if builtinRegex.MatchString(line) {
			field.isBuiltin = true
		}
		if locMatch := locationRegex.FindStringSubmatch(line); locMatch != nil {
			if loc, err := strconv.Atoi(locMatch[1]); err == nil {
				field.location = loc
			}
		}

		fm := fieldRegex.FindStringSubmatch(line)
		if fm == nil {
			continue
		}
		field.name = fm[1]
		field.typeName = strings.TrimSpace(fm[2])
		fields = append(fields, field)
	}
	return fields
}
