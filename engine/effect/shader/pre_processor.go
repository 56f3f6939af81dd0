// pre_processor.go expands @oxy: annotations into the WGSL source of one permutation.
package shader

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-pipeline/engine/effect"
)

// maxIncludeDepth bounds nested includes.
const maxIncludeDepth = 16

// Processed is the output of the pre-processor for one permutation.
type Processed struct {
	// Source is the expanded WGSL.
	Source string
	// GroupNames maps @group indices to resource group names.
	GroupNames map[int]string
	// Includes lists every library entry spliced in, in first-use order.
	Includes []string
}

// branch is one open if/else block.
type branch struct {
	active     bool
	parent     bool
	seenElse   bool
	openedLine int
}

// preProcessor expands annotations against a library and a parameter set.
type preProcessor struct {
	library *Library
	params  *effect.ParameterSet
	out     *Processed
	seen    map[string]bool
}

// Process expands the annotations of a library entry for one permutation.
//
// Parameters:
//   - library: resolves include names
//   - name: the library entry to expand
//   - params: the permutation parameters tested by if annotations
//
// Returns:
//   - *Processed: the expanded source and collected declarations
//   - error: an error for malformed annotations, unbalanced branches or missing includes
func Process(library *Library, name string, params *effect.ParameterSet) (*Processed, error) {
	p := &preProcessor{
		library: library,
		params:  params,
		out:     &Processed{GroupNames: make(map[int]string)},
		seen:    map[string]bool{name: true},
	}
	var sb strings.Builder
	if err := p.expand(&sb, name, 0); err != nil {
		return nil, err
	}
	p.out.Source = sb.String()
	return p.out, nil
}

func (p *preProcessor) expand(sb *strings.Builder, name string, depth int) error {
	if depth > maxIncludeDepth {
		return fmt.Errorf("%s: include depth exceeds %d", name, maxIncludeDepth)
	}
	source, err := p.library.Source(name)
	if err != nil {
		return err
	}

	var stack []branch
	active := func() bool {
		return len(stack) == 0 || stack[len(stack)-1].active
	}

	for i, line := range strings.Split(source, "\n") {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if a == nil {
			if active() {
				sb.WriteString(line)
				sb.WriteByte('\n')
			}
			continue
		}

		switch a.Type {
		case AnnotationTypeIf:
			parent := active()
			stack = append(stack, branch{active: parent && p.evaluate(a.Args), parent: parent, openedLine: a.Line})
		case AnnotationTypeElse:
			if len(stack) == 0 {
				return fmt.Errorf("%s: line %d: @oxy else without if", name, a.Line)
			}
			top := &stack[len(stack)-1]
			if top.seenElse {
				return fmt.Errorf("%s: line %d: duplicate @oxy else", name, a.Line)
			}
			top.seenElse = true
			top.active = top.parent && !top.active
		case AnnotationTypeEndIf:
			if len(stack) == 0 {
				return fmt.Errorf("%s: line %d: @oxy endif without if", name, a.Line)
			}
			stack = stack[:len(stack)-1]
		case AnnotationTypeInclude:
			if !active() {
				continue
			}
			inc := a.Args[0]
			if p.seen[inc] {
				continue
			}
			p.seen[inc] = true
			p.out.Includes = append(p.out.Includes, inc)
			if err := p.expand(sb, inc, depth+1); err != nil {
				return err
			}
		case AnnotationTypeGroup:
			if !active() {
				continue
			}
			if prev, ok := p.out.GroupNames[a.Group]; ok && prev != a.Args[0] {
				return fmt.Errorf("%s: line %d: group %d already named %q", name, a.Line, a.Group, prev)
			}
			p.out.GroupNames[a.Group] = a.Args[0]
		}
	}

	if len(stack) > 0 {
		return fmt.Errorf("%s: line %d: unterminated @oxy if", name, stack[len(stack)-1].openedLine)
	}
	return nil
}

// evaluate tests an if condition against the permutation parameters.
func (p *preProcessor) evaluate(args []string) bool {
	v, ok := p.params.Get(args[0])
	if !ok {
		return false
	}
	if len(args) == 2 {
		return fmt.Sprint(v) == args[1]
	}
	switch t := v.(type) {
	case bool:
		return t
	case int:
		return t != 0
	case uint32:
		return t != 0
	case float32:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return v != nil
	}
}
