// annotations.go defines the @oxy: annotations understood by the effect pre-processor.
// Annotations are single-line WGSL comments that select permutation branches, splice in
// shared source, and name the resource group of a @group index.
package shader

import (
	"fmt"
	"strconv"
	"strings"
)

// annotationPrefix is the marker that identifies an annotation within a WGSL comment line.
const annotationPrefix = "@oxy:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
type AnnotationType string

const (
	// AnnotationTypeInclude splices the source of another library entry at the annotation site.
	//
	// Syntax: //@oxy:include <name>
	AnnotationTypeInclude AnnotationType = "include"

	// AnnotationTypeIf starts a permutation branch kept only when the parameter is set. A bare
	// key tests for a truthy value; key=value compares the formatted parameter value.
	//
	// Syntax: //@oxy:if <KEY>[=<value>]
	AnnotationTypeIf AnnotationType = "if"

	// AnnotationTypeElse flips the innermost branch.
	//
	// Syntax: //@oxy:else
	AnnotationTypeElse AnnotationType = "else"

	// AnnotationTypeEndIf closes the innermost branch.
	//
	// Syntax: //@oxy:endif
	AnnotationTypeEndIf AnnotationType = "endif"

	// AnnotationTypeGroup names the resource group bound at a @group index.
	//
	// Syntax: //@oxy:group <index> <PerFrame|PerView|PerDraw|name>
	//
	// Example: //@oxy:group 1 PerView
	AnnotationTypeGroup AnnotationType = "group"
)

// Annotation is a single parsed @oxy: annotation.
type Annotation struct {
	Type AnnotationType

	// Args holds the arguments:
	//   - include: [0] = library entry name
	//   - if:      [0] = parameter key, [1] = expected value (optional)
	//   - group:   [0] = resource group name
	Args []string

	// Line is the 1-based source line, used for error reporting.
	Line int

	// Group is the @group index of a group annotation, -1 otherwise.
	Group int
}

// parseAnnotation attempts to parse a single line of WGSL source as an @oxy: annotation.
// Returns nil with no error for lines that do not carry the prefix.
//
// Parameters:
//   - line: the raw WGSL source line to parse
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed annotation, or nil if the line is not an annotation
//   - error: a descriptive error if the annotation is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "//") {
		return nil, nil
	}
	_, after, ok := strings.Cut(trimmed, annotationPrefix)
	if !ok {
		return nil, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty @oxy annotation", lineNum)
	}

	switch AnnotationType(args[0]) {
	case AnnotationTypeInclude:
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @oxy include annotation requires exactly one argument", lineNum)
		}
		return &Annotation{Type: AnnotationTypeInclude, Args: args[1:], Line: lineNum, Group: -1}, nil
	case AnnotationTypeIf:
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @oxy if annotation requires exactly one condition", lineNum)
		}
		key, value, hasValue := strings.Cut(args[1], "=")
		if key == "" {
			return nil, fmt.Errorf("line %d: @oxy if annotation has an empty key", lineNum)
		}
		a := &Annotation{Type: AnnotationTypeIf, Args: []string{key}, Line: lineNum, Group: -1}
		if hasValue {
			a.Args = append(a.Args, value)
		}
		return a, nil
	case AnnotationTypeElse, AnnotationTypeEndIf:
		if len(args) != 1 {
			return nil, fmt.Errorf("line %d: @oxy %s annotation takes no arguments", lineNum, args[0])
		}
		return &Annotation{Type: AnnotationType(args[0]), Line: lineNum, Group: -1}, nil
	case AnnotationTypeGroup:
		if len(args) != 3 {
			return nil, fmt.Errorf("line %d: @oxy group annotation requires a group index and a resource group name", lineNum)
		}
		group, err := strconv.Atoi(args[1])
		if err != nil || group < 0 {
			return nil, fmt.Errorf("line %d: invalid group number %q in @oxy group annotation", lineNum, args[1])
		}
		return &Annotation{Type: AnnotationTypeGroup, Args: args[2:], Line: lineNum, Group: group}, nil
	default:
		return nil, fmt.Errorf("line %d: unknown @oxy annotation type %q", lineNum, args[0])
	}
}
