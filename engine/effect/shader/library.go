package shader

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-pipeline/engine/effect"
	"github.com/pkg/errors"
)

// sourceExtension is the file extension of effect sources on disk.
const sourceExtension = ".wgsl"

// Library resolves effect names to WGSL sources. In-memory sources take precedence over the
// source directory. Directory sources are read on every lookup so edits are picked up after
// the compiler invalidates the effect.
type Library struct {
	mu       *sync.Mutex
	dir      string
	sources  map[string]string
	includes map[string][]string
}

// NewLibrary creates a library.
//
// Parameters:
//   - opts: functional options (directory, in-memory sources)
//
// Returns:
//   - *Library: the library
func NewLibrary(opts ...LibraryBuilderOption) *Library {
	l := &Library{
		mu:       &sync.Mutex{},
		sources:  make(map[string]string),
		includes: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dir returns the source directory, empty when the library is memory only.
func (l *Library) Dir() string {
	return l.dir
}

// SetSource registers or replaces an in-memory source.
//
// Parameters:
//   - name: the effect or include name
//   - source: the WGSL source with @oxy: annotations
func (l *Library) SetSource(name, source string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sources[name] = source
}

// Source returns the source of an entry.
//
// Parameters:
//   - name: the effect or include name
//
// Returns:
//   - string: the raw source
//   - error: effect.ErrEffectNotFound when no source exists
func (l *Library) Source(name string) (string, error) {
	l.mu.Lock()
	src, ok := l.sources[name]
	l.mu.Unlock()
	if ok {
		return src, nil
	}
	if l.dir == "" || strings.ContainsAny(name, `/\`) {
		return "", errors.Wrapf(effect.ErrEffectNotFound, "%q", name)
	}
	data, err := os.ReadFile(filepath.Join(l.dir, name+sourceExtension))
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Wrapf(effect.ErrEffectNotFound, "%q", name)
		}
		return "", errors.Wrapf(err, "read effect source %q", name)
	}
	return string(data), nil
}

// recordIncludes remembers which entries an effect spliced in.
func (l *Library) recordIncludes(name string, includes []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.includes[name] = slices.Clone(includes)
}

// Dependents maps a changed source file to the effects that must be recompiled: the entry
// itself and every effect that included it in its last compile. Usable as an effect.ResolveFunc.
//
// Parameters:
//   - path: the changed file path
//
// Returns:
//   - []string: the effect names to invalidate
func (l *Library) Dependents(path string) []string {
	changed := effect.EffectNameFromPath(path)[0]
	out := []string{changed}

	l.mu.Lock()
	defer l.mu.Unlock()
	for name, incs := range l.includes {
		if name != changed && slices.Contains(incs, changed) {
			out = append(out, name)
		}
	}
	slices.Sort(out[1:])
	return out
}
