package shader

// LibraryBuilderOption is a functional option used to configure a Library during construction.
type LibraryBuilderOption func(l *Library)

// WithDirectory loads entries from <dir>/<name>.wgsl.
//
// Parameters:
//   - dir: the effect source directory
//
// Returns:
//   - LibraryBuilderOption: a function that sets the source directory
func WithDirectory(dir string) LibraryBuilderOption {
	return func(l *Library) {
		l.dir = dir
	}
}

// WithSource registers an in-memory entry.
//
// Parameters:
//   - name: the entry name
//   - source: the WGSL source
//
// Returns:
//   - LibraryBuilderOption: a function that registers the source
func WithSource(name, source string) LibraryBuilderOption {
	return func(l *Library) {
		l.sources[name] = source
	}
}
