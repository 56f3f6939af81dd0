package effect

// CachedCompilerBuilderOption is a functional option used to configure a CachedCompiler during construction.
type CachedCompilerBuilderOption func(c *CachedCompiler)

// WithAsyncWorkers runs backend compiles on a worker pool of the given size. Zero keeps
// compilation synchronous on the calling goroutine.
//
// Parameters:
//   - workers: the maximum number of concurrent compiles
//
// Returns:
//   - CachedCompilerBuilderOption: a function that sets the worker count
func WithAsyncWorkers(workers int) CachedCompilerBuilderOption {
	return func(c *CachedCompiler) {
		if workers >= 0 {
			c.workers = workers
		}
	}
}
