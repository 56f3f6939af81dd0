package shader

// BackendBuilderOption is a functional option used to configure a Backend during construction.
type BackendBuilderOption func(b *Backend)

// WithSPIRV validates every permutation with naga and attaches SPIR-V words to its bytecode.
//
// Parameters:
//   - enabled: whether to run naga
//
// Returns:
//   - BackendBuilderOption: a function that toggles SPIR-V output
func WithSPIRV(enabled bool) BackendBuilderOption {
	return func(b *Backend) {
		b.spirv = enabled
	}
}
