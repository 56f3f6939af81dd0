package common

// Coalesce returns the first non-zero value from the provided values, or the zero value if all are zero.
//
// Parameters:
//   - values: a variadic list of values to check for non-zero status
//
// Returns:
//   - T: the first non-zero value from the input, or the zero value if all are zero
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// SwapRemove removes the element at index by moving the last element into its place.
// Element order is not preserved. The freed tail slot is zeroed so the backing array
// does not keep pointers alive.
//
// Parameters:
//   - s: the slice to remove from
//   - index: the position to remove, must be within bounds
//
// Returns:
//   - []S: the shortened slice
func SwapRemove[S any](s []S, index int) []S {
	last := len(s) - 1
	if index != last {
		s[index] = s[last]
	}
	var zero S
	s[last] = zero
	return s[:last]
}

// GrowSlice returns s with a length of at least n, appending zero values when needed.
// Capacity grows geometrically so repeated small growth stays amortised.
//
// Parameters:
//   - s: the slice to grow
//   - n: the minimum length required
//
// Returns:
//   - []S: a slice with len >= n whose first len(s) elements are unchanged
func GrowSlice[S any](s []S, n int) []S {
	if len(s) >= n {
		return s
	}
	if cap(s) >= n {
		old := len(s)
		s = s[:n]
		clear(s[old:])
		return s
	}
	newCap := max(n, 2*cap(s), 4)
	grown := make([]S, n, newCap)
	copy(grown, s)
	return grown
}
