package effect

// EffectValidator accumulates the permutation parameters contributed during one frame and
// reports whether they differ from the ones the bound effect was compiled with.
//
// Usage per frame: BeginEffectValidation, any number of ValidateParameter calls, then
// EndEffectValidation. A fresh validator always reports a change so the first frame compiles.
type EffectValidator struct {
	// ShouldSkip is set by contributors to drop the object from the stage this frame.
	ShouldSkip bool

	current *ParameterSet
	pending *ParameterSet
	valid   bool
}

// NewEffectValidator creates a validator in the invalid state.
func NewEffectValidator() *EffectValidator {
	return &EffectValidator{
		current: &ParameterSet{},
		pending: &ParameterSet{},
	}
}

// BeginEffectValidation starts a new round of contributions.
func (v *EffectValidator) BeginEffectValidation() {
	v.ShouldSkip = false
	v.pending.Clear()
}

// ValidateParameter records one permutation-affecting pair.
//
// Parameters:
//   - key: the parameter name
//   - value: a comparable value
func (v *EffectValidator) ValidateParameter(key string, value any) {
	v.pending.Set(key, value)
}

// EndEffectValidation closes the round.
//
// Returns:
//   - bool: true when the parameters are unchanged since the last round and no
//     invalidation happened in between, false when the effect must be recompiled
func (v *EffectValidator) EndEffectValidation() bool {
	if v.valid && v.pending.Equal(v.current) {
		return true
	}
	v.current, v.pending = v.pending, v.current
	v.valid = true
	return false
}

// Invalidate forces the next EndEffectValidation to report a change.
func (v *EffectValidator) Invalidate() {
	v.valid = false
}

// Parameters returns the parameters of the last completed round.
func (v *EffectValidator) Parameters() *ParameterSet {
	return v.current
}
