// Package node implements the handle and property-array layer of the frame pipeline.
// Render features never keep per-object data on the objects themselves. They store it in
// flat typed arrays indexed through the integer references defined here.
package node

// DataType identifies which node population a property array tracks.
type DataType int

const (
	// DataTypeViewObject arrays hold one entry per (view, object) pair of the current frame.
	DataTypeViewObject DataType = iota
	// DataTypeObject arrays hold one entry per object touched during the current frame.
	DataTypeObject
	// DataTypeRender arrays hold one entry per render node (view, object, stage) of the current frame.
	DataTypeRender
	// DataTypeEffectObject arrays hold one entry per (effect, object) node of the current frame.
	DataTypeEffectObject
	// DataTypeView arrays hold one entry per registered view.
	DataTypeView
	// DataTypeEffectView arrays hold one entry per (effect slot, view) pair.
	DataTypeEffectView
	// DataTypeStaticObject arrays hold one entry per registered object and survive across frames.
	DataTypeStaticObject
	// DataTypeStaticEffectObject arrays hold one entry per (registered object, effect slot) pair.
	DataTypeStaticEffectObject
)

// String returns the name of the data type.
func (d DataType) String() string {
	switch d {
	case DataTypeViewObject:
		return "ViewObject"
	case DataTypeObject:
		return "Object"
	case DataTypeRender:
		return "Render"
	case DataTypeEffectObject:
		return "EffectObject"
	case DataTypeView:
		return "View"
	case DataTypeEffectView:
		return "EffectView"
	case DataTypeStaticObject:
		return "StaticObject"
	case DataTypeStaticEffectObject:
		return "StaticEffectObject"
	default:
		return "Unknown"
	}
}

// invalidIndex is the sentinel index shared by every reference type.
const invalidIndex = -1

// StaticObjectNodeReference is a stable index into cross-frame object storage.
// It stays valid for the whole registered lifetime of an object and is only
// rewritten when swap-removal moves the object into a freed slot.
type StaticObjectNodeReference struct{ Index int }

// ObjectNodeReference indexes frame-scoped per-object storage.
type ObjectNodeReference struct{ Index int }

// ViewObjectNodeReference indexes frame-scoped per-(view, object) storage.
type ViewObjectNodeReference struct{ Index int }

// RenderNodeReference indexes frame-scoped per-(view, object, stage) storage.
// A render node is the unit that is sorted and drawn.
type RenderNodeReference struct{ Index int }

// EffectObjectNodeReference indexes frame-scoped per-(effect, object) storage.
type EffectObjectNodeReference struct{ Index int }

// ViewNodeReference indexes per-view storage.
type ViewNodeReference struct{ Index int }

// StaticEffectObjectNodeReference indexes per-(object, effect slot) storage.
type StaticEffectObjectNodeReference struct{ Index int }

var (
	InvalidStaticObjectNode       = StaticObjectNodeReference{invalidIndex}
	InvalidObjectNode             = ObjectNodeReference{invalidIndex}
	InvalidViewObjectNode         = ViewObjectNodeReference{invalidIndex}
	InvalidRenderNode             = RenderNodeReference{invalidIndex}
	InvalidEffectObjectNode       = EffectObjectNodeReference{invalidIndex}
	InvalidViewNode               = ViewNodeReference{invalidIndex}
	InvalidStaticEffectObjectNode = StaticEffectObjectNodeReference{invalidIndex}
)

// IsValid reports whether the reference points at a slot.
func (r StaticObjectNodeReference) IsValid() bool { return r.Index != invalidIndex }

// IsValid reports whether the reference points at a slot.
func (r ObjectNodeReference) IsValid() bool { return r.Index != invalidIndex }

// IsValid reports whether the reference points at a slot.
func (r ViewObjectNodeReference) IsValid() bool { return r.Index != invalidIndex }

// IsValid reports whether the reference points at a slot.
func (r RenderNodeReference) IsValid() bool { return r.Index != invalidIndex }

// IsValid reports whether the reference points at a slot.
func (r EffectObjectNodeReference) IsValid() bool { return r.Index != invalidIndex }

// Slot returns the index of one of the multiplier-wide sub-slots owned by this
// static object, for arrays that store several entries per object.
//
// Parameters:
//   - multiplier: the number of entries stored per object
//   - slot: the sub-slot within the object's entries
//
// Returns:
//   - int: the flat index into the property array
func (r StaticObjectNodeReference) Slot(multiplier, slot int) int {
	return r.Index*multiplier + slot
}

// Effect returns the static effect object reference for one effect slot of this object.
//
// Parameters:
//   - slotCount: the number of effect permutation slots per object
//   - slot: the effect slot index
//
// Returns:
//   - StaticEffectObjectNodeReference: the combined reference
func (r StaticObjectNodeReference) Effect(slotCount, slot int) StaticEffectObjectNodeReference {
	return StaticEffectObjectNodeReference{r.Index*slotCount + slot}
}
