package node

import (
	"github.com/pkg/errors"
)

// PopulationFunc reports how many nodes of a data type currently exist for the owner of a holder.
type PopulationFunc func(dataType DataType) int

// RenderDataHolder owns every property column of one render feature or visibility group.
// Columns are created once with CreateKey and resized at phase boundaries with PrepareDataArrays.
type RenderDataHolder struct {
	arrays      []dataArray
	definitions map[any]int
	population  PopulationFunc
}

// NewRenderDataHolder creates an empty holder.
//
// Parameters:
//   - population: callback returning the current node count per data type
//
// Returns:
//   - *RenderDataHolder: the new holder
func NewRenderDataHolder(population PopulationFunc) *RenderDataHolder {
	if population == nil {
		panic("node: population callback cannot be nil")
	}
	return &RenderDataHolder{
		definitions: make(map[any]int),
		population:  population,
	}
}

// CreateKey allocates a typed column for a node population. When definition is non-nil the
// call is idempotent: the same definition always yields the same column on this holder.
//
// Parameters:
//   - h: the holder that will own the column
//   - dataType: the node population the column tracks
//   - definition: optional shared identity of the property, may be nil
//   - multiplier: entries stored per node, values below 1 are treated as 1
//
// Returns:
//   - PropertyKey[T]: the key used with GetData
func CreateKey[T any](h *RenderDataHolder, dataType DataType, definition *PropertyDefinition[T], multiplier int) PropertyKey[T] {
	if definition != nil {
		if column, ok := h.definitions[definition]; ok {
			if h.arrays[column].kind() != dataType {
				panic(errors.Wrapf(ErrDataTypeMismatch, "definition %q used with %s, created as %s", definition.Name, dataType, h.arrays[column].kind()))
			}
			return PropertyKey[T]{dataType: dataType, index: column + 1}
		}
	}

	if multiplier < 1 {
		multiplier = 1
	}
	array := &PropertyArray[T]{dataType: dataType, multiplier: multiplier}
	array.ensure(h.population(dataType))
	h.arrays = append(h.arrays, array)
	column := len(h.arrays) - 1
	if definition != nil {
		h.definitions[definition] = column
	}
	return PropertyKey[T]{dataType: dataType, index: column + 1}
}

// GetData returns the typed array behind a key. Panics with ErrInvalidKey or ErrKeyTypeMismatch
// when the key was not created on this holder.
//
// Parameters:
//   - h: the holder owning the column
//   - key: a key returned by CreateKey on the same holder
//
// Returns:
//   - *PropertyArray[T]: the column storage
func GetData[T any](h *RenderDataHolder, key PropertyKey[T]) *PropertyArray[T] {
	if !key.IsValid() || key.column() >= len(h.arrays) {
		panic(errors.Wrapf(ErrInvalidKey, "column %d of %d", key.column(), len(h.arrays)))
	}
	array, ok := h.arrays[key.column()].(*PropertyArray[T])
	if !ok {
		panic(errors.Wrapf(ErrKeyTypeMismatch, "column %d", key.column()))
	}
	return array
}

// PrepareDataArrays grows every column whose backing size is below the current population
// of its data type times its multiplier. Columns never shrink.
func (h *RenderDataHolder) PrepareDataArrays() {
	counts := make(map[DataType]int, 4)
	for _, a := range h.arrays {
		kind := a.kind()
		n, ok := counts[kind]
		if !ok {
			n = h.population(kind)
			counts[kind] = n
		}
		a.ensure(n)
	}
}

// SwapRemoveItem compacts every column of a data type after the owner swap-removed an item:
// the entries of dest move into source and the entries of dest are zeroed.
//
// Parameters:
//   - dataType: the population whose columns are compacted
//   - source: the freed node index
//   - dest: the node index being moved, usually the last one
func (h *RenderDataHolder) SwapRemoveItem(dataType DataType, source, dest int) {
	for _, a := range h.arrays {
		if a.kind() == dataType {
			a.swapRemove(source, dest)
		}
	}
}

// ChangeDataMultiplier re-lays out a column for a new number of entries per node. Existing
// entries are kept up to the smaller of the two widths.
//
// Parameters:
//   - key: the column to change
//   - multiplier: the new number of entries per node
func (h *RenderDataHolder) ChangeDataMultiplier(key Key, multiplier int) {
	if multiplier < 1 {
		multiplier = 1
	}
	a := h.arrays[key.column()]
	a.changeMultiplier(multiplier)
	a.ensure(h.population(key.DataType()))
}

// ClearData zeroes every column of a data type. Frame-scoped populations are cleared when a
// frame starts so no entry leaks from the previous frame.
//
// Parameters:
//   - dataType: the population to clear
func (h *RenderDataHolder) ClearData(dataType DataType) {
	for _, a := range h.arrays {
		if a.kind() == dataType {
			a.clear()
		}
	}
}
