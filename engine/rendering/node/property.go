package node

import "github.com/Carmen-Shannon/oxy-pipeline/common"

// PropertyDefinition identifies a logical property independently of the holder that stores it.
// Features sharing a definition pointer share one column per holder, so optional sub-features
// can agree on a storage layout without knowing about each other.
type PropertyDefinition[T any] struct {
	// Name is used for diagnostics only.
	Name string
}

// NewPropertyDefinition creates a definition usable with CreateKey.
//
// Parameters:
//   - name: a diagnostic name for the property
//
// Returns:
//   - *PropertyDefinition[T]: the definition, compared by pointer identity
func NewPropertyDefinition[T any](name string) *PropertyDefinition[T] {
	return &PropertyDefinition[T]{Name: name}
}

// PropertyKey addresses one typed column in a RenderDataHolder.
// The zero value is not a valid key.
type PropertyKey[T any] struct {
	dataType DataType
	index    int // column index + 1
}

// DataType returns the node population the column tracks.
func (k PropertyKey[T]) DataType() DataType { return k.dataType }

// IsValid reports whether the key was created through CreateKey.
func (k PropertyKey[T]) IsValid() bool { return k.index > 0 }

func (k PropertyKey[T]) column() int { return k.index - 1 }

// Key is the untyped view of a PropertyKey used by holder operations that do not touch values.
type Key interface {
	DataType() DataType
	column() int
}

// PropertyArray is the typed flat storage behind a PropertyKey. Entries are addressed by
// node index times the column multiplier plus an optional sub-slot.
type PropertyArray[T any] struct {
	dataType   DataType
	multiplier int
	data       []T
}

// At returns a pointer to the entry at index i. The pointer is invalidated by the next
// PrepareDataArrays call that grows the array.
func (a *PropertyArray[T]) At(i int) *T { return &a.data[i] }

// Get returns the entry at index i.
func (a *PropertyArray[T]) Get(i int) T { return a.data[i] }

// Set stores v at index i.
func (a *PropertyArray[T]) Set(i int, v T) { a.data[i] = v }

// Len returns the current backing size.
func (a *PropertyArray[T]) Len() int { return len(a.data) }

// Multiplier returns the number of entries stored per node.
func (a *PropertyArray[T]) Multiplier() int { return a.multiplier }

// Slice exposes the backing storage.
func (a *PropertyArray[T]) Slice() []T { return a.data }

func (a *PropertyArray[T]) kind() DataType { return a.dataType }

func (a *PropertyArray[T]) ensure(items int) {
	a.data = common.GrowSlice(a.data, items*a.multiplier)
}

func (a *PropertyArray[T]) swapRemove(source, dest int) {
	var zero T
	for i := 0; i < a.multiplier; i++ {
		s := source*a.multiplier + i
		d := dest*a.multiplier + i
		if d >= len(a.data) {
			break
		}
		if s != d {
			a.data[s] = a.data[d]
		}
		a.data[d] = zero
	}
}

func (a *PropertyArray[T]) changeMultiplier(multiplier int) {
	if multiplier == a.multiplier {
		return
	}
	items := 0
	if a.multiplier > 0 {
		items = len(a.data) / a.multiplier
	}
	data := make([]T, items*multiplier)
	width := min(a.multiplier, multiplier)
	for item := 0; item < items; item++ {
		copy(data[item*multiplier:item*multiplier+width], a.data[item*a.multiplier:item*a.multiplier+width])
	}
	a.data = data
	a.multiplier = multiplier
}

func (a *PropertyArray[T]) clear() {
	clear(a.data)
}

// dataArray is the type-erased behaviour the holder needs from every column.
type dataArray interface {
	kind() DataType
	ensure(items int)
	swapRemove(source, dest int)
	changeMultiplier(multiplier int)
	clear()
}
