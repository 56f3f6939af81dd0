package rendering

import (
	"cmp"

	"github.com/Carmen-Shannon/oxy-pipeline/common"
)

// SortKey orders one render node of a view stage. Index points into RenderViewStage.RenderNodes.
type SortKey struct {
	Value       uint64
	Index       int
	StableIndex int
}

// Compare orders keys by value, then by stable index so equal values keep their input order.
func (k SortKey) Compare(other SortKey) int {
	if c := cmp.Compare(k.Value, other.Value); c != 0 {
		return c
	}
	return cmp.Compare(k.StableIndex, other.StableIndex)
}

// SortMode generates one sort key per render node of a view stage.
type SortMode interface {
	// GenerateSortKey fills keys, which has the length of viewStage.RenderNodes.
	//
	// Parameters:
	//   - view: the view being sorted
	//   - viewStage: the view stage whose nodes are sorted
	//   - keys: the destination, one key per render node
	GenerateSortKey(view *RenderView, viewStage *RenderViewStage, keys []SortKey)
}

// featureSortKeyShift places the feature identity in the top byte of every key. Distance and
// state terms are packed below it.
const featureSortKeyShift = 56

// MaxRenderFeatures is the number of root features a render system can hold, one per value of
// the 8-bit feature sort key.
const MaxRenderFeatures = 1 << (64 - featureSortKeyShift)

// packBits keeps the top precision bits of a 32-bit term and moves them to position. Fields
// reaching into the feature byte lose their low bits, so the feature order always dominates.
func packBits(term uint32, precision, position int) uint64 {
	position = max(position, 0)
	precision = min(precision, 32, featureSortKeyShift-position)
	if precision <= 0 {
		return 0
	}
	return uint64(term>>(32-precision)) << position
}

func featureBits(ref RenderNodeFeatureReference) uint64 {
	if ref.RootRenderFeature == nil {
		return 0
	}
	return uint64(ref.RootRenderFeature.Base().SortKey) << featureSortKeyShift
}

// SortModeDistance sorts by distance to the view plane, then by object state.
type SortModeDistance struct {
	// Reverse sorts far objects first.
	Reverse bool

	DistancePosition  int
	DistancePrecision int
	StatePosition     int
	StatePrecision    int
}

var _ SortMode = &SortModeDistance{}

// NewFrontToBackSortMode sorts opaque geometry nearest first, object state as the minor term.
//
// Returns:
//   - *SortModeDistance: the sort mode
func NewFrontToBackSortMode() *SortModeDistance {
	return &SortModeDistance{
		DistancePosition:  32,
		DistancePrecision: 16,
		StatePosition:     0,
		StatePrecision:    32,
	}
}

// NewBackToFrontSortMode sorts blended geometry farthest first with full distance precision.
//
// Returns:
//   - *SortModeDistance: the sort mode
func NewBackToFrontSortMode() *SortModeDistance {
	return &SortModeDistance{
		Reverse:           true,
		DistancePosition:  24,
		DistancePrecision: 32,
		StatePosition:     0,
		StatePrecision:    0,
	}
}

func (s *SortModeDistance) GenerateSortKey(view *RenderView, viewStage *RenderViewStage, keys []SortKey) {
	plane := view.ViewPlane()
	for i, ref := range viewStage.RenderNodes {
		obj := ref.RenderObject
		distance := common.SortableFloat(plane.DistanceTo(obj.BoundingBox.Center))
		if s.Reverse {
			distance = ^distance
		}
		keys[i] = SortKey{
			Value: featureBits(ref) |
				packBits(distance, s.DistancePrecision, s.DistancePosition) |
				packBits(obj.StateSortKey, s.StatePrecision, s.StatePosition),
			Index:       i,
			StableIndex: i,
		}
	}
}

// SortModeStateChange sorts by object state first to minimize pipeline switches, then by distance.
type SortModeStateChange struct {
	DistancePosition  int
	DistancePrecision int
	StatePosition     int
	StatePrecision    int
}

var _ SortMode = &SortModeStateChange{}

// NewStateChangeSortMode creates the state-first sort mode.
//
// Returns:
//   - *SortModeStateChange: the sort mode
func NewStateChangeSortMode() *SortModeStateChange {
	return &SortModeStateChange{
		DistancePosition:  8,
		DistancePrecision: 16,
		StatePosition:     24,
		StatePrecision:    32,
	}
}

func (s *SortModeStateChange) GenerateSortKey(view *RenderView, viewStage *RenderViewStage, keys []SortKey) {
	plane := view.ViewPlane()
	for i, ref := range viewStage.RenderNodes {
		obj := ref.RenderObject
		distance := common.SortableFloat(plane.DistanceTo(obj.BoundingBox.Center))
		keys[i] = SortKey{
			Value: featureBits(ref) |
				packBits(obj.StateSortKey, s.StatePrecision, s.StatePosition) |
				packBits(distance, s.DistancePrecision, s.DistancePosition),
			Index:       i,
			StableIndex: i,
		}
	}
}

// SortModeFunc adapts a function to SortMode.
type SortModeFunc func(view *RenderView, viewStage *RenderViewStage, keys []SortKey)

func (f SortModeFunc) GenerateSortKey(view *RenderView, viewStage *RenderViewStage, keys []SortKey) {
	f(view, viewStage, keys)
}
