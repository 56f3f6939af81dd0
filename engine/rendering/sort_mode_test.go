package rendering

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-pipeline/common"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stageAt builds a view stage holding one node per object, each at the given distance in front
// of an identity view.
func stageAt(mode SortMode, feature RootRenderFeature, distances ...float32) (*RenderView, *RenderViewStage) {
	view := NewRenderView("sort")
	stage := NewRenderStage("Sorted", "Main")
	stage.SortMode = mode
	viewStage := view.AddRenderStage(stage)
	for _, d := range distances {
		obj := NewRenderObject(meshType, nil)
		obj.BoundingBox = common.BoundingBox{Center: mgl32.Vec3{0, 0, -d}, Extent: mgl32.Vec3{0.5, 0.5, 0.5}}
		viewStage.RenderNodes = append(viewStage.RenderNodes, RenderNodeFeatureReference{
			RootRenderFeature: feature,
			RenderObject:      obj,
		})
	}
	return view, viewStage
}

func sortedDistances(t *testing.T, view *RenderView, viewStage *RenderViewStage) []float32 {
	t.Helper()
	sortRenderNodes(view, viewStage)
	require.Len(t, viewStage.SortedRenderNodes, len(viewStage.RenderNodes))
	plane := view.ViewPlane()
	out := make([]float32, 0, len(viewStage.SortedRenderNodes))
	for _, ref := range viewStage.SortedRenderNodes {
		out = append(out, plane.DistanceTo(ref.RenderObject.BoundingBox.Center))
	}
	return out
}

func TestDistanceSortModes(t *testing.T) {
	feature := newTestFeature(meshType)

	tests := []struct {
		name string
		mode SortMode
		want []float32
	}{
		{name: "front to back", mode: NewFrontToBackSortMode(), want: []float32{1, 3, 5}},
		{name: "back to front", mode: NewBackToFrontSortMode(), want: []float32{5, 3, 1}},
		{name: "state change", mode: NewStateChangeSortMode(), want: []float32{1, 3, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view, viewStage := stageAt(tt.mode, feature, 1, 5, 3)
			assert.Equal(t, tt.want, sortedDistances(t, view, viewStage))
		})
	}
}

func TestSortWithoutModeKeepsExtractOrder(t *testing.T) {
	view, viewStage := stageAt(nil, newTestFeature(meshType), 1, 5, 3)
	assert.Equal(t, []float32{1, 5, 3}, sortedDistances(t, view, viewStage))
}

func TestFeatureSortKeyDominatesDistance(t *testing.T) {
	near := newTestFeature(meshType)
	near.SortKey = 2
	far := newTestFeature(spriteType)
	far.SortKey = 1

	view, viewStage := stageAt(NewFrontToBackSortMode(), near, 1)
	viewStage.RenderNodes = append(viewStage.RenderNodes, RenderNodeFeatureReference{
		RootRenderFeature: far,
		RenderObject: &RenderObject{
			Type:        spriteType,
			BoundingBox: common.BoundingBox{Center: mgl32.Vec3{0, 0, -50}},
		},
	})

	sortRenderNodes(view, viewStage)
	require.Len(t, viewStage.SortedRenderNodes, 2)
	assert.Same(t, far, viewStage.SortedRenderNodes[0].RootRenderFeature)
	assert.Same(t, near, viewStage.SortedRenderNodes[1].RootRenderFeature)
}

func TestSortKeyFieldsStayBelowFeatureByte(t *testing.T) {
	tests := []struct {
		name      string
		term      uint32
		precision int
		position  int
		want      uint64
	}{
		{name: "fits", term: 0xABCD0000, precision: 16, position: 8, want: 0xABCD << 8},
		{name: "truncated at feature byte", term: 0xFFFFFFFF, precision: 32, position: 48, want: 0xFF << 48},
		{name: "inside feature byte", term: 0xFFFFFFFF, precision: 16, position: 60, want: 0},
		{name: "negative position", term: 0xFF000000, precision: 8, position: -4, want: 0xFF},
		{name: "no precision", term: 0xFFFFFFFF, precision: 0, position: 0, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, packBits(tt.term, tt.precision, tt.position))
		})
	}

	first := newTestFeature(meshType)
	first.SortKey = 1
	second := newTestFeature(spriteType)
	second.SortKey = 2
	mode := &SortModeStateChange{StatePosition: 40, StatePrecision: 32}
	view, viewStage := stageAt(mode, second, 1)
	viewStage.RenderNodes[0].RenderObject.StateSortKey = 0
	viewStage.RenderNodes = append(viewStage.RenderNodes, RenderNodeFeatureReference{
		RootRenderFeature: first,
		RenderObject:      &RenderObject{Type: meshType, StateSortKey: 0xFFFFFFFF},
	})

	sortRenderNodes(view, viewStage)
	require.Len(t, viewStage.SortedRenderNodes, 2)
	assert.Same(t, first, viewStage.SortedRenderNodes[0].RootRenderFeature)
}

func TestStateSortKeyBreaksDistanceTies(t *testing.T) {
	view, viewStage := stageAt(NewFrontToBackSortMode(), newTestFeature(meshType), 2, 2, 2)
	viewStage.RenderNodes[0].RenderObject.StateSortKey = 0x30000000
	viewStage.RenderNodes[1].RenderObject.StateSortKey = 0x10000000
	viewStage.RenderNodes[2].RenderObject.StateSortKey = 0x20000000

	sortRenderNodes(view, viewStage)
	got := make([]uint32, 0, 3)
	for _, ref := range viewStage.SortedRenderNodes {
		got = append(got, ref.RenderObject.StateSortKey)
	}
	assert.Equal(t, []uint32{0x10000000, 0x20000000, 0x30000000}, got)
}

func TestSortIsStableAndRepeatable(t *testing.T) {
	view, viewStage := stageAt(NewBackToFrontSortMode(), newTestFeature(meshType), 4, 4, 4, 1)
	first := append([]RenderNodeFeatureReference(nil), viewStage.RenderNodes[:3]...)

	sortRenderNodes(view, viewStage)
	for i := range first {
		assert.Same(t, first[i].RenderObject, viewStage.SortedRenderNodes[i].RenderObject, "equal keys keep extract order")
	}
	once := append([]RenderNodeFeatureReference(nil), viewStage.SortedRenderNodes...)

	sortRenderNodes(view, viewStage)
	assert.Equal(t, once, viewStage.SortedRenderNodes)
}

func TestSortModeFunc(t *testing.T) {
	reverseInput := SortModeFunc(func(_ *RenderView, viewStage *RenderViewStage, keys []SortKey) {
		n := len(viewStage.RenderNodes)
		for i := range keys {
			keys[i] = SortKey{Value: uint64(n - i), Index: i, StableIndex: i}
		}
	})
	view, viewStage := stageAt(reverseInput, newTestFeature(meshType), 1, 5, 3)
	assert.Equal(t, []float32{3, 5, 1}, sortedDistances(t, view, viewStage))
}

func TestSortableFloatKeepsOrder(t *testing.T) {
	values := []float32{-10, -0.5, 0, 0.5, 3, 1e6}
	for i := 1; i < len(values); i++ {
		assert.Less(t, common.SortableFloat(values[i-1]), common.SortableFloat(values[i]))
	}
}
