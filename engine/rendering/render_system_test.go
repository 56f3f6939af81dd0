package rendering

import (
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const spriteType ObjectType = "sprite"

var errInitialize = errors.New("initialize failed")

// failingFeature fails its initialization.
type failingFeature struct {
	*testFeature
}

func (f *failingFeature) Initialize(*RenderSystem) error { return errInitialize }

type activatorFunc func(objectType ObjectType) bool

func (f activatorFunc) InstantiateDefaultPipelinePlugin(objectType ObjectType) bool {
	return f(objectType)
}

func TestCollectKeepsOnlyActiveObjectsOfCulledGroups(t *testing.T) {
	h := newHarness(t)
	const groupA, groupB RenderGroup = 0, 1

	feature := newTestFeature(meshType, &SimpleGroupToRenderStageSelector{
		RenderGroup: MaskOf(groupA),
		RenderStage: h.stage,
		EffectName:  "Basic",
	})
	require.NoError(t, h.rs.AddRenderFeature(feature))
	h.view.CullingMask = MaskOf(groupA)

	o1 := NewRenderObject(meshType, nil)
	o1.RenderGroup = groupA
	o2 := NewRenderObject(meshType, nil)
	o2.RenderGroup = groupB
	h.group.AddRenderObject(o1)
	h.group.AddRenderObject(o2)

	h.frame()

	assert.Equal(t, []*RenderObject{o1}, h.view.RenderObjects)
	viewStage := h.view.RenderViewStage(h.stage)
	require.Len(t, viewStage.RenderNodes, 1)
	assert.Same(t, o1, viewStage.RenderNodes[0].RenderObject)
	require.Len(t, feature.RenderNodes, 1)
	assert.Same(t, o1, feature.RenderNodes[0].RenderObject)
	require.Len(t, feature.ObjectNodes, 1)
	assert.Same(t, o1, feature.ObjectNodes[0].RenderObject)
	assert.False(t, o2.ObjectNode.IsValid())
	assert.Equal(t, [][2]int{{0, 1}}, feature.draws)
	assert.Equal(t, 1, feature.extracts)
}

func TestRenderNodesOnlyExistForActiveStages(t *testing.T) {
	h := newHarness(t)
	shadow := NewRenderStage("Shadow", "ShadowCaster")
	require.NoError(t, h.rs.AddRenderStage(shadow))
	h.view.AddRenderStage(shadow)

	casters := MaskOf(1)
	feature := newTestFeature(meshType,
		h.mainSelector("Basic"),
		&SimpleGroupToRenderStageSelector{RenderGroup: casters, RenderStage: shadow, EffectName: "Depth"},
	)
	require.NoError(t, h.rs.AddRenderFeature(feature))

	for i := 0; i < 4; i++ {
		obj := h.addObject(meshType)
		obj.RenderGroup = RenderGroup(i % 2)
	}
	h.rs.NotifyRenderStageSelectorsChanged()
	h.frame()

	require.Len(t, feature.RenderNodes, 6)
	for _, rn := range feature.RenderNodes {
		assert.True(t, rn.RenderObject.ActiveRenderStages[rn.RenderStage.Index].Active)
	}
	assert.Len(t, feature.ObjectNodes, 4)
	assert.Len(t, feature.ViewObjectNodes, 4)
	assert.Len(t, h.view.RenderViewStage(shadow).RenderNodes, 2)
}

func TestDrawDispatchesContiguousFeatureRuns(t *testing.T) {
	h := newHarness(t)
	meshes := newTestFeature(meshType, h.mainSelector("Basic"))
	sprites := newTestFeature(spriteType, h.mainSelector("Sprite"))
	require.NoError(t, h.rs.AddRenderFeature(meshes))
	require.NoError(t, h.rs.AddRenderFeature(sprites))

	h.addObject(spriteType)
	h.addObject(meshType)
	h.addObject(spriteType)
	h.addObject(meshType)
	h.frame()

	assert.Equal(t, [][2]int{{0, 2}}, meshes.draws)
	assert.Equal(t, [][2]int{{2, 4}}, sprites.draws)

	sorted := h.view.RenderViewStage(h.stage).SortedRenderNodes
	require.Len(t, sorted, 4)
	for i, ref := range sorted {
		if i < 2 {
			assert.Equal(t, RootRenderFeature(meshes), ref.RootRenderFeature)
		} else {
			assert.Equal(t, RootRenderFeature(sprites), ref.RootRenderFeature)
		}
	}
}

func TestDrawUnknownViewStageFails(t *testing.T) {
	h := newHarness(t)
	other := NewRenderStage("Transparent", "")
	require.NoError(t, h.rs.AddRenderStage(other))

	err := h.rs.Draw(h.rs.NewDrawContext(h.cl), h.view, other)
	assert.True(t, errors.Is(err, ErrViewStageNotFound))
}

func TestObjectsWithoutFeatureStayPendingUntilRegistered(t *testing.T) {
	h := newHarness(t)
	obj := h.addObject(spriteType)

	assert.False(t, obj.IsRegistered())
	assert.Equal(t, []*RenderObject{obj}, h.rs.PendingRenderObjects())

	h.frame()
	assert.Empty(t, h.view.RenderObjects)

	feature := newTestFeature(spriteType, h.mainSelector("Sprite"))
	require.NoError(t, h.rs.AddRenderFeature(feature))
	assert.True(t, obj.IsRegistered())
	assert.Empty(t, h.rs.PendingRenderObjects())

	h.frame()
	assert.Equal(t, []*RenderObject{obj}, h.view.RenderObjects)
	assert.Equal(t, [][2]int{{0, 1}}, feature.draws)
}

func TestDefaultPluginActivatorRunsOncePerType(t *testing.T) {
	h := newHarness(t)
	calls := map[ObjectType]int{}
	h.rs.SetDefaultPipelinePluginActivator(activatorFunc(func(objectType ObjectType) bool {
		calls[objectType]++
		if objectType != spriteType {
			return false
		}
		require.NoError(t, h.rs.AddRenderFeature(newTestFeature(spriteType, h.mainSelector("Sprite"))))
		return true
	}))

	a := h.addObject(spriteType)
	b := h.addObject(spriteType)
	c := h.addObject("particle")
	d := h.addObject("particle")

	assert.Equal(t, 1, calls[spriteType])
	assert.Equal(t, 1, calls["particle"])
	assert.True(t, a.IsRegistered())
	assert.True(t, b.IsRegistered())
	assert.ElementsMatch(t, []*RenderObject{c, d}, h.rs.PendingRenderObjects())
}

func TestRemoveRenderObjectKeepsIndicesDense(t *testing.T) {
	h := newHarness(t)
	feature := newTestFeature(meshType, h.mainSelector("Basic"))
	require.NoError(t, h.rs.AddRenderFeature(feature))

	a := h.addObject(meshType)
	b := h.addObject(meshType)
	c := h.addObject(meshType)

	assert.True(t, h.group.RemoveRenderObject(a))
	assert.False(t, h.group.RemoveRenderObject(a))

	assert.Equal(t, []*RenderObject{c, b}, feature.RenderObjects)
	assert.Equal(t, []*RenderObject{c, b}, h.group.RenderObjects)
	for i, obj := range feature.RenderObjects {
		assert.Equal(t, i, obj.StaticObjectNode.Index)
		assert.Equal(t, i, obj.VisibilityObjectNode.Index)
	}
	assert.False(t, a.StaticObjectNode.IsValid())
	assert.False(t, a.VisibilityObjectNode.IsValid())
	assert.Nil(t, a.RenderFeature)

	assert.True(t, h.group.RemoveRenderObject(b))
	assert.Equal(t, []*RenderObject{c}, feature.RenderObjects)
	assert.Equal(t, 0, c.StaticObjectNode.Index)

	h.frame()
	assert.Equal(t, []*RenderObject{c}, h.view.RenderObjects)
}

func TestAddRenderFeatureTwiceFails(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.rs.AddRenderFeature(newTestFeature(meshType)))

	err := h.rs.AddRenderFeature(newTestFeature(meshType))
	assert.True(t, errors.Is(err, ErrFeatureAlreadyRegistered))
	assert.Len(t, h.rs.RenderFeatures, 1)
}

func TestRenderFeatureCountFitsFeatureSortKey(t *testing.T) {
	h := newHarness(t)
	for i := range MaxRenderFeatures {
		require.NoError(t, h.rs.AddRenderFeature(newTestFeature(ObjectType(fmt.Sprintf("type-%d", i)))))
	}
	last := h.rs.RenderFeatures[MaxRenderFeatures-1]
	assert.Equal(t, uint8(MaxRenderFeatures-1), last.Base().SortKey)

	extra := newTestFeature("one-too-many")
	err := h.rs.AddRenderFeature(extra)
	assert.ErrorIs(t, err, ErrTooManyRenderFeatures)
	assert.Equal(t, -1, extra.Base().Index)
	assert.Len(t, h.rs.RenderFeatures, MaxRenderFeatures)
}

func TestRemoveRenderFeatureReindexesAndPendsObjects(t *testing.T) {
	h := newHarness(t)
	meshes := newTestFeature(meshType, h.mainSelector("Basic"))
	sprites := newTestFeature(spriteType, h.mainSelector("Sprite"))
	require.NoError(t, h.rs.AddRenderFeature(meshes))
	require.NoError(t, h.rs.AddRenderFeature(sprites))

	mesh := h.addObject(meshType)
	sprite := h.addObject(spriteType)

	require.NoError(t, h.rs.RemoveRenderFeature(meshes))
	assert.Equal(t, -1, meshes.Index)
	assert.Equal(t, 0, sprites.Index)
	assert.Equal(t, uint8(0), sprites.SortKey)
	assert.False(t, mesh.IsRegistered())
	assert.Equal(t, []*RenderObject{mesh}, h.rs.PendingRenderObjects())

	err := h.rs.RemoveRenderFeature(meshes)
	assert.True(t, errors.Is(err, ErrFeatureNotRegistered))

	h.frame()
	assert.Equal(t, []*RenderObject{sprite}, h.view.RenderObjects)
	assert.Equal(t, [][2]int{{0, 1}}, sprites.draws)
	require.Len(t, h.view.Features, 1)
	assert.Equal(t, RootRenderFeature(sprites), h.view.Features[0].RootFeature)
}

func TestResetAdvancesFrameCounter(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, uint64(1), h.rs.FrameCounter)
	h.rs.Reset()
	h.rs.Reset()
	assert.Equal(t, uint64(3), h.rs.FrameCounter)
}

func TestRenderStageFilterDropsNodes(t *testing.T) {
	h := newHarness(t)
	feature := newTestFeature(meshType, h.mainSelector("Basic"))
	require.NoError(t, h.rs.AddRenderFeature(feature))

	hidden := h.addObject(meshType)
	shown := h.addObject(meshType)
	h.stage.Filter = RenderStageFilterFunc(func(obj *RenderObject, _ *RenderView, _ *RenderViewStage) bool {
		return obj != hidden
	})
	h.frame()

	assert.ElementsMatch(t, []*RenderObject{hidden, shown}, h.view.RenderObjects)
	nodes := h.view.RenderViewStage(h.stage).RenderNodes
	require.Len(t, nodes, 1)
	assert.Same(t, shown, nodes[0].RenderObject)
}

func TestListenersCanBeRemoved(t *testing.T) {
	h := newHarness(t)
	var stages []string
	remove := h.rs.AddRenderStagesChangedListener(func(stage *RenderStage) {
		stages = append(stages, stage.Name)
	})

	require.NoError(t, h.rs.AddRenderStage(NewRenderStage("A", "")))
	remove()
	require.NoError(t, h.rs.AddRenderStage(NewRenderStage("B", "")))

	assert.Equal(t, []string{"A"}, stages)
}

func TestPrepareSortsWithWorkers(t *testing.T) {
	h := newHarness(t, WithWorkers(4, 1))
	h.stage.SortMode = NewFrontToBackSortMode()
	feature := newTestFeature(meshType, h.mainSelector("Basic"))
	require.NoError(t, h.rs.AddRenderFeature(feature))

	second := NewRenderView("second")
	second.CullingMode = CullingModeNone
	second.AddRenderStage(h.stage)
	h.rs.AddView(second)

	for i := 0; i < 3; i++ {
		h.addObject(meshType)
	}
	h.frame()

	for _, view := range h.rs.Views {
		assert.Len(t, view.RenderViewStage(h.stage).SortedRenderNodes, 3, view.Name)
	}
	assert.Equal(t, [][2]int{{0, 3}, {0, 3}}, feature.draws)
	assert.Equal(t, 4, h.rs.Dispatcher().Workers())
}

func TestFailedFeatureInitializationLeavesFeatureDetached(t *testing.T) {
	h := newHarness(t)
	f := &failingFeature{testFeature: newTestFeature(meshType)}

	err := h.rs.AddRenderFeature(f)
	require.ErrorIs(t, err, errInitialize)
	assert.Equal(t, -1, f.Base().Index)
	assert.Nil(t, f.Base().RenderSystem)
	assert.Same(t, f.RootRenderFeatureBase, f.Base().self())
	assert.Empty(t, h.rs.RenderFeatures)

	ok := newTestFeature(meshType)
	require.NoError(t, h.rs.AddRenderFeature(ok))
	assert.Equal(t, 0, ok.Base().Index)
}

func TestRenderSystemCloseStopsWorkers(t *testing.T) {
	before := runtime.NumGoroutine()
	systems := make([]*RenderSystem, 10)
	for i := range systems {
		systems[i] = newHarness(t, WithWorkers(8, 1)).rs
	}
	assert.Greater(t, runtime.NumGoroutine(), before)

	for _, rs := range systems {
		rs.Close()
	}
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, 2*time.Second, 10*time.Millisecond)
}
