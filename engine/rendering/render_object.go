package rendering

import (
	"github.com/Carmen-Shannon/oxy-pipeline/common"
	"github.com/Carmen-Shannon/oxy-pipeline/engine/rendering/node"
)

// ObjectType tags a RenderObject with its kind. The render system dispatches every object to
// the one root feature registered for its tag.
type ObjectType string

// RenderGroup is one of the 32 groups an object can belong to.
type RenderGroup uint8

// RenderGroupMask is a bit set of RenderGroups.
type RenderGroupMask uint32

// RenderGroupMaskAll contains every group.
const RenderGroupMaskAll RenderGroupMask = 0xFFFFFFFF

// Contains reports whether the group is part of the mask.
func (m RenderGroupMask) Contains(group RenderGroup) bool {
	return m&(1<<(group&31)) != 0
}

// MaskOf builds a mask from a list of groups.
func MaskOf(groups ...RenderGroup) RenderGroupMask {
	var m RenderGroupMask
	for _, g := range groups {
		m |= 1 << (g & 31)
	}
	return m
}

// ActiveRenderStage records whether an object renders in a stage and with which effect.
type ActiveRenderStage struct {
	Active     bool
	EffectName string
}

// RenderObject is anything drawable. The owning scene creates it and keeps Source up to date;
// the pipeline reads Source during Extract only and never writes to it.
type RenderObject struct {
	Type         ObjectType
	Enabled      bool
	RenderGroup  RenderGroup
	BoundingBox  common.BoundingBox
	StateSortKey uint32

	// ActiveRenderStages is indexed by RenderStage.Index and recomputed by the visibility group.
	ActiveRenderStages []ActiveRenderStage

	// Source is the authoritative external state (transform, mesh, material, ...).
	Source any

	StaticObjectNode     node.StaticObjectNodeReference
	VisibilityObjectNode node.StaticObjectNodeReference
	ObjectNode           node.ObjectNodeReference

	// RenderFeature is set on registration and cleared on removal. It never owns the object.
	RenderFeature RootRenderFeature
}

// NewRenderObject creates an enabled, unregistered object.
//
// Parameters:
//   - objectType: the tag used to find the root feature
//   - source: the external state read during Extract, may be nil
//
// Returns:
//   - *RenderObject: the object
func NewRenderObject(objectType ObjectType, source any) *RenderObject {
	return &RenderObject{
		Type:                 objectType,
		Enabled:              true,
		Source:               source,
		StaticObjectNode:     node.InvalidStaticObjectNode,
		VisibilityObjectNode: node.InvalidStaticObjectNode,
		ObjectNode:           node.InvalidObjectNode,
	}
}

// IsRegistered reports whether the object currently belongs to a root feature.
func (o *RenderObject) IsRegistered() bool {
	return o.RenderFeature != nil && o.StaticObjectNode.IsValid()
}

// IsActiveIn reports whether the object renders in the stage with the given index.
func (o *RenderObject) IsActiveIn(stageIndex int) bool {
	return stageIndex >= 0 && stageIndex < len(o.ActiveRenderStages) && o.ActiveRenderStages[stageIndex].Active
}
