package terrain

import (
	"github.com/Faultbox/midgard-terrain/internal/engine/picking"
)

// SceneManager is told when a terrain enters, leaves or moves in the scene.
type SceneManager interface {
	AttachTerrain(t *Terrain)
	DetachTerrain(t *Terrain)
	TerrainMoved(t *Terrain)
}

// NopSceneManager ignores scene notifications.
type NopSceneManager struct{}

func (NopSceneManager) AttachTerrain(*Terrain) {}
func (NopSceneManager) DetachTerrain(*Terrain) {}
func (NopSceneManager) TerrainMoved(*Terrain)  {}

// RenderOperation is what a renderer draws for one node: a triangle strip
// over shared vertex data.
type RenderOperation struct {
	Positions VertexBuffer
	Deltas    VertexBuffer
	Indices   IndexBuffer
	// Material is the composite map material past the composite distance.
	Material *Material
}

// Movable is the scene proxy of a quadtree node.
type Movable struct {
	node          *QuadTreeNode
	morph         float32
	morphLod      int
	boundsVersion uint64
}

func newMovable(n *QuadTreeNode) *Movable {
	return &Movable{node: n}
}

func (m *Movable) setMorph(transition float32, lod int) {
	m.morph = transition
	m.morphLod = lod
}

func (m *Movable) boundsChanged() {
	m.boundsVersion++
}

// Node returns the quadtree node the proxy stands for.
func (m *Movable) Node() *QuadTreeNode { return m.node }

// IsVisible reports whether the node renders at the current LOD.
func (m *Movable) IsVisible() bool { return m.node.currentLod != -1 }

// WorldBounds returns the node bounds in world space.
func (m *Movable) WorldBounds() picking.AABB {
	n := m.node
	return n.aabb.Translate(n.localCentre.Add(n.terrain.pos))
}

// BoundingRadius returns the radius around the node's local centre.
func (m *Movable) BoundingRadius() float32 { return m.node.boundingRadius }

// BoundsVersion increases each time the node bounds are recomputed.
func (m *Movable) BoundsVersion() uint64 { return m.boundsVersion }

// MorphParams returns the morph fraction and the global LOD being morphed
// towards, as a vertex shader compares them with per-vertex LOD values.
func (m *Movable) MorphParams() (transition float32, lod int) {
	return m.morph, m.morphLod
}

// RenderOperation returns the buffers for the current LOD. It reports false
// when the node is not rendered or its buffers are not loaded.
func (m *Movable) RenderOperation() (RenderOperation, bool) {
	n := m.node
	if n.currentLod < 0 || n.currentLod >= len(n.lodLevels) || n.nodeWithVertexData == nil {
		return RenderOperation{}, false
	}
	vdr := n.nodeWithVertexData.vertexDataRecord
	ll := n.lodLevels[n.currentLod]
	if vdr == nil || vdr.posBuf == nil || ll.indexData == nil {
		return RenderOperation{}, false
	}
	op := RenderOperation{Positions: vdr.posBuf, Deltas: vdr.deltaBuf, Indices: ll.indexData}
	if n.materialLodIndex > 0 {
		op.Material = n.terrain.CompositeMapMaterial()
	} else {
		op.Material = n.terrain.Material()
	}
	return op, true
}

// VisibleMovables appends the proxies of every rendered node to dst.
func (t *Terrain) VisibleMovables(dst []*Movable) []*Movable {
	if t.root == nil {
		return dst
	}
	t.root.Walk(func(n *QuadTreeNode) bool {
		if n.currentLod != -1 {
			dst = append(dst, n.movable)
		}
		return n.selfOrChildRendered
	})
	return dst
}
