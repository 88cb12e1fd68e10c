package terrain

import (
	"github.com/Faultbox/midgard-terrain/internal/engine/picking"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// LodLevel is one level of detail a node can render at.
type LodLevel struct {
	// BatchSize is the number of vertices per edge at this level.
	BatchSize int
	// MaxHeightDelta is the live error value used for LOD selection.
	MaxHeightDelta float32

	// calcMaxHeightDelta is written while deltas are recomputed and only
	// promoted by finaliseDeltaValues.
	calcMaxHeightDelta float32

	lastTransitionDist float32
	lastCFactor        float32

	indexData IndexBuffer
}

// IndexData returns the shared index buffer, nil before Load.
func (l *LodLevel) IndexData() IndexBuffer { return l.indexData }

// QuadTreeNode is a node of the terrain quadtree. A node owns its four
// children; parent, vertex data owner and max-delta child are plain
// references into the same tree.
type QuadTreeNode struct {
	terrain  *Terrain
	parent   *QuadTreeNode
	children [4]*QuadTreeNode

	offsetX, offsetY     int
	boundaryX, boundaryY int
	size                 int
	baseLod              int
	depth                int
	quadrant             int

	lodLevels []*LodLevel

	vertexDataRecord   *VertexDataRecord
	nodeWithVertexData *QuadTreeNode

	localCentre    math.Vec3
	aabb           picking.AABB
	boundingRadius float32

	currentLod          int
	lodTransition       float32
	materialLodIndex    int
	selfOrChildRendered bool

	childWithMaxHeightDelta *QuadTreeNode

	movable *Movable
}

func newQuadTreeNode(t *Terrain, parent *QuadTreeNode, xoff, yoff, size, lod, depth, quadrant int) *QuadTreeNode {
	n := &QuadTreeNode{
		terrain:    t,
		parent:     parent,
		offsetX:    xoff,
		offsetY:    yoff,
		boundaryX:  xoff + size,
		boundaryY:  yoff + size,
		size:       size,
		baseLod:    lod,
		depth:      depth,
		quadrant:   quadrant,
		currentLod: -1,
		aabb:       picking.NullAABB(),
	}

	if t.maxBatch < size {
		childSize := (size-1)/2 + 1
		childOff := childSize - 1
		childLod := lod - 1
		childDepth := depth + 1
		n.children[0] = newQuadTreeNode(t, n, xoff, yoff, childSize, childLod, childDepth, 0)
		n.children[1] = newQuadTreeNode(t, n, xoff+childOff, yoff, childSize, childLod, childDepth, 1)
		n.children[2] = newQuadTreeNode(t, n, xoff, yoff+childOff, childSize, childLod, childDepth, 2)
		n.children[3] = newQuadTreeNode(t, n, xoff+childOff, yoff+childOff, childSize, childLod, childDepth, 3)
		// interior nodes always render at the smallest batch
		n.lodLevels = []*LodLevel{{BatchSize: t.minBatch}}
	} else {
		// leaves cover the finest detail, from max batch down to min batch
		n.baseLod = 0
		sz := t.maxBatch
		for i := 0; i < t.numLodLevelsPerLeaf; i++ {
			n.lodLevels = append(n.lodLevels, &LodLevel{BatchSize: sz})
			sz = (sz-1)/2 + 1
		}
	}

	mid := (size - 1) / 2
	n.localCentre = t.GetPoint(n.offsetX+mid, n.offsetY+mid, 0)
	n.movable = newMovable(n)
	return n
}

// IsLeaf reports whether the node has no children.
func (n *QuadTreeNode) IsLeaf() bool { return n.children[0] == nil }

// Child returns child i (0..3), nil for leaves.
func (n *QuadTreeNode) Child(i int) *QuadTreeNode {
	if i < 0 || i > 3 {
		return nil
	}
	return n.children[i]
}

// Parent returns the parent node, nil for the root.
func (n *QuadTreeNode) Parent() *QuadTreeNode { return n.parent }

// Terrain returns the owning terrain.
func (n *QuadTreeNode) Terrain() *Terrain { return n.terrain }

// Offset returns the sample coordinate of the node's lower corner.
func (n *QuadTreeNode) Offset() (x, y int) { return n.offsetX, n.offsetY }

// Size returns the number of samples per edge the node covers.
func (n *QuadTreeNode) Size() int { return n.size }

// Depth returns the tree depth, 0 at the root.
func (n *QuadTreeNode) Depth() int { return n.depth }

// Quadrant returns the index of the node within its parent.
func (n *QuadTreeNode) Quadrant() int { return n.quadrant }

// BaseLod returns the global LOD of the node's first level.
func (n *QuadTreeNode) BaseLod() int { return n.baseLod }

// LodCount returns how many LOD levels the node holds.
func (n *QuadTreeNode) LodCount() int { return len(n.lodLevels) }

// LodLevel returns level i of this node (0 = finest).
func (n *QuadTreeNode) LodLevel(i int) *LodLevel { return n.lodLevels[i] }

// LocalCentre returns the node centre relative to the terrain position.
func (n *QuadTreeNode) LocalCentre() math.Vec3 { return n.localCentre }

// AABB returns the bounds relative to the local centre.
func (n *QuadTreeNode) AABB() picking.AABB { return n.aabb }

// BoundingRadius returns the bounding sphere radius around the local centre.
func (n *QuadTreeNode) BoundingRadius() float32 { return n.boundingRadius }

// CurrentLod returns the selected level index, or -1 when not rendered.
func (n *QuadTreeNode) CurrentLod() int { return n.currentLod }

// LodTransition returns the morph factor toward the next coarser level.
func (n *QuadTreeNode) LodTransition() float32 { return n.lodTransition }

// MaterialLodIndex returns 1 when the composite map material applies.
func (n *QuadTreeNode) MaterialLodIndex() int { return n.materialLodIndex }

// IsRenderedAtCurrentLod reports whether this node itself renders.
func (n *QuadTreeNode) IsRenderedAtCurrentLod() bool { return n.currentLod != -1 }

// IsSelfOrChildRenderedAtCurrentLod reports whether this node or a
// descendant renders.
func (n *QuadTreeNode) IsSelfOrChildRenderedAtCurrentLod() bool { return n.selfOrChildRendered }

// ChildWithMaxHeightDelta returns the child whose coarsest level has the
// largest error, nil for leaves.
func (n *QuadTreeNode) ChildWithMaxHeightDelta() *QuadTreeNode { return n.childWithMaxHeightDelta }

// VertexDataRecord returns the vertex data this node renders from.
func (n *QuadTreeNode) VertexDataRecord() *VertexDataRecord {
	if n.nodeWithVertexData == nil {
		return nil
	}
	return n.nodeWithVertexData.vertexDataRecord
}

// OwnsVertexData reports whether this node holds a vertex data record.
func (n *QuadTreeNode) OwnsVertexData() bool { return n.vertexDataRecord != nil }

// Movable returns the scene proxy for the node.
func (n *QuadTreeNode) Movable() *Movable { return n.movable }

// MinHeight returns the lowest height under the node.
func (n *QuadTreeNode) MinHeight() float32 {
	if n.aabb.Null {
		return 0
	}
	return n.localCentre.Add(n.aabb.Min).Component(upAxis(n.terrain.alignment))
}

// MaxHeight returns the highest height under the node.
func (n *QuadTreeNode) MaxHeight() float32 {
	if n.aabb.Null {
		return 0
	}
	return n.localCentre.Add(n.aabb.Max).Component(upAxis(n.terrain.alignment))
}

// Walk calls fn for the node and its descendants, depth first. Returning
// false from fn skips that node's children.
func (n *QuadTreeNode) Walk(fn func(*QuadTreeNode) bool) {
	if !fn(n) || n.IsLeaf() {
		return
	}
	for _, c := range n.children {
		c.Walk(fn)
	}
}

func (n *QuadTreeNode) setCurrentLod(lod int) {
	n.currentLod = lod
	n.movable.setMorph(n.lodTransition, n.currentLod+n.baseLod+1)
}

func (n *QuadTreeNode) setLodTransition(f float32) {
	n.lodTransition = f
	n.movable.setMorph(n.lodTransition, n.currentLod+n.baseLod+1)
}

// rectContainsNode reports whether rect covers every sample of the node.
func (n *QuadTreeNode) rectContainsNode(r Rect) bool {
	return r.Left <= n.offsetX && r.Right >= n.boundaryX &&
		r.Top <= n.offsetY && r.Bottom >= n.boundaryY
}

// rectIntersectsNode reports whether rect touches the node, edges included.
func (n *QuadTreeNode) rectIntersectsNode(r Rect) bool {
	return r.Right >= n.offsetX && r.Left <= n.boundaryX &&
		r.Bottom >= n.offsetY && r.Top <= n.boundaryY
}

func (n *QuadTreeNode) pointIntersectsNode(x, y int) bool {
	return x >= n.offsetX && x < n.boundaryX && y >= n.offsetY && y < n.boundaryY
}

// prepare builds CPU vertex data for owners in the subtree.
func (n *QuadTreeNode) prepare() {
	if n.vertexDataRecord != nil {
		n.createCPUVertexData()
	}
	if n.IsLeaf() {
		return
	}
	for _, c := range n.children {
		c.prepare()
	}
}

// load realises vertex and index buffers through the allocator.
func (n *QuadTreeNode) load() error {
	if err := n.createGPUVertexData(); err != nil {
		return err
	}
	n.createGPUIndexData()
	if n.IsLeaf() {
		return nil
	}
	for _, c := range n.children {
		if err := c.load(); err != nil {
			return err
		}
	}
	return nil
}

func (n *QuadTreeNode) unload() {
	if !n.IsLeaf() {
		for _, c := range n.children {
			c.unload()
		}
	}
	n.destroyGPUVertexData()
	for _, ll := range n.lodLevels {
		ll.indexData = nil
	}
	n.currentLod = -1
	n.selfOrChildRendered = false
}

func (n *QuadTreeNode) createGPUIndexData() {
	vdr := n.VertexDataRecord()
	if vdr == nil {
		return
	}
	ratio := (n.terrain.size - 1) / (vdr.Resolution - 1)
	xoff := (n.offsetX - n.nodeWithVertexData.offsetX) / ratio
	yoff := (n.offsetY - n.nodeWithVertexData.offsetY) / ratio
	for _, ll := range n.lodLevels {
		if ll.indexData != nil {
			continue
		}
		inc := ((n.size - 1) / (ll.BatchSize - 1)) / ratio
		ll.indexData = n.terrain.alloc.SharedIndexBuffer(
			ll.BatchSize, vdr.Size, inc, xoff, yoff, vdr.NumSkirtRowsCols, vdr.SkirtRowColSkip)
	}
}
