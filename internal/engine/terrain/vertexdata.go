package terrain

import (
	"github.com/Faultbox/midgard-terrain/internal/engine/picking"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// maxIndexedBatch is the widest vertex buffer 16-bit indices can address.
const maxIndexedBatch = MaxBatchSize

// PositionVertex is the position stream layout: local position and UV.
type PositionVertex struct {
	Pos math.Vec3
	UV  math.Vec2
}

// DeltaVertex is the morph stream layout: the height change when the vertex
// is eliminated and the global LOD at which that happens.
type DeltaVertex struct {
	Delta float32
	LOD   float32
}

// skirtDeltaLOD marks skirt vertices so they never morph.
const skirtDeltaLOD = 99

// VertexDataRecord describes a vertex buffer shared by a subtree.
//
// The buffer holds Size*Size interior vertices, then NumSkirtRowsCols skirt
// rows of Size vertices, then NumSkirtRowsCols skirt columns.
type VertexDataRecord struct {
	// Resolution is the terrain-wide sample count this buffer samples at.
	Resolution int
	// Size is the number of vertices per edge of the buffer.
	Size int
	// TreeLevels is how many tree depths render from this buffer.
	TreeLevels       int
	NumSkirtRowsCols int
	SkirtRowColSkip  int

	positions []PositionVertex
	deltas    []DeltaVertex

	posBuf   VertexBuffer
	deltaBuf VertexBuffer
	gpuDirty bool
}

func newVertexDataRecord(res, sz, levels int) *VertexDataRecord {
	numSkirt := (1 << levels) + 1
	return &VertexDataRecord{
		Resolution:       res,
		Size:             sz,
		TreeLevels:       levels,
		NumSkirtRowsCols: numSkirt,
		SkirtRowColSkip:  (sz - 1) / (numSkirt - 1),
	}
}

// VertexCount returns interior plus skirt vertices.
func (v *VertexDataRecord) VertexCount() int {
	return v.Size*v.Size + 2*v.Size*v.NumSkirtRowsCols
}

// Positions returns the CPU copy of the position stream.
func (v *VertexDataRecord) Positions() []PositionVertex { return v.positions }

// Deltas returns the CPU copy of the morph stream.
func (v *VertexDataRecord) Deltas() []DeltaVertex { return v.deltas }

// distributeVertexData assigns vertex buffers down the tree so that no buffer
// exceeds the 16-bit index ceiling while sharing each buffer across as many
// depths as possible.
func (t *Terrain) distributeVertexData() {
	depth := t.treeDepth
	prevDepth := depth
	curRes := t.size
	bakedRes := t.size
	targetSplits := (bakedRes - 1) / (maxIndexedBatch - 1)

	for depth > 0 && targetSplits != 0 {
		depth--
		splits := 1 << depth
		if splits == targetSplits {
			sz := (bakedRes-1)/splits + 1
			t.root.assignVertexData(depth, prevDepth, bakedRes, sz)

			bakedRes = ((curRes - 1) >> 1) + 1
			targetSplits = (bakedRes - 1) / (maxIndexedBatch - 1)
			prevDepth = depth
		}
		curRes = ((curRes - 1) >> 1) + 1
	}

	// the top of the tree always gets vertex data, shared down to the
	// first depth that already has its own
	if prevDepth > 0 {
		t.root.assignVertexData(0, prevDepth, bakedRes, bakedRes)
	}
}

func (n *QuadTreeNode) assignVertexData(depthStart, depthEnd, res, sz int) {
	if n.depth == depthStart {
		n.nodeWithVertexData = n
		n.vertexDataRecord = newVertexDataRecord(res, sz, depthEnd-depthStart)
		if !n.IsLeaf() && depthEnd > n.depth+1 {
			for _, c := range n.children {
				c.useAncestorVertexData(n, depthEnd)
			}
		}
		return
	}
	for _, c := range n.children {
		c.assignVertexData(depthStart, depthEnd, res, sz)
	}
}

func (n *QuadTreeNode) useAncestorVertexData(owner *QuadTreeNode, depthEnd int) {
	n.nodeWithVertexData = owner
	n.vertexDataRecord = nil
	if !n.IsLeaf() && depthEnd > n.depth+1 {
		for _, c := range n.children {
			c.useAncestorVertexData(owner, depthEnd)
		}
	}
}

func (n *QuadTreeNode) createCPUVertexData() {
	vdr := n.vertexDataRecord
	count := vdr.VertexCount()
	vdr.positions = make([]PositionVertex, count)
	vdr.deltas = make([]DeltaVertex, count)
	n.updateVertexBuffer(true, true, NewRect(n.offsetX, n.offsetY, n.boundaryX, n.boundaryY))
	vdr.gpuDirty = true
}

func (n *QuadTreeNode) createGPUVertexData() error {
	vdr := n.vertexDataRecord
	if vdr == nil || vdr.posBuf != nil {
		return nil
	}
	pos, delta, err := n.terrain.alloc.AllocateVertexBuffers(n.terrain, vdr.VertexCount())
	if err != nil {
		return err
	}
	vdr.posBuf, vdr.deltaBuf = pos, delta
	vdr.gpuDirty = true
	n.updateGPUVertexData()
	return nil
}

func (n *QuadTreeNode) updateGPUVertexData() {
	vdr := n.vertexDataRecord
	if vdr == nil || vdr.posBuf == nil || !vdr.gpuDirty {
		return
	}
	vdr.posBuf.WritePositions(0, vdr.positions)
	vdr.deltaBuf.WriteDeltas(0, vdr.deltas)
	vdr.gpuDirty = false
}

func (n *QuadTreeNode) destroyGPUVertexData() {
	vdr := n.vertexDataRecord
	if vdr == nil || vdr.posBuf == nil {
		return
	}
	n.terrain.alloc.FreeVertexBuffers(vdr.posBuf, vdr.deltaBuf)
	vdr.posBuf, vdr.deltaBuf = nil, nil
}

// updateVertexData rewrites the vertex streams covering rect and refreshes
// the bounds of every node underneath.
func (n *QuadTreeNode) updateVertexData(positions, deltas bool, rect Rect) {
	if rect.Left >= n.boundaryX || rect.Right <= n.offsetX ||
		rect.Top >= n.boundaryY || rect.Bottom <= n.offsetY {
		return
	}

	if vdr := n.vertexDataRecord; vdr != nil {
		upd := rect.Intersect(NewRect(n.offsetX, n.offsetY, n.boundaryX, n.boundaryY))
		inc := (n.terrain.size - 1) / (vdr.Resolution - 1)
		// only samples on this buffer's grid exist in it
		upd.Left = n.offsetX + ceilDiv(upd.Left-n.offsetX, inc)*inc
		upd.Top = n.offsetY + ceilDiv(upd.Top-n.offsetY, inc)*inc
		if !upd.IsNull() {
			n.updateVertexBuffer(positions, deltas, upd)
			vdr.gpuDirty = true
			n.updateGPUVertexData()
		}
	}

	if !n.IsLeaf() {
		for _, c := range n.children {
			c.updateVertexData(positions, deltas, rect)
		}
		if positions {
			for _, c := range n.children {
				if c.aabb.Null {
					continue
				}
				off := c.localCentre.Sub(n.localCentre)
				n.aabb.MergeBox(c.aabb.Translate(off))
				n.boundingRadius = max(n.boundingRadius, c.boundingRadius+off.Length())
			}
		}
	}
	n.movable.boundsChanged()
}

func (n *QuadTreeNode) updateVertexBuffer(positions, deltas bool, rect Rect) {
	t := n.terrain
	vdr := n.vertexDataRecord
	if positions {
		n.resetBounds(rect)
	}

	inc := (t.size - 1) / (vdr.Resolution - 1)
	destOffX := (rect.Left - n.offsetX) / inc
	destOffY := (rect.Top - n.offsetY) / inc
	uvScale := 1 / float32(t.size-1)

	for y := rect.Top; y < rect.Bottom; y += inc {
		dest := ((y-rect.Top)/inc+destOffY)*vdr.Size + destOffX
		for x := rect.Left; x < rect.Right; x += inc {
			if positions {
				pos := t.GetPoint(x, y, t.heightData[y*t.size+x])
				n.mergeIntoBounds(x, y, pos)
				vdr.positions[dest] = PositionVertex{
					Pos: pos.Sub(n.localCentre),
					UV:  math.Vec2{X: float32(x) * uvScale, Y: 1 - float32(y)*uvScale},
				}
			}
			if deltas {
				vdr.deltas[dest] = DeltaVertex{
					Delta: t.deltaData[y*t.size+x],
					LOD:   float32(t.LODLevelWhenVertexEliminated(x, y) - 1),
				}
			}
			dest++
		}
	}

	spacing := vdr.SkirtRowColSkip * inc
	skirtOffset := t.GetVector(math.Vec3{Z: -t.opts.SkirtSize})
	base := vdr.Size * vdr.Size

	writeSkirt := func(dest, x, y int) {
		if positions {
			pos := t.GetPoint(x, y, t.heightData[y*t.size+x]).Sub(n.localCentre).Add(skirtOffset)
			vdr.positions[dest] = PositionVertex{
				Pos: pos,
				UV:  math.Vec2{X: float32(x) * uvScale, Y: 1 - float32(y)*uvScale},
			}
		}
		if deltas {
			vdr.deltas[dest] = DeltaVertex{LOD: skirtDeltaLOD}
		}
	}

	// skirt rows
	startY := max(n.offsetY+ceilDiv(rect.Top-n.offsetY, spacing)*spacing, n.offsetY)
	for y := startY; y < rect.Bottom; y += spacing {
		dest := base + vdr.Size*((y-n.offsetY)/spacing) + (rect.Left-n.offsetX)/inc
		for x := rect.Left; x < rect.Right; x += inc {
			writeSkirt(dest, x, y)
			dest++
		}
	}

	// skirt columns
	startX := max(n.offsetX+ceilDiv(rect.Left-n.offsetX, spacing)*spacing, n.offsetX)
	for x := startX; x < rect.Right; x += spacing {
		dest := base + vdr.Size*vdr.NumSkirtRowsCols + vdr.Size*((x-n.offsetX)/spacing) + (rect.Top-n.offsetY)/inc
		for y := rect.Top; y < rect.Bottom; y += inc {
			writeSkirt(dest, x, y)
			dest++
		}
	}
}

// resetBounds clears the bounds of every node fully covered by rect.
func (n *QuadTreeNode) resetBounds(rect Rect) {
	if !n.rectContainsNode(rect) {
		return
	}
	n.aabb = picking.NullAABB()
	n.boundingRadius = 0
	if n.IsLeaf() {
		return
	}
	for _, c := range n.children {
		c.resetBounds(rect)
	}
}

// mergeIntoBounds grows the bounds of every node containing sample (x, y).
func (n *QuadTreeNode) mergeIntoBounds(x, y int, pos math.Vec3) {
	if !n.pointIntersectsNode(x, y) {
		return
	}
	local := pos.Sub(n.localCentre)
	n.aabb.Merge(local)
	n.boundingRadius = max(n.boundingRadius, local.Length())
	if n.IsLeaf() {
		return
	}
	for _, c := range n.children {
		c.mergeIntoBounds(x, y, pos)
	}
}

// LODLevelWhenVertexEliminated returns the global LOD at which sample (x, y)
// stops being rendered. Vertices present at every level report NumLodLevels.
func (t *Terrain) LODLevelWhenVertexEliminated(x, y int) int {
	return min(t.lodWhenEliminated(x), t.lodWhenEliminated(y))
}

func (t *Terrain) lodWhenEliminated(v int) int {
	elim := (t.size - 1) / (t.minBatch - 1)
	lod := t.numLodLevels
	for v%elim != 0 {
		elim /= 2
		lod--
	}
	return lod
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
