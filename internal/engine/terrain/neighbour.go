package terrain

import (
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// NeighbourIndex identifies one of the eight terrains around a terrain,
// anticlockwise from east.
type NeighbourIndex int

const (
	NeighbourEast NeighbourIndex = iota
	NeighbourNorthEast
	NeighbourNorth
	NeighbourNorthWest
	NeighbourWest
	NeighbourSouthWest
	NeighbourSouth
	NeighbourSouthEast

	neighbourCount = 8
)

// Opposite returns the neighbour on the other side.
func (i NeighbourIndex) Opposite() NeighbourIndex {
	return (i + neighbourCount/2) % neighbourCount
}

func (i NeighbourIndex) String() string {
	switch i {
	case NeighbourEast:
		return "east"
	case NeighbourNorthEast:
		return "northeast"
	case NeighbourNorth:
		return "north"
	case NeighbourNorthWest:
		return "northwest"
	case NeighbourWest:
		return "west"
	case NeighbourSouthWest:
		return "southwest"
	case NeighbourSouth:
		return "south"
	case NeighbourSouthEast:
		return "southeast"
	}
	return "invalid"
}

// GetNeighbourIndex returns the neighbour in grid direction (x, y), where
// +x is east and +y is north. (0, 0) has no neighbour and reports north.
func GetNeighbourIndex(x, y int) NeighbourIndex {
	switch {
	case x < 0:
		switch {
		case y < 0:
			return NeighbourSouthWest
		case y > 0:
			return NeighbourNorthWest
		}
		return NeighbourWest
	case x > 0:
		switch {
		case y < 0:
			return NeighbourSouthEast
		case y > 0:
			return NeighbourNorthEast
		}
		return NeighbourEast
	case y < 0:
		return NeighbourSouth
	}
	return NeighbourNorth
}

// Neighbour returns the connected terrain at i, or nil.
func (t *Terrain) Neighbour(i NeighbourIndex) *Terrain {
	if i < 0 || i >= neighbourCount {
		return nil
	}
	return t.neighbours[i]
}

// SetNeighbour connects n at i. With notifyOther the link is made both ways
// and the previous neighbour is detached; with recalculate both sides of
// the shared edge are reconciled immediately.
func (t *Terrain) SetNeighbour(i NeighbourIndex, n *Terrain, recalculate, notifyOther bool) {
	if i < 0 || i >= neighbourCount || t.neighbours[i] == n || n == t {
		return
	}
	if n != nil && n.size != t.size {
		t.log.Warn("neighbour size mismatch",
			zap.Stringer("index", i), zap.Int("size", t.size), zap.Int("neighbourSize", n.size))
		return
	}

	if old := t.neighbours[i]; old != nil && notifyOther {
		old.SetNeighbour(i.Opposite(), nil, false, false)
	}
	t.neighbours[i] = n
	if n != nil && notifyOther {
		n.SetNeighbour(i.Opposite(), t, recalculate, false)
	}
	if recalculate && n != nil {
		edge := t.EdgeRect(i, 2)
		t.NeighbourModified(i, edge, edge)
	}
}

// EdgeRect returns the band of width rng along the side facing i.
func (t *Terrain) EdgeRect(i NeighbourIndex, rng int) Rect {
	var r Rect
	switch i {
	case NeighbourEast, NeighbourNorthEast, NeighbourSouthEast:
		r.Left, r.Right = t.size-rng, t.size
	case NeighbourWest, NeighbourNorthWest, NeighbourSouthWest:
		r.Left, r.Right = 0, rng
	default:
		r.Left, r.Right = 0, t.size
	}
	switch i {
	case NeighbourNorth, NeighbourNorthEast, NeighbourNorthWest:
		r.Top, r.Bottom = t.size-rng, t.size
	case NeighbourSouth, NeighbourSouthWest, NeighbourSouthEast:
		r.Top, r.Bottom = 0, rng
	default:
		r.Top, r.Bottom = 0, t.size
	}
	return r
}

// NeighbourEdgeRect reflects an edge band of this terrain onto the matching
// band of the neighbour at i.
func (t *Terrain) NeighbourEdgeRect(i NeighbourIndex, r Rect) Rect {
	out := r
	flipX, flipY := neighbourFlips(i)
	if flipX {
		out.Left, out.Right = t.size-r.Right, t.size-r.Left
	}
	if flipY {
		out.Top, out.Bottom = t.size-r.Bottom, t.size-r.Top
	}
	return out
}

// NeighbourPoint returns the sample of the neighbour at i that coincides
// with edge sample (x, y) of this terrain.
func (t *Terrain) NeighbourPoint(i NeighbourIndex, x, y int) (int, int) {
	flipX, flipY := neighbourFlips(i)
	if flipX {
		x = t.size - x - 1
	}
	if flipY {
		y = t.size - y - 1
	}
	return x, y
}

func neighbourFlips(i NeighbourIndex) (x, y bool) {
	switch i {
	case NeighbourEast, NeighbourWest:
		return true, false
	case NeighbourNorth, NeighbourSouth:
		return false, true
	}
	return true, true
}

// NeighbourPointOverflow maps a sample outside this terrain onto the
// neighbour that holds it. Edge samples are shared, so one step past the
// east edge is sample 1 of the east neighbour.
func (t *Terrain) NeighbourPointOverflow(x, y int) (NeighbourIndex, int, int) {
	idx := NeighbourEast
	nx, ny := x, y
	switch {
	case x < 0:
		nx = x + t.size - 1
		idx = NeighbourWest
		if y < 0 {
			idx = NeighbourSouthWest
		} else if y >= t.size {
			idx = NeighbourNorthWest
		}
	case x >= t.size:
		nx = x - t.size + 1
		if y < 0 {
			idx = NeighbourSouthEast
		} else if y >= t.size {
			idx = NeighbourNorthEast
		}
	}
	switch {
	case y < 0:
		ny = y + t.size - 1
		if x >= 0 && x < t.size {
			idx = NeighbourSouth
		}
	case y >= t.size:
		ny = y - t.size + 1
		if x >= 0 && x < t.size {
			idx = NeighbourNorth
		}
	}
	return idx, nx, ny
}

// getPointFromSelfOrNeighbour returns the local-space position of (x, y),
// reading past the edge from a neighbour when one is connected and clamping
// otherwise.
func (t *Terrain) getPointFromSelfOrNeighbour(x, y int) math.Vec3 {
	if x >= 0 && y >= 0 && x < t.size && y < t.size {
		return t.GetPointAtSample(x, y)
	}
	idx, nx, ny := t.NeighbourPointOverflow(x, y)
	if n := t.neighbours[idx]; n != nil && n.prepared {
		return n.GetPointAtSample(nx, ny).Add(n.pos).Sub(t.pos)
	}
	return t.GetPointAtSample(clampInt(x, 0, t.size-1), clampInt(y, 0, t.size-1))
}

// NotifyNeighbours tells connected terrains about height edits near the
// shared edges and about shadows cast across them.
func (t *Terrain) NotifyNeighbours() {
	if t.dirtyGeometryRectForNeighbours.IsNull() {
		return
	}
	dirty := t.dirtyGeometryRectForNeighbours
	t.dirtyGeometryRectForNeighbours = Rect{}
	lm := t.WidenRectByVector(t.opts.LightMapDirection, dirty)

	for i, n := range t.neighbours {
		if n == nil || !n.prepared {
			continue
		}
		ni := NeighbourIndex(i)
		edge := t.EdgeRect(ni, 2)

		var heightEdge, lmEdge Rect
		if r := edge.Intersect(dirty); !r.IsNull() {
			heightEdge = t.NeighbourEdgeRect(ni, r)
		}
		if r := edge.Intersect(lm); !r.IsNull() {
			lmEdge = t.NeighbourEdgeRect(ni, r)
		}
		if !heightEdge.IsNull() || !lmEdge.IsNull() {
			n.NeighbourModified(ni.Opposite(), heightEdge, lmEdge)
		}
	}
}

// NeighbourModified reacts to a change in the neighbour at i. Edge heights
// are copied from the neighbour where they differ, then normals and shadows
// near the edge are recomputed.
func (t *Terrain) NeighbourModified(i NeighbourIndex, edge, shadow Rect) {
	n := t.Neighbour(i)
	if n == nil || !t.prepared || !n.prepared {
		return
	}

	updateGeom := false
	var mask uint8

	if !edge.IsNull() {
		match := t.EdgeRect(i, 1).Intersect(edge)
		for y := match.Top; y < match.Bottom; y++ {
			for x := match.Left; x < match.Right; x++ {
				nx, ny := t.NeighbourPoint(i, x, y)
				nh := n.GetHeightAtPoint(nx, ny)
				if !math.ApproxEqual(nh, t.GetHeightAtPoint(x, y), 1e-3) {
					t.SetHeightAtPoint(x, y, nh)
					updateGeom = true
					mask |= DerivedAll
				}
			}
		}
		if !updateGeom {
			// the neighbour's heights feed our edge normals
			t.dirtyDerivedDataRect = t.dirtyDerivedDataRect.Merge(edge)
			t.dirtyDerivedMask |= DerivedNormals
			mask |= DerivedNormals
		}
	}
	if !shadow.IsNull() {
		// shadows are cast from the neighbour's height range
		widened := t.widenRectByVector(t.opts.LightMapDirection, shadow, n.MinHeight(), n.MaxHeight())
		t.dirtyLightmapFromNeighboursRect = t.dirtyLightmapFromNeighboursRect.Merge(widened)
		t.dirtyDerivedMask |= DerivedLightmap
		mask |= DerivedLightmap
	}

	t.log.Debug("neighbour modified",
		zap.Stringer("neighbour", i),
		zap.Stringer("edge", edge),
		zap.Stringer("shadow", shadow),
		zap.Bool("heightsChanged", updateGeom))

	if updateGeom {
		t.UpdateGeometry()
	}
	if mask != 0 {
		t.UpdateDerivedData(true, mask)
	}
}
