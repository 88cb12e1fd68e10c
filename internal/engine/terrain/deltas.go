package terrain

import (
	"github.com/Faultbox/midgard-terrain/internal/engine/picking"
)

// deltaMargin keeps a coarser level's error at least 5% above the finer one
// so groups never merge before their members would.
const deltaMargin = 1.05

// preDeltaCalculation zeroes the working deltas of nodes fully covered by
// rect. Partially covered nodes keep theirs, so values only grow there.
func (n *QuadTreeNode) preDeltaCalculation(rect Rect) {
	if !n.rectIntersectsNode(rect) {
		return
	}
	if n.rectContainsNode(rect) {
		for _, ll := range n.lodLevels {
			ll.calcMaxHeightDelta = 0
		}
	}
	if n.IsLeaf() {
		return
	}
	for _, c := range n.children {
		c.preDeltaCalculation(rect)
	}
}

// notifyDelta records the error of sample (x, y) at a global LOD.
func (n *QuadTreeNode) notifyDelta(x, y, lod int, delta float32) {
	if !n.pointIntersectsNode(x, y) {
		return
	}
	if lod >= n.baseLod && lod < n.baseLod+len(n.lodLevels) {
		ll := n.lodLevels[lod-n.baseLod]
		ll.calcMaxHeightDelta = max(ll.calcMaxHeightDelta, delta)
		return
	}
	if n.IsLeaf() {
		return
	}
	for _, c := range n.children {
		c.notifyDelta(x, y, lod, delta)
	}
}

// postDeltaCalculation makes the working deltas grow with coarseness, bottom up.
func (n *QuadTreeNode) postDeltaCalculation(rect Rect) {
	if !n.rectIntersectsNode(rect) {
		return
	}
	if n.IsLeaf() {
		for i := 0; i+1 < len(n.lodLevels); i++ {
			next := n.lodLevels[i+1]
			next.calcMaxHeightDelta = max(next.calcMaxHeightDelta, n.lodLevels[i].calcMaxHeightDelta*deltaMargin)
		}
		return
	}

	for _, c := range n.children {
		c.postDeltaCalculation(rect)
	}
	maxChild := float32(-1)
	for _, c := range n.children {
		d := c.lodLevels[len(c.lodLevels)-1].calcMaxHeightDelta
		if d > maxChild {
			maxChild = d
			n.childWithMaxHeightDelta = c
		}
	}
	ll := n.lodLevels[0]
	ll.calcMaxHeightDelta = max(ll.calcMaxHeightDelta, maxChild*deltaMargin)
}

// finaliseDeltaValues promotes working deltas to live ones and drops cached
// transition distances.
func (n *QuadTreeNode) finaliseDeltaValues(rect Rect) {
	if !n.rectIntersectsNode(rect) {
		return
	}
	if !n.IsLeaf() {
		for _, c := range n.children {
			c.finaliseDeltaValues(rect)
		}
	}
	for _, ll := range n.lodLevels {
		ll.MaxHeightDelta = ll.calcMaxHeightDelta
		ll.lastCFactor = 0
	}
}

// CalculateHeightDeltas recomputes per-sample morph deltas and per-node error
// for the region, writing only working values. It returns the region whose
// delta data changed, which is wider than rect.
func (t *Terrain) CalculateHeightDeltas(rect Rect) Rect {
	clamped := rect.Clamp(t.size)
	final := clamped
	t.root.preDeltaCalculation(clamped)

	for target := 1; target < t.numLodLevels; target++ {
		source := target - 1
		step := 1 << target
		half := step / 2

		// a change moves coarse triangles up to one step away
		widened := NewRect(clamped.Left-step, clamped.Top-step, clamped.Right+step, clamped.Bottom+step).Clamp(t.size)
		final = final.Merge(widened)

		lod := widened
		lod.Left -= lod.Left % step
		lod.Top -= lod.Top % step
		if r := lod.Right % step; r != 0 {
			lod.Right += step - r
		}
		if r := lod.Bottom % step; r != 0 {
			lod.Bottom += step - r
		}
		lastX := min(lod.Right, t.size-1)
		lastY := min(lod.Bottom, t.size-1)

		for j := lod.Top; j+step <= lastY; j += step {
			for i := lod.Left; i+step <= lastX; i += step {
				t.quadDeltas(i, j, step, half, source)
			}
		}
	}

	t.root.postDeltaCalculation(clamped)
	return final
}

// quadDeltas measures every fine sample inside one coarse quad against the two
// triangles the coarse level renders there.
//
//	even rows  2---3   odd rows  2---3
//	           | / |             | \ |
//	           0---1             0---1
func (t *Terrain) quadDeltas(i, j, step, half, source int) {
	v0 := t.getPointAlign(i, j, t.heightData[j*t.size+i], AlignXY)
	v1 := t.getPointAlign(i+step, j, t.heightData[j*t.size+i+step], AlignXY)
	v2 := t.getPointAlign(i, j+step, t.heightData[(j+step)*t.size+i], AlignXY)
	v3 := t.getPointAlign(i+step, j+step, t.heightData[(j+step)*t.size+i+step], AlignXY)

	var t1, t2 picking.Plane
	backward := false
	if (j/step)%2 == 0 {
		t1 = picking.PlaneFromPoints(v0, v1, v3)
		t2 = picking.PlaneFromPoints(v0, v3, v2)
	} else {
		t1 = picking.PlaneFromPoints(v1, v3, v2)
		t2 = picking.PlaneFromPoints(v0, v1, v2)
		backward = true
	}

	// the last quad of a row or column also owns the far edge
	yub := step - 1
	if j+step == t.size-1 {
		yub = step
	}
	xub := step - 1
	if i+step == t.size-1 {
		xub = step
	}

	for y := 0; y <= yub; y++ {
		fy := j + y
		ypct := float32(y) / float32(step)
		for x := 0; x <= xub; x++ {
			fx := i + x
			if fx%step == 0 && fy%step == 0 {
				continue
			}
			xpct := float32(x) / float32(step)
			actual := t.getPointAlign(fx, fy, t.heightData[fy*t.size+fx], AlignXY)

			var interp float32
			if (xpct > ypct && !backward) || (xpct > 1-ypct && backward) {
				interp = t1.SolveZ(actual.X, actual.Y)
			} else {
				interp = t2.SolveZ(actual.X, actual.Y)
			}
			delta := interp - actual.Z

			t.root.notifyDelta(fx, fy, source, absf(delta))

			// samples dropped at exactly this level keep their signed move
			if (fx%step == half && fy%half == 0) || (fy%step == half && fx%half == 0) {
				t.deltaData[fy*t.size+fx] = delta
			}
		}
	}
}

// FinalizeHeightDeltas promotes the working node deltas and rewrites the
// morph stream of affected vertex buffers.
func (t *Terrain) FinalizeHeightDeltas(rect Rect) {
	clamped := rect.Clamp(t.size)
	t.root.finaliseDeltaValues(clamped)
	t.root.updateVertexData(false, true, clamped)
}

// HeightDeltaAt returns the stored morph delta of sample (x, y).
func (t *Terrain) HeightDeltaAt(x, y int) float32 {
	x = clampInt(x, 0, t.size-1)
	y = clampInt(y, 0, t.size-1)
	return t.deltaData[y*t.size+x]
}
