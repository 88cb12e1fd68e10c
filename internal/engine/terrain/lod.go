package terrain

import (
	"github.com/Faultbox/midgard-terrain/internal/engine/picking"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// morphRegion is the fraction of a level's distance band spent morphing.
const morphRegion = 0.25

// calculateCurrentLod picks the rendered level for this node and its subtree.
// Children decide first; the node only considers its own levels when none of
// them rendered. It reports whether the node or a descendant renders.
func (n *QuadTreeNode) calculateCurrentLod(cam Camera, cFactor float32) bool {
	n.selfOrChildRendered = false

	rendered := 0
	if !n.IsLeaf() {
		for _, c := range n.children {
			if c.calculateCurrentLod(cam, cFactor) {
				rendered++
			}
		}
	}

	if rendered > 0 {
		n.currentLod = -1
		n.selfOrChildRendered = true
		if rendered < 4 {
			// a partial set would leave holes, so the rest render at their coarsest
			for _, c := range n.children {
				if !c.selfOrChildRendered {
					c.lodTransition = 1
					c.setCurrentLod(len(c.lodLevels) - 1)
				}
			}
		}
		return true
	}

	dist := n.cameraDistance(cam)
	n.updateMaterialLod(dist)

	n.currentLod = -1
	for i, ll := range n.lodLevels {
		if i+1 == len(n.lodLevels) && n.parent == nil {
			// last resort: the coarsest level of the root always renders
			n.lodTransition = 0
			n.setCurrentLod(i)
			n.selfOrChildRendered = true
			break
		}

		var distTransition float32
		if ll.lastCFactor != 0 && math.ApproxEqual(cFactor, ll.lastCFactor, 1e-6) {
			distTransition = ll.lastTransitionDist
		} else {
			distTransition = ll.MaxHeightDelta * cFactor
			ll.lastCFactor = cFactor
			ll.lastTransitionDist = distTransition
		}

		if dist >= distTransition {
			continue
		}

		n.selfOrChildRendered = true
		if n.terrain.IsMorphRequired() {
			n.lodTransition = n.morphFactor(i, dist, distTransition)
		} else {
			n.lodTransition = 0
		}
		n.setCurrentLod(i)
		break
	}
	return n.selfOrChildRendered
}

// morphFactor returns how far into the morph band dist lies for level i.
// Levels are ordered finest first, so the finer band was computed already:
// either the previous level of a leaf or the worst child of an interior node.
func (n *QuadTreeNode) morphFactor(i int, dist, distTransition float32) float32 {
	distTotal := distTransition
	if n.IsLeaf() {
		if i > 0 {
			distTotal -= n.lodLevels[i-1].lastTransitionDist
		}
	} else if c := n.childWithMaxHeightDelta; c != nil {
		distTotal -= c.lodLevels[len(c.lodLevels)-1].lastTransitionDist
	}

	band := distTotal * morphRegion
	if band <= 0 {
		return 0
	}
	return math.Clamp(1-(distTransition-dist)/band, 0, 1)
}

// cameraDistance measures from the camera to the node, either to its box
// or to its centre less half the bounding radius.
func (n *QuadTreeNode) cameraDistance(cam Camera) float32 {
	t := n.terrain
	localPos := cam.Position().Sub(n.localCentre).Sub(t.pos)
	if t.opts.UseRayBoxDistance {
		if n.aabb.Null {
			return localPos.Length()
		}
		dir := n.aabb.Center().Sub(localPos)
		if dir.Length() == 0 {
			return 0
		}
		d, hit := picking.NewRay(localPos, dir).IntersectAABB(n.aabb)
		if !hit {
			return localPos.Length()
		}
		return d
	}
	return localPos.Length() - n.boundingRadius*0.5
}

// updateMaterialLod switches to the composite map material past the
// configured distance.
func (n *QuadTreeNode) updateMaterialLod(dist float32) {
	if n.terrain.opts.CompositeMapRequired && dist > n.terrain.opts.CompositeMapDistance {
		n.materialLodIndex = 1
	} else {
		n.materialLodIndex = 0
	}
}
