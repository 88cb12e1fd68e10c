package terraingroup

import (
	"github.com/Faultbox/midgard-terrain/internal/engine/picking"
	"github.com/Faultbox/midgard-terrain/internal/engine/terrain"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// maxRayGaps is how many slots without a terrain a ray may cross in a row.
const maxRayGaps = 6

// RayResult is the outcome of a group ray query.
type RayResult struct {
	Hit      bool
	Terrain  *terrain.Terrain
	Position math.Vec3
}

// RayIntersects walks the slots under the ray in the order it crosses them
// and returns the first surface hit. The walk gives up after maxRayGaps
// empty slots in a row, or once a slot centre is further than limit from
// the ray origin. A zero limit is unlimited.
func (g *Group) RayIntersects(ray picking.Ray, limit float32) RayResult {
	cx, cy := g.ConvertWorldPositionToTerrainSlot(ray.Origin)
	centre := g.ConvertTerrainSlotToWorldPosition(cx, cy)
	offset := terrain.WorldToTerrainAxes(g.alignment, ray.Origin.Sub(centre))
	dir := terrain.WorldToTerrainAxes(g.alignment, ray.Direction)

	// position inside the slot in [0,1], counted along the direction of travel
	ox := offset.X/g.worldSize + 0.5
	oy := offset.Y/g.worldSize + 0.5
	incX, incY := absf(dir.X), absf(dir.Y)
	xStep, yStep := 1, 1
	if dir.X <= 0 {
		xStep = -1
		ox = 1 - ox
	}
	if dir.Y <= 0 {
		yStep = -1
		oy = 1 - oy
	}

	s := g.Slot(cx, cy)
	for gaps := 0; gaps <= maxRayGaps; {
		if s != nil && s.ready() && s.Instance.IsPrepared() {
			gaps = 0
			if p, hit := s.Instance.RayIntersects(ray, false, limit); hit {
				return RayResult{Hit: true, Terrain: s.Instance, Position: p}
			}
		}
		if incX == 0 && incY == 0 {
			break
		}

		// distance along the ray to the next slot boundary on each axis
		tx, ty := float32(-1), float32(-1)
		if incX > 0 {
			tx = (1 - ox) / incX
		}
		if incY > 0 {
			ty = (1 - oy) / incY
		}
		if ty < 0 || (tx >= 0 && tx < ty) {
			cx += xStep
			ox, oy = 0, oy+tx*incY
		} else {
			cy += yStep
			ox, oy = ox+ty*incX, 0
		}
		gaps++

		if limit > 0 && ray.Origin.Distance(g.ConvertTerrainSlotToWorldPosition(cx, cy)) > limit {
			break
		}
		s = g.Slot(cx, cy)
	}
	return RayResult{}
}

// HeightAtWorldPosition returns the surface height under pos and the
// terrain that holds it.
func (g *Group) HeightAtWorldPosition(pos math.Vec3) (float32, *terrain.Terrain, bool) {
	t := g.Terrain(g.ConvertWorldPositionToTerrainSlot(pos))
	if t == nil || !t.IsPrepared() {
		return 0, nil, false
	}
	return t.GetHeightAtWorldPosition(pos), t, true
}

// BoxIntersects returns the loaded terrains whose bounds overlap box.
func (g *Group) BoxIntersects(box picking.AABB) []*terrain.Terrain {
	var out []*terrain.Terrain
	for _, t := range g.Terrains() {
		if t.IsPrepared() && t.WorldAABB().Intersects(box) {
			out = append(out, t)
		}
	}
	return out
}

func absf(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
