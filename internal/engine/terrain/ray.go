package terrain

import (
	gomath "math"

	"github.com/Faultbox/midgard-terrain/internal/engine/picking"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// RayIntersects returns the first point where a world-space ray hits the
// surface. With cascade set, a ray leaving the terrain continues into the
// neighbour it exits through, until it has travelled limit world units.
// A zero limit is unlimited.
func (t *Terrain) RayIntersects(ray picking.Ray, cascade bool, limit float32) (math.Vec3, bool) {
	if !t.prepared {
		return math.Vec3{}, false
	}

	// vertex space: x and z in samples, y is height
	o := t.GetTerrainVector(ray.Origin.Sub(t.pos))
	d := t.GetTerrainVector(ray.Direction)
	local := picking.NewRay(
		math.Vec3{X: (o.X - t.base) / t.scale, Y: o.Z, Z: (o.Y - t.base) / t.scale},
		math.Vec3{X: d.X / t.scale, Y: d.Z, Z: d.Y / t.scale},
	)

	if p, hit := t.walkQuads(local); hit {
		ts := math.Vec3{X: p.X*t.scale + t.base, Y: p.Z*t.scale + t.base, Z: p.Y}
		return t.GetVector(ts).Add(t.pos), true
	}
	if cascade {
		if n := t.raySelectNeighbour(ray, limit); n != nil {
			return n.RayIntersects(ray, cascade, limit)
		}
	}
	return math.Vec3{}, false
}

// walkQuads steps through the quads under a vertex-space ray in the order
// it crosses them.
func (t *Terrain) walkQuads(ray picking.Ray) (math.Vec3, bool) {
	minH, maxH := t.MinHeight(), t.MaxHeight()
	box := picking.NewAABB(math.Vec3{Y: minH}, math.Vec3{X: float32(t.size), Y: maxH, Z: float32(t.size)})
	enter, hit := ray.IntersectAABB(box)
	if !hit {
		return math.Vec3{}, false
	}
	cur := ray.Point(enter)
	dir := ray.Direction

	quadX := clampInt(int(cur.X), 0, t.size-2)
	quadZ := clampInt(int(cur.Z), 0, t.size-2)
	flipX, xStep := float32(1), 1
	if dir.X < 0 {
		flipX, xStep = 0, -1
	}
	flipZ, zStep := float32(1), 1
	if dir.Z < 0 {
		flipZ, zStep = 0, -1
	}
	far := float32(t.size) * 10000

	for cur.Y >= minH-1e-3 && cur.Y <= maxH+1e-3 {
		if quadX < 0 || quadX >= t.size-1 || quadZ < 0 || quadZ >= t.size-1 {
			break
		}
		if p, ok := t.checkQuadIntersection(quadX, quadZ, ray); ok {
			return p, true
		}

		xDist, zDist := far, far
		if !math.ApproxEqual(dir.X, 0, 1e-6) {
			xDist = (float32(quadX) - cur.X + flipX) / dir.X
		}
		if !math.ApproxEqual(dir.Z, 0, 1e-6) {
			zDist = (float32(quadZ) - cur.Z + flipZ) / dir.Z
		}
		if xDist < zDist {
			quadX += xStep
			cur = cur.Add(dir.Scale(xDist))
		} else {
			quadZ += zStep
			cur = cur.Add(dir.Scale(zDist))
		}
	}
	return math.Vec3{}, false
}

// checkQuadIntersection tests the two triangles of quad (x, z) with the same
// split the index strips render.
func (t *Terrain) checkQuadIntersection(x, z int, ray picking.Ray) (math.Vec3, bool) {
	v1 := math.Vec3{X: float32(x), Y: t.GetHeightAtPoint(x, z), Z: float32(z)}
	v2 := math.Vec3{X: float32(x + 1), Y: t.GetHeightAtPoint(x+1, z), Z: float32(z)}
	v3 := math.Vec3{X: float32(x), Y: t.GetHeightAtPoint(x, z+1), Z: float32(z + 1)}
	v4 := math.Vec3{X: float32(x + 1), Y: t.GetHeightAtPoint(x+1, z+1), Z: float32(z + 1)}

	odd := z%2 != 0
	var p1, p2 picking.Plane
	if odd {
		//  3---4
		//  | \ |
		//  1---2
		p1 = picking.PlaneFromPoints(v2, v4, v3)
		p2 = picking.PlaneFromPoints(v1, v2, v3)
	} else {
		//  3---4
		//  | / |
		//  1---2
		p1 = picking.PlaneFromPoints(v1, v2, v4)
		p2 = picking.PlaneFromPoints(v1, v4, v3)
	}

	inQuad := func(rel math.Vec3) bool {
		return rel.X >= -0.01 && rel.X <= 1.01 && rel.Z >= -0.01 && rel.Z <= 1.01
	}
	if d, ok := ray.IntersectPlane(p1); ok {
		where := ray.Point(d)
		rel := where.Sub(v1)
		if inQuad(rel) && ((!odd && rel.X >= rel.Z) || (odd && rel.X >= 1-rel.Z)) {
			return where, true
		}
	}
	if d, ok := ray.IntersectPlane(p2); ok {
		where := ray.Point(d)
		rel := where.Sub(v1)
		if inQuad(rel) && ((!odd && rel.X <= rel.Z) || (odd && rel.X <= 1-rel.Z)) {
			return where, true
		}
	}
	return math.Vec3{}, false
}

// raySelectNeighbour returns the neighbour a ray leaves this terrain into.
// A ray leaving through a corner goes to the east or west neighbour. It
// returns nil when the ray has no lateral motion or has passed limit world
// units by the time it exits.
func (t *Terrain) raySelectNeighbour(ray picking.Ray, limit float32) *Terrain {
	// start half a sample back so rays grazing the edge still find the exit
	origin := ray.Point(-t.worldSize / float32(t.size) * 0.5)

	tPos := t.ConvertPosition(WorldSpace, origin, TerrainSpace)
	lateral := t.ConvertDirection(WorldSpace, ray.Direction, TerrainSpace)
	if math.ApproxEqual(lateral.X, 0, 1e-4) && math.ApproxEqual(lateral.Y, 0, 1e-4) {
		return nil
	}

	// scale the direction so the ray parameter stays in world units
	extent := float32(t.size-1) * t.scale
	tr := picking.Ray{
		Origin:    tPos,
		Direction: math.Vec3{X: lateral.X / extent, Y: lateral.Y / extent, Z: lateral.Z},
	}

	// exit planes only, the origin may lie outside after several cascades
	dist := float32(gomath.MaxFloat32)
	exit := func(p picking.Plane) {
		if d, ok := tr.IntersectPlane(p); ok && d < dist {
			dist = d
		}
	}
	switch {
	case lateral.X < 0:
		exit(picking.PlaneFromNormal(math.UnitX, math.Vec3{}))
	case lateral.X > 0:
		exit(picking.PlaneFromNormal(math.UnitX.Neg(), math.UnitX))
	}
	switch {
	case lateral.Y < 0:
		exit(picking.PlaneFromNormal(math.UnitY, math.Vec3{}))
	case lateral.Y > 0:
		exit(picking.PlaneFromNormal(math.UnitY.Neg(), math.UnitY))
	}
	if dist == float32(gomath.MaxFloat32) {
		return nil
	}
	if limit != 0 && dist > limit {
		return nil
	}

	p := tr.Point(dist)
	switch {
	case math.ApproxEqual(p.X, 1, 1e-4) && lateral.X > 0:
		return t.neighbours[NeighbourEast]
	case math.ApproxEqual(p.X, 0, 1e-4) && lateral.X < 0:
		return t.neighbours[NeighbourWest]
	case math.ApproxEqual(p.Y, 1, 1e-4) && lateral.Y > 0:
		return t.neighbours[NeighbourNorth]
	case math.ApproxEqual(p.Y, 0, 1e-4) && lateral.Y < 0:
		return t.neighbours[NeighbourSouth]
	}
	return nil
}
