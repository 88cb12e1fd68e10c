// Package picking provides rays, planes and bounding boxes for terrain queries.
package picking

import (
	gomath "math"

	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// Ray represents a ray in 3D space with origin and direction.
type Ray struct {
	Origin    math.Vec3
	Direction math.Vec3 // Normalized direction
}

// NewRay returns a ray with a normalized direction.
func NewRay(origin, dir math.Vec3) Ray {
	return Ray{Origin: origin, Direction: dir.Normalize()}
}

// Point returns the point at distance t along the ray.
func (r Ray) Point(t float32) math.Vec3 {
	return r.Origin.Add(r.Direction.Scale(t))
}

// ScreenToRay converts screen coordinates to a world-space ray.
// screenX, screenY are pixel coordinates, viewportW/H are viewport dimensions.
// invViewProj is the inverse of the view-projection matrix.
func ScreenToRay(screenX, screenY, viewportW, viewportH float32, invViewProj math.Mat4) Ray {
	ndcX := 2.0*screenX/viewportW - 1.0
	ndcY := 1.0 - 2.0*screenY/viewportH // Flip Y

	nearWorld := invViewProj.TransformVec3(math.Vec3{X: ndcX, Y: ndcY, Z: -1})
	farWorld := invViewProj.TransformVec3(math.Vec3{X: ndcX, Y: ndcY, Z: 1})

	return NewRay(nearWorld, farWorld.Sub(nearWorld))
}

// IntersectPlane returns the distance along the ray to the plane.
// Rays parallel to the plane or hitting it behind the origin report false.
func (r Ray) IntersectPlane(p Plane) (t float32, hit bool) {
	denom := p.Normal.Dot(r.Direction)
	if gomath.Abs(float64(denom)) < 1e-7 {
		return 0, false
	}
	t = -(p.Normal.Dot(r.Origin) + p.D) / denom
	return t, t >= 0
}

// IntersectAABB tests ray intersection with an axis-aligned bounding box.
// Returns the entry distance, or 0 when the ray starts inside the box.
func (r Ray) IntersectAABB(box AABB) (t float32, hit bool) {
	if box.Contains(r.Origin) {
		return 0, true
	}

	tmin := float32(-gomath.MaxFloat32)
	tmax := float32(gomath.MaxFloat32)

	for axis := 0; axis < 3; axis++ {
		o := r.Origin.Component(axis)
		d := r.Direction.Component(axis)
		lo := box.Min.Component(axis)
		hi := box.Max.Component(axis)
		if d == 0 {
			if o < lo || o > hi {
				return 0, false
			}
			continue
		}
		t1 := (lo - o) / d
		t2 := (hi - o) / d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = max(tmin, t1)
		tmax = min(tmax, t2)
	}

	if tmax < tmin || tmax < 0 {
		return 0, false
	}
	return tmin, true
}

// AABB represents an axis-aligned bounding box.
// The zero value with Null set is an empty box that absorbs the first merge.
type AABB struct {
	Min  math.Vec3
	Max  math.Vec3
	Null bool
}

// NullAABB returns an empty box.
func NullAABB() AABB {
	return AABB{Null: true}
}

// NewAABB creates an AABB from min and max corners, swapping inverted axes.
func NewAABB(a, b math.Vec3) AABB {
	return AABB{Min: a.Min(b), Max: a.Max(b)}
}

// Merge grows the box to contain p.
func (b *AABB) Merge(p math.Vec3) {
	if b.Null {
		b.Min, b.Max, b.Null = p, p, false
		return
	}
	b.Min = b.Min.Min(p)
	b.Max = b.Max.Max(p)
}

// MergeBox grows the box to contain o.
func (b *AABB) MergeBox(o AABB) {
	if o.Null {
		return
	}
	b.Merge(o.Min)
	b.Merge(o.Max)
}

// Center returns the centre of the box.
func (b AABB) Center() math.Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// Size returns the extents of the box.
func (b AABB) Size() math.Vec3 {
	if b.Null {
		return math.Vec3{}
	}
	return b.Max.Sub(b.Min)
}

// Contains reports whether p lies inside the box (inclusive).
func (b AABB) Contains(p math.Vec3) bool {
	if b.Null {
		return false
	}
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Intersects reports whether two boxes overlap.
func (b AABB) Intersects(o AABB) bool {
	if b.Null || o.Null {
		return false
	}
	return b.Min.X <= o.Max.X && b.Max.X >= o.Min.X &&
		b.Min.Y <= o.Max.Y && b.Max.Y >= o.Min.Y &&
		b.Min.Z <= o.Max.Z && b.Max.Z >= o.Min.Z
}

// Translate returns the box moved by v.
func (b AABB) Translate(v math.Vec3) AABB {
	if b.Null {
		return b
	}
	return AABB{Min: b.Min.Add(v), Max: b.Max.Add(v)}
}
