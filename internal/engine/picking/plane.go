package picking

import "github.com/Faultbox/midgard-terrain/pkg/math"

// Plane is the set of points p with Normal·p + D == 0.
type Plane struct {
	Normal math.Vec3
	D      float32
}

// PlaneFromPoints builds the plane through three points with a normalized normal.
// The winding p0, p1, p2 is counter-clockwise when seen from the normal side.
func PlaneFromPoints(p0, p1, p2 math.Vec3) Plane {
	n := p1.Sub(p0).Cross(p2.Sub(p0)).Normalize()
	return Plane{Normal: n, D: -n.Dot(p0)}
}

// PlaneFromNormal builds the plane with normal n through point p.
func PlaneFromNormal(n, p math.Vec3) Plane {
	return Plane{Normal: n, D: -n.Dot(p)}
}

// Distance returns the signed distance from p to the plane.
func (pl Plane) Distance(p math.Vec3) float32 {
	return pl.Normal.Dot(p) + pl.D
}

// SolveZ returns z on the plane at (x, y). Normal.Z must be non-zero.
func (pl Plane) SolveZ(x, y float32) float32 {
	return (-pl.Normal.X*x - pl.Normal.Y*y - pl.D) / pl.Normal.Z
}
