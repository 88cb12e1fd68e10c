// Package camera provides a viewpoint that drives terrain LOD selection
// and turns screen positions into picking rays.
package camera

import (
	gomath "math"

	"github.com/Faultbox/midgard-terrain/internal/engine/picking"
	"github.com/Faultbox/midgard-terrain/internal/engine/terrain"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// OrbitCamera orbits around a center point above a terrain plane.
// Pitch is measured from the terrain plane and yaw about its up axis,
// so the same settings frame a terrain the same way in every alignment.
type OrbitCamera struct {
	Alignment terrain.Alignment
	Center    math.Vec3 // world space

	// Spherical coordinates
	Distance float32
	Pitch    float32 // radians above the plane
	Yaw      float32 // radians about the up axis, zero looks north

	// Projection
	Fov       float32 // vertical, radians
	Near, Far float32
	Bias      float32 // LOD bias, 1 is neutral

	// Constraints
	MinDistance float32
	MaxDistance float32
	MinPitch    float32
	MaxPitch    float32

	// Sensitivity
	DragSensitivity float32
	ZoomSensitivity float32
}

// NewOrbitCamera creates a new orbit camera with default settings.
func NewOrbitCamera(align terrain.Alignment) *OrbitCamera {
	return &OrbitCamera{
		Alignment:       align,
		Distance:        200.0,
		Pitch:           0.5,
		Fov:             gomath.Pi / 4,
		Near:            1,
		Far:             100000,
		Bias:            1,
		MinDistance:     10.0,
		MaxDistance:     50000.0,
		MinPitch:        0.05,
		MaxPitch:        1.55,
		DragSensitivity: 0.005,
		ZoomSensitivity: 0.1,
	}
}

// offset returns the camera position relative to the center, in terrain axes.
func (c *OrbitCamera) offset() math.Vec3 {
	cp := float32(gomath.Cos(float64(c.Pitch)))
	return math.Vec3{
		X: -c.Distance * cp * float32(gomath.Sin(float64(c.Yaw))),
		Y: -c.Distance * cp * float32(gomath.Cos(float64(c.Yaw))),
		Z: c.Distance * float32(gomath.Sin(float64(c.Pitch))),
	}
}

// Position returns the camera position in world space.
func (c *OrbitCamera) Position() math.Vec3 {
	return c.Center.Add(terrain.TerrainToWorldAxes(c.Alignment, c.offset()))
}

// FovY returns the vertical field of view in radians.
func (c *OrbitCamera) FovY() float32 { return c.Fov }

// LodBias scales the pixel error tolerance of LOD selection.
func (c *OrbitCamera) LodBias() float32 { return c.Bias }

// Up returns the world up axis of the camera's terrain plane.
func (c *OrbitCamera) Up() math.Vec3 {
	return terrain.TerrainToWorldAxes(c.Alignment, math.Vec3{Z: 1})
}

// ViewMatrix returns the view matrix for this camera.
func (c *OrbitCamera) ViewMatrix() math.Mat4 {
	return math.LookAt(c.Position(), c.Center, c.Up())
}

// ViewProjection returns the combined view and projection matrix.
func (c *OrbitCamera) ViewProjection(aspect float32) math.Mat4 {
	return math.Perspective(c.Fov, aspect, c.Near, c.Far).Mul(c.ViewMatrix())
}

// PickRay returns the world ray through pixel (x, y) of a w by h viewport.
func (c *OrbitCamera) PickRay(x, y, w, h float32) picking.Ray {
	inv := c.ViewProjection(w / h).Inverse()
	return picking.ScreenToRay(x, y, w, h, inv)
}

// HandleDrag updates rotation based on mouse drag delta.
func (c *OrbitCamera) HandleDrag(deltaX, deltaY float32) {
	c.Yaw += deltaX * c.DragSensitivity
	c.Pitch = math.Clamp(c.Pitch+deltaY*c.DragSensitivity, c.MinPitch, c.MaxPitch)
}

// HandleZoom updates distance based on scroll wheel delta.
func (c *OrbitCamera) HandleZoom(delta float32) {
	c.Distance = math.Clamp(c.Distance-delta*c.Distance*c.ZoomSensitivity, c.MinDistance, c.MaxDistance)
}

// FitToBounds centers the camera on box and backs off far enough to see
// all of it.
func (c *OrbitCamera) FitToBounds(box picking.AABB) {
	c.Center = box.Center()
	size := box.Size().MaxComponent()
	half := float32(gomath.Tan(float64(c.Fov) / 2))
	if half <= 0 {
		half = 1
	}
	c.Distance = math.Clamp(size/(2*half), c.MinDistance, c.MaxDistance)
	c.Pitch = math.Clamp(0.6, c.MinPitch, c.MaxPitch)
	c.Yaw = 0
}
