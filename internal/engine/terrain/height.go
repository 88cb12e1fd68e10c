package terrain

import (
	"github.com/Faultbox/midgard-terrain/internal/engine/picking"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// HeightData returns the row-major height samples, south row first.
func (t *Terrain) HeightData() []float32 { return t.heightData }

// DeltaData returns the row-major morph deltas.
func (t *Terrain) DeltaData() []float32 { return t.deltaData }

// GetHeightAtPoint returns the height of sample (x, y). Coordinates outside
// the terrain are clamped.
func (t *Terrain) GetHeightAtPoint(x, y int) float32 {
	x = clampInt(x, 0, t.size-1)
	y = clampInt(y, 0, t.size-1)
	return t.heightData[y*t.size+x]
}

// SetHeightAtPoint changes one sample and marks it dirty. Coordinates outside
// the terrain are clamped. Call Update to apply the change.
//
// The caller must not edit a region claimed by an in-flight derived data job;
// the job reads heights without copying them.
func (t *Terrain) SetHeightAtPoint(x, y int, h float32) {
	x = clampInt(x, 0, t.size-1)
	y = clampInt(y, 0, t.size-1)
	t.heightData[y*t.size+x] = h
	t.DirtyRect(NewRect(x, y, x+1, y+1))
}

// GetHeightAtTerrainPosition interpolates the height at terrain-space (x, y)
// on the triangle the finest LOD renders there.
func (t *Terrain) GetHeightAtTerrainPosition(x, y float32) float32 {
	f := float32(t.size - 1)
	// the far edge belongs to the last cell
	startX := clampInt(int(x*f), 0, t.size-2)
	startY := clampInt(int(y*f), 0, t.size-2)
	endX := startX + 1
	endY := startY + 1

	startXTS := float32(startX) / f
	startYTS := float32(startY) / f
	endXTS := float32(endX) / f
	endYTS := float32(endY) / f

	xParam := (x - startXTS) * f
	yParam := (y - startYTS) * f

	v0 := math.Vec3{X: startXTS, Y: startYTS, Z: t.GetHeightAtPoint(startX, startY)}
	v1 := math.Vec3{X: endXTS, Y: startYTS, Z: t.GetHeightAtPoint(endX, startY)}
	v2 := math.Vec3{X: endXTS, Y: endYTS, Z: t.GetHeightAtPoint(endX, endY)}
	v3 := math.Vec3{X: startXTS, Y: endYTS, Z: t.GetHeightAtPoint(startX, endY)}

	// odd rows split 1-3, even rows split 0-2
	var p picking.Plane
	if startY%2 != 0 {
		if 1-yParam > xParam {
			p = picking.PlaneFromPoints(v0, v1, v3)
		} else {
			p = picking.PlaneFromPoints(v1, v2, v3)
		}
	} else {
		if yParam > xParam {
			p = picking.PlaneFromPoints(v0, v2, v3)
		} else {
			p = picking.PlaneFromPoints(v0, v1, v2)
		}
	}
	if p.Normal.Z == 0 {
		return v0.Z
	}
	return p.SolveZ(x, y)
}

// GetHeightAtWorldPosition interpolates the height below a world position.
func (t *Terrain) GetHeightAtWorldPosition(p math.Vec3) float32 {
	ts := t.GetTerrainPosition(p)
	return t.GetHeightAtTerrainPosition(ts.X, ts.Y)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
