package terrain

import (
	gomath "math"

	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// Alignment is the world plane the terrain lies in.
type Alignment uint8

const (
	// AlignXZ lays the terrain in the X/Z plane with Y up.
	AlignXZ Alignment = iota
	// AlignXY lays the terrain in the X/Y plane with Z up.
	AlignXY
	// AlignYZ lays the terrain in the Y/Z plane with X up.
	AlignYZ
)

func (a Alignment) String() string {
	switch a {
	case AlignXZ:
		return "X_Z"
	case AlignXY:
		return "X_Y"
	case AlignYZ:
		return "Y_Z"
	}
	return "unknown"
}

// ParseAlignment converts "X_Z", "X_Y" or "Y_Z" into an Alignment.
func ParseAlignment(s string) (Alignment, bool) {
	switch s {
	case "X_Z", "x_z", "xz":
		return AlignXZ, true
	case "X_Y", "x_y", "xy":
		return AlignXY, true
	case "Y_Z", "y_z", "yz":
		return AlignYZ, true
	}
	return AlignXZ, false
}

// Space identifies a coordinate frame for conversions.
type Space uint8

const (
	// WorldSpace is scene coordinates.
	WorldSpace Space = iota
	// LocalSpace is world space relative to the terrain position.
	LocalSpace
	// TerrainSpace is x,y in [0,1] across the terrain with z as height.
	TerrainSpace
	// PointSpace is x,y in height samples with z as height.
	PointSpace
)

// WorldToTerrainAxes relabels world axes so x,y run across the terrain and z
// is up. Nothing is translated.
func WorldToTerrainAxes(align Alignment, v math.Vec3) math.Vec3 {
	switch align {
	case AlignXZ:
		return math.Vec3{X: v.X, Y: -v.Z, Z: v.Y}
	case AlignYZ:
		return math.Vec3{X: -v.Z, Y: v.Y, Z: v.X}
	}
	return v
}

// TerrainToWorldAxes is the inverse of WorldToTerrainAxes.
func TerrainToWorldAxes(align Alignment, v math.Vec3) math.Vec3 {
	switch align {
	case AlignXZ:
		return math.Vec3{X: v.X, Y: v.Z, Z: -v.Y}
	case AlignYZ:
		return math.Vec3{X: v.Z, Y: v.Y, Z: -v.X}
	}
	return v
}

// upAxis returns the index of the world component holding height.
func upAxis(align Alignment) int {
	switch align {
	case AlignXZ:
		return 1
	case AlignYZ:
		return 0
	}
	return 2
}

func (t *Terrain) updateBaseScale() {
	t.base = -t.worldSize * 0.5
	t.scale = t.worldSize / float32(t.size-1)
}

// GetPoint returns the local-space position of sample (x, y) at height h.
func (t *Terrain) GetPoint(x, y int, h float32) math.Vec3 {
	return t.getPointAlign(x, y, h, t.alignment)
}

func (t *Terrain) getPointAlign(x, y int, h float32, align Alignment) math.Vec3 {
	return TerrainToWorldAxes(align, math.Vec3{
		X: float32(x)*t.scale + t.base,
		Y: float32(y)*t.scale + t.base,
		Z: h,
	})
}

// GetPointAtSample returns the local-space position of sample (x, y) at its stored height.
func (t *Terrain) GetPointAtSample(x, y int) math.Vec3 {
	return t.GetPoint(x, y, t.GetHeightAtPoint(x, y))
}

// GetVector converts a terrain-axis vector into world axes.
func (t *Terrain) GetVector(v math.Vec3) math.Vec3 {
	return TerrainToWorldAxes(t.alignment, v)
}

// GetTerrainVector converts a world-axis vector into terrain axes.
func (t *Terrain) GetTerrainVector(v math.Vec3) math.Vec3 {
	return WorldToTerrainAxes(t.alignment, v)
}

// GetPosition converts a terrain-space position into world space.
func (t *Terrain) GetPosition(ts math.Vec3) math.Vec3 {
	return t.ConvertPosition(TerrainSpace, ts, WorldSpace)
}

// GetTerrainPosition converts a world-space position into terrain space.
func (t *Terrain) GetTerrainPosition(ws math.Vec3) math.Vec3 {
	return t.ConvertPosition(WorldSpace, ws, TerrainSpace)
}

// ConvertPosition moves a position between coordinate spaces.
func (t *Terrain) ConvertPosition(in Space, v math.Vec3, out Space) math.Vec3 {
	return t.convertSpace(in, v, out, true)
}

// ConvertDirection moves a direction between coordinate spaces. Directions are
// relabelled but never translated or scaled.
func (t *Terrain) ConvertDirection(in Space, v math.Vec3, out Space) math.Vec3 {
	return t.convertSpace(in, v, out, false)
}

func (t *Terrain) convertSpace(in Space, v math.Vec3, out Space, translate bool) math.Vec3 {
	cur := in
	extent := float32(t.size-1) * t.scale
	for cur != out {
		switch cur {
		case WorldSpace:
			if translate {
				v = v.Sub(t.pos)
			}
			cur = LocalSpace
		case LocalSpace:
			switch out {
			case WorldSpace:
				if translate {
					v = v.Add(t.pos)
				}
				cur = WorldSpace
			default:
				v = WorldToTerrainAxes(t.alignment, v)
				if translate {
					v.X = (v.X - t.base) / extent
					v.Y = (v.Y - t.base) / extent
				}
				cur = TerrainSpace
			}
		case TerrainSpace:
			switch out {
			case PointSpace:
				if translate {
					v.X = float32(int(v.X*float32(t.size-1) + 0.5))
					v.Y = float32(int(v.Y*float32(t.size-1) + 0.5))
				}
				cur = PointSpace
			default:
				if translate {
					v.X = v.X*extent + t.base
					v.Y = v.Y*extent + t.base
				}
				v = TerrainToWorldAxes(t.alignment, v)
				cur = LocalSpace
			}
		case PointSpace:
			if translate {
				v.X /= float32(t.size - 1)
				v.Y /= float32(t.size - 1)
			}
			cur = TerrainSpace
		}
	}
	return v
}

func isPow2Plus1(n int) bool {
	m := n - 1
	return m > 0 && m&(m-1) == 0
}

func log2(n int) int {
	return int(gomath.Round(gomath.Log2(float64(n))))
}

func tanf(x float32) float32 { return float32(gomath.Tan(float64(x))) }

func sqrtf(x float32) float32 { return float32(gomath.Sqrt(float64(x))) }

func absf(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
