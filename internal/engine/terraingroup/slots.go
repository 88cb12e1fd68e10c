package terraingroup

import (
	"fmt"
	gomath "math"
	"strconv"
	"strings"

	"github.com/Faultbox/midgard-terrain/internal/engine/terrain"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// PackIndex packs slot coordinates into a key: x in the high 16 bits and y
// in the low 16 bits, both two's complement.
func PackIndex(x, y int) uint32 {
	return uint32(uint16(int16(x)))<<16 | uint32(uint16(int16(y)))
}

// UnpackIndex is the inverse of PackIndex.
func UnpackIndex(key uint32) (x, y int) {
	return int(int16(key >> 16)), int(int16(key & 0xffff))
}

// GenerateFilename returns the file name used for slot (x, y).
func (g *Group) GenerateFilename(x, y int) string {
	return fmt.Sprintf("%s_%08d.%s", g.prefix, PackIndex(x, y), g.ext)
}

// parseFilename recovers the slot of a name made by GenerateFilename.
func parseFilename(name, prefix, ext string) (x, y int, ok bool) {
	rest, found := strings.CutPrefix(name, prefix+"_")
	if !found {
		return 0, 0, false
	}
	rest, found = strings.CutSuffix(rest, "."+ext)
	if !found {
		return 0, 0, false
	}
	key, err := strconv.ParseUint(rest, 10, 32)
	if err != nil {
		return 0, 0, false
	}
	x, y = UnpackIndex(uint32(key))
	return x, y, true
}

// ConvertWorldPositionToTerrainSlot returns the slot containing pos.
func (g *Group) ConvertWorldPositionToTerrainSlot(pos math.Vec3) (x, y int) {
	tp := terrain.WorldToTerrainAxes(g.alignment, pos.Sub(g.origin))
	half := g.worldSize * 0.5
	x = int(gomath.Floor(float64((tp.X + half) / g.worldSize)))
	y = int(gomath.Floor(float64((tp.Y + half) / g.worldSize)))
	return x, y
}

// ConvertTerrainSlotToWorldPosition returns the centre of slot (x, y).
func (g *Group) ConvertTerrainSlotToWorldPosition(x, y int) math.Vec3 {
	p := terrain.TerrainToWorldAxes(g.alignment, math.Vec3{
		X: float32(x) * g.worldSize,
		Y: float32(y) * g.worldSize,
	})
	return p.Add(g.origin)
}

// TerrainSlotPosition is where the terrain of slot (x, y) is placed.
func (g *Group) TerrainSlotPosition(x, y int) math.Vec3 {
	return g.ConvertTerrainSlotToWorldPosition(x, y)
}
