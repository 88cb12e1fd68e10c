package terrain

import (
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/internal/engine/picking"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// CalculateNormals computes normals for rect widened by one sample, since a
// height change tilts its neighbours too. Samples past the edge are taken
// from the neighbouring terrain when one is connected. The returned image is
// RGB8, top row north, covering the returned rect.
//
// Normals are the normalized sum of the eight triangle fans around a sample:
//
//	3---2---1
//	| \ | / |
//	4---P---0
//	| / | \ |
//	5---6---7
func (t *Terrain) CalculateNormals(rect Rect) (*Image, Rect) {
	widened := NewRect(rect.Left-1, rect.Top-1, rect.Right+1, rect.Bottom+1).Clamp(t.size)
	if widened.IsNull() {
		return nil, Rect{}
	}
	img := NewImage(widened.Width(), widened.Height(), FormatRGB8)

	var adj [8]math.Vec3
	for y := widened.Top; y < widened.Bottom; y++ {
		for x := widened.Left; x < widened.Right; x++ {
			centre := t.getPointFromSelfOrNeighbour(x, y)
			adj[0] = t.getPointFromSelfOrNeighbour(x+1, y)
			adj[1] = t.getPointFromSelfOrNeighbour(x+1, y+1)
			adj[2] = t.getPointFromSelfOrNeighbour(x, y+1)
			adj[3] = t.getPointFromSelfOrNeighbour(x-1, y+1)
			adj[4] = t.getPointFromSelfOrNeighbour(x-1, y)
			adj[5] = t.getPointFromSelfOrNeighbour(x-1, y-1)
			adj[6] = t.getPointFromSelfOrNeighbour(x, y-1)
			adj[7] = t.getPointFromSelfOrNeighbour(x+1, y-1)

			var sum math.Vec3
			for i := range adj {
				sum = sum.Add(picking.PlaneFromPoints(centre, adj[i], adj[(i+1)%8]).Normal)
			}
			n := sum.Normalize()

			o := img.offset(x-widened.Left, widened.Bottom-y-1)
			img.Data[o] = unitToByte(n.X)
			img.Data[o+1] = unitToByte(n.Y)
			img.Data[o+2] = unitToByte(n.Z)
		}
	}
	return img, widened
}

// FinalizeNormals copies a computed block into the normal map.
func (t *Terrain) FinalizeNormals(rect Rect, box *Image) {
	if t.normalMap == nil || box == nil {
		return
	}
	if err := t.normalMap.Blit(box, rect.Left, t.size-rect.Bottom); err != nil {
		t.log.Error("normal map update failed", zap.Error(err))
	}
}

// NormalAtPoint decodes the stored normal of sample (x, y).
func (t *Terrain) NormalAtPoint(x, y int) math.Vec3 {
	if t.normalMap == nil {
		return t.GetVector(math.UnitZ)
	}
	x = clampInt(x, 0, t.size-1)
	y = clampInt(y, 0, t.size-1)
	o := t.normalMap.offset(x, t.size-y-1)
	d := t.normalMap.Data
	return math.Vec3{
		X: float32(d[o])/255*2 - 1,
		Y: float32(d[o+1])/255*2 - 1,
		Z: float32(d[o+2])/255*2 - 1,
	}
}

// unitToByte maps [-1,1] onto [0,255].
func unitToByte(v float32) uint8 {
	return uint8(math.Clamp((v+1)*0.5*255, 0, 255))
}
