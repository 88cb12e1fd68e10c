package terrain

import (
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/internal/engine/picking"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// CalculateLightmap computes shadowing for rect and extra, in height-sample
// coordinates. The region is widened along the light direction first, since
// a raised sample shades terrain downwind of it. The returned image is L8,
// top row north, covering the returned rect in light map texels.
func (t *Terrain) CalculateLightmap(rect, extra Rect) (*Image, Rect) {
	lmSize := t.lightMapSize
	widened := t.WidenRectByVector(t.opts.LightMapDirection, rect).Merge(extra)
	if widened.IsNull() || lmSize < 2 {
		return nil, Rect{}
	}

	s := float32(lmSize) / float32(t.size)
	widened = NewRect(
		int(float32(widened.Left)*s),
		int(float32(widened.Top)*s),
		int(float32(widened.Right)*s),
		int(float32(widened.Bottom)*s),
	).Clamp(lmSize)
	if widened.IsNull() {
		return nil, Rect{}
	}

	img := NewImage(widened.Width(), widened.Height(), FormatL8)
	// lift the sample a little so it does not shadow itself
	pad := max((t.MaxHeight()-t.MinHeight())*1e-3, 1e-3)
	back := t.opts.LightMapDirection.Neg()
	f := float32(lmSize - 1)

	for y := widened.Top; y < widened.Bottom; y++ {
		for x := widened.Left; x < widened.Right; x++ {
			tx := float32(x) / f
			ty := float32(y) / f
			wpos := t.GetPosition(math.Vec3{X: tx, Y: ty, Z: t.GetHeightAtTerrainPosition(tx, ty) + pad})

			lit := uint8(255)
			if _, hit := t.RayIntersects(picking.NewRay(wpos, back), true, t.worldSize); hit {
				lit = 0
			}
			img.Data[img.offset(x-widened.Left, widened.Bottom-y-1)] = lit
		}
	}
	return img, widened
}

// FinalizeLightmap copies a computed block into the light map.
func (t *Terrain) FinalizeLightmap(rect Rect, box *Image) {
	if t.lightMap == nil || box == nil {
		return
	}
	if err := t.lightMap.Blit(box, rect.Left, t.lightMapSize-rect.Bottom); err != nil {
		t.log.Error("light map update failed", zap.Error(err))
	}
}

// WidenRectByVector grows rect to cover where vec, cast from the top or
// bottom of this terrain's height range, lands after crossing the range.
func (t *Terrain) WidenRectByVector(vec math.Vec3, rect Rect) Rect {
	return t.widenRectByVector(vec, rect, t.MinHeight(), t.MaxHeight())
}

func (t *Terrain) widenRectByVector(vec math.Vec3, rect Rect, minH, maxH float32) Rect {
	if rect.IsNull() {
		return rect
	}
	up := t.GetVector(math.UnitZ)
	vertical := vec.Dot(up)
	if math.ApproxEqual(vertical, 0, 1e-6) {
		return rect
	}

	planeH := maxH
	startH := minH
	if vertical < 0 {
		planeH, startH = minH, maxH
	}
	plane := picking.PlaneFromNormal(up, t.pos.Add(up.Scale(planeH)))

	corners := [4]math.Vec3{
		t.GetPoint(rect.Left, rect.Top, startH),
		t.GetPoint(rect.Right-1, rect.Top, startH),
		t.GetPoint(rect.Left, rect.Bottom-1, startH),
		t.GetPoint(rect.Right-1, rect.Bottom-1, startH),
	}
	out := rect
	f := float32(t.size - 1)
	for _, c := range corners {
		ray := picking.NewRay(c.Add(t.pos), vec)
		d, hit := ray.IntersectPlane(plane)
		if !hit {
			continue
		}
		ts := t.GetTerrainPosition(ray.Point(d))
		// round down the start and up the end, right and bottom are exclusive
		out = out.Merge(NewRect(
			int(ts.X*f),
			int(ts.Y*f),
			int(ts.X*f+0.5)+1,
			int(ts.Y*f+0.5)+1,
		))
	}
	return out
}
