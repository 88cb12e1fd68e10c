package terrain

import (
	"fmt"

	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// LayerBlendMap holds the editable weights of one layer. Values are in
// [0,1], row-major with the top row north. Edits are buffered until Update
// packs them into the shared blend texture.
type LayerBlendMap struct {
	t       *Terrain
	layer   int
	texture int
	channel int
	size    int
	data    []float32

	dirty    bool
	dirtyBox Rect
}

func newLayerBlendMap(t *Terrain, layer, size int) *LayerBlendMap {
	m := &LayerBlendMap{t: t, size: size, data: make([]float32, size*size)}
	m.setLayer(layer)
	return m
}

func (m *LayerBlendMap) setLayer(layer int) {
	m.layer = layer
	m.texture, m.channel = BlendTextureIndex(layer)
}

// Layer returns the layer index the map blends.
func (m *LayerBlendMap) Layer() int { return m.layer }

// Size returns the edge length in texels.
func (m *LayerBlendMap) Size() int { return m.size }

// Data returns the raw weights.
func (m *LayerBlendMap) Data() []float32 { return m.data }

// BlendValue returns the weight at image texel (x, y).
func (m *LayerBlendMap) BlendValue(x, y int) float32 {
	x = clampInt(x, 0, m.size-1)
	y = clampInt(y, 0, m.size-1)
	return m.data[y*m.size+x]
}

// SetBlendValue changes the weight at image texel (x, y).
func (m *LayerBlendMap) SetBlendValue(x, y int, v float32) {
	if x < 0 || y < 0 || x >= m.size || y >= m.size {
		return
	}
	m.data[y*m.size+x] = math.Clamp(v, 0, 1)
	m.DirtyRect(NewRect(x, y, x+1, y+1))
}

// ConvertWorldToUVSpace returns the blend map UV under a world position.
func (m *LayerBlendMap) ConvertWorldToUVSpace(p math.Vec3) (u, v float32) {
	ts := m.t.GetTerrainPosition(p)
	return ts.X, 1 - ts.Y
}

// ConvertUVToWorldSpace returns the world position at height zero for a UV.
func (m *LayerBlendMap) ConvertUVToWorldSpace(u, v float32) math.Vec3 {
	return m.t.GetPosition(math.Vec3{X: u, Y: 1 - v})
}

// ConvertUVToImageSpace returns the texel holding UV (u, v).
func (m *LayerBlendMap) ConvertUVToImageSpace(u, v float32) (x, y int) {
	f := float32(m.size - 1)
	return int(u * f), int(v * f)
}

// ConvertImageToUVSpace returns the UV of texel (x, y).
func (m *LayerBlendMap) ConvertImageToUVSpace(x, y int) (u, v float32) {
	f := float32(m.size - 1)
	return float32(x) / f, float32(y) / f
}

// ConvertImageToTerrainSpace returns the terrain-space position of texel (x, y).
func (m *LayerBlendMap) ConvertImageToTerrainSpace(x, y int) (tx, ty float32) {
	u, v := m.ConvertImageToUVSpace(x, y)
	return u, 1 - v
}

// ConvertTerrainToImageSpace returns the texel at terrain-space (tx, ty).
func (m *LayerBlendMap) ConvertTerrainToImageSpace(tx, ty float32) (x, y int) {
	return m.ConvertUVToImageSpace(tx, 1-ty)
}

// Dirty marks the whole map for the next Update.
func (m *LayerBlendMap) Dirty() {
	m.DirtyRect(NewRect(0, 0, m.size, m.size))
}

// DirtyRect marks an image-space region for the next Update.
func (m *LayerBlendMap) DirtyRect(r Rect) {
	m.dirtyBox = m.dirtyBox.Merge(r)
	m.dirty = true
}

// IsDirty reports whether edits await Update.
func (m *LayerBlendMap) IsDirty() bool { return m.dirty }

// LoadImage replaces the weights with the first channel of img, resampled
// to the map size.
func (m *LayerBlendMap) LoadImage(img *Image) error {
	if img == nil || img.Width < 1 || img.Height < 1 {
		return fmt.Errorf("%w: empty blend image", ErrImageBounds)
	}
	for y := 0; y < m.size; y++ {
		sy := y * (img.Height - 1) / max(m.size-1, 1)
		for x := 0; x < m.size; x++ {
			sx := x * (img.Width - 1) / max(m.size-1, 1)
			m.data[y*m.size+x] = img.Value(sx, sy)
		}
	}
	m.Dirty()
	return nil
}

// Update packs dirty weights into the blend texture and schedules a
// composite map rebake for the affected terrain region.
func (m *LayerBlendMap) Update() {
	if !m.dirty || m.texture >= len(m.t.blendTextures) {
		return
	}
	box := m.dirtyBox.Clamp(m.size)
	m.packRect(box)

	// image rows run north to south, terrain rows the other way
	s := float32(m.t.size) / float32(m.size)
	m.t.DirtyCompositeMapRect(NewRect(
		int(float32(box.Left)*s),
		int(float32(m.size-box.Bottom)*s),
		int(float32(box.Right)*s+1),
		int(float32(m.size-box.Top)*s+1),
	).Clamp(m.t.size))
	m.t.UpdateCompositeMapWithDelay(0)

	m.dirty = false
	m.dirtyBox = Rect{}
}

func (m *LayerBlendMap) pack() {
	m.packRect(NewRect(0, 0, m.size, m.size))
}

func (m *LayerBlendMap) packRect(r Rect) {
	if m.texture >= len(m.t.blendTextures) {
		return
	}
	tex := m.t.blendTextures[m.texture]
	for y := r.Top; y < r.Bottom; y++ {
		for x := r.Left; x < r.Right; x++ {
			tex.Data[tex.offset(x, y)+m.channel] = uint8(m.data[y*m.size+x]*255 + 0.5)
		}
	}
}

// unpack reads the weights back from the packed blend texture.
func (m *LayerBlendMap) unpack() {
	if m.texture >= len(m.t.blendTextures) {
		return
	}
	tex := m.t.blendTextures[m.texture]
	for y := 0; y < m.size; y++ {
		for x := 0; x < m.size; x++ {
			m.data[y*m.size+x] = float32(tex.Data[tex.offset(x, y)+m.channel]) / 255
		}
	}
}
