package terrain

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Layer errors.
var (
	ErrTooManyLayers = errors.New("too many terrain layers")
	ErrLayerIndex    = errors.New("layer index out of range")
)

// Sampler element semantics.
const (
	SemanticAlbedo uint8 = iota
	SemanticNormal
	SemanticHeight
	SemanticSpecular
)

// LayerSampler is one texture every layer provides.
type LayerSampler struct {
	Alias  string
	Format PixelFormat
}

// LayerSamplerElement maps a semantic onto channels of a sampler.
type LayerSamplerElement struct {
	Source       uint8
	Semantic     uint8
	ElementStart uint8
	ElementCount uint8
}

// LayerDeclaration lists the textures a layer is made of.
type LayerDeclaration struct {
	Samplers []LayerSampler
	Elements []LayerSamplerElement
}

// Equal reports whether both declarations describe the same layout.
func (d LayerDeclaration) Equal(o LayerDeclaration) bool {
	if len(d.Samplers) != len(o.Samplers) || len(d.Elements) != len(o.Elements) {
		return false
	}
	for i := range d.Samplers {
		if d.Samplers[i] != o.Samplers[i] {
			return false
		}
	}
	for i := range d.Elements {
		if d.Elements[i] != o.Elements[i] {
			return false
		}
	}
	return true
}

// LayerInstance is one textured layer: a texture per declared sampler,
// repeated every WorldSize units.
type LayerInstance struct {
	WorldSize    float32
	TextureNames []string
}

// LayerCount returns the number of layers.
func (t *Terrain) LayerCount() int { return len(t.layers) }

// LayerDeclaration returns the sampler layout of the layers.
func (t *Terrain) LayerDeclaration() LayerDeclaration { return t.layerDecl }

// MaxLayers returns how many layers the material generator supports.
func (t *Terrain) MaxLayers() int { return t.matGen.MaxLayers(t) }

// LayerWorldSize returns the world size one texture repeat covers.
func (t *Terrain) LayerWorldSize(i int) float32 {
	if i < 0 || i >= len(t.layers) {
		return t.opts.DefaultLayerWorldSize
	}
	return t.layers[i].WorldSize
}

// SetLayerWorldSize changes the repeat size of layer i.
func (t *Terrain) SetLayerWorldSize(i int, ws float32) {
	if i < 0 || i >= len(t.layers) || ws <= 0 {
		return
	}
	t.layers[i].WorldSize = ws
	t.deriveUVMultipliers()
	t.materialParamsDirty = true
	t.modified = true
}

// LayerUVMultiplier returns how many times layer i repeats across the terrain.
func (t *Terrain) LayerUVMultiplier(i int) float32 {
	if i < 0 || i >= len(t.layerUVMult) {
		return 1
	}
	return t.layerUVMult[i]
}

// LayerTextureName returns the texture of layer l for sampler s.
func (t *Terrain) LayerTextureName(l, s int) string {
	if l < 0 || l >= len(t.layers) || s < 0 || s >= len(t.layers[l].TextureNames) {
		return ""
	}
	return t.layers[l].TextureNames[s]
}

// SetLayerTextureName changes the texture of layer l for sampler s.
func (t *Terrain) SetLayerTextureName(l, s int, name string) {
	if l < 0 || l >= len(t.layers) || s < 0 || s >= len(t.layers[l].TextureNames) {
		return
	}
	if t.layers[l].TextureNames[s] == name {
		return
	}
	t.layers[l].TextureNames[s] = name
	t.materialDirty = true
	t.materialParamsDirty = true
	t.modified = true
}

// AddLayer inserts a layer at idx, or appends when idx is past the end. A
// zero world size uses the default. Missing texture names are left empty.
func (t *Terrain) AddLayer(idx int, worldSize float32, textures []string) error {
	if len(t.layers) >= t.MaxLayers() {
		return fmt.Errorf("%w: max %d", ErrTooManyLayers, t.MaxLayers())
	}
	if worldSize <= 0 {
		worldSize = t.opts.DefaultLayerWorldSize
	}
	inst := LayerInstance{WorldSize: worldSize, TextureNames: make([]string, len(t.layerDecl.Samplers))}
	copy(inst.TextureNames, textures)

	idx = clampInt(idx, 0, len(t.layers))
	t.layers = append(t.layers, LayerInstance{})
	copy(t.layers[idx+1:], t.layers[idx:])
	t.layers[idx] = inst

	if t.prepared && idx > 0 {
		// a new blend layer starts empty, later ones shift up a channel
		bi := idx - 1
		t.blendMaps = append(t.blendMaps, nil)
		copy(t.blendMaps[bi+1:], t.blendMaps[bi:])
		t.blendMaps[bi] = newLayerBlendMap(t, idx, t.blendMapSize)
	} else if t.prepared && len(t.layers) > 1 {
		// the old base layer now needs a blend map of its own
		t.blendMaps = append([]*LayerBlendMap{newLayerBlendMap(t, 1, t.blendMapSize)}, t.blendMaps...)
	}
	t.layersChanged()
	t.log.Debug("layer added", zap.Int("index", idx), zap.Int("count", len(t.layers)))
	return nil
}

// RemoveLayer deletes layer idx and its blend map.
func (t *Terrain) RemoveLayer(idx int) error {
	if idx < 0 || idx >= len(t.layers) {
		return fmt.Errorf("%w: %d of %d", ErrLayerIndex, idx, len(t.layers))
	}
	t.layers = append(t.layers[:idx], t.layers[idx+1:]...)
	if t.prepared && len(t.blendMaps) > 0 {
		bi := max(idx-1, 0)
		t.blendMaps = append(t.blendMaps[:bi], t.blendMaps[bi+1:]...)
	}
	t.layersChanged()
	t.log.Debug("layer removed", zap.Int("index", idx), zap.Int("count", len(t.layers)))
	return nil
}

// ReplaceLayer swaps the textures and world size of layer idx. Unless
// keepBlend is set the layer's blend map is cleared.
func (t *Terrain) ReplaceLayer(idx int, keepBlend bool, worldSize float32, textures []string) error {
	if idx < 0 || idx >= len(t.layers) {
		return fmt.Errorf("%w: %d of %d", ErrLayerIndex, idx, len(t.layers))
	}
	if textures != nil {
		names := make([]string, len(t.layerDecl.Samplers))
		copy(names, textures)
		t.layers[idx].TextureNames = names
	}
	if worldSize > 0 {
		t.layers[idx].WorldSize = worldSize
	}
	if !keepBlend && idx > 0 && t.prepared {
		t.blendMaps[idx-1] = newLayerBlendMap(t, idx, t.blendMapSize)
	}
	t.layersChanged()
	return nil
}

// layersChanged renumbers blend maps after the layer list changed and
// repacks the blend textures.
func (t *Terrain) layersChanged() {
	t.deriveUVMultipliers()
	t.materialDirty = true
	t.materialParamsDirty = true
	t.modified = true
	if !t.prepared {
		return
	}
	t.createBlendTextures()
}

func (t *Terrain) deriveUVMultipliers() {
	t.layerUVMult = make([]float32, len(t.layers))
	for i, l := range t.layers {
		ws := l.WorldSize
		if ws <= 0 {
			ws = t.opts.DefaultLayerWorldSize
		}
		t.layerUVMult[i] = t.worldSize / ws
	}
}

// BlendTextureCount returns how many RGBA textures hold n layers' blend
// weights. The base layer has none.
func BlendTextureCount(numLayers int) int {
	if numLayers <= 1 {
		return 0
	}
	return (numLayers-2)/4 + 1
}

// BlendTextureIndex returns the packed texture and channel of layer l >= 1.
func BlendTextureIndex(l int) (texture, channel int) {
	return (l - 1) / 4, (l - 1) % 4
}

// BlendTextureCount returns the number of packed blend textures.
func (t *Terrain) BlendTextureCount() int { return len(t.blendTextures) }

// BlendTexture returns packed blend texture i.
func (t *Terrain) BlendTexture(i int) *Image {
	if i < 0 || i >= len(t.blendTextures) {
		return nil
	}
	return t.blendTextures[i]
}

// LayerBlendMapSize returns the edge size of the blend textures.
func (t *Terrain) LayerBlendMapSize() int { return t.blendMapSize }

// LayerBlendMap returns the editable weights of layer l >= 1.
func (t *Terrain) LayerBlendMap(l int) *LayerBlendMap {
	if l < 1 || l-1 >= len(t.blendMaps) {
		return nil
	}
	return t.blendMaps[l-1]
}

// createBlendTextures makes sure every layer above the base has a blend map,
// then repacks all maps into fresh textures.
func (t *Terrain) createBlendTextures() {
	want := max(len(t.layers)-1, 0)
	for len(t.blendMaps) < want {
		t.blendMaps = append(t.blendMaps, newLayerBlendMap(t, len(t.blendMaps)+1, t.blendMapSize))
	}
	t.blendMaps = t.blendMaps[:want]

	t.blendTextures = make([]*Image, BlendTextureCount(len(t.layers)))
	for i := range t.blendTextures {
		t.blendTextures[i] = NewImage(t.blendMapSize, t.blendMapSize, FormatRGBA8)
	}
	for i, m := range t.blendMaps {
		m.setLayer(i + 1)
		m.pack()
	}
	t.DirtyCompositeMapRect(NewRect(0, 0, t.size, t.size))
}
