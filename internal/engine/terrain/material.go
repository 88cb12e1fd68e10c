package terrain

import (
	"fmt"
	"hash/fnv"
	"sync/atomic"

	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// Material describes how a renderer should shade a terrain.
type Material struct {
	Name string
	// Composite is set for the distant material using the baked composite map.
	Composite     bool
	Layers        []LayerInstance
	UVMultipliers []float32
	BlendTextures int

	NormalMap    bool
	LightMap     bool
	CompositeMap bool
	ColourMap    bool

	Ambient   [3]float32
	Diffuse   [3]float32
	LightDir  math.Vec3
	SkirtSize float32
}

// MaterialGenerator builds materials and the composite map for terrains.
type MaterialGenerator interface {
	LayerDeclaration() LayerDeclaration
	MaxLayers(t *Terrain) int
	Generate(t *Terrain) *Material
	GenerateForCompositeMap(t *Terrain) *Material
	UpdateParams(t *Terrain, m *Material)
	UpdateCompositeMap(t *Terrain, rect Rect)
	// ChangeCount increases whenever generated materials go stale.
	ChangeCount() uint64
}

// DefaultLayerDeclaration is two RGBA textures per layer: albedo with
// specular in alpha, and a normal map with height in alpha.
func DefaultLayerDeclaration() LayerDeclaration {
	return LayerDeclaration{
		Samplers: []LayerSampler{
			{Alias: "albedo_specular", Format: FormatRGBA8},
			{Alias: "normal_height", Format: FormatRGBA8},
		},
		Elements: []LayerSamplerElement{
			{Source: 0, Semantic: SemanticAlbedo, ElementStart: 0, ElementCount: 3},
			{Source: 0, Semantic: SemanticSpecular, ElementStart: 3, ElementCount: 1},
			{Source: 1, Semantic: SemanticNormal, ElementStart: 0, ElementCount: 3},
			{Source: 1, Semantic: SemanticHeight, ElementStart: 3, ElementCount: 1},
		},
	}
}

// DefaultMaterialGenerator shades with the default layer declaration and
// bakes the composite map on the CPU. Layer colours are derived from the
// albedo texture name, since no texture data is loaded.
type DefaultMaterialGenerator struct {
	maxLayers int
	changes   atomic.Uint64
}

// NewDefaultMaterialGenerator returns a generator allowing five layers.
func NewDefaultMaterialGenerator() *DefaultMaterialGenerator {
	return &DefaultMaterialGenerator{maxLayers: 5}
}

// SetMaxLayers changes the layer limit and invalidates generated materials.
func (g *DefaultMaterialGenerator) SetMaxLayers(n int) {
	if n < 1 || n == g.maxLayers {
		return
	}
	g.maxLayers = n
	g.changes.Add(1)
}

func (g *DefaultMaterialGenerator) LayerDeclaration() LayerDeclaration {
	return DefaultLayerDeclaration()
}

func (g *DefaultMaterialGenerator) MaxLayers(*Terrain) int { return g.maxLayers }

func (g *DefaultMaterialGenerator) ChangeCount() uint64 { return g.changes.Load() }

func (g *DefaultMaterialGenerator) Generate(t *Terrain) *Material {
	m := &Material{
		Name:          fmt.Sprintf("terrain/%p", t),
		Layers:        append([]LayerInstance(nil), t.layers...),
		BlendTextures: len(t.blendTextures),
		NormalMap:     t.normalMap != nil,
		LightMap:      t.lightMap != nil,
		ColourMap:     t.colourMap != nil,
	}
	g.UpdateParams(t, m)
	return m
}

func (g *DefaultMaterialGenerator) GenerateForCompositeMap(t *Terrain) *Material {
	m := g.Generate(t)
	m.Name += "/comp"
	m.Composite = true
	m.CompositeMap = t.compositeMap != nil
	return m
}

func (g *DefaultMaterialGenerator) UpdateParams(t *Terrain, m *Material) {
	m.UVMultipliers = append(m.UVMultipliers[:0], t.layerUVMult...)
	m.Ambient = t.opts.CompositeMapAmbient
	m.Diffuse = t.opts.CompositeMapDiffuse
	m.LightDir = t.opts.LightMapDirection
	m.SkirtSize = t.opts.SkirtSize
}

// UpdateCompositeMap bakes layer colours, blend weights, normals and
// shadows for a region in height-sample coordinates.
func (g *DefaultMaterialGenerator) UpdateCompositeMap(t *Terrain, rect Rect) {
	img := t.compositeMap
	if img == nil || len(t.layers) == 0 {
		return
	}
	cs := img.Width
	s := float32(cs) / float32(t.size)
	// terrain rows run south to north, image rows the other way
	box := NewRect(
		int(float32(rect.Left)*s),
		int(float32(t.size-rect.Bottom)*s),
		int(float32(rect.Right)*s+0.5),
		int(float32(t.size-rect.Top)*s+0.5),
	).Clamp(cs)

	colours := make([][3]float32, len(t.layers))
	for i := range t.layers {
		colours[i] = layerColour(t.LayerTextureName(i, 0))
	}
	toLight := t.opts.LightMapDirection.Neg()
	f := float32(cs - 1)

	for y := box.Top; y < box.Bottom; y++ {
		for x := box.Left; x < box.Right; x++ {
			u, v := float32(x)/f, float32(y)/f

			c := colours[0]
			for l := 1; l < len(t.layers); l++ {
				bm := t.LayerBlendMap(l)
				if bm == nil {
					continue
				}
				w := bm.BlendValue(bm.ConvertUVToImageSpace(u, v))
				for k := range c {
					c[k] += (colours[l][k] - c[k]) * w
				}
			}

			px, py := int(u*float32(t.size-1)+0.5), int((1-v)*float32(t.size-1)+0.5)
			ndotl := float32(1)
			if t.normalMap != nil {
				ndotl = max(t.NormalAtPoint(px, py).Dot(toLight), 0)
			}
			shadow := float32(1)
			if t.lightMap != nil {
				lf := float32(t.lightMapSize - 1)
				shadow = t.lightMap.Value(int(u*lf), int(v*lf))
			}

			o := img.offset(x, y)
			for k := range c {
				lit := t.opts.CompositeMapAmbient[k] + t.opts.CompositeMapDiffuse[k]*ndotl*shadow
				img.Data[o+k] = uint8(math.Clamp(c[k]*lit, 0, 1) * 255)
			}
			img.Data[o+3] = 255
		}
	}
}

// layerColour picks a stable colour for a texture name.
func layerColour(name string) [3]float32 {
	if name == "" {
		return [3]float32{0.5, 0.5, 0.5}
	}
	h := fnv.New32a()
	h.Write([]byte(name))
	sum := h.Sum32()
	return [3]float32{
		float32(sum&0xff) / 255,
		float32(sum>>8&0xff) / 255,
		float32(sum>>16&0xff) / 255,
	}
}

// Material returns the close-range material, regenerating it when layers
// or the generator changed.
func (t *Terrain) Material() *Material {
	if t.material == nil || t.materialDirty || t.materialGenChange != t.matGen.ChangeCount() {
		t.material = t.matGen.Generate(t)
		t.compositeMaterial = nil
		t.materialGenChange = t.matGen.ChangeCount()
		t.materialDirty = false
		t.materialParamsDirty = false
	}
	if t.materialParamsDirty {
		t.matGen.UpdateParams(t, t.material)
		if t.compositeMaterial != nil {
			t.matGen.UpdateParams(t, t.compositeMaterial)
		}
		t.materialParamsDirty = false
	}
	return t.material
}

// CompositeMapMaterial returns the distant material.
func (t *Terrain) CompositeMapMaterial() *Material {
	t.Material()
	if t.compositeMaterial == nil {
		t.compositeMaterial = t.matGen.GenerateForCompositeMap(t)
	}
	return t.compositeMaterial
}
