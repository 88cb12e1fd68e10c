package formats

import (
	"fmt"
	"io"
)

// Chunk tags of a terrain stream.
var (
	ChunkTerrain       = ChunkID("TERR")
	ChunkLayerDecl     = ChunkID("TDCL")
	ChunkLayerSampler  = ChunkID("TSAM")
	ChunkLayerElement  = ChunkID("TSEL")
	ChunkLayerInstance = ChunkID("TLIN")
	ChunkDerivedData   = ChunkID("TDDA")
)

const (
	terrainChunkVersion  = 1
	declChunkVersion     = 1
	samplerChunkVersion  = 1
	elementChunkVersion  = 1
	instanceChunkVersion = 1
	derivedChunkVersion  = 1
)

// Derived map names stored in TDDA chunks.
const (
	DerivedNormalMap    = "normalmap"
	DerivedColourMap    = "colormap"
	DerivedLightMap     = "lightmap"
	DerivedCompositeMap = "compositemap"
)

// SamplerData is one declared layer texture.
type SamplerData struct {
	Alias  string
	Format uint8
}

// ElementData maps a semantic onto sampler channels.
type ElementData struct {
	Source   uint8
	Semantic uint8
	Start    uint8
	Count    uint8
}

// LayerData is one textured layer.
type LayerData struct {
	WorldSize    float32
	TextureNames []string
}

// DerivedMap is a stored square image, bpp bytes per pixel.
type DerivedMap struct {
	Size uint16
	Data []byte
}

// TerrainData is the content of a terrain file.
type TerrainData struct {
	Alignment    uint8
	Size         uint16
	WorldSize    float32
	MaxBatchSize uint16
	MinBatchSize uint16
	Position     [3]float32

	// Heights are row-major, south row first.
	Heights []float32

	Samplers []SamplerData
	Elements []ElementData
	Layers   []LayerData

	BlendMapSize uint16
	// BlendTextures hold four layers each as RGBA.
	BlendTextures [][]byte

	// Derived maps by name; absent maps are nil.
	Derived map[string]*DerivedMap

	Deltas []float32
	// NodeDeltas are the max height deltas of every quadtree LOD level,
	// in depth-first order.
	NodeDeltas []float32
}

// BlendTextureCount returns how many packed RGBA textures n layers use.
func BlendTextureCount(numLayers int) int {
	if numLayers <= 1 {
		return 0
	}
	return (numLayers-2)/4 + 1
}

func derivedBytesPerPixel(name string) int {
	switch name {
	case DerivedNormalMap, DerivedColourMap:
		return 3
	case DerivedLightMap:
		return 1
	case DerivedCompositeMap:
		return 4
	}
	return 0
}

// derivedOrder is the order derived maps are written in.
var derivedOrder = []string{DerivedNormalMap, DerivedColourMap, DerivedLightMap, DerivedCompositeMap}

// WriteTerrain encodes d into w.
func WriteTerrain(w io.Writer, d *TerrainData, opts WriteOptions) error {
	n := int(d.Size) * int(d.Size)
	if len(d.Heights) != n {
		return fmt.Errorf("%w: %d heights for size %d", ErrTruncated, len(d.Heights), d.Size)
	}
	if len(d.BlendTextures) != BlendTextureCount(len(d.Layers)) {
		return fmt.Errorf("%w: %d blend textures for %d layers", ErrChunkMismatch, len(d.BlendTextures), len(d.Layers))
	}

	cw := &ChunkWriter{}
	cw.Begin(ChunkTerrain, terrainChunkVersion)
	cw.U8(d.Alignment)
	cw.U16(d.Size)
	cw.F32(d.WorldSize)
	cw.U16(d.MaxBatchSize)
	cw.U16(d.MinBatchSize)
	for _, v := range d.Position {
		cw.F32(v)
	}
	cw.F32s(d.Heights)

	if err := writeLayerDeclaration(cw, d); err != nil {
		return err
	}
	if err := writeLayers(cw, d); err != nil {
		return err
	}

	cw.U16(d.BlendMapSize)
	texBytes := int(d.BlendMapSize) * int(d.BlendMapSize) * 4
	for i, tex := range d.BlendTextures {
		if len(tex) != texBytes {
			return fmt.Errorf("%w: blend texture %d has %d bytes, want %d", ErrTruncated, i, len(tex), texBytes)
		}
		cw.Raw(tex)
	}

	for _, name := range derivedOrder {
		m := d.Derived[name]
		if m == nil {
			continue
		}
		want := int(m.Size) * int(m.Size) * derivedBytesPerPixel(name)
		if len(m.Data) != want {
			return fmt.Errorf("%w: %s has %d bytes, want %d", ErrTruncated, name, len(m.Data), want)
		}
		cw.Begin(ChunkDerivedData, derivedChunkVersion)
		cw.Str(name)
		cw.U16(m.Size)
		cw.Raw(m.Data)
		if err := cw.End(ChunkDerivedData); err != nil {
			return err
		}
	}

	if len(d.Deltas) != n {
		return fmt.Errorf("%w: %d deltas for size %d", ErrTruncated, len(d.Deltas), d.Size)
	}
	cw.F32s(d.Deltas)
	cw.F32s(d.NodeDeltas)
	if err := cw.End(ChunkTerrain); err != nil {
		return err
	}

	payload, err := cw.Bytes()
	if err != nil {
		return err
	}
	return wrap(w, payload, opts)
}

func writeLayerDeclaration(cw *ChunkWriter, d *TerrainData) error {
	cw.Begin(ChunkLayerDecl, declChunkVersion)
	cw.U8(uint8(len(d.Samplers)))
	for _, s := range d.Samplers {
		cw.Begin(ChunkLayerSampler, samplerChunkVersion)
		cw.Str(s.Alias)
		cw.U8(s.Format)
		if err := cw.End(ChunkLayerSampler); err != nil {
			return err
		}
	}
	cw.U8(uint8(len(d.Elements)))
	for _, e := range d.Elements {
		cw.Begin(ChunkLayerElement, elementChunkVersion)
		cw.U8(e.Source)
		cw.U8(e.Semantic)
		cw.U8(e.Start)
		cw.U8(e.Count)
		if err := cw.End(ChunkLayerElement); err != nil {
			return err
		}
	}
	return cw.End(ChunkLayerDecl)
}

func writeLayers(cw *ChunkWriter, d *TerrainData) error {
	cw.U8(uint8(len(d.Layers)))
	for i, l := range d.Layers {
		if len(l.TextureNames) != len(d.Samplers) {
			return fmt.Errorf("%w: layer %d has %d textures for %d samplers",
				ErrChunkMismatch, i, len(l.TextureNames), len(d.Samplers))
		}
		cw.Begin(ChunkLayerInstance, instanceChunkVersion)
		cw.F32(l.WorldSize)
		for _, name := range l.TextureNames {
			cw.Str(name)
		}
		if err := cw.End(ChunkLayerInstance); err != nil {
			return err
		}
	}
	return nil
}

// ParseTerrain decodes a terrain file.
func ParseTerrain(data []byte) (*TerrainData, error) {
	payload, err := unwrap(data)
	if err != nil {
		return nil, err
	}

	r := NewChunkReader(payload)
	r.Begin(ChunkTerrain, terrainChunkVersion)

	d := &TerrainData{Derived: make(map[string]*DerivedMap)}
	d.Alignment = r.U8("alignment")
	d.Size = r.U16("size")
	d.WorldSize = r.F32("world size")
	d.MaxBatchSize = r.U16("max batch size")
	d.MinBatchSize = r.U16("min batch size")
	for i := range d.Position {
		d.Position[i] = r.F32("position")
	}
	if r.Err() != nil {
		return nil, r.Err()
	}
	if d.Size < 2 {
		return nil, fmt.Errorf("%w: size %d", ErrChunkMismatch, d.Size)
	}
	n := int(d.Size) * int(d.Size)
	d.Heights = r.F32s(n, "heights")

	readLayerDeclaration(r, d)
	readLayers(r, d)

	d.BlendMapSize = r.U16("blend map size")
	texBytes := int(d.BlendMapSize) * int(d.BlendMapSize) * 4
	for i := 0; i < BlendTextureCount(len(d.Layers)); i++ {
		d.BlendTextures = append(d.BlendTextures, r.Raw(texBytes, "blend texture"))
	}

	for {
		id, ok := r.PeekID()
		if !ok || id != ChunkDerivedData {
			break
		}
		r.Begin(ChunkDerivedData, derivedChunkVersion)
		name := r.Str("derived data name")
		size := r.U16("derived data size")
		bpp := derivedBytesPerPixel(name)
		if bpp == 0 {
			// unknown map from a newer writer
			r.End()
			continue
		}
		d.Derived[name] = &DerivedMap{Size: size, Data: r.Raw(int(size)*int(size)*bpp, name)}
		r.End()
	}

	d.Deltas = r.F32s(n, "deltas")
	d.NodeDeltas = r.F32s(r.Remaining()/4, "node deltas")
	r.End()

	if r.Err() != nil {
		return nil, r.Err()
	}
	return d, nil
}

func readLayerDeclaration(r *ChunkReader, d *TerrainData) {
	r.Begin(ChunkLayerDecl, declChunkVersion)
	ns := int(r.U8("sampler count"))
	for i := 0; i < ns && r.Err() == nil; i++ {
		r.Begin(ChunkLayerSampler, samplerChunkVersion)
		d.Samplers = append(d.Samplers, SamplerData{
			Alias:  r.Str("sampler alias"),
			Format: r.U8("sampler format"),
		})
		r.End()
	}
	ne := int(r.U8("element count"))
	for i := 0; i < ne && r.Err() == nil; i++ {
		r.Begin(ChunkLayerElement, elementChunkVersion)
		d.Elements = append(d.Elements, ElementData{
			Source:   r.U8("element source"),
			Semantic: r.U8("element semantic"),
			Start:    r.U8("element start"),
			Count:    r.U8("element count"),
		})
		r.End()
	}
	r.End()
}

func readLayers(r *ChunkReader, d *TerrainData) {
	nl := int(r.U8("layer count"))
	for i := 0; i < nl && r.Err() == nil; i++ {
		r.Begin(ChunkLayerInstance, instanceChunkVersion)
		l := LayerData{WorldSize: r.F32("layer world size")}
		for range d.Samplers {
			l.TextureNames = append(l.TextureNames, r.Str("layer texture"))
		}
		d.Layers = append(d.Layers, l)
		r.End()
	}
}
