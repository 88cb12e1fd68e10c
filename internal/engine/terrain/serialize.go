package terrain

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/pkg/formats"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// Save writes the terrain to w. An outstanding derived job is finished
// first. Deltas are recomputed over the whole terrain when heights changed,
// since incremental updates only ever raise them.
func (t *Terrain) Save(w io.Writer, opts formats.WriteOptions) error {
	if !t.prepared {
		return ErrNotPrepared
	}
	if err := t.WaitForDerivedProcesses(context.Background()); err != nil {
		return err
	}
	if t.heightDataModified {
		full := NewRect(0, 0, t.size, t.size)
		t.CalculateHeightDeltas(full)
		t.FinalizeHeightDeltas(full)
	}
	for _, m := range t.blendMaps {
		m.Update()
	}

	if err := formats.WriteTerrain(w, t.exportData(), opts); err != nil {
		return fmt.Errorf("save terrain: %w", err)
	}
	t.modified = false
	t.heightDataModified = false
	t.log.Info("terrain saved",
		zap.Int("size", t.size),
		zap.Int("layers", len(t.layers)),
		zap.Bool("compressed", opts.Compress))
	return nil
}

func (t *Terrain) exportData() *formats.TerrainData {
	d := &formats.TerrainData{
		Alignment:    uint8(t.alignment),
		Size:         uint16(t.size),
		WorldSize:    t.worldSize,
		MaxBatchSize: uint16(t.maxBatch),
		MinBatchSize: uint16(t.minBatch),
		Position:     t.pos.Array(),
		Heights:      t.heightData,
		BlendMapSize: uint16(t.blendMapSize),
		Derived:      make(map[string]*formats.DerivedMap),
		Deltas:       t.deltaData,
	}
	for _, s := range t.layerDecl.Samplers {
		d.Samplers = append(d.Samplers, formats.SamplerData{Alias: s.Alias, Format: uint8(s.Format)})
	}
	for _, e := range t.layerDecl.Elements {
		d.Elements = append(d.Elements, formats.ElementData{
			Source: e.Source, Semantic: e.Semantic, Start: e.ElementStart, Count: e.ElementCount,
		})
	}
	for _, l := range t.layers {
		names := make([]string, len(t.layerDecl.Samplers))
		copy(names, l.TextureNames)
		d.Layers = append(d.Layers, formats.LayerData{WorldSize: l.WorldSize, TextureNames: names})
	}
	for _, tex := range t.blendTextures {
		d.BlendTextures = append(d.BlendTextures, tex.Data)
	}

	maps := []struct {
		name string
		img  *Image
	}{
		{formats.DerivedNormalMap, t.normalMap},
		{formats.DerivedColourMap, t.colourMap},
		{formats.DerivedLightMap, t.lightMap},
		{formats.DerivedCompositeMap, t.compositeMap},
	}
	for _, m := range maps {
		if m.img != nil {
			d.Derived[m.name] = &formats.DerivedMap{Size: uint16(m.img.Width), Data: m.img.Data}
		}
	}

	t.root.Walk(func(n *QuadTreeNode) bool {
		for _, ll := range n.lodLevels {
			d.NodeDeltas = append(d.NodeDeltas, ll.MaxHeightDelta)
		}
		return true
	})
	return d
}

// PrepareStream builds the terrain from a saved file.
func (t *Terrain) PrepareStream(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read terrain: %w", err)
	}
	d, err := formats.ParseTerrain(raw)
	if err != nil {
		return fmt.Errorf("parse terrain: %w", err)
	}
	return t.PrepareData(d)
}

// PrepareData builds the terrain from decoded file data. Stored LOD deltas
// are used as they are, so no delta pass runs. Missing derived maps are
// recomputed on the next Update.
func (t *Terrain) PrepareData(d *formats.TerrainData) error {
	if t.destroyed {
		return ErrDestroyed
	}
	size := int(d.Size)
	if err := validateSizes(size, d.WorldSize, int(d.MinBatchSize), int(d.MaxBatchSize)); err != nil {
		return err
	}
	if len(d.Layers) > t.matGen.MaxLayers(t) {
		return fmt.Errorf("%w: %d > %d", ErrTooManyLayers, len(d.Layers), t.matGen.MaxLayers(t))
	}
	if len(d.Heights) != size*size || len(d.Deltas) != size*size {
		return fmt.Errorf("%w: %d heights, %d deltas for size %d",
			ErrInvalidHeightData, len(d.Heights), len(d.Deltas), size)
	}
	if t.prepared {
		t.Unprepare()
	}

	t.alignment = Alignment(d.Alignment)
	t.size = size
	t.worldSize = d.WorldSize
	t.maxBatch = int(d.MaxBatchSize)
	t.minBatch = int(d.MinBatchSize)
	t.pos = math.Vec3{X: d.Position[0], Y: d.Position[1], Z: d.Position[2]}
	t.heightData = append([]float32(nil), d.Heights...)
	t.deltaData = append([]float32(nil), d.Deltas...)
	t.updateBaseScale()
	t.determineLodLevels()

	t.layerDecl = LayerDeclaration{}
	for _, s := range d.Samplers {
		t.layerDecl.Samplers = append(t.layerDecl.Samplers, LayerSampler{Alias: s.Alias, Format: PixelFormat(s.Format)})
	}
	for _, e := range d.Elements {
		t.layerDecl.Elements = append(t.layerDecl.Elements, LayerSamplerElement{
			Source: e.Source, Semantic: e.Semantic, ElementStart: e.Start, ElementCount: e.Count,
		})
	}
	if len(t.layerDecl.Samplers) == 0 {
		t.layerDecl = t.matGen.LayerDeclaration()
	}
	t.layers = t.layers[:0]
	for _, l := range d.Layers {
		t.layers = append(t.layers, LayerInstance{WorldSize: l.WorldSize, TextureNames: append([]string(nil), l.TextureNames...)})
	}
	t.deriveUVMultipliers()
	t.materialDirty = true

	t.blendMapSize = int(d.BlendMapSize)
	t.blendTextures = make([]*Image, len(d.BlendTextures))
	for i, raw := range d.BlendTextures {
		t.blendTextures[i] = &Image{Width: t.blendMapSize, Height: t.blendMapSize, Format: FormatRGBA8, Data: raw}
	}
	t.blendMaps = nil
	for l := 1; l < len(t.layers); l++ {
		m := newLayerBlendMap(t, l, t.blendMapSize)
		m.unpack()
		t.blendMaps = append(t.blendMaps, m)
	}

	t.lightMapSize = t.opts.LightMapSize
	t.compositeMapSize = t.opts.CompositeMapSize
	full := NewRect(0, 0, t.size, t.size)
	if m := d.Derived[formats.DerivedNormalMap]; m != nil && int(m.Size) == t.size {
		t.normalMap = &Image{Width: t.size, Height: t.size, Format: FormatRGB8, Data: m.Data}
	} else if t.opts.NormalMapRequired {
		t.dirtyDerivedDataRect = full
		t.dirtyDerivedMask |= DerivedNormals
	}
	if m := d.Derived[formats.DerivedColourMap]; m != nil {
		s := int(m.Size)
		t.colourMap = &Image{Width: s, Height: s, Format: FormatRGB8, Data: m.Data}
	}
	if m := d.Derived[formats.DerivedLightMap]; m != nil {
		t.lightMapSize = int(m.Size)
		t.lightMap = &Image{Width: t.lightMapSize, Height: t.lightMapSize, Format: FormatL8, Data: m.Data}
	} else if t.opts.LightMapRequired {
		t.dirtyDerivedDataRect = full
		t.dirtyDerivedMask |= DerivedLightmap
	}
	if m := d.Derived[formats.DerivedCompositeMap]; m != nil {
		t.compositeMapSize = int(m.Size)
		t.compositeMap = &Image{Width: t.compositeMapSize, Height: t.compositeMapSize, Format: FormatRGBA8, Data: m.Data}
	} else if t.opts.CompositeMapRequired {
		t.compositeMapDirtyRect = full
	}
	t.createDerivedMaps()

	t.buildQuadTree()
	if !t.applyNodeDeltas(d.NodeDeltas) {
		t.log.Warn("stored LOD deltas do not match the tree, recomputing",
			zap.Int("stored", len(d.NodeDeltas)))
		t.CalculateHeightDeltas(full)
		t.FinalizeHeightDeltas(full)
	}

	t.modified = false
	t.heightDataModified = false
	t.prepared = true
	t.log.Info("terrain prepared from stream",
		zap.Int("size", t.size),
		zap.Int("layers", len(t.layers)),
		zap.Int("lodLevels", t.numLodLevels))
	return nil
}

// applyNodeDeltas installs stored max height deltas in tree walk order. It
// reports false when the count does not fit the tree.
func (t *Terrain) applyNodeDeltas(deltas []float32) bool {
	want := 0
	t.root.Walk(func(n *QuadTreeNode) bool {
		want += len(n.lodLevels)
		return true
	})
	if len(deltas) != want {
		return false
	}
	i := 0
	t.root.Walk(func(n *QuadTreeNode) bool {
		for _, ll := range n.lodLevels {
			ll.MaxHeightDelta = deltas[i]
			ll.calcMaxHeightDelta = deltas[i]
			ll.lastCFactor = 0
			i++
		}
		if !n.IsLeaf() {
			best := float32(-1)
			for _, c := range n.children {
				if d := c.lodLevels[len(c.lodLevels)-1].MaxHeightDelta; d > best {
					best = d
					n.childWithMaxHeightDelta = c
				}
			}
		}
		return true
	})
	return true
}
