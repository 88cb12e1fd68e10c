package terraingroup

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/midgard-terrain/internal/engine/terrain"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// groupDefinition is the yaml form of a group.
type groupDefinition struct {
	Alignment string           `yaml:"alignment"`
	Size      int              `yaml:"size"`
	WorldSize float32          `yaml:"world_size"`
	Origin    [3]float32       `yaml:"origin,flow"`
	Prefix    string           `yaml:"prefix"`
	Extension string           `yaml:"extension"`
	Slots     []slotDefinition `yaml:"slots"`
}

type slotDefinition struct {
	X    int    `yaml:"x"`
	Y    int    `yaml:"y"`
	File string `yaml:"file"`
}

// SaveGroupDefinition writes the group layout and its file slots as yaml.
// Slots still defined by import data are left out; save them first.
func (g *Group) SaveGroupDefinition(w io.Writer) error {
	def := groupDefinition{
		Alignment: g.alignment.String(),
		Size:      g.size,
		WorldSize: g.worldSize,
		Origin:    g.origin.Array(),
		Prefix:    g.prefix,
		Extension: g.ext,
	}
	for _, s := range g.Slots() {
		if s.Def.Filename == "" {
			g.log.Warn("slot without a file left out of the definition",
				zap.Int("x", s.X), zap.Int("y", s.Y))
			continue
		}
		def.Slots = append(def.Slots, slotDefinition{X: s.X, Y: s.Y, File: s.Def.Filename})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&def); err != nil {
		return fmt.Errorf("encode group definition: %w", err)
	}
	return enc.Close()
}

// LoadGroupDefinition replaces the group layout and slots with the ones
// read from r. Existing terrains are removed; nothing is loaded.
func (g *Group) LoadGroupDefinition(r io.Reader) error {
	var def groupDefinition
	if err := yaml.NewDecoder(r).Decode(&def); err != nil {
		return fmt.Errorf("decode group definition: %w", err)
	}
	align, ok := terrain.ParseAlignment(def.Alignment)
	if !ok {
		return fmt.Errorf("%w: alignment %q", ErrInvalidDefinition, def.Alignment)
	}
	if def.Size < 2 || def.WorldSize <= 0 {
		return fmt.Errorf("%w: size %d world size %g", ErrInvalidDefinition, def.Size, def.WorldSize)
	}
	if def.Prefix == "" || def.Extension == "" {
		return fmt.Errorf("%w: empty filename convention", ErrInvalidDefinition)
	}
	for _, s := range def.Slots {
		if s.File == "" {
			return fmt.Errorf("%w: slot %d,%d has no file", ErrInvalidDefinition, s.X, s.Y)
		}
	}

	g.RemoveAllTerrains()
	g.alignment = align
	g.size = def.Size
	g.worldSize = def.WorldSize
	g.origin = math.Vec3{X: def.Origin[0], Y: def.Origin[1], Z: def.Origin[2]}
	g.prefix = def.Prefix
	g.ext = def.Extension
	g.defaultImport.Alignment = align
	g.defaultImport.Size = def.Size
	g.defaultImport.WorldSize = def.WorldSize
	g.fitBatchSizes()
	for _, s := range def.Slots {
		g.DefineTerrainFile(s.X, s.Y, s.File)
	}
	g.log.Info("group definition loaded",
		zap.Stringer("alignment", align),
		zap.Int("size", def.Size),
		zap.Int("slots", len(def.Slots)))
	return nil
}
