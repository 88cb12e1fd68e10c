// Package config handles terrain tool configuration loading and management.
package config

import (
	"fmt"
	"time"

	"github.com/Faultbox/midgard-terrain/internal/engine/terrain"
	"github.com/Faultbox/midgard-terrain/internal/logger"
	"github.com/Faultbox/midgard-terrain/internal/workqueue"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// Config holds all settings.
type Config struct {
	Terrain TerrainConfig `yaml:"terrain"`
	Import  ImportConfig  `yaml:"import"`
	Group   GroupConfig   `yaml:"group"`
	Workers WorkersConfig `yaml:"workers"`
	Logging LoggingConfig `yaml:"logging"`
	Assets  AssetsConfig  `yaml:"assets"`
}

// TerrainConfig holds the options shared by every terrain.
type TerrainConfig struct {
	MaxPixelError        float32    `yaml:"max_pixel_error"`
	CompositeMapDistance float32    `yaml:"composite_map_distance"`
	SkirtSize            float32    `yaml:"skirt_size"`
	LightMapDirection    [3]float32 `yaml:"light_map_direction,flow"`
	LightMapSize         int        `yaml:"light_map_size"`
	CompositeMapSize     int        `yaml:"composite_map_size"`
	LayerBlendMapSize    int        `yaml:"layer_blend_map_size"`
	MorphEnabled         bool       `yaml:"morph_enabled"`
	UseRayBoxDistance    bool       `yaml:"use_ray_box_distance"`
	NormalMap            bool       `yaml:"normal_map"`
	LightMap             bool       `yaml:"light_map"`
	CompositeMap         bool       `yaml:"composite_map"`

	CompositeMapUpdateDelay time.Duration `yaml:"composite_map_update_delay"`
	MaxDerivedJobRetries    int           `yaml:"max_derived_job_retries"`
}

// ImportConfig holds the defaults for terrains built from raw heights.
type ImportConfig struct {
	Alignment      string  `yaml:"alignment"`
	Size           int     `yaml:"size"`
	WorldSize      float32 `yaml:"world_size"`
	MaxBatchSize   int     `yaml:"max_batch_size"`
	MinBatchSize   int     `yaml:"min_batch_size"`
	InputScale     float32 `yaml:"input_scale"`
	InputBias      float32 `yaml:"input_bias"`
	ConstantHeight float32 `yaml:"constant_height"`
}

// GroupConfig holds terrain group settings.
type GroupConfig struct {
	Prefix    string     `yaml:"prefix"`
	Extension string     `yaml:"extension"`
	Origin    [3]float32 `yaml:"origin,flow"`
	Compress  bool       `yaml:"compress"`
	IndexPath string     `yaml:"index_path"` // sqlite slot index, empty disables it
}

// WorkersConfig holds work queue settings.
type WorkersConfig struct {
	Count   int `yaml:"count"`
	Backlog int `yaml:"backlog"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	LogFile    string `yaml:"log_file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// AssetsConfig holds resource search directories, lowest priority first.
type AssetsConfig struct {
	Dirs []string `yaml:"dirs"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	opts := terrain.DefaultGlobalOptions()
	imp := terrain.DefaultImportData()
	logFile := logger.DefaultFileConfig("")
	return &Config{
		Terrain: TerrainConfig{
			MaxPixelError:           opts.MaxPixelError,
			CompositeMapDistance:    opts.CompositeMapDistance,
			SkirtSize:               opts.SkirtSize,
			LightMapDirection:       opts.LightMapDirection.Array(),
			LightMapSize:            opts.LightMapSize,
			CompositeMapSize:        opts.CompositeMapSize,
			LayerBlendMapSize:       opts.LayerBlendMapSize,
			MorphEnabled:            opts.MorphEnabled,
			UseRayBoxDistance:       opts.UseRayBoxDistance,
			NormalMap:               opts.NormalMapRequired,
			LightMap:                opts.LightMapRequired,
			CompositeMap:            opts.CompositeMapRequired,
			CompositeMapUpdateDelay: opts.CompositeMapUpdateDelay,
			MaxDerivedJobRetries:    opts.MaxDerivedJobRetries,
		},
		Import: ImportConfig{
			Alignment:    imp.Alignment.String(),
			Size:         imp.Size,
			WorldSize:    imp.WorldSize,
			MaxBatchSize: imp.MaxBatchSize,
			MinBatchSize: imp.MinBatchSize,
			InputScale:   imp.InputScale,
		},
		Group: GroupConfig{
			Prefix:    "terrain",
			Extension: "mtrn",
			Compress:  true,
		},
		Workers: WorkersConfig{
			Count:   workqueue.DefaultOptions().Workers,
			Backlog: workqueue.DefaultOptions().Backlog,
		},
		Logging: LoggingConfig{
			Level:      "info",
			LogFile:    logFile.Path,
			MaxSizeMB:  logFile.MaxSizeMB,
			MaxBackups: logFile.MaxBackups,
			MaxAgeDays: logFile.MaxAgeDays,
			Compress:   logFile.Compress,
		},
		Assets: AssetsConfig{
			Dirs: []string{"."},
		},
	}
}

// ToGlobalOptions converts the terrain section.
func (c *Config) ToGlobalOptions() *terrain.GlobalOptions {
	t := c.Terrain
	o := terrain.DefaultGlobalOptions()
	o.MaxPixelError = t.MaxPixelError
	o.CompositeMapDistance = t.CompositeMapDistance
	o.SkirtSize = t.SkirtSize
	d := t.LightMapDirection
	o.LightMapDirection = math.Vec3{X: d[0], Y: d[1], Z: d[2]}.Normalize()
	o.LightMapSize = t.LightMapSize
	o.CompositeMapSize = t.CompositeMapSize
	o.LayerBlendMapSize = t.LayerBlendMapSize
	o.MorphEnabled = t.MorphEnabled
	o.UseRayBoxDistance = t.UseRayBoxDistance
	o.NormalMapRequired = t.NormalMap
	o.LightMapRequired = t.LightMap
	o.CompositeMapRequired = t.CompositeMap
	o.CompositeMapUpdateDelay = t.CompositeMapUpdateDelay
	o.MaxDerivedJobRetries = t.MaxDerivedJobRetries
	return o
}

// ToImportData converts the import section.
func (c *Config) ToImportData() (terrain.ImportData, error) {
	i := c.Import
	align, ok := terrain.ParseAlignment(i.Alignment)
	if !ok {
		return terrain.ImportData{}, fmt.Errorf("%w: alignment %q", ErrInvalid, i.Alignment)
	}
	d := terrain.DefaultImportData()
	d.Alignment = align
	d.Size = i.Size
	d.WorldSize = i.WorldSize
	d.MaxBatchSize = i.MaxBatchSize
	d.MinBatchSize = i.MinBatchSize
	d.InputScale = i.InputScale
	d.InputBias = i.InputBias
	d.ConstantHeight = i.ConstantHeight
	return d, nil
}

// ToWorkQueueOptions converts the workers section.
func (c *Config) ToWorkQueueOptions() workqueue.Options {
	return workqueue.Options{Workers: c.Workers.Count, Backlog: c.Workers.Backlog}
}

// ToFileConfig converts the logging section for logger.InitWithFileConfig.
func (c *Config) ToFileConfig() logger.FileConfig {
	l := c.Logging
	return logger.FileConfig{
		Path:       l.LogFile,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
		Compress:   l.Compress,
	}
}
