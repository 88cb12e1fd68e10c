package terrain

import (
	"time"

	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// GlobalOptions holds settings shared by every terrain created with it.
// Terrains keep a pointer, so changes apply on the next use.
type GlobalOptions struct {
	// MaxPixelError is the screen-space error budget used by LOD selection.
	MaxPixelError float32
	// CompositeMapDistance is the distance past which the composite map is used.
	CompositeMapDistance float32
	// SkirtSize is how far skirt vertices hang below the surface.
	SkirtSize float32
	// LightMapDirection is the direction light travels (normalized).
	LightMapDirection math.Vec3
	CastsDynamicShadows bool

	CompositeMapAmbient [3]float32
	CompositeMapDiffuse [3]float32

	LightMapSize      int
	CompositeMapSize  int
	LayerBlendMapSize int

	// DefaultLayerWorldSize is used when a layer is added without a world size.
	DefaultLayerWorldSize float32

	// UseRayBoxDistance measures LOD distance to the node box instead of its centre.
	UseRayBoxDistance bool
	// MorphEnabled drives geomorphing between LOD levels.
	MorphEnabled bool

	NormalMapRequired    bool
	LightMapRequired     bool
	CompositeMapRequired bool

	// CompositeMapUpdateDelay is the wait after a blend edit before rebaking.
	CompositeMapUpdateDelay time.Duration

	// MaxDerivedJobRetries bounds request retries on a failed worker.
	MaxDerivedJobRetries int
}

// DefaultGlobalOptions returns the stock settings.
func DefaultGlobalOptions() *GlobalOptions {
	return &GlobalOptions{
		MaxPixelError:           3,
		CompositeMapDistance:    4000,
		SkirtSize:               30,
		LightMapDirection:       math.Vec3{X: 1, Y: -1, Z: 0}.Normalize(),
		CompositeMapAmbient:     [3]float32{0.5, 0.5, 0.5},
		CompositeMapDiffuse:     [3]float32{1, 1, 1},
		LightMapSize:            1024,
		CompositeMapSize:        1024,
		LayerBlendMapSize:       1024,
		DefaultLayerWorldSize:   10,
		MorphEnabled:            true,
		NormalMapRequired:       true,
		LightMapRequired:        true,
		CompositeMapRequired:    true,
		CompositeMapUpdateDelay: 2 * time.Second,
		MaxDerivedJobRetries:    2,
	}
}
