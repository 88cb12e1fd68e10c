// Package terrain manages a heightfield as a quadtree of renderable tiles with
// continuous LOD, geomorphing, skirts and background recomputation of derived
// surface data.
package terrain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/internal/engine/picking"
	"github.com/Faultbox/midgard-terrain/internal/logger"
	"github.com/Faultbox/midgard-terrain/internal/workqueue"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// ErrDestroyed is returned by operations on a destroyed terrain.
var ErrDestroyed = errors.New("terrain destroyed")

// WorkQueue is the request/response queue derived data is computed on.
type WorkQueue interface {
	Channel(name string) uint16
	AddRequest(ch, typ uint16, data any, retryCount int, synchronous bool) workqueue.RequestID
	AddRequestHandler(ch uint16, h workqueue.RequestHandler)
	RemoveRequestHandler(ch uint16, h workqueue.RequestHandler)
	AddResponseHandler(ch uint16, h workqueue.ResponseHandler)
	RemoveResponseHandler(ch uint16, h workqueue.ResponseHandler)
	ProcessResponses() int
}

// Camera is the viewer used for LOD selection.
type Camera interface {
	Position() math.Vec3
	FovY() float32
	LodBias() float32
}

// Terrain is a square heightfield tile.
type Terrain struct {
	log      *zap.Logger
	sceneMgr SceneManager
	opts     *GlobalOptions
	queue    WorkQueue
	channel  uint16
	alloc    BufferAllocator
	matGen   MaterialGenerator

	alignment Alignment
	size      int
	worldSize float32
	maxBatch  int
	minBatch  int
	pos       math.Vec3
	base      float32
	scale     float32

	heightData []float32
	deltaData  []float32

	treeDepth           int
	numLodLevels        int
	numLodLevelsPerLeaf int
	root                *QuadTreeNode

	layerDecl     LayerDeclaration
	layers        []LayerInstance
	layerUVMult   []float32
	blendMapSize  int
	blendTextures []*Image
	blendMaps     []*LayerBlendMap

	material            *Material
	compositeMaterial   *Material
	materialGenChange   uint64
	materialDirty       bool
	materialParamsDirty bool

	normalMap    *Image
	lightMap     *Image
	compositeMap *Image
	colourMap    *Image

	lightMapSize     int
	compositeMapSize int

	dirtyGeometryRect               Rect
	dirtyDerivedDataRect            Rect
	dirtyGeometryRectForNeighbours  Rect
	dirtyLightmapFromNeighboursRect Rect
	compositeMapDirtyRect           Rect
	compositeMapDirtyLightmap       bool
	compositeMapCountdown           time.Duration

	modified           bool
	heightDataModified bool

	derivedInProgress  bool
	derivedPendingMask uint8
	// dirtyDerivedMask is what the dirty derived region needs recomputed.
	dirtyDerivedMask   uint8
	generation         uint64

	neighbours [neighbourCount]*Terrain

	lastLODCamera      Camera
	lastLODFrame       uint64
	lastViewportHeight int

	prepared  bool
	loaded    bool
	destroyed bool
}

// New creates an empty terrain. A nil queue computes derived data inline, a
// nil allocator keeps buffers in memory and a nil scene manager attaches nothing.
func New(sm SceneManager, opts *GlobalOptions, queue WorkQueue, alloc BufferAllocator) *Terrain {
	if sm == nil {
		sm = NopSceneManager{}
	}
	if opts == nil {
		opts = DefaultGlobalOptions()
	}
	if queue == nil {
		queue = workqueue.New(workqueue.Options{})
	}
	if alloc == nil {
		alloc = NewCPUBufferAllocator()
	}
	t := &Terrain{
		log:       logger.Named("terrain"),
		sceneMgr:  sm,
		opts:      opts,
		queue:     queue,
		alloc:     alloc,
		matGen:    NewDefaultMaterialGenerator(),
		alignment: AlignXZ,
		minBatch:  17,
		maxBatch:  65,
	}
	t.channel = queue.Channel(workQueueChannel)
	queue.AddRequestHandler(t.channel, t)
	queue.AddResponseHandler(t.channel, t)
	return t
}

// SetMaterialGenerator replaces the material generator. It must be called
// before Prepare.
func (t *Terrain) SetMaterialGenerator(g MaterialGenerator) {
	t.matGen = g
	t.materialDirty = true
}

// Prepare builds the heightfield and quadtree from import data. Nothing is
// changed when validation fails.
func (t *Terrain) Prepare(data *ImportData) error {
	if t.destroyed {
		return ErrDestroyed
	}
	if err := data.Validate(); err != nil {
		return err
	}
	if len(data.LayerList) > t.matGen.MaxLayers(t) {
		return fmt.Errorf("%w: %d > %d", ErrTooManyLayers, len(data.LayerList), t.matGen.MaxLayers(t))
	}
	heights, err := data.buildHeights()
	if err != nil {
		return err
	}
	if t.prepared {
		t.Unprepare()
	}

	t.alignment = data.Alignment
	t.size = data.Size
	t.worldSize = data.WorldSize
	t.maxBatch = data.MaxBatchSize
	t.minBatch = data.MinBatchSize
	t.pos = data.Pos
	t.heightData = heights
	t.deltaData = make([]float32, t.size*t.size)
	t.updateBaseScale()
	t.determineLodLevels()

	t.layerDecl = data.LayerDeclaration
	if len(t.layerDecl.Samplers) == 0 {
		t.layerDecl = t.matGen.LayerDeclaration()
	}
	t.layers = append([]LayerInstance(nil), data.LayerList...)
	for i := range t.layers {
		if t.layers[i].WorldSize == 0 {
			t.layers[i].WorldSize = t.opts.DefaultLayerWorldSize
		}
	}
	t.materialDirty = true
	t.blendMapSize = t.opts.LayerBlendMapSize
	t.lightMapSize = t.opts.LightMapSize
	t.compositeMapSize = t.opts.CompositeMapSize
	t.deriveUVMultipliers()
	t.createBlendTextures()
	t.createDerivedMaps()

	t.buildQuadTree()

	full := NewRect(0, 0, t.size, t.size)
	t.CalculateHeightDeltas(full)
	t.FinalizeHeightDeltas(full)

	// first Update computes the maps
	t.dirtyDerivedDataRect = full
	t.dirtyDerivedMask = DerivedAll
	t.compositeMapDirtyRect = full

	t.modified = true
	t.heightDataModified = true
	t.prepared = true
	t.log.Info("terrain prepared",
		zap.Int("size", t.size),
		zap.Float32("worldSize", t.worldSize),
		zap.Int("lodLevels", t.numLodLevels),
		zap.Int("treeDepth", t.treeDepth))
	return nil
}

func (t *Terrain) determineLodLevels() {
	t.numLodLevelsPerLeaf = log2(t.maxBatch-1) - log2(t.minBatch-1) + 1
	t.numLodLevels = log2(t.size-1) - log2(t.minBatch-1) + 1
	t.treeDepth = t.numLodLevels - t.numLodLevelsPerLeaf + 1
}

func (t *Terrain) buildQuadTree() {
	t.root = newQuadTreeNode(t, nil, 0, 0, t.size, t.numLodLevels-1, 0, 0)
	t.distributeVertexData()
	t.root.prepare()
}

// Load realises render buffers for every node and attaches the node proxies
// to the scene.
func (t *Terrain) Load() error {
	if t.destroyed {
		return ErrDestroyed
	}
	if !t.prepared {
		return ErrNotPrepared
	}
	if t.loaded {
		return nil
	}
	if err := t.root.load(); err != nil {
		t.root.unload()
		return fmt.Errorf("load terrain buffers: %w", err)
	}
	t.sceneMgr.AttachTerrain(t)
	t.loaded = true
	t.log.Info("terrain loaded", zap.Int("size", t.size))
	return nil
}

// Unload releases render buffers. CPU data is kept.
func (t *Terrain) Unload() {
	if !t.loaded {
		return
	}
	t.sceneMgr.DetachTerrain(t)
	t.root.unload()
	t.loaded = false
}

// Unprepare drops all CPU data. An outstanding derived job chain runs to
// completion first, since its worker reads the data being dropped. Work
// requested while it ran is not started.
func (t *Terrain) Unprepare() {
	t.derivedPendingMask = 0
	_ = t.WaitForDerivedProcesses(context.Background())
	t.Unload()
	if !t.prepared {
		return
	}
	t.generation++
	t.derivedInProgress = false
	t.derivedPendingMask = 0
	t.dirtyDerivedMask = 0
	t.root = nil
	t.heightData = nil
	t.deltaData = nil
	t.blendTextures = nil
	t.blendMaps = nil
	t.material, t.compositeMaterial = nil, nil
	t.normalMap, t.lightMap, t.compositeMap, t.colourMap = nil, nil, nil, nil
	t.dirtyGeometryRect = Rect{}
	t.dirtyDerivedDataRect = Rect{}
	t.dirtyGeometryRectForNeighbours = Rect{}
	t.dirtyLightmapFromNeighboursRect = Rect{}
	t.compositeMapDirtyRect = Rect{}
	t.prepared = false
}

// Destroy detaches from neighbours and the work queue. The terrain cannot be
// reused afterwards; responses for its jobs are discarded.
func (t *Terrain) Destroy() {
	if t.destroyed {
		return
	}
	for i := range t.neighbours {
		t.SetNeighbour(NeighbourIndex(i), nil, false, true)
	}
	t.Unprepare()
	t.queue.RemoveRequestHandler(t.channel, t)
	t.queue.RemoveResponseHandler(t.channel, t)
	t.generation++
	t.destroyed = true
}

// WaitForDerivedProcesses pumps the work queue until no derived job is
// outstanding or ctx is done.
func (t *Terrain) WaitForDerivedProcesses(ctx context.Context) error {
	for t.derivedInProgress {
		t.queue.ProcessResponses()
		if !t.derivedInProgress {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
	return nil
}

// PreFindVisibleObjects runs the per-frame work before culling: the delayed
// composite map bake and LOD selection for the camera. LOD is evaluated at
// most once per camera, frame and viewport height.
func (t *Terrain) PreFindVisibleObjects(cam Camera, viewportHeight int, frame uint64, elapsed time.Duration) {
	if !t.loaded {
		return
	}
	if t.compositeMapCountdown > 0 {
		t.compositeMapCountdown -= elapsed
		if t.compositeMapCountdown <= 0 {
			t.compositeMapCountdown = 0
			t.updateCompositeMap()
		}
	}
	if cam == t.lastLODCamera && frame == t.lastLODFrame && viewportHeight == t.lastViewportHeight {
		return
	}
	t.lastLODCamera = cam
	t.lastLODFrame = frame
	t.lastViewportHeight = viewportHeight
	t.CalculateCurrentLod(cam, viewportHeight)
}

// CalculateCurrentLod selects the rendered LOD of every node for the camera.
func (t *Terrain) CalculateCurrentLod(cam Camera, viewportHeight int) {
	if t.root == nil {
		return
	}
	t.root.calculateCurrentLod(cam, t.cFactor(cam, viewportHeight))
}

// cFactor combines the camera's field of view, the viewport height and the
// pixel error budget into a scale applied to height deltas.
func (t *Terrain) cFactor(cam Camera, viewportHeight int) float32 {
	bias := cam.LodBias()
	if bias <= 0 {
		bias = 1
	}
	a := 1 / tanf(cam.FovY()*0.5)
	kt := 2 * t.opts.MaxPixelError / bias / float32(max(viewportHeight, 1))
	return a / kt
}

// Alignment returns the world plane the terrain lies in.
func (t *Terrain) Alignment() Alignment { return t.alignment }

// Size returns the number of height samples per edge.
func (t *Terrain) Size() int { return t.size }

// WorldSize returns the edge length in world units.
func (t *Terrain) WorldSize() float32 { return t.worldSize }

// SetWorldSize rescales the terrain and rebuilds its geometry.
func (t *Terrain) SetWorldSize(ws float32) {
	if ws <= 0 || ws == t.worldSize {
		return
	}
	t.worldSize = ws
	t.updateBaseScale()
	t.deriveUVMultipliers()
	if t.prepared {
		t.DirtyRect(NewRect(0, 0, t.size, t.size))
		t.UpdateGeometry()
	}
	t.modified = true
}

// MaxBatchSize returns the largest batch size.
func (t *Terrain) MaxBatchSize() int { return t.maxBatch }

// MinBatchSize returns the smallest batch size.
func (t *Terrain) MinBatchSize() int { return t.minBatch }

// Position returns the world position of the terrain centre.
func (t *Terrain) Position() math.Vec3 { return t.pos }

// SetPosition moves the terrain.
func (t *Terrain) SetPosition(p math.Vec3) {
	if p == t.pos {
		return
	}
	t.pos = p
	t.sceneMgr.TerrainMoved(t)
	t.modified = true
}

// Options returns the shared options.
func (t *Terrain) Options() *GlobalOptions { return t.opts }

// RootNode returns the quadtree root, nil before Prepare.
func (t *Terrain) RootNode() *QuadTreeNode { return t.root }

// NumLodLevels returns the number of LOD levels across the whole tree.
func (t *Terrain) NumLodLevels() int { return t.numLodLevels }

// NumLodLevelsPerLeaf returns the number of LOD levels a leaf node holds.
func (t *Terrain) NumLodLevelsPerLeaf() int { return t.numLodLevelsPerLeaf }

// TreeDepth returns the number of quadtree levels.
func (t *Terrain) TreeDepth() int { return t.treeDepth }

// ResolutionAtLod returns the samples per edge rendered at a global LOD.
func (t *Terrain) ResolutionAtLod(lod int) int {
	return ((t.size - 1) >> lod) + 1
}

// IsPrepared reports whether CPU data exists.
func (t *Terrain) IsPrepared() bool { return t.prepared }

// IsLoaded reports whether render buffers exist.
func (t *Terrain) IsLoaded() bool { return t.loaded }

// IsModified reports whether the terrain changed since it was last saved.
func (t *Terrain) IsModified() bool { return t.modified }

// IsHeightDataModified reports whether heights changed since the last save.
func (t *Terrain) IsHeightDataModified() bool { return t.heightDataModified }

// IsDerivedDataUpdateInProgress reports whether a derived job is outstanding.
func (t *Terrain) IsDerivedDataUpdateInProgress() bool { return t.derivedInProgress }

// IsMorphRequired reports whether LOD selection computes morph factors.
func (t *Terrain) IsMorphRequired() bool { return t.opts.MorphEnabled }

// SkirtSize returns how far skirts hang below the surface.
func (t *Terrain) SkirtSize() float32 { return t.opts.SkirtSize }

// WorldAABB returns the world-space bounds.
func (t *Terrain) WorldAABB() picking.AABB {
	if t.root == nil {
		return picking.NullAABB()
	}
	return t.root.aabb.Translate(t.root.localCentre.Add(t.pos))
}

// MinHeight returns the lowest height sample.
func (t *Terrain) MinHeight() float32 {
	if t.root == nil {
		return 0
	}
	return t.root.MinHeight()
}

// MaxHeight returns the highest height sample.
func (t *Terrain) MaxHeight() float32 {
	if t.root == nil {
		return 0
	}
	return t.root.MaxHeight()
}

// BoundingRadius returns the radius of the root node.
func (t *Terrain) BoundingRadius() float32 {
	if t.root == nil {
		return 0
	}
	return t.root.boundingRadius
}

// NormalMap returns the CPU normal map (RGB8, size x size).
func (t *Terrain) NormalMap() *Image { return t.normalMap }

// LightMap returns the CPU light map (L8).
func (t *Terrain) LightMap() *Image { return t.lightMap }

// CompositeMap returns the CPU composite map (RGBA8).
func (t *Terrain) CompositeMap() *Image { return t.compositeMap }

// ColourMap returns the optional global colour map.
func (t *Terrain) ColourMap() *Image { return t.colourMap }

// SetColourMap installs a global colour map.
func (t *Terrain) SetColourMap(img *Image) {
	t.colourMap = img
	t.modified = true
}

func (t *Terrain) createDerivedMaps() {
	if t.opts.NormalMapRequired && t.normalMap == nil {
		t.normalMap = NewImage(t.size, t.size, FormatRGB8)
	}
	if t.opts.LightMapRequired && t.lightMap == nil {
		t.lightMap = NewImage(t.lightMapSize, t.lightMapSize, FormatL8)
		for i := range t.lightMap.Data {
			t.lightMap.Data[i] = 255
		}
	}
	if t.opts.CompositeMapRequired && t.compositeMap == nil {
		t.compositeMap = NewImage(t.compositeMapSize, t.compositeMapSize, FormatRGBA8)
	}
}

func (t *Terrain) String() string {
	return fmt.Sprintf("Terrain(size=%d world=%g pos=%v)", t.size, t.worldSize, t.pos)
}
