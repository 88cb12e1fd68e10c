// Package terraingroup manages a grid of terrains that share size, world
// size and alignment. Slots are defined up front and loaded on the work
// queue; loaded neighbours are linked so edges and lighting stay seamless.
//
// A Group is not safe for concurrent use. Loading runs on the work queue,
// but every other call belongs to the thread that processes responses.
package terraingroup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/internal/assets"
	"github.com/Faultbox/midgard-terrain/internal/engine/terrain"
	"github.com/Faultbox/midgard-terrain/internal/logger"
	"github.com/Faultbox/midgard-terrain/internal/workqueue"
	"github.com/Faultbox/midgard-terrain/pkg/formats"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// Group errors.
var (
	ErrUndefinedSlot     = errors.New("terrain slot not defined")
	ErrLoadCancelled     = errors.New("terrain load cancelled")
	ErrInvalidDefinition = errors.New("invalid terrain group definition")
)

const (
	workQueueChannel = "terraingroup"
	requestLoad      = 1
)

// FileSystem opens and creates terrain files by name.
type FileSystem interface {
	Open(name string) (io.ReadCloser, error)
	Create(name string) (io.WriteCloser, error)
}

// SlotDefinition says where the terrain of a slot comes from: a saved file
// or import data. The file wins when both are set.
type SlotDefinition struct {
	Filename   string
	ImportData *terrain.ImportData
}

func (d *SlotDefinition) useFilename(name string) {
	d.Filename = name
	d.ImportData = nil
}

// Slot is one cell of the grid.
type Slot struct {
	X, Y     int
	Def      SlotDefinition
	Instance *terrain.Terrain

	loading bool
}

// ready reports whether the instance exists and is owned by this thread.
func (s *Slot) ready() bool { return s.Instance != nil && !s.loading }

// Loading reports whether a load request for the slot is outstanding.
func (s *Slot) Loading() bool { return s.loading }

// Group is a grid of terrain slots.
type Group struct {
	log      *zap.Logger
	sceneMgr terrain.SceneManager
	opts     *terrain.GlobalOptions
	queue    terrain.WorkQueue
	channel  uint16
	alloc    terrain.BufferAllocator
	fs       FileSystem
	index    *SlotIndex

	alignment terrain.Alignment
	size      int
	worldSize float32
	origin    math.Vec3
	prefix    string
	ext       string
	saveOpts  formats.WriteOptions

	defaultImport terrain.ImportData
	slots         map[uint32]*Slot
}

// New creates an empty group. A nil queue loads on ProcessResponses of a
// private queue without workers.
func New(sm terrain.SceneManager, queue terrain.WorkQueue, align terrain.Alignment, size int, worldSize float32) *Group {
	if sm == nil {
		sm = terrain.NopSceneManager{}
	}
	if queue == nil {
		queue = workqueue.New(workqueue.Options{})
	}
	g := &Group{
		log:       logger.Named("terraingroup"),
		sceneMgr:  sm,
		opts:      terrain.DefaultGlobalOptions(),
		queue:     queue,
		alloc:     terrain.NewCPUBufferAllocator(),
		fs:        assets.NewManager("."),
		alignment: align,
		size:      size,
		worldSize: worldSize,
		prefix:    "terrain",
		ext:       "mtrn",
		slots:     make(map[uint32]*Slot),
	}
	g.defaultImport = terrain.DefaultImportData()
	g.defaultImport.Alignment = align
	g.defaultImport.Size = size
	g.defaultImport.WorldSize = worldSize
	g.fitBatchSizes()

	g.channel = queue.Channel(workQueueChannel)
	queue.AddRequestHandler(g.channel, g)
	queue.AddResponseHandler(g.channel, g)
	return g
}

// fitBatchSizes keeps the default batch sizes within the terrain size.
func (g *Group) fitBatchSizes() {
	d := &g.defaultImport
	d.MaxBatchSize = min(terrain.DefaultImportData().MaxBatchSize, g.size)
	d.MinBatchSize = min(terrain.DefaultImportData().MinBatchSize, d.MaxBatchSize)
}

// SetOptions sets the options handed to every terrain created afterwards.
func (g *Group) SetOptions(opts *terrain.GlobalOptions) { g.opts = opts }

// Options returns the terrain options.
func (g *Group) Options() *terrain.GlobalOptions { return g.opts }

// SetBufferAllocator replaces the allocator used by new terrains.
func (g *Group) SetBufferAllocator(a terrain.BufferAllocator) { g.alloc = a }

// SetFileSystem sets where terrain files are read and written.
func (g *Group) SetFileSystem(fs FileSystem) { g.fs = fs }

// SetIndex attaches a slot index that is updated on every save.
func (g *Group) SetIndex(ix *SlotIndex) { g.index = ix }

// SetSaveOptions controls the container of saved files.
func (g *Group) SetSaveOptions(o formats.WriteOptions) { g.saveOpts = o }

// SetFilenameConvention sets the prefix and extension of generated names.
func (g *Group) SetFilenameConvention(prefix, ext string) {
	g.prefix = prefix
	g.ext = ext
}

// FilenamePrefix returns the prefix of generated file names.
func (g *Group) FilenamePrefix() string { return g.prefix }

// FilenameExtension returns the extension of generated file names.
func (g *Group) FilenameExtension() string { return g.ext }

// Alignment returns the plane every terrain lies in.
func (g *Group) Alignment() terrain.Alignment { return g.alignment }

// Size returns the samples per terrain side.
func (g *Group) Size() int { return g.size }

// WorldSize returns the world extent of one slot.
func (g *Group) WorldSize() float32 { return g.worldSize }

// Origin returns the centre of slot (0, 0).
func (g *Group) Origin() math.Vec3 { return g.origin }

// DefaultImportSettings returns the import data copied by the DefineTerrain
// calls. Changes apply to later definitions.
func (g *Group) DefaultImportSettings() *terrain.ImportData { return &g.defaultImport }

// SetOrigin moves the grid. Loaded terrains follow.
func (g *Group) SetOrigin(o math.Vec3) {
	if o == g.origin {
		return
	}
	g.origin = o
	for _, s := range g.slots {
		if s.ready() {
			s.Instance.SetPosition(g.TerrainSlotPosition(s.X, s.Y))
		}
	}
}

// SetTerrainWorldSize changes the world size of every slot. Loaded
// terrains are rescaled and moved.
func (g *Group) SetTerrainWorldSize(ws float32) {
	if ws == g.worldSize {
		return
	}
	g.worldSize = ws
	g.defaultImport.WorldSize = ws
	for _, s := range g.slots {
		if s.Def.ImportData != nil {
			s.Def.ImportData.WorldSize = ws
		}
		if s.ready() {
			s.Instance.SetWorldSize(ws)
			s.Instance.SetPosition(g.TerrainSlotPosition(s.X, s.Y))
		}
	}
}

// DefineTerrain defines slot (x, y) from its generated file when that file
// exists, and as a flat terrain from the default import otherwise.
func (g *Group) DefineTerrain(x, y int) {
	name := g.GenerateFilename(x, y)
	if f, err := g.fs.Open(name); err == nil {
		f.Close()
		g.DefineTerrainFile(x, y, name)
		return
	}
	d := g.defaultImport
	g.DefineTerrainImport(x, y, &d)
}

// DefineTerrainHeight defines slot (x, y) as flat at height h.
func (g *Group) DefineTerrainHeight(x, y int, h float32) {
	d := g.defaultImport
	d.InputImage = nil
	d.InputFloat = nil
	d.ConstantHeight = h
	g.DefineTerrainImport(x, y, &d)
}

// DefineTerrainImage defines slot (x, y) from a height image. Nil layers
// keep the default layer list.
func (g *Group) DefineTerrainImage(x, y int, img *terrain.Image, layers []terrain.LayerInstance) {
	d := g.defaultImport
	d.InputImage = img
	d.InputFloat = nil
	if layers != nil {
		d.LayerList = layers
	}
	g.DefineTerrainImport(x, y, &d)
}

// DefineTerrainFloat defines slot (x, y) from row-major heights, south row
// first. Nil layers keep the default layer list.
func (g *Group) DefineTerrainFloat(x, y int, heights []float32, layers []terrain.LayerInstance) {
	d := g.defaultImport
	d.InputImage = nil
	d.InputFloat = heights
	if layers != nil {
		d.LayerList = layers
	}
	g.DefineTerrainImport(x, y, &d)
}

// DefineTerrainImport defines slot (x, y) from a copy of d. The group's
// alignment, size and world size override the ones in d.
func (g *Group) DefineTerrainImport(x, y int, d *terrain.ImportData) {
	cp := *d
	cp.Alignment = g.alignment
	cp.Size = g.size
	cp.WorldSize = g.worldSize
	g.slotFor(x, y).Def = SlotDefinition{ImportData: &cp}
}

// DefineTerrainFile defines slot (x, y) from a saved terrain file.
func (g *Group) DefineTerrainFile(x, y int, name string) {
	g.slotFor(x, y).Def = SlotDefinition{Filename: name}
}

func (g *Group) slotFor(x, y int) *Slot {
	key := PackIndex(x, y)
	s := g.slots[key]
	if s == nil {
		s = &Slot{X: x, Y: y}
		g.slots[key] = s
	}
	return s
}

// Slot returns slot (x, y), or nil when it is not defined.
func (g *Group) Slot(x, y int) *Slot { return g.slots[PackIndex(x, y)] }

// Terrain returns the terrain of slot (x, y) once it has loaded.
func (g *Group) Terrain(x, y int) *terrain.Terrain {
	if s := g.Slot(x, y); s != nil && s.ready() {
		return s.Instance
	}
	return nil
}

// Slots returns every defined slot, south row first.
func (g *Group) Slots() []*Slot {
	out := make([]*Slot, 0, len(g.slots))
	for _, s := range g.slots {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *Slot) int {
		if a.Y != b.Y {
			return a.Y - b.Y
		}
		return a.X - b.X
	})
	return out
}

// Terrains returns the loaded terrains in slot order.
func (g *Group) Terrains() []*terrain.Terrain {
	var out []*terrain.Terrain
	for _, s := range g.Slots() {
		if s.ready() {
			out = append(out, s.Instance)
		}
	}
	return out
}

type loadRequest struct {
	group    *Group
	slot     *Slot
	instance *terrain.Terrain
	def      SlotDefinition
	pos      math.Vec3
	err      error
}

// LoadTerrain loads slot (x, y). A synchronous load has finished, linked
// its neighbours and reported any failure on return. An async load
// completes when the work queue delivers its response.
func (g *Group) LoadTerrain(x, y int, synchronous bool) error {
	s := g.Slot(x, y)
	if s == nil {
		return fmt.Errorf("%w: %d,%d", ErrUndefinedSlot, x, y)
	}
	if s.Instance != nil {
		return nil
	}

	req := &loadRequest{
		group:    g,
		slot:     s,
		instance: terrain.New(g.sceneMgr, g.opts, g.queue, g.alloc),
		def:      s.Def,
		pos:      g.TerrainSlotPosition(x, y),
	}
	if s.Def.ImportData != nil {
		d := *s.Def.ImportData
		d.Pos = req.pos
		req.def.ImportData = &d
	}
	s.Instance = req.instance
	s.loading = true

	g.log.Debug("terrain load requested",
		zap.Int("x", x), zap.Int("y", y),
		zap.String("file", s.Def.Filename),
		zap.Bool("sync", synchronous))
	g.queue.AddRequest(g.channel, requestLoad, req, 0, synchronous)
	if synchronous {
		return req.err
	}
	return nil
}

// LoadAllTerrains loads every defined slot.
func (g *Group) LoadAllTerrains(synchronous bool) error {
	var errs []error
	for _, s := range g.Slots() {
		if err := g.LoadTerrain(s.X, s.Y, synchronous); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CanHandleRequest accepts load requests made by this group.
func (g *Group) CanHandleRequest(req *workqueue.Request, _ *workqueue.Queue) bool {
	lr, ok := req.Data.(*loadRequest)
	return ok && lr.group == g
}

// HandleRequest prepares the new terrain. It runs on a worker and touches
// nothing but the request.
func (g *Group) HandleRequest(req *workqueue.Request, _ *workqueue.Queue) *workqueue.Response {
	lr := req.Data.(*loadRequest)
	var err error
	if lr.def.Filename != "" {
		err = g.prepareFromFile(lr.instance, lr.def.Filename)
	} else if lr.def.ImportData != nil {
		err = lr.instance.Prepare(lr.def.ImportData)
	} else {
		err = fmt.Errorf("%w: slot %d,%d has no source", ErrInvalidDefinition, lr.slot.X, lr.slot.Y)
	}
	if err != nil {
		return &workqueue.Response{Request: req, Messages: err.Error(), Data: err}
	}
	return &workqueue.Response{Request: req, Success: true}
}

func (g *Group) prepareFromFile(t *terrain.Terrain, name string) error {
	f, err := g.fs.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	return t.PrepareStream(f)
}

// CanHandleResponse accepts load responses of this group.
func (g *Group) CanHandleResponse(res *workqueue.Response, _ *workqueue.Queue) bool {
	lr, ok := res.Request.Data.(*loadRequest)
	return ok && lr.group == g
}

// HandleResponse places and loads the prepared terrain and links it to its
// loaded neighbours.
func (g *Group) HandleResponse(res *workqueue.Response, _ *workqueue.Queue) {
	lr := res.Request.Data.(*loadRequest)
	s := lr.slot
	if g.slots[PackIndex(s.X, s.Y)] != s || s.Instance != lr.instance {
		// unloaded or removed while preparing
		lr.instance.Destroy()
		lr.err = ErrLoadCancelled
		return
	}
	s.loading = false

	if !res.Success {
		lr.err = responseError(res)
	} else {
		lr.instance.SetPosition(lr.pos)
		lr.err = lr.instance.Load()
	}
	if lr.err != nil {
		lr.err = fmt.Errorf("load terrain %d,%d: %w", s.X, s.Y, lr.err)
		g.log.Warn("terrain load failed", zap.Error(lr.err))
		lr.instance.Destroy()
		s.Instance = nil
		return
	}

	g.connectNeighbours(s)
	g.log.Info("terrain slot loaded", zap.Int("x", s.X), zap.Int("y", s.Y))
}

func responseError(res *workqueue.Response) error {
	if err, ok := res.Data.(error); ok {
		return err
	}
	return errors.New(res.Messages)
}

// connectNeighbours links s to the loaded slots around it. Imported
// terrains take their edges from neighbours that already exist.
func (g *Group) connectNeighbours(s *Slot) {
	recalc := s.Def.ImportData != nil
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			n := g.Slot(s.X+dx, s.Y+dy)
			if n == nil || !n.ready() || !n.Instance.IsLoaded() {
				continue
			}
			s.Instance.SetNeighbour(terrain.GetNeighbourIndex(dx, dy), n.Instance, recalc, true)
		}
	}
}

// UnloadTerrain destroys the terrain of slot (x, y) and keeps the definition.
func (g *Group) UnloadTerrain(x, y int) {
	s := g.Slot(x, y)
	if s == nil || s.Instance == nil {
		return
	}
	if !s.loading {
		s.Instance.Destroy()
	}
	// an in-flight instance is destroyed by its response
	s.Instance = nil
	s.loading = false
}

// RemoveTerrain unloads slot (x, y) and forgets its definition.
func (g *Group) RemoveTerrain(x, y int) {
	g.UnloadTerrain(x, y)
	delete(g.slots, PackIndex(x, y))
}

// RemoveAllTerrains removes every slot and frees pooled buffers.
func (g *Group) RemoveAllTerrains() {
	for _, s := range g.Slots() {
		g.RemoveTerrain(s.X, s.Y)
	}
	g.alloc.FreeAllBuffers()
}

// SaveAllTerrains writes every loaded terrain, or only the modified ones.
// Imported slots get a generated file name and are redefined from it.
func (g *Group) SaveAllTerrains(onlyIfModified bool) error {
	var errs []error
	saved := 0
	for _, s := range g.Slots() {
		if !s.ready() || !s.Instance.IsPrepared() {
			continue
		}
		if onlyIfModified && !s.Instance.IsModified() {
			continue
		}
		name := s.Def.Filename
		if name == "" {
			name = g.GenerateFilename(s.X, s.Y)
		}
		if err := g.saveSlot(s, name); err != nil {
			errs = append(errs, fmt.Errorf("save terrain %d,%d: %w", s.X, s.Y, err))
			continue
		}
		s.Def.useFilename(name)
		saved++
	}
	g.log.Info("terrains saved", zap.Int("count", saved), zap.Int("failed", len(errs)))
	return errors.Join(errs...)
}

func (g *Group) saveSlot(s *Slot, name string) error {
	w, err := g.fs.Create(name)
	if err != nil {
		return err
	}
	if err := s.Instance.Save(w, g.saveOpts); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	if g.index == nil {
		return nil
	}
	return g.index.Record(SlotRecord{
		X:         s.X,
		Y:         s.Y,
		Filename:  name,
		ModTime:   time.Now(),
		MinHeight: s.Instance.MinHeight(),
		MaxHeight: s.Instance.MaxHeight(),
	})
}

// Update applies pending edits on every loaded terrain.
func (g *Group) Update(synchronous bool) {
	for _, s := range g.slots {
		if s.ready() {
			s.Instance.Update(synchronous)
		}
	}
}

// UpdateGeometry rewrites dirty geometry on every loaded terrain.
func (g *Group) UpdateGeometry() {
	for _, s := range g.slots {
		if s.ready() {
			s.Instance.UpdateGeometry()
		}
	}
}

// UpdateDerivedData starts derived data jobs on every loaded terrain.
func (g *Group) UpdateDerivedData(synchronous bool, typeMask uint8) {
	for _, s := range g.slots {
		if s.ready() {
			s.Instance.UpdateDerivedData(synchronous, typeMask)
		}
	}
}

// IsDerivedDataUpdateInProgress reports whether any terrain has a derived
// job outstanding.
func (g *Group) IsDerivedDataUpdateInProgress() bool {
	for _, s := range g.slots {
		if s.ready() && s.Instance.IsDerivedDataUpdateInProgress() {
			return true
		}
	}
	return false
}

// WaitForDerivedProcesses pumps the work queue until every terrain is done.
func (g *Group) WaitForDerivedProcesses(ctx context.Context) error {
	for _, s := range g.Slots() {
		if !s.ready() {
			continue
		}
		if err := s.Instance.WaitForDerivedProcesses(ctx); err != nil {
			return err
		}
	}
	return nil
}

// PreFindVisibleObjects runs per-frame LOD selection on every loaded terrain.
func (g *Group) PreFindVisibleObjects(cam terrain.Camera, viewportHeight int, frame uint64, elapsed time.Duration) {
	for _, s := range g.slots {
		if s.ready() {
			s.Instance.PreFindVisibleObjects(cam, viewportHeight, frame, elapsed)
		}
	}
}

// FreeTemporaryResources drops import inputs of loaded slots and pooled
// buffers nobody uses.
func (g *Group) FreeTemporaryResources() {
	for _, s := range g.slots {
		if s.ready() && s.Def.ImportData != nil {
			s.Def.ImportData.InputImage = nil
			s.Def.ImportData.InputFloat = nil
		}
	}
	g.alloc.FreeAllBuffers()
}
