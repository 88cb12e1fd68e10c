package terrain

import (
	"time"

	"go.uber.org/zap"
)

// Derived data types computed in the background.
const (
	DerivedDeltas uint8 = 1 << iota
	DerivedNormals
	DerivedLightmap

	DerivedAll = DerivedDeltas | DerivedNormals | DerivedLightmap
)

// DirtyRect marks a region whose heights changed. The geometry, derived
// data, neighbour and composite map regions all grow to include it.
func (t *Terrain) DirtyRect(r Rect) {
	t.dirtyGeometryRect = t.dirtyGeometryRect.Merge(r)
	t.dirtyGeometryRectForNeighbours = t.dirtyGeometryRectForNeighbours.Merge(r)
	t.dirtyDerivedDataRect = t.dirtyDerivedDataRect.Merge(r)
	t.dirtyDerivedMask |= DerivedAll
	t.compositeMapDirtyRect = t.compositeMapDirtyRect.Merge(r)
	t.modified = true
	t.heightDataModified = true
}

// DirtyCompositeMapRect marks a region of the composite map stale without
// touching heights.
func (t *Terrain) DirtyCompositeMapRect(r Rect) {
	t.compositeMapDirtyRect = t.compositeMapDirtyRect.Merge(r)
	t.modified = true
}

// DirtyLightmapRect marks a region whose lighting must be recomputed.
func (t *Terrain) DirtyLightmapRect(r Rect) {
	t.dirtyDerivedDataRect = t.dirtyDerivedDataRect.Merge(r)
	t.dirtyDerivedMask |= DerivedLightmap
	t.modified = true
}

// DirtyLightmap marks the whole light map stale.
func (t *Terrain) DirtyLightmap() {
	t.DirtyLightmapRect(NewRect(0, 0, t.size, t.size))
}

// DirtyGeometryRect returns the region awaiting a geometry update.
func (t *Terrain) DirtyGeometryRect() Rect { return t.dirtyGeometryRect }

// DirtyDerivedDataRect returns the region awaiting a derived data job.
func (t *Terrain) DirtyDerivedDataRect() Rect { return t.dirtyDerivedDataRect }

// CompositeMapDirtyRect returns the stale region of the composite map.
func (t *Terrain) CompositeMapDirtyRect() Rect { return t.compositeMapDirtyRect }

// Update applies pending edits: geometry now, derived data synchronously or
// on the work queue.
func (t *Terrain) Update(synchronous bool) {
	t.UpdateGeometry()
	t.UpdateDerivedData(synchronous, DerivedAll)
}

// UpdateGeometry rewrites vertex positions for the dirty geometry region and
// pushes edge changes to neighbours. It always runs synchronously.
func (t *Terrain) UpdateGeometry() {
	if !t.prepared {
		return
	}
	if !t.dirtyGeometryRect.IsNull() {
		t.root.updateVertexData(true, false, t.dirtyGeometryRect)
		t.dirtyGeometryRect = Rect{}
	}
	t.NotifyNeighbours()
}

// UpdateDerivedData starts a derived data job for the dirty regions. The
// mask is widened by whatever the dirty regions need, so a height edit is
// never left without its deltas. While a job is outstanding the request
// only widens the pending mask, and the regions stay dirty until that job
// completes.
func (t *Terrain) UpdateDerivedData(synchronous bool, typeMask uint8) {
	if !t.prepared {
		return
	}
	if t.dirtyDerivedDataRect.IsNull() && t.dirtyLightmapFromNeighboursRect.IsNull() {
		// nothing to compute first, so the composite map can go now
		t.updateCompositeMap()
		return
	}

	t.modified = true
	if t.derivedInProgress {
		t.derivedPendingMask |= typeMask
		return
	}
	rect, extra := t.dirtyDerivedDataRect, t.dirtyLightmapFromNeighboursRect
	typeMask |= t.dirtyDerivedMask
	t.dirtyDerivedDataRect = Rect{}
	t.dirtyLightmapFromNeighboursRect = Rect{}
	t.dirtyDerivedMask = 0
	t.updateDerivedDataImpl(rect, extra, synchronous, typeMask)
}

func (t *Terrain) updateDerivedDataImpl(rect, lightmapExtra Rect, synchronous bool, typeMask uint8) {
	t.derivedInProgress = true
	t.derivedPendingMask = 0

	if !t.opts.NormalMapRequired {
		typeMask &^= DerivedNormals
	}
	if !t.opts.LightMapRequired {
		typeMask &^= DerivedLightmap
	}
	req := &DerivedDataRequest{
		Terrain:           t,
		Generation:        t.generation,
		DirtyRect:         rect,
		LightmapExtraRect: lightmapExtra,
		TypeMask:          typeMask,
		Synchronous:       synchronous,
	}
	t.log.Debug("derived data job submitted",
		zap.Stringer("rect", rect),
		zap.Stringer("lightmapExtra", lightmapExtra),
		zap.Uint8("mask", typeMask),
		zap.Bool("sync", synchronous))
	t.queue.AddRequest(t.channel, workQueueDerivedDataRequest, req, t.opts.MaxDerivedJobRetries, synchronous)
}

// UpdateCompositeMap rebakes the stale part of the composite map now.
func (t *Terrain) UpdateCompositeMap() {
	t.compositeMapCountdown = 0
	t.updateCompositeMap()
}

// UpdateCompositeMapWithDelay schedules a rebake after delay of frame time,
// so a stream of blend edits bakes once. A zero delay uses the configured one.
func (t *Terrain) UpdateCompositeMapWithDelay(delay time.Duration) {
	if delay <= 0 {
		delay = t.opts.CompositeMapUpdateDelay
	}
	t.compositeMapCountdown = delay
}

func (t *Terrain) updateCompositeMap() {
	if !t.opts.CompositeMapRequired || t.compositeMapDirtyRect.IsNull() || t.compositeMap == nil {
		return
	}
	t.modified = true
	rect := t.compositeMapDirtyRect
	if t.compositeMapDirtyLightmap && (rect.Width() < t.size || rect.Height() < t.size) {
		// shadows reach past the edited area
		rect = t.WidenRectByVector(t.opts.LightMapDirection, rect).Clamp(t.size)
	}
	t.matGen.UpdateCompositeMap(t, rect)
	t.compositeMapDirtyLightmap = false
	t.compositeMapDirtyRect = Rect{}
}
