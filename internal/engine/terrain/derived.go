package terrain

import (
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/internal/workqueue"
)

const (
	workQueueChannel            = "terrain"
	workQueueDerivedDataRequest = 1
)

// DerivedDataRequest is the payload of a background derived data job.
type DerivedDataRequest struct {
	Terrain           *Terrain
	Generation        uint64
	DirtyRect         Rect
	LightmapExtraRect Rect
	TypeMask          uint8
	Synchronous       bool
}

// DerivedDataResponse carries the results of one job. Exactly one data type
// is computed per job; the rest are reported as remaining.
type DerivedDataResponse struct {
	Terrain            *Terrain
	Generation         uint64
	RemainingTypeMask  uint8
	DeltaUpdateRect    Rect
	NormalUpdateRect   Rect
	LightmapUpdateRect Rect
	NormalMapBox       *Image
	LightMapBox        *Image
}

// CanHandleRequest accepts derived data jobs issued by this terrain.
func (t *Terrain) CanHandleRequest(req *workqueue.Request, _ *workqueue.Queue) bool {
	ddr, ok := req.Data.(*DerivedDataRequest)
	return ok && ddr.Terrain == t
}

// HandleRequest computes one derived data type. It runs on a worker and only
// reads heights inside the requested regions.
func (t *Terrain) HandleRequest(req *workqueue.Request, _ *workqueue.Queue) *workqueue.Response {
	ddr := req.Data.(*DerivedDataRequest)
	resp := &DerivedDataResponse{
		Terrain:           t,
		Generation:        ddr.Generation,
		RemainingTypeMask: ddr.TypeMask & DerivedAll,
	}

	// a job carrying only neighbour shadows has no height region
	heights := !ddr.DirtyRect.IsNull()
	switch {
	case ddr.TypeMask&DerivedDeltas != 0:
		if heights {
			resp.DeltaUpdateRect = t.CalculateHeightDeltas(ddr.DirtyRect)
		}
		resp.RemainingTypeMask &^= DerivedDeltas
	case ddr.TypeMask&DerivedNormals != 0:
		if heights {
			resp.NormalMapBox, resp.NormalUpdateRect = t.CalculateNormals(ddr.DirtyRect)
		}
		resp.RemainingTypeMask &^= DerivedNormals
	case ddr.TypeMask&DerivedLightmap != 0:
		resp.LightMapBox, resp.LightmapUpdateRect = t.CalculateLightmap(ddr.DirtyRect, ddr.LightmapExtraRect)
		resp.RemainingTypeMask &^= DerivedLightmap
	}
	return &workqueue.Response{Request: req, Success: true, Data: resp}
}

// CanHandleResponse accepts responses to this terrain's jobs.
func (t *Terrain) CanHandleResponse(res *workqueue.Response, q *workqueue.Queue) bool {
	return t.CanHandleRequest(res.Request, q)
}

// HandleResponse promotes computed data and chains the next job. It runs on
// the thread that owns the terrain.
func (t *Terrain) HandleResponse(res *workqueue.Response, _ *workqueue.Queue) {
	ddr := res.Request.Data.(*DerivedDataRequest)
	if t.destroyed || !t.prepared || ddr.Generation != t.generation {
		t.log.Debug("discarding stale derived data response",
			zap.Uint64("generation", ddr.Generation),
			zap.Uint64("current", t.generation))
		return
	}

	t.derivedInProgress = false

	resp, ok := res.Data.(*DerivedDataResponse)
	if !res.Success || !ok {
		// leave the work dirty for the next Update
		t.log.Warn("derived data job failed",
			zap.String("reason", res.Messages),
			zap.Stringer("rect", ddr.DirtyRect))
		t.dirtyDerivedDataRect = t.dirtyDerivedDataRect.Merge(ddr.DirtyRect)
		t.dirtyLightmapFromNeighboursRect = t.dirtyLightmapFromNeighboursRect.Merge(ddr.LightmapExtraRect)
		t.dirtyDerivedMask |= ddr.TypeMask
		return
	}

	if !resp.DeltaUpdateRect.IsNull() {
		t.FinalizeHeightDeltas(resp.DeltaUpdateRect)
	}
	if resp.NormalMapBox != nil {
		t.FinalizeNormals(resp.NormalUpdateRect, resp.NormalMapBox)
		t.compositeMapDirtyRect = t.compositeMapDirtyRect.Merge(ddr.DirtyRect)
	}
	if resp.LightMapBox != nil {
		t.FinalizeLightmap(resp.LightmapUpdateRect, resp.LightMapBox)
		t.compositeMapDirtyRect = t.compositeMapDirtyRect.Merge(ddr.DirtyRect)
		t.compositeMapDirtyLightmap = true
	}

	var newRect, newExtra Rect
	if resp.RemainingTypeMask != 0 {
		newRect = newRect.Merge(ddr.DirtyRect)
		newExtra = newExtra.Merge(ddr.LightmapExtraRect)
	}
	newMask := resp.RemainingTypeMask
	if t.derivedPendingMask != 0 {
		newRect = newRect.Merge(t.dirtyDerivedDataRect)
		newExtra = newExtra.Merge(t.dirtyLightmapFromNeighboursRect)
		newMask |= t.derivedPendingMask | t.dirtyDerivedMask
		t.dirtyDerivedDataRect = Rect{}
		t.dirtyLightmapFromNeighboursRect = Rect{}
		t.dirtyDerivedMask = 0
	}

	t.log.Debug("derived data job finished",
		zap.Uint8("remaining", resp.RemainingTypeMask),
		zap.Uint8("pending", t.derivedPendingMask))

	if newMask != 0 && !(newRect.IsNull() && newExtra.IsNull()) {
		t.updateDerivedDataImpl(newRect, newExtra, ddr.Synchronous, newMask)
		return
	}
	t.derivedPendingMask = 0
	t.updateCompositeMap()
}
