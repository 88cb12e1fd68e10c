package terraingroup

import (
	"testing"

	"github.com/Faultbox/midgard-terrain/internal/assets"
	"github.com/Faultbox/midgard-terrain/internal/engine/terrain"
	"github.com/Faultbox/midgard-terrain/internal/workqueue"
)

const (
	testSize      = 17
	testWorldSize = 160
)

// newTestGroup returns a 17-sample group writing into a temp directory.
func newTestGroup(t *testing.T, q terrain.WorkQueue) *Group {
	t.Helper()
	g := New(nil, q, terrain.AlignXZ, testSize, testWorldSize)
	o := terrain.DefaultGlobalOptions()
	o.LightMapSize = 16
	o.CompositeMapSize = 16
	o.LayerBlendMapSize = 16
	g.SetOptions(o)
	g.SetFileSystem(assets.NewManager(t.TempDir()))
	return g
}

func loadSync(t *testing.T, g *Group, x, y int) *terrain.Terrain {
	t.Helper()
	if err := g.LoadTerrain(x, y, true); err != nil {
		t.Fatalf("LoadTerrain(%d, %d) failed: %v", x, y, err)
	}
	tr := g.Terrain(x, y)
	if tr == nil {
		t.Fatalf("Terrain(%d, %d) = nil after a synchronous load", x, y)
	}
	return tr
}

func newQueue() *workqueue.Queue {
	return workqueue.New(workqueue.Options{})
}
