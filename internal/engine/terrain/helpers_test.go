package terrain

import (
	"testing"

	"github.com/Faultbox/midgard-terrain/pkg/math"
)

type testCamera struct {
	pos  math.Vec3
	fovY float32
}

func (c *testCamera) Position() math.Vec3 { return c.pos }
func (c *testCamera) FovY() float32       { return c.fovY }
func (c *testCamera) LodBias() float32    { return 1 }

// testOptions keeps the derived maps tiny so tests stay fast.
func testOptions() *GlobalOptions {
	o := DefaultGlobalOptions()
	o.LightMapSize = 16
	o.CompositeMapSize = 16
	o.LayerBlendMapSize = 16
	return o
}

func testImport(size, minBatch, maxBatch int, height func(x, y int) float32) ImportData {
	d := DefaultImportData()
	d.Size = size
	d.WorldSize = float32(size-1) * 10
	d.MinBatchSize = minBatch
	d.MaxBatchSize = maxBatch
	if height != nil {
		d.InputFloat = make([]float32, size*size)
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				d.InputFloat[y*size+x] = height(x, y)
			}
		}
	}
	return d
}

func newTestTerrain(t *testing.T, size, minBatch, maxBatch int, height func(x, y int) float32) *Terrain {
	t.Helper()
	tr := New(nil, testOptions(), nil, nil)
	d := testImport(size, minBatch, maxBatch, height)
	if err := tr.Prepare(&d); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	return tr
}

// bumpy is a deterministic rough surface.
func bumpy(x, y int) float32 {
	return float32((x*7+y*13)%11) * 3
}

func constant(h float32) func(x, y int) float32 {
	return func(int, int) float32 { return h }
}
