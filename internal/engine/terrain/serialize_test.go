package terrain

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Faultbox/midgard-terrain/pkg/formats"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

func newLayeredTerrain(t *testing.T) *Terrain {
	t.Helper()
	tr := newTestTerrain(t, 33, 17, 33, bumpy)
	if err := tr.AddLayer(0, 0, []string{"grass", "grass_n"}); err != nil {
		t.Fatalf("AddLayer failed: %v", err)
	}
	if err := tr.AddLayer(1, 25, []string{"rock", "rock_n"}); err != nil {
		t.Fatalf("AddLayer failed: %v", err)
	}
	tr.LayerBlendMap(1).SetBlendValue(3, 4, 0.5)
	tr.Update(true)
	return tr
}

func saveTerrain(t *testing.T, tr *Terrain, compress bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := tr.Save(&buf, formats.WriteOptions{Compress: compress}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	return buf.Bytes()
}

func nodeDeltas(tr *Terrain) []float32 {
	var out []float32
	tr.RootNode().Walk(func(n *QuadTreeNode) bool {
		for i := 0; i < n.LodCount(); i++ {
			out = append(out, n.LodLevel(i).MaxHeightDelta)
		}
		return true
	})
	return out
}

func TestSave_RoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		src := newLayeredTerrain(t)
		raw := saveTerrain(t, src, compress)
		if !formats.IsTerrainFile(raw) {
			t.Fatalf("compress=%v: saved data has no terrain magic", compress)
		}
		if src.IsModified() {
			t.Errorf("compress=%v: terrain still modified after Save", compress)
		}

		dst := New(nil, testOptions(), nil, nil)
		if err := dst.PrepareStream(bytes.NewReader(raw)); err != nil {
			t.Fatalf("compress=%v: PrepareStream failed: %v", compress, err)
		}

		if dst.Size() != 33 || dst.WorldSize() != src.WorldSize() || dst.MaxBatchSize() != 33 || dst.MinBatchSize() != 17 {
			t.Errorf("compress=%v: sizes %d/%v/%d/%d", compress, dst.Size(), dst.WorldSize(), dst.MinBatchSize(), dst.MaxBatchSize())
		}
		for i, h := range src.HeightData() {
			if dst.HeightData()[i] != h {
				t.Fatalf("compress=%v: height %d = %v, want %v", compress, i, dst.HeightData()[i], h)
			}
			if dst.DeltaData()[i] != src.DeltaData()[i] {
				t.Fatalf("compress=%v: delta %d = %v, want %v", compress, i, dst.DeltaData()[i], src.DeltaData()[i])
			}
		}
		want, got := nodeDeltas(src), nodeDeltas(dst)
		if len(got) != len(want) {
			t.Fatalf("compress=%v: %d node deltas, want %d", compress, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("compress=%v: node delta %d = %v, want %v", compress, i, got[i], want[i])
			}
		}

		if dst.LayerCount() != 2 || dst.LayerTextureName(1, 0) != "rock" || dst.LayerWorldSize(1) != 25 {
			t.Errorf("compress=%v: layers not restored: %d %q %v",
				compress, dst.LayerCount(), dst.LayerTextureName(1, 0), dst.LayerWorldSize(1))
		}
		if v := dst.LayerBlendMap(1).BlendValue(3, 4); !math.ApproxEqual(v, 0.5, 1.0/255) {
			t.Errorf("compress=%v: blend value = %v, want 0.5", compress, v)
		}
		if !bytes.Equal(dst.NormalMap().Data, src.NormalMap().Data) {
			t.Errorf("compress=%v: normal map differs", compress)
		}
		if !bytes.Equal(dst.LightMap().Data, src.LightMap().Data) {
			t.Errorf("compress=%v: light map differs", compress)
		}
		if !dst.DirtyDerivedDataRect().IsNull() {
			t.Errorf("compress=%v: stored maps left derived data dirty: %v", compress, dst.DirtyDerivedDataRect())
		}
		if dst.IsModified() || dst.IsHeightDataModified() {
			t.Errorf("compress=%v: loaded terrain reports modified", compress)
		}
	}
}

func TestSave_CompressedIsSmaller(t *testing.T) {
	tr := newLayeredTerrain(t)
	plain := saveTerrain(t, tr, false)
	packed := saveTerrain(t, tr, true)
	if len(packed) >= len(plain) {
		t.Errorf("compressed %d bytes, plain %d", len(packed), len(plain))
	}
}

func TestSave_NotPrepared(t *testing.T) {
	tr := New(nil, testOptions(), nil, nil)
	var buf bytes.Buffer
	if err := tr.Save(&buf, formats.WriteOptions{}); !errors.Is(err, ErrNotPrepared) {
		t.Errorf("Save() error = %v, want %v", err, ErrNotPrepared)
	}
}

func TestSave_RecomputesDeltasAfterEdit(t *testing.T) {
	tr := newTestTerrain(t, 33, 17, 33, nil)
	tr.SetHeightAtPoint(5, 5, 40)
	raw := saveTerrain(t, tr, false)

	d, err := formats.ParseTerrain(raw)
	if err != nil {
		t.Fatalf("ParseTerrain failed: %v", err)
	}
	if got := d.Deltas[5*33+5]; got != -40 {
		t.Errorf("stored delta at (5,5) = %v, want -40", got)
	}
}

func TestPrepareData_MissingMaps(t *testing.T) {
	src := newLayeredTerrain(t)
	d, err := formats.ParseTerrain(saveTerrain(t, src, false))
	if err != nil {
		t.Fatalf("ParseTerrain failed: %v", err)
	}
	delete(d.Derived, formats.DerivedNormalMap)
	delete(d.Derived, formats.DerivedLightMap)
	d.NodeDeltas = nil

	dst := New(nil, testOptions(), nil, nil)
	if err := dst.PrepareData(d); err != nil {
		t.Fatalf("PrepareData failed: %v", err)
	}
	if dst.DirtyDerivedDataRect().IsNull() {
		t.Fatal("missing maps did not mark derived data dirty")
	}
	want, got := nodeDeltas(src), nodeDeltas(dst)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("recomputed node delta %d = %v, want %v", i, got[i], want[i])
		}
	}

	dst.Update(true)
	if !bytes.Equal(dst.NormalMap().Data, src.NormalMap().Data) {
		t.Error("recomputed normal map differs")
	}
	if !bytes.Equal(dst.LightMap().Data, src.LightMap().Data) {
		t.Error("recomputed light map differs")
	}
}

func TestPrepareData_Invalid(t *testing.T) {
	src := newTestTerrain(t, 17, 17, 17, bumpy)
	d, err := formats.ParseTerrain(saveTerrain(t, src, false))
	if err != nil {
		t.Fatalf("ParseTerrain failed: %v", err)
	}

	short := *d
	short.Heights = short.Heights[:10]
	dst := New(nil, testOptions(), nil, nil)
	if err := dst.PrepareData(&short); !errors.Is(err, ErrInvalidHeightData) {
		t.Errorf("PrepareData() error = %v, want %v", err, ErrInvalidHeightData)
	}

	bad := *d
	bad.Size = 20
	if err := dst.PrepareData(&bad); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("PrepareData() error = %v, want %v", err, ErrInvalidSize)
	}
	if dst.IsPrepared() {
		t.Error("terrain prepared from invalid data")
	}

	if err := dst.PrepareStream(bytes.NewReader([]byte("JUNKJUNK"))); !errors.Is(err, formats.ErrInvalidMagic) {
		t.Errorf("PrepareStream() error = %v, want %v", err, formats.ErrInvalidMagic)
	}
}
