package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"
)

func testTerrainData(layers int) *TerrainData {
	const size = 5
	d := &TerrainData{
		Alignment:    0,
		Size:         size,
		WorldSize:    40,
		MaxBatchSize: 5,
		MinBatchSize: 3,
		Position:     [3]float32{1, 2, 3},
		Heights:      make([]float32, size*size),
		Deltas:       make([]float32, size*size),
		NodeDeltas:   []float32{0.5, 1.5},
		Samplers:     []SamplerData{{Alias: "albedo_specular", Format: 4}, {Alias: "normal_height", Format: 4}},
		Elements:     []ElementData{{Source: 0, Semantic: 0, Start: 0, Count: 3}, {Source: 1, Semantic: 1, Start: 0, Count: 3}},
		BlendMapSize: 4,
		Derived: map[string]*DerivedMap{
			DerivedNormalMap: {Size: size, Data: bytes.Repeat([]byte{128, 255, 128}, size*size)},
			DerivedLightMap:  {Size: 8, Data: bytes.Repeat([]byte{200}, 64)},
		},
	}
	for i := range d.Heights {
		d.Heights[i] = float32(i) * 0.25
		d.Deltas[i] = -float32(i % 3)
	}
	for i := 0; i < layers; i++ {
		d.Layers = append(d.Layers, LayerData{WorldSize: float32(10 + i), TextureNames: []string{"diffuse", "normal"}})
	}
	for i := 0; i < BlendTextureCount(layers); i++ {
		d.BlendTextures = append(d.BlendTextures, bytes.Repeat([]byte{byte(i + 1)}, 4*4*4))
	}
	return d
}

func encode(t *testing.T, d *TerrainData, compress bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteTerrain(&buf, d, WriteOptions{Compress: compress}); err != nil {
		t.Fatalf("WriteTerrain failed: %v", err)
	}
	return buf.Bytes()
}

func checkTerrainData(t *testing.T, got, want *TerrainData) {
	t.Helper()
	if got.Size != want.Size || got.WorldSize != want.WorldSize || got.Position != want.Position ||
		got.MaxBatchSize != want.MaxBatchSize || got.MinBatchSize != want.MinBatchSize {
		t.Errorf("header = %d %v %v %d %d", got.Size, got.WorldSize, got.Position, got.MinBatchSize, got.MaxBatchSize)
	}
	for i := range want.Heights {
		if got.Heights[i] != want.Heights[i] || got.Deltas[i] != want.Deltas[i] {
			t.Fatalf("sample %d = %v/%v, want %v/%v", i, got.Heights[i], got.Deltas[i], want.Heights[i], want.Deltas[i])
		}
	}
	if len(got.NodeDeltas) != len(want.NodeDeltas) {
		t.Fatalf("expected %d node deltas, got %d", len(want.NodeDeltas), len(got.NodeDeltas))
	}
	if len(got.Samplers) != len(want.Samplers) || got.Samplers[1] != want.Samplers[1] {
		t.Errorf("samplers = %v", got.Samplers)
	}
	if len(got.Elements) != len(want.Elements) || got.Elements[1] != want.Elements[1] {
		t.Errorf("elements = %v", got.Elements)
	}
	if len(got.Layers) != len(want.Layers) {
		t.Fatalf("expected %d layers, got %d", len(want.Layers), len(got.Layers))
	}
	for i, l := range want.Layers {
		if got.Layers[i].WorldSize != l.WorldSize || got.Layers[i].TextureNames[1] != l.TextureNames[1] {
			t.Errorf("layer %d = %+v", i, got.Layers[i])
		}
	}
	if len(got.BlendTextures) != len(want.BlendTextures) {
		t.Fatalf("expected %d blend textures, got %d", len(want.BlendTextures), len(got.BlendTextures))
	}
	for i := range want.BlendTextures {
		if !bytes.Equal(got.BlendTextures[i], want.BlendTextures[i]) {
			t.Errorf("blend texture %d differs", i)
		}
	}
	if len(got.Derived) != len(want.Derived) {
		t.Errorf("expected %d derived maps, got %d", len(want.Derived), len(got.Derived))
	}
	for name, m := range want.Derived {
		g := got.Derived[name]
		if g == nil || g.Size != m.Size || !bytes.Equal(g.Data, m.Data) {
			t.Errorf("derived map %s differs", name)
		}
	}
}

func TestTerrain_RoundTrip(t *testing.T) {
	for _, layers := range []int{0, 1, 2, 6} {
		for _, compress := range []bool{false, true} {
			want := testTerrainData(layers)
			got, err := ParseTerrain(encode(t, want, compress))
			if err != nil {
				t.Fatalf("layers=%d compress=%v: ParseTerrain failed: %v", layers, compress, err)
			}
			checkTerrainData(t, got, want)
		}
	}
}

func TestTerrain_FileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.mtrn")
	want := testTerrainData(2)
	if err := SaveTerrainFile(path, want, WriteOptions{Compress: true}); err != nil {
		t.Fatalf("SaveTerrainFile failed: %v", err)
	}
	got, err := LoadTerrainFile(path)
	if err != nil {
		t.Fatalf("LoadTerrainFile failed: %v", err)
	}
	checkTerrainData(t, got, want)

	if _, err := LoadTerrainFile(filepath.Join(t.TempDir(), "missing.mtrn")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestTerrain_UnknownDerivedMapSkipped(t *testing.T) {
	d := testTerrainData(1)
	raw := encode(t, d, false)

	// splice an extra derived chunk from a newer writer after the known ones
	w := &ChunkWriter{}
	w.Begin(ChunkDerivedData, derivedChunkVersion)
	w.Str("heatmap")
	w.U16(2)
	w.Raw([]byte{1, 2, 3, 4})
	w.End(ChunkDerivedData)
	extra, _ := w.Bytes()

	tail := (len(d.Deltas) + len(d.NodeDeltas)) * 4
	cut := len(raw) - tail
	spliced := append(append(append([]byte(nil), raw[:cut]...), extra...), raw[cut:]...)
	// the outer chunk grew
	length := binary.LittleEndian.Uint32(spliced[headerSize+6:])
	binary.LittleEndian.PutUint32(spliced[headerSize+6:], length+uint32(len(extra)))

	got, err := ParseTerrain(spliced)
	if err != nil {
		t.Fatalf("ParseTerrain failed: %v", err)
	}
	if _, ok := got.Derived["heatmap"]; ok {
		t.Error("unknown derived map was kept")
	}
	checkTerrainData(t, got, d)
}

func TestParseTerrain_Errors(t *testing.T) {
	valid := encode(t, testTerrainData(1), false)

	badVersion := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint16(badVersion[4:], containerVersion+1)

	badZstd := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint16(badZstd[6:], flagZstd)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrTruncated},
		{"bad magic", append([]byte("GRAT"), valid[4:]...), ErrInvalidMagic},
		{"newer container", badVersion, ErrUnsupportedVersion},
		{"truncated", valid[:len(valid)-10], ErrTruncated},
		{"cut in heights", valid[:headerSize+chunkHeaderSize+20], ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseTerrain(tt.data); !errors.Is(err, tt.want) {
				t.Errorf("ParseTerrain() error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := ParseTerrain(badZstd); err == nil {
		t.Error("expected error for a payload flagged compressed but stored plain")
	}
}

func TestWriteTerrain_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		modify func(d *TerrainData)
		want   error
	}{
		{"short heights", func(d *TerrainData) { d.Heights = d.Heights[:3] }, ErrTruncated},
		{"short deltas", func(d *TerrainData) { d.Deltas = nil }, ErrTruncated},
		{"missing blend texture", func(d *TerrainData) { d.BlendTextures = nil }, ErrChunkMismatch},
		{"short blend texture", func(d *TerrainData) { d.BlendTextures[0] = d.BlendTextures[0][:5] }, ErrTruncated},
		{"layer texture count", func(d *TerrainData) { d.Layers[1].TextureNames = []string{"x"} }, ErrChunkMismatch},
		{"short derived map", func(d *TerrainData) { d.Derived[DerivedLightMap].Data = []byte{1} }, ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testTerrainData(2)
			tt.modify(d)
			var buf bytes.Buffer
			if err := WriteTerrain(&buf, d, WriteOptions{}); !errors.Is(err, tt.want) {
				t.Errorf("WriteTerrain() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBlendTextureCount(t *testing.T) {
	tests := []struct{ layers, want int }{{0, 0}, {1, 0}, {2, 1}, {5, 1}, {6, 2}, {9, 2}, {10, 3}}
	for _, tt := range tests {
		if got := BlendTextureCount(tt.layers); got != tt.want {
			t.Errorf("BlendTextureCount(%d) = %d, want %d", tt.layers, got, tt.want)
		}
	}
}

func TestIsTerrainFile(t *testing.T) {
	if !IsTerrainFile(encode(t, testTerrainData(0), true)) {
		t.Error("IsTerrainFile() = false for a written terrain")
	}
	if IsTerrainFile([]byte("GRA")) || IsTerrainFile([]byte("GRAT....")) {
		t.Error("IsTerrainFile() = true for foreign data")
	}
}
