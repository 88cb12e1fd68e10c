package assets

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/bmp"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func TestManager_Priority(t *testing.T) {
	low, high := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(low, "a.txt"), "low")
	writeFile(t, filepath.Join(low, "b.txt"), "only low")
	writeFile(t, filepath.Join(high, "a.txt"), "high")

	m := NewManager(low)
	m.AddDir(high)

	tests := []struct{ name, want string }{
		{"a.txt", "high"},
		{"b.txt", "only low"},
	}
	for _, tt := range tests {
		data, err := m.Load(tt.name)
		if err != nil {
			t.Fatalf("Load(%s) failed: %v", tt.name, err)
		}
		if string(data) != tt.want {
			t.Errorf("Load(%s) = %q, want %q", tt.name, data, tt.want)
		}
	}

	if m.Exists("missing.txt") {
		t.Error("Exists() = true for a missing file")
	}
	if _, err := m.Open("missing.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open() error = %v, want %v", err, ErrNotFound)
	}
}

func TestManager_Cache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.txt")
	writeFile(t, path, "one")

	m := NewManager(dir)
	if _, err := m.Load("c.txt"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	writeFile(t, path, "two")
	data, _ := m.Load("c.txt")
	if string(data) != "one" {
		t.Errorf("cached Load() = %q, want one", data)
	}
	if hits, misses := m.cache.Stats(); hits != 1 || misses != 1 {
		t.Errorf("cache stats = %d hits %d misses, want 1/1", hits, misses)
	}

	w, err := m.Create("c.txt")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	io.WriteString(w, "three")
	w.Close()
	data, _ = m.Load("c.txt")
	if string(data) != "three" {
		t.Errorf("Load() after Create = %q, want three", data)
	}
}

func TestManager_CreateWritesHighest(t *testing.T) {
	low, high := t.TempDir(), t.TempDir()
	m := NewManager(low, high)
	w, err := m.Create(filepath.Join("sub", "n.txt"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	w.Close()
	if _, err := os.Stat(filepath.Join(high, "sub", "n.txt")); err != nil {
		t.Errorf("file not created in the highest priority dir: %v", err)
	}

	if _, err := NewManager().Create("x"); err == nil {
		t.Error("expected error creating with no directories")
	}
}

func TestManager_FetchLocal(t *testing.T) {
	src := filepath.Join(t.TempDir(), "remote.mtrn")
	writeFile(t, src, "terrain bytes")

	m := NewManager(t.TempDir())
	p, err := m.Fetch(context.Background(), src, "maps/local.mtrn")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "terrain bytes" {
		t.Errorf("fetched %q", data)
	}
	if !m.Exists("maps/local.mtrn") {
		t.Error("fetched file does not resolve")
	}
}

func encodePNG(t *testing.T, img image.Image) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	return &buf
}

func TestDecodeHeightmap_Gray16(t *testing.T) {
	img := image.NewGray16(image.Rect(0, 0, 3, 3))
	img.SetGray16(0, 0, color.Gray16{Y: 0xffff}) // north-west
	img.SetGray16(2, 2, color.Gray16{Y: 1})      // south-east

	size, h, err := DecodeHeightmap(encodePNG(t, img), 100, -5)
	if err != nil {
		t.Fatalf("DecodeHeightmap failed: %v", err)
	}
	if size != 3 || len(h) != 9 {
		t.Fatalf("size %d with %d heights", size, len(h))
	}
	if h[2*3+0] != 95 {
		t.Errorf("north-west height = %v, want 95", h[6])
	}
	if got, want := h[0*3+2], float32(1)/0xffff*100-5; got != want {
		t.Errorf("south-east height = %v, want %v (16-bit precision)", got, want)
	}
	if h[4] != -5 {
		t.Errorf("centre height = %v, want -5", h[4])
	}
}

func TestDecodeHeightmap_BMP(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	img.SetGray(1, 0, color.Gray{Y: 255})
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, img); err != nil {
		t.Fatalf("bmp.Encode failed: %v", err)
	}
	_, h, err := DecodeHeightmap(&buf, 1, 0)
	if err != nil {
		t.Fatalf("DecodeHeightmap failed: %v", err)
	}
	if h[1*2+1] != 1 || h[0] != 0 {
		t.Errorf("heights = %v", h)
	}
}

func TestDecodeHeightmap_Errors(t *testing.T) {
	wide := image.NewGray(image.Rect(0, 0, 4, 2))
	if _, _, err := DecodeHeightmap(encodePNG(t, wide), 1, 0); !errors.Is(err, ErrNotSquare) {
		t.Errorf("DecodeHeightmap() error = %v, want %v", err, ErrNotSquare)
	}
	if _, _, err := DecodeHeightmap(bytes.NewReader([]byte("not an image")), 1, 0); err == nil {
		t.Error("expected error for garbage input")
	}
}
