package formats

import (
	"errors"
	"testing"
)

func TestChunkID_Tag(t *testing.T) {
	id := ChunkID("TERR")
	if got := ChunkTag(id); got != "TERR" {
		t.Errorf("ChunkTag(ChunkID(TERR)) = %q", got)
	}
	if ChunkID("TERR") == ChunkID("TDDA") {
		t.Error("different tags share an id")
	}
}

func TestChunkWriter_Nested(t *testing.T) {
	outer, inner := ChunkID("OUTR"), ChunkID("INNR")
	w := &ChunkWriter{}
	w.Begin(outer, 3)
	w.U8(7)
	w.Begin(inner, 1)
	w.Str("hello")
	w.F32s([]float32{1.5, -2})
	if err := w.End(inner); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	w.U16(0xBEEF)
	if err := w.End(outer); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	data, err := w.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}

	r := NewChunkReader(data)
	h := r.Begin(outer, 3)
	if h.Version != 3 || int(h.Length) != len(data)-chunkHeaderSize {
		t.Errorf("outer header = %+v", h)
	}
	if v := r.U8("byte"); v != 7 {
		t.Errorf("U8() = %d, want 7", v)
	}
	if id, ok := r.PeekID(); !ok || id != inner {
		t.Errorf("PeekID() = %s, %v", ChunkTag(id), ok)
	}
	r.Begin(inner, 1)
	if s := r.Str("string"); s != "hello" {
		t.Errorf("Str() = %q, want hello", s)
	}
	if f := r.F32s(2, "floats"); len(f) != 2 || f[0] != 1.5 || f[1] != -2 {
		t.Errorf("F32s() = %v", f)
	}
	if r.Remaining() != 0 {
		t.Errorf("Remaining() = %d in inner chunk, want 0", r.Remaining())
	}
	r.End()
	if v := r.U16("word"); v != 0xBEEF {
		t.Errorf("U16() = %#x, want 0xbeef", v)
	}
	r.End()
	if r.Err() != nil {
		t.Fatalf("reader error: %v", r.Err())
	}
}

func TestChunkReader_EndSkipsUnread(t *testing.T) {
	a, b := ChunkID("AAAA"), ChunkID("BBBB")
	w := &ChunkWriter{}
	w.Begin(a, 1)
	w.U32(1)
	w.U32(2)
	w.End(a)
	w.Begin(b, 1)
	w.U8(9)
	w.End(b)
	data, _ := w.Bytes()

	r := NewChunkReader(data)
	r.Begin(a, 1)
	r.U32("first")
	r.End()
	r.Begin(b, 1)
	if v := r.U8("b"); v != 9 {
		t.Errorf("U8() = %d after skipping, want 9", v)
	}
	if r.Err() != nil {
		t.Errorf("reader error: %v", r.Err())
	}
}

func TestChunkWriter_Mismatch(t *testing.T) {
	w := &ChunkWriter{}
	if err := w.End(ChunkTerrain); !errors.Is(err, ErrChunkMismatch) {
		t.Errorf("End() with nothing open = %v, want %v", err, ErrChunkMismatch)
	}
	w.Begin(ChunkTerrain, 1)
	w.Begin(ChunkLayerDecl, 1)
	if err := w.End(ChunkTerrain); !errors.Is(err, ErrChunkMismatch) {
		t.Errorf("End() of the outer chunk = %v, want %v", err, ErrChunkMismatch)
	}
	if _, err := w.Bytes(); !errors.Is(err, ErrChunkMismatch) {
		t.Errorf("Bytes() with open chunks = %v, want %v", err, ErrChunkMismatch)
	}
}

func TestChunkReader_Errors(t *testing.T) {
	w := &ChunkWriter{}
	w.Begin(ChunkLayerDecl, 2)
	w.U8(1)
	w.End(ChunkLayerDecl)
	data, _ := w.Bytes()

	tests := []struct {
		name string
		read func(r *ChunkReader)
		want error
	}{
		{"wrong id", func(r *ChunkReader) { r.Begin(ChunkTerrain, 2) }, ErrChunkMismatch},
		{"newer version", func(r *ChunkReader) { r.Begin(ChunkLayerDecl, 1) }, ErrUnsupportedVersion},
		{"past end", func(r *ChunkReader) { r.Begin(ChunkLayerDecl, 2); r.U32("word") }, ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewChunkReader(data)
			tt.read(r)
			if !errors.Is(r.Err(), tt.want) {
				t.Errorf("Err() = %v, want %v", r.Err(), tt.want)
			}
			// the first error sticks
			if v := r.U8("after"); v != 0 || !errors.Is(r.Err(), tt.want) {
				t.Errorf("read after error = %d, %v", v, r.Err())
			}
		})
	}

	short := NewChunkReader(data[:len(data)-1])
	short.Begin(ChunkLayerDecl, 2)
	if !errors.Is(short.Err(), ErrTruncated) {
		t.Errorf("Begin() on a cut chunk = %v, want %v", short.Err(), ErrTruncated)
	}
}
