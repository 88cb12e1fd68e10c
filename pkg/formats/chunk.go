package formats

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// ChunkHeader precedes every chunk: id, version and payload length, all
// little-endian.
type ChunkHeader struct {
	ID      uint32
	Version uint16
	Length  uint32
}

const chunkHeaderSize = 4 + 2 + 4

// ChunkID packs a four character tag so that it reads as text in the file.
func ChunkID(tag string) uint32 {
	var b [4]byte
	copy(b[:], tag)
	return binary.LittleEndian.Uint32(b[:])
}

// ChunkTag is the inverse of ChunkID.
func ChunkTag(id uint32) string {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], id)
	return string(b[:])
}

// ChunkWriter builds a stream of nested chunks in memory. Lengths are
// patched when a chunk ends.
type ChunkWriter struct {
	buf  bytes.Buffer
	open []openChunk
}

type openChunk struct {
	id     uint32
	offset int
}

// Begin starts a chunk. Chunks nest until the matching End.
func (w *ChunkWriter) Begin(id uint32, version uint16) {
	w.open = append(w.open, openChunk{id: id, offset: w.buf.Len()})
	w.U32(id)
	w.U16(version)
	w.U32(0)
}

// End closes the innermost chunk, which must be id.
func (w *ChunkWriter) End(id uint32) error {
	if len(w.open) == 0 {
		return fmt.Errorf("%w: end of %s with no open chunk", ErrChunkMismatch, ChunkTag(id))
	}
	top := w.open[len(w.open)-1]
	if top.id != id {
		return fmt.Errorf("%w: end of %s inside %s", ErrChunkMismatch, ChunkTag(id), ChunkTag(top.id))
	}
	w.open = w.open[:len(w.open)-1]
	length := w.buf.Len() - top.offset - chunkHeaderSize
	binary.LittleEndian.PutUint32(w.buf.Bytes()[top.offset+6:], uint32(length))
	return nil
}

func (w *ChunkWriter) U8(v uint8) { w.buf.WriteByte(v) }

func (w *ChunkWriter) U16(v uint16) {
	w.buf.Write(binary.LittleEndian.AppendUint16(nil, v))
}

func (w *ChunkWriter) U32(v uint32) {
	w.buf.Write(binary.LittleEndian.AppendUint32(nil, v))
}

func (w *ChunkWriter) F32(v float32) { w.U32(math.Float32bits(v)) }

// F32s writes the values without a count.
func (w *ChunkWriter) F32s(v []float32) {
	b := make([]byte, 0, len(v)*4)
	for _, f := range v {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
	}
	w.buf.Write(b)
}

// Raw writes bytes without a count.
func (w *ChunkWriter) Raw(b []byte) { w.buf.Write(b) }

// Str writes a uint32 length followed by the bytes.
func (w *ChunkWriter) Str(s string) {
	w.U32(uint32(len(s)))
	w.buf.WriteString(s)
}

// Bytes returns the stream. Every chunk must be closed.
func (w *ChunkWriter) Bytes() ([]byte, error) {
	if len(w.open) > 0 {
		return nil, fmt.Errorf("%w: %s left open", ErrChunkMismatch, ChunkTag(w.open[len(w.open)-1].id))
	}
	return w.buf.Bytes(), nil
}

// ChunkReader walks a chunk stream. The first failure sticks: later reads
// return zero values and Err reports it.
type ChunkReader struct {
	data []byte
	pos  int
	ends []int
	err  error
}

// NewChunkReader reads chunks from data.
func NewChunkReader(data []byte) *ChunkReader {
	return &ChunkReader{data: data}
}

// Err returns the first error met.
func (r *ChunkReader) Err() error { return r.err }

func (r *ChunkReader) limit() int {
	if len(r.ends) > 0 {
		return r.ends[len(r.ends)-1]
	}
	return len(r.data)
}

// Remaining returns the unread bytes of the innermost chunk.
func (r *ChunkReader) Remaining() int { return r.limit() - r.pos }

func (r *ChunkReader) take(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > r.limit() {
		r.err = fmt.Errorf("%w: reading %s", ErrTruncated, what)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

// PeekID returns the id of the next chunk without consuming it.
func (r *ChunkReader) PeekID() (uint32, bool) {
	if r.err != nil || r.Remaining() < chunkHeaderSize {
		return 0, false
	}
	return binary.LittleEndian.Uint32(r.data[r.pos:]), true
}

// Begin enters the next chunk, which must be id with a version no newer
// than maxVersion.
func (r *ChunkReader) Begin(id uint32, maxVersion uint16) ChunkHeader {
	b := r.take(chunkHeaderSize, ChunkTag(id)+" header")
	if b == nil {
		return ChunkHeader{}
	}
	h := ChunkHeader{
		ID:      binary.LittleEndian.Uint32(b),
		Version: binary.LittleEndian.Uint16(b[4:]),
		Length:  binary.LittleEndian.Uint32(b[6:]),
	}
	switch {
	case h.ID != id:
		r.err = fmt.Errorf("%w: got %q, want %q", ErrChunkMismatch, ChunkTag(h.ID), ChunkTag(id))
	case h.Version > maxVersion:
		r.err = fmt.Errorf("%w: %s v%d", ErrUnsupportedVersion, ChunkTag(id), h.Version)
	case r.pos+int(h.Length) > r.limit():
		r.err = fmt.Errorf("%w: %s length %d", ErrTruncated, ChunkTag(id), h.Length)
	default:
		r.ends = append(r.ends, r.pos+int(h.Length))
	}
	return h
}

// End skips whatever is left of the innermost chunk.
func (r *ChunkReader) End() {
	if r.err != nil || len(r.ends) == 0 {
		return
	}
	r.pos = r.ends[len(r.ends)-1]
	r.ends = r.ends[:len(r.ends)-1]
}

func (r *ChunkReader) U8(what string) uint8 {
	b := r.take(1, what)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *ChunkReader) U16(what string) uint16 {
	b := r.take(2, what)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *ChunkReader) U32(what string) uint32 {
	b := r.take(4, what)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *ChunkReader) F32(what string) float32 {
	return math.Float32frombits(r.U32(what))
}

// F32s reads n values.
func (r *ChunkReader) F32s(n int, what string) []float32 {
	b := r.take(n*4, what)
	if b == nil {
		return nil
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// Raw reads n bytes into a new slice.
func (r *ChunkReader) Raw(n int, what string) []byte {
	b := r.take(n, what)
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// Str reads a uint32 length followed by the bytes.
func (r *ChunkReader) Str(what string) string {
	n := r.U32(what + " length")
	return string(r.take(int(n), what))
}
