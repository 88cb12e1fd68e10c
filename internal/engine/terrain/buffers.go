package terrain

import (
	"errors"
	"fmt"
	"sync"
)

// ErrBufferAllocation is returned when a vertex buffer cannot be created.
var ErrBufferAllocation = errors.New("vertex buffer allocation failed")

// VertexBuffer receives one vertex stream.
type VertexBuffer interface {
	VertexCount() int
	WritePositions(start int, v []PositionVertex)
	WriteDeltas(start int, v []DeltaVertex)
}

// IndexBuffer is a shared 16-bit triangle strip.
type IndexBuffer interface {
	IndexCount() int
	Indices() []uint16
}

// BufferAllocator creates and shares render buffers. Index buffers are
// deduplicated by the allocator.
type BufferAllocator interface {
	AllocateVertexBuffers(t *Terrain, numVertices int) (pos, delta VertexBuffer, err error)
	FreeVertexBuffers(pos, delta VertexBuffer)
	SharedIndexBuffer(batchSize, vdSize, inc, xoff, yoff, numSkirt, skirtSkip int) IndexBuffer
	FreeAllBuffers()
}

// CPUVertexBuffer keeps vertices in memory.
type CPUVertexBuffer struct {
	positions []PositionVertex
	deltas    []DeltaVertex
}

// VertexCount returns the buffer capacity.
func (b *CPUVertexBuffer) VertexCount() int { return max(len(b.positions), len(b.deltas)) }

// WritePositions copies v at start.
func (b *CPUVertexBuffer) WritePositions(start int, v []PositionVertex) {
	copy(b.positions[start:], v)
}

// WriteDeltas copies v at start.
func (b *CPUVertexBuffer) WriteDeltas(start int, v []DeltaVertex) {
	copy(b.deltas[start:], v)
}

// Positions returns the stored position stream.
func (b *CPUVertexBuffer) Positions() []PositionVertex { return b.positions }

// Deltas returns the stored morph stream.
func (b *CPUVertexBuffer) Deltas() []DeltaVertex { return b.deltas }

type cpuIndexBuffer struct {
	indices []uint16
}

func (b *cpuIndexBuffer) IndexCount() int   { return len(b.indices) }
func (b *cpuIndexBuffer) Indices() []uint16 { return b.indices }

type indexKey struct {
	batchSize, vdSize, inc, xoff, yoff, numSkirt, skirtSkip int
}

// CPUBufferAllocator is an in-memory allocator. Freed vertex buffers are
// pooled by size and reused.
type CPUBufferAllocator struct {
	mu        sync.Mutex
	posPool   map[int][]*CPUVertexBuffer
	deltaPool map[int][]*CPUVertexBuffer
	indexes   map[indexKey]*cpuIndexBuffer
	// Limit caps the number of live vertices, zero means unlimited.
	Limit int
	live  int
}

// NewCPUBufferAllocator returns an empty allocator.
func NewCPUBufferAllocator() *CPUBufferAllocator {
	return &CPUBufferAllocator{
		posPool:   make(map[int][]*CPUVertexBuffer),
		deltaPool: make(map[int][]*CPUVertexBuffer),
		indexes:   make(map[indexKey]*cpuIndexBuffer),
	}
}

// AllocateVertexBuffers returns a position and a delta buffer of n vertices.
func (a *CPUBufferAllocator) AllocateVertexBuffers(_ *Terrain, n int) (VertexBuffer, VertexBuffer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Limit > 0 && a.live+n > a.Limit {
		return nil, nil, fmt.Errorf("%w: %d vertices over limit %d", ErrBufferAllocation, a.live+n, a.Limit)
	}
	a.live += n
	pos := a.take(a.posPool, n)
	if pos == nil {
		pos = &CPUVertexBuffer{positions: make([]PositionVertex, n)}
	}
	delta := a.take(a.deltaPool, n)
	if delta == nil {
		delta = &CPUVertexBuffer{deltas: make([]DeltaVertex, n)}
	}
	return pos, delta, nil
}

func (a *CPUBufferAllocator) take(pool map[int][]*CPUVertexBuffer, n int) *CPUVertexBuffer {
	list := pool[n]
	if len(list) == 0 {
		return nil
	}
	b := list[len(list)-1]
	pool[n] = list[:len(list)-1]
	return b
}

// FreeVertexBuffers returns buffers to the pool.
func (a *CPUBufferAllocator) FreeVertexBuffers(pos, delta VertexBuffer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if b, ok := pos.(*CPUVertexBuffer); ok {
		n := len(b.positions)
		a.posPool[n] = append(a.posPool[n], b)
		a.live -= n
	}
	if b, ok := delta.(*CPUVertexBuffer); ok {
		n := len(b.deltas)
		a.deltaPool[n] = append(a.deltaPool[n], b)
	}
}

// SharedIndexBuffer returns the strip for the given layout, building it once.
func (a *CPUBufferAllocator) SharedIndexBuffer(batchSize, vdSize, inc, xoff, yoff, numSkirt, skirtSkip int) IndexBuffer {
	key := indexKey{batchSize, vdSize, inc, xoff, yoff, numSkirt, skirtSkip}
	a.mu.Lock()
	defer a.mu.Unlock()
	if b, ok := a.indexes[key]; ok {
		return b
	}
	idx := make([]uint16, 0, NumIndexesForBatchSize(batchSize))
	b := &cpuIndexBuffer{indices: PopulateIndexBuffer(idx, batchSize, vdSize, inc, xoff, yoff, numSkirt, skirtSkip)}
	a.indexes[key] = b
	return b
}

// NumSharedIndexBuffers returns how many distinct index buffers exist.
func (a *CPUBufferAllocator) NumSharedIndexBuffers() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.indexes)
}

// LiveVertices returns the number of allocated, unfreed vertices.
func (a *CPUBufferAllocator) LiveVertices() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// FreeAllBuffers drops pooled vertex buffers and shared index buffers.
func (a *CPUBufferAllocator) FreeAllBuffers() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.posPool)
	clear(a.deltaPool)
	clear(a.indexes)
}
