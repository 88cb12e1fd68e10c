package terrain

import (
	"errors"
	"testing"
)

func TestCPUBufferAllocator_Limit(t *testing.T) {
	alloc := NewCPUBufferAllocator()
	alloc.Limit = 100
	tr := New(nil, testOptions(), nil, alloc)
	d := testImport(65, 17, 33, bumpy)
	if err := tr.Prepare(&d); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	err := tr.Load()
	if !errors.Is(err, ErrBufferAllocation) {
		t.Fatalf("Load() error = %v, want %v", err, ErrBufferAllocation)
	}
	if tr.IsLoaded() {
		t.Error("terrain loaded after a failed allocation")
	}
	if alloc.LiveVertices() != 0 {
		t.Errorf("LiveVertices() = %d after failed load, want 0", alloc.LiveVertices())
	}

	alloc.Limit = 0
	if err := tr.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !tr.IsLoaded() {
		t.Error("terrain not loaded")
	}
}

func TestCPUBufferAllocator_Pooling(t *testing.T) {
	alloc := NewCPUBufferAllocator()
	pos, delta, err := alloc.AllocateVertexBuffers(nil, 50)
	if err != nil {
		t.Fatalf("AllocateVertexBuffers failed: %v", err)
	}
	if pos.VertexCount() != 50 || delta.VertexCount() != 50 {
		t.Errorf("vertex counts %d/%d, want 50", pos.VertexCount(), delta.VertexCount())
	}
	alloc.FreeVertexBuffers(pos, delta)
	if alloc.LiveVertices() != 0 {
		t.Errorf("LiveVertices() = %d, want 0", alloc.LiveVertices())
	}
	pos2, _, err := alloc.AllocateVertexBuffers(nil, 50)
	if err != nil {
		t.Fatalf("AllocateVertexBuffers failed: %v", err)
	}
	if pos2 != pos {
		t.Error("freed buffer was not reused")
	}

	a := alloc.SharedIndexBuffer(17, 17, 1, 0, 0, 17*17, 1)
	b := alloc.SharedIndexBuffer(17, 17, 1, 0, 0, 17*17, 1)
	if a != b || alloc.NumSharedIndexBuffers() != 1 {
		t.Error("identical index buffers were not shared")
	}
	if a.IndexCount() != NumIndexesForBatchSize(17) {
		t.Errorf("IndexCount() = %d, want %d", a.IndexCount(), NumIndexesForBatchSize(17))
	}
}
