package terrain

import (
	"testing"
)

func TestHeightDeltas_FlatTerrain(t *testing.T) {
	tr := newTestTerrain(t, 65, 17, 33, constant(12))
	tr.RootNode().Walk(func(n *QuadTreeNode) bool {
		for i := 0; i < n.LodCount(); i++ {
			if d := n.LodLevel(i).MaxHeightDelta; d != 0 {
				t.Errorf("depth %d level %d: MaxHeightDelta = %v, want 0", n.Depth(), i, d)
			}
		}
		return true
	})
	for i, d := range tr.DeltaData() {
		if d != 0 {
			t.Fatalf("delta %d = %v, want 0", i, d)
		}
	}
}

func TestHeightDeltas_Spike(t *testing.T) {
	spike := func(x, y int) float32 {
		if x == 1 && y == 1 {
			return 10
		}
		return 0
	}
	tr := newTestTerrain(t, 17, 9, 17, spike)

	if got := tr.HeightDeltaAt(1, 1); got != -10 {
		t.Errorf("HeightDeltaAt(1,1) = %v, want -10", got)
	}
	if got := tr.HeightDeltaAt(3, 3); got != 0 {
		t.Errorf("HeightDeltaAt(3,3) = %v, want 0", got)
	}

	root := tr.RootNode()
	if got := root.LodLevel(0).MaxHeightDelta; got != 10 {
		t.Errorf("level 0 MaxHeightDelta = %v, want 10", got)
	}
	if got := root.LodLevel(1).MaxHeightDelta; got < 10*deltaMargin-1e-4 {
		t.Errorf("level 1 MaxHeightDelta = %v, want at least %v", got, 10*deltaMargin)
	}
}

func TestHeightDeltas_Monotonic(t *testing.T) {
	tr := newTestTerrain(t, 129, 17, 33, bumpy)
	tr.RootNode().Walk(func(n *QuadTreeNode) bool {
		for i := 0; i+1 < n.LodCount(); i++ {
			fine, coarse := n.LodLevel(i).MaxHeightDelta, n.LodLevel(i+1).MaxHeightDelta
			if coarse < fine*deltaMargin-1e-4 {
				t.Errorf("depth %d: level %d delta %v not above level %d delta %v",
					n.Depth(), i+1, coarse, i, fine)
			}
		}
		if !n.IsLeaf() {
			c := n.ChildWithMaxHeightDelta()
			if c == nil {
				t.Fatalf("depth %d: no child with max height delta", n.Depth())
			}
			childMax := c.LodLevel(c.LodCount() - 1).MaxHeightDelta
			for i := 0; i < 4; i++ {
				o := n.Child(i)
				if d := o.LodLevel(o.LodCount() - 1).MaxHeightDelta; d > childMax {
					t.Errorf("depth %d: child %d delta %v above chosen max %v", n.Depth(), i, d, childMax)
				}
			}
			if own := n.LodLevel(0).MaxHeightDelta; own < childMax*deltaMargin-1e-4 {
				t.Errorf("depth %d: delta %v not above children %v", n.Depth(), own, childMax)
			}
		}
		return true
	})
}

func TestHeightDeltas_PartialRecalc(t *testing.T) {
	tr := newTestTerrain(t, 65, 17, 33, nil)
	tr.SetHeightAtPoint(5, 5, 40)
	updated := tr.CalculateHeightDeltas(NewRect(5, 5, 6, 6))
	if !updated.Contains(5, 5) {
		t.Errorf("updated rect %v does not contain the edit", updated)
	}
	if updated.Width() <= 1 {
		t.Errorf("updated rect %v was not widened", updated)
	}

	leaf := tr.RootNode().Child(0)
	if leaf.LodLevel(0).MaxHeightDelta != 0 {
		t.Error("live delta changed before FinalizeHeightDeltas")
	}
	tr.FinalizeHeightDeltas(updated)
	if leaf.LodLevel(0).MaxHeightDelta == 0 {
		t.Error("live delta still zero after FinalizeHeightDeltas")
	}
	if other := tr.RootNode().Child(3); other.LodLevel(0).MaxHeightDelta != 0 {
		t.Errorf("untouched quadrant delta = %v, want 0", other.LodLevel(0).MaxHeightDelta)
	}
}

func TestLODLevelWhenVertexEliminated(t *testing.T) {
	tr := newTestTerrain(t, 65, 17, 33, nil)
	tests := []struct{ x, y, want int }{
		{0, 0, 3},
		{4, 0, 3},
		{2, 0, 2},
		{1, 0, 1},
		{4, 1, 1},
		{64, 64, 3},
	}
	for _, tt := range tests {
		if got := tr.LODLevelWhenVertexEliminated(tt.x, tt.y); got != tt.want {
			t.Errorf("LODLevelWhenVertexEliminated(%d,%d) = %d, want %d", tt.x, tt.y, got, tt.want)
		}
	}
}
