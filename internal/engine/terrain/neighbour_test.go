package terrain

import (
	"testing"

	"github.com/Faultbox/midgard-terrain/pkg/math"
)

func TestGetNeighbourIndex(t *testing.T) {
	tests := []struct {
		x, y int
		want NeighbourIndex
	}{
		{1, 0, NeighbourEast},
		{1, 1, NeighbourNorthEast},
		{0, 1, NeighbourNorth},
		{-1, 1, NeighbourNorthWest},
		{-1, 0, NeighbourWest},
		{-1, -1, NeighbourSouthWest},
		{0, -1, NeighbourSouth},
		{1, -1, NeighbourSouthEast},
		{0, 0, NeighbourNorth},
		{5, -9, NeighbourSouthEast},
	}
	for _, tt := range tests {
		if got := GetNeighbourIndex(tt.x, tt.y); got != tt.want {
			t.Errorf("GetNeighbourIndex(%d,%d) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestNeighbourIndex_Opposite(t *testing.T) {
	pairs := map[NeighbourIndex]NeighbourIndex{
		NeighbourEast:      NeighbourWest,
		NeighbourNorthEast: NeighbourSouthWest,
		NeighbourNorth:     NeighbourSouth,
		NeighbourNorthWest: NeighbourSouthEast,
	}
	for a, b := range pairs {
		if a.Opposite() != b || b.Opposite() != a {
			t.Errorf("%v and %v are not opposites", a, b)
		}
	}
}

func TestEdgeRect(t *testing.T) {
	tr := newTestTerrain(t, 17, 17, 17, nil)
	tests := []struct {
		i    NeighbourIndex
		want Rect
	}{
		{NeighbourEast, NewRect(15, 0, 17, 17)},
		{NeighbourWest, NewRect(0, 0, 2, 17)},
		{NeighbourNorth, NewRect(0, 15, 17, 17)},
		{NeighbourSouth, NewRect(0, 0, 17, 2)},
		{NeighbourNorthEast, NewRect(15, 15, 17, 17)},
		{NeighbourSouthWest, NewRect(0, 0, 2, 2)},
	}
	for _, tt := range tests {
		if got := tr.EdgeRect(tt.i, 2); got != tt.want {
			t.Errorf("EdgeRect(%v, 2) = %v, want %v", tt.i, got, tt.want)
		}
	}
	if got, want := tr.NeighbourEdgeRect(NeighbourEast, NewRect(16, 3, 17, 5)), NewRect(0, 3, 1, 5); got != want {
		t.Errorf("NeighbourEdgeRect(east) = %v, want %v", got, want)
	}
	if got, want := tr.NeighbourEdgeRect(NeighbourSouth, NewRect(2, 0, 4, 1)), NewRect(2, 16, 4, 17); got != want {
		t.Errorf("NeighbourEdgeRect(south) = %v, want %v", got, want)
	}
}

func TestNeighbourPointOverflow(t *testing.T) {
	tr := newTestTerrain(t, 17, 17, 17, nil)
	tests := []struct {
		x, y   int
		idx    NeighbourIndex
		nx, ny int
	}{
		{17, 5, NeighbourEast, 1, 5},
		{-1, 5, NeighbourWest, 15, 5},
		{5, 17, NeighbourNorth, 5, 1},
		{5, -2, NeighbourSouth, 5, 14},
		{-1, -1, NeighbourSouthWest, 15, 15},
		{18, 17, NeighbourNorthEast, 2, 1},
	}
	for _, tt := range tests {
		idx, nx, ny := tr.NeighbourPointOverflow(tt.x, tt.y)
		if idx != tt.idx || nx != tt.nx || ny != tt.ny {
			t.Errorf("NeighbourPointOverflow(%d,%d) = %v (%d,%d), want %v (%d,%d)",
				tt.x, tt.y, idx, nx, ny, tt.idx, tt.nx, tt.ny)
		}
	}
}

// newPair builds two 33 terrains side by side, west at height 0 and east at 10.
func newPair(t *testing.T) (west, east *Terrain) {
	t.Helper()
	west = newTestTerrain(t, 33, 17, 33, nil)
	east = New(nil, testOptions(), nil, nil)
	d := testImport(33, 17, 33, constant(10))
	d.Pos = math.Vec3{X: d.WorldSize}
	if err := east.Prepare(&d); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	west.Update(true)
	east.Update(true)
	return west, east
}

func checkSharedEdge(t *testing.T, west, east *Terrain) {
	t.Helper()
	for y := 0; y < 33; y++ {
		if w, e := west.GetHeightAtPoint(32, y), east.GetHeightAtPoint(0, y); w != e {
			t.Fatalf("edge row %d: west %v, east %v", y, w, e)
		}
	}
}

func TestSetNeighbour_Links(t *testing.T) {
	west, east := newPair(t)
	west.SetNeighbour(NeighbourEast, east, false, true)
	if west.Neighbour(NeighbourEast) != east || east.Neighbour(NeighbourWest) != west {
		t.Fatal("SetNeighbour did not link both terrains")
	}

	other := newTestTerrain(t, 17, 17, 17, nil)
	west.SetNeighbour(NeighbourNorth, other, false, true)
	if west.Neighbour(NeighbourNorth) != nil {
		t.Error("a neighbour of a different size was accepted")
	}

	west.SetNeighbour(NeighbourEast, nil, false, true)
	if east.Neighbour(NeighbourWest) != nil {
		t.Error("unlinking did not clear the other side")
	}
}

func TestSetNeighbour_RecalculateMatchesEdge(t *testing.T) {
	west, east := newPair(t)
	west.SetNeighbour(NeighbourEast, east, true, true)
	checkSharedEdge(t, west, east)
	if west.IsDerivedDataUpdateInProgress() || east.IsDerivedDataUpdateInProgress() {
		t.Error("derived data still in progress after a synchronous reconcile")
	}
}

func TestNeighbour_EditPropagates(t *testing.T) {
	west, east := newPair(t)
	west.SetNeighbour(NeighbourEast, east, true, true)

	west.SetHeightAtPoint(32, 5, 20)
	west.Update(true)
	if got := east.GetHeightAtPoint(0, 5); got != 20 {
		t.Errorf("east edge height = %v, want 20", got)
	}
	checkSharedEdge(t, west, east)

	before := east.GetHeightAtPoint(1, 20)
	west.SetHeightAtPoint(10, 20, 50)
	west.Update(true)
	if got := east.GetHeightAtPoint(1, 20); got != before {
		t.Errorf("an interior edit changed the neighbour: %v -> %v", before, got)
	}
}

func TestNeighbour_NormalsReadAcrossEdge(t *testing.T) {
	west, east := newPair(t)
	west.SetNeighbour(NeighbourEast, east, true, true)
	// east rises away from the shared edge
	for y := 0; y < 33; y++ {
		east.SetHeightAtPoint(1, y, 30)
	}
	east.Update(true)

	n := west.NormalAtPoint(32, 16)
	if n.X >= 0 {
		t.Errorf("west edge normal = %v, want it tilted away from the rise", n)
	}
}

func TestDestroy_UnlinksNeighbours(t *testing.T) {
	west, east := newPair(t)
	west.SetNeighbour(NeighbourEast, east, false, true)
	east.Destroy()
	if west.Neighbour(NeighbourEast) != nil {
		t.Error("destroyed terrain is still a neighbour")
	}
	if err := east.Load(); err != ErrDestroyed {
		t.Errorf("Load() after Destroy = %v, want %v", err, ErrDestroyed)
	}
}
