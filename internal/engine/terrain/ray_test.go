package terrain

import (
	"testing"

	"github.com/Faultbox/midgard-terrain/internal/engine/picking"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

func vecNear(a, b math.Vec3, eps float32) bool {
	return math.ApproxEqual(a.X, b.X, eps) && math.ApproxEqual(a.Y, b.Y, eps) && math.ApproxEqual(a.Z, b.Z, eps)
}

func TestRayIntersects_Vertical(t *testing.T) {
	tr := newTestTerrain(t, 33, 17, 33, constant(5))
	ray := picking.NewRay(math.Vec3{X: 13, Y: 100, Z: -27}, math.Vec3{Y: -1})
	p, hit := tr.RayIntersects(ray, false, 0)
	if !hit {
		t.Fatal("vertical ray missed the terrain")
	}
	if want := (math.Vec3{X: 13, Y: 5, Z: -27}); !vecNear(p, want, 1e-2) {
		t.Errorf("RayIntersects() = %v, want %v", p, want)
	}
}

func TestRayIntersects_Miss(t *testing.T) {
	tr := newTestTerrain(t, 33, 17, 33, bumpy)
	tests := []picking.Ray{
		picking.NewRay(math.Vec3{X: 1000, Y: 10, Z: 0}, math.Vec3{X: 1}),
		picking.NewRay(math.Vec3{Y: 500}, math.Vec3{Y: 1}),
		picking.NewRay(math.Vec3{X: -500, Y: 500}, math.Vec3{X: -1, Y: -1}),
	}
	for _, ray := range tests {
		if p, hit := tr.RayIntersects(ray, false, 0); hit {
			t.Errorf("ray %v hit at %v", ray, p)
		}
	}
}

func TestRayIntersects_OnSurface(t *testing.T) {
	tr := newTestTerrain(t, 65, 17, 33, bumpy)
	for _, o := range []math.Vec3{{X: -200, Y: 300, Z: 50}, {X: 120, Y: 80, Z: 100}, {X: 0, Y: 200, Z: -250}} {
		ray := picking.NewRay(o, math.Vec3{X: 0.3, Y: -1, Z: -0.2})
		p, hit := tr.RayIntersects(ray, false, 0)
		if !hit {
			t.Errorf("ray from %v missed", o)
			continue
		}
		if h := tr.GetHeightAtWorldPosition(p); !math.ApproxEqual(h, p.Y, 0.05) {
			t.Errorf("hit %v is off the surface height %v", p, h)
		}
	}
}

func TestRayIntersects_Cascade(t *testing.T) {
	west := newTestTerrain(t, 33, 17, 33, nil)
	east := New(nil, testOptions(), nil, nil)
	d := testImport(33, 17, 33, nil)
	d.Pos = math.Vec3{X: d.WorldSize}
	if err := east.Prepare(&d); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	west.SetNeighbour(NeighbourEast, east, false, true)

	// lands at x=250, inside the east terrain
	ray := picking.NewRay(math.Vec3{X: -150, Y: 10}, math.Vec3{X: 400, Y: -10})

	if _, hit := west.RayIntersects(ray, false, 0); hit {
		t.Error("ray hit without cascading")
	}
	p, hit := west.RayIntersects(ray, true, 0)
	if !hit {
		t.Fatal("cascading ray missed the east terrain")
	}
	if !vecNear(p, math.Vec3{X: 250}, 0.5) {
		t.Errorf("RayIntersects() = %v, want (250,0,0)", p)
	}
	if _, hit := west.RayIntersects(ray, true, 50); hit {
		t.Error("ray cascaded past its distance limit")
	}
}

func TestRaySelectNeighbour(t *testing.T) {
	centre := newTestTerrain(t, 17, 17, 17, constant(0))
	neighbours := map[NeighbourIndex]*Terrain{}
	for _, idx := range []NeighbourIndex{NeighbourEast, NeighbourWest, NeighbourNorth, NeighbourSouth} {
		n := newTestTerrain(t, 17, 17, 17, constant(0))
		centre.SetNeighbour(idx, n, false, false)
		neighbours[idx] = n
	}

	// terrain +Y runs along world -Z for X_Z
	tests := []struct {
		name string
		dir  math.Vec3
		want NeighbourIndex
	}{
		{"east", math.Vec3{X: 1}, NeighbourEast},
		{"north", math.Vec3{Z: -1}, NeighbourNorth},
		{"south", math.Vec3{Z: 1}, NeighbourSouth},
		{"north-east corner", math.Vec3{X: 1, Z: -1}, NeighbourEast},
		{"south-west corner", math.Vec3{X: -1, Z: 1}, NeighbourWest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ray := picking.NewRay(math.Vec3{Y: 10}, tt.dir)
			if got := centre.raySelectNeighbour(ray, 0); got != neighbours[tt.want] {
				t.Errorf("raySelectNeighbour(%v) = %p, want the %v neighbour", tt.dir, got, tt.want)
			}
		})
	}

	if got := centre.raySelectNeighbour(picking.NewRay(math.Vec3{Y: 10}, math.Vec3{Y: -1}), 0); got != nil {
		t.Errorf("vertical ray selected %p, want nil", got)
	}
}

func TestGetHeightAtTerrainPosition(t *testing.T) {
	slope := func(x, y int) float32 { return float32(x) * 2 }
	tr := newTestTerrain(t, 17, 17, 17, slope)
	tests := []struct{ x, y, want float32 }{
		{0, 0, 0},
		{1, 1, 32},
		{0.5, 0.25, 16},
		{0.53125, 0.7, 17},
	}
	for _, tt := range tests {
		if got := tr.GetHeightAtTerrainPosition(tt.x, tt.y); !math.ApproxEqual(got, tt.want, 1e-3) {
			t.Errorf("GetHeightAtTerrainPosition(%v,%v) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestConvertPosition_RoundTrip(t *testing.T) {
	for _, align := range []Alignment{AlignXZ, AlignXY, AlignYZ} {
		tr := New(nil, testOptions(), nil, nil)
		d := testImport(17, 17, 17, bumpy)
		d.Alignment = align
		d.Pos = math.Vec3{X: 10, Y: -20, Z: 30}
		if err := tr.Prepare(&d); err != nil {
			t.Fatalf("Prepare failed: %v", err)
		}
		ts := math.Vec3{X: 0.25, Y: 0.75, Z: 12}
		ws := tr.GetPosition(ts)
		if back := tr.GetTerrainPosition(ws); !vecNear(back, ts, 1e-4) {
			t.Errorf("%v: terrain %v -> world %v -> terrain %v", align, ts, ws, back)
		}
		up := tr.GetVector(math.UnitZ)
		if up.Component(upAxis(align)) != 1 {
			t.Errorf("%v: up vector %v", align, up)
		}
	}
}
