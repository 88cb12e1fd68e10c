package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sort"

	"github.com/Faultbox/midgard-terrain/internal/assets"
	"github.com/Faultbox/midgard-terrain/internal/config"
	"github.com/Faultbox/midgard-terrain/internal/engine/camera"
	"github.com/Faultbox/midgard-terrain/internal/engine/picking"
	"github.com/Faultbox/midgard-terrain/internal/engine/terrain"
	"github.com/Faultbox/midgard-terrain/internal/engine/terraingroup"
	"github.com/Faultbox/midgard-terrain/pkg/formats"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

func cmdNew(cfg *config.Config, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: terraintool new <dir> <cols> <rows> [height]")
	}
	n, err := parseInts(args[1:3])
	if err != nil {
		return err
	}
	cols, rows := n[0], n[1]
	if cols < 1 || rows < 1 {
		return fmt.Errorf("grid must be at least 1x1, got %dx%d", cols, rows)
	}
	height := cfg.Import.ConstantHeight
	if len(args) > 3 {
		h, err := parseFloats(args[3:4])
		if err != nil {
			return err
		}
		height = h[0]
	}

	ws, err := openWorkspace(cfg, args[0])
	if err != nil {
		return err
	}
	defer ws.close()

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			ws.group.DefineTerrainHeight(x, y, height)
		}
	}
	if err := ws.group.LoadAllTerrains(true); err != nil {
		return err
	}
	if err := ws.save(); err != nil {
		return err
	}
	fmt.Printf("Created %dx%d terrains of %d samples in %s\n", cols, rows, ws.group.Size(), args[0])
	return nil
}

func cmdImport(cfg *config.Config, args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("usage: terraintool import <dir> <x> <y> <heightmap>")
	}
	xy, err := parseInts(args[1:3])
	if err != nil {
		return err
	}

	ws, err := openWorkspace(cfg, args[0])
	if err != nil {
		return err
	}
	defer ws.close()

	src := assets.NewManager(append(slices.Clone(cfg.Assets.Dirs), args[0])...)
	r, err := src.Open(args[3])
	if err != nil {
		return err
	}
	d := ws.group.DefaultImportSettings()
	size, heights, err := assets.DecodeHeightmap(r, d.InputScale, d.InputBias)
	r.Close()
	if err != nil {
		return err
	}
	if size != ws.group.Size() {
		return fmt.Errorf("heightmap is %dx%d, group terrains are %dx%d", size, size, ws.group.Size(), ws.group.Size())
	}

	// neighbours load first so the imported terrain rewrites their shared edges
	x, y := xy[0], xy[1]
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if (dx == 0 && dy == 0) || ws.group.Slot(x+dx, y+dy) == nil {
				continue
			}
			if err := ws.group.LoadTerrain(x+dx, y+dy, true); err != nil {
				return err
			}
		}
	}
	ws.group.DefineTerrainFloat(x, y, heights, nil)
	if err := ws.group.LoadTerrain(x, y, true); err != nil {
		return err
	}
	if err := ws.save(); err != nil {
		return err
	}
	t := ws.group.Terrain(x, y)
	fmt.Printf("Imported %s into slot %d,%d (heights %.2f..%.2f)\n", args[3], x, y, t.MinHeight(), t.MaxHeight())
	return nil
}

func cmdInfo(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: terraintool info <file>")
	}
	d, err := formats.LoadTerrainFile(args[0])
	if err != nil {
		return err
	}

	align := terrain.Alignment(d.Alignment)
	fmt.Printf("File:       %s\n", args[0])
	fmt.Printf("Alignment:  %s\n", align)
	fmt.Printf("Size:       %d samples, %.2f world units\n", d.Size, d.WorldSize)
	fmt.Printf("Batches:    %d..%d\n", d.MinBatchSize, d.MaxBatchSize)
	fmt.Printf("Position:   %.2f %.2f %.2f\n", d.Position[0], d.Position[1], d.Position[2])
	if len(d.Heights) > 0 {
		fmt.Printf("Heights:    %.2f..%.2f\n", slices.Min(d.Heights), slices.Max(d.Heights))
	}
	fmt.Printf("LOD deltas: %d\n", len(d.NodeDeltas))
	fmt.Printf("Layers:     %d (blend map %d, %d textures)\n", len(d.Layers), d.BlendMapSize, len(d.BlendTextures))
	for i, l := range d.Layers {
		fmt.Printf("  %d  world size %-8.2f %v\n", i, l.WorldSize, l.TextureNames)
	}

	t := terrain.New(nil, cfg.ToGlobalOptions(), nil, nil)
	defer t.Destroy()
	if err := t.PrepareData(d); err != nil {
		return err
	}
	owners := 0
	t.RootNode().Walk(func(n *terrain.QuadTreeNode) bool {
		if n.OwnsVertexData() {
			owners++
		}
		return true
	})
	fmt.Printf("Quadtree:   depth %d, %d vertex data owners\n", t.TreeDepth(), owners)
	fmt.Printf("LOD ladder: %d levels, %d per leaf\n", t.NumLodLevels(), t.NumLodLevelsPerLeaf())
	for l := 0; l < t.NumLodLevels(); l++ {
		fmt.Printf("  %d  %d samples\n", l, t.ResolutionAtLod(l))
	}

	names := make([]string, 0, len(d.Derived))
	for name, m := range d.Derived {
		if m != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	fmt.Println("Derived maps:")
	if len(names) == 0 {
		fmt.Println("  (none)")
	}
	for _, name := range names {
		fmt.Printf("  %-14s %dx%d\n", name, d.Derived[name].Size, d.Derived[name].Size)
	}
	return nil
}

func cmdLod(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: terraintool lod <dir> [distance] [viewport-height]")
	}
	vals, err := parseFloats(args[1:])
	if err != nil {
		return err
	}

	ws, err := openWorkspace(cfg, args[0])
	if err != nil {
		return err
	}
	defer ws.close()
	if err := ws.group.LoadAllTerrains(true); err != nil {
		return err
	}

	terrains := ws.group.Terrains()
	if len(terrains) == 0 {
		return fmt.Errorf("no terrains defined in %s", args[0])
	}
	box := picking.NullAABB()
	for _, t := range terrains {
		box.MergeBox(t.WorldAABB())
	}

	cam := camera.NewOrbitCamera(ws.group.Alignment())
	cam.FitToBounds(box)
	if len(vals) > 0 {
		cam.Distance = vals[0]
	}
	viewport := 1080
	if len(vals) > 1 {
		viewport = int(vals[1])
	}
	ws.group.PreFindVisibleObjects(cam, viewport, 1, 0)

	p := cam.Position()
	fmt.Printf("Camera at %.1f %.1f %.1f, viewport %d px, max pixel error %.1f\n",
		p.X, p.Y, p.Z, viewport, ws.group.Options().MaxPixelError)
	fmt.Printf("%-10s %-8s %-8s %s\n", "SLOT", "NODES", "MAX LOD", "PER LOD")
	for _, s := range ws.group.Slots() {
		if s.Instance == nil || !s.Instance.IsLoaded() {
			continue
		}
		counts := make([]int, s.Instance.NumLodLevels())
		nodes := 0
		s.Instance.RootNode().Walk(func(n *terrain.QuadTreeNode) bool {
			if !n.IsRenderedAtCurrentLod() {
				return true
			}
			lod := n.CurrentLod() + n.BaseLod()
			if lod >= 0 && lod < len(counts) {
				counts[lod]++
			}
			nodes++
			return false
		})
		fmt.Printf("%-10s %-8d %-8d %v\n", fmt.Sprintf("%d,%d", s.X, s.Y), nodes, len(counts)-1, counts)
	}
	return nil
}

func cmdPick(cfg *config.Config, args []string) error {
	if len(args) < 7 {
		return fmt.Errorf("usage: terraintool pick <dir> <ox> <oy> <oz> <dx> <dy> <dz>")
	}
	v, err := parseFloats(args[1:7])
	if err != nil {
		return err
	}

	ws, err := openWorkspace(cfg, args[0])
	if err != nil {
		return err
	}
	defer ws.close()
	if err := ws.group.LoadAllTerrains(true); err != nil {
		return err
	}

	ray := picking.NewRay(math.Vec3{X: v[0], Y: v[1], Z: v[2]}, math.Vec3{X: v[3], Y: v[4], Z: v[5]})
	res := ws.group.RayIntersects(ray, 0)
	if !res.Hit {
		fmt.Println("No hit")
		return nil
	}
	sx, sy := ws.group.ConvertWorldPositionToTerrainSlot(res.Position)
	fmt.Printf("Hit slot %d,%d at %.3f %.3f %.3f (distance %.3f)\n",
		sx, sy, res.Position.X, res.Position.Y, res.Position.Z, ray.Origin.Distance(res.Position))
	return nil
}

func cmdHeight(cfg *config.Config, args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("usage: terraintool height <dir> <x> <y> <z>")
	}
	v, err := parseFloats(args[1:4])
	if err != nil {
		return err
	}

	ws, err := openWorkspace(cfg, args[0])
	if err != nil {
		return err
	}
	defer ws.close()

	pos := math.Vec3{X: v[0], Y: v[1], Z: v[2]}
	sx, sy := ws.group.ConvertWorldPositionToTerrainSlot(pos)
	if ws.group.Slot(sx, sy) == nil {
		return fmt.Errorf("%w: %d,%d", terraingroup.ErrUndefinedSlot, sx, sy)
	}
	if err := ws.group.LoadTerrain(sx, sy, true); err != nil {
		return err
	}
	h, _, ok := ws.group.HeightAtWorldPosition(pos)
	if !ok {
		return fmt.Errorf("slot %d,%d is not loaded", sx, sy)
	}
	fmt.Printf("Slot %d,%d height %.3f\n", sx, sy, h)
	return nil
}

func cmdFetch(cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: terraintool fetch <src> <name>")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	m := assets.NewManager(cfg.Assets.Dirs...)
	defer m.Close()
	path, err := m.Fetch(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Printf("Fetched %s -> %s\n", args[0], path)
	return nil
}

func cmdIndex(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: terraintool index <dir>")
	}
	ws, err := openWorkspace(cfg, args[0])
	if err != nil {
		return err
	}
	defer ws.close()
	if ws.index == nil {
		return fmt.Errorf("no slot index configured, set group.index_path")
	}

	n, err := ws.index.Rebuild(args[0], ws.group.FilenamePrefix(), ws.group.FilenameExtension())
	if err != nil {
		return err
	}
	records, err := ws.index.Slots()
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %d terrain files\n", n)
	fmt.Printf("%-10s %-28s %-10s %-10s %s\n", "SLOT", "FILE", "MIN", "MAX", "MODIFIED")
	for _, r := range records {
		fmt.Printf("%-10s %-28s %-10.2f %-10.2f %s\n",
			fmt.Sprintf("%d,%d", r.X, r.Y), r.Filename, r.MinHeight, r.MaxHeight, r.ModTime.Format("2006-01-02 15:04:05"))
	}
	return nil
}
