package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/internal/assets"
	"github.com/Faultbox/midgard-terrain/internal/config"
	"github.com/Faultbox/midgard-terrain/internal/engine/terraingroup"
	"github.com/Faultbox/midgard-terrain/internal/logger"
	"github.com/Faultbox/midgard-terrain/internal/workqueue"
	"github.com/Faultbox/midgard-terrain/pkg/formats"
	"github.com/Faultbox/midgard-terrain/pkg/math"
)

const definitionFile = "group.yaml"

// workspace is a directory holding a group definition and its terrain files.
type workspace struct {
	dir   string
	log   *zap.Logger
	queue *workqueue.Queue
	group *terraingroup.Group
	index *terraingroup.SlotIndex
}

// openWorkspace builds a group from cfg and, when dir already holds a
// definition, replaces its layout with the stored one.
func openWorkspace(cfg *config.Config, dir string) (*workspace, error) {
	imp, err := cfg.ToImportData()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	queue := workqueue.New(cfg.ToWorkQueueOptions())
	queue.Start()

	g := terraingroup.New(nil, queue, imp.Alignment, imp.Size, imp.WorldSize)
	g.SetOptions(cfg.ToGlobalOptions())
	g.SetFilenameConvention(cfg.Group.Prefix, cfg.Group.Extension)
	g.SetSaveOptions(formats.WriteOptions{Compress: cfg.Group.Compress})
	o := cfg.Group.Origin
	g.SetOrigin(math.Vec3{X: o[0], Y: o[1], Z: o[2]})
	g.SetFileSystem(assets.NewManager(append(slices.Clone(cfg.Assets.Dirs), dir)...))
	d := g.DefaultImportSettings()
	d.MaxBatchSize = imp.MaxBatchSize
	d.MinBatchSize = imp.MinBatchSize
	d.InputScale = imp.InputScale
	d.InputBias = imp.InputBias
	d.ConstantHeight = imp.ConstantHeight

	ws := &workspace{dir: dir, log: logger.Named("terraintool"), queue: queue, group: g}

	f, err := os.Open(filepath.Join(dir, definitionFile))
	switch {
	case err == nil:
		err = g.LoadGroupDefinition(f)
		f.Close()
		if err != nil {
			ws.close()
			return nil, err
		}
	case !errors.Is(err, fs.ErrNotExist):
		ws.close()
		return nil, err
	}

	if p := cfg.Group.IndexPath; p != "" {
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		ix, err := terraingroup.OpenIndex(p)
		if err != nil {
			ws.close()
			return nil, fmt.Errorf("opening slot index: %w", err)
		}
		ws.index = ix
		g.SetIndex(ix)
	}
	return ws, nil
}

// save finishes pending derived data, then writes modified terrains and the
// group definition.
func (ws *workspace) save() error {
	if err := ws.group.WaitForDerivedProcesses(context.Background()); err != nil {
		return err
	}
	if err := ws.group.SaveAllTerrains(true); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(ws.dir, definitionFile))
	if err != nil {
		return err
	}
	if err := ws.group.SaveGroupDefinition(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (ws *workspace) close() {
	ws.group.RemoveAllTerrains()
	ws.queue.Shutdown()
	if ws.index != nil {
		if err := ws.index.Close(); err != nil {
			ws.log.Warn("closing slot index", zap.Error(err))
		}
	}
}

func parseInts(args []string) ([]int, error) {
	out := make([]int, len(args))
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", a)
		}
		out[i] = v
	}
	return out, nil
}

func parseFloats(args []string) ([]float32, error) {
	out := make([]float32, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", a)
		}
		out[i] = float32(v)
	}
	return out, nil
}
