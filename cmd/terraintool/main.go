// terraintool builds, inspects and queries paged terrain groups.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Faultbox/midgard-terrain/internal/config"
	"github.com/Faultbox/midgard-terrain/internal/logger"
)

func main() {
	flag.Usage = printUsage
	config.ParseFlags()
	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	command := args[0]
	args = args[1:]
	if command == "help" {
		printUsage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.InitWithFileConfig(cfg.Logging.Level, cfg.ToFileConfig(), true); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	switch command {
	case "new":
		err = cmdNew(cfg, args)
	case "import":
		err = cmdImport(cfg, args)
	case "info":
		err = cmdInfo(cfg, args)
	case "lod":
		err = cmdLod(cfg, args)
	case "pick":
		err = cmdPick(cfg, args)
	case "height":
		err = cmdHeight(cfg, args)
	case "fetch":
		err = cmdFetch(cfg, args)
	case "index":
		err = cmdIndex(cfg, args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		logger.Sync()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`terraintool - paged heightfield terrain utility

Usage:
  terraintool [flags] <command> [args]

Commands:
  new <dir> <cols> <rows> [height]        Create a grid of flat terrains
  import <dir> <x> <y> <heightmap>        Import a PNG or BMP heightmap into a slot
  info <file>                             Show terrain file information
  lod <dir> [distance] [viewport-height]  Report LOD selection for a camera over the group
  pick <dir> <ox> <oy> <oz> <dx> <dy> <dz> Cast a ray through the group
  height <dir> <x> <y> <z>                Sample the surface height under a world position
  fetch <src> <name>                      Download an asset (path, URL, s3::, gcs::, git::)
  index <dir>                             Rebuild the slot index from saved terrain files

Flags:
  --config <file>     Config file (default ./config.yaml or the user config dir)
  --debug             Debug logging
  --log-file <file>   Also log to a rotated file
  --workers <n>       Work queue goroutines, 0 runs jobs inline
  --assets <a,b>      Asset directories, lowest priority first
  --compress          Compress saved terrain files

Examples:
  terraintool new world 4 4 10
  terraintool import world 0 0 island.png
  terraintool info world/terrain_00000000.mtrn
  terraintool pick world 0 500 0 0.3 -1 0.2
  terraintool fetch https://example.com/maps/island.png island.png`)
}
