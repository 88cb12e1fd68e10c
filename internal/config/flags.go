package config

import (
	"flag"
	"strings"
)

var (
	flagConfig   = flag.String("config", "", "Path to config file")
	flagDebug    = flag.Bool("debug", false, "Enable debug logging")
	flagLogFile  = flag.String("log-file", "", "Write logs to this file as well")
	flagWorkers  = flag.Int("workers", -1, "Work queue goroutines (0 runs jobs inline)")
	flagAssets   = flag.String("assets", "", "Comma separated asset directories, lowest priority first")
	flagCompress = flag.Bool("compress", false, "Compress saved terrain files")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagLogFile != "" {
		cfg.Logging.LogFile = *flagLogFile
	}
	if *flagWorkers >= 0 {
		cfg.Workers.Count = *flagWorkers
	}
	if *flagAssets != "" {
		cfg.Assets.Dirs = strings.Split(*flagAssets, ",")
	}
	if *flagCompress {
		cfg.Group.Compress = true
	}
}
