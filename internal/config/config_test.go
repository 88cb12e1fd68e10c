package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Faultbox/midgard-terrain/internal/engine/terrain"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Test terrain defaults
	if cfg.Terrain.MaxPixelError != 3 {
		t.Errorf("expected max pixel error 3, got %f", cfg.Terrain.MaxPixelError)
	}
	if cfg.Terrain.SkirtSize != 30 {
		t.Errorf("expected skirt size 30, got %f", cfg.Terrain.SkirtSize)
	}
	if !cfg.Terrain.MorphEnabled {
		t.Error("expected morphing to be enabled by default")
	}
	if cfg.Terrain.CompositeMapUpdateDelay != 2*time.Second {
		t.Errorf("expected composite delay 2s, got %v", cfg.Terrain.CompositeMapUpdateDelay)
	}

	// Test import defaults
	if cfg.Import.Alignment != "X_Z" {
		t.Errorf("expected alignment X_Z, got %s", cfg.Import.Alignment)
	}
	if cfg.Import.Size != 1025 {
		t.Errorf("expected size 1025, got %d", cfg.Import.Size)
	}
	if cfg.Import.MaxBatchSize != 65 || cfg.Import.MinBatchSize != 17 {
		t.Errorf("expected batch sizes 17..65, got %d..%d", cfg.Import.MinBatchSize, cfg.Import.MaxBatchSize)
	}

	// Test group defaults
	if cfg.Group.Prefix != "terrain" || cfg.Group.Extension != "mtrn" {
		t.Errorf("expected terrain_*.mtrn, got %s_*.%s", cfg.Group.Prefix, cfg.Group.Extension)
	}

	// Test logging defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogFile != "" {
		t.Errorf("expected empty log file, got %s", cfg.Logging.LogFile)
	}
	if cfg.Logging.MaxSizeMB != 50 || cfg.Logging.MaxBackups != 3 || cfg.Logging.MaxAgeDays != 7 || !cfg.Logging.Compress {
		t.Errorf("expected rotation 50MB/3/7d compressed, got %+v", cfg.Logging)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
terrain:
  max_pixel_error: 8
  skirt_size: 12.5
  light_map_direction: [0, -1, 0]
  morph_enabled: false
  composite_map_update_delay: 500ms

import:
  alignment: X_Y
  size: 513
  world_size: 2048
  max_batch_size: 33
  min_batch_size: 9
  input_scale: 600

group:
  prefix: island
  extension: ter
  origin: [100, 0, -100]
  index_path: slots.db

workers:
  count: 4

logging:
  level: debug
  log_file: terrain.log
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Terrain.MaxPixelError != 8 {
		t.Errorf("expected max pixel error 8, got %f", cfg.Terrain.MaxPixelError)
	}
	if cfg.Terrain.MorphEnabled {
		t.Error("expected morphing to be disabled")
	}
	if cfg.Terrain.CompositeMapUpdateDelay != 500*time.Millisecond {
		t.Errorf("expected delay 500ms, got %v", cfg.Terrain.CompositeMapUpdateDelay)
	}
	if cfg.Import.Alignment != "X_Y" || cfg.Import.Size != 513 {
		t.Errorf("expected X_Y 513, got %s %d", cfg.Import.Alignment, cfg.Import.Size)
	}
	if cfg.Group.Origin != [3]float32{100, 0, -100} {
		t.Errorf("expected origin [100 0 -100], got %v", cfg.Group.Origin)
	}
	if cfg.Workers.Count != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.Workers.Count)
	}
	// fields missing from the file keep their defaults
	if cfg.Workers.Backlog != 1024 {
		t.Errorf("expected default backlog 1024, got %d", cfg.Workers.Backlog)
	}
	if cfg.Logging.LogFile != "terrain.log" {
		t.Errorf("expected log file 'terrain.log', got %s", cfg.Logging.LogFile)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}

	opts := cfg.ToGlobalOptions()
	if opts.LightMapDirection.Y != -1 {
		t.Errorf("expected light direction straight down, got %v", opts.LightMapDirection)
	}
	if opts.SkirtSize != 12.5 {
		t.Errorf("expected skirt size 12.5, got %f", opts.SkirtSize)
	}
	imp, err := cfg.ToImportData()
	if err != nil {
		t.Fatalf("ToImportData failed: %v", err)
	}
	if imp.Alignment != terrain.AlignXY || imp.InputScale != 600 {
		t.Errorf("expected X_Y with scale 600, got %v %f", imp.Alignment, imp.InputScale)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	// Create temporary config file with invalid YAML
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
import:
  size: not a number
  invalid syntax here
`

	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	err := loadFromFile(cfg, configPath)
	if err == nil {
		t.Error("expected error loading invalid YAML, got nil")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := Default()
	err := loadFromFile(cfg, "/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error loading missing file, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr error
	}{
		{
			name:   "schema rejects unknown alignment",
			modify: func(c *Config) { c.Import.Alignment = "XZ" },
		},
		{
			name:   "schema rejects negative workers",
			modify: func(c *Config) { c.Workers.Count = -1 },
		},
		{
			name:   "schema rejects log level",
			modify: func(c *Config) { c.Logging.Level = "verbose" },
		},
		{
			name:   "schema rejects empty prefix",
			modify: func(c *Config) { c.Group.Prefix = "" },
		},
		{
			name:   "schema rejects zero pixel error",
			modify: func(c *Config) { c.Terrain.MaxPixelError = 0 },
		},
		{
			name:    "size not 2^n+1",
			modify:  func(c *Config) { c.Import.Size = 1000 },
			wantErr: terrain.ErrInvalidSize,
		},
		{
			name: "min batch above max",
			modify: func(c *Config) {
				c.Import.MinBatchSize = 65
				c.Import.MaxBatchSize = 33
			},
			wantErr: terrain.ErrInvalidBatchSize,
		},
		{
			name:    "max batch above size",
			modify:  func(c *Config) { c.Import.Size = 33 },
			wantErr: terrain.ErrInvalidBatchSize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSaveTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Import.Size = 257
	cfg.Terrain.CompositeMapUpdateDelay = 750 * time.Millisecond
	cfg.Assets.Dirs = []string{"base", "mods"}
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	got := Default()
	if err := loadFromFile(got, path); err != nil {
		t.Fatalf("failed to reload config: %v", err)
	}
	if got.Import.Size != 257 {
		t.Errorf("expected size 257, got %d", got.Import.Size)
	}
	if got.Terrain.CompositeMapUpdateDelay != 750*time.Millisecond {
		t.Errorf("expected delay 750ms, got %v", got.Terrain.CompositeMapUpdateDelay)
	}
	if len(got.Assets.Dirs) != 2 || got.Assets.Dirs[1] != "mods" {
		t.Errorf("expected dirs [base mods], got %v", got.Assets.Dirs)
	}

	// an invalid config is never written
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	cfg.Import.Size = 100
	if err := cfg.SaveTo(bad); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
	if _, err := os.Stat(bad); !os.IsNotExist(err) {
		t.Errorf("expected no file for invalid config, stat returned %v", err)
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()

	// Actual path depends on OS
	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("ConfigDir should return absolute path, got %s", dir)
	}
}

func TestFindConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	chdir(t, t.TempDir())

	// No config file exists - should return empty
	path := findConfigFile()
	if path != "" {
		t.Errorf("expected empty path when no config exists, got %s", path)
	}

	if err := os.WriteFile("config.yaml", []byte("import:\n  size: 513\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	path = findConfigFile()
	if path == "" {
		t.Error("expected to find config.yaml in current directory")
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name     string
		setup    func()
		verify   func(*testing.T, *Config)
		teardown func()
	}{
		{
			name: "debug flag",
			setup: func() {
				*flagDebug = true
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
				}
			},
			teardown: func() {
				*flagDebug = false
			},
		},
		{
			name: "log file flag",
			setup: func() {
				*flagLogFile = "run.log"
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Logging.LogFile != "run.log" {
					t.Errorf("expected log file run.log, got %s", cfg.Logging.LogFile)
				}
			},
			teardown: func() {
				*flagLogFile = ""
			},
		},
		{
			name: "workers flag",
			setup: func() {
				*flagWorkers = 0
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Workers.Count != 0 {
					t.Errorf("expected inline queue, got %d workers", cfg.Workers.Count)
				}
			},
			teardown: func() {
				*flagWorkers = -1
			},
		},
		{
			name: "unset workers flag keeps config",
			setup: func() {},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Workers.Count != 1 {
					t.Errorf("expected default 1 worker, got %d", cfg.Workers.Count)
				}
			},
			teardown: func() {},
		},
		{
			name: "assets flag",
			setup: func() {
				*flagAssets = "base,patch"
			},
			verify: func(t *testing.T, cfg *Config) {
				if len(cfg.Assets.Dirs) != 2 || cfg.Assets.Dirs[0] != "base" || cfg.Assets.Dirs[1] != "patch" {
					t.Errorf("expected dirs [base patch], got %v", cfg.Assets.Dirs)
				}
			},
			teardown: func() {
				*flagAssets = ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer tt.teardown()

			cfg := Default()
			applyFlags(cfg)

			tt.verify(t, cfg)
		})
	}
}

func TestLoadPriority(t *testing.T) {
	chdir(t, t.TempDir())
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	yamlContent := `
workers:
  count: 3
  backlog: 64
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	// Set flag to override config file
	*flagConfig = configPath
	*flagWorkers = 8
	defer func() {
		*flagConfig = ""
		*flagWorkers = -1
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// Count should be from flag (8), not file (3)
	if cfg.Workers.Count != 8 {
		t.Errorf("expected 8 workers from flag, got %d", cfg.Workers.Count)
	}

	// Backlog should be from file since no flag override
	if cfg.Workers.Backlog != 64 {
		t.Errorf("expected backlog 64 from file, got %d", cfg.Workers.Backlog)
	}

	wq := cfg.ToWorkQueueOptions()
	if wq.Workers != 8 || wq.Backlog != 64 {
		t.Errorf("expected queue options 8/64, got %+v", wq)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	chdir(t, t.TempDir())
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("import:\n  size: 1000\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	*flagConfig = configPath
	defer func() { *flagConfig = "" }()

	if _, err := Load(); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

// chdir changes the working directory for the test and restores it on
// cleanup (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
