package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Cluster.CacheSize != 20 {
		t.Errorf("expected cache size 20, got %d", cfg.Cluster.CacheSize)
	}
	if cfg.Cluster.Alpha != 0.85 {
		t.Errorf("expected alpha 0.85, got %f", cfg.Cluster.Alpha)
	}
	if !slices.Equal(cfg.Refine.PickViews, []int{148, 54, 17, 92, 45}) {
		t.Errorf("unexpected pick views %v", cfg.Refine.PickViews)
	}
	if cfg.Canvas.Cols*cfg.Canvas.Rows != 169 {
		t.Errorf("expected a 169-cell canvas, got %dx%d", cfg.Canvas.Cols, cfg.Canvas.Rows)
	}
	if cfg.Render.Backend != "gl" || cfg.Render.FragmentLevel != 51 {
		t.Errorf("unexpected render defaults %+v", cfg.Render)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestDataPaths(t *testing.T) {
	d := DataConfig{
		Root:         "data",
		Character:    "hero",
		Animation:    "walk",
		FaceFile:     "face.txt",
		ViewFile:     "views.txt",
		FramePattern: "frame%dv.txt",
		Frames:       3,
	}
	if got, want := d.FacePath(), filepath.Join("data", "hero", "walk", "face.txt"); got != want {
		t.Errorf("FacePath = %s, want %s", got, want)
	}
	if got, want := d.ViewPath(), filepath.Join("data", "hero", "walk", "views.txt"); got != want {
		t.Errorf("ViewPath = %s, want %s", got, want)
	}
	frames := d.FramePaths()
	if len(frames) != 3 {
		t.Fatalf("got %d frame paths", len(frames))
	}
	if want := filepath.Join("data", "hero", "walk", "frame1v.txt"); frames[0] != want {
		t.Errorf("first frame = %s, want %s", frames[0], want)
	}
	if want := filepath.Join("data", "hero", "walk", "frame3v.txt"); frames[2] != want {
		t.Errorf("last frame = %s, want %s", frames[2], want)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no frames", func(c *Config) { c.Data.Frames = 0 }},
		{"small cache", func(c *Config) { c.Cluster.CacheSize = 2 }},
		{"negative alpha", func(c *Config) { c.Cluster.Alpha = -1 }},
		{"reference past end", func(c *Config) { c.Cluster.ReferenceFrame = 30 }},
		{"no pick views", func(c *Config) { c.Refine.PickViews = nil }},
		{"negative pick view", func(c *Config) { c.Refine.PickViews = []int{-1} }},
		{"pick view past views", func(c *Config) { c.Data.Views = 10; c.Refine.PickViews = []int{10} }},
		{"direction", func(c *Config) { c.Refine.Direction = "sideways" }},
		{"empty grid", func(c *Config) { c.Canvas.Cols = 0 }},
		{"empty cell", func(c *Config) { c.Canvas.CellHeight = 0 }},
		{"fov", func(c *Config) { c.Canvas.FOV = 180 }},
		{"near far", func(c *Config) { c.Canvas.Far = c.Canvas.Near }},
		{"backend", func(c *Config) { c.Render.Backend = "vulkan" }},
		{"fragment level", func(c *Config) { c.Render.FragmentLevel = 256 }},
		{"heatmap format", func(c *Config) { c.Output.HeatmapFormat = "gif" }},
		{"views exceed canvas", func(c *Config) { c.Data.Views = 170; c.Refine.PickViews = []int{0} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	yamlContent := `
data:
  root: /datasets/VerticeFace
  character: Maw_J_Laygo
  frames: 12
cluster:
  cache_size: 32
  alpha: 0.5
refine:
  pick_views: [1, 2]
  direction: back-to-front
render:
  backend: soft
logging:
  level: debug
  log_file: /tmp/overdraw.log
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Data.Root != "/datasets/VerticeFace" || cfg.Data.Character != "Maw_J_Laygo" || cfg.Data.Frames != 12 {
		t.Errorf("unexpected data config %+v", cfg.Data)
	}
	// Unset keys keep their defaults.
	if cfg.Data.Animation != "Crouch_Walk_Left" {
		t.Errorf("expected default animation, got %s", cfg.Data.Animation)
	}
	if cfg.Cluster.CacheSize != 32 || cfg.Cluster.Alpha != 0.5 {
		t.Errorf("unexpected cluster config %+v", cfg.Cluster)
	}
	if !slices.Equal(cfg.Refine.PickViews, []int{1, 2}) || cfg.Refine.Direction != "back-to-front" {
		t.Errorf("unexpected refine config %+v", cfg.Refine)
	}
	if cfg.Render.Backend != "soft" {
		t.Errorf("expected soft backend, got %s", cfg.Render.Backend)
	}
	if cfg.Logging.LogFile != "/tmp/overdraw.log" {
		t.Errorf("expected log file /tmp/overdraw.log, got %s", cfg.Logging.LogFile)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{"invalid yaml", "data: [unclosed"},
		{"unknown key", "cluster:\n  cache_sise: 10\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "bad.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if err := loadFromFile(Default(), path); err == nil {
				t.Error("expected error")
			}
		})
	}

	if err := loadFromFile(Default(), filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFromEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	cfg := Default()
	if err := loadFromFile(cfg, path); err != nil {
		t.Fatalf("empty file: %v", err)
	}
	if cfg.Cluster.CacheSize != 20 {
		t.Error("empty file changed defaults")
	}
}

func TestConfigDir(t *testing.T) {
	if ConfigDir() == "" {
		t.Error("ConfigDir returned empty string")
	}
}

func TestFindConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))

	if path := findConfigFile(); path != "" {
		t.Errorf("expected no config, found %s", path)
	}
	if err := os.WriteFile("config.yaml", []byte("render:\n  backend: soft\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if path := findConfigFile(); path == "" {
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
			name:  "debug flag",
			setup: func() { *flagDebug = true },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
				}
			},
			teardown: func() { *flagDebug = false },
		},
		{
			name:  "backend flag",
			setup: func() { *flagBackend = "soft" },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Render.Backend != "soft" {
					t.Errorf("expected soft backend, got %s", cfg.Render.Backend)
				}
			},
			teardown: func() { *flagBackend = "" },
		},
		{
			name: "dataset flags",
			setup: func() {
				*flagData = "/data"
				*flagCharacter = "Ortiz"
				*flagAnimation = "Jump"
				*flagFrames = 5
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Data.Dir() != filepath.Join("/data", "Ortiz", "Jump") {
					t.Errorf("unexpected dataset dir %s", cfg.Data.Dir())
				}
				if cfg.Data.Frames != 5 {
					t.Errorf("expected 5 frames, got %d", cfg.Data.Frames)
				}
			},
			teardown: func() {
				*flagData = ""
				*flagCharacter = ""
				*flagAnimation = ""
				*flagFrames = 0
			},
		},
		{
			name: "output flags",
			setup: func() {
				*flagOut = "/tmp/run1"
				*flagHeatmaps = true
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Output.Dir != "/tmp/run1" || !cfg.Output.Heatmaps {
					t.Errorf("unexpected output config %+v", cfg.Output)
				}
			},
			teardown: func() {
				*flagOut = ""
				*flagHeatmaps = false
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
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	yamlContent := `
data:
  frames: 8
render:
  backend: soft
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	*flagConfig = configPath
	*flagFrames = 4
	defer func() {
		*flagConfig = ""
		*flagFrames = 0
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// Frames come from the flag, the backend from the file.
	if cfg.Data.Frames != 4 {
		t.Errorf("expected 4 frames from flag, got %d", cfg.Data.Frames)
	}
	if cfg.Render.Backend != "soft" {
		t.Errorf("expected soft backend from file, got %s", cfg.Render.Backend)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("render:\n  backend: dx12\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); !errors.Is(err, ErrInvalid) {
		t.Errorf("LoadFile = %v, want ErrInvalid", err)
	}
}

func TestSaveTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Cluster.CacheSize = 24
	cfg.Refine.PickViews = []int{3, 7}
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if loaded.Cluster.CacheSize != 24 || !slices.Equal(loaded.Refine.PickViews, []int{3, 7}) {
		t.Errorf("saved config did not round trip: %+v %+v", loaded.Cluster, loaded.Refine)
	}
}
