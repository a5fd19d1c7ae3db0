// Package config handles experiment configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
)

// ErrInvalid reports a configuration value that cannot be used.
var ErrInvalid = errors.New("invalid config")

// Config holds all experiment settings.
type Config struct {
	Data    DataConfig    `yaml:"data"`
	Cluster ClusterConfig `yaml:"cluster"`
	Refine  RefineConfig  `yaml:"refine"`
	Canvas  CanvasConfig  `yaml:"canvas"`
	Render  RenderConfig  `yaml:"render"`
	Output  OutputConfig  `yaml:"output"`
	Logging LoggingConfig `yaml:"logging"`
}

// DataConfig locates the animated mesh and the viewpoints.
// Files live in <root>/<character>/<animation>/.
type DataConfig struct {
	Root         string `yaml:"root"`
	Character    string `yaml:"character"`
	Animation    string `yaml:"animation"`
	FaceFile     string `yaml:"face_file"`
	ViewFile     string `yaml:"view_file"`
	FramePattern string `yaml:"frame_pattern"` // printf pattern, 1-based
	Frames       int    `yaml:"frames"`
	Views        int    `yaml:"views"` // 0 = every viewpoint in the file
}

// Dir returns the animation directory.
func (d DataConfig) Dir() string {
	return filepath.Join(d.Root, d.Character, d.Animation)
}

// FacePath returns the path of the shared index file.
func (d DataConfig) FacePath() string {
	return filepath.Join(d.Dir(), d.FaceFile)
}

// ViewPath returns the path of the viewpoint file.
func (d DataConfig) ViewPath() string {
	return filepath.Join(d.Dir(), d.ViewFile)
}

// FramePaths returns the vertex file of every frame, in order.
func (d DataConfig) FramePaths() []string {
	paths := make([]string, d.Frames)
	for i := range paths {
		paths[i] = filepath.Join(d.Dir(), fmt.Sprintf(d.FramePattern, i+1))
	}
	return paths
}

// ClusterConfig holds the mesh clustering parameters.
type ClusterConfig struct {
	CacheSize      int     `yaml:"cache_size"`
	Alpha          float32 `yaml:"alpha"`
	ReferenceFrame int     `yaml:"reference_frame"` // 0-based
}

// RefineConfig holds the k-means refinement parameters.
type RefineConfig struct {
	PickViews     []int  `yaml:"pick_views"` // one seed view per mean
	MaxIterations int    `yaml:"max_iterations"`
	Direction     string `yaml:"direction"` // front-to-back | back-to-front
}

// CanvasConfig describes the view grid rendered by the oracle.
type CanvasConfig struct {
	Cols       int     `yaml:"cols"`
	Rows       int     `yaml:"rows"`
	CellWidth  int     `yaml:"cell_width"`
	CellHeight int     `yaml:"cell_height"`
	FOV        float32 `yaml:"fov"` // degrees
	Near       float32 `yaml:"near"`
	Far        float32 `yaml:"far"`
}

// RenderConfig selects the oracle backend.
type RenderConfig struct {
	Backend       string `yaml:"backend"` // gl | soft
	Visible       bool   `yaml:"visible"` // show the GL window
	FragmentLevel int    `yaml:"fragment_level"`
}

// OutputConfig controls what the experiment writes.
type OutputConfig struct {
	Dir           string `yaml:"dir"`
	Heatmaps      bool   `yaml:"heatmaps"`
	HeatmapFormat string `yaml:"heatmap_format"` // png | bmp
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with the reference experiment's values.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			Root:         "VerticeFace",
			Character:    "Kachujin_G_Rosales",
			Animation:    "Crouch_Walk_Left",
			FaceFile:     "face.txt",
			ViewFile:     "newViewpoint3.txt",
			FramePattern: "frame%dv.txt",
			Frames:       30,
		},
		Cluster: ClusterConfig{
			CacheSize: 20,
			Alpha:     0.85,
		},
		Refine: RefineConfig{
			PickViews:     []int{148, 54, 17, 92, 45},
			MaxIterations: 10,
			Direction:     "front-to-back",
		},
		Canvas: CanvasConfig{
			Cols:       13,
			Rows:       13,
			CellWidth:  100,
			CellHeight: 100,
			FOV:        40,
			Near:       1,
			Far:        2000,
		},
		Render: RenderConfig{
			Backend:       "gl",
			FragmentLevel: 51,
		},
		Output: OutputConfig{
			Dir:           "out",
			HeatmapFormat: "png",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	switch {
	case c.Data.Frames < 1:
		return invalid("data.frames", c.Data.Frames)
	case c.Data.Views < 0:
		return invalid("data.views", c.Data.Views)
	case c.Cluster.CacheSize < 3:
		return invalid("cluster.cache_size", c.Cluster.CacheSize)
	case c.Cluster.Alpha < 0:
		return invalid("cluster.alpha", c.Cluster.Alpha)
	case c.Cluster.ReferenceFrame < 0 || c.Cluster.ReferenceFrame >= c.Data.Frames:
		return invalid("cluster.reference_frame", c.Cluster.ReferenceFrame)
	case len(c.Refine.PickViews) == 0:
		return invalid("refine.pick_views", c.Refine.PickViews)
	case c.Refine.Direction != "front-to-back" && c.Refine.Direction != "back-to-front":
		return invalid("refine.direction", c.Refine.Direction)
	case c.Canvas.Cols < 1 || c.Canvas.Rows < 1:
		return invalid("canvas grid", strconv.Itoa(c.Canvas.Cols)+"x"+strconv.Itoa(c.Canvas.Rows))
	case c.Canvas.CellWidth < 1 || c.Canvas.CellHeight < 1:
		return invalid("canvas cell", strconv.Itoa(c.Canvas.CellWidth)+"x"+strconv.Itoa(c.Canvas.CellHeight))
	case c.Canvas.FOV <= 0 || c.Canvas.FOV >= 180:
		return invalid("canvas.fov", c.Canvas.FOV)
	case c.Canvas.Near <= 0 || c.Canvas.Far <= c.Canvas.Near:
		return invalid("canvas near/far", fmt.Sprint(c.Canvas.Near, "/", c.Canvas.Far))
	case c.Render.Backend != "gl" && c.Render.Backend != "soft":
		return invalid("render.backend", c.Render.Backend)
	case c.Render.FragmentLevel < 1 || c.Render.FragmentLevel > 255:
		return invalid("render.fragment_level", c.Render.FragmentLevel)
	case c.Output.HeatmapFormat != "png" && c.Output.HeatmapFormat != "bmp":
		return invalid("output.heatmap_format", c.Output.HeatmapFormat)
	}
	for _, v := range c.Refine.PickViews {
		if v < 0 || (c.Data.Views > 0 && v >= c.Data.Views) {
			return invalid("refine.pick_views", c.Refine.PickViews)
		}
	}
	if c.Data.Views > c.Canvas.Cols*c.Canvas.Rows {
		return fmt.Errorf("%w: %d views do not fit a %dx%d canvas", ErrInvalid, c.Data.Views, c.Canvas.Cols, c.Canvas.Rows)
	}
	return nil
}

func invalid(key string, v any) error {
	return fmt.Errorf("%w: %s = %v", ErrInvalid, key, v)
}
