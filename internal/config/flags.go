package config

import "flag"

var (
	flagConfig    = flag.String("config", "", "Path to config file")
	flagDebug     = flag.Bool("debug", false, "Enable debug logging")
	flagBackend   = flag.String("backend", "", "Oracle backend: gl or soft")
	flagData      = flag.String("data", "", "Dataset root directory")
	flagCharacter = flag.String("character", "", "Character directory")
	flagAnimation = flag.String("animation", "", "Animation directory")
	flagFrames    = flag.Int("frames", 0, "Number of animation frames")
	flagOut       = flag.String("out", "", "Output directory")
	flagHeatmaps  = flag.Bool("heatmaps", false, "Write per-mean overdraw heatmaps")
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
	if *flagBackend != "" {
		cfg.Render.Backend = *flagBackend
	}
	if *flagData != "" {
		cfg.Data.Root = *flagData
	}
	if *flagCharacter != "" {
		cfg.Data.Character = *flagCharacter
	}
	if *flagAnimation != "" {
		cfg.Data.Animation = *flagAnimation
	}
	if *flagFrames > 0 {
		cfg.Data.Frames = *flagFrames
	}
	if *flagOut != "" {
		cfg.Output.Dir = *flagOut
	}
	if *flagHeatmaps {
		cfg.Output.Heatmaps = true
	}
}
