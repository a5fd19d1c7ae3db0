// Package main is the entry point for the overdraw experiment.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Faultbox/patchsort/internal/config"
	"github.com/Faultbox/patchsort/internal/experiment"
	"github.com/Faultbox/patchsort/internal/logger"
)

func main() {
	// Parse CLI flags first
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("=== overdraw ===",
		zap.String("character", cfg.Data.Character),
		zap.String("animation", cfg.Data.Animation),
		zap.String("backend", cfg.Render.Backend),
	)
	logger.Sugar.Debugf("Config: %+v", cfg)

	if err := run(cfg); err != nil {
		logger.Error("experiment failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	e, err := experiment.New(cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	sum, err := e.Run()
	if err != nil {
		return err
	}
	logger.Sugar.Infof("overdraw %.3f -> %.3f over %d frames x %d views (%d means, %d iterations)",
		sum.BaselineRatio, sum.MeanRatio, sum.Frames, sum.Views, sum.Means, sum.Iterations)
	return nil
}
