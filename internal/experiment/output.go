package experiment

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/patchsort/internal/engine/debug"
	"github.com/Faultbox/patchsort/internal/logger"
	"github.com/Faultbox/patchsort/internal/mesh"
	"github.com/Faultbox/patchsort/internal/refine"
)

// Output file names inside the output directory.
const (
	AssignmentsFile = "assignments.txt"
	RatiosFile      = "ratios.txt"
	SummaryFile     = "summary.yaml"
	HeatmapDir      = "heatmaps"
)

// MeanFile returns the file name of mean k's draw order.
func MeanFile(k int) string {
	return "mean" + strconv.Itoa(k) + ".txt"
}

func (e *Experiment) write(res *refine.Result, sum *Summary) error {
	dir := e.cfg.Output.Dir
	if err := ensureDir(dir); err != nil {
		return err
	}

	for k, order := range res.State.Means {
		if err := mesh.SaveIndices(outPath(dir, MeanFile(k)), order); err != nil {
			return fmt.Errorf("writing mean %d: %w", k, err)
		}
	}
	if err := writeLines(outPath(dir, AssignmentsFile), res.State.Assignment, func(b []byte, k int) []byte {
		return strconv.AppendInt(b, int64(k), 10)
	}); err != nil {
		return err
	}
	if err := writeLines(outPath(dir, RatiosFile), res.State.Ratios, func(b []byte, r float32) []byte {
		return strconv.AppendFloat(b, float64(r), 'f', 6, 32)
	}); err != nil {
		return err
	}

	data, err := yaml.Marshal(sum)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath(dir, SummaryFile), data, 0644); err != nil {
		return err
	}

	if e.cfg.Output.Heatmaps {
		if err := e.writeHeatmaps(res.State.Means); err != nil {
			return err
		}
	}
	return nil
}

// writeLines writes a [frame][view] grid one value per line, frame-major.
func writeLines[T any](path string, grid [][]T, format func([]byte, T) []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	buf := make([]byte, 0, 32)
	for _, row := range grid {
		for _, v := range row {
			buf = append(format(buf[:0], v), '\n')
			if _, err := w.Write(buf); err != nil {
				f.Close()
				return err
			}
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeHeatmaps renders every mean on the reference frame and saves the
// canvas as a colour-coded image.
func (e *Experiment) writeHeatmaps(means []mesh.IndexBuffer) error {
	dir := outPath(e.cfg.Output.Dir, HeatmapDir)
	frame := e.cfg.Cluster.ReferenceFrame
	grid := e.oracle.Grid()
	w, h := grid.Size()
	ramp := debug.DefaultRamp()

	for k, order := range means {
		if _, err := e.oracle.Measure(frame, order); err != nil {
			return fmt.Errorf("heatmap of mean %d: %w", k, err)
		}
		img, err := debug.Heatmap(e.oracle.Canvas(), w, h, e.cfg.Render.FragmentLevel, ramp)
		if err != nil {
			return err
		}
		path := outPath(dir, "mean"+strconv.Itoa(k)+"."+e.cfg.Output.HeatmapFormat)
		if err := debug.Save(path, img); err != nil {
			return err
		}
		logger.Debug("heatmap written", zap.String("path", path), zap.Uint64("fragments", e.oracle.Fragments()))
	}
	return nil
}
