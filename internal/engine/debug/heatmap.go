// Package debug renders overdraw readbacks as images for inspection.
package debug

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/bmp"
)

// Ramp maps a normalised overdraw depth in [0, 1] to a colour. Stops are
// blended in HCL space so steps look perceptually even.
type Ramp struct {
	stops []colorful.Color
}

// DefaultRamp runs from deep blue through green and yellow to red.
func DefaultRamp() Ramp {
	hex := []string{"#1a237e", "#00897b", "#c0ca33", "#ffb300", "#d50000"}
	stops := make([]colorful.Color, len(hex))
	for i, h := range hex {
		c, err := colorful.Hex(h)
		if err != nil {
			panic(err)
		}
		stops[i] = c
	}
	return Ramp{stops: stops}
}

// At returns the colour at t, clamped to [0, 1].
func (r Ramp) At(t float64) color.RGBA {
	switch {
	case t <= 0:
		return rgba(r.stops[0])
	case t >= 1:
		return rgba(r.stops[len(r.stops)-1])
	}
	seg := t * float64(len(r.stops)-1)
	i := int(seg)
	c := r.stops[i].BlendHcl(r.stops[i+1], seg-float64(i)).Clamped()
	return rgba(c)
}

func rgba(c colorful.Color) color.RGBA {
	red, green, blue := c.RGB255()
	return color.RGBA{R: red, G: green, B: blue, A: 255}
}

// Heatmap colours a single-channel readback. level is the amount one
// fragment adds; pixels never touched stay black. pixels are bottom-up, as
// OpenGL returns them, and the image is flipped to top-down.
func Heatmap(pixels []byte, width, height, level int, ramp Ramp) (*image.RGBA, error) {
	if len(pixels) != width*height {
		return nil, fmt.Errorf("pixel data size mismatch: expected %d, got %d", width*height, len(pixels))
	}
	if level < 1 {
		return nil, fmt.Errorf("fragment level %d", level)
	}

	maxDepth := float64(255 / level)
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	black := color.RGBA{A: 255}
	for y := 0; y < height; y++ {
		row := pixels[(height-1-y)*width:]
		for x := 0; x < width; x++ {
			p := row[x]
			if p == 0 {
				img.SetRGBA(x, y, black)
				continue
			}
			depth := float64(p) / float64(level)
			img.SetRGBA(x, y, ramp.At((depth-1)/max(maxDepth-1, 1)))
		}
	}
	return img, nil
}

// Save encodes img as PNG or BMP, chosen by the extension of path, creating
// the parent directory if needed.
func Save(path string, img image.Image) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output dir: %w", err)
		}
	}

	var encode func(*os.File, image.Image) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		encode = func(f *os.File, img image.Image) error { return png.Encode(f, img) }
	case ".bmp":
		encode = func(f *os.File, img image.Image) error { return bmp.Encode(f, img) }
	default:
		return fmt.Errorf("unsupported image format %q", filepath.Ext(path))
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	if err := encode(file, img); err != nil {
		file.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return file.Close()
}
