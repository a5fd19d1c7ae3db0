// Package oracle measures the overdraw of a draw order by rendering an
// animated mesh from many viewpoints at once. Every view owns one cell of a
// shared canvas; a pass draws the whole order once per view with additive
// blending and reads the canvas back.
package oracle

import (
	"errors"
	"fmt"

	"github.com/Faultbox/patchsort/internal/mesh"
	"github.com/Faultbox/patchsort/pkg/math"
)

// Oracle errors.
var (
	ErrFrame       = errors.New("frame out of range")
	ErrTooManyViews = errors.New("more views than canvas cells")
	ErrBackend     = errors.New("unknown oracle backend")
)

// Backend is an overdraw oracle. Measure satisfies refine.Oracle.
type Backend interface {
	Measure(frame int, order mesh.IndexBuffer) ([]float32, error)
	// Canvas returns the single-channel readback of the last pass, bottom
	// row first. It is overwritten by the next Measure.
	Canvas() []byte
	// Fragments returns the number of fragments that passed the depth test
	// during the last pass.
	Fragments() uint64
	Grid() Grid
	Close() error
}

// Options configure a backend.
type Options struct {
	Grid   Grid
	Camera Camera
	// Level is the colour value one fragment adds to a pixel.
	Level int
	// Visible shows the GL window while measuring.
	Visible bool
}

// DefaultOptions returns the 13x13 canvas of 100 px cells.
func DefaultOptions() Options {
	return Options{
		Grid:   Grid{Cols: 13, Rows: 13, CellWidth: 100, CellHeight: 100},
		Camera: DefaultCamera(),
		Level:  51,
	}
}

// Open creates the named backend ("gl" or "soft") for the given frames and
// viewpoints.
func Open(name string, frames [][]math.Vec3, views []math.Vec3, opts Options) (Backend, error) {
	switch name {
	case "soft":
		return NewSoftware(frames, views, opts)
	case "gl":
		return NewGL(frames, views, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrBackend, name)
	}
}

func checkFrame(frame int, frames [][]math.Vec3) error {
	if frame < 0 || frame >= len(frames) {
		return fmt.Errorf("%w: %d of %d", ErrFrame, frame, len(frames))
	}
	return nil
}
