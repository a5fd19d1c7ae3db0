package oracle

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/Faultbox/patchsort/pkg/math"
)

// Grid lays views out on the canvas. View v occupies cell (v % Cols, v / Cols)
// with row 0 at the bottom, matching OpenGL window coordinates.
type Grid struct {
	Cols, Rows            int
	CellWidth, CellHeight int
}

// Cells returns the number of cells.
func (g Grid) Cells() int {
	return g.Cols * g.Rows
}

// Size returns the canvas size in pixels.
func (g Grid) Size() (width, height int) {
	return g.Cols * g.CellWidth, g.Rows * g.CellHeight
}

// Cell returns the column and row of view v.
func (g Grid) Cell(v int) (col, row int) {
	return v % g.Cols, v / g.Cols
}

// Center returns the normalised device coordinates of the centre of view v's
// cell.
func (g Grid) Center(v int) (x, y float32) {
	col, row := g.Cell(v)
	x = -1 + float32(2*col+1)/float32(g.Cols)
	y = -1 + float32(2*row+1)/float32(g.Rows)
	return x, y
}

// Camera is the projection shared by every view.
type Camera struct {
	FOV  float32 // vertical, degrees
	Near float32
	Far  float32
}

// DefaultCamera returns a 40 degree camera with clip planes at 1 and 2000.
func DefaultCamera() Camera {
	return Camera{FOV: 40, Near: 1, Far: 2000}
}

// Transforms returns one clip-space transform per view: the view looks from
// its position at the origin and the projected image is shrunk into the
// view's cell.
func Transforms(views []math.Vec3, g Grid, cam Camera) ([]math.Mat4, error) {
	if len(views) > g.Cells() {
		return nil, fmt.Errorf("%w: %d views, %dx%d grid", ErrTooManyViews, len(views), g.Cols, g.Rows)
	}
	aspect := float32(g.CellWidth) / float32(g.CellHeight)
	proj := math.Perspective(cam.FOV*math32.Pi/180, aspect, cam.Near, cam.Far)
	shrink := math.Scale(1/float32(g.Cols), 1/float32(g.Rows), 1)

	out := make([]math.Mat4, len(views))
	for v, eye := range views {
		cx, cy := g.Center(v)
		view := math.LookAt(eye, math.Vec3{}, math.Vec3{Y: 1})
		out[v] = math.Translate(cx, cy, 0).Mul(shrink).Mul(proj).Mul(view)
	}
	return out, nil
}
