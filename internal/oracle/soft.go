package oracle

import (
	"fmt"

	"github.com/chewxy/math32"
	"go.uber.org/zap"

	"github.com/Faultbox/patchsort/internal/logger"
	"github.com/Faultbox/patchsort/internal/mesh"
	"github.com/Faultbox/patchsort/pkg/math"
)

// Software is a deterministic CPU rasterizer with the same pipeline state
// as the GL backend: depth test LESS against a depth buffer cleared to 1,
// back faces culled with counter-clockwise front faces, and additive
// blending of Level per fragment saturating at 255. Pixel centres sit at
// half-integer coordinates and edges follow the top-left rule.
type Software struct {
	grid       Grid
	level      int
	frames     [][]math.Vec3
	transforms []math.Mat4

	width, height int
	color         []byte
	depth         []float32
	clip          []math.Vec4
	fragments     uint64
}

// NewSoftware creates a software oracle.
func NewSoftware(frames [][]math.Vec3, views []math.Vec3, opts Options) (*Software, error) {
	if opts.Level < 1 || opts.Level > 255 {
		return nil, fmt.Errorf("oracle: fragment level %d", opts.Level)
	}
	transforms, err := Transforms(views, opts.Grid, opts.Camera)
	if err != nil {
		return nil, err
	}
	w, h := opts.Grid.Size()
	s := &Software{
		grid:       opts.Grid,
		level:      opts.Level,
		frames:     frames,
		transforms: transforms,
		width:      w,
		height:     h,
		color:      make([]byte, w*h),
		depth:      make([]float32, w*h),
	}
	logger.Named("oracle").Debug("software canvas ready",
		zap.Int("width", w),
		zap.Int("height", h),
		zap.Int("views", len(views)),
	)
	return s, nil
}

// Measure renders order with the positions of frame from every view and
// returns one overdraw ratio per view.
func (s *Software) Measure(frame int, order mesh.IndexBuffer) ([]float32, error) {
	if err := s.Render(frame, order); err != nil {
		return nil, err
	}
	return CellRatios(s.color, s.grid, s.level, len(s.transforms)), nil
}

// Render draws one pass into the canvas without computing ratios.
func (s *Software) Render(frame int, order mesh.IndexBuffer) error {
	if err := checkFrame(frame, s.frames); err != nil {
		return err
	}
	positions := s.frames[frame]
	if err := order.Validate(len(positions)); err != nil {
		return err
	}

	clear(s.color)
	for i := range s.depth {
		s.depth[i] = 1
	}
	s.fragments = 0

	if cap(s.clip) < len(positions) {
		s.clip = make([]math.Vec4, len(positions))
	}
	clip := s.clip[:len(positions)]

	for _, m := range s.transforms {
		for i, p := range positions {
			clip[i] = m.Project(p)
		}
		for f := 0; f < order.NumFaces(); f++ {
			idx := order.Face(f)
			s.triangle(clip[idx[0]], clip[idx[1]], clip[idx[2]])
		}
	}
	return nil
}

const (
	subBits  = 8 // sub-pixel precision of snapped vertices
	subHalf  = 1 << (subBits - 1)
	guardNDC = 16 // triangles reaching further outside the canvas are dropped
)

// vertex is a window-space vertex snapped to fixed point. Snapping makes the
// edge function of a shared edge exactly antisymmetric, so two triangles
// meeting along it never both cover a pixel.
type vertex struct {
	x, y int64   // window coordinates in 1/2^subBits pixels, y up
	z    float32 // depth in [0, 1]
}

func (s *Software) toWindow(c math.Vec4) (vertex, bool) {
	// Primitives crossing the eye plane are rejected rather than clipped;
	// viewpoints sit far outside the mesh.
	if c[3] <= 0 {
		return vertex{}, false
	}
	inv := 1 / c[3]
	nx, ny := c[0]*inv, c[1]*inv
	if math32.Abs(nx) > guardNDC || math32.Abs(ny) > guardNDC {
		return vertex{}, false
	}
	const scale = 1 << subBits
	return vertex{
		x: int64(math32.Round((nx + 1) * 0.5 * float32(s.width) * scale)),
		y: int64(math32.Round((ny + 1) * 0.5 * float32(s.height) * scale)),
		z: (c[2]*inv + 1) * 0.5,
	}, true
}

func (s *Software) triangle(c0, c1, c2 math.Vec4) {
	v0, ok0 := s.toWindow(c0)
	v1, ok1 := s.toWindow(c1)
	v2, ok2 := s.toWindow(c2)
	if !ok0 || !ok1 || !ok2 {
		return
	}

	area := edge(v0, v1, v2.x, v2.y)
	if area <= 0 {
		return // back-facing or degenerate
	}

	minX := max(0, int(min(v0.x, v1.x, v2.x)>>subBits))
	maxX := min(s.width-1, int(max(v0.x, v1.x, v2.x)>>subBits))
	minY := max(0, int(min(v0.y, v1.y, v2.y)>>subBits))
	maxY := min(s.height-1, int(max(v0.y, v1.y, v2.y)>>subBits))
	if minX > maxX || minY > maxY {
		return
	}

	b0 := topLeft(v1, v2)
	b1 := topLeft(v2, v0)
	b2 := topLeft(v0, v1)
	invArea := 1 / float32(area)
	add := byte(s.level)

	for y := minY; y <= maxY; y++ {
		py := int64(y)<<subBits + subHalf
		row := y * s.width
		for x := minX; x <= maxX; x++ {
			px := int64(x)<<subBits + subHalf
			w0 := edge(v1, v2, px, py)
			w1 := edge(v2, v0, px, py)
			w2 := edge(v0, v1, px, py)
			if !covers(w0, b0) || !covers(w1, b1) || !covers(w2, b2) {
				continue
			}

			z := (float32(w0)*v0.z + float32(w1)*v1.z + float32(w2)*v2.z) * invArea
			if z < 0 || z > 1 {
				continue
			}
			i := row + x
			if z >= s.depth[i] {
				continue
			}
			s.depth[i] = z
			s.fragments++
			if c := s.color[i]; c > 255-add {
				s.color[i] = 255
			} else {
				s.color[i] = c + add
			}
		}
	}
}

// edge is twice the signed area of (a, b, p); positive when p lies to the
// left of a->b with y up.
func edge(a, b vertex, px, py int64) int64 {
	return (b.x-a.x)*(py-a.y) - (b.y-a.y)*(px-a.x)
}

// topLeft reports whether a->b is a top or left edge of a counter-clockwise
// triangle in y-up coordinates.
func topLeft(a, b vertex) bool {
	dx, dy := b.x-a.x, b.y-a.y
	return dy < 0 || (dy == 0 && dx < 0)
}

func covers(w int64, owned bool) bool {
	return w > 0 || (w == 0 && owned)
}

// Canvas returns the last readback, bottom row first.
func (s *Software) Canvas() []byte { return s.color }

// Fragments returns the fragments that passed the depth test in the last pass.
func (s *Software) Fragments() uint64 { return s.fragments }

// Grid returns the canvas layout.
func (s *Software) Grid() Grid { return s.grid }

// Close releases nothing; it exists to satisfy Backend.
func (s *Software) Close() error { return nil }
