package oracle

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/patchsort/internal/engine/framebuffer"
	"github.com/Faultbox/patchsort/internal/engine/shader"
	"github.com/Faultbox/patchsort/internal/engine/window"
	"github.com/Faultbox/patchsort/internal/logger"
	"github.com/Faultbox/patchsort/internal/mesh"
	"github.com/Faultbox/patchsort/pkg/math"
)

// ErrWindowClosed is returned by Measure once the user closes a visible
// measurement window.
var ErrWindowClosed = errors.New("measurement window closed")

const vertexShader = `#version 410 core
layout(location = 0) in vec3 aPosition;
layout(location = 1) in mat4 aTransform;

void main() {
	gl_Position = aTransform * vec4(aPosition, 1.0);
}
`

const fragmentShader = `#version 410 core
uniform float uLevel;
layout(location = 0) out float fragColor;

void main() {
	fragColor = uLevel;
}
`

// GL measures overdraw on the GPU. All views are drawn by one instanced
// call; each instance reads its cell transform from a per-instance mat4
// attribute. An occlusion query counts the fragments that pass the depth
// test. The order of operations in a pass is fixed: clear, draw, read the
// counter, read the pixels.
type GL struct {
	grid   Grid
	level  int
	frames [][]math.Vec3
	views  int

	win     *window.Window
	fb      *framebuffer.Framebuffer
	program uint32

	vao         uint32
	positionVBO uint32
	instanceVBO uint32
	ebo         uint32
	query       uint32

	pixels    []byte
	flat      []float32
	fragments uint64
	visible   bool
}

// NewGL opens a hidden window, creates the offscreen canvas and uploads the
// view transforms. It must be called from the main goroutine.
func NewGL(frames [][]math.Vec3, views []math.Vec3, opts Options) (*GL, error) {
	if opts.Level < 1 || opts.Level > 255 {
		return nil, fmt.Errorf("oracle: fragment level %d", opts.Level)
	}
	transforms, err := Transforms(views, opts.Grid, opts.Camera)
	if err != nil {
		return nil, err
	}
	w, h := opts.Grid.Size()

	win, err := window.New(window.Config{
		Title:   "overdraw",
		Width:   w,
		Height:  h,
		Visible: opts.Visible,
	})
	if err != nil {
		return nil, err
	}
	o := &GL{
		grid:    opts.Grid,
		level:   opts.Level,
		frames:  frames,
		views:   len(views),
		win:     win,
		pixels:  make([]byte, w*h),
		visible: opts.Visible,
	}

	if err := gl.Init(); err != nil {
		o.Close()
		return nil, fmt.Errorf("gl init: %w", err)
	}
	logger.Named("oracle").Info("opengl ready",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
	)

	if o.fb, err = framebuffer.New(int32(w), int32(h)); err != nil {
		o.Close()
		return nil, err
	}
	if err := o.setup(transforms); err != nil {
		o.Close()
		return nil, err
	}
	return o, nil
}

func (o *GL) setup(transforms []math.Mat4) error {
	var err error
	o.program, err = shader.CompileProgram(vertexShader, fragmentShader)
	if err != nil {
		return fmt.Errorf("overdraw shader: %w", err)
	}
	gl.UseProgram(o.program)
	levelLoc, err := shader.Uniform(o.program, "uLevel")
	if err != nil {
		return err
	}
	gl.Uniform1f(levelLoc, float32(o.level)/255)

	gl.GenVertexArrays(1, &o.vao)
	gl.BindVertexArray(o.vao)

	gl.GenBuffers(1, &o.positionVBO)
	gl.BindBuffer(gl.ARRAY_BUFFER, o.positionVBO)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointerWithOffset(0, 3, gl.FLOAT, false, 3*4, 0)

	gl.GenBuffers(1, &o.instanceVBO)
	gl.BindBuffer(gl.ARRAY_BUFFER, o.instanceVBO)
	stride := int32(unsafe.Sizeof(math.Mat4{}))
	gl.BufferData(gl.ARRAY_BUFFER, len(transforms)*int(stride), gl.Ptr(transforms), gl.STATIC_DRAW)
	for col := uint32(0); col < 4; col++ {
		loc := 1 + col
		gl.EnableVertexAttribArray(loc)
		gl.VertexAttribPointerWithOffset(loc, 4, gl.FLOAT, false, stride, uintptr(col*16))
		gl.VertexAttribDivisor(loc, 1)
	}

	gl.GenBuffers(1, &o.ebo)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, o.ebo)
	gl.BindVertexArray(0)

	gl.GenQueries(1, &o.query)

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.Enable(gl.CULL_FACE)
	gl.CullFace(gl.BACK)
	gl.FrontFace(gl.CCW)
	gl.Enable(gl.BLEND)
	gl.BlendEquation(gl.FUNC_ADD)
	gl.BlendFunc(gl.ONE, gl.ONE)

	if code := gl.GetError(); code != gl.NO_ERROR {
		return fmt.Errorf("gl setup: error 0x%x", code)
	}
	return nil
}

// Measure renders order with the positions of frame from every view and
// returns one overdraw ratio per view.
func (o *GL) Measure(frame int, order mesh.IndexBuffer) ([]float32, error) {
	if err := o.Render(frame, order); err != nil {
		return nil, err
	}
	return CellRatios(o.pixels, o.grid, o.level, o.views), nil
}

// Render draws one pass and reads the canvas back.
func (o *GL) Render(frame int, order mesh.IndexBuffer) error {
	if err := checkFrame(frame, o.frames); err != nil {
		return err
	}
	positions := o.frames[frame]
	if err := order.Validate(len(positions)); err != nil {
		return err
	}
	if len(order) == 0 {
		clear(o.pixels)
		o.fragments = 0
		return nil
	}

	o.flat = o.flat[:0]
	for _, p := range positions {
		o.flat = append(o.flat, p.X, p.Y, p.Z)
	}

	gl.UseProgram(o.program)
	gl.BindVertexArray(o.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, o.positionVBO)
	gl.BufferData(gl.ARRAY_BUFFER, len(o.flat)*4, gl.Ptr(o.flat), gl.STREAM_DRAW)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(order)*4, gl.Ptr(order), gl.STREAM_DRAW)

	o.fb.Bind()
	o.fb.Clear()

	gl.BeginQuery(gl.SAMPLES_PASSED, o.query)
	gl.DrawElementsInstanced(gl.TRIANGLES, int32(len(order)), gl.UNSIGNED_INT, nil, int32(o.views))
	gl.EndQuery(gl.SAMPLES_PASSED)

	// QUERY_RESULT blocks until the draw has finished.
	gl.GetQueryObjectui64v(o.query, gl.QUERY_RESULT, &o.fragments)
	o.pixels = o.fb.ReadRed(o.pixels)
	gl.BindVertexArray(0)

	if code := gl.GetError(); code != gl.NO_ERROR {
		return fmt.Errorf("gl draw: error 0x%x", code)
	}

	if o.visible {
		o.present()
		if o.win.PumpEvents() {
			return ErrWindowClosed
		}
	}
	return nil
}

func (o *GL) present() {
	w, h := o.fb.Size()
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, o.fb.FBO())
	gl.BindFramebuffer(gl.DRAW_FRAMEBUFFER, 0)
	gl.BlitFramebuffer(0, 0, w, h, 0, 0, w, h, gl.COLOR_BUFFER_BIT, gl.NEAREST)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	o.win.SwapBuffers()
}

// Canvas returns the last readback, bottom row first.
func (o *GL) Canvas() []byte { return o.pixels }

// Fragments returns the samples that passed the depth test in the last pass.
func (o *GL) Fragments() uint64 { return o.fragments }

// Grid returns the canvas layout.
func (o *GL) Grid() Grid { return o.grid }

// Close releases GPU resources and the window.
func (o *GL) Close() error {
	if o.query != 0 {
		gl.DeleteQueries(1, &o.query)
	}
	if o.ebo != 0 {
		gl.DeleteBuffers(1, &o.ebo)
	}
	if o.instanceVBO != 0 {
		gl.DeleteBuffers(1, &o.instanceVBO)
	}
	if o.positionVBO != 0 {
		gl.DeleteBuffers(1, &o.positionVBO)
	}
	if o.vao != 0 {
		gl.DeleteVertexArrays(1, &o.vao)
	}
	if o.program != 0 {
		gl.DeleteProgram(o.program)
	}
	if o.fb != nil {
		o.fb.Destroy()
	}
	if o.win != nil {
		o.win.Close()
	}
	*o = GL{}
	return nil
}
