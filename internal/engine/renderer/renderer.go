// Package renderer draws the working set with OpenGL. It implements the
// viewer canvas.
package renderer

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/surfelview/internal/engine/viewer"
	"github.com/Faultbox/surfelview/pkg/math"
)

// Config holds renderer configuration.
type Config struct {
	Width      int
	Height     int
	Background viewer.Color
}

// Renderer handles all OpenGL rendering.
type Renderer struct {
	config Config
	log    *zap.Logger

	pointProgram  uint32
	pointViewProj int32
	pointSize     int32

	lineProgram  uint32
	lineViewProj int32
	lineColor    int32

	pointVAO, positionVBO, colorVBO uint32
	lineVAO, lineVBO                uint32

	viewProj math.Mat4
	stats    FrameStats
}

// FrameStats counts what the last frame submitted.
type FrameStats struct {
	Points    int
	Lines     int
	DrawCalls int
}

var _ viewer.Canvas = (*Renderer)(nil)

// New creates a new renderer.
// IMPORTANT: Must be called AFTER OpenGL context is created!
func New(cfg Config, log *zap.Logger) (*Renderer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Renderer{config: cfg, log: log}

	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}

	log.Info("OpenGL initialized",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
	)

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.Enable(gl.PROGRAM_POINT_SIZE)
	bg := cfg.Background
	gl.ClearColor(bg[0], bg[1], bg[2], bg[3])

	var err error
	r.pointProgram, err = compileProgram(pointVertexShader, pointFragmentShader)
	if err != nil {
		return nil, fmt.Errorf("point program: %w", err)
	}
	r.pointViewProj = uniform(r.pointProgram, "uViewProj")
	r.pointSize = uniform(r.pointProgram, "uPointSize")

	r.lineProgram, err = compileProgram(lineVertexShader, lineFragmentShader)
	if err != nil {
		gl.DeleteProgram(r.pointProgram)
		return nil, fmt.Errorf("line program: %w", err)
	}
	r.lineViewProj = uniform(r.lineProgram, "uViewProj")
	r.lineColor = uniform(r.lineProgram, "uColor")

	r.createBuffers()
	gl.Viewport(0, 0, int32(cfg.Width), int32(cfg.Height))

	return r, nil
}

func (r *Renderer) createBuffers() {
	gl.GenVertexArrays(1, &r.pointVAO)
	gl.BindVertexArray(r.pointVAO)

	gl.GenBuffers(1, &r.positionVBO)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.positionVBO)
	gl.VertexAttribPointer(0, 3, gl.FLOAT, false, 3*4, nil)
	gl.EnableVertexAttribArray(0)

	gl.GenBuffers(1, &r.colorVBO)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.colorVBO)
	gl.VertexAttribPointer(1, 4, gl.UNSIGNED_BYTE, true, 4, nil)
	gl.EnableVertexAttribArray(1)

	gl.GenVertexArrays(1, &r.lineVAO)
	gl.BindVertexArray(r.lineVAO)
	gl.GenBuffers(1, &r.lineVBO)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.lineVBO)
	gl.VertexAttribPointer(0, 3, gl.FLOAT, false, 3*4, nil)
	gl.EnableVertexAttribArray(0)

	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	gl.BindVertexArray(0)

	r.log.Debug("buffers created",
		zap.Uint32("point_vao", r.pointVAO),
		zap.Uint32("line_vao", r.lineVAO),
	)
}

// Close cleans up renderer resources.
func (r *Renderer) Close() {
	r.log.Info("closing renderer")
	for _, vao := range []*uint32{&r.pointVAO, &r.lineVAO} {
		if *vao != 0 {
			gl.DeleteVertexArrays(1, vao)
		}
	}
	for _, vbo := range []*uint32{&r.positionVBO, &r.colorVBO, &r.lineVBO} {
		if *vbo != 0 {
			gl.DeleteBuffers(1, vbo)
		}
	}
	if r.pointProgram != 0 {
		gl.DeleteProgram(r.pointProgram)
	}
	if r.lineProgram != 0 {
		gl.DeleteProgram(r.lineProgram)
	}
}

// Resize handles window resize.
func (r *Renderer) Resize(width, height int) {
	r.config.Width = width
	r.config.Height = height
	gl.Viewport(0, 0, int32(width), int32(height))
	r.log.Debug("renderer resized", zap.Int("width", width), zap.Int("height", height))
}

// Begin starts a new frame drawn with the given view-projection matrix.
func (r *Renderer) Begin(viewProj math.Mat4) {
	r.viewProj = viewProj
	r.stats = FrameStats{}
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
}

// End finishes the current frame and returns what it drew.
func (r *Renderer) End() FrameStats {
	gl.BindVertexArray(0)
	gl.UseProgram(0)
	return r.stats
}

// Points implements viewer.Canvas.
func (r *Renderer) Points(batch viewer.PointBatch) {
	n := batch.Len()
	if n == 0 || len(batch.Colors) < n*4 {
		return
	}

	gl.UseProgram(r.pointProgram)
	gl.UniformMatrix4fv(r.pointViewProj, 1, false, r.viewProj.Ptr())
	gl.Uniform1f(r.pointSize, batch.Size)

	gl.BindVertexArray(r.pointVAO)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.positionVBO)
	gl.BufferData(gl.ARRAY_BUFFER, len(batch.Positions)*4, gl.Ptr(batch.Positions), gl.STREAM_DRAW)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.colorVBO)
	gl.BufferData(gl.ARRAY_BUFFER, len(batch.Colors), gl.Ptr(batch.Colors), gl.STREAM_DRAW)
	gl.DrawArrays(gl.POINTS, 0, int32(n))

	r.stats.Points += n
	r.stats.DrawCalls++
}

// Lines implements viewer.Canvas. vertices holds pairs of endpoints.
func (r *Renderer) Lines(vertices []float32, color viewer.Color) {
	if len(vertices) < 6 {
		return
	}

	gl.UseProgram(r.lineProgram)
	gl.UniformMatrix4fv(r.lineViewProj, 1, false, r.viewProj.Ptr())
	gl.Uniform4f(r.lineColor, color[0], color[1], color[2], color[3])

	gl.BindVertexArray(r.lineVAO)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.lineVBO)
	gl.BufferData(gl.ARRAY_BUFFER, len(vertices)*4, gl.Ptr(vertices), gl.STREAM_DRAW)
	gl.DrawArrays(gl.LINES, 0, int32(len(vertices)/3))

	r.stats.Lines += len(vertices) / 6
	r.stats.DrawCalls++
}
