package viewer

import (
	"github.com/Faultbox/surfelview/internal/engine/hierarchy"
	"github.com/Faultbox/surfelview/pkg/math"
	"github.com/Faultbox/surfelview/pkg/pcdb"
)

// Color is an RGBA color with components in [0, 1].
type Color [4]float32

// PointBatch is a run of points sharing one draw call.
type PointBatch struct {
	Positions []float32 // x, y, z per point
	Colors    []uint8   // r, g, b, a per point
	Size      float32
}

// Len returns the number of points in the batch.
func (b PointBatch) Len() int { return len(b.Positions) / 3 }

// Canvas receives draw calls. The OpenGL renderer implements it.
type Canvas interface {
	Points(batch PointBatch)
	Lines(vertices []float32, color Color)
}

// DrawContext is what a drawable sees during one frame.
type DrawContext struct {
	Canvas Canvas
	Viewer *Context
}

// ForEachResident calls fn for every resident node and its points.
func (dc *DrawContext) ForEachResident(fn func(n *hierarchy.Node, points [][]pcdb.Point)) {
	dc.Viewer.manager.ForEachResident(fn)
}

// Drawable renders one kind of content.
type Drawable interface {
	Draw(dc *DrawContext)
}

// Scene draws its drawables in order.
type Scene struct {
	Drawables []Drawable
}

// NewScene creates the default scene: points, node bounds and the focus
// marker.
func NewScene() *Scene {
	return &Scene{Drawables: []Drawable{
		&PointCloud{},
		&NodeBounds{Color: Color{0.2, 0.8, 0.2, 1}, Selected: Color{1, 0.8, 0, 1}},
		&FocusMarker{Color: Color{1, 0.2, 0.2, 1}},
	}}
}

// Draw renders the scene for the viewer state onto canvas.
func (s *Scene) Draw(c *Context, canvas Canvas) {
	dc := &DrawContext{Canvas: canvas, Viewer: c}
	for _, d := range s.Drawables {
		d.Draw(dc)
	}
}

// PointCloud draws the points of every resident node. Only every n-th point
// is drawn when subsampling is set.
type PointCloud struct {
	positions []float32
	colors    []uint8
}

// Draw implements Drawable.
func (p *PointCloud) Draw(dc *DrawContext) {
	step := dc.Viewer.Settings.Subsampling
	if step < 1 {
		step = 1
	}

	p.positions = p.positions[:0]
	p.colors = p.colors[:0]
	dc.ForEachResident(func(_ *hierarchy.Node, blocks [][]pcdb.Point) {
		for _, block := range blocks {
			for i := 0; i < len(block); i += step {
				pt := &block[i]
				p.positions = append(p.positions, pt.Position[0], pt.Position[1], pt.Position[2])
				p.colors = append(p.colors, pt.Color[0], pt.Color[1], pt.Color[2], pt.Color[3])
			}
		}
	})

	if len(p.positions) == 0 {
		return
	}
	dc.Canvas.Points(PointBatch{
		Positions: p.positions,
		Colors:    p.colors,
		Size:      dc.Viewer.Settings.PointSize,
	})
}

// NodeBounds draws the bounding box of every resident node when enabled,
// and of the selected node always.
type NodeBounds struct {
	Color    Color
	Selected Color
}

// Draw implements Drawable.
func (b *NodeBounds) Draw(dc *DrawContext) {
	v := dc.Viewer
	if v.Settings.ShowBounds {
		var vertices []float32
		dc.ForEachResident(func(n *hierarchy.Node, _ [][]pcdb.Point) {
			vertices = append(vertices, n.BoundingBox().Wireframe()...)
		})
		if len(vertices) > 0 {
			dc.Canvas.Lines(vertices, b.Color)
		}
	}

	if sel := v.Selection(); sel != hierarchy.InvalidNode {
		dc.Canvas.Lines(v.tree.Node(sel).BoundingBox().Wireframe(), b.Selected)
	}
}

// FocusMarker draws an axis cross at the focus point, sized by the focus
// radius or a fraction of the camera distance.
type FocusMarker struct {
	Color Color
}

// Draw implements Drawable.
func (f *FocusMarker) Draw(dc *DrawContext) {
	v := dc.Viewer
	size := v.Settings.FocusRadius
	if size <= 0 {
		size = v.Camera.Distance * 0.02
	}
	c := v.Focus()

	vertices := make([]float32, 0, 18)
	for _, d := range [3]math.Vec3{{X: size}, {Y: size}, {Z: size}} {
		a, b := c.Sub(d), c.Add(d)
		vertices = append(vertices, a.X, a.Y, a.Z, b.X, b.Y, b.Z)
	}
	dc.Canvas.Lines(vertices, f.Color)
}
