// Package viewer holds the interactive state of the point-cloud viewer and
// the drawables that render the working set.
package viewer

import (
	"errors"

	"go.uber.org/zap"

	"github.com/Faultbox/surfelview/internal/engine/camera"
	"github.com/Faultbox/surfelview/internal/engine/hierarchy"
	"github.com/Faultbox/surfelview/internal/engine/workingset"
	"github.com/Faultbox/surfelview/pkg/math"
)

// Settings are the level-of-detail controls exposed to the user.
type Settings struct {
	TargetResolution   float32 // Required samples per pixel
	FocusRadius        float32
	Budget             int     // Maximum resident points, zero for no limit
	OutsideFocusFactor float32 // Target relaxation outside the focus radius
	Subsampling        int     // Draw every n-th point
	PointSize          float32
	ShowBounds         bool
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		TargetResolution:   1,
		FocusRadius:        0,
		Budget:             4_000_000,
		OutsideFocusFactor: 4,
		Subsampling:        1,
		PointSize:          2,
	}
}

// Target resolution and focus radius limits.
const (
	MinTargetResolution = 1.0 / 64
	MaxTargetResolution = 64
)

// MouseState is the pointer state tracked between events.
type MouseState struct {
	X, Y   int
	Left   bool
	Right  bool
	Middle bool
}

// Context is the state shared by the viewer loop, the working-set manager
// and the drawables.
type Context struct {
	Width, Height int
	Mouse         MouseState
	Camera        *camera.OrbitCamera
	Settings      Settings

	tree      *hierarchy.Tree
	manager   *workingset.Manager
	log       *zap.Logger
	selection hierarchy.NodeID
	last      workingset.ViewParameters
	refreshed bool
}

// NewContext creates a context over a manager. The camera is fitted to the
// dataset bounds.
func NewContext(tree *hierarchy.Tree, manager *workingset.Manager, settings Settings, width, height int, log *zap.Logger) *Context {
	if log == nil {
		log = zap.NewNop()
	}
	cam := camera.NewOrbitCamera()
	cam.FitToBounds(tree.Node(tree.Root()).BoundingBox())

	c := &Context{
		Width:     width,
		Height:    height,
		Camera:    cam,
		tree:      tree,
		manager:   manager,
		log:       log,
		selection: hierarchy.InvalidNode,
	}
	c.ApplyLOD(settings)
	return c
}

// Tree returns the dataset hierarchy.
func (c *Context) Tree() *hierarchy.Tree { return c.tree }

// Manager returns the working-set manager.
func (c *Context) Manager() *workingset.Manager { return c.manager }

// Focus returns the focus point, which follows the camera's orbit center.
func (c *Context) Focus() math.Vec3 { return c.Camera.Center }

// ViewParameters returns the working-set inputs for the current state.
func (c *Context) ViewParameters() workingset.ViewParameters {
	return workingset.ViewParameters{
		View:             c.Camera.View(c.Width, c.Height),
		FocusPoint:       c.Focus(),
		TargetResolution: c.Settings.TargetResolution,
		FocusRadius:      c.Settings.FocusRadius,
		Budget:           c.Settings.Budget,
	}
}

// Refresh runs a working-set update if the view changed since the last
// one. Failed loads force another update on the next call.
func (c *Context) Refresh() (workingset.Result, bool) {
	v := c.ViewParameters()
	if c.refreshed && v == c.last {
		return workingset.Result{}, false
	}

	res := c.manager.Update(v)
	c.last = v
	c.refreshed = len(res.Failed) == 0
	return res, true
}

// Invalidate forces the next Refresh to update.
func (c *Context) Invalidate() {
	c.refreshed = false
}

// ApplyLOD replaces the level-of-detail settings, clamping invalid values.
func (c *Context) ApplyLOD(s Settings) {
	if s.Subsampling < 1 {
		s.Subsampling = 1
	}
	if s.PointSize <= 0 {
		s.PointSize = 1
	}
	if s.FocusRadius < 0 {
		s.FocusRadius = 0
	}
	s.TargetResolution = clamp(s.TargetResolution, MinTargetResolution, MaxTargetResolution)
	if s.OutsideFocusFactor > 0 {
		c.manager.Estimator().OutsideFocusFactor = s.OutsideFocusFactor
	}
	c.Settings = s
	c.Invalidate()
}

// AdjustTargetResolution multiplies the target resolution by factor.
func (c *Context) AdjustTargetResolution(factor float32) {
	c.Settings.TargetResolution = clamp(c.Settings.TargetResolution*factor, MinTargetResolution, MaxTargetResolution)
	c.log.Debug("target resolution", zap.Float32("value", c.Settings.TargetResolution))
}

// AdjustFocusRadius changes the focus radius by a fraction of the dataset
// diagonal. The radius never goes below zero.
func (c *Context) AdjustFocusRadius(fraction float32) {
	diag := c.tree.Node(c.tree.Root()).BoundingBox().Diagonal()
	c.Settings.FocusRadius += fraction * diag
	if c.Settings.FocusRadius < 0 {
		c.Settings.FocusRadius = 0
	}
	c.log.Debug("focus radius", zap.Float32("value", c.Settings.FocusRadius))
}

// Resize records a new viewport size.
func (c *Context) Resize(width, height int) {
	c.Width, c.Height = width, height
}

// FitCamera points the camera at the whole dataset.
func (c *Context) FitCamera() {
	c.Camera.FitToBounds(c.tree.Node(c.tree.Root()).BoundingBox())
}

// Selection returns the selected node, or InvalidNode.
func (c *Context) Selection() hierarchy.NodeID { return c.selection }

// SelectNode pins id at full resolution, replacing any previous selection.
func (c *Context) SelectNode(id hierarchy.NodeID) error {
	if id == c.selection {
		return nil
	}
	if err := c.manager.InsertIntoWorkingSet(id, true); err != nil {
		return err
	}
	c.ClearSelection()
	c.selection = id
	c.Invalidate()
	c.log.Info("node selected", zap.Int32("node", int32(id)))
	return nil
}

// ClearSelection unpins the selected node. Pins count against the budget,
// so both selection calls force the next Refresh.
func (c *Context) ClearSelection() {
	if c.selection == hierarchy.InvalidNode {
		return
	}
	c.manager.RemoveFromWorkingSet(c.selection, true)
	c.selection = hierarchy.InvalidNode
	c.Invalidate()
}

// ErrNothingPicked is returned by SelectAt when no resident node is under
// the pointer.
var ErrNothingPicked = errors.New("no node under pointer")

// Pick returns the deepest resident node whose box the pointer ray hits
// first, or InvalidNode.
func (c *Context) Pick(x, y int) hierarchy.NodeID {
	if c.Width <= 0 || c.Height <= 0 {
		return hierarchy.InvalidNode
	}
	inv := c.Camera.ViewProjection(c.Width, c.Height).Inverse()
	ray := math.ScreenToRay(float32(x), float32(y), float32(c.Width), float32(c.Height), inv)

	best := hierarchy.InvalidNode
	var bestT float32
	bestDepth := -1
	for _, id := range c.manager.Resident() {
		n := c.tree.Node(id)
		t, hit := ray.IntersectBox(n.BoundingBox())
		if !hit {
			continue
		}
		if best == hierarchy.InvalidNode || n.Depth() > bestDepth || (n.Depth() == bestDepth && t < bestT) {
			best, bestT, bestDepth = id, t, n.Depth()
		}
	}
	return best
}

// SelectAt selects the node under the pointer.
func (c *Context) SelectAt(x, y int) error {
	id := c.Pick(x, y)
	if id == hierarchy.InvalidNode {
		return ErrNothingPicked
	}
	return c.SelectNode(id)
}

// Close unpins the selection and releases the working set.
func (c *Context) Close() {
	c.ClearSelection()
	c.manager.Close()
	c.refreshed = false
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
